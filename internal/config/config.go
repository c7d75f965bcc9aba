package config

import (
	"fmt"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"
)

// DefaultConfigPath is the analysis configuration used when -config is not
// given.
const DefaultConfigPath = "config/groomers.yaml"

const maxFileSize = 1 * 1024 * 1024 // 1MB

// Config is the root analysis configuration. Keys follow the substructure
// analysis YAML: top-level lists drive the outer loops and every observable
// named in process_observables has its own block.
type Config struct {
	ProcessObservables []string `yaml:"process_observables"`
	JetR               []float64 `yaml:"jetR"`
	EtaMax             float64   `yaml:"eta_max"`
	MinThetaList       []float64 `yaml:"min_theta_list"`
	OutputDir          string    `yaml:"output_dir"`
	FileFormat         *string   `yaml:"file_format,omitempty"`

	ConstituentSubtractor ConstituentSubtractor `yaml:"constituent_subtractor"`

	// Category partition, in flag order. Empty means the standard six.
	Categories       []string `yaml:"categories,omitempty"`
	TaggedCategories []string `yaml:"tagged_categories,omitempty"`

	Workers     *int     `yaml:"workers,omitempty"`
	MinIntegral *float64 `yaml:"min_integral,omitempty"`
	Database    string   `yaml:"database,omitempty"`

	// Observables holds the blocks of the processed observables, keyed by
	// observable name.
	Observables map[string]*ObservableConfig `yaml:"-"`
	// Extra holds every other top-level key undecoded: observable blocks
	// and the scalar settings of the wider analysis (main_response,
	// debug_level, ...).
	Extra map[string]yaml.Node `yaml:",inline"`
}

// ConstituentSubtractor carries the background-subtraction settings. Only
// the list of R_max values is used here.
type ConstituentSubtractor struct {
	MaxDistance []float64 `yaml:"max_distance"`
	MainRMax    float64   `yaml:"main_R_max"`
}

// CommonSettings are shared by every subconfiguration of an observable.
type CommonSettings struct {
	XTitle          string     `yaml:"xtitle"`
	YTitle          string     `yaml:"ytitle"`
	PtBinsReported  []float64  `yaml:"pt_bins_reported"`
	PlotOverlayList [][]string `yaml:"plot_overlay_list"`
}

// SubConfig is one grooming setting of an observable.
type SubConfig struct {
	Name string `yaml:"-"`
	// SoftDrop is [zcut, beta].
	SoftDrop []float64 `yaml:"SD,omitempty"`
	// DynamicalGrooming is [a].
	DynamicalGrooming []float64 `yaml:"DG,omitempty"`
	// Setting is the observable parameter for parameterized observables
	// (kappa, tf); nil for groomed-splitting observables.
	Setting *float64 `yaml:"setting,omitempty"`
}

// ObservableConfig is one observable block. Subconfigurations keep the
// order in which they appear in the file.
type ObservableConfig struct {
	CommonSettings CommonSettings
	Subconfigs     []SubConfig
}

// UnmarshalYAML decodes common_settings and every key containing "config"
// as a subconfiguration, preserving document order.
func (o *ObservableConfig) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("line %d: observable block must be a mapping", value.Line)
	}
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i].Value, value.Content[i+1]
		switch {
		case key == "common_settings":
			if err := val.Decode(&o.CommonSettings); err != nil {
				return fmt.Errorf("common_settings: %w", err)
			}
		case strings.Contains(key, "config"):
			var sc SubConfig
			if err := val.Decode(&sc); err != nil {
				return fmt.Errorf("%s: %w", key, err)
			}
			sc.Name = key
			o.Subconfigs = append(o.Subconfigs, sc)
		}
	}
	return nil
}

// Subconfig returns the named subconfiguration.
func (o *ObservableConfig) Subconfig(name string) (SubConfig, bool) {
	for _, sc := range o.Subconfigs {
		if sc.Name == name {
			return sc, true
		}
	}
	return SubConfig{}, false
}

// RemovePeriods renders v without a decimal point, as used in labels and
// file names: 0.1 -> "01", 0.25 -> "025", 2 -> "2".
func RemovePeriods(v float64) string {
	return strings.ReplaceAll(strconv.FormatFloat(v, 'f', -1, 64), ".", "")
}

// GroomingLabel is the short grooming tag, e.g. "SD_zcut01_B0" or "DG_a1".
func (s SubConfig) GroomingLabel() string {
	var parts []string
	if len(s.SoftDrop) == 2 {
		parts = append(parts, fmt.Sprintf("SD_zcut%s_B%s", RemovePeriods(s.SoftDrop[0]), RemovePeriods(s.SoftDrop[1])))
	}
	if len(s.DynamicalGrooming) == 1 {
		parts = append(parts, "DG_a"+RemovePeriods(s.DynamicalGrooming[0]))
	}
	if len(parts) == 0 {
		return "ungroomed"
	}
	return strings.Join(parts, "_")
}

// Label identifies the subconfiguration in histogram names and ratio keys.
func (s SubConfig) Label() string {
	if s.Setting != nil {
		return RemovePeriods(*s.Setting) + "_" + s.GroomingLabel()
	}
	return s.GroomingLabel()
}

// FormattedGroomingLabel is the legend text for the grooming setting.
func (s SubConfig) FormattedGroomingLabel() string {
	var parts []string
	if len(s.SoftDrop) == 2 {
		parts = append(parts, fmt.Sprintf("SD: zcut = %s, beta = %s",
			strconv.FormatFloat(s.SoftDrop[0], 'f', -1, 64), strconv.FormatFloat(s.SoftDrop[1], 'f', -1, 64)))
	}
	if len(s.DynamicalGrooming) == 1 {
		parts = append(parts, "DG: a = "+strconv.FormatFloat(s.DynamicalGrooming[0], 'f', -1, 64))
	}
	if len(parts) == 0 {
		return "ungroomed"
	}
	return strings.Join(parts, ", ")
}

// ZMin is the lower zg bound implied by the grooming: the SoftDrop zcut
// when beta is zero, otherwise 0.
func (s SubConfig) ZMin() float64 {
	if len(s.SoftDrop) == 2 && math.Abs(s.SoftDrop[1]) < 1e-3 {
		return s.SoftDrop[0]
	}
	return 0
}

// Load reads and validates a YAML configuration file. The file must have a
// .yaml or .yml extension and be at most 1MB.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	if ext := filepath.Ext(cleanPath); ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}
	return Parse(data)
}

// Parse decodes and validates YAML configuration bytes.
func Parse(data []byte) (*Config, error) {
	cfg := &Config{}
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.decodeObservables(); err != nil {
		return nil, fmt.Errorf("failed to parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// decodeObservables decodes the block of every processed observable out of
// Extra. Blocks of observables not being processed stay raw.
func (c *Config) decodeObservables() error {
	c.Observables = make(map[string]*ObservableConfig, len(c.ProcessObservables))
	for _, name := range c.ProcessObservables {
		node, ok := c.Extra[name]
		if !ok {
			continue
		}
		oc := &ObservableConfig{}
		if err := node.Decode(oc); err != nil {
			return fmt.Errorf("%s: %w", name, err)
		}
		c.Observables[name] = oc
	}
	return nil
}

// Validate checks the configuration for internal consistency.
func (c *Config) Validate() error {
	if len(c.ProcessObservables) == 0 {
		return fmt.Errorf("process_observables must not be empty")
	}
	if len(c.JetR) == 0 {
		return fmt.Errorf("jetR must not be empty")
	}
	for _, r := range c.JetR {
		if r <= 0 {
			return fmt.Errorf("jetR values must be positive, got %g", r)
		}
	}
	if len(c.ConstituentSubtractor.MaxDistance) == 0 {
		return fmt.Errorf("constituent_subtractor.max_distance must not be empty")
	}
	for _, th := range c.MinThetaList {
		if th < 0 || th >= 1 {
			return fmt.Errorf("min_theta_list values must be in [0, 1), got %g", th)
		}
	}
	if c.Workers != nil && *c.Workers < 1 {
		return fmt.Errorf("workers must be at least 1, got %d", *c.Workers)
	}
	if c.MinIntegral != nil && *c.MinIntegral <= 0 {
		return fmt.Errorf("min_integral must be positive, got %g", *c.MinIntegral)
	}
	if len(c.TaggedCategories) > 0 && len(c.Categories) == 0 {
		return fmt.Errorf("tagged_categories requires categories")
	}

	for _, name := range c.ProcessObservables {
		oc, ok := c.Observables[name]
		if !ok || oc == nil {
			return fmt.Errorf("observable %q has no configuration block", name)
		}
		if err := oc.validate(name); err != nil {
			return err
		}
	}
	return nil
}

func (o *ObservableConfig) validate(name string) error {
	if len(o.Subconfigs) == 0 {
		return fmt.Errorf("observable %q has no subconfigurations", name)
	}
	seen := make(map[string]bool, len(o.Subconfigs))
	for _, sc := range o.Subconfigs {
		if len(sc.SoftDrop) != 0 && len(sc.SoftDrop) != 2 {
			return fmt.Errorf("%s.%s: SD must be [zcut, beta]", name, sc.Name)
		}
		if len(sc.DynamicalGrooming) > 1 {
			return fmt.Errorf("%s.%s: DG must be [a]", name, sc.Name)
		}
		if seen[sc.Label()] {
			return fmt.Errorf("%s.%s: duplicate label %q", name, sc.Name, sc.Label())
		}
		seen[sc.Label()] = true
	}
	pt := o.CommonSettings.PtBinsReported
	if len(pt) < 2 {
		return fmt.Errorf("%s: pt_bins_reported needs at least two edges", name)
	}
	if !sort.Float64sAreSorted(pt) {
		return fmt.Errorf("%s: pt_bins_reported must be ascending", name)
	}
	for i, group := range o.CommonSettings.PlotOverlayList {
		for _, sub := range group {
			if _, ok := o.Subconfig(sub); !ok {
				return fmt.Errorf("%s: plot_overlay_list[%d] names unknown subconfiguration %q", name, i, sub)
			}
		}
	}
	return nil
}

// GetWorkers returns the worker count (default 4).
func (c *Config) GetWorkers() int {
	if c.Workers == nil {
		return 4
	}
	return *c.Workers
}

// GetFileFormat returns the plot file extension including the dot
// (default ".pdf").
func (c *Config) GetFileFormat() string {
	if c.FileFormat == nil || *c.FileFormat == "" {
		return ".pdf"
	}
	f := *c.FileFormat
	if !strings.HasPrefix(f, ".") {
		f = "." + f
	}
	return f
}

// GetMinIntegral returns the insufficient-statistics threshold (default
// 1e-3).
func (c *Config) GetMinIntegral() float64 {
	if c.MinIntegral == nil {
		return 1e-3
	}
	return *c.MinIntegral
}

// GetMinThetaList returns the threshold list, defaulting to a single 0.
func (c *Config) GetMinThetaList() []float64 {
	if len(c.MinThetaList) == 0 {
		return []float64{0}
	}
	return c.MinThetaList
}
