// Command groomers decomposes embedded jet-substructure distributions into
// prong-matching categories, builds the measured/truth and tagging-purity
// ratios and renders them.
//
// Usage:
//
//	groomers [flags]                       run the configured analysis
//	groomers import [-db path] file.json…  load source histograms
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/banshee-data/groomers/internal/config"
	"github.com/banshee-data/groomers/internal/fsutil"
	"github.com/banshee-data/groomers/internal/monitoring"
	"github.com/banshee-data/groomers/internal/pipeline"
	"github.com/banshee-data/groomers/internal/report"
	"github.com/banshee-data/groomers/internal/store"
	"github.com/banshee-data/groomers/internal/version"
)

const defaultDB = "groomers.db"

var (
	logf       = monitoring.Component("groomers")
	logMetrics = monitoring.Component("metrics")
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var err error
	if len(os.Args) > 1 && os.Args[1] == "import" {
		err = runImport(ctx, os.Args[2:], os.Stdout)
	} else {
		err = run(ctx, os.Args[1:], os.Stdout)
	}
	if errors.Is(err, flag.ErrHelp) {
		return
	}
	if err != nil {
		log.Fatalf("groomers: %v", err)
	}
}

type runFlags struct {
	configPath  string
	dbPath      string
	output      string
	workers     int
	format      string
	minIntegral float64
	metricsAddr string
	noPlots     bool
	showVersion bool
}

func parseRunFlags(args []string, stderr io.Writer) (*runFlags, error) {
	fs := flag.NewFlagSet("groomers", flag.ContinueOnError)
	fs.SetOutput(stderr)
	f := &runFlags{}
	fs.StringVar(&f.configPath, "config", config.DefaultConfigPath, "Path to the YAML analysis configuration")
	fs.StringVar(&f.dbPath, "db", "", "SQLite database holding source histograms and results (default: config database, then "+defaultDB+")")
	fs.StringVar(&f.output, "output", "", "Output directory for figures (default: config output_dir)")
	fs.IntVar(&f.workers, "workers", 0, "Concurrent configurations (0 keeps the configured value)")
	fs.StringVar(&f.format, "format", "", "Figure format: pdf, png, svg, eps, jpg or tiff (default: config file_format)")
	fs.Float64Var(&f.minIntegral, "min-integral", 0, "Insufficient-statistics threshold (0 keeps the configured value)")
	fs.StringVar(&f.metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address while running")
	fs.BoolVar(&f.noPlots, "no-plots", false, "Skip figure rendering; results are still stored")
	fs.BoolVar(&f.showVersion, "version", false, "Print version and exit")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	if fs.NArg() > 0 {
		return nil, fmt.Errorf("unexpected arguments: %s", strings.Join(fs.Args(), " "))
	}
	return f, nil
}

// applyOverrides folds command-line values into cfg and revalidates it.
func (f *runFlags) applyOverrides(cfg *config.Config) error {
	if f.workers != 0 {
		w := f.workers
		cfg.Workers = &w
	}
	if f.format != "" {
		format := f.format
		cfg.FileFormat = &format
	}
	if f.minIntegral != 0 {
		m := f.minIntegral
		cfg.MinIntegral = &m
	}
	if f.output != "" {
		cfg.OutputDir = f.output
	}
	return cfg.Validate()
}

func (f *runFlags) database(cfg *config.Config) string {
	switch {
	case f.dbPath != "":
		return f.dbPath
	case cfg.Database != "":
		return cfg.Database
	}
	return defaultDB
}

func serveMetrics(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logMetrics("server error: %v", err)
		}
	}()
	logMetrics("serving on %s/metrics", addr)
	return srv
}

func run(ctx context.Context, args []string, stdout io.Writer) error {
	f, err := parseRunFlags(args, os.Stderr)
	if err != nil {
		return err
	}
	if f.showVersion {
		fmt.Fprintln(stdout, "groomers", version.String())
		return nil
	}

	cfg, err := config.Load(f.configPath)
	if err != nil {
		return err
	}
	if err := f.applyOverrides(cfg); err != nil {
		return err
	}

	db, err := store.Open(f.database(cfg))
	if err != nil {
		return err
	}
	defer db.Close()

	if f.metricsAddr != "" {
		srv := serveMetrics(f.metricsAddr)
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			srv.Shutdown(shutdownCtx)
		}()
	}

	histograms := store.NewHistogramStore(db.DB)
	results := store.NewResultStore(db.DB)
	runID, err := results.BeginRun(ctx, f.configPath)
	if err != nil {
		return err
	}
	logf("run %s started (%s)", runID, version.String())

	runner, err := pipeline.NewRunner(cfg, histograms)
	if err != nil {
		return err
	}

	var rend *report.Renderer
	if !f.noPlots {
		rend, err = report.New(cfg, fsutil.OSFileSystem{}, cfg.OutputDir)
		if err != nil {
			return err
		}
		runner.Sink = pipeline.Sinks(results.Sink(runID), rend.Sink())
	} else {
		runner.Sink = results.Sink(runID)
	}

	rep, runErr := runner.Run(ctx)
	var overlays report.OverlaySummary
	if rend != nil && ctx.Err() == nil {
		plans, err := runner.OverlayPlans()
		if err == nil {
			overlays, err = rend.RenderOverlays(ctx, plans, runner.Ratios)
		}
		if err != nil {
			runErr = errors.Join(runErr, fmt.Errorf("render overlays: %w", err))
		}
	}

	// The run record is closed even when the context was cancelled.
	if err := results.FinishRun(context.WithoutCancel(ctx), runID, rep, runErr); err != nil {
		runErr = errors.Join(runErr, err)
	}
	printSummary(stdout, runID, rep, overlays)
	return runErr
}

func printSummary(w io.Writer, runID string, rep *pipeline.Report, overlays report.OverlaySummary) {
	fmt.Fprintf(w, "run %s\n", runID)
	if rep == nil {
		return
	}
	fmt.Fprintf(w, "  configurations: %d\n", rep.Units)
	fmt.Fprintf(w, "  slices built:   %d\n", rep.Count(pipeline.RatiosBuilt))
	fmt.Fprintf(w, "  slices skipped: %d\n", rep.Count(pipeline.InsufficientStatistics))
	if n := rep.SinkFailures(); n > 0 {
		fmt.Fprintf(w, "  sink failures:  %d\n", n)
	}
	fmt.Fprintf(w, "  overlays:       %d (%d empty)\n", len(overlays.Files), overlays.Empty)
	for _, name := range rep.Missing {
		fmt.Fprintf(w, "  missing source: %s\n", name)
	}
	for _, c := range rep.EmptyConfigurations {
		fmt.Fprintf(w, "  warning: every slice of %s lacked statistics\n", c)
	}
	failed := make([]string, 0, len(rep.Failed))
	for obs := range rep.Failed {
		failed = append(failed, obs)
	}
	sort.Strings(failed)
	for _, obs := range failed {
		fmt.Fprintf(w, "  failed %s: %v\n", obs, rep.Failed[obs])
	}
}

func runImport(ctx context.Context, args []string, stdout io.Writer) error {
	fs := flag.NewFlagSet("groomers import", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	dbPath := fs.String("db", defaultDB, "SQLite database to load into")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		return fmt.Errorf("import: no input files")
	}

	db, err := store.Open(*dbPath)
	if err != nil {
		return err
	}
	defer db.Close()
	histograms := store.NewHistogramStore(db.DB)

	var files fsutil.FileSystem = fsutil.OSFileSystem{}
	for _, path := range fs.Args() {
		data, err := files.ReadFile(path)
		if err != nil {
			return fmt.Errorf("import: %w", err)
		}
		names, err := histograms.ImportJSON(ctx, data)
		if err != nil {
			return fmt.Errorf("import %s: %w", path, err)
		}
		fmt.Fprintf(stdout, "%s: %d histograms\n", path, len(names))
	}
	return nil
}
