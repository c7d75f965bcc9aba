package pipeline

import (
	"github.com/banshee-data/groomers/internal/ratio"
	"github.com/banshee-data/groomers/internal/selection"
)

// OverlayPlan is one cross-configuration ratio figure.
type OverlayPlan struct {
	Request ratio.OverlayRequest
	// Index is the position of the group in plot_overlay_list.
	Index int
	// Legends maps each label to its legend text.
	Legends map[string]string
	XTitle  string
	Layout  Layout
}

// OverlayPlans lists every overlay figure of the run for both ratio kinds.
// Labels within a group follow subconfiguration file order; subconfigs
// not named in the group are left out.
func (r *Runner) OverlayPlans() ([]OverlayPlan, error) {
	var plans []OverlayPlan
	for _, obs := range r.Config.ProcessObservables {
		layout, err := LayoutFor(obs)
		if err != nil {
			return nil, err
		}
		oc := r.Config.Observables[obs]
		if oc == nil {
			continue
		}
		slices, err := selection.Slices(oc.CommonSettings.PtBinsReported, layout.Thresholds(r.Config.GetMinThetaList()))
		if err != nil {
			return nil, err
		}
		for _, rmax := range r.Config.ConstituentSubtractor.MaxDistance {
			for _, jetR := range r.Config.JetR {
				for _, kind := range []ratio.Kind{ratio.MeasuredVsTruth, ratio.TaggedPurity} {
					for gi, group := range oc.CommonSettings.PlotOverlayList {
						member := make(map[string]bool, len(group))
						for _, name := range group {
							member[name] = true
						}
						var labels []string
						legends := make(map[string]string)
						for _, sub := range oc.Subconfigs {
							if !member[sub.Name] {
								continue
							}
							labels = append(labels, sub.Label())
							legends[sub.Label()] = sub.FormattedGroomingLabel()
						}
						for _, s := range slices {
							plans = append(plans, OverlayPlan{
								Request: ratio.OverlayRequest{
									Observable: obs, JetR: jetR, RMax: rmax, Slice: s, Kind: kind, Labels: labels,
								},
								Index:   gi,
								Legends: legends,
								XTitle:  oc.CommonSettings.XTitle,
								Layout:  layout,
							})
						}
					}
				}
			}
		}
	}
	return plans, nil
}
