package outwriter

import (
	"fmt"
	"io"
	"slices"
	"strconv"
	"strings"

	"github.com/huangsam/macindex/internal/contract"
	"github.com/huangsam/macindex/schema"
)

// getDisplayNameForFamily returns the display name with emoji for a family.
func getDisplayNameForFamily(f schema.Family) string {
	switch f {
	case schema.MACFamily:
		return "🏦 MAC"
	case schema.GRRIFamily:
		return "🌍 GRRI"
	default:
		return strings.ToUpper(string(f))
	}
}

// PrintMetricsDefinitions displays the formal definitions of each index family.
// This is a static display that does not require observations.
func PrintMetricsDefinitions(model *schema.MetricsRenderModel, cfg *contract.Config) error {
	fmtFloat, _ := createFormatters(cfg.Precision)
	return render(cfg, model,
		func() []sheet { return metricsSheets(model, fmtFloat) },
		func(w io.Writer) error { return printMetricsText(w, model, fmtFloat) },
	)
}

func metricsSheets(model *schema.MetricsRenderModel, fmtFloat func(float64) string) []sheet {
	pillars := sheet{name: "pillars", header: []string{"family", "pillar", "weight", "indicators"}}
	indicators := sheet{name: "indicators", header: []string{"family", "indicator", "pillar", "direction", "ample", "thin", "breach"}}
	for _, fam := range model.Families {
		byPillar := make(map[schema.PillarID][]string)
		for _, def := range fam.Indicators {
			byPillar[def.Pillar] = append(byPillar[def.Pillar], def.ID)
			if len(def.Thresholds) == 0 {
				continue
			}
			th := def.Thresholds[len(def.Thresholds)-1].Thresholds
			indicators.rows = append(indicators.rows, []string{
				string(fam.Profile.Family), def.ID, string(def.Pillar), string(th.Direction),
				fmtFloat(th.Ample), fmtFloat(th.Thin), fmtFloat(th.Breach),
			})
		}
		for _, p := range fam.Profile.Pillars {
			pillars.rows = append(pillars.rows, []string{
				string(fam.Profile.Family), string(p), fmtFloat(fam.Weights[p]), strings.Join(byPillar[p], ";"),
			})
		}
	}

	penalties := sheet{name: "penalties", header: []string{"breaches", "penalty"}}
	for n, v := range model.Penalties.Penalties {
		penalties.rows = append(penalties.rows, []string{strconv.Itoa(n), fmtFloat(v)})
	}
	bands := sheet{name: "bands", header: []string{"label", "lower", "upper"}}
	for _, b := range model.Bands {
		bands.rows = append(bands.rows, []string{string(b.Label), fmtFloat(b.Lower), fmtFloat(b.Upper)})
	}
	return []sheet{pillars, indicators, penalties, bands}
}

// printMetricsText displays the definitions in human-readable text format.
func printMetricsText(w io.Writer, model *schema.MetricsRenderModel, fmtFloat func(float64) string) error {
	if err := fprintf(w, "📊 %s\n%s\n\n%s\n\n", model.Title, strings.Repeat("=", len(model.Title)+3), model.Description); err != nil {
		return err
	}

	for _, fam := range model.Families {
		if err := fprintf(w, "%s: %s\n", getDisplayNameForFamily(fam.Profile.Family), fam.Profile.Description); err != nil {
			return err
		}
		weights := make([]string, 0, len(fam.Profile.Pillars))
		for _, p := range fam.Profile.Pillars {
			weights = append(weights, fmt.Sprintf("%s*%s", fmtFloat(fam.Weights[p]), p))
		}
		if err := fprintf(w, "   Pillars: %s\n", strings.Join(weights, " + ")); err != nil {
			return err
		}
		if len(fam.Profile.Interactions) > 0 {
			pairs := make([]string, len(fam.Profile.Interactions))
			for i, in := range fam.Profile.Interactions {
				pairs[i] = fmt.Sprintf("%s×%s", in.A, in.B)
			}
			if err := fprintf(w, "   Interactions: %s\n", strings.Join(pairs, ", ")); err != nil {
				return err
			}
		}
		if err := fprintf(w, "   Indicators: %d\n   Formula: %s\n\n", len(fam.Indicators), fam.Formula); err != nil {
			return err
		}
	}

	pens := make([]string, len(model.Penalties.Penalties))
	for n, v := range model.Penalties.Penalties {
		pens[n] = fmt.Sprintf("π(%d)=%s", n, fmtFloat(v))
	}
	if err := fprintf(w, "⚖️  Breach penalties (%s): %s\n\n", model.Penalties.Model, strings.Join(pens, ", ")); err != nil {
		return err
	}

	if err := fprintf(w, "🚦 Regime bands\n"); err != nil {
		return err
	}
	for _, b := range model.Bands {
		if err := fprintf(w, "   %-14s [%s, %s)\n", b.Label, fmtFloat(b.Lower), fmtFloat(b.Upper)); err != nil {
			return err
		}
	}

	if len(model.Eras) > 0 {
		names := make([]string, len(model.Eras))
		for i, e := range model.Eras {
			names[i] = e.Name
		}
		if err := fprintf(w, "\n🕰️  Eras: %s\n", strings.Join(names, ", ")); err != nil {
			return err
		}
	}

	if len(model.TierNoise) > 0 {
		tiers := make([]string, 0, len(model.TierNoise))
		for t := range model.TierNoise {
			tiers = append(tiers, string(t))
		}
		slices.Sort(tiers)
		parts := make([]string, len(tiers))
		for i, t := range tiers {
			parts[i] = fmt.Sprintf("%s=%s", t, fmtFloat(model.TierNoise[schema.Tier(t)]))
		}
		if err := fprintf(w, "🎲 Tier noise: %s\n", strings.Join(parts, ", ")); err != nil {
			return err
		}
	}
	return nil
}
