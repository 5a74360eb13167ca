package childctx

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/suricare/suricare/internal/models"
	"github.com/suricare/suricare/internal/patterns"
)

// GeneralContext is the context block used when a question is not about a specific child.
const GeneralContext = "General pediatric consultation"

// Format renders the profile line followed by one line per usable summary whose dimension
// is in topics. A nil profile yields GeneralContext. The output depends only on its inputs.
func Format(p *Profile, r patterns.Report, topics Topics) string {
	if p == nil {
		return GeneralContext
	}
	lines := []string{p.Line()}
	for _, dim := range models.Dimensions {
		if !topics.Has(dim) {
			continue
		}
		s := r.Get(dim)
		if !patterns.IsUsable(s) {
			continue
		}
		if line := summaryLine(s); line != "" {
			lines = append(lines, line)
		}
	}
	return strings.Join(lines, "\n")
}

// ForQuery classifies query and renders the matching context block.
func ForQuery(p *Profile, r patterns.Report, query string) string {
	return Format(p, r, ClassifyQuery(query))
}

func summaryLine(s patterns.Summary) string {
	switch v := s.(type) {
	case patterns.SleepPattern:
		return sleepLine(v)
	case patterns.NutritionPattern:
		return nutritionLine(v)
	case patterns.SymptomPattern:
		return symptomLine(v)
	case patterns.GrowthPattern:
		return growthLine(v)
	}
	return ""
}

func sleepLine(p patterns.SleepPattern) string {
	return fmt.Sprintf("Sleep (last %s): %s hours average over %s (%s, %s trend; quality good %d, fair %d, poor %d)",
		plural(p.Window.Days(), "day"), num(p.AverageHours), plural(p.SampleCount, "record"),
		p.Consistency, p.Trend,
		p.Quality[patterns.SleepQualityGood], p.Quality[patterns.SleepQualityFair], p.Quality[patterns.SleepQualityPoor])
}

func nutritionLine(p patterns.NutritionPattern) string {
	return fmt.Sprintf("Nutrition (last %s): %s%% average consumption over %s (%s, %s trend; %s meals per day)",
		plural(p.Window.Days(), "day"), num(p.AverageConsumption), plural(p.SampleCount, "meal"),
		p.Consistency, p.Trend, num(p.MealsPerDay))
}

func symptomLine(p patterns.SymptomPattern) string {
	return fmt.Sprintf("Recent Symptoms (last %s): %s (most frequent: %s, %s; %s trend)",
		plural(p.Window.Days(), "day"), strings.Join(p.Recent, ", "),
		p.MostFrequent, plural(p.MostFrequentCount, "time"), p.Trend)
}

func growthLine(p patterns.GrowthPattern) string {
	var latest []string
	if p.LatestWeight != nil {
		latest = append(latest, num(*p.LatestWeight)+"kg")
	}
	if p.LatestHeight != nil {
		latest = append(latest, num(*p.LatestHeight)+"cm")
	}
	if p.LatestHeadCircumference != nil {
		latest = append(latest, "head "+num(*p.LatestHeadCircumference)+"cm")
	}
	line := "Recent Growth: " + strings.Join(latest, ", ")
	var trends []string
	if p.Weight != nil {
		trends = append(trends, fmt.Sprintf("weight %s (%s kg)", p.Weight.Trend, signed(p.Weight.Delta)))
	}
	if p.Height != nil {
		trends = append(trends, fmt.Sprintf("height %s (%s cm)", p.Height.Trend, signed(p.Height.Delta)))
	}
	if len(trends) > 0 {
		line += " (" + strings.Join(trends, ", ") + ")"
	}
	return line
}

// num formats with at most two decimals and no trailing zeros.
func num(v float64) string {
	r := math.Round(v*100) / 100
	if r == 0 {
		r = 0 // drop negative zero
	}
	return strconv.FormatFloat(r, 'f', -1, 64)
}

func signed(v float64) string {
	if v > 0 {
		return "+" + num(v)
	}
	return num(v)
}
