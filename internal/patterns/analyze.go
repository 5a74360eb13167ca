package patterns

import (
	"sort"
	"time"

	"github.com/suricare/suricare/internal/models"
)

// Thresholds used by the per-dimension analyses.
const (
	SleepConsistencyHours     = 1.5
	NutritionConsistencyLevel = 20.0
	MinGrowthRecords          = 2
	maxSleepHours             = 24.0
	recentSymptomCount        = 3
)

// dayKey buckets an instant into a calendar day in loc.
func dayKey(t time.Time, loc *time.Location) string {
	return t.In(loc).Format("2006-01-02")
}

func meta(dim models.Dimension, state Status, win Window) Meta {
	return Meta{Dim: dim, State: state, Window: win}
}

// QualityOf grades one sleep duration in hours.
func QualityOf(hours float64) SleepQuality {
	switch {
	case hours >= 8 && hours <= 12:
		return SleepQualityGood
	case (hours >= 6 && hours < 8) || (hours > 12 && hours <= 14):
		return SleepQualityFair
	default:
		return SleepQualityPoor
	}
}

// ValidSleepHours returns the durations of intervals with start < end and a length under
// 24 hours, in input order. Other intervals are dropped.
func ValidSleepHours(records []models.SleepRecord) []float64 {
	hours := make([]float64, 0, len(records))
	for _, r := range records {
		if h, ok := sleepHours(r); ok {
			hours = append(hours, h)
		}
	}
	return hours
}

func sleepHours(r models.SleepRecord) (float64, bool) {
	if !r.StartTime.Before(r.EndTime) {
		return 0, false
	}
	h := r.DurationHours()
	if h <= 0 || h >= maxSleepHours {
		return 0, false
	}
	return h, true
}

// AnalyzeSleep summarises sleep intervals. Records are expected in ascending check-in order.
func AnalyzeSleep(records []models.SleepRecord, win Window, loc *time.Location) Summary {
	if len(records) == 0 {
		return NoData{meta(models.DimensionSleep, StatusNoData, win)}
	}

	hours := make([]float64, 0, len(records))
	days := make(map[string]struct{})
	quality := map[SleepQuality]int{SleepQualityGood: 0, SleepQualityFair: 0, SleepQualityPoor: 0}
	for _, r := range records {
		h, ok := sleepHours(r)
		if !ok {
			continue
		}
		hours = append(hours, h)
		days[dayKey(r.OccurredAt(), loc)] = struct{}{}
		quality[QualityOf(h)]++
	}
	if len(hours) == 0 {
		return IncompleteData{Meta: meta(models.DimensionSleep, StatusIncompleteData, win), Records: len(records)}
	}

	sd := stddev(hours)
	consistency := Consistent
	if sd >= SleepConsistencyHours {
		consistency = Inconsistent
	}
	return SleepPattern{
		Meta:         meta(models.DimensionSleep, StatusAvailable, win),
		AverageHours: round2(mean(hours)),
		StdDevHours:  round2(sd),
		Consistency:  consistency,
		Trend:        ClassifyTrend(hours),
		SampleCount:  len(hours),
		RecordCount:  len(records),
		DistinctDays: len(days),
		Quality:      quality,
	}
}

// AnalyzeNutrition summarises meal consumption levels. A recorded level of zero counts as a
// sample; a missing level does not.
func AnalyzeNutrition(records []models.MealRecord, win Window, loc *time.Location) Summary {
	if len(records) == 0 {
		return NoData{meta(models.DimensionNutrition, StatusNoData, win)}
	}

	levels := make([]float64, 0, len(records))
	days := make(map[string]struct{})
	for _, r := range records {
		days[dayKey(r.OccurredAt(), loc)] = struct{}{}
		if r.ConsumptionLevel != nil {
			levels = append(levels, *r.ConsumptionLevel)
		}
	}
	if len(levels) == 0 {
		return IncompleteData{Meta: meta(models.DimensionNutrition, StatusIncompleteData, win), Records: len(records)}
	}

	sd := stddev(levels)
	consistency := Consistent
	if sd >= NutritionConsistencyLevel {
		consistency = Inconsistent
	}
	return NutritionPattern{
		Meta:               meta(models.DimensionNutrition, StatusAvailable, win),
		AverageConsumption: round1(mean(levels)),
		StdDev:             round1(sd),
		Consistency:        consistency,
		Trend:              ClassifyTrend(levels),
		SampleCount:        len(levels),
		MealCount:          len(records),
		DistinctDays:       len(days),
		MealsPerDay:        round1(float64(len(records)) / float64(len(days))),
	}
}

// AnalyzeSymptoms summarises reported symptom labels, compared case-insensitively.
func AnalyzeSymptoms(records []models.SymptomRecord, win Window, loc *time.Location) Summary {
	var (
		order  []string
		freq   = make(map[string]int)
		daily  = make(map[string]int)
		dayIdx []string
		total  int
		recent []string
	)
	for _, r := range records {
		label := r.Label()
		if label == "" {
			continue
		}
		if _, seen := freq[label]; !seen {
			order = append(order, label)
		}
		freq[label]++
		day := dayKey(r.OccurredAt(), loc)
		if _, seen := daily[day]; !seen {
			dayIdx = append(dayIdx, day)
		}
		daily[day]++
		total++
	}
	if total == 0 {
		return NoSymptoms{meta(models.DimensionSymptoms, StatusNoSymptoms, win)}
	}

	var top string
	var topCount int
	for _, label := range order {
		if freq[label] > topCount {
			top, topCount = label, freq[label]
		}
	}

	sort.Strings(dayIdx)
	counts := make([]float64, len(dayIdx))
	for i, d := range dayIdx {
		counts[i] = float64(daily[d])
	}

	for i := len(records) - 1; i >= 0 && len(recent) < recentSymptomCount; i-- {
		if label := records[i].Label(); label != "" {
			recent = append(recent, label)
		}
	}

	return SymptomPattern{
		Meta:              meta(models.DimensionSymptoms, StatusHasSymptoms, win),
		Occurrences:       total,
		DistinctDays:      len(dayIdx),
		Frequency:         freq,
		MostFrequent:      top,
		MostFrequentCount: topCount,
		AveragePerDay:     round1(float64(total) / float64(len(dayIdx))),
		Trend:             ClassifyTrend(counts),
		Recent:            recent,
	}
}

// AnalyzeGrowth summarises growth measurements. Weight and height trends are computed
// independently from their own non-missing values.
func AnalyzeGrowth(records []models.GrowthRecord, win Window) Summary {
	if len(records) < MinGrowthRecords {
		return InsufficientData{
			Meta:     meta(models.DimensionGrowth, StatusInsufficientData, win),
			Records:  len(records),
			Required: MinGrowthRecords,
		}
	}

	sorted := make([]models.GrowthRecord, len(records))
	copy(sorted, records)
	sort.SliceStable(sorted, func(i, j int) bool {
		return sorted[i].OccurredAt().Before(sorted[j].OccurredAt())
	})

	var weights, heights []float64
	p := GrowthPattern{
		Meta:        meta(models.DimensionGrowth, StatusAvailable, win),
		RecordCount: len(sorted),
	}
	for _, r := range sorted {
		if r.Weight != nil {
			weights = append(weights, *r.Weight)
			p.LatestWeight = models.Float(*r.Weight)
		}
		if r.Height != nil {
			heights = append(heights, *r.Height)
			p.LatestHeight = models.Float(*r.Height)
		}
		if r.HeadCircumference != nil {
			p.LatestHeadCircumference = models.Float(*r.HeadCircumference)
		}
	}
	p.LatestAt = sorted[len(sorted)-1].OccurredAt()
	p.Weight = measurementTrend(weights)
	p.Height = measurementTrend(heights)
	return p
}

func measurementTrend(values []float64) *MeasurementTrend {
	if len(values) < 2 {
		return nil
	}
	first, last := values[0], values[len(values)-1]
	return &MeasurementTrend{
		First:   first,
		Last:    last,
		Delta:   round2(last - first),
		Trend:   ClassifyTrend(values),
		Samples: len(values),
	}
}

// AnalyzeEvents dispatches a mixed event slice to the analysis for dim. Events of other
// dimensions are ignored.
func AnalyzeEvents(dim models.Dimension, events []models.HealthEvent, win Window, loc *time.Location) Summary {
	events = append([]models.HealthEvent(nil), events...)
	sort.SliceStable(events, func(i, j int) bool {
		return events[i].OccurredAt().Before(events[j].OccurredAt())
	})
	switch dim {
	case models.DimensionSleep:
		return AnalyzeSleep(collect[models.SleepRecord](events), win, loc)
	case models.DimensionNutrition:
		return AnalyzeNutrition(collect[models.MealRecord](events), win, loc)
	case models.DimensionSymptoms:
		return AnalyzeSymptoms(collect[models.SymptomRecord](events), win, loc)
	case models.DimensionGrowth:
		return AnalyzeGrowth(collect[models.GrowthRecord](events), win)
	}
	return Failed{Meta: meta(dim, StatusError, win), Err: models.ErrInvalidDimension, Message: analysisFailedMessage}
}

func collect[T models.HealthEvent](events []models.HealthEvent) []T {
	out := make([]T, 0, len(events))
	for _, e := range events {
		if v, ok := e.(T); ok {
			out = append(out, v)
		}
	}
	return out
}
