// Package trend buckets scored leads into daily, weekly or monthly periods
// and computes per-period rollups with period-over-period deltas. The overall
// series spans all sources; the source series partitions by source and ranks
// sources within each period.
//
// All bucketing is UTC: days start at midnight, weeks on the ISO Monday,
// months on the first. Deltas compare each period with the immediately
// preceding period of the same partition, so the first period of a partition
// carries no prior values at all.
package trend

import (
	"sort"
	"time"

	"github.com/rotisserie/eris"

	"github.com/sells-group/leadval-cli/internal/aggregate"
	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
)

// PeriodStart truncates t to the start of its UTC period.
func PeriodStart(t time.Time, g model.Granularity) time.Time {
	t = t.UTC()
	day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
	switch g {
	case model.Weekly:
		// ISO weeks start on Monday.
		return day.AddDate(0, 0, -((int(day.Weekday()) + 6) % 7))
	case model.Monthly:
		return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
	default:
		return day
	}
}

// Series computes the overall trend series across all sources. Periods are
// never volume-gated here; an empty window yields an empty series.
func Series(assessments []model.LeadAssessment, g model.Granularity, window model.Window) ([]model.TrendPeriodSnapshot, error) {
	if !g.Valid() {
		return nil, eris.Errorf("trend: unknown granularity %q", g)
	}

	buckets := make(map[time.Time][]*model.LeadAssessment)
	for i := range assessments {
		a := &assessments[i]
		if !window.Contains(a.ValidatedAt) {
			continue
		}
		start := PeriodStart(a.ValidatedAt, g)
		buckets[start] = append(buckets[start], a)
	}

	series := make([]model.TrendPeriodSnapshot, 0, len(buckets))
	for _, start := range sortedStarts(buckets) {
		snap := snapshot(g, start, "", buckets[start])
		snap.UniqueSources = uniqueSources(buckets[start])
		series = append(series, snap)
	}
	applyDeltas(series)
	sortForPresentation(series)
	return series, nil
}

// SourceSeries computes per-source trend series with per-period rankings.
// Daily and weekly periods below the configured minimum volume are dropped
// from the series before deltas and ranks are computed, so a surviving
// period's delta compares against the previous surviving period of the same
// source. Monthly series are never gated.
func SourceSeries(assessments []model.LeadAssessment, g model.Granularity, window model.Window, cfg config.TrendsConfig) ([]model.TrendPeriodSnapshot, error) {
	if !g.Valid() {
		return nil, eris.Errorf("trend: unknown granularity %q", g)
	}
	gate := minVolume(g, cfg)

	partitions := make(map[string]map[time.Time][]*model.LeadAssessment)
	for i := range assessments {
		a := &assessments[i]
		if !window.Contains(a.ValidatedAt) {
			continue
		}
		source := a.Source
		if partitions[source] == nil {
			partitions[source] = make(map[time.Time][]*model.LeadAssessment)
		}
		start := PeriodStart(a.ValidatedAt, g)
		partitions[source][start] = append(partitions[source][start], a)
	}

	sources := make([]string, 0, len(partitions))
	for source := range partitions {
		sources = append(sources, source)
	}
	sort.Strings(sources)

	var out []model.TrendPeriodSnapshot
	for _, source := range sources {
		buckets := partitions[source]
		series := make([]model.TrendPeriodSnapshot, 0, len(buckets))
		for _, start := range sortedStarts(buckets) {
			group := buckets[start]
			if gate > 0 && len(group) < gate {
				continue
			}
			series = append(series, snapshot(g, start, source, group))
		}
		applyDeltas(series)
		out = append(out, series...)
	}

	rankPeriods(out)
	sortForPresentation(out)
	return out, nil
}

func minVolume(g model.Granularity, cfg config.TrendsConfig) int {
	switch g {
	case model.Daily:
		return cfg.DailyMinVolume
	case model.Weekly:
		return cfg.WeeklyMinVolume
	default:
		return 0
	}
}

// snapshot rolls one period's group up. Quality statistics cover only leads
// that carry a quality score; pass rates cover only assessable points.
func snapshot(g model.Granularity, start time.Time, source string, group []*model.LeadAssessment) model.TrendPeriodSnapshot {
	snap := model.TrendPeriodSnapshot{
		Granularity: g,
		PeriodStart: start,
		Source:      source,
		Leads:       len(group),
	}

	var qualities, frauds []float64
	var highQuality, highFraud int
	var passed, assessable [5]int
	for _, a := range group {
		frauds = append(frauds, a.Fraud*10)
		if a.HasQuality() {
			qualities = append(qualities, *a.Quality*10)
		}
		switch a.Category {
		case model.QualityExcellent, model.QualityGood:
			highQuality++
		}
		switch a.FraudTier {
		case model.FraudCritical, model.FraudHigh:
			highFraud++
		}
		if a.FakeFlag {
			snap.FakeLeads++
		}
		for i, p := range a.Points() {
			if p.Assessable() {
				assessable[i]++
				if p.Passed() {
					passed[i]++
				}
			}
		}
	}

	q := aggregate.Stats(qualities)
	f := aggregate.Stats(frauds)
	snap.AvgQuality = q.Mean
	snap.MedianQuality = q.Median
	snap.AvgFraud = f.Mean
	snap.MedianFraud = f.Median

	snap.EmailPassRate = pct(passed[0], assessable[0])
	snap.PhonePassRate = pct(passed[1], assessable[1])
	snap.NamePassRate = pct(passed[2], assessable[2])
	snap.CompanyPassRate = pct(passed[3], assessable[3])
	snap.CompletenessPassRate = pct(passed[4], assessable[4])

	snap.HighQualityPct = pct(highQuality, snap.Leads)
	snap.HighFraudPct = pct(highFraud, snap.Leads)
	snap.FakeLeadPct = pct(snap.FakeLeads, snap.Leads)
	return snap
}

// applyDeltas fills the prior/delta fields over one ascending partition.
// The first period is left untouched: absent priors mean "no earlier
// period", never a zero-valued one.
func applyDeltas(series []model.TrendPeriodSnapshot) {
	for i := 1; i < len(series); i++ {
		prev, cur := series[i-1], &series[i]

		pq := prev.AvgQuality
		dq := cur.AvgQuality - pq
		cur.PrevAvgQuality = &pq
		cur.QualityDelta = &dq

		pf := prev.AvgFraud
		df := cur.AvgFraud - pf
		cur.PrevAvgFraud = &pf
		cur.FraudDelta = &df

		pl := prev.Leads
		dl := cur.Leads - pl
		cur.PrevLeads = &pl
		cur.VolumeDelta = &dl
	}
}

// rankPeriods assigns dense ranks among the sources sharing one period
// start: quality descending, fraud ascending (safest first).
func rankPeriods(series []model.TrendPeriodSnapshot) {
	byStart := make(map[time.Time][]*model.TrendPeriodSnapshot)
	for i := range series {
		s := &series[i]
		byStart[s.PeriodStart] = append(byStart[s.PeriodStart], s)
	}
	for _, group := range byStart {
		rankBy(group, func(s *model.TrendPeriodSnapshot) float64 { return s.AvgQuality }, true,
			func(s *model.TrendPeriodSnapshot, r int) { s.QualityRank = r })
		rankBy(group, func(s *model.TrendPeriodSnapshot) float64 { return s.AvgFraud }, false,
			func(s *model.TrendPeriodSnapshot, r int) { s.FraudRank = r })
	}
}

// rankBy assigns dense ranks: ties share a rank and no rank is skipped.
func rankBy(group []*model.TrendPeriodSnapshot, key func(*model.TrendPeriodSnapshot) float64, desc bool, set func(*model.TrendPeriodSnapshot, int)) {
	order := make([]*model.TrendPeriodSnapshot, len(group))
	copy(order, group)
	sort.SliceStable(order, func(i, j int) bool {
		ki, kj := key(order[i]), key(order[j])
		if ki != kj {
			if desc {
				return ki > kj
			}
			return ki < kj
		}
		return order[i].Source < order[j].Source
	})
	rank := 0
	var lastKey float64
	for i, s := range order {
		if i == 0 || key(s) != lastKey {
			rank++
			lastKey = key(s)
		}
		set(s, rank)
	}
}

// sortForPresentation orders newest period first, sources alphabetical
// within a period. Deltas and ranks are already final at this point.
func sortForPresentation(series []model.TrendPeriodSnapshot) {
	sort.SliceStable(series, func(i, j int) bool {
		if !series[i].PeriodStart.Equal(series[j].PeriodStart) {
			return series[i].PeriodStart.After(series[j].PeriodStart)
		}
		return series[i].Source < series[j].Source
	})
}

func sortedStarts(buckets map[time.Time][]*model.LeadAssessment) []time.Time {
	starts := make([]time.Time, 0, len(buckets))
	for start := range buckets {
		starts = append(starts, start)
	}
	sort.Slice(starts, func(i, j int) bool { return starts[i].Before(starts[j]) })
	return starts
}

func uniqueSources(group []*model.LeadAssessment) int {
	seen := make(map[string]struct{}, len(group))
	for _, a := range group {
		seen[a.Source] = struct{}{}
	}
	return len(seen)
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
