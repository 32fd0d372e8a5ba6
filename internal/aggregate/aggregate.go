// Package aggregate groups scored leads by acquisition source and computes
// windowed rollups, rankings, grades and the worst-sources remediation list.
// Every function here is pure: recomputing over the same snapshot yields
// identical output, so passes can be rerun on schedule or on demand.
package aggregate

import (
	"fmt"
	"sort"
	"time"

	"github.com/sells-group/leadval-cli/internal/config"
	"github.com/sells-group/leadval-cli/internal/model"
)

// Problem-score term weights.
const (
	problemQualityWeight = 0.4
	problemFraudWeight   = 0.3
	problemFakeWeight    = 0.02
	problemVolumeWeight  = 0.1
)

// Source gates on the 10-point presentation scale. Quality conditions only
// apply to sources with at least one measured quality score; a source with no
// quality data never fails a quality gate.
const (
	highRiskQualityBelow = 4.0
	highRiskFakePctOver  = 25.0
	highRiskFraudOver    = 5.0

	mediumRiskQualityBelow = 6.0
	mediumRiskFakePctOver  = 15.0
	mediumRiskFraudOver    = 3.0

	worstMinVolume    = 10
	worstQualityBelow = 7.0
	worstFakePctOver  = 10.0
	worstFraudOver    = 3.0
)

// Daily risk ladder on the source-day fake percentage.
const (
	dailyCriticalFakePct = 50.0
	dailyHighFakePct     = 20.0
	dailyMediumFakePct   = 10.0
)

// ComputeSourceAggregates groups assessments by acquisition source and
// computes each source's rollup over the window. Assessments outside the
// window are ignored and sources with no qualifying records are omitted, so
// no aggregate ever has a zero denominator. Output is ordered best quality
// first, ties by source name.
func ComputeSourceAggregates(assessments []model.LeadAssessment, window model.Window) []model.SourceAggregate {
	groups := make(map[string][]*model.LeadAssessment)
	for i := range assessments {
		a := &assessments[i]
		if !window.Contains(a.ValidatedAt) {
			continue
		}
		groups[a.Source] = append(groups[a.Source], a)
	}

	sources := make([]string, 0, len(groups))
	for s := range groups {
		sources = append(sources, s)
	}
	sort.Strings(sources)

	aggs := make([]model.SourceAggregate, 0, len(sources))
	for _, s := range sources {
		aggs = append(aggs, computeOne(s, groups[s], window))
	}

	sort.SliceStable(aggs, func(i, j int) bool {
		ki, kj := qualityKey(&aggs[i]), qualityKey(&aggs[j])
		if ki != kj {
			return ki > kj
		}
		return aggs[i].Source < aggs[j].Source
	})

	assignRanks(aggs)

	for i := range aggs {
		if needsRemediation(&aggs[i]) {
			aggs[i].PrimaryIssue = primaryIssue(&aggs[i])
		}
	}

	return aggs
}

// computeOne builds the rollup for a single non-empty source group.
func computeOne(source string, group []*model.LeadAssessment, window model.Window) model.SourceAggregate {
	agg := model.SourceAggregate{
		Source:      source,
		TotalLeads:  len(group),
		Categories:  make(map[model.QualityCategory]int),
		WindowStart: window.Start,
		WindowEnd:   window.End,
	}

	qualities := make([]float64, 0, len(group))
	frauds := make([]float64, 0, len(group))
	for _, a := range group {
		frauds = append(frauds, a.Fraud*10)

		if a.HasQuality() {
			qualities = append(qualities, *a.Quality*10)
			agg.Categories[a.Category]++
			if a.Category == model.QualityExcellent || a.Category == model.QualityGood {
				agg.HighQualityCount++
			}
		}

		if a.FakeFlag {
			agg.FakeLeadCount++
		}
		if a.LikelyFake {
			agg.LikelyFakeCount++
		}
		if a.DisposableEmail {
			agg.DisposableCount++
		}
		if a.BounceLikely {
			agg.BounceLikelyCnt++
		}
		if a.GibberishEmail {
			agg.GibberishCount++
		}
		switch a.FraudTier {
		case model.FraudCritical:
			agg.CriticalFraudCnt++
			agg.HighFraudCount++
		case model.FraudHigh:
			agg.HighFraudCount++
		}
	}

	agg.Quality = Stats(qualities)
	agg.Fraud = Stats(frauds)
	agg.QualityMissing = agg.TotalLeads - agg.Quality.Count

	agg.HighQualityPct = pct(agg.HighQualityCount, agg.TotalLeads)
	agg.FakeLeadPct = pct(agg.FakeLeadCount, agg.TotalLeads)
	agg.LikelyFakePct = pct(agg.LikelyFakeCount, agg.TotalLeads)
	agg.HighFraudPct = pct(agg.HighFraudCount, agg.TotalLeads)

	agg.ProblemScore = problemScore(&agg)
	agg.Risk = riskFor(&agg)
	agg.Grade = gradeFor(&agg)

	return agg
}

// problemScore composes the remediation ordering key; higher is worse. A
// source with no measured quality contributes nothing on the quality term
// rather than being treated as quality zero.
func problemScore(a *model.SourceAggregate) float64 {
	var score float64
	if a.Quality.Count > 0 {
		score += problemQualityWeight * (10 - a.Quality.Mean)
	}
	score += problemFraudWeight * a.Fraud.Mean
	score += problemFakeWeight * a.FakeLeadPct
	score += problemVolumeWeight * volumeWeight(a.TotalLeads)
	return score
}

func volumeWeight(total int) float64 {
	switch {
	case total > 100:
		return 2
	case total > 50:
		return 1
	default:
		return 0
	}
}

// gradeFor assigns the letter grade. Both conditions of a tier must hold
// simultaneously; failing either one drops the source to the next tier. A
// source with no measured quality cannot certify any tier and grades F.
func gradeFor(a *model.SourceAggregate) string {
	if a.Quality.Count == 0 {
		return "F"
	}
	q, fake := a.Quality.Mean, a.FakeLeadPct
	switch {
	case q >= 8.5 && fake <= 5:
		return "A+"
	case q >= 7.5 && fake <= 10:
		return "A"
	case q >= 6.5 && fake <= 15:
		return "B"
	case q >= 5.5 && fake <= 25:
		return "C"
	case q >= 4.0 && fake <= 35:
		return "D"
	default:
		return "F"
	}
}

func riskFor(a *model.SourceAggregate) model.SourceRisk {
	measured := a.Quality.Count > 0
	switch {
	case (measured && a.Quality.Mean < highRiskQualityBelow) ||
		a.FakeLeadPct > highRiskFakePctOver ||
		a.Fraud.Mean > highRiskFraudOver:
		return model.SourceHighRisk
	case (measured && a.Quality.Mean < mediumRiskQualityBelow) ||
		a.FakeLeadPct > mediumRiskFakePctOver ||
		a.Fraud.Mean > mediumRiskFraudOver:
		return model.SourceMediumRisk
	default:
		return model.SourceLowRisk
	}
}

// needsRemediation is the worst-sources condition, volume gate excluded.
func needsRemediation(a *model.SourceAggregate) bool {
	if a.Quality.Count > 0 && a.Quality.Mean < worstQualityBelow {
		return true
	}
	return a.FakeLeadPct > worstFakePctOver ||
		a.Fraud.Mean > worstFraudOver ||
		a.Risk == model.SourceHighRisk ||
		a.Risk == model.SourceMediumRisk
}

// primaryIssue names the dominant failing condition, worst first.
func primaryIssue(a *model.SourceAggregate) string {
	switch {
	case a.FakeLeadPct > worstFakePctOver:
		return fmt.Sprintf("high fake rate (%.1f%% of %d leads)", a.FakeLeadPct, a.TotalLeads)
	case a.Fraud.Mean > worstFraudOver:
		return fmt.Sprintf("elevated fraud (avg %.1f/10)", a.Fraud.Mean)
	case a.Quality.Count > 0 && a.Quality.Mean < worstQualityBelow:
		return fmt.Sprintf("low quality (avg %.1f/10)", a.Quality.Mean)
	default:
		return "risk level " + string(a.Risk)
	}
}

// WorstSources filters aggregates to those needing remediation: at least
// worstMinVolume leads and one failing condition. Output is ordered by
// problem score descending, ties by volume descending, and carries a 1-based
// remediation priority.
func WorstSources(aggs []model.SourceAggregate) []model.SourceAggregate {
	var worst []model.SourceAggregate
	for i := range aggs {
		a := aggs[i]
		if a.TotalLeads < worstMinVolume || !needsRemediation(&a) {
			continue
		}
		worst = append(worst, a)
	}

	sort.SliceStable(worst, func(i, j int) bool {
		if worst[i].ProblemScore != worst[j].ProblemScore {
			return worst[i].ProblemScore > worst[j].ProblemScore
		}
		if worst[i].TotalLeads != worst[j].TotalLeads {
			return worst[i].TotalLeads > worst[j].TotalLeads
		}
		return worst[i].Source < worst[j].Source
	})

	for i := range worst {
		worst[i].RemediationPriority = i + 1
	}
	return worst
}

// ComputeDailyStats rolls up a single UTC day per source for the daily
// fake-leads report. Sources with no leads that day are omitted. Output is
// ordered by fake count descending, ties by volume then source name.
func ComputeDailyStats(assessments []model.LeadAssessment, day time.Time, cfg config.ReportConfig) []model.DailySourceStats {
	window := model.Day(day)

	groups := make(map[string][]*model.LeadAssessment)
	for i := range assessments {
		a := &assessments[i]
		if !window.Contains(a.ValidatedAt) {
			continue
		}
		groups[a.Source] = append(groups[a.Source], a)
	}

	out := make([]model.DailySourceStats, 0, len(groups))
	for source, group := range groups {
		ds := model.DailySourceStats{
			Source:     source,
			Day:        window.Start,
			TotalLeads: len(group),
		}
		var fraudSum float64
		for _, a := range group {
			fraudSum += a.Fraud * 10
			if a.FakeFlag {
				ds.FakeLeadCount++
			}
			if a.FraudTier == model.FraudCritical {
				ds.CriticalFraudCnt++
			}
		}
		ds.AvgFraud = fraudSum / float64(ds.TotalLeads)
		ds.FakeLeadPct = pct(ds.FakeLeadCount, ds.TotalLeads)
		ds.CriticalFraudPct = pct(ds.CriticalFraudCnt, ds.TotalLeads)
		ds.Risk = dailyRisk(ds.FakeLeadPct)
		ds.AlertOnVolume = cfg.AlertMinFakes > 0 && ds.FakeLeadCount >= cfg.AlertMinFakes
		ds.AlertOnPercentage = cfg.AlertMinFakePct > 0 && ds.FakeLeadPct >= cfg.AlertMinFakePct
		out = append(out, ds)
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].FakeLeadCount != out[j].FakeLeadCount {
			return out[i].FakeLeadCount > out[j].FakeLeadCount
		}
		if out[i].TotalLeads != out[j].TotalLeads {
			return out[i].TotalLeads > out[j].TotalLeads
		}
		return out[i].Source < out[j].Source
	})

	rank := 0
	var prev int
	for i := range out {
		if i == 0 || out[i].FakeLeadCount != prev {
			rank++
			prev = out[i].FakeLeadCount
		}
		out[i].WorstSourceRank = rank
	}

	return out
}

func dailyRisk(fakePct float64) model.DailyRisk {
	switch {
	case fakePct >= dailyCriticalFakePct:
		return model.DailyRiskCritical
	case fakePct >= dailyHighFakePct:
		return model.DailyRiskHigh
	case fakePct >= dailyMediumFakePct:
		return model.DailyRiskMedium
	case fakePct > 0:
		return model.DailyRiskLow
	default:
		return model.DailyRiskClean
	}
}

// Totals is the window-wide rollup across every source.
type Totals struct {
	TotalLeads    int     `json:"total_leads"`
	UniqueSources int     `json:"unique_sources"`
	QualityCount  int     `json:"quality_count"`
	AvgQuality    float64 `json:"avg_quality"`
	AvgFraud      float64 `json:"avg_fraud"`
	FakeLeads     int     `json:"fake_leads"`
	LikelyFakes   int     `json:"likely_fakes"`
	HighFraud     int     `json:"high_fraud"`
	CriticalFraud int     `json:"critical_fraud"`
	Disposable    int     `json:"disposable"`
	BounceLikely  int     `json:"bounce_likely"`
	Gibberish     int     `json:"gibberish"`
}

// ComputeTotals sums the window-wide counters over every assessment in the
// window. Averages are on the 10-point presentation scale; AvgQuality covers
// measured leads only.
func ComputeTotals(assessments []model.LeadAssessment, window model.Window) Totals {
	var t Totals
	var qualitySum, fraudSum float64
	seen := make(map[string]struct{})

	for i := range assessments {
		a := &assessments[i]
		if !window.Contains(a.ValidatedAt) {
			continue
		}
		t.TotalLeads++
		seen[a.Source] = struct{}{}
		fraudSum += a.Fraud * 10

		if a.HasQuality() {
			t.QualityCount++
			qualitySum += *a.Quality * 10
		}
		if a.FakeFlag {
			t.FakeLeads++
		}
		if a.LikelyFake {
			t.LikelyFakes++
		}
		switch a.FraudTier {
		case model.FraudCritical:
			t.CriticalFraud++
			t.HighFraud++
		case model.FraudHigh:
			t.HighFraud++
		}
		if a.DisposableEmail {
			t.Disposable++
		}
		if a.BounceLikely {
			t.BounceLikely++
		}
		if a.GibberishEmail {
			t.Gibberish++
		}
	}

	t.UniqueSources = len(seen)
	if t.QualityCount > 0 {
		t.AvgQuality = qualitySum / float64(t.QualityCount)
	}
	if t.TotalLeads > 0 {
		t.AvgFraud = fraudSum / float64(t.TotalLeads)
	}
	return t
}

// qualityKey orders sources by measured mean quality; sources with no
// measured quality sort after every measured one.
func qualityKey(a *model.SourceAggregate) float64 {
	if a.Quality.Count == 0 {
		return -1
	}
	return a.Quality.Mean
}

// assignRanks sets the three dense rank fields. Ties share a rank and the
// next distinct value takes the following integer, so ranks have no gaps.
func assignRanks(aggs []model.SourceAggregate) {
	rankBy(aggs, qualityKey, true, func(a *model.SourceAggregate, r int) { a.QualityRank = r })
	rankBy(aggs, func(a *model.SourceAggregate) float64 { return a.Fraud.Mean }, false,
		func(a *model.SourceAggregate, r int) { a.FraudSafetyRank = r })
	rankBy(aggs, func(a *model.SourceAggregate) float64 { return float64(a.TotalLeads) }, true,
		func(a *model.SourceAggregate, r int) { a.VolumeRank = r })
}

func rankBy(aggs []model.SourceAggregate, key func(*model.SourceAggregate) float64, desc bool, set func(*model.SourceAggregate, int)) {
	idx := make([]int, len(aggs))
	for i := range idx {
		idx[i] = i
	}
	sort.SliceStable(idx, func(x, y int) bool {
		kx, ky := key(&aggs[idx[x]]), key(&aggs[idx[y]])
		if desc {
			return kx > ky
		}
		return kx < ky
	})

	rank := 0
	var prev float64
	for pos, i := range idx {
		k := key(&aggs[i])
		if pos == 0 || k != prev {
			rank++
			prev = k
		}
		set(&aggs[i], rank)
	}
}

// Stats summarizes a value series; the empty series yields the zero value.
// The input is not modified.
func Stats(values []float64) model.ScoreStats {
	if len(values) == 0 {
		return model.ScoreStats{}
	}
	sorted := append([]float64(nil), values...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
	}
	return model.ScoreStats{
		Count:  len(sorted),
		Mean:   sum / float64(len(sorted)),
		Median: median(sorted),
		Min:    sorted[0],
		Max:    sorted[len(sorted)-1],
	}
}

// median expects sorted input; even-length series average the middle pair.
func median(sorted []float64) float64 {
	n := len(sorted)
	if n == 0 {
		return 0
	}
	if n%2 == 1 {
		return sorted[n/2]
	}
	return (sorted[n/2-1] + sorted[n/2]) / 2
}

func pct(n, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(n) / float64(total) * 100
}
