package report

import (
	"fmt"
	"strings"
	"time"

	"github.com/sells-group/leadval-cli/internal/model"
)

// FormatDaily renders a daily report as human-readable text.
func FormatDaily(rep *DailyReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Lead Validation Daily Report: %s\n", rep.Date.Format("2006-01-02"))
	fmt.Fprintf(&b, "Generated: %s\n", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))
	fmt.Fprintf(&b, "Data freshness: %s\n\n", rep.Freshness)

	if rep.NoData {
		fmt.Fprintf(&b, "No validations recorded for %s.\n", rep.Date.Format("2006-01-02"))
		return b.String()
	}

	// Summary.
	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Leads validated: %d across %d source(s)\n",
		rep.Totals.TotalLeads, rep.Totals.UniqueSources)
	if rep.Totals.QualityCount > 0 {
		fmt.Fprintf(&b, "- Avg quality: %.1f/10 (%d measured)\n",
			rep.Totals.AvgQuality, rep.Totals.QualityCount)
	} else {
		b.WriteString("- Avg quality: n/a (no measured leads)\n")
	}
	fmt.Fprintf(&b, "- Avg fraud: %.1f/10\n", rep.Totals.AvgFraud)
	fmt.Fprintf(&b, "- Fake leads: %d", rep.Totals.FakeLeads)
	if rep.Totals.TotalLeads > 0 {
		fmt.Fprintf(&b, " (%.1f%%)",
			float64(rep.Totals.FakeLeads)/float64(rep.Totals.TotalLeads)*100)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "- High fraud: %d, critical: %d\n",
		rep.Totals.HighFraud, rep.Totals.CriticalFraud)
	fmt.Fprintf(&b, "- Email flags: %d disposable, %d bounce-likely, %d gibberish\n",
		rep.Totals.Disposable, rep.Totals.BounceLikely, rep.Totals.Gibberish)
	if rep.Status != "" {
		fmt.Fprintf(&b, "- Status: %s\n", rep.Status)
	}
	b.WriteString("\n")

	// Per-source breakdown, ordered as computed (worst first).
	b.WriteString("## Sources\n")
	for i := range rep.Sources {
		s := &rep.Sources[i]
		fmt.Fprintf(&b, "- %s: %d lead(s), %d fake (%.1f%%), avg fraud %.1f, risk %s",
			s.Source, s.TotalLeads, s.FakeLeadCount, s.FakeLeadPct, s.AvgFraud, s.Risk)
		if s.WorstSourceRank > 0 {
			fmt.Fprintf(&b, " [worst #%d]", s.WorstSourceRank)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(rep.Alerts) > 0 {
		b.WriteString("## Alerts\n")
		for _, a := range rep.Alerts {
			fmt.Fprintf(&b, "- [%s] %s\n", a.Kind, a.Message)
		}
		b.WriteString("\n")
	}

	if len(rep.FakeLeads) > 0 {
		b.WriteString("## Fake Leads\n")
		for _, f := range rep.FakeLeads {
			fmt.Fprintf(&b, "- %s (%s): fraud %.1f, %s, %s", f.LeadID, f.Source,
				f.FraudScore, f.RiskLevel, f.Action)
			if f.Company != "" {
				fmt.Fprintf(&b, ", company %q", f.Company)
			}
			if f.Email != "" {
				fmt.Fprintf(&b, ", email %s", f.Email)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(rep.Hourly) > 0 {
		b.WriteString("## Hourly Volume\n")
		for _, h := range rep.Hourly {
			fmt.Fprintf(&b, "- %02d:00 %d lead(s)", h.Hour, h.Leads)
			if h.FakeLeads > 0 {
				fmt.Fprintf(&b, ", %d fake (%.1f%%)", h.FakeLeads, h.FakeLeadPct)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	if len(rep.Inconsistencies) > 0 {
		b.WriteString("## Inconsistencies\n")
		for _, inc := range rep.Inconsistencies {
			fmt.Fprintf(&b, "- %s (%s): %s, severity %s, fraud %.1f\n",
				inc.LeadID, inc.Source, inc.Kind, inc.Severity, inc.FraudScore)
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatScorecard renders a source scorecard as human-readable text.
func FormatScorecard(card *SourceScorecard) string {
	var b strings.Builder

	b.WriteString("# Lead Source Scorecard\n")
	if !card.WindowStart.IsZero() || !card.WindowEnd.IsZero() {
		fmt.Fprintf(&b, "Window: %s to %s\n",
			formatBound(card.WindowStart), formatBound(card.WindowEnd))
	} else {
		b.WriteString("Window: all time\n")
	}
	fmt.Fprintf(&b, "Generated: %s\n\n", card.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if card.NoData {
		b.WriteString("No validations in window.\n")
		return b.String()
	}

	b.WriteString("## Summary\n")
	fmt.Fprintf(&b, "- Leads: %d across %d source(s)\n",
		card.Totals.TotalLeads, card.Totals.UniqueSources)
	if card.Totals.QualityCount > 0 {
		fmt.Fprintf(&b, "- Avg quality: %.1f/10\n", card.Totals.AvgQuality)
	}
	fmt.Fprintf(&b, "- Avg fraud: %.1f/10\n", card.Totals.AvgFraud)
	fmt.Fprintf(&b, "- Fake leads: %d\n\n", card.Totals.FakeLeads)

	b.WriteString("## Sources\n")
	for i := range card.Sources {
		s := &card.Sources[i]
		fmt.Fprintf(&b, "- %s [%s]: %d lead(s), quality %.1f (rank %d), fraud %.1f, fake %.1f%%, risk %s",
			s.Source, s.Grade, s.TotalLeads, s.Quality.Mean, s.QualityRank,
			s.Fraud.Mean, s.FakeLeadPct, s.Risk)
		if s.PrimaryIssue != "" {
			fmt.Fprintf(&b, " (%s)", s.PrimaryIssue)
		}
		b.WriteString("\n")
	}
	b.WriteString("\n")

	if len(card.Worst) > 0 {
		b.WriteString("## Remediation Queue\n")
		for i := range card.Worst {
			s := &card.Worst[i]
			fmt.Fprintf(&b, "- #%d %s: problem score %.1f", s.RemediationPriority,
				s.Source, s.ProblemScore)
			if s.PrimaryIssue != "" {
				fmt.Fprintf(&b, ", %s", s.PrimaryIssue)
			}
			b.WriteString("\n")
		}
		b.WriteString("\n")
	}

	return b.String()
}

// FormatTrends renders a trend report as human-readable text.
func FormatTrends(rep *TrendReport) string {
	var b strings.Builder

	fmt.Fprintf(&b, "# Lead Quality Trends (%s)\n", rep.Granularity)
	if rep.Source != "" {
		fmt.Fprintf(&b, "Source: %s\n", rep.Source)
	}
	fmt.Fprintf(&b, "Generated: %s\n\n", rep.GeneratedAt.Format("2006-01-02 15:04 MST"))

	if rep.NoData {
		b.WriteString("No periods to report.\n")
		return b.String()
	}

	for i := range rep.Periods {
		p := &rep.Periods[i]
		fmt.Fprintf(&b, "## %s\n", periodLabel(p))
		fmt.Fprintf(&b, "- Leads: %d", p.Leads)
		if p.VolumeDelta != nil {
			fmt.Fprintf(&b, " (%+d vs prev)", *p.VolumeDelta)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "- Quality: avg %.1f, median %.1f", p.AvgQuality, p.MedianQuality)
		if p.QualityDelta != nil {
			fmt.Fprintf(&b, " (%+.1f vs prev)", *p.QualityDelta)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "- Fraud: avg %.1f, median %.1f", p.AvgFraud, p.MedianFraud)
		if p.FraudDelta != nil {
			fmt.Fprintf(&b, " (%+.1f vs prev)", *p.FraudDelta)
		}
		b.WriteString("\n")
		fmt.Fprintf(&b, "- Fake leads: %d (%.1f%%)\n", p.FakeLeads, p.FakeLeadPct)
		fmt.Fprintf(&b, "- Pass rates: email %.0f%%, phone %.0f%%, name %.0f%%, company %.0f%%, completeness %.0f%%\n",
			p.EmailPassRate, p.PhonePassRate, p.NamePassRate,
			p.CompanyPassRate, p.CompletenessPassRate)
		if p.QualityRank > 0 || p.FraudRank > 0 {
			fmt.Fprintf(&b, "- Rank: quality #%d, fraud safety #%d\n",
				p.QualityRank, p.FraudRank)
		}
		b.WriteString("\n")
	}

	return b.String()
}

func formatBound(t time.Time) string {
	if t.IsZero() {
		return "open"
	}
	return t.Format("2006-01-02")
}

func periodLabel(p *model.TrendPeriodSnapshot) string {
	switch p.Granularity {
	case model.Weekly:
		return "Week of " + p.PeriodStart.Format("2006-01-02")
	case model.Monthly:
		return p.PeriodStart.Format("January 2006")
	default:
		return p.PeriodStart.Format("2006-01-02")
	}
}
