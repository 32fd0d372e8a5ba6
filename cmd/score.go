package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/sells-group/leadval-cli/internal/model"
	"github.com/sells-group/leadval-cli/internal/score"
	"github.com/sells-group/leadval-cli/internal/store"
)

var (
	scoreLead   string
	scoreSince  int
	scoreLimit  int
	scoreFormat string
	scoreOutput string
)

var scoreCmd = &cobra.Command{
	Use:   "score",
	Short: "Score stored validations and print per-lead assessments",
	Long: `Runs the scoring model over stored validation records and prints one
assessment per record. Quality, fraud, and overall scores are shown on the
10-point presentation scale.

Examples:
  # Score everything stored in the last week
  score --since 7

  # Full validation history of one lead, newest first
  score --lead 00Q5e00000AbCdE

  # Export the latest 500 assessments to CSV
  score --limit 500 --format csv --output assessments.csv`,
	RunE: runScore,
}

func init() {
	scoreCmd.Flags().StringVar(&scoreLead, "lead", "", "score the full history of one lead ID")
	scoreCmd.Flags().IntVar(&scoreSince, "since", 0, "only score validations from the last N days (0 = all)")
	scoreCmd.Flags().IntVar(&scoreLimit, "limit", 0, "maximum number of records to score (0 = no cap)")
	scoreCmd.Flags().StringVar(&scoreFormat, "format", "table", "output format: table, json, or csv")
	scoreCmd.Flags().StringVar(&scoreOutput, "output", "", "output file path (default: stdout)")
	rootCmd.AddCommand(scoreCmd)
}

func runScore(cmd *cobra.Command, _ []string) error {
	ctx := cmd.Context()

	if scoreFormat != "table" && scoreFormat != "json" && scoreFormat != "csv" {
		return eris.Errorf("score: --format must be table, json, or csv (got %q)", scoreFormat)
	}

	st, err := openStore(ctx, "score")
	if err != nil {
		return err
	}
	defer st.Close() //nolint:errcheck

	var records []model.ValidationRecord
	if scoreLead != "" {
		records, err = st.LeadHistory(ctx, scoreLead)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			fmt.Fprintf(os.Stderr, "No validations found for lead %s.\n", scoreLead)
			return nil
		}
	} else {
		records, err = st.ListValidations(ctx, store.ValidationFilter{
			Window: windowFlag(scoreSince),
			Limit:  scoreLimit,
		})
		if err != nil {
			return err
		}
	}

	sc, err := scoringConfig()
	if err != nil {
		return err
	}
	res := score.AssessBatch(records, sc)
	if len(res.Assessments) == 0 {
		fmt.Fprintln(os.Stderr, "No scorable validations found.")
		return nil
	}
	if res.ParseErrors > 0 || res.Malformed > 0 {
		fmt.Fprintf(os.Stderr, "Skipped %d unparsed and %d malformed records.\n",
			res.ParseErrors, res.Malformed)
	}

	out := os.Stdout
	if scoreOutput != "" {
		out, err = os.Create(scoreOutput)
		if err != nil {
			return eris.Wrapf(err, "score: create output file %s", scoreOutput)
		}
		defer out.Close() //nolint:errcheck
	}

	switch scoreFormat {
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(res.Assessments)
	case "csv":
		return writeAssessmentsCSV(out, res.Assessments)
	default:
		writeAssessmentsTable(out, res.Assessments)
	}
	return nil
}

func writeAssessmentsTable(out *os.File, assessments []model.LeadAssessment) {
	w := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "LEAD\tSOURCE\tQUALITY\tFRAUD\tOVERALL\tRISK\tACTION\tVALIDATED")
	fmt.Fprintln(w, "----\t------\t-------\t-----\t-------\t----\t------\t---------")
	for i := range assessments {
		a := &assessments[i]
		fraud := strconv.FormatFloat(a.Fraud*10, 'f', 1, 64)
		if a.FakeFlag {
			fraud += " *"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			a.LeadID,
			a.Source,
			tenPoint(a.Quality),
			fraud,
			tenPoint(a.Overall),
			a.RiskLevel,
			a.Action,
			a.ValidatedAt.UTC().Format("2006-01-02 15:04"),
		)
	}
	w.Flush() //nolint:errcheck
	fmt.Fprintf(out, "\n%d assessments (* = flagged fake)\n", len(assessments))
}

func writeAssessmentsCSV(out *os.File, assessments []model.LeadAssessment) error {
	w := csv.NewWriter(out)
	defer w.Flush()

	header := []string{"lead_id", "task_id", "source", "quality", "fraud", "overall",
		"category", "fraud_tier", "risk_level", "action", "fake_flag", "validated_at"}
	if err := w.Write(header); err != nil {
		return eris.Wrap(err, "score: write CSV header")
	}
	for i := range assessments {
		a := &assessments[i]
		row := []string{
			a.LeadID,
			a.TaskID,
			a.Source,
			tenPoint(a.Quality),
			strconv.FormatFloat(a.Fraud*10, 'f', 1, 64),
			tenPoint(a.Overall),
			string(a.Category),
			string(a.FraudTier),
			string(a.RiskLevel),
			string(a.Action),
			strconv.FormatBool(a.FakeFlag),
			a.ValidatedAt.UTC().Format(timeFormatCSV),
		}
		if err := w.Write(row); err != nil {
			return eris.Wrap(err, "score: write CSV row")
		}
	}
	return nil
}

const timeFormatCSV = "2006-01-02T15:04:05Z"

// tenPoint renders a unit-scale score on the 10-point presentation scale,
// "-" when the input never carried one.
func tenPoint(v *float64) string {
	if v == nil {
		return "-"
	}
	return strconv.FormatFloat(*v*10, 'f', 1, 64)
}
