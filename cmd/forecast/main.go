// Command forecast scores a JSON file of opportunities and prints them ranked
// by win probability.
//
// Usage:
//
//	forecast -input opportunities.json [-reference tables.yaml] [-top 20] [-json] [-audit audit.db]
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"

	"github.com/aristath/opportunity-forecast/internal/database"
	"github.com/aristath/opportunity-forecast/internal/domain"
	"github.com/aristath/opportunity-forecast/internal/modules/featurestore"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast"
	"github.com/aristath/opportunity-forecast/internal/modules/forecast/workers"
	"github.com/aristath/opportunity-forecast/internal/reference"
	"github.com/aristath/opportunity-forecast/internal/snapshot"
	"github.com/aristath/opportunity-forecast/pkg/logger"
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/rs/zerolog"
)

func main() {
	input := flag.String("input", "", "JSON file with an array of opportunities (- for stdin)")
	referencePath := flag.String("reference", "", "YAML reference tables (built-in defaults when empty)")
	auditPath := flag.String("audit", "", "Record every scoring run in this sqlite feature store")
	top := flag.Int("top", 0, "Only show the N highest win probabilities (0 shows all)")
	asJSON := flag.Bool("json", false, "Print the batch as JSON instead of a table")
	workerCount := flag.Int("workers", 10, "Parallel scoring workers")
	logLevel := flag.String("log-level", "warn", "debug, info, warn or error")
	flag.Parse()

	log := logger.New(logger.Config{Level: *logLevel, Pretty: true, Output: os.Stderr})

	if *input == "" {
		fmt.Fprintln(os.Stderr, "forecast: -input is required")
		flag.Usage()
		os.Exit(2)
	}

	if err := run(*input, *referencePath, *auditPath, *top, *asJSON, *workerCount, os.Stdout, log); err != nil {
		log.Fatal().Err(err).Msg("Forecast failed")
	}
}

func run(input, referencePath, auditPath string, top int, asJSON bool, workerCount int, out io.Writer, log zerolog.Logger) error {
	ctx := context.Background()

	var (
		records []domain.Record
		err     error
	)
	if input == "-" {
		records, err = snapshot.Decode(os.Stdin)
	} else {
		records, err = snapshot.NewFileSource(input, log).Load(ctx)
	}
	if err != nil {
		return fmt.Errorf("failed to read opportunities: %w", err)
	}

	tables, err := reference.LoadOrDefault(referencePath)
	if err != nil {
		return fmt.Errorf("failed to load reference tables: %w", err)
	}
	engine, err := forecast.NewEngine(tables)
	if err != nil {
		return err
	}

	var audit forecast.AuditRecorder
	if auditPath != "" {
		db, err := database.New(database.Config{Path: auditPath, Profile: database.ProfileLedger, Name: database.NameAudit})
		if err != nil {
			return fmt.Errorf("failed to open audit database: %w", err)
		}
		defer db.Close()
		if err := db.Migrate(); err != nil {
			return fmt.Errorf("failed to migrate audit database: %w", err)
		}
		audit = featurestore.NewStore(db.Conn(), log)
	}

	svc := forecast.NewService(engine, workers.NewWorkerPool(workerCount), audit, nil, log)
	batch := svc.ForecastRecords(ctx, records, nil)

	views := forecast.NewViews(batch.Results)
	sort.SliceStable(views, func(i, j int) bool {
		if views[i].WinProb != views[j].WinProb {
			return views[i].WinProb > views[j].WinProb
		}
		return views[i].OpportunityID < views[j].OpportunityID
	})
	if top > 0 && len(views) > top {
		views = views[:top]
	}

	if asJSON {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(struct {
			RunID        string             `json:"run_id"`
			ModelVersion string             `json:"model_version"`
			Results      []forecast.View    `json:"results"`
			Failures     []forecast.Failure `json:"failures"`
		}{batch.RunID, batch.ModelVersion, views, batch.Failures})
	}

	renderTable(out, views)
	if len(batch.Failures) > 0 {
		fmt.Fprintf(out, "\n%d opportunities skipped:\n", len(batch.Failures))
		for _, f := range batch.Failures {
			fmt.Fprintf(out, "  #%d %s: %s\n", f.Index, f.OpportunityID, f.Error)
		}
	}
	return nil
}

func renderTable(out io.Writer, views []forecast.View) {
	t := table.NewWriter()
	t.SetOutputMirror(out)
	t.AppendHeader(table.Row{"#", "Opportunity", "Win %", "Score", "Bonus", "80% CI", "FY", "FY25", "FY26", "FY27"})
	t.SetColumnConfigs([]table.ColumnConfig{
		{Number: 3, Align: text.AlignRight},
		{Number: 4, Align: text.AlignRight},
		{Number: 5, Align: text.AlignRight},
		{Number: 8, Align: text.AlignRight},
		{Number: 9, Align: text.AlignRight},
		{Number: 10, Align: text.AlignRight},
	})

	for i, v := range views {
		t.AppendRow(table.Row{
			i + 1,
			v.OpportunityID,
			fmt.Sprintf("%.1f", v.WinProb),
			fmt.Sprintf("%.1f", v.ScoreScaled),
			fmt.Sprintf("%.1f", v.TotalBonusesApplied),
			fmt.Sprintf("%.1f-%.1f", v.ConfidenceInterval.LowerBound, v.ConfidenceInterval.UpperBound),
			v.FYBucket,
			v.ProjectedAmountFY25,
			v.ProjectedAmountFY26,
			v.ProjectedAmountFY27,
		})
	}
	t.Render()
}
