package cli

import (
	"fmt"

	"github.com/google/uuid"
	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/law-makers/planscrape/internal/dispatch"
	"github.com/law-makers/planscrape/internal/utils/output"
)

func newSweepCmd() *cobra.Command {
	var (
		concurrency int
		progress    bool
	)
	cmd := &cobra.Command{
		Use:   "sweep [authority...]",
		Short: "Gather current ids for many authorities",
		Long: `Gather the current ids of every named authority, or of every enabled
authority when none is named.

Authorities sharing a portal host run one after another; different hosts
run in parallel. A failing authority is reported and never stops the rest.`,
		Example: `  # Every enabled authority
  planscrape sweep --progress

  # Two authorities as CSV
  planscrape sweep Hart Rushmoor --format csv`,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetAppFromCmd(cmd)

			total := len(args)
			if total == 0 {
				total = len(a.Registry.Entries(false))
			}
			bar := progressbar.NewOptions(total,
				progressbar.OptionSetWriter(cmd.ErrOrStderr()),
				progressbar.OptionSetDescription("sweeping"),
				progressbar.OptionShowCount(),
				progressbar.OptionClearOnFinish(),
				progressbar.OptionSetVisibility(progress),
			)

			runID := uuid.NewString()
			a.Logger.Info().Str("run_id", runID).Int("authorities", total).Msg("Sweep started")

			results := a.Dispatcher.Sweep(cmd.Context(), args, dispatch.SweepOptions{
				Concurrency: concurrency,
				RunID:       runID,
				Done: func(r dispatch.SweepResult) {
					bar.Describe(r.Authority)
					_ = bar.Add(1)
				},
			})
			_ = bar.Finish()

			failed := 0
			for _, r := range results {
				if r.Err != nil || r.Batch.ScrapeError != "" {
					failed++
				}
			}
			a.Logger.Info().Str("run_id", runID).Int("failed", failed).Msg("Sweep finished")

			if a.Config.Format == output.FormatCSV {
				return output.WriteCSV(cmd.OutOrStdout(), sweepRows(results))
			}
			if err := output.Write(cmd.OutOrStdout(), a.Config.Format, results); err != nil {
				return err
			}
			if failed == len(results) && failed > 0 {
				return fmt.Errorf("all %d authorities failed", failed)
			}
			return nil
		},
	}
	cmd.Flags().IntVarP(&concurrency, "concurrency", "c", 0, "Hosts scraped at once (default three per CPU)")
	cmd.Flags().BoolVar(&progress, "progress", false, "Show a progress bar on stderr")
	return cmd
}

// sweepRows gives one row per gathered id, and one row per authority that
// failed before gathering anything.
func sweepRows(results []dispatch.SweepResult) []map[string]string {
	var rows []map[string]string
	for _, r := range results {
		msg := r.Error
		if msg == "" {
			msg = r.Batch.ScrapeError
		}
		if len(r.Batch.Result) == 0 {
			if msg != "" {
				rows = append(rows, map[string]string{"authority": r.Authority, "scrape_error": msg})
			}
			continue
		}
		for _, rec := range r.Batch.Result {
			row := map[string]string{"uid": rec.UID, "authority": r.Authority}
			for k, v := range rec.Extra {
				row[k] = v
			}
			rows = append(rows, row)
		}
	}
	return rows
}
