package cli

import (
	"github.com/spf13/cobra"

	"github.com/law-makers/planscrape/internal/utils/output"
)

func newScrapersCmd() *cobra.Command {
	var (
		all     bool
		modules bool
		attr    string
	)
	cmd := &cobra.Command{
		Use:   "scrapers",
		Short: "Describe the registered authorities",
		Long: `Print the descriptor of every registered authority.

--attr reduces each descriptor to one attribute, named as in the JSON form
(base_type, uid_only, data_start_target, ...). --modules groups the
authorities by the scraper family serving them.`,
		Example: `  # Every descriptor, disabled authorities included
  planscrape scrapers --all

  # Which authorities are date based
  planscrape scrapers --attr base_type`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetAppFromCmd(cmd)
			d := a.Dispatcher
			var out any = d.AllScraperClasses(all)
			switch {
			case modules:
				out = d.AllScraperModules(all)
			case attr != "":
				attrs, err := d.AllScraperAttributes(attr, all)
				if err != nil {
					return err
				}
				out = attrs
			}
			return output.Write(cmd.OutOrStdout(), a.Config.Format, out)
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Include disabled authorities")
	cmd.Flags().BoolVar(&modules, "modules", false, "Group authorities by scraper family")
	cmd.Flags().StringVar(&attr, "attr", "", "Report one descriptor attribute per authority")
	return cmd
}
