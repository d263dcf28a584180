package cli

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/law-makers/planscrape/internal/app"
	"github.com/law-makers/planscrape/internal/config"
	"github.com/law-makers/planscrape/internal/dispatch"
	"github.com/law-makers/planscrape/internal/utils/output"
)

const version = "0.1.0"

// NewRootCmd builds the command tree. opts are applied to the Application
// created before each command runs.
func NewRootCmd(opts ...app.Option) *cobra.Command {
	var (
		list       bool
		all        bool
		kwargs     map[string]string
		operations bool
	)

	rootCmd := &cobra.Command{
		Use:   "planscrape [authority] [operation] [args...]",
		Short: "Scrape planning applications from UK local authority portals",
		Long: `Planscrape gathers planning application ids and details from the search
portals of UK local planning authorities.

With no operation the current ids of the authority are gathered. Operation
arguments are positional; named parameters and the log_level, log_directory
and log_name settings of the scraper's log are passed with --kw.`,
		Example: `  # Gather the ids published recently
  planscrape Hart

  # Gather ids in a date range, newest first
  planscrape Hart gather_ids 2024-03-01 2024-03-31

  # Fetch one application with a debug log per authority
  planscrape Camden fetch_application 2024/1234/P --kw log_level=debug --kw log_directory=logs

  # List the enabled authorities
  planscrape --list`,
		Version:       version,
		Args:          cobra.ArbitraryArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a := GetAppFromCmd(cmd)
			switch {
			case operations:
				return output.Write(cmd.OutOrStdout(), a.Config.Format, dispatch.Operations)
			case list:
				return output.Write(cmd.OutOrStdout(), a.Config.Format, a.Dispatcher.AllScraperNames(all))
			case len(args) == 0:
				return cmd.Help()
			}

			name, function, rest := args[0], "", args[1:]
			if len(rest) > 0 {
				function, rest = rest[0], rest[1:]
			}
			out, err := a.Dispatcher.RunScraper(cmd.Context(), name, function, rest, kwargs)
			if err != nil {
				return err
			}
			return output.Write(cmd.OutOrStdout(), a.Config.Format, out)
		},
	}

	// The application is created lazily so -h and --version never touch the
	// keyring or the registry.
	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if GetAppFromCmd(cmd) != nil {
			return nil
		}
		cfg, err := config.Load(cmd)
		if err != nil {
			return err
		}
		a, err := app.New(cmd.Context(), cfg, opts...)
		if err != nil {
			return err
		}
		cmd.SetContext(WithApp(cmd.Context(), a))
		return nil
	}
	rootCmd.PersistentPostRunE = func(cmd *cobra.Command, args []string) error {
		a := GetAppFromCmd(cmd)
		if a == nil {
			return nil
		}
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		return a.Close(ctx)
	}

	config.RegisterFlags(rootCmd)
	rootCmd.Flags().BoolVar(&list, "list", false, "List the registered authorities")
	rootCmd.Flags().BoolVar(&all, "all", false, "Include disabled authorities in --list")
	rootCmd.Flags().BoolVar(&operations, "operations", false, "List the operation names")
	rootCmd.Flags().StringToStringVarP(&kwargs, "kw", "k", nil, "Named operation parameter as key=value (repeatable)")
	rootCmd.Flags().BoolP("help", "h", false, "Help for planscrape")
	rootCmd.Flags().Bool("version", false, "Version for planscrape")

	rootCmd.AddCommand(newScrapersCmd(), newSweepCmd(), newCookiesCmd())

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetHelpFunc(customHelpFunc)
	rootCmd.SetUsageFunc(customUsageFunc)
	return rootCmd
}

// Execute runs the command line against ctx and returns the error the
// command failed with, already reported on stderr.
func Execute(ctx context.Context) error {
	cmd := NewRootCmd()
	err := cmd.ExecuteContext(ctx)
	if err != nil {
		fmt.Fprintf(cmd.ErrOrStderr(), "%s %v\n", errorPrefix(), err)
	}
	return err
}
