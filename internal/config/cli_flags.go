package config

import "github.com/spf13/cobra"

// RegisterFlags registers common CLI flags on the provided root command
func RegisterFlags(cmd *cobra.Command) {
	if cmd == nil {
		return
	}

	cmd.PersistentFlags().StringP("level", "l", DefaultLogLevel, "Log level: debug, info, warn, error")
	cmd.PersistentFlags().StringP("logdir", "g", "", "Write each scraper's log to <logdir>/<authority>.log")
	cmd.PersistentFlags().Bool("json", false, "Log JSON lines instead of console output")
	cmd.PersistentFlags().String("format", DefaultFormat, "Output format: json or csv")
	cmd.PersistentFlags().String("proxy", "", "HTTP proxy for scrapers that declare none (e.g., http://localhost:8080)")
	cmd.PersistentFlags().String("timeout", "", "Per-request timeout (default 20s)")
	cmd.PersistentFlags().String("user-agent", "", "Custom user agent string")
	cmd.PersistentFlags().Float64("rate", DefaultRateLimitRPS, "Requests per second per host (0 disables)")
	cmd.PersistentFlags().Int("retries", DefaultRetryAttempts, "Attempts per request, including the first")
	cmd.PersistentFlags().Bool("no-cache", false, "Disable the detail page cache")
	cmd.PersistentFlags().String("metrics-file", "", "Write Prometheus metrics to this file on exit")
}
