// Command pagedump streams every element of a paged collection endpoint to
// stdout as JSON Lines.
//
//	pagedump /v1/orders --base-url https://api.example.com --user-agent me/1.0
//	pagedump /v1/orders --config pagestream.yaml --mode ordered --workers 8
//
// Settings come from --config, PAGESTREAM_* environment variables and flags;
// see package config for the keys.
package main

import (
	"fmt"
	"os"

	"github.com/Sternrassler/pagestream/pkg/config"
	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

// flagKeys maps flags to the config keys they override.
var flagKeys = map[string]string{
	"base-url":          "base_url",
	"user-agent":        "user_agent",
	"timeout":           "timeout",
	"redis-addr":        "redis.addr",
	"redis-db":          "redis.db",
	"page-size":         "pagination.page_size",
	"workers":           "pagination.max_concurrency",
	"splits-per-worker": "pagination.splits_per_worker",
	"max-attempts":      "retry.max_attempts",
	"log-level":         "logger.level",
	"pretty":            "logger.pretty",
}

func newRootCmd() *cobra.Command {
	v := config.NewViper()
	opts := dumpOptions{}
	var configPath string

	cmd := &cobra.Command{
		Use:           "pagedump <endpoint>",
		Short:         "Stream a paged collection endpoint as JSON Lines",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		PreRunE: func(cmd *cobra.Command, _ []string) error {
			for flag, key := range flagKeys {
				if err := v.BindPFlag(key, cmd.Flags().Lookup(flag)); err != nil {
					return fmt.Errorf("bind flag %s: %w", flag, err)
				}
			}
			return nil
		},
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(v, configPath)
			if err != nil {
				return err
			}
			opts.Endpoint = args[0]
			return run(cmd.Context(), cfg, opts, cmd.OutOrStdout())
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&configPath, "config", "", "config file (yaml, json or toml)")
	flags.String("base-url", "", "API root the endpoint is resolved against")
	flags.String("user-agent", "", "User-Agent sent with every request")
	flags.Duration("timeout", 0, "timeout of a single HTTP attempt")
	flags.String("redis-addr", "", "Redis address for the page cache and shared rate limit state")
	flags.Int("redis-db", 0, "Redis database")
	flags.Int("page-size", 0, "elements requested per page")
	flags.Int("workers", 0, "concurrent page fetches in ordered and unordered mode")
	flags.Int("splits-per-worker", 0, "how finely the collection is cut per worker")
	flags.Int("max-attempts", 0, "attempts per request, including the first")
	flags.String("log-level", "", "log level (debug, info, warn, error, disabled)")
	flags.Bool("pretty", false, "human-readable console logs")

	flags.StringVar((*string)(&opts.Mode), "mode", string(modeSequential), "traversal mode: sequential, ordered or unordered")
	flags.StringToStringVar(&opts.Query, "query", nil, "extra query parameters, e.g. --query status=open")
	flags.StringVar(&opts.Source.OffsetParam, "offset-param", "", "offset query parameter (default \"offset\")")
	flags.StringVar(&opts.Source.LimitParam, "limit-param", "", "limit query parameter (default \"limit\")")
	flags.StringVar(&opts.Source.TotalHeader, "total-header", "", "response header carrying the total (default \"X-Total-Count\")")
	flags.StringVar(&opts.Source.ItemsField, "items-field", "", "dotted path of the elements array in the body, e.g. data.items")
	flags.StringVar(&opts.Source.TotalField, "total-field", "", "dotted path of the total in the body, e.g. meta.total")
	flags.StringVar(&opts.MetricsAddr, "metrics-addr", "", "serve /metrics, /health and /ready on this address while dumping")

	return cmd
}
