package main

import (
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"NewYorkCrimes/internal/app"
	"NewYorkCrimes/internal/config"
	"NewYorkCrimes/internal/logging"
)

type rootOptions struct {
	configPath   string
	logLevel     string
	preferReader bool
	timeout      time.Duration
}

func newRootCommand() *cobra.Command {
	opts := &rootOptions{}

	root := &cobra.Command{
		Use:          "newyorkcrimes",
		Short:        "Resolve paywalled NYT links to readable renderings",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return cmd.Help()
		},
	}

	root.PersistentFlags().StringVar(&opts.configPath, "config", "", "config file (default is $NYCRIMES_CONFIG)")
	root.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "override logging level")
	root.PersistentFlags().BoolVar(&opts.preferReader, "prefer-reader", false, "start on the reader proxy instead of the aggregator")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 0, "override the per-attempt timeout")

	root.AddCommand(
		newResolveCommand(opts),
		newClassifyCommand(opts),
		newServeCommand(opts),
		newHistoryCommand(opts),
	)
	return root
}

func (o *rootOptions) config(cmd *cobra.Command) config.Config {
	cfg := config.Load()
	if o.configPath != "" {
		cfg = config.LoadFile(o.configPath)
	}
	if o.logLevel != "" {
		cfg.Logging.Level = o.logLevel
	}
	if cmd.Flags().Changed("prefer-reader") {
		cfg.Resolver.PreferReader = o.preferReader
	}
	if o.timeout > 0 {
		cfg.Resolver.Timeout = o.timeout
	}
	return cfg
}

func (o *rootOptions) application(cmd *cobra.Command) (*app.Application, error) {
	cfg := o.config(cmd)
	logger := logging.NewWithWriter(cfg.Logging.Level, cmd.ErrOrStderr())
	return app.New(cmd.Context(), cfg, logger, nil)
}

func newResolveCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "resolve <url>...",
		Short: "Resolve article URLs and print the readable URL for each",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			failed := 0
			for _, raw := range args {
				res, err := application.Resolve(cmd.Context(), raw)
				if err != nil {
					fmt.Fprintf(cmd.ErrOrStderr(), "%s: %v\n", raw, err)
					failed++
					continue
				}
				printResolution(cmd.OutOrStdout(), res.Original, res.Resolved, string(res.Stage), res.Fallback, res.Cached)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d urls failed", failed, len(args))
			}
			return nil
		},
	}
}

func newClassifyCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "classify <url>...",
		Short: "Print the host class of each URL and whether it would be intercepted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			for _, raw := range args {
				class, intercept := application.Classify(raw)
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t%s\tintercept=%t\n", raw, class, intercept)
			}
			return nil
		},
	}
}

func newServeCommand(opts *rootOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			cmd.SetContext(ctx)

			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			return application.Serve(ctx)
		},
	}
}

func newHistoryCommand(opts *rootOptions) *cobra.Command {
	var limit int
	cmd := &cobra.Command{
		Use:   "history",
		Short: "List recently recorded resolutions",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			application, err := opts.application(cmd)
			if err != nil {
				return err
			}
			defer application.Close()

			items, err := application.History(cmd.Context(), limit)
			if err != nil {
				return err
			}
			if len(items) == 0 {
				fmt.Fprintln(cmd.ErrOrStderr(), "no recorded resolutions (is history.dsn set?)")
				return nil
			}
			for _, item := range items {
				fmt.Fprintf(cmd.OutOrStdout(), "%s\t", item.StartedAt.Local().Format(time.DateTime))
				printResolution(cmd.OutOrStdout(), item.Original, item.Resolved, string(item.Stage), item.Fallback, false)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of entries to show")
	return cmd
}

func printResolution(w io.Writer, original, resolved, stage string, fallback, cached bool) {
	flags := ""
	if fallback {
		flags += " fallback"
	}
	if cached {
		flags += " cached"
	}
	fmt.Fprintf(w, "%s\t%s\t%s%s\n", original, resolved, stage, flags)
}
