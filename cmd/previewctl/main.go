// Package main provides previewctl, a command line client that loads document
// previews and watches analysis jobs through the resilience stack.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/jzx17/resilience/pkg/config"
	"github.com/jzx17/resilience/pkg/network"
	"github.com/jzx17/resilience/pkg/preview"
	"github.com/spf13/cobra"
)

// Version is the previewctl release reported by the version command
const Version = "0.1.0"

const appName = "previewctl"

func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := rootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// monitorOverrides replaces monitor collaborators, such as the link checker in tests
var monitorOverrides []network.Option

type globalFlags struct {
	configPath string
	envFile    string
	logLevel   string
}

func rootCmd() *cobra.Command {
	flags := &globalFlags{}

	cmd := &cobra.Command{
		Use:           appName,
		Short:         "Load document previews over unreliable networks",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVarP(&flags.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVar(&flags.envFile, "env-file", ".env", "Environment file loaded before the config")
	cmd.PersistentFlags().StringVar(&flags.logLevel, "log-level", "", "Override logging.level (debug, info, warn, error)")

	cmd.AddCommand(probeCmd(flags), fetchCmd(flags), watchCmd(flags))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s version %s\n", appName, Version)
		},
	})
	return cmd
}

// setup loads env and config, then builds and starts the app
func setup(cmd *cobra.Command, flags *globalFlags) (*App, func(), error) {
	if flags.envFile != "" {
		if err := godotenv.Load(flags.envFile); err != nil && !errors.Is(err, fs.ErrNotExist) {
			return nil, nil, fmt.Errorf("loading %s: %w", flags.envFile, err)
		}
	}

	cfg := config.Default()
	if flags.configPath != "" {
		loaded, err := config.Load(flags.configPath)
		if err != nil {
			return nil, nil, err
		}
		cfg = *loaded
	}
	if flags.logLevel != "" {
		cfg.Logging.Level = flags.logLevel
	}

	logger, err := newLogger(cfg.Logging, cmd.ErrOrStderr())
	if err != nil {
		return nil, nil, err
	}

	app, err := NewApp(&cfg, logger, monitorOverrides...)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Start(cmd.Context()); err != nil {
		return nil, nil, err
	}

	cleanup := func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := app.Stop(ctx); err != nil {
			logger.Error("Error during shutdown", "error", err)
		}
	}
	return app, cleanup, nil
}

func probeCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "probe",
		Short: "Check connectivity once and print the network state",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			snap := app.Probe(cmd.Context())
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "state: %s\n", snap.State)
			if !snap.LastProbe.IsZero() {
				fmt.Fprintf(out, "rtt: %s\n", snap.LastRTT)
			}
			if snap.LastError != "" {
				fmt.Fprintf(out, "error: %s\n", snap.LastError)
			}
			return nil
		},
	}
}

func fetchCmd(flags *globalFlags) *cobra.Command {
	var concurrency int

	cmd := &cobra.Command{
		Use:   "fetch PATH...",
		Short: "Fetch signed preview URLs, retrying transient failures",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			results, err := app.Fetch(cmd.Context(), args, concurrency)
			if err != nil {
				return err
			}

			failed := 0
			out := cmd.OutOrStdout()
			for _, r := range results {
				if r.Err != nil {
					failed++
					fmt.Fprintf(out, "%s\tFAILED\t%v\n", r.Path, r.Err)
					continue
				}
				fmt.Fprintf(out, "%s\t%s\n", r.Path, r.URL)
			}
			if failed > 0 {
				return fmt.Errorf("%d of %d paths failed", failed, len(results))
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&concurrency, "concurrency", 4, "Maximum paths loaded at once")
	return cmd
}

func watchCmd(flags *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "watch-analysis JOB_ID",
		Short: "Poll a document analysis job until it finishes",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			app, cleanup, err := setup(cmd, flags)
			if err != nil {
				return err
			}
			defer cleanup()

			out := cmd.OutOrStdout()
			status, err := app.WatchAnalysis(cmd.Context(), args[0], func(u preview.Update) {
				line := fmt.Sprintf("%s\t%s", u.JobID, u.Status)
				if u.Stuck.IsStuck {
					line += fmt.Sprintf("\tstuck for %dm, consider restarting", u.Stuck.MinutesStuck)
				}
				fmt.Fprintln(out, line)
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "finished: %s\n", status)
			return nil
		},
	}
}
