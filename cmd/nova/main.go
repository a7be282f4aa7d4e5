// Package main provides the nova binary entry point.
// Nova ingests a directory tree of documents and drives each file
// through the parse, disassemble, split, and finalize phases.
package main

import (
	"fmt"
	"os"
	"runtime"

	"github.com/spf13/cobra"
)

const (
	Version   = "0.1.0"
	BuildTime = "dev"
	appName   = "nova"
)

func main() {
	// Add panic recovery
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	opts := &cliOptions{}

	cmd := &cobra.Command{
		Use:   appName,
		Short: "Document pipeline",
		Long: `Nova ingests a directory tree of heterogeneous documents and drives
each file through an ordered phase pipeline (parse, disassemble,
split, finalize), producing derived markdown artifacts, per-file
versioned metadata, and a validated cross-document reference graph.`,
		SilenceUsage: true,
	}

	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "Config file path (YAML)")
	cmd.PersistentFlags().StringVarP(&opts.inputRoot, "input", "i", "", "Input directory (overrides config)")
	cmd.PersistentFlags().StringVarP(&opts.outputDir, "output", "o", "", "Output directory (overrides config)")
	cmd.PersistentFlags().IntVar(&opts.workers, "workers", 0, "Worker pool size (overrides config)")
	cmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "info", "Log level (debug, info, warn, error)")

	cmd.AddCommand(runCommand(opts))
	cmd.AddCommand(watchCommand(opts))
	cmd.AddCommand(cleanCommand(opts))
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func runCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "run",
		Short: "Process the input tree once",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.RunOnce(cmd.Context())
		},
	}
}

func watchCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Process the input tree and re-run on changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Watch(cmd.Context())
		},
	}
}

func cleanCommand(opts *cliOptions) *cobra.Command {
	return &cobra.Command{
		Use:   "clean",
		Short: "Remove derived outputs and metadata",
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := newApp(opts)
			if err != nil {
				return err
			}
			defer app.Close()
			return app.Clean()
		},
	}
}
