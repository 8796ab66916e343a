package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/SAP-F-2025/grading-service/internal/config"
)

func main() {
	v := config.New()
	var configFile string

	rootCmd := &cobra.Command{
		Use:   "grading-service",
		Short: "Assessment and code grading service",
		// serve is the default so the container entrypoint needs no arguments
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v, configFile, serveOptions{})
		},
		SilenceUsage: true,
	}

	rootCmd.PersistentFlags().StringVarP(&configFile, "config", "c", "", "Path to a config file (yaml, json or toml)")
	rootCmd.PersistentFlags().String("log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().String("log-format", "", "Log format: text or json")
	bindFlag(v, rootCmd, "log_level", "log-level")
	bindFlag(v, rootCmd, "log_format", "log-format")

	rootCmd.AddCommand(
		newServeCmd(v, &configFile),
		newWorkerCmd(v, &configFile),
		newCollectCmd(v, &configFile),
		newMigrateCmd(v, &configFile),
		newReclaimCmd(v, &configFile),
	)

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func bindFlag(v *viper.Viper, cmd *cobra.Command, key, flag string) {
	if err := v.BindPFlag(key, cmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("bind flag %s: %v", flag, err))
	}
}

type serveOptions struct {
	withWorker    bool
	withCollector bool
}

func newServeCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var opts serveOptions
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, v, *configFile, opts)
		},
	}
	cmd.Flags().BoolVar(&opts.withWorker, "with-worker", false, "Also run the execution worker in this process")
	cmd.Flags().BoolVar(&opts.withCollector, "with-collector", false, "Also run the result collector in this process")
	return cmd
}

func newWorkerCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "worker",
		Short: "Execute queued submissions against their test cases",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runWorker(cmd, v, *configFile, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Drain the ready jobs once and exit")
	return cmd
}

func newCollectCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var once bool
	cmd := &cobra.Command{
		Use:   "collect",
		Short: "Turn finished result sets into verdicts",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCollect(cmd, v, *configFile, once)
		},
	}
	cmd.Flags().BoolVar(&once, "once", false, "Collect the ready result sets once and exit")
	return cmd
}

func newMigrateCmd(v *viper.Viper, configFile *string) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Manage the database schema",
	}

	up := &cobra.Command{
		Use:   "up",
		Short: "Apply all pending migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runMigrate(v, *configFile, 0)
		},
	}

	var steps int
	down := &cobra.Command{
		Use:   "down",
		Short: "Revert migrations",
		RunE: func(cmd *cobra.Command, args []string) error {
			if steps < 1 {
				return fmt.Errorf("--steps must be at least 1")
			}
			return runMigrate(v, *configFile, steps)
		},
	}
	down.Flags().IntVar(&steps, "steps", 1, "Number of migrations to revert")

	cmd.AddCommand(up, down)
	return cmd
}

func newReclaimCmd(v *viper.Viper, configFile *string) *cobra.Command {
	var submissionID uint
	cmd := &cobra.Command{
		Use:   "reclaim",
		Short: "Release a submission whose job will never finish",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runReclaim(cmd, v, *configFile, submissionID)
		},
	}
	cmd.Flags().UintVar(&submissionID, "submission", 0, "Submission ID (required)")
	_ = cmd.MarkFlagRequired("submission")
	return cmd
}
