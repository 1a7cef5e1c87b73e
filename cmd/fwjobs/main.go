// Command fwjobs runs and inspects firmware analyses.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"runtime/debug"

	"github.com/spf13/cobra"

	"github.com/jdziat/firmware-jobs/pkg/config"
	"github.com/jdziat/firmware-jobs/pkg/logging"
	"github.com/jdziat/firmware-jobs/pkg/storage"
)

var (
	configPath string // actual config file used (if any)
	cfg        config.Config

	flagConfigFilePath string // value of --config flag
	flagVerbose        bool   // value of --verbose flag
)

func main() {
	rootCmd.PersistentFlags().StringVar(&flagConfigFilePath, "config", "", "config file to load, default is fwjobs.ini in the current directory")
	rootCmd.PersistentFlags().BoolVar(&flagVerbose, "verbose", false, "verbose logging")

	// never print messages
	rootCmd.SilenceErrors = true

	// parse the config, setup logging
	rootCmd.PersistentPreRunE = initFwjobs

	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(submitCmd)
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(parseCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(versionCmd)

	if err := rootCmd.Execute(); err != nil {
		slog.Error("fwjobs failed", "err", err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:          "fwjobs",
	Short:        "Run firmware analyses with bounded concurrency",
	SilenceUsage: true,
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "print version information",
	Run: func(cmd *cobra.Command, args []string) {
		info, ok := debug.ReadBuildInfo()
		if !ok {
			fmt.Println("fwjobs: version info not available")
			return
		}
		if configPath != "" {
			fmt.Printf("config: %s\n", configPath)
		}
		fmt.Printf("fwjobs: %s\n", info.Main.Version)
		fmt.Printf("go:     %s\n", info.GoVersion)
		for _, s := range info.Settings {
			switch s.Key {
			case "vcs.revision":
				fmt.Printf("commit: %s\n", s.Value)
			case "vcs.time":
				fmt.Printf("date:   %s\n", s.Value)
			}
		}
	},
}

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "create or update the database schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		store, err := openStorage(cmd.Context())
		if err != nil {
			return err
		}
		defer store.Close()
		slog.Info("schema up to date", "dsn", redactDSN(cfg.Database.DSN))
		return nil
	},
}

func initFwjobs(cmd *cobra.Command, _ []string) error {
	if envConfig, ok := os.LookupEnv("FWJOBS_CONFIG"); ok {
		configPath = envConfig
	} else if flagConfigFilePath != "" {
		configPath = flagConfigFilePath
	} else if exists("fwjobs.ini") {
		configPath = "fwjobs.ini"
	}

	var err error
	cfg, err = config.Load(configPath)
	if err != nil {
		return err
	}

	// --verbose has a precedence over config file
	if flagVerbose {
		cfg.Log.Verbose = true
	}

	slog.SetDefault(logging.New(os.Stderr, logging.Options{
		Level:   cfg.Log.Level,
		Format:  cfg.Log.Format,
		Verbose: cfg.Log.Verbose,
	}))
	slog.Debug("fwjobs run", "configPath", configPath)
	return nil
}

// openStorage opens the configured database and migrates it.
func openStorage(ctx context.Context) (*storage.GormStorage, error) {
	var opts []storage.PoolOption
	if n := cfg.Database.MaxOpenConns; n > 0 {
		opts = append(opts, storage.MaxOpenConns(n))
	}
	store, err := storage.Open(cfg.Database.DSN, opts...)
	if err != nil {
		return nil, err
	}
	if err := store.Migrate(ctx); err != nil {
		_ = store.Close()
		return nil, fmt.Errorf("migrating: %w", err)
	}
	return store, nil
}

func exists(path string) bool {
	info, err := os.Stat(path)
	return err == nil && info.Mode().IsRegular()
}
