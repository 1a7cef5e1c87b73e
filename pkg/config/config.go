// Package config loads fwjobs settings from an INI file.
//
// A file only needs the keys it changes; everything else keeps the value
// from Default.
//
//	[analysis]
//	workers     = 4
//	tool_dir    = /opt/emba
//	active_root = /var/lib/fwjobs/active
//	log_root    = /var/lib/fwjobs/logs
//
//	[database]
//	dsn = postgres://fwjobs@localhost/fwjobs
package config

import (
	"errors"
	"fmt"
	"time"

	"gopkg.in/ini.v1"

	"github.com/jdziat/firmware-jobs/pkg/schedule"
	"github.com/jdziat/firmware-jobs/pkg/security"
)

// Config is the complete service configuration.
type Config struct {
	Analysis Analysis `ini:"analysis"`
	Database Database `ini:"database"`
	Sweep    Sweep    `ini:"sweep"`
	Log      Log      `ini:"log"`
	HTTP     HTTP     `ini:"http"`
}

// Analysis configures the execution core and the tool invocation.
type Analysis struct {
	// Workers is both the pool size and the admission capacity.
	Workers      int           `ini:"workers"`
	ToolDir      string        `ini:"tool_dir"`
	Command      string        `ini:"command"`
	Sudo         bool          `ini:"sudo"`
	ActiveRoot   string        `ini:"active_root"`
	LogRoot      string        `ini:"log_root"`
	ReportName   string        `ini:"report_name"`
	LogName      string        `ini:"log_name"`
	Tail         bool          `ini:"tail"`
	TailInterval time.Duration `ini:"tail_interval"`
}

type Database struct {
	DSN          string `ini:"dsn"`
	MaxOpenConns int    `ini:"max_open_conns"`
}

type Sweep struct {
	Enabled  bool          `ini:"enabled"`
	Schedule string        `ini:"schedule"`
	MaxAge   time.Duration `ini:"max_age"`
}

type Log struct {
	Level   string `ini:"level"`
	Format  string `ini:"format"`
	Verbose bool   `ini:"verbose"`
}

type HTTP struct {
	Listen       string `ini:"listen"`
	MaxUploadMiB int64  `ini:"max_upload_mib"`
}

// Default returns the built-in configuration.
func Default() Config {
	return Config{
		Analysis: Analysis{
			Workers:      4,
			ToolDir:      "/opt/emba",
			Command:      "./emba.sh",
			Sudo:         true,
			ActiveRoot:   "/var/lib/fwjobs/active",
			LogRoot:      "/var/lib/fwjobs/logs",
			ReportName:   "f50_base_aggregator.csv",
			LogName:      "emba.log",
			Tail:         true,
			TailInterval: 2 * time.Second,
		},
		Database: Database{
			DSN: "/var/lib/fwjobs/fwjobs.db",
		},
		Sweep: Sweep{
			Enabled:  true,
			Schedule: "@hourly",
			MaxAge:   24 * time.Hour,
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
		HTTP: HTTP{
			Listen:       "127.0.0.1:8080",
			MaxUploadMiB: 2048,
		},
	}
}

// Load reads path on top of Default. An empty path returns Default.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		return cfg, nil
	}

	f, err := ini.Load(path)
	if err != nil {
		return Config{}, fmt.Errorf("loading config %s: %w", path, err)
	}
	if err := f.MapTo(&cfg); err != nil {
		return Config{}, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, cfg.Validate()
}

// Validate reports every invalid setting.
func (c Config) Validate() error {
	var errs []error
	a := c.Analysis
	if a.Workers < 1 || a.Workers > security.MaxWorkers {
		errs = append(errs, fmt.Errorf("analysis.workers must be between 1 and %d, got %d", security.MaxWorkers, a.Workers))
	}
	if a.Command == "" {
		errs = append(errs, errors.New("analysis.command is required"))
	}
	if a.ActiveRoot == "" {
		errs = append(errs, errors.New("analysis.active_root is required"))
	}
	if a.LogRoot == "" {
		errs = append(errs, errors.New("analysis.log_root is required"))
	}
	if a.ActiveRoot != "" && a.ActiveRoot == a.LogRoot {
		errs = append(errs, errors.New("analysis.active_root and analysis.log_root must differ"))
	}
	if a.ReportName == "" {
		errs = append(errs, errors.New("analysis.report_name is required"))
	}
	if a.Tail && a.TailInterval <= 0 {
		errs = append(errs, errors.New("analysis.tail_interval must be positive"))
	}
	if c.Database.DSN == "" {
		errs = append(errs, errors.New("database.dsn is required"))
	}
	if c.Sweep.Enabled {
		if _, err := schedule.Parse(c.Sweep.Schedule); err != nil {
			errs = append(errs, fmt.Errorf("sweep.schedule: %w", err))
		}
		if c.Sweep.MaxAge <= 0 {
			errs = append(errs, errors.New("sweep.max_age must be positive"))
		}
	}
	return errors.Join(errs...)
}
