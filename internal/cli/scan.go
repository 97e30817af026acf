package cli

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/mrlokans/lending/internal/config"
	"github.com/mrlokans/lending/internal/entrypoint"
	"github.com/mrlokans/lending/internal/logging"
	"github.com/mrlokans/lending/internal/scheduler"
)

// ScanCommand runs one background scan immediately and exits.
type ScanCommand struct {
	Kind         string
	DatabasePath string
	Timeout      time.Duration
	Verbose      bool
}

func NewScanCommand() *ScanCommand {
	return &ScanCommand{}
}

func (cmd *ScanCommand) ParseFlags(args []string) error {
	fs := flag.NewFlagSet("scan", flag.ExitOnError)

	fs.StringVar(&cmd.Kind, "kind", "", "Scan to run: overdue, expired or audit_cleanup (required)")
	fs.StringVar(&cmd.DatabasePath, "db", "", "Override the SQLite database path from the environment")
	fs.DurationVar(&cmd.Timeout, "timeout", time.Minute, "Give up after this long")
	fs.BoolVar(&cmd.Verbose, "verbose", false, "Enable debug logging")

	fs.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: %s scan -kind <overdue|expired|audit_cleanup> [options]\n\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "Run a background scan once, outside the scheduler.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		fs.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  %s scan -kind overdue\n", os.Args[0])
		fmt.Fprintf(os.Stderr, "  %s scan -kind expired -db ./lending.db\n", os.Args[0])
	}

	if err := fs.Parse(args); err != nil {
		return err
	}

	if cmd.Kind == "" {
		fs.Usage()
		return fmt.Errorf("kind is required")
	}
	if _, err := scheduler.ParseJob(cmd.Kind); err != nil {
		return err
	}
	return nil
}

func (cmd *ScanCommand) Run() error {
	cfg := config.NewConfig()
	return cmd.run(cfg)
}

func (cmd *ScanCommand) run(cfg *config.Config) error {
	if cmd.DatabasePath != "" {
		cfg.Database.Driver = config.DriverSQLite
		cfg.Database.Path = cmd.DatabasePath
	}
	// Scans from the command line never hand work to a queue nobody is draining.
	cfg.Tasks.Enabled = false
	if cmd.Verbose {
		cfg.Log.Level = "debug"
	}
	logging.Setup(cfg.Log.Level, cfg.Log.Format)

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	app, err := entrypoint.NewApp(cfg)
	if err != nil {
		return err
	}
	defer app.Close()

	job, err := scheduler.ParseJob(cmd.Kind)
	if err != nil {
		return err
	}

	timeout := cmd.Timeout
	if timeout <= 0 {
		timeout = time.Minute
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	count, err := app.Scans.RunNow(ctx, job)
	if err != nil {
		return fmt.Errorf("%s scan failed: %w", job, err)
	}

	fmt.Printf("%s scan finished: %d records\n", job, count)
	return nil
}
