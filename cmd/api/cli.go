package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"

	"github.com/corvusHold/mailrelay/internal/app"
	authmw "github.com/corvusHold/mailrelay/internal/auth/middleware"
	"github.com/corvusHold/mailrelay/internal/config"
	"github.com/corvusHold/mailrelay/internal/logger"
)

const (
	exitOK      = 0
	exitUsage   = 2
	exitConfig  = 3
	exitMigrate = 4
	exitPurge   = 5
)

var (
	migrateRunner = realMigrateRunner
	purgeRunner   = realPurgeRunner
	osExit        = os.Exit
)

func handleCLICommand(args []string) bool {
	if len(args) == 0 {
		return false
	}
	switch args[0] {
	case "migrate":
		osExit(runMigrate(args[1:]))
		return true
	case "purge-logs":
		osExit(runPurge(args[1:]))
		return true
	case "hash-password":
		osExit(runHashPassword(args[1:]))
		return true
	case "help", "-h", "--help":
		printHelp()
		osExit(exitOK)
		return true
	default:
		return false
	}
}

func runMigrate(args []string) int {
	if len(args) == 0 {
		fmt.Fprintln(os.Stderr, "missing migrate subcommand (up|down|status)")
		return exitUsage
	}
	subcmd := args[0]
	switch subcmd {
	case "up", "down", "status":
	default:
		fmt.Fprintf(os.Stderr, "unknown migrate subcommand: %s\n", subcmd)
		return exitUsage
	}

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}

	if err := migrateRunner(subcmd, cfg.DatabaseURL); err != nil {
		fmt.Fprintf(os.Stderr, "migrate %s failed: %v\n", subcmd, err)
		return exitMigrate
	}
	return exitOK
}

func realMigrateRunner(subcmd, databaseURL string) error {
	if databaseURL == "" {
		return fmt.Errorf("DATABASE_URL is empty")
	}

	db, err := sql.Open("pgx", databaseURL)
	if err != nil {
		return err
	}
	defer func() {
		_ = db.Close()
	}()

	if err := goose.SetDialect("postgres"); err != nil {
		return fmt.Errorf("set goose dialect: %w", err)
	}
	const migrationsDir = "./migrations"

	switch subcmd {
	case "up":
		return goose.Up(db, migrationsDir)
	case "down":
		return goose.Down(db, migrationsDir)
	case "status":
		return goose.Status(db, migrationsDir)
	default:
		return fmt.Errorf("unsupported migrate subcommand %q", subcmd)
	}
}

// runPurge deletes email logs older than the given duration, or all logs
// with "all". Without an argument it applies LOG_RETENTION.
func runPurge(args []string) int {
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config error: %v\n", err)
		return exitConfig
	}
	age := cfg.LogRetention
	if len(args) > 0 {
		if args[0] == "all" {
			age = 0
		} else {
			d, err := time.ParseDuration(args[0])
			if err != nil || d <= 0 {
				fmt.Fprintf(os.Stderr, "invalid age %q (want a positive duration or \"all\")\n", args[0])
				return exitUsage
			}
			age = d
		}
	}
	n, err := purgeRunner(cfg, age)
	if err != nil {
		fmt.Fprintf(os.Stderr, "purge failed: %v\n", err)
		return exitPurge
	}
	fmt.Printf("removed %d email logs\n", n)
	return exitOK
}

func realPurgeRunner(cfg config.Config, age time.Duration) (int64, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()
	a, err := app.New(ctx, cfg, logger.New(cfg.AppEnv))
	if err != nil {
		return 0, err
	}
	defer func() { _ = a.Close(ctx) }()
	return a.Audit.PurgeOlderThan(ctx, age)
}

// runHashPassword prints a bcrypt hash for ADMIN_PASSWORD_HASH.
func runHashPassword(args []string) int {
	if len(args) != 1 || args[0] == "" {
		fmt.Fprintln(os.Stderr, "usage: hash-password <password>")
		return exitUsage
	}
	h, err := authmw.HashPassword(args[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "hash failed: %v\n", err)
		return exitUsage
	}
	fmt.Println(h)
	return exitOK
}

func printHelp() {
	fmt.Println("Mail relay")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  mailrelay                   Start API server")
	fmt.Println("  mailrelay migrate up        Apply all pending migrations")
	fmt.Println("  mailrelay migrate down      Roll back one migration")
	fmt.Println("  mailrelay migrate status    Show migration status")
	fmt.Println("  mailrelay purge-logs [age]  Delete email logs older than age (default LOG_RETENTION; \"all\" for everything)")
	fmt.Println("  mailrelay hash-password pw  Print a bcrypt hash for ADMIN_PASSWORD_HASH")
}
