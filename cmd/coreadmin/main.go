// Command coreadmin exposes the operator actions spec §9 Design Notes
// calls out as separate from the always-on coreserver process:
// validating a config file before rollout, and triggering a
// reconciliation run against a buyer's reported total (spec §4.7).
// Grounded on services/distribution_service/main.go's config-then-
// connect boot order; no CLI framework appears anywhere in the
// retrieved pack, so subcommand parsing uses the standard library
// flag package rather than inventing an ungrounded dependency.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	iaroslogging "github.com/aurum-solar/core/common/libraries/go/iaros-core/logging"
	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/ledger"
	"github.com/aurum-solar/core/internal/storage"
)

const (
	exitOK            = 0
	exitInvalidConfig = 64
	exitInternal      = 70
	exitUsage         = 2
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) == 0 {
		usage()
		return exitUsage
	}

	switch args[0] {
	case "validate":
		return runValidate(args[1:])
	case "reconcile":
		return runReconcile(args[1:])
	case "migrate":
		return runMigrate(args[1:])
	default:
		usage()
		return exitUsage
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, "usage: coreadmin <validate|reconcile|migrate> [flags]")
}

// runMigrate applies operator-maintained SQL migrations under -dir
// (spec.md §1's "persistent schema migration" Non-goal excludes the
// core shipping its own migrations, not an operator running theirs).
func runMigrate(args []string) int {
	log := iaroslogging.New("coreadmin")
	defer log.Sync()

	fs := flag.NewFlagSet("migrate", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to the YAML config file")
	dir := fs.String("dir", "", "directory of golang-migrate SQL files")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *dir == "" {
		fmt.Fprintln(os.Stderr, "migrate requires -dir")
		return exitUsage
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitInvalidConfig
	}

	db, err := gorm.Open(postgres.Open(postgresDSN(cfg.Postgres)), &gorm.Config{})
	if err != nil {
		log.Error("postgres connection failed", zap.Error(err))
		return exitInternal
	}
	sqlDB, err := db.DB()
	if err != nil {
		log.Error("failed to obtain sql.DB handle", zap.Error(err))
		return exitInternal
	}

	if err := storage.RunMigrations(sqlDB, *dir); err != nil {
		log.Error("migration failed", zap.Error(err))
		return exitInternal
	}
	fmt.Println("migrations applied")
	return exitOK
}

// runValidate loads and validates a config file without booting any
// subsystem, mapping a bad config to exit 64 per spec §6.
func runValidate(args []string) int {
	fs := flag.NewFlagSet("validate", flag.ContinueOnError)
	path := fs.String("config", "", "path to the YAML config file")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if _, err := config.Load(*path); err != nil {
		fmt.Fprintf(os.Stderr, "config invalid: %v\n", err)
		return exitInvalidConfig
	}
	fmt.Println("config valid")
	return exitOK
}

// runReconcile runs one reconciliation window for a single platform
// against its self-reported total, always fetched over HTTP from the
// platform's configured endpoint plus "/reconciliation"; there is no
// flag for supplying the buyer total directly.
func runReconcile(args []string) int {
	log := iaroslogging.New("coreadmin")
	defer log.Sync()

	fs := flag.NewFlagSet("reconcile", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "path to the YAML config file")
	platformCode := fs.String("platform", "", "platform code to reconcile")
	start := fs.String("start", "", "window start, RFC3339")
	end := fs.String("end", "", "window end, RFC3339")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}
	if *platformCode == "" || *start == "" || *end == "" {
		fmt.Fprintln(os.Stderr, "reconcile requires -platform, -start and -end")
		return exitUsage
	}

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitInvalidConfig
	}

	startT, err := time.Parse(time.RFC3339, *start)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -start: %v\n", err)
		return exitUsage
	}
	endT, err := time.Parse(time.RFC3339, *end)
	if err != nil {
		fmt.Fprintf(os.Stderr, "invalid -end: %v\n", err)
		return exitUsage
	}

	db, err := gorm.Open(postgres.Open(postgresDSN(cfg.Postgres)), &gorm.Config{})
	if err != nil {
		log.Error("postgres connection failed", zap.Error(err))
		return exitInternal
	}

	endpoints := make(map[string]string, len(cfg.Platforms))
	for _, pc := range cfg.Platforms {
		if pc.Endpoint != "" {
			endpoints[pc.Code] = pc.Endpoint + "/reconciliation"
		}
	}
	fetcher := ledger.NewHTTPReportFetcher(endpoints, log.Logger)

	store := ledger.NewGormStore(db)
	reconciler := ledger.NewReconciler(store, cfg.Reconciliation.MinorThresholdUSD, fetcher)

	record, err := reconciler.ReconcileFetch(context.Background(), *platformCode, startT, endT)
	if err != nil {
		log.Error("reconciliation failed", zap.Error(err))
		return exitInternal
	}

	fmt.Printf("platform=%s status=%s our_total=%s their_total=%s delta=%s\n",
		record.PlatformCode, record.Status, record.OurTotal, record.TheirTotal, record.Delta)
	for _, issue := range record.Issues {
		fmt.Printf("  issue: %s\n", issue)
	}
	return exitOK
}

func postgresDSN(c config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}
