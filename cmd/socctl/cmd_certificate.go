package main

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"github.com/said46/autoSOC/internal/config"
	"github.com/said46/autoSOC/internal/observability/metrics"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/postgres"
	"github.com/said46/autoSOC/internal/platform/logger"
)

const certificateCountQuery = `SELECT COUNT(*) FROM system_override_certificates`

var resolveCertificateCmd = &cobra.Command{
	Use:   "resolve-certificate PARTIAL",
	Short: "Look up the full certificate id ending with PARTIAL",
	Args:  cobra.ExactArgs(1),
	RunE:  runResolveCertificate,
}

func runResolveCertificate(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Database.URL == "" {
		return errors.New("database.url is not set")
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return err
	}
	defer log.Sync()

	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return fmt.Errorf("db open: %w", err)
	}
	defer db.Close()

	countQuery := ""
	if cfg.Database.CertificateQuery == "" {
		countQuery = certificateCountQuery
	}
	if err := metrics.RegisterDBMetrics(prometheus.DefaultRegisterer, db, countQuery, log); err != nil {
		log.Warn("db metrics not registered", "error", err)
	}

	ctx, cancel := commandContext(cmd)
	defer cancel()
	id, err := postgres.NewCertificateDirectory(db, cfg.Database.CertificateQuery).Resolve(ctx, args[0])
	if err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), formatID(id))
	return nil
}
