package metrics

import (
	"context"
	"database/sql"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/said46/autoSOC/internal/platform/logger"
)

const dbQueryTimeout = 2 * time.Second

// RegisterDBMetrics exposes pool gauges of the certificate directory
// database on reg. A non-empty countQuery adds a gauge of its result.
func RegisterDBMetrics(reg prometheus.Registerer, db *sql.DB, countQuery string, log *logger.Logger) error {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	gauges := []prometheus.Collector{
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_open_connections",
				Help: "Open certificate directory connections",
			},
			func() float64 { return float64(dbStats(db).OpenConnections) },
		),
		prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "db_in_use_connections",
				Help: "Certificate directory connections in use",
			},
			func() float64 { return float64(dbStats(db).InUse) },
		),
	}
	if countQuery != "" {
		gauges = append(gauges, prometheus.NewGaugeFunc(
			prometheus.GaugeOpts{
				Name: metricPrefix + "certificates",
				Help: "Certificates known to the directory",
			},
			func() float64 { return queryCount(db, log, countQuery) },
		))
	}
	for _, g := range gauges {
		if err := reg.Register(g); err != nil {
			return err
		}
	}
	return nil
}

func dbStats(db *sql.DB) sql.DBStats {
	if db == nil {
		return sql.DBStats{}
	}
	return db.Stats()
}

func queryCount(db *sql.DB, log *logger.Logger, query string) float64 {
	if db == nil {
		return 0
	}
	ctx, cancel := context.WithTimeout(context.Background(), dbQueryTimeout)
	defer cancel()
	var count int64
	if err := db.QueryRowContext(ctx, query).Scan(&count); err != nil {
		if log != nil {
			log.Warn("metrics query failed", "error", err)
		}
		return 0
	}
	if count < 0 {
		return 0
	}
	return float64(count)
}
