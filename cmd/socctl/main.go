// Command socctl builds, submits and inspects SOC override batches.
package main

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strconv"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	"github.com/said46/autoSOC/internal/capture"
	"github.com/said46/autoSOC/internal/config"
	"github.com/said46/autoSOC/internal/observability/metrics"
	"github.com/said46/autoSOC/internal/overrides/application"
	overrides "github.com/said46/autoSOC/internal/overrides/domain"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/memory"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/postgres"
	"github.com/said46/autoSOC/internal/overrides/infrastructure/soc"
	"github.com/said46/autoSOC/internal/platform/logger"
)

var (
	configPath  string
	metricsAddr string
	logMode     string
	timeout     time.Duration
)

var rootCmd = &cobra.Command{
	Use:           "socctl",
	Short:         "Build, submit and inspect SOC override batches",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		metrics.Init(nil)
		if metricsAddr != "" {
			startMetricsServer(metricsAddr)
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "Config file (or set SOC_CONFIG)")
	rootCmd.PersistentFlags().StringVar(&metricsAddr, "metrics-addr", "", "Serve Prometheus metrics on this address")
	rootCmd.PersistentFlags().StringVar(&logMode, "log-mode", "", "Log mode: dev or prod (overrides config)")
	rootCmd.PersistentFlags().DurationVar(&timeout, "timeout", 2*time.Minute, "Operation timeout")

	rootCmd.AddCommand(discoverCmd)
	rootCmd.AddCommand(importCmd)
	rootCmd.AddCommand(exportCmd)
	rootCmd.AddCommand(captureCmd)
	rootCmd.AddCommand(diffCmd)
	rootCmd.AddCommand(resolveCertificateCmd)
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "socctl:", err)
		os.Exit(1)
	}
}

func startMetricsServer(addr string) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	server := &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			fmt.Fprintln(os.Stderr, "socctl: metrics server:", err)
		}
	}()
}

// env is what a command needs to talk to the SOC application.
type env struct {
	cfg      config.Config
	log      *logger.Logger
	client   *soc.Client
	catalog  *memory.CachedCatalog
	service  *application.Service
	recorder *capture.RecordingTransport
}

func loadEnv() (*env, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, err
	}
	if logMode != "" {
		cfg.LogMode = logMode
	}
	log, err := logger.New(cfg.LogMode)
	if err != nil {
		return nil, err
	}

	recorder := &capture.RecordingTransport{PathContains: cfg.SOC.SubmitPath}
	client, err := soc.NewClient(cfg.SOC.BaseURL,
		soc.WithHTTPClient(&http.Client{Transport: recorder}),
		soc.WithTimeout(cfg.SOC.Timeout),
		soc.WithPaths(soc.Paths{
			Methods:   cfg.SOC.MethodsPath,
			States:    cfg.SOC.StatesPath,
			Submit:    cfg.SOC.SubmitPath,
			Overrides: cfg.SOC.OverridesPath,
		}),
		soc.WithTypes(cfg.Types()),
		soc.WithCatalogCredential(credential(cfg)),
		soc.WithEmptyOptionalAsNull(cfg.EmptyAsNull()),
		soc.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	catalog := memory.NewCachedCatalog(client)
	service, err := application.NewService(catalog, client,
		application.WithTypes(cfg.Types()),
		application.WithNotAppliedStateID(cfg.Catalog.NotAppliedStateID),
		application.WithLogger(log),
	)
	if err != nil {
		return nil, err
	}
	return &env{cfg: cfg, log: log, client: client, catalog: catalog, service: service, recorder: recorder}, nil
}

func credential(cfg config.Config) soc.Credential {
	return soc.Credential{
		SessionCookie: cfg.Credential.SessionCookie,
		RequestToken:  cfg.Credential.RequestToken,
	}
}

func commandContext(cmd *cobra.Command) (context.Context, context.CancelFunc) {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithTimeout(ctx, timeout)
}

// resolveCertificate accepts a full id, or a partial one when a database
// is configured.
func resolveCertificate(ctx context.Context, cfg config.Config, raw string) (int64, error) {
	_, partial, err := overrides.NormalizeCertificateID(raw)
	if err != nil {
		return 0, err
	}
	if !partial {
		return overrides.ParseCertificateID(raw)
	}
	if cfg.Database.URL == "" {
		return 0, fmt.Errorf("certificate %q is partial and database.url is not set", raw)
	}
	db, err := sql.Open("pgx", cfg.Database.URL)
	if err != nil {
		return 0, fmt.Errorf("db open: %w", err)
	}
	defer db.Close()
	return postgres.NewCertificateDirectory(db, cfg.Database.CertificateQuery).Resolve(ctx, raw)
}

func formatID(id int64) string {
	return strconv.FormatInt(id, 10)
}
