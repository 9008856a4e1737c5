package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	overrides "github.com/said46/autoSOC/internal/overrides/domain"
)

// SOCConfig describes the remote SOC application.
type SOCConfig struct {
	BaseURL             string        `yaml:"base_url"`
	MethodsPath         string        `yaml:"methods_path"`
	StatesPath          string        `yaml:"states_path"`
	SubmitPath          string        `yaml:"submit_path"`
	OverridesPath       string        `yaml:"overrides_path"`
	EditPath            string        `yaml:"edit_path"`
	Timeout             time.Duration `yaml:"timeout"`
	EmptyOptionalAsNull *bool         `yaml:"empty_optional_as_null"`
}

// TypeConfig is one configured override type.
type TypeConfig struct {
	ID    int64  `yaml:"id"`
	Title string `yaml:"title"`
}

// CatalogConfig holds reference data the remote does not expose.
type CatalogConfig struct {
	NotAppliedStateID int64        `yaml:"not_applied_state_id"`
	Types             []TypeConfig `yaml:"types"`
}

// CredentialConfig carries the opaque session credential.
type CredentialConfig struct {
	SessionCookie string `yaml:"session_cookie"`
	RequestToken  string `yaml:"request_token"`
}

// DatabaseConfig configures the certificate directory. An empty query
// selects the directory's built-in lookup.
type DatabaseConfig struct {
	URL              string `yaml:"url"`
	CertificateQuery string `yaml:"certificate_query"`
}

// BrowserConfig configures DevTools capture.
type BrowserConfig struct {
	ControlURL     string        `yaml:"control_url"`
	CaptureTimeout time.Duration `yaml:"capture_timeout"`
}

// Config is the root configuration.
type Config struct {
	SOC        SOCConfig        `yaml:"soc"`
	Catalog    CatalogConfig    `yaml:"catalog"`
	Credential CredentialConfig `yaml:"credential"`
	Database   DatabaseConfig   `yaml:"database"`
	Browser    BrowserConfig    `yaml:"browser"`
	LogMode    string           `yaml:"log_mode"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	asNull := true
	cfg := Config{
		SOC: SOCConfig{
			MethodsPath:         "/SOC/GetOverrideMethodsByType",
			StatesPath:          "/SOC/GetOverrideStatesByMethod",
			SubmitPath:          "/Soc/SaveOverrides",
			OverridesPath:       "/Soc/ReadOverrides",
			EditPath:            "/Soc/EditOverrides/",
			Timeout:             10 * time.Second,
			EmptyOptionalAsNull: &asNull,
		},
		Catalog: CatalogConfig{NotAppliedStateID: overrides.NotAppliedStateID},
		Browser: BrowserConfig{CaptureTimeout: 5 * time.Minute},
		LogMode: "dev",
	}
	for _, t := range overrides.DefaultTypes() {
		cfg.Catalog.Types = append(cfg.Catalog.Types, TypeConfig{ID: t.ID, Title: t.Title})
	}
	return cfg
}

// Load reads path (or SOC_CONFIG when path is empty), applies environment
// overrides and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()
	if path == "" {
		path = os.Getenv("SOC_CONFIG")
	}
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return cfg, err
		}
		if err := Parse(data, &cfg); err != nil {
			return cfg, err
		}
	}
	applyEnv(&cfg)
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// Parse decodes yaml data over cfg.
func Parse(data []byte, cfg *Config) error {
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

func applyEnv(cfg *Config) {
	cfg.SOC.BaseURL = getenvDefault("SOC_BASE_URL", cfg.SOC.BaseURL)
	cfg.SOC.Timeout = getenvDuration("SOC_TIMEOUT", cfg.SOC.Timeout)
	cfg.Credential.SessionCookie = getenvDefault("SOC_SESSION_COOKIE", cfg.Credential.SessionCookie)
	cfg.Credential.RequestToken = getenvDefault("SOC_REQUEST_TOKEN", cfg.Credential.RequestToken)
	cfg.Database.URL = getenvDefault("DATABASE_URL", cfg.Database.URL)
	cfg.Browser.ControlURL = getenvDefault("SOC_BROWSER_CONTROL_URL", cfg.Browser.ControlURL)
	cfg.Catalog.NotAppliedStateID = getenvInt64Default("SOC_NOT_APPLIED_STATE_ID", cfg.Catalog.NotAppliedStateID)
	cfg.LogMode = getenvDefault("LOG_MODE", cfg.LogMode)
}

// Validate checks required settings.
func (c Config) Validate() error {
	if strings.TrimSpace(c.SOC.BaseURL) == "" {
		return errors.New("config: soc.base_url is required")
	}
	if c.SOC.MethodsPath == "" || c.SOC.StatesPath == "" || c.SOC.SubmitPath == "" {
		return errors.New("config: soc endpoint paths are required")
	}
	if c.Catalog.NotAppliedStateID <= 0 {
		return errors.New("config: catalog.not_applied_state_id must be positive")
	}
	seen := make(map[int64]bool, len(c.Catalog.Types))
	for _, t := range c.Catalog.Types {
		if t.ID <= 0 || t.Title == "" {
			return fmt.Errorf("config: invalid catalog type %+v", t)
		}
		if seen[t.ID] {
			return fmt.Errorf("config: duplicate catalog type id %d", t.ID)
		}
		seen[t.ID] = true
	}
	return nil
}

// Types returns the configured override types.
func (c Config) Types() []overrides.OverrideType {
	out := make([]overrides.OverrideType, 0, len(c.Catalog.Types))
	for _, t := range c.Catalog.Types {
		out = append(out, overrides.OverrideType{ID: t.ID, Title: t.Title})
	}
	return out
}

// EmptyAsNull reports how empty optional values are encoded.
func (c Config) EmptyAsNull() bool {
	if c.SOC.EmptyOptionalAsNull == nil {
		return true
	}
	return *c.SOC.EmptyOptionalAsNull
}

func getenvDefault(key, fallback string) string {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	return value
}

func getenvInt64Default(key string, fallback int64) int64 {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := strconv.ParseInt(value, 10, 64)
	if err != nil {
		return fallback
	}
	return parsed
}

func getenvDuration(key string, fallback time.Duration) time.Duration {
	value := os.Getenv(key)
	if value == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(value)
	if err != nil {
		return fallback
	}
	return parsed
}
