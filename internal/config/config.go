package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

var ErrInvalidConfig = errors.New("config: invalid")

const (
	DriverPlaywright = "playwright"
	DriverRod        = "rod"
	DriverChromedp   = "chromedp"
)

type Target struct {
	Domain              string
	LoginButtonSelector string
}

// Config is the resolved run configuration.
type Config struct {
	Driver         string
	Headless       bool
	BrowserTimeout time.Duration
	// BrowserPath overrides the browser binary for the rod and chromedp drivers.
	BrowserPath string

	Targets map[string]Target

	AffiliationID   string
	AffiliationName string
	Approver        string

	SettleDelay       time.Duration
	ReadySelector     string
	ReadyTimeout      time.Duration
	ControlSelector   string
	ControlRetries    int
	ControlInterval   time.Duration
	ControlBackoff    float64
	FormTimeout       time.Duration
	NavigationTimeout time.Duration
	CatalogTimeout    time.Duration
	ResultsTimeout    time.Duration

	ResultsTableSelector  string
	ApproverFieldSelector string

	DiagnosticsDir  string
	OutputDir       string
	SummaryXLSX     bool
	MetricsTextfile string
	StrictReconcile bool
	ExternalColumn  string
	Credentials     string
}

func Default() Config {
	return Config{
		Driver:         DriverPlaywright,
		Headless:       true,
		BrowserTimeout: 30 * time.Second,
		Targets: map[string]Target{
			"test": {Domain: "curation-test.clinicalgenome.org", LoginButtonSelector: ".link~ .link+ .link span"},
			"prod": {Domain: "curation.clinicalgenome.org", LoginButtonSelector: ".link+ .link span"},
		},
		AffiliationID:         "10029",
		AffiliationName:       "Broad Institute Rare Disease Group",
		Approver:              "Samantha Baxter",
		SettleDelay:           7 * time.Second,
		ReadySelector:         ".view-summary",
		ReadyTimeout:          30 * time.Second,
		ControlSelector:       ".btn",
		ControlRetries:        5,
		ControlInterval:       time.Second,
		ControlBackoff:        1.0,
		FormTimeout:           30 * time.Second,
		NavigationTimeout:     30 * time.Second,
		CatalogTimeout:        40 * time.Second,
		ResultsTimeout:        10 * time.Second,
		ResultsTableSelector:  ".clinvar-submission-data table",
		ApproverFieldSelector: ".form-control",
		DiagnosticsDir:        "variants",
		OutputDir:             ".",
		ExternalColumn:        "Variant",
		Credentials:           "credentials.json",
	}
}

type fileTarget struct {
	Domain              string `toml:"domain"`
	LoginButtonSelector string `toml:"login_button_selector"`
}

type fileConfig struct {
	Driver                string                `toml:"driver"`
	Headless              bool                  `toml:"headless"`
	BrowserTimeout        string                `toml:"browser_timeout"`
	BrowserPath           string                `toml:"browser_path"`
	Targets               map[string]fileTarget `toml:"targets"`
	AffiliationID         string                `toml:"affiliation_id"`
	AffiliationName       string                `toml:"affiliation_name"`
	Approver              string                `toml:"approver"`
	SettleDelay           string                `toml:"settle_delay"`
	ReadySelector         string                `toml:"ready_selector"`
	ReadyTimeout          string                `toml:"ready_timeout"`
	ControlSelector       string                `toml:"control_selector"`
	ControlRetries        int                   `toml:"control_retries"`
	ControlInterval       string                `toml:"control_interval"`
	ControlBackoff        float64               `toml:"control_backoff"`
	FormTimeout           string                `toml:"form_timeout"`
	NavigationTimeout     string                `toml:"navigation_timeout"`
	CatalogTimeout        string                `toml:"catalog_timeout"`
	ResultsTimeout        string                `toml:"results_timeout"`
	ResultsTableSelector  string                `toml:"results_table_selector"`
	ApproverFieldSelector string                `toml:"approver_field_selector"`
	DiagnosticsDir        string                `toml:"diagnostics_dir"`
	OutputDir             string                `toml:"output_dir"`
	SummaryXLSX           bool                  `toml:"summary_xlsx"`
	MetricsTextfile       string                `toml:"metrics_textfile"`
	StrictReconcile       bool                  `toml:"strict_reconcile"`
	ExternalColumn        string                `toml:"external_column"`
	Credentials           string                `toml:"credentials"`
}

// Load overlays the keys defined in path onto Default and validates the
// result.
func Load(path string) (Config, error) {
	cfg := Default()

	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return Config{}, fmt.Errorf("load config %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return Config{}, fmt.Errorf("%w: unknown key %q in %s", ErrInvalidConfig, undecoded[0].String(), path)
	}

	setString := func(key, v string, dst *string) {
		if meta.IsDefined(key) {
			*dst = strings.TrimSpace(v)
		}
	}
	durations := []struct {
		key string
		raw string
		dst *time.Duration
	}{
		{"browser_timeout", raw.BrowserTimeout, &cfg.BrowserTimeout},
		{"settle_delay", raw.SettleDelay, &cfg.SettleDelay},
		{"ready_timeout", raw.ReadyTimeout, &cfg.ReadyTimeout},
		{"control_interval", raw.ControlInterval, &cfg.ControlInterval},
		{"form_timeout", raw.FormTimeout, &cfg.FormTimeout},
		{"navigation_timeout", raw.NavigationTimeout, &cfg.NavigationTimeout},
		{"catalog_timeout", raw.CatalogTimeout, &cfg.CatalogTimeout},
		{"results_timeout", raw.ResultsTimeout, &cfg.ResultsTimeout},
	}
	for _, d := range durations {
		if !meta.IsDefined(d.key) {
			continue
		}
		parsed, err := time.ParseDuration(strings.TrimSpace(d.raw))
		if err != nil {
			return Config{}, fmt.Errorf("parse %s: %w", d.key, err)
		}
		*d.dst = parsed
	}

	setString("driver", raw.Driver, &cfg.Driver)
	setString("browser_path", raw.BrowserPath, &cfg.BrowserPath)
	setString("affiliation_id", raw.AffiliationID, &cfg.AffiliationID)
	setString("affiliation_name", raw.AffiliationName, &cfg.AffiliationName)
	// The approver is matched against an option label, so keep it verbatim.
	if meta.IsDefined("approver") {
		cfg.Approver = raw.Approver
	}
	setString("ready_selector", raw.ReadySelector, &cfg.ReadySelector)
	setString("control_selector", raw.ControlSelector, &cfg.ControlSelector)
	setString("results_table_selector", raw.ResultsTableSelector, &cfg.ResultsTableSelector)
	setString("approver_field_selector", raw.ApproverFieldSelector, &cfg.ApproverFieldSelector)
	setString("diagnostics_dir", raw.DiagnosticsDir, &cfg.DiagnosticsDir)
	setString("output_dir", raw.OutputDir, &cfg.OutputDir)
	setString("metrics_textfile", raw.MetricsTextfile, &cfg.MetricsTextfile)
	setString("external_column", raw.ExternalColumn, &cfg.ExternalColumn)
	setString("credentials", raw.Credentials, &cfg.Credentials)

	if meta.IsDefined("headless") {
		cfg.Headless = raw.Headless
	}
	if meta.IsDefined("control_retries") {
		cfg.ControlRetries = raw.ControlRetries
	}
	if meta.IsDefined("control_backoff") {
		cfg.ControlBackoff = raw.ControlBackoff
	}
	if meta.IsDefined("summary_xlsx") {
		cfg.SummaryXLSX = raw.SummaryXLSX
	}
	if meta.IsDefined("strict_reconcile") {
		cfg.StrictReconcile = raw.StrictReconcile
	}

	for name, t := range raw.Targets {
		name = strings.ToLower(strings.TrimSpace(name))
		merged := cfg.Targets[name]
		if t.Domain != "" {
			merged.Domain = strings.TrimSpace(t.Domain)
		}
		if t.LoginButtonSelector != "" {
			merged.LoginButtonSelector = strings.TrimSpace(t.LoginButtonSelector)
		}
		cfg.Targets[name] = merged
	}

	if err := Validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func Validate(cfg Config) error {
	switch cfg.Driver {
	case DriverPlaywright, DriverRod, DriverChromedp:
	default:
		return fmt.Errorf("%w: driver %q (want playwright|rod|chromedp)", ErrInvalidConfig, cfg.Driver)
	}
	for _, name := range []string{"test", "prod"} {
		t, ok := cfg.Targets[name]
		if !ok || t.Domain == "" || t.LoginButtonSelector == "" {
			return fmt.Errorf("%w: target %q needs domain and login_button_selector", ErrInvalidConfig, name)
		}
	}
	if cfg.ControlRetries < 1 {
		return fmt.Errorf("%w: control_retries must be >= 1", ErrInvalidConfig)
	}
	if cfg.ControlBackoff < 1.0 {
		return fmt.Errorf("%w: control_backoff must be >= 1.0", ErrInvalidConfig)
	}
	for name, d := range map[string]time.Duration{
		"settle_delay":     cfg.SettleDelay,
		"control_interval": cfg.ControlInterval,
	} {
		if d < 0 {
			return fmt.Errorf("%w: %s is negative", ErrInvalidConfig, name)
		}
	}
	required := map[string]string{
		"control_selector":        cfg.ControlSelector,
		"results_table_selector":  cfg.ResultsTableSelector,
		"approver_field_selector": cfg.ApproverFieldSelector,
		"approver":                cfg.Approver,
		"external_column":         cfg.ExternalColumn,
	}
	for key, v := range required {
		if strings.TrimSpace(v) == "" {
			return fmt.Errorf("%w: %s is required", ErrInvalidConfig, key)
		}
	}
	return nil
}
