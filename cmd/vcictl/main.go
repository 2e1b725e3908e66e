package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"io/fs"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/danmuck/vcictl/internal/batch"
	"github.com/danmuck/vcictl/internal/catalog"
	"github.com/danmuck/vcictl/internal/config"
	"github.com/danmuck/vcictl/internal/logging"
	"github.com/danmuck/vcictl/internal/observability"
	"github.com/danmuck/vcictl/internal/reconcile"
	"github.com/danmuck/vcictl/internal/records"
	"github.com/danmuck/vcictl/internal/report"
	"github.com/danmuck/vcictl/internal/session"
	"github.com/danmuck/vcictl/internal/sink"
	"github.com/danmuck/vcictl/internal/workflow"
	"github.com/rs/zerolog/log"
)

const (
	exitOK      = 0
	exitError   = 1
	exitUsage   = 2
	exitFailure = 3

	defaultConfigPath = "config.toml"
	aggregatePrefix   = "clinvar"
	resultFile        = "clinvar.tsv"
)

var errUsage = errors.New("usage")

type cliOptions struct {
	Workflow     workflow.Kind
	VariantFile  string
	DryRun       bool
	Prod         bool
	ConfigPath   string
	ConfigForced bool
	Credentials  string
	Strict       bool
	FailOnError  bool
}

func main() {
	logging.ConfigureRuntime()
	observability.InitLogger("vcictl")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	code := run(ctx, os.Args[1:], os.Stdout, os.Stderr)
	stop()
	os.Exit(code)
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) int {
	opts, err := parseArgs(args, stderr)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return exitOK
		}
		fmt.Fprintf(stderr, "vcictl: %v\n", err)
		return exitUsage
	}

	summary, err := execute(ctx, opts, stdout)
	if err != nil {
		log.Error().Err(err).Msg("vcictl aborted before the batch completed")
		return exitError
	}
	if opts.FailOnError && summary.HasFailures() {
		return exitFailure
	}
	return exitOK
}

// parseArgs accepts the workflow either before or after the flags.
func parseArgs(args []string, stderr io.Writer) (cliOptions, error) {
	var opts cliOptions
	flags := flag.NewFlagSet("vcictl", flag.ContinueOnError)
	flags.SetOutput(stderr)
	flags.Usage = func() {
		fmt.Fprintln(flags.Output(), "usage: vcictl [flags] approve|extract")
		flags.PrintDefaults()
	}
	flags.StringVar(&opts.VariantFile, "variant-file", "", "external record list (.csv, .tsv, .xlsx) to reconcile against")
	flags.BoolVar(&opts.DryRun, "dry-run", false, "log the work list without touching any record")
	flags.BoolVar(&opts.Prod, "prod", false, "target the production portal instead of test")
	flags.StringVar(&opts.ConfigPath, "config", defaultConfigPath, "run config (TOML)")
	flags.StringVar(&opts.Credentials, "credentials", "", "credentials file (JSON or YAML); overrides the config")
	flags.BoolVar(&opts.Strict, "strict", false, "abort when the catalog and the variant file disagree")
	flags.BoolVar(&opts.FailOnError, "fail-on-error", false, "exit 3 when any record fails")

	if err := flags.Parse(args); err != nil {
		return cliOptions{}, err
	}
	rest := flags.Args()
	if len(rest) == 0 {
		flags.Usage()
		return cliOptions{}, fmt.Errorf("%w: missing workflow (approve|extract)", errUsage)
	}
	kind, err := workflow.ParseKind(rest[0])
	if err != nil {
		return cliOptions{}, fmt.Errorf("%w: %v", errUsage, err)
	}
	if err := flags.Parse(rest[1:]); err != nil {
		return cliOptions{}, err
	}
	if flags.NArg() > 0 {
		return cliOptions{}, fmt.Errorf("%w: unexpected arguments %v", errUsage, flags.Args())
	}
	opts.Workflow = kind
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			opts.ConfigForced = true
		}
	})
	return opts, nil
}

// loadConfig falls back to the built-in defaults only when the default path
// is absent; an explicit -config must exist.
func loadConfig(opts cliOptions) (config.Config, error) {
	cfg, err := config.Load(opts.ConfigPath)
	if err == nil {
		return cfg, nil
	}
	if !opts.ConfigForced && errors.Is(err, fs.ErrNotExist) {
		log.Warn().Str("path", opts.ConfigPath).Msg("vcictl config not found, using defaults")
		return config.Default(), nil
	}
	return config.Config{}, err
}

// execute runs the whole pipeline. Errors returned here happened before or
// around the batch; per-record failures live in the summary.
func execute(ctx context.Context, opts cliOptions, stdout io.Writer) (batch.Summary, error) {
	cfg, err := loadConfig(opts)
	if err != nil {
		return batch.Summary{}, err
	}
	credPath := cfg.Credentials
	if opts.Credentials != "" {
		credPath = opts.Credentials
	}
	creds, err := config.LoadCredentials(credPath)
	if err != nil {
		return batch.Summary{}, err
	}
	targetName := session.TargetTest
	if opts.Prod {
		targetName = session.TargetProd
	}
	target, err := cfg.SessionTarget(targetName)
	if err != nil {
		return batch.Summary{}, err
	}
	def, err := workflow.For(opts.Workflow, cfg.WorkflowSettings())
	if err != nil {
		return batch.Summary{}, err
	}
	var external *records.Set
	if opts.VariantFile != "" {
		external, err = records.Load(opts.VariantFile, cfg.ExternalColumn)
		if err != nil {
			return batch.Summary{}, err
		}
	}
	observability.RegisterMetrics()

	driver, err := launchDriver(cfg)
	if err != nil {
		return batch.Summary{}, fmt.Errorf("launch %s driver: %w", cfg.Driver, err)
	}
	defer func() {
		if err := driver.Close(); err != nil {
			log.Warn().Err(err).Msg("vcictl driver close failed")
		}
	}()

	if err := session.Open(ctx, driver, cfg.SessionOptions(target, creds)); err != nil {
		return batch.Summary{}, err
	}
	cat, err := catalog.List(ctx, driver, cfg.CatalogOptions(), def.Statuses)
	if err != nil {
		return batch.Summary{}, err
	}
	rep := reconcile.Reconcile(cat, external)
	if err := reconcile.Check(rep, opts.Strict || cfg.StrictReconcile); err != nil {
		return batch.Summary{}, err
	}

	var out batch.Appender
	if def.Scrape != nil && !opts.DryRun {
		agg, err := sink.OpenAggregate(sink.AggregatePath(cfg.OutputDir, aggregatePrefix, time.Now()))
		if err != nil {
			return batch.Summary{}, err
		}
		defer func() {
			if err := agg.Close(); err != nil {
				log.Warn().Err(err).Str("path", agg.Path()).Msg("vcictl aggregate close failed")
			}
		}()
		out = agg
	}

	seq := workflow.NewSequencer(driver, cfg.SequencerOptions())
	runner := batch.NewRunner(seq, def, out, batch.Options{
		DryRun:         opts.DryRun,
		DiagnosticsDir: cfg.DiagnosticsDir,
		ResultFile:     resultFile,
	})
	summary := runner.Run(ctx, rep, cat)

	fmt.Fprintln(stdout, report.Render(summary))
	writeArtifacts(cfg, summary)
	return summary, nil
}

// writeArtifacts emits the optional run outputs. Failures are logged only;
// the batch itself already happened.
func writeArtifacts(cfg config.Config, summary batch.Summary) {
	if cfg.SummaryXLSX {
		name := fmt.Sprintf("vcictl-%s-%s.xlsx", summary.Workflow, summary.Started.Format("20060102T150405"))
		path := filepath.Join(cfg.OutputDir, name)
		err := os.MkdirAll(cfg.OutputDir, 0o755)
		if err == nil {
			err = report.WriteWorkbook(path, summary)
		}
		if err != nil {
			log.Warn().Err(err).Str("path", path).Msg("vcictl summary workbook failed")
		} else {
			log.Info().Str("path", path).Msg("vcictl summary workbook written")
		}
	}
	if cfg.MetricsTextfile != "" {
		if err := observability.WriteTextfile(cfg.MetricsTextfile); err != nil {
			log.Warn().Err(err).Str("path", cfg.MetricsTextfile).Msg("vcictl metrics textfile failed")
		}
	}
}
