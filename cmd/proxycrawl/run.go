package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/nao1215/proxycrawl/internal/config"
	"github.com/nao1215/proxycrawl/internal/crawler"
	"github.com/nao1215/proxycrawl/internal/database"
	plog "github.com/nao1215/proxycrawl/internal/log"
	"github.com/nao1215/proxycrawl/internal/metrics"
	"github.com/nao1215/proxycrawl/internal/model"
	"github.com/nao1215/proxycrawl/internal/pipeline"
	"github.com/nao1215/proxycrawl/internal/proxy"
	"github.com/nao1215/proxycrawl/internal/report"
)

// NewRunCmd creates the run command.
func NewRunCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run [seed-file]",
		Short: "Crawl seeds through a proxy and compare against direct loads",
		Long: `Run visits every seed through the proxy under test and directly, follows
up to --branch-factor links of each seed page, and compares the rendered
page height of every proxied page with its direct counterpart.

A page whose height differs by more than --error-tolerance percent is
reported as a regression. Navigation timeouts are recorded per seed and
never stop the run.

Examples:
  # Crawl sites.txt through a local rewriting proxy
  proxycrawl run --proxy http://127.0.0.1:8080 sites.txt

  # Follow 3 links per seed, four workers, JSON report to a file
  proxycrawl run -p http://127.0.0.1:8080 -b 3 --shards 4 --json -o out/run.json

  # Route the proxied browser through a SOCKS5 forward proxy
  proxycrawl run -p http://127.0.0.1:8080 --upstream 127.0.0.1:1080

  # Crawl without a proxy to baseline the sites themselves
  proxycrawl run sites.txt

Configuration file (.proxycrawl) example:
  defaults:
    errorTolerance: 10
  sites:
    example.com:
      branchFactor: 2
      timeout: 30s
  ignorePatterns:
    - "/logout*"`,
		Args: cobra.MaximumNArgs(1),
		RunE: runRunCmd,
	}

	// Crawl behavior flags
	cmd.Flags().IntP("branch-factor", "b", config.DefaultBranchFactor,
		"Maximum number of links followed from each seed page")
	cmd.Flags().DurationP("timeout", "t", config.DefaultTimeout,
		"Timeout of each navigation (visit, click or back)")
	cmd.Flags().Duration("css-load-time", config.DefaultCSSLoadTime,
		"Grace period after every load before page geometry is read")
	cmd.Flags().StringP("urls", "u", config.DefaultSeedFile,
		"Seed file with one hostname per line")
	cmd.Flags().DurationP("wait-time", "w", config.DefaultWaitTime,
		"Mean of the jittered pause between crawl steps")
	cmd.Flags().Float64P("error-tolerance", "e", config.DefaultErrorTolerance,
		"Tolerated page height deviation in percent")
	cmd.Flags().Float64("rate", 0,
		"Maximum navigations per second per worker (0 disables the limit)")

	// Proxy flags
	cmd.Flags().StringP("proxy", "p", "",
		"URL prefix of the proxy under test (e.g., http://127.0.0.1:8080)")
	cmd.Flags().String("upstream", "",
		"SOCKS5 forward proxy for the proxied browser (e.g., 127.0.0.1:1080)")

	// Browser flags
	cmd.Flags().String("engine", config.DefaultEngine,
		"Browser engine: chromedp or playwright")
	cmd.Flags().Bool("headless", true,
		"Run browsers without a window")
	cmd.Flags().Int("shards", config.DefaultShards,
		"Number of independent workers, each with its own browsers")

	// Worker flags
	cmd.Flags().String("id", "",
		"Worker ID used in logs and the database (default: random)")
	cmd.Flags().String("log-dir", config.DefaultLogDir,
		"Directory of the worker-<id>.log file")
	cmd.Flags().String("metrics-addr", "",
		"Serve Prometheus metrics on this address (e.g., :9090)")

	// Configuration file
	cmd.Flags().StringP("config", "c", "",
		"Configuration file path (default: .proxycrawl in current or home directory)")

	// Report flags
	cmd.Flags().BoolP("json", "j", false,
		"Output JSON report (mutually exclusive with --markdown)")
	cmd.Flags().BoolP("markdown", "m", false,
		"Output Markdown report (mutually exclusive with --json)")
	cmd.Flags().StringP("output", "o", "",
		"Write report to specified file path (creates directories if needed)")
	cmd.Flags().Bool("no-db", false,
		"Do not save the run to the history database")
	addDBDirFlag(cmd)

	return cmd
}

// runRunCmd executes the run command.
func runRunCmd(cmd *cobra.Command, args []string) error {
	cfg, err := buildConfig(cmd, args)
	if err != nil {
		return err
	}

	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	logFile, err := plog.OpenWorkerLog(cfg.LogDir, cfg.WorkerID)
	if err != nil {
		return err
	}
	defer logFile.Close()

	logger := plog.NewWorkerLogger(io.MultiWriter(cmd.ErrOrStderr(), logFile), cfg.WorkerID, cfg.Verbose)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	return runCrawl(ctx, cfg, logger, cmd.OutOrStdout())
}

// getVerboseFlag retrieves the verbose flag from the command or its parent.
func getVerboseFlag(cmd *cobra.Command) bool {
	verbose, err := cmd.Flags().GetBool("verbose")
	if err != nil {
		verbose, err = cmd.Root().PersistentFlags().GetBool("verbose")
		if err != nil {
			return false
		}
	}
	return verbose
}

// buildConfig creates a Config from cobra command flags, the config file
// and the seed file.
func buildConfig(cmd *cobra.Command, args []string) (*config.Config, error) {
	cfg := config.NewConfig()
	flags := cmd.Flags()

	var err error
	if cfg.BranchFactor, err = flags.GetInt("branch-factor"); err != nil {
		return nil, err
	}
	if cfg.Timeout, err = flags.GetDuration("timeout"); err != nil {
		return nil, err
	}
	if cfg.CSSLoadTime, err = flags.GetDuration("css-load-time"); err != nil {
		return nil, err
	}
	if cfg.SeedFile, err = flags.GetString("urls"); err != nil {
		return nil, err
	}
	if len(args) > 0 {
		cfg.SeedFile = args[0]
	}
	if cfg.WaitTime, err = flags.GetDuration("wait-time"); err != nil {
		return nil, err
	}
	if cfg.ErrorTolerance, err = flags.GetFloat64("error-tolerance"); err != nil {
		return nil, err
	}
	if cfg.NavigationRate, err = flags.GetFloat64("rate"); err != nil {
		return nil, err
	}
	if cfg.ProxyBase, err = flags.GetString("proxy"); err != nil {
		return nil, err
	}
	// Seeds are joined to the base with exactly one "/".
	cfg.ProxyBase = strings.TrimRight(cfg.ProxyBase, "/")
	if cfg.UpstreamProxy, err = flags.GetString("upstream"); err != nil {
		return nil, err
	}
	if cfg.Engine, err = flags.GetString("engine"); err != nil {
		return nil, err
	}
	if cfg.Headless, err = flags.GetBool("headless"); err != nil {
		return nil, err
	}
	if cfg.Shards, err = flags.GetInt("shards"); err != nil {
		return nil, err
	}
	if cfg.WorkerID, err = flags.GetString("id"); err != nil {
		return nil, err
	}
	if cfg.WorkerID == "" {
		cfg.WorkerID = config.NewWorkerID()
	}
	if cfg.LogDir, err = flags.GetString("log-dir"); err != nil {
		return nil, err
	}
	if cfg.MetricsAddr, err = flags.GetString("metrics-addr"); err != nil {
		return nil, err
	}
	if cfg.ConfigFilePath, err = flags.GetString("config"); err != nil {
		return nil, err
	}
	if cfg.JSONReport, err = flags.GetBool("json"); err != nil {
		return nil, err
	}
	if cfg.MarkdownReport, err = flags.GetBool("markdown"); err != nil {
		return nil, err
	}
	if cfg.ReportFile, err = flags.GetString("output"); err != nil {
		return nil, err
	}
	noDB, err := flags.GetBool("no-db")
	if err != nil {
		return nil, err
	}
	cfg.SaveToDB = !noDB
	if cfg.DBDir, err = flags.GetString("db-dir"); err != nil {
		return nil, err
	}
	cfg.Verbose = getVerboseFlag(cmd)

	if cfg.SiteConfigs, err = loadSiteConfigs(cfg.ConfigFilePath); err != nil {
		return nil, err
	}

	seeds, err := crawler.LoadSeedFile(cfg.SeedFile)
	if err != nil {
		return nil, err
	}
	cfg.Seeds = seeds

	return cfg, nil
}

// loadSiteConfigs loads the config file. An explicitly given path must
// exist; otherwise a missing file means no overrides.
func loadSiteConfigs(explicitPath string) (*config.File, error) {
	path := config.FindConfigFile(explicitPath)
	if path == "" {
		if explicitPath != "" {
			return nil, fmt.Errorf("%w: %s", config.ErrConfigNotFound, explicitPath)
		}
		return &config.File{Sites: make(map[string]config.SiteConfig)}, nil
	}

	cf, err := config.LoadConfigFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file %s: %w", path, err)
	}
	return cf, nil
}

// runCrawl executes a run: preflight, sharded crawl, then persistence and
// report output.
func runCrawl(ctx context.Context, cfg *config.Config, logger *slog.Logger, stdout io.Writer) error {
	logger.Info("starting run",
		"seeds", len(cfg.Seeds),
		"proxy", cfg.ProxyBase,
		"engine", cfg.Engine,
		"shards", cfg.Shards,
		"branch_factor", cfg.BranchFactor,
	)

	var g errgroup.Group
	metricsCtx, stopMetrics := context.WithCancel(ctx)
	defer func() {
		stopMetrics()
		if err := g.Wait(); err != nil {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	if cfg.MetricsAddr != "" {
		g.Go(func() error {
			return metrics.Serve(metricsCtx, cfg.MetricsAddr, logger)
		})
	}

	var upstream *proxy.Upstream
	if cfg.UpstreamProxy != "" {
		var err error
		upstream, err = proxy.NewUpstream(cfg.UpstreamProxy)
		if err != nil {
			return err
		}
	}

	preflight := pipeline.New(pipeline.WithLogger(logger))
	preflight.AddStep(pipeline.NewPreflightStep(cfg.ProxyBase,
		pipeline.WithUpstream(upstream),
		pipeline.WithPreflightLogger(logger),
	))
	if err := preflight.Execute(ctx, model.NewRunReport(cfg.WorkerID, cfg.ProxyBase)); err != nil {
		return fmt.Errorf("preflight failed: %w", err)
	}

	upstreamURL := ""
	if upstream != nil {
		upstreamURL = upstream.ServerURL()
	}
	sessions := pipeline.EngineSessionFactory(cfg, upstreamURL, logger)

	var ignore, follow []string
	if cfg.SiteConfigs != nil {
		ignore, follow = cfg.SiteConfigs.IgnorePatterns, cfg.SiteConfigs.FollowPatterns
	}

	shards := crawler.Shard(cfg.Seeds, cfg.Shards)
	bp := pipeline.NewBatchProcessor(
		func(shard int, seeds []string) *pipeline.Pipeline {
			shardLogger := logger.With("shard", shard)
			p := pipeline.New(pipeline.WithLogger(shardLogger))
			p.AddStep(pipeline.NewCrawlStep(cfg, sessions, seeds,
				pipeline.WithCrawlShard(shard),
				pipeline.WithCrawlLogger(shardLogger),
				pipeline.WithCrawlIgnorePatterns(ignore),
				pipeline.WithCrawlFollowPatterns(follow),
			))
			return p
		},
		pipeline.WithConcurrency(len(shards)),
		pipeline.WithBatchLogger(logger),
		pipeline.WithRunIdentity(cfg.WorkerID, cfg.ProxyBase),
	)

	startTime := time.Now()
	reports, crawlErr := bp.ProcessShards(ctx, shards)
	run := model.MergeRunReports(cfg.WorkerID, cfg.ProxyBase, reports)
	if run.Engine == "" {
		run.Engine = cfg.Engine
	}
	logger.Info("crawl finished", "run", run.ID, "elapsed", time.Since(startTime).Round(time.Millisecond))

	if err := finishRun(ctx, cfg, run, logger, stdout); err != nil {
		return err
	}

	if crawlErr != nil {
		return fmt.Errorf("run %s interrupted: %w", run.ID, crawlErr)
	}
	return nil
}

// finishRun saves the run and writes its report. Both steps run even if
// one fails.
func finishRun(ctx context.Context, cfg *config.Config, run *model.RunReport, logger *slog.Logger, stdout io.Writer) error {
	output, closeOutput, err := openReportOutput(cfg.ReportFile, stdout)
	if err != nil {
		return err
	}
	defer closeOutput()

	finish := pipeline.New(pipeline.WithLogger(logger), pipeline.WithContinueOnError(true))

	if cfg.SaveToDB {
		db, err := database.Open(cfg.DBDir, database.DefaultOptions())
		if err != nil {
			logger.Error("failed to open database", "dir", cfg.DBDir, "error", err)
		} else {
			defer db.Close()
			finish.AddStep(pipeline.NewPersistStep(db, logger))
		}
	}
	w := newReportWriter(cfg, output, cfg.Verbose)
	if cfg.ReportFile != "" && (cfg.JSONReport || cfg.MarkdownReport) {
		// A structured report goes to the file; the terminal still gets the summary.
		w = report.NewMultiWriter(w, report.NewSimpleWriter(stdout))
	}
	finish.AddStep(pipeline.NewReportStep(w))

	// The interrupted run still gets saved and written, so cancellation is
	// not propagated to the finishing steps.
	before := run.ErrorMessage
	_ = finish.Execute(context.WithoutCancel(ctx), run) //nolint:errcheck // continueOnError records step errors on the run
	if run.ErrorMessage != before {
		return run.Error
	}
	return nil
}

// newReportWriter picks the report format from the config.
func newReportWriter(cfg *config.Config, output io.Writer, verbose bool) report.Writer {
	switch {
	case cfg.JSONReport:
		return report.NewFullJSONWriter(output, getVersion(), report.WithPrettyPrint())
	case cfg.MarkdownReport:
		return report.NewMarkdownWriter(output)
	default:
		return report.NewSimpleWriter(output, report.WithVerbose(verbose))
	}
}

// openReportOutput returns the report destination: path, created with
// owner-only permissions, or stdout when path is empty.
func openReportOutput(path string, stdout io.Writer) (io.Writer, func(), error) {
	if path == "" {
		return stdout, func() {}, nil
	}

	dir := filepath.Dir(path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0750); err != nil {
			return nil, nil, fmt.Errorf("failed to create output directory: %w", err)
		}
	}

	// Reports list every crawled URL, so only the owner may read them.
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0600) //nolint:gosec // user-provided output path
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, func() { _ = f.Close() }, nil //nolint:errcheck // written data was already flushed by Write
}
