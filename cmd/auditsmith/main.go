package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/amosWeiskopf/auditsmith/internal/config"
	"github.com/amosWeiskopf/auditsmith/internal/models"
	"github.com/amosWeiskopf/auditsmith/pkg/aggregator"
	"github.com/amosWeiskopf/auditsmith/pkg/checker"
	"github.com/amosWeiskopf/auditsmith/pkg/gateway"
	"github.com/amosWeiskopf/auditsmith/pkg/pipeline"
	"github.com/amosWeiskopf/auditsmith/pkg/reporter"
	"github.com/amosWeiskopf/auditsmith/pkg/sitemap"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

var rootCmd = &cobra.Command{
	Use:   "auditsmith",
	Short: "AuditSmith - Technical Site Audit Engine",
	Long: `AuditSmith runs technical SEO audits: it discovers pages from a
site's sitemap and checks each one for structural issues, Core Web Vitals
performance, and AI-crawler accessibility, under a shared upstream rate
budget.`,
	Version: fmt.Sprintf("%s (commit: %s, built: %s)", version, commit, date),
}

var auditCmd = &cobra.Command{
	Use:   "audit [URL]",
	Short: "Audit a website and print the summary report",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		targetURL := args[0]
		mode, _ := cmd.Flags().GetString("mode")
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")
		xlsxPath, _ := cmd.Flags().GetString("xlsx")

		if mode != string(models.ModeSingle) && mode != string(models.ModeFull) {
			return fmt.Errorf("invalid mode %q: must be single or full", mode)
		}

		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()
		sugar := logger.Sugar()

		agg := buildAggregator(cfg, sugar)
		req := models.NewAuditRequest(targetURL, models.Mode(mode))
		sugar.Infow("starting audit", "request", req.ID, "target", targetURL, "mode", mode)

		summary, err := agg.Run(cmd.Context(), req)
		if err != nil {
			return fmt.Errorf("audit failed: %w", err)
		}

		r := reporter.New()
		rendered, err := r.Render(summary, format)
		if err != nil {
			return err
		}
		if output != "" {
			if err := os.WriteFile(output, []byte(rendered), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("Report saved to %s\n", output)
		} else {
			fmt.Println(rendered)
		}
		if xlsxPath != "" {
			if err := r.WriteXLSX(summary, xlsxPath); err != nil {
				return fmt.Errorf("failed to write workbook: %w", err)
			}
			fmt.Printf("Workbook saved to %s\n", xlsxPath)
		}
		return nil
	},
}

var planCmd = &cobra.Command{
	Use:   "plan [URL]",
	Short: "Resolve and print the crawl plan for a site",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, logger, err := setup(cmd)
		if err != nil {
			return err
		}
		defer logger.Sync()

		planner := sitemap.NewPlanner(sitemap.Options{
			PageCap:           cfg.Audit.PageCap,
			PriorityPaths:     cfg.Audit.PriorityPaths,
			FetchTimeout:      cfg.Sitemap.FetchTimeout,
			RequestsPerSecond: cfg.Sitemap.RequestsPerSecond,
			UserAgent:         cfg.Checker.UserAgent,
		}, logger.Sugar())

		plan, err := planner.Plan(cmd.Context(), args[0], models.ModeFull)
		if err != nil {
			return err
		}
		if plan.DegradedToSingle {
			fmt.Println("No sitemap found; plan degraded to the target page only.")
		}
		for _, u := range plan.URLs {
			fmt.Println(u)
		}
		return nil
	},
}

var reportCmd = &cobra.Command{
	Use:   "report [SUMMARY.json]",
	Short: "Render a saved audit summary in another format",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, _ := cmd.Flags().GetString("format")
		output, _ := cmd.Flags().GetString("output")

		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read summary: %w", err)
		}
		var summary models.SiteAuditSummary
		if err := json.Unmarshal(data, &summary); err != nil {
			return fmt.Errorf("failed to parse summary: %w", err)
		}

		rendered, err := reporter.New().Render(&summary, format)
		if err != nil {
			return err
		}
		if output != "" {
			if err := os.WriteFile(output, []byte(rendered), 0644); err != nil {
				return fmt.Errorf("failed to write report: %w", err)
			}
			fmt.Printf("Report saved to %s\n", output)
		} else {
			fmt.Println(rendered)
		}
		return nil
	},
}

// setup loads config and builds the logger shared by all commands.
func setup(cmd *cobra.Command) (*config.Config, *zap.Logger, error) {
	configPath, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, nil, fmt.Errorf("invalid config: %w", err)
	}

	logger, err := newLogger(cfg.Logging)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize logger: %w", err)
	}
	return cfg, logger, nil
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var zcfg zap.Config
	if cfg.Format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	if level, err := zap.ParseAtomicLevel(cfg.Level); err == nil {
		zcfg.Level = level
	}
	return zcfg.Build()
}

// buildAggregator wires the audit stack: checker behind the shared rate
// gateway, the per-page pipeline, the sitemap planner, and the bounded
// fan-out aggregator.
func buildAggregator(cfg *config.Config, sugar *zap.SugaredLogger) *aggregator.Aggregator {
	gw := gateway.New(cfg.Gateway.MaxRequestsPerMinute, sugar)

	var pc checker.PageChecker
	if cfg.Checker.Mode == "remote" {
		pc = checker.NewClient(checker.ClientOptions{
			Endpoint:  cfg.Checker.Endpoint,
			Login:     cfg.Checker.Login,
			Password:  cfg.Checker.Password,
			UserAgent: cfg.Checker.UserAgent,
		})
	} else {
		pc = checker.NewLocal(cfg.Checker.UserAgent, sugar)
	}

	pipe := pipeline.New(pc, gw, pipeline.Options{
		CheckTimeout:       cfg.Audit.CheckTimeout,
		PerformanceTimeout: cfg.Audit.PerformanceTimeout,
	}, sugar)

	planner := sitemap.NewPlanner(sitemap.Options{
		PageCap:           cfg.Audit.PageCap,
		PriorityPaths:     cfg.Audit.PriorityPaths,
		FetchTimeout:      cfg.Sitemap.FetchTimeout,
		RequestsPerSecond: cfg.Sitemap.RequestsPerSecond,
		UserAgent:         cfg.Checker.UserAgent,
	}, sugar)

	return aggregator.New(planner, pipe, cfg.Audit.Concurrency, sugar)
}

func init() {
	// Audit command flags
	auditCmd.Flags().String("mode", "full", "Audit mode (single, full)")
	auditCmd.Flags().String("format", "json", "Report format (json, html, markdown)")
	auditCmd.Flags().String("output", "", "Output file for the report")
	auditCmd.Flags().String("xlsx", "", "Also write an Excel workbook to this path")

	// Report command flags
	reportCmd.Flags().String("format", "markdown", "Report format (json, html, markdown)")
	reportCmd.Flags().String("output", "", "Output file for the report")

	// Add commands to root
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(planCmd)
	rootCmd.AddCommand(reportCmd)

	// Global flags
	rootCmd.PersistentFlags().String("config", "", "Config file path")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
