package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"golang.org/x/sync/errgroup"
	"gopkg.in/yaml.v3"

	"github.com/mattjoyce/plantdata-gw/internal/analysis"
	"github.com/mattjoyce/plantdata-gw/internal/api"
	"github.com/mattjoyce/plantdata-gw/internal/config"
	"github.com/mattjoyce/plantdata-gw/internal/dispatch"
	"github.com/mattjoyce/plantdata-gw/internal/events"
	"github.com/mattjoyce/plantdata-gw/internal/ingest"
	"github.com/mattjoyce/plantdata-gw/internal/inspection"
	"github.com/mattjoyce/plantdata-gw/internal/lock"
	"github.com/mattjoyce/plantdata-gw/internal/log"
	"github.com/mattjoyce/plantdata-gw/internal/metrics"
	"github.com/mattjoyce/plantdata-gw/internal/storage"
	"github.com/mattjoyce/plantdata-gw/internal/timeseries"
	"github.com/mattjoyce/plantdata-gw/internal/webhook"
	"github.com/mattjoyce/plantdata-gw/internal/workflow"
)

const version = "0.1.0"

// defaultConfigPath is used when --config is absent.
const defaultConfigPath = "./config.yaml"

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	if len(args) < 1 {
		printUsage()
		return 1
	}

	cmd := args[0]
	rest := args[1:]

	switch cmd {
	case "system":
		return runSystemNoun(rest)
	case "config":
		return runConfigNoun(rest)
	case "inspection":
		return runInspectionNoun(rest)
	case "mapping":
		return runMappingNoun(rest)

	// Root alias.
	case "start":
		return runStart(rest)
	case "version":
		fmt.Printf("plantdata-gw version %s\n", version)
		return 0
	case "help", "--help", "-h":
		printUsage()
		return 0

	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n\n", cmd)
		printUsage()
		return 1
	}
}

func printUsage() {
	fmt.Print(`plantdata-gw - ISAR inspection event dispatch and analysis routing

Usage:
  plantdata-gw <noun> <action> [flags]

Core Resources (Nouns):
  system      Gateway lifecycle
  config      Configuration validation and integrity
  inspection  Recorded inspections
  mapping     Tag-analysis mapping rules

System Commands:
  system start              Start the gateway in the foreground

Config Commands:
  config check              Validate configuration and its lock
  config lock               Record the config hash in .checksums
  config get <path>         Read one resolved value (secrets masked)

Inspection Commands:
  inspection show <id>      Show the record for an inspection
  inspection list           Show the most recent records

Mapping Commands:
  mapping list              Show stored mapping rules

General:
  version                   Show version information
  help                      Show this help message

All commands accept --config PATH (default ./config.yaml).
`)
}

// --- NOUN DISPATCHERS ---

type action struct {
	help string
	run  func([]string) int
}

func runNoun(noun string, args []string, actions map[string]action, order []string) int {
	printHelp := func(w *os.File) {
		fmt.Fprintf(w, "Usage: plantdata-gw %s <action> [flags]\n", noun)
		fmt.Fprintf(w, "Actions: %s\n", strings.Join(order, ", "))
	}

	if len(args) < 1 {
		printHelp(os.Stderr)
		return 1
	}
	if isHelpToken(args[0]) {
		printHelp(os.Stdout)
		return 0
	}

	act, ok := actions[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "Unknown %s action: %s\n", noun, args[0])
		return 1
	}
	if hasHelpFlag(args[1:]) {
		fmt.Println(act.help)
		return 0
	}
	return act.run(args[1:])
}

func runSystemNoun(args []string) int {
	return runNoun("system", args, map[string]action{
		"start": {"Usage: plantdata-gw system start [--config PATH]\nStart the gateway in the foreground.", runStart},
	}, []string{"start"})
}

func runConfigNoun(args []string) int {
	return runNoun("config", args, map[string]action{
		"check": {"Usage: plantdata-gw config check [--config PATH] [--json]\nValidate configuration syntax, values and lock.", runConfigCheck},
		"lock":  {"Usage: plantdata-gw config lock [--config PATH] [-v|--verbose] [--dry-run]\nAuthorize the current config by recording its BLAKE3 hash.", runConfigLock},
		"get":   {"Usage: plantdata-gw config get <path> [--config PATH] [--json]\nRead a single value from the resolved configuration.", runConfigGet},
	}, []string{"check", "lock", "get"})
}

func runInspectionNoun(args []string) int {
	return runNoun("inspection", args, map[string]action{
		"show": {"Usage: plantdata-gw inspection show <inspection_id> [--config PATH] [--json]\nShow the durable record for an inspection.", runInspectionShow},
		"list": {"Usage: plantdata-gw inspection list [--config PATH] [--limit N] [--json]\nShow the most recent inspection records.", runInspectionList},
	}, []string{"show", "list"})
}

func runMappingNoun(args []string) int {
	return runNoun("mapping", args, map[string]action{
		"list": {"Usage: plantdata-gw mapping list [--config PATH] [--json]\nShow stored tag-analysis rules.", runMappingList},
	}, []string{"list"})
}

func isHelpToken(token string) bool {
	return token == "help" || token == "--help" || token == "-h"
}

func hasHelpFlag(args []string) bool {
	for _, arg := range args {
		if arg == "--help" || arg == "-h" {
			return true
		}
	}
	return false
}

// parseWithPositional accepts one positional argument either before or
// after the flags, as in 'inspection show <id> --json'.
func parseWithPositional(fs *flag.FlagSet, args []string) (string, error) {
	var positional string
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		positional, args = args[0], args[1:]
	}
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if positional == "" {
		positional = fs.Arg(0)
	}
	return positional, nil
}

func printJSON(v any) int {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		fmt.Fprintf(os.Stderr, "JSON encode error: %v\n", err)
		return 1
	}
	fmt.Println(string(data))
	return 0
}

// --- ACTION IMPLEMENTATIONS ---

func runStart(args []string) int {
	fs := flag.NewFlagSet("start", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		return 1
	}

	log.Setup(cfg.Service.LogLevel)
	logger := log.WithComponent("main")
	logger.Info("plantdata-gw starting", "version", version, "config", cfg.SourcePath)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := serve(ctx, cfg); err != nil {
		logger.Error("plantdata-gw failed", "error", err)
		return 1
	}
	logger.Info("plantdata-gw stopped")
	return 0
}

// serve wires every component and blocks until ctx ends or an ingress fails.
// Ingress stops first so in-flight publishes still reach the dispatcher, then
// the dispatcher is stopped and given shutdown_grace to finish handlers.
func serve(ctx context.Context, cfg *config.Config) error {
	logger := log.WithComponent("main")

	pidLockPath := lock.PathFor(cfg.State.Path)
	pidLock, err := lock.AcquirePIDLock(pidLockPath)
	if err != nil {
		return fmt.Errorf("acquire PID lock %s: %w", pidLockPath, err)
	}
	defer pidLock.Release()
	logger.Info("acquired PID lock", "path", pidLockPath)

	db, err := storage.OpenSQLite(ctx, cfg.State.Path)
	if err != nil {
		return fmt.Errorf("open state database: %w", err)
	}
	defer db.Close()
	logger.Info("database opened", "path", cfg.State.Path)

	records := inspection.NewStore(db)
	mappings := analysis.NewStore(db)
	if err := mappings.Seed(ctx, cfg.Analysis.Rules); err != nil {
		return fmt.Errorf("seed mapping rules: %w", err)
	}
	resolver, err := analysis.NewResolver(nil)
	if err != nil {
		return err
	}
	n, err := resolver.Refresh(ctx, mappings)
	if err != nil {
		return fmt.Errorf("load mapping rules: %w", err)
	}
	logger.Info("mapping rules loaded", "rules", n)

	tsdb, err := timeseries.Open(ctx, cfg.Timeseries.DSN)
	if err != nil {
		return err
	}
	defer tsdb.Close()
	forwarder, err := timeseries.NewForwarder(tsdb, cfg.Timeseries.Table)
	if err != nil {
		return err
	}
	if cfg.Timeseries.CreateTable {
		if err := forwarder.EnsureTable(ctx); err != nil {
			return err
		}
	}

	trigger := workflow.NewClient(cfg.Workflow.BaseURL, cfg.Workflow.Token, cfg.Workflow.Timeout)
	m := metrics.New()
	bus := events.NewBus(cfg.Dispatch.EventBuffer)

	disp := dispatch.New(bus, records, resolver, trigger, forwarder,
		dispatch.WithMetrics(m),
		dispatch.WithHandlerTimeout(cfg.Dispatch.HandlerTimeout),
		dispatch.WithStrictDedupe(cfg.Dispatch.StrictDedupe),
	)
	// The dispatcher outlives ctx so ingress can drain into it.
	if err := disp.Start(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer func() {
		disp.Stop()
		waitCtx, cancel := context.WithTimeout(context.Background(), cfg.Service.ShutdownGrace)
		defer cancel()
		if err := disp.Wait(waitCtx); err != nil {
			logger.Warn("in-flight handlers did not finish before shutdown grace", "grace", cfg.Service.ShutdownGrace)
		}
	}()

	// Build the HTTP ingress before any goroutine starts so a bad config
	// cannot leave the errgroup half running.
	var webhookServer *webhook.Server
	if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
		webhookConfig, err := webhook.FromGlobalConfig(cfg.Webhooks)
		if err != nil {
			return fmt.Errorf("configure webhooks: %w", err)
		}
		webhookServer = webhook.New(webhookConfig, bus, log.WithComponent("webhook"), m)
	}

	var apiServer *api.Server
	if cfg.API.Enabled {
		apiServer, err = api.New(api.Config{
			Listen: cfg.API.Listen,
			APIKey: cfg.API.Auth.APIKey,
			Tokens: cfg.API.Auth.TokenConfigs(),
		}, records, mappings, resolver, bus, m, log.WithComponent("api"))
		if err != nil {
			return err
		}
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.NATS.Enabled {
		sub, err := ingest.Connect(ingest.Config{
			URL:           cfg.NATS.URL,
			Name:          cfg.Service.Name,
			Token:         cfg.NATS.Token,
			ResultSubject: cfg.NATS.ResultSubject,
			ValueSubject:  cfg.NATS.ValueSubject,
			MaxReconnects: cfg.NATS.MaxReconnects,
			ReconnectWait: cfg.NATS.ReconnectWait,
		}, bus, m)
		if err != nil {
			return err
		}
		g.Go(func() error {
			<-gctx.Done()
			return sub.Close()
		})
		logger.Info("nats ingress enabled", "url", cfg.NATS.URL)
	}

	if webhookServer != nil {
		g.Go(func() error { return ignoreCanceled(webhookServer.Start(gctx)) })
		logger.Info("webhook server enabled", "listen", cfg.Webhooks.Listen, "endpoints", len(cfg.Webhooks.Endpoints))
	}

	if apiServer != nil {
		g.Go(func() error { return ignoreCanceled(apiServer.Start(gctx)) })
		logger.Info("API server enabled", "listen", cfg.API.Listen)
	}

	logger.Info("plantdata-gw running (press Ctrl+C to stop)")
	<-gctx.Done()
	logger.Info("shutting down")
	return g.Wait()
}

func ignoreCanceled(err error) error {
	if errors.Is(err, context.Canceled) {
		return nil
	}
	return err
}

func runConfigCheck(args []string) int {
	fs := flag.NewFlagSet("check", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	type checkResult struct {
		Valid   bool     `json:"valid"`
		Path    string   `json:"path,omitempty"`
		Locked  bool     `json:"locked"`
		Errors  []string `json:"errors,omitempty"`
		Rules   int      `json:"mapping_rules"`
		Ingress []string `json:"ingress,omitempty"`
	}

	result := checkResult{Valid: true}
	cfg, err := config.Load(*configPath)
	if err != nil {
		result.Valid = false
		result.Errors = append(result.Errors, err.Error())
	} else {
		result.Path = cfg.SourcePath
		if report, err := config.Lock(cfg.SourcePath, true); err == nil {
			result.Locked = report.Previous != "" && !report.Changed()
		}
		result.Rules = len(cfg.Analysis.Rules)
		if cfg.NATS.Enabled {
			result.Ingress = append(result.Ingress, "nats")
		}
		if cfg.Webhooks != nil && len(cfg.Webhooks.Endpoints) > 0 {
			result.Ingress = append(result.Ingress, "webhook")
		}
	}

	if *jsonOut {
		printJSON(result)
	} else if result.Valid {
		fmt.Printf("Configuration OK: %s\n", result.Path)
		fmt.Printf("  locked:        %t\n", result.Locked)
		fmt.Printf("  mapping rules: %d\n", result.Rules)
		if len(result.Ingress) == 0 {
			fmt.Println("  ingress:       none (events can only arrive in-process)")
		} else {
			fmt.Printf("  ingress:       %s\n", strings.Join(result.Ingress, ", "))
		}
	} else {
		fmt.Fprintf(os.Stderr, "Configuration INVALID:\n  %s\n", strings.Join(result.Errors, "\n  "))
	}

	if !result.Valid {
		return 1
	}
	return 0
}

func runConfigLock(args []string) int {
	var configPath string
	var verbose, verboseShort, dryRun bool

	fs := flag.NewFlagSet("lock", flag.ContinueOnError)
	fs.StringVar(&configPath, "config", defaultConfigPath, "Path to configuration")
	fs.BoolVar(&verbose, "verbose", false, "Verbose output")
	fs.BoolVar(&verboseShort, "v", false, "Verbose output")
	fs.BoolVar(&dryRun, "dry-run", false, "Dry run")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	report, err := config.Lock(configPath, dryRun)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to lock config: %v\n", err)
		return 1
	}

	if verbose || verboseShort {
		fmt.Printf("HASH %s: %s\n", report.ConfigPath, report.Hash)
		if report.Previous != "" && report.Changed() {
			fmt.Printf("  previous: %s\n", report.Previous)
		}
		if dryRun {
			fmt.Printf("DRY-RUN .checksums: %s (not written)\n", report.ChecksumPath)
		} else {
			fmt.Printf("WROTE .checksums: %s\n", report.ChecksumPath)
		}
	}

	switch {
	case dryRun:
		fmt.Printf("Dry run completed (changed: %t)\n", report.Changed())
	case report.Changed():
		fmt.Printf("Successfully locked configuration: %s\n", report.ConfigPath)
	default:
		fmt.Printf("Configuration already locked: %s\n", report.ConfigPath)
	}
	return 0
}

func runConfigGet(args []string) int {
	fs := flag.NewFlagSet("get", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration file or directory")
	jsonOut := fs.Bool("json", false, "Output in structured JSON format")
	path, err := parseWithPositional(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to parse flags: %v\n", err)
		return 1
	}
	if path == "" {
		fmt.Fprintf(os.Stderr, "Usage: plantdata-gw config get <path> [--json]\n")
		return 1
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Load error: %v\n", err)
		return 1
	}

	val, err := cfg.GetPath(path)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(val)
	}
	switch val.(type) {
	case map[string]any, []any:
		data, _ := yaml.Marshal(val)
		fmt.Print(string(data))
	default:
		fmt.Printf("%v\n", val)
	}
	return 0
}

// openStateForTool loads config and opens the state database read-side.
func openStateForTool(configPath string) (*inspection.Store, *analysis.Store, func(), error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("load config: %w", err)
	}
	db, err := storage.OpenSQLite(context.Background(), cfg.State.Path)
	if err != nil {
		return nil, nil, nil, fmt.Errorf("open database: %w", err)
	}
	return inspection.NewStore(db), analysis.NewStore(db), func() { _ = db.Close() }, nil
}

func runInspectionShow(args []string) int {
	fs := flag.NewFlagSet("show", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output record in JSON")
	inspectionID, err := parseWithPositional(fs, args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}
	if inspectionID == "" {
		fmt.Fprintf(os.Stderr, "Usage: plantdata-gw inspection show <inspection_id> [--config PATH] [--json]\n")
		return 1
	}

	records, _, closeDB, err := openStateForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeDB()

	rec, err := records.Get(context.Background(), inspectionID)
	if errors.Is(err, inspection.ErrRecordNotFound) {
		fmt.Fprintf(os.Stderr, "No record for inspection %s\n", inspectionID)
		return 1
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Inspect failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		return printJSON(rec)
	}
	fmt.Print(inspection.RenderRecord(rec))
	return 0
}

func runInspectionList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration")
	limit := fs.Int("limit", 20, "Maximum records to show")
	jsonOut := fs.Bool("json", false, "Output records in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	records, _, closeDB, err := openStateForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeDB()

	recs, err := records.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		if recs == nil {
			recs = []*inspection.Record{}
		}
		return printJSON(recs)
	}
	if len(recs) == 0 {
		fmt.Println("No inspections recorded.")
		return 0
	}
	for _, r := range recs {
		fmt.Printf("%s  %-24s  %-16s  %s\n", r.CreatedAt.Local().Format(time.DateTime), r.InspectionID, r.TagID, r.Description)
	}
	return 0
}

func runMappingList(args []string) int {
	fs := flag.NewFlagSet("list", flag.ContinueOnError)
	configPath := fs.String("config", defaultConfigPath, "Path to configuration")
	jsonOut := fs.Bool("json", false, "Output rules in JSON")
	if err := fs.Parse(args); err != nil {
		fmt.Fprintf(os.Stderr, "Flag error: %v\n", err)
		return 1
	}

	_, mappings, closeDB, err := openStateForTool(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		return 1
	}
	defer closeDB()

	rules, err := mappings.List(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "List failed: %v\n", err)
		return 1
	}

	if *jsonOut {
		if rules == nil {
			rules = []analysis.Rule{}
		}
		return printJSON(rules)
	}
	if len(rules) == 0 {
		fmt.Println("No mapping rules stored. Rules in config are seeded at 'system start'.")
		return 0
	}
	for _, r := range rules {
		desc := r.Description
		if desc == "" {
			desc = "*"
		}
		analyses := make([]string, len(r.Analyses))
		for i, a := range r.Analyses {
			analyses[i] = string(a)
		}
		fmt.Printf("%-20s  %-24s  %s\n", r.Tag, desc, strings.Join(analyses, ","))
	}
	return 0
}
