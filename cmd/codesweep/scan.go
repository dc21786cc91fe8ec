package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/codesweep/codesweep/internal/analyzers"
	"github.com/codesweep/codesweep/internal/cache"
	"github.com/codesweep/codesweep/internal/config"
	"github.com/codesweep/codesweep/internal/finding"
	"github.com/codesweep/codesweep/internal/llm"
	"github.com/codesweep/codesweep/internal/orchestrator"
	"github.com/codesweep/codesweep/internal/plugin"
	"github.com/codesweep/codesweep/internal/report"
	"github.com/codesweep/codesweep/internal/scan"
)

// maxFileSize keeps generated bundles and vendored blobs out of the
// scan snapshot.
const maxFileSize = 1 << 20

var (
	scanMode      string
	scanTools     string
	scanSync      bool
	scanBatchSize int
	scanWorkers   int
	scanNoCache   bool
	scanTimeout   time.Duration
	scanJSON      bool
)

var scanCmd = &cobra.Command{
	Use:   "scan [path]",
	Short: "Analyze a source tree and print the findings report",
	Long: `Analyze a source tree with the registered plugins.

Examples:
  codesweep scan                         # quick scan of the current directory
  codesweep scan --mode=deep ./src       # all plugins plus LLM explanations
  codesweep scan --tools=secret-scanner  # run a single plugin
  codesweep scan --json                  # machine-readable report
  codesweep scan --timeout=30s           # partial results after 30 seconds

Exit status is 1 when the report contains critical findings.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		root := "."
		if len(args) == 1 {
			root = args[0]
		}
		return runScan(cmd.Context(), root)
	},
}

func init() {
	rootCmd.AddCommand(scanCmd)
	scanCmd.Flags().StringVar(&scanMode, "mode", "", "Scan mode: quick or deep (default from config)")
	scanCmd.Flags().StringVar(&scanTools, "tools", "", "Comma-separated plugin identifiers (overrides mode selection)")
	scanCmd.Flags().BoolVar(&scanSync, "sync", false, "Run plugins one at a time instead of in parallel")
	scanCmd.Flags().IntVar(&scanBatchSize, "batch-size", 0, "Findings per LLM call in deep mode")
	scanCmd.Flags().IntVar(&scanWorkers, "workers", 0, "Parallel plugin limit")
	scanCmd.Flags().BoolVar(&scanNoCache, "no-cache", false, "Skip the result cache for this scan")
	scanCmd.Flags().DurationVar(&scanTimeout, "timeout", 0, "Overall scan deadline (0 = none)")
	scanCmd.Flags().BoolVar(&scanJSON, "json", false, "Print the report as JSON")
}

func runScan(ctx context.Context, root string) error {
	fileCfg, err := config.Load(root, flagConfigPath)
	if err != nil {
		return err
	}

	registry := plugin.NewRegistry()
	if err := analyzers.RegisterAll(registry); err != nil {
		return fmt.Errorf("failed to register plugins: %w", err)
	}

	mode := fileCfg.Mode
	if scanMode != "" {
		mode = scanMode
	}
	var toolOverride []string
	switch {
	case scanTools != "":
		toolOverride = splitTools(scanTools)
	case len(fileCfg.Tools) > 0:
		toolOverride = fileCfg.Tools
	}

	scanCfg, err := scan.ResolveConfig(mode, toolOverride, registry)
	if err != nil {
		return err
	}
	scanCfg.MaxWorkers = fileCfg.Workers
	scanCfg.MaxAttempts = fileCfg.MaxAttempts
	scanCfg.InitialBackoff = time.Duration(fileCfg.InitialBackoffMS) * time.Millisecond
	scanCfg.LLMBatchSize = fileCfg.LLM.BatchSize
	if scanWorkers > 0 {
		scanCfg.MaxWorkers = scanWorkers
	}
	if scanBatchSize > 0 {
		scanCfg.LLMBatchSize = scanBatchSize
	}
	if scanSync {
		scanCfg.ExecutionStyle = scan.ExecutionSynchronous
	}

	files, err := collectFiles(root)
	if err != nil {
		return err
	}
	if len(files) == 0 {
		return fmt.Errorf("no source files found under %s", root)
	}

	store, err := openStore(fileCfg)
	if err != nil {
		return err
	}
	defer store.Close()

	var stage *llm.BatchStage
	if scanCfg.Mode == scan.ModeDeep && scanCfg.LLMEnabled {
		stage, err = buildLLMStage(fileCfg)
		if err != nil {
			return err
		}
	}

	req := scan.NewRequest(files, scanCfg)
	if scanTimeout > 0 {
		req.Deadline = time.Now().Add(scanTimeout)
	}

	log.Infow("starting scan",
		"root", root, "mode", scanCfg.Mode, "files", len(files), "request", req.ID)

	engine := orchestrator.New(registry, store, stage, log)
	result, err := engine.Run(ctx, req)
	if err != nil {
		return err
	}
	rep := result.Aggregate()

	if scanJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rep); err != nil {
			return err
		}
	} else {
		renderReport(rep, result.Duration)
	}

	if len(rep.Critical) > 0 {
		os.Exit(1)
	}
	return nil
}

func splitTools(s string) []string {
	var tools []string
	for _, t := range strings.Split(s, ",") {
		if t = strings.TrimSpace(t); t != "" {
			tools = append(tools, t)
		}
	}
	return tools
}

// collectFiles walks the tree and snapshots every recognized source
// file, skipping dependency and VCS directories.
func collectFiles(root string) ([]scan.SourceFile, error) {
	var files []scan.SourceFile
	err := filepath.WalkDir(root, func(path string, d os.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		name := d.Name()
		if d.IsDir() {
			if name == "vendor" || name == "node_modules" ||
				(strings.HasPrefix(name, ".") && path != root) {
				return filepath.SkipDir
			}
			return nil
		}
		if !scan.KnownExtension(path) {
			return nil
		}
		info, err := d.Info()
		if err != nil || info.Size() > maxFileSize {
			return nil
		}
		content, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			rel = path
		}
		files = append(files, scan.SourceFile{Path: rel, Content: content})
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to walk %s: %w", root, err)
	}
	return files, nil
}

func openStore(cfg config.Config) (cache.Store, error) {
	if cfg.Cache.Disabled || scanNoCache {
		return cache.NewMemoryStore(0), nil
	}
	path, err := cfg.CachePath()
	if err != nil {
		return nil, err
	}
	store, err := cache.NewSQLiteStore(path)
	if err != nil {
		// Cache trouble degrades the scan, it never blocks it.
		log.Warnw("cache unavailable, scanning without it", "path", path, "error", err)
		return cache.NewMemoryStore(0), nil
	}
	return store, nil
}

func buildLLMStage(cfg config.Config) (*llm.BatchStage, error) {
	model := cfg.LLM.Model
	if model == "" {
		model = llm.GetModel()
	}
	explainer, err := llm.NewAnthropicExplainer("", model)
	if err != nil {
		return nil, fmt.Errorf("deep mode needs LLM access: %w", err)
	}
	stageCfg := llm.DefaultStageConfig()
	stageCfg.BatchSize = cfg.LLM.BatchSize
	stageCfg.MaxConcurrent = cfg.LLM.MaxConcurrent
	return llm.NewBatchStage(explainer, stageCfg, log), nil
}

func renderReport(rep *report.Report, elapsed time.Duration) {
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	yellow := color.New(color.FgYellow).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()
	gray := color.New(color.FgHiBlack).SprintFunc()

	renderBucket := func(title string, findings []finding.Finding, paint func(...interface{}) string) {
		if len(findings) == 0 {
			return
		}
		fmt.Printf("\n%s (%d)\n", paint(title), len(findings))
		for _, f := range findings {
			loc := f.File
			if f.Line > 0 {
				loc = fmt.Sprintf("%s:%d", f.File, f.Line)
			}
			fmt.Printf("  %s %s [%s]\n", cyan(loc), f.Description, f.Severity)
			if f.Action != "" {
				fmt.Printf("    %s %s\n", gray("->"), f.Action)
			}
			if f.Explanation != "" {
				fmt.Printf("    %s %s\n", gray("why:"), f.Explanation)
			}
			if len(f.Sources) > 0 {
				fmt.Printf("    %s %s\n", gray("by:"), strings.Join(f.Sources, ", "))
			}
		}
	}

	renderBucket("Critical", rep.Critical, red)
	renderBucket("Improvements", rep.Improvement, yellow)
	renderBucket("Technical debt", rep.Debt, yellow)
	renderBucket("Documentation", rep.Documentation, cyan)

	fmt.Printf("\n%d issues (%d high severity) in %s\n",
		rep.TotalIssues, rep.HighSeverityCount, elapsed.Round(time.Millisecond))

	for _, st := range rep.PluginStatuses {
		switch st.State {
		case report.StateFailed:
			fmt.Printf("%s plugin %s failed after %d attempts: %s\n", red("!"), st.Plugin, st.Attempts, st.Error)
		case report.StateCancelled:
			fmt.Printf("%s plugin %s cancelled before finishing\n", yellow("!"), st.Plugin)
		case report.StateCached:
			fmt.Printf("%s plugin %s served from cache\n", gray("*"), st.Plugin)
		}
	}
	for _, st := range rep.BatchStatuses {
		if st.State == report.StateFailed || st.State == report.StateCancelled {
			fmt.Printf("%s LLM batch %d %s: findings shipped without explanations\n",
				yellow("!"), st.Batch, st.State)
		}
	}
	if rep.Complete() {
		fmt.Println(green("scan complete"))
	} else {
		fmt.Println(yellow("scan completed with partial results"))
	}
}
