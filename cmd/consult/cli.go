package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/consult-sh/consult"
	"github.com/consult-sh/consult/config"
	"github.com/consult-sh/consult/feedback"
	"github.com/consult-sh/consult/providers/ollama"
	"github.com/consult-sh/consult/types"
)

// =============================================================================
// 💬 本地 CLI 咨询命令
// =============================================================================
// ask/feedback/stats 直接操作本地服务组件，不经过 HTTP 服务器。
// 与 serve 共享同一份配置和反馈数据库。
// =============================================================================

// cliEnv 是 CLI 命令共享的本地环境
type cliEnv struct {
	cfg    *config.Config
	logger *zap.Logger
	store  feedback.Store
}

// newCLIEnv 加载配置并打开反馈存储。
// CLI 模式下日志降为 warn 级别，避免干扰命令输出。
func newCLIEnv(configPath string) (*cliEnv, error) {
	loader := config.NewLoader()
	if configPath != "" {
		loader = loader.WithConfigPath(configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	logCfg := cfg.Log
	logCfg.Level = "warn"
	logCfg.Format = "console"
	logger := initLogger(logCfg)

	var store feedback.Store
	pool, err := openDatabase(cfg.Database, logger)
	if err == nil {
		gormStore, storeErr := feedback.NewGormStore(pool.DB(), logger)
		if storeErr == nil {
			store = gormStore
		}
	}
	if store == nil {
		logger.Warn("feedback database unavailable, feedback will not persist")
		store = feedback.NewMemoryStore()
	}

	return &cliEnv{cfg: cfg, logger: logger, store: store}, nil
}

// newLocalService 在 CLI 环境上组装完整的咨询服务
func (env *cliEnv) newLocalService() (*consult.Service, error) {
	reg, err := buildRegistry(env.cfg)
	if err != nil {
		return nil, err
	}
	gen := ollama.NewClient(ollama.Config{BaseURL: env.cfg.Ollama.BaseURL}, env.logger)

	opts := []consult.Option{
		consult.WithLimits(env.cfg.Dispatch.MaxConcurrent, env.cfg.Dispatch.MaxExperts),
	}
	return consult.NewService(reg, gen, env.store, env.logger, opts...), nil
}

// =============================================================================
// ask 命令
// =============================================================================

// askOptions 是 ask 命令解析后的参数
type askOptions struct {
	configPath string
	jsonOut    bool
	req        consult.Request
}

func parseAskArgs(args []string) (askOptions, error) {
	var opts askOptions
	fs := flag.NewFlagSet("ask", flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "Path to config file")
	expertList := fs.String("experts", "", "Comma-separated expert ids (explicit panel)")
	domainList := fs.String("domains", "", "Comma-separated domains (restrict routing)")
	fs.BoolVar(&opts.req.All, "all", false, "Query every expert in the table")
	fs.IntVar(&opts.req.MaxExperts, "max-experts", 0, "Panel size cap for keyword routing")
	fs.IntVar(&opts.req.MaxConcurrent, "max-concurrent", 0, "In-flight expert call cap")
	fs.BoolVar(&opts.req.Synthesize, "synthesize", false, "Synthesize responses into themes, conflicts and actions")
	fs.BoolVar(&opts.jsonOut, "json", false, "Print the consultation as JSON")
	if err := fs.Parse(args); err != nil {
		return opts, err
	}

	opts.req.Question = strings.TrimSpace(strings.Join(fs.Args(), " "))
	if opts.req.Question == "" {
		return opts, fmt.Errorf("question is required")
	}
	if *expertList != "" {
		opts.req.ExpertIDs = splitList(*expertList)
	}
	if *domainList != "" {
		opts.req.Domains = splitList(*domainList)
	}
	return opts, nil
}

func runAsk(args []string) {
	opts, err := parseAskArgs(args)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\nUsage: consult ask [options] \"question\"\n", err)
		os.Exit(1)
	}

	env, err := newCLIEnv(opts.configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	svc, err := env.newLocalService()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to build consultation service: %v\n", err)
		os.Exit(1)
	}

	result, err := svc.Consult(context.Background(), opts.req)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Consultation failed: %v\n", err)
		os.Exit(1)
	}

	if opts.jsonOut {
		if err := writeConsultationJSON(os.Stdout, result); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to encode consultation: %v\n", err)
			os.Exit(1)
		}
		return
	}
	printConsultation(result)
}

// writeConsultationJSON 输出机器可读的咨询结果
func writeConsultationJSON(w io.Writer, c *consult.Consultation) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(c)
}

func splitList(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// printConsultation 打印咨询结果：逐个专家响应 + 综合报告
func printConsultation(c *consult.Consultation) {
	fmt.Printf("Query ID: %s\n", c.QueryID)
	if len(c.Domains) > 0 {
		fmt.Printf("Domains:  %s\n", strings.Join(c.Domains, ", "))
	}
	fmt.Printf("Experts:  %d  (%dms total)\n", len(c.Results), c.TotalTimeMS)
	if c.FromCache {
		fmt.Println("Source:   cache")
	}

	for _, r := range c.Results {
		fmt.Printf("\n=== %s (%s, %dms) ===\n", r.ExpertID, r.Domain, r.DurationMS)
		switch r.Status {
		case types.StatusSuccess:
			fmt.Println(r.Response)
		case types.StatusTimeout:
			fmt.Printf("[timeout] %s\n", r.Error)
		default:
			fmt.Printf("[error] %s\n", r.Error)
		}
	}

	if c.Synthesis != nil {
		printSynthesis(c.Synthesis)
	}

	fmt.Printf("\nRate this consultation:\n  consult feedback %s --helpful --best <expert-id>\n", c.QueryID)
}

func printSynthesis(s *types.SynthesisReport) {
	fmt.Printf("\n=== Synthesis (consensus %.2f, %d/%d experts) ===\n",
		s.ConsensusScore, s.SuccessfulExperts, s.TotalExperts)

	if len(s.Themes) > 0 {
		fmt.Println("\nShared themes:")
		for _, t := range s.Themes {
			fmt.Printf("  - %s  (%.0f%%: %s)\n",
				t.Text, t.Confidence*100, strings.Join(t.SupportingExperts, ", "))
		}
	}

	if len(s.Conflicts) > 0 {
		fmt.Println("\nConflicts:")
		for _, c := range s.Conflicts {
			fmt.Printf("  - [%s] %s\n", c.Severity, c.Topic)
			for expert, position := range c.Positions {
				fmt.Printf("      %s: %s\n", expert, position)
			}
		}
	}

	if len(s.Actions) > 0 {
		fmt.Println("\nRecommended actions:")
		for _, a := range s.Actions {
			fmt.Printf("  - [%s] %s\n", a.Priority, a.Action)
		}
	}
}

// =============================================================================
// experts 命令
// =============================================================================

func runExperts(args []string) {
	fs := flag.NewFlagSet("experts", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	domain := fs.String("domain", "", "Only list experts in this domain")
	fs.Parse(args)

	loader := config.NewLoader()
	if *configPath != "" {
		loader = loader.WithConfigPath(*configPath)
	}
	cfg, err := loader.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}
	reg, err := buildRegistry(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Invalid expert table: %v\n", err)
		os.Exit(1)
	}

	var experts []types.ExpertConfig
	if *domain != "" {
		experts = reg.ByDomain(*domain)
		if len(experts) == 0 {
			fmt.Fprintf(os.Stderr, "Unknown domain: %s (known: %s)\n",
				*domain, strings.Join(reg.Domains(), ", "))
			os.Exit(1)
		}
	} else {
		experts = reg.All()
	}

	fmt.Printf("%-32s %-12s %6s %9s\n", "EXPERT", "DOMAIN", "WEIGHT", "TIMEOUT")
	for _, e := range experts {
		fmt.Printf("%-32s %-12s %6.2f %8ds\n", e.ID, e.Domain, e.Weight, int(e.Timeout.Seconds()))
	}
}

// =============================================================================
// feedback 命令
// =============================================================================

func runFeedback(args []string) {
	fs := flag.NewFlagSet("feedback", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	helpful := fs.Bool("helpful", false, "Mark the synthesis as helpful")
	notHelpful := fs.Bool("not-helpful", false, "Mark the synthesis as unhelpful")
	best := fs.String("best", "", "Most useful expert id")
	worst := fs.String("worst", "", "Least useful expert id")
	action := fs.String("action", "", "Action taken based on the consultation")
	notes := fs.String("notes", "", "Free-form notes")
	fs.Parse(args)

	if fs.NArg() != 1 {
		fmt.Fprintln(os.Stderr, "Usage: consult feedback <query-id> [options]")
		os.Exit(1)
	}
	queryID := fs.Arg(0)

	env, err := newCLIEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	ctx := context.Background()
	applied := 0

	apply := func(kind string, fn func() error) {
		if err := fn(); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to record %s: %v\n", kind, err)
			os.Exit(1)
		}
		applied++
	}

	if *helpful || *notHelpful {
		apply("synthesis rating", func() error {
			return env.store.RateSynthesis(ctx, queryID, *helpful)
		})
	}
	if *best != "" {
		apply("best expert", func() error {
			return env.store.RateExpert(ctx, queryID, *best, true)
		})
	}
	if *worst != "" {
		apply("worst expert", func() error {
			return env.store.RateExpert(ctx, queryID, *worst, false)
		})
	}
	if *action != "" {
		apply("action", func() error {
			return env.store.LogAction(ctx, queryID, *action)
		})
	}
	if *notes != "" {
		apply("notes", func() error {
			return env.store.AddNotes(ctx, queryID, *notes)
		})
	}

	if applied == 0 {
		fmt.Fprintln(os.Stderr, "No feedback given; use --helpful, --best, --worst, --action or --notes")
		os.Exit(1)
	}
	fmt.Printf("Recorded %d feedback update(s) for %s\n", applied, queryID)
}

// =============================================================================
// stats / recent / patterns 命令
// =============================================================================

func runStats(args []string) {
	fs := flag.NewFlagSet("stats", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	env, err := newCLIEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	stats, err := env.store.Stats(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read stats: %v\n", err)
		os.Exit(1)
	}
	if len(stats) == 0 {
		fmt.Println("No expert ratings recorded yet.")
		return
	}

	ids := make([]string, 0, len(stats))
	for id := range stats {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	fmt.Printf("%-32s %9s %9s %6s\n", "EXPERT", "POSITIVE", "NEGATIVE", "TOTAL")
	for _, id := range ids {
		s := stats[id]
		fmt.Printf("%-32s %9d %9d %6d\n", id, s.Positive, s.Negative, s.Total)
	}
}

func runRecent(args []string) {
	fs := flag.NewFlagSet("recent", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	limit := fs.Int("limit", 10, "Number of consultations to show")
	fs.Parse(args)

	env, err := newCLIEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	entries, err := env.store.Recent(context.Background(), *limit)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to read recent consultations: %v\n", err)
		os.Exit(1)
	}
	if len(entries) == 0 {
		fmt.Println("No consultations recorded yet.")
		return
	}

	for _, e := range entries {
		fmt.Printf("%s  %s  %s\n", e.QueryID, e.CreatedAt.Format("2006-01-02 15:04"), e.Question)
		fmt.Printf("             experts: %s\n", strings.Join(e.ExpertsUsed, ", "))
		if e.SynthesisHelpful != nil {
			fmt.Printf("             synthesis helpful: %v\n", *e.SynthesisHelpful)
		}
		if e.BestExpert != "" {
			fmt.Printf("             best: %s\n", e.BestExpert)
		}
	}
}

func runPatterns(args []string) {
	fs := flag.NewFlagSet("patterns", flag.ExitOnError)
	configPath := fs.String("config", "", "Path to config file")
	fs.Parse(args)

	env, err := newCLIEnv(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}

	report, err := env.store.AnalyzePatterns(context.Background())
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to analyze patterns: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Consultations analyzed: %d\n", report.TotalConsultations)
	if report.SynthesisHelpfulRate != nil {
		fmt.Printf("Synthesis helpful rate: %.0f%%\n", *report.SynthesisHelpfulRate*100)
	} else {
		fmt.Println("Synthesis helpful rate: no ratings yet")
	}
	printCounts("Top performing experts", report.TopPerformingExperts)
	printCounts("Underperforming experts", report.UnderperformingExperts)
	printCounts("Common domains", report.CommonDomains)
}

func printCounts(title string, counts map[string]int) {
	if len(counts) == 0 {
		return
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	// 按计数降序，相同计数按名称排序
	sort.Slice(keys, func(i, j int) bool {
		if counts[keys[i]] != counts[keys[j]] {
			return counts[keys[i]] > counts[keys[j]]
		}
		return keys[i] < keys[j]
	})
	fmt.Printf("\n%s:\n", title)
	for _, k := range keys {
		fmt.Printf("  %-32s %d\n", k, counts[k])
	}
}
