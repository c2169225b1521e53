package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"saga/pkg/config"
	"saga/pkg/metrics"
	"saga/pkg/persistence"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// cmdSessions dispatches the session-store subcommands. These operate on the
// store directly and never need model credentials.
func cmdSessions(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: saga sessions list|show|export|import|delete|cleanup")
	}

	sub, rest := args[0], args[1:]
	switch sub {
	case "list":
		return sessionsList(rest)
	case "show":
		return sessionsShow(rest)
	case "export":
		return sessionsExport(rest)
	case "import":
		return sessionsImport(rest)
	case "delete":
		return sessionsDelete(rest)
	case "cleanup":
		return sessionsCleanup(rest)
	default:
		return fmt.Errorf("unknown sessions subcommand %q", sub)
	}
}

// openStore loads project config and opens the session store without
// touching stored credentials.
func openStore(dir string) (*persistence.Store, *config.Config, error) {
	if err := config.LoadConfig(dir); err != nil {
		return nil, nil, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, nil, err
	}

	store, err := persistence.Open(cfg.Storage.DatabasePath)
	if err != nil {
		return nil, nil, err
	}
	return store, &cfg, nil
}

// splitLeadingArg peels a leading positional argument off args so commands
// accept "show ID --flag" as well as "show --flag ID".
func splitLeadingArg(args []string) (string, []string) {
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		return args[0], args[1:]
	}
	return "", args
}

func sessionsList(args []string) error {
	fs := flag.NewFlagSet("sessions list", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	_ = fs.Parse(args)

	store, _, err := openStore(*dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	summaries, err := store.ListSessions()
	if err != nil {
		return err
	}
	if len(summaries) == 0 {
		fmt.Println("No sessions stored.")
		return nil
	}

	fmt.Printf("%-42s %-20s %-10s %-20s %6s %6s  %s\n",
		"SESSION ID", "SUBJECT", "STATUS", "PHASE", "ROUNDS", "SCORE", "LAST ACTIVE")
	for _, s := range summaries {
		score := "-"
		if s.OverallScore != nil {
			score = fmt.Sprintf("%.1f", *s.OverallScore)
		}
		fmt.Printf("%-42s %-20s %-10s %-20s %6d %6s  %s\n",
			s.SessionID, utils.Head(s.SubjectName, 20), s.Status, s.Phase,
			s.DialogueTurns/2, score, s.LastActive.Local().Format("2006-01-02 15:04"))
	}
	return nil
}

func sessionsShow(args []string) error {
	id, rest := splitLeadingArg(args)
	fs := flag.NewFlagSet("sessions show", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	_ = fs.Parse(rest)
	if id == "" {
		id = fs.Arg(0)
	}
	if id == "" {
		return fmt.Errorf("usage: saga sessions show SESSION_ID")
	}

	store, _, err := openStore(*dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	state, err := store.LoadSession(id)
	if err != nil {
		return err
	}

	fmt.Printf("Session  %s\n", state.SessionID)
	fmt.Printf("Subject  %s\n", state.SubjectName)
	fmt.Printf("Status   %s (phase %s)\n", state.Status, state.Phase)
	fmt.Printf("Created  %s\n", state.CreatedAt.Local().Format(time.RFC3339))
	fmt.Printf("Active   %s\n", state.LastActive.Local().Format(time.RFC3339))
	fmt.Printf("Rounds   %d\n", state.Rounds())

	if state.Anchors != nil {
		fmt.Printf("Anchors  %d temporal, %d locations, %d events, %d queries\n",
			len(state.Anchors.Temporal), len(state.Anchors.Location),
			len(state.Anchors.HistoricalEvents), len(state.Anchors.SearchQueries))
	}
	if len(state.Context.EventsByKey) > 0 || len(state.Context.SocialContext) > 0 {
		fmt.Printf("Research %d event analyses, %d social context entries\n",
			len(state.Context.EventsByKey), len(state.Context.SocialContext))
	}

	for _, v := range state.Biographies {
		kind := "draft"
		if v.Refined {
			kind = "refined"
		}
		fmt.Printf("Bio v%-3d %s, %d chars (%s)\n", v.Version, kind, len(v.Content), v.Strategy)
	}

	if state.Quality != nil {
		fmt.Printf("Quality  %.1f/10", state.Quality.OverallScore)
		if state.Quality.MeetsStandard {
			fmt.Print(" — meets publication standard")
		}
		fmt.Println()
		dims := make([]string, 0, len(state.Quality.DimensionScores))
		for name := range state.Quality.DimensionScores {
			dims = append(dims, name)
		}
		sort.Strings(dims)
		for _, name := range dims {
			fmt.Printf("         %-24s %.1f\n", name, state.Quality.DimensionScores[name])
		}
		for _, issue := range state.Quality.MajorIssues {
			fmt.Printf("         issue: %s\n", utils.Head(issue, 80))
		}
	}
	if state.HeroJourney != nil {
		fmt.Printf("Arc      %d/%d (%.0f%%)\n",
			state.HeroJourney.TotalScore, state.HeroJourney.MaxScore, state.HeroJourney.Percentage)
	}

	if len(state.ActionHistory) > 0 {
		fmt.Println("History")
		for _, rec := range state.ActionHistory {
			fmt.Printf("  %3d %-20s %s\n", rec.Iteration, rec.Action, utils.Head(rec.Reasoning, 70))
		}
	}

	if state.Ring != nil {
		entries := state.Ring.Entries()
		if n := len(entries); n > 0 {
			fmt.Printf("Log (last %d of %d)\n", min(10, n), n)
			for _, e := range entries[max(0, n-10):] {
				fmt.Printf("  %s [%s] %s: %s\n", e.Timestamp, e.Level, e.Component, utils.Head(e.Message, 90))
			}
		}
	}
	return nil
}

func sessionsExport(args []string) error {
	id, rest := splitLeadingArg(args)
	fs := flag.NewFlagSet("sessions export", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	out := fs.String("o", "", "output file (default: <export_dir>/<session_id>.json)")
	_ = fs.Parse(rest)
	if id == "" {
		id = fs.Arg(0)
	}
	if id == "" {
		return fmt.Errorf("usage: saga sessions export SESSION_ID [-o FILE]")
	}

	store, cfg, err := openStore(*dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	state, err := store.LoadSession(id)
	if err != nil {
		return err
	}

	path, err := exportSession(state, cfg.Storage.ExportDir, *out)
	if err != nil {
		return err
	}
	fmt.Printf("Exported %s to %s\n", state.SessionID, path)
	return nil
}

func sessionsImport(args []string) error {
	file, rest := splitLeadingArg(args)
	fs := flag.NewFlagSet("sessions import", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	_ = fs.Parse(rest)
	if file == "" {
		file = fs.Arg(0)
	}
	if file == "" {
		return fmt.Errorf("usage: saga sessions import FILE")
	}

	data, err := os.ReadFile(file)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", file, err)
	}
	state, err := session.UnmarshalExport(data)
	if err != nil {
		return err
	}

	store, _, err := openStore(*dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.SaveSession(state); err != nil {
		return err
	}
	fmt.Printf("Imported session %s (%s, %s)\n", state.SessionID, state.SubjectName, state.Status)
	return nil
}

func sessionsDelete(args []string) error {
	id, rest := splitLeadingArg(args)
	fs := flag.NewFlagSet("sessions delete", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	_ = fs.Parse(rest)
	if id == "" {
		id = fs.Arg(0)
	}
	if id == "" {
		return fmt.Errorf("usage: saga sessions delete SESSION_ID")
	}

	store, _, err := openStore(*dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	if err := store.DeleteSession(id); err != nil {
		return err
	}
	fmt.Printf("Deleted session %s\n", id)
	return nil
}

func sessionsCleanup(args []string) error {
	fs := flag.NewFlagSet("sessions cleanup", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	days := fs.Int("days", 7, "delete sessions idle for more than this many days")
	_ = fs.Parse(args)

	if *days < 1 {
		return fmt.Errorf("--days must be positive")
	}

	store, _, err := openStore(*dir)
	if err != nil {
		return err
	}
	defer func() { _ = store.Close() }()

	cutoff := time.Now().UTC().AddDate(0, 0, -*days)
	n, err := store.CleanupSessions(cutoff)
	if err != nil {
		return err
	}
	fmt.Printf("Removed %d session(s) idle since %s\n", n, cutoff.Format("2006-01-02"))
	return nil
}

// cmdModels prints the configured models and the known-model pricing table.
func cmdModels(args []string) error {
	fs := flag.NewFlagSet("models", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	_ = fs.Parse(args)

	if err := config.LoadConfig(*dir); err != nil {
		return err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return err
	}

	describe := func(model string) string {
		if model == "" {
			return "(none)"
		}
		provider, provErr := config.GetModelProvider(model)
		if provErr != nil {
			return fmt.Sprintf("%s (unknown provider)", model)
		}
		return fmt.Sprintf("%s via %s", model, provider)
	}
	fmt.Printf("Primary: %s\n", describe(cfg.Models.Primary))
	fmt.Printf("Backup:  %s\n\n", describe(cfg.Models.Backup))

	names := make([]string, 0, len(config.KnownModels))
	for name := range config.KnownModels {
		names = append(names, name)
	}
	sort.Strings(names)

	fmt.Printf("%-40s %-12s %10s %10s %10s\n", "MODEL", "PROVIDER", "IN $/1M", "OUT $/1M", "CONTEXT")
	for _, name := range names {
		info := config.KnownModels[name]
		fmt.Printf("%-40s %-12s %10.2f %10.2f %10d\n",
			name, info.Provider, info.InputCPM, info.OutputCPM, info.MaxContextTokens)
	}
	return nil
}

// cmdMetrics queries Prometheus for one session's LLM usage and cost.
func cmdMetrics(args []string) error {
	id, rest := splitLeadingArg(args)
	fs := flag.NewFlagSet("metrics", flag.ExitOnError)
	promURL := fs.String("prom", "http://"+config.DefaultMetricsAddr, "Prometheus base URL")
	_ = fs.Parse(rest)
	if id == "" {
		id = fs.Arg(0)
	}
	if id == "" {
		return fmt.Errorf("usage: saga metrics SESSION_ID [--prom URL]")
	}

	svc, err := metrics.NewQueryService(*promURL)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	totals, err := svc.GetSessionMetrics(ctx, id)
	if err != nil {
		return err
	}
	fmt.Printf("Session %s\n", id)
	fmt.Printf("  prompt tokens:     %12d\n", totals.PromptTokens)
	fmt.Printf("  completion tokens: %12d\n", totals.CompletionTokens)
	fmt.Printf("  total tokens:      %12d\n", totals.TotalTokens)
	fmt.Printf("  cost:              %12.4f USD\n", totals.TotalCost)

	byModel, err := svc.GetSessionMetricsByModel(ctx, id)
	if err != nil {
		return err
	}
	if len(byModel) > 0 {
		models := make([]string, 0, len(byModel))
		for model := range byModel {
			models = append(models, model)
		}
		sort.Strings(models)

		fmt.Println("\nBy model:")
		for _, model := range models {
			m := byModel[model]
			fmt.Printf("  %-40s %10d tokens %10.4f USD\n", model, m.TotalTokens, m.TotalCost)
		}
	}
	return nil
}
