package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"

	"saga/internal/kernel"
	"saga/pkg/batch"
	"saga/pkg/config"
	"saga/pkg/coordinator"
	"saga/pkg/interview"
	"saga/pkg/logx"
	"saga/pkg/session"
	"saga/pkg/utils"
)

// cmdRun executes one session: interactive on the terminal, simulated from a
// persona file, or resuming a stored session.
func cmdRun(args []string) error {
	fs := flag.NewFlagSet("run", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	interactive := fs.Bool("interactive", false, "interview interactively on this terminal")
	personaPath := fs.String("persona", "", "persona file for a simulated subject")
	subjectName := fs.String("subject", "", "subject name for interactive sessions")
	resumeID := fs.String("resume", "", "resume a stored session by id")
	metricsAddr := fs.String("metrics-addr", "", "expose Prometheus metrics on this address")
	_ = fs.Parse(args)

	if !*interactive && *personaPath == "" && *resumeID == "" {
		return fmt.Errorf("choose --interactive, --persona FILE, or --resume SESSION_ID")
	}

	cfg, err := loadProject(*dir)
	if err != nil {
		return err
	}
	applyMetricsAddr(cfg, *metricsAddr)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	k, err := kernel.NewKernel(ctx, cfg)
	if err != nil {
		return err
	}
	defer k.Stop()

	var state *session.SessionState
	var persona *interview.Persona

	if *personaPath != "" {
		persona, err = interview.LoadPersona(*personaPath)
		if err != nil {
			return err
		}
	}

	switch {
	case *resumeID != "":
		state, err = k.Store.LoadSession(*resumeID)
		if err != nil {
			return err
		}
		fmt.Printf("Resuming session %s (%s, %d rounds so far)\n",
			state.SessionID, state.Status, state.Rounds())
	case persona != nil:
		state = session.NewState(persona.Name)
	default:
		name := strings.TrimSpace(*subjectName)
		if name == "" {
			name, err = promptLine("Subject name: ")
			if err != nil {
				return err
			}
		}
		if name == "" {
			return fmt.Errorf("a subject name is required")
		}
		state = session.NewState(name)
	}

	// Resumed sessions continue on the terminal unless a persona is given.
	var subject interview.SubjectSource
	if persona != nil {
		subjectLogger := logx.NewLogger("subject-sim").WithRing(state.Ring)
		subject = interview.NewSimulatedSubject(persona, k.Client, subjectLogger)
		fmt.Printf("Simulating subject %q from %s\n", persona.Name, *personaPath)
	} else {
		subject = interview.NewConsoleSubject(os.Stdin, os.Stdout)
	}

	final, runErr := k.RunSession(ctx, state, subject, consolePresenter{})
	if final != nil {
		printSessionResult(final)
		if final.Status == session.StatusCompleted {
			if path, exportErr := exportSession(final, cfg.Storage.ExportDir, ""); exportErr != nil {
				fmt.Fprintf(os.Stderr, "warning: could not export session: %v\n", exportErr)
			} else {
				fmt.Printf("Exported to %s\n", path)
			}
		}
	}
	return runErr
}

// cmdBatch runs every persona in a directory through an unattended session
// and writes a summary document.
func cmdBatch(args []string) error {
	fs := flag.NewFlagSet("batch", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	personasDir := fs.String("personas", "", "directory of persona files (required)")
	outputDir := fs.String("output", "", "summary output directory (default: storage.export_dir)")
	workers := fs.Int("workers", 0, "concurrent sessions (default: batch.workers)")
	metricsAddr := fs.String("metrics-addr", "", "expose Prometheus metrics on this address")
	_ = fs.Parse(args)

	if *personasDir == "" {
		return fmt.Errorf("--personas DIR is required")
	}

	cfg, err := loadProject(*dir)
	if err != nil {
		return err
	}
	applyMetricsAddr(cfg, *metricsAddr)
	if *workers > 0 {
		cfg.Batch.Workers = *workers
	}

	paths, err := interview.PersonaFiles(*personasDir)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	k, err := kernel.NewKernel(ctx, cfg)
	if err != nil {
		return err
	}
	defer k.Stop()

	fmt.Printf("Running %d subjects with %d workers\n", len(paths), cfg.Batch.Workers)

	processor := batch.NewProcessor(k.BatchRunner(), cfg, logx.NewLogger("batch"))
	summary, err := processor.Run(ctx, paths)
	if err != nil {
		return err
	}

	for _, r := range summary.Results {
		switch {
		case r.Error != "":
			fmt.Printf("  ❌ %-24s %s\n", r.SubjectName, r.Error)
		case r.OverallScore != nil:
			fmt.Printf("  ✅ %-24s %.1f/10 (%.0fs)\n", r.SubjectName, *r.OverallScore, r.DurationSeconds)
		default:
			fmt.Printf("  ✅ %-24s %s (%.0fs)\n", r.SubjectName, r.Status, r.DurationSeconds)
		}
	}

	fmt.Printf("\nBatch %s: %d completed, %d failed in %.0fs\n",
		summary.BatchID, summary.Completed, summary.Failed, summary.DurationSeconds)
	if summary.Completed > 0 && summary.AvgScore > 0 {
		fmt.Printf("Scores: avg %.2f, min %.1f, max %.1f, %d at publication standard\n",
			summary.AvgScore, summary.MinScore, summary.MaxScore, summary.HighQualityCount)
	}

	outDir := *outputDir
	if outDir == "" {
		outDir = cfg.Storage.ExportDir
	}
	path, err := batch.WriteSummary(outDir, summary)
	if err != nil {
		return err
	}
	fmt.Printf("Summary written to %s\n", path)
	return nil
}

// applyMetricsAddr turns the --metrics-addr flag into config: a non-empty
// address enables metrics on that address.
func applyMetricsAddr(cfg *config.Config, addr string) {
	if addr == "" {
		return
	}
	cfg.Metrics.Enabled = true
	cfg.Metrics.Addr = addr
}

// exportSession writes the session's canonical document. An empty path
// derives <exportDir>/<session_id>.json.
func exportSession(state *session.SessionState, exportDir, path string) (string, error) {
	if path == "" {
		if exportDir == "" {
			exportDir = "."
		}
		if err := utils.EnsureDir(exportDir); err != nil {
			return "", err
		}
		path = filepath.Join(exportDir, state.SessionID+".json")
	}

	data, err := state.MarshalExport()
	if err != nil {
		return "", err
	}
	if err := utils.WriteFileAtomic(path, data, 0o644); err != nil {
		return "", err
	}
	return path, nil
}

// printSessionResult summarizes a finished (or interrupted) session.
func printSessionResult(state *session.SessionState) {
	fmt.Printf("\nSession %s: %s (phase %s, %d interview rounds)\n",
		state.SessionID, state.Status, state.Phase, state.Rounds())

	if state.HasBiography() {
		fmt.Printf("Biography: %d version(s), %d chars\n",
			len(state.Biographies), len(state.CurrentBiography()))
	}
	if state.Quality != nil {
		marker := ""
		if state.Quality.MeetsStandard {
			marker = " — meets publication standard"
		}
		fmt.Printf("Quality: %.1f/10%s\n", state.Quality.OverallScore, marker)
	}
	if state.HeroJourney != nil {
		fmt.Printf("Narrative arc: %d/%d (%.0f%%)\n",
			state.HeroJourney.TotalScore, state.HeroJourney.MaxScore, state.HeroJourney.Percentage)
	}
}

// promptLine reads one trimmed line from stdin.
func promptLine(prompt string) (string, error) {
	fmt.Print(prompt)
	scanner := bufio.NewScanner(os.Stdin)
	if !scanner.Scan() {
		if err := scanner.Err(); err != nil {
			return "", err
		}
		return "", fmt.Errorf("no input")
	}
	return strings.TrimSpace(scanner.Text()), nil
}

// consolePresenter prints coordinator progress for terminal runs.
type consolePresenter struct{}

func (consolePresenter) ShowDecision(iteration int, d coordinator.Decision, _ *session.SessionState) {
	fmt.Printf("\n[%02d] %s (%.2f via %s)\n", iteration, d.NextAction, d.Confidence, d.Source)
}

func (consolePresenter) ShowOutcome(action session.ActionName, state *session.SessionState, err error) {
	if err != nil {
		fmt.Printf("     ❌ %s: %v\n", action, err)
		return
	}

	switch action {
	case session.ActionContinueInterview:
		fmt.Printf("     round %d recorded\n", state.Rounds())
	case session.ActionEndInterview:
		fmt.Printf("     interview closed after %d rounds\n", state.Rounds())
	case session.ActionExtractEvents:
		if state.Anchors != nil {
			fmt.Printf("     anchors: %d temporal, %d locations, %d queries\n",
				len(state.Anchors.Temporal), len(state.Anchors.Location), len(state.Anchors.SearchQueries))
		}
	case session.ActionResearchHistory:
		fmt.Printf("     historical context: %d event analyses, %d social entries\n",
			len(state.Context.EventsByKey), len(state.Context.SocialContext))
	case session.ActionWriteBiography, session.ActionRefineBiography:
		fmt.Printf("     draft v%d, %d chars\n", len(state.Biographies), len(state.CurrentBiography()))
	case session.ActionEvaluateQuality:
		if state.Quality != nil {
			fmt.Printf("     quality %.1f/10\n", state.Quality.OverallScore)
		}
	case session.ActionComplete:
		fmt.Printf("     ✅ session complete\n")
	}
}
