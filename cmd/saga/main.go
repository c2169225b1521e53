// Command saga runs the biography pipeline: interviews (live or simulated),
// event extraction, historical research, writing, evaluation, and refinement,
// with sessions persisted in a local SQLite store.
//
// Usage:
//
//	saga run --interactive [--subject NAME]
//	saga run --persona FILE
//	saga batch --personas DIR
//	saga sessions list|show|export|import|delete|cleanup
//	saga models
//	saga setup
//	saga metrics SESSION_ID
package main

import (
	"fmt"
	"os"
	"syscall"

	"golang.org/x/term"

	"saga/pkg/config"
	"saga/pkg/version"
)

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(2)
	}

	var err error
	switch os.Args[1] {
	case "run":
		err = cmdRun(os.Args[2:])
	case "batch":
		err = cmdBatch(os.Args[2:])
	case "sessions":
		err = cmdSessions(os.Args[2:])
	case "models":
		err = cmdModels(os.Args[2:])
	case "setup":
		err = cmdSetup(os.Args[2:])
	case "metrics":
		err = cmdMetrics(os.Args[2:])
	case "version", "--version":
		fmt.Printf("saga %s (commit %s, built %s)\n", version.Version, version.Commit, version.Date)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
		printUsage()
		os.Exit(2)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, "saga - LLM-driven biography pipeline\n\n")
	fmt.Fprintf(os.Stderr, "Usage:\n")
	fmt.Fprintf(os.Stderr, "  saga run --interactive [--subject NAME]   interview on this terminal\n")
	fmt.Fprintf(os.Stderr, "  saga run --persona FILE                   run one simulated subject\n")
	fmt.Fprintf(os.Stderr, "  saga run --resume SESSION_ID ...          continue a stored session\n")
	fmt.Fprintf(os.Stderr, "  saga batch --personas DIR                 run every persona in a directory\n")
	fmt.Fprintf(os.Stderr, "  saga sessions list                        list stored sessions\n")
	fmt.Fprintf(os.Stderr, "  saga sessions show SESSION_ID             inspect one session\n")
	fmt.Fprintf(os.Stderr, "  saga sessions export SESSION_ID [-o FILE] write a session document\n")
	fmt.Fprintf(os.Stderr, "  saga sessions import FILE                 load a session document\n")
	fmt.Fprintf(os.Stderr, "  saga sessions delete SESSION_ID           remove a session and its logs\n")
	fmt.Fprintf(os.Stderr, "  saga sessions cleanup [--days N]          drop sessions idle longer than N days\n")
	fmt.Fprintf(os.Stderr, "  saga models                               list known models and costs\n")
	fmt.Fprintf(os.Stderr, "  saga setup                                store encrypted API credentials\n")
	fmt.Fprintf(os.Stderr, "  saga metrics SESSION_ID [--prom URL]      query per-session LLM usage\n")
	fmt.Fprintf(os.Stderr, "  saga version                              print build information\n\n")
	fmt.Fprintf(os.Stderr, "Common flags:\n")
	fmt.Fprintf(os.Stderr, "  --config DIR        project directory holding %s/ (default \".\")\n", config.ProjectConfigDir)
	fmt.Fprintf(os.Stderr, "  --metrics-addr ADDR expose Prometheus metrics while running\n")
}

// loadProject installs the project configuration and, when an encrypted
// secrets file exists, unlocks it so credential lookups can see stored keys.
func loadProject(dir string) (*config.Config, error) {
	if err := config.LoadConfig(dir); err != nil {
		return nil, err
	}
	cfg, err := config.GetConfig()
	if err != nil {
		return nil, err
	}

	if config.SecretsFileExists(config.GetProjectDir()) {
		if err := unlockSecrets(config.GetProjectDir()); err != nil {
			return nil, err
		}
	}
	return &cfg, nil
}

// unlockSecrets decrypts the stored credentials with SAGA_PASSWORD or an
// interactive prompt.
func unlockSecrets(dir string) error {
	password := os.Getenv(config.EnvSagaPassword)
	if password == "" {
		fmt.Fprint(os.Stderr, "Password for stored credentials: ")
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return fmt.Errorf("failed to read password: %w", err)
		}
		password = string(raw)
	}

	secrets, err := config.DecryptSecretsFile(dir, password)
	if err != nil {
		return fmt.Errorf("failed to unlock stored credentials: %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}
