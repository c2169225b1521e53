package main

import (
	"bytes"
	"flag"
	"fmt"
	"path/filepath"
	"strings"
	"syscall"

	"golang.org/x/term"

	"saga/pkg/config"
)

// credentialPrompts lists the secrets setup offers to store, in prompt order.
var credentialPrompts = []struct {
	env   string
	label string
}{
	{config.EnvAnthropicAPIKey, "Anthropic API key"},
	{config.EnvOpenAIAPIKey, "OpenAI API key"},
	{config.EnvOpenRouterAPIKey, "OpenRouter API key"},
	{config.EnvGoogleAPIKey, "Google Gemini API key"},
	{config.EnvTavilyAPIKey, "Tavily search API key"},
}

// cmdSetup collects API keys on the terminal and stores them encrypted under
// the project's config directory. Rerunning updates individual keys without
// retyping the rest.
func cmdSetup(args []string) error {
	fs := flag.NewFlagSet("setup", flag.ExitOnError)
	dir := fs.String("config", ".", "project directory")
	_ = fs.Parse(args)

	if err := config.LoadConfig(*dir); err != nil {
		return err
	}
	projectDir := config.GetProjectDir()

	if config.SecretsFileExists(projectDir) {
		fmt.Println("Existing credentials found; unlock them to update.")
		if err := unlockSecrets(projectDir); err != nil {
			return err
		}
	}

	fmt.Println("Enter API keys to store (input hidden; blank keeps the current value).")
	for _, cred := range credentialPrompts {
		fmt.Printf("%s [%s]: ", cred.label, cred.env)
		raw, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", cred.label, err)
		}
		if value := strings.TrimSpace(string(raw)); value != "" {
			config.SetSecret(cred.env, value)
		}
		for i := range raw {
			raw[i] = 0
		}
	}

	if len(config.GetDecryptedSecretNames()) == 0 {
		return fmt.Errorf("no credentials entered and none stored")
	}

	password, err := promptForPassword()
	if err != nil {
		return err
	}

	if err := config.SaveSecretsToFile(projectDir, password); err != nil {
		return err
	}
	// Writing the config file alongside initializes a fresh project dir.
	if err := config.Save(); err != nil {
		return err
	}

	fmt.Printf("🔐 Credentials saved to %s (file permissions 0600)\n",
		filepath.Join(config.ProjectConfigDir, "secrets.json.enc"))
	fmt.Printf("💡 Set %s to skip the password prompt on later runs.\n", config.EnvSagaPassword)
	return nil
}

// promptForPassword asks for a new secrets password with confirmation.
func promptForPassword() (string, error) {
	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Print("New password for stored credentials: ")
		first, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		fmt.Print("Confirm password: ")
		second, err := term.ReadPassword(syscall.Stdin)
		fmt.Println()
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}

		match := bytes.Equal(first, second)
		empty := len(first) == 0
		password := string(first)
		for i := range first {
			first[i] = 0
		}
		for i := range second {
			second[i] = 0
		}

		switch {
		case empty:
			fmt.Println("Password cannot be empty.")
		case !match:
			fmt.Println("Passwords do not match, try again.")
		default:
			return password, nil
		}
	}
	return "", fmt.Errorf("could not read a matching password after %d attempts", maxAttempts)
}
