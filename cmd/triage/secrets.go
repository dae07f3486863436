package main

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"os"
	"strings"
	"syscall"

	"golang.org/x/term"

	"bugtriage/pkg/config"
)

// EnvPassword supplies the secrets-file password for non-interactive use.
const EnvPassword = "TRIAGE_PASSWORD"

// EnvAPIToken is the secret that, when set, protects the HTTP API.
const EnvAPIToken = "TRIAGE_API_TOKEN"

// unlockSecrets decrypts the project secrets file into memory. A project without one relies on
// environment variables alone.
func unlockSecrets(env *cliEnv) error {
	if !config.SecretsFileExists(env.projectDir) {
		return nil
	}
	password, err := readPassword(env, "🔐 Password for the secrets file: ", false)
	if err != nil {
		return err
	}
	secrets, err := config.DecryptSecretsFile(env.projectDir, password)
	if err != nil {
		return fmt.Errorf("failed to decrypt secrets (wrong password?): %w", err)
	}
	config.SetDecryptedSecrets(secrets)
	return nil
}

// readPassword returns $TRIAGE_PASSWORD when set, otherwise prompts on the terminal.
// With confirm the password is asked for twice, up to three times.
func readPassword(env *cliEnv, prompt string, confirm bool) (string, error) {
	if pw := os.Getenv(EnvPassword); pw != "" {
		return pw, nil
	}
	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", fmt.Errorf("no terminal to prompt for a password; set %s", EnvPassword)
	}

	const maxAttempts = 3
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		fmt.Fprint(env.stderr, prompt)
		password1, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(env.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		if len(password1) == 0 {
			fmt.Fprintln(env.stderr, "❌ Password cannot be empty.")
			continue
		}
		if !confirm {
			return string(password1), nil
		}

		fmt.Fprint(env.stderr, "Confirm password: ")
		password2, err := term.ReadPassword(int(syscall.Stdin))
		fmt.Fprintln(env.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read password: %w", err)
		}
		match := bytes.Equal(password1, password2)
		password := string(password1)
		clear(password1)
		clear(password2)
		if match {
			return password, nil
		}
		if attempt < maxAttempts {
			fmt.Fprintln(env.stderr, "❌ Passwords do not match. Please try again.")
		}
	}
	return "", fmt.Errorf("no usable password after %d attempts", maxAttempts)
}

// readSecretValue reads a secret without echo on a terminal, or one line from a pipe.
func readSecretValue(env *cliEnv, name string) (string, error) {
	if f, ok := env.stdin.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		fmt.Fprintf(env.stderr, "Value for %s: ", name)
		value, err := term.ReadPassword(int(f.Fd()))
		fmt.Fprintln(env.stderr)
		if err != nil {
			return "", fmt.Errorf("failed to read value: %w", err)
		}
		return strings.TrimSpace(string(value)), nil
	}
	line, err := bufio.NewReader(env.stdin).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("failed to read value for %s: %w", name, err)
	}
	return strings.TrimSpace(line), nil
}

func cmdSecrets(_ context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet(env, "secrets", "set NAME | unset NAME | list")
	if err := fs.Parse(args); err != nil {
		return err //nolint:wrapcheck // flag errors are printed by the flag set
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return exitError(2)
	}

	exists := config.SecretsFileExists(env.projectDir)
	password, err := readPassword(env, "🔐 Password for the secrets file: ", !exists && fs.Arg(0) == "set")
	if err != nil {
		return err
	}
	if exists {
		secrets, err := config.DecryptSecretsFile(env.projectDir, password)
		if err != nil {
			return fmt.Errorf("failed to decrypt secrets (wrong password?): %w", err)
		}
		config.SetDecryptedSecrets(secrets)
	}

	switch fs.Arg(0) {
	case "list":
		names := config.SecretNames()
		if len(names) == 0 {
			fmt.Fprintln(env.stdout, "No secrets stored.")
			return nil
		}
		for _, name := range names {
			fmt.Fprintln(env.stdout, name)
		}
		return nil

	case "set", "unset":
		if fs.NArg() != 2 {
			fs.Usage()
			return exitError(2)
		}
		name := fs.Arg(1)
		if fs.Arg(0) == "set" {
			value, err := readSecretValue(env, name)
			if err != nil {
				return err
			}
			if value == "" {
				return fmt.Errorf("refusing to store an empty value for %s", name)
			}
			config.SetSecret(name, value)
		} else {
			config.DeleteSecret(name)
		}
		if err := config.SaveSecretsToFile(env.projectDir, password); err != nil {
			return fmt.Errorf("failed to save secrets: %w", err)
		}
		fmt.Fprintf(env.stdout, "✅ Saved %s to %s\n", name, config.SecretsPath(env.projectDir))
		return nil

	default:
		fs.Usage()
		return exitError(2)
	}
}
