// Package auth resolves the model credential.
package auth

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"
)

const (
	credentialDir  = ".tal-prompt-studio"
	credentialFile = "credentials.gpg"
)

// ErrNoCredential is returned when no source holds a credential. Callers
// run in mock mode on this error.
var ErrNoCredential = errors.New("no model credential found")

// Source names where a credential came from, for logging.
type Source string

const (
	SourceConfig Source = "config"
	SourceEnv    Source = "env"
	SourceGPG    Source = "gpg"
	SourceNone   Source = "none"
)

// envKeys are checked in order after the configured value.
var envKeys = []string{"GEMINI_API_KEY", "GOOGLE_API_KEY"}

// ResolveAPIKey returns the Gemini API key from the first available source:
//  1. configured (model.api_key)
//  2. GEMINI_API_KEY, then GOOGLE_API_KEY
//  3. GPG-encrypted file at ~/.tal-prompt-studio/credentials.gpg
func ResolveAPIKey(configured string) (string, Source, error) {
	if key := strings.TrimSpace(configured); key != "" {
		log.Debug().Msg("Using API key from configuration")
		return key, SourceConfig, nil
	}

	for _, name := range envKeys {
		if key := strings.TrimSpace(os.Getenv(name)); key != "" {
			log.Debug().Str("variable", name).Msg("Using API key from environment variable")
			return key, SourceEnv, nil
		}
	}

	key, err := getFromGPG()
	if err == nil && key != "" {
		log.Debug().Msg("Using API key from GPG encrypted file")
		return key, SourceGPG, nil
	}

	log.Debug().Err(err).Msg("No API key source available")
	return "", SourceNone, ErrNoCredential
}

// getFromGPG decrypts the API key from the GPG-encrypted credentials file.
func getFromGPG() (string, error) {
	credPath, err := getCredentialPath()
	if err != nil {
		return "", err
	}

	if _, err := os.Stat(credPath); os.IsNotExist(err) {
		return "", fmt.Errorf("GPG credentials file not found at %s", credPath)
	}

	log.Debug().Str("file", credPath).Msg("Decrypting GPG credentials")

	args := []string{"--decrypt", "--quiet"}

	if passphrasePath, ok := findPassphraseFile(); ok {
		fi, statErr := os.Stat(passphrasePath)
		if statErr == nil {
			// The passphrase file must be owner-only.
			mode := fi.Mode().Perm()
			if mode&0o077 != 0 {
				log.Warn().
					Str("passphrase_file", passphrasePath).
					Str("permissions", fmt.Sprintf("%04o", mode)).
					Msg("Passphrase file has insecure permissions (should be 0600); skipping")
			} else {
				log.Debug().Str("passphrase_file", passphrasePath).Msg("Using passphrase file for GPG decryption")
				args = append(args, "--pinentry-mode", "loopback", "--passphrase-file", passphrasePath)
			}
		}
	}

	args = append(args, credPath)
	output, err := exec.Command("gpg", args...).Output()
	if err != nil {
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			return "", fmt.Errorf("GPG decryption failed: %s", string(exitErr.Stderr))
		}
		return "", fmt.Errorf("GPG decryption failed: %w", err)
	}

	return strings.TrimSpace(string(output)), nil
}

// getCredentialPath returns the full path to the credentials file.
func getCredentialPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get home directory: %w", err)
	}
	return filepath.Join(home, credentialDir, credentialFile), nil
}

// findPassphraseFile looks for .gpg-passphrase next to the executable, then
// in the working directory.
func findPassphraseFile() (string, bool) {
	var dirs []string
	if exe, err := os.Executable(); err == nil {
		dirs = append(dirs, filepath.Dir(exe))
	}
	if cwd, err := os.Getwd(); err == nil {
		dirs = append(dirs, cwd)
	}
	for _, dir := range dirs {
		p := filepath.Join(dir, ".gpg-passphrase")
		if _, err := os.Stat(p); err == nil {
			return p, true
		}
	}
	return "", false
}
