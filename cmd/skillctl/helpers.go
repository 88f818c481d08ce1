package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"strings"
	"syscall"
	"time"

	"github.com/vorpalengineering/x402-skills/catalog"
	"github.com/vorpalengineering/x402-skills/config"
	"github.com/zalando/go-keyring"
	"golang.org/x/term"
)

const keyringService = "skillctl"

var httpClient = &http.Client{Timeout: 15 * time.Second}

// readJSONOrFile returns JSON bytes from either an inline JSON string or a file path.
func readJSONOrFile(input string) ([]byte, error) {
	if strings.HasPrefix(strings.TrimSpace(input), "{") {
		return []byte(input), nil
	}
	data, err := os.ReadFile(input)
	if err != nil {
		return nil, fmt.Errorf("failed to read input file %s: %w", input, err)
	}
	return data, nil
}

func printJSON(v any) error {
	jsonBytes, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to format response: %w", err)
	}
	fmt.Println(string(jsonBytes))
	return nil
}

func getJSON(ctx context.Context, url string, v any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var body struct {
			Error string `json:"error"`
		}
		_ = json.NewDecoder(resp.Body).Decode(&body)
		if body.Error != "" {
			return fmt.Errorf("%s (status %d)", body.Error, resp.StatusCode)
		}
		return fmt.Errorf("unexpected status code: %d", resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(v); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func lookupSkill(id string) (*catalog.Skill, error) {
	skill, ok := catalog.Default().Get(id)
	if !ok {
		return nil, fmt.Errorf("unknown skill: %s", id)
	}
	return skill, nil
}

// skillInput decodes --input against the skill schema, falling back to the
// skill's example input.
func skillInput(skill *catalog.Skill, raw string) (catalog.Input, error) {
	data := []byte(skill.ExampleInput)
	if raw != "" {
		var err error
		if data, err = readJSONOrFile(raw); err != nil {
			return nil, err
		}
	}
	return catalog.DecodeJSON(skill, data)
}

// walletKey resolves the signing key from the environment, then the OS
// keyring, then an interactive prompt.
func walletKey() (string, error) {
	if cfg.PrivateKey != "" {
		return cfg.PrivateKey, nil
	}

	key, err := keyring.Get(keyringService, cfg.Network)
	if err == nil {
		return key, nil
	}
	if !errors.Is(err, keyring.ErrNotFound) {
		logger.WithError(err).Debug("Keyring unavailable")
	}

	if !term.IsTerminal(int(syscall.Stdin)) {
		return "", config.ErrMissingPrivateKey
	}
	return promptSecret("Wallet private key: ")
}

func promptSecret(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	secret, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("failed to read input: %w", err)
	}
	if len(secret) == 0 {
		return "", errors.New("input cannot be empty")
	}
	return strings.TrimSpace(string(secret)), nil
}

func confirm(prompt string) bool {
	fmt.Fprintf(os.Stderr, "%s [y/N]: ", prompt)
	line, err := bufio.NewReader(os.Stdin).ReadString('\n')
	if err != nil {
		return false
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes"
}
