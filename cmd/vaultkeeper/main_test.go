package main

import (
	"encoding/json"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"vaultkeeper/internal/api"
	"vaultkeeper/internal/testsupport"
)

func TestStatusCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status: %v", err)
	}
	requireContains(t, out, "Items:")
	requireContains(t, out, "Characters:")

	out, _, err = runCLI(t, []string{"--json", "status"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("status --json: %v", err)
	}
	var status api.DaemonStatus
	if err := json.Unmarshal([]byte(out), &status); err != nil {
		t.Fatalf("decode status: %v\n%s", err, out)
	}
	if status.Items != 2 || status.Characters != 2 {
		t.Fatalf("unexpected status %+v", status)
	}
}

func TestItemsCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"items"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items: %v", err)
	}
	requireContains(t, out, "Horror's Least")
	requireContains(t, out, "Round Robin")
	requireContains(t, out, "2 items")

	out, _, err = runCLI(t, []string{"items", "--location", "vault"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items --location: %v", err)
	}
	if strings.Contains(out, "Round Robin") {
		t.Fatalf("vault filter leaked character items:\n%s", out)
	}

	out, _, err = runCLI(t, []string{"items", "show", "rifle"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("items show: %v", err)
	}
	requireContains(t, out, "Kill Clip")
}

func TestItemsShowMissing(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"items", "show", "nope"}, env.socketPath, env.configPath)
	var failure *api.Error
	if !errors.As(err, &failure) || failure.Kind != "not_found" {
		t.Fatalf("expected not_found failure, got %v", err)
	}
	if exitCode(err) != 1 {
		t.Fatalf("not_found should not be retryable")
	}
}

func TestTransferAndHistoryCommands(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"transfer", "rifle", "inventory:" + testsupport.CharA}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("transfer: %v", err)
	}
	requireContains(t, out, "rifle: vault -> inventory:"+testsupport.CharA+" accepted")

	out, _, err = runCLI(t, []string{"history", "--kind", "transfer"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("history: %v", err)
	}
	requireContains(t, out, "succeeded")
	requireContains(t, out, "rifle")
}

func TestTransferRejectsBadTarget(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"--json", "transfer", "rifle", "moon"}, env.socketPath, env.configPath)
	if err == nil {
		t.Fatal("expected failure for bad target")
	}
	var body struct {
		Kind string `json:"kind"`
	}
	if err := json.Unmarshal([]byte(out), &body); err != nil {
		t.Fatalf("decode error body: %v\n%s", err, out)
	}
	if body.Kind != "validation" {
		t.Fatalf("kind = %q", body.Kind)
	}
}

func TestLockCommand(t *testing.T) {
	env := setupCLITestEnv(t)

	out, _, err := runCLI(t, []string{"lock", "rifle"}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("lock: %v", err)
	}
	requireContains(t, out, "rifle locked")
	if calls := env.auth.CallsFor(testsupport.OpLock); len(calls) != 1 {
		t.Fatalf("expected one lock call, got %d", len(calls))
	}
}

func TestLoadoutValidateCommand(t *testing.T) {
	env := setupCLITestEnv(t)
	path := writeFile(t, t.TempDir(), "rifle.yaml", "name: Rifle\nweapons:\n  - name: Horror's Least\n")

	out, _, err := runCLI(t, []string{"loadout", "validate", path, "--character", testsupport.CharB}, env.socketPath, env.configPath)
	if err != nil {
		t.Fatalf("loadout validate: %v", err)
	}
	requireContains(t, out, "all components found")
	if len(env.auth.Calls()) != 0 {
		t.Fatal("validation must not call the authority")
	}
}

func TestLoadoutRejectsBadFileLocally(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)
	path := writeFile(t, t.TempDir(), "bad.yaml", "weapons: [")
	// No daemon is listening: a parse failure must surface before dialing.
	_, _, err := runCLI(t, []string{"loadout", "validate", path, "--character", "c"}, filepath.Join(t.TempDir(), "none.sock"), configPath)
	if err == nil || strings.Contains(err.Error(), "connect to daemon") {
		t.Fatalf("expected parse error, got %v", err)
	}
}

func TestDaemonNotRunning(t *testing.T) {
	env := setupCLITestEnv(t)

	_, _, err := runCLI(t, []string{"status"}, filepath.Join(t.TempDir(), "missing.sock"), env.configPath)
	if err == nil || !strings.Contains(err.Error(), "vaultkeeper daemon") {
		t.Fatalf("expected daemon hint, got %v", err)
	}
}

func TestExitCodeRetryable(t *testing.T) {
	if got := exitCode(&api.Error{Kind: "rate_limited", Retryable: true}); got != 75 {
		t.Fatalf("retryable exit = %d", got)
	}
	if got := exitCode(errors.New("boom")); got != 1 {
		t.Fatalf("plain exit = %d", got)
	}
}
