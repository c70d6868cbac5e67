package main

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vaultkeeper/internal/config"
	"vaultkeeper/internal/daemon"
	"vaultkeeper/internal/inventory"
	"vaultkeeper/internal/ipc"
	"vaultkeeper/internal/logging"
	"vaultkeeper/internal/testsupport"
)

type cliTestEnv struct {
	cfg        *config.Config
	auth       *testsupport.FakeAuthority
	daemon     *daemon.Daemon
	server     *ipc.Server
	socketPath string
	configPath string
}

func setupCLITestEnv(t *testing.T) *cliTestEnv {
	t.Helper()

	cfg := testsupport.NewConfig(t)
	cfg.Paths.APIBind = ""
	configPath := filepath.Join(testsupport.BaseDir(cfg), "config.toml")
	writeTestConfig(t, configPath, cfg)

	auth := testsupport.NewFakeAuthority()
	eng := testsupport.NewEngine(t, auth)
	testsupport.MustApply(t, eng, testsupport.NewSnapshot(testsupport.At(10), testsupport.CharA, testsupport.CharB).
		Item(inventory.Vault(), testsupport.HashAutoRifle, "rifle").
		Sockets("rifle", testsupport.Plug(testsupport.WeaponPerkSocket, testsupport.HashKillClip)).
		Item(inventory.Inventory(testsupport.CharA), testsupport.HashHandCannon, "cannon").
		Build())

	d, err := daemon.New(cfg, eng, nil, logging.NewNop())
	if err != nil {
		t.Fatalf("daemon.New: %v", err)
	}

	// Unix socket paths are length-limited, so keep this one short.
	sockDir, err := os.MkdirTemp("", "vkcli")
	if err != nil {
		t.Fatalf("mkdir socket dir: %v", err)
	}
	t.Cleanup(func() { _ = os.RemoveAll(sockDir) })

	ctx, cancel := context.WithCancel(context.Background())
	socketPath := filepath.Join(sockDir, "cli.sock")
	srv, err := ipc.NewServer(ctx, socketPath, d, logging.NewNop())
	if err != nil {
		cancel()
		if strings.Contains(err.Error(), "operation not permitted") {
			t.Skipf("skipping CLI test: %v", err)
		}
		t.Fatalf("ipc.NewServer: %v", err)
	}
	srv.Serve()

	t.Cleanup(func() {
		cancel()
		srv.Close()
		_ = d.Close()
	})

	return &cliTestEnv{
		cfg:        cfg,
		auth:       auth,
		daemon:     d,
		server:     srv,
		socketPath: socketPath,
		configPath: configPath,
	}
}

func runCLI(t *testing.T, args []string, socket, configPath string) (string, string, error) {
	t.Helper()
	cmd := newRootCommand()
	var stdout, stderr bytes.Buffer
	cmd.SetOut(&stdout)
	cmd.SetErr(&stderr)
	var flags []string
	if socket != "" {
		flags = append(flags, "--socket", socket)
	}
	if configPath != "" {
		flags = append(flags, "--config", configPath)
	}
	cmd.SetArgs(append(flags, args...))
	err := cmd.Execute()
	return stdout.String(), stderr.String(), err
}

func writeTestConfig(t *testing.T, path string, cfg *config.Config) {
	t.Helper()
	content := fmt.Sprintf(
		"[paths]\nstate_dir = %q\nlog_dir = %q\napi_bind = %q\n\n[remote]\napi_key = %q\nmembership_id = %q\n\n[manifest]\npath = %q\n",
		cfg.Paths.StateDir,
		cfg.Paths.LogDir,
		cfg.Paths.APIBind,
		cfg.Remote.APIKey,
		cfg.Remote.MembershipID,
		cfg.Manifest.Path,
	)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}
}

func writeFile(t *testing.T, dir, name, content string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
	return path
}

func requireContains(t *testing.T, output, substr string) {
	t.Helper()
	if !strings.Contains(output, substr) {
		t.Fatalf("expected %q to contain %q", output, substr)
	}
}
