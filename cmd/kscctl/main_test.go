package main

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/harper/ksc-bridge/internal/ksctest"
	"github.com/harper/ksc-bridge/internal/params"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, host string) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("XDG_CONFIG_HOME", filepath.Join(dir, "xdg"))
	for _, k := range []string{"KSC_HOST", "KSC_USERNAME", "KSC_PASSWORD", "KSC_PORT", "KSC_BRIDGE_KSC_HOST"} {
		t.Setenv(k, "")
	}
	path := filepath.Join(dir, "config.yaml")
	content := fmt.Sprintf("ksc:\n  host: %q\n  username: admin\n  password: pw\njournal:\n  enabled: false\n", host)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func runCLI(args ...string) (int, string, string) {
	var stdout, stderr bytes.Buffer
	code := run(args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

func TestVersionAndUsage(t *testing.T) {
	code, out, _ := runCLI("version")
	assert.Equal(t, 0, code)
	assert.Contains(t, out, "kscctl")

	code, _, errOut := runCLI()
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "usage: kscctl")
}

func TestPing(t *testing.T) {
	srv := ksctest.New(t)
	srv.HandleResult("HostGroup.GetDomains", ksctest.RetVal(params.Array()))

	code, out, errOut := runCLI("--config", writeConfig(t, srv.URL), "ping")
	require.Equal(t, 0, code, errOut)
	assert.Contains(t, out, "pong")
	assert.Equal(t, 1, srv.Logins())
}

func TestApplicationErrorExitsNonZero(t *testing.T) {
	srv := ksctest.New(t)
	srv.Handle("Tasks.RunTask", func(ksctest.Call) ksctest.Reply { return ksctest.Fault(1184, "Object not found") })

	code, out, _ := runCLI("--config", writeConfig(t, srv.URL), "run-task", "42")
	assert.Equal(t, 1, code)
	assert.Contains(t, out, "Object not found")
}

func TestUsageErrors(t *testing.T) {
	srv := ksctest.New(t)
	cfg := writeConfig(t, srv.URL)

	code, _, errOut := runCLI("--config", cfg, "host")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, "host expects 1 argument")

	code, _, errOut = runCLI("--config", cfg, "frobnicate")
	assert.Equal(t, 2, code)
	assert.Contains(t, errOut, `unknown command "frobnicate"`)

	code, _, _ = runCLI("--config", cfg, "move-host", "h1", "not-a-number")
	assert.Equal(t, 2, code)
}
