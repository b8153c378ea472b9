package docker

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// mockCompose records every invocation into logFile, one line per call.
func mockCompose(t *testing.T, exitCode int) (logFile string) {
	t.Helper()
	logFile = filepath.Join(t.TempDir(), "calls.log")

	orig := execCommand
	t.Cleanup(func() { execCommand = orig })
	execCommand = func(ctx context.Context, name string, arg ...string) *exec.Cmd {
		exe, _ := os.Executable()
		cmd := exec.CommandContext(ctx, exe, append([]string{"-test.run=TestComposeHelperProcess", "--", name}, arg...)...)
		cmd.Env = append(os.Environ(),
			"GO_WANT_HELPER_PROCESS=1",
			"HELPER_LOG="+logFile,
			fmt.Sprintf("HELPER_EXIT=%d", exitCode),
		)
		return cmd
	}
	return logFile
}

func TestComposeHelperProcess(t *testing.T) {
	if os.Getenv("GO_WANT_HELPER_PROCESS") != "1" {
		return
	}
	args := os.Args
	for i, a := range args {
		if a == "--" {
			args = args[i+1:]
			break
		}
	}
	wd, _ := os.Getwd()
	_, composeErr := os.Stat(filepath.Join(wd, ComposeFileName))

	f, _ := os.OpenFile(os.Getenv("HELPER_LOG"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	fmt.Fprintf(f, "%s|%s|%t\n", strings.Join(args, " "), filepath.Base(wd), composeErr == nil)
	f.Close()

	if os.Getenv("HELPER_EXIT") != "0" {
		fmt.Println("service benchmark failed to build")
		os.Exit(1)
	}
	os.Exit(0)
}

func TestRenderComposeFile(t *testing.T) {
	out := RenderComposeFile("benchmark", DefaultNetwork)
	assert.Contains(t, out, "container_name: benchmark")
	assert.Contains(t, out, `- "3000:3000"`)
	assert.Contains(t, out, "net.ipv4.ip_local_port_range=1024 65535")
	assert.Contains(t, out, `name: "sharkbench-benchmark-network"`)
	assert.Contains(t, out, "external: true")
}

func TestComposeRuntime_WithLifecycle(t *testing.T) {
	logFile := mockCompose(t, 0)
	dir := filepath.Join(t.TempDir(), "express")
	require.NoError(t, os.MkdirAll(dir, 0o755))

	rt := NewComposeRuntime()
	lifecycle := RenderComposeFile(DefaultContainerName, DefaultNetwork)
	require.NoError(t, rt.Up(context.Background(), dir, lifecycle))

	data, err := os.ReadFile(filepath.Join(dir, ComposeFileName))
	require.NoError(t, err)
	assert.Equal(t, lifecycle, string(data))
	ignore, err := os.ReadFile(filepath.Join(dir, IgnoreFileName))
	require.NoError(t, err)
	assert.Equal(t, ".dart_tool\nnode_modules\ntarget\n", string(ignore))

	require.NoError(t, rt.Down(context.Background(), dir, lifecycle))
	assert.NoFileExists(t, filepath.Join(dir, ComposeFileName))
	assert.NoFileExists(t, filepath.Join(dir, IgnoreFileName))

	calls, err := os.ReadFile(logFile)
	require.NoError(t, err)
	assert.Equal(t,
		"docker compose up --build -d|express|true\n"+
			"docker compose down --rmi all|express|true\n",
		string(calls))
}

func TestComposeRuntime_WithoutLifecycle(t *testing.T) {
	mockCompose(t, 0)
	dir := t.TempDir()
	own := filepath.Join(dir, ComposeFileName)
	require.NoError(t, os.WriteFile(own, []byte("services: {}\n"), 0o644))

	rt := NewComposeRuntime()
	require.NoError(t, rt.Up(context.Background(), dir, ""))
	require.NoError(t, rt.Down(context.Background(), dir, ""))

	assert.FileExists(t, own)
	assert.NoFileExists(t, filepath.Join(dir, IgnoreFileName))
}

func TestComposeRuntime_Failure(t *testing.T) {
	mockCompose(t, 1)
	dir := t.TempDir()

	rt := NewComposeRuntime()
	err := rt.Up(context.Background(), dir, "services: {}\n")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "docker compose up failed")
	assert.Contains(t, err.Error(), "service benchmark failed to build")

	// files are still removed when compose down fails
	err = rt.Down(context.Background(), dir, "services: {}\n")
	require.Error(t, err)
	assert.NoFileExists(t, filepath.Join(dir, ComposeFileName))
}
