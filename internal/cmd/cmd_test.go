package cmd

import (
	"bytes"
	"encoding/json"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/efiop/dvc/internal/errors"
	"github.com/efiop/dvc/internal/logging"
	"github.com/efiop/dvc/internal/repo"
	"github.com/efiop/dvc/internal/rwlock"
	"github.com/efiop/dvc/internal/testutil"
	"github.com/efiop/dvc/internal/ui"
)

// executeCommand runs a cobra command with args and returns captured output.
// Flag and viper state is reset afterwards since rootCmd is shared.
func executeCommand(root *cobra.Command, args ...string) (output string, err error) {
	viper.Reset()
	_ = viper.BindPFlag("config", root.PersistentFlags().Lookup("config"))
	defer resetFlags(root)

	buf := new(bytes.Buffer)
	root.SetOut(buf)
	root.SetErr(buf)
	root.SetArgs(args)
	err = root.Execute()
	return buf.String(), err
}

func resetFlags(root *cobra.Command) {
	_ = root.PersistentFlags().Set("cd", "")
	_ = root.PersistentFlags().Set("config", "")
	lockStatusStale = false
	lockStatusJSON = false
	configSetGlobal = false
	logsTail = 50
	logsLevel = ""
	logsSince = ""
	logsGrep = ""
}

// setupTestEnvironment creates an initialized repository and isolates the
// user config directory.
func setupTestEnvironment(t *testing.T) *repo.Repo {
	t.Helper()
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	r, err := repo.Init(testutil.SetupTestRepo(t))
	if err != nil {
		t.Fatal(err)
	}
	return r
}

// deadPID returns the pid of a process that has already exited.
func deadPID(t *testing.T) int {
	t.Helper()
	c := exec.Command(os.Args[0], "-test.run=^$")
	if err := c.Run(); err != nil {
		t.Fatalf("run child: %v", err)
	}
	return c.Process.Pid
}

func TestRootCommand(t *testing.T) {
	if rootCmd.Use != "dvc" {
		t.Errorf("rootCmd.Use = %q, want %q", rootCmd.Use, "dvc")
	}

	expectedCmds := []string{"init", "lock", "stage", "logs", "config"}
	cmdMap := make(map[string]bool)
	for _, cmd := range rootCmd.Commands() {
		cmdMap[cmd.Name()] = true
	}
	for _, expected := range expectedCmds {
		if !cmdMap[expected] {
			t.Errorf("expected subcommand %q not found", expected)
		}
	}
}

func TestInitCommand(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())
	dir := t.TempDir()

	output, err := executeCommand(rootCmd, "--cd", dir, "init")
	if err != nil {
		t.Fatalf("init command failed: %v\nOutput: %s", err, output)
	}
	if !strings.Contains(output, "Initialized dvc repository.") {
		t.Errorf("output = %q", output)
	}
	if _, err := os.Stat(filepath.Join(dir, ".dvc", "tmp")); err != nil {
		t.Errorf(".dvc/tmp was not created: %v", err)
	}
}

func TestLockStatus_NotARepository(t *testing.T) {
	t.Setenv("XDG_CONFIG_HOME", t.TempDir())

	_, err := executeCommand(rootCmd, "--cd", t.TempDir(), "lock", "status")
	if !errors.Is(err, errors.ErrNotDvcRepository) {
		t.Errorf("error = %v, want ErrNotDvcRepository", err)
	}
}

func TestLockStatus(t *testing.T) {
	r := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "--cd", r.Root, "lock", "status")
	if err != nil {
		t.Fatalf("lock status: %v", err)
	}
	if !strings.Contains(output, "No path locks held.") {
		t.Errorf("empty status output = %q", output)
	}

	dead := deadPID(t)
	if _, err := r.RWLock(nil).Acquire([]string{"data/foo"}, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := r.RWLock(nil, rwlock.WithPID(dead)).Acquire(nil, []string{"model.pkl"}); err != nil {
		t.Fatal(err)
	}

	output, err = executeCommand(rootCmd, "--cd", r.Root, "lock", "status")
	if err != nil {
		t.Fatalf("lock status: %v", err)
	}
	for _, want := range []string{"data/foo", "read", "model.pkl", "write", "stale"} {
		if !strings.Contains(output, want) {
			t.Errorf("status output missing %q:\n%s", want, output)
		}
	}

	output, err = executeCommand(rootCmd, "--cd", r.Root, "lock", "status", "--stale", "--json")
	if err != nil {
		t.Fatalf("lock status --stale --json: %v", err)
	}
	var rows []ui.LockRow
	if err := json.Unmarshal([]byte(output), &rows); err != nil {
		t.Fatalf("output is not JSON: %v\n%s", err, output)
	}
	if len(rows) != 1 || rows[0].Path != "model.pkl" || rows[0].Alive || rows[0].PIDs[0] != dead {
		t.Errorf("stale rows = %+v", rows)
	}
}

func TestLockClear(t *testing.T) {
	r := setupTestEnvironment(t)
	if _, err := r.RWLock(nil, rwlock.WithPID(12345)).Acquire([]string{"a"}, []string{"b"}); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(rootCmd, "--cd", r.Root, "lock", "clear", "b", "missing")
	if err != nil {
		t.Fatalf("lock clear: %v", err)
	}
	if !strings.Contains(output, "Removed 1 of 2 lock entries.") {
		t.Errorf("output = %q", output)
	}

	state, _ := r.RWLock(nil).Snapshot()
	if _, ok := state["b"]; ok {
		t.Error("b should have been cleared")
	}
	if _, ok := state["a"]; !ok {
		t.Error("a should be untouched")
	}

	if _, err := executeCommand(rootCmd, "--cd", r.Root, "lock", "clear"); err == nil {
		t.Error("lock clear without paths should fail")
	}
}

func TestLockClear_RelativeToWorkingDirectory(t *testing.T) {
	r := setupTestEnvironment(t)
	testutil.WriteFiles(t, r.Root, map[string]string{"sub/.keep": ""})
	if _, err := r.RWLock(nil, rwlock.WithPID(12345)).Acquire(nil, []string{"sub/foo", "foo"}); err != nil {
		t.Fatal(err)
	}

	output, err := executeCommand(rootCmd, "--cd", filepath.Join(r.Root, "sub"), "lock", "clear", "foo")
	if err != nil {
		t.Fatalf("lock clear: %v", err)
	}
	if !strings.Contains(output, "Removed 1 of 1 lock entries.") {
		t.Errorf("output = %q", output)
	}

	state, _ := r.RWLock(nil).Snapshot()
	if _, ok := state["sub/foo"]; ok {
		t.Error("sub/foo should have been cleared")
	}
	if _, ok := state["foo"]; !ok {
		t.Error("foo at the repository root should be untouched")
	}
}

func TestFormatError(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		want     string
		wantHint bool
	}{
		{
			name:     "busy path",
			err:      errors.NewWriterBusyError("in.txt", 100),
			want:     "ERROR: 'in.txt' is busy, it is being written to by '100'.",
			wantHint: true,
		},
		{
			name:     "busy path inside a stage error chain",
			err:      errors.Wrap(errors.NewReadersBusyError("in.txt", []int{1, 2}), "stage"),
			want:     "ERROR: stage: 'in.txt' is busy, it is being read by '[1, 2]'",
			wantHint: true,
		},
		{
			name: "gate contention is not retried",
			err:  errors.NewLockError("/repo/.dvc/lock"),
			want: "ERROR: " + errors.FailedToLockMessage,
		},
		{
			name: "plain error",
			err:  errors.New("disk full"),
			want: "ERROR: disk full",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := FormatError(tt.err)
			first, rest, _ := strings.Cut(got, "\n")
			if first != tt.want {
				t.Errorf("first line = %q, want %q", first, tt.want)
			}
			if hasHint := strings.Contains(rest, "run the command again"); hasHint != tt.wantHint {
				t.Errorf("retry hint = %v, want %v (output %q)", hasHint, tt.wantHint, got)
			}
		})
	}
}

func TestLogInternal(t *testing.T) {
	var buf bytes.Buffer
	logger := logging.NewWriterLogger(&buf, logging.LevelDebug)

	busy := errors.NewWriterBusyError("in.txt", 100)
	if err := logInternal(logger, busy); err != busy {
		t.Errorf("logInternal should return its argument, got %v", err)
	}
	if buf.Len() != 0 {
		t.Errorf("user-facing error should not be logged: %q", buf.String())
	}

	internal := errors.New("mkdir out: permission denied")
	if err := logInternal(logger, internal); err != internal {
		t.Errorf("logInternal should return its argument, got %v", err)
	}
	if !strings.Contains(buf.String(), "command failed") || !strings.Contains(buf.String(), "permission denied") {
		t.Errorf("internal error not logged: %q", buf.String())
	}

	if err := logInternal(logger, nil); err != nil {
		t.Errorf("logInternal(nil) = %v", err)
	}
}

func TestStageRun(t *testing.T) {
	testutil.SkipIfNoShell(t)
	r := setupTestEnvironment(t)
	testutil.WriteFiles(t, r.Root, map[string]string{
		"data/in.txt": "42\n",
		"double.yaml": "cmd: cat data/in.txt data/in.txt > out/double.txt\n" +
			"deps:\n  - path: data/in.txt\nouts:\n  - path: out/double.txt\n",
	})

	output, err := executeCommand(rootCmd, "--cd", r.Root, "stage", "run", "double.yaml")
	if err != nil {
		t.Fatalf("stage run: %v\n%s", err, output)
	}
	if !strings.Contains(output, "Stage 'double.yaml' finished.") {
		t.Errorf("output = %q", output)
	}
	if got := testutil.ReadFile(t, r.Root, "out/double.txt"); got != "42\n42\n" {
		t.Errorf("out/double.txt = %q", got)
	}
}

func TestStageRun_Busy(t *testing.T) {
	testutil.SkipIfNoShell(t)
	r := setupTestEnvironment(t)
	testutil.WriteFiles(t, r.Root, map[string]string{
		"in.txt": "x",
		"s.yaml": "cmd: cp in.txt out.txt\ndeps:\n  - path: in.txt\nouts:\n  - path: out.txt\n",
	})
	if _, err := r.RWLock(nil, rwlock.WithPID(100)).Acquire(nil, []string{"in.txt"}); err != nil {
		t.Fatal(err)
	}

	_, err := executeCommand(rootCmd, "--cd", r.Root, "stage", "run", "s.yaml")
	if !errors.Is(err, errors.ErrResourceBusy) {
		t.Fatalf("error = %v, want ErrResourceBusy", err)
	}
	if err.Error() != "'in.txt' is busy, it is being written to by '100'." {
		t.Errorf("message = %q", err.Error())
	}
}

func TestConfigSet(t *testing.T) {
	r := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "--cd", r.Root, "config", "set", "logging.level", "debug")
	if err != nil {
		t.Fatalf("config set: %v", err)
	}
	if !strings.Contains(output, r.ConfigPath()) {
		t.Errorf("output = %q", output)
	}
	if content := testutil.ReadFile(t, r.Root, ".dvc/config.yaml"); !strings.Contains(content, "level: debug") {
		t.Errorf("config file = %q", content)
	}

	output, err = executeCommand(rootCmd, "--cd", r.Root, "config", "show")
	if err != nil {
		t.Fatalf("config show: %v", err)
	}
	if !strings.Contains(output, "level: debug") || !strings.Contains(output, r.ConfigPath()) {
		t.Errorf("config show = %q", output)
	}

	tests := []struct {
		name string
		args []string
	}{
		{"unknown key", []string{"config", "set", "core.remote", "x"}},
		{"bad bool", []string{"config", "set", "logging.enabled", "yes"}},
		{"bad level", []string{"config", "set", "logging.level", "loud"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			args := append([]string{"--cd", r.Root}, tt.args...)
			if _, err := executeCommand(rootCmd, args...); err == nil {
				t.Errorf("%v should fail", tt.args)
			}
		})
	}
}

func TestLogs(t *testing.T) {
	testutil.SkipIfNoShell(t)
	r := setupTestEnvironment(t)

	output, err := executeCommand(rootCmd, "--cd", r.Root, "logs")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(output, "No log found") {
		t.Errorf("output without log = %q", output)
	}

	if _, err := executeCommand(rootCmd, "--cd", r.Root, "config", "set", "logging.enabled", "true"); err != nil {
		t.Fatal(err)
	}
	testutil.WriteFiles(t, r.Root, map[string]string{"s.yaml": "cmd: echo hi > out.txt\nouts:\n  - path: out.txt\n"})
	if out, err := executeCommand(rootCmd, "--cd", r.Root, "stage", "run", "s.yaml"); err != nil {
		t.Fatalf("stage run: %v\n%s", err, out)
	}

	output, err = executeCommand(rootCmd, "--cd", r.Root, "logs", "--grep", "echo")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(output, "running stage") || !strings.Contains(output, "stage finished") {
		t.Errorf("logs output = %q", output)
	}

	output, err = executeCommand(rootCmd, "--cd", r.Root, "logs", "--level", "error")
	if err != nil {
		t.Fatalf("logs: %v", err)
	}
	if !strings.Contains(output, "No matching log entries found.") {
		t.Errorf("error-level logs = %q", output)
	}
}

func TestLogFilter(t *testing.T) {
	entry := &logEntry{Level: "WARN", Msg: "path lock conflict", Extra: map[string]any{"error": "'data/foo' is busy"}}

	tests := []struct {
		name   string
		filter logFilter
		want   bool
	}{
		{"no filter", logFilter{minLevel: -1}, true},
		{"below min level", logFilter{minLevel: levelPriority("ERROR")}, false},
		{"at min level", logFilter{minLevel: levelPriority("WARN")}, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.filter.passes(entry); got != tt.want {
				t.Errorf("passes() = %v, want %v", got, tt.want)
			}
		})
	}
}
