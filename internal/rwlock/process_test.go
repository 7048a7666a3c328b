package rwlock

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/spf13/afero"

	"github.com/efiop/dvc/internal/lock"
)

// startReader runs a child test process that read-locks path in the repo at
// root and holds it until stdin is closed. It returns the child's pid.
func startReader(t *testing.T, root, path string) (*exec.Cmd, io.WriteCloser, int) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("helper process protocol uses unix pipes")
	}

	cmd := exec.Command(os.Args[0], "-test.run=^TestRWLockHelperProcess$")
	cmd.Env = append(os.Environ(),
		"DVC_WANT_RWLOCK_HELPER=1",
		"DVC_HELPER_ROOT="+root,
		"DVC_HELPER_PATH="+path,
	)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		t.Fatal(err)
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		t.Fatal(err)
	}
	cmd.Stderr = os.Stderr
	if err := cmd.Start(); err != nil {
		t.Fatalf("start helper: %v", err)
	}

	line, err := bufio.NewReader(stdout).ReadString('\n')
	pid, convErr := strconv.Atoi(strings.TrimSpace(line))
	if err != nil || convErr != nil {
		_ = cmd.Process.Kill()
		_ = cmd.Wait()
		t.Fatalf("helper did not acquire: %q, %v", line, err)
	}
	return cmd, stdin, pid
}

func TestRWLock_CrossProcessReadBlocksWrite(t *testing.T) {
	repo := newTestRepo(t)
	cmd, stdin, childPID := startReader(t, repo.root, "data/foo")

	p := repo.process(os.Getpid())
	_, err := p.Acquire(nil, []string{"data/foo"})
	assertBusy(t, err, "data/foo", []int{childPID})

	_ = stdin.Close()
	if err := cmd.Wait(); err != nil {
		t.Fatalf("helper failed: %v", err)
	}

	g, err := p.Acquire(nil, []string{"data/foo"})
	if err != nil {
		t.Fatalf("write after child released: %v", err)
	}
	assertState(t, repo.state(t), State{"data/foo": {Writer: os.Getpid()}})
	if err := g.Release(); err != nil {
		t.Fatal(err)
	}
	if st := repo.state(t); len(st) != 0 {
		t.Errorf("document should be empty, got %v", describe(st))
	}
}

func TestRWLock_CrashedHolderLeavesStaleEntry(t *testing.T) {
	repo := newTestRepo(t)
	cmd, _, childPID := startReader(t, repo.root, "data/foo")

	if err := cmd.Process.Kill(); err != nil {
		t.Fatal(err)
	}
	_ = cmd.Wait()

	// The gate is free again, but the bookkeeping entry survives.
	st, err := repo.process(os.Getpid()).Snapshot()
	if err != nil {
		t.Fatalf("Snapshot after crash: %v", err)
	}
	assertState(t, st, State{"data/foo": {Readers: []int{childPID}}})

	stale := Stale(st)
	if len(stale) != 1 || stale[0].Path != "data/foo" || stale[0].PIDs[0] != childPID {
		t.Errorf("Stale() = %+v", stale)
	}
}

// TestRWLockHelperProcess is re-executed as a child by the tests above.
func TestRWLockHelperProcess(t *testing.T) {
	if os.Getenv("DVC_WANT_RWLOCK_HELPER") != "1" {
		return
	}

	root := os.Getenv("DVC_HELPER_ROOT")
	store := NewStore(afero.NewOsFs(), filepath.Join(root, ".dvc", "tmp", DocumentName))
	gate := lock.New(filepath.Join(root, ".dvc", "lock"), lock.WithRetryDelay(50*time.Millisecond))

	g, err := New(store, gate, WithRoot(root)).Acquire([]string{os.Getenv("DVC_HELPER_PATH")}, nil)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}
	fmt.Println(os.Getpid())

	_, _ = io.Copy(io.Discard, os.Stdin)

	if err := g.Release(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(3)
	}
	os.Exit(0)
}
