package sandbox

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"go.uber.org/zap"
)

// === PathGuard ===

func TestPathGuardAllowsInside(t *testing.T) {
	dir := t.TempDir()
	guard := NewPathGuard([]string{dir})

	resolved, err := guard.Resolve(filepath.Join(dir, "sub", "file.txt"))
	if err != nil {
		t.Fatalf("Resolve: %v", err)
	}
	if !strings.HasSuffix(resolved, filepath.Join("sub", "file.txt")) {
		t.Errorf("resolved: %q", resolved)
	}
}

func TestPathGuardAllowsRootItself(t *testing.T) {
	dir := t.TempDir()
	guard := NewPathGuard([]string{dir})
	if _, err := guard.Resolve(dir); err != nil {
		t.Errorf("Resolve(root): %v", err)
	}
}

func TestPathGuardRejectsOutside(t *testing.T) {
	dir := t.TempDir()
	guard := NewPathGuard([]string{dir})
	if _, err := guard.Resolve("/etc/passwd"); err == nil {
		t.Error("outside path accepted")
	}
}

func TestPathGuardRejectsTraversal(t *testing.T) {
	dir := t.TempDir()
	guard := NewPathGuard([]string{dir})
	if _, err := guard.Resolve(filepath.Join(dir, "..", "escape.txt")); err == nil {
		t.Error("dot-dot traversal accepted")
	}
}

func TestPathGuardRejectsPrefixSibling(t *testing.T) {
	// "/data" must not admit "/database" — exactly the failure mode of
	// string-prefix containment.
	base := t.TempDir()
	allowed := filepath.Join(base, "data")
	sibling := filepath.Join(base, "database")
	for _, d := range []string{allowed, sibling} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	guard := NewPathGuard([]string{allowed})
	if _, err := guard.Resolve(filepath.Join(sibling, "secret.txt")); err == nil {
		t.Error("prefix sibling accepted")
	}
}

func TestPathGuardResolvesSymlinkEscape(t *testing.T) {
	base := t.TempDir()
	allowed := filepath.Join(base, "allowed")
	outside := filepath.Join(base, "outside")
	for _, d := range []string{allowed, outside} {
		if err := os.MkdirAll(d, 0o755); err != nil {
			t.Fatal(err)
		}
	}
	link := filepath.Join(allowed, "link")
	if err := os.Symlink(outside, link); err != nil {
		t.Skipf("symlinks unavailable: %v", err)
	}

	guard := NewPathGuard([]string{allowed})
	if _, err := guard.Resolve(filepath.Join(link, "file.txt")); err == nil {
		t.Error("symlink escape accepted")
	}
}

// === CommandRunner ===

func TestRunnerRejectsUnlistedCommand(t *testing.T) {
	runner := NewCommandRunner([]string{"echo"}, time.Second, zap.NewNop())
	if _, err := runner.Run(context.Background(), []string{"rm", "-rf", "/"}); err == nil {
		t.Fatal("unlisted command accepted")
	}
}

func TestRunnerBasenameCheck(t *testing.T) {
	runner := NewCommandRunner([]string{"echo"}, time.Second, zap.NewNop())
	if !runner.Allowed("/bin/echo") {
		t.Error("full path to allowed binary rejected")
	}
	if runner.Allowed("/bin/rm") {
		t.Error("full path to unlisted binary accepted")
	}
}

func TestRunnerCapturesOutput(t *testing.T) {
	runner := NewCommandRunner([]string{"echo"}, 5*time.Second, zap.NewNop())
	result, err := runner.Run(context.Background(), []string{"echo", "hello", "world"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if strings.TrimSpace(result.Stdout) != "hello world" {
		t.Errorf("stdout: %q", result.Stdout)
	}
	if result.ExitCode != 0 {
		t.Errorf("exit code: %d", result.ExitCode)
	}
}

func TestRunnerNonZeroExit(t *testing.T) {
	runner := NewCommandRunner([]string{"false"}, time.Second, zap.NewNop())
	result, err := runner.Run(context.Background(), []string{"false"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if result.ExitCode == 0 {
		t.Error("exit code 0 from false")
	}
}

func TestRunnerTimeout(t *testing.T) {
	runner := NewCommandRunner([]string{"sleep"}, 100*time.Millisecond, zap.NewNop())
	result, err := runner.Run(context.Background(), []string{"sleep", "5"})
	if err != nil {
		t.Fatalf("Run: %v", err)
	}
	if !result.Killed {
		t.Error("long-running command not killed by timeout")
	}
}

func TestRunnerEmptyArgv(t *testing.T) {
	runner := NewCommandRunner([]string{"echo"}, time.Second, zap.NewNop())
	if _, err := runner.Run(context.Background(), nil); err == nil {
		t.Error("empty argv accepted")
	}
}

func TestSplitCommand(t *testing.T) {
	got := SplitCommand("git  status --short")
	want := []string{"git", "status", "--short"}
	if len(got) != len(want) {
		t.Fatalf("SplitCommand: got %v", got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("token %d: got %q, want %q", i, got[i], want[i])
		}
	}
}
