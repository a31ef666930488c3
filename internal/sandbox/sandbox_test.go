package sandbox

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/michaelbrown/javarena/internal/toolchain"
	"github.com/michaelbrown/javarena/internal/toolchain/toolchaintest"
	"github.com/michaelbrown/javarena/internal/workspace"
)

const helloSource = `public class Main {
    public static void main(String[] args) {
        System.out.println("hello");
    }
}`

const scannerSource = `import java.util.Scanner;
public class Main {
    public static void main(String[] args) {
        Scanner in = new Scanner(System.in);
        System.out.println(in.nextInt());
    }
}`

type fixture struct {
	base   string
	runner *Runner
}

func newFixture(t *testing.T, info toolchain.Info, policy Policy) fixture {
	t.Helper()
	base := t.TempDir()
	b := NewBuilder(toolchain.Static(info), policy, nil)
	return fixture{
		base:   base,
		runner: NewRunner(b, workspace.NewManager(base, nil), nil),
	}
}

func testPolicy() Policy {
	p := DefaultPolicy()
	p.CompileTimeout = 5 * time.Second
	p.RunTimeout = 500 * time.Millisecond
	return p
}

// assertNoWorkspaces fails if any workspace directory survived.
func assertNoWorkspaces(t *testing.T, base string) {
	t.Helper()
	entries, err := os.ReadDir(base)
	if err != nil && !os.IsNotExist(err) {
		t.Fatalf("reading workspace base: %v", err)
	}
	if len(entries) != 0 {
		t.Errorf("%d workspace(s) left behind in %s", len(entries), base)
	}
}

func TestExecuteCompletedExactOutput(t *testing.T) {
	java := `printf 'line one\n  spaced  \nno newline'
printf 'warn\n' >&2`
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, java), testPolicy())

	out := f.runner.Execute(context.Background(), helloSource, "")
	if !out.Succeeded {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Stdout != "line one\n  spaced  \nno newline" {
		t.Errorf("stdout = %q", out.Stdout)
	}
	if out.Stderr != "warn\n" {
		t.Errorf("stderr = %q", out.Stderr)
	}
	if out.Run.ExitReason != Completed || out.Run.ExitCode != 0 {
		t.Errorf("run = %+v", out.Run)
	}
	assertNoWorkspaces(t, f.base)
}

func TestExecuteLargeOutputNotTruncated(t *testing.T) {
	java := `i=0; while [ $i -lt 20000 ]; do echo "row $i"; i=$((i+1)); done`
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, java), DefaultPolicy())

	out := f.runner.Execute(context.Background(), helloSource, "")
	if got := strings.Count(out.Stdout, "\n"); got != 20000 {
		t.Errorf("got %d lines, want 20000", got)
	}
	if !strings.HasSuffix(out.Stdout, "row 19999\n") {
		t.Errorf("output tail = %q", out.Stdout[len(out.Stdout)-20:])
	}
}

func TestExecuteStdinIsPipedAndClosed(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "exec cat"), testPolicy())

	out := f.runner.Execute(context.Background(), scannerSource, "42\nfoo\n")
	if !out.Succeeded {
		t.Fatalf("expected success, got %+v", out)
	}
	if out.Stdout != "42\nfoo\n" {
		t.Errorf("stdout = %q", out.Stdout)
	}
}

func TestExecuteCompileFailure(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileError, "echo never"), testPolicy())

	out := f.runner.Execute(context.Background(), "class Main { int x }", "")
	if out.Succeeded || out.Compiled {
		t.Fatalf("expected compile failure, got %+v", out)
	}
	if !errors.Is(out.Err, ErrCompileFailure) {
		t.Errorf("err = %v, want ErrCompileFailure", out.Err)
	}
	if !strings.Contains(out.Error, "';' expected") {
		t.Errorf("diagnostics not surfaced verbatim: %q", out.Error)
	}
	if out.Run != nil {
		t.Error("no run expected after failed build")
	}
	assertNoWorkspaces(t, f.base)
}

func TestExecuteCompileFailureWithoutStderr(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, "exit 2", "echo never"), testPolicy())
	out := f.runner.Execute(context.Background(), helloSource, "")
	if out.Error != "Compilation failed" {
		t.Errorf("error = %q, want generic message", out.Error)
	}
}

func TestExecuteToolchainUnavailable(t *testing.T) {
	f := newFixture(t, toolchain.Info{OS: "Linux"}, testPolicy())

	out := f.runner.Execute(context.Background(), helloSource, "")
	if out.Succeeded {
		t.Fatal("expected failure")
	}
	if !errors.Is(out.Err, ErrToolchainUnavailable) {
		t.Errorf("err = %v, want ErrToolchainUnavailable", out.Err)
	}
	if out.Error != unavailableMessage {
		t.Errorf("error = %q", out.Error)
	}
	assertNoWorkspaces(t, f.base)
}

func TestBuildMissingCompilerBinary(t *testing.T) {
	info := toolchain.Info{Compiler: filepath.Join(t.TempDir(), "gone", "javac"), Runtime: "/bin/true"}
	b := NewBuilder(toolchain.Static(info), testPolicy(), nil)
	m := workspace.NewManager(t.TempDir(), nil)
	ws, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release(ws)

	res := b.Build(context.Background(), ws, helloSource)
	if res.Succeeded || !errors.Is(res.Err, ErrToolchainUnavailable) {
		t.Errorf("build = %+v, want toolchain unavailable", res)
	}
}

func TestBuildWritesSourceFile(t *testing.T) {
	javac := `cp Main.java Main.class`
	info := toolchaintest.Fake(t, javac, "exit 0")
	b := NewBuilder(toolchain.Static(info), testPolicy(), nil)
	m := workspace.NewManager(t.TempDir(), nil)
	ws, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release(ws)

	if res := b.Build(context.Background(), ws, helloSource); !res.Succeeded {
		t.Fatalf("build failed: %+v", res)
	}
	got, err := os.ReadFile(ws.File("Main.class"))
	if err != nil {
		t.Fatalf("artifact missing: %v", err)
	}
	if string(got) != helloSource {
		t.Errorf("compiler saw %q", got)
	}
}

func TestBuildTimeout(t *testing.T) {
	info := toolchaintest.Fake(t, "exec sleep 30", "exit 0")
	p := testPolicy()
	p.CompileTimeout = 200 * time.Millisecond
	b := NewBuilder(toolchain.Static(info), p, nil)
	m := workspace.NewManager(t.TempDir(), nil)
	ws, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release(ws)

	start := time.Now()
	res := b.Build(context.Background(), ws, helloSource)
	if time.Since(start) > 5*time.Second {
		t.Errorf("build took %s, limit was ignored", time.Since(start))
	}
	if !errors.Is(res.Err, ErrCompileFailure) || !errors.Is(res.Err, ErrTimeoutExceeded) {
		t.Errorf("err = %v, want compile failure wrapping timeout", res.Err)
	}
}

func TestExecuteRuntimeFailure(t *testing.T) {
	java := `echo 'Exception in thread "main" java.lang.ArithmeticException: / by zero' >&2
exit 1`
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, java), testPolicy())

	out := f.runner.Execute(context.Background(), helloSource, "")
	if !out.Succeeded {
		t.Errorf("a completed run is reported as succeeded even with a non-zero exit: %+v", out)
	}
	if out.Run.Succeeded || out.Run.ExitCode != 1 {
		t.Errorf("run = %+v, want exit 1", out.Run)
	}
	if !errors.Is(out.Err, ErrRuntimeFailure) {
		t.Errorf("err = %v, want ErrRuntimeFailure", out.Err)
	}
	if !strings.Contains(out.Error, "ArithmeticException") {
		t.Errorf("stderr not surfaced: %q", out.Error)
	}
}

func TestExecuteTimeout(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "exec sleep 30"), testPolicy())

	start := time.Now()
	out := f.runner.Execute(context.Background(), helloSource, "")
	if elapsed := time.Since(start); elapsed > 5*time.Second {
		t.Fatalf("Execute took %s; process was not killed", elapsed)
	}
	if out.Succeeded || out.NeedsInput {
		t.Fatalf("expected plain timeout, got %+v", out)
	}
	if out.Run.ExitReason != TimedOut || !errors.Is(out.Err, ErrTimeoutExceeded) {
		t.Errorf("run = %+v", out.Run)
	}
	if out.Error != "Execution timeout (500ms limit)" {
		t.Errorf("error = %q", out.Error)
	}
	assertNoWorkspaces(t, f.base)
}

func TestExecuteNeedsInput(t *testing.T) {
	// cat blocks because stdin is held open when none is supplied.
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "exec cat"), testPolicy())

	out := f.runner.Execute(context.Background(), scannerSource, "")
	if !out.NeedsInput || out.Run.ExitReason != NeedsInput {
		t.Fatalf("expected needs-input, got %+v", out)
	}
	if !errors.Is(out.Err, ErrNeedsInput) || !errors.Is(out.Err, ErrTimeoutExceeded) {
		t.Errorf("err = %v", out.Err)
	}
	if out.Error != NeedsInputMessage {
		t.Errorf("error = %q", out.Error)
	}
	assertNoWorkspaces(t, f.base)
}

func TestExecuteTimeoutWithStdinIsPlainTimeout(t *testing.T) {
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "cat >/dev/null; exec sleep 30"), testPolicy())

	out := f.runner.Execute(context.Background(), scannerSource, "5\n")
	if out.NeedsInput {
		t.Fatal("stdin was supplied; needs-input must not be reported")
	}
	if out.Run.ExitReason != TimedOut {
		t.Errorf("reason = %s, want timed_out", out.Run.ExitReason)
	}
}

func TestExecuteOutlivesCallerCancellation(t *testing.T) {
	p := testPolicy()
	p.RunTimeout = 5 * time.Second
	f := newFixture(t, toolchaintest.Fake(t, toolchaintest.CompileOK, "sleep 1; echo done"), p)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(200*time.Millisecond, cancel)
	defer cancel()

	out := f.runner.Execute(ctx, scannerSource, "")
	if out.NeedsInput || out.Run == nil || out.Run.ExitReason != Completed {
		t.Fatalf("expected a completed run, got %+v", out)
	}
	if !out.Succeeded || out.Stdout != "done\n" {
		t.Errorf("out = %+v", out)
	}
	assertNoWorkspaces(t, f.base)
}

func TestRunCancelledIsNotTimeout(t *testing.T) {
	info := toolchaintest.Fake(t, toolchaintest.CompileOK, "exec sleep 30")
	p := testPolicy()
	p.RunTimeout = 5 * time.Second
	r := NewRunner(NewBuilder(toolchain.Static(info), p, nil), workspace.NewManager(t.TempDir(), nil), nil)
	ws, err := r.workspaces.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer r.workspaces.Release(ws)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	defer cancel()

	res := r.Run(ctx, ws, scannerSource, "")
	if res.ExitReason != Completed {
		t.Errorf("reason = %s, want completed", res.ExitReason)
	}
	if !errors.Is(res.Err, ErrSandbox) || errors.Is(res.Err, ErrTimeoutExceeded) {
		t.Errorf("err = %v, want a sandbox error that is not a timeout", res.Err)
	}
}

func TestBuildCancelledIsNotCompileFailure(t *testing.T) {
	info := toolchaintest.Fake(t, "exec sleep 30", "exit 0")
	b := NewBuilder(toolchain.Static(info), testPolicy(), nil)
	m := workspace.NewManager(t.TempDir(), nil)
	ws, err := m.Acquire()
	if err != nil {
		t.Fatal(err)
	}
	defer m.Release(ws)

	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(100*time.Millisecond, cancel)
	defer cancel()

	res := b.Build(ctx, ws, helloSource)
	if res.Succeeded || errors.Is(res.Err, ErrCompileFailure) {
		t.Fatalf("res = %+v, want a cancelled build", res)
	}
	if !errors.Is(res.Err, context.Canceled) {
		t.Errorf("err = %v, want context.Canceled", res.Err)
	}
}

func TestClassifyTimeout(t *testing.T) {
	tests := []struct {
		name   string
		source string
		stdin  string
		want   ExitReason
	}{
		{"scanner no stdin", scannerSource, "", NeedsInput},
		{"scanner with stdin", scannerSource, "1", TimedOut},
		{"no input constructs", "while (true) {}", "", TimedOut},
		{"buffered reader", "new BufferedReader(new InputStreamReader(System.in)).readLine()", "", NeedsInput},
		{"nextLine only", "s.nextLine()", "", NeedsInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ClassifyTimeout(tt.source, tt.stdin); got != tt.want {
				t.Errorf("ClassifyTimeout = %s, want %s", got, tt.want)
			}
		})
	}
}

func TestRuntimeArgs(t *testing.T) {
	args := DefaultPolicy().RuntimeArgs("/w")
	got := strings.Join(args, " ")
	want := "-Dfile.encoding=UTF-8 -Dsun.stdout.encoding=UTF-8 -Dsun.stderr.encoding=UTF-8 -cp /w Main"
	if got != want {
		t.Errorf("args = %q, want %q", got, want)
	}
}
