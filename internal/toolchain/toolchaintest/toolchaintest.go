// Package toolchaintest provides shell-script stand-ins for javac and java.
package toolchaintest

import (
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/michaelbrown/javarena/internal/toolchain"
)

// Script bodies for the fake compiler.
const (
	CompileOK    = `test -f Main.java || exit 3`
	CompileError = `echo "Main.java:3: error: ';' expected" >&2
exit 1`
)

// Fake writes javac and java scripts with the given bodies into a fresh
// directory and returns a toolchain pointing at them. The scripts run
// under /bin/sh, so the test is skipped on Windows.
func Fake(t testing.TB, javac, java string) toolchain.Info {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake toolchain needs a POSIX shell")
	}
	dir := t.TempDir()
	return toolchain.Info{
		Compiler: write(t, dir, "javac", javac),
		Runtime:  write(t, dir, "java", java),
		OS:       "Linux",
	}
}

func write(t testing.TB, dir, name, body string) string {
	t.Helper()
	path := filepath.Join(dir, name)
	if err := os.WriteFile(path, []byte("#!/bin/sh\n"+body+"\n"), 0o755); err != nil {
		t.Fatalf("writing fake %s: %v", name, err)
	}
	return path
}
