// Package toolchain locates the host Java compiler and runtime.
package toolchain

import (
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"runtime"
	"sort"
	"sync"

	"github.com/michaelbrown/javarena/internal/logging"
)

// Info is the immutable result of a toolchain probe.
type Info struct {
	Compiler string `json:"compiler"`
	Runtime  string `json:"runtime"`
	OS       string `json:"os"`
}

// Available reports whether both javac and java were found.
func (i Info) Available() bool {
	return i.Compiler != "" && i.Runtime != ""
}

// Provider hands out toolchain info to components that spawn processes.
type Provider interface {
	Info() Info
}

// Static is a Provider with a fixed answer.
type Static Info

func (s Static) Info() Info { return Info(s) }

// Options controls where Detect looks.
type Options struct {
	JavaHome   string
	SearchDirs []string
	GOOS       string
}

// Locator probes once, on first use, and caches the answer for the
// lifetime of the process.
type Locator struct {
	info func() Info
}

// NewLocator returns a lazily-probing Provider.
func NewLocator(opts Options, logger *slog.Logger) *Locator {
	log := logging.Or(logger)
	return &Locator{
		info: sync.OnceValue(func() Info {
			info := Detect(opts)
			if info.Available() {
				log.Info("java toolchain found", "javac", info.Compiler, "java", info.Runtime)
			} else {
				log.Warn("java toolchain not found; builds will fail until a JDK is installed")
			}
			return info
		}),
	}
}

func (l *Locator) Info() Info { return l.info() }

// Detect looks for javac and java in JavaHome/bin, then PATH, then the
// search directories. On Windows each search directory is treated as a
// parent of versioned JDK installs.
func Detect(opts Options) Info {
	goos := opts.GOOS
	if goos == "" {
		goos = runtime.GOOS
	}
	info := Info{OS: osName(goos)}

	if opts.JavaHome != "" {
		if c, r, ok := pairIn(filepath.Join(opts.JavaHome, "bin"), goos); ok {
			info.Compiler, info.Runtime = c, r
			return info
		}
	}

	javac, errC := exec.LookPath("javac")
	java, errR := exec.LookPath("java")
	if errC == nil && errR == nil {
		info.Compiler, info.Runtime = javac, java
		return info
	}

	for _, dir := range opts.SearchDirs {
		if goos == "windows" {
			if c, r, ok := searchJDKs(dir, goos); ok {
				info.Compiler, info.Runtime = c, r
				return info
			}
			continue
		}
		if c, r, ok := pairIn(dir, goos); ok {
			info.Compiler, info.Runtime = c, r
			return info
		}
	}
	return info
}

func searchJDKs(parent, goos string) (string, string, bool) {
	entries, err := os.ReadDir(parent)
	if err != nil {
		return "", "", false
	}
	names := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.IsDir() {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		if c, r, ok := pairIn(filepath.Join(parent, name, "bin"), goos); ok {
			return c, r, true
		}
	}
	return "", "", false
}

func pairIn(bin, goos string) (string, string, bool) {
	ext := ""
	if goos == "windows" {
		ext = ".exe"
	}
	javac := filepath.Join(bin, "javac"+ext)
	java := filepath.Join(bin, "java"+ext)
	if isFile(javac) && isFile(java) {
		return javac, java, true
	}
	return "", "", false
}

func isFile(path string) bool {
	st, err := os.Stat(path)
	return err == nil && !st.IsDir()
}

func osName(goos string) string {
	switch goos {
	case "windows":
		return "Windows"
	case "darwin":
		return "Darwin"
	case "linux":
		return "Linux"
	default:
		return goos
	}
}
