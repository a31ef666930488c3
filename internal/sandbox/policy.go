package sandbox

import "time"

// Policy fixes file names and time limits for builds and runs.
type Policy struct {
	CompileTimeout time.Duration
	RunTimeout     time.Duration
	SourceFile     string // e.g. "Main.java"
	MainClass      string // e.g. "Main"
}

// DefaultPolicy returns the limits used by the reference deployment.
func DefaultPolicy() Policy {
	return Policy{
		CompileTimeout: 30 * time.Second,
		RunTimeout:     10 * time.Second,
		SourceFile:     "Main.java",
		MainClass:      "Main",
	}
}

func (p Policy) compileArgs() []string {
	return []string{"-encoding", "UTF-8", p.SourceFile}
}

// RuntimeArgs are the java arguments for running MainClass out of dir.
func (p Policy) RuntimeArgs(dir string) []string {
	return []string{
		"-Dfile.encoding=UTF-8",
		"-Dsun.stdout.encoding=UTF-8",
		"-Dsun.stderr.encoding=UTF-8",
		"-cp", dir,
		p.MainClass,
	}
}
