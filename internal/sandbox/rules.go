package sandbox

import "strings"

// InputConstructs are source fragments that suggest a program reads
// standard input. Matching is a plain substring scan: comments and string
// literals count, and unusual readers are missed.
var InputConstructs = []string{
	"Scanner",
	"System.in",
	"BufferedReader",
	"InputStreamReader",
	"nextInt",
	"nextLine",
	"nextDouble",
	"nextFloat",
	"readLine",
}

// ReadsInput reports whether source contains any input construct.
func ReadsInput(source string) bool {
	for _, c := range InputConstructs {
		if strings.Contains(source, c) {
			return true
		}
	}
	return false
}

type timeoutRule struct {
	name   string
	match  func(source, stdin string) bool
	reason ExitReason
}

// timeoutRules classify a run that hit the wall clock. First match wins.
var timeoutRules = []timeoutRule{
	{
		name:   "reads input but none supplied",
		match:  func(source, stdin string) bool { return stdin == "" && ReadsInput(source) },
		reason: NeedsInput,
	},
	{
		name:   "wall clock",
		match:  func(string, string) bool { return true },
		reason: TimedOut,
	},
}

// ClassifyTimeout picks the exit reason for a timed-out run.
func ClassifyTimeout(source, stdin string) ExitReason {
	for _, r := range timeoutRules {
		if r.match(source, stdin) {
			return r.reason
		}
	}
	return TimedOut
}
