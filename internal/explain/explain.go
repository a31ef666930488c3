// Package explain turns javac and JVM error output into beginner-friendly
// explanations, from built-in rule tables or from a language model.
package explain

import (
	"fmt"
	"strconv"
	"strings"

	mapset "github.com/deckarep/golang-set/v2"
)

const (
	TypeCompilation = "compilation"
	TypeRuntime     = "runtime"
)

// Review is a structured explanation of one error.
type Review struct {
	ErrorType   string   `json:"error_type"`
	Title       string   `json:"title"`
	RawError    string   `json:"raw_error"`
	Explanation string   `json:"explanation"`
	LineNumbers []int    `json:"line_numbers"`
	Suggestions []string `json:"suggestions"`
}

// Explain matches errText against the compile or runtime rules, falling
// back to the other table, and returns nil for blank input.
func Explain(errText, source string, compile bool) *Review {
	errText = strings.TrimSpace(errText)
	if errText == "" {
		return nil
	}

	rv := &Review{
		ErrorType:   TypeRuntime,
		RawError:    errText,
		LineNumbers: lineNumbers(errText),
	}
	primary, fallback := runtimeRules, compileRules
	if compile {
		rv.ErrorType = TypeCompilation
		primary, fallback = compileRules, runtimeRules
	}

	if m := firstMatch(errText, primary); m != nil {
		rv.Title, rv.Explanation = m.title, m.explanation
	} else if m := firstMatch(errText, fallback); m != nil {
		rv.Title, rv.Explanation = m.title, m.explanation
	} else if compile {
		rv.Title, rv.Explanation = "Compilation Error", genericCompile
	} else {
		rv.Title, rv.Explanation = "Runtime Error", genericRuntime
	}

	if compile {
		rv.Suggestions = compileSuggestions(errText, source, rv.LineNumbers)
	} else {
		rv.Suggestions = runtimeSuggestions(errText)
	}
	if len(rv.Suggestions) == 0 {
		rv.Suggestions = []string{"Read the error message carefully and check the referenced line number."}
	}
	return rv
}

func firstMatch(text string, rules []rule) *rule {
	for i := range rules {
		if rules[i].pattern.MatchString(text) {
			return &rules[i]
		}
	}
	return nil
}

// lineNumbers returns every Main.java:N reference in order of appearance.
func lineNumbers(text string) []int {
	lines := []int{}
	for _, m := range lineRef.FindAllStringSubmatch(text, -1) {
		if n, err := strconv.Atoi(m[1]); err == nil {
			lines = append(lines, n)
		}
	}
	return lines
}

func compileSuggestions(errText, source string, lines []int) []string {
	var out []string
	if len(lines) > 0 {
		refs := make([]string, len(lines))
		for i, n := range lines {
			refs[i] = strconv.Itoa(n)
		}
		out = append(out, fmt.Sprintf("Look at line %s in your code.", strings.Join(refs, ", ")))
	}

	if cannotFind.MatchString(errText) {
		if source != "" {
			imported := imports(source)
			for _, h := range importHints {
				if strings.Contains(source, h.class) &&
					!imported.Contains(h.pkg+"."+h.class) && !imported.Contains(h.pkg+".*") {
					out = append(out, fmt.Sprintf("Add `import %s.%s;` at the top of your file.", h.pkg, h.class))
				}
			}
		}
		out = append(out, "Double-check your spelling of variable and method names.")
	}
	if semicolon.MatchString(errText) {
		out = append(out, "Add a semicolon (;) at the end of the statement.")
	}
	if wrongFile.MatchString(errText) {
		out = append(out, "Rename your public class to `Main`.")
	}
	if unbalanced.MatchString(errText) {
		out = append(out, "Count your opening { and closing } braces; you're likely missing a }.")
	}
	return out
}

// imports collects the names imported by source, including wildcards.
func imports(source string) mapset.Set[string] {
	set := mapset.NewThreadUnsafeSet[string]()
	for _, m := range importDecl.FindAllStringSubmatch(source, -1) {
		set.Add(m[1])
	}
	return set
}

func runtimeSuggestions(errText string) []string {
	var out []string
	for _, h := range runtimeHints {
		if h.marker.MatchString(errText) {
			out = append(out, h.hint)
		}
	}
	if m := frameOrigin.FindStringSubmatch(errText); m != nil {
		out = append(out, fmt.Sprintf("The error originated at line %s in your code.", m[1]))
	}
	return out
}
