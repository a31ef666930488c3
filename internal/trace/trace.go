// Package trace simulates the entry method of a Java program without
// running it and records the program state after each statement it
// understands.
package trace

import (
	"errors"
	"fmt"
)

// ErrNoEntryPoint means the source has no static main method.
var ErrNoEntryPoint = errors.New("Main method not found")

// ParseError is a syntax error at a source position.
type ParseError struct {
	Line   int
	Column int
	Msg    string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("line %d, column %d: %s", e.Line, e.Column, e.Msg)
}

// Snapshot is the complete simulated state after one step.
type Snapshot struct {
	Description string   `json:"description" yaml:"description"`
	Line        *int     `json:"line" yaml:"line"`
	Console     string   `json:"console" yaml:"console"`
	Stack       []Frame  `json:"stack" yaml:"stack"`
	Heap        []Object `json:"heap" yaml:"heap"`
	Graph       Graph    `json:"graph" yaml:"graph"`
}

// Frame is one call's local variables.
type Frame struct {
	ID     string   `json:"id" yaml:"id"`
	Name   string   `json:"name" yaml:"name"`
	Locals Bindings `json:"locals" yaml:"locals"`
}

// Object is one simulated heap allocation.
type Object struct {
	ID     string   `json:"id" yaml:"id"`
	Type   string   `json:"type" yaml:"type"`
	Fields Bindings `json:"fields" yaml:"fields"`
}

// Visualize parses src, finds its entry method and simulates it.
func Visualize(src string) ([]Snapshot, error) {
	cu, err := Parse(src)
	if err != nil {
		return nil, err
	}
	main := EntryPoint(cu)
	if main == nil {
		return nil, ErrNoEntryPoint
	}
	return simulate(main), nil
}

// EntryPoint returns the first static method named main, in document
// order, or nil.
func EntryPoint(cu *CompilationUnit) *MethodDecl {
	for _, td := range cu.Types {
		if m := entryIn(td); m != nil {
			return m
		}
	}
	return nil
}

func entryIn(td *TypeDecl) *MethodDecl {
	for _, m := range td.Members {
		switch m := m.(type) {
		case *MethodDecl:
			if m.Name == "main" && !m.Constructor && m.Modifiers.Contains("static") {
				return m
			}
		case *TypeDecl:
			if found := entryIn(m); found != nil {
				return found
			}
		}
	}
	return nil
}
