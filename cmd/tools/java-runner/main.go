package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/michaelbrown/javarena/internal/config"
	"github.com/michaelbrown/javarena/internal/explain"
	"github.com/michaelbrown/javarena/internal/logging"
	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/toolchain"
	"github.com/michaelbrown/javarena/internal/trace"
	"github.com/michaelbrown/javarena/internal/workspace"
)

const maxOutput = 4000

type tools struct {
	runner *sandbox.Runner
}

func main() {
	cfg, err := config.Load(os.Getenv("JAVARENA_CONFIG"))
	if err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}
	// stdout carries the protocol; logs go to stderr.
	log := logging.New(cfg.Log.Level, os.Stderr)

	t := &tools{runner: newRunner(cfg, log)}
	s := server.NewMCPServer("javarena-java-runner", "0.1.0")

	s.AddTool(mcp.Tool{
		Name:        "java_run",
		Description: "Compile and run a single-file Java program (public class Main) with a time limit.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Java source code containing public class Main",
				},
				"stdin": map[string]any{
					"type":        "string",
					"description": "Standard input to provide to the program (optional)",
				},
			},
			Required: []string{"code"},
		},
	}, t.handleRun)

	s.AddTool(mcp.Tool{
		Name:        "java_trace",
		Description: "Simulate a Java program's main method and return the stack, heap and console after each step.",
		InputSchema: mcp.ToolInputSchema{
			Type: "object",
			Properties: map[string]any{
				"code": map[string]any{
					"type":        "string",
					"description": "Java source code with a static main method",
				},
			},
			Required: []string{"code"},
		},
	}, handleTrace)

	if err := server.ServeStdio(s); err != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", err)
	}
}

func newRunner(cfg *config.Config, log *slog.Logger) *sandbox.Runner {
	tc := toolchain.NewLocator(toolchain.Options{
		JavaHome:   cfg.Toolchain.JavaHome,
		SearchDirs: cfg.Toolchain.SearchDirs,
	}, log)
	b := sandbox.NewBuilder(tc, sandbox.Policy{
		CompileTimeout: cfg.Sandbox.CompileTimeout,
		RunTimeout:     cfg.Sandbox.RunTimeout,
		SourceFile:     cfg.Sandbox.SourceFile,
		MainClass:      cfg.Sandbox.MainClass,
	}, log)
	return sandbox.NewRunner(b, workspace.NewManager(cfg.Sandbox.WorkDir, log), log)
}

func arguments(request mcp.CallToolRequest) (code, stdin string, ok bool) {
	args, _ := request.Params.Arguments.(map[string]any)
	if args == nil {
		return "", "", false
	}
	code, _ = args["code"].(string)
	stdin, _ = args["stdin"].(string)
	return code, stdin, strings.TrimSpace(code) != ""
}

func (t *tools) handleRun(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, stdin, ok := arguments(request)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}

	out := t.runner.Execute(ctx, code, stdin)
	text, failed := formatOutcome(out, code)
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: truncate(text)}},
		IsError: failed,
	}, nil
}

func formatOutcome(out sandbox.Outcome, code string) (string, bool) {
	var b strings.Builder
	if !out.Compiled {
		b.WriteString("COMPILE ERROR:\n" + out.Error)
		if rv := explain.Explain(out.Error, code, errors.Is(out.Err, sandbox.ErrCompileFailure)); rv != nil {
			fmt.Fprintf(&b, "\n\n%s: %s", rv.Title, rv.Explanation)
		}
		return b.String(), true
	}

	b.WriteString(out.Stdout)
	if out.Stderr != "" {
		if b.Len() > 0 {
			b.WriteString("\n")
		}
		b.WriteString("STDERR:\n" + out.Stderr)
	}
	switch {
	case out.NeedsInput, out.Run.ExitReason == sandbox.TimedOut:
		b.WriteString("\n" + out.Error)
		return b.String(), true
	case out.Run.ExitCode != 0:
		fmt.Fprintf(&b, "\nexit code: %d", out.Run.ExitCode)
		return b.String(), true
	}
	return b.String(), !out.Succeeded
}

func handleTrace(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
	code, _, ok := arguments(request)
	if !ok {
		return errResult("error: 'code' is required"), nil
	}

	steps, err := trace.Visualize(code)
	if err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	var buf bytes.Buffer
	if err := trace.RenderText(&buf, steps); err != nil {
		return errResult(fmt.Sprintf("error: %v", err)), nil
	}
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: truncate(buf.String())}},
	}, nil
}

func truncate(text string) string {
	if len(text) > maxOutput {
		return text[:maxOutput] + "\n... (output truncated)"
	}
	return text
}

func errResult(text string) *mcp.CallToolResult {
	return &mcp.CallToolResult{
		Content: []mcp.Content{mcp.TextContent{Type: "text", Text: text}},
		IsError: true,
	}
}
