package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"runtime"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/michaelbrown/javarena/internal/explain"
	"github.com/michaelbrown/javarena/internal/sandbox"
	"github.com/michaelbrown/javarena/internal/storage"
	"github.com/michaelbrown/javarena/internal/toolchain"
	"github.com/michaelbrown/javarena/internal/trace"
)

// --- JSON helpers ---

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}

// writeFailure answers in the {success, error} shape the playground
// endpoints share.
func writeFailure(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]any{"success": false, "error": msg})
}

func decodeJSON(r *http.Request, v any) error {
	defer r.Body.Close()
	return json.NewDecoder(r.Body).Decode(v)
}

// writeDecodeError answers a body decodeJSON rejected.
func writeDecodeError(w http.ResponseWriter, err error) {
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		writeFailure(w, http.StatusRequestEntityTooLarge, fmt.Sprintf("Request body too large (max %d bytes)", tooLarge.Limit))
		return
	}
	writeFailure(w, http.StatusBadRequest, "invalid JSON: "+err.Error())
}

func (s *Server) toolchainInfo() toolchain.Info {
	if s.deps.Toolchain == nil {
		return toolchain.Info{OS: runtime.GOOS}
	}
	return s.deps.Toolchain.Info()
}

// --- Status handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	info := s.toolchainInfo()
	sessions := 0
	if s.deps.Sessions != nil {
		sessions = s.deps.Sessions.Count()
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"status":               "ok",
		"os":                   info.OS,
		"java_available":       info.Available(),
		"interactive_sessions": sessions,
	})
}

func (s *Server) handleInfo(w http.ResponseWriter, r *http.Request) {
	info := s.toolchainInfo()
	writeJSON(w, http.StatusOK, map[string]any{
		"name":           "Java Compiler Server",
		"os":             info.OS,
		"java_available": info.Available(),
		"go_version":     runtime.Version(),
		"compiler":       info.Compiler,
		"runtime":        info.Runtime,
	})
}

// --- Batch compile ---

type compileRequest struct {
	Code  string `json:"code"`
	Stdin string `json:"stdin"`
}

type compileResponse struct {
	Success     bool            `json:"success"`
	Output      string          `json:"output"`
	Error       string          `json:"error"`
	NeedsInput  bool            `json:"needs_input"`
	OS          string          `json:"os"`
	ExecutionID string          `json:"execution_id,omitempty"`
	AIReview    string          `json:"ai_review,omitempty"`
	ErrorReview *explain.Review `json:"error_review,omitempty"`
}

func (s *Server) handleCompile(w http.ResponseWriter, r *http.Request) {
	var req compileRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Code == "" {
		writeFailure(w, http.StatusBadRequest, "No code provided")
		return
	}

	out := s.deps.Runner.Execute(r.Context(), req.Code, req.Stdin)
	resp := compileResponse{
		Success:    out.Succeeded,
		Output:     out.Stdout,
		Error:      out.Error,
		NeedsInput: out.NeedsInput,
		OS:         s.toolchainInfo().OS,
	}
	if s.deps.Recorder != nil {
		if e := s.deps.Recorder.Outcome(r.Context(), out); e != nil {
			resp.ExecutionID = e.ID
		}
	}

	if strings.TrimSpace(resp.Error) != "" {
		compile := isCompilationError(out)
		if s.deps.Reviewer != nil {
			resp.AIReview = s.deps.Reviewer.Review(r.Context(), resp.Error, req.Code, compile)
		}
		if resp.AIReview == "" {
			resp.ErrorReview = explain.Explain(resp.Error, req.Code, compile)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func isCompilationError(out sandbox.Outcome) bool {
	if out.Succeeded {
		return false
	}
	return strings.Contains(out.Error, "Compilation failed") || strings.Contains(out.Error, "error:")
}

// --- Trace ---

type visualizeRequest struct {
	Code string `json:"code"`
}

func (s *Server) handleVisualize(w http.ResponseWriter, r *http.Request) {
	var req visualizeRequest
	if err := decodeJSON(r, &req); err != nil {
		writeDecodeError(w, err)
		return
	}
	if req.Code == "" {
		writeFailure(w, http.StatusBadRequest, "No code provided")
		return
	}

	steps, err := trace.Visualize(req.Code)
	if err != nil {
		resp := map[string]any{"success": false, "error": err.Error()}
		var perr *trace.ParseError
		if errors.As(err, &perr) {
			resp["line"] = perr.Line
			resp["column"] = perr.Column
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "steps": steps})
}

// --- Execution history ---

func (s *Server) handleListExecutions(w http.ResponseWriter, r *http.Request) {
	opts := storage.ExecutionListOptions{Mode: storage.Mode(r.URL.Query().Get("mode"))}
	if limit := r.URL.Query().Get("limit"); limit != "" {
		if n, err := strconv.Atoi(limit); err == nil {
			opts.Limit = n
		}
	}
	if offset := r.URL.Query().Get("offset"); offset != "" {
		if n, err := strconv.Atoi(offset); err == nil {
			opts.Offset = n
		}
	}

	execs, err := s.deps.Store.ListExecutions(r.Context(), opts)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, execs)
}

func (s *Server) handleGetExecution(w http.ResponseWriter, r *http.Request) {
	e, err := s.deps.Store.GetExecution(r.Context(), chi.URLParam(r, "id"))
	if errors.Is(err, storage.ErrNotFound) {
		writeError(w, http.StatusNotFound, "execution not found")
		return
	}
	if err != nil {
		writeError(w, http.StatusBadRequest, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, e)
}
