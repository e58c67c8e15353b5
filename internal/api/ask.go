package api

import (
	"encoding/json"
	"net/http"
	"strings"

	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/auth"
	"github.com/rpossan/asktive-record/internal/query"
)

type translateRequest struct {
	Question string `json:"question"`
	Table    string `json:"table"`
}

type askRequest struct {
	Question    string `json:"question"`
	Table       string `json:"table"`
	Answer      bool   `json:"answer"`
	AllowWrites bool   `json:"allow_writes"`
}

type sqlRequest struct {
	SQL         string `json:"sql"`
	Table       string `json:"table"`
	AllowWrites bool   `json:"allow_writes"`
}

type askResponse struct {
	QueryID string `json:"query_id"`
	SQL     string `json:"sql"`
	Result  any    `json:"result,omitempty"`
	Answer  string `json:"answer,omitempty"`
}

func handleSchema(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAsker(deps, w, r) || !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	text, err := deps.Asker.ResolveSchema(r.Context())
	if err != nil {
		writePipelineError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"schema": text})
}

func handleTranslate(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAsker(deps, w, r) || !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	var req translateRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}

	result, err := deps.Asker.Generate(r.Context(), req.Question, req.Table)
	if err != nil {
		writePipelineError(r.Context(), w, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"sql":      result.SQL,
		"provider": result.Provider,
		"model":    result.Model,
	})
}

func handleAsk(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAsker(deps, w, r) || !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	var req askRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Question) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "QUESTION_REQUIRED", "question is required", false, nil)
		return
	}
	if req.AllowWrites && !requireWriter(w, r) {
		return
	}

	target, err := targetFor(deps, req.Table)
	if err != nil {
		writePipelineError(r.Context(), w, err, nil)
		return
	}
	outcome, err := deps.Asker.Run(r.Context(), req.Question, target, asker.AskOptions{
		TableName:   req.Table,
		Answer:      req.Answer,
		AllowWrites: req.AllowWrites,
	})
	if err != nil {
		writePipelineError(r.Context(), w, err, outcomeContext(outcome))
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		QueryID: outcome.Query.ID,
		SQL:     outcome.SQL,
		Result:  outcome.Result,
		Answer:  outcome.Answer,
	})
}

func handleSQL(deps Dependencies, w http.ResponseWriter, r *http.Request) {
	if !requireAsker(deps, w, r) || !requireRole(w, r, auth.RoleQueryReader) {
		return
	}
	var req sqlRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.SQL) == "" {
		writeError(r.Context(), w, http.StatusBadRequest, "SQL_REQUIRED", "sql is required", false, nil)
		return
	}
	if req.AllowWrites && !requireWriter(w, r) {
		return
	}

	target, err := targetFor(deps, req.Table)
	if err != nil {
		writePipelineError(r.Context(), w, err, nil)
		return
	}
	outcome, err := deps.Asker.RunSQL(r.Context(), req.SQL, target, req.AllowWrites)
	if err != nil {
		writePipelineError(r.Context(), w, err, outcomeContext(outcome))
		return
	}
	writeJSON(w, http.StatusOK, askResponse{
		QueryID: outcome.Query.ID,
		SQL:     outcome.SQL,
		Result:  outcome.Result,
	})
}

func targetFor(deps Dependencies, table string) (query.Target, error) {
	if deps.TargetFor == nil || strings.TrimSpace(table) == "" {
		return deps.Target, nil
	}
	return deps.TargetFor(table)
}

func requireAsker(deps Dependencies, w http.ResponseWriter, r *http.Request) bool {
	if deps.Asker == nil {
		writeError(r.Context(), w, http.StatusNotImplemented, "ASKER_NOT_CONFIGURED", "query pipeline is not configured", false, nil)
		return false
	}
	return true
}

func requireRole(w http.ResponseWriter, r *http.Request, role string) bool {
	if err := auth.RequireRole(r.Context(), role); err != nil {
		writeError(r.Context(), w, http.StatusForbidden, "FORBIDDEN", err.Error(), false, nil)
		return false
	}
	return true
}

// requireWriter admits writes only from an authenticated caller holding the
// writer role, so a deployment without auth stays read-only.
func requireWriter(w http.ResponseWriter, r *http.Request) bool {
	if _, ok := auth.IdentityFromContext(r.Context()); !ok {
		writeError(r.Context(), w, http.StatusForbidden, "WRITES_REQUIRE_AUTH", "allow_writes requires an authenticated caller with the "+auth.RoleQueryWriter+" role", false, nil)
		return false
	}
	return requireRole(w, r, auth.RoleQueryWriter)
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		writeError(r.Context(), w, http.StatusBadRequest, "INVALID_JSON", "invalid request body", false, map[string]any{"details": err.Error()})
		return false
	}
	return true
}

func outcomeContext(outcome asker.Outcome) map[string]any {
	if outcome.Query == nil {
		return nil
	}
	return map[string]any{"query_id": outcome.Query.ID, "sql": outcome.SQL}
}
