package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/rpossan/asktive-record/internal/asker"
	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/auth"
	"github.com/rpossan/asktive-record/internal/config"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/query"
)

const usersSchema = "CREATE TABLE users (id INTEGER, name VARCHAR(255));"

func TestHealthEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/health", nil))

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestReadyEndpointReturns503WhenDependencyFails(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{
		Readiness: func(context.Context) error {
			return errors.New("dependency down")
		},
	})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/ready", nil))

	if rr.Code != http.StatusServiceUnavailable {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestMetricsEndpoint(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/metrics", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d", rr.Code)
	}
	if !bytes.Contains(rr.Body.Bytes(), []byte("go_goroutines")) {
		t.Fatal("expected runtime metrics in exposition")
	}
}

func TestProtectedRouteRequiresAuth(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKTIVE_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("k1:analyst:query_reader")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	deps := newDeps(t, &fakeCompleter{}, &fakeConn{})
	deps.AuthMiddleware = auth.Middleware(nil, validator)
	h := NewHandler(cfg, deps)

	unauth := httptest.NewRecorder()
	h.ServeHTTP(unauth, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if unauth.Code != http.StatusUnauthorized {
		t.Fatalf("unauth status = %d", unauth.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/v1/schema", nil)
	req.Header.Set("X-API-Key", "k1")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusOK {
		t.Fatalf("auth status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["schema"] != usersSchema {
		t.Fatalf("schema = %v", body["schema"])
	}
}

func TestAuthRequiredWithoutMiddlewareFailsClosed(t *testing.T) {
	h := NewHandler(loadConfig(t, map[string]string{"ASKTIVE_AUTH_REQUIRED": "true"}), newDeps(t, &fakeCompleter{}, &fakeConn{}))
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestTranslateEndpointReturnsSQL(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"SELECT * FROM users;"}}
	h := NewHandler(loadConfig(t, nil), newDeps(t, completer, &fakeConn{}))

	rr := post(t, h, "/v1/query/translate", map[string]any{"question": "show me all users", "table": "users"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["sql"] != "SELECT * FROM users" || body["provider"] != "fake" || body["model"] != "fake-model" {
		t.Fatalf("body = %#v", body)
	}
	if completer.prompts[0] != nl2sql.ScopedPrompt("show me all users", usersSchema, "users") {
		t.Fatalf("prompt = %q", completer.prompts[0])
	}
}

func TestAskEndpointExecutesGeneratedSQL(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"SELECT COUNT(*) AS count FROM users"}}
	h := NewHandler(loadConfig(t, nil), newDeps(t, completer, &fakeConn{rows: []map[string]any{{"count": 5}}}))

	rr := post(t, h, "/v1/ask", map[string]any{"question": "how many users?"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	body := decode(t, rr)
	if body["result"] != float64(5) {
		t.Fatalf("result = %#v", body["result"])
	}
	if body["query_id"] == "" || body["sql"] != "SELECT COUNT(*) AS count FROM users" {
		t.Fatalf("body = %#v", body)
	}
}

func TestAskEndpointAnswers(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"SELECT COUNT(*) AS count FROM users", "There are 5 users."}}
	h := NewHandler(loadConfig(t, nil), newDeps(t, completer, &fakeConn{rows: []map[string]any{{"count": 5}}}))

	rr := post(t, h, "/v1/ask", map[string]any{"question": "how many users?", "answer": true})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["answer"] != "There are 5 users." {
		t.Fatalf("body = %#v", body)
	}
}

func TestPipelineErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name      string
		completer *fakeCompleter
		conn      *fakeConn
		path      string
		body      map[string]any
		status    int
		code      string
	}{
		{
			name:      "generation",
			completer: &fakeCompleter{replies: []string{"DROP TABLE users"}},
			conn:      &fakeConn{},
			path:      "/v1/ask",
			body:      map[string]any{"question": "drop it"},
			status:    http.StatusUnprocessableEntity,
			code:      "QUERY_GENERATION_FAILED",
		},
		{
			name:      "api",
			completer: &fakeCompleter{err: askerr.API("OpenAI", "rate limited")},
			conn:      &fakeConn{},
			path:      "/v1/query/translate",
			body:      map[string]any{"question": "q"},
			status:    http.StatusBadGateway,
			code:      "LLM_API_ERROR",
		},
		{
			name:      "sanitization",
			completer: &fakeCompleter{},
			conn:      &fakeConn{},
			path:      "/v1/sql",
			body:      map[string]any{"sql": "DELETE FROM users"},
			status:    http.StatusBadRequest,
			code:      "SQL_NOT_ALLOWED",
		},
		{
			name:      "execution",
			completer: &fakeCompleter{},
			conn:      &fakeConn{err: errors.New(`relation "nope" does not exist`)},
			path:      "/v1/sql",
			body:      map[string]any{"sql": "SELECT * FROM nope"},
			status:    http.StatusUnprocessableEntity,
			code:      "QUERY_EXECUTION_FAILED",
		},
	}
	for _, tc := range cases {
		h := NewHandler(loadConfig(t, nil), newDeps(t, tc.completer, tc.conn))
		rr := post(t, h, tc.path, tc.body)
		if rr.Code != tc.status {
			t.Fatalf("%s: status = %d body=%s", tc.name, rr.Code, rr.Body.String())
		}
		body := decode(t, rr)
		if body["error_code"] != tc.code {
			t.Fatalf("%s: error_code = %v", tc.name, body["error_code"])
		}
	}
}

func TestSchemaMissingIsConfigurationError(t *testing.T) {
	deps := newDeps(t, &fakeCompleter{}, &fakeConn{})
	deps.Asker.(*asker.Service).Schema = failingSchema{err: askerr.Configuration("Schema file not found. Tried: db/schema.rb, db/structure.sql. Configure the schema path or generate the schema file.")}
	h := NewHandler(loadConfig(t, nil), deps)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/v1/schema", nil))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d", rr.Code)
	}
	if body := decode(t, rr); body["error_code"] != "CONFIGURATION_ERROR" {
		t.Fatalf("body = %#v", body)
	}
}

func TestWritesRequireWriterRole(t *testing.T) {
	cfg := loadConfig(t, map[string]string{"ASKTIVE_AUTH_REQUIRED": "true"})
	validator, err := auth.NewStaticAPIKeyValidator("reader:bot:query_reader,writer:ops:query_reader|query_writer")
	if err != nil {
		t.Fatalf("validator setup failed: %v", err)
	}
	conn := &fakeConn{execResult: map[string]any{"rows_affected": 2}}
	deps := newDeps(t, &fakeCompleter{}, conn)
	deps.AuthMiddleware = auth.Middleware(nil, validator)
	h := NewHandler(cfg, deps)

	for key, want := range map[string]int{"reader": http.StatusForbidden, "writer": http.StatusOK} {
		payload, _ := json.Marshal(map[string]any{"sql": "DELETE FROM sessions", "allow_writes": true})
		req := httptest.NewRequest(http.MethodPost, "/v1/sql", bytes.NewReader(payload))
		req.Header.Set("X-API-Key", key)
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		if rr.Code != want {
			t.Fatalf("key %s: status = %d body=%s", key, rr.Code, rr.Body.String())
		}
	}
	if conn.execs != 1 {
		t.Fatalf("execs = %d", conn.execs)
	}
}

func TestWritesRejectedWhenAuthDisabled(t *testing.T) {
	conn := &fakeConn{execResult: map[string]any{"rows_affected": 2}}
	h := NewHandler(loadConfig(t, nil), newDeps(t, &fakeCompleter{}, conn))

	rr := post(t, h, "/v1/sql", map[string]any{"sql": "DELETE FROM sessions", "allow_writes": true})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["error_code"] != "WRITES_REQUIRE_AUTH" {
		t.Fatalf("body = %#v", body)
	}
	rr = post(t, h, "/v1/ask", map[string]any{"question": "purge sessions", "allow_writes": true})
	if rr.Code != http.StatusForbidden {
		t.Fatalf("ask status = %d body=%s", rr.Code, rr.Body.String())
	}
	if conn.execs != 0 {
		t.Fatalf("execs = %d", conn.execs)
	}
}

func TestTableRequestsUseTableTarget(t *testing.T) {
	conn := &fakeConn{rows: []map[string]any{{"count": 9}}}
	deps := newDeps(t, &fakeCompleter{}, conn)
	accessor := &fakeAccessor{records: []any{countRecord(3)}}
	deps.TargetFor = func(table string) (query.Target, error) {
		accessor.table = table
		return query.ResolveTarget(accessor)
	}
	h := NewHandler(loadConfig(t, nil), deps)

	rr := post(t, h, "/v1/sql", map[string]any{"sql": "SELECT COUNT(*) AS count FROM users", "table": "users"})
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d body=%s", rr.Code, rr.Body.String())
	}
	if body := decode(t, rr); body["result"] != float64(3) {
		t.Fatalf("body = %#v", body)
	}
	if accessor.table != "users" || accessor.calls != 1 {
		t.Fatalf("accessor = %q / %d calls", accessor.table, accessor.calls)
	}

	rr = post(t, h, "/v1/sql", map[string]any{"sql": "SELECT COUNT(*) AS count FROM users"})
	if body := decode(t, rr); body["result"] != float64(9) {
		t.Fatalf("unscoped body = %#v", body)
	}
}

func TestRejectsUnknownFieldsAndBlankQuestion(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), newDeps(t, &fakeCompleter{}, &fakeConn{}))
	if rr := post(t, h, "/v1/ask", map[string]any{"question": "q", "tenant": "x"}); rr.Code != http.StatusBadRequest {
		t.Fatalf("unknown field status = %d", rr.Code)
	}
	if rr := post(t, h, "/v1/ask", map[string]any{"question": "  "}); rr.Code != http.StatusBadRequest {
		t.Fatalf("blank question status = %d", rr.Code)
	}
}

func TestAskWithoutPipelineIsNotImplemented(t *testing.T) {
	h := NewHandler(loadConfig(t, nil), Dependencies{})
	if rr := post(t, h, "/v1/ask", map[string]any{"question": "q"}); rr.Code != http.StatusNotImplemented {
		t.Fatalf("status = %d", rr.Code)
	}
}

func TestCombineReadinessChecksStopsOnFirstFailure(t *testing.T) {
	order := make([]int, 0, 3)
	combined := CombineReadinessChecks(
		func(context.Context) error {
			order = append(order, 1)
			return nil
		},
		func(context.Context) error {
			order = append(order, 2)
			return errors.New("boom")
		},
		func(context.Context) error {
			order = append(order, 3)
			return nil
		},
	)

	if err := combined(context.Background()); err == nil {
		t.Fatal("expected error")
	}
	if len(order) != 2 || order[0] != 1 || order[1] != 2 {
		t.Fatalf("execution order = %#v", order)
	}
}

func TestCheckLLMConfigured(t *testing.T) {
	if err := CheckLLMConfigured(loadConfig(t, nil))(context.Background()); err == nil {
		t.Fatal("expected error without API key")
	}
	cfg := loadConfig(t, map[string]string{"ASKTIVE_LLM_API_KEY": "sk-test"})
	if err := CheckLLMConfigured(cfg)(context.Background()); err != nil {
		t.Fatalf("CheckLLMConfigured() error = %v", err)
	}
}

func loadConfig(t *testing.T, values map[string]string) config.Config {
	t.Helper()
	if values == nil {
		values = map[string]string{}
	}
	cfg, err := config.Load("asktive-api", mapLookup(values))
	if err != nil {
		t.Fatalf("config load failed: %v", err)
	}
	return cfg
}

func mapLookup(values map[string]string) config.LookupFunc {
	return func(key string) (string, bool) {
		value, ok := values[key]
		return value, ok
	}
}

func newDeps(t *testing.T, completer *fakeCompleter, conn *fakeConn) Dependencies {
	t.Helper()
	target, err := query.ResolveTarget(conn)
	if err != nil {
		t.Fatalf("ResolveTarget() error = %v", err)
	}
	return Dependencies{
		Asker: &asker.Service{
			Schema:          staticSchema(usersSchema),
			Translator:      &nl2sql.Generator{Completer: completer, Provider: "fake", Model: "fake-model"},
			Answerer:        completer,
			AllowOnlySelect: true,
		},
		Target: target,
	}
}

func post(t *testing.T, h http.Handler, path string, payload map[string]any) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodPost, path, bytes.NewReader(body)))
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode response: %v body=%s", err, rr.Body.String())
	}
	return body
}

type staticSchema string

func (s staticSchema) Resolve(context.Context) (string, error) { return string(s), nil }

type failingSchema struct {
	err error
}

func (f failingSchema) Resolve(context.Context) (string, error) { return "", f.err }

type fakeCompleter struct {
	replies []string
	err     error
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	if f.err != nil {
		return "", f.err
	}
	if len(f.replies) == 0 {
		return "", nil
	}
	reply := f.replies[0]
	f.replies = f.replies[1:]
	return reply, nil
}

type fakeConn struct {
	rows       []map[string]any
	execResult any
	err        error
	execs      int
}

func (f *fakeConn) SelectRows(context.Context, string) ([]map[string]any, error) {
	return f.rows, f.err
}

func (f *fakeConn) Exec(context.Context, string) (any, error) {
	f.execs++
	return f.execResult, f.err
}

type countRecord int64

func (c countRecord) Count() any { return int64(c) }

type fakeAccessor struct {
	table   string
	records []any
	calls   int
}

func (f *fakeAccessor) TableName() string { return f.table }

func (f *fakeAccessor) ExecuteTypedSQL(context.Context, string) ([]any, error) {
	f.calls++
	return f.records, nil
}
