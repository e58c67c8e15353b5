package asker

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rpossan/asktive-record/internal/askerr"
	"github.com/rpossan/asktive-record/internal/nl2sql"
	"github.com/rpossan/asktive-record/internal/query"
	"github.com/rpossan/asktive-record/internal/schema"
)

const usersSchema = "CREATE TABLE users (id INTEGER, name VARCHAR(255));"

func TestAskScopedReturnsFreshQuery(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"SELECT * FROM users;"}}
	service := newService(completer, staticSchema(usersSchema))

	q, err := service.Ask(context.Background(), "show me all users", connTarget(t, &fakeConn{}), AskOptions{TableName: "users"})
	if err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if q.RawSQL != "SELECT * FROM users" {
		t.Fatalf("RawSQL = %q", q.RawSQL)
	}
	if q.Sanitized() {
		t.Fatal("Ask() must return an unsanitized query")
	}
	if q.Question != "show me all users" {
		t.Fatalf("Question = %q", q.Question)
	}
	if completer.prompts[0] != nl2sql.ScopedPrompt("show me all users", usersSchema, "users") {
		t.Fatalf("prompt = %q", completer.prompts[0])
	}
}

func TestAskTypedTargetUsesScopedPrompt(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"SELECT * FROM accounts"}}
	service := newService(completer, staticSchema(usersSchema))

	target, err := query.ResolveTarget(&fakeAccessor{table: "accounts"})
	if err != nil {
		t.Fatalf("ResolveTarget() error = %v", err)
	}
	if _, err := service.Ask(context.Background(), "all accounts", target, AskOptions{}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if completer.prompts[0] != nl2sql.ScopedPrompt("all accounts", usersSchema, "accounts") {
		t.Fatalf("prompt = %q", completer.prompts[0])
	}
}

func TestAskConnectionWithoutTableUsesOpenPrompt(t *testing.T) {
	completer := &fakeCompleter{replies: []string{"SELECT u.name FROM users u"}}
	service := newService(completer, staticSchema(usersSchema))

	if _, err := service.Ask(context.Background(), "names", connTarget(t, &fakeConn{}), AskOptions{}); err != nil {
		t.Fatalf("Ask() error = %v", err)
	}
	if completer.prompts[0] != nl2sql.OpenPrompt("names", usersSchema) {
		t.Fatalf("prompt = %q", completer.prompts[0])
	}
}

func TestAskMissingSchemaMentionsConfiguredPath(t *testing.T) {
	resolver := &schema.Resolver{
		Config: schema.Config{Path: "db/schema.rb", HostFramework: false},
		Store:  schema.FileStore{Root: t.TempDir()},
	}
	completer := &fakeCompleter{}
	service := newService(completer, resolver)

	_, err := service.Ask(context.Background(), "how many users?", connTarget(t, &fakeConn{}), AskOptions{})
	if !errors.Is(err, askerr.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
	if !strings.Contains(err.Error(), "db/schema.rb") {
		t.Fatalf("message = %q", err.Error())
	}
	if len(completer.prompts) != 0 {
		t.Fatal("LLM must not be called without a schema")
	}
}

func TestAskTransportErrorIsAPIError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {}))
	server.Close()

	client, err := nl2sql.NewOpenAIClient(nl2sql.OpenAIConfig{BaseURL: server.URL, APIKey: "sk-test"})
	if err != nil {
		t.Fatalf("NewOpenAIClient() error = %v", err)
	}
	service := &Service{Schema: staticSchema(usersSchema), Translator: nl2sql.NewGenerator(client, nil)}

	_, err = service.Ask(context.Background(), "show me all users", connTarget(t, &fakeConn{}), AskOptions{TableName: "users"})
	if !errors.Is(err, askerr.ErrAPI) {
		t.Fatalf("error = %v, want ErrAPI", err)
	}
	if !strings.HasPrefix(err.Error(), "OpenAI API error: ") {
		t.Fatalf("message = %q", err.Error())
	}
}

func TestGenerateReportsMissingTranslator(t *testing.T) {
	service := &Service{Schema: staticSchema(usersSchema), TranslatorErr: askerr.Configuration("OpenAI API key is not configured")}
	_, err := service.Generate(context.Background(), "q", "")
	if err == nil || err.Error() != "OpenAI API key is not configured" {
		t.Fatalf("error = %v", err)
	}
	if _, err := (&Service{Schema: staticSchema(usersSchema)}).Generate(context.Background(), "q", ""); !errors.Is(err, askerr.ErrConfiguration) {
		t.Fatalf("error = %v, want ErrConfiguration", err)
	}
}

func TestGenerateRequiresQuestion(t *testing.T) {
	service := newService(&fakeCompleter{}, staticSchema(usersSchema))
	if _, err := service.Generate(context.Background(), "  ", ""); !errors.Is(err, askerr.ErrQueryGeneration) {
		t.Fatalf("error = %v, want ErrQueryGeneration", err)
	}
}

func TestRunExecutesAndUnwrapsCount(t *testing.T) {
	conn := &fakeConn{rows: []map[string]any{{"count": int64(5)}}}
	service := newService(&fakeCompleter{replies: []string{"SELECT COUNT(*) AS count FROM users"}}, staticSchema(usersSchema))

	outcome, err := service.Run(context.Background(), "how many users?", connTarget(t, conn), AskOptions{})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Result != int64(5) {
		t.Fatalf("Result = %#v", outcome.Result)
	}
	if !outcome.Query.Sanitized() {
		t.Fatal("Run() must sanitize before executing")
	}
	if outcome.SQL != "SELECT COUNT(*) AS count FROM users" {
		t.Fatalf("SQL = %q", outcome.SQL)
	}
}

func TestRunAnswersWithSecondCompletion(t *testing.T) {
	conn := &fakeConn{rows: []map[string]any{{"count": int64(5)}}}
	completer := &fakeCompleter{replies: []string{"SELECT COUNT(*) AS count FROM users", "  There are 5 users.\n"}}
	service := newService(completer, staticSchema(usersSchema))

	outcome, err := service.Run(context.Background(), "how many users?", connTarget(t, conn), AskOptions{Answer: true})
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if outcome.Answer != "There are 5 users." {
		t.Fatalf("Answer = %q", outcome.Answer)
	}
	if len(completer.prompts) != 2 {
		t.Fatalf("prompts = %d", len(completer.prompts))
	}
	want := nl2sql.AnswerPrompt("how many users?", "SELECT COUNT(*) AS count FROM users", "5")
	if completer.prompts[1] != want {
		t.Fatalf("answer prompt = %q", completer.prompts[1])
	}
}

func TestRunSQLHonoursWritePolicy(t *testing.T) {
	conn := &fakeConn{execResult: "ok"}
	service := &Service{AllowOnlySelect: true}

	_, err := service.RunSQL(context.Background(), "DELETE FROM sessions", connTarget(t, conn), false)
	if !errors.Is(err, askerr.ErrSanitization) {
		t.Fatalf("error = %v, want ErrSanitization", err)
	}
	if conn.execs != 0 {
		t.Fatal("rejected statement reached the database")
	}

	outcome, err := service.RunSQL(context.Background(), "DELETE FROM sessions", connTarget(t, conn), true)
	if err != nil {
		t.Fatalf("RunSQL() error = %v", err)
	}
	if outcome.Result != "ok" || conn.execs != 1 {
		t.Fatalf("outcome = %#v execs = %d", outcome, conn.execs)
	}
}

func TestWrapLeavesQuestionEmpty(t *testing.T) {
	service := &Service{}
	q := service.Wrap("SELECT 1", connTarget(t, &fakeConn{}))
	if q.Question != "" || q.String() != "SELECT 1" {
		t.Fatalf("query = %+v", q)
	}
}

func newService(completer *fakeCompleter, source SchemaSource) *Service {
	return &Service{
		Schema:          source,
		Translator:      &nl2sql.Generator{Completer: completer, Provider: "fake", Model: "fake-model"},
		Answerer:        completer,
		AllowOnlySelect: true,
	}
}

func connTarget(t *testing.T, conn query.Connection) query.Target {
	t.Helper()
	target, err := query.ResolveTarget(conn)
	if err != nil {
		t.Fatalf("ResolveTarget() error = %v", err)
	}
	return target
}

type staticSchema string

func (s staticSchema) Resolve(context.Context) (string, error) { return string(s), nil }

type fakeCompleter struct {
	replies []string
	prompts []string
}

func (f *fakeCompleter) Complete(_ context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
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
	execs      int
}

func (f *fakeConn) SelectRows(context.Context, string) ([]map[string]any, error) {
	return f.rows, nil
}

func (f *fakeConn) Exec(context.Context, string) (any, error) {
	f.execs++
	return f.execResult, nil
}

type fakeAccessor struct {
	table string
}

func (f *fakeAccessor) TableName() string { return f.table }

func (f *fakeAccessor) ExecuteTypedSQL(context.Context, string) ([]any, error) {
	return nil, nil
}
