package cli

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/ppiankov/postnotify/internal/config"
	"github.com/ppiankov/postnotify/internal/notify"
	"github.com/ppiankov/postnotify/internal/render"
	"github.com/ppiankov/postnotify/internal/store"
)

// fakeFeedAPI serves a single account "alice" (id 11). Responses depend on
// since_id the way the real timeline endpoint does.
type fakeFeedAPI struct {
	mu           sync.Mutex
	resolveCalls int
	sinceIDs     []string
}

func (f *fakeFeedAPI) handler(t *testing.T) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if got := r.Header.Get("Authorization"); got != "Bearer test-token" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")

		switch r.URL.Path {
		case "/2/users/by":
			f.mu.Lock()
			f.resolveCalls++
			f.mu.Unlock()
			var data []map[string]string
			var errs []map[string]string
			for _, name := range strings.Split(r.URL.Query().Get("usernames"), ",") {
				if name == "alice" {
					data = append(data, map[string]string{"id": "11", "name": "Alice", "username": "alice"})
					continue
				}
				errs = append(errs, map[string]string{"value": name, "detail": "Could not find user", "title": "Not Found Error"})
			}
			_ = json.NewEncoder(w).Encode(map[string]any{"data": data, "errors": errs})

		case "/2/users/11/tweets":
			since := r.URL.Query().Get("since_id")
			f.mu.Lock()
			f.sinceIDs = append(f.sinceIDs, since)
			f.mu.Unlock()
			switch since {
			case "":
				_, _ = io.WriteString(w, `{
					"data": [
						{"id": "105", "text": "older news", "author_id": "11"},
						{"id": "104", "text": "even older", "author_id": "11"}
					],
					"includes": {"users": [{"id": "11", "name": "Alice", "username": "alice"}]},
					"meta": {"result_count": 2, "newest_id": "105", "oldest_id": "104"}
				}`)
			case "105":
				_, _ = io.WriteString(w, `{
					"data": [
						{"id": "107", "text": "RT @bob: hello", "author_id": "11",
						 "referenced_tweets": [{"type": "retweeted", "id": "90"}]},
						{"id": "106", "text": "fresh news", "author_id": "11"}
					],
					"includes": {
						"tweets": [{"id": "90", "text": "hello", "author_id": "22"}],
						"users": [
							{"id": "11", "name": "Alice", "username": "alice"},
							{"id": "22", "name": "bob", "username": "bob"}
						]
					},
					"meta": {"result_count": 2, "newest_id": "107", "oldest_id": "106"}
				}`)
			default:
				_, _ = io.WriteString(w, `{"meta": {"result_count": 0}}`)
			}

		default:
			t.Errorf("unexpected request %s", r.URL.String())
			http.NotFound(w, r)
		}
	}
}

type pipelineEnv struct {
	dir      string
	dbPath   string
	textfile string
	api      *fakeFeedAPI
}

func setupPipeline(t *testing.T, accounts string) *pipelineEnv {
	t.Helper()

	api := &fakeFeedAPI{}
	srv := httptest.NewServer(api.handler(t))
	t.Cleanup(srv.Close)

	dir := t.TempDir()
	env := &pipelineEnv{
		dir:      dir,
		dbPath:   filepath.Join(dir, "state.db"),
		textfile: filepath.Join(dir, "postnotify.prom"),
		api:      api,
	}

	cfg := `accounts: [` + accounts + `]
feed:
  base_url: ` + srv.URL + `/2
  web_url: https://x.test
notify:
  provider: stdout
storage:
  path: ` + env.dbPath + `
log:
  level: error
metrics:
  textfile: ` + env.textfile + `
`
	if err := os.WriteFile(filepath.Join(dir, config.DefaultConfigFile), []byte(cfg), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	t.Setenv("POSTNOTIFY_BEARER_TOKEN", "test-token")

	oldConfigDir, oldLogLevel := configDir, logLevel
	oldFetchFormat, oldStateFormat, oldNoColor := fetchFormat, stateFormat, noColor
	t.Cleanup(func() {
		configDir, logLevel = oldConfigDir, oldLogLevel
		fetchFormat, stateFormat, noColor = oldFetchFormat, oldStateFormat, oldNoColor
	})
	configDir = dir
	logLevel = ""
	noColor = true

	return env
}

func testCommand() *cobra.Command {
	cmd := &cobra.Command{}
	cmd.SetContext(context.Background())
	return cmd
}

func TestPipelineRunFetchStateForget(t *testing.T) {
	env := setupPipeline(t, "alice")
	cmd := testCommand()

	// First run only records the watermark.
	out, err := captureStdout(t, func() error { return runOnce(cmd, nil) })
	if err != nil {
		t.Fatalf("first run: %v", err)
	}
	requireContains(t, out, "Checked 1 accounts: 0 new posts, 0 sent")

	// Second run delivers what is newer than 105.
	out, err = captureStdout(t, func() error { return runOnce(cmd, nil) })
	if err != nil {
		t.Fatalf("second run: %v", err)
	}
	requireContains(t, out, "Alice reposted bob's post")
	requireContains(t, out, `  bob: "hello"`)
	requireContains(t, out, "https://x.test/alice/status/107")
	requireContains(t, out, "Alice posted")
	requireContains(t, out, "fresh news")
	requireContains(t, out, "Checked 1 accounts: 2 new posts, 2 sent")
	if strings.Index(out, "status/107") > strings.Index(out, "status/106") {
		t.Error("posts should be delivered newest first")
	}

	// Nothing new since 107.
	fetchFormat = "json"
	out, err = captureStdout(t, func() error { return fetchAction(cmd, nil) })
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	var doc struct {
		Meta struct {
			Accounts int `json:"accounts"`
			Posts    int `json:"posts"`
		} `json:"meta"`
		Messages []json.RawMessage `json:"messages"`
	}
	if err := json.Unmarshal([]byte(out), &doc); err != nil {
		t.Fatalf("decode fetch output: %v\n%s", err, out)
	}
	if doc.Meta.Accounts != 1 || doc.Meta.Posts != 0 || len(doc.Messages) != 0 {
		t.Fatalf("fetch output = %s", out)
	}

	if env.api.resolveCalls != 1 {
		t.Errorf("handle resolved %d times, want 1", env.api.resolveCalls)
	}
	if got := strings.Join(env.api.sinceIDs, ","); got != ",105,107" {
		t.Errorf("since ids = %q", got)
	}

	// State shows the cached id and the watermark.
	stateFormat = "json"
	out, err = captureStdout(t, func() error { return stateAction(cmd, nil) })
	if err != nil {
		t.Fatalf("state: %v", err)
	}
	var state struct {
		Accounts []accountState `json:"accounts"`
	}
	if err := json.Unmarshal([]byte(out), &state); err != nil {
		t.Fatalf("decode state: %v", err)
	}
	if len(state.Accounts) != 1 {
		t.Fatalf("state = %s", out)
	}
	if a := state.Accounts[0]; a.Handle != "alice" || a.ID != "11" || a.Watermark != "107" || a.Name != "Alice" || !a.Configured {
		t.Fatalf("account state = %+v", a)
	}

	// Forget drops the watermark.
	out, err = captureStdout(t, func() error { return forgetAction(cmd, []string{"@Alice", "nobody"}) })
	if err != nil {
		t.Fatalf("forget: %v", err)
	}
	requireContains(t, out, "forgot: @alice (id 11)")
	requireContains(t, out, "unknown: @nobody")

	st := openStoreForPipelineTest(t, env.dbPath)
	if _, ok, _ := st.Get(context.Background(), store.NamespaceWatermarks, "11"); ok {
		t.Error("watermark should be gone after forget")
	}
	_ = st.Close()

	stateFormat = "terminal"
	out, err = captureStdout(t, func() error { return stateAction(cmd, nil) })
	if err != nil {
		t.Fatalf("state terminal: %v", err)
	}
	requireContains(t, out, "@alice")
	requireContains(t, out, "(first run pending)")

	// Metrics textfile from the runs.
	prom, err := os.ReadFile(env.textfile)
	if err != nil {
		t.Fatalf("read metrics textfile: %v", err)
	}
	requireContains(t, string(prom), "postnotify_last_run_success 1")
	requireContains(t, string(prom), "postnotify_notifications_total")
}

func TestPipelineUnresolvedHandleAborts(t *testing.T) {
	env := setupPipeline(t, "alice, ghost")

	_, err := captureStdout(t, func() error { return runOnce(testCommand(), nil) })
	if err == nil {
		t.Fatal("expected resolution error")
	}
	requireContains(t, err.Error(), "unresolved handles: ghost")

	if len(env.api.sinceIDs) != 0 {
		t.Error("no timeline requests expected after a resolution failure")
	}
	st := openStoreForPipelineTest(t, env.dbPath)
	defer func() { _ = st.Close() }()
	handles, err := st.List(context.Background(), store.NamespaceHandles)
	if err != nil {
		t.Fatalf("list handles: %v", err)
	}
	if len(handles) != 0 {
		t.Errorf("handle cache written on failure: %v", handles)
	}
}

type failingNotifier struct{}

func (failingNotifier) Send(_ context.Context, msgs []render.Message, _ string) notify.Report {
	return notify.Report{Failed: len(msgs)}
}

func TestRunFailsWhenEveryDeliveryFails(t *testing.T) {
	setupPipeline(t, "alice")
	cmd := testCommand()

	if _, err := captureStdout(t, func() error { return runOnce(cmd, nil) }); err != nil {
		t.Fatalf("first run: %v", err)
	}

	oldNotifier := newNotifier
	t.Cleanup(func() { newNotifier = oldNotifier })
	newNotifier = func(*config.Config, zerolog.Logger) (notify.Notifier, error) {
		return failingNotifier{}, nil
	}

	out, err := captureStdout(t, func() error { return runOnce(cmd, nil) })
	if err == nil {
		t.Fatal("expected error when all notifications fail")
	}
	requireContains(t, err.Error(), "all 2 notifications failed")
	requireContains(t, out, "2 failed")
}

func TestRunRequiresBearerToken(t *testing.T) {
	setupPipeline(t, "alice")
	t.Setenv("POSTNOTIFY_BEARER_TOKEN", "")

	_, err := captureStdout(t, func() error { return runOnce(testCommand(), nil) })
	if err == nil || !strings.Contains(err.Error(), "POSTNOTIFY_BEARER_TOKEN") {
		t.Fatalf("err = %v", err)
	}
}

func captureStdout(t *testing.T, fn func() error) (string, error) {
	t.Helper()

	oldStdout := os.Stdout
	reader, writer, err := os.Pipe()
	if err != nil {
		t.Fatalf("open stdout pipe: %v", err)
	}

	os.Stdout = writer
	runErr := fn()
	_ = writer.Close()
	os.Stdout = oldStdout

	out, readErr := io.ReadAll(reader)
	_ = reader.Close()
	if readErr != nil {
		t.Fatalf("read stdout pipe: %v", readErr)
	}
	return string(out), runErr
}

func openStoreForPipelineTest(t *testing.T, path string) *store.SQLite {
	t.Helper()

	st, err := store.OpenSQLite(path)
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	return st
}

func requireContains(t *testing.T, got, want string) {
	t.Helper()

	if !strings.Contains(got, want) {
		t.Fatalf("expected output to contain %q, got:\n%s", want, got)
	}
}
