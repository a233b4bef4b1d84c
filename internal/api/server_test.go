package api

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/config"
	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/store"
	"github.com/foxzi/templar/internal/sync"
)

// fakeUpdater records dispatched updates and can be told to block until
// released, to hold a sync cycle in flight.
type fakeUpdater struct {
	mu           gosync.Mutex
	pageSettings []string
	content      []string
	notify       []string
	block        chan struct{}
}

func (f *fakeUpdater) wait() {
	if f.block != nil {
		<-f.block
	}
}

func (f *fakeUpdater) UpdatePageSettings(ctx context.Context, ed *editor.Config, templateID string, t *cache.DocifyTemplate) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pageSettings = append(f.pageSettings, templateID)
	return nil
}

func (f *fakeUpdater) UpdateContent(ctx context.Context, ed *editor.Config, templateID string, t *cache.DocifyTemplate) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.content = append(f.content, templateID)
	return nil
}

func (f *fakeUpdater) UpdateNotify(ctx context.Context, ed *editor.Config, templateID string, t *cache.NotifyTemplate) error {
	f.wait()
	f.mu.Lock()
	defer f.mu.Unlock()
	f.notify = append(f.notify, templateID)
	return nil
}

func (f *fakeUpdater) counts() (int, int, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.pageSettings), len(f.content), len(f.notify)
}

type testEnv struct {
	server  *Server
	cache   *cache.Store
	writer  *cache.Writer
	editors *editor.Store
	orch    *sync.Orchestrator
	updater *fakeUpdater
}

func newTestEnv(t *testing.T, apiKey string) *testEnv {
	t.Helper()

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	db, err := store.Open(filepath.Join(t.TempDir(), "templar.db"))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	cacheStore, err := cache.NewStore(db, logger)
	if err != nil {
		t.Fatalf("failed to create cache store: %v", err)
	}
	editorStore, err := editor.NewStore(db)
	if err != nil {
		t.Fatalf("failed to create editor store: %v", err)
	}
	settings, err := sync.NewSettings(db)
	if err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}

	updater := &fakeUpdater{}
	orch := sync.NewOrchestrator(cacheStore, editorStore, updater, settings, sync.Config{Interval: time.Minute}, logger)

	writer := cache.NewWriter(cacheStore, 10*time.Millisecond, logger)
	t.Cleanup(writer.Close)

	cfg := &config.APIConfig{ListenAddr: "127.0.0.1:0", APIKey: apiKey}
	srv := NewServer(cacheStore, writer, editorStore, orch, cfg, logger)

	return &testEnv{
		server:  srv,
		cache:   cacheStore,
		writer:  writer,
		editors: editorStore,
		orch:    orch,
		updater: updater,
	}
}

func (e *testEnv) request(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("failed to encode request body: %v", err)
		}
	}

	req := httptest.NewRequest(method, path, &buf)
	w := httptest.NewRecorder()
	e.server.router.ServeHTTP(w, req)
	return w
}

func (e *testEnv) addEditor(t *testing.T, name string) *editor.Config {
	t.Helper()
	cfg := &editor.Config{
		Name:     name,
		Type:     editor.TypeDocify,
		SyncMode: editor.SyncOnline,
		APIURL:   "http://backend.local/api",
	}
	if err := e.editors.Save(cfg); err != nil {
		t.Fatalf("failed to save editor: %v", err)
	}
	return cfg
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(w.Body).Decode(v); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
}

func TestHealth(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp HealthResponse
	decodeBody(t, w, &resp)
	if resp.Status != "ok" {
		t.Errorf("status = %q, want ok", resp.Status)
	}
}

func TestAuth(t *testing.T) {
	env := newTestEnv(t, "secret")

	tests := []struct {
		name       string
		header     string
		value      string
		query      string
		wantStatus int
	}{
		{"no credentials", "", "", "", http.StatusUnauthorized},
		{"wrong key", "Authorization", "Bearer nope", "", http.StatusUnauthorized},
		{"bearer token", "Authorization", "Bearer secret", "", http.StatusOK},
		{"x-api-key", "X-API-Key", "secret", "", http.StatusOK},
		{"query param", "", "", "secret", http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			path := "/api/v1/templates/"
			if tt.query != "" {
				path += "?api_key=" + tt.query
			}
			req := httptest.NewRequest(http.MethodGet, path, nil)
			if tt.header != "" {
				req.Header.Set(tt.header, tt.value)
			}
			w := httptest.NewRecorder()
			env.server.router.ServeHTTP(w, req)
			if w.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", w.Code, tt.wantStatus)
			}
		})
	}

	// Health stays open without credentials
	w := env.request(t, http.MethodGet, "/health", nil)
	if w.Code != http.StatusOK {
		t.Errorf("health status = %d, want 200", w.Code)
	}
}

func TestTemplateLifecycle(t *testing.T) {
	env := newTestEnv(t, "")
	ed := env.addEditor(t, "backend")

	// Open a docify template
	open := OpenTemplateRequest{
		TemplateID: "tpl-1",
		EditorID:   ed.ID,
		Template:   json.RawMessage(`{"name":"Invoice","htmlContent":"<p>{{.total}}</p>"}`),
	}
	w := env.request(t, http.MethodPost, "/api/v1/templates/", open)
	if w.Code != http.StatusCreated {
		t.Fatalf("open status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var rec cache.Record
	decodeBody(t, w, &rec)
	if rec.Channel != cache.ChannelDocify {
		t.Errorf("channel = %q, want docify", rec.Channel)
	}
	if rec.EditorID != ed.ID {
		t.Errorf("editorId = %q, want %q", rec.EditorID, ed.ID)
	}

	// Fetch it back
	w = env.request(t, http.MethodGet, "/api/v1/templates/tpl-1", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}

	// Unknown id is a 404
	w = env.request(t, http.MethodGet, "/api/v1/templates/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}

	// Edit write-back goes through the debounced writer
	update := UpdateTemplateRequest{
		EditorID: ed.ID,
		Template: json.RawMessage(`{"name":"Invoice v2","htmlContent":"<p>{{.total}}</p>"}`),
	}
	w = env.request(t, http.MethodPut, "/api/v1/templates/tpl-1", update)
	if w.Code != http.StatusAccepted {
		t.Fatalf("update status = %d, want 202", w.Code)
	}

	env.writer.Flush()
	got, err := env.cache.Fetch("tpl-1")
	if err != nil || got == nil {
		t.Fatalf("fetch after update: rec=%v err=%v", got, err)
	}
	if got.Docify.Name != "Invoice v2" {
		t.Errorf("name after update = %q, want Invoice v2", got.Docify.Name)
	}

	// List with channel filter
	w = env.request(t, http.MethodGet, "/api/v1/templates/?channel=docify", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list status = %d, want 200", w.Code)
	}
	var list TemplateListResponse
	decodeBody(t, w, &list)
	if list.Count != 1 {
		t.Errorf("list count = %d, want 1", list.Count)
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates/?channel=notify", nil)
	decodeBody(t, w, &list)
	if list.Count != 0 {
		t.Errorf("notify list count = %d, want 0", list.Count)
	}

	w = env.request(t, http.MethodGet, "/api/v1/templates/?channel=bogus", nil)
	if w.Code != http.StatusBadRequest {
		t.Errorf("bogus channel status = %d, want 400", w.Code)
	}

	// Navigate away
	w = env.request(t, http.MethodDelete, "/api/v1/templates/tpl-1", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d, want 204", w.Code)
	}
	got, err = env.cache.Fetch("tpl-1")
	if err != nil {
		t.Fatalf("fetch after delete: %v", err)
	}
	if got != nil {
		t.Error("template still cached after delete")
	}
}

func TestOpenTemplateValidation(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodPost, "/api/v1/templates/", OpenTemplateRequest{
		Template: json.RawMessage(`{}`),
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing templateId status = %d, want 400", w.Code)
	}

	w = env.request(t, http.MethodPost, "/api/v1/templates/", OpenTemplateRequest{
		TemplateID: "tpl-1",
	})
	if w.Code != http.StatusBadRequest {
		t.Errorf("missing template status = %d, want 400", w.Code)
	}
}

func TestTemplateVariablesDocify(t *testing.T) {
	env := newTestEnv(t, "")

	payload := `{"name":"Invoice","htmlContent":"<p>{{.total}}</p>","sampleJsonData":"{\"total\": \"100\"}"}`
	if err := env.cache.Put("tpl-1", json.RawMessage(payload), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	w := env.request(t, http.MethodPost, "/api/v1/templates/tpl-1/variables", VariablesRequest{
		Markup: "<p>{{.total}} due {{.dueDate}} for {{.customer}}</p>",
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp VariablesResponse
	decodeBody(t, w, &resp)

	want := []string{"customer", "dueDate", "total"}
	if len(resp.Variables) != len(want) {
		t.Fatalf("variables = %v, want %v", resp.Variables, want)
	}
	for i := range want {
		if resp.Variables[i] != want[i] {
			t.Fatalf("variables = %v, want %v", resp.Variables, want)
		}
	}

	var doc map[string]interface{}
	if err := json.Unmarshal([]byte(resp.SampleJSONData), &doc); err != nil {
		t.Fatalf("merged sample is not JSON: %v", err)
	}
	if doc["total"] != "100" {
		t.Errorf("existing value lost: total = %v", doc["total"])
	}
	if v, ok := doc["dueDate"]; !ok || v != "" {
		t.Errorf("dueDate = %v, want empty string", v)
	}

	// Merge result is persisted
	rec, err := env.cache.Fetch("tpl-1")
	if err != nil || rec == nil {
		t.Fatalf("fetch: rec=%v err=%v", rec, err)
	}
	if rec.Docify.SampleJSONData != resp.SampleJSONData {
		t.Error("persisted sample does not match response")
	}
}

func TestTemplateVariablesNotify(t *testing.T) {
	env := newTestEnv(t, "")

	payload := `{"key":"welcome","email":"Hi {{.firstName}}","sms":"","data":{"firstName":"Ada"}}`
	if err := env.cache.Put("tpl-2", json.RawMessage(payload), ""); err != nil {
		t.Fatalf("put: %v", err)
	}

	// No markup submitted: the cached email body is used
	w := env.request(t, http.MethodPost, "/api/v1/templates/tpl-2/variables", VariablesRequest{})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200: %s", w.Code, w.Body.String())
	}

	var resp VariablesResponse
	decodeBody(t, w, &resp)
	if len(resp.Variables) != 1 || resp.Variables[0] != "firstName" {
		t.Fatalf("variables = %v, want [firstName]", resp.Variables)
	}
	if resp.Data["firstName"] != "Ada" {
		t.Errorf("existing data value lost: %v", resp.Data)
	}
}

func TestEditorCRUD(t *testing.T) {
	env := newTestEnv(t, "")

	create := editor.Config{
		Name:     "Notify Prod",
		Type:     editor.TypeNotify,
		SyncMode: editor.SyncOnline,
		APIURL:   "http://notify.local/api",
	}
	w := env.request(t, http.MethodPost, "/api/v1/editors/", create)
	if w.Code != http.StatusCreated {
		t.Fatalf("create status = %d, want 201: %s", w.Code, w.Body.String())
	}

	var created editor.Config
	decodeBody(t, w, &created)
	if created.ID == "" {
		t.Fatal("created editor has no id")
	}

	// Duplicate name conflicts, case-insensitively
	dup := create
	dup.Name = "NOTIFY PROD"
	w = env.request(t, http.MethodPost, "/api/v1/editors/", dup)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate status = %d, want 409", w.Code)
	}

	// Invalid profile is a 400
	bad := editor.Config{Name: "bad", Type: "wat"}
	w = env.request(t, http.MethodPost, "/api/v1/editors/", bad)
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid status = %d, want 400", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/editors/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d, want 200", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/editors/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get missing status = %d, want 404", w.Code)
	}

	// Replace wholesale
	updated := create
	updated.Name = "Notify Staging"
	w = env.request(t, http.MethodPut, "/api/v1/editors/"+created.ID, updated)
	if w.Code != http.StatusOK {
		t.Fatalf("update status = %d, want 200: %s", w.Code, w.Body.String())
	}
	var got editor.Config
	decodeBody(t, w, &got)
	if got.Name != "Notify Staging" {
		t.Errorf("name = %q, want Notify Staging", got.Name)
	}
	if got.ID != created.ID {
		t.Errorf("id changed on update: %q -> %q", created.ID, got.ID)
	}

	w = env.request(t, http.MethodPut, "/api/v1/editors/missing", updated)
	if w.Code != http.StatusNotFound {
		t.Errorf("update missing status = %d, want 404", w.Code)
	}

	w = env.request(t, http.MethodDelete, "/api/v1/editors/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Errorf("delete status = %d, want 204", w.Code)
	}
	w = env.request(t, http.MethodDelete, "/api/v1/editors/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestAutoSyncFlag(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodGet, "/api/v1/sync/auto", nil)
	var resp AutoSyncRequest
	decodeBody(t, w, &resp)
	if !resp.Enabled {
		t.Error("auto sync should default to enabled")
	}

	w = env.request(t, http.MethodPut, "/api/v1/sync/auto", AutoSyncRequest{Enabled: false})
	if w.Code != http.StatusOK {
		t.Fatalf("put status = %d, want 200", w.Code)
	}

	w = env.request(t, http.MethodGet, "/api/v1/sync/auto", nil)
	decodeBody(t, w, &resp)
	if resp.Enabled {
		t.Error("auto sync still enabled after disable")
	}
}

func TestSyncStatusSnapshot(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodGet, "/api/v1/sync/", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}

	var resp SyncStatusResponse
	decodeBody(t, w, &resp)
	if resp.State != sync.StateIdle {
		t.Errorf("state = %q, want idle", resp.State)
	}
	if resp.LastSync != nil {
		t.Error("lastSync set before any cycle ran")
	}
}

func TestTriggerSyncEndToEnd(t *testing.T) {
	env := newTestEnv(t, "")
	ed := env.addEditor(t, "backend")

	payload := fmt.Sprintf(`{"name":"Invoice","htmlContent":"<p>x</p>","editorId":%q}`, ed.ID)
	if err := env.cache.Put("tpl-1", json.RawMessage(payload), ed.ID); err != nil {
		t.Fatalf("put: %v", err)
	}

	w := env.request(t, http.MethodPost, "/api/v1/sync/", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("trigger status = %d, want 202: %s", w.Code, w.Body.String())
	}

	waitFor(t, func() bool {
		return env.orch.Status().Get().State == sync.StateSuccess
	})

	st := env.orch.Status().Get()
	if st.Progress != 100 {
		t.Errorf("progress = %d, want 100", st.Progress)
	}
	if st.TotalTemplates != 1 || st.SyncedTemplates != 1 {
		t.Errorf("counters = %d/%d, want 1/1", st.SyncedTemplates, st.TotalTemplates)
	}

	// One docify entry means exactly one metadata call and one content call
	pages, content, notify := env.updater.counts()
	if pages != 1 || content != 1 || notify != 0 {
		t.Errorf("dispatches = %d/%d/%d, want 1/1/0", pages, content, notify)
	}
}

func TestTriggerSyncConflict(t *testing.T) {
	env := newTestEnv(t, "")
	ed := env.addEditor(t, "backend")
	env.updater.block = make(chan struct{})

	payload := fmt.Sprintf(`{"name":"Invoice","htmlContent":"<p>x</p>","editorId":%q}`, ed.ID)
	if err := env.cache.Put("tpl-1", json.RawMessage(payload), ed.ID); err != nil {
		t.Fatalf("put: %v", err)
	}

	w := env.request(t, http.MethodPost, "/api/v1/sync/", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("first trigger status = %d, want 202", w.Code)
	}

	waitFor(t, env.orch.InFlight)

	w = env.request(t, http.MethodPost, "/api/v1/sync/", nil)
	if w.Code != http.StatusConflict {
		t.Errorf("second trigger status = %d, want 409", w.Code)
	}

	close(env.updater.block)
	waitFor(t, func() bool { return !env.orch.InFlight() })
}

func TestTriggerSyncNothingToDo(t *testing.T) {
	env := newTestEnv(t, "")

	w := env.request(t, http.MethodPost, "/api/v1/sync/", nil)
	if w.Code != http.StatusAccepted {
		t.Fatalf("trigger status = %d, want 202", w.Code)
	}

	waitFor(t, func() bool {
		st := env.orch.Status().Get()
		return st.State == sync.StateIdle && st.Message == "no templates to sync"
	})

	// No network traffic for an empty cache
	pages, content, notify := env.updater.counts()
	if pages+content+notify != 0 {
		t.Errorf("dispatches = %d/%d/%d, want none", pages, content, notify)
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}
