package sync

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	gosync "sync"
	"testing"
	"time"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/store"
)

// fakeUpdater records dispatch calls. Individual operations can be made
// to fail or block.
type fakeUpdater struct {
	mu           gosync.Mutex
	pageSettings []string
	content      []string
	notify       []string
	contentErr   error
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
	return f.contentErr
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

type fixture struct {
	orch    *Orchestrator
	cache   *cache.Store
	editors *editor.Store
	updater *fakeUpdater
}

func newFixture(t *testing.T) *fixture {
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
	settings, err := NewSettings(db)
	if err != nil {
		t.Fatalf("failed to create settings: %v", err)
	}

	updater := &fakeUpdater{}
	orch := NewOrchestrator(cacheStore, editorStore, updater, settings, Config{Interval: time.Minute}, logger)

	return &fixture{orch: orch, cache: cacheStore, editors: editorStore, updater: updater}
}

func (f *fixture) addEditor(t *testing.T, name string) *editor.Config {
	t.Helper()
	cfg := &editor.Config{
		Name:     name,
		Type:     editor.TypeDocify,
		SyncMode: editor.SyncOnline,
		APIURL:   "http://backend.local/api",
	}
	if err := f.editors.Save(cfg); err != nil {
		t.Fatalf("failed to save editor: %v", err)
	}
	return cfg
}

func (f *fixture) putDocify(t *testing.T, id, editorID string) {
	t.Helper()
	payload := fmt.Sprintf(`{"name":"Doc %s","htmlContent":"<p>x</p>","editorId":%q}`, id, editorID)
	if err := f.cache.Put(id, json.RawMessage(payload), editorID); err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
}

func (f *fixture) putNotify(t *testing.T, id, editorID string) {
	t.Helper()
	payload := fmt.Sprintf(`{"key":"k-%s","email":"hello","sms":"","editorId":%q}`, id, editorID)
	if err := f.cache.Put(id, json.RawMessage(payload), editorID); err != nil {
		t.Fatalf("put %s: %v", id, err)
	}
}

func TestBuildPayload(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putDocify(t, "tpl-1", ed.ID)
	f.putNotify(t, "tpl-2", ed.ID)

	payload, err := f.orch.BuildPayload()
	if err != nil {
		t.Fatalf("BuildPayload() error = %v", err)
	}
	if payload.Count != 2 {
		t.Errorf("count = %d, want 2", payload.Count)
	}
	if len(payload.Templates) != payload.Count {
		t.Errorf("templates/count mismatch: %d vs %d", len(payload.Templates), payload.Count)
	}
	if payload.Timestamp.IsZero() {
		t.Error("timestamp not set")
	}
}

func TestTriggerSyncDocify(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putDocify(t, "tpl-1", ed.ID)

	if err := f.orch.TriggerSync(context.Background(), SourceManual); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	// A document template needs two calls: metadata and content
	pages, content, notify := f.updater.counts()
	if pages != 1 || content != 1 || notify != 0 {
		t.Errorf("dispatches = %d/%d/%d, want 1/1/0", pages, content, notify)
	}

	st := f.orch.Status().Get()
	if st.State != StateSuccess {
		t.Errorf("state = %q, want success", st.State)
	}
	if st.Progress != 100 {
		t.Errorf("progress = %d, want 100", st.Progress)
	}
	if st.SyncedTemplates != st.TotalTemplates {
		t.Errorf("synced = %d, total = %d", st.SyncedTemplates, st.TotalTemplates)
	}

	if _, ok := f.orch.Settings().LastSync(); !ok {
		t.Error("last sync time not persisted")
	}
}

func TestTriggerSyncNotify(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putNotify(t, "tpl-1", ed.ID)

	if err := f.orch.TriggerSync(context.Background(), SourceManual); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	// A notification template is a single update call
	pages, content, notify := f.updater.counts()
	if pages != 0 || content != 0 || notify != 1 {
		t.Errorf("dispatches = %d/%d/%d, want 0/0/1", pages, content, notify)
	}
}

func TestTriggerSyncEmptyCache(t *testing.T) {
	f := newFixture(t)

	if err := f.orch.TriggerSync(context.Background(), SourceManual); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	st := f.orch.Status().Get()
	if st.State != StateIdle {
		t.Errorf("state = %q, want idle", st.State)
	}
	pages, content, notify := f.updater.counts()
	if pages+content+notify != 0 {
		t.Error("dispatches made for an empty cache")
	}
}

func TestTriggerSyncBestEffort(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putDocify(t, "tpl-1", ed.ID)
	f.updater.contentErr = errors.New("backend exploded")

	// Per-entry failures never fail the cycle
	if err := f.orch.TriggerSync(context.Background(), SourceManual); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	st := f.orch.Status().Get()
	if st.State != StateSuccess {
		t.Errorf("state = %q, want success", st.State)
	}
	if st.Error == "" {
		t.Error("per-entry error not recorded in status")
	}
}

func TestTriggerSyncSkipsMissingEditor(t *testing.T) {
	f := newFixture(t)
	f.putDocify(t, "tpl-1", "no-such-editor")

	if err := f.orch.TriggerSync(context.Background(), SourceManual); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	pages, content, _ := f.updater.counts()
	if pages != 0 || content != 0 {
		t.Error("dispatched despite unresolvable editor")
	}
	if st := f.orch.Status().Get(); st.State != StateSuccess {
		t.Errorf("state = %q, want success", st.State)
	}
}

func TestTriggerSyncSkipsEmptyContent(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")

	payload := fmt.Sprintf(`{"name":"Blank","htmlContent":"  ","editorId":%q}`, ed.ID)
	if err := f.cache.Put("tpl-1", json.RawMessage(payload), ed.ID); err != nil {
		t.Fatalf("put: %v", err)
	}

	if err := f.orch.TriggerSync(context.Background(), SourceManual); err != nil {
		t.Fatalf("TriggerSync() error = %v", err)
	}

	pages, content, _ := f.updater.counts()
	if pages != 0 || content != 0 {
		t.Error("dispatched a template with blank content")
	}
}

func TestTriggerSyncReentrancy(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putDocify(t, "tpl-1", ed.ID)
	f.updater.block = make(chan struct{})

	done := make(chan error, 1)
	go func() {
		done <- f.orch.TriggerSync(context.Background(), SourceManual)
	}()

	waitFor(t, f.orch.InFlight)

	if err := f.orch.TriggerSync(context.Background(), SourceManual); !errors.Is(err, ErrSyncAlreadyRunning) {
		t.Errorf("racing trigger error = %v, want ErrSyncAlreadyRunning", err)
	}

	close(f.updater.block)
	if err := <-done; err != nil {
		t.Fatalf("first trigger error = %v", err)
	}
	if f.orch.InFlight() {
		t.Error("guard not released after cycle")
	}
}

func TestAutoSyncLoop(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putNotify(t, "tpl-1", ed.ID)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(f.cache, f.editors, f.updater, f.orch.Settings(), Config{Interval: 20 * time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.Start(ctx)
	defer orch.Stop()

	waitFor(t, func() bool {
		_, _, notify := f.updater.counts()
		return notify >= 1
	})
}

func TestAutoSyncLoopHonorsFlag(t *testing.T) {
	f := newFixture(t)
	ed := f.addEditor(t, "backend")
	f.putNotify(t, "tpl-1", ed.ID)

	if err := f.orch.Settings().SetAutoSyncEnabled(false); err != nil {
		t.Fatalf("disable auto sync: %v", err)
	}

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	orch := NewOrchestrator(f.cache, f.editors, f.updater, f.orch.Settings(), Config{Interval: 10 * time.Millisecond}, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	orch.Start(ctx)
	defer orch.Stop()

	time.Sleep(60 * time.Millisecond)
	if _, _, notify := f.updater.counts(); notify != 0 {
		t.Error("auto loop dispatched while disabled")
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
