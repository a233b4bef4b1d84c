// Package sync implements the template push-sync control loop: scanning
// the local edit cache, resolving editor profiles and dispatching updates
// to remote backends, with an observable status state machine.
package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/foxzi/templar/internal/cache"
	"github.com/foxzi/templar/internal/editor"
	"github.com/foxzi/templar/internal/metrics"
)

// ErrSyncAlreadyRunning is returned when a trigger races an in-flight
// cycle. The call is a no-op: nothing is queued or cancelled.
var ErrSyncAlreadyRunning = errors.New("sync already running")

// Source identifies what triggered a cycle.
type Source string

const (
	SourceManual Source = "manual"
	SourceAuto   Source = "auto"
)

const (
	// DefaultInterval is the periodic auto-sync cadence.
	DefaultInterval = 30 * time.Second
	// DefaultPacing is the fixed delay before each per-template dispatch,
	// so one cycle does not hammer the remote API.
	DefaultPacing = 1 * time.Second
)

// Payload is the transient sync request view: references only, rebuilt
// from a fresh cache scan on every attempt and never persisted.
type Payload struct {
	Templates []cache.TemplateRef `json:"templates"`
	Timestamp time.Time           `json:"timestamp"`
	Count     int                 `json:"count"`
}

// Updater dispatches template updates to a remote backend.
type Updater interface {
	UpdatePageSettings(ctx context.Context, ed *editor.Config, templateID string, t *cache.DocifyTemplate) error
	UpdateContent(ctx context.Context, ed *editor.Config, templateID string, t *cache.DocifyTemplate) error
	UpdateNotify(ctx context.Context, ed *editor.Config, templateID string, t *cache.NotifyTemplate) error
}

// Config tunes the orchestrator.
type Config struct {
	Interval time.Duration
	Pacing   time.Duration
}

// Orchestrator runs sync cycles over the edit cache. At most one cycle is
// in flight at a time, enforced by a re-entrancy guard rather than a
// queue: a racing trigger observes the guard and returns immediately.
type Orchestrator struct {
	cache    *cache.Store
	editors  *editor.Store
	updater  Updater
	settings *Settings
	status   *StatusStore
	logger   *slog.Logger

	interval time.Duration
	pacing   time.Duration

	inFlight atomic.Bool
	stopCh   chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewOrchestrator wires a sync orchestrator.
func NewOrchestrator(c *cache.Store, e *editor.Store, u Updater, s *Settings, cfg Config, logger *slog.Logger) *Orchestrator {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultInterval
	}
	if cfg.Pacing < 0 {
		cfg.Pacing = DefaultPacing
	}

	return &Orchestrator{
		cache:    c,
		editors:  e,
		updater:  u,
		settings: s,
		status:   NewStatusStore(),
		logger:   logger,
		interval: cfg.Interval,
		pacing:   cfg.Pacing,
		stopCh:   make(chan struct{}),
	}
}

// Status exposes the observable status store.
func (o *Orchestrator) Status() *StatusStore {
	return o.status
}

// Settings exposes the persisted sync settings.
func (o *Orchestrator) Settings() *Settings {
	return o.settings
}

// InFlight reports whether a cycle is currently running.
func (o *Orchestrator) InFlight() bool {
	return o.inFlight.Load()
}

// BuildPayload scans the cache and wraps the eligible references with a
// generation timestamp and count.
func (o *Orchestrator) BuildPayload() (*Payload, error) {
	refs, err := o.cache.Scan()
	if err != nil {
		return nil, fmt.Errorf("build sync payload: %w", err)
	}
	return &Payload{
		Templates: refs,
		Timestamp: time.Now(),
		Count:     len(refs),
	}, nil
}

// Start launches the periodic auto-sync loop. A timer is re-armed after
// each run instead of a ticker so that a slow cycle never faces queued
// ticks. The persisted enable flag is consulted on every tick.
func (o *Orchestrator) Start(ctx context.Context) {
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()

		timer := time.NewTimer(o.interval)
		defer timer.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-o.stopCh:
				return
			case <-timer.C:
				if o.settings.AutoSyncEnabled() {
					if err := o.TriggerSync(ctx, SourceAuto); err != nil && !errors.Is(err, ErrSyncAlreadyRunning) {
						o.logger.Error("auto sync failed", "error", err)
					}
				}
				timer.Reset(o.interval)
			}
		}
	}()

	o.logger.Info("auto sync scheduler started", "interval", o.interval)
}

// Stop shuts down the auto-sync loop. An in-flight cycle is not aborted;
// it runs its current batch to completion.
func (o *Orchestrator) Stop() {
	o.stopOnce.Do(func() { close(o.stopCh) })
	o.wg.Wait()
}

// TriggerSync runs one sync cycle. Per-template failures are recorded
// into the status and logged but never abort the cycle; only a failure to
// build the payload itself yields a terminal error state. The cycle is
// best-effort by design, so it ends in success even when individual
// entries failed.
func (o *Orchestrator) TriggerSync(ctx context.Context, source Source) error {
	if !o.inFlight.CompareAndSwap(false, true) {
		o.logger.Debug("sync trigger ignored, cycle in flight", "source", source)
		return ErrSyncAlreadyRunning
	}
	defer o.inFlight.Store(false)

	started := time.Now()
	o.logger.Info("sync cycle starting", "source", source)

	payload, err := o.BuildPayload()
	if err != nil {
		o.status.set(Status{
			State:   StateError,
			Message: "failed to prepare templates for sync",
			Error:   err.Error(),
		})
		metrics.RecordSyncCycle(string(source), "error")
		return err
	}

	if payload.Count == 0 {
		o.status.set(Status{State: StateIdle, Message: "no templates to sync"})
		o.logger.Info("sync cycle skipped, nothing to sync", "source", source)
		return nil
	}

	o.status.set(Status{
		State:          StateSyncing,
		Message:        fmt.Sprintf("found %d template(s) to sync", payload.Count),
		Progress:       25,
		TotalTemplates: payload.Count,
	})

	for i, ref := range payload.Templates {
		// the editor store is re-read per entry so config edits made
		// mid-cycle take effect on the next template
		ed, err := o.editors.Get(ref.EditorID)
		if err != nil {
			o.logger.Warn("failed to resolve editor, skipping template", "template_id", ref.TemplateID, "editor_id", ref.EditorID, "error", err)
			o.advance(i+1, payload.Count)
			continue
		}
		if ed == nil {
			o.logger.Warn("no editor for template, skipping", "template_id", ref.TemplateID, "editor_id", ref.EditorID)
			o.advance(i+1, payload.Count)
			continue
		}

		rec, err := o.cache.Fetch(ref.TemplateID)
		if err != nil || rec == nil {
			o.logger.Warn("cache entry gone or unreadable, skipping", "template_id", ref.TemplateID, "error", err)
			o.advance(i+1, payload.Count)
			continue
		}
		if !rec.HasContent() {
			o.logger.Debug("template has no renderable content, skipping", "template_id", ref.TemplateID)
			o.advance(i+1, payload.Count)
			continue
		}

		o.pace(ctx)
		o.dispatch(ctx, ed, rec)
		o.advance(i+1, payload.Count)
	}

	if err := o.settings.SetLastSync(time.Now()); err != nil {
		o.logger.Warn("failed to persist last sync time", "error", err)
	}

	o.status.update(func(st *Status) {
		st.State = StateSuccess
		st.Message = fmt.Sprintf("synced %d template(s)", payload.Count)
		st.Progress = 100
		st.SyncedTemplates = st.TotalTemplates
	})

	elapsed := time.Since(started)
	metrics.RecordSyncCycle(string(source), "success")
	metrics.ObserveSyncCycleDuration(elapsed.Seconds())
	o.logger.Info("sync cycle finished", "source", source, "templates", payload.Count, "duration", elapsed)
	return nil
}

// dispatch pushes one record to its editor backend. For document
// templates the metadata and content calls are attempted independently:
// a failure in one never blocks the other.
func (o *Orchestrator) dispatch(ctx context.Context, ed *editor.Config, rec *cache.Record) {
	switch rec.Channel {
	case cache.ChannelDocify:
		if err := o.updater.UpdatePageSettings(ctx, ed, rec.TemplateID, rec.Docify); err != nil {
			o.recordError(rec.TemplateID, rec.Channel, err)
		} else {
			metrics.RecordTemplateSynced(string(rec.Channel))
		}
		if err := o.updater.UpdateContent(ctx, ed, rec.TemplateID, rec.Docify); err != nil {
			o.recordError(rec.TemplateID, rec.Channel, err)
		} else {
			metrics.RecordTemplateSynced(string(rec.Channel))
		}
	case cache.ChannelNotify:
		if err := o.updater.UpdateNotify(ctx, ed, rec.TemplateID, rec.Notify); err != nil {
			o.recordError(rec.TemplateID, rec.Channel, err)
		} else {
			metrics.RecordTemplateSynced(string(rec.Channel))
		}
	}
}

// advance moves the per-entry progress band: 25% for payload preparation,
// the next 50% scaled across entries, the rest on completion.
func (o *Orchestrator) advance(done, total int) {
	progress := 25 + (done*50)/total
	o.status.update(func(st *Status) {
		st.SyncedTemplates = done
		st.Message = fmt.Sprintf("synced %d of %d template(s)", done, total)
		if progress > st.Progress {
			st.Progress = progress
		}
	})
}

// recordError notes a per-entry failure without aborting the cycle.
func (o *Orchestrator) recordError(templateID string, channel cache.Channel, err error) {
	o.logger.Error("failed to sync template", "template_id", templateID, "error", err)
	metrics.RecordSyncError(string(channel))
	o.status.update(func(st *Status) {
		st.Message = fmt.Sprintf("error syncing template %s", templateID)
		if st.Error == "" {
			st.Error = err.Error()
		} else {
			st.Error = st.Error + "; " + err.Error()
		}
	})
}

// pace applies the fixed inter-entry delay, honoring cancellation.
func (o *Orchestrator) pace(ctx context.Context) {
	if o.pacing <= 0 {
		return
	}
	timer := time.NewTimer(o.pacing)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
