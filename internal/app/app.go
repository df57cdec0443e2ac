// Package app wires the task store, the deadline alert engine and the user's
// profile into one running application.
package app

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"sync"
	"time"

	"taskalert/internal/alert"
	"taskalert/internal/clock"
	"taskalert/internal/config"
	"taskalert/internal/notify"
	"taskalert/internal/player"
	"taskalert/internal/prompt"
	"taskalert/internal/storage"
	"taskalert/internal/task"
	"taskalert/internal/telemetry"
)

type Options struct {
	Config *config.Config
	// Storage overrides the backend named in Config.
	Storage   storage.Storage
	Clock     clock.Clock
	Notifier  notify.Notifier
	Alarm     notify.Alarm
	Confirmer prompt.Confirmer
	Logger    *log.Logger
}

type App struct {
	cfg       *config.Config
	storage   storage.Storage
	clock     clock.Clock
	notifier  notify.Notifier
	alarm     notify.Alarm
	confirmer prompt.Confirmer
	logger    *log.Logger

	Tasks  *task.Store
	Player *player.Repo
	Events *telemetry.Session

	mu      sync.Mutex
	engine  *alert.Engine
	started time.Time
}

func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("config is required")
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Disabled{}
	}
	if opts.Alarm == nil {
		opts.Alarm = notify.Silent{}
	}
	if opts.Storage == nil {
		st, err := storage.Open(opts.Config.Storage, opts.Config.DataPath())
		if err != nil {
			return nil, fmt.Errorf("open storage: %w", err)
		}
		opts.Storage = st
	}

	a := &App{
		cfg:       opts.Config,
		storage:   opts.Storage,
		clock:     opts.Clock,
		notifier:  opts.Notifier,
		alarm:     opts.Alarm,
		confirmer: opts.Confirmer,
		logger:    opts.Logger,
		Tasks:     task.NewStore(opts.Storage, opts.Clock, opts.Logger),
		Player:    player.NewRepo(opts.Storage),
		Events:    telemetry.NewSession(opts.Clock.Now),
		started:   opts.Clock.Now(),
	}
	a.Tasks.Load()
	return a, nil
}

func (a *App) Close() error {
	return a.storage.Close()
}

func (a *App) AddTask(title, description string, due time.Time) (task.Task, error) {
	t, err := a.Tasks.Add(task.Task{
		Title:       strings.TrimSpace(title),
		Description: strings.TrimSpace(description),
		DueDate:     due,
	})
	if err != nil {
		return task.Task{}, err
	}
	a.record(telemetry.EventTaskCreated, t)
	a.observe()
	return t, nil
}

func (a *App) EditTask(t task.Task) (task.Task, error) {
	t.Title = strings.TrimSpace(t.Title)
	t.Description = strings.TrimSpace(t.Description)
	out, err := a.Tasks.Edit(t)
	if err != nil {
		return task.Task{}, err
	}
	a.record(telemetry.EventTaskEdited, out)
	a.observe()
	return out, nil
}

func (a *App) RemoveTask(id string) bool {
	t, ok := a.Tasks.Get(id)
	if !ok || !a.Tasks.Remove(id) {
		return false
	}
	a.record(telemetry.EventTaskDeleted, t)
	a.observe()
	return true
}

// CompleteTask moves id to the completed collection. An id that is no longer
// active is a no-op.
func (a *App) CompleteTask(id string) (task.Task, bool) {
	t, ok := a.Tasks.Complete(id)
	if !ok {
		return task.Task{}, false
	}
	a.record(telemetry.EventTaskCompleted, t)
	a.observe()
	return t, true
}

// handleCompletion consumes one pass worth of confirmed tasks. The engine
// sees the result once, after the whole batch is stored.
func (a *App) handleCompletion(batch []task.Task) {
	done := 0
	for _, t := range batch {
		out, ok := a.Tasks.Complete(t.ID)
		if !ok {
			a.logger.Printf("app: completion ignored task=%s (no longer active)", t.ID)
			continue
		}
		a.record(telemetry.EventTaskCompleted, out)
		done++
	}
	if done > 0 {
		a.observe()
	}
}

// Reset wipes storage, both collections and the user's name.
func (a *App) Reset() error {
	if err := a.storage.Clear(); err != nil {
		return fmt.Errorf("clear storage: %w", err)
	}
	if err := a.Tasks.Clear(); err != nil {
		return fmt.Errorf("clear tasks: %w", err)
	}
	if err := a.Player.Clear(); err != nil {
		return fmt.Errorf("clear name: %w", err)
	}
	if err := a.Events.RecordEvent(telemetry.EventReset, nil); err != nil {
		a.logger.Printf("app: record reset: %v", err)
	}
	a.observe()
	return nil
}

// Run watches the active tasks until ctx is done.
func (a *App) Run(ctx context.Context) error {
	e := alert.New(alert.Options{
		Clock:          a.clock,
		Notifier:       a.notifier,
		Alarm:          a.alarm,
		Confirmer:      a.confirmer,
		OnComplete:     a.handleCompletion,
		Source:         a.latest,
		Recorder:       a.Events,
		Logger:         a.logger,
		Interval:       a.cfg.Alerts.CheckInterval.Std(),
		UpcomingWindow: a.cfg.Alerts.UpcomingWindow.Std(),
	})

	a.mu.Lock()
	if a.engine != nil {
		a.mu.Unlock()
		return errors.New("already running")
	}
	a.engine = e
	a.mu.Unlock()

	defer func() {
		e.Teardown()
		a.mu.Lock()
		a.engine = nil
		a.mu.Unlock()
	}()

	snap := a.latest()
	a.logger.Printf("app: watching %d active tasks", len(snap.Tasks))
	if err := e.Activate(snap); err != nil {
		return err
	}
	<-ctx.Done()
	return nil
}

// Running reports whether Run is in progress.
func (a *App) Running() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.engine != nil
}

// SessionStats summarizes alert activity since the app was created.
func (a *App) SessionStats() (telemetry.Stats, error) {
	return telemetry.CalculateStats(a.Events.Since(a.started), a.started)
}

// latest returns the active tasks after picking up writes other processes
// made to the shared data dir.
func (a *App) latest() task.Snapshot {
	a.Tasks.Sync()
	return a.Tasks.Active()
}

func (a *App) observe() {
	a.mu.Lock()
	e := a.engine
	a.mu.Unlock()

	if e != nil {
		e.Observe(a.Tasks.Active())
	}
}

func (a *App) record(ev telemetry.EventType, t task.Task) {
	if err := a.Events.RecordEvent(ev, telemetry.EventMetadata{"task_id": t.ID, "title": t.Title}); err != nil {
		a.logger.Printf("app: record %s: %v", ev, err)
	}
}
