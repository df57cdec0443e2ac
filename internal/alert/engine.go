// Package alert watches the active tasks and raises deadline alerts: a one-shot
// notification when a task enters its final minutes, and an alarm plus a
// blocking "mark complete?" confirmation once it is overdue.
//
// The engine never mutates tasks. The tasks the user confirms during a pass
// are handed to OnComplete together, and the owner is expected to complete
// them and pass the new snapshot back through Observe once.
//
// Every evaluation pass and timer callback runs under one lock, so the
// confirmation prompt is modal: no other pass can run while it waits. A new
// snapshot version clears all per-task notified state and pending timers.
package alert

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"sync"
	"time"

	"taskalert/internal/clock"
	"taskalert/internal/notify"
	"taskalert/internal/prompt"
	"taskalert/internal/task"
	"taskalert/internal/telemetry"
)

// DefaultInterval is how often the recurring pass re-checks the tasks.
const DefaultInterval = 30 * time.Second

var (
	ErrStopped       = errors.New("alert engine stopped")
	ErrAlreadyActive = errors.New("alert engine already active")
)

// Kind names the alert raised for a task. Dedup is per (task id, Kind).
type Kind string

const (
	KindUpcoming Kind = "upcoming"
	KindOverdue  Kind = "overdue"
)

// Recorder receives alert events. *telemetry.Session satisfies it.
type Recorder interface {
	RecordEvent(eventType telemetry.EventType, metadata telemetry.EventMetadata) error
}

// Options configures an Engine. Only OnComplete is needed for a useful
// engine; nil dependencies fall back to the real clock, disabled
// notifications, a silent alarm and a confirmer that always answers no.
type Options struct {
	Clock     clock.Clock
	Notifier  notify.Notifier
	Alarm     notify.Alarm
	Confirmer prompt.Confirmer
	// OnComplete is the single consumer of completion requests. It receives
	// every task confirmed in one pass, runs after the engine lock is
	// released and may call Observe.
	OnComplete func([]task.Task)
	// Source, when set, is consulted before each recurring pass. A snapshot
	// with a new version is adopted as if passed to Observe.
	Source   func() task.Snapshot
	Recorder Recorder
	Logger   *log.Logger

	Interval       time.Duration
	UpcomingWindow time.Duration
}

type notifiedKey struct {
	id   string
	kind Kind
}

type pendingAlert struct {
	timer clock.Timer
	epoch uint64
}

// Engine raises deadline alerts for the snapshot it observes. It is inert
// until Activate and permanently stopped by Teardown.
type Engine struct {
	clock      clock.Clock
	notifier   notify.Notifier
	alarm      notify.Alarm
	confirmer  prompt.Confirmer
	onComplete func([]task.Task)
	source     func() task.Snapshot
	recorder   Recorder
	logger     *log.Logger
	interval   time.Duration
	window     time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu              sync.Mutex
	active          bool
	stopped         bool
	permissionAsked bool
	epoch           uint64
	adopted         bool
	snap            task.Snapshot
	notified        map[notifiedKey]struct{}
	pending         map[string]*pendingAlert
	ticker          clock.Timer
}

// New builds an engine with defaults filled in. Call Activate to start it.
func New(opts Options) *Engine {
	if opts.Clock == nil {
		opts.Clock = clock.Real{}
	}
	if opts.Notifier == nil {
		opts.Notifier = notify.Disabled{}
	}
	if opts.Alarm == nil {
		opts.Alarm = notify.Silent{}
	}
	if opts.Confirmer == nil {
		opts.Confirmer = prompt.Func(func(context.Context, string) (bool, error) { return false, nil })
	}
	if opts.Logger == nil {
		opts.Logger = log.Default()
	}
	if opts.Interval <= 0 {
		opts.Interval = DefaultInterval
	}
	if opts.UpcomingWindow <= 0 {
		opts.UpcomingWindow = task.UpcomingWindow
	}

	ctx, cancel := context.WithCancel(context.Background())
	return &Engine{
		clock:      opts.Clock,
		notifier:   opts.Notifier,
		alarm:      opts.Alarm,
		confirmer:  opts.Confirmer,
		onComplete: opts.OnComplete,
		source:     opts.Source,
		recorder:   opts.Recorder,
		logger:     opts.Logger,
		interval:   opts.Interval,
		window:     opts.UpcomingWindow,
		ctx:        ctx,
		cancel:     cancel,
		notified:   map[notifiedKey]struct{}{},
		pending:    map[string]*pendingAlert{},
	}
}

// Activate starts watching snap: it asks for notification permission if the
// platform has not decided yet, runs one pass and arms the recurring pass.
func (e *Engine) Activate(snap task.Snapshot) error {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return ErrStopped
	}
	if e.active {
		e.mu.Unlock()
		return ErrAlreadyActive
	}
	e.active = true

	if !e.permissionAsked {
		e.permissionAsked = true
		if e.notifier.Permission() == notify.PermissionDefault {
			p := e.notifier.RequestPermission()
			e.logger.Printf("alert: notification permission %s", p)
		}
	}

	e.resetLocked()
	e.adoptLocked(snap)
	reqs := e.evaluateLocked()
	e.armIntervalLocked()
	e.mu.Unlock()

	e.dispatch(reqs)
	return nil
}

// Observe hands the engine a new snapshot. A snapshot with the version already
// observed is ignored; any other version resets all alert state and runs a
// pass immediately. Before Activate the snapshot is only remembered.
func (e *Engine) Observe(snap task.Snapshot) {
	e.mu.Lock()
	if e.stopped || (e.adopted && snap.Version == e.snap.Version) {
		e.mu.Unlock()
		return
	}
	if !e.active {
		e.adoptLocked(snap)
		e.mu.Unlock()
		return
	}

	e.resetLocked()
	e.adoptLocked(snap)
	reqs := e.evaluateLocked()
	e.mu.Unlock()

	e.dispatch(reqs)
}

// Evaluate runs one pass over the observed snapshot.
func (e *Engine) Evaluate() {
	e.mu.Lock()
	if e.stopped || !e.active {
		e.mu.Unlock()
		return
	}
	reqs := e.evaluateLocked()
	e.mu.Unlock()

	e.dispatch(reqs)
}

// Teardown cancels every timer, silences and rewinds the alarm and drops all
// alert state. A pending confirmation is answered "no". It is safe to call
// more than once.
func (e *Engine) Teardown() {
	e.cancel()

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped {
		return
	}
	e.stopped = true
	e.active = false
	if e.ticker != nil {
		e.ticker.Stop()
		e.ticker = nil
	}
	e.resetLocked()
	e.alarm.Stop()
}

func (e *Engine) adoptLocked(snap task.Snapshot) {
	e.snap = snap
	e.adopted = true
}

// resetLocked forgets every notified pair and cancels every pending timer.
// Bumping the epoch turns any callback already in flight into a no-op.
func (e *Engine) resetLocked() {
	for id, p := range e.pending {
		p.timer.Stop()
		delete(e.pending, id)
	}
	e.notified = map[notifiedKey]struct{}{}
	e.epoch++
}

func (e *Engine) armIntervalLocked() {
	e.ticker = e.clock.AfterFunc(e.interval, e.tick)
}

func (e *Engine) tick() {
	e.mu.Lock()
	if e.stopped {
		e.mu.Unlock()
		return
	}
	if e.source != nil {
		if snap := e.source(); snap.Version != e.snap.Version {
			e.resetLocked()
			e.adoptLocked(snap)
		}
	}
	reqs := e.evaluateLocked()
	if !e.stopped {
		e.armIntervalLocked()
	}
	e.mu.Unlock()

	e.dispatch(reqs)
}

// evaluateLocked returns the tasks the user asked to complete during the pass.
func (e *Engine) evaluateLocked() []task.Task {
	now := e.clock.Now()

	var reqs []task.Task
	for _, t := range e.snap.Tasks {
		if e.ctx.Err() != nil {
			break
		}

		e.cancelPendingLocked(t.ID)

		until := t.DueDate.Sub(now)
		if until > 0 && until <= e.window {
			e.scheduleUpcomingLocked(t, until-e.window)
		}

		if until < 0 && !e.isNotifiedLocked(t.ID, KindOverdue) {
			if e.overdueLocked(t) {
				reqs = append(reqs, t)
			}
		}
	}
	return reqs
}

func (e *Engine) cancelPendingLocked(id string) {
	if p, ok := e.pending[id]; ok {
		p.timer.Stop()
		delete(e.pending, id)
	}
}

func (e *Engine) scheduleUpcomingLocked(t task.Task, delay time.Duration) {
	if delay < 0 {
		delay = 0
	}
	p := &pendingAlert{epoch: e.epoch}
	p.timer = e.clock.AfterFunc(delay, func() { e.fireUpcoming(t, p) })
	e.pending[t.ID] = p
}

func (e *Engine) fireUpcoming(t task.Task, p *pendingAlert) {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.stopped || p.epoch != e.epoch || e.pending[t.ID] != p {
		return
	}
	delete(e.pending, t.ID)

	if e.isNotifiedLocked(t.ID, KindUpcoming) {
		return
	}
	e.markNotifiedLocked(t.ID, KindUpcoming)
	e.notifyLocked("Task Deadline Approaching", fmt.Sprintf(`"%s" is due in %s!`, t.Title, humanWindow(e.window)))
	e.record(telemetry.EventAlertUpcoming, t)
}

// overdueLocked runs the alarm, notification and confirmation for t and
// reports whether the user asked to complete it.
func (e *Engine) overdueLocked(t task.Task) bool {
	if err := e.alarm.Start(); err != nil {
		e.logger.Printf("alert: alarm start failed task=%s: %v", t.ID, err)
	}
	e.notifyLocked("Task Deadline Passed", fmt.Sprintf(`The task "%s" is overdue!`, t.Title))
	e.markNotifiedLocked(t.ID, KindOverdue)
	e.record(telemetry.EventAlertOverdue, t)

	question := fmt.Sprintf("Task Deadline Passed: %s\n\nWould you like to mark this task as complete?", t.Title)
	ok, err := e.confirmer.Confirm(e.ctx, question)
	if err != nil {
		e.logger.Printf("alert: confirmation failed task=%s: %v", t.ID, err)
		ok = false
	}
	e.alarm.Stop()

	if ok {
		e.record(telemetry.EventAlertConfirmed, t)
	} else {
		e.record(telemetry.EventAlertDismissed, t)
	}
	return ok
}

// notifyLocked is silent unless the platform granted permission.
func (e *Engine) notifyLocked(title, body string) {
	if e.notifier.Permission() != notify.PermissionGranted {
		return
	}
	if err := e.notifier.Notify(title, body); err != nil {
		e.logger.Printf("alert: notification skipped: %v", err)
	}
}

func (e *Engine) isNotifiedLocked(id string, kind Kind) bool {
	_, ok := e.notified[notifiedKey{id: id, kind: kind}]
	return ok
}

func (e *Engine) markNotifiedLocked(id string, kind Kind) {
	e.notified[notifiedKey{id: id, kind: kind}] = struct{}{}
}

func (e *Engine) record(ev telemetry.EventType, t task.Task) {
	if e.recorder == nil {
		return
	}
	if err := e.recorder.RecordEvent(ev, telemetry.EventMetadata{"task_id": t.ID, "title": t.Title}); err != nil {
		e.logger.Printf("alert: record %s: %v", ev, err)
	}
}

func (e *Engine) dispatch(reqs []task.Task) {
	if e.onComplete == nil || len(reqs) == 0 {
		return
	}
	e.onComplete(reqs)
}

// Notified reports whether an alert of kind already fired for id since the
// last reset.
func (e *Engine) Notified(id string, kind Kind) bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.isNotifiedLocked(id, kind)
}

// PendingAlerts lists task ids with an armed upcoming timer.
func (e *Engine) PendingAlerts() []string {
	e.mu.Lock()
	defer e.mu.Unlock()

	out := make([]string, 0, len(e.pending))
	for id := range e.pending {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

func humanWindow(d time.Duration) string {
	if d%time.Minute != 0 {
		return d.String()
	}
	if m := int(d / time.Minute); m != 1 {
		return fmt.Sprintf("%d minutes", m)
	}
	return "1 minute"
}
