package alert

import (
	"bytes"
	"context"
	"errors"
	"log"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"taskalert/internal/clock"
	"taskalert/internal/notify"
	"taskalert/internal/prompt"
	"taskalert/internal/storage"
	"taskalert/internal/task"
	"taskalert/internal/telemetry"
)

type recordingNotifier struct {
	mu        sync.Mutex
	perm      notify.Permission
	onRequest notify.Permission
	requests  int
	notes     []string
}

func (n *recordingNotifier) Permission() notify.Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.perm
}

func (n *recordingNotifier) RequestPermission() notify.Permission {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.requests++
	if n.perm == notify.PermissionDefault {
		n.perm = n.onRequest
	}
	return n.perm
}

func (n *recordingNotifier) Notify(title, body string) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.notes = append(n.notes, title+": "+body)
	return nil
}

func (n *recordingNotifier) Notes() []string {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]string(nil), n.notes...)
}

type recordingAlarm struct {
	mu       sync.Mutex
	starts   int
	stops    int
	playing  bool
	startErr error
}

func (a *recordingAlarm) Start() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.starts++
	if a.startErr != nil {
		return a.startErr
	}
	a.playing = true
	return nil
}

func (a *recordingAlarm) Stop() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.stops++
	a.playing = false
}

type harness struct {
	clock     *clock.Fake
	notifier  *recordingNotifier
	alarm     *recordingAlarm
	confirmer prompt.Confirmer
	events    *telemetry.Session
	logs      *bytes.Buffer
	completed []task.Task
	batches   int
	engine    *Engine
}

func newHarness(t *testing.T, confirmer prompt.Confirmer) *harness {
	t.Helper()

	fake := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	h := &harness{
		clock:     fake,
		notifier:  &recordingNotifier{perm: notify.PermissionDefault, onRequest: notify.PermissionGranted},
		alarm:     &recordingAlarm{},
		confirmer: confirmer,
		events:    telemetry.NewSession(fake.Now),
		logs:      &bytes.Buffer{},
	}
	h.engine = New(Options{
		Clock:      h.clock,
		Notifier:   h.notifier,
		Alarm:      h.alarm,
		Confirmer:  h.confirmer,
		OnComplete: func(ts []task.Task) {
			h.batches++
			h.completed = append(h.completed, ts...)
		},
		Recorder: h.events,
		Logger:   log.New(h.logs, "", 0),
	})
	t.Cleanup(h.engine.Teardown)
	return h
}

func (h *harness) task(id, title string, until time.Duration) task.Task {
	return task.Task{ID: id, Title: title, DueDate: h.clock.Now().Add(until), CreatedAt: h.clock.Now()}
}

func (h *harness) count(t *testing.T, ev telemetry.EventType) int {
	t.Helper()
	return h.events.Count(ev)
}

func snap(version uint64, tasks ...task.Task) task.Snapshot {
	return task.Snapshot{Version: version, Tasks: tasks}
}

func TestEngine_UpcomingNotifiesOnce(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	eggs := h.task("a", "pick up eggs", 4*time.Minute)

	require.NoError(t, h.engine.Activate(snap(1, eggs)))
	assert.Equal(t, []string{"a"}, h.engine.PendingAlerts())
	assert.Empty(t, h.notifier.Notes())

	h.clock.Advance(0)
	assert.Equal(t, []string{`Task Deadline Approaching: "pick up eggs" is due in 5 minutes!`}, h.notifier.Notes())
	assert.True(t, h.engine.Notified("a", KindUpcoming))

	// Later passes reschedule but never notify twice.
	h.clock.Advance(30 * time.Second)
	h.clock.Advance(30 * time.Second)
	assert.Len(t, h.notifier.Notes(), 1)
	assert.Equal(t, 1, h.count(t, telemetry.EventAlertUpcoming))
}

func TestEngine_UpcomingFiresWhenEnteringWindow(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	report := h.task("r", "file report", 10*time.Minute)

	require.NoError(t, h.engine.Activate(snap(1, report)))
	assert.Empty(t, h.engine.PendingAlerts())

	h.clock.Advance(4*time.Minute + 30*time.Second)
	assert.Empty(t, h.notifier.Notes())

	h.clock.Advance(30 * time.Second)
	require.Len(t, h.notifier.Notes(), 1)
	assert.Equal(t, report.DueDate.Add(-5*time.Minute), h.clock.Now())
}

func TestEngine_OverdueAlarmsAndPromptsOnce(t *testing.T) {
	confirm := prompt.NewScripted()
	h := newHarness(t, confirm)
	bill := h.task("b", "pay bill", -time.Second)

	require.NoError(t, h.engine.Activate(snap(1, bill)))

	assert.Equal(t, []string{"Task Deadline Passed: pay bill\n\nWould you like to mark this task as complete?"}, confirm.Asked())
	assert.Equal(t, []string{`Task Deadline Passed: The task "pay bill" is overdue!`}, h.notifier.Notes())
	assert.Equal(t, 1, h.alarm.starts)
	assert.False(t, h.alarm.playing)
	assert.True(t, h.engine.Notified("b", KindOverdue))
	assert.Empty(t, h.completed)

	h.clock.Advance(30 * time.Second)
	h.clock.Advance(30 * time.Second)
	assert.Len(t, confirm.Asked(), 1)
	assert.Equal(t, 1, h.alarm.starts)
	assert.Equal(t, 1, h.count(t, telemetry.EventAlertOverdue))
	assert.Equal(t, 1, h.count(t, telemetry.EventAlertDismissed))
}

func TestEngine_ExactlyDueWaitsForNextPass(t *testing.T) {
	confirm := prompt.NewScripted()
	h := newHarness(t, confirm)

	require.NoError(t, h.engine.Activate(snap(1, h.task("n", "now", 0))))
	assert.Empty(t, confirm.Asked())
	assert.Empty(t, h.engine.PendingAlerts())

	h.clock.Advance(30 * time.Second)
	assert.Len(t, confirm.Asked(), 1)
}

func TestEngine_ConfirmRequestsCompletion(t *testing.T) {
	h := newHarness(t, prompt.NewScripted(true))
	bill := h.task("b", "pay bill", -time.Second)

	require.NoError(t, h.engine.Activate(snap(1, bill)))

	require.Len(t, h.completed, 1)
	assert.Equal(t, "b", h.completed[0].ID)
	assert.Equal(t, 1, h.count(t, telemetry.EventAlertConfirmed))
	assert.False(t, h.alarm.playing)
}

func TestEngine_CompletionRoundTripResetsState(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	store := task.NewStore(storage.NewMemory(), fake, log.New(&bytes.Buffer{}, "", 0))
	store.Load()

	bill, err := store.Add(task.Task{Title: "pay bill", DueDate: fake.Now().Add(-time.Minute)})
	require.NoError(t, err)
	rent, err := store.Add(task.Task{Title: "pay rent", DueDate: fake.Now().Add(-time.Second)})
	require.NoError(t, err)

	confirm := prompt.NewScripted(true, false, false)
	var eng *Engine
	eng = New(Options{
		Clock:     fake,
		Confirmer: confirm,
		Logger:    log.New(&bytes.Buffer{}, "", 0),
		OnComplete: func(ts []task.Task) {
			for _, tk := range ts {
				store.Complete(tk.ID)
			}
			eng.Observe(store.Active())
		},
	})
	t.Cleanup(eng.Teardown)

	require.NoError(t, eng.Activate(store.Active()))

	assert.Len(t, store.Completed(), 1)
	assert.Equal(t, bill.ID, store.Completed()[0].ID)
	require.Len(t, store.Active().Tasks, 1)

	// The completion bumped the version, so the declined task alarms again.
	assert.Len(t, confirm.Asked(), 3)
	assert.True(t, eng.Notified(rent.ID, KindOverdue))
	assert.False(t, eng.Notified(bill.ID, KindOverdue))
}

func TestEngine_ConfirmedTasksDispatchedAsOneBatch(t *testing.T) {
	confirm := prompt.NewScripted(true, false, true)
	h := newHarness(t, confirm)
	a := h.task("a", "A", -time.Minute)
	b := h.task("b", "B", -time.Minute)
	c := h.task("c", "C", -time.Second)

	require.NoError(t, h.engine.Activate(snap(1, a, b, c)))

	assert.Len(t, confirm.Asked(), 3)
	assert.Equal(t, 1, h.batches)
	require.Len(t, h.completed, 2)
	assert.Equal(t, "a", h.completed[0].ID)
	assert.Equal(t, "c", h.completed[1].ID)
	assert.Equal(t, 3, h.alarm.starts)
	assert.Equal(t, 2, h.count(t, telemetry.EventAlertConfirmed))
	assert.Equal(t, 1, h.count(t, telemetry.EventAlertDismissed))
}

func TestEngine_SeveralAffirmedTasksPromptedOnceEach(t *testing.T) {
	fake := clock.NewFake(time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC))
	store := task.NewStore(storage.NewMemory(), fake, log.New(&bytes.Buffer{}, "", 0))
	store.Load()
	for _, title := range []string{"A", "B", "C"} {
		_, err := store.Add(task.Task{Title: title, DueDate: fake.Now().Add(-time.Second)})
		require.NoError(t, err)
	}

	confirm := prompt.NewScripted(true, true, true)
	confirm.Default = false
	var eng *Engine
	eng = New(Options{
		Clock:     fake,
		Confirmer: confirm,
		Logger:    log.New(&bytes.Buffer{}, "", 0),
		OnComplete: func(ts []task.Task) {
			for _, tk := range ts {
				store.Complete(tk.ID)
			}
			eng.Observe(store.Active())
		},
	})
	t.Cleanup(eng.Teardown)

	require.NoError(t, eng.Activate(store.Active()))

	asked := confirm.Asked()
	require.Len(t, asked, 3)
	assert.Contains(t, asked[0], ": A\n")
	assert.Contains(t, asked[1], ": B\n")
	assert.Contains(t, asked[2], ": C\n")
	assert.Empty(t, store.Active().Tasks)
	assert.Len(t, store.Completed(), 3)
}

func TestEngine_SourceFeedsRecurringPass(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	current := snap(1)
	h.engine.source = func() task.Snapshot { return current }

	require.NoError(t, h.engine.Activate(current))
	current = snap(2, h.task("x", "added elsewhere", 4*time.Minute))

	h.clock.Advance(30 * time.Second)
	assert.Equal(t, []string{`Task Deadline Approaching: "added elsewhere" is due in 5 minutes!`}, h.notifier.Notes())

	// An unchanged version keeps the dedup state.
	h.clock.Advance(30 * time.Second)
	assert.Len(t, h.notifier.Notes(), 1)
}

func TestEngine_NewVersionCancelsPendingTimers(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	a := h.task("a", "A", 4*time.Minute)
	b := h.task("b", "B", time.Hour)

	require.NoError(t, h.engine.Activate(snap(1, a)))
	first := h.engine.pending["a"]
	require.NotNil(t, first)
	assert.Equal(t, 2, h.clock.Pending())

	h.engine.Observe(snap(2, a, b))
	second := h.engine.pending["a"]
	require.NotNil(t, second)
	assert.NotSame(t, first, second)
	assert.False(t, first.timer.Stop(), "old timer should already be stopped")
	assert.Equal(t, 2, h.clock.Pending())

	// Same version is not a change.
	h.engine.Observe(snap(2, a, b))
	assert.Same(t, second, h.engine.pending["a"])

	h.clock.Advance(0)
	assert.Len(t, h.notifier.Notes(), 1)
}

func TestEngine_ResetReArmsUpcoming(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	a := h.task("a", "A", 4*time.Minute)

	require.NoError(t, h.engine.Activate(snap(1, a)))
	h.clock.Advance(0)
	require.Len(t, h.notifier.Notes(), 1)

	h.engine.Observe(snap(2, a))
	assert.False(t, h.engine.Notified("a", KindUpcoming))
	h.clock.Advance(0)
	assert.Len(t, h.notifier.Notes(), 2)
}

func TestEngine_StaleCallbackIsIgnored(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	a := h.task("a", "A", 4*time.Minute)

	require.NoError(t, h.engine.Activate(snap(1, a)))
	stale := h.engine.pending["a"]

	h.engine.Observe(snap(2))
	h.engine.fireUpcoming(a, stale)

	assert.Empty(t, h.notifier.Notes())
	assert.False(t, h.engine.Notified("a", KindUpcoming))
}

func TestEngine_DeletedTaskNeverAlerts(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())
	a := h.task("a", "A", 4*time.Minute)

	require.NoError(t, h.engine.Activate(snap(1, a)))
	h.engine.Observe(snap(2))

	assert.Empty(t, h.engine.PendingAlerts())
	h.clock.Advance(10 * time.Minute)
	assert.Empty(t, h.notifier.Notes())
}

func TestEngine_TeardownStopsEverything(t *testing.T) {
	confirm := prompt.NewScripted()
	h := newHarness(t, confirm)
	a := h.task("a", "A", 4*time.Minute)
	b := h.task("b", "B", 20*time.Minute)

	require.NoError(t, h.engine.Activate(snap(1, a, b)))
	require.NotZero(t, h.clock.Pending())

	h.engine.Teardown()
	h.engine.Teardown()

	assert.Zero(t, h.clock.Pending())
	assert.Empty(t, h.engine.PendingAlerts())
	assert.False(t, h.alarm.playing)

	h.clock.Advance(time.Hour)
	assert.Empty(t, h.notifier.Notes())
	assert.Empty(t, confirm.Asked())

	assert.ErrorIs(t, h.engine.Activate(snap(2, a)), ErrStopped)
}

func TestEngine_TeardownAnswersPendingPromptNo(t *testing.T) {
	asking := make(chan struct{})
	blocking := prompt.Func(func(ctx context.Context, _ string) (bool, error) {
		close(asking)
		<-ctx.Done()
		return false, ctx.Err()
	})
	h := newHarness(t, blocking)

	done := make(chan error, 1)
	go func() { done <- h.engine.Activate(snap(1, h.task("b", "B", -time.Minute))) }()

	<-asking
	h.engine.Teardown()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(2 * time.Second):
		t.Fatal("activate did not return after teardown")
	}
	assert.Empty(t, h.completed)
	assert.Zero(t, h.clock.Pending())
	assert.False(t, h.alarm.playing)
}

func TestEngine_PermissionRequestedOnce(t *testing.T) {
	h := newHarness(t, prompt.NewScripted())

	require.NoError(t, h.engine.Activate(snap(1)))
	h.engine.Observe(snap(2))
	h.engine.Observe(snap(3))
	assert.Equal(t, 1, h.notifier.requests)
	assert.ErrorIs(t, h.engine.Activate(snap(4)), ErrAlreadyActive)
	assert.Equal(t, 1, h.notifier.requests)

	decided := newHarness(t, prompt.NewScripted())
	decided.notifier.perm = notify.PermissionGranted
	require.NoError(t, decided.engine.Activate(snap(1)))
	assert.Zero(t, decided.notifier.requests)
}

func TestEngine_NotificationsRequireGrant(t *testing.T) {
	confirm := prompt.NewScripted()
	h := newHarness(t, confirm)
	h.notifier.onRequest = notify.PermissionDenied

	require.NoError(t, h.engine.Activate(snap(1, h.task("b", "B", -time.Minute), h.task("a", "A", time.Minute))))
	h.clock.Advance(0)

	assert.Empty(t, h.notifier.Notes())
	assert.Len(t, confirm.Asked(), 1)
	assert.Equal(t, 1, h.alarm.starts)
	assert.True(t, h.engine.Notified("a", KindUpcoming))
}

func TestEngine_AlarmFailureDoesNotAbortAlert(t *testing.T) {
	confirm := prompt.NewScripted(true)
	h := newHarness(t, confirm)
	h.alarm.startErr = errors.New("no audio device")

	require.NoError(t, h.engine.Activate(snap(1, h.task("b", "B", -time.Minute))))

	assert.Len(t, confirm.Asked(), 1)
	assert.Len(t, h.completed, 1)
	assert.Equal(t, 1, h.alarm.stops)
	assert.Contains(t, h.logs.String(), "alarm start failed")
}

func TestEngine_ConfirmErrorCountsAsNo(t *testing.T) {
	failing := prompt.Func(func(context.Context, string) (bool, error) {
		return true, errors.New("tty closed")
	})
	h := newHarness(t, failing)

	require.NoError(t, h.engine.Activate(snap(1, h.task("b", "B", -time.Minute))))

	assert.Empty(t, h.completed)
	assert.Contains(t, h.logs.String(), "confirmation failed")
}

func TestEngine_ObserveBeforeActivateOnlyRemembers(t *testing.T) {
	confirm := prompt.NewScripted()
	h := newHarness(t, confirm)

	h.engine.Observe(snap(1, h.task("b", "B", -time.Minute)))
	h.engine.Evaluate()

	assert.Empty(t, confirm.Asked())
	assert.Zero(t, h.clock.Pending())
}

func TestHumanWindow(t *testing.T) {
	assert.Equal(t, "5 minutes", humanWindow(5*time.Minute))
	assert.Equal(t, "1 minute", humanWindow(time.Minute))
	assert.Equal(t, "1m30s", humanWindow(90*time.Second))
}
