// Package coordinator implements the Operation Coordinator of spec.md
// §4.F: a single-flight state machine that serializes backup and restore
// attempts, drives the save-off/flush/save-on host handshake, and runs the
// restore confirm/countdown ceremony. It never touches pkg/anvil or
// internal/engine directly — it only tells the caller when it is safe to
// proceed, grounded on original_source/chunk_backup/__init__.py's
// check_backup_state decorator and GetServerData class.
package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCharnyshevich/chunkback/internal/host"
)

// OpKind distinguishes the two operations the coordinator serializes.
type OpKind int

const (
	OpSnapshot OpKind = iota
	OpRestore
)

func (k OpKind) String() string {
	if k == OpRestore {
		return "restore"
	}
	return "snapshot"
}

// Handle is the token TryBegin hands back; Finish and RunConfirmCeremony
// take the handle they were issued, so a stale caller from an
// already-finished operation can never end the next one. Confirm and Abort
// take no handle and act on whichever restore is currently waiting.
type Handle struct {
	ID   uuid.UUID
	Kind OpKind
}

type restorePhase int

const (
	restoreNone restorePhase = iota
	restoreWaitingConfirm
	restoreConfirmed
	restoreAborted
)

// DataGetter names the host command templates and response regexes the
// handshake needs. Kept as its own type (rather than importing
// internal/config) for the same reason internal/engine.DimensionEntry is:
// the coordinator only consumes this data, it does not load config.
type DataGetter struct {
	GetPos       string
	GetDimension string
	SaveWorlds   string
	AutoSaveOff  string
	AutoSaveOn   string

	GetPosRegex       string
	GetDimensionRegex string
	SaveOffRegex      string
	SavedWorldRegex   string
}

// Coordinator holds the process-wide state of spec.md §4.F: backup_state,
// back_state, and active_op, plus everything needed to drive the host
// handshake and the restore ceremony.
type Coordinator struct {
	mu               sync.Mutex
	backupRunning    bool
	restorePhase     restorePhase
	activeOp         *Handle
	autosaveDisabled bool

	Adapter    host.Adapter
	Waiter     *host.Waiter
	DataGetter DataGetter

	// TimeOut bounds every handshake wait and the restore confirm window.
	// Countdown is how many seconds the post-confirm broadcast counts down.
	TimeOut   time.Duration
	Countdown time.Duration

	Logger *slog.Logger
}

// New returns a Coordinator. A nil logger falls back to slog.Default();
// TimeOut/Countdown of zero take the spec's defaults (10s each).
func New(adapter host.Adapter, waiter *host.Waiter, dataGetter DataGetter, timeOut, countdown time.Duration, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	if timeOut <= 0 {
		timeOut = 10 * time.Second
	}
	if countdown <= 0 {
		countdown = 10 * time.Second
	}
	return &Coordinator{Adapter: adapter, Waiter: waiter, DataGetter: dataGetter, TimeOut: timeOut, Countdown: countdown, Logger: logger}
}

// TryBegin atomically claims the coordinator for kind, or returns
// ErrRepeatBackup if backup_state, back_state, or active_op is already
// set — the single-flight guard of spec.md §5.
func (c *Coordinator) TryBegin(kind OpKind) (*Handle, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.backupRunning || c.restorePhase != restoreNone || c.activeOp != nil {
		return nil, newRepeatBackup()
	}

	h := &Handle{ID: uuid.New(), Kind: kind}
	c.activeOp = h
	if kind == OpSnapshot {
		c.backupRunning = true
	} else {
		c.restorePhase = restoreWaitingConfirm
	}
	return h, nil
}

// Finish releases the coordinator, re-enabling autosave if this operation
// had disabled it and never restored it itself. Calling Finish with a
// handle that is not the current active_op is a no-op, matching the
// original's refusal to let a finished call's cleanup stomp on the next
// operation's state.
func (c *Coordinator) Finish(h *Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.activeOp != h {
		return
	}
	if c.autosaveDisabled {
		c.Adapter.Execute(c.DataGetter.AutoSaveOn)
		c.autosaveDisabled = false
	}
	c.backupRunning = false
	c.restorePhase = restoreNone
	c.activeOp = nil
}

// ForceReset nulls all coordinator state unconditionally and re-enables
// autosave, the effect of the force_reload command (spec.md §5
// Cancellation).
func (c *Coordinator) ForceReset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.autosaveDisabled {
		c.Adapter.Execute(c.DataGetter.AutoSaveOn)
		c.autosaveDisabled = false
	}
	c.backupRunning = false
	c.restorePhase = restoreNone
	c.activeOp = nil
}

// OnServerLog feeds one host log line into the reactive waiter registry.
// An adapter that streams its log through chunkback should call this for
// every line; an adapter that cannot should rely on WaitFor's polling
// fallback instead.
func (c *Coordinator) OnServerLog(line string) {
	c.Waiter.Observe(line)
}

// WaitFor polls predicate with exponential backoff (1ms doubling to a
// 100ms cap) until it returns true, ctx is done, or TimeOut elapses —
// the fallback path of spec.md §9 for adapters that cannot push log lines
// through OnServerLog proactively.
func (c *Coordinator) WaitFor(ctx context.Context, predicate func() bool) error {
	ctx, cancel := context.WithTimeout(ctx, c.TimeOut)
	defer cancel()

	interval := time.Millisecond
	const maxInterval = 100 * time.Millisecond
	for {
		if predicate() {
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(interval):
		}
		interval *= 2
		if interval > maxInterval {
			interval = maxInterval
		}
	}
}

// wait blocks on w.Wait with a TimeOut deadline, converting a context
// deadline into onTimeout.
func (c *Coordinator) wait(ctx context.Context, pattern string, onTimeout func() error) (map[string]string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.TimeOut)
	defer cancel()
	groups, err := c.Waiter.Wait(ctx, pattern)
	if err != nil {
		if ctx.Err() != nil {
			return nil, onTimeout()
		}
		return nil, fmt.Errorf("coordinator: %w", err)
	}
	return groups, nil
}

// SaveOff executes the host's autosave-off command and blocks until the
// host confirms via save_off_regex, per spec.md §4.F step 1.
func (c *Coordinator) SaveOff(ctx context.Context) error {
	c.Adapter.Execute(c.DataGetter.AutoSaveOff)
	if _, err := c.wait(ctx, c.DataGetter.SaveOffRegex, newSaveOffTimeout); err != nil {
		return err
	}
	c.mu.Lock()
	c.autosaveDisabled = true
	c.mu.Unlock()
	return nil
}

// SaveAll executes "save-all flush" and blocks until the host confirms
// via saved_world_regex, per spec.md §4.F step 2.
func (c *Coordinator) SaveAll(ctx context.Context) error {
	c.Adapter.Execute(c.DataGetter.SaveWorlds)
	if _, err := c.wait(ctx, c.DataGetter.SavedWorldRegex, newSaveAllTimeout); err != nil {
		return err
	}
	return nil
}

// SaveOn executes the host's autosave-on command, the handshake's final
// step and also the timeout-recovery step spec.md §7 prescribes.
func (c *Coordinator) SaveOn() {
	c.Adapter.Execute(c.DataGetter.AutoSaveOn)
	c.mu.Lock()
	c.autosaveDisabled = false
	c.mu.Unlock()
}

// PlayerPosition issues the get_pos/get_dimension data-get queries for
// player and blocks until both resolve, per spec.md §4.F's "For snapshots
// that need player coordinate & dimension".
func (c *Coordinator) PlayerPosition(ctx context.Context, player string) (coord [3]float64, dimension string, err error) {
	ctx, cancel := context.WithTimeout(ctx, c.TimeOut)
	defer cancel()

	c.Adapter.Execute(fmt.Sprintf(c.DataGetter.GetPos, player))
	c.Adapter.Execute(fmt.Sprintf(c.DataGetter.GetDimension, player))

	posPattern := fmt.Sprintf(c.DataGetter.GetPosRegex, player)
	dimPattern := fmt.Sprintf(c.DataGetter.GetDimensionRegex, player)

	var wg sync.WaitGroup
	var posGroups, dimGroups map[string]string
	var posErr, dimErr error
	wg.Add(2)
	go func() {
		defer wg.Done()
		posGroups, posErr = c.Waiter.Wait(ctx, posPattern)
	}()
	go func() {
		defer wg.Done()
		dimGroups, dimErr = c.Waiter.Wait(ctx, dimPattern)
	}()
	wg.Wait()

	if posErr != nil || dimErr != nil {
		return coord, "", newGetPlayerDataTimeout()
	}

	var x, y, z float64
	fmt.Sscanf(posGroups["x"], "%f", &x)
	fmt.Sscanf(posGroups["y"], "%f", &y)
	fmt.Sscanf(posGroups["z"], "%f", &z)
	return [3]float64{x, y, z}, dimGroups["dimension"], nil
}

// RunConfirmCeremony waits for a confirm (or abort) within TimeOut, then
// if confirmed broadcasts a once-per-second countdown for Countdown,
// returning nil only once the countdown finishes uninterrupted — the
// caller's cue to request host shutdown. Returns ErrBackTimeout,
// ErrBackAbort, or a context error.
func (c *Coordinator) RunConfirmCeremony(ctx context.Context, h *Handle, slotLabel string) error {
	c.mu.Lock()
	owns := c.activeOp == h
	c.mu.Unlock()
	if !owns {
		return newBackAbort()
	}

	if err := c.WaitFor(ctx, func() bool {
		c.mu.Lock()
		defer c.mu.Unlock()
		return c.restorePhase == restoreConfirmed || c.restorePhase == restoreAborted
	}); err != nil {
		return newBackTimeout()
	}

	c.mu.Lock()
	phase := c.restorePhase
	c.mu.Unlock()
	if phase == restoreAborted {
		return newBackAbort()
	}

	c.Adapter.Broadcast(c.Adapter.Translate("prompt_msg.back.down", int(c.Countdown/time.Second)))
	remaining := int(c.Countdown / time.Second)
	for t := remaining - 1; t >= 1; t-- {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(time.Second):
		}
		c.mu.Lock()
		aborted := c.restorePhase == restoreAborted
		c.mu.Unlock()
		if aborted {
			return newBackAbort()
		}
		c.Adapter.Broadcast(c.Adapter.Translate("prompt_msg.back.count", t, slotLabel))
	}
	return nil
}

// Confirm transitions a waiting restore to confirmed, the effect of the
// user-issued "confirm" command. Ignored (as in the original's cb_confirm)
// if no restore is currently waiting.
func (c *Coordinator) Confirm() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restorePhase == restoreWaitingConfirm {
		c.restorePhase = restoreConfirmed
	}
}

// Abort transitions a waiting-or-confirmed restore to aborted, the effect
// of the user-issued "abort" command.
func (c *Coordinator) Abort() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.restorePhase == restoreWaitingConfirm || c.restorePhase == restoreConfirmed {
		c.restorePhase = restoreAborted
	}
}

// IsBusy reports whether any operation currently holds the coordinator,
// for callers that want to report status without attempting TryBegin.
func (c *Coordinator) IsBusy() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.backupRunning || c.restorePhase != restoreNone || c.activeOp != nil
}
