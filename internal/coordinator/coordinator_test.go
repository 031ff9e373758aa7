package coordinator

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/OCharnyshevich/chunkback/internal/host"
)

type fakeAdapter struct {
	mu        sync.Mutex
	executed  []string
	broadcast []string
}

func (a *fakeAdapter) Execute(cmdline string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.executed = append(a.executed, cmdline)
}
func (a *fakeAdapter) Broadcast(msg string) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.broadcast = append(a.broadcast, msg)
}
func (a *fakeAdapter) Reply(msg string)                             {}
func (a *fakeAdapter) Log(level slog.Level, msg string, args ...any) {}
func (a *fakeAdapter) StopServer() error                            { return nil }
func (a *fakeAdapter) StartServer() error                           { return nil }
func (a *fakeAdapter) Translate(key string, args ...any) string {
	return fmt.Sprintf(key, args...)
}

func (a *fakeAdapter) lastExecuted() string {
	a.mu.Lock()
	defer a.mu.Unlock()
	if len(a.executed) == 0 {
		return ""
	}
	return a.executed[len(a.executed)-1]
}

func testDataGetter() DataGetter {
	return DataGetter{
		GetPos:            "data get entity %s Pos",
		GetDimension:      "data get entity %s Dimension",
		SaveWorlds:        "save-all flush",
		AutoSaveOff:       "save-off",
		AutoSaveOn:        "save-on",
		GetPosRegex:       `^%s has the following entity data: \[(?P<x>-?[\d.]+)d, (?P<y>-?[\d.]+)d, (?P<z>-?[\d.]+)d\]$`,
		GetDimensionRegex: `^%s has the following entity data: "(?P<dimension>[^"]+)"$`,
		SaveOffRegex:      `Automatic saving is now disabled`,
		SavedWorldRegex:   `Saved the game`,
	}
}

func newTestCoordinator(adapter *fakeAdapter) *Coordinator {
	w := host.NewWaiter()
	return New(adapter, w, testDataGetter(), time.Second, 3*time.Second, nil)
}

func TestTryBeginRefusesSecondOperation(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)

	h, err := c.TryBegin(OpSnapshot)
	if err != nil {
		t.Fatal(err)
	}
	if _, err := c.TryBegin(OpRestore); err == nil {
		t.Fatal("expected ErrRepeatBackup")
	}
	c.Finish(h)
	if _, err := c.TryBegin(OpRestore); err != nil {
		t.Fatalf("expected the coordinator to be free after Finish: %v", err)
	}
}

func TestSaveOffTimesOutWithoutMatchingLog(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)
	c.TimeOut = 30 * time.Millisecond

	err := c.SaveOff(context.Background())
	if err == nil {
		t.Fatal("expected ErrSaveOffTimeout")
	}
	if _, ok := err.(*ErrSaveOffTimeout); !ok {
		t.Fatalf("got %T, want *ErrSaveOffTimeout", err)
	}
}

func TestSaveOffResolvesOnMatchingLogLine(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)

	done := make(chan error, 1)
	go func() { done <- c.SaveOff(context.Background()) }()

	time.Sleep(10 * time.Millisecond)
	c.OnServerLog("[Server] Automatic saving is now disabled")

	if err := <-done; err != nil {
		t.Fatalf("SaveOff returned %v", err)
	}
	if adapter.lastExecuted() != "save-off" {
		t.Fatalf("last executed = %q, want save-off", adapter.lastExecuted())
	}
}

func TestPlayerPositionParsesBothQueries(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)

	done := make(chan struct{})
	var coord [3]float64
	var dim string
	var err error
	go func() {
		coord, dim, err = c.PlayerPosition(context.Background(), "Steve")
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	c.OnServerLog("Steve has the following entity data: [12.5d, 64.0d, -8.0d]")
	c.OnServerLog(`Steve has the following entity data: "minecraft:the_nether"`)

	<-done
	if err != nil {
		t.Fatal(err)
	}
	if coord != [3]float64{12.5, 64.0, -8.0} {
		t.Fatalf("coord = %v", coord)
	}
	if dim != "minecraft:the_nether" {
		t.Fatalf("dimension = %q", dim)
	}
}

func TestRunConfirmCeremonyTimesOutWithoutConfirm(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)
	c.TimeOut = 30 * time.Millisecond

	h, err := c.TryBegin(OpRestore)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Finish(h)

	err = c.RunConfirmCeremony(context.Background(), h, "1")
	if _, ok := err.(*ErrBackTimeout); !ok {
		t.Fatalf("got %v (%T), want *ErrBackTimeout", err, err)
	}
}

func TestRunConfirmCeremonyAbortedDuringCountdown(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)
	c.Countdown = 3 * time.Second

	h, err := c.TryBegin(OpRestore)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Finish(h)

	c.Confirm()
	go func() {
		time.Sleep(50 * time.Millisecond)
		c.Abort()
	}()

	err = c.RunConfirmCeremony(context.Background(), h, "1")
	if _, ok := err.(*ErrBackAbort); !ok {
		t.Fatalf("got %v (%T), want *ErrBackAbort", err, err)
	}
}

func TestRunConfirmCeremonySucceedsAfterConfirm(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)
	c.Countdown = 2 * time.Second

	h, err := c.TryBegin(OpRestore)
	if err != nil {
		t.Fatal(err)
	}
	defer c.Finish(h)

	c.Confirm()
	if err := c.RunConfirmCeremony(context.Background(), h, "1"); err != nil {
		t.Fatalf("RunConfirmCeremony = %v", err)
	}
}

func TestForceResetClearsStateAndReenablesAutosave(t *testing.T) {
	adapter := &fakeAdapter{}
	c := newTestCoordinator(adapter)

	if _, err := c.TryBegin(OpSnapshot); err != nil {
		t.Fatal(err)
	}
	c.mu.Lock()
	c.autosaveDisabled = true
	c.mu.Unlock()

	c.ForceReset()

	if c.IsBusy() {
		t.Fatal("expected coordinator to be free after ForceReset")
	}
	if adapter.lastExecuted() != "save-on" {
		t.Fatalf("last executed = %q, want save-on", adapter.lastExecuted())
	}
}
