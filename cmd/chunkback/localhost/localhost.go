// Package localhost provides cmd/chunkback's demonstration internal/host.
// Adapter: a plain directory standing in for a live Minecraft server, so
// the rest of the stack can be driven end to end without a real host
// plugin loader (spec.md §1 Out of scope; SPEC_FULL.md §4.G).
package localhost

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"
)

// PlayerState is the position/dimension LocalAdapter reports back for a
// "data get entity <name> Pos/Dimension" query, set by the CLI ahead of a
// command that needs it (there being no real in-game player to query).
type PlayerState struct {
	Coord     [3]float64
	Dimension string
}

// LocalAdapter implements internal/host.Adapter by logging every command
// to a file chunkback itself owns, and — since nothing downstream of it is
// actually processing Minecraft server output — synthesizing the log line
// a real server would eventually print for the handful of commands
// internal/coordinator issues (save-off, save-all flush, save-on, the two
// data-get queries). This mirrors the fakeAdapter used in
// internal/coordinator's own tests, elevated to a real, file-backed type.
type LocalAdapter struct {
	mu        sync.Mutex
	logPath   string
	logger    *slog.Logger
	onLog     func(line string)
	positions map[string]PlayerState
	started   bool

	subsMu sync.Mutex
	subs   []chan string
}

// New returns a LocalAdapter that appends its simulated server log to
// logPath.
func New(logPath string, logger *slog.Logger) *LocalAdapter {
	if logger == nil {
		logger = slog.Default()
	}
	return &LocalAdapter{logPath: logPath, logger: logger, positions: make(map[string]PlayerState), started: true}
}

// SetLogSink wires sink to receive every log line this adapter emits —
// normally Coordinator.OnServerLog, so the reactive waiter path resolves
// the commands this adapter synthesizes responses for.
func (a *LocalAdapter) SetLogSink(sink func(line string)) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.onLog = sink
}

// SetPlayerState registers the position/dimension a later PlayerPosition
// query for name should resolve to, the CLI's stand-in for an actual
// in-game location.
func (a *LocalAdapter) SetPlayerState(name string, state PlayerState) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.positions[name] = state
}

func (a *LocalAdapter) appendLog(line string) {
	f, err := os.OpenFile(a.logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
	if err != nil {
		a.logger.Warn("localhost: cannot append to log", "path", a.logPath, "error", err)
		return
	}
	defer f.Close()
	fmt.Fprintf(f, "[%s] %s\n", time.Now().UTC().Format(time.RFC3339), line)
}

func (a *LocalAdapter) emit(line string) {
	a.appendLog(line)
	a.mu.Lock()
	sink := a.onLog
	a.mu.Unlock()
	if sink != nil {
		sink(line)
	}
	a.broadcastToSubs(line)
}

// Execute implements host.Adapter. It logs cmdline and, for the small set
// of commands the coordinator's handshake and player-position queries
// issue, synthesizes the confirming log line immediately.
func (a *LocalAdapter) Execute(cmdline string) {
	a.appendLog("> " + cmdline)
	switch {
	case cmdline == "save-off":
		a.emit("Automatic saving is now disabled")
	case cmdline == "save-all flush":
		a.emit("Saved the game")
	case cmdline == "save-on":
		a.emit("Automatic saving is now enabled")
	case strings.HasPrefix(cmdline, "data get entity "):
		a.respondDataGet(cmdline)
	}
}

// respondDataGet answers a "data get entity <name> Pos" or
// "... Dimension" query against whatever SetPlayerState last recorded for
// that name. An unregistered player produces no response at all, so the
// coordinator's PlayerPosition call times out — the same outcome a real
// server gives for a player who isn't online.
func (a *LocalAdapter) respondDataGet(cmdline string) {
	rest := strings.TrimPrefix(cmdline, "data get entity ")
	fields := strings.Fields(rest)
	if len(fields) != 2 {
		return
	}
	name, field := fields[0], fields[1]

	a.mu.Lock()
	state, ok := a.positions[name]
	a.mu.Unlock()
	if !ok {
		return
	}

	switch field {
	case "Pos":
		a.emit(fmt.Sprintf("%s has the following entity data: [%gd, %gd, %gd]", name, state.Coord[0], state.Coord[1], state.Coord[2]))
	case "Dimension":
		a.emit(fmt.Sprintf("%s has the following entity data: %q", name, state.Dimension))
	}
}

// Broadcast implements host.Adapter: logged, and forwarded to every
// subscriber registered through Subscribe (cmd/chunkback/tui uses this to
// render the restore countdown).
func (a *LocalAdapter) Broadcast(msg string) {
	a.emit("[broadcast] " + msg)
}

// Reply implements host.Adapter by printing directly to the operator's
// terminal — there is no separate "command issuer" channel in a CLI.
func (a *LocalAdapter) Reply(msg string) {
	fmt.Println(msg)
}

// Log implements host.Adapter.
func (a *LocalAdapter) Log(level slog.Level, msg string, args ...any) {
	a.logger.Log(context.Background(), level, msg, args...)
}

// StopServer implements host.Adapter. The directory-backed demo server has
// no process to stop; it just flips a flag and logs the transition.
func (a *LocalAdapter) StopServer() error {
	a.mu.Lock()
	a.started = false
	a.mu.Unlock()
	a.appendLog("server stopped")
	return nil
}

// StartServer implements host.Adapter, the mirror of StopServer.
func (a *LocalAdapter) StartServer() error {
	a.mu.Lock()
	a.started = true
	a.mu.Unlock()
	a.appendLog("server started")
	return nil
}

// Translate implements host.Adapter with a small built-in message table
// standing in for the original plugin's localization file (spec.md §1 Out
// of scope). Keys not found fall back to the key itself formatted with
// args, so an unrecognized key degrades instead of panicking.
func (a *LocalAdapter) Translate(key string, args ...any) string {
	tmpl, ok := messages[key]
	if !ok {
		return fmt.Sprintf(key, args...)
	}
	return fmt.Sprintf(tmpl, args...)
}

var messages = map[string]string{
	"prompt_msg.backup.start":                   "Starting backup...",
	"prompt_msg.backup.done":                    "Backup finished in %s seconds.",
	"prompt_msg.backup.time":                    "Backup recorded at %s: %s",
	"prompt_msg.back.start":                     "Slot %s (%s, %q) is about to be restored. Reply 'confirm' or 'abort'.",
	"prompt_msg.back.custom_start":              "Custom backup slot %s (%s, %q) is about to be restored. Reply 'confirm' or 'abort'.",
	"prompt_msg.back.down":                      "Restoring in %d seconds...",
	"prompt_msg.back.count":                     "Restoring in %d... (slot %s)",
	"prompt_msg.back.run":                       "Restore in progress.",
	"prompt_msg.abort":                          "Nothing to abort.",
	"prompt_msg.comment.empty_comment":          "(no comment)",
	"prompt_msg.comment.console":                "console",
	"prompt_msg.custom.create_sub_slot_success": "Sub-slot %d added.",
}

// Subscribe registers a channel that receives every subsequent broadcast
// and handshake log line, for cmd/chunkback/tui's countdown view. The
// caller must drain it; Unsubscribe stops delivery and closes the channel.
func (a *LocalAdapter) Subscribe() <-chan string {
	ch := make(chan string, 32)
	a.subsMu.Lock()
	a.subs = append(a.subs, ch)
	a.subsMu.Unlock()
	return ch
}

// Unsubscribe removes and closes a channel returned by Subscribe.
func (a *LocalAdapter) Unsubscribe(ch <-chan string) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for i, c := range a.subs {
		if c == ch {
			a.subs = append(a.subs[:i], a.subs[i+1:]...)
			close(c)
			return
		}
	}
}

func (a *LocalAdapter) broadcastToSubs(line string) {
	a.subsMu.Lock()
	defer a.subsMu.Unlock()
	for _, c := range a.subs {
		select {
		case c <- line:
		default:
		}
	}
}
