// Package host defines the interface chunkback uses to talk to whatever is
// hosting the Minecraft server — issuing commands, broadcasting messages,
// starting and stopping the server — without chunkback ever touching a
// native server API itself (spec.md §4.G, §1 Out of scope). It also
// provides a small registry for resolving outgoing commands against
// incoming log lines, the reactive counterpart to the coordinator's
// exponential-backoff poll.
package host

import "log/slog"

// LogLine is one line chunkback observes from the host's log stream, along
// with whether it actually originated from the server process (as opposed
// to, say, a player chat message echoed through the same feed).
type LogLine struct {
	Content      string
	IsFromServer bool
}

// Adapter is everything the Operation Coordinator and Backup Engine need
// from whatever embeds chunkback. A real plugin loader backs this with its
// own server API; cmd/chunkback ships a local directory-backed
// implementation for demonstration (see cmd/chunkback/localhost).
type Adapter interface {
	// Execute sends cmdline to the managed server, fire-and-forget.
	Execute(cmdline string)
	// Broadcast sends msg to every connected player (and the console).
	Broadcast(msg string)
	// Reply sends msg back to whoever issued the current command.
	Reply(msg string)
	// Log records a structured line at the given level.
	Log(level slog.Level, msg string, args ...any)
	// StopServer asks the host to shut the managed server down. The
	// eventual result arrives through the coordinator's OnServerStopped.
	StopServer() error
	// StartServer asks the host to bring the managed server back up.
	StartServer() error
	// Translate looks up a localized message template by key and formats
	// it with args, standing in for the original plugin's tr() table
	// (spec.md §1 Out of scope; kept here only as the hook a real host
	// would plug its localization into).
	Translate(key string, args ...any) string
}
