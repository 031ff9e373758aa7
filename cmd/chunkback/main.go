// Command chunkback is the operator-facing CLI: a single-invocation process
// that loads a configuration document, wires up the backup engine, and
// dispatches one subcommand, the way an operator would run a one-shot
// server-admin tool against a stopped or running Minecraft server.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/subcommands"

	"github.com/OCharnyshevich/chunkback/cmd/chunkback/app"
	"github.com/OCharnyshevich/chunkback/cmd/chunkback/commands"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "chunkback.toml", "path to the chunkback configuration document")
	flag.Parse()

	a, err := app.Open(configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "chunkback:", err)
		os.Exit(1)
	}

	cdr := subcommands.NewCommander(flag.CommandLine, "chunkback")
	cdr.Register(cdr.HelpCommand(), "")
	cdr.Register(cdr.FlagsCommand(), "")
	cdr.Register(cdr.CommandsCommand(), "")

	cdr.Register(&commands.MakeCommand{App: a}, "snapshot")
	cdr.Register(&commands.PMakeCommand{App: a}, "snapshot")
	cdr.Register(&commands.DMakeCommand{App: a}, "snapshot")
	cdr.Register(commands.NewCustomCommand(a), "snapshot")

	cdr.Register(&commands.BackCommand{App: a}, "restore")
	cdr.Register(&commands.RestoreCommand{BackCommand: commands.BackCommand{App: a}}, "restore")
	cdr.Register(&commands.ConfirmCommand{App: a}, "restore")
	cdr.Register(&commands.AbortCommand{App: a}, "restore")

	cdr.Register(&commands.DelCommand{App: a}, "manage")
	cdr.Register(&commands.ListCommand{App: a}, "manage")
	cdr.Register(&commands.ShowCommand{App: a}, "manage")
	cdr.Register(&commands.SetCommand{App: a}, "manage")
	cdr.Register(&commands.ReloadCommand{App: a}, "manage")
	cdr.Register(&commands.ForceReloadCommand{App: a}, "manage")

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	os.Exit(int(cdr.Execute(ctx)))
}
