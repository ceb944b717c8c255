package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/xlttj/chreport/pkg/cmd"
)

func main() {
	os.Exit(dispatch(os.Args[1:]))
}

func dispatch(args []string) int {
	command := "run"
	if len(args) > 0 {
		switch args[0] {
		case "run", "init", "discover", "history", "help":
			command, args = args[0], args[1:]
		case "-h", "--help", "-help":
			return cmd.HandleHelpCommand()
		}
	}

	switch command {
	case "init":
		return cmd.HandleInitCommand(args)
	case "history":
		return cmd.HandleHistoryCommand(args)
	case "help":
		return cmd.HandleHelpCommand()
	}

	// SIGINT and SIGTERM cancel the run; cleanup happens before exit. After
	// the first signal the default handlers are restored, so a second one
	// terminates the process.
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	context.AfterFunc(ctx, stop)
	if command == "discover" {
		return cmd.HandleDiscoverCommand(ctx, args)
	}
	return cmd.HandleRunCommand(ctx, args)
}
