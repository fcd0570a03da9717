// Command hudl-e2e runs the Hudl authentication checks from the shell.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/kuitang/hudl-auth-e2e/internal/cli"
	"github.com/kuitang/hudl-auth-e2e/internal/errs"
	"github.com/kuitang/hudl-auth-e2e/internal/obs"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := cli.Execute(ctx, os.Args[1:])
	stop()
	if err == nil {
		return
	}

	code := errs.Classify(err)
	obs.Init()
	obs.Pkg("main").Error("command_failed", "code", string(code), "message", errs.MessageOf(err), "error", err)
	fmt.Fprintln(os.Stderr, "hudl-e2e:", err)
	os.Exit(errs.ExitCode(code))
}
