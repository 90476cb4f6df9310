// Command sqlm compiles SQL templates into type-checked Go.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/Konsultn-Engineering/sqlm/cmd/sqlm/commands"
	"github.com/Konsultn-Engineering/sqlm/config"
	"github.com/Konsultn-Engineering/sqlm/diag"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)

	err := commands.NewRootCommand(config.AppFs, os.Stdout, os.Stderr).ExecuteContext(ctx)
	stop()
	if err != nil {
		diag.Render(os.Stderr, err)
		os.Exit(1)
	}
}
