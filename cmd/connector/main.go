// Command connector synchronizes a dataset with the catalog and serves the
// catalog's pull requests for it.
//
// Usage:
//
//	connector [run|sync|webhook|migrate|import] [-config path.yaml]
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/bit-broker/examples/internal/config"
)

const usage = `usage: connector [command] [-config path.yaml]

commands:
  run      sync once and serve the webhook (default)
  sync     run one catalog sync and exit
  webhook  serve the webhook only
  migrate  apply the Postgres schema migrations
  import   load DATA_URL into CONNECTOR_DATABASE
`

func main() {
	command, args := splitCommand(os.Args[1:])

	fs := flag.NewFlagSet("connector", flag.ExitOnError)
	configPath := fs.String("config", "", "YAML config file (environment overrides it)")
	fs.Usage = func() { fmt.Fprint(fs.Output(), usage) }
	_ = fs.Parse(args)

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(2)
	}

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app := &app{cfg: cfg, logger: logger}
	if err := app.dispatch(ctx, command); err != nil {
		logger.Error("connector failed", "command", command, "error", err)
		stop()
		os.Exit(1)
	}
}

// splitCommand separates a leading subcommand from the flags.
func splitCommand(args []string) (string, []string) {
	if len(args) == 0 || strings.HasPrefix(args[0], "-") {
		return "run", args
	}
	return args[0], args[1:]
}
