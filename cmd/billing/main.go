// Command billing runs the utility billing engine: bill generation, bulk
// meter distribution, payment reconciliation, account queries and the
// periodic jobs.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/erp/utilitybilling/internal/domain/shared"
	"github.com/erp/utilitybilling/internal/infrastructure/config"
)

// command is one subcommand. run receives the arguments after its name.
type command struct {
	usage string
	run   func(ctx context.Context, a *app, actor string, args []string) error
}

var commands = map[string]command{
	"generate":       {"generate -period YYYY-MM [-account ID | -accounts ID,ID]", runGenerate},
	"void":           {"void -bill ID -reason TEXT [-regenerate]", runVoid},
	"distribute":     {"distribute -reading ID", runDistribute},
	"validate-bulk":  {"validate-bulk -meter ID", runValidateBulk},
	"reconcile":      {"reconcile -payment ID [-manual BILL:AMOUNT,...]", runReconcile},
	"reverse":        {"reverse -payment ID -reason TEXT", runReverse},
	"balance":        {"balance -account ID", runBalance},
	"aging":          {"aging -account ID", runAging},
	"history":        {"history -account ID [-page N] [-page-size N]", runHistory},
	"overdue":        {"overdue [-as-of YYYY-MM-DD]", runOverdue},
	"expire-credits": {"expire-credits [-as-of YYYY-MM-DD]", runExpireCredits},
	"outbox":         {"outbox [-stats | -dead [-page N] | -retry ID|all | -once]", runOutbox},
	"schedule":       {"schedule [-run KIND [-period YYYY-MM] | -history [-limit N]]", runSchedule},
}

func main() {
	var (
		configFile string
		actor      string
	)
	flag.StringVar(&configFile, "config", "", "Config file (default: config.toml in the working directory)")
	flag.StringVar(&actor, "actor", "cli", "Actor recorded on every change")
	flag.Usage = printUsage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		printUsage()
		os.Exit(2)
	}
	cmd, ok := commands[args[0]]
	if !ok {
		fmt.Fprintf(os.Stderr, "unknown command %q\n\n", args[0])
		printUsage()
		os.Exit(2)
	}

	cfg, err := loadConfig(configFile)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	os.Exit(execute(ctx, cfg, cmd, actor, args[1:]))
}

func execute(ctx context.Context, cfg *config.Config, cmd command, actor string, args []string) int {
	a, err := newApp(ctx, cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to start: %v\n", err)
		return 1
	}
	defer a.Close(context.Background())

	if err := cmd.run(ctx, a, actor, args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 2
		}
		printError(err)
		return 1
	}
	return 0
}

func loadConfig(path string) (*config.Config, error) {
	if path != "" {
		return config.LoadFile(path)
	}
	return config.Load()
}

// printJSON writes v to stdout as indented JSON
func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// printError writes the error with its domain code when it has one
func printError(err error) {
	if code := shared.ErrorCode(err); code != "" {
		fmt.Fprintf(os.Stderr, "error [%s]: %v\n", code, err)
		return
	}
	fmt.Fprintf(os.Stderr, "error: %v\n", err)
}

func printUsage() {
	fmt.Fprintln(os.Stderr, "Usage: billing [-config FILE] [-actor NAME] <command> [flags]")
	fmt.Fprintln(os.Stderr)
	fmt.Fprintln(os.Stderr, "Commands:")
	names := make([]string, 0, len(commands))
	for name := range commands {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Fprintf(os.Stderr, "  %s\n", commands[name].usage)
	}
}
