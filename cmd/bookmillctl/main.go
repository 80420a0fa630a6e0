// bookmillctl is the operator tool over the step event log.
//
// The scheduler itself never rewrites history; recovery (e.g. a step stuck
// in "processing" after a crash) is done here by appending an override
// event, which the gate picks up on its next read.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"bookmill/internal/config"
	"bookmill/internal/storage"
	logx "bookmill/pkg/logx"
)

const timeFormat = "2006-01-02T15:04:05Z07:00"

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config yaml/json")
	flag.Usage = usage
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		usage()
		os.Exit(2)
	}

	store, err := openStore(cfgPath)
	if err != nil {
		fatal(err)
	}
	defer store.Close()

	ctx := context.Background()
	switch args[0] {
	case "status":
		err = runStatus(ctx, store)
	case "tail":
		err = runTail(ctx, store, args[1:])
	case "mark":
		err = runMark(ctx, store, args[1:])
	default:
		usage()
		os.Exit(2)
	}
	if err != nil {
		fatal(err)
	}
}

func usage() {
	fmt.Fprintf(os.Stderr, `usage: bookmillctl [-config path] <command> [args]

commands:
  status                       latest recorded event per step
  tail [-n 50]                 recent events, oldest first
  mark -step NAME -status S    append an override event
                               (S: pending|processing|failed|success)
`)
}

func openStore(cfgPath string) (storage.Store, error) {
	cfg, err := config.NewManager(cfgPath).Load()
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		return nil, err
	}
	return storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, logx.Nop())
}

func runStatus(ctx context.Context, store storage.Store) error {
	steps, err := store.Steps(ctx)
	if err != nil {
		return err
	}
	if len(steps) == 0 {
		fmt.Println("no events recorded")
		return nil
	}
	for _, step := range steps {
		e, ok, err := store.Latest(ctx, step, time.Time{})
		if err != nil {
			return err
		}
		if !ok {
			continue
		}
		fmt.Printf("%-32s %-12s %s\n", step, e.Status, e.At.Format(timeFormat))
	}
	return nil
}

func runTail(ctx context.Context, store storage.Store, args []string) error {
	fs := flag.NewFlagSet("tail", flag.ExitOnError)
	n := fs.Int("n", 50, "number of events")
	if err := fs.Parse(args); err != nil {
		return err
	}

	events, err := store.Tail(ctx, *n)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Printf("%s|%s|%s\n", e.At.Format(timeFormat), e.Step, e.Status)
	}
	return nil
}

func runMark(ctx context.Context, store storage.Store, args []string) error {
	fs := flag.NewFlagSet("mark", flag.ExitOnError)
	step := fs.String("step", "", "step name")
	rawStatus := fs.String("status", "", "status to record")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *step == "" || *rawStatus == "" {
		return fmt.Errorf("mark: -step and -status are required")
	}
	status, err := storage.ParseStatus(*rawStatus)
	if err != nil {
		return err
	}

	e := storage.Event{At: time.Now(), Step: *step, Status: status}
	if err := store.Append(ctx, e); err != nil {
		return err
	}
	fmt.Printf("recorded %s -> %s at %s\n", e.Step, e.Status, e.At.Format(timeFormat))
	return nil
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, "bookmillctl:", err)
	os.Exit(1)
}
