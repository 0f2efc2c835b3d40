package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/coreos/go-systemd/v22/daemon"

	"clocknag/internal/app"
	"clocknag/internal/clock"
	"clocknag/internal/config"
	"clocknag/internal/storage"
	logx "clocknag/pkg/logx"
)

const usage = `usage: clocknag [-config path] [command]

Commands:
  (none)        run the reminder daemon
  in <label>    clock in to a task
  out           clock out of the current task
  status        show the current clock session
  log           show recently delivered reminders
`

func main() {
	var cfgPath string
	flag.StringVar(&cfgPath, "config", "./config.yaml", "path to config file (yaml or json)")
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if args := flag.Args(); len(args) > 0 {
		os.Exit(runCommand(cfgPath, args))
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		os.Exit(1)
	}
	_, _ = daemon.SdNotify(false, daemon.SdNotifyReady)

	<-ctx.Done()
	_, _ = daemon.SdNotify(false, daemon.SdNotifyStopping)

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx)
}

// runCommand handles the clock subcommands. They talk to the shared
// session store directly; the running daemon notices the change through
// its database watcher.
func runCommand(cfgPath string, args []string) int {
	log := logx.NewConsole("WARN")

	cfgm := config.NewManager(cfgPath)
	cfg, err := cfgm.Load()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}

	busy, err := config.ParseDurationField("storage.busy_timeout", cfg.Storage.BusyTimeout)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	store, err := storage.Open(storage.Config{
		Driver:      cfg.Storage.Driver,
		Path:        cfg.Storage.Path,
		BusyTimeout: busy,
	}, log)
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		return 1
	}
	if store == nil {
		fmt.Fprintln(os.Stderr, "error: storage is disabled; clock commands need the session store")
		return 1
	}
	defer store.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tracker := clock.NewTracker(store, "", nil, log)

	switch args[0] {
	case "in":
		label := strings.TrimSpace(strings.Join(args[1:], " "))
		if label == "" {
			fmt.Fprintln(os.Stderr, "error: clock in needs a task label")
			return 2
		}
		if err := tracker.ClockIn(ctx, label); err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		fmt.Printf("clocked in: %s\n", label)
		return 0

	case "out":
		sess, err := tracker.ClockOut(ctx)
		if err != nil {
			if errors.Is(err, clock.ErrNotClockedIn) {
				fmt.Println("nothing is clocked in")
				return 0
			}
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		fmt.Printf("clocked out: %s (%s)\n", sess.Label, sess.Elapsed(time.Now()).Round(time.Second))
		return 0

	case "status":
		cur := tracker.Current()
		if cur == nil {
			fmt.Println("no task is being clocked now")
			return 0
		}
		fmt.Printf("clocked in: %s for %s\n", cur.Label, cur.Elapsed(time.Now()).Round(time.Second))
		return 0

	case "log":
		entries, err := store.RecentReminders(ctx, 20)
		if err != nil {
			fmt.Fprintln(os.Stderr, "error:", err)
			return 1
		}
		if len(entries) == 0 {
			fmt.Println("no reminders delivered yet")
			return 0
		}
		for _, e := range entries {
			fmt.Printf("%s  %s: %s\n", e.At.Local().Format("2006-01-02 15:04"), e.Title, e.Body)
		}
		return 0

	default:
		fmt.Fprint(os.Stderr, usage)
		return 2
	}
}
