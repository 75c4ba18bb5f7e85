package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	_ "modernc.org/sqlite"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/classify"
	"github.com/mbultel/postule/dbopen"
	"github.com/mbultel/postule/formflow"
	"github.com/mbultel/postule/match"
	"github.com/mbultel/postule/ratelimit"
	"github.com/mbultel/postule/store"
	"github.com/mbultel/postule/workflow"
)

const usage = `usage: postule <command> [flags]

commands:
  start     run an application session
  status    show a session's status and progress
  attempts  list a session's application attempts
  cancel    request cancellation of a running session
  sweep     purge terminal sessions older than a cutoff
  serve     expose the status/cancel API over HTTP
`

func main() {
	if len(os.Args) < 2 {
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}

	setupLogging()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "start":
		err = cmdStart(ctx, os.Args[2:])
	case "status":
		err = cmdStatus(ctx, os.Args[2:])
	case "attempts":
		err = cmdAttempts(ctx, os.Args[2:])
	case "cancel":
		err = cmdCancel(ctx, os.Args[2:])
	case "sweep":
		err = cmdSweep(ctx, os.Args[2:])
	case "serve":
		err = cmdServe(ctx, os.Args[2:])
	default:
		fmt.Fprint(os.Stderr, usage)
		os.Exit(2)
	}
	if err != nil {
		slog.Error("postule: "+os.Args[1], "error", err)
		os.Exit(1)
	}
}

func setupLogging() {
	var lvl slog.Level
	switch env("LOG_LEVEL", "info") {
	case "debug":
		lvl = slog.LevelDebug
	case "warn":
		lvl = slog.LevelWarn
	case "error":
		lvl = slog.LevelError
	default:
		lvl = slog.LevelInfo
	}
	logger := slog.New(slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: lvl}))
	slog.SetDefault(logger)
}

func openStore(cfg *fileConfig) (*store.Store, func(), error) {
	db, err := dbopen.Open(cfg.DB, dbopen.WithMkdirAll(), dbopen.WithSchema(store.Schema))
	if err != nil {
		return nil, nil, err
	}
	return store.New(db), func() { db.Close() }, nil
}

func cmdStart(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("start", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	profilePath := fs.String("profile", "profile.yaml", "applicant profile")
	jobsPath := fs.String("jobs", "jobs.yaml", "candidate jobs file")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	profile, err := loadProfile(*profilePath)
	if err != nil {
		return err
	}

	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	drv, err := browser.Launch(cfg.browserConfig())
	if err != nil {
		return err
	}
	defer drv.Close()

	filler := &answersFiller{driver: drv, answers: cfg.Answers}
	var confirm workflow.ConfirmFunc
	if cfg.Confirm {
		confirm = promptConfirm
	}

	eng := workflow.New(st,
		ratelimit.New(cfg.limits()),
		match.New(cfg.weights()),
		drv,
		classify.Heuristic{},
		&fileDiscoverer{path: *jobsPath},
		func(ctx context.Context, cls classify.Classification, _ *match.Profile, _ *match.Job) (formflow.FillResult, error) {
			return filler.fill(ctx, cls)
		},
		confirm,
		cfg.workflowConfig())

	go printEvents(eng.Events())

	sess, err := eng.Run(ctx, cfg.Owner, profile)
	if err != nil {
		return err
	}
	fmt.Printf("session %s: %s (%d/%d)\n", sess.ID, sess.Status, sess.ProcessedItems, sess.TotalItems)
	return nil
}

func printEvents(events <-chan workflow.Event) {
	for ev := range events {
		switch ev.Kind {
		case workflow.EventDiscovered:
			fmt.Printf("  found    %s\n", ev.JobTitle)
		case workflow.EventMatched:
			fmt.Printf("  matched  %s (%.0f, %s)\n", ev.JobTitle, ev.Score, ev.Message)
		case workflow.EventApplicationStart:
			fmt.Printf("  applying %s\n", ev.JobTitle)
		case workflow.EventApplicationComplete:
			fmt.Printf("  done     %s — %s\n", ev.JobTitle, ev.Message)
		case workflow.EventError:
			fmt.Printf("  problem  %s — %s\n", ev.JobTitle, ev.Message)
		}
	}
}

// promptConfirm asks on stdin before each application.
func promptConfirm(ctx context.Context, job *match.Job, res match.Result) (bool, error) {
	fmt.Printf("apply to %q at %s (score %.0f)? [y/N] ", job.Title, job.Company, res.Overall)
	reader := bufio.NewReader(os.Stdin)
	line, err := reader.ReadString('\n')
	if err != nil {
		return false, err
	}
	answer := strings.ToLower(strings.TrimSpace(line))
	return answer == "y" || answer == "yes", nil
}

func cmdStatus(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("status", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	sessionID := fs.String("session", "", "session id (empty = list all for owner)")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if *sessionID == "" {
		sessions, err := st.ListSessionsByOwner(ctx, cfg.Owner)
		if err != nil {
			return err
		}
		for _, s := range sessions {
			fmt.Printf("%s  %-10s %3d/%3d  %s\n", s.ID, s.Status, s.ProcessedItems, s.TotalItems,
				time.UnixMilli(s.CreatedAt).Format(time.RFC3339))
		}
		return nil
	}

	s, err := st.GetSession(ctx, *sessionID)
	if err != nil {
		return err
	}
	if s == nil {
		return fmt.Errorf("session %s not found", *sessionID)
	}
	fmt.Printf("session  %s\nowner    %s\nstatus   %s\nprogress %d/%d\n", s.ID, s.Owner, s.Status, s.ProcessedItems, s.TotalItems)
	if s.Message != "" {
		fmt.Printf("message  %s\n", s.Message)
	}
	logs, err := st.ListLogs(ctx, s.ID)
	if err != nil {
		return err
	}
	for _, l := range logs {
		fmt.Printf("  %s %-5s %s\n", time.UnixMilli(l.LoggedAt).Format("15:04:05"), l.Level, l.Message)
	}
	return nil
}

func cmdAttempts(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("attempts", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	sessionID := fs.String("session", "", "session id (required)")
	fs.Parse(args)
	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	attempts, err := st.ListAttempts(ctx, *sessionID)
	if err != nil {
		return err
	}
	for _, a := range attempts {
		title := a.JobID
		if j, err := st.GetJob(ctx, a.JobID); err == nil && j != nil {
			title = j.Title + " @ " + j.Company
		}
		fmt.Printf("%-22s %-20s %s\n", a.Status, title, a.Message)
	}
	return nil
}

func cmdCancel(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("cancel", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	sessionID := fs.String("session", "", "session id (required)")
	fs.Parse(args)
	if *sessionID == "" {
		return fmt.Errorf("-session is required")
	}

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	if err := st.RequestCancel(ctx, *sessionID); err != nil {
		return err
	}
	fmt.Printf("cancel requested for %s; the running process stops at its next checkpoint\n", *sessionID)
	return nil
}

func cmdSweep(ctx context.Context, args []string) error {
	fs := flag.NewFlagSet("sweep", flag.ExitOnError)
	configPath := fs.String("config", "config.yaml", "config file")
	days := fs.Int("days", 90, "purge terminal sessions older than this many days")
	fs.Parse(args)

	cfg, err := loadConfig(*configPath)
	if err != nil {
		return err
	}
	st, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	n, err := st.PurgeOlderThan(ctx, time.Duration(*days)*24*time.Hour)
	if err != nil {
		return err
	}
	fmt.Printf("purged %d session(s)\n", n)
	return nil
}

func env(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}
