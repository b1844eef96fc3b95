package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"notifyd/internal/app"
)

func main() {
	var (
		cfgPath string
		fire    string
		title   string
		message string
		linger  time.Duration
	)
	flag.StringVar(&cfgPath, "config", "./notifyd.yaml", "path to config (json or yaml)")
	flag.StringVar(&fire, "fire", "", "fire this event type once and exit")
	flag.StringVar(&title, "title", "", "title for -fire")
	flag.StringVar(&message, "message", "", "message for -fire")
	flag.DurationVar(&linger, "linger", 2*time.Second, "how long -fire waits for handlers before exiting")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "fatal start:", err)
		_ = a.Stop(context.Background(), app.StopFatalError)
		os.Exit(1)
	}

	reason := app.StopSIGTERM
	if fire != "" {
		if d := a.Service().FireNotification(fire, title, message, nil, nil); d == nil {
			fmt.Fprintf(os.Stderr, "event %q is not registered or inactive\n", fire)
		}
		select {
		case <-ctx.Done():
		case <-time.After(linger):
		}
		reason = app.StopFireOnce
	} else {
		select {
		case <-ctx.Done():
		case <-a.Done():
			reason = app.StopFatalError
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	_ = a.Stop(stopCtx, reason)
	stopCancel()
	cancel()
	if err := a.Err(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}
}
