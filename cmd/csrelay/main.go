package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"csrelay/internal/app"
	"csrelay/internal/config"
	logx "csrelay/pkg/logx"
)

func main() {
	var (
		cfgPath string
		once    bool
	)
	flag.StringVar(&cfgPath, "config", config.DefaultPath, "path to config file (yaml or json)")
	flag.BoolVar(&once, "once", false, "run a single check and exit (same as RUN_ONCE=1)")
	flag.Parse()

	// The default path may be absent; an explicit -config must exist.
	explicit := false
	flag.Visit(func(f *flag.Flag) {
		if f.Name == "config" {
			explicit = true
		}
	})

	if err := config.LoadEnvFiles(); err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(app.Options{
		ConfigPath:     cfgPath,
		ConfigOptional: !explicit,
		Once:           once,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, "fatal:", err)
		os.Exit(1)
	}

	reason := app.StopRunOnce
	runErr := a.Run(ctx)
	switch {
	case runErr != nil:
		reason = app.StopFatalError
		a.Logger().Error("run failed", logx.Err(runErr))
	case !a.SingleShot():
		reason = app.StopSignal
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	_ = a.Stop(stopCtx, reason)

	if runErr != nil {
		stopCancel()
		os.Exit(1)
	}
}
