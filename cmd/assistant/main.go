package main

import (
	"bufio"
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"voxassist/internal/app"
	"voxassist/internal/config"
)

func main() {
	var cfgPath, envPath string
	flag.StringVar(&cfgPath, "config", "./assistant.yaml", "path to config (yaml or json)")
	flag.StringVar(&envPath, "env", ".env", "optional dotenv file with VOXASSIST_* overrides")
	flag.Parse()

	config.LoadDotEnv(envPath)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	a, err := app.New(cfgPath)
	if err != nil {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
	if err := a.Start(ctx); err != nil {
		fmt.Println("fatal start:", err)
		os.Exit(1)
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		sc := bufio.NewScanner(os.Stdin)
		for sc.Scan() {
			lines <- sc.Text()
		}
	}()

	reason := app.StopUnknown
loop:
	for {
		select {
		case <-ctx.Done():
			reason = app.StopSignal
			break loop
		case <-a.Done():
			reason = app.StopFatalError
			break loop
		case line, ok := <-lines:
			if !ok {
				reason = app.StopInputEOF
				break loop
			}
			if reply := a.Handle(ctx, line); reply != "" {
				fmt.Println(reply)
			}
		}
	}

	stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer stopCancel()
	if err := a.Stop(stopCtx, reason); err != nil {
		fmt.Println("stop:", err)
	}
	if err := a.Err(); err != nil && !errors.Is(err, context.Canceled) {
		fmt.Println("fatal:", err)
		os.Exit(1)
	}
}
