package main

import (
	"bufio"
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"notifyd/internal/credential"
)

const usage = `usage:
  notifyd                 run the agent
  notifyd token set       read an api token from stdin and store it in the keyring
  notifyd token clear     remove the stored api token`

func main() {
	if len(os.Args) > 1 {
		if err := runCommand(os.Args[1:]); err != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app, cleanup, err := InitializeApp()
	if err != nil {
		log.Fatalf("init app: %v", err)
	}
	defer cleanup()
	logger := app.Logger()
	defer func() {
		_ = logger.Sync()
	}()

	go func() {
		if err := app.Run(ctx); err != nil {
			logger.Error("app stopped", zap.Error(err))
			stop()
		}
	}()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := app.Shutdown(shutdownCtx); err != nil {
		logger.Error("shutdown error", zap.Error(err))
	}
}

func runCommand(args []string) error {
	if len(args) != 2 || args[0] != "token" {
		return fmt.Errorf("unknown command %q\n%s", strings.Join(args, " "), usage)
	}

	vault := credential.NewVault()
	switch args[1] {
	case "set":
		fmt.Fprint(os.Stderr, "api token: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return fmt.Errorf("read token: %w", err)
		}
		token := strings.TrimSpace(line)
		if token == "" {
			return fmt.Errorf("empty token")
		}
		if info, err := credential.Inspect(token); err == nil && info.Expired(time.Now()) {
			fmt.Fprintln(os.Stderr, "warning: token is already expired")
		}
		if err := vault.SetToken(token); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "token stored")
	case "clear":
		if err := vault.ClearToken(); err != nil {
			return err
		}
		fmt.Fprintln(os.Stderr, "token removed")
	default:
		return fmt.Errorf("unknown token command %q\n%s", args[1], usage)
	}
	return nil
}
