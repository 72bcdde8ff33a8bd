// SHSH Chat - terminal client driving an in-process chat session
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/ashureev/shsh-chat/internal/chat"
	"github.com/ashureev/shsh-chat/internal/config"
	"github.com/ashureev/shsh-chat/internal/store"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/joho/godotenv"
)

func main() {
	altScreen := flag.Bool("alt-screen", true, "run in the terminal's alternate screen")
	logFile := flag.String("log-file", "", "write JSON logs to this file")
	flag.Parse()

	_ = godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "chat-tui: %v\n", err)
		os.Exit(1)
	}

	// The terminal belongs to the UI, so logs go to a file or nowhere.
	var logOut io.Writer = io.Discard
	if *logFile != "" {
		f, err := os.OpenFile(*logFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			fmt.Fprintf(os.Stderr, "chat-tui: open log file: %v\n", err)
			os.Exit(1)
		}
		defer f.Close()
		logOut = f
	}
	logger := slog.New(slog.NewJSONHandler(logOut, &slog.HandlerOptions{Level: cfg.SlogLevel()}))
	slog.SetDefault(logger)

	if err := run(cfg, *altScreen, logger); err != nil {
		fmt.Fprintf(os.Stderr, "chat-tui fatal error: %v\n", err)
		os.Exit(1)
	}
}

func run(cfg *config.Config, altScreen bool, logger *slog.Logger) error {
	st, err := store.New(cfg.StoreBackend)
	if err != nil {
		return err
	}
	defer func() {
		if closeErr := st.Close(); closeErr != nil {
			logger.Debug("Failed to close store", "error", closeErr)
		}
	}()

	mgr, err := chat.NewManager(st, cfg.ChatConfig(), chat.WithLogger(logger))
	if err != nil {
		return err
	}
	defer mgr.Close()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	mgr.Mount(ctx)

	opts := []tea.ProgramOption{tea.WithMouseCellMotion(), tea.WithContext(ctx)}
	if altScreen {
		opts = append(opts, tea.WithAltScreen())
	}
	_, err = tea.NewProgram(newModel(mgr), opts...).Run()
	if err != nil && ctx.Err() != nil {
		return nil
	}
	return err
}
