// Command progressctl is the operator CLI for inspecting tahfidz progress and managing the
// warning ladder outside the HTTP API.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/noah-isme/tahfidz-api/internal/app"
	"github.com/noah-isme/tahfidz-api/internal/models"
	"github.com/noah-isme/tahfidz-api/pkg/config"
	"github.com/noah-isme/tahfidz-api/pkg/logger"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	root := newRootCmd(openBackend)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

// openBackend loads configuration and wires the application the same way the API does.
func openBackend(ctx context.Context, actor *models.JWTClaims) (backend, func(), error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("load config: %w", err)
	}

	log, err := logger.New(cfg)
	if err != nil {
		return nil, nil, fmt.Errorf("init logger: %w", err)
	}

	application, err := app.New(cfg, log.Named("progressctl"))
	if err != nil {
		_ = log.Sync()
		return nil, nil, err
	}
	application.Start(ctx)

	cleanup := func() {
		application.Close()
		_ = log.Sync()
	}
	log.Debug("operator session opened", zap.String("actor", actor.UserID))
	return &appBackend{app: application, actor: actor}, cleanup, nil
}

func writeFile(path string, payload []byte) error {
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write %s: %w", path, err)
	}
	return nil
}
