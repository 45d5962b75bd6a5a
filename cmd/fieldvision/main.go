// Command fieldvision runs the FieldVision server: the live voice/video
// assistant WebSocket, the work-order API, and audit reporting.
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"

	"github.com/SunnyYadav16/field-vision/internal/dotenv"
	"github.com/SunnyYadav16/field-vision/pkg/audit"
	"github.com/SunnyYadav16/field-vision/pkg/auth"
	"github.com/SunnyYadav16/field-vision/pkg/config"
	"github.com/SunnyYadav16/field-vision/pkg/live/bridge"
	"github.com/SunnyYadav16/field-vision/pkg/live/session"
	"github.com/SunnyYadav16/field-vision/pkg/live/state"
	"github.com/SunnyYadav16/field-vision/pkg/live/tools"
	"github.com/SunnyYadav16/field-vision/pkg/manuals"
	"github.com/SunnyYadav16/field-vision/pkg/server"
	"github.com/SunnyYadav16/field-vision/pkg/workorders"
)

const shutdownGracePeriod = 10 * time.Second

func run(ctx context.Context, logger *slog.Logger) error {
	cfg, err := config.LoadFromEnv()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	// One sqlite file backs both the work-order store and the audit trail.
	db, err := gorm.Open(sqlite.Open(cfg.DatabasePath), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return fmt.Errorf("open database %q: %w", cfg.DatabasePath, err)
	}
	orders, err := workorders.NewStore(db)
	if err != nil {
		return err
	}
	trail, err := audit.NewTrail(db)
	if err != nil {
		return err
	}

	directory, err := auth.LoadDirectory(cfg.UsersPath)
	if err != nil {
		return fmt.Errorf("load user directory: %w", err)
	}
	tokens := auth.NewTokenIssuer(cfg.JWTSecret, cfg.TokenTTL)

	manual := manuals.NewLoader(logger).Load(cfg.ManualPath)
	if err := manuals.Validate(manual); err != nil {
		return fmt.Errorf("manual %q: %w", cfg.ManualPath, err)
	}

	dialer, err := session.NewGenAIDialer(ctx, cfg.GeminiAPIKey)
	if err != nil {
		return err
	}

	evidence := tools.NewEvidenceStore(cfg.EvidenceDir, "/static/evidence")
	registry := tools.NewRegistry(logger,
		tools.NewSafetyEventTool(logger, trail, evidence),
		tools.NewWorkOrderTool(logger),
		tools.NewBadgeTool(logger, directory, orders),
	)

	sessions := state.NewRegistry()
	b := bridge.New(logger, sessions, registry, dialer, trail, bridge.Options{
		Model:              cfg.GeminiModel,
		ManualContext:      manual,
		MaxAudioChunkBytes: cfg.MaxAudioChunkBytes,
		MaxVideoFrameBytes: cfg.MaxVideoFrameBytes,
		MaxTextChars:       cfg.MaxTextChars,
		TurnIdleTimeout:    cfg.TurnIdleTimeout,
		HeartbeatInterval:  cfg.HeartbeatInterval,
		PingInterval:       cfg.WSPingInterval,
		WriteTimeout:       cfg.WSWriteTimeout,
		QueueSize:          cfg.OutboundQueueSize,
	})

	srv := server.New(logger, directory, tokens, trail, orders, b, cfg.EvidenceDir)
	httpSrv := &http.Server{
		Addr:              cfg.Addr,
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("starting fieldvision", "addr", cfg.Addr, "model", cfg.GeminiModel, "db", cfg.DatabasePath)

	listenErrCh := make(chan error, 1)
	go func() {
		err := httpSrv.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			listenErrCh <- err
			return
		}
		listenErrCh <- nil
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)

	select {
	case err := <-listenErrCh:
		if err != nil {
			return fmt.Errorf("serve: %w", err)
		}
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case sig := <-sigCh:
		logger.Info("shutdown signal received", "signal", sig.String())
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownGracePeriod)
	defer cancel()
	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	if err := <-listenErrCh; err != nil {
		return fmt.Errorf("serve: %w", err)
	}

	logger.Info("fieldvision stopped")
	return nil
}

func runMain(ctx context.Context, stderr io.Writer) int {
	if stderr == nil {
		stderr = os.Stderr
	}
	logger := slog.New(slog.NewTextHandler(stderr, nil))

	if err := dotenv.Load(".env"); err != nil {
		fmt.Fprintf(stderr, "fieldvision: %v\n", err)
		return 1
	}
	if err := run(ctx, logger); err != nil {
		fmt.Fprintf(stderr, "fieldvision: %v\n", err)
		return 1
	}
	return 0
}

func main() {
	os.Exit(runMain(context.Background(), os.Stderr))
}
