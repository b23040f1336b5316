package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/z-chat/backend/internal/config"
	"github.com/zhouzirui/z-chat/backend/internal/handler"
	"github.com/zhouzirui/z-chat/backend/internal/handler/auth"
	"github.com/zhouzirui/z-chat/backend/internal/logger"
	"github.com/zhouzirui/z-chat/backend/internal/repository"
	"github.com/zhouzirui/z-chat/backend/internal/service/account"
	"github.com/zhouzirui/z-chat/backend/internal/service/persist"
	"github.com/zhouzirui/z-chat/backend/internal/service/room"
	"github.com/zhouzirui/z-chat/backend/internal/service/session"
)

const shutdownTimeout = 10 * time.Second

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Load .env file
	envErr := godotenv.Load()

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}

	logger.Setup(cfg.Log.Level, cfg.Log.Format)
	if envErr != nil {
		log.Warn().Err(envErr).Msg("no .env file, continuing with system environment variables only")
	}

	pool, err := repository.Connect(ctx, cfg.Database)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer pool.Close()

	if err := repository.EnsureSchema(ctx, pool); err != nil {
		log.Fatal().Err(err).Msg("failed to prepare database schema")
	}

	roomRepo := repository.NewRoomRepository(pool)
	messageRepo := repository.NewMessageRepository(pool)
	accountRepo := repository.NewAccountRepository(pool)

	if n, err := roomRepo.CloseAllOpen(ctx); err != nil {
		log.Warn().Err(err).Msg("failed to close stale rooms")
	} else if n > 0 {
		log.Info().Int64("rooms", n).Msg("closed rooms left open by a previous run")
	}

	sessions := session.NewRegistry(cfg.Session.Window)
	writer := persist.NewWriter(messageRepo, cfg.Room.MessageQueueSize, persist.DefaultWriteTimeout)
	rooms := room.NewRegistry(roomRepo, writer,
		room.WithIdleTimeout(cfg.Room.IdleTimeout),
		room.WithBuffers(cfg.Room.CommandBuffer, cfg.Room.BroadcastBuffer),
	)
	accounts := account.NewService(accountRepo)

	router := handler.NewRouter(handler.Dependencies{
		Accounts:  accounts,
		Sessions:  sessions,
		Rooms:     rooms,
		Directory: roomRepo,
		Cookie: auth.CookieConfig{
			Name:   cfg.Session.CookieName,
			Secure: cfg.Session.CookieSecure,
		},
		StaticDir: cfg.Server.StaticDir,
	})

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	// The writer outlives the rooms so their last messages are flushed.
	writerCtx, stopWriter := context.WithCancel(context.Background())
	defer stopWriter()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return sessions.Run(gctx)
	})
	g.Go(func() error {
		return writer.Run(writerCtx)
	})
	g.Go(func() error {
		defer stopWriter()

		log.Info().Str("addr", srv.Addr).Bool("tls", cfg.Server.TLSEnabled()).Msg("chat backend listening")
		serveErr := runServer(gctx, srv, cfg.Server)

		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		if err := rooms.Shutdown(shutdownCtx); err != nil {
			log.Error().Err(err).Msg("room registry shutdown incomplete")
		}
		return serveErr
	})

	if err := g.Wait(); err != nil {
		log.Fatal().Err(err).Msg("server error")
	}
	log.Info().Msg("chat backend stopped")
}

func runServer(ctx context.Context, srv *http.Server, serverCfg config.ServerConfig) error {
	errCh := make(chan error, 1)
	go func() {
		if serverCfg.TLSEnabled() {
			errCh <- srv.ListenAndServeTLS(serverCfg.TLSCertFile, serverCfg.TLSKeyFile)
			return
		}
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		_ = srv.Shutdown(shutdownCtx)
		err := <-errCh
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
}
