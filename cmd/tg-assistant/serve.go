package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	httpadapter "github.com/PabloGalante/tg-assistant/internal/adapters/http"
	"github.com/PabloGalante/tg-assistant/internal/adapters/telegram"
	"github.com/PabloGalante/tg-assistant/internal/app/assistant"
	"github.com/PabloGalante/tg-assistant/internal/app/bot"
	"github.com/PabloGalante/tg-assistant/internal/app/conversation"
	"github.com/PabloGalante/tg-assistant/internal/app/tools"
	"github.com/PabloGalante/tg-assistant/internal/config"
	"github.com/PabloGalante/tg-assistant/internal/observability"
)

const shutdownTimeout = 10 * time.Second

func newServeCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the Telegram bot (and the HTTP API when enabled)",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if err := cfg.Validate(); err != nil {
				return err
			}
			if cfg.Telegram.Mode == config.TelegramWebhook && cfg.Telegram.WebhookURL == "" {
				return errors.New("telegram.webhook_url is required in webhook mode")
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
}

func serve(ctx context.Context, cfg *config.Config) error {
	log := observability.Logger()

	toolset, err := tools.Parse(cfg.AssistantTools)
	if err != nil {
		return err
	}

	client, err := newAssistantClient(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := openStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	poller := assistant.NewPoller(client, cfg.Poll.MaxAttempts, cfg.Poll.Interval)
	registry := conversation.NewRegistry(client, store)
	svc := conversation.NewService(registry, conversation.NewOrchestrator(client, poller, toolset))

	tg := telegram.NewClient(nil, cfg.Telegram.APIBase, cfg.Telegram.Token)
	me, err := tg.GetMe(ctx)
	if err != nil {
		return err
	}
	handler := bot.NewHandler(svc, bot.WithUsername(me.Username))
	log.Info("telegram bot ready",
		"username", me.Username,
		"mode", string(cfg.Telegram.Mode),
		"tools", tools.Names(toolset),
		"poll_max_attempts", cfg.Poll.MaxAttempts,
		"poll_interval", cfg.Poll.Interval.String(),
	)

	// Questions already being answered finish after a shutdown signal.
	dispatcher := telegram.NewDispatcher(context.WithoutCancel(ctx), handler, tg)

	if cfg.Telegram.Mode == config.TelegramWebhook {
		if err := tg.SetWebhook(ctx, cfg.Telegram.WebhookURL, cfg.Telegram.WebhookSecret); err != nil {
			return fmt.Errorf("telegram setWebhook: %w", err)
		}
		log.Info("telegram webhook registered", "url", cfg.Telegram.WebhookURL)
	}

	g, gctx := errgroup.WithContext(ctx)

	if cfg.HTTP.Enabled {
		opts := httpadapter.Options{APIToken: cfg.HTTP.APIToken}
		if opts.APIToken == "" {
			log.Info("http api disabled, set http.api_token to enable /v1")
		}
		if cfg.Telegram.Mode == config.TelegramWebhook {
			opts.Updates = dispatcher
			opts.WebhookSecret = cfg.Telegram.WebhookSecret
		}
		e := httpadapter.NewServer(svc, opts)

		g.Go(func() error {
			log.Info("http server listening", "addr", cfg.HTTP.Addr)
			if err := e.Start(cfg.HTTP.Addr); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("http server: %w", err)
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			return e.Shutdown(shutdownCtx)
		})
	}

	if cfg.Telegram.Mode == config.TelegramWebhook {
		g.Go(func() error {
			<-gctx.Done()
			dispatcher.Wait()
			return nil
		})
	} else {
		runner := telegram.NewRunner(tg, dispatcher, cfg.Telegram.PollTimeout)
		g.Go(func() error {
			return runner.Run(gctx)
		})
	}

	err = g.Wait()
	log.Info("shutdown complete")
	return err
}
