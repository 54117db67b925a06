package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/mattn/go-isatty"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/zhouzirui/gemini-chat/backend/internal/config"
	"github.com/zhouzirui/gemini-chat/backend/internal/handler"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/ai"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/chat"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/events"
	"github.com/zhouzirui/gemini-chat/backend/internal/service/tokens"
)

type options struct {
	addr     string
	envFile  string
	logLevel string
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	opts := &options{}

	cmd := &cobra.Command{
		Use:           "chat-api",
		Short:         "Serve a single chat session backed by a text-generation API",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			if err := run(ctx, opts); err != nil {
				log.Error().Err(err).Msg("server stopped with error")
				return err
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.addr, "addr", "", "listen address, overrides PORT")
	cmd.Flags().StringVar(&opts.envFile, "env-file", ".env", "dotenv file to load before reading the environment")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "log level, overrides LOG_LEVEL")

	return cmd
}

func run(ctx context.Context, opts *options) error {
	// Load .env file
	if err := godotenv.Load(opts.envFile); err != nil {
		log.Debug().Err(err).Str("file", opts.envFile).Msg("no dotenv file loaded, using process environment only")
	}

	cfg, err := config.Load()
	if err != nil {
		return errors.Wrap(err, "failed to load configuration")
	}
	if opts.addr != "" {
		if cfg.Server.Addr, err = config.NormalizeAddr(opts.addr); err != nil {
			return err
		}
	}
	if opts.logLevel != "" {
		cfg.Log.Level = opts.logLevel
	}
	initLogger(cfg.Log)

	aiService, err := ai.NewService(ctx, cfg.AI)
	if err != nil {
		return errors.Wrap(err, "failed to initialize AI service, check GEMINI_API_KEY / AI_PROVIDER")
	}
	defer func() {
		if err := aiService.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close AI client")
		}
	}()
	log.Info().Str("ai", cfg.AI.String()).Msg("AI service initialized")

	bus := events.NewBus(events.NewWatermillLogger(log.Logger))
	defer func() {
		if err := bus.Close(); err != nil {
			log.Warn().Err(err).Msg("failed to close event bus")
		}
	}()

	sessionOpts := []chat.Option{
		chat.WithPublisher(bus),
		chat.WithGreeting(cfg.Session.Greeting),
	}
	if counter, err := tokens.NewCounter(); err != nil {
		log.Warn().Err(err).Msg("token counting disabled")
	} else {
		sessionOpts = append(sessionOpts, chat.WithTokenCounter(counter))
	}
	session := chat.NewController(aiService, sessionOpts...)

	router := handler.NewRouter(session, bus)
	return serve(ctx, cfg.Server, router)
}

func serve(ctx context.Context, serverCfg config.ServerConfig, router http.Handler) error {
	srv := &http.Server{
		Addr:              serverCfg.Addr,
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		IdleTimeout:       120 * time.Second,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		log.Info().Str("addr", srv.Addr).Msg("chat backend listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		log.Info().Msg("shutting down")
		return srv.Shutdown(shutdownCtx)
	})

	return g.Wait()
}

func initLogger(cfg config.LogConfig) {
	if isatty.IsTerminal(os.Stderr.Fd()) {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
	}

	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil || cfg.Level == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
}
