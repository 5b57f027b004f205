package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"

	"license-exam-service/internal/app"
	"license-exam-service/internal/config"
	"license-exam-service/internal/domain"
	"license-exam-service/internal/infra/broker"
	"license-exam-service/internal/infra/memory"
	"license-exam-service/internal/infra/postgres"
	infraredis "license-exam-service/internal/infra/redis"
	"license-exam-service/internal/logger"
	transport "license-exam-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the exam server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd.Context(), *configPath, *port)
		},
	}
}

func runServer(ctx context.Context, configPath, portFlag string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	log := logger.Setup(cfg.Log.Level, cfg.Log.Format)

	if cfg.Postgres.URL != "" {
		if err := runMigrations(ctx, cfg, log); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "8080"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		defer redisClient.Close()
		if err := redisClient.Ping(ctx).Err(); err != nil {
			return err
		}
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)

	var pool *pgxpool.Pool
	if cfg.Postgres.URL != "" {
		pool, err = pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()
	}

	loader, err := questionSetLoader(ctx, cfg, pool)
	if err != nil {
		return err
	}

	setTTL := config.TTLDuration(cfg.QuestionSets.TTL, 10*time.Minute)
	var sets app.QuestionSetRepository
	if redisClient != nil {
		sets = infraredis.NewQuestionSetRepository(redisClient, loader, setTTL, log)
	} else {
		sets = memory.NewQuestionSetRepository(loader, setTTL)
	}

	var store app.SessionRepository
	if redisClient != nil {
		store = infraredis.NewSessionStore(redisClient, redisTTL)
	} else {
		store = memory.NewSessionStore()
	}

	var ledger app.AttemptLedger
	switch {
	case pool != nil:
		ledger = postgres.NewAttemptLedger(pool)
	case redisClient != nil:
		ledger = infraredis.NewAttemptLedger(redisClient)
	default:
		log.Warn().Msg("no attempt store configured, attempt history is kept in memory")
		ledger = memory.NewAttemptLedger()
	}

	tickInterval := config.TTLDuration(cfg.Exam.TickInterval, time.Second)
	if tickInterval <= 0 {
		return fmt.Errorf("%w: exam.tickInterval must be positive, got %s", config.ErrInvalid, tickInterval)
	}
	opts := []app.ServiceOption{
		app.WithServiceLogger(log),
		app.WithTickInterval(tickInterval),
	}
	if cfg.AMQP.URL != "" {
		publisher, err := broker.NewResultPublisher(cfg.AMQP.URL, cfg.AMQP.Exchange, log)
		if err != nil {
			return err
		}
		defer publisher.Close()
		opts = append(opts, app.WithPublisher(publisher))
	}

	service := app.NewExamService(cfg.ExamConfig(), sets, store, ledger, opts...)
	wsHandler := transport.NewWSHandler(service, log)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	mux.HandleFunc("/ws", wsHandler.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Info().Str("port", finalPort).Msg("starting exam service")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error().Err(err).Msg("failed to start server")
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Info().Msg("shutting down server...")
	case <-ctx.Done():
		log.Info().Msg("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

func questionSetLoader(ctx context.Context, cfg config.Config, pool *pgxpool.Pool) (memory.QuestionSetLoader, error) {
	switch {
	case pool != nil:
		return postgres.NewQuestionSetLoader(pool), nil
	case cfg.QuestionSets.Path != "":
		return memory.NewCatalogLoader(ctx, cfg.QuestionSets.Path)
	default:
		return memory.NewStaticQuestionSetLoader(sampleQuestionSets()), nil
	}
}

// sampleQuestionSets provides a minimal demo exam; configure questionSets.path or Postgres in production.
func sampleQuestionSets() map[string]domain.QuestionSet {
	return map[string]domain.QuestionSet{
		"demo": {
			ID:    "demo",
			Title: "Hunting licence (demo)",
			Questions: []domain.Question{
				{
					ID:     "q1",
					Prompt: "What must you do before crossing a fence with a firearm?",
					Options: []domain.Option{
						{ID: "a", Text: "Keep it loaded with the safety on"},
						{ID: "b", Text: "Unload it"},
						{ID: "c", Text: "Hand it to a companion loaded"},
					},
					CorrectOptionID: "b",
					Category:        "Safety",
				},
				{
					ID:     "q2",
					Prompt: "Which document must you carry while hunting?",
					Options: []domain.Option{
						{ID: "a", Text: "A valid hunting licence"},
						{ID: "b", Text: "A fishing permit"},
					},
					CorrectOptionID: "a",
					Category:        "Firearms law",
				},
			},
		},
	}
}
