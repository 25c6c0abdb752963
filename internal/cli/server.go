package cli

import (
	"context"
	"database/sql"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"tryout-service/internal/app"
	"tryout-service/internal/config"
	"tryout-service/internal/domain"
	"tryout-service/internal/infra/memory"
	pgstore "tryout-service/internal/infra/postgres"
	redisinfra "tryout-service/internal/infra/redis"
	transport "tryout-service/internal/transport/http"
)

// NewStartCmd builds the CLI subcommand to start the server.
func NewStartCmd(configPath, port *string) *cobra.Command {
	return &cobra.Command{
		Use:   "start",
		Short: "Start the tryout server",
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

	if cfg.Postgres.URL != "" {
		if err := runMigrationsWithConfig(ctx, cfg); err != nil {
			return err
		}
	}

	finalPort := portFlag
	if finalPort == "" {
		finalPort = cfg.Server.Port
	}
	if finalPort == "" {
		finalPort = "3000"
	}

	var redisClient *redis.Client
	if cfg.Redis.Addr != "" {
		redisClient = redis.NewClient(&redis.Options{
			Addr:     cfg.Redis.Addr,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
	}
	redisTTL := config.TTLDuration(cfg.Redis.TTL, 10*time.Minute)
	cacheTTL := config.TTLDuration(cfg.Quiz.CacheTTL, 10*time.Minute)

	var (
		packages      app.PackageRepository
		sessions      app.SessionRepository
		answers       app.AnswerRepository
		announcements app.AnnouncementRepository
		drills        app.DrillRepository
	)

	if cfg.Postgres.URL != "" {
		sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
		db := bun.NewDB(sqldb, pgdialect.New())
		defer db.Close()

		pool, err := pgxpool.Connect(ctx, cfg.Postgres.URL)
		if err != nil {
			return err
		}
		defer pool.Close()

		store := pgstore.NewStore(db)
		packages = store
		sessions = store
		answers = store
		announcements = store
		drills = pgstore.NewDrillLoader(pool)
	} else {
		mem := memory.NewStore()
		seedDemoContent(ctx, mem)
		packages = mem
		sessions = mem
		answers = mem
		announcements = mem
		drills = mem
	}

	var questions app.QuestionSource
	var invalidator app.QuestionInvalidator
	if redisClient != nil {
		cache := redisinfra.NewQuestionCache(redisClient, packages, cacheTTL)
		questions = cache
		invalidator = cache
		announcements = redisinfra.NewAnnouncementCache(redisClient, announcements, redisTTL)
	} else {
		cache := memory.NewQuestionCache(packages, cacheTTL)
		questions = cache
		invalidator = cache
	}

	auth := transport.NewAuthenticator(cfg.Auth.Secret)
	feed := transport.NewAnnouncementFeed(auth)

	quizService := app.NewQuizService(packages, sessions, answers, questions, drills, app.Options{
		DefaultDurationMinutes: cfg.Quiz.DefaultDurationMinutes,
		AllowMultipleAttempts:  cfg.Quiz.AllowMultipleAttempts,
		Grader:                 domain.GraderFor(cfg.Quiz.EssayGrading),
	}).WithInvalidator(invalidator)
	announcementService := app.NewAnnouncementService(announcements).WithFeed(feed)

	rpc := transport.NewRPCHandler(quizService, announcementService, auth)

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("ok"))
	})
	rpc.Register(mux)
	mux.HandleFunc("/ws/announcements", feed.ServeWS)

	server := &http.Server{
		Addr:         ":" + finalPort,
		Handler:      mux,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
	}

	go func() {
		log.Printf("starting tryout service on :%s", finalPort)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Printf("failed to start server: %v", err)
		}
	}()

	stop := make(chan os.Signal, 1)
	signal.Notify(stop, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-stop:
		log.Println("shutting down server...")
	case <-ctx.Done():
		log.Println("context canceled, shutting down server...")
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}

// seedDemoContent fills the in-memory store so the no-database mode has a
// package to play with.
func seedDemoContent(ctx context.Context, mem *memory.Store) {
	_ = mem.CreateUser(ctx, &domain.User{ID: "demo-student", Name: "Demo Student", Role: domain.RoleUser})

	pkg := &domain.Package{
		Name:    "Demo Tryout",
		Type:    domain.PackageTryout,
		TOStart: time.Now().Add(-time.Hour),
		TOEnd:   time.Now().Add(24 * time.Hour),
	}
	_ = mem.CreatePackage(ctx, pkg)

	subtest := &domain.Subtest{PackageID: pkg.ID, Type: "math", Duration: 30}
	_ = mem.CreateSubtest(ctx, subtest)

	correct := int64(2)
	score := 10
	_ = mem.CreateQuestion(ctx, &domain.Question{
		SubtestID:           subtest.ID,
		Index:               1,
		Content:             "What is 2 + 2?",
		Type:                domain.QuestionChoice,
		Score:               &score,
		CorrectAnswerChoice: &correct,
		Answers: []*domain.Answer{
			{Index: 1, Content: "3"},
			{Index: 2, Content: "4"},
			{Index: 3, Content: "5"},
		},
	})
}
