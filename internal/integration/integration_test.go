package integration

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v4/pgxpool"
	goredis "github.com/redis/go-redis/v9"
	tc "github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"
	"github.com/uptrace/bun/migrate"

	"tryout-service/internal/app"
	"tryout-service/internal/domain"
	pgstore "tryout-service/internal/infra/postgres"
	pgmigrations "tryout-service/internal/infra/postgres/migrations"
	infraredis "tryout-service/internal/infra/redis"
)

func TestTryoutFlowEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()
	redisURL, redisCleanup := startRedis(t, ctx)
	defer redisCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	store := pgstore.NewStore(db)

	base := time.Now().UTC().Truncate(time.Second)
	windowEnd := base.Add(30 * time.Minute)
	subtest := seedTryout(t, ctx, store, base, windowEnd)

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	drills := pgstore.NewDrillLoader(pool)

	redisClient, err := redisClientFromURL(redisURL)
	if err != nil {
		t.Fatalf("redis client: %v", err)
	}
	questions := infraredis.NewQuestionCache(redisClient, store, 5*time.Minute)

	now := base
	service := app.NewQuizService(store, store, store, questions, drills, app.Options{}).
		WithClock(func() time.Time { return now })

	actor := domain.Actor{ID: "student-1", Role: domain.RoleUser}
	session, err := service.CreateSession(ctx, actor.ID, subtest.PackageID, subtest.ID, 0)
	if err != nil {
		t.Fatalf("create session: %v", err)
	}
	if session.Duration != 30 {
		t.Fatalf("expected the subtest duration, got %d", session.Duration)
	}

	// While the window is open the delivered questions carry no answer key.
	delivered, err := service.QuestionsBySubtest(ctx, subtest.ID, actor, "")
	if err != nil {
		t.Fatalf("questions: %v", err)
	}
	if len(delivered) != 2 {
		t.Fatalf("expected 2 questions, got %d", len(delivered))
	}
	for _, q := range delivered {
		if q.CorrectAnswerChoice != nil || q.Score != nil || q.Explanation != nil {
			t.Fatalf("expected redacted question, got %+v", q)
		}
	}

	choice := int64(1)
	if _, err := service.SaveAnswer(ctx, actor.ID, subtest.PackageID, session.ID, delivered[0].ID, &choice, nil); err != nil {
		t.Fatalf("save choice: %v", err)
	}
	essay := "  JAKARTA "
	if _, err := service.SaveAnswer(ctx, actor.ID, subtest.PackageID, session.ID, delivered[1].ID, nil, &essay); err != nil {
		t.Fatalf("save essay: %v", err)
	}

	scored, err := service.PackageScores(ctx, subtest.PackageID, actor)
	if err != nil {
		t.Fatalf("scores: %v", err)
	}
	if scored.Subtests[0].Score != nil {
		t.Fatalf("expected no score while the window is open, got %d", *scored.Subtests[0].Score)
	}
	if scored.Subtests[0].QuizSession == nil {
		t.Fatalf("expected the attempt deadline while the window is open")
	}

	// Advance past the window end: scoring kicks in and questions are served
	// intact for review.
	now = windowEnd.Add(time.Minute)

	scored, err = service.PackageScores(ctx, subtest.PackageID, actor)
	if err != nil {
		t.Fatalf("scores after close: %v", err)
	}
	if scored.Subtests[0].Score == nil || *scored.Subtests[0].Score != 15 {
		t.Fatalf("expected 15 points, got %+v", scored.Subtests[0].Score)
	}
	if scored.TotalScore != 15 {
		t.Fatalf("expected total 15, got %d", scored.TotalScore)
	}

	revealed, err := service.QuestionsBySubtest(ctx, subtest.ID, actor, "")
	if err != nil {
		t.Fatalf("questions after close: %v", err)
	}
	if revealed[0].CorrectAnswerChoice == nil || revealed[0].Score == nil || *revealed[0].Score != 10 {
		t.Fatalf("expected intact question after close, got %+v", revealed[0])
	}
}

func TestDrillSubtestsEndToEnd(t *testing.T) {
	ctx := context.Background()
	requireDocker(t)

	pgURL, pgCleanup := startPostgres(t, ctx)
	defer pgCleanup()

	db := openBun(t, ctx, pgURL)
	defer db.Close()
	store := pgstore.NewStore(db)

	base := time.Now().UTC()
	drill := &domain.Package{Name: "Math drills", Type: domain.PackageDrill, TOStart: base, TOEnd: base.Add(time.Hour)}
	if err := store.CreatePackage(ctx, drill); err != nil {
		t.Fatalf("create drill package: %v", err)
	}
	st := &domain.Subtest{PackageID: drill.ID, Type: "algebra", Duration: 15}
	if err := store.CreateSubtest(ctx, st); err != nil {
		t.Fatalf("create subtest: %v", err)
	}
	tryout := &domain.Package{Name: "Not a drill", Type: domain.PackageTryout, TOStart: base, TOEnd: base.Add(time.Hour)}
	if err := store.CreatePackage(ctx, tryout); err != nil {
		t.Fatalf("create tryout package: %v", err)
	}

	pool, err := pgxpool.Connect(ctx, pgURL)
	if err != nil {
		t.Fatalf("connect pg: %v", err)
	}
	defer pool.Close()
	loader := pgstore.NewDrillLoader(pool)

	subtests, err := loader.DrillSubtests(ctx, drill.ID)
	if err != nil {
		t.Fatalf("drill subtests: %v", err)
	}
	if len(subtests) != 1 || subtests[0].Type != "algebra" {
		t.Fatalf("unexpected drill subtests %+v", subtests)
	}

	subtests, err = loader.DrillSubtests(ctx, tryout.ID)
	if err != nil {
		t.Fatalf("drill subtests on tryout: %v", err)
	}
	if len(subtests) != 0 {
		t.Fatalf("expected no subtests for a non-drill package, got %d", len(subtests))
	}
}

func seedTryout(t *testing.T, ctx context.Context, store *pgstore.Store, start, end time.Time) *domain.Subtest {
	t.Helper()

	pkg := &domain.Package{Name: "UTBK March", Type: domain.PackageTryout, TOStart: start.Add(-time.Hour), TOEnd: end}
	if err := store.CreatePackage(ctx, pkg); err != nil {
		t.Fatalf("create package: %v", err)
	}
	st := &domain.Subtest{PackageID: pkg.ID, Type: "geography", Duration: 30}
	if err := store.CreateSubtest(ctx, st); err != nil {
		t.Fatalf("create subtest: %v", err)
	}

	correct := int64(1)
	choiceScore := 10
	explanation := "Paris is the capital of France."
	choiceQ := &domain.Question{
		SubtestID:           st.ID,
		Index:               1,
		Content:             "Capital of France?",
		Type:                domain.QuestionChoice,
		Score:               &choiceScore,
		Explanation:         &explanation,
		CorrectAnswerChoice: &correct,
		Answers: []*domain.Answer{
			{Index: 1, Content: "Paris"},
			{Index: 2, Content: "Lyon"},
		},
	}
	if err := store.CreateQuestion(ctx, choiceQ); err != nil {
		t.Fatalf("create choice question: %v", err)
	}

	essayScore := 5
	essayQ := &domain.Question{
		SubtestID: st.ID,
		Index:     2,
		Content:   "Capital of Indonesia?",
		Type:      domain.QuestionEssay,
		Score:     &essayScore,
		Answers:   []*domain.Answer{{Index: 1, Content: "Jakarta"}},
	}
	if err := store.CreateQuestion(ctx, essayQ); err != nil {
		t.Fatalf("create essay question: %v", err)
	}
	return st
}

func openBun(t *testing.T, ctx context.Context, dsn string) *bun.DB {
	t.Helper()
	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(dsn)))
	db := bun.NewDB(sqldb, pgdialect.New())

	migrator := migrate.NewMigrator(db, pgmigrations.Migrations)
	if err := migrator.Init(ctx); err != nil {
		t.Fatalf("migrator init: %v", err)
	}
	if _, err := migrator.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func startPostgres(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "postgres:15-alpine",
		Env:          map[string]string{"POSTGRES_USER": "tryout", "POSTGRES_PASSWORD": "tryoutpass", "POSTGRES_DB": "tryoutdb"},
		ExposedPorts: []string{"5432/tcp"},
		WaitingFor:   wait.ForListeningPort("5432/tcp").WithStartupTimeout(60 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start postgres: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("host: %v", err)
	}
	port, err := container.MappedPort(ctx, "5432/tcp")
	if err != nil {
		t.Fatalf("port: %v", err)
	}
	dsn := fmt.Sprintf("postgres://tryout:tryoutpass@%s:%s/tryoutdb?sslmode=disable", host, port.Port())
	return dsn, func() {
		_ = container.Terminate(ctx)
	}
}

func startRedis(t *testing.T, ctx context.Context) (string, func()) {
	t.Helper()
	req := tc.ContainerRequest{
		Image:        "redis:7-alpine",
		ExposedPorts: []string{"6379/tcp"},
		WaitingFor:   wait.ForListeningPort("6379/tcp").WithStartupTimeout(30 * time.Second),
	}
	container, err := tc.GenericContainer(ctx, tc.GenericContainerRequest{
		ContainerRequest: req,
		Started:          true,
	})
	if err != nil {
		if strings.Contains(err.Error(), "Cannot connect to the Docker daemon") {
			t.Skipf("docker not available: %v", err)
		}
		t.Fatalf("start redis: %v", err)
	}
	host, err := container.Host(ctx)
	if err != nil {
		t.Fatalf("redis host: %v", err)
	}
	port, err := container.MappedPort(ctx, "6379/tcp")
	if err != nil {
		t.Fatalf("redis port: %v", err)
	}
	url := fmt.Sprintf("redis://%s:%s", host, port.Port())
	return url, func() {
		_ = container.Terminate(ctx)
	}
}

func redisClientFromURL(url string) (*goredis.Client, error) {
	opts, err := goredis.ParseURL(url)
	if err != nil {
		return nil, err
	}
	return goredis.NewClient(&goredis.Options{
		Addr:     opts.Addr,
		Password: opts.Password,
		DB:       opts.DB,
	}), nil
}

func requireDocker(t *testing.T) {
	t.Helper()
	if _, err := tc.NewDockerProvider(); err != nil {
		t.Skipf("docker not available: %v", err)
	}
}
