package cli

import (
	"context"
	"database/sql"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/pgdialect"
	"github.com/uptrace/bun/driver/pgdriver"

	"tryout-service/internal/config"
	"tryout-service/internal/domain"
	pgstore "tryout-service/internal/infra/postgres"
	transport "tryout-service/internal/transport/http"
)

// NewSeedCmd inserts demo accounts and a sample package, and prints tokens
// for trying the RPC surface by hand.
func NewSeedCmd(configPath *string) *cobra.Command {
	return &cobra.Command{
		Use:   "seed",
		Short: "Seed demo users and a sample tryout package",
		RunE: func(cmd *cobra.Command, args []string) error {
			return runSeed(cmd.Context(), *configPath)
		},
	}
}

func runSeed(ctx context.Context, configPath string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return err
	}
	if cfg.Postgres.URL == "" {
		return fmt.Errorf("postgres url not configured")
	}
	if err := runMigrationsWithConfig(ctx, cfg); err != nil {
		return err
	}

	sqldb := sql.OpenDB(pgdriver.NewConnector(pgdriver.WithDSN(cfg.Postgres.URL)))
	db := bun.NewDB(sqldb, pgdialect.New())
	defer db.Close()

	store := pgstore.NewStore(db)

	student := &domain.User{ID: uuid.NewString(), Name: "Seed Student", Role: domain.RoleUser}
	admin := &domain.User{ID: uuid.NewString(), Name: "Seed Admin", Role: domain.RoleAdmin}
	for _, user := range []*domain.User{student, admin} {
		if err := store.CreateUser(ctx, user); err != nil {
			return err
		}
	}

	pkg := &domain.Package{
		Name:    "Seed Tryout",
		Type:    domain.PackageTryout,
		TOStart: time.Now().Add(-time.Hour),
		TOEnd:   time.Now().Add(7 * 24 * time.Hour),
	}
	if err := store.CreatePackage(ctx, pkg); err != nil {
		return err
	}

	subtest := &domain.Subtest{PackageID: pkg.ID, Type: "math", Duration: 30}
	if err := store.CreateSubtest(ctx, subtest); err != nil {
		return err
	}

	correct := int64(2)
	score := 10
	explanation := "Two plus two makes four."
	question := &domain.Question{
		SubtestID:           subtest.ID,
		Index:               1,
		Content:             "What is 2 + 2?",
		Type:                domain.QuestionChoice,
		Score:               &score,
		Explanation:         &explanation,
		CorrectAnswerChoice: &correct,
		Answers: []*domain.Answer{
			{Index: 1, Content: "3"},
			{Index: 2, Content: "4"},
			{Index: 3, Content: "5"},
		},
	}
	if err := store.CreateQuestion(ctx, question); err != nil {
		return err
	}

	auth := transport.NewAuthenticator(cfg.Auth.Secret)
	tokenTTL := config.TTLDuration(cfg.Auth.TokenTTL, 24*time.Hour)
	for _, user := range []*domain.User{student, admin} {
		token, err := auth.IssueToken(domain.Actor{ID: user.ID, Role: user.Role}, tokenTTL)
		if err != nil {
			return err
		}
		log.Printf("%s (%s): %s", user.Name, user.Role, token)
	}

	log.Printf("seeded package %d with subtest %d", pkg.ID, subtest.ID)
	return nil
}
