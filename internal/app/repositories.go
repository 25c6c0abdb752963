package app

import (
	"context"
	"time"

	"tryout-service/internal/domain"
)

// PackageRepository stores the authored exam content tree.
type PackageRepository interface {
	// PackageByID loads a package with its subtests, or domain.ErrPackageNotFound.
	PackageByID(ctx context.Context, id int64) (*domain.Package, error)
	SubtestByID(ctx context.Context, id int64) (*domain.Subtest, error)
	// QuestionsBySubtest returns the subtest's questions ordered by index,
	// each with its answer choices ordered by index.
	QuestionsBySubtest(ctx context.Context, subtestID int64) ([]*domain.Question, error)
	AnswerByID(ctx context.Context, id int64) (*domain.Answer, error)

	CreatePackage(ctx context.Context, pkg *domain.Package) error
	CreateSubtest(ctx context.Context, st *domain.Subtest) error
	// CreateQuestion inserts the question together with its answer choices.
	CreateQuestion(ctx context.Context, q *domain.Question) error
	// DeleteQuestion removes the question and its choices, returning the id
	// of the subtest that owned it.
	DeleteQuestion(ctx context.Context, id int64) (int64, error)
}

// SessionRepository stores quiz attempts.
type SessionRepository interface {
	// CreateSession inserts the attempt, or returns domain.ErrSessionExists
	// when a row for the same (user, subtest, attempt) key is already stored.
	CreateSession(ctx context.Context, sess *domain.QuizSession) error
	// SessionByUserAndSubtest returns the session with the highest attempt
	// number, or domain.ErrSessionNotFound.
	SessionByUserAndSubtest(ctx context.Context, userID string, subtestID int64) (*domain.QuizSession, error)
	// SessionByID loads a session with its subtest and stored answers.
	SessionByID(ctx context.Context, id int64) (*domain.QuizSession, error)
	UpdateEndTime(ctx context.Context, sessionID int64, end time.Time) error
}

// AnswerRepository stores user responses.
type AnswerRepository interface {
	// UpsertAnswer inserts the answer or, when a row already exists for
	// (user, session, question), overwrites its choice and essay fields.
	UpsertAnswer(ctx context.Context, ua *domain.UserAnswer) error
	AnswersBySession(ctx context.Context, sessionID int64) ([]*domain.UserAnswer, error)
}

// AnnouncementRepository stores the single broadcast message.
type AnnouncementRepository interface {
	// Announcement returns the current message, or domain.ErrAnnouncementNotFound
	// when it has never been set.
	Announcement(ctx context.Context) (*domain.Announcement, error)
	SetAnnouncement(ctx context.Context, ann *domain.Announcement) error
}

// UserRepository stores accounts.
type UserRepository interface {
	UserByID(ctx context.Context, id string) (*domain.User, error)
	CreateUser(ctx context.Context, user *domain.User) error
}

// QuestionSource serves question sets for delivery and scoring. Cache
// implementations wrap a PackageRepository.
type QuestionSource interface {
	QuestionsBySubtest(ctx context.Context, subtestID int64) ([]*domain.Question, error)
}

// QuestionInvalidator drops cached question sets after authoring mutations.
type QuestionInvalidator interface {
	InvalidateSubtest(ctx context.Context, subtestID int64) error
}

// DrillRepository serves the drill-package read model.
type DrillRepository interface {
	DrillSubtests(ctx context.Context, packageID int64) ([]*domain.Subtest, error)
}
