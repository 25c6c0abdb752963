package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/uptrace/bun"

	"tryout-service/internal/domain"
)

const announcementRowID = 1

// Store implements the service repositories on top of Postgres via bun.
type Store struct {
	db *bun.DB
}

func NewStore(db *bun.DB) *Store {
	return &Store{db: db}
}

func (s *Store) PackageByID(ctx context.Context, id int64) (*domain.Package, error) {
	pkg := new(domain.Package)
	err := s.db.NewSelect().
		Model(pkg).
		Relation("Subtests", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("st.id ASC")
		}).
		Where("p.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrPackageNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select package: %w", err)
	}
	return pkg, nil
}

func (s *Store) SubtestByID(ctx context.Context, id int64) (*domain.Subtest, error) {
	subtest := new(domain.Subtest)
	err := s.db.NewSelect().
		Model(subtest).
		Where("st.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSubtestNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select subtest: %w", err)
	}
	return subtest, nil
}

func (s *Store) QuestionsBySubtest(ctx context.Context, subtestID int64) ([]*domain.Question, error) {
	var questions []*domain.Question
	err := s.db.NewSelect().
		Model(&questions).
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("a.idx ASC")
		}).
		Where("q.subtest_id = ?", subtestID).
		Order("q.idx ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select questions: %w", err)
	}
	return questions, nil
}

func (s *Store) AnswerByID(ctx context.Context, id int64) (*domain.Answer, error) {
	answer := new(domain.Answer)
	err := s.db.NewSelect().
		Model(answer).
		Where("a.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAnswerNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select answer: %w", err)
	}
	return answer, nil
}

func (s *Store) CreatePackage(ctx context.Context, pkg *domain.Package) error {
	if _, err := s.db.NewInsert().Model(pkg).Exec(ctx); err != nil {
		return fmt.Errorf("insert package: %w", err)
	}
	return nil
}

func (s *Store) CreateSubtest(ctx context.Context, st *domain.Subtest) error {
	if _, err := s.db.NewInsert().Model(st).Exec(ctx); err != nil {
		return fmt.Errorf("insert subtest: %w", err)
	}
	return nil
}

func (s *Store) CreateQuestion(ctx context.Context, q *domain.Question) error {
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		if _, err := tx.NewInsert().Model(q).Exec(ctx); err != nil {
			return fmt.Errorf("insert question: %w", err)
		}
		if len(q.Answers) == 0 {
			return nil
		}
		for _, a := range q.Answers {
			a.QuestionID = q.ID
		}
		if _, err := tx.NewInsert().Model(&q.Answers).Exec(ctx); err != nil {
			return fmt.Errorf("insert answers: %w", err)
		}
		return nil
	})
}

func (s *Store) DeleteQuestion(ctx context.Context, id int64) (int64, error) {
	var subtestID int64
	err := s.db.NewDelete().
		Model((*domain.Question)(nil)).
		Where("id = ?", id).
		Returning("subtest_id").
		Scan(ctx, &subtestID)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, domain.ErrQuestionNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("delete question: %w", err)
	}
	return subtestID, nil
}

func (s *Store) CreateSession(ctx context.Context, sess *domain.QuizSession) error {
	res, err := s.db.NewInsert().
		Model(sess).
		On("CONFLICT (user_id, subtest_id, attempt) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("insert session: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrSessionExists
	}
	return nil
}

func (s *Store) SessionByUserAndSubtest(ctx context.Context, userID string, subtestID int64) (*domain.QuizSession, error) {
	sess := new(domain.QuizSession)
	err := s.db.NewSelect().
		Model(sess).
		Where("qs.user_id = ?", userID).
		Where("qs.subtest_id = ?", subtestID).
		Order("qs.attempt DESC").
		Limit(1).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return sess, nil
}

func (s *Store) SessionByID(ctx context.Context, id int64) (*domain.QuizSession, error) {
	sess := new(domain.QuizSession)
	err := s.db.NewSelect().
		Model(sess).
		Relation("Subtest").
		Relation("Answers", func(q *bun.SelectQuery) *bun.SelectQuery {
			return q.Order("ua.id ASC")
		}).
		Where("qs.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select session: %w", err)
	}
	return sess, nil
}

func (s *Store) UpdateEndTime(ctx context.Context, sessionID int64, end time.Time) error {
	res, err := s.db.NewUpdate().
		Model((*domain.QuizSession)(nil)).
		Set("end_time = ?", end).
		Where("id = ?", sessionID).
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("update end time: %w", err)
	}
	if affected, err := res.RowsAffected(); err == nil && affected == 0 {
		return domain.ErrSessionNotFound
	}
	return nil
}

func (s *Store) UpsertAnswer(ctx context.Context, ua *domain.UserAnswer) error {
	_, err := s.db.NewInsert().
		Model(ua).
		On("CONFLICT (user_id, quiz_session_id, question_id) DO UPDATE").
		Set("answer_choice = EXCLUDED.answer_choice").
		Set("essay_answer = EXCLUDED.essay_answer").
		Returning("id").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert answer: %w", err)
	}
	return nil
}

func (s *Store) AnswersBySession(ctx context.Context, sessionID int64) ([]*domain.UserAnswer, error) {
	var answers []*domain.UserAnswer
	err := s.db.NewSelect().
		Model(&answers).
		Where("ua.quiz_session_id = ?", sessionID).
		Order("ua.id ASC").
		Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("select answers: %w", err)
	}
	return answers, nil
}

func (s *Store) Announcement(ctx context.Context) (*domain.Announcement, error) {
	ann := new(domain.Announcement)
	err := s.db.NewSelect().
		Model(ann).
		Where("an.id = ?", announcementRowID).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrAnnouncementNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select announcement: %w", err)
	}
	return ann, nil
}

func (s *Store) SetAnnouncement(ctx context.Context, ann *domain.Announcement) error {
	ann.ID = announcementRowID
	_, err := s.db.NewInsert().
		Model(ann).
		On("CONFLICT (id) DO UPDATE").
		Set("title = EXCLUDED.title").
		Set("content = EXCLUDED.content").
		Set("url = EXCLUDED.url").
		Set("updated_at = EXCLUDED.updated_at").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert announcement: %w", err)
	}
	return nil
}

func (s *Store) UserByID(ctx context.Context, id string) (*domain.User, error) {
	user := new(domain.User)
	err := s.db.NewSelect().
		Model(user).
		Where("u.id = ?", id).
		Scan(ctx)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, domain.ErrUserNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("select user: %w", err)
	}
	return user, nil
}

func (s *Store) CreateUser(ctx context.Context, user *domain.User) error {
	_, err := s.db.NewInsert().
		Model(user).
		On("CONFLICT (id) DO UPDATE").
		Set("name = EXCLUDED.name").
		Set("role = EXCLUDED.role").
		Exec(ctx)
	if err != nil {
		return fmt.Errorf("upsert user: %w", err)
	}
	return nil
}
