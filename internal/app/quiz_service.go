package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryout-service/internal/domain"
)

// Options tune session and grading behavior.
type Options struct {
	// DefaultDurationMinutes is the last-resort session length when neither
	// the request nor the subtest provides one.
	DefaultDurationMinutes int
	// AllowMultipleAttempts permits more than one session per (user, subtest).
	// When false (the default), creating a second session returns the first.
	AllowMultipleAttempts bool
	// Grader matches essay answers against the canonical key text.
	Grader domain.Grader
}

// QuizService contains the tryout use cases: session lifecycle, question
// delivery with answer-key redaction, answer upsert, and scoring.
type QuizService struct {
	packages   PackageRepository
	sessions   SessionRepository
	answers    AnswerRepository
	questions  QuestionSource
	drills     DrillRepository
	invalidate QuestionInvalidator
	opts       Options
	now        func() time.Time
}

func NewQuizService(packages PackageRepository, sessions SessionRepository, answers AnswerRepository, questions QuestionSource, drills DrillRepository, opts Options) *QuizService {
	if opts.DefaultDurationMinutes <= 0 {
		opts.DefaultDurationMinutes = 60
	}
	if opts.Grader == nil {
		opts.Grader = domain.FoldGrader{}
	}
	return &QuizService{
		packages:  packages,
		sessions:  sessions,
		answers:   answers,
		questions: questions,
		drills:    drills,
		opts:      opts,
		now:       time.Now,
	}
}

// WithInvalidator wires a cache invalidation hook for authoring mutations.
func (s *QuizService) WithInvalidator(inv QuestionInvalidator) *QuizService {
	s.invalidate = inv
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *QuizService) WithClock(now func() time.Time) *QuizService {
	s.now = now
	return s
}

// CreateSession starts an attempt with endTime = now + duration. A zero
// duration falls back to the subtest's configured duration, then to the
// service default. Unless multiple attempts are allowed, an existing session
// for the same (user, subtest) is returned instead of a duplicate; the
// storage key (user, subtest, attempt) is unique, so a concurrent create
// resolves to the stored row rather than a second session.
func (s *QuizService) CreateSession(ctx context.Context, userID string, packageID, subtestID int64, durationMinutes int) (*domain.QuizSession, error) {
	latest, err := s.sessions.SessionByUserAndSubtest(ctx, userID, subtestID)
	if err != nil && !errors.Is(err, domain.ErrSessionNotFound) {
		return nil, fmt.Errorf("lookup existing session: %w", err)
	}
	if latest != nil && !s.opts.AllowMultipleAttempts {
		return latest, nil
	}

	if durationMinutes <= 0 {
		subtest, err := s.packages.SubtestByID(ctx, subtestID)
		if err != nil {
			return nil, fmt.Errorf("lookup subtest: %w", err)
		}
		durationMinutes = subtest.Duration
		if durationMinutes <= 0 {
			durationMinutes = s.opts.DefaultDurationMinutes
		}
	}

	attempt := 1
	if latest != nil {
		attempt = latest.Attempt + 1
	}
	sess := &domain.QuizSession{
		UserID:    userID,
		PackageID: packageID,
		SubtestID: subtestID,
		Attempt:   attempt,
		Duration:  durationMinutes,
		EndTime:   s.now().Add(time.Duration(durationMinutes) * time.Minute),
	}
	err = s.sessions.CreateSession(ctx, sess)
	if errors.Is(err, domain.ErrSessionExists) {
		// A concurrent create claimed this attempt number first.
		return s.sessions.SessionByUserAndSubtest(ctx, userID, subtestID)
	}
	if err != nil {
		return nil, fmt.Errorf("create session: %w", err)
	}
	return sess, nil
}

// Session returns the user's session for a subtest, or nil when none exists.
// Callers use the nil result to decide between resume and start-new.
func (s *QuizService) Session(ctx context.Context, userID string, subtestID int64) (*domain.QuizSession, error) {
	sess, err := s.sessions.SessionByUserAndSubtest(ctx, userID, subtestID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return sess, nil
}

// SessionDetails loads a session with its subtest, package deadline, and all
// stored answers. It returns nil unless the actor owns the session or holds
// an elevated role; the denial is indistinguishable from absence.
func (s *QuizService) SessionDetails(ctx context.Context, sessionID int64, actor domain.Actor) (*domain.SessionDetails, error) {
	sess, err := s.sessions.SessionByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != actor.ID && !actor.Elevated() {
		return nil, nil
	}

	pkg, err := s.packages.PackageByID(ctx, sess.PackageID)
	if err != nil {
		return nil, fmt.Errorf("lookup package: %w", err)
	}
	return &domain.SessionDetails{Session: sess, PackageEnd: pkg.TOEnd}, nil
}

// SubmitSession ends an attempt early by stamping the current time as its
// endTime. Only the owner or an elevated actor may submit; repeated calls
// overwrite endTime again.
func (s *QuizService) SubmitSession(ctx context.Context, sessionID int64, actor domain.Actor) (*domain.QuizSession, error) {
	sess, err := s.sessions.SessionByID(ctx, sessionID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	if sess.UserID != actor.ID && !actor.Elevated() {
		return nil, nil
	}

	end := s.now()
	if err := s.sessions.UpdateEndTime(ctx, sess.ID, end); err != nil {
		return nil, fmt.Errorf("stamp end time: %w", err)
	}
	sess.EndTime = end
	return sess, nil
}

// QuestionsBySubtest serves a subtest's questions for an active attempt.
// A session must already exist (nil otherwise); elevated actors may target
// another user's session. While the package window is open the answer key,
// explanation, and score are redacted; once it has closed the stored values
// are served intact for review.
func (s *QuizService) QuestionsBySubtest(ctx context.Context, subtestID int64, actor domain.Actor, targetUserID string) ([]*domain.Question, error) {
	userID := actor.ID
	if targetUserID != "" && actor.Elevated() {
		userID = targetUserID
	}

	sess, err := s.sessions.SessionByUserAndSubtest(ctx, userID, subtestID)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	pkg, err := s.packages.PackageByID(ctx, sess.PackageID)
	if err != nil {
		return nil, fmt.Errorf("lookup package: %w", err)
	}

	questions, err := s.questions.QuestionsBySubtest(ctx, subtestID)
	if err != nil {
		return nil, fmt.Errorf("load questions: %w", err)
	}
	if pkg.WindowClosed(s.now()) {
		return questions, nil
	}

	redacted := make([]*domain.Question, 0, len(questions))
	for _, q := range questions {
		redacted = append(redacted, q.Redacted())
	}
	return redacted, nil
}

// SaveAnswer upserts one response for (user, session, question). At least one
// of answerChoice/essayAnswer must be set; a later submission for the same
// question overwrites the earlier one.
func (s *QuizService) SaveAnswer(ctx context.Context, userID string, packageID, quizSessionID, questionID int64, answerChoice *int64, essayAnswer *string) (*domain.UserAnswer, error) {
	if answerChoice == nil && essayAnswer == nil {
		return nil, domain.ErrAnswerMissing
	}

	ua := &domain.UserAnswer{
		UserID:        userID,
		PackageID:     packageID,
		QuizSessionID: quizSessionID,
		QuestionID:    questionID,
		AnswerChoice:  answerChoice,
		EssayAnswer:   essayAnswer,
	}
	if err := s.answers.UpsertAnswer(ctx, ua); err != nil {
		return nil, fmt.Errorf("upsert answer: %w", err)
	}
	return ua, nil
}

// AnswerByID returns a single answer choice, or nil when absent.
func (s *QuizService) AnswerByID(ctx context.Context, id int64) (*domain.Answer, error) {
	ans, err := s.packages.AnswerByID(ctx, id)
	if errors.Is(err, domain.ErrAnswerNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ans, nil
}

// DrillSubtests lists the subtests of a drill-type package.
func (s *QuizService) DrillSubtests(ctx context.Context, packageID int64) ([]*domain.Subtest, error) {
	return s.drills.DrillSubtests(ctx, packageID)
}
