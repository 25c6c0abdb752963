package app

import (
	"context"
	"errors"
	"fmt"

	"tryout-service/internal/domain"
)

// PackageScores loads a package and recomputes the actor's per-subtest and
// total scores. Scores are never stored: recomputing on every read keeps
// results consistent when answer keys are edited after attempts.
//
// Per subtest: no session -> nil session and nil score; session while the
// window is still open -> the attempt deadline and a nil score; session after
// the window closed -> the deadline and the recomputed score.
func (s *QuizService) PackageScores(ctx context.Context, packageID int64, actor domain.Actor) (*domain.ScoredPackage, error) {
	pkg, err := s.packages.PackageByID(ctx, packageID)
	if errors.Is(err, domain.ErrPackageNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	closed := pkg.WindowClosed(s.now())
	out := &domain.ScoredPackage{Package: pkg}
	for _, subtest := range pkg.Subtests {
		entry := &domain.SubtestScore{Subtest: subtest}

		sess, err := s.sessions.SessionByUserAndSubtest(ctx, actor.ID, subtest.ID)
		if errors.Is(err, domain.ErrSessionNotFound) {
			out.Subtests = append(out.Subtests, entry)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("lookup session: %w", err)
		}

		end := sess.EndTime
		entry.QuizSession = &end
		if closed {
			score, err := s.scoreSession(ctx, sess)
			if err != nil {
				return nil, err
			}
			entry.Score = &score
			out.TotalScore += score
		}
		out.Subtests = append(out.Subtests, entry)
	}
	return out, nil
}

func (s *QuizService) scoreSession(ctx context.Context, sess *domain.QuizSession) (int, error) {
	answers, err := s.answers.AnswersBySession(ctx, sess.ID)
	if err != nil {
		return 0, fmt.Errorf("load session answers: %w", err)
	}
	questions, err := s.questions.QuestionsBySubtest(ctx, sess.SubtestID)
	if err != nil {
		return 0, fmt.Errorf("load questions: %w", err)
	}

	byID := make(map[int64]*domain.Question, len(questions))
	for _, q := range questions {
		byID[q.ID] = q
	}

	total := 0
	for _, ua := range answers {
		question, ok := byID[ua.QuestionID]
		if !ok {
			continue
		}
		total += s.scoreAnswer(question, ua)
	}
	return total, nil
}

// scoreAnswer awards the question's score for an exact choice match, or for
// an essay response the configured grader accepts against the first listed
// answer choice (the canonical expected text). Everything else scores zero.
func (s *QuizService) scoreAnswer(q *domain.Question, ua *domain.UserAnswer) int {
	if q.Score == nil {
		return 0
	}
	if q.CorrectAnswerChoice != nil && ua.AnswerChoice != nil && *ua.AnswerChoice == *q.CorrectAnswerChoice {
		return *q.Score
	}
	if ua.EssayAnswer != nil && len(q.Answers) > 0 && s.opts.Grader.Match(*ua.EssayAnswer, q.Answers[0].Content) {
		return *q.Score
	}
	return 0
}
