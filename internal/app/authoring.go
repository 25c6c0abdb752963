package app

import (
	"context"
	"fmt"
	"time"

	"tryout-service/internal/domain"
)

// CreatePackageInput describes a new exam package.
type CreatePackageInput struct {
	Name    string
	Type    domain.PackageType
	ClassID int64
	TOStart time.Time
	TOEnd   time.Time
}

// CreatePackage inserts a new package shell.
func (s *QuizService) CreatePackage(ctx context.Context, in CreatePackageInput) (*domain.Package, error) {
	pkg := &domain.Package{
		Name:    in.Name,
		Type:    in.Type,
		ClassID: in.ClassID,
		TOStart: in.TOStart,
		TOEnd:   in.TOEnd,
	}
	if pkg.Type == "" {
		pkg.Type = domain.PackageTryout
	}
	if err := s.packages.CreatePackage(ctx, pkg); err != nil {
		return nil, fmt.Errorf("create package: %w", err)
	}
	return pkg, nil
}

// CreateSubtest appends a timed section to a package.
func (s *QuizService) CreateSubtest(ctx context.Context, packageID int64, subtestType string, durationMinutes int) (*domain.Subtest, error) {
	if _, err := s.packages.PackageByID(ctx, packageID); err != nil {
		return nil, fmt.Errorf("lookup package: %w", err)
	}
	subtest := &domain.Subtest{
		PackageID: packageID,
		Type:      subtestType,
		Duration:  durationMinutes,
	}
	if err := s.packages.CreateSubtest(ctx, subtest); err != nil {
		return nil, fmt.Errorf("create subtest: %w", err)
	}
	return subtest, nil
}

// CreateQuestionInput describes a new question with its answer choices.
// Choices are indexed 1..n in the given order; CorrectChoice refers to that
// index and must be nil for essay questions, where the first choice doubles
// as the expected answer text.
type CreateQuestionInput struct {
	SubtestID     int64
	Index         int
	Content       string
	ImageURL      string
	Type          domain.QuestionType
	Score         int
	Explanation   *string
	CorrectChoice *int64
	Choices       []string
}

// CreateQuestion inserts a question and its choices, then drops the cached
// question set for the owning subtest.
func (s *QuizService) CreateQuestion(ctx context.Context, in CreateQuestionInput) (*domain.Question, error) {
	if _, err := s.packages.SubtestByID(ctx, in.SubtestID); err != nil {
		return nil, fmt.Errorf("lookup subtest: %w", err)
	}

	score := in.Score
	question := &domain.Question{
		SubtestID:           in.SubtestID,
		Index:               in.Index,
		Content:             in.Content,
		ImageURL:            in.ImageURL,
		Type:                in.Type,
		Score:               &score,
		Explanation:         in.Explanation,
		CorrectAnswerChoice: in.CorrectChoice,
	}
	for i, content := range in.Choices {
		question.Answers = append(question.Answers, &domain.Answer{
			Index:   i + 1,
			Content: content,
		})
	}
	if err := s.packages.CreateQuestion(ctx, question); err != nil {
		return nil, fmt.Errorf("create question: %w", err)
	}
	s.dropCachedSubtest(ctx, in.SubtestID)
	return question, nil
}

// DeleteQuestion removes a question with its choices and drops the cached
// question set for the subtest that owned it.
func (s *QuizService) DeleteQuestion(ctx context.Context, questionID int64) error {
	subtestID, err := s.packages.DeleteQuestion(ctx, questionID)
	if err != nil {
		return fmt.Errorf("delete question: %w", err)
	}
	s.dropCachedSubtest(ctx, subtestID)
	return nil
}

func (s *QuizService) dropCachedSubtest(ctx context.Context, subtestID int64) {
	if s.invalidate == nil {
		return
	}
	// Cache entries expire on their own; a failed drop only delays freshness.
	_ = s.invalidate.InvalidateSubtest(ctx, subtestID)
}
