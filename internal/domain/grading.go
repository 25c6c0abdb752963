package domain

import (
	"regexp"
	"strings"
)

// Grader decides whether a stored essay answer matches the expected text.
// The expected text is the content of the question's first listed answer
// choice, which serves as the canonical key for essay questions.
type Grader interface {
	Match(got, want string) bool
}

// ExactGrader requires a byte-for-byte match.
type ExactGrader struct{}

func (ExactGrader) Match(got, want string) bool {
	return got == want
}

// FoldGrader compares after trimming surrounding whitespace and folding
// case, so " Paris " and "paris" grade equal.
type FoldGrader struct{}

func (FoldGrader) Match(got, want string) bool {
	return strings.EqualFold(strings.TrimSpace(got), strings.TrimSpace(want))
}

// PatternGrader treats the expected text as a regular expression anchored to
// the whole trimmed response. Invalid patterns never match.
type PatternGrader struct{}

func (PatternGrader) Match(got, want string) bool {
	re, err := regexp.Compile("^(?:" + want + ")$")
	if err != nil {
		return false
	}
	return re.MatchString(strings.TrimSpace(got))
}

// GraderFor maps a config name to a grading strategy. Unknown names fall
// back to the case-insensitive default.
func GraderFor(name string) Grader {
	switch name {
	case "exact":
		return ExactGrader{}
	case "pattern":
		return PatternGrader{}
	default:
		return FoldGrader{}
	}
}
