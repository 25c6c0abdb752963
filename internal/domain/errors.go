package domain

import "errors"

var (
	// ErrAnswerMissing is returned when a submission carries neither a
	// choice nor an essay response.
	ErrAnswerMissing = errors.New("answer must contain a choice or an essay response")
	// ErrSessionNotFound is returned when no quiz session matches the lookup.
	ErrSessionNotFound = errors.New("quiz session not found")
	// ErrSessionExists is returned when a session for the same
	// (user, subtest, attempt) key has already been stored.
	ErrSessionExists = errors.New("quiz session already exists")
	// ErrPackageNotFound indicates the package could not be loaded.
	ErrPackageNotFound = errors.New("package not found")
	// ErrSubtestNotFound indicates the subtest could not be loaded.
	ErrSubtestNotFound = errors.New("subtest not found")
	// ErrQuestionNotFound indicates a referenced question does not exist.
	ErrQuestionNotFound = errors.New("question not found")
	// ErrAnswerNotFound indicates a referenced answer choice does not exist.
	ErrAnswerNotFound = errors.New("answer not found")
	// ErrUserNotFound indicates the user account does not exist.
	ErrUserNotFound = errors.New("user not found")
	// ErrAnnouncementNotFound indicates the announcement row has never been set.
	ErrAnnouncementNotFound = errors.New("announcement not found")
)
