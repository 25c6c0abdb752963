package domain

import (
	"time"

	"github.com/uptrace/bun"
)

// Role is the access tier carried by an authenticated actor.
type Role string

const (
	RoleUser    Role = "user"
	RoleTeacher Role = "teacher"
	RoleAdmin   Role = "admin"
)

// Actor identifies the authenticated caller of a use case.
type Actor struct {
	ID   string
	Role Role
}

// Elevated reports whether the actor may act on other users' data.
func (a Actor) Elevated() bool {
	return a.Role == RoleTeacher || a.Role == RoleAdmin
}

// User is an account that can author or take tryouts.
type User struct {
	bun.BaseModel `bun:"table:users,alias:u"`

	ID   string `bun:"id,pk" json:"id"`
	Name string `bun:"name,notnull" json:"name"`
	Role Role   `bun:"role,notnull" json:"role"`
}

// PackageType distinguishes full tryouts from drill packages.
type PackageType string

const (
	PackageTryout PackageType = "tryout"
	PackageDrill  PackageType = "drill"
)

// Package is a named exam composed of subtests, gated by a submission window.
type Package struct {
	bun.BaseModel `bun:"table:packages,alias:p"`

	ID      int64       `bun:"id,pk,autoincrement" json:"id"`
	Name    string      `bun:"name,notnull" json:"name"`
	Type    PackageType `bun:"type,notnull" json:"type"`
	ClassID int64       `bun:"class_id" json:"classId"`
	TOStart time.Time   `bun:"to_start,notnull" json:"TOstart"`
	TOEnd   time.Time   `bun:"to_end,notnull" json:"TOend"`

	Subtests []*Subtest `bun:"rel:has-many,join:id=package_id" json:"subtests,omitempty"`
}

// WindowClosed reports whether the package's submission window has ended.
// The boundary instant counts as closed so the two delivery branches stay
// mutually exclusive.
func (p *Package) WindowClosed(now time.Time) bool {
	return !p.TOEnd.After(now)
}

// Subtest is one timed section of a package.
type Subtest struct {
	bun.BaseModel `bun:"table:subtests,alias:st"`

	ID        int64  `bun:"id,pk,autoincrement" json:"id"`
	PackageID int64  `bun:"package_id,notnull" json:"packageId"`
	Type      string `bun:"type,notnull" json:"type"`
	Duration  int    `bun:"duration,notnull" json:"duration"` // minutes

	Questions []*Question `bun:"rel:has-many,join:id=subtest_id" json:"questions,omitempty"`
}

// QuestionType distinguishes multiple-choice questions from essays.
type QuestionType string

const (
	QuestionChoice QuestionType = "mulChoice"
	QuestionEssay  QuestionType = "essay"
)

// Question belongs to one subtest. CorrectAnswerChoice holds the 1-based
// index of the correct Answer and is nil for essay questions.
type Question struct {
	bun.BaseModel `bun:"table:questions,alias:q"`

	ID                  int64        `bun:"id,pk,autoincrement" json:"id"`
	SubtestID           int64        `bun:"subtest_id,notnull" json:"subtestId"`
	Index               int          `bun:"idx,notnull" json:"index"`
	Content             string       `bun:"content,notnull" json:"content"`
	ImageURL            string       `bun:"image_url,nullzero" json:"imageUrl,omitempty"`
	Type                QuestionType `bun:"type,notnull" json:"type"`
	Score               *int         `bun:"score,notnull" json:"score"`
	Explanation         *string      `bun:"explanation" json:"explanation"`
	CorrectAnswerChoice *int64       `bun:"correct_answer_choice" json:"correctAnswerChoice"`

	Answers []*Answer `bun:"rel:has-many,join:id=question_id" json:"answers,omitempty"`
}

// Redacted returns a copy safe to serve while the package window is open:
// the answer key, explanation, and score all serialize as null, so a
// redacted question cannot be confused with one worth zero points.
func (q *Question) Redacted() *Question {
	clone := *q
	clone.Score = nil
	clone.Explanation = nil
	clone.CorrectAnswerChoice = nil
	return &clone
}

// Answer is one selectable choice of a question.
type Answer struct {
	bun.BaseModel `bun:"table:answers,alias:a"`

	ID         int64  `bun:"id,pk,autoincrement" json:"id"`
	QuestionID int64  `bun:"question_id,notnull" json:"questionId"`
	Index      int    `bun:"idx,notnull" json:"index"`
	Content    string `bun:"content,notnull" json:"content"`
}

// QuizSession is one user's timed attempt at one subtest. Attempt numbers
// start at 1 and (UserID, SubtestID, Attempt) is unique, so duplicate
// sessions cannot appear even under concurrent creates.
type QuizSession struct {
	bun.BaseModel `bun:"table:quiz_sessions,alias:qs"`

	ID        int64     `bun:"id,pk,autoincrement" json:"id"`
	UserID    string    `bun:"user_id,notnull" json:"userId"`
	PackageID int64     `bun:"package_id,notnull" json:"packageId"`
	SubtestID int64     `bun:"subtest_id,notnull" json:"subtestId"`
	Attempt   int       `bun:"attempt,notnull" json:"attempt"`
	Duration  int       `bun:"duration,notnull" json:"duration"` // minutes
	EndTime   time.Time `bun:"end_time,notnull" json:"endTime"`

	Subtest *Subtest      `bun:"rel:belongs-to,join:subtest_id=id" json:"subtest,omitempty"`
	Answers []*UserAnswer `bun:"rel:has-many,join:id=quiz_session_id" json:"userAnswers,omitempty"`
}

// UserAnswer is one stored response to one question within one session.
// Exactly one of AnswerChoice/EssayAnswer is set on creation; the pair
// (UserID, QuizSessionID, QuestionID) is the upsert key.
type UserAnswer struct {
	bun.BaseModel `bun:"table:user_answers,alias:ua"`

	ID            int64   `bun:"id,pk,autoincrement" json:"id"`
	UserID        string  `bun:"user_id,notnull" json:"userId"`
	PackageID     int64   `bun:"package_id,notnull" json:"packageId"`
	QuizSessionID int64   `bun:"quiz_session_id,notnull" json:"quizSessionId"`
	QuestionID    int64   `bun:"question_id,notnull" json:"questionId"`
	AnswerChoice  *int64  `bun:"answer_choice" json:"answerChoice"`
	EssayAnswer   *string `bun:"essay_answer" json:"essayAnswer"`
}

// Announcement is the single broadcast message shown to every user.
// It lives in a one-row table and is only ever replaced, never multiplied.
type Announcement struct {
	bun.BaseModel `bun:"table:announcements,alias:an"`

	ID        int64     `bun:"id,pk" json:"-"`
	Title     string    `bun:"title,notnull" json:"title"`
	Content   string    `bun:"content,notnull" json:"content"`
	URL       string    `bun:"url" json:"url"`
	UpdatedAt time.Time `bun:"updated_at,notnull" json:"updatedAt"`
}

// SessionDetails is the owner's (or an admin's) full view of an attempt.
type SessionDetails struct {
	Session    *QuizSession `json:"session"`
	PackageEnd time.Time    `json:"packageEnd"`
}

// SubtestScore is one subtest's slot in a scored package view. QuizSession
// carries the attempt deadline when a session exists; Score stays nil until
// the package window has closed.
type SubtestScore struct {
	Subtest     *Subtest   `json:"subtest"`
	QuizSession *time.Time `json:"quizSession"`
	Score       *int       `json:"score"`
}

// ScoredPackage aggregates per-subtest scores for one user.
type ScoredPackage struct {
	Package    *Package        `json:"package"`
	Subtests   []*SubtestScore `json:"subtests"`
	TotalScore int             `json:"totalScore"`
}
