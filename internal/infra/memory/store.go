package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	"tryout-service/internal/domain"
)

// Store is an in-memory implementation of every repository the services
// need. It backs tests and the no-database demo mode.
type Store struct {
	mu     sync.RWMutex
	nextID int64

	users        map[string]*domain.User
	packages     map[int64]*domain.Package
	subtests     map[int64]*domain.Subtest
	questions    map[int64]*domain.Question
	sessions     map[int64]*domain.QuizSession
	userAnswers  map[int64]*domain.UserAnswer
	announcement *domain.Announcement
}

func NewStore() *Store {
	return &Store{
		users:       make(map[string]*domain.User),
		packages:    make(map[int64]*domain.Package),
		subtests:    make(map[int64]*domain.Subtest),
		questions:   make(map[int64]*domain.Question),
		sessions:    make(map[int64]*domain.QuizSession),
		userAnswers: make(map[int64]*domain.UserAnswer),
	}
}

func (s *Store) nextIDLocked() int64 {
	s.nextID++
	return s.nextID
}

func (s *Store) PackageByID(_ context.Context, id int64) (*domain.Package, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pkg, ok := s.packages[id]
	if !ok {
		return nil, domain.ErrPackageNotFound
	}
	clone := *pkg
	clone.Subtests = s.subtestsOfLocked(id)
	return &clone, nil
}

func (s *Store) subtestsOfLocked(packageID int64) []*domain.Subtest {
	var out []*domain.Subtest
	for _, st := range s.subtests {
		if st.PackageID == packageID {
			clone := *st
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) SubtestByID(_ context.Context, id int64) (*domain.Subtest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	st, ok := s.subtests[id]
	if !ok {
		return nil, domain.ErrSubtestNotFound
	}
	clone := *st
	return &clone, nil
}

func (s *Store) QuestionsBySubtest(_ context.Context, subtestID int64) ([]*domain.Question, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*domain.Question
	for _, q := range s.questions {
		if q.SubtestID != subtestID {
			continue
		}
		clone := *q
		clone.Answers = append([]*domain.Answer(nil), q.Answers...)
		out = append(out, &clone)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Index < out[j].Index })
	return out, nil
}

func (s *Store) AnswerByID(_ context.Context, id int64) (*domain.Answer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, q := range s.questions {
		for _, a := range q.Answers {
			if a.ID == id {
				clone := *a
				return &clone, nil
			}
		}
	}
	return nil, domain.ErrAnswerNotFound
}

func (s *Store) CreatePackage(_ context.Context, pkg *domain.Package) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	pkg.ID = s.nextIDLocked()
	clone := *pkg
	clone.Subtests = nil
	s.packages[pkg.ID] = &clone
	return nil
}

func (s *Store) CreateSubtest(_ context.Context, st *domain.Subtest) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	st.ID = s.nextIDLocked()
	clone := *st
	clone.Questions = nil
	s.subtests[st.ID] = &clone
	return nil
}

func (s *Store) CreateQuestion(_ context.Context, q *domain.Question) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	q.ID = s.nextIDLocked()
	for _, a := range q.Answers {
		a.ID = s.nextIDLocked()
		a.QuestionID = q.ID
	}
	clone := *q
	clone.Answers = append([]*domain.Answer(nil), q.Answers...)
	s.questions[q.ID] = &clone
	return nil
}

func (s *Store) DeleteQuestion(_ context.Context, id int64) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	q, ok := s.questions[id]
	if !ok {
		return 0, domain.ErrQuestionNotFound
	}
	delete(s.questions, id)
	return q.SubtestID, nil
}

func (s *Store) CreateSession(_ context.Context, sess *domain.QuizSession) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.sessions {
		if existing.UserID == sess.UserID &&
			existing.SubtestID == sess.SubtestID &&
			existing.Attempt == sess.Attempt {
			return domain.ErrSessionExists
		}
	}

	sess.ID = s.nextIDLocked()
	clone := *sess
	clone.Subtest = nil
	clone.Answers = nil
	s.sessions[sess.ID] = &clone
	return nil
}

func (s *Store) SessionByUserAndSubtest(_ context.Context, userID string, subtestID int64) (*domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var found *domain.QuizSession
	for _, sess := range s.sessions {
		if sess.UserID != userID || sess.SubtestID != subtestID {
			continue
		}
		if found == nil || sess.Attempt > found.Attempt {
			found = sess
		}
	}
	if found == nil {
		return nil, domain.ErrSessionNotFound
	}
	clone := *found
	return &clone, nil
}

func (s *Store) SessionByID(_ context.Context, id int64) (*domain.QuizSession, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	sess, ok := s.sessions[id]
	if !ok {
		return nil, domain.ErrSessionNotFound
	}
	clone := *sess
	if st, ok := s.subtests[sess.SubtestID]; ok {
		stClone := *st
		clone.Subtest = &stClone
	}
	clone.Answers = s.sessionAnswersLocked(id)
	return &clone, nil
}

func (s *Store) UpdateEndTime(_ context.Context, sessionID int64, end time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	sess, ok := s.sessions[sessionID]
	if !ok {
		return domain.ErrSessionNotFound
	}
	sess.EndTime = end
	return nil
}

func (s *Store) UpsertAnswer(_ context.Context, ua *domain.UserAnswer) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.userAnswers {
		if existing.UserID == ua.UserID &&
			existing.QuizSessionID == ua.QuizSessionID &&
			existing.QuestionID == ua.QuestionID {
			existing.AnswerChoice = ua.AnswerChoice
			existing.EssayAnswer = ua.EssayAnswer
			ua.ID = existing.ID
			return nil
		}
	}

	ua.ID = s.nextIDLocked()
	clone := *ua
	s.userAnswers[ua.ID] = &clone
	return nil
}

func (s *Store) AnswersBySession(_ context.Context, sessionID int64) ([]*domain.UserAnswer, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.sessionAnswersLocked(sessionID), nil
}

func (s *Store) sessionAnswersLocked(sessionID int64) []*domain.UserAnswer {
	var out []*domain.UserAnswer
	for _, ua := range s.userAnswers {
		if ua.QuizSessionID == sessionID {
			clone := *ua
			out = append(out, &clone)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Store) Announcement(_ context.Context) (*domain.Announcement, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.announcement == nil {
		return nil, domain.ErrAnnouncementNotFound
	}
	clone := *s.announcement
	return &clone, nil
}

func (s *Store) SetAnnouncement(_ context.Context, ann *domain.Announcement) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *ann
	clone.ID = 1
	s.announcement = &clone
	ann.ID = clone.ID
	return nil
}

func (s *Store) UserByID(_ context.Context, id string) (*domain.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	user, ok := s.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	clone := *user
	return &clone, nil
}

func (s *Store) CreateUser(_ context.Context, user *domain.User) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	clone := *user
	s.users[user.ID] = &clone
	return nil
}

func (s *Store) DrillSubtests(_ context.Context, packageID int64) ([]*domain.Subtest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	pkg, ok := s.packages[packageID]
	if !ok || pkg.Type != domain.PackageDrill {
		return nil, nil
	}
	return s.subtestsOfLocked(packageID), nil
}
