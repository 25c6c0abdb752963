package app

import (
	"context"
	"errors"
	"fmt"
	"time"

	"tryout-service/internal/domain"
)

// Publisher pushes announcement updates to live subscribers.
type Publisher interface {
	Publish(ann domain.Announcement)
}

// AnnouncementService manages the single broadcast message.
type AnnouncementService struct {
	repo AnnouncementRepository
	feed Publisher
	now  func() time.Time
}

func NewAnnouncementService(repo AnnouncementRepository) *AnnouncementService {
	return &AnnouncementService{repo: repo, now: time.Now}
}

// WithFeed wires a live update channel notified on every Set.
func (s *AnnouncementService) WithFeed(feed Publisher) *AnnouncementService {
	s.feed = feed
	return s
}

// WithClock is test-only for deterministic timestamps.
func (s *AnnouncementService) WithClock(now func() time.Time) *AnnouncementService {
	s.now = now
	return s
}

// Announcement returns the current message, or nil when none has been set.
func (s *AnnouncementService) Announcement(ctx context.Context) (*domain.Announcement, error) {
	ann, err := s.repo.Announcement(ctx)
	if errors.Is(err, domain.ErrAnnouncementNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return ann, nil
}

// SetAnnouncement replaces the message. The repository owns the single-row
// semantics; live subscribers are notified after the write lands.
func (s *AnnouncementService) SetAnnouncement(ctx context.Context, title, content, url string) (*domain.Announcement, error) {
	ann := &domain.Announcement{
		Title:     title,
		Content:   content,
		URL:       url,
		UpdatedAt: s.now(),
	}
	if err := s.repo.SetAnnouncement(ctx, ann); err != nil {
		return nil, fmt.Errorf("set announcement: %w", err)
	}
	if s.feed != nil {
		s.feed.Publish(*ann)
	}
	return ann, nil
}
