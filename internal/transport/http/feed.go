package http

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"tryout-service/internal/domain"
)

// AnnouncementFeed pushes announcement updates to websocket subscribers.
// It implements app.Publisher; the announcement service calls Publish after
// every successful upsert.
type AnnouncementFeed struct {
	auth     *Authenticator
	upgrader websocket.Upgrader

	mu          sync.Mutex
	subscribers map[chan domain.Announcement]struct{}
	latest      *domain.Announcement
}

func NewAnnouncementFeed(auth *Authenticator) *AnnouncementFeed {
	return &AnnouncementFeed{
		auth: auth,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
		subscribers: make(map[chan domain.Announcement]struct{}),
	}
}

// Publish fans the update out to every subscriber. Slow subscribers have
// their stale update replaced rather than blocking the broadcast.
func (f *AnnouncementFeed) Publish(ann domain.Announcement) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.latest = &ann
	for ch := range f.subscribers {
		select {
		case ch <- ann:
		default:
			select {
			case <-ch:
			default:
			}
			ch <- ann
		}
	}
}

func (f *AnnouncementFeed) subscribe() (chan domain.Announcement, func()) {
	ch := make(chan domain.Announcement, 8)

	f.mu.Lock()
	f.subscribers[ch] = struct{}{}
	if f.latest != nil {
		ch <- *f.latest
	}
	f.mu.Unlock()

	cancel := func() {
		f.mu.Lock()
		if _, ok := f.subscribers[ch]; ok {
			delete(f.subscribers, ch)
			close(ch)
		}
		f.mu.Unlock()
	}
	return ch, cancel
}

type feedMessage struct {
	Type    string              `json:"type"`
	Payload domain.Announcement `json:"payload"`
}

// ServeWS upgrades the request and streams announcement updates until the
// client disconnects. Clients authenticate with a token query parameter.
func (f *AnnouncementFeed) ServeWS(w http.ResponseWriter, r *http.Request) {
	if _, err := f.auth.ActorFromRequest(r); err != nil {
		http.Error(w, "missing or invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws upgrade failed: %v", err)
		return
	}
	defer conn.Close()

	updates, cancel := f.subscribe()
	defer cancel()

	done := make(chan struct{})
	go func() {
		defer close(done)
		// Drain control and client frames; an error means the peer is gone.
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case ann, ok := <-updates:
			if !ok {
				return
			}
			if err := conn.WriteJSON(feedMessage{Type: "announcement", Payload: ann}); err != nil {
				log.Printf("ws write error: %v", err)
				return
			}
		case <-done:
			return
		}
	}
}
