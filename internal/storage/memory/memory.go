// Package memory provides a thread-safe in-memory index store. It is
// intended for tests and prototyping and deliberately keeps the
// implementation simple.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/coduet-labs/escrow-layer/internal/market"
	"github.com/coduet-labs/escrow-layer/internal/notify"
	"github.com/coduet-labs/escrow-layer/internal/storage"
)

// Store is an in-memory implementation of the index store interfaces and
// the notification outbox.
type Store struct {
	mu           sync.RWMutex
	posts        map[string]market.Post
	applications map[string]market.Application
	profiles     map[string]market.Profile // keyed by user id
	events       map[string]notify.Event
}

var _ storage.Index = (*Store)(nil)
var _ notify.OutboxStore = (*Store)(nil)

// New creates an empty in-memory store.
func New() *Store {
	return &Store{
		posts:        make(map[string]market.Post),
		applications: make(map[string]market.Application),
		profiles:     make(map[string]market.Profile),
		events:       make(map[string]notify.Event),
	}
}

// PostStore implementation ----------------------------------------------------

func (s *Store) CreatePost(_ context.Context, p market.Post) (market.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if p.ID == "" {
		p.ID = uuid.NewString()
	} else if _, exists := s.posts[p.ID]; exists {
		return market.Post{}, fmt.Errorf("post %s: %w", p.ID, storage.ErrDuplicate)
	}
	for _, existing := range s.posts {
		if existing.PostID == p.PostID {
			return market.Post{}, fmt.Errorf("post chain id %d: %w", p.PostID, storage.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Tags = append([]string(nil), p.Tags...)

	s.posts[p.ID] = p
	return clonePost(p), nil
}

func (s *Store) UpdatePost(_ context.Context, p market.Post) (market.Post, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.posts[p.ID]
	if !ok {
		return market.Post{}, fmt.Errorf("post %s: %w", p.ID, storage.ErrNotFound)
	}

	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Tags = append([]string(nil), p.Tags...)

	s.posts[p.ID] = p
	return clonePost(p), nil
}

func (s *Store) GetPost(_ context.Context, id string) (market.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return market.Post{}, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}
	return clonePost(p), nil
}

func (s *Store) GetPostByChainID(_ context.Context, postID uint64) (market.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, p := range s.posts {
		if p.PostID == postID {
			return clonePost(p), nil
		}
	}
	return market.Post{}, fmt.Errorf("post chain id %d: %w", postID, storage.ErrNotFound)
}

func (s *Store) ListOpenPosts(_ context.Context) ([]market.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Post, 0)
	for _, p := range s.posts {
		if p.Status == market.PostOpen {
			result = append(result, clonePost(p))
		}
	}
	sortPostsNewestFirst(result)
	return result, nil
}

func (s *Store) ListPostsByPublisher(_ context.Context, publisherID string) ([]market.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Post, 0)
	for _, p := range s.posts {
		if p.PublisherID == publisherID {
			result = append(result, clonePost(p))
		}
	}
	sortPostsNewestFirst(result)
	return result, nil
}

func (s *Store) ListPostsNeedingSync(_ context.Context) ([]market.Post, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Post, 0)
	for _, p := range s.posts {
		if p.NeedsSync {
			result = append(result, clonePost(p))
		}
	}
	sortPostsNewestFirst(result)
	return result, nil
}

func (s *Store) PostWithApplications(_ context.Context, id string) (market.PostWithApplications, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.posts[id]
	if !ok {
		return market.PostWithApplications{}, fmt.Errorf("post %s: %w", id, storage.ErrNotFound)
	}

	apps := make([]market.Application, 0)
	for _, a := range s.applications {
		if a.PostRowID == id {
			apps = append(apps, a)
		}
	}
	sort.Slice(apps, func(i, j int) bool { return apps[i].AppliedAt.Before(apps[j].AppliedAt) })

	return market.PostWithApplications{Post: clonePost(p), Applications: apps}, nil
}

// ApplicationStore implementation ---------------------------------------------

func (s *Store) CreateApplication(_ context.Context, a market.Application) (market.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if a.ID == "" {
		a.ID = uuid.NewString()
	} else if _, exists := s.applications[a.ID]; exists {
		return market.Application{}, fmt.Errorf("application %s: %w", a.ID, storage.ErrDuplicate)
	}
	for _, existing := range s.applications {
		if existing.PostRowID == a.PostRowID && existing.HelperID == a.HelperID {
			return market.Application{}, fmt.Errorf("helper %s already applied to post %s: %w", a.HelperID, a.PostRowID, storage.ErrDuplicate)
		}
	}

	now := time.Now().UTC()
	if a.AppliedAt.IsZero() {
		a.AppliedAt = now
	}
	a.UpdatedAt = now

	s.applications[a.ID] = a
	return a, nil
}

func (s *Store) UpdateApplication(_ context.Context, a market.Application) (market.Application, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.applications[a.ID]
	if !ok {
		return market.Application{}, fmt.Errorf("application %s: %w", a.ID, storage.ErrNotFound)
	}

	a.AppliedAt = original.AppliedAt
	a.UpdatedAt = time.Now().UTC()

	s.applications[a.ID] = a
	return a, nil
}

func (s *Store) GetApplication(_ context.Context, id string) (market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	a, ok := s.applications[id]
	if !ok {
		return market.Application{}, fmt.Errorf("application %s: %w", id, storage.ErrNotFound)
	}
	return a, nil
}

func (s *Store) ListApplicationsByPost(_ context.Context, postRowID string) ([]market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Application, 0)
	for _, a := range s.applications {
		if a.PostRowID == postRowID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppliedAt.Before(result[j].AppliedAt) })
	return result, nil
}

func (s *Store) ListApplicationsByHelper(_ context.Context, helperID string) ([]market.Application, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]market.Application, 0)
	for _, a := range s.applications {
		if a.HelperID == helperID {
			result = append(result, a)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].AppliedAt.Before(result[j].AppliedAt) })
	return result, nil
}

// ProfileStore implementation ---------------------------------------------------

func (s *Store) CreateProfile(_ context.Context, p market.Profile) (market.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.profiles[p.UserID]; exists {
		return market.Profile{}, fmt.Errorf("profile for user %s: %w", p.UserID, storage.ErrDuplicate)
	}
	if p.ID == "" {
		p.ID = uuid.NewString()
	}

	now := time.Now().UTC()
	p.CreatedAt = now
	p.UpdatedAt = now
	p.Specialties = append([]string(nil), p.Specialties...)

	s.profiles[p.UserID] = p
	return cloneProfile(p), nil
}

func (s *Store) UpdateProfile(_ context.Context, p market.Profile) (market.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	original, ok := s.profiles[p.UserID]
	if !ok {
		return market.Profile{}, fmt.Errorf("profile for user %s: %w", p.UserID, storage.ErrNotFound)
	}

	p.ID = original.ID
	p.CreatedAt = original.CreatedAt
	p.UpdatedAt = time.Now().UTC()
	p.Specialties = append([]string(nil), p.Specialties...)

	s.profiles[p.UserID] = p
	return cloneProfile(p), nil
}

func (s *Store) GetProfileByUser(_ context.Context, userID string) (market.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.profiles[userID]
	if !ok {
		return market.Profile{}, fmt.Errorf("profile for user %s: %w", userID, storage.ErrNotFound)
	}
	return cloneProfile(p), nil
}

// OutboxStore implementation ----------------------------------------------------

func (s *Store) AppendEvent(_ context.Context, ev notify.Event) (notify.Event, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if ev.ID == "" {
		ev.ID = uuid.NewString()
	}
	if ev.CreatedAt.IsZero() {
		ev.CreatedAt = time.Now().UTC()
	}
	s.events[ev.ID] = ev
	return ev, nil
}

func (s *Store) ListUndelivered(_ context.Context, limit int) ([]notify.Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]notify.Event, 0)
	for _, ev := range s.events {
		if ev.DeliveredAt == nil && ev.AbandonedAt == nil {
			result = append(result, ev)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatedAt.Before(result[j].CreatedAt) })
	if limit > 0 && len(result) > limit {
		result = result[:limit]
	}
	return result, nil
}

func (s *Store) MarkDelivered(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	ev.DeliveredAt = &at
	s.events[id] = ev
	return nil
}

func (s *Store) MarkFailed(_ context.Context, id string, attempts int, lastError string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	ev.Attempts = attempts
	ev.LastError = lastError
	s.events[id] = ev
	return nil
}

func (s *Store) MarkAbandoned(_ context.Context, id string, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	ev, ok := s.events[id]
	if !ok {
		return fmt.Errorf("event %s: %w", id, storage.ErrNotFound)
	}
	ev.AbandonedAt = &at
	s.events[id] = ev
	return nil
}

// Helpers ---------------------------------------------------------------------

func clonePost(p market.Post) market.Post {
	p.Tags = append([]string(nil), p.Tags...)
	return p
}

func cloneProfile(p market.Profile) market.Profile {
	p.Specialties = append([]string(nil), p.Specialties...)
	return p
}

func sortPostsNewestFirst(posts []market.Post) {
	sort.Slice(posts, func(i, j int) bool { return posts[i].CreatedAt.After(posts[j].CreatedAt) })
}
