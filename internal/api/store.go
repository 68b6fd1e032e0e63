package api

import (
	"context"
	"sort"
	"sync"

	"github.com/soaringjerry/Spotcheck/internal/services"
)

// MemoryStore is a process-local Store used when no SQLite path is
// configured and in handler tests. Records are lost on restart.
type MemoryStore struct {
	mu           sync.RWMutex
	usersByEmail map[string]*services.User
	assessments  map[string]*services.AssessmentRecord
	images       map[string]*services.Image
	seq          map[string]int
	nextSeq      int
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		usersByEmail: map[string]*services.User{},
		assessments:  map[string]*services.AssessmentRecord{},
		images:       map[string]*services.Image{},
		seq:          map[string]int{},
	}
}

func (s *MemoryStore) AddUser(_ context.Context, u *services.User) error {
	if u == nil {
		return services.NewInvalidError("user required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.usersByEmail[u.Email]; ok {
		return services.NewConflictError("email exists")
	}
	cp := *u
	s.usersByEmail[u.Email] = &cp
	return nil
}

func (s *MemoryStore) FindUserByEmail(_ context.Context, email string) (*services.User, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if u, ok := s.usersByEmail[email]; ok {
		cp := *u
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) AddAssessment(_ context.Context, rec *services.AssessmentRecord) error {
	if rec == nil {
		return services.NewInvalidError("assessment required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessments[rec.ID]; ok {
		return services.NewConflictError("assessment exists")
	}
	cp := *rec
	s.assessments[rec.ID] = &cp
	s.nextSeq++
	s.seq[rec.ID] = s.nextSeq
	return nil
}

func (s *MemoryStore) GetAssessment(_ context.Context, id string) (*services.AssessmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if rec, ok := s.assessments[id]; ok {
		cp := *rec
		return &cp, nil
	}
	return nil, nil
}

// ListAssessmentsByUser returns newest first; limit <= 0 returns everything.
func (s *MemoryStore) ListAssessmentsByUser(_ context.Context, userID string, limit int) ([]*services.AssessmentRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := []*services.AssessmentRecord{}
	for _, rec := range s.assessments {
		if rec.UserID == userID {
			cp := *rec
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return s.seq[out[i].ID] > s.seq[out[j].ID]
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *MemoryStore) DeleteAssessment(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.assessments[id]; !ok {
		return false, nil
	}
	delete(s.assessments, id)
	delete(s.seq, id)
	return true, nil
}

func (s *MemoryStore) AddImage(_ context.Context, img *services.Image) error {
	if img == nil {
		return services.NewInvalidError("image required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	cp := *img
	s.images[img.ID] = &cp
	return nil
}

func (s *MemoryStore) GetImage(_ context.Context, id string) (*services.Image, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if img, ok := s.images[id]; ok {
		cp := *img
		return &cp, nil
	}
	return nil, nil
}

func (s *MemoryStore) DeleteImage(_ context.Context, id string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.images[id]; !ok {
		return false, nil
	}
	delete(s.images, id)
	for _, rec := range s.assessments {
		if rec.ImageID == id {
			rec.ImageID = ""
		}
	}
	return true, nil
}

var _ Store = (*MemoryStore)(nil)
