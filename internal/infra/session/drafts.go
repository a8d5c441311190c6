package session

import (
	"math/rand"
	"sync"
	"time"

	"discord-render-bot/internal/domain"
	"discord-render-bot/internal/domain/model"
)

const (
	defaultSteps = 28
	defaultCFG   = 5.0

	preferredSampler   = "dpmpp_2m_sde"
	preferredScheduler = "karras"
)

// DraftStore holds per-requester drafts in process memory. Non-durable by
// design: a restart means the user redoes the form.
type DraftStore struct {
	mu     sync.Mutex
	drafts map[string]*model.Draft
}

func NewDraftStore() *DraftStore {
	return &DraftStore{drafts: map[string]*model.Draft{}}
}

// RandomSeed draws a uniform seed in [0, 2^32).
func RandomSeed() int64 {
	return rand.Int63n(1 << 32)
}

// Init creates a fresh draft with catalog-derived defaults, replacing any
// existing draft for the requester.
func (s *DraftStore) Init(requesterID string, cat *model.NodeCatalog) *model.Draft {
	d := &model.Draft{
		RequesterID: requesterID,
		Model:       first(cat.Models),
		Sampler:     pick(cat.Samplers, preferredSampler),
		Scheduler:   pick(cat.Schedulers, preferredScheduler),
		Steps:       defaultSteps,
		CFG:         defaultCFG,
		Seed:        RandomSeed(),
		Size:        model.SizePortrait,
		CreatedAt:   time.Now(),
	}
	s.mu.Lock()
	s.drafts[requesterID] = d
	s.mu.Unlock()
	return d
}

// InitFromJob seeds a draft from a persisted job for the edit flow.
func (s *DraftStore) InitFromJob(requesterID string, job *model.Job) *model.Draft {
	d := model.DraftFromJob(job)
	d.RequesterID = requesterID
	s.mu.Lock()
	s.drafts[requesterID] = &d
	s.mu.Unlock()
	return &d
}

// Get returns the requester's draft, or ErrSessionExpired — which is a user
// condition ("reissue the entry command"), not an internal failure.
func (s *DraftStore) Get(requesterID string) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[requesterID]
	if !ok {
		return nil, domain.ErrSessionExpired
	}
	return d, nil
}

// Merge applies fn to the requester's draft under the store lock.
func (s *DraftStore) Merge(requesterID string, fn func(*model.Draft)) (*model.Draft, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	d, ok := s.drafts[requesterID]
	if !ok {
		return nil, domain.ErrSessionExpired
	}
	fn(d)
	return d, nil
}

func (s *DraftStore) Delete(requesterID string) {
	s.mu.Lock()
	delete(s.drafts, requesterID)
	s.mu.Unlock()
}

func first(list []string) string {
	if len(list) == 0 {
		return ""
	}
	return list[0]
}

func pick(list []string, preferred string) string {
	for _, v := range list {
		if v == preferred {
			return v
		}
	}
	return first(list)
}
