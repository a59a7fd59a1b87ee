package matching

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

// ProfilePersister stores the append-only profile history.
type ProfilePersister interface {
	SaveProfile(ctx context.Context, p *models.WeightProfile) error
	LoadProfiles(ctx context.Context) ([]*models.WeightProfile, error)
}

// ProfileStore holds every published weight profile and an atomic pointer to
// the active one. Readers never lock; publishing is serialized by mu.
type ProfileStore struct {
	mu        sync.Mutex
	active    atomic.Pointer[models.WeightProfile]
	history   []*models.WeightProfile
	persister ProfilePersister
	now       func() time.Time
}

// NewProfileStore seeds the store with an initial profile at version 1
// unless a version is already set. persister may be nil.
func NewProfileStore(initial *models.WeightProfile, persister ProfilePersister) (*ProfileStore, error) {
	if initial == nil {
		return nil, fmt.Errorf("initial weight profile is required")
	}
	if err := initial.Validate(); err != nil {
		return nil, fmt.Errorf("initial weight profile: %w", err)
	}
	p := *initial
	if p.Version == 0 {
		p.Version = 1
	}
	if p.EffectiveFrom.IsZero() {
		p.EffectiveFrom = time.Now().UTC()
	}
	s := &ProfileStore{persister: persister, now: time.Now}
	s.history = []*models.WeightProfile{&p}
	s.active.Store(&p)
	return s, nil
}

// Active returns the current profile. The returned value must not be mutated.
func (s *ProfileStore) Active() *models.WeightProfile {
	return s.active.Load()
}

// Restore replaces the in-memory history with the persisted one, keeping the
// seed profile when nothing was persisted.
func (s *ProfileStore) Restore(ctx context.Context) error {
	if s.persister == nil {
		return nil
	}
	loaded, err := s.persister.LoadProfiles(ctx)
	if err != nil {
		return apperrors.NewDataUnavailableError("weight profile store", err)
	}
	if len(loaded) == 0 {
		s.mu.Lock()
		defer s.mu.Unlock()
		if err := s.persister.SaveProfile(ctx, s.history[len(s.history)-1]); err != nil {
			return apperrors.NewDataUnavailableError("weight profile store", err)
		}
		return nil
	}

	valid := make([]*models.WeightProfile, 0, len(loaded))
	for _, p := range loaded {
		if p == nil || p.Validate() != nil {
			continue
		}
		valid = append(valid, p)
	}
	if len(valid) == 0 {
		return fmt.Errorf("no valid weight profile in persisted history")
	}
	sort.SliceStable(valid, func(i, j int) bool { return valid[i].Version < valid[j].Version })

	s.mu.Lock()
	defer s.mu.Unlock()
	s.history = valid
	s.active.Store(valid[len(valid)-1])
	return nil
}

// Publish appends next as the newest version and makes it active. The
// version is assigned here so history stays strictly increasing.
func (s *ProfileStore) Publish(ctx context.Context, next *models.WeightProfile) (*models.WeightProfile, error) {
	if next == nil {
		return nil, fmt.Errorf("profile is required")
	}
	if err := next.Validate(); err != nil {
		return nil, apperrors.NewAdaptationError("refusing to publish invalid profile", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	p := &models.WeightProfile{
		Version:       s.history[len(s.history)-1].Version + 1,
		EffectiveFrom: s.now().UTC(),
		Weights:       next.CopyWeights(),
		Neutral:       next.CopyNeutral(),
		Source:        next.Source,
	}
	if s.persister != nil {
		if err := s.persister.SaveProfile(ctx, p); err != nil {
			return nil, apperrors.NewDataUnavailableError("weight profile store", err)
		}
	}
	s.history = append(s.history, p)
	s.active.Store(p)
	return p, nil
}

// Rollback republishes the weights of an earlier version as a new version.
func (s *ProfileStore) Rollback(ctx context.Context, version int64) (*models.WeightProfile, error) {
	old, ok := s.Get(version)
	if !ok {
		return nil, apperrors.NewProfileNotFoundError(version)
	}
	next := &models.WeightProfile{
		Weights: old.CopyWeights(),
		Neutral: old.CopyNeutral(),
		Source:  fmt.Sprintf("rollback:%d", version),
	}
	return s.Publish(ctx, next)
}

func (s *ProfileStore) Get(version int64) (*models.WeightProfile, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.history {
		if p.Version == version {
			return p, true
		}
	}
	return nil, false
}

// History returns all versions, oldest first.
func (s *ProfileStore) History() []*models.WeightProfile {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*models.WeightProfile(nil), s.history...)
}

// ProfileFromConfig builds the seed profile from name-keyed maps.
func ProfileFromConfig(weights, neutral map[string]float64) *models.WeightProfile {
	p := &models.WeightProfile{
		Weights: make(map[models.SubScoreName]float64, len(weights)),
		Neutral: make(map[models.SubScoreName]float64, len(neutral)),
		Source:  "config",
	}
	for k, v := range weights {
		p.Weights[models.SubScoreName(k)] = v
	}
	for k, v := range neutral {
		p.Neutral[models.SubScoreName(k)] = v
	}
	return p
}
