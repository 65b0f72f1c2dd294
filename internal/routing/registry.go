package routing

import (
	"sync"
	"time"

	"github.com/aurum-solar/core/internal/model"
)

// PlatformRegistry holds the configured buyer platforms, guarded by a
// single mutex — platform mutation (health, acceptance rate) happens
// through the feedback loop and dispatch workers, so routing reads a
// consistent snapshot per spec §5 ("Platform capacity counters are
// updated through the atomic counter service only; no in-memory
// counter state is shared without guarding" — the same discipline
// applies to the broader platform record).
type PlatformRegistry struct {
	mu        sync.RWMutex
	platforms map[string]*model.Platform
}

// NewPlatformRegistry builds an empty registry.
func NewPlatformRegistry() *PlatformRegistry {
	return &PlatformRegistry{platforms: make(map[string]*model.Platform)}
}

// Upsert adds or replaces a platform definition.
func (r *PlatformRegistry) Upsert(p *model.Platform) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.platforms[p.Code] = p
}

// Get returns a copy-free pointer to the platform by code.
func (r *PlatformRegistry) Get(code string) (*model.Platform, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.platforms[code]
	return p, ok
}

// All returns every registered platform.
func (r *PlatformRegistry) All() []*model.Platform {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*model.Platform, 0, len(r.platforms))
	for _, p := range r.platforms {
		out = append(out, p)
	}
	return out
}

// RecordAttemptOutcome satisfies internal/dispatch.PlatformHealthRecorder,
// resolving platformCode to its registered Platform and delegating to
// its own EWMA bookkeeping (spec §4.5 health tracking). Unknown
// platform codes are ignored; a dispatch attempt against a platform
// that has since been removed from the registry has nothing to update.
func (r *PlatformRegistry) RecordAttemptOutcome(platformCode string, success bool, responseTime time.Duration) {
	r.mu.RLock()
	p, ok := r.platforms[platformCode]
	r.mu.RUnlock()
	if !ok {
		return
	}
	p.RecordAttemptOutcome(success, responseTime)
}
