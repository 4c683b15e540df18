package ratelimit

import (
	"log"
	"sort"
	"sync"
	"time"
)

// BanThreshold escalates the ban duration as failures accumulate.
type BanThreshold struct {
	Fails    int
	Duration time.Duration
}

// DefaultBanThresholds matches the escalation used for login protection:
// 5 failures bans for 30 minutes, 10 for 2 hours, 20 for a day.
func DefaultBanThresholds() []BanThreshold {
	return []BanThreshold{
		{Fails: 5, Duration: 30 * time.Minute},
		{Fails: 10, Duration: 2 * time.Hour},
		{Fails: 20, Duration: 24 * time.Hour},
	}
}

type banState struct {
	failCount   int
	bannedUntil time.Time
}

// BanManager tracks failed login attempts per client and bans repeat
// offenders for progressively longer windows.
type BanManager struct {
	mu         sync.Mutex
	thresholds []BanThreshold
	state      map[string]*banState
}

// NewBanManager creates a BanManager; nil thresholds use the defaults.
func NewBanManager(thresholds []BanThreshold) *BanManager {
	if len(thresholds) == 0 {
		thresholds = DefaultBanThresholds()
	}
	sorted := make([]BanThreshold, len(thresholds))
	copy(sorted, thresholds)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].Fails > sorted[j].Fails })
	return &BanManager{
		thresholds: sorted,
		state:      map[string]*banState{},
	}
}

// IsBanned reports whether the client is currently banned. An expired ban is
// cleared on the way out.
func (b *BanManager) IsBanned(clientID string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[clientID]
	if !ok || s.bannedUntil.IsZero() {
		return false
	}
	if time.Now().Before(s.bannedUntil) {
		return true
	}
	delete(b.state, clientID)
	return false
}

// BanRemaining returns how much ban time is left, or zero.
func (b *BanManager) BanRemaining(clientID string) time.Duration {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[clientID]
	if !ok || s.bannedUntil.IsZero() {
		return 0
	}
	remaining := time.Until(s.bannedUntil)
	if remaining < 0 {
		return 0
	}
	return remaining
}

// RecordFailure counts a failed attempt and applies the highest matching
// ban threshold.
func (b *BanManager) RecordFailure(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	s, ok := b.state[clientID]
	if !ok {
		s = &banState{}
		b.state[clientID] = s
	}
	s.failCount++

	for _, t := range b.thresholds {
		if s.failCount >= t.Fails {
			s.bannedUntil = time.Now().Add(t.Duration)
			log.Printf("[ratelimit] client %s banned for %v after %d failed attempts", clientID, t.Duration, s.failCount)
			break
		}
	}
}

// RecordSuccess resets the client's failure count.
func (b *BanManager) RecordSuccess(clientID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.state, clientID)
}
