package ratelimit

import (
	"rpcguard/internal/models"
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// AccessList holds the whitelist and the time-bounded blacklist. Whitelisted
// identifiers bypass the bucket entirely; blacklisted ones are rejected until
// their entry expires. Expired blacklist entries are purged lazily on lookup
// and in bulk by the cleanup scheduler.
type AccessList struct {
	clock clockwork.Clock

	mu        sync.RWMutex
	whitelist map[string]struct{}
	blacklist map[string]time.Time
}

// NewAccessList creates an empty access list seeded with the given whitelist.
func NewAccessList(clock clockwork.Clock, whitelist []string) *AccessList {
	a := &AccessList{
		clock:     clock,
		whitelist: make(map[string]struct{}, len(whitelist)),
		blacklist: make(map[string]time.Time),
	}
	for _, id := range whitelist {
		if id != "" {
			a.whitelist[id] = struct{}{}
		}
	}
	return a
}

// AddWhitelist is idempotent.
func (a *AccessList) AddWhitelist(id string) {
	a.mu.Lock()
	a.whitelist[id] = struct{}{}
	a.mu.Unlock()
}

// RemoveWhitelist reports whether the identifier was present.
func (a *AccessList) RemoveWhitelist(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.whitelist[id]
	delete(a.whitelist, id)
	return ok
}

func (a *AccessList) IsWhitelisted(id string) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.whitelist[id]
	return ok
}

// AddBlacklist blocks id for d starting now and returns the expiry. A
// non-positive d means models.DefaultBlacklistDuration. A second call replaces
// the previous expiry.
func (a *AccessList) AddBlacklist(id string, d time.Duration) time.Time {
	if d <= 0 {
		d = models.DefaultBlacklistDuration
	}
	until := a.clock.Now().Add(d)
	a.AddBlacklistUntil(id, until)
	return until
}

// AddBlacklistUntil blocks id until an absolute instant. It is used when
// restoring persisted entries.
func (a *AccessList) AddBlacklistUntil(id string, until time.Time) {
	a.mu.Lock()
	a.blacklist[id] = until
	a.mu.Unlock()
}

// RemoveBlacklist reports whether an entry (expired or not) was removed.
func (a *AccessList) RemoveBlacklist(id string) bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	_, ok := a.blacklist[id]
	delete(a.blacklist, id)
	return ok
}

// IsBlacklisted reports whether id is currently blocked.
func (a *AccessList) IsBlacklisted(id string) bool {
	_, ok := a.BlacklistRemaining(id)
	return ok
}

// BlacklistRemaining returns the remaining block duration when id is
// blacklisted. An expired entry is removed and reported as not blacklisted.
func (a *AccessList) BlacklistRemaining(id string) (time.Duration, bool) {
	now := a.clock.Now()

	a.mu.RLock()
	until, ok := a.blacklist[id]
	a.mu.RUnlock()
	if !ok {
		return 0, false
	}
	if !now.After(until) {
		return until.Sub(now), true
	}

	a.mu.Lock()
	// Re-check: the entry may have been replaced since the read lock was released.
	if cur, ok := a.blacklist[id]; ok && now.After(cur) {
		delete(a.blacklist, id)
	} else if ok {
		a.mu.Unlock()
		return cur.Sub(now), true
	}
	a.mu.Unlock()
	return 0, false
}

// Peek is BlacklistRemaining without the lazy purge.
func (a *AccessList) Peek(id string) (time.Duration, bool) {
	now := a.clock.Now()
	a.mu.RLock()
	defer a.mu.RUnlock()
	until, ok := a.blacklist[id]
	if !ok || now.After(until) {
		return 0, false
	}
	return until.Sub(now), true
}

// PurgeExpired drops every blacklist entry whose expiry is before now and
// returns the removed identifiers.
func (a *AccessList) PurgeExpired(now time.Time) []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	var removed []string
	for id, until := range a.blacklist {
		if now.After(until) {
			delete(a.blacklist, id)
			removed = append(removed, id)
		}
	}
	return removed
}

// Counts returns the current whitelist and blacklist sizes.
func (a *AccessList) Counts() (whitelisted, blacklisted int) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return len(a.whitelist), len(a.blacklist)
}
