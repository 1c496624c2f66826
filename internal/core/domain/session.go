package domain

import "time"

// Session represents a server-side login session used by the session credential strategy.
type Session struct {
	ID        string
	UserID    string
	Role      Role
	TokenHash string
	IP        *string
	UserAgent *string
	CreatedAt time.Time
	UpdatedAt time.Time
	ExpiresAt time.Time
}

// IsActive reports whether the session has not yet expired at the supplied moment.
func (s Session) IsActive(at time.Time) bool {
	return s.ExpiresAt.After(at)
}

// NeedsRefresh reports whether updateAge has elapsed since the last refresh.
func (s Session) NeedsRefresh(at time.Time, updateAge time.Duration) bool {
	if updateAge <= 0 {
		return false
	}
	return !at.Before(s.UpdatedAt.Add(updateAge))
}

// Extend pushes the expiry forward by lifetime, never past maxLifetime from creation.
// Returns true when the session changed.
func (s *Session) Extend(at time.Time, lifetime, maxLifetime time.Duration) bool {
	next := at.Add(lifetime)
	if maxLifetime > 0 {
		if limit := s.CreatedAt.Add(maxLifetime); next.After(limit) {
			next = limit
		}
	}
	s.UpdatedAt = at
	if !next.After(s.ExpiresAt) {
		return false
	}
	s.ExpiresAt = next
	return true
}
