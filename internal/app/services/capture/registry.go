package capture

import (
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/proteinlens/proteinlens/internal/app/metrics"
	"github.com/proteinlens/proteinlens/pkg/logger"
)

// ErrSessionNotFound is returned for unknown IDs and for sessions owned by a
// different user, so lookups never confirm another user's session exists.
var ErrSessionNotFound = errors.New("session not found")

// ErrSessionLimit is returned when a user already holds the maximum number of
// live sessions.
var ErrSessionLimit = errors.New("session limit reached")

// DefaultMaxSessionsPerUser bounds live sessions per user.
const DefaultMaxSessionsPerUser = 8

// Registry tracks live capture sessions. Sessions are ephemeral: nothing is
// persisted, and the reaper drops idle ones.
type Registry struct {
	mu         sync.RWMutex
	drivers    map[string]*Driver
	perUser    map[string]int
	maxPerUser int
	log        *logger.Logger
}

// NewRegistry creates an empty registry. maxPerUser <= 0 applies the default.
func NewRegistry(maxPerUser int, log *logger.Logger) *Registry {
	if maxPerUser <= 0 {
		maxPerUser = DefaultMaxSessionsPerUser
	}
	if log == nil {
		log = logger.NewDefault("capture")
	}
	return &Registry{
		drivers:    make(map[string]*Driver),
		perUser:    make(map[string]int),
		maxPerUser: maxPerUser,
		log:        log,
	}
}

// Create registers a fresh idle session for userID.
func (r *Registry) Create(userID string) (*Driver, error) {
	if userID == "" {
		return nil, errors.New("user id required")
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if r.perUser[userID] >= r.maxPerUser {
		return nil, ErrSessionLimit
	}

	id := uuid.NewString()
	drv := newDriver(id, userID, r.log)
	r.drivers[id] = drv
	r.perUser[userID]++
	metrics.SetActiveSessions(len(r.drivers))

	r.log.WithField("session_id", id).
		WithField("user_id", userID).
		Info("capture session created")
	return drv, nil
}

// Get returns the driver for id, scoped to its owner.
func (r *Registry) Get(userID, id string) (*Driver, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	drv, ok := r.drivers[id]
	if !ok || drv.Snapshot().Session.UserID != userID {
		return nil, ErrSessionNotFound
	}
	return drv, nil
}

// Remove closes and forgets a session.
func (r *Registry) Remove(userID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	drv, ok := r.drivers[id]
	if !ok || drv.Snapshot().Session.UserID != userID {
		return ErrSessionNotFound
	}

	drv.Close()
	delete(r.drivers, id)
	r.decrementLocked(drv.Snapshot().Session.UserID)
	metrics.SetActiveSessions(len(r.drivers))

	r.log.WithField("session_id", id).Info("capture session removed")
	return nil
}

// Expire closes and forgets sessions idle longer than ttl. Closing cancels
// any in-flight attempt, which is the abandonment the collaborator contract
// expects. Returns how many were dropped.
func (r *Registry) Expire(ttl time.Duration) int {
	cutoff := time.Now().UTC().Add(-ttl)

	r.mu.Lock()
	defer r.mu.Unlock()

	expired := 0
	for id, drv := range r.drivers {
		if drv.LastActivity().After(cutoff) {
			continue
		}
		drv.Close()
		delete(r.drivers, id)
		r.decrementLocked(drv.Snapshot().Session.UserID)
		expired++
		r.log.WithField("session_id", id).Info("capture session expired")
	}
	if expired > 0 {
		metrics.SetActiveSessions(len(r.drivers))
	}
	return expired
}

// Len reports how many sessions are live.
func (r *Registry) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.drivers)
}

func (r *Registry) decrementLocked(userID string) {
	if r.perUser[userID] <= 1 {
		delete(r.perUser, userID)
		return
	}
	r.perUser[userID]--
}
