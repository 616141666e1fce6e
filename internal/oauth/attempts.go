package oauth

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"
	"golang.org/x/oauth2"
)

type deviceAttempt struct {
	auth      *oauth2.DeviceAuthResponse
	sessionID string
	expiresAt time.Time
}

// DeviceAttempts tracks device logins in flight, keyed by a ULID attempt id.
// An attempt is visible only to the session that started it.
type DeviceAttempts struct {
	mu       sync.Mutex
	attempts map[string]deviceAttempt
	now      func() time.Time
}

func NewDeviceAttempts() *DeviceAttempts {
	return &DeviceAttempts{
		attempts: make(map[string]deviceAttempt),
		now:      time.Now,
	}
}

// Add records an attempt and returns its id.
func (d *DeviceAttempts) Add(sessionID string, auth *oauth2.DeviceAuthResponse, expiresAt time.Time) string {
	id := ulid.Make().String()

	d.mu.Lock()
	defer d.mu.Unlock()
	now := d.now()
	for k, a := range d.attempts {
		if !now.Before(a.expiresAt) {
			delete(d.attempts, k)
		}
	}
	d.attempts[id] = deviceAttempt{auth: auth, sessionID: sessionID, expiresAt: expiresAt}
	return id
}

func (d *DeviceAttempts) get(sessionID, id string) (deviceAttempt, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	a, ok := d.attempts[id]
	if !ok || a.sessionID != sessionID {
		return deviceAttempt{}, false
	}
	if !d.now().Before(a.expiresAt) {
		delete(d.attempts, id)
		return deviceAttempt{}, false
	}
	return a, true
}

func (d *DeviceAttempts) remove(id string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	delete(d.attempts, id)
}

// Len counts attempts, including expired ones not yet evicted.
func (d *DeviceAttempts) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.attempts)
}
