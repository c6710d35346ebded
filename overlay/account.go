package overlay

import (
	"sync"

	"github.com/lofire/broker/errs"
	"github.com/lofire/broker/ids"
)

// User is a per-user account record: which client keys are authorised to
// act on the user's behalf, and whether the user is an administrator
// (spec.md §3). Created by a signed AddUser from an admin; destroyed by
// DelUser.
type User struct {
	Admin   bool
	Clients map[ids.ClientId]struct{}
}

// Accounts is the broker-wide user/client registry. Unlike the overlay
// registry this core keeps it purely in memory: account membership is
// small and, per spec.md's scope, persisted identically to however the
// embedding broker process persists the rest of its local state.
type Accounts struct {
	mu    sync.RWMutex
	users map[ids.UserId]*User
}

// NewAccounts returns an empty registry with a single bootstrap admin,
// the user that can add every subsequent user.
func NewAccounts(admin ids.UserId) *Accounts {
	return &Accounts{
		users: map[ids.UserId]*User{
			admin: {Admin: true, Clients: make(map[ids.ClientId]struct{})},
		},
	}
}

// IsAdmin reports whether user is a known administrator.
func (a *Accounts) IsAdmin(user ids.UserId) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[user]
	return ok && u.Admin
}

// AddUser registers a new user, failing UserAlreadyExists if user is
// already known (spec.md §4.4.1, §8 scenario 5).
func (a *Accounts) AddUser(user ids.UserId, admin bool) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, exists := a.users[user]; exists {
		return errs.New(errs.UserAlreadyExists)
	}
	a.users[user] = &User{Admin: admin, Clients: make(map[ids.ClientId]struct{})}
	return nil
}

// DelUser removes a user and all of its authorised clients.
func (a *Accounts) DelUser(user ids.UserId) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.users[user]; !ok {
		return errs.New(errs.NotFound)
	}
	delete(a.users, user)
	return nil
}

// AddClient authorises client to act for user.
func (a *Accounts) AddClient(user ids.UserId, client ids.ClientId) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[user]
	if !ok {
		return errs.New(errs.NotFound)
	}
	u.Clients[client] = struct{}{}
	return nil
}

// DelClient revokes client's authorisation to act for user.
func (a *Accounts) DelClient(user ids.UserId, client ids.ClientId) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	u, ok := a.users[user]
	if !ok {
		return errs.New(errs.NotFound)
	}
	delete(u.Clients, client)
	return nil
}

// HasClient reports whether client is a known, authorised client of user
// — the check the authentication handshake performs after signature
// verification (spec.md §4.7 step 4).
func (a *Accounts) HasClient(user ids.UserId, client ids.ClientId) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	u, ok := a.users[user]
	if !ok {
		return false
	}
	_, ok = u.Clients[client]
	return ok
}

// HasUser reports whether user is known.
func (a *Accounts) HasUser(user ids.UserId) bool {
	a.mu.RLock()
	defer a.mu.RUnlock()
	_, ok := a.users[user]
	return ok
}
