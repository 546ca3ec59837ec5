package app

import (
	"sync"

	"github.com/dkeye/Parley/internal/domain"
	"github.com/rs/zerolog/log"
)

// Users resolves display names to logical identities. A name is a claim, not a
// credential: whoever joins as "alice" becomes the existing alice.
type Users struct {
	mu     sync.RWMutex
	byID   map[domain.UserID]domain.User
	byName map[string]domain.UserID
}

func NewUsers() *Users {
	return &Users{
		byID:   make(map[domain.UserID]domain.User),
		byName: make(map[string]domain.UserID),
	}
}

func (u *Users) ResolveOrCreate(username string) (domain.User, error) {
	if err := domain.ValidateUsername(username); err != nil {
		return domain.User{}, err
	}
	u.mu.Lock()
	defer u.mu.Unlock()
	if id, ok := u.byName[username]; ok {
		return u.byID[id], nil
	}
	user, err := domain.NewUser(username)
	if err != nil {
		return domain.User{}, err
	}
	u.byID[user.ID] = *user
	u.byName[username] = user.ID
	log.Info().Str("module", "app.users").Str("user", string(user.ID)).Str("username", username).Msg("created new user")
	return *user, nil
}

func (u *Users) Get(id domain.UserID) (domain.User, bool) {
	u.mu.RLock()
	defer u.mu.RUnlock()
	user, ok := u.byID[id]
	return user, ok
}
