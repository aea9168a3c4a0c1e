package fakeuserrepo

import (
	"context"
	"sync"
	"time"

	"github.com/jrsteele09/go-cookie-auth/users"
)

var _ users.UserRepo = (*FakeUserRepo)(nil)

// FakeUserRepo is an in-memory credential store. It backs STORE_DRIVER=memory and the tests.
type FakeUserRepo struct {
	users map[string]*users.User
	lock  sync.RWMutex

	// Err, when set, is returned by every call to simulate an unavailable store.
	Err error
}

func NewFakeUserRepo() *FakeUserRepo {
	return &FakeUserRepo{
		users: make(map[string]*users.User),
	}
}

func (ur *FakeUserRepo) Create(_ context.Context, user *users.User) error {
	ur.lock.Lock()
	defer ur.lock.Unlock()

	if ur.Err != nil {
		return ur.Err
	}
	if _, ok := ur.users[user.Username]; ok {
		return users.ErrAlreadyExists
	}
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now()
	}
	stored := *user
	ur.users[user.Username] = &stored
	return nil
}

func (ur *FakeUserRepo) GetByUsername(_ context.Context, username string) (*users.User, error) {
	ur.lock.RLock()
	defer ur.lock.RUnlock()

	if ur.Err != nil {
		return nil, ur.Err
	}
	u, ok := ur.users[username]
	if !ok {
		return nil, users.ErrNotFound
	}
	found := *u
	return &found, nil
}

// Len returns the number of stored users.
func (ur *FakeUserRepo) Len() int {
	ur.lock.RLock()
	defer ur.lock.RUnlock()
	return len(ur.users)
}
