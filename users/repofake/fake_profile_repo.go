package fakeprofilerepo

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/users"
)

var _ users.ProfileRepo = (*FakeProfileRepo)(nil)

type FakeProfileRepo struct {
	profiles map[string]users.UserProfile
	lock     sync.RWMutex

	// Err, when set, is returned by every call. Used to simulate an unreachable store.
	err error
}

func NewFakeProfileRepo() *FakeProfileRepo {
	return &FakeProfileRepo{
		profiles: make(map[string]users.UserProfile),
	}
}

// SetError makes every subsequent call fail with err (nil restores normal behaviour).
func (pr *FakeProfileRepo) SetError(err error) {
	pr.lock.Lock()
	defer pr.lock.Unlock()
	pr.err = err
}

func (pr *FakeProfileRepo) GetByID(ctx context.Context, id string) (*users.UserProfile, error) {
	pr.lock.RLock()
	defer pr.lock.RUnlock()

	if pr.err != nil {
		return nil, pr.err
	}
	p, ok := pr.profiles[id]
	if !ok {
		return nil, nil
	}
	// Return a copy to prevent external modifications
	return &p, nil
}

func (pr *FakeProfileRepo) Update(ctx context.Context, id string, update users.ProfileUpdate) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if pr.err != nil {
		return pr.err
	}
	p, ok := pr.profiles[id]
	if !ok {
		return apperrors.ErrNotFound
	}
	update.Apply(&p)
	p.UpdatedAt = time.Now()
	pr.profiles[id] = p
	return nil
}

func (pr *FakeProfileRepo) Upsert(ctx context.Context, profile *users.UserProfile) error {
	pr.lock.Lock()
	defer pr.lock.Unlock()

	if pr.err != nil {
		return pr.err
	}
	if profile.ID == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "profile id is required")
	}
	pr.profiles[profile.ID] = *profile
	return nil
}
