package fakesessionrepo

import (
	"context"
	"sync"
	"time"

	apperrors "github.com/sigea-app/sigea/internal/errors"
	"github.com/sigea-app/sigea/sessions"
)

var _ sessions.Repo = (*FakeSessionRepo)(nil)

type binding struct {
	token     string
	expiresAt time.Time
}

type FakeSessionRepo struct {
	records  map[string]sessions.Record
	bindings map[string]binding // visitorID to token
	lock     sync.RWMutex
	nowTime  func() time.Time
}

func NewFakeSessionRepo() *FakeSessionRepo {
	return &FakeSessionRepo{
		records:  make(map[string]sessions.Record),
		bindings: make(map[string]binding),
		nowTime:  time.Now,
	}
}

func (sr *FakeSessionRepo) Upsert(ctx context.Context, record *sessions.Record) error {
	if record == nil || record.Token == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "session token is required")
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.records[record.Token] = *record
	return nil
}

func (sr *FakeSessionRepo) Get(ctx context.Context, token string) (*sessions.Record, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	record, ok := sr.records[token]
	if !ok {
		return nil, apperrors.ErrSessionNotFound
	}
	return &record, nil
}

func (sr *FakeSessionRepo) Delete(ctx context.Context, token string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.records, token)
	return nil
}

func (sr *FakeSessionRepo) Bind(ctx context.Context, visitorID, token string, expiresAt time.Time) error {
	if visitorID == "" {
		return apperrors.Wrapf(apperrors.ErrInvalidRequest, "visitorID is required")
	}
	sr.lock.Lock()
	defer sr.lock.Unlock()

	sr.bindings[visitorID] = binding{token: token, expiresAt: expiresAt}
	return nil
}

func (sr *FakeSessionRepo) Bound(ctx context.Context, visitorID string) (string, error) {
	sr.lock.RLock()
	defer sr.lock.RUnlock()

	b, ok := sr.bindings[visitorID]
	if !ok || !sr.nowTime().Before(b.expiresAt) {
		return "", nil
	}
	return b.token, nil
}

func (sr *FakeSessionRepo) Unbind(ctx context.Context, visitorID string) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	delete(sr.bindings, visitorID)
	return nil
}

func (sr *FakeSessionRepo) DeleteExpired(ctx context.Context, before time.Time) error {
	sr.lock.Lock()
	defer sr.lock.Unlock()

	for token, record := range sr.records {
		if record.ExpiresAt.Before(before) {
			delete(sr.records, token)
		}
	}
	for visitorID, b := range sr.bindings {
		if b.expiresAt.Before(before) {
			delete(sr.bindings, visitorID)
		}
	}
	return nil
}
