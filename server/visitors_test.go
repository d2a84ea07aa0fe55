package server_test

import (
	"sync"
	"testing"
	"time"

	"github.com/sigea-app/sigea/auth"
	"github.com/sigea-app/sigea/auth/backendfake"
	"github.com/sigea-app/sigea/server"
	fakeprofilerepo "github.com/sigea-app/sigea/users/repofake"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type clock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *clock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// stalledBackend never returns from OnAuthStateChange until released.
type stalledBackend struct {
	*backendfake.FakeBackend
	release chan struct{}
}

func (b *stalledBackend) OnAuthStateChange(fn auth.Listener) func() {
	<-b.release
	return b.FakeBackend.OnAuthStateChange(fn)
}

func TestVisitorsSlowSubscriptionDoesNotBlockOthers(t *testing.T) {
	stalled := &stalledBackend{FakeBackend: backendfake.NewFakeBackend(), release: make(chan struct{})}
	visitors := server.NewVisitors(func(visitorID string) auth.Backend {
		if visitorID == "slow" {
			return stalled
		}
		return backendfake.NewFakeBackend()
	}, fakeprofilerepo.NewFakeProfileRepo())
	defer visitors.Close()
	defer close(stalled.release)

	go visitors.Get("slow")
	require.Eventually(t, func() bool { return visitors.Len() == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		visitors.Get("other")
		visitors.Get("slow")
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("registry blocked behind one visitor's subscription")
	}
	assert.Equal(t, 2, visitors.Len())
}

func TestVisitorsReuseController(t *testing.T) {
	visitors := server.NewVisitors(func(string) auth.Backend { return backendfake.NewFakeBackend() }, fakeprofilerepo.NewFakeProfileRepo())
	defer visitors.Close()

	first := visitors.Get("a")
	assert.Same(t, first, visitors.Get("a"))
	assert.NotSame(t, first, visitors.Get("b"))
	assert.Equal(t, 2, visitors.Len())
}

func TestVisitorsSweepClosesIdleControllers(t *testing.T) {
	now := &clock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	visitors := server.NewVisitors(
		func(string) auth.Backend { return backendfake.NewFakeBackend() },
		fakeprofilerepo.NewFakeProfileRepo(),
		server.WithIdleTimeout(time.Minute),
		server.WithNowTime(now.Now),
	)
	defer visitors.Close()

	idle := visitors.Get("idle")
	visitors.Get("busy")

	now.Advance(45 * time.Second)
	visitors.Get("busy")
	assert.Equal(t, 0, visitors.Sweep())

	now.Advance(30 * time.Second)
	assert.Equal(t, 1, visitors.Sweep())
	assert.Equal(t, 1, visitors.Len())

	// a returning visitor gets a fresh controller
	fresh := visitors.Get("idle")
	require.NotNil(t, fresh)
	assert.NotSame(t, idle, fresh)
}

func TestVisitorsWithoutBackendReportConfigurationError(t *testing.T) {
	visitors := server.NewVisitors(nil, fakeprofilerepo.NewFakeProfileRepo())
	defer visitors.Close()

	snap := visitors.Get("a").Snapshot()
	assert.Error(t, snap.ConfigError)
	assert.Nil(t, snap.Session)
}
