package local

import (
	"sync"
	"testing"
	"time"

	"github.com/sigea-app/sigea/auth"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changeLog struct {
	mu      sync.Mutex
	changes []auth.Change
}

func (l *changeLog) listen(change auth.Change) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.changes = append(l.changes, change)
}

func (l *changeLog) snapshot() []auth.Change {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]auth.Change(nil), l.changes...)
}

func TestHubSlowSubscribeDoesNotBlockOtherVisitors(t *testing.T) {
	h := newHub()
	block := make(chan struct{})
	defer close(block)

	go h.subscribe("slow", func() *auth.Session {
		<-block
		return nil
	}, func(auth.Change) {})
	require.Eventually(t, func() bool { return h.subscribers("slow") == 1 }, time.Second, time.Millisecond)

	done := make(chan struct{})
	go func() {
		defer close(done)
		var other changeLog
		unsubscribe := h.subscribe("other", func() *auth.Session { return nil }, other.listen)
		defer unsubscribe()
		h.publish("other", auth.EventSignedIn, &auth.Session{Identity: auth.Identity{ID: "U2"}})
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("subscribe and publish for another visitor waited on a slow session read")
	}
}

func TestHubInitialSessionPrecedesChangesPublishedDuringSubscribe(t *testing.T) {
	h := newHub()
	reading := make(chan struct{})
	release := make(chan struct{})
	var log changeLog

	subscribed := make(chan func())
	go func() {
		subscribed <- h.subscribe("v1", func() *auth.Session {
			close(reading)
			<-release
			return nil
		}, log.listen)
	}()

	<-reading
	signedIn := &auth.Session{Identity: auth.Identity{ID: "U1"}}
	h.publish("v1", auth.EventSignedIn, signedIn)
	close(release)
	unsubscribe := <-subscribed
	defer unsubscribe()

	require.Eventually(t, func() bool { return len(log.snapshot()) == 2 }, time.Second, time.Millisecond)
	changes := log.snapshot()
	assert.Equal(t, auth.EventInitialSession, changes[0].Event)
	assert.Equal(t, auth.EventSignedIn, changes[1].Event)
	assert.Less(t, changes[0].Seq, changes[1].Seq)
	assert.Same(t, signedIn, changes[1].Session)
}
