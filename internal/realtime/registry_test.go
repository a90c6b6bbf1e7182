package realtime

import (
	"fmt"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

type recordingPublisher struct {
	mu     sync.Mutex
	events []Event
}

func (p *recordingPublisher) Publish(event Event) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
}

func (p *recordingPublisher) named(name string) []Event {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Event, 0)
	for _, e := range p.events {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

func (p *recordingPublisher) lastSnapshot(t *testing.T) []Entry {
	t.Helper()
	snapshots := p.named(EventOnlineStudents)
	require.NotEmpty(t, snapshots)
	var entries []Entry
	require.NoError(t, snapshots[len(snapshots)-1].Decode(&entries))
	return entries
}

func newTestRegistry() (*Registry, *recordingPublisher) {
	pub := &recordingPublisher{}
	return NewRegistry(pub, zerolog.Nop()), pub
}

func TestRegistryLifecycle(t *testing.T) {
	registry, pub := newTestRegistry()

	registry.Connect(Entry{UserID: 7, Name: "Ayu", Role: "student", Group: "XI-A"}, "c1")
	snapshot := pub.lastSnapshot(t)
	require.Len(t, snapshot, 1)
	require.Equal(t, StatusOnline, snapshot[0].Status)

	registry.StartTest(7, "Algebra")
	snapshot = pub.lastSnapshot(t)
	require.Equal(t, StatusTesting, snapshot[0].Status)
	require.Equal(t, "Algebra", snapshot[0].CurrentTest)

	registry.Progress(7, 140)
	entry, ok := registry.Get(7)
	require.True(t, ok)
	require.Equal(t, StatusTesting, entry.Status)
	require.Equal(t, 100, *entry.Progress)

	updates := pub.named(EventStudentStatusUpdate)
	require.Len(t, updates, 2)
	var delta StatusUpdate
	require.NoError(t, updates[1].Decode(&delta))
	require.Equal(t, uint(7), delta.StudentID)
	require.Equal(t, 100, *delta.Progress)

	registry.Finish(7)
	entry, _ = registry.Get(7)
	require.Equal(t, StatusOnline, entry.Status)
	require.Empty(t, entry.CurrentTest)
	require.Nil(t, entry.Progress)

	registry.Disconnect(7, "c1")
	require.Empty(t, pub.lastSnapshot(t))
	_, ok = registry.Get(7)
	require.False(t, ok)
}

func TestRegistryIgnoresUnknownIdentities(t *testing.T) {
	registry, pub := newTestRegistry()

	registry.StartTest(42, "Ghost")
	registry.Progress(42, 50)
	registry.Finish(42)
	registry.Disconnect(42, "nope")
	registry.Connect(Entry{UserID: 0}, "c0")

	require.Empty(t, pub.named(EventOnlineStudents))
	require.Empty(t, pub.named(EventStudentStatusUpdate))
}

func TestRegistryStaleDisconnectKeepsNewSession(t *testing.T) {
	registry, pub := newTestRegistry()

	registry.Connect(Entry{UserID: 3, Name: "Budi"}, "old")
	registry.Connect(Entry{UserID: 3, Name: "Budi"}, "new")
	registry.Disconnect(3, "old")

	_, ok := registry.Get(3)
	require.True(t, ok)
	require.Len(t, pub.lastSnapshot(t), 1)

	registry.Disconnect(3, "new")
	require.Empty(t, pub.lastSnapshot(t))
}

func TestRegistryConcurrentMutations(t *testing.T) {
	registry, pub := newTestRegistry()

	const users = 64
	var wg sync.WaitGroup
	for i := 1; i <= users; i++ {
		wg.Add(1)
		go func(id uint) {
			defer wg.Done()
			conn := fmt.Sprintf("conn-%d", id)
			registry.Connect(Entry{UserID: id, Name: conn}, conn)
			registry.StartTest(id, "Load")
			for p := 0; p <= 100; p += 25 {
				registry.Progress(id, p)
			}
			if id%2 == 0 {
				registry.Disconnect(id, conn)
			}
		}(uint(i))
	}
	wg.Wait()

	snapshot := registry.Snapshot()
	require.Len(t, snapshot, users/2)
	for _, entry := range snapshot {
		require.Equal(t, uint(1), entry.UserID%2)
		require.Equal(t, StatusTesting, entry.Status)
		require.Equal(t, 100, *entry.Progress)
	}

	// the last published snapshot reflects the final state
	require.Len(t, pub.lastSnapshot(t), users/2)
}

func TestRegistryCloseStopsMutations(t *testing.T) {
	registry, pub := newTestRegistry()
	registry.Connect(Entry{UserID: 1}, "c1")
	before := len(pub.named(EventOnlineStudents))

	registry.Close()
	registry.Connect(Entry{UserID: 2}, "c2")

	require.Empty(t, registry.Snapshot())
	require.Len(t, pub.named(EventOnlineStudents), before)
}
