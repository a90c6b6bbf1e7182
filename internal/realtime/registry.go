package realtime

import (
	"hash/fnv"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/noah-isme/gema-exam-api/internal/observability"
)

const shardCount = 32

// Publisher receives the events produced by registry mutations.
type Publisher interface {
	Publish(event Event)
}

// Entry is the live state of one connected student.
type Entry struct {
	UserID      uint      `json:"studentId"`
	Name        string    `json:"name"`
	Role        string    `json:"role"`
	Group       string    `json:"group"`
	Status      Status    `json:"status"`
	CurrentTest string    `json:"currentTest,omitempty"`
	Progress    *int      `json:"progress,omitempty"`
	ConnectedAt time.Time `json:"connectedAt"`
	LastUpdate  time.Time `json:"lastUpdate"`

	connID  string
	version uint64
}

func (e Entry) clone() Entry {
	if e.Progress != nil {
		p := *e.Progress
		e.Progress = &p
	}
	return e
}

func (e Entry) statusUpdate() StatusUpdate {
	return StatusUpdate{
		StudentID:   e.UserID,
		Name:        e.Name,
		Group:       e.Group,
		Status:      e.Status,
		CurrentTest: e.CurrentTest,
		Progress:    e.Progress,
		LastUpdate:  e.LastUpdate,
	}
}

type shard struct {
	mu      sync.RWMutex
	entries map[uint]*Entry
}

// Registry tracks connected students. Mutations lock only the shard owning
// the user; published snapshots are serialized and never go backwards.
type Registry struct {
	shards    [shardCount]*shard
	publisher Publisher
	logger    zerolog.Logger
	now       func() time.Time

	version atomic.Uint64
	closed  atomic.Bool

	emitMu  sync.Mutex
	emitted uint64
}

// NewRegistry builds an empty registry publishing to publisher.
func NewRegistry(publisher Publisher, logger zerolog.Logger) *Registry {
	r := &Registry{
		publisher: publisher,
		logger:    logger.With().Str("component", "presence_registry").Logger(),
		now:       time.Now,
	}
	for i := range r.shards {
		r.shards[i] = &shard{entries: make(map[uint]*Entry)}
	}
	return r
}

func (r *Registry) shardFor(userID uint) *shard {
	h := fnv.New32a()
	_, _ = h.Write([]byte(strconv.FormatUint(uint64(userID), 10)))
	return r.shards[h.Sum32()%shardCount]
}

// Connect registers a session as online, replacing any previous session of
// the same user. connID identifies the connection for Disconnect.
func (r *Registry) Connect(entry Entry, connID string) {
	if entry.UserID == 0 {
		return
	}
	r.apply(entry.UserID, false, func(s *shard, now time.Time) bool {
		entry.Status = StatusOnline
		entry.CurrentTest = ""
		entry.Progress = nil
		entry.ConnectedAt = now
		entry.LastUpdate = now
		entry.connID = connID
		s.entries[entry.UserID] = &entry
		return true
	})
}

// StartTest moves a known session to testing.
func (r *Registry) StartTest(userID uint, testTitle string) {
	r.apply(userID, true, func(s *shard, now time.Time) bool {
		e, ok := s.entries[userID]
		if !ok {
			return false
		}
		e.Status = StatusTesting
		e.CurrentTest = testTitle
		e.Progress = nil
		e.LastUpdate = now
		return true
	})
}

// Progress records percent-complete for a known session without changing its status.
func (r *Registry) Progress(userID uint, percent int) {
	if percent < 0 {
		percent = 0
	}
	if percent > 100 {
		percent = 100
	}
	r.apply(userID, true, func(s *shard, now time.Time) bool {
		e, ok := s.entries[userID]
		if !ok {
			return false
		}
		p := percent
		e.Progress = &p
		e.LastUpdate = now
		return true
	})
}

// Finish moves a testing session back to online.
func (r *Registry) Finish(userID uint) {
	r.apply(userID, true, func(s *shard, now time.Time) bool {
		e, ok := s.entries[userID]
		if !ok || e.Status != StatusTesting {
			return false
		}
		e.Status = StatusOnline
		e.CurrentTest = ""
		e.Progress = nil
		e.LastUpdate = now
		return true
	})
}

// Disconnect removes the session if connID still owns it.
func (r *Registry) Disconnect(userID uint, connID string) {
	r.apply(userID, false, func(s *shard, _ time.Time) bool {
		e, ok := s.entries[userID]
		if !ok || e.connID != connID {
			return false
		}
		delete(s.entries, userID)
		return true
	})
}

// Get returns a copy of the entry for userID.
func (r *Registry) Get(userID uint) (Entry, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	if !ok {
		return Entry{}, false
	}
	return e.clone(), true
}

// Snapshot returns every entry ordered by connection time.
func (r *Registry) Snapshot() []Entry {
	entries := make([]Entry, 0)
	for _, s := range r.shards {
		s.mu.RLock()
		for _, e := range s.entries {
			entries = append(entries, e.clone())
		}
		s.mu.RUnlock()
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].ConnectedAt.Equal(entries[j].ConnectedAt) {
			return entries[i].UserID < entries[j].UserID
		}
		return entries[i].ConnectedAt.Before(entries[j].ConnectedAt)
	})
	return entries
}

// Close stops the registry from accepting further mutations and drops all entries.
func (r *Registry) Close() {
	if !r.closed.CompareAndSwap(false, true) {
		return
	}
	for _, s := range r.shards {
		s.mu.Lock()
		s.entries = make(map[uint]*Entry)
		s.mu.Unlock()
	}
	observability.PresenceSessions().Reset()
}

func (r *Registry) apply(userID uint, delta bool, mutate func(s *shard, now time.Time) bool) {
	if r.closed.Load() {
		return
	}

	s := r.shardFor(userID)
	s.mu.Lock()
	if !mutate(s, r.now().UTC()) {
		s.mu.Unlock()
		return
	}
	v := r.version.Add(1)
	if e, ok := s.entries[userID]; ok {
		e.version = v
	}
	s.mu.Unlock()

	r.emit(userID, v, delta)
}

// emit publishes the delta for the mutation at version v when it is still the
// latest for that user, then a snapshot unless a newer one already went out.
func (r *Registry) emit(userID uint, v uint64, delta bool) {
	r.emitMu.Lock()
	defer r.emitMu.Unlock()

	if delta {
		if e, ok := r.entryAt(userID, v); ok {
			r.publish(EventStudentStatusUpdate, e.statusUpdate())
		}
	}

	if v <= r.emitted {
		return
	}
	current := r.version.Load()
	snapshot := r.Snapshot()
	r.emitted = current
	r.publish(EventOnlineStudents, snapshot)
	r.recordGauges(snapshot)
}

func (r *Registry) entryAt(userID uint, v uint64) (Entry, bool) {
	s := r.shardFor(userID)
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.entries[userID]
	if !ok || e.version != v {
		return Entry{}, false
	}
	return e.clone(), true
}

func (r *Registry) publish(name string, data interface{}) {
	if r.publisher == nil {
		return
	}
	event, err := NewEvent(name, data)
	if err != nil {
		r.logger.Warn().Err(err).Str("event", name).Msg("failed to encode presence event")
		return
	}
	r.publisher.Publish(event)
}

func (r *Registry) recordGauges(snapshot []Entry) {
	counts := map[Status]int{StatusOnline: 0, StatusTesting: 0}
	for _, e := range snapshot {
		counts[e.Status]++
	}
	for status, count := range counts {
		observability.PresenceSessions().WithLabelValues(string(status)).Set(float64(count))
	}
}
