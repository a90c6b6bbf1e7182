package service

import (
	"encoding/json"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
)

type fakeLiveConn struct {
	inbound   chan realtime.Event
	closed    chan struct{}
	closeOnce sync.Once

	mu      sync.Mutex
	written []realtime.Event
}

func newFakeLiveConn() *fakeLiveConn {
	return &fakeLiveConn{inbound: make(chan realtime.Event, 16), closed: make(chan struct{})}
}

func (c *fakeLiveConn) ReadJSON(v interface{}) error {
	select {
	case event, ok := <-c.inbound:
		if !ok {
			return io.EOF
		}
		*(v.(*realtime.Event)) = event
		return nil
	case <-c.closed:
		return io.EOF
	}
}

func (c *fakeLiveConn) WriteJSON(v interface{}) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if event, ok := v.(realtime.Event); ok {
		c.written = append(c.written, event)
	}
	return nil
}

func (c *fakeLiveConn) WriteControl(int, []byte, time.Time) error { return nil }
func (c *fakeLiveConn) SetReadDeadline(time.Time) error           { return nil }
func (c *fakeLiveConn) SetReadLimit(int64)                         {}
func (c *fakeLiveConn) SetPongHandler(func(string) error)          {}

func (c *fakeLiveConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeLiveConn) send(t *testing.T, name string, data interface{}) {
	t.Helper()
	event, err := realtime.NewEvent(name, data)
	require.NoError(t, err)
	c.inbound <- event
}

func (c *fakeLiveConn) received(name string) []realtime.Event {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]realtime.Event, 0)
	for _, e := range c.written {
		if e.Name == name {
			out = append(out, e)
		}
	}
	return out
}

type liveFixture struct {
	*examFixture
	relay   *realtime.Relay
	service LiveSessionService
}

func newLiveFixture(t *testing.T) *liveFixture {
	f := newExamFixture(t, SubmissionConfig{}, nil)
	relay := realtime.NewRelay(64, testLogger())
	t.Cleanup(relay.Close)
	bridge := realtime.NewBridge(relay, nil, nil, "", "node-a", testLogger())
	f.presence = realtime.NewRegistry(relay, testLogger())
	f.submissions.presence = f.presence

	svc := NewLiveSessionService(f.presence, relay, bridge, f.submissions, f.users, LiveConfig{
		PingInterval: time.Hour,
		PongTimeout:  2 * time.Hour,
		EventRate:    1000,
		EventBurst:   1000,
	}, testLogger())
	return &liveFixture{examFixture: f, relay: relay, service: svc}
}

func serve(svc LiveSessionService, conn LiveConn, opts LiveConnectionOptions) <-chan struct{} {
	done := make(chan struct{})
	go func() {
		defer close(done)
		svc.ServeConnection(conn, opts)
	}()
	return done
}

func TestLiveSessionStudentPresence(t *testing.T) {
	lf := newLiveFixture(t)
	student := seedStudent(t, lf.db, "Vina", "XI-A")

	conn := newFakeLiveConn()
	done := serve(lf.service, conn, LiveConnectionOptions{UserID: student.ID, Role: models.RoleStudent, Name: "query name", Group: "query group"})

	require.Eventually(t, func() bool {
		_, ok := lf.presence.Get(student.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	entry, _ := lf.presence.Get(student.ID)
	require.Equal(t, student.FullName(), entry.Name)
	require.Equal(t, "XI-A", entry.Group)
	require.Equal(t, realtime.StatusOnline, entry.Status)

	conn.send(t, realtime.EventTestStarted, map[string]interface{}{"studentId": student.ID + 100, "testTitle": "Spoofed"})
	conn.send(t, realtime.EventTestStarted, map[string]interface{}{"studentId": student.ID, "testTitle": "Algoritma"})
	conn.send(t, realtime.EventTestProgress, map[string]interface{}{"studentId": student.ID, "progress": 140})

	require.Eventually(t, func() bool {
		e, ok := lf.presence.Get(student.ID)
		return ok && e.Progress != nil && *e.Progress == 100
	}, time.Second, 5*time.Millisecond)

	entry, _ = lf.presence.Get(student.ID)
	require.Equal(t, realtime.StatusTesting, entry.Status)
	require.Equal(t, "Algoritma", entry.CurrentTest)

	close(conn.inbound)
	<-done

	_, ok := lf.presence.Get(student.ID)
	require.False(t, ok)
	require.Empty(t, lf.service.OnlineStudents())
}

func TestLiveSessionStudentWithoutProfileUsesQuery(t *testing.T) {
	lf := newLiveFixture(t)

	conn := newFakeLiveConn()
	done := serve(lf.service, conn, LiveConnectionOptions{UserID: 4040, Role: models.RoleStudent, Name: "Tamu", Group: "UMUM"})

	require.Eventually(t, func() bool {
		_, ok := lf.presence.Get(4040)
		return ok
	}, time.Second, 5*time.Millisecond)
	entry, _ := lf.presence.Get(4040)
	require.Equal(t, "Tamu", entry.Name)
	require.Equal(t, "UMUM", entry.Group)

	_ = conn.Close()
	<-done
}

func TestLiveSessionTestStartedRecordsAttempt(t *testing.T) {
	lf := newLiveFixture(t)
	student := seedStudent(t, lf.db, "Wati", "XI-A")
	test := twoQuestionExam(t, lf.db, "XI-A")

	conn := newFakeLiveConn()
	done := serve(lf.service, conn, LiveConnectionOptions{UserID: student.ID, Role: models.RoleStudent})

	conn.send(t, realtime.EventTestStarted, map[string]interface{}{"studentId": student.ID, "testId": test.ID})
	require.Eventually(t, func() bool {
		e, ok := lf.presence.Get(student.ID)
		return ok && e.Status == realtime.StatusTesting && e.CurrentTest == test.Title
	}, time.Second, 5*time.Millisecond)

	require.Eventually(t, func() bool {
		for _, update := range lf.broadcaster.activities(t) {
			if update.Action == models.ActivityTestStarted && update.TestID == test.ID {
				return true
			}
		}
		return false
	}, time.Second, 5*time.Millisecond)

	_ = conn.Close()
	<-done
}

func TestLiveSessionAdminReceivesEvents(t *testing.T) {
	lf := newLiveFixture(t)
	student := seedStudent(t, lf.db, "Yudi", "XI-A")

	admin := newFakeLiveConn()
	adminDone := serve(lf.service, admin, LiveConnectionOptions{UserID: 1, Role: models.RoleAdmin})

	require.Eventually(t, func() bool {
		return len(admin.received(realtime.EventOnlineStudents)) >= 1 && lf.relay.Subscribers() == 1
	}, time.Second, 5*time.Millisecond)

	pupil := newFakeLiveConn()
	pupilDone := serve(lf.service, pupil, LiveConnectionOptions{UserID: student.ID, Role: models.RoleStudent})

	pupil.send(t, realtime.EventScreenUpdate, map[string]interface{}{"studentId": student.ID + 1, "image": "spoofed"})
	pupil.send(t, realtime.EventScreenUpdate, map[string]interface{}{"image": "data:image/png;base64,AAAA"})

	require.Eventually(t, func() bool {
		return len(admin.received(realtime.EventScreenMirrorUpdate)) == 1
	}, time.Second, 5*time.Millisecond)

	var mirror map[string]interface{}
	require.NoError(t, json.Unmarshal(admin.received(realtime.EventScreenMirrorUpdate)[0].Data, &mirror))
	require.Equal(t, float64(student.ID), mirror["studentId"])
	require.Equal(t, "data:image/png;base64,AAAA", mirror["image"])

	require.Eventually(t, func() bool {
		snapshots := admin.received(realtime.EventOnlineStudents)
		var entries []realtime.Entry
		if err := snapshots[len(snapshots)-1].Decode(&entries); err != nil {
			return false
		}
		return len(entries) == 1 && entries[0].UserID == student.ID
	}, time.Second, 5*time.Millisecond)

	_ = pupil.Close()
	<-pupilDone
	_ = admin.Close()
	<-adminDone

	require.Zero(t, lf.relay.Subscribers())
}

// stallingLiveConn holds the first write until released.
type stallingLiveConn struct {
	*fakeLiveConn
	once    sync.Once
	entered chan struct{}
	release chan struct{}
}

func (c *stallingLiveConn) WriteJSON(v interface{}) error {
	c.once.Do(func() {
		close(c.entered)
		<-c.release
	})
	return c.fakeLiveConn.WriteJSON(v)
}

func TestLiveSessionAdminInitialSnapshotIsWrittenFirst(t *testing.T) {
	lf := newLiveFixture(t)
	student := seedStudent(t, lf.db, "Zaki", "XI-B")

	admin := &stallingLiveConn{
		fakeLiveConn: newFakeLiveConn(),
		entered:      make(chan struct{}),
		release:      make(chan struct{}),
	}
	adminDone := serve(lf.service, admin, LiveConnectionOptions{UserID: 1, Role: models.RoleAdmin})

	select {
	case <-admin.entered:
	case <-time.After(time.Second):
		t.Fatal("admin writer never started")
	}

	pupil := newFakeLiveConn()
	pupilDone := serve(lf.service, pupil, LiveConnectionOptions{UserID: student.ID, Role: models.RoleStudent})
	require.Eventually(t, func() bool {
		_, ok := lf.presence.Get(student.ID)
		return ok
	}, time.Second, 5*time.Millisecond)

	close(admin.release)

	require.Eventually(t, func() bool {
		return len(admin.received(realtime.EventOnlineStudents)) >= 2
	}, time.Second, 5*time.Millisecond)

	snapshots := admin.received(realtime.EventOnlineStudents)
	var first []realtime.Entry
	require.NoError(t, snapshots[0].Decode(&first))
	require.Empty(t, first)

	var latest []realtime.Entry
	require.NoError(t, snapshots[len(snapshots)-1].Decode(&latest))
	require.Len(t, latest, 1)
	require.Equal(t, student.ID, latest[0].UserID)

	_ = pupil.Close()
	<-pupilDone
	_ = admin.Close()
	<-adminDone
}
