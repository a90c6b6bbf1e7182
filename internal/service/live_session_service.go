package service

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gofiber/websocket/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/noah-isme/gema-exam-api/internal/models"
	"github.com/noah-isme/gema-exam-api/internal/observability"
	"github.com/noah-isme/gema-exam-api/internal/realtime"
	"github.com/noah-isme/gema-exam-api/internal/repository"
)


// LiveConn is the part of a websocket connection the live session drives.
// *websocket.Conn satisfies it.
type LiveConn interface {
	ReadJSON(v interface{}) error
	WriteJSON(v interface{}) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
	SetReadDeadline(t time.Time) error
	SetReadLimit(limit int64)
	SetPongHandler(h func(appData string) error)
	Close() error
}

// LiveConnectionOptions wraps metadata extracted during the HTTP upgrade.
// Name and Group are fallbacks used when the user has no stored profile.
type LiveConnectionOptions struct {
	UserID  uint
	Role    string
	Name    string
	Group   string
	Context context.Context
}

// LiveConfig tunes heartbeats and inbound limits.
type LiveConfig struct {
	PingInterval time.Duration
	PongTimeout  time.Duration
	ReadLimit    int64
	EventRate    float64
	EventBurst   int
}

// LiveSessionService runs websocket sessions: students feed presence, admins
// watch the relay.
type LiveSessionService interface {
	ServeConnection(conn LiveConn, opts LiveConnectionOptions)
	OnlineStudents() []realtime.Entry
}

type liveSessionService struct {
	registry    *realtime.Registry
	relay       *realtime.Relay
	broadcaster realtime.Broadcaster
	submissions SubmissionService
	users       repository.UserRepository
	cfg         LiveConfig
	logger      zerolog.Logger
}

// NewLiveSessionService constructs the live session service.
func NewLiveSessionService(registry *realtime.Registry, relay *realtime.Relay, broadcaster realtime.Broadcaster, submissions SubmissionService, users repository.UserRepository, cfg LiveConfig, logger zerolog.Logger) LiveSessionService {
	if cfg.PingInterval <= 0 {
		cfg.PingInterval = 25 * time.Second
	}
	if cfg.PongTimeout <= cfg.PingInterval {
		cfg.PongTimeout = 60 * time.Second
	}
	if cfg.EventRate <= 0 {
		cfg.EventRate = 20
	}
	if cfg.EventBurst <= 0 {
		cfg.EventBurst = 40
	}
	return &liveSessionService{
		registry:    registry,
		relay:       relay,
		broadcaster: broadcaster,
		submissions: submissions,
		users:       users,
		cfg:         cfg,
		logger:      logger.With().Str("component", "live_session").Logger(),
	}
}

func (s *liveSessionService) OnlineStudents() []realtime.Entry {
	return s.registry.Snapshot()
}

type liveClient struct {
	conn    LiveConn
	opts    LiveConnectionOptions
	connID  string
	service *liveSessionService
	limiter *rate.Limiter
	logger  zerolog.Logger
	closed  chan struct{}
	once    sync.Once
	cancel  func()
}

// ServeConnection blocks until the connection is gone.
func (s *liveSessionService) ServeConnection(conn LiveConn, opts LiveConnectionOptions) {
	if opts.Context == nil {
		opts.Context = context.Background()
	}

	client := &liveClient{
		conn:    conn,
		opts:    opts,
		connID:  uuid.NewString(),
		service: s,
		limiter: rate.NewLimiter(rate.Limit(s.cfg.EventRate), s.cfg.EventBurst),
		closed:  make(chan struct{}),
	}
	client.logger = s.logger.With().Uint("user_id", opts.UserID).Str("role", opts.Role).Str("conn_id", client.connID).Logger()

	if s.cfg.ReadLimit > 0 {
		conn.SetReadLimit(s.cfg.ReadLimit)
	}
	_ = conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(s.cfg.PongTimeout))
	})

	observability.LiveConnections().Inc()

	var (
		events  <-chan realtime.Event
		initial []realtime.Event
	)
	if opts.Role == models.RoleAdmin {
		sub, cancel := s.relay.Subscribe()
		events = sub
		client.cancel = cancel
		// Taken after subscribing so relay snapshots can only be newer.
		if snapshot, err := realtime.NewEvent(realtime.EventOnlineStudents, s.registry.Snapshot()); err == nil {
			initial = append(initial, snapshot)
		}
	} else {
		s.registry.Connect(s.entryFor(opts), client.connID)
	}

	client.logger.Debug().Msg("live client connected")

	go client.writer(initial, events)
	client.reader()
}

// entryFor resolves the display name and group from the stored profile.
func (s *liveSessionService) entryFor(opts LiveConnectionOptions) realtime.Entry {
	entry := realtime.Entry{
		UserID: opts.UserID,
		Name:   strings.TrimSpace(opts.Name),
		Role:   opts.Role,
		Group:  strings.TrimSpace(opts.Group),
	}
	if s.users == nil {
		return entry
	}

	user, err := s.users.GetByID(opts.Context, opts.UserID)
	if err != nil {
		s.logger.Debug().Err(err).Uint("user_id", opts.UserID).Msg("live profile lookup failed, using query fallback")
		return entry
	}
	if name := strings.TrimSpace(user.FullName()); name != "" {
		entry.Name = name
	}
	if user.GroupCode != "" {
		entry.Group = user.GroupCode
	}
	return entry
}

type liveTestStarted struct {
	StudentID uint   `json:"studentId"`
	TestID    uint   `json:"testId"`
	TestTitle string `json:"testTitle"`
}

type liveTestProgress struct {
	StudentID uint `json:"studentId"`
	Progress  int  `json:"progress"`
}

func (c *liveClient) reader() {
	defer c.close()

	for {
		var event realtime.Event
		if err := c.conn.ReadJSON(&event); err != nil {
			c.logger.Debug().Err(err).Msg("live read loop ended")
			return
		}

		if c.opts.Role == models.RoleAdmin {
			continue
		}
		if !c.limiter.Allow() {
			c.logger.Debug().Str("event", event.Name).Msg("dropping rate limited live event")
			continue
		}
		c.handle(event)
	}
}

// handle applies one inbound student event. Events that name another student
// are ignored.
func (c *liveClient) handle(event realtime.Event) {
	s := c.service
	userID := c.opts.UserID

	switch event.Name {
	case realtime.EventTestStarted:
		var payload liveTestStarted
		if err := event.Decode(&payload); err != nil || !c.owns(payload.StudentID) {
			return
		}
		if payload.TestID > 0 && s.submissions != nil {
			if _, err := s.submissions.Start(c.opts.Context, userID, payload.TestID); err != nil {
				c.logger.Warn().Err(err).Uint("test_id", payload.TestID).Msg("live test start rejected")
			}
			return
		}
		s.registry.StartTest(userID, strings.TrimSpace(payload.TestTitle))

	case realtime.EventTestProgress:
		var payload liveTestProgress
		if err := event.Decode(&payload); err != nil || !c.owns(payload.StudentID) {
			return
		}
		s.registry.Progress(userID, payload.Progress)

	case realtime.EventScreenUpdate:
		var payload map[string]interface{}
		if err := event.Decode(&payload); err != nil || payload == nil {
			return
		}
		if !c.owns(claimedStudent(payload["studentId"])) {
			return
		}
		payload["studentId"] = userID
		payload["timestamp"] = time.Now().UTC()
		mirror, err := realtime.NewEvent(realtime.EventScreenMirrorUpdate, payload)
		if err != nil {
			return
		}
		if s.broadcaster != nil {
			s.broadcaster.Broadcast(c.opts.Context, mirror)
		}

	default:
		c.logger.Debug().Str("event", event.Name).Msg("ignoring unknown live event")
	}
}

func (c *liveClient) owns(studentID uint) bool {
	return studentID == 0 || studentID == c.opts.UserID
}

func claimedStudent(value interface{}) uint {
	if n, ok := value.(float64); ok && n > 0 {
		return uint(n)
	}
	return 0
}

// writer flushes initial before any relayed event.
func (c *liveClient) writer(initial []realtime.Event, events <-chan realtime.Event) {
	defer c.close()

	for _, event := range initial {
		if err := c.conn.WriteJSON(event); err != nil {
			c.logger.Debug().Err(err).Msg("live write loop terminated")
			return
		}
	}

	ticker := time.NewTicker(c.service.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case event, ok := <-events:
			if !ok {
				return
			}
			if err := c.conn.WriteJSON(event); err != nil {
				c.logger.Debug().Err(err).Msg("live write loop terminated")
				return
			}
		case <-ticker.C:
			deadline := time.Now().Add(10 * time.Second)
			if err := c.conn.WriteControl(websocket.PingMessage, []byte("keepalive"), deadline); err != nil {
				c.logger.Debug().Err(err).Msg("live ping failed")
				return
			}
		case <-c.closed:
			return
		}
	}
}

func (c *liveClient) close() {
	c.once.Do(func() {
		close(c.closed)
		if c.cancel != nil {
			c.cancel()
		}
		if c.opts.Role != models.RoleAdmin {
			c.service.registry.Disconnect(c.opts.UserID, c.connID)
		}
		_ = c.conn.Close()
		c.logger.Debug().Msg("live client disconnected")
	})
}
