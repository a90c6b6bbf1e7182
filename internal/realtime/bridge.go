package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

// Broadcaster publishes events to every dashboard in the deployment.
type Broadcaster interface {
	Broadcast(ctx context.Context, event Event)
}

type bridgeEnvelope struct {
	Source string    `json:"source"`
	Event  Event     `json:"event"`
	SentAt time.Time `json:"sent_at"`
}

// Bridge publishes events on the local relay and forwards the shareable ones
// to peer nodes over Redis pub/sub and NATS. Presence snapshots stay local.
type Bridge struct {
	relay       *Relay
	redis       *redis.Client
	redisTopic  string
	nats        *nats.Conn
	natsSubject string
	nodeID      string
	logger      zerolog.Logger
}

// NewBridge builds a bridge. redisClient and natsConn may be nil; when both are
// set NATS carries the traffic so peers never see an event twice.
func NewBridge(relay *Relay, redisClient *redis.Client, natsConn *nats.Conn, channelBase, nodeID string, logger zerolog.Logger) *Bridge {
	if nodeID == "" {
		nodeID = uuid.NewString()
	}

	redisTopic := ""
	natsSubject := ""
	switch {
	case channelBase == "":
	case natsConn != nil:
		natsSubject = strings.ReplaceAll(channelBase, ":", ".") + ".events"
	case redisClient != nil:
		redisTopic = channelBase + ":events"
	}

	return &Bridge{
		relay:       relay,
		redis:       redisClient,
		redisTopic:  redisTopic,
		nats:        natsConn,
		natsSubject: natsSubject,
		nodeID:      nodeID,
		logger:      logger.With().Str("component", "live_bridge").Logger(),
	}
}

// NodeID identifies this node in forwarded envelopes.
func (b *Bridge) NodeID() string {
	return b.nodeID
}

// Shareable reports whether an event is forwarded to peer nodes.
func Shareable(name string) bool {
	return name == EventActivityUpdate || name == EventScreenMirrorUpdate
}

// Broadcast publishes locally and forwards shareable events to peers.
func (b *Bridge) Broadcast(ctx context.Context, event Event) {
	b.relay.Publish(event)
	if !Shareable(event.Name) {
		return
	}
	if err := b.forward(ctx, event); err != nil {
		b.logger.Warn().Err(err).Str("event", event.Name).Msg("failed to forward live event")
	}
}

func (b *Bridge) forward(ctx context.Context, event Event) error {
	if (b.redis == nil || b.redisTopic == "") && (b.nats == nil || b.natsSubject == "") {
		return nil
	}

	payload, err := json.Marshal(bridgeEnvelope{Source: b.nodeID, Event: event, SentAt: time.Now().UTC()})
	if err != nil {
		return err
	}

	var errs []error
	if b.redis != nil && b.redisTopic != "" {
		if err := b.redis.Publish(ctx, b.redisTopic, payload).Err(); err != nil {
			errs = append(errs, err)
		}
	}
	if b.nats != nil && b.natsSubject != "" {
		if err := b.nats.Publish(b.natsSubject, payload); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Start consumes peer events until ctx is cancelled.
func (b *Bridge) Start(ctx context.Context) {
	if b.redis != nil && b.redisTopic != "" {
		go b.consumeRedis(ctx)
	}
	if b.nats != nil && b.natsSubject != "" {
		go b.consumeNATS(ctx)
	}
}

func (b *Bridge) consumeRedis(ctx context.Context) {
	pubsub := b.redis.Subscribe(ctx, b.redisTopic)
	defer func() {
		_ = pubsub.Close()
	}()
	for {
		msg, err := pubsub.ReceiveMessage(ctx)
		if err != nil {
			if errors.Is(err, context.Canceled) || ctx.Err() != nil {
				return
			}
			b.logger.Error().Err(err).Msg("live redis subscription closed")
			return
		}
		b.handle([]byte(msg.Payload))
	}
}

func (b *Bridge) consumeNATS(ctx context.Context) {
	// Plain subscribe: every node must see every event.
	sub, err := b.nats.Subscribe(b.natsSubject, func(msg *nats.Msg) {
		b.handle(msg.Data)
	})
	if err != nil {
		b.logger.Error().Err(err).Msg("failed to subscribe to nats live subject")
		return
	}
	go func() {
		<-ctx.Done()
		if err := sub.Drain(); err != nil {
			b.logger.Warn().Err(err).Msg("failed to drain live nats subscription")
		}
	}()
}

func (b *Bridge) handle(data []byte) {
	var envelope bridgeEnvelope
	if err := json.Unmarshal(data, &envelope); err != nil {
		b.logger.Warn().Err(err).Msg("invalid live event envelope")
		return
	}
	if envelope.Source == b.nodeID || !Shareable(envelope.Event.Name) {
		return
	}
	b.relay.Publish(envelope.Event)
}
