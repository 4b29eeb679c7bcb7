package supabase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/coder/websocket"
	"github.com/coder/websocket/wsjson"
	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/nerdx/nerdx-notify/internal/backend"
)

const (
	phxJoin      = "phx_join"
	phxLeave     = "phx_leave"
	phxReply     = "phx_reply"
	phxError     = "phx_error"
	phxClose     = "phx_close"
	phxHeartbeat = "heartbeat"
	pgChanges    = "postgres_changes"

	// readLimit caps a single frame; change payloads carry one row.
	readLimit = 1 << 20
)

// errJoinRejected marks a join the server refused; it is not retried.
var errJoinRejected = errors.New("realtime join rejected")

// Subscribe opens the per-user channel and delivers INSERT and UPDATE
// changes of notification_recipients to h. The first connect happens
// before Subscribe returns so that setup errors reach the caller; after
// that the subscription reconnects on its own until closed.
func (c *Client) Subscribe(ctx context.Context, userID string, h backend.Handler) (backend.Subscription, error) {
	subCtx, cancel := context.WithCancel(context.Background())
	s := &realtimeSub{
		client:  c,
		userID:  userID,
		topic:   "realtime:notifications:" + userID,
		handler: h,
		ctx:     subCtx,
		cancel:  cancel,
		limiter: rate.NewLimiter(rate.Every(c.reconnect), 1),
		log:     c.log.Named("realtime").With(zap.String("user_id", userID)),
	}

	conn, err := s.connect(ctx)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("subscribing to %s: %w", s.topic, err)
	}
	// The initial attempt used the limiter's only token.
	s.limiter.Allow()

	go s.run(conn)
	return s, nil
}

// realtimeSub is one channel subscription with its own connection.
type realtimeSub struct {
	client  *Client
	userID  string
	topic   string
	handler backend.Handler
	ctx     context.Context
	cancel  context.CancelFunc
	limiter *rate.Limiter
	log     *zap.Logger
	ref     atomic.Uint64

	mu     sync.Mutex
	conn   *websocket.Conn
	closed bool
}

// Close leaves the channel and closes the connection. It is idempotent.
func (s *realtimeSub) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	conn := s.conn
	s.mu.Unlock()

	if conn != nil {
		leaveCtx, cancel := context.WithTimeout(context.Background(), time.Second)
		_ = s.send(leaveCtx, conn, s.topic, phxLeave, struct{}{})
		cancel()
	}
	s.cancel()
	if conn != nil {
		return conn.Close(websocket.StatusNormalClosure, "unsubscribe")
	}
	return nil
}

// run serves the connection and reconnects until the subscription closes.
func (s *realtimeSub) run(conn *websocket.Conn) {
	for {
		err := s.serve(conn)
		conn.Close(websocket.StatusNormalClosure, "")
		if s.ctx.Err() != nil {
			return
		}
		s.log.Warn("realtime connection lost", zap.Error(err))

		for {
			if err := s.limiter.Wait(s.ctx); err != nil {
				return
			}
			next, err := s.connect(s.ctx)
			if err == nil {
				conn = next
				break
			}
			if errors.Is(err, backend.ErrNoSession) || errors.Is(err, errJoinRejected) {
				s.log.Warn("realtime stopped", zap.Error(err))
				return
			}
			if s.ctx.Err() != nil {
				return
			}
			s.log.Debug("realtime reconnect failed", zap.Error(err))
		}
		s.log.Info("realtime reconnected")
	}
}

// connect dials the socket and joins the channel, waiting for the join reply.
func (s *realtimeSub) connect(ctx context.Context) (*websocket.Conn, error) {
	token, err := s.client.accessToken(ctx)
	if err != nil {
		return nil, err
	}

	conn, _, err := websocket.Dial(ctx, s.client.realtimeURL(), &websocket.DialOptions{
		HTTPClient: s.client.httpClient,
	})
	if err != nil {
		return nil, fmt.Errorf("dialing realtime: %w", err)
	}
	conn.SetReadLimit(readLimit)

	var join joinPayload
	join.Config.PostgresChanges = []changeFilter{
		{Event: "INSERT", Schema: recipientsSchema, Table: recipientsTable, Filter: "user_id=eq." + s.userID},
		{Event: "UPDATE", Schema: recipientsSchema, Table: recipientsTable, Filter: "user_id=eq." + s.userID},
	}
	join.AccessToken = token

	joinRef, err := s.sendRef(ctx, conn, s.topic, phxJoin, join)
	if err != nil {
		conn.Close(websocket.StatusInternalError, "join failed")
		return nil, err
	}

	for {
		var msg phxMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			conn.Close(websocket.StatusInternalError, "join failed")
			return nil, fmt.Errorf("waiting for join reply: %w", err)
		}
		if msg.Event != phxReply || msg.Ref == nil || *msg.Ref != joinRef {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			conn.Close(websocket.StatusInternalError, "join failed")
			return nil, fmt.Errorf("decoding join reply: %w", err)
		}
		if reply.Status != "ok" {
			conn.Close(websocket.StatusPolicyViolation, "join rejected")
			return nil, fmt.Errorf("%w: %s", errJoinRejected, string(reply.Response))
		}
		break
	}

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		conn.Close(websocket.StatusNormalClosure, "")
		return nil, context.Canceled
	}
	s.conn = conn
	s.mu.Unlock()

	s.log.Debug("realtime joined", zap.String("topic", s.topic))
	return conn, nil
}

// serve reads frames until the connection fails or the subscription closes,
// sending heartbeats in the background.
func (s *realtimeSub) serve(conn *websocket.Conn) error {
	ctx, cancel := context.WithCancel(s.ctx)
	defer cancel()

	go s.heartbeat(ctx, conn)

	for {
		var msg phxMessage
		if err := wsjson.Read(ctx, conn, &msg); err != nil {
			return fmt.Errorf("reading realtime frame: %w", err)
		}

		switch msg.Event {
		case pgChanges:
			if msg.Topic == s.topic {
				s.dispatch(msg.Payload)
			}
		case phxError, phxClose:
			if msg.Topic == s.topic {
				return fmt.Errorf("channel %s: %s", msg.Event, string(msg.Payload))
			}
		}
	}
}

// dispatch decodes a postgres_changes payload and hands it to the handler.
func (s *realtimeSub) dispatch(raw json.RawMessage) {
	var p changePayload
	if err := json.Unmarshal(raw, &p); err != nil {
		s.log.Warn("decoding change payload", zap.Error(err))
		return
	}

	var kind backend.EventKind
	switch strings.ToUpper(p.Data.Type) {
	case "INSERT":
		kind = backend.EventInsert
	case "UPDATE":
		kind = backend.EventUpdate
	default:
		return
	}

	s.handler(backend.Event{Kind: kind, Record: p.Data.Record.toModel()})
}

func (s *realtimeSub) heartbeat(ctx context.Context, conn *websocket.Conn) {
	ticker := time.NewTicker(s.client.heartbeat)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := s.send(ctx, conn, "phoenix", phxHeartbeat, struct{}{}); err != nil {
				s.log.Debug("heartbeat failed", zap.Error(err))
				return
			}
		}
	}
}

func (s *realtimeSub) send(ctx context.Context, conn *websocket.Conn, topic, event string, payload any) error {
	_, err := s.sendRef(ctx, conn, topic, event, payload)
	return err
}

// sendRef writes one frame and returns its ref.
func (s *realtimeSub) sendRef(ctx context.Context, conn *websocket.Conn, topic, event string, payload any) (string, error) {
	data, err := json.Marshal(payload)
	if err != nil {
		return "", fmt.Errorf("marshaling %s payload: %w", event, err)
	}
	ref := strconv.FormatUint(s.ref.Add(1), 10)
	msg := phxMessage{Topic: topic, Event: event, Payload: data, Ref: &ref}
	if event == phxJoin {
		msg.JoinRef = &ref
	}
	if err := wsjson.Write(ctx, conn, msg); err != nil {
		return "", fmt.Errorf("sending %s: %w", event, err)
	}
	return ref, nil
}

// realtimeURL maps the project URL to its websocket endpoint. The client
// id lets server logs tell concurrent sockets apart.
func (c *Client) realtimeURL() string {
	base := c.baseURL
	switch {
	case strings.HasPrefix(base, "https://"):
		base = "wss://" + strings.TrimPrefix(base, "https://")
	case strings.HasPrefix(base, "http://"):
		base = "ws://" + strings.TrimPrefix(base, "http://")
	}

	q := url.Values{}
	q.Set("apikey", c.anonKey)
	q.Set("vsn", "1.0.0")
	q.Set("client_id", uuid.NewString())
	return base + "/realtime/v1/websocket?" + q.Encode()
}
