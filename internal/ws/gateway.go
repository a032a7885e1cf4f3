package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/middleware"
)

const (
	pingInterval = 30 * time.Second
	writeTimeout = 10 * time.Second
)

// Authorizer answers whether a user may watch a job.
type Authorizer interface {
	Authorize(ctx context.Context, jobID, userID string) error
}

// Subscriber hands out a live event stream for a channel plus a function
// that tears the stream down.
type Subscriber interface {
	Subscribe(ctx context.Context, channel string) (<-chan cache.Event, func())
}

// Gateway upgrades /ws/progress connections and relays job progress events
// to their owners. One job subscription per connection; subscribing again
// replaces the previous one.
type Gateway struct {
	authorizer Authorizer
	subscriber Subscriber
	secret     []byte
	upgrader   websocket.Upgrader
}

func NewGateway(authorizer Authorizer, subscriber Subscriber, secret []byte) *Gateway {
	return &Gateway{
		authorizer: authorizer,
		subscriber: subscriber,
		secret:     secret,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(*http.Request) bool { return true },
		},
	}
}

type subscribeRequest struct {
	Action string `json:"action"`
	JobID  string `json:"jobId"`
}

func (g *Gateway) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := g.upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	claims, err := middleware.VerifyToken(g.secret, bearerToken(r), middleware.AudienceWebSocket)
	if err != nil {
		msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "authentication required")
		_ = conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeTimeout))
		conn.Close()
		return
	}

	s := &session{
		gateway: g,
		conn:    conn,
		userID:  claims.ID,
	}
	s.run(r.Context())
}

// bearerToken pulls the JWT from the token query parameter or the
// Authorization header. Browsers cannot set headers on websocket dials, so
// the query parameter comes first.
func bearerToken(r *http.Request) string {
	if token := r.URL.Query().Get("token"); token != "" {
		return token
	}
	return strings.TrimPrefix(r.Header.Get("Authorization"), "Bearer ")
}

type session struct {
	gateway *Gateway
	conn    *websocket.Conn
	userID  string

	writeMu     sync.Mutex
	unsubscribe func()
}

func (s *session) run(ctx context.Context) {
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		s.teardown()
		s.conn.Close()
	}()

	go s.keepAlive(ctx)

	for {
		_, data, err := s.conn.ReadMessage()
		if err != nil {
			return
		}

		var req subscribeRequest
		if err := json.Unmarshal(data, &req); err != nil || req.Action != "subscribe" || req.JobID == "" {
			s.writeJSON(map[string]string{"error": "Bad Request"})
			continue
		}

		if err := s.gateway.authorizer.Authorize(ctx, req.JobID, s.userID); err != nil {
			slog.InfoContext(ctx, "subscription refused", "job_id", req.JobID, "user_id", s.userID)
			s.writeJSON(map[string]string{"error": "Forbidden"})
			continue
		}

		s.subscribe(ctx, req.JobID)
	}
}

// subscribe swaps the session onto a new job channel, tearing down the
// previous subscription first.
func (s *session) subscribe(ctx context.Context, jobID string) {
	s.teardown()

	events, unsubscribe := s.gateway.subscriber.Subscribe(ctx, cache.JobChannel(jobID))
	s.unsubscribe = unsubscribe

	go func() {
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-events:
				if !ok {
					return
				}
				s.writeJSON(ev)
			}
		}
	}()

	s.writeJSON(map[string]string{"subscribed": jobID})
}

func (s *session) teardown() {
	if s.unsubscribe != nil {
		s.unsubscribe()
		s.unsubscribe = nil
	}
}

func (s *session) keepAlive(ctx context.Context) {
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.writeMu.Lock()
			err := s.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeTimeout))
			s.writeMu.Unlock()
			if err != nil {
				return
			}
		}
	}
}

func (s *session) writeJSON(v interface{}) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	_ = s.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	if err := s.conn.WriteJSON(v); err != nil {
		slog.Warn("websocket write failed", "error", err)
	}
}
