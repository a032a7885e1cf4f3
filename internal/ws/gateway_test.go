package ws

import (
	"context"
	"encoding/json"
	"errors"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"lumen/ingest/internal/cache"
	"lumen/ingest/internal/middleware"
)

var testSecret = []byte("gateway-test-secret")

func signToken(t *testing.T, userID, audience string) string {
	t.Helper()
	claims := jwt.MapClaims{
		"sub": userID,
		"iss": middleware.TokenIssuer,
		"aud": audience,
		"exp": time.Now().Add(time.Hour).Unix(),
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(testSecret)
	require.NoError(t, err)
	return token
}

type fakeAuthorizer struct {
	err error
}

func (f *fakeAuthorizer) Authorize(context.Context, string, string) error {
	return f.err
}

type fakeSubscriber struct {
	events       chan cache.Event
	unsubscribes atomic.Int64
}

func (f *fakeSubscriber) Subscribe(context.Context, string) (<-chan cache.Event, func()) {
	return f.events, func() { f.unsubscribes.Add(1) }
}

func dialGateway(t *testing.T, g *Gateway, token string) *websocket.Conn {
	t.Helper()
	srv := httptest.NewServer(g)
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/?token=" + token
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func TestGateway_RejectsInvalidToken(t *testing.T) {
	g := NewGateway(&fakeAuthorizer{}, &fakeSubscriber{}, testSecret)
	conn := dialGateway(t, g, "not-a-token")

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestGateway_RejectsWrongAudience(t *testing.T) {
	g := NewGateway(&fakeAuthorizer{}, &fakeSubscriber{}, testSecret)
	conn := dialGateway(t, g, signToken(t, "user-1", "api"))

	_, _, err := conn.ReadMessage()
	var closeErr *websocket.CloseError
	require.ErrorAs(t, err, &closeErr)
	assert.Equal(t, websocket.ClosePolicyViolation, closeErr.Code)
}

func TestGateway_ForbidsForeignJob(t *testing.T) {
	g := NewGateway(&fakeAuthorizer{err: errors.New("not yours")}, &fakeSubscriber{}, testSecret)
	conn := dialGateway(t, g, signToken(t, "user-1", middleware.AudienceWebSocket))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "jobId": "job-1"}))

	var resp map[string]string
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "Forbidden", resp["error"])
}

func TestGateway_RelaysProgressEvents(t *testing.T) {
	sub := &fakeSubscriber{events: make(chan cache.Event, 4)}
	g := NewGateway(&fakeAuthorizer{}, sub, testSecret)
	conn := dialGateway(t, g, signToken(t, "user-1", middleware.AudienceWebSocket))

	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "jobId": "job-1"}))

	var ack map[string]string
	require.NoError(t, conn.ReadJSON(&ack))
	assert.Equal(t, "job-1", ack["subscribed"])

	sixty := 60
	sub.events <- cache.Event{JobID: "job-1", Stage: "text_extracted", Progress: &sixty}

	var ev cache.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, "job-1", ev.JobID)
	assert.Equal(t, "text_extracted", ev.Stage)
	require.NotNil(t, ev.Progress)
	assert.Equal(t, 60, *ev.Progress)
}

func TestGateway_ResubscribeReplacesSubscription(t *testing.T) {
	sub := &fakeSubscriber{events: make(chan cache.Event, 4)}
	g := NewGateway(&fakeAuthorizer{}, sub, testSecret)
	conn := dialGateway(t, g, signToken(t, "user-1", middleware.AudienceWebSocket))

	var ack map[string]string
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "jobId": "job-1"}))
	require.NoError(t, conn.ReadJSON(&ack))
	require.NoError(t, conn.WriteJSON(map[string]string{"action": "subscribe", "jobId": "job-2"}))
	require.NoError(t, conn.ReadJSON(&ack))

	assert.Equal(t, "job-2", ack["subscribed"])
	assert.Equal(t, int64(1), sub.unsubscribes.Load(), "previous subscription must be torn down")
}

func TestGateway_RejectsMalformedRequests(t *testing.T) {
	g := NewGateway(&fakeAuthorizer{}, &fakeSubscriber{}, testSecret)
	conn := dialGateway(t, g, signToken(t, "user-1", middleware.AudienceWebSocket))

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{bad json")))

	var resp map[string]string
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "Bad Request", resp["error"])

	payload, _ := json.Marshal(map[string]string{"action": "unsubscribe"})
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, payload))
	require.NoError(t, conn.ReadJSON(&resp))
	assert.Equal(t, "Bad Request", resp["error"])
}
