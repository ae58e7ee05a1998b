package obs

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/internal/events"
	"broadcast-console/pkg/logger"

	"github.com/gorilla/websocket"
)

// fakeSocket is an in-memory duplex socket. A reply handler can script
// the server side; tests can also deliver frames directly.
type fakeSocket struct {
	mu      sync.Mutex
	inbound chan []byte
	writes  [][]byte
	closed  bool
	handler func(frame map[string]interface{}) []byte
}

func newFakeSocket(handler func(frame map[string]interface{}) []byte) *fakeSocket {
	return &fakeSocket{
		inbound: make(chan []byte, 16),
		handler: handler,
	}
}

func (s *fakeSocket) ReadMessage() (int, []byte, error) {
	data, ok := <-s.inbound
	if !ok {
		return 0, nil, errors.New("socket closed")
	}
	return websocket.TextMessage, data, nil
}

func (s *fakeSocket) WriteMessage(_ int, data []byte) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return errors.New("socket closed")
	}
	s.writes = append(s.writes, data)
	handler := s.handler
	s.mu.Unlock()

	if handler != nil {
		var frame map[string]interface{}
		if err := json.Unmarshal(data, &frame); err != nil {
			return err
		}
		if reply := handler(frame); reply != nil {
			s.deliver(reply)
		}
	}
	return nil
}

func (s *fakeSocket) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.closed {
		s.closed = true
		close(s.inbound)
	}
	return nil
}

func (s *fakeSocket) deliver(data []byte) {
	s.inbound <- data
}

func (s *fakeSocket) writeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.writes)
}

func (s *fakeSocket) lastWrittenID(t *testing.T) string {
	t.Helper()
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.writes) == 0 {
		t.Fatal("no frames written")
	}
	var frame map[string]interface{}
	if err := json.Unmarshal(s.writes[len(s.writes)-1], &frame); err != nil {
		t.Fatalf("Failed to parse written frame: %v", err)
	}
	id, _ := frame["message-id"].(string)
	return id
}

func mustMarshal(t *testing.T, v interface{}) []byte {
	t.Helper()
	data, err := json.Marshal(v)
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	return data
}

// noAuthHandler answers the handshake saying no auth is needed and
// swallows everything else.
func noAuthHandler(t *testing.T) func(frame map[string]interface{}) []byte {
	return func(frame map[string]interface{}) []byte {
		if frame["request-type"] == cmdGetAuthRequired {
			return mustMarshal(t, map[string]interface{}{
				"message-id":   frame["message-id"],
				"status":       "ok",
				"authRequired": false,
			})
		}
		return nil
	}
}

func waitFor(t *testing.T, cond func() bool, msg string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal(msg)
}

type dialRecorder struct {
	mu      sync.Mutex
	sockets []*fakeSocket
	handler func(frame map[string]interface{}) []byte
}

func (d *dialRecorder) dial(address string) (Socket, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	sock := newFakeSocket(d.handler)
	d.sockets = append(d.sockets, sock)
	return sock, nil
}

func (d *dialRecorder) count() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.sockets)
}

func (d *dialRecorder) socket(i int) *fakeSocket {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.sockets[i]
}

func newTestClient(handler func(frame map[string]interface{}) []byte, callTimeout, reconnectDelay time.Duration) (*Client, *dialRecorder) {
	dialer := &dialRecorder{handler: handler}
	client := NewClient(Options{
		Address:        "localhost:4444",
		CallTimeout:    callTimeout,
		ReconnectDelay: reconnectDelay,
		Dial:           dialer.dial,
	}, events.NewEmitter(), logger.NewNop())
	return client, dialer
}

func TestConnectWithoutAuth(t *testing.T) {
	client, _ := newTestClient(noAuthHandler(t), time.Second, time.Minute)
	defer client.Disconnect()

	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}
	if !client.Connected() {
		t.Error("Expected Connected after handshake")
	}
	if client.Phase() != domain.Connected {
		t.Errorf("Expected phase connected, got %s", client.Phase())
	}
}

func TestCallResolvesByCorrelationID(t *testing.T) {
	handler := func(frame map[string]interface{}) []byte {
		switch frame["request-type"] {
		case cmdGetAuthRequired:
			return mustMarshal(t, map[string]interface{}{
				"message-id": frame["message-id"], "status": "ok", "authRequired": false,
			})
		case cmdGetSceneList:
			return mustMarshal(t, map[string]interface{}{
				"message-id":    frame["message-id"],
				"status":        "ok",
				"current-scene": "Showroom",
				"scenes":        []map[string]string{{"name": "Showroom"}, {"name": "Exterior"}},
			})
		}
		return nil
	}

	client, _ := newTestClient(handler, time.Second, time.Minute)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}

	set, err := client.SceneList(context.Background())
	if err != nil {
		t.Fatalf("SceneList failed: %v", err)
	}
	if set.Current != "Showroom" {
		t.Errorf("Expected current scene Showroom, got %q", set.Current)
	}
	if len(set.Names) != 2 || set.Names[1] != "Exterior" {
		t.Errorf("Unexpected scene names: %v", set.Names)
	}
}

func TestUnknownCorrelationIDDropped(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), time.Second, time.Minute)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}
	sock := dialer.socket(0)

	type result struct {
		set *domain.SceneSet
		err error
	}
	done := make(chan result, 1)
	go func() {
		set, err := client.SceneList(context.Background())
		done <- result{set, err}
	}()

	waitFor(t, func() bool { return sock.writeCount() == 2 }, "scene list request never written")
	id := sock.lastWrittenID(t)

	// A response for an id nobody issued must not disturb the pending call.
	sock.deliver(mustMarshal(t, map[string]interface{}{
		"message-id": "9999", "status": "ok", "current-scene": "Wrong",
	}))
	sock.deliver(mustMarshal(t, map[string]interface{}{
		"message-id": id, "status": "ok", "current-scene": "Right",
	}))

	res := <-done
	if res.err != nil {
		t.Fatalf("SceneList failed: %v", res.err)
	}
	if res.set.Current != "Right" {
		t.Errorf("Expected scene from matching response, got %q", res.set.Current)
	}
}

func TestCallTimeoutRemovesPending(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), 50*time.Millisecond, time.Minute)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}
	sock := dialer.socket(0)

	_, err := client.SceneList(context.Background())
	if !errors.Is(err, ErrCallTimeout) {
		t.Fatalf("Expected ErrCallTimeout, got %v", err)
	}

	client.mu.Lock()
	remaining := len(client.pending)
	client.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Expected no pending calls after timeout, got %d", remaining)
	}

	// A late response for the timed-out id is ignored.
	id := sock.lastWrittenID(t)
	sock.deliver(mustMarshal(t, map[string]interface{}{
		"message-id": id, "status": "ok", "current-scene": "Late",
	}))
	time.Sleep(20 * time.Millisecond)

	client.mu.Lock()
	remaining = len(client.pending)
	client.mu.Unlock()
	if remaining != 0 {
		t.Errorf("Late response re-created a pending call: %d", remaining)
	}
}

func TestProtocolErrorRejectsOnlyThatCall(t *testing.T) {
	handler := func(frame map[string]interface{}) []byte {
		switch frame["request-type"] {
		case cmdGetAuthRequired:
			return mustMarshal(t, map[string]interface{}{
				"message-id": frame["message-id"], "status": "ok", "authRequired": false,
			})
		case cmdSetCurrentScene:
			return mustMarshal(t, map[string]interface{}{
				"message-id": frame["message-id"], "status": "error", "error": "no such scene",
			})
		case cmdGetStreamingStatus:
			return mustMarshal(t, map[string]interface{}{
				"message-id": frame["message-id"], "status": "ok", "streaming": true,
			})
		}
		return nil
	}

	client, _ := newTestClient(handler, time.Second, time.Minute)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}

	err := client.SetCurrentScene(context.Background(), "Missing")
	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		t.Fatalf("Expected RequestError, got %v", err)
	}
	if reqErr.Reason != "no such scene" {
		t.Errorf("Unexpected reason: %q", reqErr.Reason)
	}

	status, err := client.StreamingStatus(context.Background())
	if err != nil {
		t.Fatalf("StreamingStatus failed after unrelated rejection: %v", err)
	}
	if !status.Streaming {
		t.Error("Expected streaming status true")
	}
}

func TestCorrelationIDsMonotonic(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), 30*time.Millisecond, time.Minute)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}
	sock := dialer.socket(0)

	client.StartStreaming(context.Background())
	client.StopStreaming(context.Background())

	sock.mu.Lock()
	defer sock.mu.Unlock()
	var ids []string
	for _, raw := range sock.writes {
		var frame map[string]interface{}
		json.Unmarshal(raw, &frame)
		ids = append(ids, frame["message-id"].(string))
	}
	want := []string{"1", "2", "3"}
	for i, id := range ids {
		if id != want[i] {
			t.Errorf("Frame %d: expected id %s, got %s", i, want[i], id)
		}
	}
}

func TestReconnectScheduledOncePerClose(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), time.Second, 30*time.Millisecond)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}

	dialer.socket(0).Close()

	waitFor(t, func() bool { return dialer.count() == 2 }, "reconnect never attempted")
	time.Sleep(100 * time.Millisecond)
	if got := dialer.count(); got != 2 {
		t.Errorf("Expected exactly one reconnect attempt, got %d dials", got)
	}
	if !client.Connected() {
		t.Error("Expected client connected after reconnect")
	}
}

func TestDisconnectCancelsPendingReconnect(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), time.Second, 60*time.Millisecond)
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}

	dialer.socket(0).Close()
	waitFor(t, func() bool { return !client.Connected() }, "close never observed")
	client.Disconnect()

	time.Sleep(150 * time.Millisecond)
	if got := dialer.count(); got != 1 {
		t.Errorf("Expected no reconnect after Disconnect, got %d dials", got)
	}
}

func TestDisconnectRejectsInFlightCalls(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), 5*time.Second, time.Minute)
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}
	sock := dialer.socket(0)

	done := make(chan error, 1)
	go func() {
		_, err := client.SceneList(context.Background())
		done <- err
	}()
	waitFor(t, func() bool { return sock.writeCount() == 2 }, "scene list request never written")

	client.Disconnect()

	select {
	case err := <-done:
		if !errors.Is(err, ErrConnClosed) {
			t.Errorf("Expected ErrConnClosed, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("In-flight call not rejected on Disconnect")
	}
}

func TestAuthFailureEmitsAuthErrorAndNoReconnect(t *testing.T) {
	handler := func(frame map[string]interface{}) []byte {
		switch frame["request-type"] {
		case cmdGetAuthRequired:
			return mustMarshal(t, map[string]interface{}{
				"message-id": frame["message-id"], "status": "ok",
				"authRequired": true, "challenge": "c", "salt": "s",
			})
		case cmdAuthenticate:
			return mustMarshal(t, map[string]interface{}{
				"message-id": frame["message-id"], "status": "error", "error": "Authentication Failed",
			})
		}
		return nil
	}

	client, dialer := newTestClient(handler, time.Second, 30*time.Millisecond)
	authErrors := make(chan interface{}, 1)
	client.On(domain.EventAuthError, func(payload interface{}) {
		authErrors <- payload
	})

	if client.Connect(context.Background()) {
		t.Fatal("Connect succeeded despite rejected credentials")
	}

	select {
	case <-authErrors:
	case <-time.After(time.Second):
		t.Fatal("auth-error event never emitted")
	}

	time.Sleep(100 * time.Millisecond)
	if got := dialer.count(); got != 1 {
		t.Errorf("Auth failure must not trigger reconnect, got %d dials", got)
	}
}

func TestCallBeforeConnectIsCallerError(t *testing.T) {
	client, _ := newTestClient(noAuthHandler(t), time.Second, time.Minute)
	if err := client.StartStreaming(context.Background()); !errors.Is(err, ErrNotConnected) {
		t.Errorf("Expected ErrNotConnected, got %v", err)
	}
}

func TestUpdateEventsFanOutInRegistrationOrder(t *testing.T) {
	client, dialer := newTestClient(noAuthHandler(t), time.Second, time.Minute)
	defer client.Disconnect()
	if !client.Connect(context.Background()) {
		t.Fatal("Connect returned false")
	}

	var mu sync.Mutex
	var order []string
	notified := make(chan struct{}, 2)
	client.On("StreamStatus", func(payload interface{}) {
		mu.Lock()
		order = append(order, "first")
		mu.Unlock()
		notified <- struct{}{}
	})
	client.On("StreamStatus", func(payload interface{}) {
		mu.Lock()
		order = append(order, "second")
		mu.Unlock()
		notified <- struct{}{}
	})

	dialer.socket(0).deliver(mustMarshal(t, map[string]interface{}{
		"update-type": "StreamStatus", "streaming": true,
	}))

	for i := 0; i < 2; i++ {
		select {
		case <-notified:
		case <-time.After(time.Second):
			t.Fatal("update event not fanned out")
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if order[0] != "first" || order[1] != "second" {
		t.Errorf("Handlers ran out of registration order: %v", order)
	}
}
