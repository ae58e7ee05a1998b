package obs

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"sync"
	"time"

	"broadcast-console/internal/domain"
	"broadcast-console/internal/events"
	"broadcast-console/pkg/logger"

	"github.com/gorilla/websocket"
)

// Socket is the duplex connection to the streaming tool.
// *websocket.Conn satisfies it directly.
type Socket interface {
	ReadMessage() (messageType int, p []byte, err error)
	WriteMessage(messageType int, data []byte) error
	Close() error
}

type DialFunc func(address string) (Socket, error)

func DefaultDial(address string) (Socket, error) {
	u := url.URL{Scheme: "ws", Host: address}
	conn, _, err := websocket.DefaultDialer.Dial(u.String(), nil)
	if err != nil {
		return nil, err
	}
	return conn, nil
}

type Options struct {
	Address        string
	Password       string
	CallTimeout    time.Duration
	ReconnectDelay time.Duration
	Dial           DialFunc
}

type callResult struct {
	data json.RawMessage
	err  error
}

type pendingCall struct {
	request   string
	done      chan callResult
	createdAt time.Time
}

// Client owns the RPC connection: it performs the authentication
// handshake, correlates responses to pending calls by message id, fans
// unsolicited frames out to subscribers, and schedules reconnects after
// transport-level closes. One instance per process.
type Client struct {
	opts    Options
	emitter *events.Emitter
	log     logger.Logger

	mu                sync.Mutex
	conn              Socket
	phase             domain.ConnPhase
	pending           map[string]*pendingCall
	nextID            uint64
	reconnectTimer    *time.Timer
	suppressReconnect bool
}

func NewClient(opts Options, emitter *events.Emitter, log logger.Logger) *Client {
	if opts.CallTimeout <= 0 {
		opts.CallTimeout = 10 * time.Second
	}
	if opts.ReconnectDelay <= 0 {
		opts.ReconnectDelay = 5 * time.Second
	}
	if opts.Dial == nil {
		opts.Dial = DefaultDial
	}

	return &Client{
		opts:    opts,
		emitter: emitter,
		log:     log,
		phase:   domain.Disconnected,
		pending: make(map[string]*pendingCall),
	}
}

// SetTarget points the client at a streaming tool instance. It does
// not touch an established connection; the new target applies to the
// next connect attempt.
func (c *Client) SetTarget(address, password string) {
	c.mu.Lock()
	c.opts.Address = address
	c.opts.Password = password
	c.mu.Unlock()
}

// Connect dials the streaming tool and runs the auth handshake. Network
// failure is reported as a false result plus an emitted event, never an
// error; a reconnect attempt is scheduled for every transport failure
// until Disconnect is called.
func (c *Client) Connect(ctx context.Context) bool {
	c.mu.Lock()
	if c.phase != domain.Disconnected {
		connected := c.phase == domain.Connected
		c.mu.Unlock()
		return connected
	}
	c.phase = domain.Connecting
	c.suppressReconnect = false
	address := c.opts.Address
	c.mu.Unlock()

	conn, err := c.opts.Dial(address)
	if err != nil {
		c.log.Error("Failed to dial streaming tool", "address", address, "error", err)
		c.mu.Lock()
		c.phase = domain.Disconnected
		c.scheduleReconnectLocked()
		c.mu.Unlock()
		c.emitter.Emit(domain.EventError, err)
		return false
	}

	c.mu.Lock()
	c.conn = conn
	c.phase = domain.Authenticating
	c.mu.Unlock()

	go c.readLoop(conn)

	if !c.handshake(ctx) {
		return false
	}

	c.mu.Lock()
	c.phase = domain.Connected
	c.mu.Unlock()

	c.log.Info("Connected to streaming tool", "address", address)
	c.emitter.Emit(domain.EventConnected, address)
	return true
}

// handshake queries whether authentication is required and answers the
// challenge when it is. A protocol rejection emits auth-error and does
// not start the reconnect loop; a transport failure mid-handshake is
// left to the close path, which does.
func (c *Client) handshake(ctx context.Context) bool {
	required, err := c.getAuthRequired(ctx)
	if err == nil && required.AuthRequired {
		err = c.authenticate(ctx, c.opts.Password, required.Challenge, required.Salt)
	}
	if err == nil {
		return true
	}

	var reqErr *RequestError
	if !errors.As(err, &reqErr) {
		// Transport trouble mid-handshake: tear the socket down and let
		// the close path reset state and schedule the reconnect.
		c.log.Error("Handshake interrupted", "error", err)
		c.mu.Lock()
		conn := c.conn
		c.mu.Unlock()
		if conn != nil {
			conn.Close()
		}
		return false
	}

	c.log.Error("Authentication failed", "error", err)
	c.mu.Lock()
	c.suppressReconnect = true
	conn := c.conn
	c.mu.Unlock()

	c.emitter.Emit(domain.EventAuthError, err)
	if conn != nil {
		conn.Close()
	}
	return false
}

// Disconnect cancels any pending reconnect, closes the socket, and
// rejects all in-flight calls immediately rather than leaving them to
// ride out the call timeout.
func (c *Client) Disconnect() {
	c.mu.Lock()
	c.suppressReconnect = true
	if c.reconnectTimer != nil {
		c.reconnectTimer.Stop()
		c.reconnectTimer = nil
	}
	conn := c.conn
	c.conn = nil
	c.phase = domain.Disconnected
	c.failAllPendingLocked(ErrConnClosed)
	c.mu.Unlock()

	if conn != nil {
		conn.Close()
		c.log.Info("Disconnected from streaming tool")
		c.emitter.Emit(domain.EventDisconnected, nil)
	}
}

func (c *Client) Connected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase == domain.Connected
}

func (c *Client) Phase() domain.ConnPhase {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.phase
}

// On registers a handler for unsolicited update frames or lifecycle
// events. Delivery order is registration order.
func (c *Client) On(event string, handler events.Handler) events.SubscriptionID {
	return c.emitter.On(event, handler)
}

func (c *Client) Off(id events.SubscriptionID) {
	c.emitter.Off(id)
}

func (c *Client) getAuthRequired(ctx context.Context) (*authRequiredResponse, error) {
	var resp authRequiredResponse
	if err := c.call(ctx, cmdGetAuthRequired, nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

func (c *Client) authenticate(ctx context.Context, password, challenge, salt string) error {
	req := authenticateRequest{Auth: authToken(password, challenge, salt)}
	return c.call(ctx, cmdAuthenticate, req, nil)
}

func (c *Client) SceneList(ctx context.Context) (*domain.SceneSet, error) {
	var resp sceneListResponse
	if err := c.call(ctx, cmdGetSceneList, nil, &resp); err != nil {
		return nil, err
	}

	set := &domain.SceneSet{Current: resp.CurrentScene}
	for _, scene := range resp.Scenes {
		set.Names = append(set.Names, scene.Name)
	}
	return set, nil
}

func (c *Client) SetCurrentScene(ctx context.Context, name string) error {
	return c.call(ctx, cmdSetCurrentScene, setCurrentSceneRequest{SceneName: name}, nil)
}

func (c *Client) StartStreaming(ctx context.Context) error {
	return c.call(ctx, cmdStartStreaming, nil, nil)
}

func (c *Client) StopStreaming(ctx context.Context) error {
	return c.call(ctx, cmdStopStreaming, nil, nil)
}

func (c *Client) StreamingStatus(ctx context.Context) (*domain.StreamingStatus, error) {
	var resp streamingStatusResponse
	if err := c.call(ctx, cmdGetStreamingStatus, nil, &resp); err != nil {
		return nil, err
	}
	return &domain.StreamingStatus{Streaming: resp.Streaming, Recording: resp.Recording}, nil
}

func (c *Client) SetTextProperties(ctx context.Context, source, text string) error {
	req := setTextPropertiesRequest{Source: source, Text: text}
	return c.call(ctx, cmdSetTextProperties, req, nil)
}

func (c *Client) CreateTextSource(ctx context.Context, scene, source, text string) error {
	req := createSourceRequest{
		SourceName:     source,
		SourceKind:     "text_gdiplus_v2",
		SceneName:      scene,
		SourceSettings: textSourceSettings{Text: text},
	}
	return c.call(ctx, cmdCreateSource, req, nil)
}

// call sends one request frame and waits for the response bearing the
// same message id. Ids are issued monotonically and never reused while
// a pending call exists; every call resolves, rejects, or times out.
func (c *Client) call(ctx context.Context, requestType string, payload, out interface{}) error {
	c.mu.Lock()
	conn := c.conn
	if conn == nil {
		c.mu.Unlock()
		return ErrNotConnected
	}
	c.nextID++
	id := strconv.FormatUint(c.nextID, 10)
	pc := &pendingCall{
		request:   requestType,
		done:      make(chan callResult, 1),
		createdAt: time.Now(),
	}
	c.pending[id] = pc
	c.mu.Unlock()

	frame, err := encodeRequest(requestType, id, payload)
	if err != nil {
		c.removePending(id)
		return err
	}
	if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		c.removePending(id)
		return err
	}

	timeout := time.AfterFunc(c.opts.CallTimeout, func() {
		c.failPending(id, ErrCallTimeout)
	})
	defer timeout.Stop()

	select {
	case res := <-pc.done:
		if res.err != nil {
			return res.err
		}
		if out == nil {
			return nil
		}
		if err := json.Unmarshal(res.data, out); err != nil {
			return fmt.Errorf("decode %s response: %w", requestType, err)
		}
		return nil
	case <-ctx.Done():
		c.removePending(id)
		return ctx.Err()
	}
}

func (c *Client) readLoop(conn Socket) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.handleClose(conn, err)
			return
		}
		c.dispatch(data)
	}
}

// dispatch probes each inbound frame for a correlation id first, then
// independently for an unsolicited update-type tag.
func (c *Client) dispatch(data []byte) {
	var frame inboundFrame
	if err := json.Unmarshal(data, &frame); err != nil {
		c.log.Warn("Dropping malformed frame", "error", err)
		return
	}

	if frame.MessageID != "" {
		if frame.Status == statusError {
			c.rejectPending(frame.MessageID, frame.Error)
		} else {
			c.resolvePending(frame.MessageID, data)
		}
	}

	if frame.UpdateType != "" {
		c.emitter.Emit(frame.UpdateType, json.RawMessage(data))
	}
}

func (c *Client) resolvePending(id string, data []byte) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		// Unknown or already timed-out correlation id.
		c.log.Debug("Dropping response with unknown correlation id", "message_id", id)
		return
	}
	pc.done <- callResult{data: data}
}

func (c *Client) rejectPending(id, reason string) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	pc.done <- callResult{err: &RequestError{Request: pc.request, Reason: reason}}
}

func (c *Client) failPending(id string, cause error) {
	c.mu.Lock()
	pc, ok := c.pending[id]
	if ok {
		delete(c.pending, id)
	}
	c.mu.Unlock()

	if !ok {
		return
	}
	pc.done <- callResult{err: cause}
}

func (c *Client) removePending(id string) {
	c.mu.Lock()
	delete(c.pending, id)
	c.mu.Unlock()
}

func (c *Client) failAllPendingLocked(cause error) {
	for id, pc := range c.pending {
		delete(c.pending, id)
		pc.done <- callResult{err: cause}
	}
}

// handleClose runs once per socket close: it rejects in-flight calls
// and, unless the close was explicit or an auth rejection, schedules a
// single reconnect attempt.
func (c *Client) handleClose(conn Socket, cause error) {
	c.mu.Lock()
	if c.conn != conn {
		// Disconnect already tore this connection down.
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.phase = domain.Disconnected
	c.failAllPendingLocked(ErrConnClosed)
	if !c.suppressReconnect {
		c.scheduleReconnectLocked()
	}
	c.mu.Unlock()

	c.log.Warn("Connection to streaming tool lost", "error", cause)
	c.emitter.Emit(domain.EventDisconnected, cause)
}

func (c *Client) scheduleReconnectLocked() {
	if c.reconnectTimer != nil {
		return
	}
	c.reconnectTimer = time.AfterFunc(c.opts.ReconnectDelay, func() {
		c.mu.Lock()
		c.reconnectTimer = nil
		stop := c.suppressReconnect
		c.mu.Unlock()
		if stop {
			return
		}
		c.log.Info("Attempting reconnect", "address", c.opts.Address)
		c.Connect(context.Background())
	})
}
