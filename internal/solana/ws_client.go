package solana

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
)

// ErrWSClosed is returned by subscriptions on a closed client.
var ErrWSClosed = errors.New("websocket client closed")

// WSClientConfig configures PubSubClient. Zero fields take DefaultWSConfig values.
type WSClientConfig struct {
	ReconnectDelay    time.Duration // first redial delay, doubled per failure
	MaxReconnectDelay time.Duration
	PingInterval      time.Duration
	ReadTimeout       time.Duration
	WriteTimeout      time.Duration
	SubscribeTimeout  time.Duration // wait for the subscription id reply
	Logger            *log.Logger
}

// DefaultWSConfig returns default WebSocket configuration.
func DefaultWSConfig() WSClientConfig {
	return WSClientConfig{
		ReconnectDelay:    1 * time.Second,
		MaxReconnectDelay: 30 * time.Second,
		PingInterval:      30 * time.Second,
		ReadTimeout:       60 * time.Second,
		WriteTimeout:      10 * time.Second,
		SubscribeTimeout:  30 * time.Second,
	}
}

func (c WSClientConfig) withDefaults() WSClientConfig {
	def := DefaultWSConfig()
	if c.ReconnectDelay <= 0 {
		c.ReconnectDelay = def.ReconnectDelay
	}
	if c.MaxReconnectDelay < c.ReconnectDelay {
		c.MaxReconnectDelay = max(def.MaxReconnectDelay, c.ReconnectDelay)
	}
	if c.PingInterval <= 0 {
		c.PingInterval = def.PingInterval
	}
	if c.ReadTimeout <= 0 {
		c.ReadTimeout = def.ReadTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = def.WriteTimeout
	}
	if c.SubscribeTimeout <= 0 {
		c.SubscribeTimeout = def.SubscribeTimeout
	}
	if c.Logger == nil {
		c.Logger = log.Default()
	}
	return c
}

// subscription is one programSubscribe registration. It outlives
// reconnects; only its server-side id changes.
type subscription struct {
	filter ProgramFilter
	out    chan AccountNotification
}

type subscribeReply struct {
	id  int64
	err error
}

type pendingSubscribe struct {
	sub   *subscription
	reply chan subscribeReply
}

// PubSubClient implements WSClient over one gorilla/websocket connection.
// A lost connection is redialed with exponential backoff and every
// subscription is re-established on the new connection.
type PubSubClient struct {
	endpoint string
	cfg      WSClientConfig
	logger   *log.Logger

	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
	wg     sync.WaitGroup

	writeMu sync.Mutex // serializes writes and connection swaps
	conn    *websocket.Conn

	mu      sync.Mutex
	nextID  uint64
	all     []*subscription
	live    map[int64]*subscription // by server subscription id, current connection only
	waiting map[uint64]pendingSubscribe
}

var _ WSClient = (*PubSubClient)(nil)

// NewWSClient dials endpoint and starts the reader and keepalive.
func NewWSClient(ctx context.Context, endpoint string, config *WSClientConfig) (*PubSubClient, error) {
	var cfg WSClientConfig
	if config != nil {
		cfg = *config
	}
	cfg = cfg.withDefaults()

	c := &PubSubClient{
		endpoint: endpoint,
		cfg:      cfg,
		logger:   cfg.Logger,
		live:     make(map[int64]*subscription),
		waiting:  make(map[uint64]pendingSubscribe),
	}
	c.ctx, c.cancel = context.WithCancel(context.Background())

	if err := c.dial(ctx); err != nil {
		c.cancel()
		return nil, err
	}

	c.wg.Add(2)
	go c.run()
	go c.keepalive()
	return c, nil
}

func (c *PubSubClient) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: 10 * time.Second}
	conn, _, err := dialer.DialContext(ctx, c.endpoint, nil)
	if err != nil {
		return fmt.Errorf("websocket dial: %w", err)
	}

	c.writeMu.Lock()
	c.conn = conn
	c.writeMu.Unlock()
	return nil
}

func (c *PubSubClient) current() *websocket.Conn {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn
}

// dropConnection closes conn if it is still current so run() redials.
func (c *PubSubClient) dropConnection(conn *websocket.Conn) {
	c.writeMu.Lock()
	if c.conn == conn {
		conn.Close()
	}
	c.writeMu.Unlock()
}

func (c *PubSubClient) writeJSON(v interface{}) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if c.conn == nil {
		return errors.New("not connected")
	}
	c.conn.SetWriteDeadline(time.Now().Add(c.cfg.WriteTimeout))
	return c.conn.WriteJSON(v)
}

// SubscribeProgram subscribes to account changes for accounts owned by
// filter.ProgramID. The returned channel is closed by Close.
func (c *PubSubClient) SubscribeProgram(ctx context.Context, filter ProgramFilter) (<-chan AccountNotification, error) {
	if filter.ProgramID == "" {
		return nil, errors.New("program id required")
	}

	// The reader blocks rather than drop when the buffer is full.
	sub := &subscription{filter: filter, out: make(chan AccountNotification, 10000)}
	c.mu.Lock()
	c.all = append(c.all, sub)
	c.mu.Unlock()

	if _, err := c.subscribe(ctx, sub); err != nil {
		c.forget(sub)
		return nil, err
	}
	return sub.out, nil
}

func (c *PubSubClient) forget(sub *subscription) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, s := range c.all {
		if s == sub {
			c.all = append(c.all[:i], c.all[i+1:]...)
			return
		}
	}
}

// subscribe sends programSubscribe for sub and waits for the reply. The
// reader registers sub under its new id before the reply is delivered, so
// no notification can arrive unrouted.
func (c *PubSubClient) subscribe(ctx context.Context, sub *subscription) (int64, error) {
	if c.closed.Load() {
		return 0, ErrWSClosed
	}

	reply := make(chan subscribeReply, 1)
	c.mu.Lock()
	c.nextID++
	reqID := c.nextID
	c.waiting[reqID] = pendingSubscribe{sub: sub, reply: reply}
	c.mu.Unlock()
	defer func() {
		c.mu.Lock()
		delete(c.waiting, reqID)
		c.mu.Unlock()
	}()

	req := wsRequest{
		JSONRPC: "2.0",
		ID:      reqID,
		Method:  "programSubscribe",
		Params:  programSubscribeParams(sub.filter),
	}
	if err := c.writeJSON(req); err != nil {
		return 0, fmt.Errorf("write subscribe: %w", err)
	}

	timer := time.NewTimer(c.cfg.SubscribeTimeout)
	defer timer.Stop()

	select {
	case r := <-reply:
		return r.id, r.err
	case <-timer.C:
		return 0, fmt.Errorf("subscribe %s: no reply within %s", sub.filter.ProgramID, c.cfg.SubscribeTimeout)
	case <-c.ctx.Done():
		return 0, ErrWSClosed
	case <-ctx.Done():
		return 0, ctx.Err()
	}
}

// run reads the current connection until it fails, then redials and
// restores subscriptions. It exits on Close.
func (c *PubSubClient) run() {
	defer c.wg.Done()

	for {
		err := c.readFrom(c.current())
		if c.closed.Load() {
			return
		}
		c.logger.Printf("[ws] connection lost: %v", err)
		c.resetConnectionState(err)

		if !c.redial() {
			return
		}

		c.wg.Add(1)
		go c.restore(c.current())
	}
}

func (c *PubSubClient) readFrom(conn *websocket.Conn) error {
	for {
		conn.SetReadDeadline(time.Now().Add(c.cfg.ReadTimeout))
		_, message, err := conn.ReadMessage()
		if err != nil {
			return err
		}
		c.handleMessage(message)
	}
}

// resetConnectionState forgets server ids and fails subscribes that were
// waiting on the dead connection.
func (c *PubSubClient) resetConnectionState(cause error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	clear(c.live)
	for id, p := range c.waiting {
		p.reply <- subscribeReply{err: fmt.Errorf("connection lost: %w", cause)}
		delete(c.waiting, id)
	}
}

// redial retries with exponential backoff. Returns false when closed.
func (c *PubSubClient) redial() bool {
	delay := c.cfg.ReconnectDelay
	for {
		select {
		case <-c.ctx.Done():
			return false
		case <-time.After(delay):
		}

		ctx, cancel := context.WithTimeout(c.ctx, 30*time.Second)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			c.logger.Printf("[ws] reconnected to %s", c.endpoint)
			return true
		}
		if c.closed.Load() {
			return false
		}
		c.logger.Printf("[ws] redial failed, next attempt in %s: %v", min(delay*2, c.cfg.MaxReconnectDelay), err)
		delay = min(delay*2, c.cfg.MaxReconnectDelay)
	}
}

// restore re-subscribes every registration on conn. Any failure drops
// conn so the whole set is retried on the next one.
func (c *PubSubClient) restore(conn *websocket.Conn) {
	defer c.wg.Done()

	c.mu.Lock()
	subs := append([]*subscription(nil), c.all...)
	c.mu.Unlock()

	for _, sub := range subs {
		if _, err := c.subscribe(c.ctx, sub); err != nil {
			if c.closed.Load() {
				return
			}
			c.logger.Printf("[ws] resubscribe %s failed: %v", sub.filter.ProgramID, err)
			c.dropConnection(conn)
			return
		}
	}
	if len(subs) > 0 {
		c.logger.Printf("[ws] restored %d subscriptions", len(subs))
	}
}

// Close stops the client and closes every subscription channel.
func (c *PubSubClient) Close() error {
	if c.closed.Swap(true) {
		return nil
	}
	c.cancel()

	c.writeMu.Lock()
	if c.conn != nil {
		c.conn.WriteMessage(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
		c.conn.Close()
	}
	c.writeMu.Unlock()

	// Reader must be gone before its channels are closed.
	c.wg.Wait()

	c.mu.Lock()
	for _, sub := range c.all {
		close(sub.out)
	}
	c.all = nil
	clear(c.live)
	c.mu.Unlock()

	return nil
}

// handleMessage routes a subscribe reply or a programNotification.
func (c *PubSubClient) handleMessage(message []byte) {
	var env wsEnvelope
	if err := json.Unmarshal(message, &env); err != nil {
		c.logger.Printf("[ws] malformed message: %v", err)
		return
	}

	switch {
	case env.Method == "programNotification" && env.Params != nil:
		c.deliver(env.Params)
	case env.ID != nil:
		c.completeSubscribe(*env.ID, env.Result, env.Error)
	}
}

func (c *PubSubClient) completeSubscribe(reqID uint64, result json.RawMessage, rpcErr *RPCError) {
	c.mu.Lock()
	defer c.mu.Unlock()

	p, ok := c.waiting[reqID]
	if !ok {
		return
	}
	delete(c.waiting, reqID)

	var r subscribeReply
	switch {
	case rpcErr != nil:
		r.err = fmt.Errorf("programSubscribe: %w", rpcErr)
	default:
		if err := json.Unmarshal(result, &r.id); err != nil {
			r.err = fmt.Errorf("programSubscribe: bad subscription id %s", result)
		} else {
			c.live[r.id] = p.sub
		}
	}
	p.reply <- r
}

func (c *PubSubClient) deliver(params *wsNotificationParams) {
	c.mu.Lock()
	sub := c.live[params.Subscription]
	c.mu.Unlock()
	if sub == nil {
		return
	}

	n := AccountNotification{
		Pubkey:  params.Result.Value.Pubkey,
		Account: params.Result.Value.Account.toAccountInfo(),
	}
	if params.Result.Context != nil {
		n.Slot = params.Result.Context.Slot
	}

	select {
	case sub.out <- n:
	case <-c.ctx.Done():
	}
}

// keepalive sends ping frames. Write errors surface as read errors in run.
func (c *PubSubClient) keepalive() {
	defer c.wg.Done()

	ticker := time.NewTicker(c.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.ctx.Done():
			return
		case <-ticker.C:
			c.writeMu.Lock()
			if c.conn != nil {
				c.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(c.cfg.WriteTimeout))
			}
			c.writeMu.Unlock()
		}
	}
}

// programSubscribeParams builds the programSubscribe params for filter.
func programSubscribeParams(filter ProgramFilter) []interface{} {
	commitment := filter.Commitment
	if commitment == "" {
		commitment = "confirmed"
	}
	config := map[string]interface{}{
		"encoding":   "base64",
		"commitment": commitment,
	}
	if len(filter.Filters) > 0 {
		raw := make([]interface{}, 0, len(filter.Filters))
		for _, f := range filter.Filters {
			switch {
			case f.Memcmp != nil:
				raw = append(raw, map[string]interface{}{
					"memcmp": map[string]interface{}{"offset": f.Memcmp.Offset, "bytes": f.Memcmp.Bytes},
				})
			case f.DataSize > 0:
				raw = append(raw, map[string]interface{}{"dataSize": f.DataSize})
			}
		}
		config["filters"] = raw
	}
	return []interface{}{filter.ProgramID, config}
}

type wsRequest struct {
	JSONRPC string        `json:"jsonrpc"`
	ID      uint64        `json:"id"`
	Method  string        `json:"method"`
	Params  []interface{} `json:"params,omitempty"`
}

// wsEnvelope covers both replies (ID set) and notifications (Method set).
type wsEnvelope struct {
	ID     *uint64               `json:"id"`
	Method string                `json:"method"`
	Result json.RawMessage       `json:"result"`
	Error  *RPCError             `json:"error"`
	Params *wsNotificationParams `json:"params"`
}

type wsNotificationParams struct {
	Subscription int64 `json:"subscription"`
	Result       struct {
		Context *struct {
			Slot int64 `json:"slot"`
		} `json:"context"`
		Value struct {
			Pubkey  string     `json:"pubkey"`
			Account rawAccount `json:"account"`
		} `json:"value"`
	} `json:"result"`
}
