// Copyright 2025 AxonFlow
// SPDX-License-Identifier: BUSL-1.1
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package odm

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"time"

	"axonflow/odm/driver"
	"axonflow/odm/shared/logger"
	"axonflow/odm/shared/metrics"
)

// ErrNotOpened is returned by WaitReady when Open was never called.
var ErrNotOpened = errors.New("connection has not been opened; call Open first")

// Connection is a logical handle on one database. Several Connections may
// share a single physical client (see UseDb); each tracks its own readiness,
// models, and buffered operations.
//
// All state transitions for one Connection are serialized: mutations happen
// under the connection mutex and events are emitted by the goroutine that
// performed the transition, so listeners observe transitions in order.
type Connection struct {
	mu sync.Mutex

	id    int
	owner *ODM

	uri        string
	name       string
	host       string
	port       int
	readyState ConnectionState
	config     ConnectOptions
	destroyed  bool

	client driver.Client
	dialer driver.Dialer

	parent      *Connection
	children    []*Connection
	relatedDbs  map[string]*Connection
	lostPrimary bool
	openEmitted bool

	attempt *connectAttempt
	buffer  *opBuffer
	events  *emitter

	models     map[string]*Model
	modelOrder []string

	slog *logger.Logger
}

// connectAttempt is the shared outcome of one in-flight open. Every caller
// awaiting readiness during the attempt observes the same result.
type connectAttempt struct {
	done chan struct{}
	err  error
	once sync.Once
}

func (a *connectAttempt) finish(err error) {
	a.once.Do(func() {
		a.err = err
		close(a.done)
	})
}

func (a *connectAttempt) wait(ctx context.Context) error {
	select {
	case <-a.done:
		return a.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

func newConnection(owner *ODM, id int, dialer driver.Dialer) *Connection {
	if dialer == nil {
		dialer = driver.NewMongoClient
	}
	return &Connection{
		id:         id,
		owner:      owner,
		readyState: Disconnected,
		dialer:     dialer,
		relatedDbs: make(map[string]*Connection),
		buffer:     newOpBuffer(),
		events:     newEmitter(),
		models:     make(map[string]*Model),
		slog:       logger.New("connection"),
	}
}

// ID is the connection's identifier, unique and monotonic within its owning
// instance. The instance's default connection has id 0.
func (c *Connection) ID() int { return c.id }

// Name returns the database name the connection is scoped to.
func (c *Connection) Name() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.name
}

// Host returns the host resolved from the connection target.
func (c *Connection) Host() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.host
}

// Port returns the port resolved from the connection target.
func (c *Connection) Port() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.port
}

// State returns the current readiness level.
func (c *Connection) State() ConnectionState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.readyState
}

// Destroyed reports whether Destroy was called.
func (c *Connection) Destroyed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.destroyed
}

// Client returns the physical client backing this connection, or nil before
// the first open. UseDb-derived connections return their parent's client.
func (c *Connection) Client() driver.Client {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client
}

// On registers a listener for the named event.
func (c *Connection) On(ev Event, fn Listener) {
	c.events.on(ev, fn)
}

func (c *Connection) tag() string {
	return "conn" + strconv.Itoa(c.id)
}

// Open begins an asynchronous handshake against the target URI. It returns
// synchronously; readiness is awaited separately via WaitReady, so a handle
// obtained later observes the same eventual outcome as the opener.
//
// Configuration conflicts and terminal-state misuse fail here, before any
// network activity. An Open while a previous attempt is still in flight does
// not start a second handshake.
func (c *Connection) Open(uri string, opts *ConnectOptions) error {
	if opts == nil {
		opts = &ConnectOptions{}
	}
	if err := opts.validate(); err != nil {
		return err
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	switch c.readyState {
	case Connecting, Connected:
		// Joins the in-flight attempt / already-established session.
		c.mu.Unlock()
		return nil
	case Disconnecting:
		c.mu.Unlock()
		return fmt.Errorf("cannot open: connection is disconnecting")
	}

	c.uri = uri
	c.config = *opts
	c.readyState = Connecting
	attempt := &connectAttempt{done: make(chan struct{})}
	c.attempt = attempt
	c.mu.Unlock()

	metrics.SetReadyState(c.tag(), int(Connecting))
	c.events.emit(EventConnecting, nil)
	for _, child := range c.descendantsSnapshot() {
		child.markConnecting()
	}

	go c.runHandshake(attempt, uri, *opts)
	return nil
}

// WaitReady suspends the caller until the connection is connected, the
// current attempt fails, or ctx expires. It can be called independently of
// Open and by any number of goroutines.
func (c *Connection) WaitReady(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.readyState == Connected {
		c.mu.Unlock()
		return nil
	}
	attempt := c.attempt
	c.mu.Unlock()

	if attempt == nil {
		return ErrNotOpened
	}
	return attempt.wait(ctx)
}

func (c *Connection) runHandshake(attempt *connectAttempt, uri string, opts ConnectOptions) {
	target, err := parseTarget(uri)
	if err != nil {
		c.failAttempt(attempt, err)
		return
	}

	name := opts.DBName
	if name == "" {
		name = target.dbName
	}
	if name == "" {
		name = DefaultDBName
	}

	c.mu.Lock()
	c.host = target.host
	c.port = target.port
	c.name = name
	client := c.client
	if client == nil {
		cfg := driver.Config{
			URI:                    uri,
			AppName:                opts.AppName,
			MaxPoolSize:            opts.MaxPoolSize,
			MinPoolSize:            opts.MinPoolSize,
			ConnectTimeout:         opts.ConnectTimeout,
			ServerSelectionTimeout: opts.ServerSelectionTimeout,
			ReadPreference:         opts.ReadPreference,
			StateListener:          c.onTopologyState,
		}
		var dialErr error
		client, dialErr = c.dialer(cfg)
		if dialErr != nil {
			c.mu.Unlock()
			c.failAttempt(attempt, dialErr)
			return
		}
		c.client = client
	}
	c.mu.Unlock()

	timeout := opts.ConnectTimeout
	if timeout <= 0 {
		timeout = driver.DefaultConnectTimeout
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Connect(ctx); err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			err = &ServerSelectionError{Cause: err}
		}
		c.failAttempt(attempt, err)
		return
	}

	c.mu.Lock()
	if c.attempt != attempt || c.readyState != Connecting {
		// Closed or superseded while the handshake was in flight.
		c.mu.Unlock()
		attempt.finish(errors.New("connection was closed before it could be established"))
		return
	}
	c.mu.Unlock()

	metrics.RecordConnectionOpened()
	c.slog.Info(c.tag(), "connection established", map[string]interface{}{
		"host": target.host, "port": target.port, "db": name,
	})

	c.enterConnected()
	for _, child := range c.descendantsSnapshot() {
		// Connections derived before the handshake, at any depth, share
		// the client by definition; hand it over before they go ready.
		child.mu.Lock()
		child.client = client
		child.mu.Unlock()
		child.enterConnected()
	}
	c.fireOpenIfGroupReady()
	attempt.finish(nil)
}

func (c *Connection) failAttempt(attempt *connectAttempt, err error) {
	c.mu.Lock()
	c.readyState = Disconnected
	entries := c.buffer.take()
	c.mu.Unlock()

	metrics.RecordConnectionError()
	metrics.SetReadyState(c.tag(), int(Disconnected))
	c.slog.ErrorWithCause(c.tag(), "connection attempt failed", err, nil)

	attempt.finish(err)
	c.events.emit(EventError, err)
	rejectBuffered(entries, fmt.Errorf("initial connection failed: %w", err))

	for _, child := range c.descendantsSnapshot() {
		child.mu.Lock()
		if child.readyState == Connecting {
			child.readyState = Disconnected
		}
		child.mu.Unlock()
		metrics.SetReadyState(child.tag(), int(Disconnected))
	}
}

// enterConnected moves the connection to Connected and replays any buffered
// operations. The drain happens on the single transition to Connected, on
// one goroutine, preserving enqueue order.
func (c *Connection) enterConnected() {
	c.mu.Lock()
	if c.destroyed || c.readyState == Connected {
		c.mu.Unlock()
		return
	}
	c.readyState = Connected
	c.lostPrimary = false
	entries := c.buffer.take()
	c.mu.Unlock()

	metrics.SetReadyState(c.tag(), int(Connected))
	c.events.emit(EventConnected, nil)
	if len(entries) > 0 {
		go replayBuffered(context.Background(), entries)
	}
}

func (c *Connection) markConnecting() {
	c.mu.Lock()
	if c.destroyed || c.readyState == Connecting {
		c.mu.Unlock()
		return
	}
	c.readyState = Connecting
	c.mu.Unlock()
	metrics.SetReadyState(c.tag(), int(Connecting))
	c.events.emit(EventConnecting, nil)
}

// fireOpenIfGroupReady emits "open" on every connection sharing this
// connection's client once each of them is connected, root first.
func (c *Connection) fireOpenIfGroupReady() {
	group := c.groupSnapshot()
	for _, member := range group {
		if member.State() != Connected {
			return
		}
	}
	for _, member := range group {
		member.mu.Lock()
		already := member.openEmitted
		member.openEmitted = true
		member.mu.Unlock()
		if !already {
			member.events.emit(EventOpen, nil)
		}
	}
}

// onTopologyState handles connectivity changes reported by the physical
// client's server monitor. Losing the replica set's primary surfaces a
// "disconnected" event on every connection sharing the client, even while
// secondaries are still reachable; regaining one restores Connected.
func (c *Connection) onTopologyState(hasWritableServer bool) {
	group := c.groupSnapshot()
	if !hasWritableServer {
		for _, member := range group {
			member.mu.Lock()
			if member.readyState != Connected {
				member.mu.Unlock()
				continue
			}
			member.readyState = Disconnected
			member.lostPrimary = true
			member.openEmitted = false
			member.mu.Unlock()
			metrics.SetReadyState(member.tag(), int(Disconnected))
			member.events.emit(EventDisconnected, nil)
		}
		return
	}
	for _, member := range group {
		member.mu.Lock()
		regaining := member.lostPrimary && member.readyState == Disconnected
		member.mu.Unlock()
		if regaining {
			member.enterConnected()
		}
	}
	c.fireOpenIfGroupReady()
}

// Close gracefully shuts the connection down. On a top-level connection it
// disconnects the physical client and transitions every UseDb-derived child.
// On a derived connection it only clears the child's own bookkeeping; the
// shared client and its siblings are untouched.
func (c *Connection) Close(ctx context.Context) error {
	return c.close(ctx, false)
}

// CloseForce shuts down immediately: the physical client is marked dead
// first, so driver calls issued afterwards fail fast instead of hanging.
func (c *Connection) CloseForce(ctx context.Context) error {
	return c.close(ctx, true)
}

func (c *Connection) close(ctx context.Context, force bool) error {
	c.mu.Lock()
	if c.readyState == Disconnected || c.readyState == Disconnecting {
		c.mu.Unlock()
		return nil
	}
	attempt := c.attempt
	c.attempt = nil
	c.readyState = Disconnecting
	c.openEmitted = false
	client := c.client
	isChild := c.parent != nil
	entries := c.buffer.take()
	c.mu.Unlock()

	metrics.SetReadyState(c.tag(), int(Disconnecting))
	c.events.emit(EventDisconnecting, nil)
	rejectBuffered(entries, &DisconnectedError{Op: "buffered operation"})
	if attempt != nil {
		attempt.finish(errors.New("connection was closed before it could be established"))
	}

	if isChild {
		c.parent.removeChild(c)
		c.finishClose()
		return nil
	}

	if client != nil {
		if force {
			client.Kill()
		}
		if err := client.Disconnect(ctx); err != nil {
			c.slog.ErrorWithCause(c.tag(), "client disconnect failed", err, nil)
		}
	}
	descendants := c.descendantsSnapshot()
	for _, child := range descendants {
		child.closeFromParent()
	}
	if force {
		// The killed client is dead for good; drop every reference so a
		// later Open dials a fresh one.
		c.mu.Lock()
		c.client = nil
		c.mu.Unlock()
		for _, child := range descendants {
			child.mu.Lock()
			child.client = nil
			child.mu.Unlock()
		}
	}
	c.finishClose()
	return nil
}

// closeFromParent transitions a derived connection after the shared client
// was shut down by its owner.
func (c *Connection) closeFromParent() {
	c.mu.Lock()
	if c.readyState == Disconnected {
		c.mu.Unlock()
		return
	}
	c.readyState = Disconnecting
	c.openEmitted = false
	entries := c.buffer.take()
	c.mu.Unlock()

	c.events.emit(EventDisconnecting, nil)
	rejectBuffered(entries, &DisconnectedError{Op: "buffered operation"})
	c.finishClose()
}

func (c *Connection) finishClose() {
	c.mu.Lock()
	c.readyState = Disconnected
	c.mu.Unlock()
	metrics.SetReadyState(c.tag(), int(Disconnected))
	c.events.emit(EventDisconnected, nil)
	c.events.emit(EventClose, nil)
}

// Destroy closes the connection and removes it from its owning instance.
// The connection becomes permanently unusable: any later Open fails with
// the fixed terminal error before any network activity.
func (c *Connection) Destroy(ctx context.Context) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil
	}
	c.destroyed = true
	c.mu.Unlock()

	_ = c.close(ctx, false)

	c.mu.Lock()
	c.client = nil
	isChild := c.parent != nil
	c.mu.Unlock()

	if !isChild && c.owner != nil {
		c.owner.removeConnection(c)
	}
	return nil
}

// UseDb returns a logical connection scoped to the named database, sharing
// this connection's physical client. With UseCache, repeat calls for the
// same name return the identical child.
func (c *Connection) UseDb(name string, opts *UseDbOptions) (*Connection, error) {
	useCache := opts != nil && opts.UseCache

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrDestroyed
	}
	if useCache {
		if child, ok := c.relatedDbs[name]; ok {
			c.mu.Unlock()
			return child, nil
		}
	}

	child := newConnection(c.owner, c.owner.nextID(), c.dialer)
	child.parent = c
	child.uri = c.uri
	child.name = name
	child.host = c.host
	child.port = c.port
	child.config = c.config
	child.client = c.client
	child.readyState = c.readyState
	child.openEmitted = c.openEmitted

	c.children = append(c.children, child)
	if useCache {
		c.relatedDbs[name] = child
	}
	c.mu.Unlock()

	metrics.SetReadyState(child.tag(), int(child.State()))
	return child, nil
}

// UseDbOptions controls UseDb behavior.
type UseDbOptions struct {
	// UseCache interns the derived connection by database name, so repeat
	// calls return the same object.
	UseCache bool
}

func (c *Connection) removeChild(child *Connection) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for i, cc := range c.children {
		if cc == child {
			c.children = append(c.children[:i], c.children[i+1:]...)
			break
		}
	}
	for name, cc := range c.relatedDbs {
		if cc == child {
			delete(c.relatedDbs, name)
		}
	}
}

func (c *Connection) childrenSnapshot() []*Connection {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.childrenSnapshotLocked()
}

func (c *Connection) childrenSnapshotLocked() []*Connection {
	out := make([]*Connection, len(c.children))
	copy(out, c.children)
	return out
}

// descendantsSnapshot returns every connection derived from this one, at any
// depth, in breadth-first order. Lifecycle transitions propagate over this
// set so second-level derivations follow the shared client too.
func (c *Connection) descendantsSnapshot() []*Connection {
	var out []*Connection
	queue := c.childrenSnapshot()
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		out = append(out, next)
		queue = append(queue, next.childrenSnapshot()...)
	}
	return out
}

// rootConn walks to the topmost connection owning the shared client.
// Parent pointers are immutable after creation.
func (c *Connection) rootConn() *Connection {
	root := c
	for root.parent != nil {
		root = root.parent
	}
	return root
}

// groupSnapshot returns the root connection and all descendants sharing its
// client, root first.
func (c *Connection) groupSnapshot() []*Connection {
	root := c.rootConn()
	group := []*Connection{root}
	queue := root.childrenSnapshot()
	for len(queue) > 0 {
		next := queue[0]
		queue = queue[1:]
		group = append(group, next)
		queue = append(queue, next.childrenSnapshot()...)
	}
	return group
}

// PendingOperations reports how many operations are queued waiting for
// readiness.
func (c *Connection) PendingOperations() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.buffer.entries)
}

// configSnapshot returns the options captured at open time.
func (c *Connection) configSnapshot() ConnectOptions {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.config
}

// executeOp runs fn directly when the connection is ready, otherwise queues
// it (or fails fast when buffering is disabled). A buffered caller suspends
// until replay, terminal failure, the buffering window, or ctx.
func (c *Connection) executeOp(ctx context.Context, op string, bufferEnabled bool, timeout time.Duration, fn func(context.Context) error) error {
	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return ErrDestroyed
	}
	if c.readyState == Connected {
		c.mu.Unlock()
		return fn(ctx)
	}
	if !bufferEnabled {
		c.mu.Unlock()
		return &DisconnectedError{Op: op}
	}
	entry := c.buffer.enqueue(op, fn)
	c.mu.Unlock()

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-entry.done:
		return err
	case <-timer.C:
		entry.abandon()
		metrics.RecordBufferTimeout()
		return &BufferTimeoutError{Op: op, Timeout: timeout}
	case <-ctx.Done():
		entry.abandon()
		return ctx.Err()
	}
}
