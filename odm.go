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

// Package odm is an object-document mapping layer for MongoDB. This package
// owns the connection lifecycle: the readiness state machine, buffering of
// operations issued before a connection is established, database
// multiplexing over one physical client, and per-connection model
// registration.
package odm

import (
	"context"
	"regexp"
	"sync"

	"axonflow/odm/driver"
	"axonflow/odm/schema"
	"axonflow/odm/shared/logger"
)

// ODM is one independent instance of the mapping layer. Each instance owns
// its connections, assigns their identifiers from a zero-based counter, and
// carries instance-level policy such as model overwriting. The instance's
// default connection always has id 0.
type ODM struct {
	mu              sync.Mutex
	idCounter       int
	conns           []*Connection
	defaultConn     *Connection
	dialer          driver.Dialer
	overwriteModels bool

	slog *logger.Logger
}

// New creates an instance backed by the real MongoDB driver.
func New() *ODM {
	return NewWithDialer(nil)
}

// NewWithDialer creates an instance whose connections dial through d.
// Tests inject stub dialers here; nil means the real driver.
func NewWithDialer(d driver.Dialer) *ODM {
	o := &ODM{
		dialer: d,
		slog:   logger.New("odm"),
	}
	o.defaultConn = o.CreateConnection()
	return o
}

func (o *ODM) nextID() int {
	o.mu.Lock()
	defer o.mu.Unlock()
	id := o.idCounter
	o.idCounter++
	return id
}

// Connection returns the instance's default connection (id 0).
func (o *ODM) Connection() *Connection {
	return o.defaultConn
}

// CreateConnection creates a new top-level connection with the next
// identifier. Identifiers are never reused, even after Destroy.
func (o *ODM) CreateConnection() *Connection {
	c := newConnection(o, o.nextID(), o.dialer)
	o.mu.Lock()
	o.conns = append(o.conns, c)
	o.mu.Unlock()
	registerActive(c)
	return c
}

// Connections returns the instance's active top-level connections in
// creation order. Destroyed connections are absent.
func (o *ODM) Connections() []*Connection {
	o.mu.Lock()
	defer o.mu.Unlock()
	return append([]*Connection(nil), o.conns...)
}

// removeConnection drops c from the enumeration and from the process-wide
// table. Called exactly once per Destroy; the removal itself is the guard
// against double decrement.
func (o *ODM) removeConnection(c *Connection) {
	o.mu.Lock()
	removed := false
	for i, cc := range o.conns {
		if cc == c {
			o.conns = append(o.conns[:i], o.conns[i+1:]...)
			removed = true
			break
		}
	}
	o.mu.Unlock()
	if removed {
		unregisterActive(c)
	}
}

// Connect opens the default connection and suspends until it is ready or
// the attempt fails.
func (o *ODM) Connect(ctx context.Context, uri string, opts *ConnectOptions) error {
	if err := o.defaultConn.Open(uri, opts); err != nil {
		return err
	}
	return o.defaultConn.WaitReady(ctx)
}

// Disconnect closes every connection owned by this instance.
func (o *ODM) Disconnect(ctx context.Context) error {
	var first error
	for _, c := range o.Connections() {
		if err := c.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// SetOverwriteModels sets the instance-level overwrite policy applied when a
// model name is registered twice without a per-call option.
func (o *ODM) SetOverwriteModels(v bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.overwriteModels = v
}

func (o *ODM) overwriteModelsEnabled() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.overwriteModels
}

// Model registers or looks up a model on the default connection.
func (o *ODM) Model(name string, sch *schema.Schema, opts ...ModelOptions) (*Model, error) {
	return o.defaultConn.Model(name, sch, opts...)
}

// ModelNames lists the default connection's models in registration order.
func (o *ODM) ModelNames() []string {
	return o.defaultConn.ModelNames()
}

// DeleteModel removes the named model from the default connection.
func (o *ODM) DeleteModel(name string) {
	o.defaultConn.DeleteModel(name)
}

// DeleteModelsMatching removes matching models from the default connection.
func (o *ODM) DeleteModelsMatching(pattern *regexp.Regexp) {
	o.defaultConn.DeleteModelsMatching(pattern)
}

// --- Process-wide active connection table ---
//
// Diagnostics need to see every live top-level connection regardless of
// which instance owns it, so the table is an explicit package-level
// container with add/remove operations rather than ambient globals
// scattered across instances.

var (
	activeMu          sync.RWMutex
	activeConnections []*Connection
)

func registerActive(c *Connection) {
	activeMu.Lock()
	defer activeMu.Unlock()
	activeConnections = append(activeConnections, c)
}

func unregisterActive(c *Connection) {
	activeMu.Lock()
	defer activeMu.Unlock()
	for i, cc := range activeConnections {
		if cc == c {
			activeConnections = append(activeConnections[:i], activeConnections[i+1:]...)
			return
		}
	}
}

// ActiveConnections enumerates every live top-level connection across all
// instances, for diagnostics.
func ActiveConnections() []*Connection {
	activeMu.RLock()
	defer activeMu.RUnlock()
	return append([]*Connection(nil), activeConnections...)
}

// DisconnectAll closes every live top-level connection across all
// instances. Useful for process shutdown.
func DisconnectAll(ctx context.Context) error {
	var first error
	for _, c := range ActiveConnections() {
		if err := c.Close(ctx); err != nil && first == nil {
			first = err
		}
	}
	return first
}
