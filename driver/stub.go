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

package driver

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
)

// Stub is an in-memory Client used by tests across packages. It counts calls
// so tests can assert that certain paths never touch the network layer, and
// it can be told to fail or block the handshake.
type Stub struct {
	mu sync.Mutex

	id       string
	cfg      Config
	dead     bool
	shutDown bool

	// ConnectErr, when set, makes Connect fail with it.
	ConnectErr error
	// ConnectGate, when non-nil, blocks Connect until the channel is closed.
	ConnectGate chan struct{}

	ConnectCalls    int
	DisconnectCalls int
	KillCalls       int
	DialCalls       int

	// Ops records every collection-level call as "db.coll.op".
	Ops []string

	docs map[string][]interface{}
}

// NewStub returns a fresh stub client. The cfg StateListener, if any, can be
// driven from tests via EmitState.
func NewStub(cfg Config) *Stub {
	return &Stub{
		id:   uuid.NewString(),
		cfg:  cfg,
		docs: make(map[string][]interface{}),
	}
}

// StubDialer returns a Dialer that hands out the given stub for every dial,
// mirroring how a physical client is shared across logical connections.
func StubDialer(s *Stub) Dialer {
	return func(cfg Config) (Client, error) {
		s.mu.Lock()
		s.cfg = cfg
		s.DialCalls++
		s.mu.Unlock()
		return s, nil
	}
}

func (s *Stub) ID() string { return s.id }

func (s *Stub) Connect(ctx context.Context) error {
	s.mu.Lock()
	s.ConnectCalls++
	gate := s.ConnectGate
	err := s.ConnectErr
	s.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	if err != nil {
		return err
	}
	return nil
}

func (s *Stub) Disconnect(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.DisconnectCalls++
	s.shutDown = true
	return nil
}

func (s *Stub) Kill() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.KillCalls++
	s.dead = true
}

// EmitState drives the configured StateListener, simulating a topology
// change reported by the server monitor.
func (s *Stub) EmitState(hasWritableServer bool) {
	s.mu.Lock()
	listener := s.cfg.StateListener
	s.mu.Unlock()
	if listener != nil {
		listener(hasWritableServer)
	}
}

// OpsSnapshot copies the recorded operations, safe to call while stub-backed
// goroutines are still running.
func (s *Stub) OpsSnapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.Ops...)
}

func (s *Stub) Database(name string) Database {
	return &stubDatabase{owner: s, name: name}
}

func (s *Stub) record(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.dead {
		return ErrClientKilled
	}
	s.Ops = append(s.Ops, op)
	return nil
}

type stubDatabase struct {
	owner *Stub
	name  string
}

func (d *stubDatabase) Name() string { return d.name }

func (d *stubDatabase) Collection(name string) Collection {
	return &stubCollection{owner: d.owner, key: d.name + "." + name}
}

type stubCollection struct {
	owner *Stub
	key   string
}

func (c *stubCollection) Name() string { return c.key }

func (c *stubCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	if err := c.owner.record(c.key + ".insertOne"); err != nil {
		return nil, err
	}
	c.owner.mu.Lock()
	c.owner.docs[c.key] = append(c.owner.docs[c.key], doc)
	n := len(c.owner.docs[c.key])
	c.owner.mu.Unlock()
	return n, nil
}

func (c *stubCollection) InsertMany(ctx context.Context, docs []interface{}) ([]interface{}, error) {
	if err := c.owner.record(c.key + ".insertMany"); err != nil {
		return nil, err
	}
	ids := make([]interface{}, 0, len(docs))
	c.owner.mu.Lock()
	for _, doc := range docs {
		c.owner.docs[c.key] = append(c.owner.docs[c.key], doc)
		ids = append(ids, len(c.owner.docs[c.key]))
	}
	c.owner.mu.Unlock()
	return ids, nil
}

func (c *stubCollection) FindOne(ctx context.Context, filter interface{}, out interface{}) error {
	if err := c.owner.record(c.key + ".findOne"); err != nil {
		return err
	}
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	if len(c.owner.docs[c.key]) == 0 {
		return ErrNoDocuments
	}
	if m, ok := out.(*bson.M); ok {
		if doc, ok := c.owner.docs[c.key][0].(bson.M); ok {
			*m = doc
		}
	}
	return nil
}

func (c *stubCollection) Find(ctx context.Context, filter interface{}) ([]bson.M, error) {
	if err := c.owner.record(c.key + ".find"); err != nil {
		return nil, err
	}
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	var results []bson.M
	for _, doc := range c.owner.docs[c.key] {
		if m, ok := doc.(bson.M); ok {
			results = append(results, m)
		}
	}
	return results, nil
}

func (c *stubCollection) UpdateOne(ctx context.Context, filter, update interface{}) (int64, error) {
	if err := c.owner.record(c.key + ".updateOne"); err != nil {
		return 0, err
	}
	return 1, nil
}

func (c *stubCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	if err := c.owner.record(c.key + ".deleteMany"); err != nil {
		return 0, err
	}
	c.owner.mu.Lock()
	n := int64(len(c.owner.docs[c.key]))
	delete(c.owner.docs, c.key)
	c.owner.mu.Unlock()
	return n, nil
}

func (c *stubCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	if err := c.owner.record(c.key + ".countDocuments"); err != nil {
		return 0, err
	}
	c.owner.mu.Lock()
	defer c.owner.mu.Unlock()
	return int64(len(c.owner.docs[c.key])), nil
}

func (c *stubCollection) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	return c.owner.record(c.key + ".ensureIndexes")
}
