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
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
)

const (
	// DefaultConnectTimeout is the default dial timeout
	DefaultConnectTimeout = 30 * time.Second
	// DefaultServerSelectionTimeout is the default server selection window
	DefaultServerSelectionTimeout = 30 * time.Second
	// DefaultMaxPoolSize is the default maximum connection pool size
	DefaultMaxPoolSize = 100
	// DefaultMinPoolSize is the default minimum connection pool size
	DefaultMinPoolSize = 0
)

// StateListener receives topology-level connectivity changes from the client.
// hasWritableServer is false when the cluster has no reachable primary (or
// standalone/mongos), even if secondary members are still responding.
type StateListener func(hasWritableServer bool)

// Config holds everything a Client needs to dial a deployment.
// It is assembled by the connection layer from the resolved target URI and
// the caller's options; the client treats it as read-only.
type Config struct {
	URI                    string
	AppName                string
	MaxPoolSize            uint64
	MinPoolSize            uint64
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
	ReadPreference         string
	StateListener          StateListener
}

// Client is the narrow surface the connection layer needs from a physical
// MongoDB client. One Client may back many logical connections; see ID.
type Client interface {
	// ID is a stable tag identifying this physical client instance.
	// Logical connections derived from the same client share the tag.
	ID() string

	// Connect dials the deployment and verifies it with a ping. It blocks
	// until the deployment is reachable or the selection window elapses.
	Connect(ctx context.Context) error

	// Disconnect tears down the underlying pool.
	Disconnect(ctx context.Context) error

	// Kill marks the client dead without network activity. Every operation
	// issued after Kill fails fast instead of hanging on a dead pool.
	Kill()

	// Database returns a handle scoped to the named database.
	Database(name string) Database
}

// Database is a logical database handle on a Client.
type Database interface {
	Name() string
	Collection(name string) Collection
}

// Collection is the operation surface models execute against.
type Collection interface {
	Name() string
	InsertOne(ctx context.Context, doc interface{}) (interface{}, error)
	InsertMany(ctx context.Context, docs []interface{}) ([]interface{}, error)
	FindOne(ctx context.Context, filter interface{}, out interface{}) error
	Find(ctx context.Context, filter interface{}) ([]bson.M, error)
	UpdateOne(ctx context.Context, filter, update interface{}) (int64, error)
	DeleteMany(ctx context.Context, filter interface{}) (int64, error)
	CountDocuments(ctx context.Context, filter interface{}) (int64, error)
	EnsureIndexes(ctx context.Context, specs []IndexSpec) error
}

// IndexSpec describes one index a model wants present on its collection.
type IndexSpec struct {
	Keys   bson.D
	Name   string
	Unique bool
	Sparse bool
}

// Dialer constructs a Client from a Config without performing I/O.
// The connection layer calls Connect on the result asynchronously.
type Dialer func(cfg Config) (Client, error)

// ErrNoDocuments is returned by FindOne when no document matches the filter.
// It mirrors the underlying driver's sentinel so callers can test for it
// without importing the driver.
var ErrNoDocuments = errors.New("no documents in result")

// ErrClientKilled is returned by every operation issued after Kill.
var ErrClientKilled = errors.New("client was force closed and is no longer usable")
