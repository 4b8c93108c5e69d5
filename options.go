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
	"fmt"
	"net/url"
	"strconv"
	"strings"
	"time"
)

const (
	// DefaultBufferTimeoutMS is the default buffering window for operations
	// issued before readiness.
	DefaultBufferTimeoutMS = 10000
	// DefaultDBName is used when neither the target URI nor the options
	// name a database.
	DefaultDBName = "test"
)

// ConnectOptions is the configuration snapshot a Connection captures at open
// time. Pointer fields distinguish "unset" from an explicit false so schema-
// and call-level overrides compose predictably.
type ConnectOptions struct {
	// DBName overrides the database name parsed from the connection target.
	DBName string

	// AppName is reported to the server for monitoring.
	AppName string

	// BufferCommands enables queueing of operations issued before readiness.
	// Nil means the default (enabled).
	BufferCommands *bool

	// BufferTimeoutMS bounds how long a buffered operation waits for
	// readiness. Zero means DefaultBufferTimeoutMS.
	BufferTimeoutMS int

	// AutoIndex and AutoCreate control index builds and collection creation
	// at model registration. Both are forced false when ReadPreference is
	// secondary or secondaryPreferred.
	AutoIndex  *bool
	AutoCreate *bool

	// ReadPreference is one of primary, primaryPreferred, secondary,
	// secondaryPreferred, nearest. Empty means the driver default.
	ReadPreference string

	MaxPoolSize            uint64
	MinPoolSize            uint64
	ConnectTimeout         time.Duration
	ServerSelectionTimeout time.Duration
}

// validate catches configuration conflicts synchronously, before any
// network activity.
func (o *ConnectOptions) validate() error {
	if o.secondaryReadPreference() {
		if o.AutoIndex != nil && *o.AutoIndex {
			return &ConfigError{Message: "MongoDB prohibits index builds on secondaries: cannot set autoIndex to true when read preference is " + o.ReadPreference}
		}
		if o.AutoCreate != nil && *o.AutoCreate {
			return &ConfigError{Message: "MongoDB prohibits collection creation on secondaries: cannot set autoCreate to true when read preference is " + o.ReadPreference}
		}
	}
	return nil
}

func (o *ConnectOptions) secondaryReadPreference() bool {
	rp := strings.ToLower(o.ReadPreference)
	return rp == "secondary" || rp == "secondarypreferred"
}

// effectiveAutoIndex resolves the autoIndex setting after the secondary
// read-preference override.
func (o *ConnectOptions) effectiveAutoIndex() bool {
	if o.secondaryReadPreference() {
		return false
	}
	if o.AutoIndex != nil {
		return *o.AutoIndex
	}
	return true
}

func (o *ConnectOptions) bufferCommands() bool {
	if o.BufferCommands != nil {
		return *o.BufferCommands
	}
	return true
}

func (o *ConnectOptions) bufferTimeout() time.Duration {
	ms := o.BufferTimeoutMS
	if ms <= 0 {
		ms = DefaultBufferTimeoutMS
	}
	return time.Duration(ms) * time.Millisecond
}

// connectionTarget is the resolved shape of a connection string.
type connectionTarget struct {
	host   string
	port   int
	dbName string
}

// parseTarget resolves host, port, and database name from a mongodb:// or
// mongodb+srv:// URI. Resolution failures surface as ParseError through the
// readiness awaitable, matching how the handshake reports other failures.
func parseTarget(uri string) (connectionTarget, error) {
	var target connectionTarget

	u, err := url.Parse(uri)
	if err != nil {
		return target, &ParseError{Target: uri, Cause: err}
	}
	if u.Scheme != "mongodb" && u.Scheme != "mongodb+srv" {
		return target, &ParseError{Target: uri, Cause: fmt.Errorf("scheme must be \"mongodb\" or \"mongodb+srv\", got %q", u.Scheme)}
	}
	if u.Host == "" {
		return target, &ParseError{Target: uri, Cause: fmt.Errorf("missing host")}
	}

	// Replica-set URIs carry a comma-separated host list; report the first.
	hostPort := u.Host
	if idx := strings.IndexByte(hostPort, ','); idx >= 0 {
		hostPort = hostPort[:idx]
	}

	target.host = hostPort
	target.port = 27017
	if idx := strings.LastIndexByte(hostPort, ':'); idx >= 0 {
		port, err := strconv.Atoi(hostPort[idx+1:])
		if err != nil {
			return target, &ParseError{Target: uri, Cause: fmt.Errorf("invalid port %q", hostPort[idx+1:])}
		}
		target.host = hostPort[:idx]
		target.port = port
	}

	target.dbName = strings.TrimPrefix(u.Path, "/")
	return target, nil
}
