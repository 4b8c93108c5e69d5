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
	"time"
)

// destroyedMessage is the fixed guidance text for terminal-state misuse.
// Callers match on it, so the wording stays stable.
const destroyedMessage = "connection has been closed and destroyed, and is no longer usable; create a new connection instead"

// DestroyedError is returned by every operation against a destroyed
// Connection, before any network activity.
type DestroyedError struct{}

func (e *DestroyedError) Error() string { return destroyedMessage }

// ErrDestroyed is the shared instance used throughout the package.
var ErrDestroyed = &DestroyedError{}

// ParseError reports a malformed connection target. It is delivered through
// the readiness awaitable, since target resolution is part of the handshake.
type ParseError struct {
	Target string
	Cause  error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("invalid connection string %q: %v", e.Target, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// ServerSelectionError reports that no suitable server could be selected
// within the configured window during a handshake.
type ServerSelectionError struct {
	Cause error
}

func (e *ServerSelectionError) Error() string {
	return fmt.Sprintf("server selection timed out: %v", e.Cause)
}

func (e *ServerSelectionError) Unwrap() error { return e.Cause }

// ConfigError reports a configuration conflict detected synchronously,
// before any I/O.
type ConfigError struct {
	Message string
}

func (e *ConfigError) Error() string { return e.Message }

// DisconnectedError is returned when an operation is issued against an
// unready connection with buffering disabled.
type DisconnectedError struct {
	Op string
}

func (e *DisconnectedError) Error() string {
	return fmt.Sprintf("cannot run %s: connection has not been established and command buffering is disabled; call Open and wait for readiness first", e.Op)
}

// BufferTimeoutError is returned when a buffered operation waited longer
// than the buffering window without the connection becoming ready.
type BufferTimeoutError struct {
	Op      string
	Timeout time.Duration
}

func (e *BufferTimeoutError) Error() string {
	return fmt.Sprintf("operation %s buffering timed out after %s; the connection never became ready", e.Op, e.Timeout)
}

// OverwriteModelError reports an attempt to re-register a model name without
// an overwrite policy in effect.
type OverwriteModelError struct {
	Name string
}

func (e *OverwriteModelError) Error() string {
	return fmt.Sprintf("cannot overwrite %q model once compiled", e.Name)
}

// MissingSchemaError reports a lookup of a model name that was never
// registered on this connection.
type MissingSchemaError struct {
	Name string
}

func (e *MissingSchemaError) Error() string {
	return fmt.Sprintf("schema hasn't been registered for model %q; use Model(name, schema)", e.Name)
}
