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

import "sync"

// Event names a lifecycle or registry notification emitted by a Connection.
type Event string

const (
	EventConnecting    Event = "connecting"
	EventConnected     Event = "connected"
	EventOpen          Event = "open"
	EventDisconnecting Event = "disconnecting"
	EventDisconnected  Event = "disconnected"
	EventClose         Event = "close"
	EventError         Event = "error"
	EventModel         Event = "model"
	EventDeleteModel   Event = "deleteModel"
)

// Listener receives the event payload: the error for EventError, the *Model
// for EventModel/EventDeleteModel, nil otherwise.
type Listener func(payload interface{})

// emitter is a minimal synchronous publish/subscribe hub. Listeners run in
// registration order on the goroutine that triggered the transition, which
// keeps event ordering aligned with state transitions.
type emitter struct {
	mu        sync.Mutex
	listeners map[Event][]Listener
}

func newEmitter() *emitter {
	return &emitter{listeners: make(map[Event][]Listener)}
}

func (e *emitter) on(ev Event, fn Listener) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.listeners[ev] = append(e.listeners[ev], fn)
}

func (e *emitter) emit(ev Event, payload interface{}) {
	e.mu.Lock()
	fns := make([]Listener, len(e.listeners[ev]))
	copy(fns, e.listeners[ev])
	e.mu.Unlock()

	for _, fn := range fns {
		fn(payload)
	}
}
