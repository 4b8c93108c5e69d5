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
	"sync/atomic"
	"time"

	"axonflow/odm/shared/metrics"
)

// bufferedOp is one deferred operation waiting for the connection to become
// ready. The continuation carries its own result plumbing; the buffer only
// moves the error.
type bufferedOp struct {
	op         string
	fn         func(ctx context.Context) error
	done       chan error
	enqueuedAt time.Time
	abandoned  atomic.Bool
}

// abandon marks the entry so a later drain skips it. Used when the waiting
// caller gave up (buffer timeout or context cancellation).
func (b *bufferedOp) abandon() {
	b.abandoned.Store(true)
}

// opBuffer queues operations issued before readiness and replays or rejects
// them in FIFO order. All mutation happens under the owning Connection's
// lock discipline; the buffer itself only needs take-all semantics.
type opBuffer struct {
	entries []*bufferedOp
}

func newOpBuffer() *opBuffer {
	return &opBuffer{}
}

// enqueue appends a continuation. Caller holds the connection lock.
func (q *opBuffer) enqueue(op string, fn func(ctx context.Context) error) *bufferedOp {
	entry := &bufferedOp{
		op:         op,
		fn:         fn,
		done:       make(chan error, 1),
		enqueuedAt: time.Now(),
	}
	q.entries = append(q.entries, entry)
	metrics.SetBufferedOperations(len(q.entries))
	return entry
}

// take removes and returns all queued entries in enqueue order.
// Caller holds the connection lock.
func (q *opBuffer) take() []*bufferedOp {
	entries := q.entries
	q.entries = nil
	metrics.SetBufferedOperations(0)
	return entries
}

// replay runs the entries in order against the now-ready connection.
// It runs on a single goroutine per drain, which is what guarantees FIFO
// execution relative to enqueue order.
func replayBuffered(ctx context.Context, entries []*bufferedOp) {
	for _, entry := range entries {
		if entry.abandoned.Load() {
			continue
		}
		entry.done <- entry.fn(ctx)
		metrics.RecordBufferReplay()
	}
}

// rejectBuffered fails every entry with the same terminal error.
func rejectBuffered(entries []*bufferedOp, err error) {
	for _, entry := range entries {
		if entry.abandoned.Load() {
			continue
		}
		entry.done <- err
	}
}
