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
	"sort"
	"strings"
)

// SyncIndexesError aggregates per-model failures from a SyncIndexes pass.
// The map is keyed by model name.
type SyncIndexesError struct {
	Errors map[string]error
}

func (e *SyncIndexesError) Error() string {
	names := make([]string, 0, len(e.Errors))
	for name := range e.Errors {
		names = append(names, name)
	}
	sort.Strings(names)

	var b strings.Builder
	b.WriteString("index synchronization failed for ")
	for i, name := range names {
		if i > 0 {
			b.WriteString(", ")
		}
		b.WriteString(name)
		b.WriteString(": ")
		b.WriteString(e.Errors[name].Error())
	}
	return b.String()
}

// SyncIndexes builds the declared indexes for every model registered on the
// connection, in registration order. It visits every model even when some
// fail and reports all failures at once.
func (c *Connection) SyncIndexes(ctx context.Context) error {
	failures := make(map[string]error)
	for _, name := range c.ModelNames() {
		m, err := c.Model(name, nil)
		if err != nil {
			failures[name] = err
			continue
		}
		if err := m.EnsureIndexes(ctx); err != nil {
			failures[name] = err
		}
	}
	if len(failures) > 0 {
		return &SyncIndexesError{Errors: failures}
	}
	return nil
}

// SyncIndexes synchronizes indexes for the default connection's models.
func (o *ODM) SyncIndexes(ctx context.Context) error {
	return o.defaultConn.SyncIndexes(ctx)
}
