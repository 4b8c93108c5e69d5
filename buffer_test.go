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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"

	"axonflow/odm/schema"
)

func boolPtr(v bool) *bool { return &v }

func waitPending(t *testing.T, c *Connection, n int) {
	t.Helper()
	require.Eventually(t, func() bool {
		return c.PendingOperations() == n
	}, time.Second, time.Millisecond, "expected %d pending operations", n)
}

func TestBufferReplaysInOrder(t *testing.T) {
	o, stub := newStubODM()
	c := o.Connection()

	alpha, err := c.Model("Alpha", schema.New(nil))
	require.NoError(t, err)
	beta, err := c.Model("Beta", schema.New(nil))
	require.NoError(t, err)

	errs := make(chan error, 2)
	go func() {
		_, err := alpha.InsertOne(context.Background(), bson.M{"n": 1})
		errs <- err
	}()
	waitPending(t, c, 1)
	go func() {
		_, err := beta.InsertOne(context.Background(), bson.M{"n": 2})
		errs <- err
	}()
	waitPending(t, c, 2)

	require.NoError(t, c.Open(testURI, nil))
	require.NoError(t, c.WaitReady(context.Background()))
	require.NoError(t, <-errs)
	require.NoError(t, <-errs)

	assert.Equal(t, []string{"appdb.alphas.insertOne", "appdb.betas.insertOne"}, stub.Ops)
	assert.Equal(t, 0, c.PendingOperations())
}

func TestBufferRejectedOnFailedHandshake(t *testing.T) {
	o, stub := newStubODM()
	c := o.Connection()
	stub.ConnectErr = errors.New("connection refused")

	m, err := c.Model("Doc", schema.New(nil))
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := m.InsertOne(context.Background(), bson.M{"n": 1})
		errs <- err
	}()
	waitPending(t, c, 1)

	require.NoError(t, c.Open(testURI, nil))
	require.Error(t, c.WaitReady(context.Background()))

	opErr := <-errs
	require.Error(t, opErr)
	assert.Contains(t, opErr.Error(), "initial connection failed")
	assert.Contains(t, opErr.Error(), "connection refused")
	assert.Empty(t, stub.Ops, "rejected operations never reach the driver")
}

func TestBufferTimeout(t *testing.T) {
	o, _ := newStubODM()
	c := o.Connection()

	sch := schema.New(nil)
	sch.Options.BufferTimeoutMS = 30
	m, err := c.Model("Doc", sch)
	require.NoError(t, err)

	start := time.Now()
	_, opErr := m.InsertOne(context.Background(), bson.M{"n": 1})
	elapsed := time.Since(start)

	var timeoutErr *BufferTimeoutError
	require.ErrorAs(t, opErr, &timeoutErr)
	assert.Equal(t, 30*time.Millisecond, timeoutErr.Timeout)
	assert.Less(t, elapsed, time.Second)
}

func TestBufferingDisabledFailsFast(t *testing.T) {
	o, stub := newStubODM()
	c := o.Connection()
	stub.ConnectGate = make(chan struct{})
	defer close(stub.ConnectGate)

	require.NoError(t, c.Open(testURI, &ConnectOptions{BufferCommands: boolPtr(false)}))

	m, err := c.Model("Doc", schema.New(nil))
	require.NoError(t, err)

	_, opErr := m.InsertOne(context.Background(), bson.M{"n": 1})
	var discErr *DisconnectedError
	require.ErrorAs(t, opErr, &discErr)
	assert.Contains(t, opErr.Error(), "command buffering is disabled")
	assert.Empty(t, stub.Ops)
}

func TestSchemaBufferingOverridesConnection(t *testing.T) {
	o, stub := newStubODM()
	c := o.Connection()
	stub.ConnectGate = make(chan struct{})
	defer close(stub.ConnectGate)

	require.NoError(t, c.Open(testURI, &ConnectOptions{BufferCommands: boolPtr(false)}))

	// Schema-level opt-in wins over the connection-level opt-out.
	buffered := schema.New(nil)
	buffered.Options.BufferCommands = boolPtr(true)
	m, err := c.Model("Buffered", buffered)
	require.NoError(t, err)

	go func() { _, _ = m.InsertOne(context.Background(), bson.M{"n": 1}) }()
	waitPending(t, c, 1)

	// And the inverse: schema-level opt-out on a buffering connection.
	o2, _ := newStubODM()
	c2 := o2.Connection()
	unbuffered := schema.New(nil)
	unbuffered.Options.BufferCommands = boolPtr(false)
	m2, err := c2.Model("Unbuffered", unbuffered)
	require.NoError(t, err)

	_, opErr := m2.InsertOne(context.Background(), bson.M{"n": 1})
	var discErr *DisconnectedError
	assert.ErrorAs(t, opErr, &discErr)
}

func TestBufferedOperationHonorsContext(t *testing.T) {
	o, _ := newStubODM()
	c := o.Connection()
	m, err := c.Model("Doc", schema.New(nil))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	errs := make(chan error, 1)
	go func() {
		_, err := m.InsertOne(ctx, bson.M{"n": 1})
		errs <- err
	}()
	waitPending(t, c, 1)
	cancel()

	assert.ErrorIs(t, <-errs, context.Canceled)
}

func TestBufferRejectedOnClose(t *testing.T) {
	o, stub := newStubODM()
	c := o.Connection()
	stub.ConnectGate = make(chan struct{})
	defer close(stub.ConnectGate)

	require.NoError(t, c.Open(testURI, nil))
	m, err := c.Model("Doc", schema.New(nil))
	require.NoError(t, err)

	errs := make(chan error, 1)
	go func() {
		_, err := m.InsertOne(context.Background(), bson.M{"n": 1})
		errs <- err
	}()
	waitPending(t, c, 1)

	require.NoError(t, c.Close(context.Background()))

	var discErr *DisconnectedError
	assert.ErrorAs(t, <-errs, &discErr)
}
