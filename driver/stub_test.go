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
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func TestStubRecordsOperations(t *testing.T) {
	s := NewStub(Config{})
	coll := s.Database("appdb").Collection("users")

	_, err := coll.InsertOne(context.Background(), bson.M{"name": "ada"})
	require.NoError(t, err)
	n, err := coll.CountDocuments(context.Background(), nil)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	assert.Equal(t, []string{"appdb.users.insertOne", "appdb.users.countDocuments"}, s.Ops)
}

func TestStubFindOne(t *testing.T) {
	s := NewStub(Config{})
	coll := s.Database("appdb").Collection("users")

	var out bson.M
	assert.ErrorIs(t, coll.FindOne(context.Background(), nil, &out), ErrNoDocuments)

	_, err := coll.InsertOne(context.Background(), bson.M{"name": "ada"})
	require.NoError(t, err)
	require.NoError(t, coll.FindOne(context.Background(), nil, &out))
	assert.Equal(t, "ada", out["name"])
}

func TestStubKill(t *testing.T) {
	s := NewStub(Config{})
	s.Kill()

	_, err := s.Database("appdb").Collection("users").InsertOne(context.Background(), nil)
	assert.ErrorIs(t, err, ErrClientKilled)
	assert.Equal(t, 1, s.KillCalls)
}

func TestStubDialerSharesOneClient(t *testing.T) {
	s := NewStub(Config{})
	dial := StubDialer(s)

	a, err := dial(Config{})
	require.NoError(t, err)
	b, err := dial(Config{})
	require.NoError(t, err)
	assert.Same(t, a, b)
}

func TestStubEmitState(t *testing.T) {
	s := NewStub(Config{})
	dial := StubDialer(s)

	var states []bool
	_, err := dial(Config{StateListener: func(writable bool) {
		states = append(states, writable)
	}})
	require.NoError(t, err)

	s.EmitState(false)
	s.EmitState(true)
	assert.Equal(t, []bool{false, true}, states)
}
