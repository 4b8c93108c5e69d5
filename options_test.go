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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTarget(t *testing.T) {
	tests := []struct {
		name   string
		uri    string
		host   string
		port   int
		dbName string
	}{
		{"host and db", "mongodb://localhost:27017/appdb", "localhost", 27017, "appdb"},
		{"default port", "mongodb://db.internal/appdb", "db.internal", 27017, "appdb"},
		{"no db name", "mongodb://localhost:27017", "localhost", 27017, ""},
		{"srv scheme", "mongodb+srv://cluster0.example.net/appdb", "cluster0.example.net", 27017, "appdb"},
		{"replica set list", "mongodb://rs0.example.net:27018,rs1.example.net:27019/appdb", "rs0.example.net", 27018, "appdb"},
		{"custom port", "mongodb://10.0.0.5:40217/metrics", "10.0.0.5", 40217, "metrics"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			target, err := parseTarget(tt.uri)
			require.NoError(t, err)
			assert.Equal(t, tt.host, target.host)
			assert.Equal(t, tt.port, target.port)
			assert.Equal(t, tt.dbName, target.dbName)
		})
	}
}

func TestParseTargetRejectsMalformedURIs(t *testing.T) {
	for _, uri := range []string{
		"http://localhost:27017/appdb",
		"mongodb://",
		"localhost:27017",
	} {
		_, err := parseTarget(uri)
		var parseErr *ParseError
		require.ErrorAs(t, err, &parseErr, "uri %q", uri)
		assert.Equal(t, uri, parseErr.Target)
	}
}

func TestConnectOptionsValidate(t *testing.T) {
	var cfgErr *ConfigError

	err := (&ConnectOptions{ReadPreference: "secondary", AutoIndex: boolPtr(true)}).validate()
	require.ErrorAs(t, err, &cfgErr)

	err = (&ConnectOptions{ReadPreference: "secondaryPreferred", AutoCreate: boolPtr(true)}).validate()
	require.ErrorAs(t, err, &cfgErr)

	assert.NoError(t, (&ConnectOptions{ReadPreference: "secondary"}).validate())
	assert.NoError(t, (&ConnectOptions{ReadPreference: "primary", AutoIndex: boolPtr(true)}).validate())
	assert.NoError(t, (&ConnectOptions{AutoIndex: boolPtr(true), AutoCreate: boolPtr(true)}).validate())
}

func TestEffectiveAutoIndex(t *testing.T) {
	assert.True(t, (&ConnectOptions{}).effectiveAutoIndex(), "autoIndex defaults on")
	assert.False(t, (&ConnectOptions{AutoIndex: boolPtr(false)}).effectiveAutoIndex())
	assert.False(t, (&ConnectOptions{ReadPreference: "secondary"}).effectiveAutoIndex(), "secondary reads force autoIndex off")
	assert.False(t, (&ConnectOptions{ReadPreference: "secondaryPreferred"}).effectiveAutoIndex())
}

func TestBufferDefaults(t *testing.T) {
	o := &ConnectOptions{}
	assert.True(t, o.bufferCommands())
	assert.Equal(t, time.Duration(DefaultBufferTimeoutMS)*time.Millisecond, o.bufferTimeout())

	o = &ConnectOptions{BufferCommands: boolPtr(false), BufferTimeoutMS: 250}
	assert.False(t, o.bufferCommands())
	assert.Equal(t, 250*time.Millisecond, o.bufferTimeout())
}
