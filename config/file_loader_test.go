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

package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfigFile(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "connections.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestYAMLFileLoader(t *testing.T) {
	path := writeConfigFile(t, `
version: "1"
connections:
  primary:
    uri: mongodb://localhost:27017/appdb
    enabled: true
    db_name: appdb
    read_preference: primaryPreferred
    buffer_commands: true
    buffer_timeout_ms: 5000
    max_pool_size: 25
    connect_timeout_ms: 12000
  analytics:
    uri: mongodb://analytics.internal:27017/metrics
    enabled: false
`)

	loader, err := NewYAMLFileLoader(path)
	require.NoError(t, err)

	configs, err := loader.Connections()
	require.NoError(t, err)
	require.Len(t, configs, 1, "disabled connections are skipped")

	cfg := configs[0]
	assert.Equal(t, "primary", cfg.Name)
	assert.Equal(t, "mongodb://localhost:27017/appdb", cfg.URI)
	assert.Equal(t, "primaryPreferred", cfg.Options.ReadPreference)
	require.NotNil(t, cfg.Options.BufferCommands)
	assert.True(t, *cfg.Options.BufferCommands)
	assert.Equal(t, 5000, cfg.Options.BufferTimeoutMS)
	assert.Equal(t, uint64(25), cfg.Options.MaxPoolSize)
	assert.Equal(t, 12*time.Second, cfg.Options.ConnectTimeout)

	// Lookup by name reaches disabled entries too.
	analytics, err := loader.Connection("analytics")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://analytics.internal:27017/metrics", analytics.URI)

	_, err = loader.Connection("missing")
	assert.Error(t, err)
}

func TestYAMLFileLoaderExpandsEnvVars(t *testing.T) {
	t.Setenv("MONGO_HOST", "db.internal")
	t.Setenv("MONGO_PASS", "")

	path := writeConfigFile(t, `
version: "1"
connections:
  primary:
    uri: mongodb://${MONGO_HOST}:${MONGO_PORT:-27017}/appdb
    enabled: true
    app_name: ${APP_NAME:-odm-service}
`)

	loader, err := NewYAMLFileLoader(path)
	require.NoError(t, err)

	cfg, err := loader.Connection("primary")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://db.internal:27017/appdb", cfg.URI)
	assert.Equal(t, "odm-service", cfg.Options.AppName)
}

func TestYAMLFileLoaderReload(t *testing.T) {
	path := writeConfigFile(t, `
version: "1"
connections:
  primary:
    uri: mongodb://localhost:27017/appdb
    enabled: true
`)

	loader, err := NewYAMLFileLoader(path)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(path, []byte(`
version: "2"
connections:
  primary:
    uri: mongodb://replica.internal:27017/appdb
    enabled: true
`), 0o644))

	require.NoError(t, loader.Reload())
	cfg, err := loader.Connection("primary")
	require.NoError(t, err)
	assert.Equal(t, "mongodb://replica.internal:27017/appdb", cfg.URI)
}

func TestYAMLFileLoaderMissingFile(t *testing.T) {
	_, err := NewYAMLFileLoader(filepath.Join(t.TempDir(), "absent.yaml"))
	assert.Error(t, err)
}

func TestExpandEnvVars(t *testing.T) {
	t.Setenv("FOO", "bar")

	assert.Equal(t, "bar", expandEnvVars("${FOO}"))
	assert.Equal(t, "bar", expandEnvVars("$FOO"))
	assert.Equal(t, "fallback", expandEnvVars("${UNSET_VAR_XYZ:-fallback}"))
	assert.Equal(t, "", expandEnvVars("${UNSET_VAR_XYZ}"))
	assert.Equal(t, "literal", expandEnvVars("literal"))
}
