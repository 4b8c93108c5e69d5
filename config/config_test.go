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
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestFromEnv(t *testing.T) {
	t.Setenv("ODM_PRIMARY_URI", "mongodb://localhost:27017/appdb")
	t.Setenv("ODM_PRIMARY_DB_NAME", "appdb")
	t.Setenv("ODM_PRIMARY_APP_NAME", "orders-svc")
	t.Setenv("ODM_PRIMARY_READ_PREFERENCE", "secondaryPreferred")
	t.Setenv("ODM_PRIMARY_BUFFER_COMMANDS", "false")
	t.Setenv("ODM_PRIMARY_BUFFER_TIMEOUT_MS", "2500")
	t.Setenv("ODM_PRIMARY_AUTO_INDEX", "true")
	t.Setenv("ODM_PRIMARY_MAX_POOL_SIZE", "50")
	t.Setenv("ODM_PRIMARY_MIN_POOL_SIZE", "5")
	t.Setenv("ODM_PRIMARY_CONNECT_TIMEOUT", "15s")

	cfg, err := FromEnv("primary")
	require.NoError(t, err)

	assert.Equal(t, "primary", cfg.Name)
	assert.Equal(t, "mongodb://localhost:27017/appdb", cfg.URI)
	assert.Equal(t, "appdb", cfg.Options.DBName)
	assert.Equal(t, "orders-svc", cfg.Options.AppName)
	assert.Equal(t, "secondaryPreferred", cfg.Options.ReadPreference)
	require.NotNil(t, cfg.Options.BufferCommands)
	assert.False(t, *cfg.Options.BufferCommands)
	assert.Equal(t, 2500, cfg.Options.BufferTimeoutMS)
	require.NotNil(t, cfg.Options.AutoIndex)
	assert.True(t, *cfg.Options.AutoIndex)
	assert.Equal(t, uint64(50), cfg.Options.MaxPoolSize)
	assert.Equal(t, uint64(5), cfg.Options.MinPoolSize)
	assert.Equal(t, 15*time.Second, cfg.Options.ConnectTimeout)
	assert.Nil(t, cfg.Options.AutoCreate, "unset variables stay unset")
}

func TestFromEnvMissingURI(t *testing.T) {
	_, err := FromEnv("absent")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "ODM_ABSENT_URI")
}

func TestFromEnvInvalidValues(t *testing.T) {
	t.Setenv("ODM_BAD_URI", "mongodb://localhost:27017")
	t.Setenv("ODM_BAD_BUFFER_COMMANDS", "maybe")

	_, err := FromEnv("bad")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "BUFFER_COMMANDS")
}
