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

// Package config loads connection settings from the environment or from a
// YAML file. It produces odm.ConnectOptions plus the target URI; wiring the
// result into an instance stays with the caller.
package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"axonflow/odm"
)

// ConnectionConfig is one named connection's resolved settings.
type ConnectionConfig struct {
	Name    string
	URI     string
	Options odm.ConnectOptions
}

// FromEnv loads a connection configuration from environment variables.
// Variables are prefixed with ODM_<NAME>_, e.g. ODM_PRIMARY_URI,
// ODM_PRIMARY_DB_NAME, ODM_PRIMARY_BUFFER_TIMEOUT_MS.
func FromEnv(name string) (*ConnectionConfig, error) {
	prefix := "ODM_" + strings.ToUpper(name) + "_"

	uri := os.Getenv(prefix + "URI")
	if uri == "" {
		return nil, fmt.Errorf("missing required environment variable: %sURI", prefix)
	}

	cfg := &ConnectionConfig{Name: name, URI: uri}
	cfg.Options.DBName = os.Getenv(prefix + "DB_NAME")
	cfg.Options.AppName = os.Getenv(prefix + "APP_NAME")
	cfg.Options.ReadPreference = os.Getenv(prefix + "READ_PREFERENCE")

	if v := os.Getenv(prefix + "BUFFER_COMMANDS"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sBUFFER_COMMANDS value: %s", prefix, v)
		}
		cfg.Options.BufferCommands = &b
	}

	if v := os.Getenv(prefix + "BUFFER_TIMEOUT_MS"); v != "" {
		ms, err := strconv.Atoi(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sBUFFER_TIMEOUT_MS value: %s", prefix, v)
		}
		cfg.Options.BufferTimeoutMS = ms
	}

	if v := os.Getenv(prefix + "AUTO_INDEX"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sAUTO_INDEX value: %s", prefix, v)
		}
		cfg.Options.AutoIndex = &b
	}

	if v := os.Getenv(prefix + "AUTO_CREATE"); v != "" {
		b, err := strconv.ParseBool(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sAUTO_CREATE value: %s", prefix, v)
		}
		cfg.Options.AutoCreate = &b
	}

	if v := os.Getenv(prefix + "MAX_POOL_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %sMAX_POOL_SIZE value: %s", prefix, v)
		}
		cfg.Options.MaxPoolSize = n
	}

	if v := os.Getenv(prefix + "MIN_POOL_SIZE"); v != "" {
		n, err := strconv.ParseUint(v, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid %sMIN_POOL_SIZE value: %s", prefix, v)
		}
		cfg.Options.MinPoolSize = n
	}

	if v := os.Getenv(prefix + "CONNECT_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sCONNECT_TIMEOUT value: %s", prefix, v)
		}
		cfg.Options.ConnectTimeout = d
	}

	if v := os.Getenv(prefix + "SERVER_SELECTION_TIMEOUT"); v != "" {
		d, err := time.ParseDuration(v)
		if err != nil {
			return nil, fmt.Errorf("invalid %sSERVER_SELECTION_TIMEOUT value: %s", prefix, v)
		}
		cfg.Options.ServerSelectionTimeout = d
	}

	return cfg, nil
}
