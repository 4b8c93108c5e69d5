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
	"fmt"
	"os"
	"regexp"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"axonflow/odm"
)

// ConfigFile represents the root structure of a configuration file
type ConfigFile struct {
	Version     string                          `yaml:"version"`
	Connections map[string]ConnectionFileConfig `yaml:"connections,omitempty"`
}

// ConnectionFileConfig represents one connection in the config file
type ConnectionFileConfig struct {
	URI                      string `yaml:"uri"`
	Enabled                  bool   `yaml:"enabled"`
	DBName                   string `yaml:"db_name,omitempty"`
	AppName                  string `yaml:"app_name,omitempty"`
	BufferCommands           *bool  `yaml:"buffer_commands,omitempty"`
	BufferTimeoutMs          int    `yaml:"buffer_timeout_ms,omitempty"`
	AutoIndex                *bool  `yaml:"auto_index,omitempty"`
	AutoCreate               *bool  `yaml:"auto_create,omitempty"`
	ReadPreference           string `yaml:"read_preference,omitempty"`
	MaxPoolSize              uint64 `yaml:"max_pool_size,omitempty"`
	MinPoolSize              uint64 `yaml:"min_pool_size,omitempty"`
	ConnectTimeoutMs         int    `yaml:"connect_timeout_ms,omitempty"`
	ServerSelectionTimeoutMs int    `yaml:"server_selection_timeout_ms,omitempty"`
}

// YAMLFileLoader loads connection configurations from a YAML file
type YAMLFileLoader struct {
	filePath string
	config   *ConfigFile
}

// NewYAMLFileLoader creates a loader and parses the file immediately
func NewYAMLFileLoader(filePath string) (*YAMLFileLoader, error) {
	loader := &YAMLFileLoader{filePath: filePath}
	if err := loader.reload(); err != nil {
		return nil, err
	}
	return loader, nil
}

// reload reads and parses the configuration file
func (l *YAMLFileLoader) reload() error {
	data, err := os.ReadFile(l.filePath)
	if err != nil {
		return fmt.Errorf("failed to read config file %s: %w", l.filePath, err)
	}

	// Expand environment variables in the content
	expanded := expandEnvVars(string(data))

	var config ConfigFile
	if err := yaml.Unmarshal([]byte(expanded), &config); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}

	l.config = &config
	return nil
}

// Reload reloads the configuration file
func (l *YAMLFileLoader) Reload() error {
	return l.reload()
}

// Connections returns every enabled connection from the config file
func (l *YAMLFileLoader) Connections() ([]*ConnectionConfig, error) {
	if l.config == nil {
		return nil, fmt.Errorf("config not loaded")
	}

	var configs []*ConnectionConfig

	for name, fileConfig := range l.config.Connections {
		if !fileConfig.Enabled {
			continue
		}
		if fileConfig.URI == "" {
			return nil, fmt.Errorf("connection %q has no uri", name)
		}

		cfg := &ConnectionConfig{
			Name: name,
			URI:  fileConfig.URI,
			Options: odm.ConnectOptions{
				DBName:                 fileConfig.DBName,
				AppName:                fileConfig.AppName,
				BufferCommands:         fileConfig.BufferCommands,
				BufferTimeoutMS:        fileConfig.BufferTimeoutMs,
				AutoIndex:              fileConfig.AutoIndex,
				AutoCreate:             fileConfig.AutoCreate,
				ReadPreference:         fileConfig.ReadPreference,
				MaxPoolSize:            fileConfig.MaxPoolSize,
				MinPoolSize:            fileConfig.MinPoolSize,
				ConnectTimeout:         time.Duration(fileConfig.ConnectTimeoutMs) * time.Millisecond,
				ServerSelectionTimeout: time.Duration(fileConfig.ServerSelectionTimeoutMs) * time.Millisecond,
			},
		}
		configs = append(configs, cfg)
	}

	return configs, nil
}

// Connection returns one named connection's config, enabled or not
func (l *YAMLFileLoader) Connection(name string) (*ConnectionConfig, error) {
	if l.config == nil {
		return nil, fmt.Errorf("config not loaded")
	}
	fileConfig, ok := l.config.Connections[name]
	if !ok {
		return nil, fmt.Errorf("connection %q not found in %s", name, l.filePath)
	}
	if fileConfig.URI == "" {
		return nil, fmt.Errorf("connection %q has no uri", name)
	}
	return &ConnectionConfig{
		Name: name,
		URI:  fileConfig.URI,
		Options: odm.ConnectOptions{
			DBName:                 fileConfig.DBName,
			AppName:                fileConfig.AppName,
			BufferCommands:         fileConfig.BufferCommands,
			BufferTimeoutMS:        fileConfig.BufferTimeoutMs,
			AutoIndex:              fileConfig.AutoIndex,
			AutoCreate:             fileConfig.AutoCreate,
			ReadPreference:         fileConfig.ReadPreference,
			MaxPoolSize:            fileConfig.MaxPoolSize,
			MinPoolSize:            fileConfig.MinPoolSize,
			ConnectTimeout:         time.Duration(fileConfig.ConnectTimeoutMs) * time.Millisecond,
			ServerSelectionTimeout: time.Duration(fileConfig.ServerSelectionTimeoutMs) * time.Millisecond,
		},
	}, nil
}

// envVarRegex matches ${VAR_NAME} or $VAR_NAME patterns
var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}|\$([A-Za-z_][A-Za-z0-9_]*)`)

// expandEnvVars expands environment variable references in the string
// Supports both ${VAR_NAME} and $VAR_NAME syntax
// Returns empty string for undefined variables
func expandEnvVars(content string) string {
	return envVarRegex.ReplaceAllStringFunc(content, func(match string) string {
		var varName string
		if strings.HasPrefix(match, "${") {
			varName = match[2 : len(match)-1]
		} else {
			varName = match[1:]
		}

		// Handle default values: ${VAR_NAME:-default}
		defaultVal := ""
		if idx := strings.Index(varName, ":-"); idx != -1 {
			defaultVal = varName[idx+2:]
			varName = varName[:idx]
		}

		if value := os.Getenv(varName); value != "" {
			return value
		}

		if defaultVal != "" {
			return defaultVal
		}

		return ""
	})
}
