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

// Package diag exposes an embeddable HTTP surface for inspecting the
// process-wide connection table and scraping Prometheus metrics. The
// library starts no server; callers mount the handler where they choose.
package diag

import (
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"axonflow/odm"
)

// ConnectionInfo is the JSON shape for one active connection.
type ConnectionInfo struct {
	ID         int    `json:"id"`
	Name       string `json:"name"`
	Host       string `json:"host"`
	Port       int    `json:"port"`
	ReadyState int    `json:"ready_state"`
	State      string `json:"state"`
}

// Handler returns a router serving /connections, /health, and /metrics.
func Handler() *mux.Router {
	r := mux.NewRouter()
	r.HandleFunc("/connections", handleConnections).Methods("GET")
	r.HandleFunc("/health", handleHealth).Methods("GET")
	r.Handle("/metrics", promhttp.Handler()).Methods("GET")
	return r
}

func handleConnections(w http.ResponseWriter, _ *http.Request) {
	conns := odm.ActiveConnections()
	infos := make([]ConnectionInfo, 0, len(conns))
	for _, c := range conns {
		state := c.State()
		infos = append(infos, ConnectionInfo{
			ID:         c.ID(),
			Name:       c.Name(),
			Host:       c.Host(),
			Port:       c.Port(),
			ReadyState: int(state),
			State:      state.String(),
		})
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"count":       len(infos),
		"connections": infos,
	})
}

func handleHealth(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]interface{}{
		"status":    "ok",
		"timestamp": time.Now().UTC().Format(time.RFC3339),
	})
}
