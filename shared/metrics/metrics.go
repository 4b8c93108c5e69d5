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

// Package metrics exposes Prometheus collectors for connection lifecycle and
// operation buffering activity. Collectors are registered on the default
// registry; scrape them via promhttp (see the diag package).
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	promConnectionsOpened = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "odm_connections_opened_total",
			Help: "Total number of successful connection handshakes",
		},
	)
	promConnectionErrors = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "odm_connection_errors_total",
			Help: "Total number of failed connection handshakes",
		},
	)
	promReadyState = prometheus.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "odm_connection_ready_state",
			Help: "Current ready state per connection (0=disconnected, 1=connected, 2=connecting, 3=disconnecting, 99=uninitialized)",
		},
		[]string{"connection"},
	)
	promBufferedOperations = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "odm_buffered_operations",
			Help: "Number of operations currently queued waiting for readiness",
		},
	)
	promBufferReplays = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "odm_buffer_replays_total",
			Help: "Total number of buffered operations replayed after readiness",
		},
	)
	promBufferTimeouts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "odm_buffer_timeouts_total",
			Help: "Total number of buffered operations that timed out",
		},
	)
)

func init() {
	prometheus.MustRegister(promConnectionsOpened)
	prometheus.MustRegister(promConnectionErrors)
	prometheus.MustRegister(promReadyState)
	prometheus.MustRegister(promBufferedOperations)
	prometheus.MustRegister(promBufferReplays)
	prometheus.MustRegister(promBufferTimeouts)
}

// RecordConnectionOpened increments the successful-handshake counter.
func RecordConnectionOpened() {
	promConnectionsOpened.Inc()
}

// RecordConnectionError increments the failed-handshake counter.
func RecordConnectionError() {
	promConnectionErrors.Inc()
}

// SetReadyState publishes the given connection's readiness level.
func SetReadyState(connection string, state int) {
	promReadyState.WithLabelValues(connection).Set(float64(state))
}

// SetBufferedOperations publishes the current buffer depth.
func SetBufferedOperations(depth int) {
	promBufferedOperations.Set(float64(depth))
}

// RecordBufferReplay increments the replayed-operation counter.
func RecordBufferReplay() {
	promBufferReplays.Inc()
}

// RecordBufferTimeout increments the timed-out-operation counter.
func RecordBufferTimeout() {
	promBufferTimeouts.Inc()
}
