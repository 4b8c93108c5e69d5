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

// ConnectionState is the readiness level of a Connection. The numeric values
// are part of the public surface and stay stable.
type ConnectionState int

const (
	// Disconnected means no usable session exists.
	Disconnected ConnectionState = 0
	// Connected means the handshake completed and operations execute directly.
	Connected ConnectionState = 1
	// Connecting means a handshake is in flight.
	Connecting ConnectionState = 2
	// Disconnecting means a graceful shutdown is in progress.
	Disconnecting ConnectionState = 3
	// Uninitialized marks a connection that was never associated with a target.
	Uninitialized ConnectionState = 99
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connected:
		return "connected"
	case Connecting:
		return "connecting"
	case Disconnecting:
		return "disconnecting"
	case Uninitialized:
		return "uninitialized"
	default:
		return "unknown"
	}
}
