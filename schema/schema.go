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

// Package schema holds the document schema surface the connection and model
// layers depend on: per-schema options, field declarations, and index specs.
// Validation and casting live elsewhere; this package only describes shape.
package schema

import (
	"go.mongodb.org/mongo-driver/bson"
)

// DefaultDiscriminatorKey is the field used to tag discriminated documents
// when the schema does not name its own key.
const DefaultDiscriminatorKey = "__t"

// Options are the per-schema settings the connection layer reads.
// Pointer fields distinguish "unset" (inherit the connection default)
// from an explicit false.
type Options struct {
	// Collection overrides the collection name derived from the model name.
	Collection string

	// BufferCommands overrides the connection's buffering default for
	// models compiled from this schema.
	BufferCommands *bool

	// BufferTimeoutMS overrides the connection's buffering timeout.
	// Zero means inherit.
	BufferTimeoutMS int

	// AutoIndex controls index builds at model registration.
	AutoIndex *bool

	// AutoCreate controls collection creation at model registration.
	AutoCreate *bool

	// DiscriminatorKey names the type-tag field for discriminators.
	DiscriminatorKey string
}

// Field declares a single document path.
type Field struct {
	Type     string
	Required bool
	Default  interface{}
}

// Index declares one index the model wants on its collection.
type Index struct {
	Keys   bson.D
	Name   string
	Unique bool
	Sparse bool
}

// Schema describes a document's shape plus the options attached to it.
type Schema struct {
	Fields  map[string]Field
	Indexes []Index
	Options Options
}

// New builds a schema from a field map. A nil map is allowed; fields can be
// added later with Add.
func New(fields map[string]Field) *Schema {
	if fields == nil {
		fields = make(map[string]Field)
	}
	return &Schema{Fields: fields}
}

// Add merges the given fields into the schema, overwriting same-named paths.
// It returns the schema for chaining.
func (s *Schema) Add(fields map[string]Field) *Schema {
	for name, f := range fields {
		s.Fields[name] = f
	}
	return s
}

// Index appends an index declaration and returns the schema for chaining.
func (s *Schema) Index(idx Index) *Schema {
	s.Indexes = append(s.Indexes, idx)
	return s
}

// Clone returns a deep copy. Discriminator registration clones the base
// schema by default so edits to one do not leak into the other.
func (s *Schema) Clone() *Schema {
	out := &Schema{
		Fields:  make(map[string]Field, len(s.Fields)),
		Options: s.Options,
	}
	for name, f := range s.Fields {
		out.Fields[name] = f
	}
	if len(s.Indexes) > 0 {
		out.Indexes = make([]Index, len(s.Indexes))
		copy(out.Indexes, s.Indexes)
	}
	if s.Options.BufferCommands != nil {
		v := *s.Options.BufferCommands
		out.Options.BufferCommands = &v
	}
	if s.Options.AutoIndex != nil {
		v := *s.Options.AutoIndex
		out.Options.AutoIndex = &v
	}
	if s.Options.AutoCreate != nil {
		v := *s.Options.AutoCreate
		out.Options.AutoCreate = &v
	}
	return out
}

// DiscriminatorKeyOrDefault resolves the type-tag field name.
func (s *Schema) DiscriminatorKeyOrDefault() string {
	if s.Options.DiscriminatorKey != "" {
		return s.Options.DiscriminatorKey
	}
	return DefaultDiscriminatorKey
}
