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
	"context"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"axonflow/odm/driver"
	"axonflow/odm/schema"
)

// Model is a compiled constructor bound to one Connection and one
// collection. Operations issued before the connection is ready go through
// the connection's operation buffer.
type Model struct {
	name       string
	conn       *Connection
	schema     *schema.Schema
	collection string

	// Discriminator bookkeeping; empty for base models.
	baseName           string
	discriminatorKey   string
	discriminatorValue interface{}
}

// ModelOptions carries per-registration settings.
type ModelOptions struct {
	// Collection overrides the derived collection name.
	Collection string
	// Overwrite permits replacing an existing registration for this call
	// only, regardless of the instance-level policy.
	Overwrite *bool
}

// Name returns the model's registered name.
func (m *Model) Name() string { return m.name }

// Schema returns the backing schema.
func (m *Model) Schema() *schema.Schema { return m.schema }

// Collection returns the collection name operations execute against.
func (m *Model) Collection() string { return m.collection }

// Connection returns the connection the model is registered on.
func (m *Model) Connection() *Connection { return m.conn }

// BaseName returns the base model's name for discriminators, or "".
func (m *Model) BaseName() string { return m.baseName }

// defaultCollectionName derives a collection name from a model name the
// conventional way: lowercased and pluralized.
func defaultCollectionName(name string) string {
	lower := strings.ToLower(name)
	if strings.HasSuffix(lower, "s") {
		return lower
	}
	return lower + "s"
}

// Model registers a model under name, or looks one up when sch is nil.
//
// Registering an already-registered name fails with OverwriteModelError
// unless the per-call Overwrite option or the instance-level overwrite
// policy permits it. Every successful (re)registration emits a "model"
// event carrying the compiled *Model.
func (c *Connection) Model(name string, sch *schema.Schema, opts ...ModelOptions) (*Model, error) {
	var o ModelOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	c.mu.Lock()
	if c.destroyed {
		c.mu.Unlock()
		return nil, ErrDestroyed
	}

	existing, exists := c.models[name]
	if sch == nil {
		c.mu.Unlock()
		if !exists {
			return nil, &MissingSchemaError{Name: name}
		}
		return existing, nil
	}

	if exists {
		overwrite := c.owner != nil && c.owner.overwriteModelsEnabled()
		if o.Overwrite != nil {
			overwrite = *o.Overwrite
		}
		if !overwrite {
			c.mu.Unlock()
			return nil, &OverwriteModelError{Name: name}
		}
	}

	collection := o.Collection
	if collection == "" {
		collection = sch.Options.Collection
	}
	if collection == "" {
		collection = defaultCollectionName(name)
	}

	m := &Model{
		name:       name,
		conn:       c,
		schema:     sch,
		collection: collection,
	}
	c.models[name] = m
	if !exists {
		c.modelOrder = append(c.modelOrder, name)
	}
	c.mu.Unlock()

	c.events.emit(EventModel, m)

	// Index builds at registration only make sense once the connection is
	// ready; earlier registrations are picked up by SyncIndexes.
	cfg := c.configSnapshot()
	if len(sch.Indexes) > 0 && c.State() == Connected && cfg.effectiveAutoIndex() {
		go func() {
			if err := m.EnsureIndexes(context.Background()); err != nil {
				c.events.emit(EventError, err)
			}
		}()
	}
	return m, nil
}

// MustModel is Model for registrations that cannot fail by construction.
// It panics on error; intended for package-level wiring.
func (c *Connection) MustModel(name string, sch *schema.Schema) *Model {
	m, err := c.Model(name, sch)
	if err != nil {
		panic(err)
	}
	return m
}

// DeleteModel removes the named model, emitting one "deleteModel" event
// carrying the removed *Model. Removing an unregistered name is a no-op.
func (c *Connection) DeleteModel(name string) {
	c.mu.Lock()
	m, ok := c.models[name]
	if ok {
		delete(c.models, name)
		c.removeModelOrderLocked(name)
	}
	c.mu.Unlock()

	if ok {
		c.events.emit(EventDeleteModel, m)
	}
}

// DeleteModelsMatching removes every model whose name matches the pattern,
// emitting one "deleteModel" event per removed entry, in registration order.
func (c *Connection) DeleteModelsMatching(pattern *regexp.Regexp) {
	c.mu.Lock()
	var removed []*Model
	for _, name := range append([]string(nil), c.modelOrder...) {
		if pattern.MatchString(name) {
			removed = append(removed, c.models[name])
			delete(c.models, name)
			c.removeModelOrderLocked(name)
		}
	}
	c.mu.Unlock()

	for _, m := range removed {
		c.events.emit(EventDeleteModel, m)
	}
}

func (c *Connection) removeModelOrderLocked(name string) {
	for i, n := range c.modelOrder {
		if n == name {
			c.modelOrder = append(c.modelOrder[:i], c.modelOrder[i+1:]...)
			return
		}
	}
}

// ModelNames returns the names registered on this exact connection, in
// registration order. Derived connections keep independent lists.
func (c *Connection) ModelNames() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string(nil), c.modelOrder...)
}

// DiscriminatorOptions controls discriminator registration.
type DiscriminatorOptions struct {
	// Value is stored in the discriminator key; defaults to the name.
	Value interface{}
	// ShareSchema skips cloning the base schema, so base and discriminator
	// share one schema object.
	ShareSchema bool
	// Overwrite is forwarded to the model registration.
	Overwrite *bool
}

// Discriminator registers a variant of the base model: the base schema
// extended with sch's fields plus a type-discriminating key, stored in the
// base model's collection. The base schema is cloned by default, so later
// edits to either schema stay isolated.
func (m *Model) Discriminator(name string, sch *schema.Schema, opts ...DiscriminatorOptions) (*Model, error) {
	var o DiscriminatorOptions
	if len(opts) > 0 {
		o = opts[0]
	}

	base := m.schema
	if !o.ShareSchema {
		base = m.schema.Clone()
	}
	if sch != nil {
		base.Add(sch.Fields)
		base.Indexes = append(base.Indexes, sch.Indexes...)
	}

	key := base.DiscriminatorKeyOrDefault()
	base.Add(map[string]schema.Field{
		key: {Type: "string"},
	})

	value := o.Value
	if value == nil {
		value = name
	}

	d, err := m.conn.Model(name, base, ModelOptions{
		Collection: m.collection,
		Overwrite:  o.Overwrite,
	})
	if err != nil {
		return nil, err
	}

	d.baseName = m.name
	d.discriminatorKey = key
	d.discriminatorValue = value
	return d, nil
}

func (m *Model) bufferEnabled() bool {
	if m.schema != nil && m.schema.Options.BufferCommands != nil {
		return *m.schema.Options.BufferCommands
	}
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	return m.conn.config.bufferCommands()
}

func (m *Model) bufferTimeout() time.Duration {
	if m.schema != nil && m.schema.Options.BufferTimeoutMS > 0 {
		return time.Duration(m.schema.Options.BufferTimeoutMS) * time.Millisecond
	}
	m.conn.mu.Lock()
	defer m.conn.mu.Unlock()
	return m.conn.config.bufferTimeout()
}

// collectionHandle resolves the live collection at execution time; the
// client may only exist after the handshake completes.
func (m *Model) collectionHandle() (driver.Collection, error) {
	m.conn.mu.Lock()
	client := m.conn.client
	dbName := m.conn.name
	m.conn.mu.Unlock()
	if client == nil {
		return nil, &DisconnectedError{Op: m.opName("collection")}
	}
	return client.Database(dbName).Collection(m.collection), nil
}

func (m *Model) opName(op string) string {
	return m.collection + "." + op
}

// tagged stamps the discriminator key into documents and filters so variant
// models stay scoped to their own documents.
func (m *Model) tagged(doc interface{}) interface{} {
	if m.discriminatorValue == nil {
		return doc
	}
	if d, ok := doc.(bson.M); ok {
		out := make(bson.M, len(d)+1)
		for k, v := range d {
			out[k] = v
		}
		out[m.discriminatorKey] = m.discriminatorValue
		return out
	}
	return doc
}

// InsertOne writes a single document, buffering when the connection is not
// yet ready. It returns the inserted id.
func (m *Model) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	var id interface{}
	err := m.conn.executeOp(ctx, m.opName("insertOne"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		id, err = coll.InsertOne(ctx, m.tagged(doc))
		return err
	})
	return id, err
}

// InsertMany writes the documents in order and returns their ids.
func (m *Model) InsertMany(ctx context.Context, docs []interface{}) ([]interface{}, error) {
	var ids []interface{}
	err := m.conn.executeOp(ctx, m.opName("insertMany"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		tagged := make([]interface{}, len(docs))
		for i, doc := range docs {
			tagged[i] = m.tagged(doc)
		}
		ids, err = coll.InsertMany(ctx, tagged)
		return err
	})
	return ids, err
}

// FindOne decodes the first matching document into out.
func (m *Model) FindOne(ctx context.Context, filter interface{}, out interface{}) error {
	return m.conn.executeOp(ctx, m.opName("findOne"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		return coll.FindOne(ctx, m.tagged(asFilter(filter)), out)
	})
}

// Find returns every matching document.
func (m *Model) Find(ctx context.Context, filter interface{}) ([]bson.M, error) {
	var results []bson.M
	err := m.conn.executeOp(ctx, m.opName("find"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		results, err = coll.Find(ctx, m.tagged(asFilter(filter)))
		return err
	})
	return results, err
}

// UpdateOne applies update to the first matching document and returns the
// number of documents modified.
func (m *Model) UpdateOne(ctx context.Context, filter, update interface{}) (int64, error) {
	var n int64
	err := m.conn.executeOp(ctx, m.opName("updateOne"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		n, err = coll.UpdateOne(ctx, m.tagged(asFilter(filter)), update)
		return err
	})
	return n, err
}

// DeleteMany removes every matching document and returns the count.
func (m *Model) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	var n int64
	err := m.conn.executeOp(ctx, m.opName("deleteMany"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		n, err = coll.DeleteMany(ctx, m.tagged(asFilter(filter)))
		return err
	})
	return n, err
}

// CountDocuments counts the matching documents.
func (m *Model) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	var n int64
	err := m.conn.executeOp(ctx, m.opName("countDocuments"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		n, err = coll.CountDocuments(ctx, m.tagged(asFilter(filter)))
		return err
	})
	return n, err
}

// EnsureIndexes builds the schema's declared indexes on the collection.
func (m *Model) EnsureIndexes(ctx context.Context) error {
	specs := make([]driver.IndexSpec, 0, len(m.schema.Indexes))
	for _, idx := range m.schema.Indexes {
		specs = append(specs, driver.IndexSpec{
			Keys:   idx.Keys,
			Name:   idx.Name,
			Unique: idx.Unique,
			Sparse: idx.Sparse,
		})
	}
	return m.conn.executeOp(ctx, m.opName("ensureIndexes"), m.bufferEnabled(), m.bufferTimeout(), func(ctx context.Context) error {
		coll, err := m.collectionHandle()
		if err != nil {
			return err
		}
		return coll.EnsureIndexes(ctx, specs)
	})
}

func asFilter(filter interface{}) interface{} {
	if filter == nil {
		return bson.M{}
	}
	return filter
}
