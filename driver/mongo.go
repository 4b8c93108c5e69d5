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

package driver

import (
	"context"
	"log"
	"os"
	"strings"
	"sync/atomic"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/event"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/description"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// MongoClient implements Client on top of go.mongodb.org/mongo-driver.
type MongoClient struct {
	id     string
	cfg    Config
	client *mongo.Client
	logger *log.Logger
	dead   atomic.Bool
}

// NewMongoClient builds a client from cfg without dialing.
// Dialing happens in Connect so the caller controls the async boundary.
func NewMongoClient(cfg Config) (Client, error) {
	return &MongoClient{
		id:     uuid.NewString(),
		cfg:    cfg,
		logger: log.New(os.Stdout, "[ODM_MONGO] ", log.LstdFlags),
	}, nil
}

// ID returns the client's instance tag.
func (c *MongoClient) ID() string {
	return c.id
}

// Connect dials the deployment and pings it to force server selection.
func (c *MongoClient) Connect(ctx context.Context) error {
	if c.dead.Load() {
		return ErrClientKilled
	}

	clientOpts := options.Client().ApplyURI(c.cfg.URI)

	maxPoolSize := uint64(DefaultMaxPoolSize)
	if c.cfg.MaxPoolSize > 0 {
		maxPoolSize = c.cfg.MaxPoolSize
	}
	clientOpts.SetMaxPoolSize(maxPoolSize)
	if c.cfg.MinPoolSize > 0 {
		clientOpts.SetMinPoolSize(c.cfg.MinPoolSize)
	}

	connectTimeout := c.cfg.ConnectTimeout
	if connectTimeout <= 0 {
		connectTimeout = DefaultConnectTimeout
	}
	clientOpts.SetConnectTimeout(connectTimeout)

	selectionTimeout := c.cfg.ServerSelectionTimeout
	if selectionTimeout <= 0 {
		selectionTimeout = DefaultServerSelectionTimeout
	}
	clientOpts.SetServerSelectionTimeout(selectionTimeout)

	if rp := readPreferenceFromString(c.cfg.ReadPreference); rp != nil {
		clientOpts.SetReadPreference(rp)
	}

	appName := c.cfg.AppName
	if appName == "" {
		appName = "AxonFlow-ODM"
	}
	clientOpts.SetAppName(appName)

	clientOpts.SetRetryWrites(true)
	clientOpts.SetRetryReads(true)

	if listener := c.cfg.StateListener; listener != nil {
		clientOpts.SetServerMonitor(&event.ServerMonitor{
			TopologyDescriptionChanged: func(e *event.TopologyDescriptionChangedEvent) {
				listener(hasWritableServer(e.NewDescription))
			},
		})
	}

	connectCtx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, clientOpts)
	if err != nil {
		return err
	}

	// Ping forces server selection; without it Connect succeeds even when
	// no server is reachable.
	pingCtx, pingCancel := context.WithTimeout(ctx, selectionTimeout)
	defer pingCancel()

	if err := client.Ping(pingCtx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return err
	}

	c.client = client
	c.logger.Printf("Connected (client=%s, max_pool=%d)", c.id, maxPoolSize)
	return nil
}

// Disconnect closes the underlying pool. Safe to call before Connect.
func (c *MongoClient) Disconnect(ctx context.Context) error {
	if c.client == nil {
		return nil
	}
	if err := c.client.Disconnect(ctx); err != nil {
		return err
	}
	c.logger.Printf("Disconnected (client=%s)", c.id)
	return nil
}

// Kill marks the client dead. It performs no network activity; operations
// issued afterwards fail with ErrClientKilled instead of hanging.
func (c *MongoClient) Kill() {
	c.dead.Store(true)
}

// Database returns a handle scoped to the named database.
func (c *MongoClient) Database(name string) Database {
	return &mongoDatabase{owner: c, name: name}
}

// hasWritableServer reports whether the topology currently contains a server
// that accepts writes. A replica set with only secondaries left does not.
func hasWritableServer(desc description.Topology) bool {
	for _, s := range desc.Servers {
		switch s.Kind {
		case description.RSPrimary, description.Standalone, description.Mongos, description.LoadBalancer:
			return true
		}
	}
	return false
}

func readPreferenceFromString(rp string) *readpref.ReadPref {
	switch strings.ToLower(rp) {
	case "primary":
		return readpref.Primary()
	case "primarypreferred":
		return readpref.PrimaryPreferred()
	case "secondary":
		return readpref.Secondary()
	case "secondarypreferred":
		return readpref.SecondaryPreferred()
	case "nearest":
		return readpref.Nearest()
	default:
		return nil
	}
}

type mongoDatabase struct {
	owner *MongoClient
	name  string
}

func (d *mongoDatabase) Name() string {
	return d.name
}

func (d *mongoDatabase) Collection(name string) Collection {
	return &mongoCollection{owner: d.owner, db: d.name, name: name}
}

type mongoCollection struct {
	owner *MongoClient
	db    string
	name  string
}

func (c *mongoCollection) Name() string {
	return c.name
}

// handle resolves the live mongo collection, failing fast when the client
// was killed or never connected.
func (c *mongoCollection) handle() (*mongo.Collection, error) {
	if c.owner.dead.Load() {
		return nil, ErrClientKilled
	}
	if c.owner.client == nil {
		return nil, ErrClientKilled
	}
	return c.owner.client.Database(c.db).Collection(c.name), nil
}

func (c *mongoCollection) InsertOne(ctx context.Context, doc interface{}) (interface{}, error) {
	coll, err := c.handle()
	if err != nil {
		return nil, err
	}
	res, err := coll.InsertOne(ctx, doc)
	if err != nil {
		return nil, err
	}
	return res.InsertedID, nil
}

func (c *mongoCollection) InsertMany(ctx context.Context, docs []interface{}) ([]interface{}, error) {
	coll, err := c.handle()
	if err != nil {
		return nil, err
	}
	res, err := coll.InsertMany(ctx, docs)
	if err != nil {
		return nil, err
	}
	return res.InsertedIDs, nil
}

func (c *mongoCollection) FindOne(ctx context.Context, filter interface{}, out interface{}) error {
	coll, err := c.handle()
	if err != nil {
		return err
	}
	err = coll.FindOne(ctx, filter).Decode(out)
	if err == mongo.ErrNoDocuments {
		return ErrNoDocuments
	}
	return err
}

func (c *mongoCollection) Find(ctx context.Context, filter interface{}) ([]bson.M, error) {
	coll, err := c.handle()
	if err != nil {
		return nil, err
	}
	cursor, err := coll.Find(ctx, filter)
	if err != nil {
		return nil, err
	}
	defer func() { _ = cursor.Close(ctx) }()

	var results []bson.M
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return nil, err
		}
		results = append(results, doc)
	}
	if err := cursor.Err(); err != nil {
		return nil, err
	}
	return results, nil
}

func (c *mongoCollection) UpdateOne(ctx context.Context, filter, update interface{}) (int64, error) {
	coll, err := c.handle()
	if err != nil {
		return 0, err
	}
	res, err := coll.UpdateOne(ctx, filter, update)
	if err != nil {
		return 0, err
	}
	return res.ModifiedCount + res.UpsertedCount, nil
}

func (c *mongoCollection) DeleteMany(ctx context.Context, filter interface{}) (int64, error) {
	coll, err := c.handle()
	if err != nil {
		return 0, err
	}
	res, err := coll.DeleteMany(ctx, filter)
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (c *mongoCollection) CountDocuments(ctx context.Context, filter interface{}) (int64, error) {
	coll, err := c.handle()
	if err != nil {
		return 0, err
	}
	return coll.CountDocuments(ctx, filter)
}

func (c *mongoCollection) EnsureIndexes(ctx context.Context, specs []IndexSpec) error {
	if len(specs) == 0 {
		return nil
	}
	coll, err := c.handle()
	if err != nil {
		return err
	}

	models := make([]mongo.IndexModel, 0, len(specs))
	for _, spec := range specs {
		opts := options.Index()
		if spec.Name != "" {
			opts.SetName(spec.Name)
		}
		if spec.Unique {
			opts.SetUnique(true)
		}
		if spec.Sparse {
			opts.SetSparse(true)
		}
		models = append(models, mongo.IndexModel{Keys: spec.Keys, Options: opts})
	}

	_, err = coll.Indexes().CreateMany(ctx, models)
	return err
}
