// Package mongo implements repository.Store on MongoDB.
//
// Documents map one-to-one onto Mongo documents. Generated ids are ObjectID
// hex strings so that every store hands out plain string ids; account ids
// (counter values) are stored as their decimal string.
package mongo

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/sakif/classplanner/internal/repository"
)

var (
	_ repository.Store      = (*DB)(nil)
	_ repository.Collection = (*collection)(nil)
)

const countersCollection = "counters"

// DB is a connected client bound to one database.
type DB struct {
	client *mongo.Client
	db     *mongo.Database
}

// New connects to uri and verifies the connection with a ping.
func New(ctx context.Context, uri, database string) (*DB, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connecting: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: pinging: %w", err)
	}
	return &DB{client: client, db: client.Database(database)}, nil
}

func (d *DB) Close() error {
	return d.client.Disconnect(context.Background())
}

func (d *DB) Collection(name string) repository.Collection {
	return &collection{coll: d.db.Collection(name), name: name}
}

// Increment uses an upserting $inc, which the server applies atomically.
func (d *DB) Increment(ctx context.Context, counter string) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetUpsert(true).
		SetReturnDocument(options.After)

	var out struct {
		Seq int64 `bson:"seq"`
	}
	err := d.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": counter},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&out)
	if err != nil {
		return 0, fmt.Errorf("mongo: incrementing counter %s: %w", counter, err)
	}
	return out.Seq, nil
}

type collection struct {
	coll *mongo.Collection
	name string
}

func (c *collection) Insert(ctx context.Context, id string, doc repository.Document) (string, error) {
	if id == "" {
		id = primitive.NewObjectID().Hex()
	}
	body := make(bson.M, len(doc)+1)
	for k, v := range doc {
		body[k] = v
	}
	body[repository.IDField] = id

	if _, err := c.coll.InsertOne(ctx, body); err != nil {
		return "", fmt.Errorf("mongo: inserting into %s: %w", c.name, err)
	}
	return id, nil
}

func (c *collection) Get(ctx context.Context, id string) (repository.Document, error) {
	var m bson.M
	err := c.coll.FindOne(ctx, bson.M{repository.IDField: id}).Decode(&m)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, repository.ErrNoDocument
		}
		return nil, fmt.Errorf("mongo: getting %s/%s: %w", c.name, id, err)
	}
	return repository.Document(m), nil
}

func (c *collection) Set(ctx context.Context, id, field string, value any) error {
	if err := repository.ValidateField(field); err != nil {
		return err
	}
	_, err := c.coll.UpdateOne(ctx,
		bson.M{repository.IDField: id},
		bson.M{"$set": bson.M{field: value}},
	)
	if err != nil {
		return fmt.Errorf("mongo: setting %s/%s.%s: %w", c.name, id, field, err)
	}
	return nil
}

func (c *collection) Push(ctx context.Context, id, field string, value any) error {
	if err := repository.ValidateField(field); err != nil {
		return err
	}
	_, err := c.coll.UpdateOne(ctx,
		bson.M{repository.IDField: id},
		bson.M{"$push": bson.M{field: value}},
	)
	if err != nil {
		return fmt.Errorf("mongo: pushing to %s/%s.%s: %w", c.name, id, field, err)
	}
	return nil
}

func (c *collection) Delete(ctx context.Context, id string) (bool, error) {
	res, err := c.coll.DeleteOne(ctx, bson.M{repository.IDField: id})
	if err != nil {
		return false, fmt.Errorf("mongo: deleting %s/%s: %w", c.name, id, err)
	}
	return res.DeletedCount > 0, nil
}

func (c *collection) Find(ctx context.Context, q repository.Query) ([]repository.Document, error) {
	filter, err := toFilter(q.Filters)
	if err != nil {
		return nil, err
	}

	opts := options.Find()
	if q.SortField != "" && q.Sort != repository.Unsorted {
		dir := 1
		if q.Sort == repository.Descending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: q.SortField, Value: dir}})
	}
	if q.Limit > 0 {
		opts.SetLimit(int64(q.Limit))
	}

	cur, err := c.coll.Find(ctx, filter, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: querying %s: %w", c.name, err)
	}
	defer cur.Close(ctx)

	var docs []repository.Document
	for cur.Next(ctx) {
		var m bson.M
		if err := cur.Decode(&m); err != nil {
			return nil, fmt.Errorf("mongo: decoding %s document: %w", c.name, err)
		}
		docs = append(docs, repository.Document(m))
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("mongo: iterating %s: %w", c.name, err)
	}
	return docs, nil
}

// toFilter ANDs the query filters. Two conditions on one field (a date range)
// merge into the same operator document.
func toFilter(filters []repository.Filter) (bson.M, error) {
	out := bson.M{}
	for _, f := range filters {
		if f.Field != repository.IDField {
			if err := repository.ValidateField(f.Field); err != nil {
				return nil, err
			}
		}

		var op string
		switch f.Op {
		case repository.OpEq:
			op = "$eq"
		case repository.OpIn:
			op = "$in"
		case repository.OpGte:
			op = "$gte"
		case repository.OpLt:
			op = "$lt"
		default:
			return nil, fmt.Errorf("mongo: unknown filter op %d", f.Op)
		}

		cond, ok := out[f.Field].(bson.M)
		if !ok {
			cond = bson.M{}
			out[f.Field] = cond
		}
		cond[op] = f.Value
	}
	return out, nil
}
