// Package mongostore keeps settings in a MongoDB collection. Values are
// stored as native BSON so the documents read naturally from the mongo shell.
package mongostore

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/haven-org/haven/internal/models"
	"github.com/haven-org/haven/internal/settings"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

// CollectionName is the collection holding one document per setting.
const CollectionName = "settings"

// Store implements settings.Store on MongoDB.
type Store struct {
	coll *mongo.Collection
	now  func() time.Time
}

var _ settings.Store = (*Store)(nil)

type document struct {
	ID          primitive.ObjectID `bson:"_id,omitempty"`
	Key         string             `bson:"key"`
	Value       bson.RawValue      `bson:"value"`
	Description *string            `bson:"description"`
	Category    string             `bson:"category"`
	CreatedAt   time.Time          `bson:"createdAt"`
	UpdatedAt   time.Time          `bson:"updatedAt"`
}

// Connect dials uri and verifies the connection with a ping.
func Connect(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongostore: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongostore: ping: %w", err)
	}
	return client, nil
}

// New returns a Store on db's settings collection and ensures the unique
// index on key exists.
func New(ctx context.Context, db *mongo.Database) (*Store, error) {
	coll := db.Collection(CollectionName)
	_, err := coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "key", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("key_unique"),
	})
	if err != nil {
		return nil, fmt.Errorf("mongostore: ensure index: %w", err)
	}
	return &Store{coll: coll, now: time.Now}, nil
}

func (s *Store) Get(ctx context.Context, key string) (*models.Setting, error) {
	var doc document
	err := s.coll.FindOne(ctx, bson.M{"key": key}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, settings.ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongostore: get %s: %w", key, err)
	}
	return doc.setting()
}

func (s *Store) Upsert(ctx context.Context, key string, value []byte, meta settings.Meta) (*models.Setting, error) {
	if err := settings.ValidateKey(key); err != nil {
		return nil, err
	}
	v, err := jsonToBSON(value)
	if err != nil {
		return nil, fmt.Errorf("mongostore: value for %s: %w", key, err)
	}
	category := meta.Category
	if category == "" {
		category = models.DefaultCategory
	}

	now := s.now().UTC()
	update := bson.M{
		"$set": bson.M{
			"value":       v,
			"description": meta.Description,
			"category":    category,
			"updatedAt":   now,
		},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)

	var doc document
	if err := s.coll.FindOneAndUpdate(ctx, bson.M{"key": key}, update, opts).Decode(&doc); err != nil {
		return nil, fmt.Errorf("mongostore: upsert %s: %w", key, err)
	}
	return doc.setting()
}

func (s *Store) List(ctx context.Context, category string) ([]models.Setting, error) {
	filter := bson.M{}
	if category != "" {
		filter["category"] = category
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "key", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongostore: list: %w", err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongostore: list: %w", err)
	}
	out := make([]models.Setting, 0, len(docs))
	for _, d := range docs {
		st, err := d.setting()
		if err != nil {
			return nil, err
		}
		out = append(out, *st)
	}
	return out, nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.coll.Database().Client().Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("mongostore: ping: %w", err)
	}
	return nil
}

func (d document) setting() (*models.Setting, error) {
	raw, err := bsonToJSON(d.Value)
	if err != nil {
		return nil, fmt.Errorf("mongostore: decode %s: %w", d.Key, err)
	}
	return &models.Setting{
		Key:         d.Key,
		Value:       string(raw),
		Description: d.Description,
		Category:    d.Category,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}, nil
}

// jsonToBSON converts a plain JSON value into the equivalent BSON value.
// Objects become bson.D so key order survives, and integers that fit are
// stored as int32 the way the mongo shell stores them. The input is never
// treated as Extended JSON, so keys like "$oid" stay ordinary data.
func jsonToBSON(raw []byte) (interface{}, error) {
	if !json.Valid(raw) {
		return nil, errors.New("not valid JSON")
	}
	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	return decodeJSONValue(dec)
}

func decodeJSONValue(dec *json.Decoder) (interface{}, error) {
	tok, err := dec.Token()
	if err != nil {
		return nil, err
	}
	switch t := tok.(type) {
	case json.Delim:
		if t == '{' {
			doc := bson.D{}
			for dec.More() {
				keyTok, err := dec.Token()
				if err != nil {
					return nil, err
				}
				key, _ := keyTok.(string)
				v, err := decodeJSONValue(dec)
				if err != nil {
					return nil, err
				}
				doc = append(doc, bson.E{Key: key, Value: v})
			}
			_, err := dec.Token()
			return doc, err
		}
		arr := bson.A{}
		for dec.More() {
			v, err := decodeJSONValue(dec)
			if err != nil {
				return nil, err
			}
			arr = append(arr, v)
		}
		_, err := dec.Token()
		return arr, err
	case json.Number:
		if i, err := t.Int64(); err == nil {
			if i >= math.MinInt32 && i <= math.MaxInt32 {
				return int32(i), nil
			}
			return i, nil
		}
		return t.Float64()
	default:
		// string, bool or nil
		return t, nil
	}
}

// bsonToJSON renders a stored BSON value as relaxed extended JSON, which for
// the plain JSON types is ordinary JSON.
func bsonToJSON(v bson.RawValue) (json.RawMessage, error) {
	if v.Type == 0 {
		return json.RawMessage("null"), nil
	}
	out, err := bson.MarshalExtJSON(bson.D{{Key: "v", Value: v}}, false, false)
	if err != nil {
		return nil, err
	}
	var wrapper struct {
		V json.RawMessage `json:"v"`
	}
	if err := json.Unmarshal(out, &wrapper); err != nil {
		return nil, err
	}
	return wrapper.V, nil
}
