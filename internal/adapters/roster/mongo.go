package roster

import (
	"context"
	"fmt"
	"math"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/bsontype"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/okian/vitalstream/internal/domain/model"
)

// Mongo connection defaults.
const (
	DefaultMongoDatabase   = "healthcare"
	DefaultMongoCollection = "patients"
	mongoConnectTimeout    = 10 * time.Second
)

// mongoRecord tolerates the numeric and timestamp variants found in stored
// history. A value of an unexpected type is read as missing.
type mongoRecord struct {
	HeartRate     bson.RawValue `bson:"heart_rate"`
	BloodPressure bson.RawValue `bson:"blood_pressure"`
	Temperature   bson.RawValue `bson:"temperature"`
	SpO2          bson.RawValue `bson:"spo2"`
	Timestamp     bson.RawValue `bson:"timestamp"`
}

type mongoSubject struct {
	ID         string            `bson:"patient_id"`
	Name       string            `bson:"name"`
	Active     bool              `bson:"is_active"`
	Conditions []model.Condition `bson:"diagnosed_conditions"`
	History    bson.RawValue     `bson:"vitals_history"`
}

func (d mongoSubject) toModel() model.Subject {
	s := model.Subject{
		ID:         d.ID,
		Name:       d.Name,
		Active:     d.Active,
		Conditions: d.Conditions,
	}
	if d.History.Type != bsontype.Array {
		return s
	}
	var elems []bson.RawValue
	if err := d.History.Unmarshal(&elems); err != nil {
		return s
	}
	for _, e := range elems {
		if e.Type != bsontype.EmbeddedDocument {
			continue
		}
		var r mongoRecord
		if err := e.Unmarshal(&r); err != nil {
			continue
		}
		bp, _ := r.BloodPressure.StringValueOK()
		s.History = append(s.History, model.VitalsRecord{
			HeartRate:     int(math.Round(rawNumber(r.HeartRate))),
			BloodPressure: bp,
			Temperature:   rawNumber(r.Temperature),
			SpO2:          rawNumber(r.SpO2),
			Timestamp:     rawTimestamp(r.Timestamp),
		})
	}
	return s
}

func rawNumber(v bson.RawValue) float64 {
	switch v.Type {
	case bsontype.Double:
		return v.Double()
	case bsontype.Int32:
		return float64(v.Int32())
	case bsontype.Int64:
		return float64(v.Int64())
	}
	return 0
}

func rawTimestamp(v bson.RawValue) time.Time {
	switch v.Type {
	case bsontype.DateTime:
		return v.Time().UTC()
	case bsontype.String:
		return parseTimestamp(v.StringValue())
	}
	return time.Time{}
}

// MongoSource reads subjects from the patient profile collection.
type MongoSource struct {
	coll *mongo.Collection
}

// NewMongoSource creates a source over coll.
func NewMongoSource(coll *mongo.Collection) *MongoSource {
	return &MongoSource{coll: coll}
}

// ConnectMongo dials uri and verifies the connection.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, mongoConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: connect: %w", ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("%w: ping: %w", ErrUnavailable, err)
	}
	return client, nil
}

// ListActiveSubjects returns every document with is_active=true in natural order.
func (m *MongoSource) ListActiveSubjects(ctx context.Context) ([]model.Subject, error) {
	opts := options.Find().SetProjection(bson.M{"_id": 0})
	cur, err := m.coll.Find(ctx, bson.M{"is_active": true}, opts)
	if err != nil {
		return nil, fmt.Errorf("%w: find: %w", ErrQuery, err)
	}
	defer func() { _ = cur.Close(ctx) }()

	var subjects []model.Subject
	for cur.Next(ctx) {
		var doc mongoSubject
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("%w: %w", ErrDecode, err)
		}
		subjects = append(subjects, doc.toModel())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("%w: cursor: %w", ErrQuery, err)
	}
	return subjects, nil
}

// Ping checks the deployment behind the collection.
func (m *MongoSource) Ping(ctx context.Context) error {
	if err := m.coll.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("%w: %w", ErrUnavailable, err)
	}
	return nil
}
