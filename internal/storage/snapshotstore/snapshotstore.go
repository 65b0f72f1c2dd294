// Package snapshotstore is the append-only store for ScoreSnapshot
// history (spec §3): snapshots are write-once and queried by session
// id and time range, a natural fit for a document store distinct from
// the relational ledger. Grounded on
// order_processing_platform/src/services/order_processing_engine.go's
// db-handle-injected, context-scoped mongo-driver usage.
package snapshotstore

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/aurum-solar/core/internal/model"
)

const collectionName = "score_snapshots"

// componentScoresDoc and snapshotDoc mirror model.ComponentScores and
// model.ScoreSnapshot for BSON persistence; kept distinct from the
// domain types so storage concerns never leak into internal/model.
type componentScoresDoc struct {
	Bill       int `bson:"bill"`
	Ownership  int `bson:"ownership"`
	Timeline   int `bson:"timeline"`
	Location   int `bson:"location"`
	Engagement int `bson:"engagement"`
	Credit     int `bson:"credit"`
	Objections int `bson:"objections"`
	NYCMarket  int `bson:"nyc_market"`
}

type snapshotDoc struct {
	SessionID        string              `bson:"session_id"`
	Timestamp        time.Time           `bson:"timestamp"`
	Components       componentScoresDoc  `bson:"components"`
	Total            int                 `bson:"total"`
	Tier             string              `bson:"tier"`
	RevenuePotential string              `bson:"revenue_potential"`
}

func toDoc(s *model.ScoreSnapshot) snapshotDoc {
	return snapshotDoc{
		SessionID: s.SessionID.String(),
		Timestamp: s.Timestamp,
		Components: componentScoresDoc{
			Bill:       s.Components.Bill,
			Ownership:  s.Components.Ownership,
			Timeline:   s.Components.Timeline,
			Location:   s.Components.Location,
			Engagement: s.Components.Engagement,
			Credit:     s.Components.Credit,
			Objections: s.Components.Objections,
			NYCMarket:  s.Components.NYCMarket,
		},
		Total:            s.Total,
		Tier:             string(s.Tier),
		RevenuePotential: s.RevenuePotential.String(),
	}
}

func fromDoc(d snapshotDoc) (*model.ScoreSnapshot, error) {
	sessionID, err := model.ParseID(d.SessionID)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: decode session_id: %w", err)
	}
	revenue, err := decimal.NewFromString(d.RevenuePotential)
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: decode revenue_potential: %w", err)
	}
	return &model.ScoreSnapshot{
		SessionID: sessionID,
		Timestamp: d.Timestamp,
		Components: model.ComponentScores{
			Bill:       d.Components.Bill,
			Ownership:  d.Components.Ownership,
			Timeline:   d.Components.Timeline,
			Location:   d.Components.Location,
			Engagement: d.Components.Engagement,
			Credit:     d.Components.Credit,
			Objections: d.Components.Objections,
			NYCMarket:  d.Components.NYCMarket,
		},
		Total:            d.Total,
		Tier:             model.Tier(d.Tier),
		RevenuePotential: revenue,
	}, nil
}

// Store is the append-only ScoreSnapshot history.
type Store struct {
	coll *mongo.Collection
}

// New wraps a mongo database handle. The caller owns the client's
// lifecycle (connect/disconnect); New performs no I/O.
func New(db *mongo.Database) *Store {
	return &Store{coll: db.Collection(collectionName)}
}

// EnsureIndexes creates the indexes the store's queries rely on. Call
// once at boot, not from New, so constructors stay side-effect free.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "session_id", Value: 1}, {Key: "timestamp", Value: 1}},
	})
	return err
}

// Append writes a snapshot. Snapshots are immutable once written
// (spec §3 "append-only"); there is no Update.
func (s *Store) Append(ctx context.Context, snap *model.ScoreSnapshot) error {
	_, err := s.coll.InsertOne(ctx, toDoc(snap))
	if err != nil {
		return fmt.Errorf("snapshotstore: insert: %w", err)
	}
	return nil
}

// History returns every snapshot for a session within [start, end),
// ordered oldest first.
func (s *Store) History(ctx context.Context, sessionID model.SessionID, start, end time.Time) ([]*model.ScoreSnapshot, error) {
	filter := bson.M{
		"session_id": sessionID.String(),
		"timestamp":  bson.M{"$gte": start, "$lt": end},
	}
	cur, err := s.coll.Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "timestamp", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: find: %w", err)
	}
	defer cur.Close(ctx)

	var out []*model.ScoreSnapshot
	for cur.Next(ctx) {
		var doc snapshotDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("snapshotstore: decode: %w", err)
		}
		snap, err := fromDoc(doc)
		if err != nil {
			return nil, err
		}
		out = append(out, snap)
	}
	return out, cur.Err()
}

// Latest returns the most recent snapshot for a session, or nil if
// none exists yet.
func (s *Store) Latest(ctx context.Context, sessionID model.SessionID) (*model.ScoreSnapshot, error) {
	filter := bson.M{"session_id": sessionID.String()}
	opts := options.FindOne().SetSort(bson.D{{Key: "timestamp", Value: -1}})

	var doc snapshotDoc
	err := s.coll.FindOne(ctx, filter, opts).Decode(&doc)
	if err == mongo.ErrNoDocuments {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("snapshotstore: find one: %w", err)
	}
	return fromDoc(doc)
}
