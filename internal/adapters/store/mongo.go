// Package store persists VoiceRoom documents.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/dkeye/Resonance/internal/domain"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "voice_rooms"

// MongoStore keeps one document per voice room with participants embedded in join order.
type MongoStore struct {
	c *mongo.Collection
}

func NewMongo(db *mongo.Database) *MongoStore {
	return &MongoStore{c: db.Collection(CollectionName)}
}

// EnsureIndexes creates the lookup indexes for active listings and participant search.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "active", Value: 1}, {Key: "visibility", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_voice_rooms_active_public"),
		},
		{
			Keys:    bson.D{{Key: "participants.userId", Value: 1}},
			Options: options.Index().SetName("idx_voice_rooms_participant"),
		},
		{
			Keys:    bson.D{{Key: "hostId", Value: 1}, {Key: "createdAt", Value: -1}},
			Options: options.Index().SetName("idx_voice_rooms_host"),
		},
	}
	_, err := s.c.Indexes().CreateMany(ctx, indexes)
	return err
}

func (s *MongoStore) Insert(ctx context.Context, room *domain.VoiceRoom) error {
	_, err := s.c.InsertOne(ctx, room)
	return err
}

func (s *MongoStore) Save(ctx context.Context, room *domain.VoiceRoom) error {
	res, err := s.c.ReplaceOne(ctx, bson.M{"_id": room.ID}, room)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return domain.ErrRoomNotFound
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, id domain.RoomID) (*domain.VoiceRoom, error) {
	var room domain.VoiceRoom
	err := s.c.FindOne(ctx, bson.M{"_id": id}).Decode(&room)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, domain.ErrRoomNotFound
	}
	if err != nil {
		return nil, err
	}
	return &room, nil
}

func (s *MongoStore) ListActivePublic(ctx context.Context, limit int) ([]*domain.VoiceRoom, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	return s.find(ctx, bson.M{"active": true, "visibility": domain.VisibilityPublic}, opts)
}

func (s *MongoStore) FindActiveByParticipant(ctx context.Context, uid domain.UserID) ([]*domain.VoiceRoom, error) {
	return s.find(ctx, bson.M{"active": true, "participants.userId": uid}, options.Find())
}

func (s *MongoStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*domain.VoiceRoom, error) {
	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	var out []*domain.VoiceRoom
	for cur.Next(ctx) {
		var room domain.VoiceRoom
		if err := cur.Decode(&room); err != nil {
			return nil, err
		}
		out = append(out, &room)
	}
	return out, cur.Err()
}

// EndAllActive closes every active room in one pipeline update, computing the
// duration server-side from each document's createdAt.
func (s *MongoStore) EndAllActive(ctx context.Context, at time.Time) (int64, error) {
	at = at.UTC()
	elapsedMillis := bson.D{{Key: "$subtract", Value: bson.A{at, "$createdAt"}}}
	seconds := bson.D{{Key: "$toLong", Value: bson.D{{Key: "$floor", Value: bson.D{
		{Key: "$divide", Value: bson.A{elapsedMillis, 1000}},
	}}}}}
	update := mongo.Pipeline{
		{{Key: "$set", Value: bson.D{
			{Key: "active", Value: false},
			{Key: "endedAt", Value: at},
			{Key: "participants", Value: bson.D{{Key: "$literal", Value: bson.A{}}}},
			{Key: "totalDurationSeconds", Value: bson.D{{Key: "$max", Value: bson.A{0, seconds}}}},
		}}},
	}
	res, err := s.c.UpdateMany(ctx, bson.M{"active": true}, update)
	if err != nil {
		return 0, fmt.Errorf("end active rooms: %w", err)
	}
	return res.ModifiedCount, nil
}
