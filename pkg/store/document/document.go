// Package document stores posts in a MongoDB collection.
package document

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/misstter/server/pkg/posts"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const CollectionName = "posts"

// PostDocument is the MongoDB schema for a post.
type PostDocument struct {
	Id          string    `bson:"_id"`
	Text        string    `bson:"text"`
	Donmai      int64     `bson:"donmai"`
	Timestamp   time.Time `bson:"timestamp"`
	DeleteToken string    `bson:"deleteToken,omitempty"`
}

func (d *PostDocument) Post() posts.Post {
	return posts.Post{
		Id:            d.Id,
		Text:          d.Text,
		ReactionCount: d.Donmai,
		CreatedAt:     d.Timestamp.UTC(),
		DeleteToken:   d.DeleteToken,
	}
}

type Store struct {
	posts *mongo.Collection
}

func New(database *mongo.Database) *Store {
	return &Store{posts: database.Collection(CollectionName)}
}

// EnsureIndexes creates the index used for listing and sweeping.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.posts.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "timestamp", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create timestamp index: %w", err)
	}
	return nil
}

func (s *Store) ListRecent(ctx context.Context, limit int) ([]posts.Post, error) {
	if limit <= 0 {
		return []posts.Post{}, nil
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetLimit(int64(limit)).
		SetProjection(bson.M{"deleteToken": 0})
	cur, err := s.posts.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("find posts: %w", err)
	}
	defer cur.Close(ctx)

	result := make([]posts.Post, 0, limit)
	for cur.Next(ctx) {
		var doc PostDocument
		if err := cur.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode post: %w", err)
		}
		result = append(result, doc.Post())
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate posts: %w", err)
	}
	return result, nil
}

func (s *Store) Insert(ctx context.Context, post posts.Post) error {
	_, err := s.posts.InsertOne(ctx, PostDocument{
		Id:          post.Id,
		Text:        post.Text,
		Donmai:      post.ReactionCount,
		Timestamp:   post.CreatedAt,
		DeleteToken: post.DeleteToken,
	})
	if err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (s *Store) IncrementReaction(ctx context.Context, id string) (int64, error) {
	return s.updateCount(ctx, id, bson.M{"$inc": bson.M{"donmai": 1}})
}

// The decrement is a pipeline update so the floor is applied in the same
// atomic write.
func (s *Store) DecrementReaction(ctx context.Context, id string) (int64, error) {
	return s.updateCount(ctx, id, mongo.Pipeline{
		{{Key: "$set", Value: bson.M{
			"donmai": bson.M{"$max": bson.A{0, bson.M{"$subtract": bson.A{"$donmai", 1}}}},
		}}},
	})
}

func (s *Store) updateCount(ctx context.Context, id string, update interface{}) (int64, error) {
	opts := options.FindOneAndUpdate().
		SetReturnDocument(options.After).
		SetProjection(bson.M{"donmai": 1})

	var doc PostDocument
	err := s.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, update, opts).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, posts.ErrPostNotFound
	}
	if err != nil {
		return 0, fmt.Errorf("update reaction count: %w", err)
	}
	return doc.Donmai, nil
}

func (s *Store) DeleteIfTokenMatches(ctx context.Context, id string, token string) (bool, error) {
	result, err := s.posts.DeleteOne(ctx, bson.M{"_id": id, "deleteToken": token})
	if err != nil {
		return false, fmt.Errorf("delete post: %w", err)
	}
	return result.DeletedCount == 1, nil
}

func (s *Store) SweepOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := s.posts.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("sweep posts: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *Store) Clear(ctx context.Context) (int64, error) {
	result, err := s.posts.DeleteMany(ctx, bson.M{})
	if err != nil {
		return 0, fmt.Errorf("clear posts: %w", err)
	}
	return result.DeletedCount, nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.posts.Database().Client().Disconnect(ctx)
}
