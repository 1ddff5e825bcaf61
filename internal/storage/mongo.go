package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/hanamilabs/admin-promoter-bot/internal/domain"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type chatDocument struct {
	ChatID    int64     `bson:"chat_id"`
	ChatType  string    `bson:"chat_type"`
	ChatTitle string    `bson:"chat_title"`
	UpdatedAt time.Time `bson:"updated_at"`
}

type MongoStore struct {
	client *mongo.Client
	chats  *mongo.Collection
}

func OpenMongo(ctx context.Context, uri string, database string) (*MongoStore, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	return &MongoStore{client: client, chats: client.Database(database).Collection("chats")}, nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Migrate(ctx context.Context) error {
	_, err := s.chats.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "chat_id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create chats index: %w", err)
	}
	return nil
}

func (s *MongoStore) UpsertChat(ctx context.Context, record domain.ChatRecord) error {
	_, err := s.chats.UpdateOne(ctx,
		bson.D{{Key: "chat_id", Value: record.ChatID}},
		bson.D{{Key: "$set", Value: bson.D{
			{Key: "chat_type", Value: string(record.ChatType)},
			{Key: "chat_title", Value: record.ChatTitle},
			{Key: "updated_at", Value: time.Now().UTC()},
		}}},
		options.UpdateOne().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) ListChats(ctx context.Context) ([]domain.ChatRecord, error) {
	cursor, err := s.chats.Find(ctx, bson.D{}, options.Find().SetSort(bson.D{{Key: "chat_id", Value: 1}}))
	if err != nil {
		return nil, err
	}
	var docs []chatDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, err
	}
	out := make([]domain.ChatRecord, 0, len(docs))
	for _, doc := range docs {
		out = append(out, domain.ChatRecord{ChatID: doc.ChatID, ChatType: domain.ChatType(doc.ChatType), ChatTitle: doc.ChatTitle})
	}
	return out, nil
}

func (s *MongoStore) DeleteChat(ctx context.Context, chatID int64) error {
	_, err := s.chats.DeleteOne(ctx, bson.D{{Key: "chat_id", Value: chatID}})
	return err
}
