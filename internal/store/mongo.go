package store

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"livechat-service/internal/models"
)

// MongoStore persists each thread as one document in a threads
// collection, messages embedded as an ordered array.
type MongoStore struct {
	threads *mongo.Collection
}

// NewMongoStore returns the document engine over db's threads collection.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{threads: db.Collection("threads")}
}

func (s *MongoStore) AppendMessage(ctx context.Context, clientID string, info models.ClientInfo, msg models.ChatMessage) error {
	msg.ClientID = clientID

	set := bson.M{
		"status":    models.ThreadActive,
		"updatedAt": msg.CreatedAt,
	}
	if info.Name != "" {
		set["clientInfo.name"] = info.Name
	}
	if info.Email != "" {
		set["clientInfo.email"] = info.Email
	}

	_, err := s.threads.UpdateOne(ctx,
		bson.M{"clientId": clientID},
		bson.M{
			"$push":        bson.M{"messages": msg},
			"$set":         set,
			"$setOnInsert": bson.M{"clientId": clientID, "createdAt": msg.CreatedAt},
		},
		options.Update().SetUpsert(true),
	)
	return err
}

func (s *MongoStore) GetThread(ctx context.Context, clientID string) (*models.ChatThread, error) {
	var thread models.ChatThread
	err := s.threads.FindOne(ctx, bson.M{"clientId": clientID}).Decode(&thread)
	if err == mongo.ErrNoDocuments {
		return nil, ErrThreadNotFound
	}
	if err != nil {
		return nil, err
	}
	return &thread, nil
}

func (s *MongoStore) ListThreads(ctx context.Context, filter ListFilter) ([]models.ChatThread, error) {
	// Purge ghosts before listing: no messages and no client metadata.
	_, err := s.threads.DeleteMany(ctx, bson.M{
		"messages":         bson.M{"$size": 0},
		"clientInfo.name":  bson.M{"$in": bson.A{"", nil}},
		"clientInfo.email": bson.M{"$in": bson.A{"", nil}},
	})
	if err != nil {
		return nil, err
	}

	query := bson.M{}
	if filter.Status != "" {
		query["status"] = filter.Status
	}

	cursor, err := s.threads.Find(ctx, query, options.Find().SetSort(bson.D{{Key: "updatedAt", Value: -1}}))
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var threads []models.ChatThread
	if err := cursor.All(ctx, &threads); err != nil {
		return nil, err
	}
	return threads, nil
}

func (s *MongoStore) SetStatus(ctx context.Context, clientID string, status models.ThreadStatus) error {
	res, err := s.threads.UpdateOne(ctx,
		bson.M{"clientId": clientID},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now().UTC()}},
	)
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrThreadNotFound
	}
	return nil
}

func (s *MongoStore) AdvanceDelivery(ctx context.Context, clientID string, sender models.SenderRole, status models.DeliveryStatus) error {
	below := statusesBelow(status)
	if len(below) == 0 {
		return nil
	}

	_, err := s.threads.UpdateOne(ctx,
		bson.M{"clientId": clientID},
		bson.M{"$set": bson.M{"messages.$[m].deliveryStatus": status}},
		options.Update().SetArrayFilters(options.ArrayFilters{
			Filters: bson.A{bson.M{
				"m.senderRole":     sender,
				"m.deliveryStatus": bson.M{"$in": below},
			}},
		}),
	)
	return err
}

func (s *MongoStore) DeleteThread(ctx context.Context, clientID string) error {
	res, err := s.threads.DeleteOne(ctx, bson.M{"clientId": clientID})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrThreadNotFound
	}
	return nil
}
