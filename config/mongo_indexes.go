package config

import (
	"context"
	"errors"
	"os"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func EnsureMongoIndexes() error {
	if MongoClient == nil {
		return errors.New("MongoClient is nil; call InitMongo() first")
	}

	dbName := os.Getenv("MONGO_DB")
	if dbName == "" {
		dbName = "planloop"
	}
	db := MongoClient.Database(dbName)

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// session_archive indexes
	archive := db.Collection("session_archive")
	_, err := archive.Indexes().CreateMany(ctx, []mongo.IndexModel{
		// An ended session is archived exactly once.
		{
			Keys: bson.D{{Key: "session_id", Value: 1}},
			Options: options.Index().
				SetName("uniq_session_id").
				SetUnique(true),
		},
		// History listing
		{
			Keys:    bson.D{{Key: "user_id", Value: 1}, {Key: "ended_at", Value: -1}},
			Options: options.Index().SetName("by_user_ended"),
		},
	})
	return err
}
