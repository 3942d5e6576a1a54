package config

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

func ConnectMongoDB(cfg *Config) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.MongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %v", err)
	}

	err = client.Ping(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %v", err)
	}

	err = createIndexes(client, cfg.DBName)
	if err != nil {
		return nil, fmt.Errorf("failed to create indexes: %v", err)
	}

	return client, nil
}

// createIndexes provisions every matter_id-prefixed compound index the
// store layer relies on for tenant isolation. Every collection carrying a
// matter_id gets it as the leading key so a lookup never has to scan
// across matters.
func createIndexes(client *mongo.Client, dbName string) error {
	db := client.Database(dbName)

	matters := db.Collection("matters")
	if _, err := matters.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "members." + "$**", Value: 1}}},
	}); err != nil {
		return err
	}

	documents := db.Collection("documents")
	if _, err := documents.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "_id", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "file_hash", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
	}); err != nil {
		return err
	}

	ocrChunks := db.Collection("ocr_chunks")
	if _, err := ocrChunks.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "last_heartbeat", Value: 1}}},
	}); err != nil {
		return err
	}

	boundingBoxes := db.Collection("bounding_boxes")
	if _, err := boundingBoxes.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "page_number", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}}},
	}); err != nil {
		return err
	}

	chunks := db.Collection("chunks")
	if _, err := chunks.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "document_id", Value: 1}, {Key: "chunk_index", Value: 1}}},
		{Keys: bson.D{{Key: "parent_chunk_id", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "chunk_type", Value: 1}}},
	}); err != nil {
		return err
	}

	entityMentions := db.Collection("entity_mentions")
	if _, err := entityMentions.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "document_id", Value: 1}}},
		{Keys: bson.D{{Key: "canonical_entity_id", Value: 1}}},
	}); err != nil {
		return err
	}

	canonicalEntities := db.Collection("canonical_entities")
	if _, err := canonicalEntities.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "canonical_name", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "entity_type", Value: 1}}},
	}); err != nil {
		return err
	}

	events := db.Collection("events")
	if _, err := events.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "document_id", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "event_date", Value: 1}}},
	}); err != nil {
		return err
	}

	citations := db.Collection("citations")
	if _, err := citations.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "document_id", Value: 1}}},
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "act_name", Value: 1}, {Key: "section", Value: 1}}},
		{Keys: bson.D{{Key: "resolution_status", Value: 1}}},
	}); err != nil {
		return err
	}

	jobs := db.Collection("jobs")
	if _, err := jobs.Indexes().CreateMany(context.Background(), []mongo.IndexModel{
		{Keys: bson.D{{Key: "matter_id", Value: 1}, {Key: "document_id", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}, {Key: "updated_at", Value: 1}}},
		{Keys: bson.D{{Key: "job_type", Value: 1}, {Key: "status", Value: 1}}},
	}); err != nil {
		return err
	}

	return nil
}
