package db

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const ARCHIVE_COLLECTION = "relay_events"

type ArchiveRecord struct {
	Kind      string    `bson:"kind"`
	RelayID   string    `bson:"relay_id"`
	Data      any       `bson:"data"`
	CreatedAt time.Time `bson:"created_at"`
}

// Archive is an append-only audit trail of observed events and status transitions.
type Archive struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewArchive(ctx context.Context, uri string, database string) (*Archive, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err = client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}
	if database == "" {
		database = "relayer"
	}
	log.Info().Str("database", database).Msg("[Archive] connected to MongoDB")
	return &Archive{
		client:     client,
		collection: client.Database(database).Collection(ARCHIVE_COLLECTION),
	}, nil
}

// Record appends one entry. A nil archive records nothing.
func (a *Archive) Record(ctx context.Context, kind string, relayID string, data any) error {
	if a == nil {
		return nil
	}
	_, err := a.collection.InsertOne(ctx, ArchiveRecord{
		Kind:      kind,
		RelayID:   relayID,
		Data:      data,
		CreatedAt: time.Now().UTC(),
	})
	return err
}

func (a *Archive) Close(ctx context.Context) {
	if a == nil {
		return
	}
	if err := a.client.Disconnect(ctx); err != nil {
		log.Warn().Err(err).Msg("[Archive] failed to disconnect")
	}
}
