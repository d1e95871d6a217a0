package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tokenlens/internal/models"
)

// Watchlist stores the wallet/token pairs the watcher polls. The interface
// keeps handlers and the watcher independent of the backing store.
type Watchlist interface {
	Add(ctx context.Context, wallet models.WatchedWallet) error
	Remove(ctx context.Context, address, token string) (bool, error)
	List(ctx context.Context) ([]models.WatchedWallet, error)
	Close(ctx context.Context) error
}

// ErrAlreadyWatched reports an Add for a pair that is already on the list.
var ErrAlreadyWatched = fmt.Errorf("wallet/token pair already watched")

// MongoWatchlist is the MongoDB-backed Watchlist.
type MongoWatchlist struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoWatchlist connects to MongoDB and ensures the uniqueness index on
// (address, token).
func NewMongoWatchlist(uri, database string) (*MongoWatchlist, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	coll := client.Database(database).Collection("watchlist")

	index := mongo.IndexModel{
		Keys: bson.D{
			{Key: "address", Value: int32(1)},
			{Key: "token", Value: int32(1)},
		},
		Options: options.Index().SetUnique(true),
	}
	if _, err := coll.Indexes().CreateOne(ctx, index); err != nil {
		return nil, fmt.Errorf("failed to create watchlist index: %w", err)
	}

	return &MongoWatchlist{client: client, coll: coll}, nil
}

// Add inserts a watched wallet/token pair. Addresses are stored lowercased
// so lookups are case-insensitive.
func (w *MongoWatchlist) Add(ctx context.Context, wallet models.WatchedWallet) error {
	wallet.Address = strings.ToLower(wallet.Address)
	wallet.Token = strings.ToLower(wallet.Token)
	if wallet.CreatedAt.IsZero() {
		wallet.CreatedAt = time.Now().UTC()
	}

	if _, err := w.coll.InsertOne(ctx, wallet); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return ErrAlreadyWatched
		}
		return fmt.Errorf("failed to insert watched wallet: %w", err)
	}
	return nil
}

// Remove deletes one pair, reporting whether it existed.
func (w *MongoWatchlist) Remove(ctx context.Context, address, token string) (bool, error) {
	filter := bson.M{
		"address": strings.ToLower(address),
		"token":   strings.ToLower(token),
	}

	result, err := w.coll.DeleteOne(ctx, filter)
	if err != nil {
		return false, fmt.Errorf("failed to remove watched wallet: %w", err)
	}
	return result.DeletedCount > 0, nil
}

// List returns all watched pairs, newest first.
func (w *MongoWatchlist) List(ctx context.Context) ([]models.WatchedWallet, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}})

	cursor, err := w.coll.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to list watchlist: %w", err)
	}
	defer cursor.Close(ctx)

	var wallets []models.WatchedWallet
	if err := cursor.All(ctx, &wallets); err != nil {
		return nil, fmt.Errorf("failed to decode watchlist: %w", err)
	}
	return wallets, nil
}

// Close disconnects from MongoDB.
func (w *MongoWatchlist) Close(ctx context.Context) error {
	return w.client.Disconnect(ctx)
}
