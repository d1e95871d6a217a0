package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// WatchedWallet is a wallet/token pair the watcher service polls for new
// transfers.
type WatchedWallet struct {
	ID        primitive.ObjectID `bson:"_id,omitempty" json:"id,omitempty"`
	Address   string             `bson:"address" json:"address"`
	Token     string             `bson:"token" json:"token"`
	Label     string             `bson:"label,omitempty" json:"label,omitempty"`
	CreatedAt time.Time          `bson:"created_at" json:"created_at"`
}
