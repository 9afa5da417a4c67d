package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DB owns the process-wide Mongo client and the collections the stores use.
// It is created once at startup and shared by every request.
type DB struct {
	Client   *mongo.Client
	Users    *mongo.Collection
	Posts    *mongo.Collection
	Comments *mongo.Collection
	PushSubs *mongo.Collection
	dbName   string
}

// Connect dials MongoDB and pings it. The driver manages the connection pool.
func Connect(ctx context.Context, uri, dbName string) (*DB, error) {
	ctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(dbName)
	log.Printf("Connected to MongoDB database %q", dbName)
	return &DB{
		Client:   client,
		Users:    db.Collection("users"),
		Posts:    db.Collection("posts"),
		Comments: db.Collection("comments"),
		PushSubs: db.Collection("push_subscriptions"),
		dbName:   dbName,
	}, nil
}

// ConnectWithRetry calls Connect up to attempts times, sleeping between tries.
func ConnectWithRetry(ctx context.Context, uri, dbName string, attempts int, wait time.Duration) (*DB, error) {
	var lastErr error
	for i := 1; i <= attempts; i++ {
		db, err := Connect(ctx, uri, dbName)
		if err == nil {
			return db, nil
		}
		lastErr = err
		log.Printf("MongoDB connection attempt %d failed: %v", i, err)
		select {
		case <-ctx.Done():
			return nil, ctx.Err()
		case <-time.After(wait):
		}
	}
	return nil, lastErr
}

// EnsureIndexes creates the unique and lookup indexes the stores rely on.
// Username and email uniqueness is enforced here, not in application code.
func (d *DB) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	userIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "username", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "email", Value: 1}}, Options: options.Index().SetUnique(true)},
		{
			Keys: bson.D{{Key: "passwordResetTokenHash", Value: 1}},
			Options: options.Index().SetUnique(true).SetPartialFilterExpression(
				bson.M{"passwordResetTokenHash": bson.M{"$type": "string"}},
			),
		},
	}
	if _, err := d.Users.Indexes().CreateMany(ctx, userIndexes); err != nil {
		return fmt.Errorf("create user indexes: %w", err)
	}

	postIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "authorId", Value: 1}, {Key: "createdAt", Value: -1}}},
	}
	if _, err := d.Posts.Indexes().CreateMany(ctx, postIndexes); err != nil {
		return fmt.Errorf("create post indexes: %w", err)
	}

	commentIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "postId", Value: 1}}},
		{Keys: bson.D{{Key: "createdAt", Value: 1}}},
	}
	if _, err := d.Comments.Indexes().CreateMany(ctx, commentIndexes); err != nil {
		return fmt.Errorf("create comment indexes: %w", err)
	}

	pushIndexes := []mongo.IndexModel{
		{Keys: bson.D{{Key: "userId", Value: 1}}, Options: options.Index().SetUnique(true)},
	}
	if _, err := d.PushSubs.Indexes().CreateMany(ctx, pushIndexes); err != nil {
		return fmt.Errorf("create push subscription indexes: %w", err)
	}
	return nil
}

func (d *DB) Ping(ctx context.Context) error {
	return d.Client.Ping(ctx, nil)
}

// Disconnect closes the client and its pool.
func (d *DB) Disconnect(ctx context.Context) error {
	if d == nil || d.Client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	if err := d.Client.Disconnect(ctx); err != nil {
		return err
	}
	log.Printf("Disconnected from MongoDB database %q", d.dbName)
	return nil
}
