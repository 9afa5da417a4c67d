package store

import (
	"context"
	"errors"
	"fmt"

	"socialfeed/database"
	"socialfeed/models"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// Mongo implements UserStore, PostStore, CommentStore and PushStore on top
// of the shared database handle.
type Mongo struct {
	users    *mongo.Collection
	posts    *mongo.Collection
	comments *mongo.Collection
	pushSubs *mongo.Collection
}

func NewMongo(db *database.DB) *Mongo {
	return &Mongo{
		users:    db.Users,
		posts:    db.Posts,
		comments: db.Comments,
		pushSubs: db.PushSubs,
	}
}

func findOne[T any](ctx context.Context, coll *mongo.Collection, filter any) (T, error) {
	var out T
	err := coll.FindOne(ctx, filter).Decode(&out)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return out, ErrNotFound
	}
	return out, err
}

func findAll[T any](ctx context.Context, coll *mongo.Collection, filter any, opts ...*options.FindOptions) ([]T, error) {
	cursor, err := coll.Find(ctx, filter, opts...)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	out := []T{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

// ----- users -----

func (m *Mongo) CreateUser(ctx context.Context, u *models.User) error {
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	_, err := m.users.InsertOne(ctx, u)
	if mongo.IsDuplicateKeyError(err) {
		return ErrConflict
	}
	if err != nil {
		return fmt.Errorf("insert user: %w", err)
	}
	return nil
}

func (m *Mongo) GetUserByID(ctx context.Context, id primitive.ObjectID) (models.User, error) {
	return findOne[models.User](ctx, m.users, bson.M{"_id": id})
}

func (m *Mongo) GetUserByUsername(ctx context.Context, username string) (models.User, error) {
	return findOne[models.User](ctx, m.users, bson.M{"username": username})
}

func (m *Mongo) GetUserByEmail(ctx context.Context, email string) (models.User, error) {
	return findOne[models.User](ctx, m.users, bson.M{"email": email})
}

func (m *Mongo) GetUserByResetTokenHash(ctx context.Context, hash string) (models.User, error) {
	if hash == "" {
		return models.User{}, ErrNotFound
	}
	return findOne[models.User](ctx, m.users, bson.M{"passwordResetTokenHash": hash})
}

func (m *Mongo) GetUsersByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	if len(ids) == 0 {
		return []models.User{}, nil
	}
	return findAll[models.User](ctx, m.users, bson.M{"_id": bson.M{"$in": ids}})
}

func (m *Mongo) SetResetToken(ctx context.Context, userID primitive.ObjectID, hash string, expiresAt int64) error {
	res, err := m.users.UpdateOne(ctx, bson.M{"_id": userID}, bson.M{"$set": bson.M{
		"passwordResetTokenHash": hash,
		"passwordResetExpiresAt": expiresAt,
	}})
	if err != nil {
		return fmt.Errorf("set reset token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *Mongo) ClearResetToken(ctx context.Context, userID primitive.ObjectID, hash string) error {
	_, err := m.users.UpdateOne(ctx, resetTokenFilter(userID, hash), bson.M{"$unset": resetFieldsUnset()})
	if err != nil {
		return fmt.Errorf("clear reset token: %w", err)
	}
	return nil
}

func (m *Mongo) ConsumeResetToken(ctx context.Context, userID primitive.ObjectID, hash, newPasswordHash string) error {
	res, err := m.users.UpdateOne(ctx, resetTokenFilter(userID, hash), consumeResetUpdate(newPasswordHash))
	if err != nil {
		return fmt.Errorf("consume reset token: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func resetTokenFilter(userID primitive.ObjectID, hash string) bson.M {
	return bson.M{"_id": userID, "passwordResetTokenHash": hash}
}

func resetFieldsUnset() bson.M {
	return bson.M{"passwordResetTokenHash": "", "passwordResetExpiresAt": ""}
}

func consumeResetUpdate(newPasswordHash string) bson.M {
	return bson.M{
		"$set":   bson.M{"passwordHash": newPasswordHash},
		"$unset": resetFieldsUnset(),
	}
}

// ----- posts -----

func (m *Mongo) CreatePost(ctx context.Context, p *models.Post) error {
	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	// $push and $addToSet fail on null fields, so arrays are stored empty.
	normalizePost(p)
	if _, err := m.posts.InsertOne(ctx, p); err != nil {
		return fmt.Errorf("insert post: %w", err)
	}
	return nil
}

func (m *Mongo) GetPost(ctx context.Context, id primitive.ObjectID) (models.Post, error) {
	return findOne[models.Post](ctx, m.posts, bson.M{"_id": id})
}

func (m *Mongo) ListPostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]models.Post, error) {
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}})
	return findAll[models.Post](ctx, m.posts, bson.M{"authorId": authorID}, opts)
}

func (m *Mongo) UpdatePost(ctx context.Context, id primitive.ObjectID, content string, images *[]string, updatedAt int64) (models.Post, error) {
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)

	var post models.Post
	err := m.posts.FindOneAndUpdate(ctx, bson.M{"_id": id}, updatePostDoc(content, images, updatedAt), opts).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("update post: %w", err)
	}
	return post, nil
}

func (m *Mongo) DeletePost(ctx context.Context, id primitive.ObjectID) (models.Post, error) {
	var post models.Post
	err := m.posts.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&post)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return models.Post{}, ErrNotFound
	}
	if err != nil {
		return models.Post{}, fmt.Errorf("delete post: %w", err)
	}
	return post, nil
}

func (m *Mongo) AddLike(ctx context.Context, postID, userID primitive.ObjectID) (bool, error) {
	res, err := m.posts.UpdateOne(ctx, likeFilter(postID, userID), likeUpdate(userID))
	if err != nil {
		return false, fmt.Errorf("add like: %w", err)
	}
	if res.MatchedCount == 1 {
		return true, nil
	}

	// Nothing matched: either the post is gone or the user is already in likedBy.
	n, err := m.posts.CountDocuments(ctx, bson.M{"_id": postID}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("check post: %w", err)
	}
	if n == 0 {
		return false, ErrNotFound
	}
	return false, nil
}

func (m *Mongo) AppendComment(ctx context.Context, postID, commentID primitive.ObjectID) error {
	res, err := m.posts.UpdateOne(ctx, bson.M{"_id": postID}, appendCommentUpdate(commentID))
	if err != nil {
		return fmt.Errorf("append comment: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func normalizePost(p *models.Post) {
	if p.Images == nil {
		p.Images = []string{}
	}
	if p.LikedBy == nil {
		p.LikedBy = []primitive.ObjectID{}
	}
	if p.CommentIDs == nil {
		p.CommentIDs = []primitive.ObjectID{}
	}
	p.LikeCount = len(p.LikedBy)
}

// likeFilter only matches the post while userID is absent from likedBy, so
// the update below can never double count.
func likeFilter(postID, userID primitive.ObjectID) bson.M {
	return bson.M{"_id": postID, "likedBy": bson.M{"$ne": userID}}
}

func likeUpdate(userID primitive.ObjectID) bson.M {
	return bson.M{
		"$push": bson.M{"likedBy": userID},
		"$inc":  bson.M{"likeCount": 1},
	}
}

func appendCommentUpdate(commentID primitive.ObjectID) bson.M {
	return bson.M{"$addToSet": bson.M{"commentIds": commentID}}
}

func updatePostDoc(content string, images *[]string, updatedAt int64) bson.M {
	set := bson.M{"content": content, "updatedAt": updatedAt}
	if images != nil {
		imgs := *images
		if imgs == nil {
			imgs = []string{}
		}
		set["images"] = imgs
	}
	return bson.M{"$set": set}
}

// ----- comments -----

func (m *Mongo) CreateComment(ctx context.Context, c *models.Comment) error {
	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	if _, err := m.comments.InsertOne(ctx, c); err != nil {
		return fmt.Errorf("insert comment: %w", err)
	}
	return nil
}

func (m *Mongo) DeleteComment(ctx context.Context, id primitive.ObjectID) error {
	if _, err := m.comments.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("delete comment: %w", err)
	}
	return nil
}

func (m *Mongo) GetCommentsByIDs(ctx context.Context, ids []primitive.ObjectID) ([]models.Comment, error) {
	if len(ids) == 0 {
		return []models.Comment{}, nil
	}
	return findAll[models.Comment](ctx, m.comments, bson.M{"_id": bson.M{"$in": ids}})
}

func (m *Mongo) FindUnlinkedComments(ctx context.Context, createdBefore int64, limit int) ([]models.Comment, error) {
	cursor, err := m.comments.Aggregate(ctx, unlinkedCommentsPipeline(m.posts.Name(), createdBefore, limit))
	if err != nil {
		return nil, fmt.Errorf("find unlinked comments: %w", err)
	}
	defer cursor.Close(ctx)

	out := []models.Comment{}
	if err := cursor.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode unlinked comments: %w", err)
	}
	return out, nil
}

// unlinkedCommentsPipeline joins each old comment to its post and keeps the
// ones the post does not reference. Comments of deleted posts are dropped by
// the unwind.
func unlinkedCommentsPipeline(postsCollection string, createdBefore int64, limit int) mongo.Pipeline {
	return mongo.Pipeline{
		{{Key: "$match", Value: bson.D{{Key: "createdAt", Value: bson.D{{Key: "$lt", Value: createdBefore}}}}}},
		{{Key: "$lookup", Value: bson.D{
			{Key: "from", Value: postsCollection},
			{Key: "localField", Value: "postId"},
			{Key: "foreignField", Value: "_id"},
			{Key: "as", Value: "post"},
		}}},
		{{Key: "$unwind", Value: "$post"}},
		{{Key: "$match", Value: bson.D{{Key: "$expr", Value: bson.D{{Key: "$not", Value: bson.A{
			bson.D{{Key: "$in", Value: bson.A{"$_id", bson.D{{Key: "$ifNull", Value: bson.A{"$post.commentIds", bson.A{}}}}}}},
		}}}}}}},
		{{Key: "$project", Value: bson.D{{Key: "post", Value: 0}}}},
		{{Key: "$limit", Value: limit}},
	}
}

// ----- push subscriptions -----

func (m *Mongo) UpsertPushSubscription(ctx context.Context, sub models.PushSubscription) error {
	_, err := m.pushSubs.UpdateOne(ctx,
		bson.M{"userId": sub.UserID},
		bson.M{
			"$set": bson.M{
				"endpoint":  sub.Endpoint,
				"p256dh":    sub.P256dh,
				"auth":      sub.Auth,
				"updatedAt": sub.UpdatedAt,
			},
			"$setOnInsert": bson.M{"_id": primitive.NewObjectID()},
		},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("upsert push subscription: %w", err)
	}
	return nil
}

func (m *Mongo) GetPushSubscription(ctx context.Context, userID primitive.ObjectID) (models.PushSubscription, error) {
	return findOne[models.PushSubscription](ctx, m.pushSubs, bson.M{"userId": userID})
}

func (m *Mongo) DeletePushSubscription(ctx context.Context, userID primitive.ObjectID) error {
	if _, err := m.pushSubs.DeleteOne(ctx, bson.M{"userId": userID}); err != nil {
		return fmt.Errorf("delete push subscription: %w", err)
	}
	return nil
}
