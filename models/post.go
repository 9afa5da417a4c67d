package models

import "go.mongodb.org/mongo-driver/bson/primitive"

// Post is a feed entry. LikeCount always equals len(LikedBy).
type Post struct {
	ID         primitive.ObjectID   `bson:"_id,omitempty" json:"id"`
	AuthorID   primitive.ObjectID   `bson:"authorId" json:"authorId"`
	Content    string               `bson:"content" json:"content"`
	Images     []string             `bson:"images" json:"images"`
	LikeCount  int                  `bson:"likeCount" json:"likeCount"`
	LikedBy    []primitive.ObjectID `bson:"likedBy" json:"likedBy"`
	CommentIDs []primitive.ObjectID `bson:"commentIds" json:"commentIds"`
	CreatedAt  int64                `bson:"createdAt" json:"createdAt"`
	UpdatedAt  int64                `bson:"updatedAt" json:"updatedAt"`
}

// LikedByUser reports whether userID is already in LikedBy.
func (p Post) LikedByUser(userID primitive.ObjectID) bool {
	for _, id := range p.LikedBy {
		if id == userID {
			return true
		}
	}
	return false
}

// HasComment reports whether commentID is linked to the post.
func (p Post) HasComment(commentID primitive.ObjectID) bool {
	for _, id := range p.CommentIDs {
		if id == commentID {
			return true
		}
	}
	return false
}

// PostView is a post with its likedBy and comment references populated.
type PostView struct {
	ID         primitive.ObjectID   `json:"id"`
	AuthorID   primitive.ObjectID   `json:"authorId"`
	Content    string               `json:"content"`
	Images     []string             `json:"images"`
	LikeCount  int                  `json:"likeCount"`
	LikedBy    []UserSummary        `json:"likedBy"`
	CommentIDs []primitive.ObjectID `json:"commentIds"`
	Comments   []Comment            `json:"comments"`
	CreatedAt  int64                `json:"createdAt"`
	UpdatedAt  int64                `json:"updatedAt"`
}
