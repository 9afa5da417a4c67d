// Package queue carries comment-link reconciliation jobs over RabbitMQ.
package queue

import (
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// CommentLinkQueue is the durable queue holding CommentLinkJob messages.
const CommentLinkQueue = "comments.link"

// CommentLinkJob asks a worker to add CommentID to the post's comment list.
type CommentLinkJob struct {
	PostID     string    `json:"post_id"`
	CommentID  string    `json:"comment_id"`
	EnqueuedAt time.Time `json:"enqueued_at"`
}

// IDs parses the job's hex ids.
func (j CommentLinkJob) IDs() (postID, commentID primitive.ObjectID, err error) {
	postID, err = primitive.ObjectIDFromHex(j.PostID)
	if err != nil {
		return postID, commentID, fmt.Errorf("post id: %w", err)
	}
	commentID, err = primitive.ObjectIDFromHex(j.CommentID)
	if err != nil {
		return postID, commentID, fmt.Errorf("comment id: %w", err)
	}
	return postID, commentID, nil
}
