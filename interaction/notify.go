package interaction

import (
	"context"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

type EventKind string

const (
	EventLike    EventKind = "like"
	EventComment EventKind = "comment"
)

// Event describes an interaction on a post, addressed to its author.
type Event struct {
	Kind        EventKind
	PostID      primitive.ObjectID
	RecipientID primitive.ObjectID
	ActorID     primitive.ObjectID
	ActorName   string
	Text        string
}

// Notifier delivers events to post authors. Delivery is best effort.
type Notifier interface {
	Notify(ctx context.Context, ev Event) error
}

const notifyTimeout = 10 * time.Second

// notify fills in recipient and actor and hands the event to the notifier
// on its own goroutine. Self-interactions are not reported.
func (e *Engine) notify(ctx context.Context, ev Event) {
	if e.notifier == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), notifyTimeout)
	go func() {
		defer cancel()

		post, err := e.posts.GetPost(ctx, ev.PostID)
		if err != nil {
			log.Printf("[Notify] load post %s: %v", ev.PostID.Hex(), err)
			return
		}
		if post.AuthorID == ev.ActorID {
			return
		}
		ev.RecipientID = post.AuthorID

		if summaries, err := e.users.FindSummaries(ctx, []primitive.ObjectID{ev.ActorID}); err == nil && len(summaries) == 1 {
			ev.ActorName = summaries[0].Username
		}
		if err := e.notifier.Notify(ctx, ev); err != nil {
			log.Printf("[Notify] %s on post %s: %v", ev.Kind, ev.PostID.Hex(), err)
		}
	}()
}
