// Package interaction implements posts, likes and comments. Likes and
// comment links are applied by single conditional store updates, so each
// takes effect at most once no matter how many requests race.
package interaction

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"socialfeed/apperr"
	"socialfeed/models"
	"socialfeed/store"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

var (
	ErrPostNotFound = apperr.New(apperr.CodeNotFound, "post not found")
	ErrNoPosts      = apperr.New(apperr.CodeNotFound, "no posts found")
)

// LikeResult tells whether a like changed anything.
type LikeResult int

const (
	LikeApplied LikeResult = iota + 1
	LikeAlreadyApplied
)

// UserDirectory resolves user ids to public summaries.
type UserDirectory interface {
	FindSummaries(ctx context.Context, ids []primitive.ObjectID) ([]models.UserSummary, error)
}

// Reconciler accepts comment links that could not be written inline.
type Reconciler interface {
	EnqueueCommentLink(ctx context.Context, postID, commentID primitive.ObjectID) error
}

// DeleteResult is returned by DeletePost. Comments are not removed with
// their post; DanglingCommentIDs lists the ones left behind.
type DeleteResult struct {
	Post               models.Post
	DanglingCommentIDs []primitive.ObjectID
}

type Options struct {
	// StoreTimeout bounds every store call.
	StoreTimeout time.Duration
	// AppendAttempts is how many times a comment link is tried inline.
	AppendAttempts int
	AppendBackoff  time.Duration
	Reconciler     Reconciler
	Notifier       Notifier
	Now            func() time.Time
}

// Engine is the interaction service.
type Engine struct {
	posts    store.PostStore
	comments store.CommentStore
	users    UserDirectory

	reconciler     Reconciler
	notifier       Notifier
	timeout        time.Duration
	appendAttempts int
	appendBackoff  time.Duration
	now            func() time.Time
}

func NewEngine(posts store.PostStore, comments store.CommentStore, users UserDirectory, opts Options) *Engine {
	if opts.StoreTimeout == 0 {
		opts.StoreTimeout = 10 * time.Second
	}
	if opts.AppendAttempts < 1 {
		opts.AppendAttempts = 3
	}
	if opts.AppendBackoff == 0 {
		opts.AppendBackoff = 50 * time.Millisecond
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	return &Engine{
		posts:          posts,
		comments:       comments,
		users:          users,
		reconciler:     opts.Reconciler,
		notifier:       opts.Notifier,
		timeout:        opts.StoreTimeout,
		appendAttempts: opts.AppendAttempts,
		appendBackoff:  opts.AppendBackoff,
		now:            opts.Now,
	}
}

func (e *Engine) storeCtx(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, e.timeout)
}

func postErr(err error) error {
	if errors.Is(err, store.ErrNotFound) {
		return ErrPostNotFound
	}
	return apperr.Dependency(err)
}

func cleanImages(images []string) []string {
	out := make([]string, 0, len(images))
	for _, img := range images {
		if img = strings.TrimSpace(img); img != "" {
			out = append(out, img)
		}
	}
	return out
}

func (e *Engine) CreatePost(ctx context.Context, authorID primitive.ObjectID, content string, images []string) (models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Post{}, apperr.Validation("content is required")
	}

	now := e.now().Unix()
	post := models.Post{
		ID:         primitive.NewObjectID(),
		AuthorID:   authorID,
		Content:    content,
		Images:     cleanImages(images),
		LikedBy:    []primitive.ObjectID{},
		CommentIDs: []primitive.ObjectID{},
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.posts.CreatePost(ctx, &post); err != nil {
		return models.Post{}, apperr.Dependency(err)
	}
	return post, nil
}

// PostsByAuthor returns the author's posts, newest first, with likers and
// comments populated in reference order.
func (e *Engine) PostsByAuthor(ctx context.Context, authorID primitive.ObjectID) ([]models.PostView, error) {
	sctx, cancel := e.storeCtx(ctx)
	posts, err := e.posts.ListPostsByAuthor(sctx, authorID)
	cancel()
	if err != nil {
		return nil, apperr.Dependency(err)
	}
	if len(posts) == 0 {
		return nil, ErrNoPosts
	}

	var likerIDs, commentIDs []primitive.ObjectID
	for _, p := range posts {
		likerIDs = append(likerIDs, p.LikedBy...)
		commentIDs = append(commentIDs, p.CommentIDs...)
	}

	summaries, err := e.users.FindSummaries(ctx, uniqueIDs(likerIDs))
	if err != nil {
		return nil, err
	}
	byUser := make(map[primitive.ObjectID]models.UserSummary, len(summaries))
	for _, s := range summaries {
		byUser[s.ID] = s
	}

	byComment := map[primitive.ObjectID]models.Comment{}
	if len(commentIDs) > 0 {
		sctx, cancel := e.storeCtx(ctx)
		comments, err := e.comments.GetCommentsByIDs(sctx, commentIDs)
		cancel()
		if err != nil {
			return nil, apperr.Dependency(err)
		}
		for _, c := range comments {
			byComment[c.ID] = c
		}
	}

	views := make([]models.PostView, 0, len(posts))
	for _, p := range posts {
		view := models.PostView{
			ID:         p.ID,
			AuthorID:   p.AuthorID,
			Content:    p.Content,
			Images:     p.Images,
			LikeCount:  p.LikeCount,
			LikedBy:    make([]models.UserSummary, 0, len(p.LikedBy)),
			CommentIDs: p.CommentIDs,
			Comments:   make([]models.Comment, 0, len(p.CommentIDs)),
			CreatedAt:  p.CreatedAt,
			UpdatedAt:  p.UpdatedAt,
		}
		for _, id := range p.LikedBy {
			if s, ok := byUser[id]; ok {
				view.LikedBy = append(view.LikedBy, s)
			}
		}
		for _, id := range p.CommentIDs {
			if c, ok := byComment[id]; ok {
				view.Comments = append(view.Comments, c)
			}
		}
		views = append(views, view)
	}
	return views, nil
}

func uniqueIDs(ids []primitive.ObjectID) []primitive.ObjectID {
	seen := make(map[primitive.ObjectID]struct{}, len(ids))
	out := make([]primitive.ObjectID, 0, len(ids))
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}

// UpdatePost replaces content and, when images is non-nil, the images.
func (e *Engine) UpdatePost(ctx context.Context, postID primitive.ObjectID, content string, images *[]string) (models.Post, error) {
	content = strings.TrimSpace(content)
	if content == "" {
		return models.Post{}, apperr.Validation("content is required")
	}
	if images != nil {
		cleaned := cleanImages(*images)
		images = &cleaned
	}

	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	post, err := e.posts.UpdatePost(ctx, postID, content, images, e.now().Unix())
	if err != nil {
		return models.Post{}, postErr(err)
	}
	return post, nil
}

func (e *Engine) DeletePost(ctx context.Context, postID primitive.ObjectID) (DeleteResult, error) {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	post, err := e.posts.DeletePost(ctx, postID)
	if err != nil {
		return DeleteResult{}, postErr(err)
	}
	dangling := post.CommentIDs
	if dangling == nil {
		dangling = []primitive.ObjectID{}
	}
	return DeleteResult{Post: post, DanglingCommentIDs: dangling}, nil
}

// Like records userID as a liker of postID. Repeating a like is a no-op.
func (e *Engine) Like(ctx context.Context, postID, userID primitive.ObjectID) (LikeResult, error) {
	sctx, cancel := e.storeCtx(ctx)
	applied, err := e.posts.AddLike(sctx, postID, userID)
	cancel()
	if err != nil {
		return 0, postErr(err)
	}
	if !applied {
		return LikeAlreadyApplied, nil
	}

	e.notify(ctx, Event{Kind: EventLike, PostID: postID, ActorID: userID})
	return LikeApplied, nil
}

// Comment stores a comment and links it to its post. If the link cannot be
// written the comment is handed to the reconciler and the call fails; it
// never reports success for an unlinked comment.
func (e *Engine) Comment(ctx context.Context, postID, authorID primitive.ObjectID, body string) (models.Comment, error) {
	body = strings.TrimSpace(body)
	if body == "" {
		return models.Comment{}, apperr.Validation("comment body is required")
	}

	sctx, cancel := e.storeCtx(ctx)
	post, err := e.posts.GetPost(sctx, postID)
	cancel()
	if err != nil {
		return models.Comment{}, postErr(err)
	}

	comment := models.Comment{
		ID:        primitive.NewObjectID(),
		AuthorID:  authorID,
		PostID:    post.ID,
		Body:      body,
		CreatedAt: e.now().Unix(),
	}
	sctx, cancel = e.storeCtx(ctx)
	err = e.comments.CreateComment(sctx, &comment)
	cancel()
	if err != nil {
		return models.Comment{}, apperr.Dependency(err)
	}

	if err := e.appendWithRetry(ctx, post.ID, comment.ID); err != nil {
		if errors.Is(err, store.ErrNotFound) {
			e.discardComment(ctx, comment.ID, post.ID)
			return models.Comment{}, ErrPostNotFound
		}
		log.Printf("[Comment] linking comment %s to post %s failed: %v", comment.ID.Hex(), post.ID.Hex(), err)
		e.enqueueLink(ctx, post.ID, comment.ID)
		return models.Comment{}, apperr.Dependency(err)
	}

	e.notify(ctx, Event{Kind: EventComment, PostID: post.ID, ActorID: authorID, Text: body})
	return comment, nil
}

// discardComment removes a comment whose post vanished before it could be
// linked. The reconciler never links comments of deleted posts.
func (e *Engine) discardComment(ctx context.Context, commentID, postID primitive.ObjectID) {
	sctx, cancel := e.storeCtx(context.WithoutCancel(ctx))
	defer cancel()
	if err := e.comments.DeleteComment(sctx, commentID); err != nil {
		log.Printf("[Comment] post %s was deleted; removing comment %s failed: %v", postID.Hex(), commentID.Hex(), err)
	}
}

func (e *Engine) appendWithRetry(ctx context.Context, postID, commentID primitive.ObjectID) error {
	var err error
	for attempt := 1; attempt <= e.appendAttempts; attempt++ {
		sctx, cancel := e.storeCtx(ctx)
		err = e.posts.AppendComment(sctx, postID, commentID)
		cancel()
		if err == nil || errors.Is(err, store.ErrNotFound) {
			return err
		}
		if attempt == e.appendAttempts {
			break
		}
		select {
		case <-ctx.Done():
			return err
		case <-time.After(time.Duration(attempt) * e.appendBackoff):
		}
	}
	return err
}

func (e *Engine) enqueueLink(ctx context.Context, postID, commentID primitive.ObjectID) {
	if e.reconciler == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), e.timeout)
	defer cancel()
	if err := e.reconciler.EnqueueCommentLink(ctx, postID, commentID); err != nil {
		log.Printf("[Comment] enqueue link for comment %s failed, periodic sweep will pick it up: %v", commentID.Hex(), err)
	}
}

// LinkComment idempotently links commentID to postID.
func (e *Engine) LinkComment(ctx context.Context, postID, commentID primitive.ObjectID) error {
	ctx, cancel := e.storeCtx(ctx)
	defer cancel()
	if err := e.posts.AppendComment(ctx, postID, commentID); err != nil {
		return postErr(err)
	}
	return nil
}
