package store

import (
	"context"
	"sort"
	"sync"

	"socialfeed/models"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Memory is an in-process implementation of every store interface. A single
// mutex plays the role Mongo's per-document atomicity plays in production.
type Memory struct {
	mu       sync.Mutex
	users    map[primitive.ObjectID]models.User
	posts    map[primitive.ObjectID]models.Post
	comments map[primitive.ObjectID]models.Comment
	pushSubs map[primitive.ObjectID]models.PushSubscription
}

func NewMemory() *Memory {
	return &Memory{
		users:    make(map[primitive.ObjectID]models.User),
		posts:    make(map[primitive.ObjectID]models.Post),
		comments: make(map[primitive.ObjectID]models.Comment),
		pushSubs: make(map[primitive.ObjectID]models.PushSubscription),
	}
}

func cloneUser(u models.User) models.User {
	if u.PasswordResetTokenHash != nil {
		h := *u.PasswordResetTokenHash
		u.PasswordResetTokenHash = &h
	}
	if u.PasswordResetExpiresAt != nil {
		e := *u.PasswordResetExpiresAt
		u.PasswordResetExpiresAt = &e
	}
	return u
}

func clonePost(p models.Post) models.Post {
	p.Images = append([]string{}, p.Images...)
	p.LikedBy = append([]primitive.ObjectID{}, p.LikedBy...)
	p.CommentIDs = append([]primitive.ObjectID{}, p.CommentIDs...)
	return p
}

// ----- users -----

func (m *Memory) CreateUser(_ context.Context, u *models.User) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, existing := range m.users {
		if existing.Username == u.Username || existing.Email == u.Email {
			return ErrConflict
		}
	}
	if u.ID.IsZero() {
		u.ID = primitive.NewObjectID()
	}
	m.users[u.ID] = cloneUser(*u)
	return nil
}

func (m *Memory) findUser(match func(models.User) bool) (models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, u := range m.users {
		if match(u) {
			return cloneUser(u), nil
		}
	}
	return models.User{}, ErrNotFound
}

func (m *Memory) GetUserByID(_ context.Context, id primitive.ObjectID) (models.User, error) {
	return m.findUser(func(u models.User) bool { return u.ID == id })
}

func (m *Memory) GetUserByUsername(_ context.Context, username string) (models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Username == username })
}

func (m *Memory) GetUserByEmail(_ context.Context, email string) (models.User, error) {
	return m.findUser(func(u models.User) bool { return u.Email == email })
}

func (m *Memory) GetUserByResetTokenHash(_ context.Context, hash string) (models.User, error) {
	if hash == "" {
		return models.User{}, ErrNotFound
	}
	return m.findUser(func(u models.User) bool {
		return u.PasswordResetTokenHash != nil && *u.PasswordResetTokenHash == hash
	})
}

func (m *Memory) GetUsersByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.User{}
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, cloneUser(u))
		}
	}
	return out, nil
}

func (m *Memory) SetResetToken(_ context.Context, userID primitive.ObjectID, hash string, expiresAt int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok {
		return ErrNotFound
	}
	u.PasswordResetTokenHash = &hash
	u.PasswordResetExpiresAt = &expiresAt
	m.users[userID] = u
	return nil
}

func (m *Memory) ClearResetToken(_ context.Context, userID primitive.ObjectID, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok || u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != hash {
		return nil
	}
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
	m.users[userID] = u
	return nil
}

func (m *Memory) ConsumeResetToken(_ context.Context, userID primitive.ObjectID, hash, newPasswordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	u, ok := m.users[userID]
	if !ok || u.PasswordResetTokenHash == nil || *u.PasswordResetTokenHash != hash {
		return ErrNotFound
	}
	u.PasswordHash = newPasswordHash
	u.PasswordResetTokenHash = nil
	u.PasswordResetExpiresAt = nil
	m.users[userID] = u
	return nil
}

// ----- posts -----

func (m *Memory) CreatePost(_ context.Context, p *models.Post) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if p.ID.IsZero() {
		p.ID = primitive.NewObjectID()
	}
	normalizePost(p)
	m.posts[p.ID] = clonePost(*p)
	return nil
}

func (m *Memory) GetPost(_ context.Context, id primitive.ObjectID) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	return clonePost(p), nil
}

func (m *Memory) ListPostsByAuthor(_ context.Context, authorID primitive.ObjectID) ([]models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Post{}
	for _, p := range m.posts {
		if p.AuthorID == authorID {
			out = append(out, clonePost(p))
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt != out[j].CreatedAt {
			return out[i].CreatedAt > out[j].CreatedAt
		}
		return out[i].ID.Hex() > out[j].ID.Hex()
	})
	return out, nil
}

func (m *Memory) UpdatePost(_ context.Context, id primitive.ObjectID, content string, images *[]string, updatedAt int64) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	p.Content = content
	p.UpdatedAt = updatedAt
	if images != nil {
		p.Images = append([]string{}, (*images)...)
	}
	m.posts[id] = p
	return clonePost(p), nil
}

func (m *Memory) DeletePost(_ context.Context, id primitive.ObjectID) (models.Post, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[id]
	if !ok {
		return models.Post{}, ErrNotFound
	}
	delete(m.posts, id)
	return p, nil
}

func (m *Memory) AddLike(_ context.Context, postID, userID primitive.ObjectID) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[postID]
	if !ok {
		return false, ErrNotFound
	}
	if p.LikedByUser(userID) {
		return false, nil
	}
	p.LikedBy = append(p.LikedBy, userID)
	p.LikeCount++
	m.posts[postID] = p
	return true, nil
}

func (m *Memory) AppendComment(_ context.Context, postID, commentID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	p, ok := m.posts[postID]
	if !ok {
		return ErrNotFound
	}
	if p.HasComment(commentID) {
		return nil
	}
	p.CommentIDs = append(p.CommentIDs, commentID)
	m.posts[postID] = p
	return nil
}

// ----- comments -----

func (m *Memory) CreateComment(_ context.Context, c *models.Comment) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if c.ID.IsZero() {
		c.ID = primitive.NewObjectID()
	}
	m.comments[c.ID] = *c
	return nil
}

func (m *Memory) DeleteComment(_ context.Context, id primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.comments, id)
	return nil
}

func (m *Memory) GetCommentsByIDs(_ context.Context, ids []primitive.ObjectID) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Comment{}
	for _, id := range ids {
		if c, ok := m.comments[id]; ok {
			out = append(out, c)
		}
	}
	return out, nil
}

func (m *Memory) FindUnlinkedComments(_ context.Context, createdBefore int64, limit int) ([]models.Comment, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	out := []models.Comment{}
	for _, c := range m.comments {
		if c.CreatedAt >= createdBefore {
			continue
		}
		p, ok := m.posts[c.PostID]
		if !ok || p.HasComment(c.ID) {
			continue
		}
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt < out[j].CreatedAt })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

// ----- push subscriptions -----

func (m *Memory) UpsertPushSubscription(_ context.Context, sub models.PushSubscription) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if existing, ok := m.pushSubs[sub.UserID]; ok {
		sub.ID = existing.ID
	} else if sub.ID.IsZero() {
		sub.ID = primitive.NewObjectID()
	}
	m.pushSubs[sub.UserID] = sub
	return nil
}

func (m *Memory) GetPushSubscription(_ context.Context, userID primitive.ObjectID) (models.PushSubscription, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	sub, ok := m.pushSubs[userID]
	if !ok {
		return models.PushSubscription{}, ErrNotFound
	}
	return sub, nil
}

func (m *Memory) DeletePushSubscription(_ context.Context, userID primitive.ObjectID) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.pushSubs, userID)
	return nil
}

var (
	_ UserStore    = (*Memory)(nil)
	_ PostStore    = (*Memory)(nil)
	_ CommentStore = (*Memory)(nil)
	_ PushStore    = (*Memory)(nil)
	_ UserStore    = (*Mongo)(nil)
	_ PostStore    = (*Mongo)(nil)
	_ CommentStore = (*Mongo)(nil)
	_ PushStore    = (*Mongo)(nil)
)
