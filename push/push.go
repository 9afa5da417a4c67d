// Package push sends Web Push notifications to post authors.
package push

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"socialfeed/apperr"
	"socialfeed/config"
	"socialfeed/interaction"
	"socialfeed/models"
	"socialfeed/store"

	"github.com/SherClockHolmes/webpush-go"
	"go.mongodb.org/mongo-driver/bson/primitive"
)

type sendFunc func(ctx context.Context, payload []byte, sub *webpush.Subscription, opts *webpush.Options) (*http.Response, error)

// Service stores subscriptions and delivers notifications to them.
type Service struct {
	subs       store.PushStore
	publicKey  string
	privateKey string
	subscriber string
	send       sendFunc
	now        func() time.Time
}

func NewService(subs store.PushStore, cfg config.VAPIDConfig) *Service {
	return &Service{
		subs:       subs,
		publicKey:  cfg.PublicKey,
		privateKey: cfg.PrivateKey,
		subscriber: cfg.Subscriber,
		send:       webpush.SendNotificationWithContext,
		now:        time.Now,
	}
}

func (s *Service) PublicKey() string {
	return s.publicKey
}

// Subscribe saves the browser subscription for userID, replacing any
// earlier one.
func (s *Service) Subscribe(ctx context.Context, userID primitive.ObjectID, endpoint, p256dh, auth string) error {
	if !strings.HasPrefix(endpoint, "https://") {
		return apperr.Validation("endpoint must be an https url")
	}
	if p256dh == "" || auth == "" {
		return apperr.Validation("subscription keys are required")
	}

	sub := models.PushSubscription{
		UserID:    userID,
		Endpoint:  endpoint,
		P256dh:    p256dh,
		Auth:      auth,
		UpdatedAt: s.now().Unix(),
	}
	if err := s.subs.UpsertPushSubscription(ctx, sub); err != nil {
		return apperr.Dependency(err)
	}
	log.Printf("Push subscription saved for user: %s", userID.Hex())
	return nil
}

// Notify implements interaction.Notifier. Users without a subscription are
// skipped; subscriptions the push service reports gone are deleted.
func (s *Service) Notify(ctx context.Context, ev interaction.Event) error {
	sub, err := s.subs.GetPushSubscription(ctx, ev.RecipientID)
	if errors.Is(err, store.ErrNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("find subscription: %w", err)
	}

	payload, err := json.Marshal(payloadFor(ev, s.now()))
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := s.send(ctx, payload, &webpush.Subscription{
		Endpoint: sub.Endpoint,
		Keys:     webpush.Keys{P256dh: sub.P256dh, Auth: sub.Auth},
	}, &webpush.Options{
		Subscriber:      s.subscriber,
		VAPIDPublicKey:  s.publicKey,
		VAPIDPrivateKey: s.privateKey,
		TTL:             30,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound:
		log.Printf("Push subscription expired for user %s, deleting...", ev.RecipientID.Hex())
		if err := s.subs.DeletePushSubscription(ctx, ev.RecipientID); err != nil {
			return fmt.Errorf("delete expired subscription: %w", err)
		}
		return nil
	case resp.StatusCode >= 400:
		return fmt.Errorf("push service answered %d", resp.StatusCode)
	}
	return nil
}

type payload struct {
	Title string      `json:"title"`
	Body  string      `json:"body"`
	Data  payloadData `json:"data"`
}

type payloadData struct {
	PostID    string `json:"postId"`
	Timestamp int64  `json:"timestamp"`
}

func payloadFor(ev interaction.Event, now time.Time) payload {
	name := ev.ActorName
	if name == "" {
		name = "Someone"
	}

	p := payload{Data: payloadData{PostID: ev.PostID.Hex(), Timestamp: now.Unix()}}
	switch ev.Kind {
	case interaction.EventLike:
		p.Title = "New like"
		p.Body = name + " liked your post"
	case interaction.EventComment:
		p.Title = name + " commented on your post"
		p.Body = truncate(ev.Text, 100)
	default:
		p.Title = "New activity on your post"
	}
	return p
}

// truncate shortens s to at most n runes.
func truncate(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	return string([]rune(s)[:n]) + "..."
}
