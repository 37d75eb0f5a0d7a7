package posts

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/misstter/server/pkg/moderation"
	"github.com/misstter/server/pkg/postid"
	"github.com/sirupsen/logrus"
)

const (
	ListLimit            = 50
	DefaultMaxTextLength = 255
	RetentionWindow      = 7 * 24 * time.Hour
	deleteTokenBytes     = 16
)

// Moderator decides whether a candidate post may be published. Evaluate
// must not fail; outages are the moderator's problem.
type Moderator interface {
	Evaluate(ctx context.Context, text string) moderation.Verdict
}

type Options struct {
	Store         Store
	Moderator     Moderator // nil disables moderation
	Ids           *postid.Generator
	Log           logrus.FieldLogger
	Now           func() time.Time
	MaxTextLength int
}

type Service struct {
	store         Store
	moderator     Moderator
	ids           *postid.Generator
	log           logrus.FieldLogger
	now           func() time.Time
	maxTextLength int
}

func NewService(opts Options) *Service {
	s := &Service{
		store:         opts.Store,
		moderator:     opts.Moderator,
		ids:           opts.Ids,
		log:           opts.Log,
		now:           opts.Now,
		maxTextLength: opts.MaxTextLength,
	}
	if s.now == nil {
		s.now = time.Now
	}
	if s.log == nil {
		s.log = logrus.StandardLogger()
	}
	if s.maxTextLength <= 0 {
		s.maxTextLength = DefaultMaxTextLength
	}
	if s.ids == nil {
		s.ids, _ = postid.NewGenerator(0, s.now)
	}
	return s
}

func (s *Service) MaxTextLength() int {
	return s.maxTextLength
}

func (s *Service) ModerationEnabled() bool {
	return s.moderator != nil
}

// List returns the most recent posts after sweeping expired ones.
func (s *Service) List(ctx context.Context) ([]Post, error) {
	s.Sweep(ctx)
	return s.store.ListRecent(ctx, ListLimit)
}

// Create validates and stores a new post. The returned post carries its
// delete token, callers decide where it may be shown.
func (s *Service) Create(ctx context.Context, text string) (Post, error) {
	var post Post
	s.Sweep(ctx)

	// Validate text
	text = strings.TrimSpace(text)
	if text == "" {
		return post, ErrEmptyText
	}
	if utf8.RuneCountInString(text) > s.maxTextLength {
		return post, ErrTextTooLong
	}
	if s.moderator != nil && s.moderator.Evaluate(ctx, text) == moderation.Reject {
		return post, ErrModerationRejected
	}

	// Generate delete token
	token, err := newDeleteToken()
	if err != nil {
		return post, err
	}

	post = Post{
		Id:            s.ids.NextString(),
		Text:          text,
		ReactionCount: 0,
		CreatedAt:     s.now().UTC().Truncate(time.Millisecond),
		DeleteToken:   token,
	}
	if err := s.store.Insert(ctx, post); err != nil {
		return Post{}, err
	}

	s.log.WithField("post", post.Id).Info("post created")
	return post, nil
}

func (s *Service) AddReaction(ctx context.Context, id string) (int64, error) {
	return s.store.IncrementReaction(ctx, id)
}

func (s *Service) RemoveReaction(ctx context.Context, id string) (int64, error) {
	return s.store.DecrementReaction(ctx, id)
}

// Delete removes a post owned by the holder of token. A missing post and a
// wrong token are reported the same way.
func (s *Service) Delete(ctx context.Context, id string, token string) error {
	if token == "" {
		return ErrMissingToken
	}

	deleted, err := s.store.DeleteIfTokenMatches(ctx, id, token)
	if err != nil {
		return err
	}
	if !deleted {
		return ErrTokenMismatch
	}

	s.log.WithField("post", id).Info("post deleted by owner")
	return nil
}

// Clear deletes every post regardless of age.
func (s *Service) Clear(ctx context.Context) (int64, error) {
	return s.store.Clear(ctx)
}

func newDeleteToken() (string, error) {
	b := make([]byte, deleteTokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}
