package v0_rest

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/getsentry/sentry-go"
	"github.com/go-chi/chi/v5"
	"github.com/misstter/server/pkg/posts"
	"github.com/misstter/server/pkg/structs"
)

const createPostBucket = "post"

func (a *API) getPosts(w http.ResponseWriter, r *http.Request) {
	list, err := a.posts.List(r.Context())
	if err != nil {
		a.internalErr(w, r, err)
		return
	}

	v0posts := make([]structs.V0Post, 0, len(list))
	for _, p := range list {
		v0posts = append(v0posts, p.V0())
	}

	returnData(w, http.StatusOK, v0posts)
}

func (a *API) createPost(w http.ResponseWriter, r *http.Request) {
	// Check ratelimit
	if a.limiter != nil {
		limited, err := a.limiter.Limited(r.Context(), createPostBucket, "ip", r.RemoteAddr)
		if err != nil {
			a.log.WithError(err).Warn("ratelimit lookup failed")
		} else if limited {
			returnErr(w, http.StatusTooManyRequests, ErrRatelimited, nil)
			return
		}
	}

	// Decode body
	var body CreatePostReq
	if !decodeBody(w, r, &body) {
		return
	}

	// Create post
	post, err := a.posts.Create(r.Context(), body.Text)
	if err != nil {
		a.serviceErr(w, r, err)
		return
	}

	// Ratelimit
	if a.limiter != nil {
		if err := a.limiter.Hit(r.Context(), w, createPostBucket, "ip", r.RemoteAddr); err != nil {
			a.log.WithError(err).Warn("ratelimit update failed")
		}
	}

	returnData(w, http.StatusCreated, CreatePostResp{
		Post:        post.V0(),
		DeleteToken: post.DeleteToken,
	})
}

func (a *API) addDonmai(w http.ResponseWriter, r *http.Request) {
	count, err := a.posts.AddReaction(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		a.serviceErr(w, r, err)
		return
	}

	returnData(w, http.StatusOK, DonmaiResp{Donmai: count})
}

func (a *API) removeDonmai(w http.ResponseWriter, r *http.Request) {
	count, err := a.posts.RemoveReaction(r.Context(), chi.URLParam(r, "postId"))
	if err != nil {
		a.serviceErr(w, r, err)
		return
	}

	returnData(w, http.StatusOK, DonmaiResp{Donmai: count})
}

func (a *API) deletePost(w http.ResponseWriter, r *http.Request) {
	var body DeletePostReq
	if !decodeBody(w, r, &body) {
		return
	}

	if err := a.posts.Delete(r.Context(), chi.URLParam(r, "postId"), body.Token); err != nil {
		a.serviceErr(w, r, err)
		return
	}

	returnData(w, http.StatusOK, MessageResp{Message: "Post deleted."})
}

// serviceErr maps posts service errors to responses. Anything unknown is a
// storage failure.
func (a *API) serviceErr(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, posts.ErrEmptyText):
		returnErr(w, http.StatusBadRequest, ErrEmptyText, nil)
	case errors.Is(err, posts.ErrTextTooLong):
		msg := fmt.Sprintf("Posts can be at most %d characters long.", a.posts.MaxTextLength())
		returnErrMsg(w, http.StatusBadRequest, ErrTextTooLong, msg, nil)
	case errors.Is(err, posts.ErrModerationRejected):
		returnErr(w, http.StatusBadRequest, ErrModerationRejected, nil)
	case errors.Is(err, posts.ErrPostNotFound):
		returnErr(w, http.StatusNotFound, ErrNotFound, nil)
	case errors.Is(err, posts.ErrMissingToken):
		returnErr(w, http.StatusUnauthorized, ErrUnauthorized, nil)
	case errors.Is(err, posts.ErrTokenMismatch):
		returnErr(w, http.StatusForbidden, ErrForbidden, nil)
	default:
		a.internalErr(w, r, err)
	}
}

func (a *API) internalErr(w http.ResponseWriter, r *http.Request, err error) {
	a.log.WithError(err).WithField("path", r.URL.Path).Error("request failed")
	if hub := sentry.GetHubFromContext(r.Context()); hub != nil {
		hub.CaptureException(err)
	} else {
		sentry.CaptureException(err)
	}
	returnErr(w, http.StatusInternalServerError, ErrInternal, nil)
}
