package v0_rest

import "errors"

var (
	ErrBadRequest         = errors.New("badRequest")         // 400
	ErrEmptyText          = errors.New("emptyText")          // 400
	ErrTextTooLong        = errors.New("textTooLong")        // 400
	ErrModerationRejected = errors.New("moderationRejected") // 400
	ErrUnauthorized       = errors.New("unauthorized")       // 401
	ErrForbidden          = errors.New("forbidden")          // 403
	ErrIPBlocked          = errors.New("ipBlocked")          // 403
	ErrNotFound           = errors.New("notFound")           // 404
	ErrRatelimited        = errors.New("tooManyRequests")    // 429
	ErrInternal           = errors.New("internal")           // 500
)

var errMessages = map[error]string{
	ErrBadRequest:         "The request body is invalid.",
	ErrEmptyText:          "Write something before posting.",
	ErrTextTooLong:        "The post is too long.",
	ErrModerationRejected: "This doesn't look like a failure story. Share a mistake or a bit of bad luck instead.",
	ErrUnauthorized:       "A delete token is required.",
	ErrForbidden:          "The delete token does not match this post.",
	ErrIPBlocked:          "Posting from your network is not allowed.",
	ErrNotFound:           "Post not found.",
	ErrRatelimited:        "You are posting too fast, try again later.",
	ErrInternal:           "Something went wrong on our side.",
}
