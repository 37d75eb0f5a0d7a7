package posts

import "errors"

var (
	ErrPostNotFound       = errors.New("post not found")
	ErrEmptyText          = errors.New("post text is empty")
	ErrTextTooLong        = errors.New("post text is too long")
	ErrModerationRejected = errors.New("post rejected by moderation")
	ErrMissingToken       = errors.New("delete token missing")
	ErrTokenMismatch      = errors.New("delete token does not match")
)
