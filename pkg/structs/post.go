package structs

import "time"

// V0Post is the public representation of a post. It never carries the
// delete token.
type V0Post struct {
	Id            string    `json:"id"`
	Text          string    `json:"text"`
	ReactionCount int64     `json:"reactionCount"`
	CreatedAt     time.Time `json:"createdAt"`
}
