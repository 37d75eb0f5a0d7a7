package posts

import (
	"time"

	"github.com/misstter/server/pkg/structs"
)

type Post struct {
	Id            string
	Text          string
	ReactionCount int64
	CreatedAt     time.Time
	DeleteToken   string
}

func (p *Post) V0() structs.V0Post {
	return structs.V0Post{
		Id:            p.Id,
		Text:          p.Text,
		ReactionCount: p.ReactionCount,
		CreatedAt:     p.CreatedAt,
	}
}
