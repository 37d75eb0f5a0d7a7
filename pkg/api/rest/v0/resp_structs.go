package v0_rest

import (
	"github.com/misstter/server/pkg/structs"
)

type ErrResp struct {
	Error  string            `json:"error"`
	Type   string            `json:"type"`
	Fields map[string]string `json:"fields,omitempty"`
}

type CreatePostResp struct {
	Post        structs.V0Post `json:"post"`
	DeleteToken string         `json:"deleteToken"`
}

type DonmaiResp struct {
	Donmai int64 `json:"donmai"`
}

type MessageResp struct {
	Message string `json:"message"`
}

type StatusResp struct {
	Storage       string `json:"storage"`
	Moderation    bool   `json:"moderation"`
	RetentionDays int    `json:"retentionDays"`
	MaxTextLength int    `json:"maxTextLength"`
	IPBlocked     bool   `json:"ipBlocked"`
}
