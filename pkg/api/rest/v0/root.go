package v0_rest

import (
	"net/http"

	"github.com/misstter/server/pkg/posts"
)

func (a *API) getStatus(w http.ResponseWriter, r *http.Request) {
	returnData(w, http.StatusOK, StatusResp{
		Storage:       a.storage,
		Moderation:    a.posts.ModerationEnabled(),
		RetentionDays: int(posts.RetentionWindow.Hours() / 24),
		MaxTextLength: a.posts.MaxTextLength(),
		IPBlocked:     a.isBlocked(r),
	})
}
