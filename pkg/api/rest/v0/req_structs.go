package v0_rest

// Length checks on the text itself happen in the posts service; the limit
// here only stops oversized bodies.
type CreatePostReq struct {
	Text string `json:"text" validate:"max=8192"`
}

type DeletePostReq struct {
	Token string `json:"token" validate:"max=256"`
}
