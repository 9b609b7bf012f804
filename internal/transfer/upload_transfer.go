package transfer

type UploadRequest struct {
	SocialAccountID int64  `json:"social_account_id"`
	Platform        string `json:"platform"`
	Title           string `json:"title"`
	Description     string `json:"description"`
	Visibility      string `json:"visibility"`
	ContentType     string `json:"content_type"`
}

// UploadSession is the client's handle for one staged upload: where to push
// the bytes and which post to publish afterwards.
type UploadSession struct {
	URL    string `json:"url"`
	PostID string `json:"post_id"`
}

type PublishRequest struct {
	PostID   string `json:"post_id"`
	Platform string `json:"platform"`
}
