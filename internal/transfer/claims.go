package transfer

import "github.com/golang-jwt/jwt/v5"

// SessionClaims authenticates API requests for one workspace.
type SessionClaims struct {
	WorkspaceID string `json:"workspace_id"`
	jwt.RegisteredClaims
}

// StateClaims is the signed OAuth state parameter. It binds the callback to
// the workspace and platform that initiated the connection.
type StateClaims struct {
	WorkspaceID string `json:"workspace_id"`
	Platform    string `json:"platform"`
	jwt.RegisteredClaims
}
