package models

// UploadClaims authenticate an upload to the storage sidecar when it runs
// with an upload secret.
type UploadClaims struct {
	Issuer    string `json:"iss,omitempty"`
	Subject   string `json:"sub"` // file name being uploaded
	IssuedAt  int64  `json:"iat"`
	ExpiresAt int64  `json:"exp"`
}
