package receipt

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const defaultURLLifetime = time.Hour

// URL token purposes.
const (
	purposeDownload = "download"
	purposeUpload   = "upload"
)

// URLSigner issues and verifies the signed, expiring tokens that stand in
// for presigned object URLs.
type URLSigner struct {
	secret     []byte
	lifetime   time.Duration
	timeSource TimeSource
}

// NewURLSigner creates a signer. A zero lifetime uses the one hour default.
func NewURLSigner(secret []byte, lifetime time.Duration) (*URLSigner, error) {
	return NewURLSignerWithDeps(secret, lifetime, &defaultTimeSource{})
}

// NewURLSignerWithDeps creates a signer with a custom time source for
// testing.
func NewURLSignerWithDeps(secret []byte, lifetime time.Duration, timeSrc TimeSource) (*URLSigner, error) {
	if len(secret) == 0 {
		return nil, fmt.Errorf("url signing secret is required")
	}
	if lifetime <= 0 {
		lifetime = defaultURLLifetime
	}
	return &URLSigner{secret: secret, lifetime: lifetime, timeSource: timeSrc}, nil
}

// urlClaims is the token payload. ObjectKey scopes a token to exactly one
// stored object; Purpose keeps download tokens unusable for uploads.
type urlClaims struct {
	ObjectKey   string `json:"object_key"`
	Purpose     string `json:"purpose"`
	ContentType string `json:"content_type,omitempty"`
	jwt.RegisteredClaims
}

// SignedURLGrant is a handler response: the token plus its validity window.
type SignedURLGrant struct {
	Token       string `json:"token"`
	ObjectKey   string `json:"object_key"`
	ExpiresIn   int    `json:"expires_in"`
	ContentType string `json:"content_type,omitempty"`
}

// SignDownload issues a download grant for one object key.
func (u *URLSigner) SignDownload(userID, objectKey string) (*SignedURLGrant, error) {
	return u.sign(userID, objectKey, purposeDownload, "")
}

// SignUpload issues an upload grant for one object key and content type.
func (u *URLSigner) SignUpload(userID, objectKey, contentType string) (*SignedURLGrant, error) {
	return u.sign(userID, objectKey, purposeUpload, contentType)
}

func (u *URLSigner) sign(userID, objectKey, purpose, contentType string) (*SignedURLGrant, error) {
	now := u.timeSource.Now()
	claims := urlClaims{
		ObjectKey:   objectKey,
		Purpose:     purpose,
		ContentType: contentType,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(u.lifetime)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(u.secret)
	if err != nil {
		return nil, fmt.Errorf("signing url token: %w", err)
	}
	return &SignedURLGrant{
		Token:       token,
		ObjectKey:   objectKey,
		ExpiresIn:   int(u.lifetime.Seconds()),
		ContentType: contentType,
	}, nil
}

// VerifyDownload checks a download token and returns the object key it
// grants.
func (u *URLSigner) VerifyDownload(token string) (string, error) {
	return u.verify(token, purposeDownload)
}

// VerifyUpload checks an upload token and returns the object key it grants.
func (u *URLSigner) VerifyUpload(token string) (string, error) {
	return u.verify(token, purposeUpload)
}

func (u *URLSigner) verify(token, purpose string) (string, error) {
	claims := &urlClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims,
		func(t *jwt.Token) (any, error) { return u.secret, nil },
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(u.timeSource.Now),
	)
	if err != nil {
		return "", fmt.Errorf("verifying url token: %w", err)
	}
	if !parsed.Valid || claims.Purpose != purpose || claims.ObjectKey == "" {
		return "", fmt.Errorf("url token is not valid for %s", purpose)
	}
	return claims.ObjectKey, nil
}
