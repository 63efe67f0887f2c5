// Package blob stores uploaded objects and issues the time-limited write
// credentials clients use to upload them.
package blob

import (
	"context"
	"crypto/subtle"
	"encoding/hex"
	"errors"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/zeebo/blake3"
)

const signingContext = "scanhook 2026-01-01 upload credential v1"

var (
	ErrExpired      = errors.New("credential expired")
	ErrBadSignature = errors.New("invalid signature")
)

// Credential is a scoped, time-limited permission to write one object.
type Credential struct {
	URL       string    `json:"presigned_url"`
	Key       string    `json:"-"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Presigner issues write credentials for a single object key.
type Presigner interface {
	PresignPut(ctx context.Context, key string, ttl time.Duration) (Credential, error)
}

// Signer issues upload URLs served by this process and verifies them when
// the upload arrives. Signatures are BLAKE3 keyed hashes.
type Signer struct {
	key     [32]byte
	baseURL *url.URL
	bucket  string
	now     func() time.Time
}

// NewSigner derives the signing key from secret. publicURL is the externally
// reachable base URL of the upload endpoint.
func NewSigner(secret, publicURL, bucket string) (*Signer, error) {
	if secret == "" {
		return nil, errors.New("signing secret must not be empty")
	}
	u, err := url.Parse(publicURL)
	if err != nil {
		return nil, fmt.Errorf("parse public url: %w", err)
	}
	if u.Scheme == "" || u.Host == "" {
		return nil, fmt.Errorf("public url %q must be absolute", publicURL)
	}

	s := &Signer{baseURL: u, bucket: bucket, now: time.Now}
	blake3.DeriveKey(signingContext, []byte(secret), s.key[:])
	return s, nil
}

// PresignPut returns a URL that accepts a single PUT of key until ttl elapses.
func (s *Signer) PresignPut(_ context.Context, key string, ttl time.Duration) (Credential, error) {
	if err := ValidateKey(key); err != nil {
		return Credential{}, err
	}
	if ttl <= 0 {
		return Credential{}, fmt.Errorf("ttl must be positive, got %s", ttl)
	}

	expiresAt := s.now().Add(ttl).Truncate(time.Second).UTC()
	sig, err := s.sign(key, expiresAt.Unix())
	if err != nil {
		return Credential{}, err
	}

	u := s.baseURL.JoinPath("uploads", key)
	q := url.Values{}
	q.Set("expires", strconv.FormatInt(expiresAt.Unix(), 10))
	q.Set("signature", sig)
	u.RawQuery = q.Encode()

	return Credential{URL: u.String(), Key: key, ExpiresAt: expiresAt}, nil
}

// Verify checks an upload's expires and signature query parameters for key.
func (s *Signer) Verify(key, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil {
		return ErrBadSignature
	}
	want, err := s.sign(key, exp)
	if err != nil {
		return err
	}
	if subtle.ConstantTimeCompare([]byte(want), []byte(signature)) != 1 {
		return ErrBadSignature
	}
	if !s.now().Before(time.Unix(exp, 0)) {
		return ErrExpired
	}
	return nil
}

func (s *Signer) sign(key string, expires int64) (string, error) {
	h, err := blake3.NewKeyed(s.key[:])
	if err != nil {
		return "", fmt.Errorf("init keyed hash: %w", err)
	}
	fmt.Fprintf(h, "PUT\n%s\n%s\n%d", s.bucket, key, expires)
	return hex.EncodeToString(h.Sum(nil)), nil
}
