package application

import (
	"crypto/subtle"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"golang.org/x/crypto/blake2b"
)

var (
	ErrInvalidStreamToken = errors.New("application: invalid stream token")
	ErrStreamTokenExpired = errors.New("application: stream token expired")
)

// Stream roles issued to callers.
const (
	StreamRoleHost     = "host"
	StreamRoleAudience = "audience"
)

// StreamGrant is the signed payload of a stream token.
type StreamGrant struct {
	Channel   string `json:"ch"`
	UID       string `json:"uid"`
	Role      string `json:"role"`
	ExpiresAt int64  `json:"exp"`
}

// StreamTokens issues and verifies tokens for the streaming provider.
// A token is base64url(payload) "." base64url(blake2b-256 keyed MAC).
type StreamTokens struct {
	key []byte
	ttl time.Duration
}

// NewStreamTokens derives a MAC key from secret.
func NewStreamTokens(secret string, ttl time.Duration) (*StreamTokens, error) {
	if strings.TrimSpace(secret) == "" {
		return nil, errors.New("application: stream secret is required")
	}
	if ttl <= 0 {
		return nil, errors.New("application: stream token ttl must be positive")
	}
	// blake2b keys are capped at 64 bytes.
	sum := blake2b.Sum256([]byte(secret))
	return &StreamTokens{key: sum[:], ttl: ttl}, nil
}

// Issue signs a grant for uid on channel valid for the configured ttl from now.
func (s *StreamTokens) Issue(channel, uid, role string, now time.Time) (StreamCredentials, error) {
	expiresAt := now.Add(s.ttl).UTC().Truncate(time.Second)
	payload, err := json.Marshal(StreamGrant{Channel: channel, UID: uid, Role: role, ExpiresAt: expiresAt.Unix()})
	if err != nil {
		return StreamCredentials{}, fmt.Errorf("application: encode stream grant: %w", err)
	}
	mac, err := s.sign(payload)
	if err != nil {
		return StreamCredentials{}, err
	}

	token := base64.RawURLEncoding.EncodeToString(payload) + "." + base64.RawURLEncoding.EncodeToString(mac)
	return StreamCredentials{
		Channel:   channel,
		Token:     token,
		UID:       uid,
		Role:      role,
		ExpiresAt: expiresAt,
	}, nil
}

// Verify checks the MAC and expiry of token.
func (s *StreamTokens) Verify(token string, now time.Time) (StreamGrant, error) {
	encodedPayload, encodedMAC, ok := strings.Cut(token, ".")
	if !ok {
		return StreamGrant{}, ErrInvalidStreamToken
	}
	payload, err := base64.RawURLEncoding.DecodeString(encodedPayload)
	if err != nil {
		return StreamGrant{}, ErrInvalidStreamToken
	}
	mac, err := base64.RawURLEncoding.DecodeString(encodedMAC)
	if err != nil {
		return StreamGrant{}, ErrInvalidStreamToken
	}

	expected, err := s.sign(payload)
	if err != nil {
		return StreamGrant{}, err
	}
	if subtle.ConstantTimeCompare(mac, expected) != 1 {
		return StreamGrant{}, ErrInvalidStreamToken
	}

	var grant StreamGrant
	if err := json.Unmarshal(payload, &grant); err != nil {
		return StreamGrant{}, ErrInvalidStreamToken
	}
	if now.Unix() >= grant.ExpiresAt {
		return StreamGrant{}, ErrStreamTokenExpired
	}
	return grant, nil
}

func (s *StreamTokens) sign(payload []byte) ([]byte, error) {
	h, err := blake2b.New256(s.key)
	if err != nil {
		return nil, fmt.Errorf("application: init stream mac: %w", err)
	}
	h.Write(payload)
	return h.Sum(nil), nil
}
