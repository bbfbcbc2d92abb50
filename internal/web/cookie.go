// ABOUTME: JWT-backed session cookie for the chat UI
// ABOUTME: Uses HS256 signing with configurable secret

package web

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// Cookie errors
var (
	ErrInvalidCookie = errors.New("invalid session cookie")
	ErrExpiredCookie = errors.New("session cookie expired")
)

// webSession is everything the UI needs to carry between requests: the
// logged-in user, and once connected, the upstream credential and the IDs
// of the live session and its transcript thread.
type webSession struct {
	Email       string
	Token       string
	TokenExpiry time.Time
	SessionID   string
	ThreadID    string
}

// connected reports whether this session has an established chat connection
func (s *webSession) connected() bool {
	return s.SessionID != ""
}

// cookieCodec signs and verifies session cookies
type cookieCodec struct {
	secret []byte
}

func newCookieCodec(secret []byte) *cookieCodec {
	return &cookieCodec{secret: secret}
}

// Encode signs a session into a compact JWT with the given lifetime
func (c *cookieCodec) Encode(s *webSession, lifetime time.Duration) (string, error) {
	now := time.Now()
	claims := jwt.MapClaims{
		"sub": s.Email,
		"iat": now.Unix(),
		"exp": now.Add(lifetime).Unix(),
	}
	if s.Token != "" {
		claims["tok"] = s.Token
	}
	if !s.TokenExpiry.IsZero() {
		claims["tex"] = s.TokenExpiry.Unix()
	}
	if s.SessionID != "" {
		claims["sid"] = s.SessionID
	}
	if s.ThreadID != "" {
		claims["tid"] = s.ThreadID
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(c.secret)
	if err != nil {
		return "", fmt.Errorf("signing session cookie: %w", err)
	}
	return signed, nil
}

// Decode verifies a cookie value and extracts the session
func (c *cookieCodec) Decode(raw string) (*webSession, error) {
	token, err := jwt.Parse(raw, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return c.secret, nil
	})
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, ErrExpiredCookie
		}
		return nil, fmt.Errorf("%w: %v", ErrInvalidCookie, err)
	}
	if !token.Valid {
		return nil, ErrInvalidCookie
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok {
		return nil, ErrInvalidCookie
	}

	sub, ok := claims["sub"].(string)
	if !ok || sub == "" {
		return nil, fmt.Errorf("%w: missing sub", ErrInvalidCookie)
	}

	s := &webSession{Email: sub}
	if tok, ok := claims["tok"].(string); ok {
		s.Token = tok
	}
	if tex, ok := claims["tex"].(float64); ok {
		s.TokenExpiry = time.Unix(int64(tex), 0)
	}
	if sid, ok := claims["sid"].(string); ok {
		s.SessionID = sid
	}
	if tid, ok := claims["tid"].(string); ok {
		s.ThreadID = tid
	}
	return s, nil
}
