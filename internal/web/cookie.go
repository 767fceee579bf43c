// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 labsite Contributors

package web

import (
	"net/http"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/samber/oops"

	"github.com/lrm2e/labsite/internal/auth"
)

const cookieIssuer = "labsite"

// CookieCodec writes and reads the session cookie. The cookie value is an
// HS256 JWT whose ID claim is the opaque session token. A valid signature
// says nothing about whether the session is still live.
type CookieCodec struct {
	name   string
	secret []byte
	secure bool
	now    func() time.Time
}

// CookieOption configures a CookieCodec.
type CookieOption func(*CookieCodec)

// WithSecureCookie marks the cookie Secure.
func WithSecureCookie(secure bool) CookieOption {
	return func(c *CookieCodec) {
		c.secure = secure
	}
}

// WithCookieClock sets the clock used to validate expiry.
func WithCookieClock(now func() time.Time) CookieOption {
	return func(c *CookieCodec) {
		if now != nil {
			c.now = now
		}
	}
}

// NewCookieCodec returns a codec for the cookie called name.
func NewCookieCodec(name string, secret []byte, opts ...CookieOption) (*CookieCodec, error) {
	if name == "" {
		return nil, oops.In("web").Code("COOKIE_INVALID_CONFIG").Errorf("cookie name is required")
	}
	if len(secret) == 0 {
		return nil, oops.In("web").Code("COOKIE_INVALID_CONFIG").Errorf("cookie secret is required")
	}
	c := &CookieCodec{
		name:   name,
		secret: append([]byte(nil), secret...),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name returns the cookie name.
func (c *CookieCodec) Name() string {
	return c.name
}

// Encode signs token with the given expiry.
func (c *CookieCodec) Encode(token string, expiresAt time.Time) (string, error) {
	claims := jwt.RegisteredClaims{
		ID:        token,
		Issuer:    cookieIssuer,
		IssuedAt:  jwt.NewNumericDate(c.now()),
		ExpiresAt: jwt.NewNumericDate(expiresAt),
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(c.secret)
	if err != nil {
		return "", oops.In("web").Code("COOKIE_SIGN_FAILED").Wrap(err)
	}
	return signed, nil
}

// Decode verifies value and returns the session token inside it.
func (c *CookieCodec) Decode(value string) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(value, claims, func(*jwt.Token) (any, error) {
		return c.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(cookieIssuer),
		jwt.WithExpirationRequired(),
		jwt.WithTimeFunc(c.now),
	)
	if err != nil {
		return "", oops.In("web").Code(auth.CodeUnauthenticated).Wrap(err)
	}
	if claims.ID == "" {
		return "", oops.In("web").Code(auth.CodeUnauthenticated).Errorf("cookie carries no session")
	}
	return claims.ID, nil
}

// Token returns the session token carried by r, or "" when the cookie is
// missing or fails verification.
func (c *CookieCodec) Token(r *http.Request) string {
	cookie, err := r.Cookie(c.name)
	if err != nil || cookie.Value == "" {
		return ""
	}
	token, err := c.Decode(cookie.Value)
	if err != nil {
		return ""
	}
	return token
}

// Set writes the session cookie for token.
func (c *CookieCodec) Set(w http.ResponseWriter, token string, expiresAt time.Time) error {
	value, err := c.Encode(token, expiresAt)
	if err != nil {
		return err
	}
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    value,
		Path:     "/",
		Expires:  expiresAt,
		MaxAge:   int(expiresAt.Sub(c.now()).Seconds()),
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
	return nil
}

// Clear expires the session cookie.
func (c *CookieCodec) Clear(w http.ResponseWriter) {
	http.SetCookie(w, &http.Cookie{
		Name:     c.name,
		Value:    "",
		Path:     "/",
		Expires:  time.Unix(0, 0),
		MaxAge:   -1,
		HttpOnly: true,
		Secure:   c.secure,
		SameSite: http.SameSiteLaxMode,
	})
}
