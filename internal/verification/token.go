package verification

import (
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"backoffice/internal/apperr"
	"backoffice/internal/attendee"
)

// QRClaims is the payload of an attendee's QR code.
type QRClaims struct {
	Kind attendee.Kind `json:"kind"`
	jwt.RegisteredClaims
}

// Tokens issues and validates QR tokens signed with HS256.
type Tokens struct {
	key    []byte
	issuer string
	ttl    time.Duration
	now    func() time.Time
}

// NewTokens creates a token issuer. A zero ttl means tokens do not expire.
func NewTokens(key, issuer string, ttl time.Duration) *Tokens {
	return &Tokens{key: []byte(key), issuer: issuer, ttl: ttl, now: time.Now}
}

// Issue signs a QR token for ref and returns it with its expiry (zero when none).
func (t *Tokens) Issue(ref attendee.Ref) (string, time.Time, error) {
	ref, err := ref.Normalize()
	if err != nil {
		return "", time.Time{}, apperr.InvalidRequest.WithMessage(err.Error())
	}
	now := t.now()
	claims := QRClaims{
		Kind: ref.Kind,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:   t.issuer,
			Subject:  ref.ID,
			IssuedAt: jwt.NewNumericDate(now),
		},
	}
	var exp time.Time
	if t.ttl > 0 {
		exp = now.Add(t.ttl)
		claims.ExpiresAt = jwt.NewNumericDate(exp)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.key)
	if err != nil {
		return "", time.Time{}, fmt.Errorf("sign qr token: %w", err)
	}
	return signed, exp, nil
}

// Parse validates a QR token and returns the attendee it names.
func (t *Tokens) Parse(token string) (attendee.Ref, error) {
	if token == "" {
		return attendee.Ref{}, apperr.InvalidQRToken.WithMessage("QR token is missing")
	}
	opts := []jwt.ParserOption{
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithTimeFunc(t.now),
	}
	if t.issuer != "" {
		opts = append(opts, jwt.WithIssuer(t.issuer))
	}
	parsed, err := jwt.ParseWithClaims(token, &QRClaims{}, func(*jwt.Token) (interface{}, error) {
		return t.key, nil
	}, opts...)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return attendee.Ref{}, apperr.InvalidQRToken.WithMessage("QR token has expired")
		}
		return attendee.Ref{}, apperr.InvalidQRToken
	}
	claims, ok := parsed.Claims.(*QRClaims)
	if !ok || !parsed.Valid {
		return attendee.Ref{}, apperr.InvalidQRToken
	}
	ref, err := attendee.Ref{Kind: claims.Kind, ID: claims.Subject}.Normalize()
	if err != nil {
		return attendee.Ref{}, apperr.InvalidQRToken
	}
	return ref, nil
}
