// Package auth builds the short-lived signed JWTs the registry requires:
// a bearer token on every call and a detached signature token (AGID
// JWT-Signature profile) on state-changing calls. The signing algorithm
// is derived from the credential's key type and is never configurable
// per call.
package auth

import (
	"crypto/ecdsa"
	"crypto/rsa"
	"crypto/sha256"
	"encoding/base64"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/ecotrace-srl/rentri-client/credential"
)

// TokenTTL is the validity of every issued token.
const TokenTTL = 5 * time.Minute

// ErrSigningKey is returned when a token cannot be produced from the
// credential's key handle.
var ErrSigningKey = errors.New("signing key unusable")

// TokenSigner issues signed authentication tokens for one credential and
// one target audience. It is a pure function of its inputs plus the
// current time and is safe for concurrent use.
type TokenSigner struct {
	cred     *credential.Credential
	audience string
	method   jwt.SigningMethod
	x5c      string

	now func() time.Time
}

// NewTokenSigner validates the credential and derives the signing
// algorithm: RS256 for RSA keys, ES256 for elliptic-curve keys.
func NewTokenSigner(cred *credential.Credential, audience string) (*TokenSigner, error) {
	if err := cred.Valid(); err != nil {
		return nil, err
	}

	var method jwt.SigningMethod
	switch cred.Signer.(type) {
	case *rsa.PrivateKey:
		method = jwt.SigningMethodRS256
	case *ecdsa.PrivateKey:
		method = jwt.SigningMethodES256
	default:
		return nil, fmt.Errorf("%w: %T", credential.ErrUnsupportedKey, cred.Signer)
	}

	return &TokenSigner{
		cred:     cred,
		audience: audience,
		method:   method,
		x5c:      base64.StdEncoding.EncodeToString(cred.Certificate.Raw),
		now:      time.Now,
	}, nil
}

// AuthToken produces the bearer token for the Authorization header.
func (s *TokenSigner) AuthToken() (string, error) {
	return s.sign("auth", nil)
}

// SignatureToken produces the detached signature token for state-changing
// calls. It returns the compact token and the Digest header value
// ("SHA-256=<base64 digest of body>").
func (s *TokenSigner) SignatureToken(body []byte, contentType string) (token, digest string, err error) {
	sum := sha256.Sum256(body)
	digest = "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])

	token, err = s.sign("sig", map[string]any{
		"signed_headers": []map[string]string{
			{"digest": digest},
			{"content-type": contentType},
		},
	})
	if err != nil {
		return "", "", err
	}
	return token, digest, nil
}

func (s *TokenSigner) sign(kind string, extra map[string]any) (string, error) {
	if err := s.cred.Valid(); err != nil {
		return "", err
	}

	now := s.now().UTC()
	claims := jwt.MapClaims{
		"aud": s.audience,
		"iss": s.cred.FiscalCode,
		"sub": s.cred.FiscalCode,
		"iat": now.Unix(),
		"nbf": now.Unix(),
		"exp": now.Add(TokenTTL).Unix(),
		"jti": fmt.Sprintf("%s-%s", kind, uuid.NewString()),
	}
	for k, v := range extra {
		claims[k] = v
	}

	tok := jwt.NewWithClaims(s.method, claims)
	tok.Header["x5c"] = []string{s.x5c}

	signed, err := tok.SignedString(s.cred.Signer)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSigningKey, err)
	}
	return signed, nil
}
