package auth

import (
	"crypto"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/rsa"
	"crypto/sha256"
	"crypto/x509"
	"crypto/x509/pkix"
	"encoding/base64"
	"math/big"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ecotrace-srl/rentri-client/credential"
)

func testCredential(t *testing.T, key crypto.Signer) *credential.Credential {
	t.Helper()

	template := &x509.Certificate{
		SerialNumber: big.NewInt(1),
		Subject: pkix.Name{
			Organization: []string{"Ecotrace S.r.l."},
			SerialNumber: "CF:IT-01234567890",
		},
		NotBefore: time.Now().Add(-time.Hour),
		NotAfter:  time.Now().Add(time.Hour),
	}

	der, err := x509.CreateCertificate(rand.Reader, template, template, key.Public(), key)
	require.NoError(t, err)
	cert, err := x509.ParseCertificate(der)
	require.NoError(t, err)

	return &credential.Credential{
		Signer:      key,
		Certificate: cert,
		FiscalCode:  "01234567890",
		LegalName:   "Ecotrace S.r.l.",
		NotBefore:   cert.NotBefore,
		NotAfter:    cert.NotAfter,
	}
}

func parseToken(t *testing.T, token string, key crypto.Signer) jwt.MapClaims {
	t.Helper()

	claims := jwt.MapClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(tok *jwt.Token) (any, error) {
		return key.Public(), nil
	})
	require.NoError(t, err)
	require.True(t, parsed.Valid)
	return claims
}

func TestAuthTokenECDSA(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cred := testCredential(t, key)

	signer, err := NewTokenSigner(cred, "rentrigov.api")
	require.NoError(t, err)

	token, err := signer.AuthToken()
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "ES256", parsed.Header["alg"])

	x5c, ok := parsed.Header["x5c"].([]any)
	require.True(t, ok)
	require.Len(t, x5c, 1)
	assert.Equal(t, base64.StdEncoding.EncodeToString(cred.Certificate.Raw), x5c[0])

	claims := parseToken(t, token, key)
	assert.Equal(t, "rentrigov.api", claims["aud"])
	assert.Equal(t, "01234567890", claims["iss"])
	assert.Equal(t, "01234567890", claims["sub"])
	assert.True(t, strings.HasPrefix(claims["jti"].(string), "auth-"))

	iat := int64(claims["iat"].(float64))
	exp := int64(claims["exp"].(float64))
	assert.Equal(t, int64(TokenTTL.Seconds()), exp-iat)
	assert.Equal(t, claims["iat"], claims["nbf"])
}

func TestAuthTokenRSA(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	cred := testCredential(t, key)

	signer, err := NewTokenSigner(cred, "rentrigov.api")
	require.NoError(t, err)

	token, err := signer.AuthToken()
	require.NoError(t, err)

	parsed, _, err := jwt.NewParser().ParseUnverified(token, jwt.MapClaims{})
	require.NoError(t, err)
	assert.Equal(t, "RS256", parsed.Header["alg"])

	parseToken(t, token, key)
}

func TestSignatureToken(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	cred := testCredential(t, key)

	signer, err := NewTokenSigner(cred, "rentrigov.api")
	require.NoError(t, err)

	body := []byte(`{"quantita":3}`)
	token, digest, err := signer.SignatureToken(body, "application/json; charset=utf-8")
	require.NoError(t, err)

	sum := sha256.Sum256(body)
	expected := "SHA-256=" + base64.StdEncoding.EncodeToString(sum[:])
	assert.Equal(t, expected, digest)

	claims := parseToken(t, token, key)
	assert.True(t, strings.HasPrefix(claims["jti"].(string), "sig-"))

	signedHeaders, ok := claims["signed_headers"].([]any)
	require.True(t, ok)
	require.Len(t, signedHeaders, 2)
	assert.Equal(t, expected, signedHeaders[0].(map[string]any)["digest"])
	assert.Equal(t, "application/json; charset=utf-8", signedHeaders[1].(map[string]any)["content-type"])
}

func TestSignatureTokenEmptyBody(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	signer, err := NewTokenSigner(testCredential(t, key), "rentrigov.api")
	require.NoError(t, err)

	_, digest, err := signer.SignatureToken(nil, "application/json; charset=utf-8")
	require.NoError(t, err)

	sum := sha256.Sum256(nil)
	assert.Equal(t, "SHA-256="+base64.StdEncoding.EncodeToString(sum[:]), digest)
}

func TestNewTokenSignerRejectsExpiredCredential(t *testing.T) {
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)

	cred := testCredential(t, key)
	cred.NotAfter = time.Now().Add(-time.Minute)

	_, err = NewTokenSigner(cred, "rentrigov.api")
	assert.ErrorIs(t, err, credential.ErrCredentialExpired)
}
