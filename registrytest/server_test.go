package registrytest

import (
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testServer(t *testing.T) (*Server, *httptest.Server) {
	t.Helper()
	fake := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	srv := httptest.NewServer(fake.Router())
	t.Cleanup(srv.Close)
	return fake, srv
}

func request(t *testing.T, method, url string, headers map[string]string) *http.Response {
	t.Helper()
	req, err := http.NewRequest(method, url, nil)
	require.NoError(t, err)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func TestAuthRequired(t *testing.T) {
	fake, srv := testServer(t)
	fake.AddBlock("AB12", "Blocco uno", 1, 100)

	resp := request(t, http.MethodGet, srv.URL+"/vidimazione-formulari/v1.0?identificativo=x", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	resp = request(t, http.MethodGet, srv.URL+"/vidimazione-formulari/v1.0?identificativo=x",
		map[string]string{"Authorization": "Bearer token"})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestSignatureRequiredOnStateChanges(t *testing.T) {
	fake, srv := testServer(t)
	fake.AddBlock("AB12", "Blocco uno", 1, 100)

	auth := map[string]string{"Authorization": "Bearer token"}
	resp := request(t, http.MethodPost, srv.URL+"/vidimazione-formulari/v1.0/AB12", auth)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Zero(t, fake.SubmitAttempts())

	signed := map[string]string{
		"Authorization":      "Bearer token",
		"Agid-JWT-Signature": "token",
		"Digest":             "SHA-256=abc",
	}
	resp = request(t, http.MethodPost, srv.URL+"/vidimazione-formulari/v1.0/AB12", signed)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, 1, fake.SubmitAttempts())
}

func TestStatusEndpointUnauthenticated(t *testing.T) {
	_, srv := testServer(t)

	resp := request(t, http.MethodGet, srv.URL+"/vidimazione-formulari/v1.0/status", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestRegistrationDelayHidesNewDocuments(t *testing.T) {
	fake, srv := testServer(t)
	fake.AddBlock("AB12", "Blocco uno", 1, 100)
	fake.SetRegistrationDelay(150 * time.Millisecond)

	signed := map[string]string{
		"Authorization":      "Bearer token",
		"Agid-JWT-Signature": "token",
		"Digest":             "SHA-256=abc",
	}
	resp := request(t, http.MethodPost, srv.URL+"/vidimazione-formulari/v1.0/AB12", signed)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	auth := map[string]string{"Authorization": "Bearer token"}
	list := func() string {
		resp := request(t, http.MethodGet, srv.URL+"/vidimazione-formulari/v1.0/AB12", auth)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		body, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		return string(body)
	}

	assert.NotContains(t, list(), "numero_fir", "document must be hidden while registering")

	time.Sleep(200 * time.Millisecond)
	assert.Contains(t, list(), "FIR AB12/000001")
}
