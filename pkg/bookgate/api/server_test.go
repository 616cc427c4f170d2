package api_test

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/bookgate/bookgate/pkg/bookgate"
	"github.com/bookgate/bookgate/pkg/bookgate/api"
	"github.com/bookgate/bookgate/pkg/bookgate/repo/memory"
	memorystorage "github.com/bookgate/bookgate/pkg/bookgate/storage/memory"
)

const testSecret = "test-secret"

func newTestServer(t *testing.T) *httptest.Server {
	t.Helper()

	svc, err := bookgate.New(
		bookgate.WithRepository(memory.New()),
		bookgate.WithBlobStore("memory", memorystorage.New()),
	)
	require.NoError(t, err)

	server := httptest.NewServer(api.NewRouter(svc, testSecret, zap.NewNop()))
	t.Cleanup(server.Close)
	return server
}

// bearerToken signs an identity token the way the upstream auth
// service would.
func bearerToken(t *testing.T, userID uuid.UUID, role string, admin bool) string {
	t.Helper()

	tokenAuth := api.NewTokenAuth(testSecret)
	_, tokenString, err := tokenAuth.Encode(map[string]interface{}{
		"sub":   userID.String(),
		"role":  role,
		"admin": admin,
	})
	require.NoError(t, err)
	return "Bearer " + tokenString
}

func doJSON(t *testing.T, server *httptest.Server, method, path, token string, body interface{}) *http.Response {
	t.Helper()

	var reader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, server.URL+path, reader)
	require.NoError(t, err)
	if token != "" {
		req.Header.Set("Authorization", token)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

func decodeBody(t *testing.T, resp *http.Response, out interface{}) {
	t.Helper()
	defer resp.Body.Close()
	require.NoError(t, json.NewDecoder(resp.Body).Decode(out))
}

// createResourceMultipart posts a minimal resource with a document.
func createResourceMultipart(t *testing.T, server *httptest.Server, token, title, role string) uuid.UUID {
	t.Helper()

	var buf bytes.Buffer
	form := multipart.NewWriter(&buf)
	require.NoError(t, form.WriteField("title", title))
	require.NoError(t, form.WriteField("target_role", role))
	cover, err := form.CreateFormFile("cover", "cover.jpg")
	require.NoError(t, err)
	_, err = cover.Write([]byte("cover bytes"))
	require.NoError(t, err)
	doc, err := form.CreateFormFile("document", "book.pdf")
	require.NoError(t, err)
	_, err = doc.Write([]byte("book bytes"))
	require.NoError(t, err)
	require.NoError(t, form.Close())

	req, err := http.NewRequest(http.MethodPost, server.URL+"/api/admin/resources", &buf)
	require.NoError(t, err)
	req.Header.Set("Authorization", token)
	req.Header.Set("Content-Type", form.FormDataContentType())

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	var created struct {
		ID uuid.UUID `json:"id"`
	}
	decodeBody(t, resp, &created)
	return created.ID
}

func TestHealthIsOpen(t *testing.T) {
	server := newTestServer(t)

	resp, err := http.Get(server.URL + "/health")
	require.NoError(t, err)
	defer resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
}

func TestAuthentication(t *testing.T) {
	server := newTestServer(t)

	t.Run("missing token", func(t *testing.T) {
		resp := doJSON(t, server, http.MethodGet, "/api/library/entitlements", "", nil)
		defer resp.Body.Close()
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	})

	t.Run("non-admin on admin routes", func(t *testing.T) {
		token := bearerToken(t, uuid.New(), "Student", false)
		resp := doJSON(t, server, http.MethodGet, "/api/admin/resources", token, nil)

		var body api.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "admin_required", body.Code)
	})
}

func TestRedemptionFlow(t *testing.T) {
	server := newTestServer(t)
	adminToken := bearerToken(t, uuid.New(), "Teacher", true)
	readerID := uuid.New()
	readerToken := bearerToken(t, readerID, "Student", false)

	resourceID := createResourceMultipart(t, server, adminToken, "Phonics 1", "Student")

	resp := doJSON(t, server, http.MethodPost, "/api/admin/codes", adminToken, map[string]interface{}{
		"resource_id":     resourceID.String(),
		"code_value":      "AAAA-BBBB-CCCC",
		"max_activations": 1,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	resp.Body.Close()

	t.Run("check then redeem", func(t *testing.T) {
		resp := doJSON(t, server, http.MethodPost, "/api/library/codes/check", readerToken, map[string]string{
			"code_value": "aaaa-bbbb-cccc",
		})
		var check bookgate.CodeCheck
		decodeBody(t, resp, &check)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, 1, check.Remaining)

		resp = doJSON(t, server, http.MethodPost, "/api/library/codes/redeem", readerToken, map[string]string{
			"code_value": "AAAA-BBBB-CCCC",
		})
		var resource bookgate.Resource
		decodeBody(t, resp, &resource)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, resourceID, resource.ID)
	})

	t.Run("repeat redemption conflicts", func(t *testing.T) {
		resp := doJSON(t, server, http.MethodPost, "/api/library/codes/redeem", readerToken, map[string]string{
			"code_value": "AAAA-BBBB-CCCC",
		})
		var body api.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "already_redeemed", body.Code)
	})

	t.Run("entitlements list the resource", func(t *testing.T) {
		resp := doJSON(t, server, http.MethodGet, "/api/library/entitlements", readerToken, nil)
		var entitlements []bookgate.Entitlement
		decodeBody(t, resp, &entitlements)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		require.Len(t, entitlements, 1)
		assert.Equal(t, resourceID, entitlements[0].Resource.ID)
	})

	t.Run("entitled download", func(t *testing.T) {
		path := fmt.Sprintf("/api/library/resources/%s/files/book", resourceID)
		resp := doJSON(t, server, http.MethodGet, path, readerToken, nil)
		defer resp.Body.Close()

		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.Equal(t, "application/pdf", resp.Header.Get("Content-Type"))
		assert.True(t, strings.HasPrefix(resp.Header.Get("Content-Disposition"), "attachment"))

		data, err := io.ReadAll(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "book bytes", string(data))
	})

	t.Run("stranger cannot download", func(t *testing.T) {
		stranger := bearerToken(t, uuid.New(), "Student", false)
		path := fmt.Sprintf("/api/library/resources/%s/files/book", resourceID)
		resp := doJSON(t, server, http.MethodGet, path, stranger, nil)

		var body api.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, http.StatusForbidden, resp.StatusCode)
		assert.Equal(t, "not_entitled", body.Code)
	})
}

func TestAdminCodeLifecycle(t *testing.T) {
	server := newTestServer(t)
	adminToken := bearerToken(t, uuid.New(), "Teacher", true)

	resourceID := createResourceMultipart(t, server, adminToken, "Phonics 2", "Student")

	var code bookgate.ActivationCode
	resp := doJSON(t, server, http.MethodPost, "/api/admin/codes", adminToken, map[string]interface{}{
		"resource_id":     resourceID.String(),
		"code_value":      "DDDD-EEEE-FFFF",
		"max_activations": 3,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	decodeBody(t, resp, &code)

	t.Run("duplicate value conflicts", func(t *testing.T) {
		resp := doJSON(t, server, http.MethodPost, "/api/admin/codes", adminToken, map[string]interface{}{
			"resource_id":     resourceID.String(),
			"code_value":      "DDDD-EEEE-FFFF",
			"max_activations": 1,
		})
		var body api.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, http.StatusConflict, resp.StatusCode)
		assert.Equal(t, "code_exists", body.Code)
	})

	t.Run("deactivate", func(t *testing.T) {
		active := false
		resp := doJSON(t, server, http.MethodPatch, "/api/admin/codes/"+code.ID.String(), adminToken, map[string]interface{}{
			"is_active": &active,
		})
		var updated bookgate.ActivationCode
		decodeBody(t, resp, &updated)
		require.Equal(t, http.StatusOK, resp.StatusCode)
		assert.False(t, updated.IsActive)
	})

	t.Run("revoke", func(t *testing.T) {
		resp := doJSON(t, server, http.MethodDelete, "/api/admin/codes/"+code.ID.String(), adminToken, nil)
		resp.Body.Close()
		assert.Equal(t, http.StatusNoContent, resp.StatusCode)

		resp = doJSON(t, server, http.MethodPost, "/api/library/codes/check", adminToken, map[string]string{
			"code_value": "DDDD-EEEE-FFFF",
		})
		var body api.ErrorResponse
		decodeBody(t, resp, &body)
		assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	})
}
