package supabase

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "test-anon-key"

// recorded is one request seen by the fake server
type recorded struct {
	Method string
	Path   string
	Query  map[string][]string
	Header http.Header
	Body   map[string]interface{}
}

type fakeServer struct {
	*httptest.Server
	mu       sync.Mutex
	requests []recorded
}

func newFakeServer(t *testing.T, handler http.HandlerFunc) *fakeServer {
	t.Helper()
	fs := &fakeServer{}
	fs.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rec := recorded{
			Method: r.Method,
			Path:   r.URL.Path,
			Query:  r.URL.Query(),
			Header: r.Header.Clone(),
		}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.Body)
		}
		fs.mu.Lock()
		fs.requests = append(fs.requests, rec)
		fs.mu.Unlock()
		handler(w, r)
	}))
	t.Cleanup(fs.Close)
	return fs
}

func (fs *fakeServer) last(t *testing.T) recorded {
	t.Helper()
	fs.mu.Lock()
	defer fs.mu.Unlock()
	require.NotEmpty(t, fs.requests)
	return fs.requests[len(fs.requests)-1]
}

func (fs *fakeServer) count() int {
	fs.mu.Lock()
	defer fs.mu.Unlock()
	return len(fs.requests)
}

func newTestClient(t *testing.T, url string) *Client {
	t.Helper()
	c, err := New(url, testKey, WithTimeout(5*time.Second))
	require.NoError(t, err)
	return c
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func signedToken(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte("test-secret"))
	require.NoError(t, err)
	return token
}

func TestNew_Validation(t *testing.T) {
	tests := []struct {
		name    string
		baseURL string
		apiKey  string
		errMsg  string
	}{
		{name: "missing url", apiKey: "k", errMsg: "baseURL is required"},
		{name: "missing key", baseURL: "https://abc.supabase.co", errMsg: "apiKey is required"},
		{name: "bad scheme", baseURL: "ftp://abc.supabase.co", apiKey: "k", errMsg: "scheme must be http or https"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := New(tt.baseURL, tt.apiKey)
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}

	c, err := New("https://abc.supabase.co/", "k")
	require.NoError(t, err)
	assert.Equal(t, "https://abc.supabase.co", c.BaseURL())
}

func TestWithTimeout_LeavesCustomClientAlone(t *testing.T) {
	custom := &http.Client{Timeout: 2 * time.Second}

	for _, opts := range [][]Option{
		{WithHTTPClient(custom), WithTimeout(time.Minute)},
		{WithTimeout(time.Minute), WithHTTPClient(custom)},
	} {
		c, err := New("https://abc.supabase.co", testKey, opts...)
		require.NoError(t, err)
		assert.Same(t, custom, c.httpClient)
		assert.Equal(t, 2*time.Second, custom.Timeout)
	}

	c, err := New("https://abc.supabase.co", testKey, WithTimeout(time.Minute))
	require.NoError(t, err)
	assert.Equal(t, time.Minute, c.httpClient.Timeout)

	c, err = New("https://abc.supabase.co", testKey)
	require.NoError(t, err)
	assert.Equal(t, DefaultTimeout, c.httpClient.Timeout)
}

func TestSelectOne(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{{"id": 1, "name": "keep_alive"}})
	})
	c := newTestClient(t, fs.URL)

	rows, err := c.SelectOne(context.Background(), "keep_alive")
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "keep_alive", rows[0]["name"])

	req := fs.last(t)
	assert.Equal(t, http.MethodGet, req.Method)
	assert.Equal(t, "/rest/v1/keep_alive", req.Path)
	assert.Equal(t, []string{"1"}, req.Query["limit"])
	assert.Equal(t, testKey, req.Header.Get("apikey"))
	assert.Equal(t, "Bearer "+testKey, req.Header.Get("Authorization"))
}

func TestFindOne(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, []map[string]interface{}{})
	})
	c := newTestClient(t, fs.URL)

	rows, err := c.FindOne(context.Background(), "users", "username", "alice")
	require.NoError(t, err)
	assert.Empty(t, rows)

	req := fs.last(t)
	assert.Equal(t, "/rest/v1/users", req.Path)
	assert.Equal(t, []string{"eq.alice"}, req.Query["username"])
	assert.Equal(t, []string{"1"}, req.Query["limit"])
}

func TestInsertAndDelete(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			writeJSON(w, http.StatusCreated, []map[string]interface{}{{"id": 42, "name": "keep_alive", "value": "v"}})
		case http.MethodDelete:
			w.WriteHeader(http.StatusNoContent)
		}
	})
	c := newTestClient(t, fs.URL)

	rows, err := c.Insert(context.Background(), "keep_alive", map[string]string{"name": "keep_alive", "value": "v"})
	require.NoError(t, err)
	require.Len(t, rows, 1)

	insertReq := fs.last(t)
	assert.Equal(t, "return=representation", insertReq.Header.Get("Prefer"))
	assert.Equal(t, "application/json", insertReq.Header.Get("Content-Type"))
	assert.Equal(t, "keep_alive", insertReq.Body["name"])

	id, ok := rows[0].ID()
	require.True(t, ok)

	require.NoError(t, c.DeleteByID(context.Background(), "keep_alive", id))
	deleteReq := fs.last(t)
	assert.Equal(t, http.MethodDelete, deleteReq.Method)
	assert.Equal(t, []string{"eq.42"}, deleteReq.Query["id"])
}

func TestDeleteByID_LargeIDs(t *testing.T) {
	tests := []struct {
		name string
		id   int64
		want string
	}{
		{"million", 1000000, "eq.1000000"},
		{"beyond float precision", 9007199254740993, "eq.9007199254740993"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				if r.Method == http.MethodPost {
					writeJSON(w, http.StatusCreated, []map[string]interface{}{{"id": tt.id, "name": "keep_alive"}})
					return
				}
				w.WriteHeader(http.StatusNoContent)
			})
			c := newTestClient(t, fs.URL)

			rows, err := c.Insert(context.Background(), "keep_alive", map[string]string{"name": "keep_alive"})
			require.NoError(t, err)
			require.Len(t, rows, 1)
			id, ok := rows[0].ID()
			require.True(t, ok)

			require.NoError(t, c.DeleteByID(context.Background(), "keep_alive", id))
			assert.Equal(t, []string{tt.want}, fs.last(t).Query["id"])
		})
	}
}

func TestFormatID(t *testing.T) {
	assert.Equal(t, "1000000", FormatID(float64(1000000)))
	assert.Equal(t, "12.5", FormatID(12.5))
	assert.Equal(t, "42", FormatID(json.Number("42")))
	assert.Equal(t, "7", FormatID(7))
	assert.Equal(t, "a1b2", FormatID("a1b2"))
}

func TestCount(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Range", "0-0/17")
		w.WriteHeader(http.StatusOK)
	})
	c := newTestClient(t, fs.URL)

	n, err := c.Count(context.Background(), "keep_alive")
	require.NoError(t, err)
	assert.Equal(t, int64(17), n)

	req := fs.last(t)
	assert.Equal(t, http.MethodHead, req.Method)
	assert.Equal(t, "count=exact", req.Header.Get("Prefer"))
}

func TestParseContentRange(t *testing.T) {
	tests := []struct {
		header    string
		expected  int64
		wantError bool
	}{
		{header: "0-24/3573", expected: 3573},
		{header: "*/0", expected: 0},
		{header: "0-9/*", wantError: true},
		{header: "", wantError: true},
		{header: "0-9/abc", wantError: true},
	}

	for _, tt := range tests {
		t.Run(tt.header, func(t *testing.T) {
			n, err := parseContentRange(tt.header)
			if tt.wantError {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, n)
		})
	}
}

func TestAPIError_Shapes(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		code    string
		message string
	}{
		{
			name:    "gotrue",
			status:  http.StatusBadRequest,
			body:    `{"code":400,"error_code":"invalid_credentials","msg":"Invalid login credentials"}`,
			code:    "invalid_credentials",
			message: "Invalid login credentials",
		},
		{
			name:    "gotrue legacy",
			status:  http.StatusBadRequest,
			body:    `{"error":"invalid_grant","error_description":"Invalid login credentials"}`,
			code:    "invalid_grant",
			message: "Invalid login credentials",
		},
		{
			name:    "postgrest",
			status:  http.StatusNotFound,
			body:    `{"code":"42P01","details":null,"hint":null,"message":"relation \"public.nope\" does not exist"}`,
			code:    "42P01",
			message: `relation "public.nope" does not exist`,
		},
		{
			name:    "plain text",
			status:  http.StatusBadGateway,
			body:    "upstream down",
			message: "upstream down",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = w.Write([]byte(tt.body))
			})
			c := newTestClient(t, fs.URL)

			_, err := c.SelectOne(context.Background(), "nope")
			require.Error(t, err)
			assert.True(t, IsStatus(err, tt.status))

			var apiErr *APIError
			require.ErrorAs(t, err, &apiErr)
			assert.Equal(t, "db.select", apiErr.Op)
			assert.Equal(t, tt.code, apiErr.Code)
			assert.Equal(t, tt.message, apiErr.Message)
		})
	}
}

func TestSignInWithEmail_StoresSession(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "user-1", "role": "authenticated", "exp": time.Now().Add(time.Hour).Unix()})

	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/token":
			writeJSON(w, http.StatusOK, map[string]interface{}{
				"access_token": token,
				"token_type":   "bearer",
				"expires_in":   3600,
				"user":         map[string]interface{}{"id": "user-1", "email": "a@example.com"},
			})
		case "/auth/v1/logout":
			w.WriteHeader(http.StatusNoContent)
		default:
			writeJSON(w, http.StatusOK, []interface{}{})
		}
	})
	c := newTestClient(t, fs.URL)

	session, err := c.SignInWithEmail(context.Background(), "a@example.com", "pw")
	require.NoError(t, err)
	require.True(t, session.Valid())
	assert.Equal(t, "a@example.com", session.User.Email)

	req := fs.last(t)
	assert.Equal(t, []string{"password"}, req.Query["grant_type"])
	assert.Equal(t, "a@example.com", req.Body["email"])
	assert.NotContains(t, req.Body, "phone")

	// Subsequent requests use the session token
	_, err = c.SelectOne(context.Background(), "keep_alive")
	require.NoError(t, err)
	assert.Equal(t, "Bearer "+token, fs.last(t).Header.Get("Authorization"))

	require.NoError(t, c.SignOut(context.Background()))
	logoutReq := fs.last(t)
	assert.Equal(t, "/auth/v1/logout", logoutReq.Path)
	assert.Equal(t, "Bearer "+token, logoutReq.Header.Get("Authorization"))
	assert.Nil(t, c.Session())
	assert.Equal(t, testKey, c.AccessToken())
}

func TestSignInWithPhone_InvalidCredentials(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusBadRequest, map[string]interface{}{"code": 400, "error_code": "invalid_credentials", "msg": "Invalid login credentials"})
	})
	c := newTestClient(t, fs.URL)

	session, err := c.SignInWithPhone(context.Background(), "+15550100", "pw")
	require.Error(t, err)
	assert.Nil(t, session)
	assert.True(t, IsStatus(err, http.StatusBadRequest))
	assert.Equal(t, "+15550100", fs.last(t).Body["phone"])
	assert.Nil(t, c.Session())
}

func TestSignOut_WithoutSessionMakesNoRequest(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})
	c := newTestClient(t, fs.URL)

	require.NoError(t, c.SignOut(context.Background()))
	assert.Equal(t, 0, fs.count())
}

func TestSignOut_ServerErrorStillDropsSession(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/auth/v1/signup":
			writeJSON(w, http.StatusOK, map[string]interface{}{"access_token": "opaque-token", "user": map[string]interface{}{"id": "anon-1", "is_anonymous": true}})
		default:
			writeJSON(w, http.StatusInternalServerError, map[string]string{"msg": "boom"})
		}
	})
	c := newTestClient(t, fs.URL)

	session, err := c.SignInAnonymously(context.Background())
	require.NoError(t, err)
	assert.True(t, session.User.IsAnonymous)
	assert.Equal(t, "opaque-token", c.AccessToken())

	err = c.SignOut(context.Background())
	require.Error(t, err)
	assert.Nil(t, c.Session())
}

func TestSignInAnonymously_Disabled(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusUnprocessableEntity, map[string]interface{}{"code": 422, "error_code": "anonymous_provider_disabled", "msg": "Anonymous sign-ins are disabled"})
	})
	c := newTestClient(t, fs.URL)

	_, err := c.SignInAnonymously(context.Background())
	require.Error(t, err)
	assert.True(t, IsStatus(err, http.StatusUnprocessableEntity))
	assert.Contains(t, err.Error(), "anonymous_provider_disabled")
	assert.Equal(t, "/auth/v1/signup", fs.last(t).Path)
}

func TestResetPasswordForEmail(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{})
	})
	c := newTestClient(t, fs.URL)

	require.NoError(t, c.ResetPasswordForEmail(context.Background(), "nobody@example.com"))
	req := fs.last(t)
	assert.Equal(t, "/auth/v1/recover", req.Path)
	assert.Equal(t, "nobody@example.com", req.Body["email"])
}

func TestStorage(t *testing.T) {
	fs := newFakeServer(t, func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/storage/v1/bucket":
			writeJSON(w, http.StatusOK, []map[string]interface{}{{"id": "avatars", "name": "avatars", "public": true}})
		case "/storage/v1/object/list/avatars":
			writeJSON(w, http.StatusOK, []map[string]interface{}{{"name": "a.png", "id": "obj-1"}, {"name": "folder", "id": nil}})
		default:
			http.NotFound(w, r)
		}
	})
	c := newTestClient(t, fs.URL)

	buckets, err := c.ListBuckets(context.Background())
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "avatars", buckets[0].Name)

	objects, err := c.ListObjects(context.Background(), "avatars", 5)
	require.NoError(t, err)
	require.Len(t, objects, 2)
	assert.NotNil(t, objects[0].ID)
	assert.Nil(t, objects[1].ID)

	req := fs.last(t)
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, float64(5), req.Body["limit"])
	assert.Equal(t, "", req.Body["prefix"])
}

func TestRealtimeURL(t *testing.T) {
	tests := []struct {
		baseURL  string
		expected string
	}{
		{baseURL: "https://abc.supabase.co", expected: "wss://abc.supabase.co/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
		{baseURL: "http://127.0.0.1:54321/", expected: "ws://127.0.0.1:54321/realtime/v1/websocket?apikey=k&vsn=1.0.0"},
	}

	for _, tt := range tests {
		t.Run(tt.baseURL, func(t *testing.T) {
			c, err := New(tt.baseURL, "k")
			require.NoError(t, err)
			assert.Equal(t, tt.expected, c.RealtimeURL())
		})
	}
}

func TestParseClaimsAndKeyRole(t *testing.T) {
	exp := time.Now().Add(time.Hour).Truncate(time.Second)
	token := signedToken(t, jwt.MapClaims{"sub": "user-9", "role": "service_role", "exp": exp.Unix()})

	claims, err := ParseClaims(token)
	require.NoError(t, err)
	assert.Equal(t, "user-9", claims.Subject)
	assert.Equal(t, "service_role", claims.Role)
	assert.True(t, exp.Equal(claims.ExpiresAt))

	assert.Equal(t, "service_role", KeyRole(token))
	assert.Equal(t, "", KeyRole("sb_publishable_abc123"))
}

func TestSessionDescribe(t *testing.T) {
	token := signedToken(t, jwt.MapClaims{"sub": "anon-7", "role": "authenticated"})

	tests := []struct {
		name     string
		session  *Session
		contains string
	}{
		{name: "nil session", session: nil, contains: "no session"},
		{name: "email user", session: &Session{AccessToken: token, User: &User{Email: "a@example.com"}}, contains: "session for a@example.com (role authenticated)"},
		{name: "subject fallback", session: &Session{AccessToken: token}, contains: "session for anon-7"},
		{name: "opaque token", session: &Session{AccessToken: "opaque", User: &User{ID: "u1"}}, contains: "session for u1"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Contains(t, tt.session.Describe(), tt.contains)
		})
	}
}
