package http_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	crmhttp "github.com/fivetwenty-io/crm-client/internal/http"
	"github.com/fivetwenty-io/crm-client/pkg/crm"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// MockTokenManager for testing.
type MockTokenManager struct {
	token string
	err   error
}

func (m *MockTokenManager) GetToken(ctx context.Context) (string, error) {
	return m.token, m.err
}

// MockLogger for testing.
type MockLogger struct {
	mutex sync.Mutex
	logs  []map[string]interface{}
}

func (l *MockLogger) add(level, msg string, fields map[string]interface{}) {
	l.mutex.Lock()
	defer l.mutex.Unlock()

	l.logs = append(l.logs, map[string]interface{}{"level": level, "msg": msg, "fields": fields})
}

func (l *MockLogger) Debug(msg string, fields map[string]interface{}) { l.add("debug", msg, fields) }
func (l *MockLogger) Info(msg string, fields map[string]interface{})  { l.add("info", msg, fields) }
func (l *MockLogger) Warn(msg string, fields map[string]interface{})  { l.add("warn", msg, fields) }
func (l *MockLogger) Error(msg string, fields map[string]interface{}) { l.add("error", msg, fields) }

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Do(t *testing.T) {
	t.Parallel()
	t.Run("successful request", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/services/data/v59.0/sobjects/Account/001000000000001", request.URL.Path)
			assert.Equal(t, "GET", request.Method)
			assert.Equal(t, "Bearer test-token", request.Header.Get("Authorization"))
			assert.Equal(t, "application/json", request.Header.Get("Accept"))

			_, err := uuid.Parse(request.Header.Get(crmhttp.RequestIDHeader))
			assert.NoError(t, err)

			response := map[string]interface{}{"attributes": map[string]string{"type": "Account"}, "Name": "Acme"}
			_ = json.NewEncoder(writer).Encode(response)
		}))
		defer server.Close()

		tokenManager := &MockTokenManager{token: "test-token"}
		client := crmhttp.NewClient(server.URL+"/services/data/v59.0", tokenManager)

		req := &crmhttp.Request{
			Method: "GET",
			Path:   "/sobjects/Account/001000000000001",
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)

		record, err := crm.DecodeRecordJSON(resp.Body)
		require.NoError(t, err)
		assert.Equal(t, "Acme", record.FieldString("Name"))
	})

	t.Run("request with query parameters", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/query", request.URL.Path)
			assert.Equal(t, "SELECT Id FROM Account", request.URL.Query().Get("q"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil)

		req := &crmhttp.Request{
			Method: "GET",
			Path:   "/query",
			Query:  url.Values{"q": []string{"SELECT Id FROM Account"}},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("cursor path is not prefixed twice", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "/services/data/v59.0/query/01gD0000002HU6KIAW-2000", request.URL.Path)
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL+"/services/data/v59.0/", nil)

		_, err := client.Get(context.Background(), "/services/data/v59.0/query/01gD0000002HU6KIAW-2000", nil)
		require.NoError(t, err)
	})

	t.Run("request with body", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "POST", request.Method)
			assert.Equal(t, "application/json", request.Header.Get("Content-Type"))

			var body map[string]string

			_ = json.NewDecoder(request.Body).Decode(&body)
			assert.Equal(t, "Acme", body["Name"])

			writer.WriteHeader(http.StatusCreated)
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil)

		req := &crmhttp.Request{
			Method: "POST",
			Path:   "/sobjects/Account",
			Body:   map[string]string{"Name": "Acme"},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 201, resp.StatusCode)
	})

	t.Run("error response", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusUnauthorized)
			_, _ = writer.Write([]byte(`[{"message": "Session expired or invalid", "errorCode": "INVALID_SESSION_ID"}]`))
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil)

		resp, err := client.Get(context.Background(), "/sobjects/Account/001000000000001", nil)
		require.Error(t, err)
		assert.Equal(t, 401, resp.StatusCode)

		var remoteErr *crm.RemoteAPIError
		require.True(t, errors.As(err, &remoteErr))
		assert.Len(t, remoteErr.Errors, 1)
		assert.Equal(t, crm.ErrorCodeInvalidSession, remoteErr.Errors[0].Code)
		assert.Contains(t, remoteErr.URL, "/sobjects/Account/001000000000001")
		assert.True(t, crm.IsSessionExpired(err))
	})

	t.Run("custom headers", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			assert.Equal(t, "client=crm-cli", request.Header.Get("Sforce-Call-Options"))
			writer.WriteHeader(http.StatusOK)
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil)

		req := &crmhttp.Request{
			Method: "GET",
			Path:   "/limits",
			Headers: map[string]string{
				"Sforce-Call-Options": "client=crm-cli",
			},
		}

		resp, err := client.Do(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
	})

	t.Run("token error", func(t *testing.T) {
		t.Parallel()

		tokenErr := errors.New("no token")
		client := crmhttp.NewClient("http://127.0.0.1:1", &MockTokenManager{err: tokenErr})

		_, err := client.Get(context.Background(), "/limits", nil)
		require.ErrorIs(t, err, tokenErr)
	})

	t.Run("base URL not set", func(t *testing.T) {
		t.Parallel()

		client := crmhttp.NewClient("", nil)

		_, err := client.Get(context.Background(), "/limits", nil)
		require.ErrorIs(t, err, crmhttp.ErrBaseURLNotSet)
	})

	t.Run("with debug logging", func(t *testing.T) {
		t.Parallel()

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			writer.WriteHeader(http.StatusOK)
			_ = json.NewEncoder(writer).Encode(map[string]string{"result": "ok"})
		}))
		defer server.Close()

		logger := &MockLogger{}
		client := crmhttp.NewClient(server.URL, nil, crmhttp.WithLogger(logger), crmhttp.WithDebug(true))

		req := &crmhttp.Request{
			Method: "GET",
			Path:   "/limits",
		}

		_, err := client.Do(context.Background(), req)
		require.NoError(t, err)

		// Should have logged request and response
		assert.Len(t, logger.logs, 2)
		assert.Equal(t, "HTTP Request", logger.logs[0]["msg"])
		assert.Equal(t, "HTTP Response", logger.logs[1]["msg"])
	})
}

func TestClient_SetBaseURL(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "/services/Soap/u/59.0/ping", request.URL.Path)
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := crmhttp.NewClient("", nil)
	client.SetBaseURL(server.URL + "/services/Soap/u/59.0")
	assert.Equal(t, server.URL+"/services/Soap/u/59.0", client.BaseURL())

	_, err := client.Get(context.Background(), "ping", nil)
	require.NoError(t, err)
}

func TestStaticToken(t *testing.T) {
	t.Parallel()

	var received atomic.Value

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		received.Store(request.Header.Get("Authorization"))
		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	token := crmhttp.NewStaticToken("first")
	client := crmhttp.NewClient(server.URL, token)

	_, err := client.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer first", received.Load())

	token.SetToken("second")

	_, err = client.Get(context.Background(), "/x", nil)
	require.NoError(t, err)
	assert.Equal(t, "Bearer second", received.Load())
}

func TestClient_PostForm(t *testing.T) {
	t.Parallel()

	server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		assert.Equal(t, "application/x-www-form-urlencoded", request.Header.Get("Content-Type"))
		assert.Empty(t, request.Header.Get("Authorization"))
		assert.NoError(t, request.ParseForm())
		assert.Equal(t, "password", request.PostForm.Get("grant_type"))

		writer.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := crmhttp.NewClient(server.URL, nil)

	resp, err := client.PostForm(context.Background(), "/services/oauth2/token", url.Values{"grant_type": {"password"}})
	require.NoError(t, err)
	assert.Equal(t, 200, resp.StatusCode)
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_Methods(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		method string
		fn     func(*crmhttp.Client, context.Context) (*crmhttp.Response, error)
	}{
		{
			name:   "GET",
			method: "GET",
			fn: func(c *crmhttp.Client, ctx context.Context) (*crmhttp.Response, error) {
				return c.Get(ctx, "/test", nil)
			},
		},
		{
			name:   "POST",
			method: "POST",
			fn: func(c *crmhttp.Client, ctx context.Context) (*crmhttp.Response, error) {
				return c.Post(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PUT",
			method: "PUT",
			fn: func(c *crmhttp.Client, ctx context.Context) (*crmhttp.Response, error) {
				return c.Put(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "PATCH",
			method: "PATCH",
			fn: func(c *crmhttp.Client, ctx context.Context) (*crmhttp.Response, error) {
				return c.Patch(ctx, "/test", map[string]string{"key": "value"})
			},
		},
		{
			name:   "DELETE",
			method: "DELETE",
			fn: func(c *crmhttp.Client, ctx context.Context) (*crmhttp.Response, error) {
				return c.Delete(ctx, "/test")
			},
		},
	}

	for _, testCase := range tests {
		t.Run(testCase.name, func(t *testing.T) {
			t.Parallel()

			server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
				assert.Equal(t, testCase.method, request.Method)
				assert.Equal(t, "/test", request.URL.Path)
				writer.WriteHeader(http.StatusOK)
			}))
			defer server.Close()

			client := crmhttp.NewClient(server.URL, nil)
			resp, err := testCase.fn(client, context.Background())
			require.NoError(t, err)
			assert.Equal(t, 200, resp.StatusCode)
		})
	}
}

//nolint:funlen // Test functions can be longer for comprehensive testing
func TestClient_RetryLogic(t *testing.T) {
	t.Parallel()
	t.Run("no retries by default", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)
			writer.WriteHeader(http.StatusServiceUnavailable)
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil)

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 503, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load())

		var remoteErr *crm.RemoteAPIError
		require.ErrorAs(t, err, &remoteErr)
		assert.Equal(t, 503, remoteErr.StatusCode)
	})

	t.Run("retries on 5xx errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 3 {
				writer.WriteHeader(http.StatusInternalServerError)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil, crmhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(3), attempts.Load())
	})

	t.Run("retries on rate limiting", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			if attempts.Add(1) < 2 {
				writer.WriteHeader(http.StatusTooManyRequests)
			} else {
				writer.WriteHeader(http.StatusOK)
			}
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil, crmhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.NoError(t, err)
		assert.Equal(t, 200, resp.StatusCode)
		assert.Equal(t, int32(2), attempts.Load())
	})

	t.Run("does not retry on client errors", func(t *testing.T) {
		t.Parallel()

		var attempts atomic.Int32

		server := httptest.NewServer(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
			attempts.Add(1)

			writer.WriteHeader(http.StatusBadRequest)
		}))
		defer server.Close()

		client := crmhttp.NewClient(server.URL, nil, crmhttp.WithRetryConfig(3, 10*time.Millisecond, 100*time.Millisecond))

		resp, err := client.Get(context.Background(), "/test", nil)
		require.Error(t, err)
		assert.Equal(t, 400, resp.StatusCode)
		assert.Equal(t, int32(1), attempts.Load()) // Should not retry
	})
}
