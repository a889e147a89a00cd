package registry_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/straye-as/device-importer/internal/domain"
	"github.com/straye-as/device-importer/internal/importer"
	"github.com/straye-as/device-importer/internal/registry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

var testKey = base64.StdEncoding.EncodeToString([]byte("registry-test-key"))

func testConnectionString() string {
	return "HostName=devices-hub.azure-devices.net;SharedAccessKeyName=registryReadWrite;SharedAccessKey=" + testKey
}

// ============================================================================
// Connection string
// ============================================================================

func TestParseConnectionString(t *testing.T) {
	creds, err := registry.ParseConnectionString(testConnectionString())

	require.NoError(t, err)
	assert.Equal(t, "devices-hub.azure-devices.net", creds.HostName)
	assert.Equal(t, "registryReadWrite", creds.SharedAccessKeyName)
	assert.Equal(t, testKey, creds.SharedAccessKey)
}

func TestParseConnectionString_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		input string
	}{
		{name: "empty", input: ""},
		{name: "missing host", input: "SharedAccessKeyName=owner;SharedAccessKey=" + testKey},
		{name: "missing key name", input: "HostName=hub.azure-devices.net;SharedAccessKey=" + testKey},
		{name: "missing key", input: "HostName=hub.azure-devices.net;SharedAccessKeyName=owner"},
		{name: "malformed segment", input: "HostName=hub.azure-devices.net;garbage"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := registry.ParseConnectionString(tt.input)

			require.Error(t, err)
			assert.ErrorIs(t, err, registry.ErrInvalidConnectionString)
			assert.NotContains(t, err.Error(), testKey, "errors must not leak the key")
		})
	}
}

// ============================================================================
// Shared access token
// ============================================================================

func TestTokenSource_Token(t *testing.T) {
	creds, err := registry.ParseConnectionString(testConnectionString())
	require.NoError(t, err)
	tokens, err := registry.NewTokenSource(creds, time.Hour)
	require.NoError(t, err)
	before := time.Now()

	token := tokens.Token()

	require.True(t, strings.HasPrefix(token, "SharedAccessSignature "))
	fields, err := url.ParseQuery(strings.TrimPrefix(token, "SharedAccessSignature "))
	require.NoError(t, err)
	assert.Equal(t, "devices-hub.azure-devices.net", fields.Get("sr"))
	assert.Equal(t, "registryReadWrite", fields.Get("skn"))
	assert.NotEmpty(t, fields.Get("sig"))

	_, err = base64.StdEncoding.DecodeString(fields.Get("sig"))
	assert.NoError(t, err, "signature must be base64")

	se, err := strconv.ParseInt(fields.Get("se"), 10, 64)
	require.NoError(t, err)
	assert.WithinDuration(t, before.Add(time.Hour), time.Unix(se, 0), 5*time.Second)
}

func TestNewTokenSource_InvalidKey(t *testing.T) {
	_, err := registry.NewTokenSource(&registry.Credentials{
		HostName:            "hub.azure-devices.net",
		SharedAccessKeyName: "owner",
		SharedAccessKey:     "%%%",
	}, time.Hour)

	assert.ErrorIs(t, err, registry.ErrInvalidConnectionString)
}

// ============================================================================
// Client against a fake registry
// ============================================================================

type fakeRegistry struct {
	mu       sync.Mutex
	requests []*http.Request
	bodies   []string
	handler  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeRegistry) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, r)
	f.bodies = append(f.bodies, string(body))
	f.mu.Unlock()
	f.handler(w, r)
}

func newTestClient(t *testing.T, handler func(w http.ResponseWriter, r *http.Request)) (*registry.Client, *fakeRegistry) {
	t.Helper()
	fake := &fakeRegistry{handler: handler}
	server := httptest.NewServer(fake)
	t.Cleanup(server.Close)

	client, err := registry.NewClient(testConnectionString(), registry.Options{
		Endpoint: server.URL,
		ClientOptions: &azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	}, zap.NewNop())
	require.NoError(t, err)
	return client, fake
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func TestClient_ImportDevices(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"jobId":  "job-1",
			"type":   "import",
			"status": "enqueued",
		})
	})
	containerURI := "https://devices.blob.core.windows.net/iothub-x?sig=abc"

	job, err := client.ImportDevices(context.Background(), containerURI, containerURI, "devices.txt")

	require.NoError(t, err)
	assert.Equal(t, "job-1", job.JobID)
	assert.Equal(t, domain.JobStatusEnqueued, job.Status)

	require.Len(t, fake.requests, 1)
	req := fake.requests[0]
	assert.Equal(t, http.MethodPost, req.Method)
	assert.Equal(t, "/jobs/create", req.URL.Path)
	assert.Equal(t, registry.DefaultAPIVersion, req.URL.Query().Get("api-version"))
	assert.True(t, strings.HasPrefix(req.Header.Get("Authorization"), "SharedAccessSignature sr="))

	var sent map[string]string
	require.NoError(t, json.Unmarshal([]byte(fake.bodies[0]), &sent))
	assert.Equal(t, "import", sent["type"])
	assert.Equal(t, containerURI, sent["inputBlobContainerUri"])
	assert.Equal(t, containerURI, sent["outputBlobContainerUri"])
	assert.Equal(t, "devices.txt", sent["inputBlobName"])
	assert.Equal(t, "keyBased", sent["storageAuthenticationType"])
}

func TestClient_ImportDevices_Throttled(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusTooManyRequests, map[string]string{"Message": "throttled"})
	})

	_, err := client.ImportDevices(context.Background(), "in", "out", "devices.txt")

	require.Error(t, err)
	var respErr *azcore.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusTooManyRequests, respErr.StatusCode)
}

func TestClient_ImportDevices_QueueBusy(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("IotHub-ErrorCode", "JobQuotaExceeded")
		writeJSON(w, http.StatusForbidden, map[string]string{
			"Message": "ErrorCode:JobQuotaExceeded;Only one active import or export job is allowed",
		})
	})

	_, err := client.ImportDevices(context.Background(), "in", "out", "devices.txt")

	require.Error(t, err)
	var respErr *azcore.ResponseError
	require.True(t, errors.As(err, &respErr))
	assert.Equal(t, http.StatusForbidden, respErr.StatusCode)
	assert.Equal(t, "JobQuotaExceeded", respErr.ErrorCode)
	assert.True(t, importer.IsRetryable(err))
}

func TestClient_ImportDevices_RequestTimeoutIsRetryable(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-release:
		case <-time.After(2 * time.Second):
		}
		writeJSON(w, http.StatusOK, map[string]string{"jobId": "late"})
	}))
	t.Cleanup(func() {
		close(release)
		server.Close()
	})

	client, err := registry.NewClient(testConnectionString(), registry.Options{
		Endpoint: server.URL,
		ClientOptions: &azcore.ClientOptions{
			Retry: policy.RetryOptions{MaxRetries: -1, TryTimeout: 50 * time.Millisecond},
		},
	}, zap.NewNop())
	require.NoError(t, err)

	ctx := context.Background()
	_, err = client.ImportDevices(ctx, "in", "out", "devices.txt")

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.NoError(t, ctx.Err())
	assert.True(t, importer.ShouldRetry(ctx, err))
}

func TestClient_GetJob(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"jobId":         "job-7",
			"type":          "import",
			"status":        "failed",
			"progress":      100,
			"failureReason": "bad blob",
			"startTimeUtc":  "2024-03-09T16:04:05Z",
		})
	})

	job, err := client.GetJob(context.Background(), "job-7")

	require.NoError(t, err)
	assert.Equal(t, domain.JobStatusFailed, job.Status)
	assert.True(t, job.Status.IsTerminal())
	assert.Equal(t, 100, job.Progress)
	assert.Equal(t, "bad blob", job.FailureReason)
	require.NotNil(t, job.StartTimeUTC)
	assert.Equal(t, 2024, job.StartTimeUTC.Year())
	assert.Equal(t, http.MethodGet, fake.requests[0].Method)
	assert.Equal(t, "/jobs/job-7", fake.requests[0].URL.Path)
}

func TestClient_GetJob_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, map[string]string{"Message": "job not found"})
	})

	_, err := client.GetJob(context.Background(), "missing")

	require.Error(t, err)
	assert.True(t, registry.IsNotFound(err))
}

func TestClient_GetJob_EmptyID(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})

	_, err := client.GetJob(context.Background(), "")

	assert.Error(t, err)
	assert.Empty(t, fake.requests)
}

func TestClient_CancelJob(t *testing.T) {
	client, fake := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNoContent)
	})

	job, err := client.CancelJob(context.Background(), "job-3")

	require.NoError(t, err)
	assert.Equal(t, "job-3", job.JobID)
	assert.Equal(t, domain.JobStatusCancelled, job.Status)
	assert.Equal(t, http.MethodDelete, fake.requests[0].Method)
	assert.Equal(t, "/jobs/job-3", fake.requests[0].URL.Path)
}

func TestClient_CancelJob_NotFound(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusNotFound)
	})

	_, err := client.CancelJob(context.Background(), "job-3")

	assert.True(t, registry.IsNotFound(err))
}

func TestNewClient_InvalidConnectionString(t *testing.T) {
	_, err := registry.NewClient("HostName=hub.azure-devices.net", registry.Options{}, zap.NewNop())

	assert.ErrorIs(t, err, registry.ErrInvalidConnectionString)
}
