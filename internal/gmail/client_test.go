package gmail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestClient(t *testing.T, handler http.Handler) *Client {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	c, err := NewClient(context.Background(), srv.Client(),
		WithEndpoint(srv.URL+"/"),
		WithRetryPolicy(RetryPolicy{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: time.Millisecond}),
	)
	require.NoError(t, err)
	c.sleep = func(context.Context, time.Duration) error { return nil }
	return c
}

func writeJSON(w http.ResponseWriter, v any) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}

func writeAPIError(w http.ResponseWriter, code int, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	fmt.Fprintf(w, `{"error":{"code":%d,"message":"%s","errors":[{"reason":"%s"}]}}`, code, reason, reason)
}

func TestClient_ListInbox(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gmail/v1/users/me/messages", r.URL.Path)
		assert.Equal(t, "INBOX", r.URL.Query().Get("labelIds"))
		assert.Equal(t, "from:a@b.com", r.URL.Query().Get("q"))
		calls.Add(1)
		switch r.URL.Query().Get("pageToken") {
		case "":
			writeJSON(w, map[string]any{
				"messages":      []map[string]string{{"id": "m1", "threadId": "t1"}, {"id": "m2", "threadId": "t1"}},
				"nextPageToken": "p2",
			})
		case "p2":
			writeJSON(w, map[string]any{
				"messages": []map[string]string{{"id": "m3", "threadId": "t2"}, {"id": "m4", "threadId": "t3"}},
			})
		}
	}))

	refs, err := c.ListInbox(context.Background(), "from:a@b.com", 3)
	require.NoError(t, err)
	require.Len(t, refs, 3)
	assert.Equal(t, "m1", refs[0].ID)
	assert.Equal(t, "t2", refs[2].ThreadID)
	assert.Equal(t, int32(2), calls.Load())

	_, err = c.ListInbox(context.Background(), "", 0)
	assert.Error(t, err)
}

func TestClient_GetFull_RetriesRateLimit(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gmail/v1/users/me/messages/m1", r.URL.Path)
		assert.Equal(t, "full", r.URL.Query().Get("format"))
		if calls.Add(1) == 1 {
			writeAPIError(w, http.StatusTooManyRequests, "rateLimitExceeded")
			return
		}
		writeJSON(w, map[string]any{
			"id":           "m1",
			"threadId":     "t1",
			"internalDate": "1700",
			"labelIds":     []string{"INBOX"},
			"payload": map[string]any{
				"mimeType": "text/html",
				"headers":  []map[string]string{{"name": "Subject", "value": "Booking"}},
				"body":     map[string]string{"data": b64("<p>Hi there</p>")},
			},
		})
	}))

	msg, err := c.GetFull(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, int32(2), calls.Load())
	assert.Equal(t, int64(1700), msg.InternalDate)
	assert.Equal(t, "Booking", msg.Header("Subject"))
	assert.Equal(t, "Hi there", msg.PlainText())
}

func TestClient_GetFull_Errors(t *testing.T) {
	tests := []struct {
		name          string
		status        int
		reason        string
		wantCalls     int32
		wantTransient bool
	}{
		{name: "not found is not retried", status: http.StatusNotFound, reason: "notFound", wantCalls: 1},
		{name: "server error exhausts retries", status: http.StatusServiceUnavailable, reason: "backendError", wantCalls: 3, wantTransient: true},
		{name: "forbidden rate limit retried", status: http.StatusForbidden, reason: "userRateLimitExceeded", wantCalls: 3, wantTransient: true},
		{name: "forbidden otherwise not retried", status: http.StatusForbidden, reason: "insufficientPermissions", wantCalls: 1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls atomic.Int32
			c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				calls.Add(1)
				writeAPIError(w, tt.status, tt.reason)
			}))

			_, err := c.GetFull(context.Background(), "m1")
			require.Error(t, err)
			assert.Equal(t, tt.wantCalls, calls.Load())
			assert.Equal(t, tt.wantTransient, IsTransient(err))
		})
	}
}

func TestClient_GetThread(t *testing.T) {
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gmail/v1/users/me/threads/t1", r.URL.Path)
		writeJSON(w, map[string]any{
			"id": "t1",
			"messages": []map[string]any{
				{"id": "m1", "threadId": "t1", "internalDate": "100", "labelIds": []string{"INBOX"}},
				{"id": "m2", "threadId": "t1", "internalDate": "200", "labelIds": []string{"SENT"},
					"payload": map[string]any{"headers": []map[string]string{{"name": "In-Reply-To", "value": "<abc>"}}}},
			},
		})
	}))

	msgs, err := c.GetThread(context.Background(), "t1")
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].HasLabel(LabelSent))
	assert.Equal(t, "<abc>", msgs[1].Header("In-Reply-To"))

	_, err = c.GetThread(context.Background(), "")
	assert.Error(t, err)
}

func TestClient_Send(t *testing.T) {
	var calls atomic.Int32
	var got struct {
		Raw      string `json:"raw"`
		ThreadID string `json:"threadId"`
	}
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gmail/v1/users/me/messages/send", r.URL.Path)
		calls.Add(1)
		body, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(body, &got))
		writeJSON(w, map[string]string{"id": "sent1", "threadId": "t1"})
	}))

	ref, err := c.Send(context.Background(), "a@b.com", "Re: X", "<p>Body</p>",
		SendOptions{ThreadID: "t1", InReplyTo: "<abc>"})
	require.NoError(t, err)
	assert.Equal(t, "sent1", ref.ID)
	assert.Equal(t, "t1", got.ThreadID)

	raw, err := base64.URLEncoding.DecodeString(got.Raw)
	require.NoError(t, err)
	assert.Contains(t, string(raw), "In-Reply-To: <abc>")
	assert.Contains(t, string(raw), "Subject: Re: X")

	// Validation failures never reach the API.
	_, err = c.Send(context.Background(), "", "s", "b", SendOptions{})
	assert.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_SendIsNotRetried(t *testing.T) {
	var calls atomic.Int32
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls.Add(1)
		writeAPIError(w, http.StatusServiceUnavailable, "backendError")
	}))

	_, err := c.Send(context.Background(), "a@b.com", "Hi", "<p>x</p>", SendOptions{})
	require.Error(t, err)
	assert.Equal(t, int32(1), calls.Load())
}

func TestClient_Archive(t *testing.T) {
	var body string
	c := newTestClient(t, http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/gmail/v1/users/me/messages/m1/modify", r.URL.Path)
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		writeJSON(w, map[string]string{"id": "m1"})
	}))

	require.NoError(t, c.Archive(context.Background(), "m1"))
	assert.True(t, strings.Contains(body, `"removeLabelIds":["INBOX"]`), body)
}

func TestIsTransient(t *testing.T) {
	assert.False(t, IsTransient(nil))
	assert.True(t, IsTransient(fmt.Errorf("googleapi: rateLimitExceeded")))
	assert.True(t, IsTransient(&TransientError{Op: "get", Err: io.EOF}))
	assert.False(t, IsTransient(io.EOF))
}
