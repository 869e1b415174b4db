package webhook

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeliver_Signed(t *testing.T) {
	var got Event
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		assert.Equal(t, Sign("s3cret", body), r.Header.Get(SignatureHeader))
		assert.NoError(t, json.Unmarshal(body, &got))
	}))
	defer srv.Close()

	n := NewNotifier(nil, nil)
	err := n.Deliver(context.Background(), srv.URL, "s3cret", &Event{Type: "batch.completed", Timestamp: 42})
	require.NoError(t, err)
	assert.Equal(t, "batch.completed", got.Type)
	assert.Equal(t, int64(42), got.Timestamp)
}

func TestDeliver_Unsigned(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Empty(t, r.Header.Get(SignatureHeader))
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	err := NewNotifier(nil, nil).Deliver(context.Background(), srv.URL, "", &Event{Type: "x"})
	assert.ErrorContains(t, err, "status 502")
}

func TestDeliverAsync_Retries(t *testing.T) {
	var hits atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if hits.Add(1) < 3 {
			w.WriteHeader(http.StatusServiceUnavailable)
		}
	}))
	defer srv.Close()

	n := NewNotifier(nil, []time.Duration{0, time.Millisecond, time.Millisecond, time.Millisecond})
	done := make(chan error, 1)
	n.DeliverAsync(srv.URL, "", &Event{Type: "batch.completed"}, func(err error) { done <- err })

	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("delivery did not finish")
	}
	assert.Equal(t, int32(3), hits.Load())
}
