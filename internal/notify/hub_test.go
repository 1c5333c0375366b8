package notify

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"bulkload/internal/model"

	"github.com/stretchr/testify/require"
)

func TestHubUnknownChannelIsNoop(t *testing.T) {
	hub := NewHub()
	require.NotPanics(t, func() {
		hub.Notify("nobody", model.EventUploadProgress, model.ProgressEvent{JobID: "j"})
		hub.Notify("", model.EventUploadProgress, nil)
	})
}

func TestHubDeliversToSubscribers(t *testing.T) {
	hub := NewHub()
	client := hub.Subscribe("session-1")
	other := hub.Subscribe("session-2")
	require.Equal(t, 1, hub.Subscribers("session-1"))

	hub.Notify("session-1", model.EventUploadComplete, model.CompletionEvent{JobID: "job-1", Progress: 100})

	select {
	case msg := <-client.outbound:
		require.Equal(t, model.EventUploadComplete, msg.Event)
		require.Contains(t, string(msg.Data), `"jobId":"job-1"`)
	case <-time.After(time.Second):
		t.Fatal("message not delivered")
	}
	require.Empty(t, other.outbound)

	hub.Unsubscribe(client)
	require.Zero(t, hub.Subscribers("session-1"))
	// double unsubscribe is safe
	hub.Unsubscribe(client)
}

func TestHubDropsWhenBufferFull(t *testing.T) {
	hub := NewHub()
	client := hub.Subscribe("slow")

	done := make(chan struct{})
	go func() {
		for i := 0; i < clientBuffer*2; i++ {
			hub.Notify("slow", model.EventUploadProgress, model.ProgressEvent{ProcessedRecords: i})
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("notify blocked on a full client")
	}
	require.Len(t, client.outbound, clientBuffer)
}

func TestHubStream(t *testing.T) {
	hub := NewHub()
	client := hub.Subscribe("session-1")

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/events?channelId=session-1", nil).WithContext(ctx)
	rec := httptest.NewRecorder()

	hub.Notify("session-1", model.EventUploadProgress, model.ProgressEvent{JobID: "job-1", Progress: 50})

	finished := make(chan struct{})
	go func() {
		hub.Stream(rec, req, client)
		close(finished)
	}()

	require.Eventually(t, func() bool { return len(client.outbound) == 0 }, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	cancel()
	<-finished

	body := rec.Body.String()
	require.Equal(t, "text/event-stream", rec.Header().Get("Content-Type"))
	require.True(t, strings.HasPrefix(body, "event: connected\n"))
	require.Contains(t, body, "event: upload-progress\ndata: {")
	require.Contains(t, body, `"progress":50`)
}

func TestMulti(t *testing.T) {
	hub := NewHub()
	a := hub.Subscribe("c")

	Multi{NullNotifier{}, hub}.Notify("c", "e", map[string]int{"n": 1})
	require.Len(t, a.outbound, 1)
}
