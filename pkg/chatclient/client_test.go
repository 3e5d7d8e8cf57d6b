package chatclient

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeOK(w http.ResponseWriter, data interface{}) {
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    0,
		"message": "ok",
		"data":    data,
	})
}

func writeErr(w http.ResponseWriter, status, code int, msg string) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(map[string]interface{}{
		"code":    code,
		"message": msg,
	})
}

func TestSend_ReconcilesOptimisticMessage(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		var req map[string]string
		require.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		writeOK(w, map[string]interface{}{
			"user_message": Message{
				ID: "srv-u1", SessionID: req["session_id"], Role: RoleUser,
				Content: req["content"], CreatedAt: time.Now(),
			},
			"assistant_message": Message{
				ID: "srv-a1", SessionID: req["session_id"], Role: RoleAssistant,
				Content: "hello!", CreatedAt: time.Now(),
			},
		})
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	require.NoError(t, client.Send(context.Background(), "hi"))

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "srv-u1", msgs[0].ID, "temporary id replaced by the server id")
	assert.Equal(t, "hi", msgs[0].Content)
	assert.Equal(t, "srv-a1", msgs[1].ID)
	assert.False(t, client.Sending())
}

func TestSend_RollsBackOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusInternalServerError, 50000, "send message failed")
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	err := client.Send(context.Background(), "hi")
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrStopped)

	assert.Empty(t, client.Messages(), "optimistic user message rolled back")
	assert.False(t, client.Sending())
}

func TestSend_StopAppendsExcludedMarker(t *testing.T) {
	started := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// Drain the body so the server's background read can observe the
		// client disconnect; otherwise r.Context() is never cancelled and
		// the deferred server.Close() deadlocks.
		io.Copy(io.Discard, r.Body)
		close(started)
		<-r.Context().Done()
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	go func() {
		<-started
		client.Stop()
	}()

	err := client.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrStopped)

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, RoleUser, msgs[0].Role)
	assert.Equal(t, "hi", msgs[0].Content, "user message stays after an abort")
	assert.Equal(t, StoppedMarkerContent, msgs[1].Content)
	assert.True(t, msgs[1].Excluded, "stop marker is local-only")
	assert.False(t, client.Sending())
}

func TestSend_ServerSideCancelStatus(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, 499, 49900, "generation aborted")
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	err := client.Send(context.Background(), "hi")
	require.ErrorIs(t, err, ErrStopped)

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.True(t, msgs[1].Excluded)
}

func TestSend_RefusesConcurrentSend(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		close(started)
		<-release
		writeOK(w, map[string]interface{}{
			"user_message":      Message{ID: "u", Role: RoleUser},
			"assistant_message": Message{ID: "a", Role: RoleAssistant},
		})
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	done := make(chan error, 1)
	go func() { done <- client.Send(context.Background(), "first") }()

	<-started
	err := client.Send(context.Background(), "second")
	assert.ErrorIs(t, err, ErrSendInFlight)

	close(release)
	require.NoError(t, <-done)
}

func TestEdit_RefetchesFullHistory(t *testing.T) {
	serverHistory := []Message{
		{ID: "u1", SessionID: "s1", Role: RoleUser, Content: "edited"},
		{ID: "a9", SessionID: "s1", Role: RoleAssistant, Content: "fresh reply"},
	}
	var sawPut, sawGet bool
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			sawPut = true
			writeOK(w, map[string]interface{}{
				"edited_message":    serverHistory[0],
				"assistant_message": serverHistory[1],
			})
		case http.MethodGet:
			sawGet = true
			writeOK(w, serverHistory)
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	// Seed local state: U1 A1 U2 A2.
	client.messages = []Message{
		{ID: "u1", Role: RoleUser, Content: "original"},
		{ID: "a1", Role: RoleAssistant, Content: "old reply"},
		{ID: "u2", Role: RoleUser, Content: "later"},
		{ID: "a2", Role: RoleAssistant, Content: "later reply"},
	}

	require.NoError(t, client.Edit(context.Background(), "u1", "edited"))
	assert.True(t, sawPut)
	assert.True(t, sawGet, "edit always re-fetches the full history")

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "edited", msgs[0].Content)
	assert.Equal(t, "fresh reply", msgs[1].Content)
}

func TestEdit_BlocksSendsUntilRefreshCompletes(t *testing.T) {
	refreshStarted := make(chan struct{})
	releaseRefresh := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPut:
			writeOK(w, map[string]interface{}{
				"edited_message":    Message{ID: "u1", Role: RoleUser, Content: "edited"},
				"assistant_message": Message{ID: "a9", Role: RoleAssistant, Content: "fresh reply"},
			})
		case http.MethodGet:
			close(refreshStarted)
			<-releaseRefresh
			writeOK(w, []Message{
				{ID: "u1", Role: RoleUser, Content: "edited"},
				{ID: "a9", Role: RoleAssistant, Content: "fresh reply"},
			})
		default:
			t.Errorf("unexpected method %s", r.Method)
		}
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	client.messages = []Message{
		{ID: "u1", Role: RoleUser, Content: "original"},
		{ID: "a1", Role: RoleAssistant, Content: "old reply"},
	}

	done := make(chan error, 1)
	go func() { done <- client.Edit(context.Background(), "u1", "edited") }()

	// The PUT has completed and the history re-fetch is in flight.
	<-refreshStarted
	assert.True(t, client.Sending(), "edit stays in flight through the re-fetch")

	err := client.Send(context.Background(), "concurrent")
	require.ErrorIs(t, err, ErrSendInFlight,
		"a send admitted mid-refresh would lose its optimistic entry to the replace")

	close(releaseRefresh)
	require.NoError(t, <-done)

	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "edited", msgs[0].Content)
	assert.False(t, client.Sending())
}

func TestEdit_ClearsSendingOnFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeErr(w, http.StatusInternalServerError, 50000, "edit message failed")
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	client.messages = []Message{{ID: "u1", Role: RoleUser, Content: "original"}}

	require.Error(t, client.Edit(context.Background(), "u1", "edited"))
	assert.False(t, client.Sending(), "a failed edit must not wedge the client")
}

func TestEdit_UnknownLocalMessage(t *testing.T) {
	client := New("http://127.0.0.1:1", "s1")
	err := client.Edit(context.Background(), "ghost", "content")
	assert.ErrorIs(t, err, ErrUnknownMessage)
}

func TestClear_ResetsLocalState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodDelete, r.Method)
		writeOK(w, map[string]string{"cleared_session_id": "s1"})
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	client.messages = []Message{{ID: "u1", Role: RoleUser}}

	require.NoError(t, client.Clear(context.Background()))
	assert.Empty(t, client.Messages())
}

func TestRefresh_ReplacesLocalState(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeOK(w, []Message{
			{ID: "u1", Role: RoleUser, Content: "hi"},
			{ID: "a1", Role: RoleAssistant, Content: "hello"},
		})
	}))
	defer server.Close()

	client := New(server.URL, "s1")
	client.messages = []Message{{ID: "local-only", Excluded: true}}

	require.NoError(t, client.Refresh(context.Background()))
	msgs := client.Messages()
	require.Len(t, msgs, 2)
	assert.Equal(t, "u1", msgs[0].ID, "server state is authoritative")
}

func TestNew_GeneratesSessionID(t *testing.T) {
	client := New("http://localhost", "")
	assert.NotEmpty(t, client.SessionID())
}
