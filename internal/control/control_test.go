package control

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

type recordedRequest struct {
	method string
	path   string
	body   map[string]string
}

func newTestServer(t *testing.T, status int, response string) (*httptest.Server, *[]recordedRequest) {
	t.Helper()
	var requests []recordedRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NotEmpty(t, r.Header.Get("X-Request-ID"))
		require.NotEmpty(t, r.Header.Get("X-Quorum-Client"))
		rec := recordedRequest{method: r.Method, path: r.URL.Path}
		if r.Body != nil {
			_ = json.NewDecoder(r.Body).Decode(&rec.body)
		}
		requests = append(requests, rec)
		w.WriteHeader(status)
		w.Write([]byte(response))
	}))
	t.Cleanup(server.Close)
	return server, &requests
}

func TestPauseAndResumeHitActionEndpoints(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{}`)
	client, err := New(server.URL, "sess-9")
	require.NoError(t, err)

	require.NoError(t, client.Pause(context.Background()))
	require.NoError(t, client.Resume(context.Background()))

	require.Len(t, *requests, 2)
	require.Equal(t, "/v1/sessions/sess-9/pause", (*requests)[0].path)
	require.Equal(t, http.MethodPost, (*requests)[0].method)
	require.Equal(t, "/v1/sessions/sess-9/resume", (*requests)[1].path)
}

func TestTerminateSendsReason(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{}`)
	client, err := New(server.URL, "sess-9")
	require.NoError(t, err)

	require.NoError(t, client.Terminate(context.Background(), "operator abort"))

	require.Len(t, *requests, 1)
	require.Equal(t, "operator abort", (*requests)[0].body["reason"])
}

func TestExportDecodesTranscript(t *testing.T) {
	server, _ := newTestServer(t, http.StatusOK, `{
		"session_id": "sess-9",
		"exported_at": "2026-08-28T10:00:00Z",
		"events": [{"type":"complete"}]
	}`)
	client, err := New(server.URL, "sess-9")
	require.NoError(t, err)

	transcript, err := client.Export(context.Background())
	require.NoError(t, err)
	require.Equal(t, "sess-9", transcript.SessionID)
	require.Len(t, transcript.Events, 1)
}

func TestResumeFromCheckpointReturnsNewSession(t *testing.T) {
	server, requests := newTestServer(t, http.StatusOK, `{"session_id":"sess-10"}`)
	client, err := New(server.URL, "sess-9")
	require.NoError(t, err)

	next, err := client.ResumeFromCheckpoint(context.Background(), "ckpt-3")
	require.NoError(t, err)
	require.Equal(t, "sess-10", next)
	require.Equal(t, "ckpt-3", (*requests)[0].body["checkpoint_id"])

	_, err = client.ResumeFromCheckpoint(context.Background(), "")
	require.Error(t, err)
}

func TestNotFoundMapsToSessionError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusNotFound, `{"error":"no such session"}`)
	client, err := New(server.URL, "sess-9")
	require.NoError(t, err)

	err = client.Pause(context.Background())
	require.ErrorIs(t, err, ErrSessionNotFound)
}

func TestServerErrorSurfacesAPIError(t *testing.T) {
	server, _ := newTestServer(t, http.StatusConflict, `{"error":"session already terminated"}`)
	client, err := New(server.URL, "sess-9")
	require.NoError(t, err)

	err = client.Terminate(context.Background(), "late")
	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusConflict, apiErr.StatusCode)
	require.Equal(t, "session already terminated", apiErr.Message)
}
