package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"tradegate.io/server/internal/api/middleware"
	"tradegate.io/server/internal/service"
	"tradegate.io/server/models"
)

type stubView struct {
	mode models.Mode
	snap models.LeaseSnapshot
}

func (v stubView) Mode() models.Mode              { return v.mode }
func (v stubView) Snapshot() models.LeaseSnapshot { return v.snap }

type stubPinger struct{ err error }

func (p stubPinger) Ping(context.Context) error { return p.err }

type stubFlags models.ControlFlags

func (f stubFlags) Snapshot() models.ControlFlags { return models.ControlFlags(f) }

type recordingPipeline struct{ got []models.Signal }

func (p *recordingPipeline) Process(ctx context.Context, sig models.Signal) models.SignalResponse {
	p.got = append(p.got, sig)
	return models.SignalResponse{Accepted: true, Hash: "h"}
}

type recordingProcessor struct{ got []models.OwnerCommand }

func (p *recordingProcessor) Handle(ctx context.Context, cmd models.OwnerCommand) models.CommandResponse {
	p.got = append(p.got, cmd)
	return models.CommandResponse{OK: false, Reason: models.CommandReasonUnauthorized}
}

type stubJournal struct {
	limit int
	err   error
}

func (j *stubJournal) Recent(ctx context.Context, limit int) ([]*service.JournalEntry, error) {
	j.limit = limit
	return []*service.JournalEntry{{Hash: "abc"}}, j.err
}

func serve(router *gin.Engine, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func init() {
	gin.SetMode(gin.TestMode)
}

func TestHealth(t *testing.T) {
	active := stubView{mode: models.ModeActive, snap: models.LeaseSnapshot{OwnerHostID: "local-a", LocalHostKind: models.HostKindLocal}}
	passive := stubView{mode: models.ModePassive, snap: models.LeaseSnapshot{OwnerHostID: "local-a", LocalHostKind: models.HostKindCloud}}

	t.Run("live", func(t *testing.T) {
		router := gin.New()
		router.GET("/health/live", NewHealthHandler(nil, active, "local-a").Liveness)
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/health/live", "").Code)
	})

	t.Run("ready", func(t *testing.T) {
		router := gin.New()
		router.GET("/ok", NewHealthHandler(stubPinger{}, active, "a").Readiness)
		router.GET("/down", NewHealthHandler(stubPinger{err: errors.New("locked")}, active, "a").Readiness)
		assert.Equal(t, http.StatusOK, serve(router, http.MethodGet, "/ok", "").Code)
		assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/down", "").Code)
	})

	t.Run("active", func(t *testing.T) {
		router := gin.New()
		router.GET("/active", NewHealthHandler(nil, active, "local-a").Active)
		router.GET("/passive", NewHealthHandler(nil, passive, "cloud-b").Active)

		w := serve(router, http.MethodGet, "/active", "")
		assert.Equal(t, http.StatusOK, w.Code)

		w = serve(router, http.MethodGet, "/passive", "")
		assert.Equal(t, http.StatusServiceUnavailable, w.Code)
		assert.Equal(t, "local-a", w.Header().Get(middleware.HeaderActiveOwner))
		assert.Contains(t, w.Body.String(), `"is_active":false`)
	})
}

func TestSignalHandler_Receive(t *testing.T) {
	pipeline := &recordingPipeline{}
	h := NewSignalHandler(pipeline, nil)
	h.now = func() time.Time { return time.Unix(1700000000, 0) }

	router := gin.New()
	router.POST("/signals", h.Receive)

	w := serve(router, http.MethodPost, "/signals", `{"ticker":"NIFTY"}`)
	require.Equal(t, http.StatusOK, w.Code)
	require.Len(t, pipeline.got, 1)
	assert.Equal(t, "NIFTY", pipeline.got[0].Symbol)
	assert.Equal(t, "1700000000", pipeline.got[0].Timestamp)

	var resp models.SignalResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.True(t, resp.Accepted)
	assert.Contains(t, w.Body.String(), `"reason":null`)

	w = serve(router, http.MethodPost, "/signals", `not json`)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Len(t, pipeline.got, 1)
}

func TestSignalHandler_Recent(t *testing.T) {
	journal := &stubJournal{}
	router := gin.New()
	router.GET("/recent", NewSignalHandler(&recordingPipeline{}, journal).Recent)
	router.GET("/disabled", NewSignalHandler(&recordingPipeline{}, nil).Recent)

	w := serve(router, http.MethodGet, "/recent?limit=5", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 5, journal.limit)
	assert.Contains(t, w.Body.String(), `"hash":"abc"`)

	assert.Equal(t, http.StatusBadRequest, serve(router, http.MethodGet, "/recent?limit=x", "").Code)
	assert.Equal(t, http.StatusNotFound, serve(router, http.MethodGet, "/disabled", "").Code)

	journal.err = errors.New("boom")
	assert.Equal(t, http.StatusServiceUnavailable, serve(router, http.MethodGet, "/recent", "").Code)
}

func TestCommandHandler(t *testing.T) {
	tests := []struct {
		name       string
		body       string
		wantStatus int
		want       *models.OwnerCommand
	}{
		{
			name:       "native shape",
			body:       `{"sender_id":"42","command":"signals","args":["off"]}`,
			wantStatus: http.StatusOK,
			want:       &models.OwnerCommand{SenderID: "42", Command: "signals", Args: []string{"off"}},
		},
		{
			name:       "telegram update",
			body:       `{"update_id":1,"message":{"text":"/panic_flat","from":{"id":42},"chat":{"id":42}}}`,
			wantStatus: http.StatusOK,
			want:       &models.OwnerCommand{SenderID: "42", Command: "/panic_flat"},
		},
		{
			name:       "telegram edited message",
			body:       `{"edited_message":{"text":"/help","from":{"id":7}}}`,
			wantStatus: http.StatusOK,
			want:       &models.OwnerCommand{SenderID: "7", Command: "/help"},
		},
		{name: "empty object", body: `{}`, wantStatus: http.StatusBadRequest},
		{name: "not json", body: `nope`, wantStatus: http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			proc := &recordingProcessor{}
			router := gin.New()
			router.POST("/commands", NewCommandHandler(proc).Handle)

			w := serve(router, http.MethodPost, "/commands", tt.body)
			assert.Equal(t, tt.wantStatus, w.Code)

			if tt.want == nil {
				assert.Empty(t, proc.got)
				return
			}
			require.Len(t, proc.got, 1)
			got := proc.got[0]
			assert.False(t, got.ReceivedAt.IsZero())
			got.ReceivedAt = time.Time{}
			assert.Equal(t, *tt.want, got)
			assert.Contains(t, w.Body.String(), `"reason":"unauthorized"`)
		})
	}
}

func TestStatusHandler(t *testing.T) {
	view := stubView{
		mode: models.ModePassive,
		snap: models.LeaseSnapshot{OwnerHostID: "local-a", HostKind: models.HostKindLocal, Mode: models.ModeActive},
	}
	flags := stubFlags{SignalsOn: true, PanicOn: true, HolidayReason: "hidden"}

	router := gin.New()
	h := NewStatusHandler(view, flags)
	router.GET("/status", h.Status)
	router.GET("/lease", h.Lease)

	w := serve(router, http.MethodGet, "/status", "")
	require.Equal(t, http.StatusOK, w.Code)

	var resp models.StatusResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, models.StatusResponse{
		Lease:   models.StatusLease{Mode: models.ModePassive, OwnerHostID: "local-a", HostKind: models.HostKindLocal},
		Control: models.StatusControl{SignalsOn: true, PanicOn: true},
	}, resp)

	w = serve(router, http.MethodGet, "/lease", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `"owner_host_id":"local-a"`)
}
