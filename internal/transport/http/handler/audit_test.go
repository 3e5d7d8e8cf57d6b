package handler

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"shout-chat/internal/model"
)

type fakeEventLister struct {
	events    []model.TurnEvent
	err       error
	gotLimit  int
	gotFilter string
}

func (f *fakeEventLister) ListBySessionID(sessionID string, limit int) ([]model.TurnEvent, error) {
	f.gotFilter = sessionID
	f.gotLimit = limit
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newAuditRouter(lister *fakeEventLister) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.GET("/api/v1/chat/events/:sessionId", NewAuditHandler(lister).ListTurnEvents)
	return router
}

func TestListTurnEvents_ReturnsAuditTrail(t *testing.T) {
	lister := &fakeEventLister{events: []model.TurnEvent{
		{ID: 2, SessionID: "s1", Kind: model.TurnEventMessageEdited, CreatedAt: time.Now()},
		{ID: 1, SessionID: "s1", Kind: model.TurnEventCompleted, CreatedAt: time.Now().Add(-time.Minute)},
	}}
	router := newAuditRouter(lister)

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/events/s1?limit=10", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "s1", lister.gotFilter)
	assert.Equal(t, 10, lister.gotLimit)

	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	var events []model.TurnEvent
	require.NoError(t, json.Unmarshal(env.Data, &events))
	require.Len(t, events, 2)
	assert.Equal(t, model.TurnEventMessageEdited, events[0].Kind)
}

func TestListTurnEvents_EmptySessionIsEmptyArray(t *testing.T) {
	router := newAuditRouter(&fakeEventLister{})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/events/quiet", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	assert.Equal(t, "[]", string(env.Data))
}

func TestListTurnEvents_ListerFailure(t *testing.T) {
	router := newAuditRouter(&fakeEventLister{err: fmt.Errorf("db down")})

	req := httptest.NewRequest(http.MethodGet, "/api/v1/chat/events/s1", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
