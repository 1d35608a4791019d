package rest

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/game/quest"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/kasuganosora/questengine/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

type adminServer struct {
	engine  *gin.Engine
	store   *quest.TemplateStore
	attrs   *quest.AttributeStore
	audit   *audit.Service
	reloads int
}

func newAdminServer(t *testing.T, reloadErr error) *adminServer {
	t.Helper()
	db := testutil.SetupTestDB(t)
	store, err := quest.NewTemplateStore(db, 8, nopLogger())
	require.NoError(t, err)
	auditSvc := audit.New(db, nopLogger(), audit.WithFlushInterval(10*time.Millisecond))
	t.Cleanup(func() { auditSvc.Stop(context.Background()) })
	sched := scheduler.New(nopLogger())
	t.Cleanup(sched.Stop)

	s := &adminServer{store: store, attrs: quest.NewAttributeStore(db), audit: auditSvc}
	reload := func(ctx context.Context) error {
		s.reloads++
		if reloadErr != nil {
			return reloadErr
		}
		var doc quest.TemplateDocument
		if err := yaml.Unmarshal([]byte(ferryYAML), &doc); err != nil {
			return err
		}
		_, err := store.Import(ctx, &doc)
		return err
	}
	r := gin.New()
	NewAdminHandler(store, s.attrs, auditSvc, sched, reload, nopLogger()).Register(r.Group("/api"))
	s.engine = r
	return s
}

func (s *adminServer) do(t *testing.T, method, path string, body interface{}) *httptest.ResponseRecorder {
	return (&testServer{engine: s.engine}).do(t, method, path, body)
}

func TestAdminAPI_ReloadAndList(t *testing.T) {
	s := newAdminServer(t, nil)

	w := s.do(t, http.MethodPost, "/api/admin/quests/reload", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, 1, s.reloads)

	w = s.do(t, http.MethodGet, "/api/admin/quests/templates", nil)
	require.Equal(t, http.StatusOK, w.Code)
	var body struct {
		Templates []string `json:"templates"`
	}
	decode(t, w, &body)
	assert.Equal(t, []string{"ferry"}, body.Templates)

	w = s.do(t, http.MethodGet, "/api/admin/status", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAdminAPI_ReloadInvalidContent(t *testing.T) {
	s := newAdminServer(t, quest.ErrInvalidContent)
	w := s.do(t, http.MethodPost, "/api/admin/quests/reload", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	s = newAdminServer(t, errors.New("disk gone"))
	w = s.do(t, http.MethodPost, "/api/admin/quests/reload", nil)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
}

func TestAdminAPI_SetAttribute(t *testing.T) {
	s := newAdminServer(t, nil)
	w := s.do(t, http.MethodPut, "/api/admin/characters/c1/attributes",
		gin.H{"kind": "attribute", "name": "strength", "value": 9})
	require.Equal(t, http.StatusNoContent, w.Code, w.Body.String())

	snap, err := s.attrs.Snapshot(context.Background(), "c1")
	require.NoError(t, err)
	assert.Equal(t, 9, snap.Attributes["strength"])

	w = s.do(t, http.MethodPut, "/api/admin/characters/c1/attributes",
		gin.H{"kind": "mood", "name": "x", "value": 1})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = s.do(t, http.MethodPut, "/api/admin/characters/c1/attributes",
		gin.H{"kind": "attribute", "name": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code, "value is required")
}

func TestAdminAPI_Audit(t *testing.T) {
	s := newAdminServer(t, nil)
	s.audit.Log(audit.AuditEntry{InstanceID: "i-1", Action: "quest.start"})
	s.audit.Log(audit.AuditEntry{InstanceID: "i-2", Action: "quest.start"})

	assert.Eventually(t, func() bool {
		w := httptest.NewRecorder()
		s.engine.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/admin/quests/instances/i-1/audit", nil))
		var body struct {
			Entries []map[string]interface{} `json:"entries"`
		}
		if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
			return false
		}
		return len(body.Entries) == 1
	}, time.Second, 20*time.Millisecond)
}
