package integration

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/questengine/api/rest"
	"github.com/kasuganosora/questengine/api/sse"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/game/quest"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/kasuganosora/questengine/testutil"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
	"gorm.io/gorm"
)

// ContentDir is the quest content shipped with the repository.
var ContentDir = filepath.Join("..", "content", "quests")

// TestServer wraps a real HTTP server with the quest stack wired together.
type TestServer struct {
	DB     *gorm.DB
	Cache  cache.Cache
	PubSub cache.PubSub
	Store  *quest.TemplateStore
	Audit  *audit.Service
	Sched  *scheduler.Scheduler
	Server *httptest.Server
	URL    string // http://127.0.0.1:<port>
}

// NewTestServer creates a fully wired quest server for integration testing.
// It mirrors the dependency wiring in main.go. Skill checks use rolls in the
// given order; with no rolls they are random.
func NewTestServer(t *testing.T, rolls ...int) *TestServer {
	t.Helper()
	gin.SetMode(gin.TestMode)

	// ---- Infrastructure ----
	db := testutil.SetupTestDB(t)
	c, pubsub := testutil.SetupTestCache(t)
	logger := zap.NewNop()

	auditSvc := audit.New(db, logger, audit.WithFlushInterval(10*time.Millisecond))
	store, err := quest.NewTemplateStore(db, 64, logger)
	require.NoError(t, err)

	reloader := &scheduler.ContentReloader{Dir: ContentDir, Store: store, Logger: logger}
	require.NoError(t, reloader.Run(context.Background()), "load shipped quest content")
	sched := scheduler.New(logger)

	// ---- Services ----
	reg := prometheus.NewRegistry()
	attrs := quest.NewAttributeStore(db)
	opts := []quest.ServiceOption{
		quest.WithCharacters(attrs),
		quest.WithLocker(quest.NewCacheLocker(c, 5*time.Second)),
		quest.WithEvents(quest.NewPubSubPublisher(pubsub, "quest:events")),
		quest.WithAuditor(auditSvc),
		quest.WithMetrics(quest.NewMetrics(reg)),
	}
	if len(rolls) > 0 {
		opts = append(opts, quest.WithRollerSource(quest.NewFixedRolls(rolls...)))
	}
	questSvc := quest.NewService(db, store, logger, opts...)

	// ---- Gin HTTP Server ----
	r := gin.New()
	r.Use(mw.TraceID(), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(mw.RateLimit(rate.Limit(1000), 2000))
	{
		apirest.NewQuestHandler(questSvc, logger).Register(api)
		apirest.NewAdminHandler(store, attrs, auditSvc, sched, reloader.Run, logger).Register(api)
		api.GET("/characters/:id/quest-events", sse.NewHandler(pubsub, "quest:events", logger).ServeQuestEvents)
	}

	server := httptest.NewServer(r)
	ts := &TestServer{
		DB:     db,
		Cache:  c,
		PubSub: pubsub,
		Store:  store,
		Audit:  auditSvc,
		Sched:  sched,
		Server: server,
		URL:    server.URL,
	}
	t.Cleanup(ts.Close)
	return ts
}

// Close shuts down the test server and background workers.
func (ts *TestServer) Close() {
	ts.Server.Close()
	ts.Sched.Stop()
	ts.Audit.Stop(context.Background())
}

// --- HTTP helpers ---

// Do sends a request with an optional JSON body.
func (ts *TestServer) Do(t *testing.T, method, path string, body interface{}) *http.Response {
	t.Helper()
	var bodyReader io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		require.NoError(t, err)
		bodyReader = bytes.NewReader(data)
	}
	req, err := http.NewRequest(method, ts.URL+path, bodyReader)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	return resp
}

// PostJSON sends a POST request with a JSON body.
func (ts *TestServer) PostJSON(t *testing.T, path string, body interface{}) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodPost, path, body)
}

// Get sends a GET request.
func (ts *TestServer) Get(t *testing.T, path string) *http.Response {
	t.Helper()
	return ts.Do(t, http.MethodGet, path, nil)
}

// ReadJSON decodes and closes a response body, asserting the status code.
func ReadJSON(t *testing.T, resp *http.Response, status int, v interface{}) {
	t.Helper()
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	require.Equal(t, status, resp.StatusCode, string(body))
	if v != nil {
		require.NoError(t, json.Unmarshal(body, v), string(body))
	}
}
