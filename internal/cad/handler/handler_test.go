package handler

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/bitfantasy/paramcad/internal/cad/engine"
	"github.com/bitfantasy/paramcad/internal/cad/repository"
	"github.com/bitfantasy/paramcad/internal/cad/service"
	"github.com/bitfantasy/paramcad/internal/cad/sse"
	"github.com/bitfantasy/paramcad/internal/cad/testutil"
	"github.com/bitfantasy/paramcad/internal/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubEngine struct{}

func (stubEngine) Generate(ctx context.Context, req engine.Request) *engine.Result {
	return &engine.Result{
		Success:      true,
		ModelPath:    filepath.Join(req.OutputDir, req.PieceCode+".FCStd"),
		ExchangePath: filepath.Join(req.OutputDir, req.PieceCode+".step"),
		Warnings:     []string{},
		Elapsed:      250 * time.Millisecond,
	}
}

func (stubEngine) Available() bool { return true }
func (stubEngine) Name() string    { return "stub" }

type apiEnv struct {
	*testutil.TestEnv
	hub   *sse.Hub
	svc   *service.Services
	token string
}

func setupAPI(t *testing.T) *apiEnv {
	t.Helper()
	env := testutil.SetupEnv(t)
	repos := repository.NewRepositories(env.DB)
	reg := prometheus.NewRegistry()
	hub := sse.NewHub(nil)

	cfg := &config.Config{
		Engine: config.EngineConfig{Timeout: 5 * time.Second},
		App: config.AppConfig{
			OutputsDir:    t.TempDir(),
			DefaultAuthor: "system",
			LockTTL:       time.Minute,
			JobRetention:  time.Hour,
		},
	}
	svc := service.NewServices(repos, env.Catalog, stubEngine{}, nil, cfg, hub, service.NewMetrics(reg), zap.NewNop())
	t.Cleanup(func() { svc.Dispatcher.Shutdown(context.Background()) })

	RegisterRoutes(env.Router, NewHandlers(svc, hub), RouteOptions{
		JWTSecret: testutil.JWTSecret,
		Gatherer:  reg,
		Version:   "test",
	})
	return &apiEnv{TestEnv: env, hub: hub, svc: svc, token: testutil.DefaultTestToken()}
}

func (e *apiEnv) defaults(t *testing.T) map[string]any {
	t.Helper()
	piece, err := e.Catalog.Piece("base_plate")
	require.NoError(t, err)
	return piece.Defaults()
}

func (e *apiEnv) createDesign(t *testing.T, name string) string {
	t.Helper()
	w := testutil.DoRequest(e.Router, "POST", "/api/v1/designs", map[string]any{
		"piece_type_code": "base_plate",
		"name":            name,
	}, e.token)
	testutil.AssertStatus(t, w, http.StatusCreated)
	return testutil.ResponseData(w)["id"].(string)
}

func (e *apiEnv) generate(t *testing.T, designID string, params map[string]any) map[string]any {
	t.Helper()
	w := testutil.DoRequest(e.Router, "POST", "/api/v1/designs/"+designID+"/generate",
		map[string]any{"parameters": params}, e.token)
	testutil.AssertStatus(t, w, http.StatusCreated)
	return testutil.ResponseData(w)
}

func TestRequiresToken(t *testing.T) {
	e := setupAPI(t)

	w := testutil.DoRequest(e.Router, "GET", "/api/v1/designs", nil, "")
	testutil.AssertStatus(t, w, http.StatusUnauthorized)

	w = testutil.DoRequest(e.Router, "GET", "/healthz", nil, "")
	testutil.AssertStatus(t, w, http.StatusOK)

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/nothing-here", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestCatalogEndpoints(t *testing.T) {
	e := setupAPI(t)

	w := testutil.DoRequest(e.Router, "GET", "/api/v1/piece-types?discipline=structural", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	list := testutil.ResponseList(w)
	require.Len(t, list, 1)
	assert.Equal(t, "base_plate", list[0].(map[string]any)["code"])

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/piece-types/base_plate", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	spec := testutil.ResponseData(w)["spec"].(map[string]any)
	assert.Len(t, spec["parameters"], 9)

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/piece-types/gusset", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)
	assert.Equal(t, float64(40400), testutil.ParseResponse(w)["code"])

	params := e.defaults(t)
	params["espesor"] = 2.0
	w = testutil.DoRequest(e.Router, "POST", "/api/v1/validate", map[string]any{
		"piece_code": "base_plate",
		"parameters": params,
	}, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	result := testutil.ResponseData(w)
	assert.Equal(t, false, result["is_valid"])

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/catalog/disciplines", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "1.0", testutil.ResponseData(w)["catalog_version"])

	// reload is admin only
	w = testutil.DoRequest(e.Router, "POST", "/api/v1/catalog/reload", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusForbidden)
	admin := testutil.GenerateTestToken("root", "Admin", "admin")
	w = testutil.DoRequest(e.Router, "POST", "/api/v1/catalog/reload", nil, admin)
	testutil.AssertStatus(t, w, http.StatusOK)
}

func TestDesignCRUD(t *testing.T) {
	e := setupAPI(t)
	id := e.createDesign(t, "Placa columna C1")

	w := testutil.DoRequest(e.Router, "POST", "/api/v1/designs", map[string]any{
		"piece_type_code": "gusset",
		"name":            "Cartela",
	}, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/designs", map[string]any{"name": "Sin tipo"}, e.token)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(e.Router, "PUT", "/api/v1/designs/"+id, map[string]any{"drawing_number": "EST-001"}, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "EST-001", testutil.ResponseData(w)["drawing_number"])

	other := e.createDesign(t, "Placa columna C2")
	w = testutil.DoRequest(e.Router, "PUT", "/api/v1/designs/"+other, map[string]any{"drawing_number": "EST-001"}, e.token)
	testutil.AssertStatus(t, w, http.StatusConflict)

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/designs", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Len(t, testutil.ResponseList(w), 2)

	w = testutil.DoRequest(e.Router, "DELETE", "/api/v1/designs/"+id, nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	w = testutil.DoRequest(e.Router, "GET", "/api/v1/designs/"+id, nil, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestGenerateEndpoint(t *testing.T) {
	e := setupAPI(t)
	id := e.createDesign(t, "Placa columna C1")

	first := e.generate(t, id, e.defaults(t))
	assert.Equal(t, true, first["success"])
	assert.Equal(t, "A", first["revision_code"])
	assert.Equal(t, "complete", first["stage"])

	second := e.generate(t, id, e.defaults(t))
	assert.Equal(t, "B", second["revision_code"])

	w := testutil.DoRequest(e.Router, "GET", "/api/v1/revisions/"+first["revision_id"].(string), nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	rev := testutil.ResponseData(w)
	assert.Equal(t, "Test Engineer", rev["generated_by"])
	assert.Equal(t, "draft", rev["eco_status"])
	assert.NotEmpty(t, rev["fcstd_path"])

	params := e.defaults(t)
	params["espesor"] = 2.0
	w = testutil.DoRequest(e.Router, "POST", "/api/v1/designs/"+id+"/generate",
		map[string]any{"parameters": params}, e.token)
	testutil.AssertStatus(t, w, http.StatusUnprocessableEntity)
	resp := testutil.ParseResponse(w)
	assert.Equal(t, float64(42200), resp["code"])
	data := resp["data"].(map[string]any)
	assert.Equal(t, "validate", data["stage"])
	assert.Equal(t, []any{"Espesor mínimo 4 mm."}, data["errors"])

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/designs/"+id+"/revisions", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Len(t, testutil.ResponseList(w), 2, "invalid parameters create no revision")

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/designs/"+id+"/revisions/latest", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "B", testutil.ResponseData(w)["revision_code"])

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/designs/missing/generate",
		map[string]any{"parameters": e.defaults(t)}, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/designs/"+id+"/generate", map[string]any{}, e.token)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(e.Router, "GET", "/metrics", nil, "")
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Contains(t, w.Body.String(), `paramcad_generations_total{outcome="success",piece_code="base_plate"} 2`)
	assert.Contains(t, w.Body.String(), `paramcad_generations_total{outcome="invalid",piece_code="base_plate"} 1`)
}

func TestAsyncGeneration(t *testing.T) {
	e := setupAPI(t)
	id := e.createDesign(t, "Placa asincrónica")

	w := testutil.DoRequest(e.Router, "POST", "/api/v1/designs/"+id+"/generate?async=1",
		map[string]any{"parameters": e.defaults(t)}, e.token)
	testutil.AssertStatus(t, w, http.StatusAccepted)
	jobID := testutil.ResponseData(w)["id"].(string)

	var job map[string]any
	require.Eventually(t, func() bool {
		w := testutil.DoRequest(e.Router, "GET", "/api/v1/generation-jobs/"+jobID, nil, e.token)
		if w.Code != http.StatusOK {
			return false
		}
		job = testutil.ResponseData(w)
		return job["status"] == service.JobDone
	}, 5*time.Second, 20*time.Millisecond)

	assert.Equal(t, "Test Engineer", job["submitted_by"])
	resp := job["response"].(map[string]any)
	assert.Equal(t, "A", resp["revision_code"])

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/generation-jobs/unknown", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestECOEndpoints(t *testing.T) {
	e := setupAPI(t)
	id := e.createDesign(t, "Placa columna C1")
	a := e.generate(t, id, e.defaults(t))["revision_id"].(string)

	params := e.defaults(t)
	params["espesor"] = 16.0
	b := e.generate(t, id, params)["revision_id"].(string)

	issue := map[string]any{"eco_number": "ECO-001", "eco_reason": "Emisión"}
	w := testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/"+a+"/issue", issue, e.token)
	testutil.AssertStatus(t, w, http.StatusForbidden)

	approver := testutil.GenerateTestToken("ana", "Ana", "eco_approver")
	w = testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/"+a+"/issue", map[string]any{"eco_number": ""}, approver)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/"+a+"/issue", issue, approver)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "issued", testutil.ResponseData(w)["eco_status"])
	assert.Equal(t, "ECO-001", testutil.ResponseData(w)["eco_number"])

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/"+a+"/obsolete", nil, approver)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Equal(t, "obsolete", testutil.ResponseData(w)["eco_status"])

	w = testutil.DoRequest(e.Router, "PUT", "/api/v1/revisions/"+b+"/eco", map[string]any{"status": "approved"}, e.token)
	testutil.AssertStatus(t, w, http.StatusBadRequest)

	w = testutil.DoRequest(e.Router, "PUT", "/api/v1/revisions/missing/eco", map[string]any{"status": "issued"}, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)

	w = testutil.DoRequest(e.Router, "GET", fmt.Sprintf("/api/v1/revisions/%s/delta?to=%s", a, b), nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	delta := testutil.ResponseData(w)
	changed := delta["changed"].([]any)
	require.Len(t, changed, 1)
	assert.Equal(t, "espesor", changed[0].(map[string]any)["name"])

	w = testutil.DoRequest(e.Router, "GET", "/api/v1/revisions/"+a+"/delta", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusBadRequest)
}

func TestBOMEndpoints(t *testing.T) {
	e := setupAPI(t)
	id := e.createDesign(t, "Placa columna C1")
	rev := e.generate(t, id, e.defaults(t))["revision_id"].(string)

	w := testutil.DoRequest(e.Router, "GET", "/api/v1/revisions/"+rev+"/bom", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	assert.Empty(t, testutil.ResponseData(w)["items"])

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/"+rev+"/bom", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	items := testutil.ResponseData(w)["items"].([]any)
	require.Len(t, items, 2)
	assert.Equal(t, "ASTM_A36", items[0].(map[string]any)["material"])

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/"+rev+"/bom/export", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	data := testutil.ResponseData(w)
	assert.True(t, strings.HasSuffix(data["bom_xlsx_path"].(string), "_A_BOM.xlsx"))
	assert.NotEmpty(t, data["fcstd_path"])

	w = testutil.DoRequest(e.Router, "POST", "/api/v1/revisions/missing/bom", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusNotFound)
}

func TestEngineStatus(t *testing.T) {
	e := setupAPI(t)
	w := testutil.DoRequest(e.Router, "GET", "/api/v1/engine", nil, e.token)
	testutil.AssertStatus(t, w, http.StatusOK)
	data := testutil.ResponseData(w)
	assert.Equal(t, "stub", data["name"])
	assert.Equal(t, true, data["available"])
}

func TestEventStream(t *testing.T) {
	e := setupAPI(t)

	ctx, cancel := context.WithCancel(context.Background())
	req := httptest.NewRequest("GET", "/api/v1/events?token="+e.token, nil).WithContext(ctx)
	w := httptest.NewRecorder()
	done := make(chan struct{})
	go func() {
		e.Router.ServeHTTP(w, req)
		close(done)
	}()

	require.Eventually(t, func() bool { return e.hub.ClientCount() == 1 }, 2*time.Second, 5*time.Millisecond)
	e.hub.Publish(sse.EventCatalogReloaded, map[string]string{"catalog_version": "1.0"})
	time.Sleep(50 * time.Millisecond)
	cancel()
	<-done

	body := w.Body.String()
	assert.Contains(t, body, "event: connected")
	assert.Contains(t, body, "event: catalog_reloaded\ndata: {\"catalog_version\":\"1.0\"}")
	assert.Equal(t, 0, e.hub.ClientCount())
}
