package api

import (
	"net/http"
	"testing"

	"github.com/querymesh/querymesh/internal/models"
)

func TestRegisterSource_StartsWatcher(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sources", models.RegisterSourceRequest{
		Name: "orders-db",
		Kind: models.KindRelational,
		DSN:  "postgres://localhost/orders",
	})

	if w.Code != http.StatusCreated {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}

	var src models.DataSource
	decodeBody(t, w, &src)

	if src.ID == "" {
		t.Error("registration should assign an id")
	}
	if len(deps.watch.added) != 1 || deps.watch.added[0] != src.ID {
		t.Errorf("watcher should be started for the new source, got %v", deps.watch.added)
	}
}

func TestRegisterSource_ValidationErrors(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	tests := []struct {
		name string
		req  models.RegisterSourceRequest
	}{
		{"missing name", models.RegisterSourceRequest{Kind: models.KindRelational, DSN: "postgres://x"}},
		{"missing dsn", models.RegisterSourceRequest{Name: "a", Kind: models.KindRelational}},
		{"bad kind", models.RegisterSourceRequest{Name: "a", Kind: "graph", DSN: "x"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doJSON(t, router, http.MethodPost, "/api/v1/sources", tt.req)
			if w.Code != http.StatusBadRequest {
				t.Errorf("got status %d, want 400", w.Code)
			}
		})
	}
}

func TestDeregisterSource_StopsWatcherFirst(t *testing.T) {
	deps := defaultDeps()
	deps.sources.sources["src1"] = &models.DataSource{ID: "src1", Name: "orders-db", Kind: models.KindRelational}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodDelete, "/api/v1/sources/src1", nil)

	if w.Code != http.StatusNoContent {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	if len(deps.watch.removed) != 1 || deps.watch.removed[0] != "src1" {
		t.Errorf("watcher should be removed, got %v", deps.watch.removed)
	}
	if _, ok := deps.sources.sources["src1"]; ok {
		t.Error("source should be gone from the store")
	}
}

func TestGetSource_NotFound(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	w := doJSON(t, router, http.MethodGet, "/api/v1/sources/missing", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", w.Code)
	}
}

func TestForceCheck(t *testing.T) {
	deps := defaultDeps()
	deps.schemas.current["src1"] = &models.SchemaVersion{SourceID: "src1", Seq: 2}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sources/src1/check", nil)

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}
	if len(deps.watch.checked) != 1 || deps.watch.checked[0] != "src1" {
		t.Errorf("force check should reach the watch manager, got %v", deps.watch.checked)
	}
}

func TestForceCheck_UnknownSource(t *testing.T) {
	deps := defaultDeps()
	deps.watch.checkErr = models.ErrSourceNotFound
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/sources/nope/check", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404", w.Code)
	}
}

func TestCurrentSchema_NeverIntrospected(t *testing.T) {
	deps := defaultDeps()
	deps.sources.sources["src1"] = &models.DataSource{ID: "src1", Name: "orders-db", Kind: models.KindRelational}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodGet, "/api/v1/sources/src1/schema", nil)

	if w.Code != http.StatusNotFound {
		t.Errorf("got status %d, want 404 for a source with no versions", w.Code)
	}
}

func TestHealthEndpoints(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	if w := doJSON(t, router, http.MethodGet, "/api/v1/health", nil); w.Code != http.StatusOK {
		t.Errorf("health: got status %d", w.Code)
	}
	if w := doJSON(t, router, http.MethodGet, "/api/v1/ready", nil); w.Code != http.StatusOK {
		t.Errorf("ready: got status %d", w.Code)
	}
}

func TestOntologyCRUD(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/ontology", models.PutOntologyMappingRequest{
		Term:       "customer",
		SourceID:   "src1",
		EntityName: "customers",
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("put: got status %d, body %s", w.Code, w.Body.String())
	}

	if w := doJSON(t, router, http.MethodGet, "/api/v1/ontology", nil); w.Code != http.StatusOK {
		t.Errorf("list: got status %d", w.Code)
	}

	if w := doJSON(t, router, http.MethodDelete, "/api/v1/ontology/m1", nil); w.Code != http.StatusNoContent {
		t.Errorf("delete: got status %d", w.Code)
	}

	if w := doJSON(t, router, http.MethodDelete, "/api/v1/ontology/m1", nil); w.Code != http.StatusNotFound {
		t.Errorf("delete again: got status %d, want 404", w.Code)
	}
}
