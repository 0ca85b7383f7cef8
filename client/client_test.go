package client

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

// newTestServer creates a test server that routes to the given handler map.
// Keys are "METHOD /path", values are handler funcs.
func newTestServer(t *testing.T, routes map[string]http.HandlerFunc) (*httptest.Server, *Client) {
	t.Helper()
	mux := http.NewServeMux()
	for pattern, handler := range routes {
		mux.HandleFunc(pattern, handler)
	}
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	c := New(srv.URL, WithAPIKey("test-key"))
	return srv, c
}

func jsonResponse(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v) //nolint:errcheck
}

func TestHealth(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, r *http.Request) {
			if got := r.Header.Get("Authorization"); got != "Bearer test-key" {
				t.Errorf("got auth header %q", got)
			}
			jsonResponse(w, 200, HealthResponse{Status: "ok", Version: "0.3.0"})
		},
	})
	resp, err := c.Health(context.Background())
	if err != nil {
		t.Fatalf("Health() error: %v", err)
	}
	if resp.Status != "ok" {
		t.Errorf("got status %q, want ok", resp.Status)
	}
}

func TestSourcesLifecycle(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/sources": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"sources": []DataSource{{ID: "src1", Name: "orders-db"}}})
		},
		"POST /api/v1/sources": func(w http.ResponseWriter, r *http.Request) {
			var req RegisterSourceRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 201, DataSource{ID: "src2", Name: req.Name, Kind: req.Kind})
		},
		"GET /api/v1/sources/src1": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, DataSource{ID: "src1", Name: "orders-db"})
		},
		"DELETE /api/v1/sources/src1": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(204)
		},
		"POST /api/v1/sources/src1/check": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, CheckResponse{Status: "checked", Version: &SchemaVersion{SourceID: "src1", Seq: 3}})
		},
	})

	ctx := context.Background()

	sources, err := c.Sources.List(ctx, "")
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(sources) != 1 || sources[0].ID != "src1" {
		t.Errorf("List: got %+v", sources)
	}

	src, err := c.Sources.Register(ctx, &RegisterSourceRequest{Name: "docs", Kind: "document", DSN: "mongodb://localhost"})
	if err != nil {
		t.Fatalf("Register error: %v", err)
	}
	if src.ID != "src2" || src.Name != "docs" {
		t.Errorf("Register: got %+v", src)
	}

	if _, err := c.Sources.Get(ctx, "src1"); err != nil {
		t.Errorf("Get error: %v", err)
	}

	check, err := c.Sources.ForceCheck(ctx, "src1")
	if err != nil {
		t.Fatalf("ForceCheck error: %v", err)
	}
	if check.Version == nil || check.Version.Seq != 3 {
		t.Errorf("ForceCheck: got %+v", check)
	}

	if err := c.Sources.Deregister(ctx, "src1"); err != nil {
		t.Errorf("Deregister error: %v", err)
	}
}

func TestCurrentSchemaAndVersions(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/sources/src1/schema": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, SchemaVersion{
				SourceID: "src1",
				Seq:      2,
				Document: SchemaDocument{Entities: []Entity{{Name: "orders"}}},
			})
		},
		"GET /api/v1/sources/src1/versions": func(w http.ResponseWriter, r *http.Request) {
			if got := r.URL.Query().Get("limit"); got != "10" {
				t.Errorf("got limit %q, want 10", got)
			}
			jsonResponse(w, 200, map[string]any{"versions": []SchemaVersion{{Seq: 2}, {Seq: 1}}})
		},
	})

	ctx := context.Background()

	version, err := c.Sources.CurrentSchema(ctx, "src1")
	if err != nil {
		t.Fatalf("CurrentSchema error: %v", err)
	}
	if version.Seq != 2 || len(version.Document.Entities) != 1 {
		t.Errorf("CurrentSchema: got %+v", version)
	}

	versions, err := c.Sources.Versions(ctx, "src1", 10)
	if err != nil {
		t.Fatalf("Versions error: %v", err)
	}
	if len(versions) != 2 || versions[0].Seq != 2 {
		t.Errorf("Versions: got %+v", versions)
	}
}

func TestClassifyAndPlan(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/classify": func(w http.ResponseWriter, r *http.Request) {
			var req classifyRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 200, ClassificationResult{
				Question: req.Question,
				Selected: []SourceMatch{{SourceID: "rel1", Score: 3.5}},
			})
		},
		"POST /api/v1/plan": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, PlanResponse{
				Classification: &ClassificationResult{Selected: []SourceMatch{{SourceID: "rel1"}}},
				Plan: &QueryPlan{
					ID:         "p1",
					Operations: []Operation{{ID: "op1", SourceID: "rel1", Kind: "filter"}},
				},
			})
		},
	})

	ctx := context.Background()

	result, err := c.Query.Classify(ctx, "find customers")
	if err != nil {
		t.Fatalf("Classify error: %v", err)
	}
	if result.Question != "find customers" || len(result.Selected) != 1 {
		t.Errorf("Classify: got %+v", result)
	}

	resp, err := c.Query.Plan(ctx, "find customers")
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if resp.Plan == nil || len(resp.Plan.Operations) != 1 {
		t.Errorf("Plan: got %+v", resp)
	}
}

func TestPlan_NullPlanForEmptySelection(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/plan": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{
				"classification": ClassificationResult{Question: "q"},
				"plan":           nil,
			})
		},
	})

	resp, err := c.Query.Plan(context.Background(), "q")
	if err != nil {
		t.Fatalf("Plan error: %v", err)
	}
	if resp.Plan != nil {
		t.Errorf("expected nil plan, got %+v", resp.Plan)
	}
}

func TestOntologyCRUD(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"POST /api/v1/ontology": func(w http.ResponseWriter, r *http.Request) {
			var req PutOntologyMappingRequest
			json.NewDecoder(r.Body).Decode(&req) //nolint:errcheck
			jsonResponse(w, 201, OntologyMapping{ID: "m1", Term: req.Term, SourceID: req.SourceID})
		},
		"GET /api/v1/ontology": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 200, map[string]any{"mappings": []OntologyMapping{{ID: "m1", Term: "customer"}}})
		},
		"DELETE /api/v1/ontology/m1": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(204)
		},
	})

	ctx := context.Background()

	mapping, err := c.Ontology.Put(ctx, &PutOntologyMappingRequest{Term: "customer", SourceID: "rel1", EntityName: "customers"})
	if err != nil {
		t.Fatalf("Put error: %v", err)
	}
	if mapping.ID != "m1" {
		t.Errorf("Put: got %+v", mapping)
	}

	mappings, err := c.Ontology.List(ctx)
	if err != nil {
		t.Fatalf("List error: %v", err)
	}
	if len(mappings) != 1 {
		t.Errorf("List: got %+v", mappings)
	}

	if err := c.Ontology.Delete(ctx, "m1"); err != nil {
		t.Errorf("Delete error: %v", err)
	}
}

func TestAPIErrorParsing(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/sources/missing": func(w http.ResponseWriter, _ *http.Request) {
			jsonResponse(w, 404, map[string]string{"code": "not_found", "message": "data source not found"})
		},
	})

	_, err := c.Sources.Get(context.Background(), "missing")
	if err == nil {
		t.Fatal("expected an error")
	}
	if !IsNotFound(err) {
		t.Errorf("IsNotFound should match, got %v", err)
	}

	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "not_found" {
		t.Errorf("got code %q", apiErr.Code)
	}
}

func TestAPIErrorNonJSONBody(t *testing.T) {
	_, c := newTestServer(t, map[string]http.HandlerFunc{
		"GET /api/v1/health": func(w http.ResponseWriter, _ *http.Request) {
			w.WriteHeader(502)
			w.Write([]byte("bad gateway")) //nolint:errcheck
		},
	})

	_, err := c.Health(context.Background())
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Code != "unknown" || apiErr.Message != "bad gateway" {
		t.Errorf("got %+v", apiErr)
	}
}
