package api

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/querymesh/querymesh/internal/models"
)

func TestClassify(t *testing.T) {
	deps := defaultDeps()
	deps.classifier.result = &models.ClassificationResult{
		Question: "find customers",
		Selected: []models.SourceMatch{
			{SourceID: "rel1", Name: "crm", Kind: models.KindRelational, Score: 3},
		},
		Reasoning: "keyword overlap with customers",
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/classify", models.ClassifyRequest{Question: "find customers"})

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}

	var result models.ClassificationResult
	decodeBody(t, w, &result)

	if len(result.Selected) != 1 || result.Selected[0].SourceID != "rel1" {
		t.Errorf("unexpected result: %+v", result)
	}
}

func TestClassify_EmptyQuestionRejected(t *testing.T) {
	router := newTestRouter(t, defaultDeps())

	w := doJSON(t, router, http.MethodPost, "/api/v1/classify", models.ClassifyRequest{})

	if w.Code != http.StatusBadRequest {
		t.Errorf("got status %d, want 400", w.Code)
	}
}

func TestPlan_EmptyClassificationYieldsNullPlan(t *testing.T) {
	deps := defaultDeps()
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/plan", models.ClassifyRequest{Question: "unrelated question"})

	if w.Code != http.StatusOK {
		t.Fatalf("empty selection is not an error, got status %d", w.Code)
	}

	var resp struct {
		Plan *models.QueryPlan `json:"plan"`
	}
	decodeBody(t, w, &resp)

	if resp.Plan != nil {
		t.Errorf("expected null plan, got %+v", resp.Plan)
	}
}

func TestPlan_BuildsAndOptimizes(t *testing.T) {
	deps := defaultDeps()
	deps.classifier.result = &models.ClassificationResult{
		Question: "q",
		Selected: []models.SourceMatch{
			{SourceID: "a", Name: "a", Kind: models.KindRelational},
			{SourceID: "b", Name: "b", Kind: models.KindVector},
		},
	}
	deps.builder.plan = &models.QueryPlan{
		ID:        "p1",
		Question:  "q",
		SourceIDs: []string{"a", "b"},
		Operations: []models.Operation{
			{ID: "op1", SourceID: "a", Kind: models.OpFilter, Payload: json.RawMessage(`{}`)},
			{ID: "op2", SourceID: "b", Kind: models.OpLookup, Payload: json.RawMessage(`{}`), DependsOn: []string{"op1"}},
		},
	}
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/plan", models.ClassifyRequest{Question: "q"})

	if w.Code != http.StatusOK {
		t.Fatalf("got status %d, body %s", w.Code, w.Body.String())
	}

	var resp struct {
		Plan *models.QueryPlan `json:"plan"`
	}
	decodeBody(t, w, &resp)

	if resp.Plan == nil {
		t.Fatal("expected a plan")
	}

	op2 := resp.Plan.Operation("op2")
	if op2 == nil || op2.Stage != 2 {
		t.Errorf("optimizer should have staged op2 second, got %+v", op2)
	}
}

func TestPlan_InvalidPlanSurfaces(t *testing.T) {
	deps := defaultDeps()
	deps.classifier.result = &models.ClassificationResult{
		Question: "q",
		Selected: []models.SourceMatch{{SourceID: "a", Name: "a", Kind: models.KindRelational}},
	}
	deps.builder.err = models.ErrPlanInvalid
	router := newTestRouter(t, deps)

	w := doJSON(t, router, http.MethodPost, "/api/v1/plan", models.ClassifyRequest{Question: "q"})

	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("got status %d, want 422", w.Code)
	}
}
