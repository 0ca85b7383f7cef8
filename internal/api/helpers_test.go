package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/plan"
	"github.com/querymesh/querymesh/internal/ws"
)

type testDeps struct {
	sources    *mockSources
	schemas    *mockSchemas
	ontology   *mockOntology
	watch      *mockWatch
	classifier *mockClassifier
	builder    *mockBuilder
}

func newTestRouter(t *testing.T, deps *testDeps) http.Handler {
	t.Helper()
	gin.SetMode(gin.TestMode)

	log := logrus.New()
	log.SetLevel(logrus.ErrorLevel)

	return NewRouter(context.Background(), &RouterDeps{
		Log:         log,
		Hub:         ws.NewHub(log),
		Sources:     deps.sources,
		Schemas:     deps.schemas,
		Ontology:    deps.ontology,
		Watch:       deps.watch,
		Classifier:  deps.classifier,
		Builder:     deps.builder,
		Optimizer:   plan.NewRuleOptimizer(log),
		CORSOrigins: []string{"http://localhost:3002"},
		Version:     "test",
	})
}

func defaultDeps() *testDeps {
	return &testDeps{
		sources:    newMockSources(),
		schemas:    newMockSchemas(),
		ontology:   newMockOntology(),
		watch:      &mockWatch{},
		classifier: &mockClassifier{},
		builder:    &mockBuilder{},
	}
}

func doJSON(t *testing.T, router http.Handler, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var reader *bytes.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			t.Fatalf("marshaling request body: %v", err)
		}
		reader = bytes.NewReader(data)
	} else {
		reader = bytes.NewReader(nil)
	}

	req := httptest.NewRequest(method, path, reader)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	return w
}

func decodeBody(t *testing.T, w *httptest.ResponseRecorder, into any) {
	t.Helper()

	if err := json.Unmarshal(w.Body.Bytes(), into); err != nil {
		t.Fatalf("decoding response %q: %v", w.Body.String(), err)
	}
}
