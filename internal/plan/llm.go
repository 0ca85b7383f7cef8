package plan

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/querymesh/querymesh/internal/models"
)

const llmTimeout = 30 * time.Second

// Circuit breaker configuration.
const (
	cbFailureThreshold = 5
	cbCooldown         = 30 * time.Second
)

// Circuit breaker states.
const (
	cbClosed   = iota // Normal operation.
	cbOpen            // Fail fast.
	cbHalfOpen        // Probe with one request.
)

// ErrCircuitOpen is returned internally when the breaker rejects a
// call without contacting the model endpoint.
var ErrCircuitOpen = errors.New("plan optimizer circuit breaker is open")

// LLMOptimizer rewrites plans via a local Ollama-style model endpoint.
// It is best-effort: any failure, including an open circuit breaker or
// a rewrite that fails validation, degrades to the original plan with
// a note. The circuit breaker keeps a down model from adding latency
// to every plan request.
type LLMOptimizer struct {
	baseURL string
	model   string
	log     *logrus.Logger
	client  *http.Client

	mu              sync.Mutex
	cbState         int
	cbFailures      int
	cbLastFailureAt time.Time
}

type generateRequest struct {
	Model  string `json:"model"`
	Prompt string `json:"prompt"`
	Format string `json:"format"`
	Stream bool   `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// NewLLMOptimizer creates an optimizer for the given model endpoint.
// Connections are restricted to loopback addresses.
func NewLLMOptimizer(baseURL, model string, log *logrus.Logger) *LLMOptimizer {
	transport := &http.Transport{
		DialContext: func(ctx context.Context, network, addr string) (net.Conn, error) {
			host, _, err := net.SplitHostPort(addr)
			if err != nil {
				return nil, fmt.Errorf("invalid address: %w", err)
			}

			ips, err := net.DefaultResolver.LookupIPAddr(ctx, host)
			if err != nil {
				return nil, fmt.Errorf("resolving model host: %w", err)
			}

			for _, ip := range ips {
				if !ip.IP.IsLoopback() {
					return nil, fmt.Errorf("model endpoint connections restricted to localhost")
				}
			}

			return (&net.Dialer{}).DialContext(ctx, network, addr)
		},
	}

	return &LLMOptimizer{
		baseURL: baseURL,
		model:   model,
		log:     log,
		client:  &http.Client{Timeout: llmTimeout, Transport: transport},
		cbState: cbClosed,
	}
}

// Optimize asks the model for a rewritten plan and re-validates the
// answer: acyclic, same backend set, all original operation ids
// preserved. Anything else falls back to the original plan.
func (o *LLMOptimizer) Optimize(ctx context.Context, p *models.QueryPlan, stats *Stats) (*models.QueryPlan, error) {
	rewritten, err := o.rewrite(ctx, p, stats)
	if err != nil {
		o.log.WithError(err).WithField("plan_id", p.ID).Warn("model rewrite unavailable, keeping original plan")

		original := p.Clone()
		annotate(original, "optimization skipped: model endpoint unavailable")

		return original, nil
	}

	if err := Validate(rewritten); err != nil ||
		!sameSourceSet(p, rewritten) || !idsPreserved(p, rewritten) {
		o.log.WithError(err).WithField("plan_id", p.ID).Warn("model rewrite failed validation, keeping original plan")

		original := p.Clone()
		annotate(original, "optimization skipped: model rewrite failed validation")

		return original, nil
	}

	annotate(rewritten, "rewritten by model-backed optimizer")

	return rewritten, nil
}

func (o *LLMOptimizer) rewrite(ctx context.Context, p *models.QueryPlan, stats *Stats) (*models.QueryPlan, error) {
	if err := o.cbAllow(); err != nil {
		return nil, err
	}

	result, err := o.doRewrite(ctx, p, stats)
	if err != nil {
		o.cbRecordFailure()

		return nil, err
	}

	o.cbRecordSuccess()

	return result, nil
}

func (o *LLMOptimizer) doRewrite(ctx context.Context, p *models.QueryPlan, stats *Stats) (*models.QueryPlan, error) {
	prompt, err := buildPrompt(p, stats)
	if err != nil {
		return nil, err
	}

	body, err := json.Marshal(generateRequest{
		Model:  o.model,
		Prompt: prompt,
		Format: "json",
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshaling generate request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/api/generate", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("creating generate request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := o.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling generate API: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		// Drain body so the connection can be reused.
		io.Copy(io.Discard, io.LimitReader(resp.Body, 1<<20)) //nolint:errcheck // best-effort drain before close.
		return nil, fmt.Errorf("generate API returned status %d", resp.StatusCode)
	}

	var result generateResponse

	limited := io.LimitReader(resp.Body, 10<<20) // 10 MB
	if err := json.NewDecoder(limited).Decode(&result); err != nil {
		return nil, fmt.Errorf("decoding generate response: %w", err)
	}

	var rewritten models.QueryPlan
	if err := json.Unmarshal([]byte(result.Response), &rewritten); err != nil {
		return nil, fmt.Errorf("model returned non-plan output: %w", err)
	}

	return &rewritten, nil
}

func buildPrompt(p *models.QueryPlan, stats *Stats) (string, error) {
	planJSON, err := json.Marshal(p)
	if err != nil {
		return "", fmt.Errorf("marshaling plan for prompt: %w", err)
	}

	prompt := "Rewrite this cross-backend query plan for better execution order. " +
		"Keep every operation id, keep the same source_ids, keep the dependency graph acyclic, " +
		"and set each operation's stage so independent operations share a stage. " +
		"Respond with the rewritten plan as JSON only.\nPlan: " + string(planJSON)

	if stats != nil && len(stats.RowEstimates) > 0 {
		estJSON, err := json.Marshal(stats.RowEstimates)
		if err != nil {
			return "", fmt.Errorf("marshaling stats for prompt: %w", err)
		}

		prompt += "\nRow estimates per source: " + string(estJSON)
	}

	return prompt, nil
}

func (o *LLMOptimizer) cbAllow() error {
	o.mu.Lock()
	defer o.mu.Unlock()

	switch o.cbState {
	case cbClosed:
		return nil
	case cbOpen:
		if time.Since(o.cbLastFailureAt) >= cbCooldown {
			o.cbState = cbHalfOpen

			return nil
		}

		return ErrCircuitOpen
	case cbHalfOpen:
		// Already probing, reject additional requests.
		return ErrCircuitOpen
	}

	return nil
}

func (o *LLMOptimizer) cbRecordSuccess() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cbFailures = 0
	o.cbState = cbClosed
}

func (o *LLMOptimizer) cbRecordFailure() {
	o.mu.Lock()
	defer o.mu.Unlock()

	o.cbFailures++
	o.cbLastFailureAt = time.Now()

	if o.cbFailures >= cbFailureThreshold || o.cbState == cbHalfOpen {
		o.cbState = cbOpen
	}
}
