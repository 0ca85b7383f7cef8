package client

import "context"

// QueryService routes natural-language questions to sources and plans.
type QueryService struct {
	c *Client
}

type classifyRequest struct {
	Question string `json:"question"`
}

// Classify ranks registered sources by relevance to the question. An
// empty Selected slice means no source cleared the relevance floor.
func (s *QueryService) Classify(ctx context.Context, question string) (*ClassificationResult, error) {
	var result ClassificationResult
	if err := s.c.post(ctx, "/api/v1/classify", classifyRequest{Question: question}, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// Plan classifies the question and builds an optimized query plan.
// Plan is nil in the response when classification selected no sources.
func (s *QueryService) Plan(ctx context.Context, question string) (*PlanResponse, error) {
	var resp PlanResponse
	if err := s.c.post(ctx, "/api/v1/plan", classifyRequest{Question: question}, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}
