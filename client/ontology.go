package client

import (
	"context"
	"net/url"
)

// OntologyService manages business term to entity mappings.
type OntologyService struct {
	c *Client
}

// List returns all ontology mappings.
func (s *OntologyService) List(ctx context.Context) ([]OntologyMapping, error) {
	var resp mappingListResponse
	if err := s.c.get(ctx, "/api/v1/ontology", nil, &resp); err != nil {
		return nil, err
	}
	return resp.Mappings, nil
}

// Put creates a mapping from a business term to an entity in a source.
func (s *OntologyService) Put(ctx context.Context, req *PutOntologyMappingRequest) (*OntologyMapping, error) {
	var mapping OntologyMapping
	if err := s.c.post(ctx, "/api/v1/ontology", req, &mapping); err != nil {
		return nil, err
	}
	return &mapping, nil
}

// Delete removes a mapping by ID.
func (s *OntologyService) Delete(ctx context.Context, id string) error {
	return s.c.del(ctx, "/api/v1/ontology/"+url.PathEscape(id))
}
