package client

import (
	"context"
	"net/url"
	"strconv"
)

// SourceService handles data source registration and schema inspection.
type SourceService struct {
	c *Client
}

// List returns registered sources, optionally filtered by kind.
func (s *SourceService) List(ctx context.Context, kind string) ([]DataSource, error) {
	params := url.Values{}
	if kind != "" {
		params.Set("kind", kind)
	}
	var resp sourceListResponse
	if err := s.c.get(ctx, "/api/v1/sources", params, &resp); err != nil {
		return nil, err
	}
	return resp.Sources, nil
}

// Register registers a backend and starts watching it for schema changes.
func (s *SourceService) Register(ctx context.Context, req *RegisterSourceRequest) (*DataSource, error) {
	var src DataSource
	if err := s.c.post(ctx, "/api/v1/sources", req, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// Get returns a single source by ID.
func (s *SourceService) Get(ctx context.Context, id string) (*DataSource, error) {
	var src DataSource
	if err := s.c.get(ctx, "/api/v1/sources/"+url.PathEscape(id), nil, &src); err != nil {
		return nil, err
	}
	return &src, nil
}

// Deregister removes a source and stops its watcher. Recorded schema
// versions are kept for audit.
func (s *SourceService) Deregister(ctx context.Context, id string) error {
	return s.c.del(ctx, "/api/v1/sources/"+url.PathEscape(id))
}

// ForceCheck runs an immediate schema check on one source, bypassing
// the poll interval.
func (s *SourceService) ForceCheck(ctx context.Context, id string) (*CheckResponse, error) {
	var resp CheckResponse
	if err := s.c.post(ctx, "/api/v1/sources/"+url.PathEscape(id)+"/check", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// ForceCheckAll runs an immediate schema check on every watched source.
func (s *SourceService) ForceCheckAll(ctx context.Context) (*CheckResponse, error) {
	var resp CheckResponse
	if err := s.c.post(ctx, "/api/v1/sources/check", nil, &resp); err != nil {
		return nil, err
	}
	return &resp, nil
}

// CurrentSchema returns the source's current schema version. A source
// that has never been introspected yields a 404.
func (s *SourceService) CurrentSchema(ctx context.Context, id string) (*SchemaVersion, error) {
	var version SchemaVersion
	if err := s.c.get(ctx, "/api/v1/sources/"+url.PathEscape(id)+"/schema", nil, &version); err != nil {
		return nil, err
	}
	return &version, nil
}

// Versions returns recorded schema versions for a source, newest first.
// limit <= 0 uses the server default.
func (s *SourceService) Versions(ctx context.Context, id string, limit int) ([]SchemaVersion, error) {
	params := url.Values{}
	if limit > 0 {
		params.Set("limit", strconv.Itoa(limit))
	}
	var resp versionListResponse
	if err := s.c.get(ctx, "/api/v1/sources/"+url.PathEscape(id)+"/versions", params, &resp); err != nil {
		return nil, err
	}
	return resp.Versions, nil
}
