package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/eocert/console/types"
)

// ListCertificates returns one page of certificates for the public view.
func (c *Client) ListCertificates(ctx context.Context, filter types.Filter, page, limit int) (types.CertificatePage, error) {
	return c.listCertificates(ctx, "/eo-certificates", filter, page, limit)
}

// AdminListCertificates returns one page of certificates for the admin view.
func (c *Client) AdminListCertificates(ctx context.Context, filter types.Filter, page, limit int) (types.CertificatePage, error) {
	return c.listCertificates(ctx, "/admin/eo-certificates", filter, page, limit)
}

func (c *Client) listCertificates(ctx context.Context, path string, filter types.Filter, page, limit int) (types.CertificatePage, error) {
	query := url.Values{}
	query.Set("page", strconv.Itoa(page))
	query.Set("limit", strconv.Itoa(limit))
	for key, value := range filter.Values() {
		query.Set(key, value)
	}

	var resp types.CertificatePage
	err := c.do(ctx, request{method: http.MethodGet, path: path, query: query, auth: true}, &resp)
	if err != nil {
		return types.CertificatePage{}, err
	}
	return resp, nil
}

// GetCertificate fetches one record for viewing or editing.
func (c *Client) GetCertificate(ctx context.Context, id string) (types.Certificate, error) {
	var cert types.Certificate
	err := c.do(ctx, request{method: http.MethodGet, path: "/eo-certificates/" + pathID(id), auth: true}, &cert)
	if err != nil {
		return types.Certificate{}, err
	}
	return cert, nil
}

// CreateCertificate submits a new record.
func (c *Client) CreateCertificate(ctx context.Context, cert types.Certificate) error {
	cert.ID = ""
	return c.do(ctx, request{method: http.MethodPost, path: "/admin/eo-certificates", body: cert, auth: true}, nil)
}

// UpdateCertificate replaces the record addressed by id.
func (c *Client) UpdateCertificate(ctx context.Context, id string, cert types.Certificate) error {
	cert.ID = ""
	return c.do(ctx, request{method: http.MethodPut, path: "/admin/eo-certificates/" + pathID(id), body: cert, auth: true}, nil)
}

// DeleteCertificate removes the record addressed by id.
func (c *Client) DeleteCertificate(ctx context.Context, id string) error {
	return c.do(ctx, request{method: http.MethodDelete, path: "/admin/eo-certificates/" + pathID(id), auth: true}, nil)
}

// Years lists the model years that have certificates.
func (c *Client) Years(ctx context.Context) ([]string, error) {
	return c.dropdown(ctx, "years", nil)
}

// Makes lists vehicle makes for a year.
func (c *Client) Makes(ctx context.Context, year string) ([]string, error) {
	return c.dropdown(ctx, "vehicle-makes", url.Values{"year": {year}})
}

// Models lists vehicle models for a year and make.
func (c *Client) Models(ctx context.Context, year, vehicleMake string) ([]string, error) {
	return c.dropdown(ctx, "vehicle-models", url.Values{"year": {year}, "make": {vehicleMake}})
}

// EONumbers lists EO numbers for a year, make and model.
func (c *Client) EONumbers(ctx context.Context, year, vehicleMake, model string) ([]string, error) {
	return c.dropdown(ctx, "eo-numbers", url.Values{"year": {year}, "make": {vehicleMake}, "model": {model}})
}

func (c *Client) dropdown(ctx context.Context, name string, query url.Values) ([]string, error) {
	var raw []json.RawMessage
	err := c.do(ctx, request{method: http.MethodGet, path: "/eo-certificates/dropdowns/" + name, query: query, auth: true}, &raw)
	if err != nil {
		return nil, err
	}
	return optionValues(raw)
}

// optionValues normalises dropdown entries, which arrive as strings or
// numbers depending on the column.
func optionValues(raw []json.RawMessage) ([]string, error) {
	values := make([]string, 0, len(raw))
	for _, item := range raw {
		var s string
		if err := json.Unmarshal(item, &s); err == nil {
			values = append(values, s)
			continue
		}
		var n json.Number
		if err := json.Unmarshal(item, &n); err != nil {
			return nil, fmt.Errorf("unexpected option %s", strings.TrimSpace(string(item)))
		}
		values = append(values, n.String())
	}
	return values, nil
}
