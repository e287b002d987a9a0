package crm

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"

	"crm-tag-proxy/internal/common/errors"
)

// Tag is a named label attached to a lead.
type Tag struct {
	Name string `json:"name"`
}

// Lead is the subset of the CRM lead entity this proxy touches. The proxy never
// creates or deletes leads; it only rewrites their Tag sequence.
type Lead struct {
	ID       string `json:"id"`
	Phone    string `json:"Phone"`
	FullName string `json:"Full_Name,omitempty"`
	Tags     []Tag  `json:"Tag"`
}

// LeadEnvelope is the API envelope wrapping lead results. Data stays nil when
// the API answers with no body (no match on a search), which callers must
// distinguish from an empty result set.
type LeadEnvelope struct {
	Data []Lead `json:"data"`
}

// FindLeadByID fetches one lead by its record id. Callers must defensively
// check for an empty Data slice.
func (c *Client) FindLeadByID(ctx context.Context, id string) (*LeadEnvelope, error) {
	body, err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/Leads/" + id,
	})
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(body)
}

// SearchLeadsByPhone returns every lead whose phone number starts with prefix.
func (c *Client) SearchLeadsByPhone(ctx context.Context, prefix string) (*LeadEnvelope, error) {
	query := url.Values{}
	query.Set("criteria", "Phone:starts_with:"+prefix)
	query.Set("fields", "id,Phone,Full_Name,Tag")

	body, err := c.Execute(ctx, Request{
		Method: http.MethodGet,
		Path:   "/Leads/search",
		Query:  query,
	})
	if err != nil {
		return nil, err
	}
	return decodeEnvelope(body)
}

// UpdateLeadTags replaces the entire tag collection of the given lead.
func (c *Client) UpdateLeadTags(ctx context.Context, id string, tags []Tag) error {
	_, err := c.Execute(ctx, Request{
		Method: http.MethodPut,
		Path:   "/Leads/" + id,
		Body: map[string]interface{}{
			"data": []map[string]interface{}{
				{"Tag": tags},
			},
		},
	})
	return err
}

func decodeEnvelope(body []byte) (*LeadEnvelope, error) {
	// A 204 from the search endpoint carries no body at all.
	if len(body) == 0 {
		return &LeadEnvelope{}, nil
	}
	var envelope LeadEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, errors.APIError("failed to decode lead envelope", err)
	}
	return &envelope, nil
}
