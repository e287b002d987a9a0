// Package workflow implements the tag-filter workflow: replace every tag whose
// name starts with a filter prefix with a single new tag.
package workflow

import (
	"context"
	"strings"

	"crm-tag-proxy/internal/common/logging"
	"crm-tag-proxy/internal/crm"
)

// LeadAPI is the slice of the CRM client the workflow consumes.
type LeadAPI interface {
	FindLeadByID(ctx context.Context, id string) (*crm.LeadEnvelope, error)
	SearchLeadsByPhone(ctx context.Context, prefix string) (*crm.LeadEnvelope, error)
	UpdateLeadTags(ctx context.Context, id string, tags []crm.Tag) error
}

// TagReplacer applies the filter-and-append rule to selected leads.
type TagReplacer struct {
	api    LeadAPI
	logger logging.Logger
}

// NewTagReplacer creates a TagReplacer over the given lead API.
func NewTagReplacer(api LeadAPI, logger logging.Logger) *TagReplacer {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &TagReplacer{api: api, logger: logger}
}

// ReplaceByIDInput selects a single lead by record id.
type ReplaceByIDInput struct {
	ID        string
	Tag       string
	TagFilter string
}

// ReplaceByPhoneInput selects every lead whose phone starts with Phone.
type ReplaceByPhoneInput struct {
	Phone     string
	Tag       string
	TagFilter string
}

// ReplaceByID rewrites the tag set of one lead. A lookup that yields no lead
// is a not-found result, not an error, and performs no update.
func (t *TagReplacer) ReplaceByID(ctx context.Context, in ReplaceByIDInput) (Result, error) {
	envelope, err := t.api.FindLeadByID(ctx, in.ID)
	if err != nil {
		return Result{}, err
	}

	if len(envelope.Data) == 0 {
		t.logger.Info("Lead not found", logging.Field{Key: "lead_id", Value: in.ID})
		return notFoundResult(), nil
	}

	lead := envelope.Data[0]
	if err := t.api.UpdateLeadTags(ctx, lead.ID, replaceTags(lead.Tags, in.Tag, in.TagFilter)); err != nil {
		return Result{}, err
	}

	t.logger.Info("Lead tags replaced",
		logging.Field{Key: "lead_id", Value: lead.ID},
		logging.Field{Key: "tag", Value: in.Tag},
		logging.Field{Key: "tag_filter", Value: in.TagFilter})

	return okResult(1), nil
}

// ReplaceByPhone rewrites the tag set of every matched lead, one update call
// per lead, sequentially. An absent result set (as opposed to an empty one) is
// a not-found result. The first failing update aborts the loop and propagates;
// earlier updates are not rolled back.
func (t *TagReplacer) ReplaceByPhone(ctx context.Context, in ReplaceByPhoneInput) (Result, error) {
	envelope, err := t.api.SearchLeadsByPhone(ctx, in.Phone)
	if err != nil {
		return Result{}, err
	}

	if envelope.Data == nil {
		t.logger.Info("No leads matched phone prefix", logging.Field{Key: "phone", Value: in.Phone})
		return notFoundResult(), nil
	}

	for i, lead := range envelope.Data {
		if err := t.api.UpdateLeadTags(ctx, lead.ID, replaceTags(lead.Tags, in.Tag, in.TagFilter)); err != nil {
			t.logger.Error("Batch tag replacement aborted", err,
				logging.Field{Key: "lead_id", Value: lead.ID},
				logging.Field{Key: "applied", Value: i},
				logging.Field{Key: "matched", Value: len(envelope.Data)})
			return Result{}, err
		}
	}

	t.logger.Info("Lead tags replaced for phone prefix",
		logging.Field{Key: "phone", Value: in.Phone},
		logging.Field{Key: "leads", Value: len(envelope.Data)})

	return okResult(len(envelope.Data)), nil
}

// replaceTags drops every tag whose name starts with filter and appends the
// new tag. Order of surviving tags is preserved; the new tag is always
// appended, even when an identical name already survives the filter.
func replaceTags(tags []crm.Tag, tag, filter string) []crm.Tag {
	updated := make([]crm.Tag, 0, len(tags)+1)
	for _, t := range tags {
		if !strings.HasPrefix(t.Name, filter) {
			updated = append(updated, t)
		}
	}
	return append(updated, crm.Tag{Name: tag})
}
