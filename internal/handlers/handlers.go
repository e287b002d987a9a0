// Package handlers implements the proxy's inbound HTTP surface.
package handlers

import (
	"context"
	"encoding/json"
	"net/http"

	"crm-tag-proxy/internal/common/errors"
	"crm-tag-proxy/internal/common/logging"
	"crm-tag-proxy/internal/workflow"
)

// TagWorkflow is the slice of the workflow layer the handlers consume.
type TagWorkflow interface {
	ReplaceByID(ctx context.Context, in workflow.ReplaceByIDInput) (workflow.Result, error)
	ReplaceByPhone(ctx context.Context, in workflow.ReplaceByPhoneInput) (workflow.Result, error)
}

// HealthChecker reports the health of a backing dependency.
type HealthChecker interface {
	Health() error
}

type Handlers struct {
	replacer TagWorkflow
	store    HealthChecker
	logger   logging.Logger
}

func New(replacer TagWorkflow, store HealthChecker, logger logging.Logger) *Handlers {
	if logger == nil {
		logger = logging.GetGlobalLogger()
	}
	return &Handlers{
		replacer: replacer,
		store:    store,
		logger:   logger,
	}
}

// replaceTagsRequest is the JSON body of the tag replacement endpoint. Exactly
// one selector is used: phone wins over id when both are present. An absent
// tagFilter is accepted and matches every tag name as a prefix, so the lead
// ends up with the new tag as its only tag.
type replaceTagsRequest struct {
	Phone     string `json:"phone,omitempty"`
	ID        string `json:"id,omitempty"`
	Tag       string `json:"tag"`
	TagFilter string `json:"tagFilter"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// HandleReplaceTags routes the request to the by-phone or by-id workflow and
// maps the outcome: success to 200, not-found to 400, any failure to 500.
func (h *Handlers) HandleReplaceTags(w http.ResponseWriter, r *http.Request) {
	var req replaceTagsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "invalid JSON body"})
		return
	}

	var (
		result workflow.Result
		err    error
	)
	switch {
	case req.Phone != "" && req.Tag != "":
		result, err = h.replacer.ReplaceByPhone(r.Context(), workflow.ReplaceByPhoneInput{
			Phone:     req.Phone,
			Tag:       req.Tag,
			TagFilter: req.TagFilter,
		})
	case req.ID != "" && req.Tag != "":
		result, err = h.replacer.ReplaceByID(r.Context(), workflow.ReplaceByIDInput{
			ID:        req.ID,
			Tag:       req.Tag,
			TagFilter: req.TagFilter,
		})
	default:
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "request requires tag and either phone or id"})
		return
	}

	if err != nil {
		h.logger.Error("Tag replacement failed", err,
			logging.Field{Key: "error_type", Value: errors.GetType(err)},
			logging.Field{Key: "phone", Value: req.Phone},
			logging.Field{Key: "lead_id", Value: req.ID})
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal server error"})
		return
	}

	if result.Status == workflow.StatusNotFound {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "no matching lead"})
		return
	}

	writeJSON(w, http.StatusOK, result)
}

// HealthCheck reports service and credential store health.
func (h *Handlers) HealthCheck(w http.ResponseWriter, r *http.Request) {
	status := map[string]string{"service": "ok", "store": "ok"}
	code := http.StatusOK

	if h.store != nil {
		if err := h.store.Health(); err != nil {
			status["store"] = err.Error()
			code = http.StatusServiceUnavailable
		}
	}

	writeJSON(w, code, status)
}

func writeJSON(w http.ResponseWriter, status int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(body)
}
