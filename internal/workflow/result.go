package workflow

// Status is the non-error outcome of a workflow run. Not finding a lead is a
// normal outcome and is returned as a value, never as an error.
type Status string

const (
	// StatusOK means every requested update was applied.
	StatusOK Status = "ok"
	// StatusNotFound means the lead selector matched nothing.
	StatusNotFound Status = "not_found"
)

// Result reports the outcome of a tag replacement run.
type Result struct {
	Status Status `json:"status"`
	// UpdatedLeads is the number of leads whose tag set was rewritten.
	UpdatedLeads int `json:"updated_leads"`
}

func okResult(updated int) Result {
	return Result{Status: StatusOK, UpdatedLeads: updated}
}

func notFoundResult() Result {
	return Result{Status: StatusNotFound}
}
