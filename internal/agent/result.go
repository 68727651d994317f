package agent

// Status tags every capability owner reports. None of them is a failure from
// the scheduler's point of view.
type Status string

const (
	StatusFound           Status = "found"
	StatusNotFound        Status = "not_found"
	StatusDrafted         Status = "drafted"
	StatusUnsupportedStep Status = "unsupported_step"
	StatusUnknownStep     Status = "unknown_step"
)

// Valid reports whether s belongs to the closed set of status tags.
func (s Status) Valid() bool {
	switch s {
	case StatusFound, StatusNotFound, StatusDrafted, StatusUnsupportedStep, StatusUnknownStep:
		return true
	}
	return false
}

// StepResult is the outcome of a single plan step.
type StepResult struct {
	Status Status                 `json:"status"`
	Step   string                 `json:"step"`
	Data   map[string]interface{} `json:"data,omitempty"`
}

// String returns a payload field as a string, or "" when absent.
func (r StepResult) String(key string) string {
	if r.Data == nil {
		return ""
	}
	if v, ok := r.Data[key].(string); ok {
		return v
	}
	return ""
}

// Found builds a found result.
func Found(step string, data map[string]interface{}) StepResult {
	return StepResult{Status: StatusFound, Step: step, Data: data}
}

// NotFound builds a not_found result with a human readable message.
func NotFound(step, message string) StepResult {
	r := StepResult{Status: StatusNotFound, Step: step}
	if message != "" {
		r.Data = map[string]interface{}{"message": message}
	}
	return r
}

// Unsupported is returned by an owner for a step id it does not handle.
func Unsupported(step string) StepResult {
	return StepResult{Status: StatusUnsupportedStep, Step: step}
}

// Unknown is returned by the dispatcher when no owner is mapped to the step id.
func Unknown(step string) StepResult {
	return StepResult{Status: StatusUnknownStep, Step: step}
}
