package model

import (
	"strconv"
	"time"
)

// Execution record status constants.
const (
	StatusPending   = "pending"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
	StatusCancelled = "cancelled"
)

// Parameter type constants.
const (
	ParamString = "string"
	ParamDouble = "double"
	ParamBool   = "boolean"
)

// validTransitions maps each status to the set of statuses it may transition to.
var validTransitions = map[string]map[string]bool{
	StatusPending: {
		StatusRunning:   true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
	StatusRunning: {
		StatusCompleted: true,
		StatusFailed:    true,
		StatusCancelled: true,
	},
}

// ValidTransition reports whether transitioning from one status to another is allowed.
func ValidTransition(from, to string) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// IsTerminal reports whether status is a final state.
func IsTerminal(status string) bool {
	return status == StatusCompleted || status == StatusFailed || status == StatusCancelled
}

// Param is a single named parameter of an execution record. Values are kept
// in their string form so that records round-trip through storage unchanged.
type Param struct {
	Name  string `json:"name"`
	Type  string `json:"type"`
	Value string `json:"value"`
}

// LogLine represents a single persisted output line of an execution.
type LogLine struct {
	ID        int64     `json:"id"`
	RecordID  string    `json:"record_id"`
	Seq       int       `json:"seq"`
	Line      string    `json:"line"`
	CreatedAt time.Time `json:"created_at"`
}

// ExecutionRecord is the transient parameter bag for one invocation of an
// external command-line module.
type ExecutionRecord struct {
	ID         string     `json:"id"`
	Module     string     `json:"module"`
	Status     string     `json:"status"`
	Params     []Param    `json:"params"`
	ExitCode   *int       `json:"exit_code,omitempty"`
	Output     []byte     `json:"output,omitempty"`
	Error      string     `json:"error,omitempty"`
	DurationMS *int       `json:"duration_ms,omitempty"`
	CreatedAt  time.Time  `json:"created_at"`
	StartedAt  *time.Time `json:"started_at,omitempty"`
	FinishedAt *time.Time `json:"finished_at,omitempty"`
}

// SetString sets a string parameter, replacing any previous value of the same name.
func (r *ExecutionRecord) SetString(name, value string) {
	r.set(Param{Name: name, Type: ParamString, Value: value})
}

// SetDouble sets a floating point parameter.
func (r *ExecutionRecord) SetDouble(name string, value float64) {
	r.set(Param{Name: name, Type: ParamDouble, Value: strconv.FormatFloat(value, 'g', -1, 64)})
}

// SetBool sets a boolean parameter.
func (r *ExecutionRecord) SetBool(name string, value bool) {
	r.set(Param{Name: name, Type: ParamBool, Value: strconv.FormatBool(value)})
}

// Param returns the parameter with the given name.
func (r *ExecutionRecord) Param(name string) (Param, bool) {
	for _, p := range r.Params {
		if p.Name == name {
			return p, true
		}
	}
	return Param{}, false
}

func (r *ExecutionRecord) set(p Param) {
	for i := range r.Params {
		if r.Params[i].Name == p.Name {
			r.Params[i] = p
			return
		}
	}
	r.Params = append(r.Params, p)
}
