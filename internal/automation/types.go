package automation

// Condition types.
const (
	ConditionTimeRange       = "time_range"
	ConditionDaysOfWeek      = "days_of_week"
	ConditionSensorThreshold = "sensor_threshold"
	ConditionCron            = "cron"
)

// Action types.
const (
	ActionSetActuator = "set_actuator"
	ActionRunAIAgent  = "run_ai_agent"
)

// Document is the on-disk rule set. External collaborators write it
// atomically; this core only reads it.
type Document struct {
	Version  string   `json:"version"`
	Rules    []Rule   `json:"rules"`
	Metadata Metadata `json:"metadata"`
}

// Metadata records who last touched the rule document.
type Metadata struct {
	LastModified string `json:"last_modified,omitempty"`
	ModifiedBy   string `json:"modified_by,omitempty"`
}

// Rule is one automation rule. Rules are evaluated in descending
// priority order, ties broken by document order.
type Rule struct {
	ID          string     `json:"id"`
	Name        string     `json:"name"`
	Description string     `json:"description,omitempty"`
	Enabled     bool       `json:"enabled"`
	Priority    int        `json:"priority"`
	Conditions  Conditions `json:"conditions"`
	Actions     []Action   `json:"actions"`
}

// Conditions groups a rule's condition tree: all_of is a short-circuit
// AND, any_of a short-circuit OR applied only when present.
type Conditions struct {
	AllOf []Condition `json:"all_of,omitempty"`
	AnyOf []Condition `json:"any_of,omitempty"`
}

// Condition is a tagged union over the condition types. Only the
// fields for the given Type are meaningful.
type Condition struct {
	Type string `json:"type"`

	// time_range, HH:MM wall clock, overnight wraparound supported.
	StartTime string `json:"start_time,omitempty"`
	EndTime   string `json:"end_time,omitempty"`

	// days_of_week, lowercase English day names.
	Days []string `json:"days,omitempty"`

	// sensor_threshold.
	DeviceKey string  `json:"device_key,omitempty"`
	MetricKey string  `json:"metric_key,omitempty"`
	Operator  string  `json:"operator,omitempty"`
	Value     float64 `json:"value,omitempty"`

	// cron, standard five-field expression.
	Expression string `json:"expression,omitempty"`
}

// Action is a tagged union over the action types.
type Action struct {
	Type string `json:"type"`

	// set_actuator.
	DeviceKey   string `json:"device_key,omitempty"`
	ActuatorKey string `json:"actuator_key,omitempty"`
	State       string `json:"state,omitempty"`

	// run_ai_agent.
	Prompt string `json:"prompt,omitempty"`
}
