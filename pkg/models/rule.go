package models

// RuleType categorizes what part of the product a rule watches
type RuleType string

const (
	RuleTypePerformance RuleType = "performance"
	RuleTypeError       RuleType = "error"
	RuleTypeSecurity    RuleType = "security"
	RuleTypeBusiness    RuleType = "business"
)

// RuleCondition is the comparison applied between a metric value and a threshold
type RuleCondition string

const (
	ConditionGreaterThan RuleCondition = "greater_than"
	ConditionLessThan    RuleCondition = "less_than"
	ConditionEquals      RuleCondition = "equals"
	ConditionNotEquals   RuleCondition = "not_equals"
)

// Satisfied reports whether value compared against threshold meets the condition.
// Unknown conditions never match.
func (c RuleCondition) Satisfied(value, threshold float64) bool {
	switch c {
	case ConditionGreaterThan:
		return value > threshold
	case ConditionLessThan:
		return value < threshold
	case ConditionEquals:
		return value == threshold
	case ConditionNotEquals:
		return value != threshold
	default:
		return false
	}
}

// Valid reports whether c is one of the supported conditions
func (c RuleCondition) Valid() bool {
	switch c {
	case ConditionGreaterThan, ConditionLessThan, ConditionEquals, ConditionNotEquals:
		return true
	}
	return false
}

// RuleSeverity represents the severity level of a rule and the alerts it fires
type RuleSeverity string

const (
	SeverityLow      RuleSeverity = "low"
	SeverityMedium   RuleSeverity = "medium"
	SeverityHigh     RuleSeverity = "high"
	SeverityCritical RuleSeverity = "critical"
)

// AlertRule is a monitoring policy evaluated on every engine tick.
// ID is immutable once created; everything else can be tuned via update.
type AlertRule struct {
	ID              string        `json:"id"`
	Name            string        `json:"name"`
	Type            RuleType      `json:"type"`
	Metric          string        `json:"metric"`
	Condition       RuleCondition `json:"condition"`
	Threshold       float64       `json:"threshold"`
	Severity        RuleSeverity  `json:"severity"`
	IsEnabled       bool          `json:"isEnabled"`
	CooldownMinutes int           `json:"cooldownMinutes"`
}

// DefaultRules returns the built-in rule set the registry is seeded with.
// Values are tuning defaults, not fixed policy; callers may update them.
func DefaultRules() []AlertRule {
	return []AlertRule{
		{
			ID:              "lcp-threshold",
			Name:            "High LCP Alert",
			Type:            RuleTypePerformance,
			Metric:          "largest_contentful_paint",
			Condition:       ConditionGreaterThan,
			Threshold:       4000,
			Severity:        SeverityHigh,
			IsEnabled:       true,
			CooldownMinutes: 15,
		},
		{
			ID:              "fid-threshold",
			Name:            "High FID Alert",
			Type:            RuleTypePerformance,
			Metric:          "first_input_delay",
			Condition:       ConditionGreaterThan,
			Threshold:       300,
			Severity:        SeverityMedium,
			IsEnabled:       true,
			CooldownMinutes: 10,
		},
		{
			ID:              "cls-threshold",
			Name:            "High CLS Alert",
			Type:            RuleTypePerformance,
			Metric:          "cumulative_layout_shift",
			Condition:       ConditionGreaterThan,
			Threshold:       0.25,
			Severity:        SeverityMedium,
			IsEnabled:       true,
			CooldownMinutes: 10,
		},
		{
			ID:              "error-rate-threshold",
			Name:            "High Error Rate",
			Type:            RuleTypeError,
			Metric:          "error_rate",
			Condition:       ConditionGreaterThan,
			Threshold:       5,
			Severity:        SeverityCritical,
			IsEnabled:       true,
			CooldownMinutes: 5,
		},
		{
			ID:              "session-duration-low",
			Name:            "Low Session Duration",
			Type:            RuleTypeBusiness,
			Metric:          "avg_session_duration",
			Condition:       ConditionLessThan,
			Threshold:       60000,
			Severity:        SeverityLow,
			IsEnabled:       true,
			CooldownMinutes: 30,
		},
	}
}

// CreateRuleRequest represents the request payload for creating a rule.
// ID is optional; the service assigns one when omitted.
type CreateRuleRequest struct {
	ID              string        `json:"id,omitempty"`
	Name            string        `json:"name"`
	Type            RuleType      `json:"type"`
	Metric          string        `json:"metric"`
	Condition       RuleCondition `json:"condition"`
	Threshold       float64       `json:"threshold"`
	Severity        RuleSeverity  `json:"severity"`
	IsEnabled       *bool         `json:"isEnabled,omitempty"` // defaults to true
	CooldownMinutes int           `json:"cooldownMinutes"`
}

// UpdateRuleRequest represents the request payload for updating a rule.
// Nil fields are left unchanged.
type UpdateRuleRequest struct {
	Name            *string        `json:"name,omitempty"`
	Type            *RuleType      `json:"type,omitempty"`
	Metric          *string        `json:"metric,omitempty"`
	Condition       *RuleCondition `json:"condition,omitempty"`
	Threshold       *float64       `json:"threshold,omitempty"`
	Severity        *RuleSeverity  `json:"severity,omitempty"`
	IsEnabled       *bool          `json:"isEnabled,omitempty"`
	CooldownMinutes *int           `json:"cooldownMinutes,omitempty"`
}

// ResolveAlertRequest represents the request payload for resolving an alert
type ResolveAlertRequest struct {
	ResolvedBy string `json:"resolvedBy"`
}
