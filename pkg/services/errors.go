package services

import (
	"errors"
	"fmt"
)

// ErrRuleNotFound is returned by lookups and updates for an unknown rule id
var ErrRuleNotFound = errors.New("rule not found")

// DuplicateRuleError is returned when adding a rule whose id is already
// registered. The registry is left unchanged.
type DuplicateRuleError struct {
	RuleID string
}

func (e *DuplicateRuleError) Error() string {
	return fmt.Sprintf("rule with id %q already exists", e.RuleID)
}
