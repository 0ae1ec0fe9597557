package restrictor

import (
	"errors"
	"fmt"
	"sort"
	"strconv"
	"time"
)

// Policy admits at most Max events per Window.
type Policy struct {
	Window time.Duration
	Max    int
}

// PoliciesFromMillis converts a window-milliseconds to cap table into
// policies ordered by window.
func PoliciesFromMillis(table map[string]int) ([]Policy, error) {
	out := make([]Policy, 0, len(table))
	for k, limit := range table {
		ms, err := strconv.ParseInt(k, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("restrictor: window %q is not milliseconds: %w", k, err)
		}
		out = append(out, Policy{Window: time.Duration(ms) * time.Millisecond, Max: limit})
	}
	sortPolicies(out)
	return out, validatePolicies(out)
}

func validatePolicies(policies []Policy) error {
	for _, p := range policies {
		if p.Window <= 0 {
			return errors.New("restrictor: policy window must be > 0")
		}
		if p.Max <= 0 {
			return errors.New("restrictor: policy max must be > 0")
		}
	}
	return nil
}

func sortPolicies(policies []Policy) {
	sort.Slice(policies, func(i, j int) bool {
		if policies[i].Window == policies[j].Window {
			return policies[i].Max < policies[j].Max
		}
		return policies[i].Window < policies[j].Window
	})
}
