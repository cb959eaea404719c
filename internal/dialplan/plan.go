// Package dialplan decides when an accumulated digit string is routable.
// Patterns are exact strings, "prefix*" forms that match any extension of
// the prefix once the minimum length is reached, or "*" as catch-all.
package dialplan

import (
	"fmt"
	"sort"
	"strings"
)

// Route is one dialable pattern.
type Route struct {
	ID        string `json:"id"`
	Name      string `json:"name"`
	Pattern   string `json:"pattern"`
	Priority  int    `json:"priority"` // lower = higher priority
	MinDigits int    `json:"min_digits,omitempty"`
	Enabled   bool   `json:"enabled"`

	isDefault bool
	isPrefix  bool
	prefix    string
	exact     string
}

// Validate checks the route and compiles the pattern.
func (r *Route) Validate() error {
	if r.ID == "" {
		return fmt.Errorf("route ID required")
	}
	if r.Pattern == "" {
		return fmt.Errorf("pattern required")
	}
	switch {
	case r.Pattern == "*":
		r.isDefault = true
	case strings.HasSuffix(r.Pattern, "*"):
		r.isPrefix = true
		r.prefix = strings.TrimSuffix(r.Pattern, "*")
		if r.MinDigits < len(r.prefix)+1 {
			r.MinDigits = len(r.prefix) + 1
		}
	default:
		r.exact = r.Pattern
	}
	return nil
}

// Match reports whether digits fully satisfy this route.
func (r *Route) Match(digits string) bool {
	if !r.Enabled || digits == "" {
		return false
	}
	if r.isDefault {
		return r.MinDigits <= len(digits)
	}
	if r.isPrefix {
		return strings.HasPrefix(digits, r.prefix) && len(digits) >= r.MinDigits
	}
	return digits == r.exact
}

// CouldMatch reports whether digits are still a viable prefix of this
// route, so the caller keeps collecting instead of failing the dial.
func (r *Route) CouldMatch(digits string) bool {
	if !r.Enabled {
		return false
	}
	if r.isDefault || r.isPrefix && strings.HasPrefix(digits, r.prefix) {
		return true
	}
	if r.isPrefix {
		return strings.HasPrefix(r.prefix, digits)
	}
	return strings.HasPrefix(r.exact, digits)
}

// Plan is a priority-ordered set of routes.
type Plan struct {
	routes []*Route
}

// NewPlan validates and orders the routes.
func NewPlan(routes []*Route) (*Plan, error) {
	for _, r := range routes {
		if err := r.Validate(); err != nil {
			return nil, fmt.Errorf("route %q: %w", r.ID, err)
		}
	}
	ordered := append([]*Route(nil), routes...)
	sort.SliceStable(ordered, func(i, j int) bool {
		return ordered[i].Priority < ordered[j].Priority
	})
	return &Plan{routes: ordered}, nil
}

// Match returns the best route fully matching digits.
func (p *Plan) Match(digits string) (*Route, bool) {
	for _, r := range p.routes {
		if r.Match(digits) {
			return r, true
		}
	}
	return nil, false
}

// CouldMatch reports whether any route could still match an extension of
// digits. False means the dial can only fail.
func (p *Plan) CouldMatch(digits string) bool {
	for _, r := range p.routes {
		if r.CouldMatch(digits) {
			return true
		}
	}
	return false
}

// Routes returns the ordered routes for the admin API.
func (p *Plan) Routes() []*Route {
	return append([]*Route(nil), p.routes...)
}
