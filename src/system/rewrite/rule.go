package rewrite

import "encoding/json"

// Rule pairs a pattern expression with a replacement expression. Both
// use the expression grammar; $-prefixed atoms are pattern variables.
type Rule struct {
	ID          string            `json:"id"`
	Pattern     string            `json:"pattern"`
	Replacement string            `json:"replacement"`
	Metadata    map[string]string `json:"metadata,omitempty"`
}

// UnmarshalJSON accepts both the short keys (pattern, replacement) and
// the long keys (pattern_expr, replacement_expr).
func (r *Rule) UnmarshalJSON(data []byte) error {
	var raw struct {
		ID              string            `json:"id"`
		Pattern         string            `json:"pattern"`
		PatternExpr     string            `json:"pattern_expr"`
		Replacement     string            `json:"replacement"`
		ReplacementExpr string            `json:"replacement_expr"`
		Metadata        map[string]string `json:"metadata"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	r.ID = raw.ID
	r.Pattern = raw.Pattern
	if r.Pattern == "" {
		r.Pattern = raw.PatternExpr
	}
	r.Replacement = raw.Replacement
	if r.Replacement == "" {
		r.Replacement = raw.ReplacementExpr
	}
	r.Metadata = raw.Metadata
	return nil
}
