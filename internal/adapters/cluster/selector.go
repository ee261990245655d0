package cluster

import (
	"encoding/json"
	"fmt"
	"strings"

	jmespath "github.com/jmespath-community/go-jmespath"
)

// ReportSelector extracts the per-job report from a check response. Some cluster
// entrypoints wrap the report (e.g. {"jobs": {...}, "host": "..."}); an expression
// such as "jobs" picks it out. An empty selector uses the whole response.
type ReportSelector struct {
	expr string
}

// NewReportSelector compiles expr.
func NewReportSelector(expr string) (*ReportSelector, error) {
	expr = strings.TrimSpace(expr)
	if expr == "" {
		return &ReportSelector{}, nil
	}
	if _, err := jmespath.Compile(expr); err != nil {
		return nil, fmt.Errorf("invalid report path %q: %w", expr, err)
	}
	return &ReportSelector{expr: expr}, nil
}

// Select returns the JSON document addressed by the selector.
func (s *ReportSelector) Select(raw []byte) ([]byte, error) {
	if s == nil || s.expr == "" {
		return raw, nil
	}
	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, err
	}
	out, err := jmespath.Search(s.expr, doc)
	if err != nil {
		return nil, fmt.Errorf("evaluate report path %q: %w", s.expr, err)
	}
	if out == nil {
		return nil, fmt.Errorf("report path %q matched nothing", s.expr)
	}
	return json.Marshal(out)
}
