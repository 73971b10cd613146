// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound   = errors.New("resource not found")
	ErrDuplicate  = errors.New("duplicate entry")
	ErrValidation = errors.New("validation failed")
)

// Rule maps a domain sentinel onto a problem response.
type Rule struct {
	Target error
	Status int
	Title  string
	Kind   string
}

var baseRules = []Rule{
	{Target: ErrNotFound, Status: http.StatusNotFound, Title: "Not Found", Kind: "not_found"},
	{Target: ErrDuplicate, Status: http.StatusConflict, Title: "Duplicate", Kind: "duplicate"},
	{Target: ErrValidation, Status: http.StatusBadRequest, Title: "Validation Failed", Kind: "validation"},
}

// RespondError maps err to an RFC7807 response. Rules are tried in order
// before the transport sentinels; anything unmatched is a 500 without detail.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	for _, set := range [][]Rule{rules, baseRules} {
		for _, rule := range set {
			if errors.Is(err, rule.Target) {
				JSON(w, rule.Status, ProblemDetail{
					Type:   problemType(rule.Kind),
					Title:  rule.Title,
					Status: rule.Status,
					Detail: err.Error(),
					Kind:   rule.Kind,
				})
				return
			}
		}
	}
	Problem(w, http.StatusInternalServerError, "Internal Error", "")
}

func problemType(kind string) string {
	if kind == "" {
		return ""
	}
	return "urn:odyssey-books:problem:" + kind
}
