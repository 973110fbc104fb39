package httpx

import (
	"errors"
	"net/http"
	"strconv"
	"time"
)

// Sentinel errors for the transport layer.
var (
	ErrNotFound     = errors.New("resource not found")
	ErrConflict     = errors.New("conflict")
	ErrValidation   = errors.New("validation failed")
	ErrForbidden    = errors.New("forbidden")
	ErrUnauthorized = errors.New("unauthorized")
	ErrUnavailable  = errors.New("temporarily unavailable")
)

// Rule maps a domain error to a problem status.
type Rule struct {
	Target error
	Status int
	Title  string
}

// RetryAfter is the hint sent with 503 responses.
var RetryAfter = 30 * time.Second

var baseRules = []Rule{
	{ErrNotFound, http.StatusNotFound, "Not Found"},
	{ErrConflict, http.StatusConflict, "Conflict"},
	{ErrValidation, http.StatusBadRequest, "Validation Failed"},
	{ErrForbidden, http.StatusForbidden, "Forbidden"},
	{ErrUnauthorized, http.StatusUnauthorized, "Unauthorized"},
	{ErrUnavailable, http.StatusServiceUnavailable, "Under Maintenance"},
}

// Classify returns the first rule matching err, checking rules before the
// transport sentinels. ok is false for unmapped errors.
func Classify(err error, rules ...Rule) (Rule, bool) {
	for _, set := range [][]Rule{rules, baseRules} {
		for _, rule := range set {
			if errors.Is(err, rule.Target) {
				return rule, true
			}
		}
	}
	return Rule{}, false
}

// RespondError maps err to an RFC7807 response. Unmapped errors become 500
// without leaking their message.
func RespondError(w http.ResponseWriter, err error, rules ...Rule) {
	rule, ok := Classify(err, rules...)
	if !ok {
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
		return
	}
	if rule.Status == http.StatusServiceUnavailable {
		w.Header().Set("Retry-After", retryAfterSeconds())
	}
	Problem(w, rule.Status, rule.Title, err.Error())
}

func retryAfterSeconds() string {
	secs := int(RetryAfter.Seconds())
	if secs < 1 {
		secs = 1
	}
	return strconv.Itoa(secs)
}
