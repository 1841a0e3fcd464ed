package testdata

import (
	"fmt"
	"regexp"
	"unicode/utf8"

	"github.com/ctagard/testops-mcp/pkg/types"
)

// EmailPattern is the syntax check applied to email fields
var EmailPattern = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)

// fieldRule is one row of a data type's rule table
type fieldRule struct {
	field     string
	required  bool
	email     bool
	minLength int
	pattern   *regexp.Regexp
}

var validationRules = map[string][]fieldRule{
	TypeUser: {
		{field: "email", required: true, email: true},
		{field: "password", required: true, minLength: 6},
		{field: "name", required: true},
	},
	TypeProduct: {
		{field: "name", required: true},
		{field: "price", required: true, pattern: regexp.MustCompile(`^Rs\. \d+$`)},
	},
	TypeOrder: {
		{field: "productId", required: true},
		{field: "quantity", required: true},
		{field: "status", required: true},
	},
}

// Validate checks a record against its type's rule table and reports every
// failing check. A type without rules always validates.
func Validate(dataType string, record map[string]interface{}) types.ValidationResult {
	result := types.ValidationResult{Valid: true, Errors: []string{}}
	fail := func(format string, args ...interface{}) {
		result.Errors = append(result.Errors, fmt.Sprintf(format, args...))
		result.Valid = false
	}

	for _, rule := range validationRules[dataType] {
		value := record[rule.field]
		present := !isEmpty(value)

		if rule.required && !present {
			fail("%s is required", rule.field)
		}
		if !present {
			continue
		}

		s, isString := value.(string)
		if rule.email && (!isString || !EmailPattern.MatchString(s)) {
			fail("%s must be a valid email", rule.field)
		}
		if rule.minLength > 0 && isString && utf8.RuneCountInString(s) < rule.minLength {
			fail("%s must be at least %d characters", rule.field, rule.minLength)
		}
		if rule.pattern != nil && (!isString || !rule.pattern.MatchString(s)) {
			fail("%s format is invalid", rule.field)
		}
	}
	return result
}

// isEmpty treats absent, null, empty string, zero and false as missing
func isEmpty(v interface{}) bool {
	switch t := v.(type) {
	case nil:
		return true
	case string:
		return t == ""
	case bool:
		return !t
	case float64:
		return t == 0
	case int:
		return t == 0
	case int64:
		return t == 0
	default:
		return false
	}
}
