// Package listing turns collection query parameters into store filters and
// runs the filtered listings.
package listing

import (
	"net/url"
	"strings"

	"github.com/platinummonkey/authapi/pkg/models"
)

// TriState is the parsed value of a true/false/both query parameter
type TriState int

const (
	False TriState = iota
	True
	Both
)

// InvalidTriStateMessage is reported for values outside the vocabulary
const InvalidTriStateMessage = "Must be one of [both, false, true]"

func (s TriState) String() string {
	switch s {
	case True:
		return "true"
	case False:
		return "false"
	default:
		return "both"
	}
}

// Bool returns the flag value to filter on, or nil for Both
func (s TriState) Bool() *bool {
	var b bool
	switch s {
	case True:
		b = true
	case False:
		b = false
	default:
		return nil
	}
	return &b
}

// ParseTriState reads name from params. A missing parameter yields def; a
// present one is matched case-insensitively against true, false and both.
// When the parameter repeats, the last value wins.
func ParseTriState(params url.Values, name string, def TriState) (TriState, error) {
	value := OptionalParam(params, name)
	if value == nil {
		return def, nil
	}

	switch strings.ToLower(*value) {
	case "true":
		return True, nil
	case "false":
		return False, nil
	case "both":
		return Both, nil
	}
	return def, models.NewValidationError(name, InvalidTriStateMessage)
}

// OptionalParam returns a pointer to the last value of name when the
// parameter is present, even if empty. Every query parameter the API reads
// goes through it, so a repeated parameter always resolves to its last value.
func OptionalParam(params url.Values, name string) *string {
	values, ok := params[name]
	if !ok || len(values) == 0 {
		return nil
	}
	v := values[len(values)-1]
	return &v
}
