package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/platinummonkey/authapi/pkg/httputil"
	"github.com/platinummonkey/authapi/pkg/models"
	"github.com/platinummonkey/authapi/pkg/observability"
)

// writeError maps a service error onto the response. Storage failures are
// logged and answered with an opaque 500.
func writeError(w http.ResponseWriter, r *http.Request, err error) {
	var verr *models.ValidationError
	var nf *models.NotFoundError
	switch {
	case errors.As(err, &verr):
		httputil.WriteFieldErrors(w, verr.Fields)
	case errors.As(err, &nf):
		httputil.WriteNotFound(w, fmt.Sprintf("%s not found", nf.Kind))
	default:
		observability.FromContext(r.Context()).
			WithError(err).
			WithFields(map[string]interface{}{"method": r.Method, "path": r.URL.Path}).
			Error("request failed")
		httputil.WriteInternalError(w)
	}
}

// decode reads the JSON body into dest, answering malformed input with 400
func decode(w http.ResponseWriter, r *http.Request, dest interface{}) bool {
	return httputil.ParseJSONOrError(w, r, dest)
}

// primaryKey is a related-object reference in a request body. It accepts a
// JSON number or a numeric string and remembers whether it was sent at all.
type primaryKey struct {
	Set   bool
	Value int64
	Raw   string
	Valid bool
}

func (p *primaryKey) UnmarshalJSON(data []byte) error {
	p.Set = true
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		p.Set = false
		return nil
	}

	var raw interface{}
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	switch v := raw.(type) {
	case float64:
		p.Raw = strconv.FormatFloat(v, 'f', -1, 64)
		if v == float64(int64(v)) {
			p.Value, p.Valid = int64(v), true
		}
	case string:
		p.Raw = v
		if n, err := strconv.ParseInt(v, 10, 64); err == nil {
			p.Value, p.Valid = n, true
		}
	default:
		p.Raw = string(data)
	}
	return nil
}

// check reports the problems with a required primary key under field
func (p primaryKey) check(field string, errs *models.ValidationError) {
	switch {
	case !p.Set:
		errs.Add(field, models.RequiredMessage)
	case !p.Valid:
		errs.Add(field, fmt.Sprintf("Incorrect type. Expected pk value, received %q.", p.Raw))
	}
}

// invalidPK is the message for a reference to a row that does not exist
func invalidPK(id int64) string {
	return fmt.Sprintf("Invalid pk \"%d\" - object does not exist.", id)
}

// requireString flags a missing or blank string field. Partial updates only
// check fields that were sent.
func requireString(field string, value *string, partial bool, errs *models.ValidationError) {
	if value == nil {
		if !partial {
			errs.Add(field, models.RequiredMessage)
		}
		return
	}
	*value = strings.TrimSpace(*value)
	if *value == "" {
		errs.Add(field, models.RequiredMessage)
	}
}
