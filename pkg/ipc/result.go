package ipc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/CTAG07/Neutral/pkg/templating"
)

// wireResult is content 1 of a response.
type wireResult struct {
	StatusCode  statusCode `json:"status_code"`
	StatusText  string     `json:"status_text"`
	StatusParam string     `json:"status_param"`
	HasError    bool       `json:"has_error"`
	// Error names the failure class of a KO response so clients can map it
	// back to a sentinel error. Engines that do not send it yield ErrRemote.
	Error string `json:"error,omitempty"`
}

const (
	kindNotFound   = "not_found"
	kindUnreadable = "unreadable"
	kindMalformed  = "malformed_schema"
)

// failureWire describes an engine failure for a KO response.
func failureWire(err error) wireResult {
	w := wireResult{
		StatusCode:  http.StatusInternalServerError,
		StatusText:  http.StatusText(http.StatusInternalServerError),
		StatusParam: err.Error(),
		HasError:    true,
	}
	switch {
	case errors.Is(err, templating.ErrTemplateNotFound):
		w.Error = kindNotFound
	case errors.Is(err, templating.ErrUnreadable):
		w.Error = kindUnreadable
	case errors.Is(err, templating.ErrMalformedSchema):
		w.Error = kindMalformed
	}
	return w
}

// failureErr turns a KO response back into an *templating.EngineError.
func (w wireResult) failureErr(path string) error {
	var kind error
	switch w.Error {
	case kindNotFound:
		kind = templating.ErrTemplateNotFound
	case kindUnreadable:
		kind = templating.ErrUnreadable
	case kindMalformed:
		kind = templating.ErrMalformedSchema
	default:
		kind = templating.ErrRemote
	}
	msg := w.StatusParam
	if msg == "" {
		msg = w.StatusText
	}
	return &templating.EngineError{Path: path, Err: fmt.Errorf("%w: %s", kind, msg)}
}

// statusCode is sent as a decimal string. Numbers are accepted as well.
type statusCode int

func (c statusCode) MarshalJSON() ([]byte, error) {
	return json.Marshal(strconv.Itoa(int(c)))
}

func (c *statusCode) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		*c = 0
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		n, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid status_code %q", s)
		}
		*c = statusCode(n)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return fmt.Errorf("invalid status_code %s", data)
	}
	*c = statusCode(f)
	return nil
}

func toWire(res *templating.Result) wireResult {
	return wireResult{
		StatusCode:  statusCode(res.StatusCode),
		StatusText:  res.StatusText,
		StatusParam: res.StatusParam,
		HasError:    res.HasError,
	}
}

func (w wireResult) result(content []byte) *templating.Result {
	code := int(w.StatusCode)
	if code == 0 {
		code = 200
	}
	text := w.StatusText
	if text == "" {
		text = templating.StatusText(code)
	}
	return &templating.Result{
		Content:     string(content),
		StatusCode:  code,
		StatusText:  text,
		StatusParam: w.StatusParam,
		HasError:    w.HasError,
	}
}
