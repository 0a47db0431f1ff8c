package eapi

import (
	"github.com/tidwall/gjson"

	"github.com/fsconf-network/fsconf/pkg/util"
)

// Result is the device's answer to one command of a batch: a structured
// payload ("json"), raw text ("sourceDetails"/"output"), or an error code.
type Result struct {
	Command      string
	Raw          gjson.Result
	ErrorCode    int64
	ErrorMessage string

	hasError bool
}

func newResult(cmd string, raw gjson.Result) Result {
	r := Result{Command: cmd, Raw: raw}
	if code := raw.Get("errorCode"); code.Exists() {
		r.hasError = true
		r.ErrorCode = code.Int()
	}
	for _, key := range []string{"errorMsg", "errorMessage", "errors.0", "message"} {
		if msg := raw.Get(key); msg.Exists() {
			r.ErrorMessage = msg.String()
			break
		}
	}
	if !r.hasError && raw.Get("errors").IsArray() && len(raw.Get("errors").Array()) > 0 {
		r.hasError = true
	}
	if !r.hasError {
		r.ErrorMessage = ""
	}
	return r
}

// HasError reports whether the device rejected this command.
func (r Result) HasError() bool {
	return r.hasError
}

// Err returns a *util.CommandError for a rejected command, nil otherwise.
func (r Result) Err() error {
	if !r.hasError {
		return nil
	}
	return &util.CommandError{Command: r.Command, Code: r.ErrorCode, Message: r.ErrorMessage}
}

// JSON returns the structured payload of a json-format command.
func (r Result) JSON() gjson.Result {
	if j := r.Raw.Get("json"); j.Exists() {
		return j
	}
	return r.Raw
}

// Text returns the raw output of a text-format command.
func (r Result) Text() string {
	for _, key := range []string{"sourceDetails", "output"} {
		if v := r.Raw.Get(key); v.Exists() {
			return v.String()
		}
	}
	return ""
}

// CountErrors returns the number of rejected commands in a batch.
func CountErrors(results []Result) int {
	n := 0
	for _, r := range results {
		if r.hasError {
			n++
		}
	}
	return n
}

// FirstError returns the error of the first rejected command, or nil.
func FirstError(results []Result) error {
	for _, r := range results {
		if r.hasError {
			return r.Err()
		}
	}
	return nil
}
