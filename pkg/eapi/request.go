package eapi

import (
	"fmt"

	"github.com/tidwall/sjson"
)

// request builds an executeCmds body. Every call to newRequest starts from an
// empty document, so no state is shared between batches.
type request struct {
	str string
	err error
}

type params struct {
	Format  Format   `json:"format"`
	Version int      `json:"version"`
	Cmds    []string `json:"cmds"`
}

func newRequest(cmds []string, format Format) request {
	if cmds == nil {
		cmds = []string{}
	}
	return request{}.
		set("method", "executeCmds").
		set("params", []params{{Format: format, Version: 1, Cmds: cmds}}).
		set("jsonrpc", "2.0").
		set("id", 0)
}

func (r request) set(path string, value any) request {
	if r.err != nil {
		return r
	}
	out, err := sjson.Set(r.str, path, value)
	if err != nil {
		return request{str: r.str, err: fmt.Errorf("set %q: %w", path, err)}
	}
	return request{str: out}
}

func (r request) bytes() ([]byte, error) {
	if r.err != nil {
		return nil, r.err
	}
	return []byte(r.str), nil
}
