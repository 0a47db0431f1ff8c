// Package testutil provides test helpers: an in-process fake switch speaking
// the executeCmds command channel, and Redis helpers for integration tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"sort"
	"strconv"
	"strings"
	"sync"
	"testing"
)

// Fake switch credentials accepted by NewFakeSwitch.
const (
	FakeUsername   = "admin"
	FakePassword   = "secret"
	FakeFilesystem = "flash:"
)

// Rejection error code reported by the fake switch for a rejected command.
const FakeRejectCode = 1002

// FakeSwitch is a TLS JSON-RPC server that records every batch it receives
// and answers each command from scripted rules. Commands with no rule are
// accepted with an empty result.
type FakeSwitch struct {
	*httptest.Server

	mu        sync.Mutex
	batches   [][]string
	formats   []string
	reject    map[string]bool
	rejectPfx []string
	text      map[string]string
	json      map[string]any
	files     map[string]string
	status    int
	truncate  int
	running   string
}

// NewFakeSwitch starts a fake switch and registers its shutdown with t.
func NewFakeSwitch(t *testing.T) *FakeSwitch {
	t.Helper()

	f := &FakeSwitch{
		reject: make(map[string]bool),
		text:   make(map[string]string),
		json:   make(map[string]any),
		files:  make(map[string]string),
	}
	f.Server = httptest.NewTLSServer(http.HandlerFunc(f.serve))
	t.Cleanup(f.Close)
	return f
}

// Host returns the server's IP address.
func (f *FakeSwitch) Host() string {
	host, _, _ := net.SplitHostPort(f.Listener.Addr().String())
	return host
}

// Port returns the server's TCP port.
func (f *FakeSwitch) Port() int {
	_, port, _ := net.SplitHostPort(f.Listener.Addr().String())
	n, _ := strconv.Atoi(port)
	return n
}

// Reject makes the switch report an error for exactly cmd.
func (f *FakeSwitch) Reject(cmds ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range cmds {
		f.reject[c] = true
	}
}

// RejectPrefix makes the switch report an error for any command starting with prefix.
func (f *FakeSwitch) RejectPrefix(prefix string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.rejectPfx = append(f.rejectPfx, prefix)
}

// SetText sets the raw text returned for cmd in text format.
func (f *FakeSwitch) SetText(cmd, output string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.text[cmd] = output
}

// SetJSON sets the structured payload returned for cmd in json format.
func (f *FakeSwitch) SetJSON(cmd string, v any) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.json[cmd] = v
}

// SetRunning sets the text returned for "show running-config".
func (f *FakeSwitch) SetRunning(text string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.running = text
}

// PutFile stores a file on the fake filesystem, as an upload would.
func (f *FakeSwitch) PutFile(name, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.files[name] = content
}

// Files returns the names of the stored files, sorted.
func (f *FakeSwitch) Files() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	names := make([]string, 0, len(f.files))
	for name := range f.files {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// FailWith makes every following request fail with the given HTTP status.
// Zero restores normal operation.
func (f *FakeSwitch) FailWith(status int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.status = status
}

// TruncateResults makes the switch return at most n results per batch.
// Negative disables truncation.
func (f *FakeSwitch) TruncateResults(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.truncate = n + 1
}

// Batches returns every batch received, in order.
func (f *FakeSwitch) Batches() [][]string {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([][]string, len(f.batches))
	for i, b := range f.batches {
		out[i] = append([]string(nil), b...)
	}
	return out
}

// Formats returns the output format requested by each batch.
func (f *FakeSwitch) Formats() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.formats...)
}

// Commands returns every command received, flattened across batches.
func (f *FakeSwitch) Commands() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, b := range f.batches {
		out = append(out, b...)
	}
	return out
}

// ResetLog forgets the recorded batches.
func (f *FakeSwitch) ResetLog() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.batches = nil
	f.formats = nil
}

type rpcRequest struct {
	Method  string `json:"method"`
	JSONRPC string `json:"jsonrpc"`
	ID      int    `json:"id"`
	Params  []struct {
		Format  string   `json:"format"`
		Version int      `json:"version"`
		Cmds    []string `json:"cmds"`
	} `json:"params"`
}

func (f *FakeSwitch) serve(w http.ResponseWriter, r *http.Request) {
	user, pass, ok := r.BasicAuth()
	if !ok || user != FakeUsername || pass != FakePassword {
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}
	if r.Method != http.MethodPost || r.URL.Path != "/command-api" {
		http.Error(w, "not found", http.StatusNotFound)
		return
	}

	body, err := io.ReadAll(r.Body)
	if err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	var req rpcRequest
	if err := json.Unmarshal(body, &req); err != nil || req.Method != "executeCmds" || len(req.Params) != 1 {
		http.Error(w, "bad request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	if f.status != 0 {
		http.Error(w, http.StatusText(f.status), f.status)
		return
	}

	p := req.Params[0]
	f.batches = append(f.batches, append([]string(nil), p.Cmds...))
	f.formats = append(f.formats, p.Format)

	results := make([]any, 0, len(p.Cmds))
	for _, cmd := range p.Cmds {
		results = append(results, f.answer(cmd, p.Format))
	}
	if f.truncate > 0 && len(results) > f.truncate-1 {
		results = results[:f.truncate-1]
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(map[string]any{
		"jsonrpc": "2.0",
		"id":      req.ID,
		"result":  results,
	})
}

// answer must be called with f.mu held.
func (f *FakeSwitch) answer(cmd, format string) any {
	if f.rejected(cmd) {
		return map[string]any{
			"errorCode": FakeRejectCode,
			"errorMsg":  fmt.Sprintf("%% Invalid input detected at '%s'", cmd),
		}
	}

	if format == "text" {
		return map[string]any{"sourceDetails": f.textFor(cmd)}
	}
	if v, ok := f.json[cmd]; ok {
		return map[string]any{"json": v}
	}
	return map[string]any{"json": map[string]any{}}
}

func (f *FakeSwitch) rejected(cmd string) bool {
	if f.reject[cmd] {
		return true
	}
	for _, p := range f.rejectPfx {
		if strings.HasPrefix(cmd, p) {
			return true
		}
	}
	return false
}

func (f *FakeSwitch) textFor(cmd string) string {
	if out, ok := f.text[cmd]; ok {
		return out
	}
	switch {
	case cmd == "show running-config":
		return f.running
	case cmd == "dir "+FakeFilesystem:
		var sb strings.Builder
		fmt.Fprintf(&sb, "Directory of %s\n\n", FakeFilesystem)
		names := make([]string, 0, len(f.files))
		for name := range f.files {
			names = append(names, name)
		}
		sort.Strings(names)
		for _, name := range names {
			fmt.Fprintf(&sb, "  -rw-  %8d  Oct 19 2026 10:00:00  %s\n", len(f.files[name]), name)
		}
		return sb.String()
	case strings.HasPrefix(cmd, "more "+FakeFilesystem):
		return f.files[strings.TrimPrefix(cmd, "more "+FakeFilesystem)]
	}
	return ""
}
