package device

import (
	"context"
	"fmt"
	"sort"

	"github.com/tidwall/gjson"

	"github.com/fsconf-network/fsconf/pkg/eapi"
)

// Facts is basic device information from "show version".
type Facts struct {
	Hostname     string  `json:"hostname"`
	Vendor       string  `json:"vendor"`
	Model        string  `json:"model"`
	OSVersion    string  `json:"os_version"`
	SerialNumber string  `json:"serial_number"`
	Uptime       float64 `json:"uptime"`
}

// Interface is one row of "show interface status".
type Interface struct {
	Name        string `json:"name"`
	Status      string `json:"status"`
	VLAN        string `json:"vlan,omitempty"`
	Duplex      string `json:"duplex,omitempty"`
	Speed       string `json:"speed,omitempty"`
	Type        string `json:"type,omitempty"`
	Description string `json:"description,omitempty"`
}

// first returns the first of keys present in r.
func first(r gjson.Result, keys ...string) gjson.Result {
	for _, k := range keys {
		if v := r.Get(k); v.Exists() {
			return v
		}
	}
	return gjson.Result{}
}

func parseFacts(r eapi.Result) Facts {
	j := r.JSON()
	return Facts{
		Hostname:     first(j, "hostname", "hostName").String(),
		Vendor:       "FS",
		Model:        first(j, "modelName", "model", "hardware").String(),
		OSVersion:    first(j, "version", "softwareVersion").String(),
		SerialNumber: first(j, "serialNumber", "serial").String(),
		Uptime:       first(j, "uptime").Float(),
	}
}

// Facts returns the facts read when the session was opened.
func (s *Session) Facts(ctx context.Context) (Facts, error) {
	if err := s.requireOpen(); err != nil {
		return Facts{}, err
	}
	if s.facts != nil {
		return *s.facts, nil
	}
	results, err := s.client.Run(ctx, "show version")
	if err != nil {
		return Facts{}, err
	}
	if err := results[0].Err(); err != nil {
		return Facts{}, err
	}
	facts := parseFacts(results[0])
	s.facts = &facts
	return facts, nil
}

// Interfaces returns the interface status table, sorted by name. The device
// reports either an object keyed by interface name or a list of rows.
func (s *Session) Interfaces(ctx context.Context) ([]Interface, error) {
	if err := s.requireOpen(); err != nil {
		return nil, err
	}
	results, err := s.client.Run(ctx, "show interface status")
	if err != nil {
		return nil, err
	}
	if err := results[0].Err(); err != nil {
		return nil, fmt.Errorf("reading interfaces: %w", err)
	}

	table := results[0].JSON().Get("interface status")
	var out []Interface
	switch {
	case table.IsArray():
		for _, row := range table.Array() {
			out = append(out, parseInterface(first(row, "interface", "name", "port").String(), row))
		}
	case table.IsObject():
		table.ForEach(func(key, row gjson.Result) bool {
			out = append(out, parseInterface(key.String(), row))
			return true
		})
	default:
		return nil, fmt.Errorf("reading interfaces: no interface status table in reply")
	}

	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func parseInterface(name string, row gjson.Result) Interface {
	return Interface{
		Name:        name,
		Status:      first(row, "status", "linkStatus").String(),
		VLAN:        first(row, "vlan", "vlanInformation").String(),
		Duplex:      first(row, "duplex").String(),
		Speed:       first(row, "speed", "bandwidth").String(),
		Type:        first(row, "type", "interfaceType").String(),
		Description: first(row, "description").String(),
	}
}
