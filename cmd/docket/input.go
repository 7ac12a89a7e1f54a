package main

import (
	"bytes"
	"embed"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/linnemanlabs/docket/internal/ticket"
)

//go:embed samples/*.yaml
var sampleFS embed.FS

// sampleTickets returns the bundled demo tickets in file name order.
func sampleTickets() ([]*ticket.Ticket, error) {
	names, err := fs.Glob(sampleFS, "samples/*.yaml")
	if err != nil {
		return nil, err
	}
	sort.Strings(names)

	var out []*ticket.Ticket
	for _, name := range names {
		data, err := sampleFS.ReadFile(name)
		if err != nil {
			return nil, fmt.Errorf("read sample %s: %w", path.Base(name), err)
		}
		ts, err := decodeTickets(data, false)
		if err != nil {
			return nil, fmt.Errorf("decode sample %s: %w", path.Base(name), err)
		}
		out = append(out, ts...)
	}
	return out, nil
}

// readTickets decodes one ticket or a list of tickets from r. JSON is used
// when asJSON is set, YAML otherwise; YAML also accepts JSON documents.
func readTickets(r io.Reader, asJSON bool) ([]*ticket.Ticket, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, err
	}
	return decodeTickets(data, asJSON)
}

func decodeTickets(data []byte, asJSON bool) ([]*ticket.Ticket, error) {
	if asJSON {
		trimmed := bytes.TrimSpace(data)
		if len(trimmed) > 0 && trimmed[0] == '[' {
			var list []*ticket.Ticket
			if err := json.Unmarshal(trimmed, &list); err != nil {
				return nil, fmt.Errorf("decode json: %w", err)
			}
			return list, nil
		}
		var t ticket.Ticket
		if err := json.Unmarshal(trimmed, &t); err != nil {
			return nil, fmt.Errorf("decode json: %w", err)
		}
		return []*ticket.Ticket{&t}, nil
	}

	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	if len(doc.Content) == 0 {
		return nil, fmt.Errorf("decode yaml: empty document")
	}
	root := doc.Content[0]
	if root.Kind == yaml.SequenceNode {
		var list []*ticket.Ticket
		if err := root.Decode(&list); err != nil {
			return nil, fmt.Errorf("decode yaml: %w", err)
		}
		return list, nil
	}
	var t ticket.Ticket
	if err := root.Decode(&t); err != nil {
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	return []*ticket.Ticket{&t}, nil
}

func isJSONFile(name string) bool {
	return strings.EqualFold(filepath.Ext(name), ".json")
}
