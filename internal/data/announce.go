package data

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/santhosh-tekuri/jsonschema/v6"
	"gopkg.in/yaml.v3"
)

//go:embed schema/announce_list.schema.json
var announceSchemaJSON []byte

var (
	announceSchema     *jsonschema.Schema
	announceSchemaOnce sync.Once
	announceSchemaErr  error
)

// MinAnnounceInterval guards against announcements flooding clients.
const MinAnnounceInterval = time.Second

// AnnounceEntry is one periodic server announcement.
type AnnounceEntry struct {
	ID       string        `yaml:"id"`
	Message  string        `yaml:"message"`
	Interval time.Duration `yaml:"interval"`
	MinLevel int16         `yaml:"min_level"` // only characters at or above this level
}

// AnnounceTable holds announcements by ID.
type AnnounceTable struct {
	entries map[string]*AnnounceEntry
}

// LoadAnnounceTable loads announce_list.yaml.
func LoadAnnounceTable(path string) (*AnnounceTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read announce list: %w", err)
	}
	return ParseAnnounceTable(raw)
}

// ParseAnnounceTable validates raw YAML against the announce_list schema
// and decodes it.
func ParseAnnounceTable(raw []byte) (*AnnounceTable, error) {
	if err := validateAnnounce(raw); err != nil {
		return nil, err
	}
	var entries []AnnounceEntry
	if err := yaml.Unmarshal(raw, &entries); err != nil {
		return nil, fmt.Errorf("parse announce list: %w", err)
	}

	t := &AnnounceTable{entries: make(map[string]*AnnounceEntry, len(entries))}
	for i := range entries {
		e := &entries[i]
		if _, dup := t.entries[e.ID]; dup {
			return nil, fmt.Errorf("announce list: duplicate id %q", e.ID)
		}
		if e.Interval < MinAnnounceInterval {
			return nil, fmt.Errorf("announce list: %s: interval %s below %s", e.ID, e.Interval, MinAnnounceInterval)
		}
		t.entries[e.ID] = e
	}
	return t, nil
}

// Get returns the announcement with id, or nil.
func (t *AnnounceTable) Get(id string) *AnnounceEntry {
	return t.entries[id]
}

// All returns every announcement ordered by ID.
func (t *AnnounceTable) All() []*AnnounceEntry {
	out := make([]*AnnounceEntry, 0, len(t.entries))
	for _, e := range t.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Count returns the number of announcements loaded.
func (t *AnnounceTable) Count() int {
	return len(t.entries)
}

func getAnnounceSchema() (*jsonschema.Schema, error) {
	announceSchemaOnce.Do(func() {
		doc, err := jsonschema.UnmarshalJSON(bytes.NewReader(announceSchemaJSON))
		if err != nil {
			announceSchemaErr = fmt.Errorf("unmarshal schema: %w", err)
			return
		}
		c := jsonschema.NewCompiler()
		if err := c.AddResource("announce_list.schema.json", doc); err != nil {
			announceSchemaErr = fmt.Errorf("add schema resource: %w", err)
			return
		}
		announceSchema, announceSchemaErr = c.Compile("announce_list.schema.json")
	})
	return announceSchema, announceSchemaErr
}

// validateAnnounce checks the YAML document against the embedded schema.
// The YAML is round-tripped through JSON so the validator sees plain JSON
// types.
func validateAnnounce(raw []byte) error {
	schema, err := getAnnounceSchema()
	if err != nil {
		return fmt.Errorf("announce schema: %w", err)
	}

	var doc any
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse announce list: %w", err)
	}
	if doc == nil {
		doc = []any{}
	}
	jsonData, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("announce list to json: %w", err)
	}
	inst, err := jsonschema.UnmarshalJSON(bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("announce list to json: %w", err)
	}
	if err := schema.Validate(inst); err != nil {
		return fmt.Errorf("announce list invalid: %s", strings.TrimSpace(err.Error()))
	}
	return nil
}
