package plan

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"
)

// Load reads a query plan from a JSON or YAML file, chosen by extension.
func Load(file string) (*QueryPlan, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, fmt.Errorf("load plan: %w", err)
	}
	switch strings.ToLower(filepath.Ext(file)) {
	case ".yaml", ".yml":
		return ParseYAML(data)
	default:
		return ParseJSON(data)
	}
}

func ParseJSON(data []byte) (*QueryPlan, error) {
	var qp QueryPlan
	if err := json.Unmarshal(data, &qp); err != nil {
		return nil, err
	}
	return &qp, nil
}

// ParseYAML accepts the same document shape as ParseJSON written in YAML.
func ParseYAML(data []byte) (*QueryPlan, error) {
	var doc any
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	b, err := json.Marshal(doc)
	if err != nil {
		return nil, fmt.Errorf("query plan: %w", err)
	}
	return ParseJSON(b)
}
