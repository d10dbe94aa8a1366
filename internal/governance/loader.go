package governance

import (
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

// LoadFile reads and validates a YAML rule file.
func LoadFile(path string) (*RuleFile, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rule file: %w", err)
	}
	return LoadBytes(data)
}

// LoadBytes parses and validates YAML rule data.
func LoadBytes(data []byte) (*RuleFile, error) {
	var rf RuleFile
	if err := yaml.Unmarshal(data, &rf); err != nil {
		return nil, fmt.Errorf("parsing rule YAML: %w", err)
	}
	if err := validate(&rf); err != nil {
		return nil, err
	}
	return &rf, nil
}

func validate(rf *RuleFile) error {
	if rf.Version != 1 {
		return fmt.Errorf("unsupported rule file version: %d (expected 1)", rf.Version)
	}

	seen := make(map[string]bool, len(rf.Rules))
	for i, rule := range rf.Rules {
		if rule.ID == "" {
			return fmt.Errorf("rule %d: id is required", i)
		}
		if seen[rule.ID] {
			return fmt.Errorf("rule %q: duplicate id", rule.ID)
		}
		seen[rule.ID] = true

		if !rule.Action.Valid() {
			return fmt.Errorf("rule %q: invalid action %q", rule.ID, rule.Action)
		}
		// Validate regex patterns compile
		for key, am := range rule.Match.Arguments {
			if am.Regex != "" {
				if _, err := regexp.Compile(am.Regex); err != nil {
					return fmt.Errorf("rule %q: argument %q regex invalid: %w", rule.ID, key, err)
				}
			}
		}
	}

	return nil
}
