package config

import (
	"bytes"
	"encoding/json"
	"fmt"

	"gopkg.in/yaml.v3"
)

// Actions is an ordered pattern -> rule mapping.
//
// It is written as an object in both JSON and YAML, but unlike a Go map it
// keeps the order of the file, which decides first-match dispatch.
type Actions []Action

// Get returns the rule bound to pattern.
func (a Actions) Get(pattern string) (ActionRule, bool) {
	for _, act := range a {
		if act.Pattern == pattern {
			return act.Rule, true
		}
	}
	return ActionRule{}, false
}

// MarshalJSON writes the actions as an ordered object.
func (a Actions) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, act := range a {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(act.Pattern)
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(act.Rule)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// UnmarshalJSON reads an object, keeping key order.
func (a *Actions) UnmarshalJSON(data []byte) error {
	if bytes.Equal(bytes.TrimSpace(data), []byte("null")) {
		*a = nil
		return nil
	}

	dec := json.NewDecoder(bytes.NewReader(data))
	tok, err := dec.Token()
	if err != nil {
		return err
	}
	if delim, ok := tok.(json.Delim); !ok || delim != '{' {
		return fmt.Errorf("%w: actions must be an object", ErrInvalidSyntax)
	}

	result := make(Actions, 0)
	for dec.More() {
		tok, err := dec.Token()
		if err != nil {
			return err
		}
		pattern, ok := tok.(string)
		if !ok {
			return fmt.Errorf("%w: action key %v", ErrInvalidSyntax, tok)
		}

		var rule ActionRule
		if err := dec.Decode(&rule); err != nil {
			return fmt.Errorf("action %q: %w", pattern, err)
		}
		result = append(result, Action{Pattern: pattern, Rule: rule})
	}

	if _, err := dec.Token(); err != nil {
		return err
	}

	*a = result
	return nil
}

// MarshalYAML writes the actions as an ordered mapping node.
func (a Actions) MarshalYAML() (interface{}, error) {
	node := &yaml.Node{Kind: yaml.MappingNode, Tag: "!!map"}
	for _, act := range a {
		val := &yaml.Node{}
		if err := val.Encode(act.Rule); err != nil {
			return nil, err
		}
		node.Content = append(node.Content,
			&yaml.Node{Kind: yaml.ScalarNode, Tag: "!!str", Value: act.Pattern},
			val)
	}
	return node, nil
}

// UnmarshalYAML reads a mapping node, keeping key order.
func (a *Actions) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!null" {
		*a = nil
		return nil
	}
	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("%w: actions must be a mapping (line %d)", ErrInvalidSyntax, value.Line)
	}

	result := make(Actions, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		key, val := value.Content[i], value.Content[i+1]

		var rule ActionRule
		if err := val.Decode(&rule); err != nil {
			return fmt.Errorf("action %q: %w", key.Value, err)
		}
		result = append(result, Action{Pattern: key.Value, Rule: rule})
	}

	*a = result
	return nil
}
