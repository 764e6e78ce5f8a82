package cmd

import (
	"encoding/json"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	"github.com/papapumpkin/parsec/internal/config"
)

// render writes v in the configured format. Text output is delegated to
// text, which prints through the styled printer.
func (e *env) render(w io.Writer, v any, text func()) error {
	switch e.cfg.Output {
	case config.OutputJSON:
		return writeJSON(w, v)
	case config.OutputYAML:
		return writeYAML(w, v)
	}
	text()
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// writeYAML encodes v through its JSON form so that field names and value
// encodings match the JSON output, then re-emits it as block-style YAML.
func writeYAML(w io.Writer, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	var doc yaml.Node
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	blockStyle(&doc)
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(&doc); err != nil {
		return fmt.Errorf("encode yaml: %w", err)
	}
	return enc.Close()
}

// blockStyle clears the flow style JSON input parses with. Quoted scalars
// keep their quotes so strings that look like numbers stay strings.
func blockStyle(n *yaml.Node) {
	if n.Kind != yaml.ScalarNode {
		n.Style &^= yaml.FlowStyle
	}
	for _, c := range n.Content {
		blockStyle(c)
	}
}
