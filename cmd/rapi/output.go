package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

// writeOutput renders v as indented JSON or as YAML. YAML is produced from
// the JSON encoding so both formats share field names and key order.
func writeOutput(w io.Writer, format string, v any) error {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("encode output: %w", err)
	}

	switch strings.ToLower(format) {
	case "", "json":
		_, err := w.Write(buf.Bytes())
		return err
	case "yaml", "yml":
		var doc yaml.Node
		if err := yaml.Unmarshal(buf.Bytes(), &doc); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		blockStyle(&doc)
		ye := yaml.NewEncoder(w)
		ye.SetIndent(2)
		if err := ye.Encode(&doc); err != nil {
			return fmt.Errorf("encode output: %w", err)
		}
		return ye.Close()
	}
	return fmt.Errorf("unknown output format %q", format)
}

// blockStyle clears the flow and quoting styles the JSON input left on n.
func blockStyle(n *yaml.Node) {
	n.Style = 0
	for _, c := range n.Content {
		blockStyle(c)
	}
}

// readJSONFile decodes the JSON document at path into v. "-" reads stdin.
func readJSONFile(cmd *cli.Command, path string, v any) error {
	var r io.Reader
	if path == "-" {
		r = cmd.Root().Reader
		if r == nil {
			r = os.Stdin
		}
	} else {
		f, err := os.Open(path)
		if err != nil {
			return err
		}
		defer f.Close()
		r = f
	}
	if err := json.NewDecoder(r).Decode(v); err != nil {
		return fmt.Errorf("decode %s: %w", path, err)
	}
	return nil
}
