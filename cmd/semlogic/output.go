package main

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"gopkg.in/yaml.v3"
)

// Output formats accepted by --format.
const (
	formatJSON = "json"
	formatYAML = "yaml"
	formatCBOR = "cbor"
)

// writeOutput encodes v to w. CBOR keys follow the JSON field names.
func writeOutput(w io.Writer, format string, v any) error {
	switch strings.ToLower(format) {
	case formatJSON, "":
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(v)

	case formatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(v); err != nil {
			return fmt.Errorf("encode yaml: %w", err)
		}
		return enc.Close()

	case formatCBOR:
		data, err := cbor.Marshal(v)
		if err != nil {
			return fmt.Errorf("encode cbor: %w", err)
		}
		_, err = w.Write(data)
		return err

	default:
		return fmt.Errorf("unknown format %q (want json, yaml or cbor)", format)
	}
}
