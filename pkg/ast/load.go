package ast

import (
	"bytes"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

// Load reads a program description from a YAML file.
func Load(path string) (*Program, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading program: %w", err)
	}
	return Parse(bytes.NewReader(data))
}

// Parse decodes a program description from YAML. Unknown fields are
// rejected so that typos in program descriptions fail loudly.
func Parse(r io.Reader) (*Program, error) {
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	var prog Program
	if err := dec.Decode(&prog); err != nil {
		return nil, fmt.Errorf("decoding program: %w", err)
	}
	if prog.Main == "" {
		return nil, fmt.Errorf("program has no main reactor")
	}
	if prog.Target.Workers <= 0 {
		prog.Target.Workers = 1
	}
	return &prog, nil
}
