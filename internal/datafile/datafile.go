// Package datafile reads table declarations and dataset definitions from
// YAML.
//
//	tables:
//	  - name: categories
//	    columns: [id, name]
//	    primary_key: [id]
//	datasets:
//	  - name: products
//	    rows:
//	      - key: truck
//	        values:
//	          name: truck
//	          category_id: {ref: categories.cars.id}
//
// Column order inside values is kept. A {ref: dataset.row.column} mapping
// becomes a dataset.RefTo reference.
package datafile

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/mesh-intelligence/fixtures/pkg/dataset"
	"github.com/mesh-intelligence/fixtures/pkg/types"
)

// File is a parsed dataset file.
type File struct {
	Tables      []*types.Table
	Definitions []*dataset.Definition
}

// Targets returns the declared tables as loader targets.
func (f *File) Targets() []any {
	out := make([]any, len(f.Tables))
	for i, t := range f.Tables {
		out[i] = t
	}
	return out
}

// TargetNames returns the distinct targets the definitions write into, in
// first-use order.
func (f *File) TargetNames() []string {
	seen := make(map[string]bool)
	var names []string
	for _, d := range f.Definitions {
		if !seen[d.Target()] {
			seen[d.Target()] = true
			names = append(names, d.Target())
		}
	}
	return names
}

type document struct {
	Tables   []tableDoc   `yaml:"tables"`
	Datasets []datasetDoc `yaml:"datasets"`
}

type tableDoc struct {
	Name       string   `yaml:"name"`
	Columns    []string `yaml:"columns"`
	PrimaryKey []string `yaml:"primary_key"`
}

type datasetDoc struct {
	Name   string   `yaml:"name"`
	Target string   `yaml:"target"`
	Rows   []rowDoc `yaml:"rows"`
}

type rowDoc struct {
	Key    string    `yaml:"key"`
	Values yaml.Node `yaml:"values"`
}

// ReadFile parses the dataset file at path.
func ReadFile(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read dataset file: %w", err)
	}
	f, err := Parse(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse reads one YAML document. Malformed documents fail with
// types.ErrValueMismatch, malformed references with types.ErrResolution.
func Parse(r io.Reader) (*File, error) {
	var doc document
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return &File{}, nil
		}
		return nil, fmt.Errorf("%w: %v", types.ErrValueMismatch, err)
	}

	f := &File{}
	for i, td := range doc.Tables {
		if td.Name == "" {
			return nil, fmt.Errorf("%w: table %d has no name", types.ErrValueMismatch, i)
		}
		f.Tables = append(f.Tables, &types.Table{
			Name:       td.Name,
			Columns:    td.Columns,
			PrimaryKey: td.PrimaryKey,
		})
	}
	for i, dd := range doc.Datasets {
		def, err := definition(i, dd)
		if err != nil {
			return nil, err
		}
		f.Definitions = append(f.Definitions, def)
	}
	return f, nil
}

func definition(i int, dd datasetDoc) (*dataset.Definition, error) {
	if dd.Name == "" {
		return nil, fmt.Errorf("%w: dataset %d has no name", types.ErrValueMismatch, i)
	}
	def := dataset.Define(dd.Name)
	if dd.Target != "" {
		def.Into(dd.Target)
	}
	seen := make(map[string]bool, len(dd.Rows))
	for j, rd := range dd.Rows {
		if rd.Key == "" {
			return nil, fmt.Errorf("%w: %s row %d has no key", types.ErrValueMismatch, dd.Name, j)
		}
		if seen[rd.Key] {
			return nil, fmt.Errorf("%w: %s has two rows keyed %q", types.ErrValueMismatch, dd.Name, rd.Key)
		}
		seen[rd.Key] = true
		cols, err := columns(&rd.Values)
		if err != nil {
			return nil, fmt.Errorf("%s.%s: %w", dd.Name, rd.Key, err)
		}
		def.Row(rd.Key, cols...)
	}
	return def, nil
}

// columns decodes a values mapping in document order.
func columns(n *yaml.Node) ([]types.Column, error) {
	if n.Kind == 0 {
		return nil, nil
	}
	if n.Kind != yaml.MappingNode {
		return nil, fmt.Errorf("%w: values must be a mapping (line %d)", types.ErrValueMismatch, n.Line)
	}
	cols := make([]types.Column, 0, len(n.Content)/2)
	for i := 0; i+1 < len(n.Content); i += 2 {
		name := n.Content[i].Value
		v, err := value(n.Content[i+1])
		if err != nil {
			return nil, fmt.Errorf("column %s: %w", name, err)
		}
		cols = append(cols, types.Column{Name: name, Value: v})
	}
	return cols, nil
}

func value(n *yaml.Node) (any, error) {
	if n.Kind == yaml.MappingNode && len(n.Content) == 2 && n.Content[0].Value == "ref" {
		return parseRef(n.Content[1].Value)
	}
	var v any
	if err := n.Decode(&v); err != nil {
		return nil, fmt.Errorf("%w: %v", types.ErrValueMismatch, err)
	}
	return v, nil
}

// parseRef parses "dataset.row.column".
func parseRef(s string) (dataset.Ref, error) {
	parts := strings.Split(s, ".")
	if len(parts) != 3 || parts[0] == "" || parts[1] == "" || parts[2] == "" {
		return dataset.Ref{}, fmt.Errorf("%w: malformed reference %q, want dataset.row.column", types.ErrResolution, s)
	}
	return dataset.RefTo(parts[0], parts[1], parts[2]), nil
}
