package catalog

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Format selects the catalog file syntax.
type Format string

const (
	FormatTOML Format = "toml"
	FormatYAML Format = "yaml"
)

// Phrases accepts either a single string or a list of strings and always
// holds the list form.
type Phrases []string

func (p *Phrases) UnmarshalTOML(v any) error {
	switch v := v.(type) {
	case string:
		*p = Phrases{v}
	case []any:
		out := make(Phrases, 0, len(v))
		for _, item := range v {
			s, ok := item.(string)
			if !ok {
				return fmt.Errorf("phrase must be a string, got %T", item)
			}
			out = append(out, s)
		}
		*p = out
	default:
		return fmt.Errorf("expected a string or a list of strings, got %T", v)
	}
	return nil
}

func (p *Phrases) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*p = Phrases{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*p = list
		return nil
	default:
		return fmt.Errorf("line %d: expected a string or a list of strings", node.Line)
	}
}

type fileSchema struct {
	Actions map[string]actionSchema `toml:"actions" yaml:"actions"`
}

type actionSchema struct {
	Patterns Phrases            `toml:"patterns" yaml:"patterns"`
	Files    map[string]Phrases `toml:"files" yaml:"files"`
	Template string             `toml:"template" yaml:"template"`
}

// declared records declaration order, which map decoding loses.
type declared struct {
	actions  []string
	files    map[string][]string
	hasFiles map[string]bool
}

func newDeclared() *declared {
	return &declared{files: map[string][]string{}, hasFiles: map[string]bool{}}
}

func (d *declared) addAction(name string) {
	for _, n := range d.actions {
		if n == name {
			return
		}
	}
	d.actions = append(d.actions, name)
}

func (d *declared) addFile(action, filename string) {
	for _, n := range d.files[action] {
		if n == filename {
			return
		}
	}
	d.files[action] = append(d.files[action], filename)
}

// Load reads and validates the catalog at path. The extension picks the
// format.
func Load(path string) (*Catalog, error) {
	format, err := formatOf(path)
	if err != nil {
		return nil, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading catalog: %w", err)
	}
	c, err := Parse(data, format)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a catalog document.
func Parse(data []byte, format Format) (*Catalog, error) {
	var (
		schema fileSchema
		order  *declared
		err    error
	)
	switch format {
	case FormatTOML:
		order, err = decodeTOML(data, &schema)
	case FormatYAML:
		order, err = decodeYAML(data, &schema)
	default:
		return nil, fmt.Errorf("unsupported catalog format %q", format)
	}
	if err != nil {
		return nil, err
	}

	c := build(&schema, order)
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return c, nil
}

func formatOf(path string) (Format, error) {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".toml":
		return FormatTOML, nil
	case ".yaml", ".yml":
		return FormatYAML, nil
	default:
		return "", fmt.Errorf("catalog %s: unknown extension (want .toml, .yaml or .yml)", path)
	}
}

func decodeTOML(data []byte, schema *fileSchema) (*declared, error) {
	md, err := toml.NewDecoder(bytes.NewReader(data)).Decode(schema)
	if err != nil {
		return nil, fmt.Errorf("decoding toml: %w", err)
	}
	if undecoded := md.Undecoded(); len(undecoded) > 0 {
		return nil, fmt.Errorf("unknown catalog keys: %v", undecoded)
	}

	order := newDeclared()
	for _, key := range md.Keys() {
		if len(key) < 2 || key[0] != "actions" {
			continue
		}
		order.addAction(key[1])
		if len(key) >= 3 && key[2] == "files" {
			order.hasFiles[key[1]] = true
		}
		if len(key) >= 4 && key[2] == "files" {
			order.addFile(key[1], key[3])
		}
	}
	return order, nil
}

func decodeYAML(data []byte, schema *fileSchema) (*declared, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}
	order := newDeclared()
	if len(root.Content) == 0 {
		return order, nil
	}
	doc := root.Content[0]
	if err := doc.Decode(schema); err != nil {
		return nil, fmt.Errorf("decoding yaml: %w", err)
	}

	actions := mappingValue(doc, "actions")
	if actions == nil || actions.Kind != yaml.MappingNode {
		return order, nil
	}
	for i := 0; i+1 < len(actions.Content); i += 2 {
		name := actions.Content[i].Value
		order.addAction(name)

		files := mappingValue(actions.Content[i+1], "files")
		if files == nil {
			continue
		}
		order.hasFiles[name] = true
		if files.Kind != yaml.MappingNode {
			continue
		}
		for j := 0; j+1 < len(files.Content); j += 2 {
			order.addFile(name, files.Content[j].Value)
		}
	}
	return order, nil
}

func mappingValue(node *yaml.Node, key string) *yaml.Node {
	if node == nil || node.Kind != yaml.MappingNode {
		return nil
	}
	for i := 0; i+1 < len(node.Content); i += 2 {
		if node.Content[i].Value == key {
			return node.Content[i+1]
		}
	}
	return nil
}

func build(schema *fileSchema, order *declared) *Catalog {
	names := appendMissing(order.actions, schema.Actions)

	c := &Catalog{Actions: make([]Action, 0, len(names))}
	for _, name := range names {
		raw := schema.Actions[name]
		a := Action{
			Name:     name,
			Patterns: []string(raw.Patterns),
			Template: raw.Template,
		}
		if order.hasFiles[name] || raw.Files != nil {
			a.Files = []Reference{}
			for _, filename := range appendMissing(order.files[name], raw.Files) {
				a.Files = append(a.Files, Reference{
					Filename: filename,
					Phrases:  []string(raw.Files[filename]),
				})
			}
		}
		c.Actions = append(c.Actions, a)
	}
	return c
}

// appendMissing returns ordered followed by any keys of m it does not
// mention, sorted for determinism.
func appendMissing[V any](ordered []string, m map[string]V) []string {
	known := make(map[string]bool, len(ordered))
	out := make([]string, 0, len(m))
	for _, k := range ordered {
		if _, ok := m[k]; ok && !known[k] {
			known[k] = true
			out = append(out, k)
		}
	}
	var rest []string
	for k := range m {
		if !known[k] {
			rest = append(rest, k)
		}
	}
	sort.Strings(rest)
	return append(out, rest...)
}
