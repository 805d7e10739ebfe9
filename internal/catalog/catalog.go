// Package catalog describes the actions murmur can resolve an utterance to:
// their trigger phrases, the documents they may reference and the output
// template rendered for a match.
//
// A Catalog is loaded once at startup and never mutated afterwards. Order is
// significant: actions, patterns, files and phrases keep their declaration
// order because similarity ties resolve to the earliest entry.
package catalog

import "strings"

// Placeholder is substituted with the resolved filename when rendering a
// template.
const Placeholder = "{file_name}"

// Catalog is the ordered set of known actions.
type Catalog struct {
	Actions []Action `json:"actions"`
}

// Action is one device action. Files is nil for actions that never refer
// to a document.
type Action struct {
	Name     string      `json:"name"`
	Patterns []string    `json:"patterns"`
	Files    []Reference `json:"files,omitempty"`
	Template string      `json:"template"`
}

// Reference maps natural-language phrases to one target filename.
type Reference struct {
	Filename string   `json:"filename"`
	Phrases  []string `json:"phrases"`
}

// HasReferences reports whether the action declares a reference sub-catalog.
func (a Action) HasReferences() bool {
	return a.Files != nil
}

// HasPlaceholder reports whether the template expects a filename.
func (a Action) HasPlaceholder() bool {
	return strings.Contains(a.Template, Placeholder)
}

// Render fills the template with filename.
func (a Action) Render(filename string) string {
	return strings.Replace(a.Template, Placeholder, filename, 1)
}

// Filenames lists the action's reference targets in declaration order.
func (a Action) Filenames() []string {
	out := make([]string, 0, len(a.Files))
	for _, ref := range a.Files {
		out = append(out, ref.Filename)
	}
	return out
}

// Lookup returns the action named name.
func (c *Catalog) Lookup(name string) (Action, bool) {
	for _, a := range c.Actions {
		if a.Name == name {
			return a, true
		}
	}
	return Action{}, false
}

// PhraseCount is the number of trigger and reference phrases, i.e. the
// number of texts embedded when the catalog is indexed.
func (c *Catalog) PhraseCount() int {
	n := 0
	for _, a := range c.Actions {
		n += len(a.Patterns)
		for _, ref := range a.Files {
			n += len(ref.Phrases)
		}
	}
	return n
}
