package catalog

import (
	"fmt"
	"strings"
)

// ValidationError lists every problem found in a catalog. It is fatal at
// startup.
type ValidationError struct {
	Problems []string
}

func (e *ValidationError) Error() string {
	return "invalid catalog: " + strings.Join(e.Problems, "; ")
}

// Validate checks the structural invariants of the catalog and returns a
// *ValidationError describing all violations, or nil.
func (c *Catalog) Validate() error {
	var problems []string
	addf := func(format string, args ...any) {
		problems = append(problems, fmt.Sprintf(format, args...))
	}

	if c == nil || len(c.Actions) == 0 {
		return &ValidationError{Problems: []string{"no actions defined"}}
	}

	seen := make(map[string]bool, len(c.Actions))
	for i, a := range c.Actions {
		name := a.Name
		if strings.TrimSpace(name) == "" {
			addf("action #%d has an empty name", i+1)
			name = fmt.Sprintf("#%d", i+1)
		} else if seen[name] {
			addf("action %q is defined more than once", name)
		}
		seen[name] = true

		if len(a.Patterns) == 0 {
			addf("action %q has no patterns", name)
		}
		for _, p := range a.Patterns {
			if strings.TrimSpace(p) == "" {
				addf("action %q has a blank pattern", name)
			}
		}

		if n := strings.Count(a.Template, Placeholder); n > 1 {
			addf("action %q template contains %s %d times", name, Placeholder, n)
		}

		if !a.HasReferences() {
			if a.HasPlaceholder() {
				addf("action %q template uses %s but declares no files", name, Placeholder)
			}
			continue
		}

		if !a.HasPlaceholder() {
			addf("action %q declares files but its template has no %s", name, Placeholder)
		}
		if len(a.Files) == 0 {
			addf("action %q declares an empty files table", name)
		}

		owner := make(map[string]string)
		filenames := make(map[string]bool, len(a.Files))
		for _, ref := range a.Files {
			if strings.TrimSpace(ref.Filename) == "" {
				addf("action %q has a reference with an empty filename", name)
			} else if filenames[ref.Filename] {
				addf("action %q lists file %q more than once", name, ref.Filename)
			}
			filenames[ref.Filename] = true

			if len(ref.Phrases) == 0 {
				addf("action %q file %q has no phrases", name, ref.Filename)
			}
			for _, p := range ref.Phrases {
				if strings.TrimSpace(p) == "" {
					addf("action %q file %q has a blank phrase", name, ref.Filename)
					continue
				}
				if prev, ok := owner[p]; ok {
					addf("action %q phrase %q refers to both %q and %q", name, p, prev, ref.Filename)
					continue
				}
				owner[p] = ref.Filename
			}
		}
	}

	if len(problems) > 0 {
		return &ValidationError{Problems: problems}
	}
	return nil
}
