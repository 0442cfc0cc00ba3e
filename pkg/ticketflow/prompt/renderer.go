// Package prompt renders named prompt templates against a variable bag
// into the exact text sent to an LLM backend.
//
// Templates use ${var} placeholders. Rendering fails on undefined
// variables so a prompt never silently ships with a hole in it.
package prompt

import (
	"fmt"
	"regexp"
	"strings"
	"sync"
)

// bracePattern matches ${varname} - varname can contain alphanumeric,
// underscore, and dots for namespaced artifact keys.
var bracePattern = regexp.MustCompile(`\$\{([a-zA-Z_][a-zA-Z0-9_.]*)\}`)

// Template is a named prompt pair. SystemPrompt may be empty.
type Template struct {
	Name         string
	SystemPrompt string
	UserPrompt   string
}

// Rendered is the exact text produced for one LLM call.
type Rendered struct {
	SystemPrompt string
	UserPrompt   string
}

// Renderer holds named templates and renders them against variable bags.
// Safe for concurrent use after construction.
type Renderer struct {
	mu        sync.RWMutex
	templates map[string]Template
}

// NewRenderer creates a renderer with the given templates.
func NewRenderer(templates ...Template) *Renderer {
	r := &Renderer{templates: make(map[string]Template, len(templates))}
	for _, t := range templates {
		r.templates[t.Name] = t
	}
	return r
}

// Register adds or replaces a template.
func (r *Renderer) Register(t Template) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.templates[t.Name] = t
}

// Has reports whether a template is registered.
func (r *Renderer) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.templates[name]
	return ok
}

// Render expands the named template with vars.
// Returns an error if the template is unknown or any variable is undefined.
func (r *Renderer) Render(name string, vars map[string]any) (Rendered, error) {
	r.mu.RLock()
	t, ok := r.templates[name]
	r.mu.RUnlock()
	if !ok {
		return Rendered{}, &UnknownTemplateError{Name: name}
	}

	system, err := expand(t.SystemPrompt, vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("template %s system prompt: %w", name, err)
	}
	user, err := expand(t.UserPrompt, vars)
	if err != nil {
		return Rendered{}, fmt.Errorf("template %s user prompt: %w", name, err)
	}

	return Rendered{SystemPrompt: system, UserPrompt: user}, nil
}

// expand replaces ${var} placeholders, collecting undefined names.
func expand(s string, vars map[string]any) (string, error) {
	if s == "" {
		return "", nil
	}

	var missing []string
	result := bracePattern.ReplaceAllStringFunc(s, func(match string) string {
		varName := match[2 : len(match)-1]
		if val, ok := vars[varName]; ok {
			return fmt.Sprintf("%v", val)
		}
		missing = append(missing, varName)
		return match
	})

	if len(missing) > 0 {
		return result, &UndefinedVariableError{Names: missing}
	}
	return result, nil
}

// UnknownTemplateError is returned when no template exists for a name.
type UnknownTemplateError struct {
	Name string
}

// Error implements the error interface.
func (e *UnknownTemplateError) Error() string {
	return fmt.Sprintf("unknown prompt template: %s", e.Name)
}

// UndefinedVariableError is returned when one or more template variables
// are not present in the variable bag.
type UndefinedVariableError struct {
	// Names is the list of undefined variable names.
	Names []string
}

// Error implements the error interface.
func (e *UndefinedVariableError) Error() string {
	if len(e.Names) == 1 {
		return fmt.Sprintf("undefined variable: %s", e.Names[0])
	}
	return fmt.Sprintf("undefined variables: %s", strings.Join(e.Names, ", "))
}
