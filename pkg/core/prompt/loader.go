package prompt

import (
	"bytes"
	"embed"
	"fmt"
	"io/fs"
	"os"
	"path"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"
)

//go:embed templates/*.yaml
var builtin embed.FS

// promptFile is the layout of one YAML file: a category and its prompts.
type promptFile struct {
	Category string           `yaml:"category"`
	Prompts  []PromptTemplate `yaml:"prompts"`
}

// Default returns a registry holding the built-in prompts.
func Default() (*Registry, error) {
	r := NewRegistry()
	sub, err := fs.Sub(builtin, "templates")
	if err != nil {
		return nil, err
	}
	if err := LoadFS(r, sub); err != nil {
		return nil, fmt.Errorf("failed to load built-in prompts: %w", err)
	}
	return r, nil
}

// LoadFromDirectory loads every .yaml/.yml file in dir into r, replacing
// prompts with the same ID.
func LoadFromDirectory(r *Registry, dir string) error {
	if _, err := os.Stat(dir); err != nil {
		return fmt.Errorf("prompts directory not found: %s", dir)
	}
	return LoadFS(r, os.DirFS(dir))
}

// LoadFS walks fsys for YAML prompt files.
func LoadFS(r *Registry, fsys fs.FS) error {
	return fs.WalkDir(fsys, ".", func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		ext := path.Ext(p)
		if d.IsDir() || (ext != ".yaml" && ext != ".yml") {
			return nil
		}

		data, err := fs.ReadFile(fsys, p)
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", p, err)
		}

		var file promptFile
		if err := yaml.Unmarshal(data, &file); err != nil {
			return fmt.Errorf("failed to parse %s: %w", p, err)
		}

		// category defaults to the file name
		category := file.Category
		if category == "" {
			category = strings.TrimSuffix(path.Base(p), ext)
		}
		for i := range file.Prompts {
			pt := file.Prompts[i]
			if pt.Category == "" {
				pt.Category = category
			}
			if err := r.Register(&pt); err != nil {
				return fmt.Errorf("failed to register prompt in %s: %w", p, err)
			}
		}
		return nil
	})
}

// RenderUserPrompt executes the user prompt template with the given context.
// Missing variables take their declared default; a missing required variable
// is an error.
func RenderUserPrompt(pt *PromptTemplate, ctx *PromptExecutionContext) (string, error) {
	if pt.UserPromptTmpl == "" {
		return "", nil
	}
	if ctx == nil {
		ctx = NewContext()
	}

	vars := make(map[string]interface{}, len(ctx.Variables)+len(pt.Variables))
	for _, v := range pt.Variables {
		if _, ok := ctx.Variables[v.Name]; ok {
			continue
		}
		if v.Required && v.Default == "" {
			return "", fmt.Errorf("prompt %s: missing required variable %s", pt.ID, v.Name)
		}
		vars[v.Name] = v.Default
	}
	for k, v := range ctx.Variables {
		vars[k] = v
	}

	tmpl, err := template.New(pt.ID).Option("missingkey=error").Parse(pt.UserPromptTmpl)
	if err != nil {
		return "", fmt.Errorf("failed to parse template: %w", err)
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("failed to execute template: %w", err)
	}

	return buf.String(), nil
}
