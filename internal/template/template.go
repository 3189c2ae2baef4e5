// Package template renders Go template strings against the profile's vars,
// and produces config file content for the keyvalue and lines file formats.
package template

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"

	"gopkg.in/yaml.v3"

	"github.com/dunamismax/hostprep/internal/config"
)

// Render executes the Go template string s with vars as the data object.
// Referencing a var that does not exist is an error.
func Render(s string, vars map[string]any) (string, error) {
	t, err := template.New("").Option("missingkey=error").Parse(s)
	if err != nil {
		return "", fmt.Errorf("parse template: %w", err)
	}
	var buf bytes.Buffer
	if err := t.Execute(&buf, vars); err != nil {
		return "", fmt.Errorf("execute template: %w", err)
	}
	return buf.String(), nil
}

// RenderTask renders the template expressions in every string field of t.
// The task is encoded to a YAML node tree and each scalar is rendered on its
// own, so rendered values are never re-parsed as YAML. Tasks marked verbatim
// are returned unchanged.
func RenderTask(t config.Task, vars map[string]any) (config.Task, error) {
	if len(vars) == 0 || t.Verbatim {
		return t, nil
	}

	var doc yaml.Node
	if err := doc.Encode(t); err != nil {
		return t, fmt.Errorf("encode task %q for template rendering: %w", t.ID, err)
	}
	if err := renderNode(&doc, vars); err != nil {
		return t, fmt.Errorf("render task %q: %w", t.ID, err)
	}

	var result config.Task
	if err := doc.Decode(&result); err != nil {
		return t, fmt.Errorf("decode rendered task %q: %w", t.ID, err)
	}
	return result, nil
}

func renderNode(n *yaml.Node, vars map[string]any) error {
	if n.Kind == yaml.ScalarNode {
		if !strings.Contains(n.Value, "{{") {
			return nil
		}
		out, err := Render(n.Value, vars)
		if err != nil {
			return err
		}
		n.Value = out
		n.Tag = "!!str"
		return nil
	}
	for _, c := range n.Content {
		if err := renderNode(c, vars); err != nil {
			return err
		}
	}
	return nil
}
