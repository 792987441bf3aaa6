/*
Copyright 2026 Chainguard, Inc.
SPDX-License-Identifier: Apache-2.0
*/

// Package prompt builds model prompts from developer-authored templates with
// {{placeholder}} slots. Transcript text and blueprint material only enter a
// prompt through encoded bindings (XML, JSON, YAML), so nothing a caller said
// on the phone can rewrite the instructions around it. Templates are
// immutable; every bind returns a new Template.
package prompt

import (
	"encoding/json"
	"encoding/xml"
	"fmt"
	"maps"

	"gopkg.in/yaml.v3"
)

// literal only accepts compile-time string literals, keeping template text
// and literal bindings in developer hands.
type literal string

// binding produces the replacement text for one placeholder.
type binding interface {
	value() (string, error)
}

type unbound struct{ name string }

func (u unbound) value() (string, error) {
	return "", fmt.Errorf("unbound placeholder: %s", u.name)
}

type literalBinding string

func (l literalBinding) value() (string, error) { return string(l), nil }

type jsonBinding struct{ data any }

func (j jsonBinding) value() (string, error) {
	b, err := json.MarshalIndent(j.data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling JSON binding: %w", err)
	}
	return string(b), nil
}

type xmlBinding struct{ data any }

func (x xmlBinding) value() (string, error) {
	b, err := xml.MarshalIndent(x.data, "", "  ")
	if err != nil {
		return "", fmt.Errorf("marshaling XML binding: %w", err)
	}
	return string(b), nil
}

type yamlBinding struct{ data any }

func (y yamlBinding) value() (string, error) {
	b, err := yaml.Marshal(y.data)
	if err != nil {
		return "", fmt.Errorf("marshaling YAML binding: %w", err)
	}
	return string(b), nil
}

// Template is a prompt template with named placeholders.
type Template struct {
	text     string
	bindings map[string]binding
}

// New parses a template literal and registers its placeholders.
func New(text literal) (*Template, error) {
	bindings := map[string]binding{}
	if _, err := walk(string(text), func(name string) (string, error) {
		if _, ok := bindings[name]; !ok {
			bindings[name] = unbound{name: name}
		}
		return "", nil
	}); err != nil {
		return nil, err
	}
	return &Template{text: string(text), bindings: bindings}, nil
}

// Names returns the set of placeholders in the template.
func (t *Template) Names() map[string]struct{} {
	names := make(map[string]struct{}, len(t.bindings))
	for name := range t.bindings {
		names[name] = struct{}{}
	}
	return names
}

func (t *Template) with(name string, b binding) (*Template, error) {
	existing, ok := t.bindings[name]
	if !ok {
		return nil, fmt.Errorf("placeholder %q not found in template", name)
	}
	if _, isUnbound := existing.(unbound); !isUnbound {
		return nil, fmt.Errorf("placeholder %q already bound", name)
	}
	nt := &Template{text: t.text, bindings: maps.Clone(t.bindings)}
	nt.bindings[name] = b
	return nt, nil
}

// BindLiteral binds a developer-authored constant.
func (t *Template) BindLiteral(name string, value literal) (*Template, error) {
	return t.with(name, literalBinding(value))
}

// BindJSON binds data marshaled as indented JSON.
func (t *Template) BindJSON(name string, data any) (*Template, error) {
	return t.with(name, jsonBinding{data: data})
}

// BindXML binds data marshaled as indented XML. Use chardata-carrying
// structs to embed free text with escaping applied.
func (t *Template) BindXML(name string, data any) (*Template, error) {
	return t.with(name, xmlBinding{data: data})
}

// BindYAML binds data marshaled as YAML.
func (t *Template) BindYAML(name string, data any) (*Template, error) {
	return t.with(name, yamlBinding{data: data})
}

// Build renders the template. Every placeholder must be bound.
func (t *Template) Build() (string, error) {
	values := make(map[string]string, len(t.bindings))
	for name, b := range t.bindings {
		v, err := b.value()
		if err != nil {
			return "", err
		}
		values[name] = v
	}
	return walk(t.text, func(name string) (string, error) {
		return values[name], nil
	})
}

// Must panics on error. For package-level template variables.
func Must(t *Template, err error) *Template {
	if err != nil {
		panic(err)
	}
	return t
}

// MustNew is Must(New(text)).
func MustNew(text literal) *Template {
	return Must(New(text))
}

// MustBindLiteral is Must(t.BindLiteral(name, value)).
func (t *Template) MustBindLiteral(name string, value literal) *Template {
	return Must(t.BindLiteral(name, value))
}

// MustBindJSON is Must(t.BindJSON(name, data)).
func (t *Template) MustBindJSON(name string, data any) *Template {
	return Must(t.BindJSON(name, data))
}

// MustBindXML is Must(t.BindXML(name, data)).
func (t *Template) MustBindXML(name string, data any) *Template {
	return Must(t.BindXML(name, data))
}

// MustBindYAML is Must(t.BindYAML(name, data)).
func (t *Template) MustBindYAML(name string, data any) *Template {
	return Must(t.BindYAML(name, data))
}
