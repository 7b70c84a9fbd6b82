// Package openapi checks the site OpenAPI document against the error
// envelope the handlers write and the routes the server registers.
package openapi

import (
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"
)

type Doc struct {
	Paths      map[string]map[string]Operation `yaml:"paths"`
	Components struct {
		Schemas map[string]Schema `yaml:"schemas"`
	} `yaml:"components"`
}

type Operation struct {
	Summary   string               `yaml:"summary"`
	Responses map[string]yaml.Node `yaml:"responses"`
}

type Schema struct {
	Type       string            `yaml:"type"`
	Ref        string            `yaml:"$ref"`
	Properties map[string]Schema `yaml:"properties"`
	Required   []string          `yaml:"required"`
	Items      *Schema           `yaml:"items"`
}

var methods = map[string]bool{
	"get": true, "post": true, "put": true, "patch": true, "delete": true,
}

func Load(path string) (Doc, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return Doc{}, fmt.Errorf("read %s: %w", path, err)
	}
	doc, err := Parse(raw)
	if err != nil {
		return Doc{}, fmt.Errorf("parse %s: %w", path, err)
	}
	return doc, nil
}

func Parse(raw []byte) (Doc, error) {
	var doc Doc
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return doc, err
	}
	if len(doc.Paths) == 0 {
		return doc, errors.New("paths missing")
	}
	return doc, nil
}

// Validate checks the error schemas and that every operation documents at
// least one response.
func Validate(doc Doc) error {
	errResp, err := schema(doc, "ErrorResponse")
	if err != nil {
		return err
	}
	if err := validateErrorResponse(errResp); err != nil {
		return err
	}
	validation, err := schema(doc, "ValidationErrorResponse")
	if err != nil {
		return err
	}
	if err := validateValidationError(validation); err != nil {
		return err
	}
	for _, path := range sortedKeys(doc.Paths) {
		for method, op := range doc.Paths[path] {
			if !methods[method] {
				return fmt.Errorf("%s: unsupported method %q", path, method)
			}
			if len(op.Responses) == 0 {
				return fmt.Errorf("%s %s: no responses documented", strings.ToUpper(method), path)
			}
		}
	}
	return nil
}

// CheckRoutes reports documented paths the server does not serve and served
// patterns the document omits.
func CheckRoutes(doc Doc, patterns []string) error {
	served := make(map[string]bool, len(patterns))
	for _, p := range patterns {
		served[p] = true
	}
	var problems []string
	for _, path := range sortedKeys(doc.Paths) {
		if !served[path] {
			problems = append(problems, "documented but not served: "+path)
		}
	}
	for _, p := range patterns {
		if _, ok := doc.Paths[p]; !ok {
			problems = append(problems, "served but not documented: "+p)
		}
	}
	if len(problems) > 0 {
		return errors.New(strings.Join(problems, "; "))
	}
	return nil
}

func schema(doc Doc, name string) (Schema, error) {
	if doc.Components.Schemas == nil {
		return Schema{}, errors.New("components.schemas missing")
	}
	s, ok := doc.Components.Schemas[name]
	if !ok {
		return Schema{}, fmt.Errorf("schema %q missing", name)
	}
	return s, nil
}

func validateErrorResponse(s Schema) error {
	if s.Type != "object" {
		return errors.New("ErrorResponse must be object")
	}
	if !makeSet(s.Required)["error"] {
		return errors.New(`ErrorResponse.required must include "error"`)
	}
	if p, ok := s.Properties["error"]; !ok || p.Type != "string" {
		return errors.New("ErrorResponse.error must be string")
	}
	if p, ok := s.Properties["details"]; !ok || p.Type != "string" {
		return errors.New("ErrorResponse.details must be string")
	}
	return nil
}

func validateValidationError(s Schema) error {
	if s.Type != "object" {
		return errors.New("ValidationErrorResponse must be object")
	}
	if p, ok := s.Properties["error"]; !ok || p.Type != "string" {
		return errors.New("ValidationErrorResponse.error must be string")
	}
	fields, ok := s.Properties["fields"]
	if !ok || fields.Type != "array" || fields.Items == nil || fields.Items.Type != "string" {
		return errors.New("ValidationErrorResponse.fields must be an array of strings")
	}
	return nil
}

func makeSet(items []string) map[string]bool {
	out := make(map[string]bool, len(items))
	for _, item := range items {
		if item = strings.TrimSpace(item); item != "" {
			out[item] = true
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
