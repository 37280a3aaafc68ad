package utils

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"text/template"
)

var templateFuncs = template.FuncMap{
	"json": ToJSON,
	"join": strings.Join,
}

// LoadTemplate loads and parses a template file with custom functions
func LoadTemplate(path string) (*template.Template, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read template file %s: %w", path, err)
	}

	tmpl, err := ParseTemplate(path, string(data))
	if err != nil {
		return nil, err
	}
	return tmpl, nil
}

func ParseTemplate(name, text string) (*template.Template, error) {
	tmpl, err := template.New(name).Funcs(templateFuncs).Parse(text)
	if err != nil {
		return nil, fmt.Errorf("failed to parse template %s: %w", name, err)
	}
	return tmpl, nil
}

// ToJSON converts a value to a JSON string
func ToJSON(v interface{}) string {
	b, err := json.Marshal(v)
	if err != nil {
		return `""`
	}
	return string(b)
}
