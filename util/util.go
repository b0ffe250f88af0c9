package util

import (
	"strings"
	"text/template"

	"github.com/pkg/errors"
)

// Data is a generic map type for template rendering context.
type Data map[string]interface{}

// Render executes the given template with the provided variables.
func Render(tmpl *template.Template, variables Data) (string, error) {
	var buf strings.Builder
	if err := tmpl.Execute(&buf, variables); err != nil {
		return "", errors.Wrap(err, "failed to render template")
	}
	return buf.String(), nil
}

// RenderString parses and executes the given template string with the
// provided variables. Missing keys are an error so a job file cannot
// silently expand to an empty argument.
func RenderString(tmplStr string, variables Data) (string, error) {
	tmpl, err := template.New("").Option("missingkey=error").Parse(tmplStr)
	if err != nil {
		return "", errors.Wrap(err, "failed to parse template string")
	}
	return Render(tmpl, variables)
}

// RenderStrings renders every element of src with the same variables.
func RenderStrings(src []string, variables Data) ([]string, error) {
	if len(src) == 0 {
		return nil, nil
	}
	out := make([]string, len(src))
	for i, s := range src {
		rendered, err := RenderString(s, variables)
		if err != nil {
			return nil, errors.Wrapf(err, "element %d", i)
		}
		out[i] = rendered
	}
	return out, nil
}

// FirstNonEmpty returns the first non-empty string, or "".
func FirstNonEmpty(strs ...string) string {
	for _, s := range strs {
		if s != "" {
			return s
		}
	}
	return ""
}

// TruncateString shortens s to maxLength runes, appending ellipsis when
// truncation happened.
func TruncateString(s string, maxLength int, ellipsis string) string {
	if maxLength <= 0 {
		return s
	}
	runes := []rune(s)
	if len(runes) <= maxLength {
		return s
	}
	return string(runes[:maxLength]) + ellipsis
}
