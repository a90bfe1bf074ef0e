// Package output renders command results as aligned text or indented JSON.
package output

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"
)

// Formatter writes command results in the selected mode.
type Formatter struct {
	Writer   io.Writer
	JSONMode bool
}

// New returns a Formatter writing to w.
func New(w io.Writer, jsonMode bool) *Formatter {
	return &Formatter{Writer: w, JSONMode: jsonMode}
}

// Field is one labelled value of a detail view.
type Field struct {
	Name  string
	Value string
}

// Table writes rows under headers. In JSON mode each row becomes an object
// keyed by header; missing cells are empty strings.
func (f *Formatter) Table(headers []string, rows [][]string) error {
	if f.JSONMode {
		objects := make([]map[string]string, 0, len(rows))
		for _, row := range rows {
			obj := make(map[string]string, len(headers))
			for i, h := range headers {
				obj[h] = cell(row, i)
			}
			objects = append(objects, obj)
		}
		return f.Print(objects)
	}

	rule := make([]string, len(headers))
	for i, h := range headers {
		rule[i] = strings.Repeat("-", len(h))
	}
	lines := append([][]string{headers, rule}, rows...)
	return f.aligned(lines, func(cols []string) string { return strings.Join(cols, "\t") })
}

// Detail writes data as JSON in JSON mode, otherwise fields as aligned
// "name: value" lines.
func (f *Formatter) Detail(data any, fields []Field) error {
	if f.JSONMode {
		return f.Print(data)
	}

	lines := make([][]string, len(fields))
	for i, field := range fields {
		lines[i] = []string{field.Name, field.Value}
	}
	return f.aligned(lines, func(cols []string) string { return cols[0] + ":\t" + cols[1] })
}

// Print writes data as indented JSON, or with %v outside JSON mode.
func (f *Formatter) Print(data any) error {
	if !f.JSONMode {
		_, err := fmt.Fprintf(f.Writer, "%v\n", data)
		return err
	}
	enc := json.NewEncoder(f.Writer)
	enc.SetIndent("", "  ")
	return enc.Encode(data)
}

func (f *Formatter) aligned(lines [][]string, join func([]string) string) error {
	tw := tabwriter.NewWriter(f.Writer, 0, 0, 2, ' ', 0)
	for _, cols := range lines {
		if _, err := fmt.Fprintln(tw, join(cols)); err != nil {
			return err
		}
	}
	return tw.Flush()
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}
