package output

import (
	"fmt"
	"io"
	"reflect"
	"strings"
	"text/tabwriter"
	"time"
)

// timeLayout renders the unix millisecond timestamps of *_at fields.
const timeLayout = "2006-01-02 15:04:05"

// TableFormatter renders structs and slices of structs with a tabwriter.
// Column headers are the upper-cased json field names.
type TableFormatter struct {
	// Columns restricts and orders the columns by json name. Empty shows all.
	Columns   []string
	NoHeaders bool
}

// Format formats data as a table.
// Supports: *Table, []T and T where T is a struct.
func (f *TableFormatter) Format(w io.Writer, data any) error {
	if data == nil {
		return nil
	}
	switch t := data.(type) {
	case *Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	case Table:
		return t.RenderWithOptions(w, f.NoHeaders)
	}

	v := reflect.ValueOf(data)
	for v.Kind() == reflect.Ptr {
		if v.IsNil() {
			return nil
		}
		v = v.Elem()
	}

	var table *Table
	switch v.Kind() {
	case reflect.Slice, reflect.Array:
		table = f.sliceToTable(v)
	case reflect.Struct:
		table = structToTable(v)
	default:
		_, err := fmt.Fprintln(w, formatValue("", v))
		return err
	}
	return table.RenderWithOptions(w, f.NoHeaders)
}

type column struct {
	name  string
	index int
}

// columnsOf lists the exported fields of t in declaration or Columns order.
func (f *TableFormatter) columnsOf(t reflect.Type) []column {
	var all []column
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonName(field)
		if name == "-" {
			continue
		}
		all = append(all, column{name: name, index: i})
	}
	if len(f.Columns) == 0 {
		return all
	}
	byName := make(map[string]column, len(all))
	for _, c := range all {
		byName[c.name] = c
	}
	cols := make([]column, 0, len(f.Columns))
	for _, name := range f.Columns {
		if c, ok := byName[name]; ok {
			cols = append(cols, c)
		}
	}
	return cols
}

func (f *TableFormatter) sliceToTable(v reflect.Value) *Table {
	elemType := v.Type().Elem()
	for elemType.Kind() == reflect.Ptr {
		elemType = elemType.Elem()
	}
	if elemType.Kind() != reflect.Struct {
		table := &Table{Headers: []string{"VALUE"}}
		for i := 0; i < v.Len(); i++ {
			table.AddRow(formatValue("", v.Index(i)))
		}
		return table
	}

	cols := f.columnsOf(elemType)
	table := &Table{}
	for _, c := range cols {
		table.Headers = append(table.Headers, strings.ToUpper(c.name))
	}
	for i := 0; i < v.Len(); i++ {
		elem := v.Index(i)
		for elem.Kind() == reflect.Ptr {
			elem = elem.Elem()
		}
		row := make([]string, 0, len(cols))
		for _, c := range cols {
			row = append(row, formatValue(c.name, elem.Field(c.index)))
		}
		table.Rows = append(table.Rows, row)
	}
	return table
}

// structToTable renders a single struct as FIELD/VALUE rows. Nested structs
// are flattened with a dotted prefix.
func structToTable(v reflect.Value) *Table {
	table := &Table{Headers: []string{"FIELD", "VALUE"}}
	appendFields(table, "", v)
	return table
}

func appendFields(table *Table, prefix string, v reflect.Value) {
	t := v.Type()
	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		if !field.IsExported() {
			continue
		}
		name := jsonName(field)
		if name == "-" {
			continue
		}
		fv := v.Field(i)
		if fv.Kind() == reflect.Struct && fv.Type() != reflect.TypeOf(time.Time{}) {
			appendFields(table, prefix+name+".", fv)
			continue
		}
		table.AddRow(prefix+name, formatValue(name, fv))
	}
}

func jsonName(field reflect.StructField) string {
	if tag := field.Tag.Get("json"); tag != "" {
		if name, _, _ := strings.Cut(tag, ","); name != "" {
			return name
		}
	}
	return field.Name
}

// formatValue formats a field for display. Integer fields named *_at hold
// unix milliseconds.
func formatValue(name string, v reflect.Value) string {
	if !v.IsValid() {
		return "-"
	}
	for v.Kind() == reflect.Ptr || v.Kind() == reflect.Interface {
		if v.IsNil() {
			return "-"
		}
		v = v.Elem()
	}

	if t, ok := v.Interface().(time.Time); ok {
		if t.IsZero() {
			return "-"
		}
		return t.Format(timeLayout)
	}

	switch v.Kind() {
	case reflect.String:
		if v.String() == "" {
			return "-"
		}
		return v.String()
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		if strings.HasSuffix(name, "_at") {
			if v.Int() == 0 {
				return "-"
			}
			return time.UnixMilli(v.Int()).Format(timeLayout)
		}
		return fmt.Sprintf("%d", v.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return fmt.Sprintf("%d", v.Uint())
	case reflect.Float32, reflect.Float64:
		return fmt.Sprintf("%.2f", v.Float())
	case reflect.Bool:
		if v.Bool() {
			return "true"
		}
		return "false"
	case reflect.Slice, reflect.Array:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("[%d items]", v.Len())
	case reflect.Map:
		if v.Len() == 0 {
			return "-"
		}
		return fmt.Sprintf("{%d keys}", v.Len())
	default:
		return fmt.Sprintf("%v", v.Interface())
	}
}

// Table represents tabular data.
type Table struct {
	Headers []string
	Rows    [][]string
}

// Render renders the table to the writer.
func (t *Table) Render(w io.Writer) error {
	return t.RenderWithOptions(w, false)
}

// RenderWithOptions renders the table with options.
func (t *Table) RenderWithOptions(w io.Writer, noHeaders bool) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	if !noHeaders && len(t.Headers) > 0 {
		if _, err := fmt.Fprintln(tw, strings.Join(t.Headers, "\t")); err != nil {
			return err
		}
	}
	for _, row := range t.Rows {
		if _, err := fmt.Fprintln(tw, strings.Join(row, "\t")); err != nil {
			return err
		}
	}
	return tw.Flush()
}

// AddRow adds a row to the table.
func (t *Table) AddRow(cells ...string) {
	t.Rows = append(t.Rows, cells)
}
