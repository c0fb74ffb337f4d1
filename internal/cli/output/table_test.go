package output

import (
	"bytes"
	"reflect"
	"strings"
	"testing"
	"time"
)

type row struct {
	ID         string `json:"id"`
	AppID      string `json:"app_id"`
	RateLimit  int64  `json:"rate_limit"`
	Active     bool   `json:"active"`
	CreatedAt  int64  `json:"created_at"`
	LastUsedAt int64  `json:"last_used_at"`
	internal   string
}

func lines(s string) []string {
	return strings.Split(strings.TrimRight(s, "\n"), "\n")
}

func TestTableFormatter_Slice(t *testing.T) {
	created := time.Date(2026, 1, 2, 3, 4, 5, 0, time.Local).UnixMilli()
	data := []row{
		{ID: "tgdv-1", AppID: "anime-web", RateLimit: 100, Active: true, CreatedAt: created},
		{ID: "tgdv-2", AppID: "manga", RateLimit: 5},
	}

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	got := lines(buf.String())
	if len(got) != 3 {
		t.Fatalf("got %d lines:\n%s", len(got), buf.String())
	}
	if fields := strings.Fields(got[0]); !reflect.DeepEqual(fields,
		[]string{"ID", "APP_ID", "RATE_LIMIT", "ACTIVE", "CREATED_AT", "LAST_USED_AT"}) {
		t.Errorf("headers = %v", fields)
	}
	if !strings.Contains(got[1], "2026-01-02 03:04:05") {
		t.Errorf("created_at not rendered as time: %q", got[1])
	}
	if fields := strings.Fields(got[2]); fields[len(fields)-1] != "-" || fields[len(fields)-2] != "-" {
		t.Errorf("zero timestamps should render as '-': %q", got[2])
	}
	if strings.Contains(buf.String(), "internal") {
		t.Error("unexported field rendered")
	}
}

func TestTableFormatter_Columns(t *testing.T) {
	data := []*row{{ID: "tgdv-1", AppID: "anime-web", RateLimit: 100}}
	var buf bytes.Buffer
	f := &TableFormatter{Columns: []string{"app_id", "id", "missing"}}
	if err := f.Format(&buf, data); err != nil {
		t.Fatal(err)
	}
	got := lines(buf.String())
	if fields := strings.Fields(got[0]); !reflect.DeepEqual(fields, []string{"APP_ID", "ID"}) {
		t.Errorf("headers = %v", fields)
	}
	if fields := strings.Fields(got[1]); !reflect.DeepEqual(fields, []string{"anime-web", "tgdv-1"}) {
		t.Errorf("row = %v", fields)
	}
}

func TestTableFormatter_EmptySlice(t *testing.T) {
	var buf bytes.Buffer
	if err := (&TableFormatter{NoHeaders: true}).Format(&buf, []row{}); err != nil {
		t.Fatal(err)
	}
	if buf.Len() != 0 {
		t.Errorf("output = %q, want empty", buf.String())
	}
}

func TestTableFormatter_NestedStruct(t *testing.T) {
	data := struct {
		Developer struct {
			ID string `json:"id"`
		} `json:"developer"`
		Key string `json:"api_key"`
	}{Key: "tgak_secret"}
	data.Developer.ID = "tgdv-1"

	var buf bytes.Buffer
	if err := (&TableFormatter{}).Format(&buf, &data); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{"FIELD", "developer.id", "tgdv-1", "api_key", "tgak_secret"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q:\n%s", want, out)
		}
	}
}

func TestTableFormatter_TableAndNil(t *testing.T) {
	var buf bytes.Buffer
	table := &Table{Headers: []string{"A", "B"}}
	table.AddRow("1", "2")
	if err := (&TableFormatter{}).Format(&buf, table); err != nil {
		t.Fatal(err)
	}
	if got := lines(buf.String()); len(got) != 2 {
		t.Errorf("table output = %q", buf.String())
	}

	buf.Reset()
	if err := (&TableFormatter{}).Format(&buf, nil); err != nil || buf.Len() != 0 {
		t.Errorf("nil: err %v, output %q", err, buf.String())
	}
}

func TestFormatValue(t *testing.T) {
	var nilPtr *string
	s := "x"
	tests := []struct {
		name  string
		field string
		value any
		want  string
	}{
		{"empty string", "", "", "-"},
		{"string", "", "abc", "abc"},
		{"int", "rate_limit", int64(7), "7"},
		{"zero timestamp", "expires_at", int64(0), "-"},
		{"bool", "", false, "false"},
		{"float", "", 1.5, "1.50"},
		{"empty slice", "", []string{}, "-"},
		{"slice", "", []string{"a", "b"}, "[2 items]"},
		{"map", "", map[string]int{"a": 1}, "{1 keys}"},
		{"nil pointer", "", nilPtr, "-"},
		{"pointer", "", &s, "x"},
		{"zero time", "", time.Time{}, "-"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := formatValue(tt.field, reflect.ValueOf(tt.value)); got != tt.want {
				t.Errorf("formatValue(%q, %v) = %q, want %q", tt.field, tt.value, got, tt.want)
			}
		})
	}
	if got := formatValue("", reflect.Value{}); got != "-" {
		t.Errorf("invalid value = %q", got)
	}
}
