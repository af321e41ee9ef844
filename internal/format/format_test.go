package format

import (
	"bytes"
	"testing"
)

func TestJSONFormatterCompact(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, map[string]string{"scope": "contoso"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "{\"scope\":\"contoso\"}\n" {
		t.Fatalf("output = %q", got)
	}
}

func TestJSONFormatterIndent(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{Indent: "  "}).Write(&buf, map[string]string{"scope": "contoso"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	want := "{\n  \"scope\": \"contoso\"\n}\n"
	if got := buf.String(); got != want {
		t.Fatalf("output = %q, want %q", got, want)
	}
}

func TestJSONFormatterNoHTMLEscape(t *testing.T) {
	var buf bytes.Buffer
	if err := (JSONFormatter{}).Write(&buf, map[string]string{"q": "a&b"}); err != nil {
		t.Fatalf("write: %v", err)
	}
	if got := buf.String(); got != "{\"q\":\"a&b\"}\n" {
		t.Fatalf("output = %q", got)
	}
}
