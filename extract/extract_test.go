package extract

import (
	"strings"
	"testing"
)

func TestText_StripsBoilerplate(t *testing.T) {
	html := `<html><head><title>T</title><style>.a{}</style></head>
<body>
  <header>Site header</header>
  <nav><a href="/">Home</a></nav>
  <script>var X = 1;</script>
  <p>Y</p>
  <noscript>enable js</noscript>
  <footer>Copyright</footer>
</body></html>`

	got, err := Text(html)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "T Y" {
		t.Errorf("expected %q, got %q", "T Y", got)
	}
}

func TestText_KeepsTitle(t *testing.T) {
	got, err := Text(`<html><head><title>PageTitle</title><meta charset="utf-8"></head><body><p>Y</p></body></html>`)
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "PageTitle Y" {
		t.Errorf("expected %q, got %q", "PageTitle Y", got)
	}
}

func TestText_CollapsesWhitespace(t *testing.T) {
	got, err := Text("<body><h1>Hello</h1><p>  big\n\n world </p><div>again</div></body>")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "Hello big world again" {
		t.Errorf("unexpected text %q", got)
	}
}

func TestText_Empty(t *testing.T) {
	got, err := Text("")
	if err != nil {
		t.Fatalf("Text failed: %v", err)
	}
	if got != "" {
		t.Errorf("expected empty text, got %q", got)
	}
}

func TestTitle(t *testing.T) {
	tests := []struct {
		html string
		want string
	}{
		{"<title> Page </title><h1>Head</h1>", "Page"},
		{"<body><h1>Head</h1></body>", "Head"},
		{"<p>none</p>", ""},
	}
	for _, tt := range tests {
		if got := Title(tt.html); got != tt.want {
			t.Errorf("Title(%q) = %q, want %q", tt.html, got, tt.want)
		}
	}
}

func TestTruncate(t *testing.T) {
	tests := []struct {
		in   string
		max  int
		want string
	}{
		{"hello", 10, "hello"},
		{"hello", 5, "hello"},
		{"hello", 3, "hel"},
		{"héllo", 2, "hé"},
		{"日本語テキスト", 3, "日本語"},
		{"abc", 0, "abc"},
	}
	for _, tt := range tests {
		if got := Truncate(tt.in, tt.max); got != tt.want {
			t.Errorf("Truncate(%q, %d) = %q, want %q", tt.in, tt.max, got, tt.want)
		}
	}
}

func TestTruncate_LongInput(t *testing.T) {
	s := strings.Repeat("a", 20000)
	if got := Truncate(s, 12000); len(got) != 12000 {
		t.Errorf("expected 12000 chars, got %d", len(got))
	}
}
