package helpers

import "testing"

func TestNormalizeURL(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		in   string
		want string
	}{
		{
			name: "lowercases host and defaults scheme",
			in:   "Example.com/Tech/latest",
			want: "https://example.com/Tech/latest",
		},
		{
			name: "strips tracking params and fragment",
			in:   "https://news.example.com/article?id=7&utm_source=rss&fbclid=abc#top",
			want: "https://news.example.com/article?id=7",
		},
		{
			name: "removes default port",
			in:   "http://example.com:80/a",
			want: "http://example.com/a",
		},
		{
			name: "sorts query params",
			in:   "https://example.com/p?b=2&a=1",
			want: "https://example.com/p?a=1&b=2",
		},
		{
			name: "cleans repeated slashes",
			in:   "https://example.com//a//b",
			want: "https://example.com/a/b",
		},
		{
			name: "schemeless with double slash",
			in:   "//blog.example.com/post/42?utm_medium=email",
			want: "https://blog.example.com/post/42",
		},
		{
			name: "uppercase scheme folded",
			in:   "HTTPS://EXAMPLE.COM/x",
			want: "https://example.com/x",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NormalizeURL(tt.in)
			if err != nil {
				t.Fatalf("NormalizeURL(%q) error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Fatalf("NormalizeURL(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestNormalizeURLErrors(t *testing.T) {
	t.Parallel()
	for _, in := range []string{"", "   ", ":///bad"} {
		if _, err := NormalizeURL(in); err == nil {
			t.Fatalf("expected error for %q", in)
		}
	}
}

func TestNormalizeURLEqualKeys(t *testing.T) {
	t.Parallel()
	a, err := NormalizeURL("https://Example.com/story?utm_campaign=x&a=1")
	if err != nil {
		t.Fatal(err)
	}
	b, err := NormalizeURL("https://example.com/story/?a=1")
	if err != nil {
		t.Fatal(err)
	}
	if a != b {
		t.Fatalf("expected equal keys, got %q vs %q", a, b)
	}
}
