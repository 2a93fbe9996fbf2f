package shortlink

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

type fakeRoutes map[string]bool

func (f fakeRoutes) ReservesSegment(s string) bool { return f[strings.ToLower(s)] }

func TestSanitizeKeyword(t *testing.T) {
	s := NewSanitizer(Base36)
	cases := map[string]string{
		"abc":        "abc",
		"  a-b_c! ":  "abc",
		"ABC":        "",
		"héllo":      "hllo",
		"../etc/pwd": "etcpwd",
	}
	for in, want := range cases {
		assert.Equal(t, want, s.Keyword(in), "input %q", in)
	}

	s62 := NewSanitizer(Base62)
	assert.Equal(t, "AbC", s62.Keyword("A-b C"))
}

func TestSanitizeKeywordTruncates(t *testing.T) {
	s := NewSanitizer(Base36, WithMaxKeywordLength(5))
	assert.Equal(t, "abcde", s.Keyword("a-b-c-d-e-f-g"))
	assert.Equal(t, 5, s.MaxLength())
}

func TestSanitizeURL(t *testing.T) {
	s := NewSanitizer(Base36)
	cases := []struct{ in, want string }{
		{"https://example.com/", "https://example.com/"},
		{"  https://example.com/a b  ", "https://example.com/ab"},
		{"example.com/path", "http://example.com/path"},
		{"//cdn.example.com/x.js", "http://cdn.example.com/x.js"},
		{"localhost:8080/x", "http://localhost:8080/x"},
		{"HTTPS://Example.com/Q", "https://Example.com/Q"},
		{"https://example.com/%0d%0aSet-Cookie:x", "https://example.com/Set-Cookie:x"},
		{"https://example.com/%0%0dd", "https://example.com/"},
		{"javascript:alert(1)", ""},
		{"data:text/html,hi", ""},
		{"mailto:someone@example.com", "mailto:someone@example.com"},
		{"tel:+123456", "tel:+123456"},
		{"https://例子.测试/路径", "https://例子.测试/路径"},
		{"", ""},
		{"   ", ""},
	}
	for _, c := range cases {
		assert.Equal(t, c.want, s.URL(c.in), "input %q", c.in)
	}
}

func TestSanitizeDispatch(t *testing.T) {
	s := NewSanitizer(Base36)
	assert.Equal(t, "abc", s.Sanitize("a b c", true))
	assert.Equal(t, "http://abc", s.Sanitize("a b c", false))
}

func TestReserved(t *testing.T) {
	s := NewSanitizer(Base36,
		WithReserved(DefaultReserved...),
		WithReserved(" Promo "),
		WithPages("about"),
		WithRoutes(fakeRoutes{"healthz": true, "metrics": true}),
	)
	for _, kw := range []string{"api", "API", "promo", "about", "metrics", "healthz"} {
		assert.True(t, s.IsReserved(kw), kw)
	}
	assert.False(t, s.IsReserved("abc"))
	assert.True(t, s.IsPage("About"))
	assert.False(t, s.IsPage("api"))
}

func FuzzSanitizeURLIdempotent(f *testing.F) {
	for _, seed := range []string{
		"https://example.com/", "example.com", "//x", "javascript:alert(1)",
		"%0%0dd", "%0D%0A%0d%0a", "http:", " \t\n", "a:1", "ftp://x/%0a", "ü:x",
	} {
		f.Add(seed)
	}
	s := NewSanitizer(Base36)
	f.Fuzz(func(t *testing.T, in string) {
		once := s.URL(in)
		if twice := s.URL(once); twice != once {
			t.Fatalf("URL not idempotent: %q -> %q -> %q", in, once, twice)
		}
	})
}

func FuzzSanitizeKeywordIdempotent(f *testing.F) {
	for _, seed := range []string{"abc", "A-B", "", "日本", strings.Repeat("z", 200)} {
		f.Add(seed)
	}
	s := NewSanitizer(Base62, WithMaxKeywordLength(50))
	f.Fuzz(func(t *testing.T, in string) {
		once := s.Keyword(in)
		if twice := s.Keyword(once); twice != once {
			t.Fatalf("Keyword not idempotent: %q -> %q -> %q", in, once, twice)
		}
		if len(once) > 50 {
			t.Fatalf("keyword longer than max: %q", once)
		}
	})
}
