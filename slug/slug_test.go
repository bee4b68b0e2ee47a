package slug

import (
	"fmt"
	"strings"
	"testing"
)

func TestFor_Deterministic(t *testing.T) {
	url := "https://shop.example.com/products/blue-widget"
	a := For(url)
	b := For(url)
	if a != b {
		t.Errorf("same URL produced different slugs: %q vs %q", a, b)
	}
}

func TestFor_DistinctURLs(t *testing.T) {
	seen := make(map[string]string)
	for i := 0; i < 2000; i++ {
		u := fmt.Sprintf("https://shop.example.com/products/item-%d", i)
		s := For(u)
		if prev, ok := seen[s]; ok {
			t.Fatalf("slug collision: %q and %q both map to %q", prev, u, s)
		}
		seen[s] = u
	}
}

func TestFor_SamePathDifferentHost(t *testing.T) {
	a := For("https://a.example.com/products/widget")
	b := For("https://b.example.com/products/widget")
	if a == b {
		t.Errorf("different URLs with same path collided: %q", a)
	}
}

func TestFor_ReadableSegment(t *testing.T) {
	s := For("https://shop.example.com/products/blue-widget")
	if !strings.HasPrefix(s, "blue-widget-") {
		t.Errorf("slug should start with last path segment, got %q", s)
	}
}

func TestFor_EmptyPath(t *testing.T) {
	tests := []string{
		"https://shop.example.com",
		"https://shop.example.com/",
	}
	for _, u := range tests {
		s := For(u)
		if !strings.HasPrefix(s, "product-") {
			t.Errorf("For(%q) = %q, want default %q segment", u, s, "product")
		}
	}
}

func TestFor_FilesystemSafe(t *testing.T) {
	s := For("https://shop.example.com/products/widget?variant=42&utm=a%20b")
	for _, c := range s {
		ok := c == '-' || c == '_' || c == '.' ||
			(c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') || (c >= '0' && c <= '9')
		if !ok {
			t.Fatalf("slug %q contains unsafe character %q", s, c)
		}
	}
}
