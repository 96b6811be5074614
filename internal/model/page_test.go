package model

import "testing"

// TestPageComputeHash tests the ComputeHash method.
func TestPageComputeHash(t *testing.T) {
	t.Parallel()

	t.Run("computes SHA256 hash of raw content", func(t *testing.T) {
		t.Parallel()

		page := &Page{
			Raw: []byte("Hello, World!"),
		}
		page.ComputeHash()

		// Expected SHA256 of "Hello, World!"
		expected := "dffd6021bb2bd5b0af676290809ec3a53191dd81c7f70a4b28688a362182986f"
		if page.Hash != expected {
			t.Errorf("got %q, expected %q", page.Hash, expected)
		}
	})

	t.Run("empty content produces empty hash", func(t *testing.T) {
		t.Parallel()

		page := &Page{
			Raw: []byte{},
		}
		page.ComputeHash()

		if page.Hash != "" {
			t.Errorf("expected empty hash, got %q", page.Hash)
		}
	})

	t.Run("nil content produces empty hash", func(t *testing.T) {
		t.Parallel()

		page := &Page{
			Raw: nil,
		}
		page.ComputeHash()

		if page.Hash != "" {
			t.Errorf("expected empty hash, got %q", page.Hash)
		}
	})
}

// TestPageIsHTML tests the IsHTML method.
func TestPageIsHTML(t *testing.T) {
	t.Parallel()

	testCases := []struct {
		contentType string
		expected    bool
	}{
		{"text/html", true},
		{"text/html; charset=utf-8", true},
		{"application/xhtml+xml", true},
		{"application/json", false},
		{"text/plain", false},
		{"image/png", false},
		{"", true},
	}

	for _, tc := range testCases {
		t.Run(tc.contentType, func(t *testing.T) {
			t.Parallel()

			page := &Page{ContentType: tc.contentType}
			if page.IsHTML() != tc.expected {
				t.Errorf("IsHTML() for %q = %v, expected %v", tc.contentType, page.IsHTML(), tc.expected)
			}
		})
	}
}

// TestPageTruncateRaw tests the TruncateRaw method.
func TestPageTruncateRaw(t *testing.T) {
	t.Parallel()

	t.Run("does not truncate small content", func(t *testing.T) {
		t.Parallel()

		content := []byte("Small content")
		page := &Page{Raw: content}
		page.TruncateRaw()

		if len(page.Raw) != len(content) {
			t.Errorf("raw content was modified")
		}
	})

	t.Run("truncates large content to MaxPageSize", func(t *testing.T) {
		t.Parallel()

		// Create content larger than MaxPageSize
		content := make([]byte, MaxPageSize+1000)
		page := &Page{Raw: content}
		page.TruncateRaw()

		if len(page.Raw) != MaxPageSize {
			t.Errorf("got length %d, expected %d", len(page.Raw), MaxPageSize)
		}
	})
}

// TestPageLocation tests the Location method.
func TestPageLocation(t *testing.T) {
	t.Parallel()

	page := &Page{URL: "https://example.ac.jp/a"}
	if got := page.Location(); got != "https://example.ac.jp/a" {
		t.Errorf("got %q", got)
	}

	page.FinalURL = "https://example.ac.jp/b/"
	if got := page.Location(); got != "https://example.ac.jp/b/" {
		t.Errorf("got %q", got)
	}
}
