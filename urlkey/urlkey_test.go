package urlkey

import (
	"strings"
	"testing"
)

func TestNormalize(t *testing.T) {
	tests := []struct {
		name    string
		input   string
		want    string
		wantErr bool
	}{
		{
			name:  "bare domain gets https and root path",
			input: "example.com",
			want:  "https://example.com/",
		},
		{
			name:  "existing scheme preserved",
			input: "http://example.com/page",
			want:  "http://example.com/page",
		},
		{
			name:  "surrounding whitespace trimmed",
			input: "  example.com  ",
			want:  "https://example.com/",
		},
		{
			name:  "host lower-cased",
			input: "HTTPS://EXAMPLE.COM/Path",
			want:  "https://example.com/Path",
		},
		{
			name:  "fragment stripped",
			input: "https://example.com/page#section",
			want:  "https://example.com/page",
		},
		{
			name:  "query preserved",
			input: "example.com/search?q=go",
			want:  "https://example.com/search?q=go",
		},
		{
			name:    "rejects non-web scheme",
			input:   "ftp://example.com/file",
			wantErr: true,
		},
		{
			name:    "rejects garbage",
			input:   "not a url!!",
			wantErr: true,
		},
		{
			name:    "rejects empty",
			input:   "",
			wantErr: true,
		},
		{
			name:    "rejects whitespace only",
			input:   "   ",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := Normalize(tt.input)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("Normalize(%q) = %q, want error", tt.input, got)
				}
				return
			}
			if err != nil {
				t.Fatalf("Normalize(%q) failed: %v", tt.input, err)
			}
			if got != tt.want {
				t.Errorf("Normalize(%q) = %q, want %q", tt.input, got, tt.want)
			}
		})
	}
}

func TestFingerprintInvariantUnderCaseAndWhitespace(t *testing.T) {
	base := Fingerprint("https://example.com/")

	variants := []string{
		"HTTPS://EXAMPLE.COM/",
		"  https://example.com/  ",
		"\thttps://Example.Com/\n",
	}

	for _, v := range variants {
		if got := Fingerprint(v); got != base {
			t.Errorf("Fingerprint(%q) = %s, want %s", v, got, base)
		}
	}
}

func TestFingerprintDistinctURLs(t *testing.T) {
	a := Fingerprint("https://example.com/")
	b := Fingerprint("https://example.org/")
	if a == b {
		t.Errorf("distinct URLs produced the same fingerprint %s", a)
	}
}

func TestFingerprintIsHex32(t *testing.T) {
	fp := Fingerprint("https://example.com/")
	if len(fp) != 32 {
		t.Errorf("expected 32-char digest, got %d chars", len(fp))
	}
	for _, r := range fp {
		if !strings.ContainsRune("0123456789abcdef", r) {
			t.Errorf("fingerprint contains non-hex rune %q", r)
		}
	}
}

func TestScreenshotURL(t *testing.T) {
	got := ScreenshotURL("", "https://example.com/")

	if !strings.HasPrefix(got, DefaultScreenshotBase+"?url=") {
		t.Errorf("unexpected prefix: %s", got)
	}
	if !strings.Contains(got, "https%3A%2F%2Fexample.com%2F") {
		t.Errorf("screenshot URL does not percent-encode the target: %s", got)
	}
	if !strings.Contains(got, "screenshot=true") {
		t.Errorf("screenshot URL missing screenshot parameter: %s", got)
	}
}

func TestScreenshotURLCustomBase(t *testing.T) {
	got := ScreenshotURL("https://shots.internal", "https://example.com/")
	if !strings.HasPrefix(got, "https://shots.internal?url=") {
		t.Errorf("custom base not used: %s", got)
	}
}
