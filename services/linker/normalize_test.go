package linker

import "testing"

func TestNormalizeURL_StripsVolatileParams(t *testing.T) {
	got := NormalizeURL("https://cdn.example.com/v/movie.mp4?token=abc123&quality=hd&Expires=1700000000")
	want := "https://cdn.example.com/v/movie.mp4?quality=hd"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeURL_StripsSignedURLParams(t *testing.T) {
	got := NormalizeURL("https://bucket.s3.example.com/movie.mp4?X-Amz-Signature=deadbeef&X-Amz-Expires=300&X-Amz-Credential=AKIA")
	want := "https://bucket.s3.example.com/movie.mp4"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeURL_TrailingSlash(t *testing.T) {
	got := NormalizeURL("https://cdn.example.com/v/movie/")
	want := "https://cdn.example.com/v/movie"
	if got != want {
		t.Errorf("expected %q, got %q", want, got)
	}
}

func TestNormalizeURL_StableQueryOrder(t *testing.T) {
	a := NormalizeURL("https://cdn.example.com/m.mp4?b=2&a=1")
	b := NormalizeURL("https://cdn.example.com/m.mp4?a=1&b=2")
	if a != b {
		t.Errorf("expected stable ordering, got %q and %q", a, b)
	}
}

func TestNormalizeURL_MalformedFailsOpen(t *testing.T) {
	inputs := []string{
		"",
		"not a url at all",
		"://missing-scheme",
		"relative/path/only.mp4",
	}
	for _, input := range inputs {
		if got := NormalizeURL(input); got != input {
			t.Errorf("NormalizeURL(%q) = %q, expected input unchanged", input, got)
		}
	}
}

func TestNormalizeURL_Idempotent(t *testing.T) {
	inputs := []string{
		"https://cdn.example.com/v/movie.mp4?token=abc&quality=hd",
		"https://host.example/a/b/c/",
		"https://host.example/file%20name.mp4",
		"http://host.example/x?b=2&a=1&sig=zzz",
		"garbage input",
	}
	for _, input := range inputs {
		once := NormalizeURL(input)
		twice := NormalizeURL(once)
		if once != twice {
			t.Errorf("NormalizeURL not idempotent for %q: %q != %q", input, once, twice)
		}
	}
}
