package crawler

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"github.com/nao1215/proxycrawl/internal/browser"
)

func TestLoadSeeds(t *testing.T) {
	t.Parallel()

	input := `example.com

# comment
  spaced.example
https://secure.example/path
`
	seeds, err := LoadSeeds(strings.NewReader(input))
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	want := []string{"http://example.com", "http://spaced.example", "https://secure.example/path"}
	if !reflect.DeepEqual(seeds, want) {
		t.Errorf("got %v, want %v", seeds, want)
	}
}

func TestLoadSeedFile(t *testing.T) {
	t.Parallel()

	t.Run("reads the file", func(t *testing.T) {
		t.Parallel()

		path := filepath.Join(t.TempDir(), "sites.txt")
		if err := os.WriteFile(path, []byte("a.example\nb.example\n"), 0o600); err != nil {
			t.Fatalf("failed to write seed file: %v", err)
		}
		seeds, err := LoadSeedFile(path)
		if err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if len(seeds) != 2 {
			t.Errorf("got %d seeds, want 2", len(seeds))
		}
	})

	t.Run("missing file", func(t *testing.T) {
		t.Parallel()

		_, err := LoadSeedFile(filepath.Join(t.TempDir(), "missing.txt"))
		if !errors.Is(err, os.ErrNotExist) {
			t.Errorf("expected os.ErrNotExist, got %v", err)
		}
	})
}

func TestSeedHost(t *testing.T) {
	t.Parallel()

	tests := []struct {
		seed string
		want string
	}{
		{seed: "http://example.com", want: "example.com"},
		{seed: "https://example.com:8443/path", want: "example.com"},
		{seed: "http://EXAMPLE.com", want: "EXAMPLE.com"},
	}

	for _, tt := range tests {
		t.Run(tt.seed, func(t *testing.T) {
			t.Parallel()

			if got := SeedHost(tt.seed); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestShard(t *testing.T) {
	t.Parallel()

	seeds := []string{"a", "b", "c", "d", "e"}

	tests := []struct {
		name string
		n    int
		want [][]string
	}{
		{name: "single shard", n: 1, want: [][]string{{"a", "b", "c", "d", "e"}}},
		{name: "zero means one", n: 0, want: [][]string{{"a", "b", "c", "d", "e"}}},
		{name: "round robin", n: 2, want: [][]string{{"a", "c", "e"}, {"b", "d"}}},
		{name: "more shards than seeds", n: 9, want: [][]string{{"a"}, {"b"}, {"c"}, {"d"}, {"e"}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := Shard(seeds, tt.n); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSeedQueue(t *testing.T) {
	t.Parallel()

	seeds := []string{"a", "b"}
	q := NewSeedQueue(seeds)
	seeds[0] = "changed"

	first, ok := q.Pop()
	if !ok || first != "a" {
		t.Errorf("got %q %v, want a true", first, ok)
	}
	if q.Len() != 1 {
		t.Errorf("got length %d, want 1", q.Len())
	}
	if second, _ := q.Pop(); second != "b" {
		t.Errorf("got %q, want b", second)
	}
	if _, ok := q.Pop(); ok {
		t.Error("expected an empty queue")
	}
}

func TestPacer(t *testing.T) {
	t.Parallel()

	t.Run("jitter is never negative", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(time.Second, 500*time.Millisecond, 0)
		p.normal = func() float64 { return -10 }
		if got := p.Jitter(); got != 0 {
			t.Errorf("got %v, want 0", got)
		}
	})

	t.Run("jitter follows the distribution", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(4*time.Second, 500*time.Millisecond, 0)
		p.normal = func() float64 { return 1 }
		if got := p.Jitter(); got != 4500*time.Millisecond {
			t.Errorf("got %v, want 4.5s", got)
		}
	})

	t.Run("zero mean does not pause", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		if err := NewPacer(0, time.Second, 0).Pause(context.Background()); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
		if time.Since(start) > 100*time.Millisecond {
			t.Error("pause took too long")
		}
	})

	t.Run("pause honors cancellation", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		if err := NewPacer(time.Hour, 0, 0).Pause(ctx); !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})

	t.Run("limiter spaces navigations", func(t *testing.T) {
		t.Parallel()

		p := NewPacer(0, 0, 20)
		start := time.Now()
		for range 3 {
			if err := p.Wait(context.Background()); err != nil {
				t.Fatalf("unexpected error: %v", err)
			}
		}
		// A burst of one at 20/s leaves 50ms between waits.
		if elapsed := time.Since(start); elapsed < 80*time.Millisecond {
			t.Errorf("waits finished after %v, expected rate limiting", elapsed)
		}
	})

	t.Run("nil pacer is a no-op", func(t *testing.T) {
		t.Parallel()

		var p *Pacer
		if err := p.Wait(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
		if err := p.Pause(context.Background()); err != nil {
			t.Errorf("unexpected error: %v", err)
		}
	})
}

func TestDirectURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name      string
		url       string
		proxyBase string
		want      string
	}{
		{name: "strips the prefix", url: "http://proxy.local/http://a.example/x", proxyBase: "http://proxy.local", want: "http://a.example/x"},
		{name: "trailing slash on base", url: "http://proxy.local/http://a.example/", proxyBase: "http://proxy.local/", want: "http://a.example/"},
		{name: "several trailing slashes on base", url: "http://proxy.local/http://a.example/", proxyBase: "http://proxy.local//", want: "http://a.example/"},
		{name: "no proxy base", url: "http://a.example/x", proxyBase: "", want: "http://a.example/x"},
		{name: "unrelated URL", url: "http://other.example/", proxyBase: "http://proxy.local", want: "http://other.example/"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := DirectURL(tt.url, tt.proxyBase); got != tt.want {
				t.Errorf("got %q, want %q", got, tt.want)
			}
		})
	}
}

func TestLinkFilter(t *testing.T) {
	t.Parallel()

	links := []browser.LinkCandidate{
		{Href: "http://proxy.local/http://a.example/admin/users"},
		{Href: "http://proxy.local/http://a.example/docs/manual.pdf"},
		{Href: "http://proxy.local/http://a.example/logout"},
		{Href: "http://proxy.local/http://a.example/news/today"},
	}

	hrefs := func(ls []browser.LinkCandidate) []string {
		out := make([]string, 0, len(ls))
		for _, l := range ls {
			out = append(out, strings.TrimPrefix(l.Href, "http://proxy.local/http://a.example"))
		}
		return out
	}

	tests := []struct {
		name   string
		filter LinkFilter
		want   []string
	}{
		{
			name:   "no patterns keeps everything",
			filter: LinkFilter{proxyBase: proxyBase},
			want:   []string{"/admin/users", "/docs/manual.pdf", "/logout", "/news/today"},
		},
		{
			name:   "ignore directory and extension",
			filter: LinkFilter{Ignore: []string{"/admin/*", "*.pdf"}, proxyBase: proxyBase},
			want:   []string{"/logout", "/news/today"},
		},
		{
			name:   "ignore by last segment",
			filter: LinkFilter{Ignore: []string{"logout*"}, proxyBase: proxyBase},
			want:   []string{"/admin/users", "/docs/manual.pdf", "/news/today"},
		},
		{
			name:   "follow restricts",
			filter: LinkFilter{Follow: []string{"/news/*"}, proxyBase: proxyBase},
			want:   []string{"/news/today"},
		},
		{
			name:   "ignore wins over follow",
			filter: LinkFilter{Ignore: []string{"/news/today"}, Follow: []string{"/news/*"}, proxyBase: proxyBase},
			want:   []string{},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			if got := hrefs(tt.filter.Apply(links)); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}
