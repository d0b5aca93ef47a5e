package crawler

import (
	"bufio"
	"fmt"
	"io"
	"net/url"
	"os"
	"strings"
)

// SeedQueue is the work queue of one worker. It is created from the seed
// list, drained front to back, and owned by a single Crawler.
type SeedQueue struct {
	seeds []string
}

// NewSeedQueue creates a queue holding seeds in order.
func NewSeedQueue(seeds []string) *SeedQueue {
	return &SeedQueue{seeds: append([]string(nil), seeds...)}
}

// Pop removes and returns the next seed.
func (q *SeedQueue) Pop() (string, bool) {
	if len(q.seeds) == 0 {
		return "", false
	}
	seed := q.seeds[0]
	q.seeds = q.seeds[1:]
	return seed, true
}

// Len returns the number of seeds left.
func (q *SeedQueue) Len() int {
	return len(q.seeds)
}

// LoadSeedFile reads seeds from path. See LoadSeeds.
func LoadSeedFile(path string) ([]string, error) {
	f, err := os.Open(path) //nolint:gosec // path comes from the operator
	if err != nil {
		return nil, fmt.Errorf("failed to open seed file: %w", err)
	}
	defer f.Close()

	seeds, err := LoadSeeds(f)
	if err != nil {
		return nil, fmt.Errorf("failed to read seed file %s: %w", path, err)
	}
	return seeds, nil
}

// LoadSeeds reads one hostname per line. Blank lines and lines starting
// with '#' are ignored. Every seed is normalized with NormalizeSeed.
func LoadSeeds(r io.Reader) ([]string, error) {
	var seeds []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		seeds = append(seeds, NormalizeSeed(line))
	}
	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return seeds, nil
}

// NormalizeSeed prefixes a bare hostname with "http://". Seeds that already
// carry a scheme are returned unchanged.
func NormalizeSeed(seed string) string {
	seed = strings.TrimSpace(seed)
	if strings.Contains(seed, "://") {
		return seed
	}
	return "http://" + seed
}

// SeedHost returns the hostname of a normalized seed, used to look up
// per-site overrides.
func SeedHost(seed string) string {
	u, err := url.Parse(seed)
	if err != nil {
		return seed
	}
	return u.Hostname()
}

// Shard splits seeds round-robin into at most n non-empty lists, one per
// independent worker.
func Shard(seeds []string, n int) [][]string {
	if n <= 1 || len(seeds) <= 1 {
		return [][]string{append([]string(nil), seeds...)}
	}
	if n > len(seeds) {
		n = len(seeds)
	}
	shards := make([][]string, n)
	for i, seed := range seeds {
		shards[i%n] = append(shards[i%n], seed)
	}
	return shards
}
