// Package corpus reads the logs written by instrumented programs and turns
// them into a deduplicated list of observed patterns.
package corpus

import (
	"bufio"
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"
)

const maxLineSize = 16 * 1024 * 1024

type Record struct {
	File    string `json:"file"`
	Pattern string `json:"pattern"`
	Flags   string `json:"flags"`
}

type key struct {
	file    string
	pattern string
}

// Collector accumulates records across logs. The first record seen for a
// (file, pattern) pair wins.
type Collector struct {
	records   map[key]Record
	malformed int
	lines     int
}

func NewCollector() *Collector {
	return &Collector{records: make(map[key]Record)}
}

// Add reads NDJSON records from r. Blank lines are ignored; lines that are
// not a JSON object with a pattern key are counted as malformed and skipped.
func (c *Collector) Add(r io.Reader) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		c.lines++

		var raw struct {
			File    string  `json:"file"`
			Pattern *string `json:"pattern"`
			Flags   string  `json:"flags"`
		}
		if err := json.Unmarshal([]byte(line), &raw); err != nil || !strings.HasPrefix(line, "{") {
			c.malformed++
			continue
		}
		// An empty pattern is a real call site; only a missing one is not.
		if raw.Pattern == nil {
			c.malformed++
			continue
		}
		rec := Record{File: raw.File, Pattern: *raw.Pattern, Flags: raw.Flags}
		k := key{file: rec.File, pattern: rec.Pattern}
		if _, ok := c.records[k]; !ok {
			c.records[k] = rec
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("failed to read log: %w", err)
	}
	return nil
}

func (c *Collector) AddFile(path string) error {
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open log: %w", err)
	}
	defer f.Close()
	if err := c.Add(f); err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	return nil
}

func (c *Collector) Malformed() int {
	return c.malformed
}

func (c *Collector) Lines() int {
	return c.lines
}

// Corpus returns the unique records sorted by file, then pattern.
func (c *Collector) Corpus() []Record {
	out := make([]Record, 0, len(c.records))
	for _, rec := range c.records {
		out = append(out, rec)
	}
	slices.SortFunc(out, func(a, b Record) int {
		return cmp.Or(cmp.Compare(a.File, b.File), cmp.Compare(a.Pattern, b.Pattern))
	})
	return out
}

// Patterns returns the distinct patterns regardless of file, sorted.
func (c *Collector) Patterns() []string {
	set := make(map[string]struct{}, len(c.records))
	for k := range c.records {
		set[k.pattern] = struct{}{}
	}
	out := make([]string, 0, len(set))
	for p := range set {
		out = append(out, p)
	}
	slices.Sort(out)
	return out
}

// ReadLog is a one-shot Collector over r. It returns the corpus and the
// number of malformed lines skipped.
func ReadLog(r io.Reader) ([]Record, int, error) {
	c := NewCollector()
	if err := c.Add(r); err != nil {
		return nil, c.Malformed(), err
	}
	return c.Corpus(), c.Malformed(), nil
}
