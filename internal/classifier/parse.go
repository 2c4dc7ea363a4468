package classifier

import (
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"
)

type batchEntry struct {
	Index        int     `json:"index"`
	Summary      *string `json:"summary"`
	CategorySlug *string `json:"category_slug"`
}

type batchResponse struct {
	Results []batchEntry `json:"results"`
}

var (
	errNoJSONObject = errors.New("no JSON object in response")
	errNoResults    = errors.New("response has no results array")
	fenceRe         = regexp.MustCompile("(?s)```[a-zA-Z]*\\s*(.*?)\\s*```")
)

// stripFences returns the body of the first fenced block, or s unchanged.
func stripFences(s string) string {
	if m := fenceRe.FindStringSubmatch(s); m != nil {
		return m[1]
	}
	return s
}

// parseBatch decodes the results object, sorts it by declared index and maps
// it back onto the input. A reply with one entry per item, or with indices
// outside 1..n (a 0-based reply, say), is assigned by position; otherwise
// each entry lands at index-1, the first one wins, and skipped slots stay nil.
func parseBatch(raw string, n int) ([]*batchEntry, error) {
	body := stripFences(strings.TrimSpace(raw))
	start := strings.Index(body, "{")
	end := strings.LastIndex(body, "}")
	if start < 0 || end <= start {
		return nil, &FormatError{Raw: raw, Err: errNoJSONObject}
	}

	var resp batchResponse
	if err := json.Unmarshal([]byte(body[start:end+1]), &resp); err != nil {
		return nil, &FormatError{Raw: raw, Err: err}
	}
	if resp.Results == nil {
		return nil, &FormatError{Raw: raw, Err: errNoResults}
	}

	sort.SliceStable(resp.Results, func(i, j int) bool {
		return resp.Results[i].Index < resp.Results[j].Index
	})

	out := make([]*batchEntry, n)
	if positional(resp.Results, n) {
		for i := range resp.Results {
			if i >= n {
				break
			}
			out[i] = &resp.Results[i]
		}
		return out, nil
	}

	for i := range resp.Results {
		e := &resp.Results[i]
		pos := e.Index - 1
		if out[pos] != nil {
			continue
		}
		out[pos] = e
	}
	return out, nil
}

func positional(results []batchEntry, n int) bool {
	if len(results) == n {
		return true
	}
	for _, e := range results {
		if e.Index < 1 || e.Index > n {
			return true
		}
	}
	return false
}

var (
	numberedLineRe = regexp.MustCompile(`^\s*(?:\*\*)?(\d+)(?:\*\*)?\s*[.):\-]\s*(.*)$`)
	categoryLineRe = regexp.MustCompile(`(?i)^\s*(?:[-*]\s*)?(?:\*\*)?category(?:_slug)?(?:\*\*)?\s*:\s*(.*)$`)
)

// parseLines is the fallback for responses that are not JSON. It reads
// "N. text" lines as summaries (continuation lines are appended), "N: slug"
// lines as slugs when slugsOnly is set, and "Category: slug" lines as the
// slug of the current item.
func parseLines(raw string, n int, slugsOnly bool) []*batchEntry {
	out := make([]*batchEntry, n)
	entry := func(pos int) *batchEntry {
		if out[pos] == nil {
			out[pos] = &batchEntry{Index: pos + 1}
		}
		return out[pos]
	}

	current := -1
	for _, line := range strings.Split(stripFences(raw), "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}

		if m := categoryLineRe.FindStringSubmatch(line); m != nil {
			pos := current
			if pos < 0 {
				pos = nextEmptySlug(out)
			}
			if pos >= 0 && pos < n {
				slug := m[1]
				entry(pos).CategorySlug = &slug
			}
			continue
		}

		if m := numberedLineRe.FindStringSubmatch(line); m != nil {
			idx, err := strconv.Atoi(m[1])
			if err != nil || idx < 1 || idx > n {
				current = -1
				continue
			}
			current = idx - 1
			text := strings.TrimSpace(m[2])
			if slugsOnly {
				entry(current).CategorySlug = &text
			} else if text != "" {
				entry(current).Summary = &text
			}
			continue
		}

		if current >= 0 && !slugsOnly {
			e := entry(current)
			joined := line
			if e.Summary != nil && *e.Summary != "" {
				joined = *e.Summary + " " + line
			}
			e.Summary = &joined
		}
	}
	return out
}

func nextEmptySlug(entries []*batchEntry) int {
	for i, e := range entries {
		if e == nil || e.CategorySlug == nil {
			return i
		}
	}
	return -1
}

// coerceSlug maps a model-provided slug onto the allowed set; anything else
// means no category.
func coerceSlug(raw *string, allowed map[string]struct{}) *string {
	if raw == nil {
		return nil
	}
	s := strings.ToLower(strings.TrimSpace(*raw))
	s = strings.Trim(s, "\"'`*.,;[] ")
	if s == "" || s == "none" || s == "null" {
		return nil
	}
	if _, ok := allowed[s]; !ok {
		return nil
	}
	return &s
}
