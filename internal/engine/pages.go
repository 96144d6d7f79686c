package engine

import (
	"fmt"
	"strconv"
	"strings"
)

// PageRange is an inclusive, 1-based page span.
type PageRange struct {
	Start int `json:"start"`
	End   int `json:"end"`
}

func (r PageRange) String() string {
	if r.Start == r.End {
		return strconv.Itoa(r.Start)
	}
	return fmt.Sprintf("%d-%d", r.Start, r.End)
}

// ParsePageRanges parses specs like "1-3,5,7-10". Whitespace is ignored.
// Each range becomes one output document.
func ParsePageRanges(raw string) ([]PageRange, error) {
	raw = strings.ReplaceAll(raw, " ", "")
	if raw == "" {
		return nil, fmt.Errorf("page ranges must not be empty")
	}

	var out []PageRange
	for _, part := range strings.Split(raw, ",") {
		if part == "" {
			return nil, fmt.Errorf("empty page range in %q", raw)
		}
		startStr, endStr, isRange := strings.Cut(part, "-")
		start, err := parsePage(startStr)
		if err != nil {
			return nil, err
		}
		end := start
		if isRange {
			if end, err = parsePage(endStr); err != nil {
				return nil, err
			}
		}
		if end < start {
			return nil, fmt.Errorf("page range %q ends before it starts", part)
		}
		out = append(out, PageRange{Start: start, End: end})
	}
	return out, nil
}

// FormatPageRanges renders ranges back to the canonical "1-3,5" form.
func FormatPageRanges(ranges []PageRange) string {
	parts := make([]string, len(ranges))
	for i, r := range ranges {
		parts[i] = r.String()
	}
	return strings.Join(parts, ",")
}

func parsePage(s string) (int, error) {
	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, fmt.Errorf("invalid page number %q", s)
	}
	if n < 1 {
		return 0, fmt.Errorf("page numbers start at 1, got %d", n)
	}
	return n, nil
}
