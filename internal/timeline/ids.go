package timeline

import "strings"

// CompareIDs orders provider ids, which are unsigned decimal strings that
// grow with recency. It returns -1, 0 or 1. Leading zeros are ignored.
func CompareIDs(a, b string) int {
	a = strings.TrimLeft(a, "0")
	b = strings.TrimLeft(b, "0")
	switch {
	case len(a) < len(b):
		return -1
	case len(a) > len(b):
		return 1
	}
	return strings.Compare(a, b)
}

// maxID returns the newer of a and b; an empty id loses to any other.
func maxID(a, b string) string {
	if a == "" {
		return b
	}
	if b == "" {
		return a
	}
	if CompareIDs(b, a) > 0 {
		return b
	}
	return a
}
