package store

import (
	"strings"
	"time"

	"manyllmd/pkg/types"
)

// Pure, read-only projections over a List() snapshot.

// ByFormat keeps artifacts declaring the given runtime format.
func ByFormat(in []types.Artifact, format string) []types.Artifact {
	format = strings.ToLower(format)
	var out []types.Artifact
	for _, a := range in {
		for _, f := range a.Formats {
			if strings.ToLower(f) == format {
				out = append(out, a)
				break
			}
		}
	}
	return out
}

// LargerThan keeps artifacts strictly larger than n bytes.
func LargerThan(in []types.Artifact, n int64) []types.Artifact {
	var out []types.Artifact
	for _, a := range in {
		if a.Size > n {
			out = append(out, a)
		}
	}
	return out
}

// AddedAfter keeps artifacts whose local copy was added after t.
func AddedAfter(in []types.Artifact, t time.Time) []types.Artifact {
	var out []types.Artifact
	for _, a := range in {
		if !a.AddedAt.IsZero() && a.AddedAt.After(t) {
			out = append(out, a)
		}
	}
	return out
}

// Search matches q case-insensitively against name, author and tags.
// An empty query matches everything.
func Search(in []types.Artifact, q string) []types.Artifact {
	q = strings.ToLower(strings.TrimSpace(q))
	if q == "" {
		return in
	}
	var out []types.Artifact
	for _, a := range in {
		if strings.Contains(strings.ToLower(a.Name), q) ||
			strings.Contains(strings.ToLower(a.Author), q) {
			out = append(out, a)
			continue
		}
		for _, tag := range a.Tags {
			if strings.Contains(strings.ToLower(tag), q) {
				out = append(out, a)
				break
			}
		}
	}
	return out
}
