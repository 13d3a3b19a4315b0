package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"manyllmd/pkg/types"
)

// Sentinel errors for catalog operations. Use errors.Is to match.
var (
	// ErrNetwork indicates a transient transport failure; callers may retry.
	ErrNetwork = errors.New("catalog: network error")

	// ErrCatalog indicates a malformed catalog response; retrying won't help.
	ErrCatalog = errors.New("catalog: invalid catalog response")
)

// HTTPClient abstracts the transport for testability.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

// LocalIndex is the store-side view the catalog consults so callers never see
// two divergent truths about locality.
type LocalIndex interface {
	Get(id string) (types.Artifact, bool)
}

// catalogDocument is the remote index wire format.
type catalogDocument struct {
	Artifacts []catalogEntry `json:"artifacts"`
}

type catalogEntry struct {
	ID         string   `json:"id"`
	Name       string   `json:"name"`
	Author     string   `json:"author"`
	ParamCount int64    `json:"param_count"`
	Size       int64    `json:"size"`
	Formats    []string `json:"formats"`
	URL        string   `json:"url"`
	Checksum   string   `json:"checksum"`
	Tags       []string `json:"tags"`
}

// Filters narrows catalog search results.
type Filters struct {
	Format  string
	MinSize int64
}

// Client exposes discoverable artifacts from a remote catalog and keeps a
// cached snapshot for client-side search.
type Client struct {
	url   string
	http  HTTPClient
	local LocalIndex
	log   zerolog.Logger

	mu       sync.RWMutex
	snapshot []types.Artifact
}

// New creates a catalog client. client may be nil, in which case
// http.DefaultClient is used.
func New(url string, client HTTPClient, local LocalIndex, log zerolog.Logger) *Client {
	if client == nil {
		client = http.DefaultClient
	}
	return &Client{url: strings.TrimRight(url, "/"), http: client, local: local, log: log}
}

// FetchCatalog retrieves the remote index and refreshes the cached snapshot.
// Records already local keep the store's truth about path and state.
func (c *Client) FetchCatalog(ctx context.Context) ([]types.Artifact, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.url, nil)
	if err != nil {
		return nil, fmt.Errorf("creating request: %w", err)
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching catalog: %w", ErrNetwork)
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 500 {
		return nil, fmt.Errorf("fetching catalog: status %d: %w", resp.StatusCode, ErrNetwork)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetching catalog: status %d: %w", resp.StatusCode, ErrCatalog)
	}
	var doc catalogDocument
	if err := json.NewDecoder(resp.Body).Decode(&doc); err != nil {
		return nil, fmt.Errorf("parsing catalog: %w", ErrCatalog)
	}

	out := make([]types.Artifact, 0, len(doc.Artifacts))
	for _, e := range doc.Artifacts {
		if e.ID == "" {
			return nil, fmt.Errorf("catalog entry without id: %w", ErrCatalog)
		}
		a := types.Artifact{
			ID:         e.ID,
			Name:       e.Name,
			Author:     e.Author,
			ParamCount: e.ParamCount,
			Size:       e.Size,
			Formats:    e.Formats,
			RemoteURL:  e.URL,
			Checksum:   e.Checksum,
			Tags:       e.Tags,
			State:      types.StateRemote,
		}
		out = append(out, c.mergeLocal(a))
	}

	c.mu.Lock()
	c.snapshot = out
	c.mu.Unlock()
	c.log.Debug().Int("artifacts", len(out)).Msg("catalog refreshed")
	return out, nil
}

// mergeLocal overlays the store's truth for an id onto a remote record.
func (c *Client) mergeLocal(a types.Artifact) types.Artifact {
	if c.local == nil {
		return a
	}
	if loc, ok := c.local.Get(a.ID); ok {
		a.State = loc.State
		a.LocalPath = loc.LocalPath
		a.AddedAt = loc.AddedAt
		a.LastVerifiedAt = loc.LastVerifiedAt
		if loc.Size > 0 {
			a.Size = loc.Size
		}
	}
	return a
}

// Get returns the snapshot record for id, re-merged with the live local set.
func (c *Client) Get(id string) (types.Artifact, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, a := range c.snapshot {
		if a.ID == id {
			return c.mergeLocal(a), true
		}
	}
	return types.Artifact{}, false
}

// Search filters and sorts the cached snapshot, re-merged with the live local
// set. Ties on the sort key break deterministically on id.
func (c *Client) Search(query string, f Filters, sortBy types.SortOption) []types.Artifact {
	c.mu.RLock()
	snap := make([]types.Artifact, len(c.snapshot))
	copy(snap, c.snapshot)
	c.mu.RUnlock()

	query = strings.ToLower(strings.TrimSpace(query))
	var out []types.Artifact
	for _, a := range snap {
		a = c.mergeLocal(a)
		if query != "" && !matches(a, query) {
			continue
		}
		if f.Format != "" && !hasFormat(a, f.Format) {
			continue
		}
		if f.MinSize > 0 && a.Size < f.MinSize {
			continue
		}
		out = append(out, a)
	}
	sortArtifacts(out, sortBy)
	return out
}

func matches(a types.Artifact, q string) bool {
	if strings.Contains(strings.ToLower(a.Name), q) ||
		strings.Contains(strings.ToLower(a.Author), q) ||
		strings.Contains(strings.ToLower(a.ID), q) {
		return true
	}
	for _, tag := range a.Tags {
		if strings.Contains(strings.ToLower(tag), q) {
			return true
		}
	}
	return false
}

func hasFormat(a types.Artifact, format string) bool {
	for _, f := range a.Formats {
		if strings.EqualFold(f, format) {
			return true
		}
	}
	return false
}

func sortArtifacts(in []types.Artifact, by types.SortOption) {
	less := func(i, j int) bool { return in[i].ID < in[j].ID }
	switch by {
	case types.SortByName:
		less = func(i, j int) bool {
			if in[i].Name != in[j].Name {
				return in[i].Name < in[j].Name
			}
			return in[i].ID < in[j].ID
		}
	case types.SortByAuthor:
		less = func(i, j int) bool {
			if in[i].Author != in[j].Author {
				return in[i].Author < in[j].Author
			}
			return in[i].ID < in[j].ID
		}
	case types.SortBySize:
		less = func(i, j int) bool {
			if in[i].Size != in[j].Size {
				return in[i].Size < in[j].Size
			}
			return in[i].ID < in[j].ID
		}
	case types.SortByParams:
		less = func(i, j int) bool {
			if in[i].ParamCount != in[j].ParamCount {
				return in[i].ParamCount < in[j].ParamCount
			}
			return in[i].ID < in[j].ID
		}
	}
	sort.SliceStable(in, less)
}
