package queue

import (
	"context"
	"fmt"
	"math"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"huddle/cmd/internal/session"
)

const earthRadiusMeters = 6371000.0

// Catalog is the on-disk candidate list used by StaticSource.
type Catalog struct {
	Candidates []session.Candidate `yaml:"candidates"`
}

// LoadCatalog loads a catalog from a YAML (or JSON) file.
func LoadCatalog(path string) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read catalog file: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a catalog.
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	if err := yaml.Unmarshal(data, &cat); err != nil {
		return nil, fmt.Errorf("failed to parse catalog: %w", err)
	}
	if err := cat.Validate(); err != nil {
		return nil, err
	}
	return &cat, nil
}

// Validate checks ids and coordinates.
func (c *Catalog) Validate() error {
	seen := make(map[string]struct{}, len(c.Candidates))
	for i, item := range c.Candidates {
		if strings.TrimSpace(item.ID) == "" {
			return fmt.Errorf("candidate %d: id is required", i)
		}
		if _, dup := seen[item.ID]; dup {
			return fmt.Errorf("candidate %q: duplicate id", item.ID)
		}
		seen[item.ID] = struct{}{}
		if !item.Location.Valid() {
			return fmt.Errorf("candidate %q: invalid location", item.ID)
		}
	}
	return nil
}

// StaticSource serves candidates from an in-memory catalog, nearest first.
type StaticSource struct {
	items []session.Candidate
}

// NewStaticSource constructs a source over items.
func NewStaticSource(items []session.Candidate) *StaticSource {
	return &StaticSource{items: append([]session.Candidate(nil), items...)}
}

// Len returns the catalog size.
func (s *StaticSource) Len() int { return len(s.items) }

// Fetch returns catalog items within req.Radius of req.Location.
func (s *StaticSource) Fetch(ctx context.Context, req FetchRequest) ([]session.Candidate, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	exclude := make(map[string]struct{}, len(req.Exclude))
	for _, id := range req.Exclude {
		exclude[id] = struct{}{}
	}

	type hit struct {
		c session.Candidate
		d float64
	}
	var hits []hit
	for _, c := range s.items {
		if _, skip := exclude[c.ID]; skip {
			continue
		}
		if !matchesFilters(c, req.Filters) {
			continue
		}
		d := Distance(req.Location, c.Location)
		if d > req.Radius {
			continue
		}
		hits = append(hits, hit{c: c, d: d})
	}
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].d < hits[j].d })

	out := make([]session.Candidate, 0, len(hits))
	for _, h := range hits {
		out = append(out, h.c)
	}
	out = req.Preferences.Apply(out)
	if req.Limit > 0 && len(out) > req.Limit {
		out = out[:req.Limit]
	}
	return out, nil
}

func matchesFilters(c session.Candidate, filters []string) bool {
	if len(filters) == 0 {
		return true
	}
	for _, f := range filters {
		for _, cat := range c.Categories {
			if strings.EqualFold(f, cat) {
				return true
			}
		}
	}
	return false
}

// Distance returns the great-circle distance between a and b in meters.
func Distance(a, b session.Location) float64 {
	rad := func(d float64) float64 { return d * math.Pi / 180 }

	dLat := rad(b.Lat - a.Lat)
	dLng := rad(b.Lng - a.Lng)
	h := math.Sin(dLat/2)*math.Sin(dLat/2) +
		math.Cos(rad(a.Lat))*math.Cos(rad(b.Lat))*math.Sin(dLng/2)*math.Sin(dLng/2)
	return 2 * earthRadiusMeters * math.Asin(math.Min(1, math.Sqrt(h)))
}
