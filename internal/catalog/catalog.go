// Package catalog holds the venue catalog and its spatial index.
package catalog

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"os"
	"sort"
	"strings"
	"sync"

	"github.com/goccy/go-json"
	"github.com/tidwall/rtree"

	"github.com/couchcryptid/church-discovery-engine/internal/domain"
)

const milesPerDegreeLat = 69.0

// Catalog is an in-memory venue catalog indexed by id and by location.
// It is safe for concurrent use.
type Catalog struct {
	mu     sync.RWMutex
	venues map[string]domain.Venue
	order  map[string]int
	tree   *rtree.RTree
}

// New builds a catalog from venues. Later duplicates of an id replace earlier
// ones but keep the first position.
func New(venues []domain.Venue) *Catalog {
	c := &Catalog{
		venues: make(map[string]domain.Venue, len(venues)),
		order:  make(map[string]int, len(venues)),
		tree:   &rtree.RTree{},
	}
	for _, v := range venues {
		c.put(v)
	}
	return c
}

// Load reads a JSON array of venues from path. Venues missing coordinates or
// an address are completed through geocoder when one is configured.
func Load(ctx context.Context, path string, geocoder domain.Geocoder, logger *slog.Logger) (*Catalog, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog %s: %w", path, err)
	}

	var venues []domain.Venue
	if err := json.Unmarshal(data, &venues); err != nil {
		return nil, fmt.Errorf("decode catalog %s: %w", path, err)
	}

	kept := venues[:0]
	for _, v := range venues {
		if strings.TrimSpace(v.ID) == "" {
			logger.Warn("skipping venue without id", "name", v.Name)
			continue
		}
		v.DistanceFromUser = nil
		kept = append(kept, domain.GeocodeVenue(ctx, v, geocoder, logger))
	}

	logger.Info("venue catalog loaded", "path", path, "venues", len(kept))
	return New(kept), nil
}

// Len reports the number of venues.
func (c *Catalog) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.venues)
}

// Get returns the venue with the given id.
func (c *Catalog) Get(id string) (domain.Venue, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	v, ok := c.venues[id]
	return v, ok
}

// All returns every venue in catalog order.
func (c *Catalog) All() []domain.Venue {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]domain.Venue, 0, len(c.venues))
	for _, v := range c.venues {
		out = append(out, v)
	}
	c.sortByOrder(out)
	return out
}

// Upsert adds or replaces a venue.
func (c *Catalog) Upsert(v domain.Venue) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if old, ok := c.venues[v.ID]; ok && !old.Coordinate.IsZero() {
		c.tree.Delete(point(old.Coordinate), point(old.Coordinate), old.ID)
	}
	c.put(v)
}

// Within returns the venues whose great-circle distance from center is at
// most radiusMiles, in catalog order. Venues without coordinates are never
// returned.
func (c *Catalog) Within(center domain.Coordinate, radiusMiles float64) []domain.Venue {
	if radiusMiles < 0 || math.IsNaN(radiusMiles) {
		return []domain.Venue{}
	}
	lo, hi := boundingBox(center, radiusMiles)

	c.mu.RLock()
	defer c.mu.RUnlock()

	out := []domain.Venue{}
	c.tree.Search(lo, hi, func(_, _ [2]float64, data interface{}) bool {
		id, ok := data.(string)
		if !ok {
			return true
		}
		v := c.venues[id]
		if domain.DistanceMiles(center, v.Coordinate) <= radiusMiles {
			out = append(out, v)
		}
		return true
	})
	c.sortByOrder(out)
	return out
}

// Candidates returns the venues to consider for a user. With no location
// every venue is a candidate; otherwise the search is limited to radiusMiles.
func (c *Catalog) Candidates(_ context.Context, location *domain.Coordinate, radiusMiles float64) ([]domain.Venue, error) {
	if location == nil {
		return c.All(), nil
	}
	return c.Within(*location, radiusMiles), nil
}

func (c *Catalog) put(v domain.Venue) {
	if _, ok := c.order[v.ID]; !ok {
		c.order[v.ID] = len(c.order)
	}
	c.venues[v.ID] = v
	if !v.Coordinate.IsZero() {
		c.tree.Insert(point(v.Coordinate), point(v.Coordinate), v.ID)
	}
}

func (c *Catalog) sortByOrder(venues []domain.Venue) {
	sort.Slice(venues, func(i, j int) bool {
		return c.order[venues[i].ID] < c.order[venues[j].ID]
	})
}

// point maps a coordinate to the [lat, lon] key used by the index.
func point(c domain.Coordinate) [2]float64 {
	return [2]float64{c.Lat, c.Lon}
}

// boundingBox returns a box that contains every point within radiusMiles of
// center. It is widened near the poles and never wraps the antimeridian.
func boundingBox(center domain.Coordinate, radiusMiles float64) (lo, hi [2]float64) {
	dLat := radiusMiles / milesPerDegreeLat
	cosLat := math.Cos(center.Lat * math.Pi / 180)
	dLon := 180.0
	if cosLat > 1e-6 {
		dLon = math.Min(180, radiusMiles/(milesPerDegreeLat*cosLat))
	}
	lo = [2]float64{math.Max(-90, center.Lat-dLat), math.Max(-180, center.Lon-dLon)}
	hi = [2]float64{math.Min(90, center.Lat+dLat), math.Min(180, center.Lon+dLon)}
	return lo, hi
}
