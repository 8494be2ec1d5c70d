// Package cluster groups coverage stations into zoom-dependent aggregates
// for the map renderer. The index is rebuilt wholesale from the visible
// station set; clusters themselves are ephemeral and recomputed on every
// query rather than cached across zoom changes.
package cluster

import (
	"math"
	"sync"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

// Config holds clustering parameters.
type Config struct {
	RadiusPX      float64 // grouping radius in screen pixels
	MinPoints     int     // minimum members for a cluster (≥2)
	MinZoom       int
	MaxZoom       int
	DisableAtZoom int // clustering is off at and above this zoom
	NameSample    int // station names kept per cluster for the tooltip
}

// DefaultConfig returns the production clustering parameters.
func DefaultConfig() Config {
	return Config{
		RadiusPX:      60,
		MinPoints:     2,
		MinZoom:       0,
		MaxZoom:       18,
		DisableAtZoom: 15,
		NameSample:    3,
	}
}

func (c Config) normalized() Config {
	if c.RadiusPX <= 0 {
		c.RadiusPX = 60
	}
	if c.MinPoints < 2 {
		c.MinPoints = 2
	}
	if c.MaxZoom <= 0 {
		c.MaxZoom = 18
	}
	if c.MinZoom < 0 {
		c.MinZoom = 0
	}
	if c.MinZoom > c.MaxZoom {
		c.MinZoom = c.MaxZoom
	}
	if c.DisableAtZoom <= 0 {
		c.DisableAtZoom = 15
	}
	if c.NameSample <= 0 {
		c.NameSample = 3
	}
	return c
}

// Index is a spatial index over visible stations supporting range+zoom
// queries. Safe for concurrent use.
type Index struct {
	cfg    Config
	points []domain.ClusterPoint

	mu         sync.Mutex
	lastZoom   int
	leavesByID map[uint64][]domain.ClusterPoint
}

// New returns an empty index.
func New(cfg Config) *Index {
	return &Index{
		cfg:        cfg.normalized(),
		leavesByID: make(map[uint64][]domain.ClusterPoint),
	}
}

// WithStations builds a fresh index from the stations whose Visible flag
// is set, leaving the receiver untouched. Each station becomes a point at
// the centroid of its bounds; stations with unusable bounds are skipped.
func (ix *Index) WithStations(stations []domain.Station) *Index {
	out := New(ix.cfg)
	for _, s := range stations {
		if !s.Visible {
			continue
		}
		if !s.Bounds.Valid() {
			continue
		}
		out.points = append(out.points, domain.ClusterPoint{
			StationID:          s.ID,
			Name:               s.Name,
			Location:           s.Bounds.Center(),
			Area:               s.Bounds.Area(),
			ImageURL:           s.ImageURL,
			CompressedImageURL: s.CompressedImageURL,
		})
	}
	return out
}

// Len returns the number of indexed points.
func (ix *Index) Len() int {
	return len(ix.points)
}

// ShouldCluster reports whether clustering applies at the given zoom.
// It depends on zoom only, never on how many candidates are on screen.
func (ix *Index) ShouldCluster(zoom float64) bool {
	return zoom < float64(ix.cfg.DisableAtZoom)
}

// GetClusters queries the index for the bounding box at the floored zoom
// and partitions the result into clusters and standalone points. The
// returned cluster IDs stay resolvable via GetLeaves and ExpansionZoom
// until the next GetClusters call.
func (ix *Index) GetClusters(v domain.Viewport, zoom float64) ([]domain.Cluster, []domain.ClusterPoint) {
	z := ix.clampZoom(int(math.Floor(zoom)))

	var inView []domain.ClusterPoint
	for _, p := range ix.points {
		if v.Contains(p.Location) {
			inView = append(inView, p)
		}
	}

	groups := groupByRadius(inView, z, ix.cfg.RadiusPX)

	ix.mu.Lock()
	defer ix.mu.Unlock()
	ix.lastZoom = z
	ix.leavesByID = make(map[uint64][]domain.ClusterPoint)

	var clusters []domain.Cluster
	var points []domain.ClusterPoint
	var nextID uint64 = 1

	for _, g := range groups {
		if len(g) < ix.cfg.MinPoints {
			points = append(points, g...)
			continue
		}

		c := ix.reduce(nextID, g, z)
		clusters = append(clusters, c)
		ix.leavesByID[nextID] = g
		nextID++
	}

	return clusters, points
}

// reduce merges a group into a cluster aggregate: weighted centroid,
// accumulated count and area, and the first NameSample distinct names in
// traversal order. The name sample feeds a tooltip only.
func (ix *Index) reduce(id uint64, members []domain.ClusterPoint, zoom int) domain.Cluster {
	var sumX, sumY, totalArea float64
	var names []string
	seen := make(map[string]bool)

	for _, p := range members {
		x, y := project(p.Location.Lat, p.Location.Lng, zoom)
		sumX += x
		sumY += y
		totalArea += p.Area

		if len(names) < ix.cfg.NameSample && p.Name != "" && !seen[p.Name] {
			names = append(names, p.Name)
			seen[p.Name] = true
		}
	}

	n := float64(len(members))
	lat, lng := unproject(sumX/n, sumY/n, zoom)

	return domain.Cluster{
		ID:         id,
		Location:   domain.GeoPoint{Lat: lat, Lng: lng},
		Count:      len(members),
		NameSample: names,
		TotalArea:  totalArea,
	}
}

// GetLeaves expands a cluster from the most recent query back to its
// member stations, unbounded count. Unknown IDs return nil.
func (ix *Index) GetLeaves(clusterID uint64) []domain.ClusterPoint {
	ix.mu.Lock()
	defer ix.mu.Unlock()

	leaves := ix.leavesByID[clusterID]
	if leaves == nil {
		return nil
	}
	out := make([]domain.ClusterPoint, len(leaves))
	copy(out, leaves)
	return out
}

// ExpansionZoom returns the smallest zoom at which the cluster's members
// no longer all collapse into one group, or MaxZoom if they never split.
func (ix *Index) ExpansionZoom(clusterID uint64) int {
	ix.mu.Lock()
	leaves := ix.leavesByID[clusterID]
	startZoom := ix.lastZoom
	ix.mu.Unlock()

	if len(leaves) == 0 {
		return ix.cfg.MaxZoom
	}

	for z := startZoom + 1; z <= ix.cfg.MaxZoom; z++ {
		if len(groupByRadius(leaves, z, ix.cfg.RadiusPX)) > 1 {
			return z
		}
	}
	return ix.cfg.MaxZoom
}

func (ix *Index) clampZoom(z int) int {
	if z < ix.cfg.MinZoom {
		return ix.cfg.MinZoom
	}
	if z > ix.cfg.MaxZoom {
		return ix.cfg.MaxZoom
	}
	return z
}

// groupByRadius greedily partitions points into groups whose members lie
// within radiusPX of a seed point in projected pixel space at zoom z.
// Traversal order is index order, so the grouping is deterministic for a
// given point slice.
func groupByRadius(points []domain.ClusterPoint, zoom int, radiusPX float64) [][]domain.ClusterPoint {
	type projected struct {
		x, y float64
	}

	proj := make([]projected, len(points))
	for i, p := range points {
		x, y := project(p.Location.Lat, p.Location.Lng, zoom)
		proj[i] = projected{x: x, y: y}
	}

	assigned := make([]bool, len(points))
	var groups [][]domain.ClusterPoint

	for i := range points {
		if assigned[i] {
			continue
		}
		group := []domain.ClusterPoint{points[i]}
		assigned[i] = true

		for j := i + 1; j < len(points); j++ {
			if assigned[j] {
				continue
			}
			dx := proj[j].x - proj[i].x
			dy := proj[j].y - proj[i].y
			if dx*dx+dy*dy <= radiusPX*radiusPX {
				group = append(group, points[j])
				assigned[j] = true
			}
		}
		groups = append(groups, group)
	}

	return groups
}
