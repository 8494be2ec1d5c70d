package cluster

import (
	"fmt"
	"math"
	"testing"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

func testStation(id string, lat, lng float64) domain.Station {
	return domain.Station{
		ID:      id,
		Name:    "Station " + id,
		Visible: true,
		Bounds: domain.LatLngBounds{
			SW: domain.GeoPoint{Lat: lat - 0.01, Lng: lng - 0.01},
			NE: domain.GeoPoint{Lat: lat + 0.01, Lng: lng + 0.01},
		},
	}
}

func wideViewport() domain.Viewport {
	return domain.Viewport{
		North: 20, South: 10, East: 105, West: 95,
		Center: domain.GeoPoint{Lat: 15, Lng: 100},
	}
}

func TestIndex_CloseStationsFormOneCluster(t *testing.T) {
	ix := New(DefaultConfig()).WithStations([]domain.Station{
		testStation("a", 14.000, 100.500),
		testStation("b", 14.002, 100.502),
		testStation("c", 14.004, 100.504),
	})

	clusters, points := ix.GetClusters(wideViewport(), 10)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if len(points) != 0 {
		t.Errorf("expected no standalone points, got %d", len(points))
	}
	if clusters[0].Count != 3 {
		t.Errorf("expected count 3, got %d", clusters[0].Count)
	}
	if len(clusters[0].NameSample) != 3 {
		t.Errorf("expected 3 sampled names, got %d", len(clusters[0].NameSample))
	}

	// The weighted centroid lands between the members.
	c := clusters[0].Location
	if c.Lat < 14.000 || c.Lat > 14.004 || c.Lng < 100.500 || c.Lng > 100.504 {
		t.Errorf("centroid outside member span: %+v", c)
	}
}

func TestIndex_DistantStationsStayStandalone(t *testing.T) {
	ix := New(DefaultConfig()).WithStations([]domain.Station{
		testStation("a", 14.0, 100.5),
		testStation("b", 18.0, 103.0),
	})

	clusters, points := ix.GetClusters(wideViewport(), 10)
	if len(clusters) != 0 {
		t.Errorf("expected no clusters, got %d", len(clusters))
	}
	if len(points) != 2 {
		t.Errorf("expected 2 standalone points, got %d", len(points))
	}
}

func TestIndex_LeavesRoundTrip(t *testing.T) {
	ix := New(DefaultConfig()).WithStations([]domain.Station{
		testStation("a", 14.000, 100.500),
		testStation("b", 14.002, 100.502),
		testStation("c", 14.004, 100.504),
		testStation("d", 18.0, 103.0),
	})

	clusters, points := ix.GetClusters(wideViewport(), 8)

	total := len(points)
	for _, c := range clusters {
		leaves := ix.GetLeaves(c.ID)
		if len(leaves) != c.Count {
			t.Errorf("cluster %d: leaves %d != count %d", c.ID, len(leaves), c.Count)
		}
		total += len(leaves)
	}
	if total != ix.Len() {
		t.Errorf("leaves plus points %d != indexed points %d", total, ix.Len())
	}
}

func TestIndex_GetLeavesUnknownID(t *testing.T) {
	ix := New(DefaultConfig())
	if leaves := ix.GetLeaves(42); leaves != nil {
		t.Errorf("expected nil for unknown cluster, got %v", leaves)
	}
}

func TestIndex_ExpansionZoomSplitsCluster(t *testing.T) {
	ix := New(DefaultConfig()).WithStations([]domain.Station{
		testStation("a", 14.000, 100.500),
		testStation("b", 14.050, 100.550),
	})

	clusters, _ := ix.GetClusters(wideViewport(), 5)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster at zoom 5, got %d", len(clusters))
	}

	ez := ix.ExpansionZoom(clusters[0].ID)
	if ez <= 5 {
		t.Fatalf("expansion zoom must exceed the query zoom, got %d", ez)
	}

	// At the expansion zoom the members really do separate.
	split, pts := ix.GetClusters(wideViewport(), float64(ez))
	if len(split) == 1 && split[0].Count == 2 {
		t.Errorf("members still collapsed at expansion zoom %d (%d clusters, %d points)", ez, len(split), len(pts))
	}
}

func TestIndex_SkipsHiddenAndMalformed(t *testing.T) {
	hidden := testStation("hidden", 14.0, 100.5)
	hidden.Visible = false

	malformed := testStation("nan", 14.1, 100.6)
	malformed.Bounds.NE.Lat = math.NaN()

	ix := New(DefaultConfig()).WithStations([]domain.Station{
		hidden,
		malformed,
		testStation("ok", 14.2, 100.7),
	})

	if ix.Len() != 1 {
		t.Errorf("expected 1 indexed point, got %d", ix.Len())
	}
}

func TestIndex_DegenerateBoundsCluster(t *testing.T) {
	// Zero-area bounds are legal; the point sits at the collapsed corner.
	st := domain.Station{
		ID:      "point",
		Name:    "Point Station",
		Visible: true,
		Bounds: domain.LatLngBounds{
			SW: domain.GeoPoint{Lat: 14, Lng: 100.5},
			NE: domain.GeoPoint{Lat: 14, Lng: 100.5},
		},
	}
	twin := st
	twin.ID = "twin"

	ix := New(DefaultConfig()).WithStations([]domain.Station{st, twin})
	clusters, _ := ix.GetClusters(wideViewport(), 10)
	if len(clusters) != 1 {
		t.Fatalf("expected 1 cluster, got %d", len(clusters))
	}
	if clusters[0].TotalArea != 0 {
		t.Errorf("expected zero total area, got %f", clusters[0].TotalArea)
	}
	if clusters[0].Location.Lat != 14 || clusters[0].Location.Lng != 100.5 {
		t.Errorf("expected centroid at the collapsed corner, got %+v", clusters[0].Location)
	}
}

func TestIndex_ShouldCluster(t *testing.T) {
	ix := New(DefaultConfig())
	if !ix.ShouldCluster(14.9) {
		t.Error("expected clustering below the disable zoom")
	}
	if ix.ShouldCluster(15) {
		t.Error("expected no clustering at the disable zoom")
	}
}

func TestIndex_OutOfViewExcluded(t *testing.T) {
	ix := New(DefaultConfig()).WithStations([]domain.Station{
		testStation("in", 14.0, 100.5),
		testStation("out", 40.0, 120.0),
	})

	clusters, points := ix.GetClusters(wideViewport(), 10)
	if len(clusters) != 0 || len(points) != 1 {
		t.Fatalf("expected one standalone in-view point, got %d clusters, %d points", len(clusters), len(points))
	}
	if points[0].StationID != "in" {
		t.Errorf("expected the in-view station, got %s", points[0].StationID)
	}
}

func TestProjectRoundTrip(t *testing.T) {
	for _, zoom := range []int{0, 5, 12, 18} {
		lat, lng := 14.123456, 100.654321
		x, y := project(lat, lng, zoom)
		gotLat, gotLng := unproject(x, y, zoom)
		if math.Abs(gotLat-lat) > 1e-6 || math.Abs(gotLng-lng) > 1e-6 {
			t.Errorf("zoom %d: round trip drifted: got %f,%f", zoom, gotLat, gotLng)
		}
	}
}

func TestGroupByRadiusDeterministic(t *testing.T) {
	points := make([]domain.ClusterPoint, 0, 20)
	for i := 0; i < 20; i++ {
		points = append(points, domain.ClusterPoint{
			StationID: fmt.Sprintf("s%d", i),
			Location:  domain.GeoPoint{Lat: 14 + float64(i%5)*0.001, Lng: 100.5 + float64(i/5)*0.001},
		})
	}

	first := groupByRadius(points, 12, 60)
	second := groupByRadius(points, 12, 60)
	if len(first) != len(second) {
		t.Fatalf("grouping not deterministic: %d vs %d groups", len(first), len(second))
	}
	for i := range first {
		if len(first[i]) != len(second[i]) || first[i][0].StationID != second[i][0].StationID {
			t.Errorf("group %d differs between runs", i)
		}
	}
}
