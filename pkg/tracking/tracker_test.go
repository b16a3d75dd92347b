package tracking

import (
	"image"
	"testing"
	"time"

	"github.com/apisguard/edge/pkg/vision"
)

func region(x, y, area int) vision.Region {
	side := 1
	for side*side < area {
		side++
	}
	return vision.Region{
		Centroid: image.Pt(x, y),
		Area:     area,
		Bounds:   image.Rect(x-side/2, y-side/2, x+side/2, y+side/2),
	}
}

func testTrackerConfig() Config {
	return Config{
		MaxDistance:   100,
		Timeout:       300 * time.Millisecond,
		HoverRadius:   50,
		HoverDuration: time.Second,
		BeeAreaMax:    150,
		HornetAreaMin: 300,
	}
}

func TestSizeScore(t *testing.T) {
	tests := []struct {
		name string
		area int
		want float64
	}{
		{"bee sized", 120, 0},
		{"exactly at bee ceiling", 150, 0},
		{"midpoint of ambiguous band", 225, 0.5},
		{"exactly at hornet floor", 300, 1},
		{"clearly hornet", 320, 1},
		{"tiny", 5, 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := sizeScore(tt.area, 150, 300)
			if got != tt.want {
				t.Errorf("sizeScore(%d) = %v, want %v", tt.area, got, tt.want)
			}
		})
	}
}

func TestUpdate_AssociatesNearbyRegion(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	tracks := tr.Update(t0, []vision.Region{region(100, 100, 320)})
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	id := tracks[0].ID

	// A region 10px away on the next frame must join the same track.
	tracks = tr.Update(t0.Add(100*time.Millisecond), []vision.Region{region(110, 100, 320)})
	if len(tracks) != 1 {
		t.Fatalf("got %d tracks, want 1", len(tracks))
	}
	if tracks[0].ID != id {
		t.Errorf("track ID changed from %d to %d", id, tracks[0].ID)
	}
	if tracks[0].Centroid != image.Pt(110, 100) {
		t.Errorf("centroid not updated: %v", tracks[0].Centroid)
	}
	if len(tracks[0].History) != 2 {
		t.Errorf("history length = %d, want 2", len(tracks[0].History))
	}
}

func TestUpdate_FarRegionSpawnsNewTrack(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	tr.Update(t0, []vision.Region{region(100, 100, 320)})
	tracks := tr.Update(t0.Add(100*time.Millisecond), []vision.Region{region(400, 100, 320)})

	// The old track is still inside its timeout, so both are live.
	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
}

func TestUpdate_TrackExpiresAfterTimeout(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	tr.Update(t0, []vision.Region{region(100, 100, 320)})
	tracks := tr.Update(t0.Add(400*time.Millisecond), nil)

	if len(tracks) != 0 {
		t.Fatalf("track survived past timeout: %d live", len(tracks))
	}
	if tr.ActiveCount() != 0 {
		t.Errorf("ActiveCount = %d, want 0", tr.ActiveCount())
	}
}

func TestHoverScore_RampsAndHolds(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	tr.Update(t0, []vision.Region{region(100, 100, 320)})

	// Half the hover duration: score 0.5.
	tracks := tr.Update(t0.Add(500*time.Millisecond), []vision.Region{region(102, 100, 320)})
	if got := tracks[0].HoverScore; got < 0.49 || got > 0.51 {
		t.Errorf("HoverScore at 0.5s = %v, want ~0.5", got)
	}

	// Keep the pipeline cadence under the track timeout while passing
	// the full hover duration: score holds at 1.
	tracks = tr.Update(t0.Add(750*time.Millisecond), []vision.Region{region(101, 100, 320)})
	tracks = tr.Update(t0.Add(1050*time.Millisecond), []vision.Region{region(102, 101, 320)})
	if got := tracks[0].HoverScore; got != 1 {
		t.Errorf("HoverScore past duration = %v, want 1", got)
	}
	tracks = tr.Update(t0.Add(1300*time.Millisecond), []vision.Region{region(100, 100, 320)})
	if got := tracks[0].HoverScore; got != 1 {
		t.Errorf("HoverScore should hold at 1, got %v", got)
	}
}

func TestHoverScore_ResetsOnDeparture(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	tr.Update(t0, []vision.Region{region(100, 100, 320)})
	tr.Update(t0.Add(300*time.Millisecond), []vision.Region{region(100, 100, 320)})
	tracks := tr.Update(t0.Add(600*time.Millisecond), []vision.Region{region(100, 100, 320)})
	if tracks[0].HoverScore == 0 {
		t.Fatal("expected a nonzero hover score before departure")
	}

	// Jump 80px: outside the 50px radius but inside the association
	// gate. Score must reset to zero, not decay.
	tracks = tr.Update(t0.Add(700*time.Millisecond), []vision.Region{region(180, 100, 320)})
	if got := tracks[0].HoverScore; got != 0 {
		t.Errorf("HoverScore after departure = %v, want 0 (hard reset)", got)
	}

	// Stability re-accrues at the new anchor.
	tracks = tr.Update(t0.Add(1000*time.Millisecond), []vision.Region{region(181, 100, 320)})
	if got := tracks[0].HoverScore; got < 0.29 || got > 0.31 {
		t.Errorf("HoverScore after re-anchoring = %v, want ~0.3", got)
	}
}

func TestHoverScore_FastCrosserStaysNearZero(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	// A bird crossing the frame at 90px per 100ms frame: every update
	// exceeds the hover radius, so the window restarts each frame.
	x := 50
	var tracks []Track
	for i := 0; i < 10; i++ {
		tracks = tr.Update(t0.Add(time.Duration(i)*100*time.Millisecond),
			[]vision.Region{region(x, 100, 320)})
		x += 90
	}
	if got := tracks[0].HoverScore; got > 0.11 {
		t.Errorf("fast crosser HoverScore = %v, want near zero", got)
	}
}

func TestUpdate_ConfidenceOrdering(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	// One bee-sized and one hornet-sized hoverer; the hornet-sized
	// track must sort first regardless of spawn order.
	tr.Update(t0, []vision.Region{region(100, 100, 120), region(400, 100, 320)})
	tracks := tr.Update(t0.Add(200*time.Millisecond),
		[]vision.Region{region(100, 100, 120), region(400, 100, 320)})

	if len(tracks) != 2 {
		t.Fatalf("got %d tracks, want 2", len(tracks))
	}
	if tracks[0].Area != 320 {
		t.Errorf("highest-confidence track should be the hornet-sized one, got area %d", tracks[0].Area)
	}
	if tracks[0].Confidence() < tracks[1].Confidence() {
		t.Error("tracks not ordered by descending confidence")
	}
}

func TestBeeSizedTrackNeverGainsConfidence(t *testing.T) {
	tr := New(testTrackerConfig())
	t0 := time.Now()

	// Two seconds of a perfectly stationary bee-sized object.
	var tracks []Track
	for i := 0; i <= 20; i++ {
		tracks = tr.Update(t0.Add(time.Duration(i)*100*time.Millisecond),
			[]vision.Region{region(100, 100, 120)})
	}
	if got := tracks[0].SizeScore; got != 0 {
		t.Errorf("SizeScore = %v, want 0", got)
	}
	if got := tracks[0].HoverScore; got != 1 {
		t.Errorf("HoverScore = %v, want 1 (it is hovering)", got)
	}
	if got := tracks[0].Confidence(); got != 0 {
		t.Errorf("Confidence = %v, want 0: size gates the product", got)
	}
}
