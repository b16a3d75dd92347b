// Package tracking associates motion regions across frames into
// short-lived tracks and scores each track for the two signals the
// decision engine combines: hornet-like size and hovering behavior.
//
// The tracker is deliberately simple: greedy nearest-centroid matching
// with a distance gate, no motion prediction, no multi-hypothesis
// bookkeeping. A hive entrance rarely has more than a handful of
// simultaneous movers, and a hovering hornet is by definition the one
// that does not move.
package tracking

import (
	"image"
	"math"
	"time"

	"github.com/apisguard/edge/internal/log"
	"github.com/apisguard/edge/pkg/vision"
)

// historyLen bounds the per-track centroid ring buffer. At 10 FPS this
// is about three seconds of positions, enough for hover analysis and
// clip annotation.
const historyLen = 32

// Config holds the tracker and scoring tunables.
type Config struct {
	// Association
	MaxDistance float64       // px gate for matching a region to a track
	Timeout     time.Duration // expire a track not matched for this long

	// Hover scoring
	HoverRadius   float64       // px the centroid may drift and still count
	HoverDuration time.Duration // continuous time inside radius for score 1

	// Size scoring
	BeeAreaMax    int // at or below: size score 0
	HornetAreaMin int // at or above: size score 1
}

// DefaultConfig returns the device defaults for a VGA frame at ~1m.
func DefaultConfig() Config {
	return Config{
		MaxDistance:   100,
		Timeout:       300 * time.Millisecond,
		HoverRadius:   50,
		HoverDuration: time.Second,
		BeeAreaMax:    150,
		HornetAreaMin: 300,
	}
}

// Position is one entry of a track's centroid history.
type Position struct {
	Timestamp time.Time
	Point     image.Point
}

// Track is an ephemeral identity for a moving object.
type Track struct {
	ID         uint32
	Centroid   image.Point
	Area       int // pixel area of the most recent matched region
	FirstSeen  time.Time
	LastUpdate time.Time
	History    []Position

	// Hover state. Anchor is where the current stability window began;
	// StableSince is zero while the track is moving.
	Anchor      image.Point
	StableSince time.Time

	SizeScore  float64
	HoverScore float64
}

// Confidence is the combined activation signal.
func (t *Track) Confidence() float64 {
	return t.SizeScore * t.HoverScore
}

// Tracker owns all live tracks. Not safe for concurrent use; it belongs
// to the pipeline goroutine and hands out snapshots.
type Tracker struct {
	cfg    Config
	tracks []*Track
	nextID uint32
}

// New creates a tracker.
func New(cfg Config) *Tracker {
	if cfg.MaxDistance <= 0 {
		log.Warn("tracker max distance unset, using default")
		cfg.MaxDistance = DefaultConfig().MaxDistance
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultConfig().Timeout
	}
	// IDs start at 1; 0 is reserved for "no track".
	return &Tracker{cfg: cfg, nextID: 1}
}

// Update matches the frame's regions against live tracks, spawns tracks
// for unmatched regions, expires stale tracks and rescores everything.
// It returns snapshots of all live tracks, ordered by descending
// confidence (ties by ascending ID, so ordering is stable).
func (tr *Tracker) Update(now time.Time, regions []vision.Region) []Track {
	assigned := make([]bool, len(regions))

	// Greedy pass: older tracks pick first, each takes its nearest
	// unassigned region inside the gate.
	gateSq := tr.cfg.MaxDistance * tr.cfg.MaxDistance
	for _, t := range tr.tracks {
		best := -1
		bestSq := gateSq
		for i, r := range regions {
			if assigned[i] {
				continue
			}
			if d := distSq(t.Centroid, r.Centroid); d < bestSq {
				bestSq = d
				best = i
			}
		}
		if best >= 0 {
			assigned[best] = true
			tr.updateTrack(t, regions[best], now)
		}
	}

	// Unmatched regions become new tracks.
	for i, r := range regions {
		if !assigned[i] {
			tr.spawn(r, now)
		}
	}

	// Expire tracks that have not been matched within the timeout.
	live := tr.tracks[:0]
	for _, t := range tr.tracks {
		if now.Sub(t.LastUpdate) > tr.cfg.Timeout {
			log.Debug("track expired", "track_id", t.ID,
				"age", now.Sub(t.FirstSeen).Round(time.Millisecond))
			continue
		}
		live = append(live, t)
	}
	tr.tracks = live

	// Rescore and snapshot.
	out := make([]Track, 0, len(tr.tracks))
	for _, t := range tr.tracks {
		t.SizeScore = sizeScore(t.Area, tr.cfg.BeeAreaMax, tr.cfg.HornetAreaMin)
		t.HoverScore = tr.hoverScore(t, now)
		out = append(out, snapshot(t))
	}
	sortByConfidence(out)
	return out
}

// ActiveCount returns the number of live tracks.
func (tr *Tracker) ActiveCount() int {
	return len(tr.tracks)
}

// Reset drops all tracks, e.g. after a camera restart.
func (tr *Tracker) Reset() {
	tr.tracks = nil
}

func (tr *Tracker) spawn(r vision.Region, now time.Time) {
	t := &Track{
		ID:          tr.nextID,
		Centroid:    r.Centroid,
		Area:        r.Area,
		FirstSeen:   now,
		LastUpdate:  now,
		Anchor:      r.Centroid,
		StableSince: now,
		History:     []Position{{Timestamp: now, Point: r.Centroid}},
	}
	tr.nextID++
	if tr.nextID == 0 {
		tr.nextID = 1
	}
	tr.tracks = append(tr.tracks, t)
	log.Debug("track spawned", "track_id", t.ID, "centroid", t.Centroid, "area", t.Area)
}

func (tr *Tracker) updateTrack(t *Track, r vision.Region, now time.Time) {
	t.Centroid = r.Centroid
	t.Area = r.Area
	t.LastUpdate = now

	t.History = append(t.History, Position{Timestamp: now, Point: r.Centroid})
	if len(t.History) > historyLen {
		t.History = t.History[len(t.History)-historyLen:]
	}

	// Hovering must be continuous: leaving the radius restarts the
	// stability window at the current position instead of decaying.
	if dist(t.Anchor, r.Centroid) > tr.cfg.HoverRadius {
		t.Anchor = r.Centroid
		t.StableSince = now
	}
}

// hoverScore ramps 0..1 as the continuous stable duration approaches the
// configured hover duration, then holds at 1.
func (tr *Tracker) hoverScore(t *Track, now time.Time) float64 {
	if t.StableSince.IsZero() {
		return 0
	}
	stable := now.Sub(t.StableSince)
	if stable <= 0 {
		return 0
	}
	score := float64(stable) / float64(tr.cfg.HoverDuration)
	if score > 1 {
		return 1
	}
	return score
}

// sizeScore maps a pixel area onto [0,1]: 0 at or below the bee ceiling,
// 1 at or above the hornet floor, linear in the ambiguous band. The ramp
// absorbs the ~20% area measurement jitter a hard cutoff would amplify.
func sizeScore(area, beeMax, hornetMin int) float64 {
	if area <= beeMax {
		return 0
	}
	if area >= hornetMin {
		return 1
	}
	return float64(area-beeMax) / float64(hornetMin-beeMax)
}

func snapshot(t *Track) Track {
	c := *t
	c.History = append([]Position(nil), t.History...)
	return c
}

func sortByConfidence(tracks []Track) {
	// Insertion sort: track counts are tiny and this keeps ties stable.
	for i := 1; i < len(tracks); i++ {
		for j := i; j > 0; j-- {
			a, b := &tracks[j-1], &tracks[j]
			if b.Confidence() > a.Confidence() ||
				(b.Confidence() == a.Confidence() && b.ID < a.ID) {
				tracks[j-1], tracks[j] = tracks[j], tracks[j-1]
			} else {
				break
			}
		}
	}
}

func distSq(a, b image.Point) float64 {
	dx := float64(a.X - b.X)
	dy := float64(a.Y - b.Y)
	return dx*dx + dy*dy
}

func dist(a, b image.Point) float64 {
	return math.Sqrt(distSq(a, b))
}
