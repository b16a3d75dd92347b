package vision

import (
	"image"
	"sort"

	"github.com/apisguard/edge/internal/log"
)

// ExtractorConfig holds the region filters.
type ExtractorConfig struct {
	MinArea int // discard smaller regions as residual noise
	MaxArea int // sanity ceiling; larger regions are illumination floods

	// Aspect-ratio gate for the bounding box. Insects at this distance
	// are roughly blob-shaped; very tall or very wide regions are
	// branches, shadows and wing-beat smears.
	MinAspectRatio float64
	MaxAspectRatio float64

	// GlobalChangeFraction: if more than this fraction of the mask is
	// foreground the whole frame changed (lights, clouds, camera bump)
	// and no regions are reported for it.
	GlobalChangeFraction float64
}

// DefaultExtractorConfig mirrors the device defaults.
func DefaultExtractorConfig() ExtractorConfig {
	return ExtractorConfig{
		MinArea:              40,
		MaxArea:              50000,
		MinAspectRatio:       0.3,
		MaxAspectRatio:       3.0,
		GlobalChangeFraction: 0.35,
	}
}

// Extractor labels connected foreground components in a mask and turns
// them into Regions. Reused across frames to avoid re-allocating the
// visited map and flood-fill stack.
type Extractor struct {
	cfg     ExtractorConfig
	visited []bool
	stack   []image.Point

	globalChangeActive bool // latches the flood log so it fires once per onset
}

// NewExtractor builds an extractor for masks of the given geometry.
func NewExtractor(cfg ExtractorConfig, width, height int) *Extractor {
	if cfg.MaxAspectRatio == 0 {
		def := DefaultExtractorConfig()
		cfg.MinAspectRatio = def.MinAspectRatio
		cfg.MaxAspectRatio = def.MaxAspectRatio
	}
	return &Extractor{
		cfg:     cfg,
		visited: make([]bool, width*height),
		stack:   make([]image.Point, 0, 4096),
	}
}

// Extract returns the motion regions in the mask, largest first.
// Ordering is deterministic: area descending, ties broken by centroid x
// then y, so identical inputs always produce identical output.
func (e *Extractor) Extract(m Mask) []Region {
	if len(m.Pix) == 0 {
		return nil
	}

	foreground := 0
	for _, v := range m.Pix {
		if v != 0 {
			foreground++
		}
	}
	if frac := float64(foreground) / float64(len(m.Pix)); frac > e.cfg.GlobalChangeFraction {
		if !e.globalChangeActive {
			log.Warn("global illumination change, suppressing regions", "mask_fraction", frac)
			e.globalChangeActive = true
		}
		return nil
	}
	e.globalChangeActive = false

	for i := range e.visited {
		e.visited[i] = false
	}

	var regions []Region
	for y := 0; y < m.Height; y++ {
		for x := 0; x < m.Width; x++ {
			idx := y*m.Width + x
			if m.Pix[idx] == 0 || e.visited[idx] {
				continue
			}
			if r, ok := e.fill(m, x, y); ok {
				regions = append(regions, r)
			}
		}
	}

	sort.Slice(regions, func(i, j int) bool {
		if regions[i].Area != regions[j].Area {
			return regions[i].Area > regions[j].Area
		}
		if regions[i].Centroid.X != regions[j].Centroid.X {
			return regions[i].Centroid.X < regions[j].Centroid.X
		}
		return regions[i].Centroid.Y < regions[j].Centroid.Y
	})
	return regions
}

// fill flood-fills the 4-connected component at (x, y), returning its
// region if it passes the area and aspect filters.
func (e *Extractor) fill(m Mask, x, y int) (Region, bool) {
	minX, maxX := x, x
	minY, maxY := y, y
	area := 0
	sumX, sumY := 0, 0

	e.stack = e.stack[:0]
	e.visited[y*m.Width+x] = true
	e.stack = append(e.stack, image.Pt(x, y))

	for len(e.stack) > 0 {
		p := e.stack[len(e.stack)-1]
		e.stack = e.stack[:len(e.stack)-1]

		area++
		sumX += p.X
		sumY += p.Y
		if p.X < minX {
			minX = p.X
		}
		if p.X > maxX {
			maxX = p.X
		}
		if p.Y < minY {
			minY = p.Y
		}
		if p.Y > maxY {
			maxY = p.Y
		}

		for _, n := range [4]image.Point{
			{p.X + 1, p.Y}, {p.X - 1, p.Y}, {p.X, p.Y + 1}, {p.X, p.Y - 1},
		} {
			if n.X < 0 || n.X >= m.Width || n.Y < 0 || n.Y >= m.Height {
				continue
			}
			ni := n.Y*m.Width + n.X
			if m.Pix[ni] == 0 || e.visited[ni] {
				continue
			}
			e.visited[ni] = true
			e.stack = append(e.stack, n)
		}
	}

	if area < e.cfg.MinArea || area > e.cfg.MaxArea {
		return Region{}, false
	}

	r := Region{
		Centroid: image.Pt(sumX/area, sumY/area),
		Area:     area,
		Bounds:   image.Rect(minX, minY, maxX+1, maxY+1),
	}
	if ar := r.AspectRatio(); ar < e.cfg.MinAspectRatio || ar > e.cfg.MaxAspectRatio {
		return Region{}, false
	}
	return r, true
}
