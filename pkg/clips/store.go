// Package clips persists short MJPEG clips around confirmed detections.
// Clips land under a timestamp-partitioned directory with a JSON
// metadata sidecar per clip, and the store enforces a disk quota by
// evicting oldest clips first.
package clips

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/apisguard/edge/internal/log"
)

// ErrStorageFull is returned when eviction cannot free enough space for
// a new clip. Recording is skipped, the pipeline keeps running.
var ErrStorageFull = errors.New("clip storage full")

// ErrNotFound is returned when no clip has the requested id.
var ErrNotFound = errors.New("clip not found")

// Metadata is the per-clip sidecar, also the /clips listing entry.
type Metadata struct {
	ID          string    `json:"id"`
	Timestamp   time.Time `json:"timestamp"`
	DurationSec float64   `json:"duration_sec"`
	Frames      int       `json:"frames"`
	TrackID     uint32    `json:"track_id"`
	Confidence  float64   `json:"confidence"`
}

// UsageFunc reports filesystem utilization (0-100) for a directory.
type UsageFunc func(dir string) (float64, error)

// DiskUsage is the default UsageFunc, backed by statfs.
func DiskUsage(dir string) (float64, error) {
	var st syscall.Statfs_t
	if err := syscall.Statfs(dir, &st); err != nil {
		return 0, fmt.Errorf("statfs %s: %w", dir, err)
	}
	if st.Blocks == 0 {
		return 0, nil
	}
	used := st.Blocks - st.Bavail
	return float64(used) / float64(st.Blocks) * 100, nil
}

// Store owns the clip directory. All writes are serialized by the
// caller (one recorder goroutine), so the store itself is not locked.
type Store struct {
	dir      string
	quotaPct float64
	usage    UsageFunc
	logger   interface {
		Info(msg string, args ...any)
		Warn(msg string, args ...any)
	}
}

// NewStore opens (creating if needed) the clip directory.
func NewStore(dir string, quotaPct float64, usage UsageFunc) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("clip dir: %w", err)
	}
	if usage == nil {
		usage = DiskUsage
	}
	return &Store{
		dir:      dir,
		quotaPct: quotaPct,
		usage:    usage,
		logger:   log.Component("clips"),
	}, nil
}

// Save writes the clip frames as concatenated JPEGs plus the metadata
// sidecar. Before writing it enforces the quota, evicting oldest clips;
// if the disk is still over quota afterwards it returns ErrStorageFull.
func (s *Store) Save(meta Metadata, frames [][]byte) error {
	if err := s.ensureSpace(); err != nil {
		return err
	}

	day := meta.Timestamp.Format("2006-01-02")
	if err := os.MkdirAll(filepath.Join(s.dir, day), 0o755); err != nil {
		return fmt.Errorf("clip day dir: %w", err)
	}
	base := fmt.Sprintf("%s_%s", meta.Timestamp.Format("150405.000"), meta.ID)
	clipPath := filepath.Join(s.dir, day, base+".mjpeg")

	f, err := os.Create(clipPath)
	if err != nil {
		return fmt.Errorf("create clip: %w", err)
	}
	for _, jp := range frames {
		if _, err := f.Write(jp); err != nil {
			f.Close()
			os.Remove(clipPath)
			return fmt.Errorf("write clip: %w", err)
		}
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close clip: %w", err)
	}

	sidecar, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encode metadata: %w", err)
	}
	if err := os.WriteFile(clipPath+".json", sidecar, 0o644); err != nil {
		return fmt.Errorf("write metadata: %w", err)
	}

	s.logger.Info("clip saved", "id", meta.ID, "frames", meta.Frames,
		"duration_sec", meta.DurationSec)
	return nil
}

// NewID returns a clip id.
func NewID() string {
	return uuid.NewString()
}

// List returns metadata for every stored clip, newest first.
func (s *Store) List() ([]Metadata, error) {
	var out []Metadata
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil // sidecar vanished under us, skip
		}
		var m Metadata
		if json.Unmarshal(raw, &m) != nil {
			return nil
		}
		out = append(out, m)
		return nil
	})
	if err != nil {
		return nil, err
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].Timestamp.After(out[j].Timestamp)
	})
	return out, nil
}

// Open returns the clip file and metadata for the given id.
func (s *Store) Open(id string) (*os.File, Metadata, error) {
	path, meta, err := s.find(id)
	if err != nil {
		return nil, Metadata{}, err
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, Metadata{}, fmt.Errorf("open clip: %w", err)
	}
	return f, meta, nil
}

// CountSince counts clips whose timestamp is at or after t. Used to
// rebuild the daily detection counter on boot.
func (s *Store) CountSince(t time.Time) int {
	metas, err := s.List()
	if err != nil {
		return 0
	}
	n := 0
	for _, m := range metas {
		if !m.Timestamp.Before(t) {
			n++
		}
	}
	return n
}

func (s *Store) find(id string) (string, Metadata, error) {
	var foundPath string
	var foundMeta Metadata
	err := filepath.WalkDir(s.dir, func(path string, d os.DirEntry, err error) error {
		if err != nil || d.IsDir() || !strings.HasSuffix(path, ".json") {
			return err
		}
		if !strings.Contains(filepath.Base(path), id) {
			return nil
		}
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil
		}
		var m Metadata
		if json.Unmarshal(raw, &m) != nil || m.ID != id {
			return nil
		}
		foundPath = strings.TrimSuffix(path, ".json")
		foundMeta = m
		return filepath.SkipAll
	})
	if err != nil {
		return "", Metadata{}, err
	}
	if foundPath == "" {
		return "", Metadata{}, ErrNotFound
	}
	return foundPath, foundMeta, nil
}

// ensureSpace evicts oldest clips while utilization exceeds the quota.
func (s *Store) ensureSpace() error {
	pct, err := s.usage(s.dir)
	if err != nil {
		s.logger.Warn("storage usage check failed", "err", err)
		return nil // do not block recording on a statfs failure
	}
	if pct <= s.quotaPct {
		return nil
	}

	metas, err := s.List()
	if err != nil {
		return err
	}
	// List is newest first; evict from the tail.
	for i := len(metas) - 1; i >= 0; i-- {
		path, _, err := s.find(metas[i].ID)
		if err != nil {
			continue
		}
		os.Remove(path)
		os.Remove(path + ".json")
		s.logger.Warn("evicted clip for quota", "id", metas[i].ID)

		pct, err = s.usage(s.dir)
		if err != nil || pct <= s.quotaPct {
			return nil
		}
	}
	return ErrStorageFull
}
