package clips

import (
	"errors"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func noUsage(string) (float64, error) { return 0, nil }

func testMeta(id string, ts time.Time) Metadata {
	return Metadata{
		ID:          id,
		Timestamp:   ts,
		DurationSec: 4,
		Frames:      3,
		TrackID:     7,
		Confidence:  0.82,
	}
}

func TestStoreSaveListOpen(t *testing.T) {
	s, err := NewStore(t.TempDir(), 90, noUsage)
	require.NoError(t, err)

	ts := time.Date(2026, 8, 26, 10, 15, 30, 0, time.UTC)
	id := NewID()
	frames := [][]byte{{0xff, 0xd8, 1}, {0xff, 0xd8, 2}, {0xff, 0xd8, 3}}
	require.NoError(t, s.Save(testMeta(id, ts), frames))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.Equal(t, id, list[0].ID)
	assert.Equal(t, 4.0, list[0].DurationSec)

	f, meta, err := s.Open(id)
	require.NoError(t, err)
	defer f.Close()
	assert.Equal(t, uint32(7), meta.TrackID)

	raw, err := io.ReadAll(f)
	require.NoError(t, err)
	assert.Len(t, raw, 9) // three 3-byte frames concatenated
}

func TestStoreListNewestFirst(t *testing.T) {
	s, err := NewStore(t.TempDir(), 90, noUsage)
	require.NoError(t, err)

	base := time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)
	old := NewID()
	newer := NewID()
	require.NoError(t, s.Save(testMeta(old, base), [][]byte{{1}}))
	require.NoError(t, s.Save(testMeta(newer, base.Add(time.Hour)), [][]byte{{2}}))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, newer, list[0].ID)
	assert.Equal(t, old, list[1].ID)
}

func TestStoreOpenUnknownID(t *testing.T) {
	s, err := NewStore(t.TempDir(), 90, noUsage)
	require.NoError(t, err)

	_, _, err = s.Open("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreQuotaEvictsOldestFirst(t *testing.T) {
	// Usage stays over quota until one clip is gone.
	var stored int
	usage := func(string) (float64, error) {
		if stored > 2 {
			return 95, nil
		}
		return 50, nil
	}
	s, err := NewStore(t.TempDir(), 90, usage)
	require.NoError(t, err)

	base := time.Date(2026, 8, 26, 8, 0, 0, 0, time.UTC)
	ids := make([]string, 3)
	for i := range ids {
		ids[i] = NewID()
		require.NoError(t, s.Save(testMeta(ids[i], base.Add(time.Duration(i)*time.Hour)), [][]byte{{1}}))
		stored++
	}

	// The next save finds the disk over quota and evicts the oldest.
	stored = 3
	evictOne := func(string) (float64, error) {
		list, _ := s.List()
		if len(list) >= 3 {
			return 95, nil
		}
		return 50, nil
	}
	s.usage = evictOne

	fresh := NewID()
	require.NoError(t, s.Save(testMeta(fresh, base.Add(4*time.Hour)), [][]byte{{9}}))

	list, err := s.List()
	require.NoError(t, err)
	require.Len(t, list, 3)
	for _, m := range list {
		assert.NotEqual(t, ids[0], m.ID, "oldest clip should have been evicted")
	}
	_, _, err = s.Open(ids[0])
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestStoreSaveStorageFull(t *testing.T) {
	// Always over quota, nothing to evict: save must refuse.
	full := func(string) (float64, error) { return 99, nil }
	s, err := NewStore(t.TempDir(), 90, full)
	require.NoError(t, err)

	err = s.Save(testMeta(NewID(), time.Now()), [][]byte{{1}})
	assert.ErrorIs(t, err, ErrStorageFull)
}

func TestStoreUsageErrorDoesNotBlockRecording(t *testing.T) {
	broken := func(string) (float64, error) { return 0, errors.New("statfs broken") }
	s, err := NewStore(t.TempDir(), 90, broken)
	require.NoError(t, err)

	assert.NoError(t, s.Save(testMeta(NewID(), time.Now()), [][]byte{{1}}))
}

func TestStoreCountSince(t *testing.T) {
	s, err := NewStore(t.TempDir(), 90, noUsage)
	require.NoError(t, err)

	base := time.Date(2026, 8, 26, 0, 0, 0, 0, time.UTC)
	require.NoError(t, s.Save(testMeta(NewID(), base.Add(-2*time.Hour)), [][]byte{{1}}))
	require.NoError(t, s.Save(testMeta(NewID(), base.Add(time.Hour)), [][]byte{{1}}))
	require.NoError(t, s.Save(testMeta(NewID(), base.Add(2*time.Hour)), [][]byte{{1}}))

	assert.Equal(t, 2, s.CountSince(base))
}
