package cache

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrackIDDeterministic(t *testing.T) {
	k := ContentKey{Prompt: "lofi hip hop", Seed: 42, DurationSec: 10, ModelVersion: "v1", Backend: "ar"}

	id1 := TrackID(k)
	id2 := TrackID(k)

	require.Equal(t, id1, id2)
	require.Len(t, id1, 16)
}

func TestTrackIDVariesWithContent(t *testing.T) {
	base := ContentKey{Prompt: "lofi hip hop", Seed: 42, DurationSec: 10, ModelVersion: "v1", Backend: "ar"}
	variant := base
	variant.Seed = 43

	require.NotEqual(t, TrackID(base), TrackID(variant))
}

func TestPutAndGetRoundTrip(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, 0, 0)
	require.NoError(t, err)

	track := Track{
		TrackID:     "abc1234567890def",
		Prompt:      "lofi",
		DurationSec: 10,
		SampleRate:  32000,
		Seed:        1,
		Backend:     "ar",
	}

	written, err := c.Put(track, []byte("RIFF....WAVEfmt "))
	require.NoError(t, err)
	require.FileExists(t, written.Path)

	got, ok := c.Get("abc1234567890def")
	require.True(t, ok)
	require.Equal(t, track.Prompt, got.Prompt)

	sidecarPath := filepath.Join(dir, "tracks", "abc1234567890def.json")
	require.FileExists(t, sidecarPath)
}

func TestGetMissReturnsFalse(t *testing.T) {
	c, err := Open(t.TempDir(), 0, 0)
	require.NoError(t, err)

	_, ok := c.Get("doesnotexist")
	require.False(t, ok)
}

func TestOpenRebuildsIndexFromSidecars(t *testing.T) {
	dir := t.TempDir()

	c1, err := Open(dir, 0, 0)
	require.NoError(t, err)

	_, err = c1.Put(Track{TrackID: "track0000000001", Prompt: "a"}, []byte("wav"))
	require.NoError(t, err)

	c2, err := Open(dir, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 1, c2.Len())

	got, ok := c2.Get("track0000000001")
	require.True(t, ok)
	require.Equal(t, "a", got.Prompt)
}

func TestOpenSkipsOrphanedSidecar(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(dir, "tracks"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "tracks", "orphan.json"), []byte(`{"track_id":"orphan"}`), 0o644))

	c, err := Open(dir, 0, 0)
	require.NoError(t, err)
	require.Equal(t, 0, c.Len())
}

func TestRemoveDeletesFilesAndIndex(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, 0, 0)
	require.NoError(t, err)

	track, err := c.Put(Track{TrackID: "removeme00000001"}, []byte("wav"))
	require.NoError(t, err)

	require.NoError(t, c.Remove("removeme00000001"))

	_, ok := c.Get("removeme00000001")
	require.False(t, ok)
	require.NoFileExists(t, track.Path)
}

func TestEvictByCountCeiling(t *testing.T) {
	dir := t.TempDir()

	c, err := Open(dir, 0, 2)
	require.NoError(t, err)

	for i := 0; i < 3; i++ {
		id := string(rune('a'+i)) + "00000000000000"
		_, err := c.Put(Track{TrackID: id}, []byte("wavwavwav"))
		require.NoError(t, err)
		time.Sleep(time.Millisecond)
	}

	require.LessOrEqual(t, c.Len(), 2)
}

func TestEvictBySizeCeilingKeepsMostRecentlyAccessed(t *testing.T) {
	dir := t.TempDir()

	// 1 MB ceiling with 400 KB entries: two fit, a third pushes the total
	// over the ceiling and forces exactly one eviction.
	c, err := Open(dir, 1, 0)
	require.NoError(t, err)

	chunk := make([]byte, 400*1024)

	_, err = c.Put(Track{TrackID: "oldest0000000001"}, chunk)
	require.NoError(t, err)

	time.Sleep(time.Millisecond)
	_, err = c.Put(Track{TrackID: "middle0000000002"}, chunk)
	require.NoError(t, err)

	// Touch the oldest entry so the middle one becomes the
	// least-recently-accessed entry.
	time.Sleep(time.Millisecond)
	_, ok := c.Get("oldest0000000001")
	require.True(t, ok)

	time.Sleep(time.Millisecond)
	_, err = c.Put(Track{TrackID: "newest0000000003"}, chunk)
	require.NoError(t, err)

	// Total size now exceeds 1MB; eviction drops the least-recently-accessed
	// entry (the middle one), not the oldest-written one.
	require.Equal(t, 2, c.Len())

	_, ok = c.Get("middle0000000002")
	require.False(t, ok)

	_, ok = c.Get("oldest0000000001")
	require.True(t, ok)
}
