package refstore

import (
	"context"
	"image"
	"image/color"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func solid(c color.RGBA) image.Image {
	img := image.NewRGBA(image.Rect(0, 0, 8, 6))
	for y := 0; y < 6; y++ {
		for x := 0; x < 8; x++ {
			img.SetRGBA(x, y, c)
		}
	}
	return img
}

func fixedClock(ts time.Time) func() time.Time {
	return func() time.Time { return ts }
}

func TestValidateKey(t *testing.T) {
	tests := []struct {
		key     string
		wantErr bool
	}{
		{"student-42", false},
		{"s1", false},
		{"jane.doe@uni.edu", false},
		{"front", false},
		{"", true},
		{"has_underscore", true},
		{"../etc", true},
		{"a/b", true},
		{`a\b`, true},
		{".hidden", true},
		{"with space", true},
		{string(make([]byte, 129)), true},
	}

	for _, tt := range tests {
		t.Run(tt.key, func(t *testing.T) {
			err := ValidateKey(tt.key)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalidKey)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestFileStore_SaveAndOpen(t *testing.T) {
	dir := t.TempDir()
	ts := time.Date(2024, 5, 6, 7, 8, 9, 500, time.UTC)
	store, err := NewFileStore(dir, WithClock(fixedClock(ts)))
	require.NoError(t, err)

	ref, err := store.Save(context.Background(), "s1", "front", solid(color.RGBA{R: 200, A: 255}))
	require.NoError(t, err)

	assert.Equal(t, "s1_front_20240506_070809.png", ref.Filename)
	assert.Equal(t, "s1", ref.StudentID)
	assert.Equal(t, "front", ref.View)
	assert.Equal(t, ts.Truncate(time.Second), ref.Timestamp)
	assert.Equal(t, filepath.Join(dir, ref.Filename), ref.Path)

	info, err := os.Stat(ref.Path)
	require.NoError(t, err)
	assert.Equal(t, info.Size(), ref.Size)

	img, err := store.Open(context.Background(), *ref)
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 8, 6), img.Bounds())
	r, _, _, _ := img.At(3, 3).RGBA()
	assert.Equal(t, uint32(200)<<8|200, r)

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temporary files are cleaned up")
}

func TestFileStore_SaveRejectsInvalidKeys(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	_, err = store.Save(context.Background(), "bad_id", "front", solid(color.RGBA{A: 255}))
	assert.ErrorIs(t, err, ErrInvalidKey)

	_, err = store.Save(context.Background(), "s1", "../front", solid(color.RGBA{A: 255}))
	assert.ErrorIs(t, err, ErrInvalidKey)
}

func TestFileStore_List(t *testing.T) {
	dir := t.TempDir()
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store, err := NewFileStore(dir, WithClock(func() time.Time { return clock }))
	require.NoError(t, err)

	ctx := context.Background()
	save := func(student, view string) {
		_, err := store.Save(ctx, student, view, solid(color.RGBA{G: 100, A: 255}))
		require.NoError(t, err)
		clock = clock.Add(time.Minute)
	}

	save("s1", "left")
	save("s1", "front")
	save("s1", "front")
	save("s10", "front")
	save("s2", "front")

	// foreign files are ignored
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s1_notes.txt"), []byte("x"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "s1_front_garbage.png"), []byte("x"), 0o644))
	require.NoError(t, os.Mkdir(filepath.Join(dir, "s1_dir_20240101_120000.png"), 0o755))

	refs, err := store.List(ctx, "s1")
	require.NoError(t, err)
	require.Len(t, refs, 3)

	assert.Equal(t, "front", refs[0].View)
	assert.Equal(t, "front", refs[1].View)
	assert.True(t, refs[0].Timestamp.Before(refs[1].Timestamp))
	assert.Equal(t, "left", refs[2].View)
	for _, ref := range refs {
		assert.Equal(t, "s1", ref.StudentID)
		assert.Positive(t, ref.Size)
		assert.NotEmpty(t, ref.Path)
	}
}

func TestFileStore_ListEmpty(t *testing.T) {
	store, err := NewFileStore(t.TempDir())
	require.NoError(t, err)

	refs, err := store.List(context.Background(), "nobody")
	require.NoError(t, err)
	assert.NotNil(t, refs)
	assert.Empty(t, refs)
}

func TestFileStore_ListMissingDirectory(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "refs")
	store, err := NewFileStore(dir)
	require.NoError(t, err)
	require.NoError(t, os.RemoveAll(dir))

	refs, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	assert.Empty(t, refs)
}

func TestFileStore_OpenCorrupt(t *testing.T) {
	dir := t.TempDir()
	store, err := NewFileStore(dir)
	require.NoError(t, err)

	name := "s1_front_20240101_120000.png"
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte("not a png"), 0o644))

	refs, err := store.List(context.Background(), "s1")
	require.NoError(t, err)
	require.Len(t, refs, 1)

	_, err = store.Open(context.Background(), refs[0])
	assert.Error(t, err)
	assert.Contains(t, err.Error(), name)
}

func TestParseFilename(t *testing.T) {
	ref, ok := parseFilename("s1_front_20240506_070809.png")
	require.True(t, ok)
	assert.Equal(t, "s1", ref.StudentID)
	assert.Equal(t, "front", ref.View)
	assert.Equal(t, time.Date(2024, 5, 6, 7, 8, 9, 0, time.UTC), ref.Timestamp)

	for _, bad := range []string{
		"s1_front_20240506_070809.jpg",
		"s1_front.png",
		"s1_front_x_y.png",
		"s1_front_extra_20240506_070809.png",
	} {
		_, ok := parseFilename(bad)
		assert.False(t, ok, bad)
	}
}
