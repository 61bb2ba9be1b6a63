package zimfile

import (
	"bytes"
	"encoding/binary"
	"testing"

	"github.com/google/uuid"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func setupTestLocator(t *testing.T, files ...string) *Locator {
	t.Helper()
	fs := afero.NewMemMapFs()
	for _, f := range files {
		require.NoError(t, afero.WriteFile(fs, f, []byte("data"), 0644))
	}
	return NewLocator(fs, nil)
}

func TestAllParts_SingleFile(t *testing.T) {
	locator := setupTestLocator(t, "/books/y.zim")
	assert.Equal(t, []string{"/books/y.zim"}, locator.AllParts("/books/y.zim"))

	locator = setupTestLocator(t, "/books/y.zim.part")
	assert.Equal(t, []string{"/books/y.zim.part"}, locator.AllParts("/books/y.zim"))
}

func TestAllParts_SingleFileMissing(t *testing.T) {
	locator := setupTestLocator(t)
	assert.Equal(t, []string{"/books/y.zim.part"}, locator.AllParts("/books/y.zim"))
}

func TestAllParts_Chunks(t *testing.T) {
	locator := setupTestLocator(t,
		"/books/y.zimaa",
		"/books/y.zimab",
		"/books/y.zimac.part",
	)

	assert.Equal(t, []string{
		"/books/y.zimaa",
		"/books/y.zimab",
		"/books/y.zimac.part",
	}, locator.AllParts("/books/y.zimaa"))
	assert.True(t, locator.HasPart("/books/y.zimaa"))
}

func TestAllParts_StopsAtFirstGap(t *testing.T) {
	locator := setupTestLocator(t,
		"/books/y.zimaa",
		"/books/y.zimac",
	)

	assert.Equal(t, []string{"/books/y.zimaa"}, locator.AllParts("/books/y.zimaa"))
}

func TestAllParts_AllChunksComplete(t *testing.T) {
	locator := setupTestLocator(t,
		"/books/y.zimaa",
		"/books/y.zimab",
		"/books/y.zimac",
	)

	assert.Len(t, locator.AllParts("/books/y.zimaa"), 3)
	assert.False(t, locator.HasPart("/books/y.zimaa"))
}

// Two finished chunks and a missing third: the scan stops at "ac" before it
// ever sees a ".part" file, so no incomplete part is reported.
func TestHasPart_EndToEndMissingLastChunk(t *testing.T) {
	locator := setupTestLocator(t,
		"/books/y.zimaa",
		"/books/y.zimab",
	)

	assert.Equal(t, []string{"/books/y.zimaa", "/books/y.zimab"}, locator.AllParts("/books/y.zimaa"))
	assert.False(t, locator.HasPart("/books/y.zimaa"))
}

func TestHasPart_SingleFile(t *testing.T) {
	locator := setupTestLocator(t, "/books/done.zim", "/books/running.zim.part")

	assert.False(t, locator.HasPart("/books/done.zim"))
	assert.True(t, locator.HasPart("/books/running.zim"))
	assert.False(t, locator.HasPart("/books/missing.zim"))
}

func TestHasPart_ResolvesFirstChunk(t *testing.T) {
	locator := setupTestLocator(t, "/books/y.zimaa", "/books/y.zimab.part")

	// "/books/y.zim" does not exist, so the first chunk name is probed
	assert.Equal(t, "/books/y.zimaa", locator.FileName("/books/y.zim"))
	assert.True(t, locator.HasPart("/books/y.zim"))
}

func TestFileName(t *testing.T) {
	locator := setupTestLocator(t, "/books/a.zim", "/books/b.zim.part")

	assert.Equal(t, "/books/a.zim", locator.FileName("/books/a.zim"))
	assert.Equal(t, "/books/b.zim.part", locator.FileName("/books/b.zim"))
	assert.Equal(t, "/books/c.zimaa", locator.FileName("/books/c.zim"))
}

func TestSizeOnDisk(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/books/y.zimaa", make([]byte, 100), 0644))
	require.NoError(t, afero.WriteFile(fs, "/books/y.zimab.part", make([]byte, 40), 0644))
	require.NoError(t, afero.WriteFile(fs, "/books/y.zimad", make([]byte, 1000), 0644))
	locator := NewLocator(fs, nil)

	assert.Equal(t, int64(140), locator.SizeOnDisk("/books/y.zimaa"))
	assert.Equal(t, int64(0), locator.SizeOnDisk("/books/none.zim"))
}

func TestDeleteZimFile_Chunks(t *testing.T) {
	locator := setupTestLocator(t,
		"/books/y.zimaa",
		"/books/y.zimab",
		"/books/y.zimac.part",
		"/books/y.zimad.part.part",
		"/books/other.zim",
	)

	require.NoError(t, locator.DeleteZimFile("/books/y.zimaa"))

	for _, f := range []string{"/books/y.zimaa", "/books/y.zimab", "/books/y.zimac.part", "/books/y.zimad.part.part"} {
		assert.False(t, locator.Exists(f), f)
	}
	assert.True(t, locator.Exists("/books/other.zim"))
}

func TestDeleteZimFile_SingleFile(t *testing.T) {
	locator := setupTestLocator(t, "/books/y.zim", "/books/y.zim.part.part")

	require.NoError(t, locator.DeleteZimFile("/books/y.zim.part.part"))

	assert.False(t, locator.Exists("/books/y.zim"))
	assert.False(t, locator.Exists("/books/y.zim.part.part"))
}

func TestDeleteZimFile_Missing(t *testing.T) {
	locator := setupTestLocator(t)
	assert.NoError(t, locator.DeleteZimFile("/books/none.zim"))
	assert.NoError(t, locator.DeleteZimFile("/books/none.zimaa"))
}

func TestIsValidZimFile(t *testing.T) {
	assert.True(t, IsValidZimFile("/books/a.zim"))
	assert.True(t, IsValidZimFile("/books/a.zimaa"))
	assert.False(t, IsValidZimFile("/books/a.zimab"))
	assert.False(t, IsValidZimFile("/books/a.zim.part"))
	assert.False(t, IsValidZimFile("/books/a.txt"))
}

func TestScan(t *testing.T) {
	locator := setupTestLocator(t,
		"/books/a.zim",
		"/books/c.txt",
		"/books/d.zim.part",
		"/books/sub/b.zimaa",
		"/books/sub/b.zimab",
	)

	found, err := locator.Scan("/books")
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"/books/a.zim", "/books/sub/b.zimaa"}, found)
}

func writeHeader(t *testing.T, fs afero.Fs, path string, id uuid.UUID) {
	t.Helper()
	h := Header{
		MagicNumber:  MagicNumber,
		MajorVersion: 6,
		MinorVersion: 1,
		UUID:         id,
		ArticleCount: 1234,
	}
	var buf bytes.Buffer
	require.NoError(t, binary.Write(&buf, binary.LittleEndian, h))
	require.Equal(t, 80, buf.Len())
	require.NoError(t, afero.WriteFile(fs, path, buf.Bytes(), 0644))
}

func TestBookFromFile(t *testing.T) {
	fs := afero.NewMemMapFs()
	id := uuid.New()
	writeHeader(t, fs, "/books/wikipedia_en.zim", id)
	locator := NewLocator(fs, nil)

	book := locator.BookFromFile("/books/wikipedia_en.zim")

	assert.Equal(t, id.String(), book.ID)
	assert.Equal(t, "wikipedia_en", book.Title)
	assert.Equal(t, "1234", book.ArticleCount)
}

func TestBookFromFile_NotZim(t *testing.T) {
	locator := setupTestLocator(t, "/books/broken.zimaa")

	book := locator.BookFromFile("/books/broken.zimaa")
	again := locator.BookFromFile("/books/broken.zimaa")

	assert.Equal(t, "broken", book.Title)
	assert.NotEmpty(t, book.ID)
	assert.Equal(t, book.ID, again.ID)
}

func TestReadHeader_BadMagic(t *testing.T) {
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/x.zim", make([]byte, 80), 0644))

	_, err := ReadHeader(fs, "/x.zim")
	assert.ErrorIs(t, err, ErrNotZim)
}
