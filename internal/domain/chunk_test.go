package domain

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testURL = "http://mirror.download.kiwix.org/zim/TestFileName.xml"

func TestSuffix(t *testing.T) {
	assert.Equal(t, "aa", Suffix(0))
	assert.Equal(t, "ab", Suffix(1))
	assert.Equal(t, "az", Suffix(25))
	assert.Equal(t, "ba", Suffix(26))
	assert.Equal(t, "bb", Suffix(27))
	assert.Equal(t, "zz", Suffix(SuffixCount-1))
	assert.Empty(t, Suffix(-1))
	assert.Empty(t, Suffix(SuffixCount))
	assert.Equal(t, 676, SuffixCount)
}

func TestSuffixIndex(t *testing.T) {
	for i := 0; i < SuffixCount; i++ {
		assert.Equal(t, i, SuffixIndex(Suffix(i)))
	}
	assert.Equal(t, -1, SuffixIndex("a"))
	assert.Equal(t, -1, SuffixIndex("a1"))
	assert.Equal(t, -1, SuffixIndex("AA"))
}

func TestEachSuffix(t *testing.T) {
	var all []string
	EachSuffix(func(i int, suffix string) bool {
		assert.Equal(t, Suffix(i), suffix)
		all = append(all, suffix)
		return true
	})
	require.Len(t, all, SuffixCount)
	for i := 1; i < len(all); i++ {
		assert.Less(t, all[i-1], all[i])
	}

	// restartable and stoppable
	var firstThree []string
	EachSuffix(func(i int, suffix string) bool {
		firstThree = append(firstThree, suffix)
		return i < 2
	})
	assert.Equal(t, []string{"aa", "ab", "ac"}, firstThree)
}

func TestComputeChunks_SingleChunk(t *testing.T) {
	chunks := ComputeChunks(testURL, 1024*1024, 7)

	require.Len(t, chunks, 1)
	chunk := chunks[0]
	assert.Equal(t, "TestFileName.xml.part.part", chunk.FileName)
	assert.Equal(t, "TestFileName.xml", chunk.FinalName())
	assert.Equal(t, "0-", chunk.RangeHeader())
	assert.True(t, chunk.OpenEnded)
	assert.Equal(t, testURL, chunk.URL)
	assert.Equal(t, int64(1024*1024), chunk.ContentLength)
	assert.Equal(t, 7, chunk.NotificationID)
}

func TestComputeChunks_MultipleChunks(t *testing.T) {
	size := ChunkSize*5 + 1024*1024
	chunks := ComputeChunks(testURL, size, 0)

	require.Len(t, chunks, 6)
	for i, chunk := range chunks {
		assert.Equal(t, "TestFileName.zim"+Suffix(i)+".part.part", chunk.FileName)
	}
	assert.Equal(t, "0-2147483648", chunks[0].RangeHeader())
	assert.Equal(t, "10737418245-", chunks[5].RangeHeader())
	assert.Equal(t, "TestFileName.zimaa", chunks[0].FinalName())
}

func TestComputeChunks_Count(t *testing.T) {
	tests := []struct {
		name          string
		contentLength int64
		expected      int
	}{
		{"empty", 0, 0},
		{"negative", -1, 0},
		{"one byte", 1, 1},
		{"exact chunk", ChunkSize, 1},
		{"chunk plus one", ChunkSize + 1, 2},
		{"exact multiple", ChunkSize * 3, 3},
		{"two chunks and change", ChunkSize*2 + 100, 3},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			chunks := ComputeChunks("http://x/y.zim", tt.contentLength, 1)
			assert.Len(t, chunks, tt.expected)
		})
	}
}

func TestComputeChunks_ContiguousRanges(t *testing.T) {
	planner := NewChunkPlanner(10)

	for _, length := range []int64{11, 25, 57, 100, 999} {
		chunks := planner.ComputeChunks("http://x/y.zim", length, 0)
		require.NotEmpty(t, chunks)

		assert.Equal(t, int64(0), chunks[0].RangeStart)
		for i := 0; i < len(chunks)-1; i++ {
			if chunks[i].OpenEnded {
				continue
			}
			assert.Equal(t, chunks[i].RangeEnd+1, chunks[i+1].RangeStart, "length %d chunk %d", length, i)
		}
		last := chunks[len(chunks)-1]
		assert.True(t, last.OpenEnded)
		assert.True(t, strings.HasSuffix(last.RangeHeader(), "-"))
	}
}

func TestComputeChunks_UniqueOrderedNames(t *testing.T) {
	planner := NewChunkPlanner(1)
	chunks := planner.ComputeChunks("http://x/y.zim", int64(SuffixCount), 0)
	require.Len(t, chunks, SuffixCount)

	seen := make(map[string]bool)
	for i, chunk := range chunks {
		assert.False(t, seen[chunk.FileName], chunk.FileName)
		seen[chunk.FileName] = true
		if i > 0 {
			assert.Less(t, chunks[i-1].FileName, chunk.FileName)
		}
	}
}

func TestComputeChunks_CapsAtLastSuffix(t *testing.T) {
	planner := NewChunkPlanner(1)
	chunks := planner.ComputeChunks("http://x/y.zim", int64(SuffixCount)*3, 0)

	require.Len(t, chunks, SuffixCount)
	last := chunks[len(chunks)-1]
	assert.Equal(t, "y.zimzz.part.part", last.FileName)
	assert.True(t, last.OpenEnded)
}

func TestComputeChunks_EndToEnd(t *testing.T) {
	chunks := ComputeChunks("http://x/y.zim", ChunkSize*2+100, 1)

	require.Len(t, chunks, 3)
	assert.Equal(t, "y.zimaa.part.part", chunks[0].FileName)
	assert.Equal(t, "y.zimab.part.part", chunks[1].FileName)
	assert.Equal(t, "y.zimac.part.part", chunks[2].FileName)

	assert.Equal(t, "0-2147483648", chunks[0].RangeHeader())
	assert.Equal(t, "2147483649-4294967297", chunks[1].RangeHeader())
	assert.Equal(t, "4294967298-", chunks[2].RangeHeader())
}

func TestNewChunkPlanner_DefaultSize(t *testing.T) {
	assert.Equal(t, ChunkSize, NewChunkPlanner(0).ChunkSize)
	assert.Equal(t, ChunkSize, NewChunkPlanner(-5).ChunkSize)
	assert.Equal(t, int64(42), NewChunkPlanner(42).ChunkSize)
}

func TestNominalFileName(t *testing.T) {
	planner := NewChunkPlanner(10)

	assert.Equal(t, "y.zim", planner.NominalFileName("http://x/y.zim", 5))
	assert.Equal(t, "y.zimaa", planner.NominalFileName("http://x/y.zim", 25))
	assert.Equal(t, "y.zim", planner.NominalFileName("http://x/y.zim", 0))
}

func TestFileNameFromURL(t *testing.T) {
	tests := []struct {
		url      string
		expected string
	}{
		{"http://x/y.zim", "y.zim"},
		{"https://download.kiwix.org/zim/wikipedia_en_all.zim?mirror=1", "wikipedia_en_all.zim"},
		{"wikipedia.zim", "wikipedia.zim"},
		{"http://x/", ""},
		{"", ""},
	}

	for _, tt := range tests {
		t.Run(tt.url, func(t *testing.T) {
			assert.Equal(t, tt.expected, FileNameFromURL(tt.url))
		})
	}
}
