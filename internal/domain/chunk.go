package domain

import (
	"fmt"
	"net/url"
	"path"
	"strings"
)

const (
	// ChunkSize is the default byte size of one chunk (2 GiB)
	ChunkSize int64 = 1024 * 1024 * 1024 * 2

	// ZimExtension is the extension of a finished archive
	ZimExtension = ".zim"

	// PartExtension marks a file that is still being written
	PartExtension = ".part"

	// ChunkPartExtension is appended to every chunk target while it is downloading
	ChunkPartExtension = ".part.part"

	suffixAlphabet = "abcdefghijklmnopqrstuvwxyz"

	// SuffixCount is the number of addressable chunks per book (aa..zz)
	SuffixCount = len(suffixAlphabet) * len(suffixAlphabet)
)

// Suffix returns the two-letter chunk suffix for position i (0 -> "aa", 27 -> "bb").
// It returns an empty string when i is out of range.
func Suffix(i int) string {
	if i < 0 || i >= SuffixCount {
		return ""
	}
	n := len(suffixAlphabet)
	return string([]byte{suffixAlphabet[i/n], suffixAlphabet[i%n]})
}

// EachSuffix calls fn with every suffix in order until fn returns false.
// Every call walks the sequence from "aa" again.
func EachSuffix(fn func(i int, suffix string) bool) {
	for i := 0; i < SuffixCount; i++ {
		if !fn(i, Suffix(i)) {
			return
		}
	}
}

// SuffixIndex returns the position of a two-letter suffix, or -1
func SuffixIndex(suffix string) int {
	if len(suffix) != 2 {
		return -1
	}
	first := strings.IndexByte(suffixAlphabet, suffix[0])
	second := strings.IndexByte(suffixAlphabet, suffix[1])
	if first < 0 || second < 0 {
		return -1
	}
	return first*len(suffixAlphabet) + second
}

// Chunk is one HTTP byte range of a split download
type Chunk struct {
	RangeStart     int64  `json:"range_start"`
	RangeEnd       int64  `json:"range_end"`
	OpenEnded      bool   `json:"open_ended"`
	FileName       string `json:"file_name"`
	URL            string `json:"url"`
	ContentLength  int64  `json:"content_length"`
	NotificationID int    `json:"notification_id"`
}

// RangeHeader returns the byte range in "start-end" or "start-" form
func (c Chunk) RangeHeader() string {
	if c.OpenEnded {
		return fmt.Sprintf("%d-", c.RangeStart)
	}
	return fmt.Sprintf("%d-%d", c.RangeStart, c.RangeEnd)
}

// FinalName returns the chunk file name once the download markers are stripped
func (c Chunk) FinalName() string {
	return strings.TrimSuffix(c.FileName, ChunkPartExtension)
}

// ChunkPlanner splits a download into fixed size chunks
type ChunkPlanner struct {
	ChunkSize int64
}

// NewChunkPlanner creates a planner; a non-positive size falls back to ChunkSize
func NewChunkPlanner(chunkSize int64) ChunkPlanner {
	if chunkSize <= 0 {
		chunkSize = ChunkSize
	}
	return ChunkPlanner{ChunkSize: chunkSize}
}

// ComputeChunks plans chunks with the default chunk size
func ComputeChunks(rawURL string, contentLength int64, notificationID int) []Chunk {
	return NewChunkPlanner(ChunkSize).ComputeChunks(rawURL, contentLength, notificationID)
}

// ComputeChunks returns the ordered chunk list for a download of contentLength bytes.
// Consecutive chunk starts are ChunkSize+1 apart and each bounded range is inclusive.
func (p ChunkPlanner) ComputeChunks(rawURL string, contentLength int64, notificationID int) []Chunk {
	names := p.ChunkFileNames(FileNameFromURL(rawURL), p.ChunkCount(contentLength))
	chunks := make([]Chunk, 0, len(names))

	var current int64
	for i, name := range names {
		chunk := Chunk{
			RangeStart:     current,
			FileName:       name,
			URL:            rawURL,
			ContentLength:  contentLength,
			NotificationID: notificationID,
		}
		// the last addressable chunk absorbs any remainder past 676 chunks
		if current+p.ChunkSize >= contentLength || i == len(names)-1 {
			chunk.OpenEnded = true
			chunk.RangeEnd = contentLength
		} else {
			chunk.RangeEnd = current + p.ChunkSize
		}
		chunks = append(chunks, chunk)
		current += p.ChunkSize + 1
	}
	return chunks
}

// ChunkCount returns ceil(contentLength / ChunkSize), zero for empty content
func (p ChunkPlanner) ChunkCount(contentLength int64) int {
	if contentLength <= 0 {
		return 0
	}
	count := contentLength / p.ChunkSize
	if contentLength%p.ChunkSize > 0 {
		count++
	}
	if count > int64(SuffixCount) {
		count = int64(SuffixCount)
	}
	return int(count)
}

// ChunkFileNames returns the target file names for count chunks of fileName
func (p ChunkPlanner) ChunkFileNames(fileName string, count int) []string {
	if count <= 0 {
		return nil
	}
	if count == 1 {
		return []string{fileName + ChunkPartExtension}
	}

	baseName := fileName
	if pos := strings.LastIndex(fileName, "."); pos > 0 {
		baseName = fileName[:pos]
	}

	names := make([]string, count)
	for i := 0; i < count; i++ {
		names[i] = baseName + ZimExtension + Suffix(i) + ChunkPartExtension
	}
	return names
}

// NominalFileName returns the name a finished download is known by:
// "<name>" for a single chunk and "<base>.zimaa" for split downloads
func (p ChunkPlanner) NominalFileName(rawURL string, contentLength int64) string {
	names := p.ChunkFileNames(FileNameFromURL(rawURL), p.ChunkCount(contentLength))
	if len(names) == 0 {
		return FileNameFromURL(rawURL)
	}
	return strings.TrimSuffix(names[0], ChunkPartExtension)
}

// FileNameFromURL returns the last path segment of a URL
func FileNameFromURL(rawURL string) string {
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Path != "" {
		p = u.Path
	}
	name := path.Base(p)
	if name == "." || name == "/" {
		return ""
	}
	return name
}
