package zimfile

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/afero"

	"github.com/yourusername/zimshelf/internal/domain"
)

// MagicNumber opens every ZIM archive
const MagicNumber uint32 = 72173914

// ErrNotZim is returned when a file does not start with a ZIM header
var ErrNotZim = errors.New("not a zim archive")

// Header is the fixed 80 byte preamble of a ZIM archive
type Header struct {
	MagicNumber   uint32
	MajorVersion  uint16
	MinorVersion  uint16
	UUID          [16]byte
	ArticleCount  uint32
	ClusterCount  uint32
	URLPtrPos     uint64
	TitlePtrPos   uint64
	ClusterPtrPos uint64
	MimeListPos   uint64
	MainPage      uint32
	LayoutPage    uint32
	ChecksumPos   uint64
}

// ID returns the archive UUID
func (h Header) ID() uuid.UUID {
	return uuid.UUID(h.UUID)
}

// ReadHeader decodes the header of the archive at path
func ReadHeader(fs afero.Fs, path string) (*Header, error) {
	f, err := fs.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open archive: %w", err)
	}
	defer f.Close()

	var h Header
	if err := binary.Read(f, binary.LittleEndian, &h); err != nil {
		if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
			return nil, ErrNotZim
		}
		return nil, fmt.Errorf("failed to read header: %w", err)
	}
	if h.MagicNumber != MagicNumber {
		return nil, ErrNotZim
	}
	return &h, nil
}

// BookFromFile builds catalog metadata for an archive found on disk. The
// book id is the archive UUID, or a stable name-based UUID of the path when
// the header cannot be read.
func (l *Locator) BookFromFile(path string) domain.Book {
	name := filepath.Base(path)
	title := strings.TrimSuffix(strings.TrimSuffix(name, domain.Suffix(0)), domain.ZimExtension)

	book := domain.Book{
		Title: title,
		Name:  title,
		Size:  strconv.FormatInt(l.SizeOnDisk(path)/1024, 10),
	}

	header, err := ReadHeader(l.fs, path)
	if err != nil {
		book.ID = uuid.NewSHA1(uuid.NameSpaceURL, []byte("file://"+path)).String()
		return book
	}
	book.ID = header.ID().String()
	book.ArticleCount = strconv.FormatUint(uint64(header.ArticleCount), 10)
	return book
}
