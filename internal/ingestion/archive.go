package ingestion

import (
	"archive/zip"
	"errors"
	"fmt"
	"io"
	"iter"
)

// ErrCorruptArchive means the container could not be parsed as a ZIP.
var ErrCorruptArchive = errors.New("corrupted archive")

// ArchiveEntry is one image file inside an archive. Name is the full entry
// path and is used for display only.
type ArchiveEntry struct {
	Name string
	Size int64
	file *zip.File
}

// Open returns a reader over the decompressed entry. Reads fail with
// zip.ErrChecksum if the stored CRC does not match.
func (e ArchiveEntry) Open() (io.ReadCloser, error) {
	return e.file.Open()
}

// Archive is a parsed ZIP container.
type Archive struct {
	reader *zip.Reader
}

// OpenArchive parses the central directory of r. Format problems wrap
// ErrCorruptArchive; any other error is returned as is.
func OpenArchive(r io.ReaderAt, size int64) (*Archive, error) {
	zr, err := zip.NewReader(r, size)
	if err != nil && !errors.Is(err, zip.ErrInsecurePath) {
		if isFormatError(err) {
			return nil, fmt.Errorf("%w: %v", ErrCorruptArchive, err)
		}
		return nil, err
	}
	return &Archive{reader: zr}, nil
}

func isFormatError(err error) bool {
	return errors.Is(err, zip.ErrFormat) ||
		errors.Is(err, zip.ErrAlgorithm) ||
		errors.Is(err, zip.ErrChecksum) ||
		errors.Is(err, io.ErrUnexpectedEOF)
}

// Images yields every non-directory entry whose base name has a supported
// image extension, in directory order. Other entries are skipped silently.
func (a *Archive) Images() iter.Seq[ArchiveEntry] {
	return func(yield func(ArchiveEntry) bool) {
		for _, f := range a.reader.File {
			if f.FileInfo().IsDir() {
				continue
			}
			base := baseName(f.Name)
			if base == "" || !isImageName(base) {
				continue
			}
			entry := ArchiveEntry{
				Name: f.Name,
				Size: int64(f.UncompressedSize64),
				file: f,
			}
			if !yield(entry) {
				return
			}
		}
	}
}
