package tartrans

import (
	"archive/tar"
	"bufio"
	"bytes"
	"compress/gzip"
	"io"
	"time"

	. "github.com/warpfork/go-errcat"
	"github.com/xi2/xz"

	"github.com/polydawn/subtar/api"
)

/*
	Entry is one archive member as reported by ListArchive.  Global
	headers appear as entries too (Typeflag tar.TypeXGlobalHeader, with
	their records in PAXRecords) -- in archives we produced, those mark
	the subtree seams and carry the source commits.
*/
type Entry struct {
	Name       string
	Typeflag   byte
	Mode       int64
	Size       int64
	ModTime    time.Time
	Linkname   string
	PAXRecords map[string]string
}

/*
	ListArchive reads an entire tar stream (plain, gzipped, or xz'd;
	sniffed, not trusted from any file extension) and returns its
	entries in order.  Bodies are skipped, not held.

	May return errors of category:

	  - `api.ErrArchiveCorrupt` -- if the stream doesn't parse as (possibly compressed) tar
*/
func ListArchive(r io.Reader) ([]Entry, error) {
	dr, err := Decompress(r)
	if err != nil {
		return nil, err
	}
	tr := tar.NewReader(dr)
	var entries []Entry
	for {
		hdr, err := tr.Next()
		if err == io.EOF {
			return entries, nil
		}
		if err != nil {
			return nil, Errorf(api.ErrArchiveCorrupt, "corrupt archive: %s", err)
		}
		entries = append(entries, Entry{
			Name:       hdr.Name,
			Typeflag:   hdr.Typeflag,
			Mode:       hdr.Mode,
			Size:       hdr.Size,
			ModTime:    hdr.ModTime,
			Linkname:   hdr.Linkname,
			PAXRecords: hdr.PAXRecords,
		})
	}
}

var (
	gzipMagic = []byte{0x1f, 0x8b}
	xzMagic   = []byte{0xfd, '7', 'z', 'X', 'Z', 0x00}
)

/*
	Decompress wraps the reader in the decompressor its leading magic
	bytes call for, or returns it (buffered) untouched if no magic is
	recognized.

	May return errors of category:

	  - `api.ErrArchiveCorrupt` -- if magic matched but the stream then didn't parse
*/
func Decompress(r io.Reader) (io.Reader, error) {
	br := bufio.NewReader(r)
	magic, _ := br.Peek(6) // short reads fine; a shorter prefix just matches nothing.
	switch {
	case bytes.HasPrefix(magic, gzipMagic):
		zr, err := gzip.NewReader(br)
		if err != nil {
			return nil, Errorf(api.ErrArchiveCorrupt, "corrupt gzip stream: %s", err)
		}
		return zr, nil
	case bytes.HasPrefix(magic, xzMagic):
		xr, err := xz.NewReader(br, 0)
		if err != nil {
			return nil, Errorf(api.ErrArchiveCorrupt, "corrupt xz stream: %s", err)
		}
		return xr, nil
	default:
		return br, nil
	}
}
