package tartrans

import (
	"archive/tar"
	"context"
	"io"
	"strings"
	"time"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/fs"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
)

/*
	TreeSource is everything PackFragment needs to know about where a
	tree came from: the tree itself, the commit that named it (stamped
	into the fragment's global header), and that commit's timestamp
	(stamped onto every entry, as 'git archive' does).
*/
type TreeSource struct {
	Tree   *object.Tree
	Commit api.CommitID
	Mtime  time.Time
}

/*
	PackFragment serializes one tree as a tar fragment onto the writer:
	global header, prefix directory chain, then every tree entry in
	canonical git order.  Entry names all begin with the given prefix,
	which must be empty or correctly delimited ("sub/" or "v1.0-" style;
	it is prepended verbatim).

	May return errors of category:

	  - `api.ErrTreeCorrupt` -- if a tree or blob object can't be read, or lies about its size
	  - `api.ErrDestinationUnwritable` -- if the writer rejects bytes
	  - `api.ErrCancelled` -- if the context says stop
*/
func PackFragment(ctx context.Context, w io.Writer, src TreeSource, prefix string) error {
	tw := tar.NewWriter(w)
	src.Mtime = src.Mtime.Truncate(time.Second) // tar's serial form has no subsecond precision.

	// Same header 'git archive' opens its streams with.
	if err := tw.WriteHeader(&tar.Header{
		Typeflag:   tar.TypeXGlobalHeader,
		Name:       "pax_global_header",
		PAXRecords: map[string]string{"comment": string(src.Commit)},
	}); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "writing fragment: %s", err)
	}

	// The prefix's directory levels are entries too, topmost first.
	// (Only complete levels: a "v1.0-" style prefix contributes none.)
	if i := strings.LastIndexByte(prefix, '/'); i >= 0 {
		for _, anc := range fs.MustRelPath(prefix[:i]).Split()[1:] {
			if err := tw.WriteHeader(dirHeader(anc.Path()+"/", src.Mtime)); err != nil {
				return Errorf(api.ErrDestinationUnwritable, "writing fragment: %s", err)
			}
		}
	}

	walker := object.NewTreeWalker(src.Tree, true, nil)
	defer walker.Close()
	for {
		if ctx.Err() != nil {
			return Errorf(api.ErrCancelled, "cancelled")
		}
		name, entry, err := walker.Next()
		if err == io.EOF {
			break
		}
		if err != nil {
			return Errorf(api.ErrTreeCorrupt, "walking tree of commit %s: %s", src.Commit.Short(), err)
		}
		if err := packEntry(src, tw, prefix+name, entry); err != nil {
			return err
		}
	}

	// Flush pads the final body out to block size.  Close would also
	// write an end-of-archive trailer, which fragments must not have.
	if err := tw.Flush(); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "writing fragment: %s", err)
	}
	return nil
}

func packEntry(src TreeSource, tw *tar.Writer, name string, entry object.TreeEntry) error {
	switch entry.Mode {
	case filemode.Dir, filemode.Submodule:
		// Submodule entries become bare dirs: their contents are some
		// other fragment's business (or absent, if depth was limited).
		return writeHeader(tw, dirHeader(name+"/", src.Mtime))
	case filemode.Regular, filemode.Deprecated, filemode.Executable:
		file, err := src.Tree.TreeEntryFile(&entry)
		if err != nil {
			return Errorf(api.ErrTreeCorrupt, "cannot read blob for %q: %s", name, err)
		}
		mode := int64(0644)
		if entry.Mode == filemode.Executable {
			mode = 0755
		}
		if err := writeHeader(tw, &tar.Header{
			Typeflag: tar.TypeReg,
			Name:     name,
			Mode:     mode,
			Size:     file.Size,
			ModTime:  src.Mtime,
		}); err != nil {
			return err
		}
		body, err := file.Reader()
		if err != nil {
			return Errorf(api.ErrTreeCorrupt, "cannot read blob for %q: %s", name, err)
		}
		defer body.Close()
		n, err := io.Copy(tw, body)
		if err != nil {
			return Errorf(api.ErrTreeCorrupt, "streaming %q: %s", name, err)
		}
		if n != file.Size {
			return Errorf(api.ErrTreeCorrupt, "blob for %q is %d bytes, object said %d", name, n, file.Size)
		}
		return nil
	case filemode.Symlink:
		file, err := src.Tree.TreeEntryFile(&entry)
		if err != nil {
			return Errorf(api.ErrTreeCorrupt, "cannot read blob for %q: %s", name, err)
		}
		target, err := file.Contents()
		if err != nil {
			return Errorf(api.ErrTreeCorrupt, "cannot read symlink target for %q: %s", name, err)
		}
		return writeHeader(tw, &tar.Header{
			Typeflag: tar.TypeSymlink,
			Name:     name,
			Mode:     0777,
			Linkname: target,
			ModTime:  src.Mtime,
		})
	default:
		return Errorf(api.ErrTreeCorrupt, "entry %q has mode %s, which does not pack", name, entry.Mode)
	}
}

func dirHeader(name string, mtime time.Time) *tar.Header {
	return &tar.Header{
		Typeflag: tar.TypeDir,
		Name:     name,
		Mode:     0755,
		ModTime:  mtime,
	}
}

func writeHeader(tw *tar.Writer, hdr *tar.Header) error {
	if err := tw.WriteHeader(hdr); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "writing fragment: %s", err)
	}
	return nil
}

/*
	CloseArchive writes the end-of-archive trailer.  Fragments carry no
	trailer of their own, so whoever concatenates them calls this once,
	last.  (Closing an empty tar writer emits exactly the trailer.)
*/
func CloseArchive(w io.Writer) error {
	if err := tar.NewWriter(w).Close(); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "terminating archive: %s", err)
	}
	return nil
}
