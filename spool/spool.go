/*
	The spool owns every temporary file of one archiving run: a fragment
	file per subtree, plus the staging file the merged archive is
	assembled in.  The destination path itself is only ever touched by
	Commit, which renames the fully-merged staging file into place --
	so whatever sits at the destination is always a complete archive,
	never a partial one.

	All temp files live in the spool dir and are named to be obviously
	disposable:

		.tmp.frag.<base>.<index>.<run>   -- one fragment per subtree
		.tmp.merge.<base>.<run>          -- the merge staging file

	where <run> is a guid shared by everything this run allocated.
	Rename-commit requires the spool dir and the destination to be on
	the same filesystem, which is why the default spool dir is the
	destination's parent.
*/
package spool

import (
	"fmt"
	"io"
	"os"
	"sync"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/fs"
	"github.com/polydawn/subtar/lib/guid"
)

type Spool struct {
	destination fs.AbsolutePath
	dir         fs.AbsolutePath
	run         string // guid suffix shared by all this run's temp files.
	stagePath   fs.AbsolutePath
	stage       *os.File

	mu        sync.Mutex
	fragments map[int]fs.AbsolutePath
}

/*
	New allocates a spool for a run that will commit to the given
	destination, staging everything in the given dir.  The staging file
	is opened immediately: succeeding here is the proof the area accepts
	writes, before any archiving work has been spent.

	May return errors of category:

	  - `api.ErrDestinationUnwritable` -- if the spool dir refuses the staging file
*/
func New(destination fs.AbsolutePath, dir fs.AbsolutePath) (*Spool, error) {
	sp := &Spool{
		destination: destination,
		dir:         dir,
		run:         guid.New(),
		fragments:   make(map[int]fs.AbsolutePath),
	}
	sp.stagePath = dir.Join(fs.MustRelPath(".tmp.merge." + destination.Last() + "." + sp.run))
	file, err := os.OpenFile(sp.stagePath.String(), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, Errorf(api.ErrDestinationUnwritable, "failed to reserve staging space: %s", err)
	}
	sp.stage = file
	return sp, nil
}

/*
	OpenFragment creates the fragment file for one subtree, keyed by its
	discovery index.  Safe to call from many goroutines (each index its
	own file).  The caller writes the fragment and Closes it; the file
	stays put until MergeFragment consumes it or Abort sweeps it.

	May return errors of category:

	  - `api.ErrDestinationUnwritable` -- if the spool dir refuses the file
*/
func (sp *Spool) OpenFragment(index int) (io.WriteCloser, error) {
	pth := sp.dir.Join(fs.MustRelPath(fmt.Sprintf(".tmp.frag.%s.%d.%s", sp.destination.Last(), index, sp.run)))
	file, err := os.OpenFile(pth.String(), os.O_CREATE|os.O_WRONLY|os.O_EXCL, 0644)
	if err != nil {
		return nil, Errorf(api.ErrDestinationUnwritable, "failed to open fragment spool file: %s", err)
	}
	sp.mu.Lock()
	sp.fragments[index] = pth
	sp.mu.Unlock()
	return file, nil
}

/*
	MergeFragment streams fragment 'index' onto the end of the staging
	file and deletes the fragment.  Call in index order; the spool does
	not reorder for you.  Panics if the index was never opened -- the
	scheduler owes the merger a dense result set.

	May return errors of category:

	  - `api.ErrDestinationUnwritable` -- if reading the fragment back or growing the staging file fails
*/
func (sp *Spool) MergeFragment(index int) error {
	sp.mu.Lock()
	pth, ok := sp.fragments[index]
	sp.mu.Unlock()
	if !ok {
		panic(fmt.Errorf("spool: no fragment %d", index))
	}
	file, err := os.Open(pth.String())
	if err != nil {
		return Errorf(api.ErrDestinationUnwritable, "fragment spool file unreadable: %s", err)
	}
	defer file.Close()
	if _, err := io.Copy(sp.stage, file); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "growing staged archive: %s", err)
	}
	os.Remove(pth.String())
	sp.mu.Lock()
	delete(sp.fragments, index)
	sp.mu.Unlock()
	return nil
}

// Stage exposes the staging file as a writer, so the merger can append
// whatever terminates the stream after the last fragment.
func (sp *Spool) Stage() io.Writer {
	return sp.stage
}

/*
	Commit closes the staging file and renames it over the destination.
	Atomic on any sane filesystem; replaces an existing file the way
	'git archive -o' would.  The spool is spent afterwards.

	May return errors of category:

	  - `api.ErrDestinationUnwritable` -- if the final close or rename fails
*/
func (sp *Spool) Commit() error {
	if err := sp.stage.Close(); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "failed to commit archive: %s", err)
	}
	if err := os.Rename(sp.stagePath.String(), sp.destination.String()); err != nil {
		return Errorf(api.ErrDestinationUnwritable, "failed to commit archive: %s", err)
	}
	return nil
}

/*
	Abort closes and removes every temp file still standing.  Callers
	defer it; after a successful Commit it finds nothing to do.  The
	destination is never touched.
*/
func (sp *Spool) Abort() {
	sp.stage.Close()
	os.Remove(sp.stagePath.String())
	sp.mu.Lock()
	defer sp.mu.Unlock()
	for index, pth := range sp.fragments {
		os.Remove(pth.String())
		delete(sp.fragments, index)
	}
}
