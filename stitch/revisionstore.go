package stitch

import (
	"context"
	"io"

	"github.com/polydawn/subtar/api"
)

/*
	RevisionStore is everything the archive pipeline needs from the world
	of git repositories.  The gitstore package provides the real thing;
	tests substitute doubles.

	ContainsCommit, Gitlinks, CurrentSubmodules, and SubmoduleStanza are
	only ever called from the single discovery goroutine.  ArchiveTree is
	called from worker goroutines, concurrently, possibly many times for
	the same location.
*/
type RevisionStore interface {
	// ContainsCommit reports whether the repository at location has the
	// commit object.  Any trouble opening or reading counts as "no".
	ContainsCommit(location api.RepoLocation, commit api.CommitID) bool

	// Gitlinks returns the gitlink entries of the commit's tree,
	// recursively, paths relative to the tree root.
	Gitlinks(location api.RepoLocation, commit api.CommitID) ([]api.Gitlink, error)

	// CurrentSubmodules returns the checked-out submodules of the
	// repository's worktree (nil for bare repositories).
	CurrentSubmodules(location api.RepoLocation) ([]api.CurrentSubmodule, error)

	// SubmoduleStanza returns the committed .gitmodules stanza covering
	// path, as detail pairs for diagnostics.  Best-effort; may be nil.
	SubmoduleStanza(location api.RepoLocation, commit api.CommitID, path string) [][2]string

	// ArchiveTree streams the commit's tree as a tar fragment into w.
	ArchiveTree(ctx context.Context, location api.RepoLocation, commit api.CommitID, prefix string, w io.Writer) error
}
