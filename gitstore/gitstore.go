/*
	The gitstore package reads git repositories on the local filesystem:
	answering whether a repository contains a commit, listing the gitlink
	entries of a commit's tree, inspecting '.gitmodules' both in history
	and in checked-out worktrees, and serializing a commit's tree to tar.

	Repositories are opened read-only, and several properties of this
	package are load-bearing for everything stacked above it:
	  - It never clones, fetches, or dials a remote.  A commit that is
	    not already on disk somewhere is simply not found.
	  - It accepts a worktree root (with a '.git' dir or '.git' gitfile,
	    as checked-out submodules have) or a bare git dir, and does not
	    care which it got.
	  - There is no dependency on a host git binary.
*/
package gitstore

import (
	"context"
	"fmt"
	"io"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/stitch"
	tartrans "github.com/polydawn/subtar/transmat/tar"
	srcd_osfs "gopkg.in/src-d/go-billy.v4/osfs"
	srcd_git "gopkg.in/src-d/go-git.v4"
	gitconfig "gopkg.in/src-d/go-git.v4/config"
	"gopkg.in/src-d/go-git.v4/plumbing"
	gitcache "gopkg.in/src-d/go-git.v4/plumbing/cache"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/storer"
	"gopkg.in/src-d/go-git.v4/storage/filesystem"
)

var _ stitch.RevisionStore = (*Store)(nil)

const gitmodulesFile = ".gitmodules"

/*
	Store hands out read access to any number of repositories, keyed by
	location.  Opens are memoized: asking about the same location twice
	costs one open.

	Concurrency contract: all methods except ArchiveTree must be called
	from one goroutine at a time (discovery is sequential, so this falls
	out naturally).  ArchiveTree may be called concurrently with itself
	and with everything else; it opens a private repository handle per
	call because go-git read paths are not safe for concurrent use.
*/
type Store struct {
	handles map[api.RepoLocation]*handle
}

type handle struct {
	repo         *srcd_git.Repository
	worktreeRoot string // "" for bare repositories
	err          error  // sticky; a location that failed to open stays failed
}

func New() *Store {
	return &Store{
		handles: make(map[api.RepoLocation]*handle),
	}
}

func (s *Store) handleFor(location api.RepoLocation) *handle {
	if h, ok := s.handles[location]; ok {
		return h
	}
	h := &handle{}
	h.repo, h.worktreeRoot, h.err = openRepo(string(location))
	s.handles[location] = h
	return h
}

/*
	Open the repository at the given path, which may be a worktree root
	or a bare git dir.  Returns the worktree root path when there is one.

	Worktree layouts ('path/.git' as a directory, or as a gitfile
	pointing elsewhere, which is what initialized submodules have) go
	through PlainOpen.  A path with no '.git' entry is treated as a bare
	object store and opened directly, with an LRU object cache in front:
	resolution probes the same stores over and over, and the cache keeps
	those probes from re-reading packfiles.
*/
func openRepo(path string) (*srcd_git.Repository, string, error) {
	fi, statErr := os.Stat(filepath.Join(path, ".git"))
	switch {
	case statErr == nil && (fi.IsDir() || fi.Mode().IsRegular()):
		repo, err := srcd_git.PlainOpen(path)
		if err != nil {
			return nil, "", Errorf(api.ErrRepoUnavailable, "cannot open repository at %s: %s", path, err)
		}
		if wt, wtErr := repo.Worktree(); wtErr == nil {
			return repo, wt.Filesystem.Root(), nil
		}
		return repo, "", nil
	case statErr == nil || os.IsNotExist(statErr):
		st := filesystem.NewStorage(srcd_osfs.New(path), gitcache.NewObjectLRUDefault())
		repo, err := srcd_git.Open(st, nil)
		if err != nil {
			return nil, "", Errorf(api.ErrRepoUnavailable, "cannot open repository at %s: %s", path, err)
		}
		return repo, "", nil
	default:
		return nil, "", Errorf(api.ErrRepoUnavailable, "cannot open repository at %s: %s", path, statErr)
	}
}

/*
	FindRepo locates the repository governing the given path, walking up
	parent directories the way 'git rev-parse --show-toplevel' does, and
	returns its worktree root (or the git dir itself for bare repos).

	May return errors of category:

	  - `api.ErrRepoUnavailable` -- if no repository is at or above the path
*/
func FindRepo(startPath string) (api.RepoLocation, error) {
	abs, err := filepath.Abs(startPath)
	if err != nil {
		panic(err)
	}
	// An exact hit first: bare git dirs have no '.git' entry, so the
	// walk-up detection below would stride right past them.
	if repo, err := srcd_git.PlainOpen(abs); err == nil {
		if wt, wtErr := repo.Worktree(); wtErr == nil {
			return api.RepoLocation(wt.Filesystem.Root()), nil
		}
		return api.RepoLocation(abs), nil
	}
	repo, err := srcd_git.PlainOpenWithOptions(abs, &srcd_git.PlainOpenOptions{DetectDotGit: true})
	if err != nil {
		return "", Errorf(api.ErrRepoUnavailable, "no git repository at (or above) %s: %s", abs, err)
	}
	if wt, wtErr := repo.Worktree(); wtErr == nil {
		return api.RepoLocation(wt.Filesystem.Root()), nil
	}
	return api.RepoLocation(abs), nil
}

/*
	CheckLocation verifies that a location opens as a repository at all.
	Used to vet user-supplied lookup paths up front, where a typo should
	be a loud usage-time error rather than a quiet resolution miss later.
*/
func (s *Store) CheckLocation(location api.RepoLocation) error {
	return s.handleFor(location).err
}

/*
	ContainsCommit answers whether the repository at the location has the
	commit object, by direct object store lookup.  Any failure to open
	the location or find the object is simply "false": during resolution
	a broken candidate and an ignorant candidate get the same treatment.
*/
func (s *Store) ContainsCommit(location api.RepoLocation, commit api.CommitID) bool {
	h := s.handleFor(location)
	if h.err != nil {
		return false
	}
	c, err := object.GetCommit(h.repo.Storer, plumbing.NewHash(string(commit)))
	return err == nil && c != nil
}

/*
	Gitlinks returns every submodule entry in the commit's full tree, in
	the order 'git ls-tree -r' would list them.  This is tree truth, not
	'.gitmodules' truth: an entry missing from the config file is still
	returned, and a config stanza with no tree entry is not.

	May return errors of category:

	  - `api.ErrRepoUnavailable` -- if the location can't be opened
	  - `api.ErrTreeCorrupt` -- if the commit or its tree can't be read
*/
func (s *Store) Gitlinks(location api.RepoLocation, commit api.CommitID) ([]api.Gitlink, error) {
	h := s.handleFor(location)
	if h.err != nil {
		return nil, h.err
	}
	cm, err := object.GetCommit(h.repo.Storer, plumbing.NewHash(string(commit)))
	if err != nil {
		return nil, Errorf(api.ErrTreeCorrupt, "cannot read commit %s in %s: %s", commit.Short(), location, err)
	}
	tree, err := cm.Tree()
	if err != nil {
		return nil, Errorf(api.ErrTreeCorrupt, "commit %s missing tree: %s", commit.Short(), err)
	}
	var links []api.Gitlink
	tw := object.NewTreeWalker(tree, true, nil)
	defer tw.Close()
	for {
		name, entry, err := tw.Next()
		if err == io.EOF {
			return links, nil
		}
		if err != nil {
			return nil, Errorf(api.ErrTreeCorrupt, "walking tree of commit %s: %s", commit.Short(), err)
		}
		if entry.Mode == filemode.Submodule {
			links = append(links, api.Gitlink{
				Path:   name,
				Commit: api.CommitID(entry.Hash.String()),
			})
		}
	}
}

/*
	CurrentSubmodules lists the submodules that are initialized in the
	worktree at the location right now: '.gitmodules' entries whose path
	actually contains a '.git' dir or gitfile.  These are archive source
	candidates -- each one is a repository we're allowed to read.

	Bare repositories have no worktree and so no current submodules.
	Results are sorted by path so registration order is deterministic.

	May return errors of category:

	  - `api.ErrRepoUnavailable` -- if the location (or its '.gitmodules') can't be read
*/
func (s *Store) CurrentSubmodules(location api.RepoLocation) ([]api.CurrentSubmodule, error) {
	h := s.handleFor(location)
	if h.err != nil {
		return nil, h.err
	}
	if h.worktreeRoot == "" {
		return nil, nil
	}
	data, err := ioutil.ReadFile(filepath.Join(h.worktreeRoot, gitmodulesFile))
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, Errorf(api.ErrRepoUnavailable, "could not read %s in %s: %s", gitmodulesFile, location, err)
	}
	mods := gitconfig.NewModules()
	if err := mods.Unmarshal(data); err != nil {
		return nil, Errorf(api.ErrRepoUnavailable, "could not parse %s in %s: %s", gitmodulesFile, location, err)
	}
	var current []api.CurrentSubmodule
	for _, sub := range mods.Submodules {
		if sub == nil || sub.Path == "" {
			continue
		}
		subRoot := filepath.Join(h.worktreeRoot, filepath.FromSlash(sub.Path))
		if _, err := os.Stat(filepath.Join(subRoot, ".git")); err != nil {
			continue // present in config, but not initialized; nothing to read there.
		}
		current = append(current, api.CurrentSubmodule{
			Path:     sub.Path,
			Location: api.RepoLocation(subRoot),
		})
	}
	sort.Slice(current, func(i, j int) bool { return current[i].Path < current[j].Path })
	return current, nil
}

/*
	SubmoduleStanza digs the '.gitmodules' stanza for the given path out
	of the given commit.  It exists purely to decorate resolution-failure
	reports -- the URL recorded back then is usually the best clue about
	which repository the user needs to hand us -- so it is best-effort:
	any problem just yields nil.
*/
func (s *Store) SubmoduleStanza(location api.RepoLocation, commit api.CommitID, path string) [][2]string {
	h := s.handleFor(location)
	if h.err != nil {
		return nil
	}
	cm, err := object.GetCommit(h.repo.Storer, plumbing.NewHash(string(commit)))
	if err != nil {
		return nil
	}
	f, err := cm.File(gitmodulesFile)
	if err != nil {
		return nil
	}
	data, err := f.Contents()
	if err != nil {
		return nil
	}
	mods := gitconfig.NewModules()
	if err := mods.Unmarshal([]byte(data)); err != nil {
		return nil
	}
	for name, sub := range mods.Submodules {
		if sub == nil || sub.Path != path {
			continue
		}
		stanza := [][2]string{
			{"submodule", name},
			{"submodule-path", sub.Path},
		}
		if sub.URL != "" {
			stanza = append(stanza, [2]string{"submodule-url", sub.URL})
		}
		if sub.Branch != "" {
			stanza = append(stanza, [2]string{"submodule-branch", sub.Branch})
		}
		return stanza
	}
	return nil
}

/*
	ArchiveTree serializes the commit's tree as a tar fragment onto the
	writer: headers and bodies only, no end-of-archive trailer, so that
	fragments can be concatenated.  Every entry is prefixed with the
	given slash-terminated-or-empty prefix.  Gitlink entries come out as
	bare directories; their contents are some other task's fragment.

	May return errors of category:

	  - `api.ErrRepoUnavailable` -- if the location can't be opened
	  - `api.ErrTreeCorrupt` -- if any object can't be read mid-serialization
	  - `api.ErrCancelled` -- if the context says stop
*/
func (s *Store) ArchiveTree(ctx context.Context, location api.RepoLocation, commit api.CommitID, prefix string, w io.Writer) error {
	// Private handle: see the concurrency contract on Store.
	repo, _, err := openRepo(string(location))
	if err != nil {
		return err
	}
	cm, err := object.GetCommit(repo.Storer, plumbing.NewHash(string(commit)))
	if err != nil {
		return Errorf(api.ErrTreeCorrupt, "cannot read commit %s in %s: %s", commit.Short(), location, err)
	}
	tree, err := cm.Tree()
	if err != nil {
		return Errorf(api.ErrTreeCorrupt, "commit %s missing tree: %s", commit.Short(), err)
	}
	return tartrans.PackFragment(ctx, w, tartrans.TreeSource{
		Tree:   tree,
		Commit: commit,
		Mtime:  cm.Committer.When,
	}, prefix)
}

/*
	ResolveRevision turns any rev-ish ("HEAD", a branch, a tag, "HEAD~2",
	a full hash) into the full CommitID it names, peeling annotated tags
	down to their commit.

	May return errors of category:

	  - `api.ErrRepoUnavailable` -- if the location can't be opened
	  - `api.ErrCommitNotFound` -- if the revision doesn't resolve to a commit here
*/
func (s *Store) ResolveRevision(location api.RepoLocation, revish string) (api.CommitID, error) {
	h := s.handleFor(location)
	if h.err != nil {
		return "", h.err
	}
	hash, err := h.repo.ResolveRevision(plumbing.Revision(revish))
	if err != nil {
		// ResolveRevision insists the ref point straight at a commit,
		// which annotated tags don't; give the ref one more chance by
		// rev-parse rules before calling the revision bad, and let the
		// peeling below sort out what it points at.
		hash = resolveRefOnly(h.repo, revish)
		if hash == nil {
			return "", Errorf(api.ErrCommitNotFound, "cannot resolve %q in %s: %s", revish, location, err)
		}
	}
	if cm, err := object.GetCommit(h.repo.Storer, *hash); err == nil {
		return api.CommitID(cm.Hash.String()), nil
	}
	if tag, err := object.GetTag(h.repo.Storer, *hash); err == nil {
		cm, err := tag.Commit()
		if err != nil {
			return "", Errorf(api.ErrCommitNotFound, "%q in %s is a tag of a non-commit", revish, location)
		}
		return api.CommitID(cm.Hash.String()), nil
	}
	return "", Errorf(api.ErrCommitNotFound, "%q in %s does not name a commit", revish, location)
}

func resolveRefOnly(repo *srcd_git.Repository, revish string) *plumbing.Hash {
	for _, rule := range append([]string{"%s"}, plumbing.RefRevParseRules...) {
		ref, err := storer.ResolveReference(repo.Storer, plumbing.ReferenceName(fmt.Sprintf(rule, revish)))
		if err == nil {
			h := ref.Hash()
			return &h
		}
	}
	return nil
}
