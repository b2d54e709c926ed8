package testutil

import (
	"fmt"
	"io/ioutil"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/src-d/go-git.v4"
	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/filemode"
	"gopkg.in/src-d/go-git.v4/plumbing/object"
	"gopkg.in/src-d/go-git.v4/plumbing/storer"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/fs"
)

/*
	GitFixture builds small but honest on-disk git repositories, without
	shelling out: blobs, trees, and commits are encoded straight into
	the object store.  Worktree file content is separate (and optional)
	on purpose, since history and checkout state diverge in most of the
	scenarios worth testing.

	All methods panic on error; these run under test harnesses only.
*/
type GitFixture struct {
	Dir  fs.AbsolutePath
	Repo *git.Repository
}

// Entry specs for CommitTree.
type Blob struct {
	Body string
	Exec bool
}
type Symlink struct {
	Target string
}
type GitlinkEntry struct {
	Commit api.CommitID
}

func InitRepo(dir fs.AbsolutePath) GitFixture {
	return initRepo(dir, false)
}

func InitBareRepo(dir fs.AbsolutePath) GitFixture {
	return initRepo(dir, true)
}

func initRepo(dir fs.AbsolutePath, bare bool) GitFixture {
	if err := os.MkdirAll(dir.String(), 0755); err != nil {
		panic(err)
	}
	repo, err := git.PlainInit(dir.String(), bare)
	if err != nil {
		panic(err)
	}
	return GitFixture{Dir: dir, Repo: repo}
}

/*
	CommitTree writes a commit whose tree holds the given entries (keys
	are slash-separated paths; values are Blob, Symlink, or
	GitlinkEntry), advances master, and returns the commit id.  The
	previous master tip, if any, becomes the parent.
*/
func (fx GitFixture) CommitTree(msg string, when time.Time, files map[string]interface{}) api.CommitID {
	st := fx.Repo.Storer
	treeHash := buildTree(st, files)
	commit := &object.Commit{
		Author:    fixtureSignature(when),
		Committer: fixtureSignature(when),
		Message:   msg,
		TreeHash:  treeHash,
	}
	if tip, ok := fx.masterTip(); ok {
		commit.ParentHashes = []plumbing.Hash{tip}
	}
	obj := st.NewEncodedObject()
	if err := commit.Encode(obj); err != nil {
		panic(err)
	}
	hash, err := st.SetEncodedObject(obj)
	if err != nil {
		panic(err)
	}
	fx.setRef("refs/heads/master", hash)
	return api.CommitID(hash.String())
}

func (fx GitFixture) Branch(name string, commit api.CommitID) {
	fx.setRef("refs/heads/"+name, plumbing.NewHash(string(commit)))
}

func (fx GitFixture) LightTag(name string, commit api.CommitID) {
	fx.setRef("refs/tags/"+name, plumbing.NewHash(string(commit)))
}

func (fx GitFixture) AnnotatedTag(name string, when time.Time, commit api.CommitID) {
	st := fx.Repo.Storer
	tag := &object.Tag{
		Name:       name,
		Tagger:     fixtureSignature(when),
		Message:    "fixture tag\n",
		TargetType: plumbing.CommitObject,
		Target:     plumbing.NewHash(string(commit)),
	}
	obj := st.NewEncodedObject()
	if err := tag.Encode(obj); err != nil {
		panic(err)
	}
	hash, err := st.SetEncodedObject(obj)
	if err != nil {
		panic(err)
	}
	fx.setRef("refs/tags/"+name, hash)
}

// WriteWorktreeFile puts plain checkout content on disk, untracked and
// uncommitted.
func (fx GitFixture) WriteWorktreeFile(path string, body string) {
	full := filepath.Join(fx.Dir.String(), path)
	if err := os.MkdirAll(filepath.Dir(full), 0755); err != nil {
		panic(err)
	}
	if err := ioutil.WriteFile(full, []byte(body), 0644); err != nil {
		panic(err)
	}
}

/*
	DetachGitdir converts the fixture's '.git' directory into a gitfile
	pointing at realDir, the way 'git submodule' lays out checkouts.
*/
func (fx GitFixture) DetachGitdir(realDir fs.AbsolutePath) {
	gitPath := filepath.Join(fx.Dir.String(), ".git")
	if err := os.MkdirAll(filepath.Dir(realDir.String()), 0755); err != nil {
		panic(err)
	}
	if err := os.Rename(gitPath, realDir.String()); err != nil {
		panic(err)
	}
	if err := ioutil.WriteFile(gitPath, []byte("gitdir: "+realDir.String()+"\n"), 0644); err != nil {
		panic(err)
	}
}

func (fx GitFixture) masterTip() (plumbing.Hash, bool) {
	ref, err := fx.Repo.Reference(plumbing.ReferenceName("refs/heads/master"), true)
	if err != nil {
		return plumbing.ZeroHash, false
	}
	return ref.Hash(), true
}

func (fx GitFixture) setRef(name string, hash plumbing.Hash) {
	err := fx.Repo.Storer.SetReference(plumbing.NewHashReference(plumbing.ReferenceName(name), hash))
	if err != nil {
		panic(err)
	}
}

func fixtureSignature(when time.Time) object.Signature {
	return object.Signature{
		Name:  "fixture",
		Email: "fixture@example.net",
		When:  when,
	}
}

func buildTree(st storer.EncodedObjectStorer, files map[string]interface{}) plumbing.Hash {
	dirs := map[string]map[string]interface{}{}
	var entries []object.TreeEntry
	for path, spec := range files {
		if i := strings.IndexByte(path, '/'); i >= 0 {
			head, rest := path[:i], path[i+1:]
			if dirs[head] == nil {
				dirs[head] = map[string]interface{}{}
			}
			dirs[head][rest] = spec
			continue
		}
		switch spec := spec.(type) {
		case Blob:
			mode := filemode.Regular
			if spec.Exec {
				mode = filemode.Executable
			}
			entries = append(entries, object.TreeEntry{Name: path, Mode: mode, Hash: writeBlob(st, []byte(spec.Body))})
		case Symlink:
			entries = append(entries, object.TreeEntry{Name: path, Mode: filemode.Symlink, Hash: writeBlob(st, []byte(spec.Target))})
		case GitlinkEntry:
			entries = append(entries, object.TreeEntry{Name: path, Mode: filemode.Submodule, Hash: plumbing.NewHash(string(spec.Commit))})
		default:
			panic(fmt.Errorf("unknown fixture entry type %T", spec))
		}
	}
	for name, subFiles := range dirs {
		entries = append(entries, object.TreeEntry{Name: name, Mode: filemode.Dir, Hash: buildTree(st, subFiles)})
	}
	// Canonical git tree order: byte order, directories comparing as
	// if their name had a trailing slash.
	sort.Slice(entries, func(i, j int) bool {
		return treeSortName(entries[i]) < treeSortName(entries[j])
	})
	tree := &object.Tree{Entries: entries}
	obj := st.NewEncodedObject()
	if err := tree.Encode(obj); err != nil {
		panic(err)
	}
	hash, err := st.SetEncodedObject(obj)
	if err != nil {
		panic(err)
	}
	return hash
}

func treeSortName(ent object.TreeEntry) string {
	if ent.Mode == filemode.Dir {
		return ent.Name + "/"
	}
	return ent.Name
}

func writeBlob(st storer.EncodedObjectStorer, body []byte) plumbing.Hash {
	obj := st.NewEncodedObject()
	obj.SetType(plumbing.BlobObject)
	obj.SetSize(int64(len(body)))
	w, err := obj.Writer()
	if err != nil {
		panic(err)
	}
	if _, err := w.Write(body); err != nil {
		panic(err)
	}
	if err := w.Close(); err != nil {
		panic(err)
	}
	hash, err := st.SetEncodedObject(obj)
	if err != nil {
		panic(err)
	}
	return hash
}
