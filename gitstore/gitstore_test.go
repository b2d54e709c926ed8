package gitstore

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/fs"
	"github.com/polydawn/subtar/testutil"
	tartrans "github.com/polydawn/subtar/transmat/tar"
)

var fxTime = time.Date(2018, 1, 9, 12, 0, 0, 0, time.UTC)

const fxGitmodules = `[submodule "lib"]
	path = lib
	url = https://example.net/lib.git
[submodule "vendor/dep"]
	path = vendor/dep
	url = https://example.net/dep.git
	branch = stable
[submodule "uninit"]
	path = uninit
	url = https://example.net/uninit.git
`

func TestFindRepo(t *testing.T) {
	Convey("Given assorted repository layouts", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			Convey("a worktree root is found from itself and from below", func() {
				fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
				fx.WriteWorktreeFile("deep/nested/file.txt", "hi\n")

				loc, err := FindRepo(fx.Dir.String())
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, api.RepoLocation(fx.Dir.String()))

				loc, err = FindRepo(filepath.Join(fx.Dir.String(), "deep", "nested"))
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, api.RepoLocation(fx.Dir.String()))
			})
			Convey("a gitfile worktree (submodule layout) works the same", func() {
				fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("sub")))
				fx.CommitTree("c\n", fxTime, map[string]interface{}{
					"f": testutil.Blob{Body: "x\n"},
				})
				fx.DetachGitdir(tmpDir.Join(fs.MustRelPath("gitdirs/sub")))

				loc, err := FindRepo(fx.Dir.String())
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, api.RepoLocation(fx.Dir.String()))
			})
			Convey("a bare repository is its own location", func() {
				fx := testutil.InitBareRepo(tmpDir.Join(fs.MustRelPath("mirror.git")))
				fx.CommitTree("c\n", fxTime, map[string]interface{}{
					"f": testutil.Blob{Body: "x\n"},
				})

				loc, err := FindRepo(fx.Dir.String())
				So(err, ShouldBeNil)
				So(loc, ShouldEqual, api.RepoLocation(fx.Dir.String()))
			})
			Convey("no repository at or above the path is a loud error", func() {
				lost := tmpDir.Join(fs.MustRelPath("lost"))
				So(os.Mkdir(lost.String(), 0755), ShouldBeNil)

				_, err := FindRepo(lost.String())
				So(Category(err), ShouldEqual, api.ErrRepoUnavailable)
			})
		})
	})
}

func TestCommitLookup(t *testing.T) {
	Convey("Given a repository with history", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
			c1 := fx.CommitTree("one\n", fxTime, map[string]interface{}{
				"README": testutil.Blob{Body: "hello\n"},
			})
			store := New()
			loc := api.RepoLocation(fx.Dir.String())
			nowhere := api.RepoLocation(tmpDir.Join(fs.MustRelPath("nowhere")).String())

			Convey("ContainsCommit answers plainly", func() {
				So(store.ContainsCommit(loc, c1), ShouldBeTrue)
				So(store.ContainsCommit(loc, api.CommitID(strings.Repeat("d", 40))), ShouldBeFalse)
				So(store.ContainsCommit(nowhere, c1), ShouldBeFalse)
			})
			Convey("CheckLocation vets locations up front", func() {
				So(store.CheckLocation(loc), ShouldBeNil)
				So(Category(store.CheckLocation(nowhere)), ShouldEqual, api.ErrRepoUnavailable)
			})
		})
	})
}

func TestGitlinks(t *testing.T) {
	Convey("Given a commit whose tree mixes gitlinks and files", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			cmLib := api.CommitID(strings.Repeat("a", 40))
			cmDep := api.CommitID(strings.Repeat("b", 40))
			fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
			c1 := fx.CommitTree("subs\n", fxTime, map[string]interface{}{
				".gitmodules": testutil.Blob{Body: fxGitmodules},
				"README":      testutil.Blob{Body: "hello\n"},
				"lib":         testutil.GitlinkEntry{Commit: cmLib},
				"vendor/dep":  testutil.GitlinkEntry{Commit: cmDep},
				"zebra.txt":   testutil.Blob{Body: "stripes\n"},
			})
			c2 := fx.CommitTree("no subs\n", fxTime, map[string]interface{}{
				"README": testutil.Blob{Body: "hello again\n"},
			})
			store := New()
			loc := api.RepoLocation(fx.Dir.String())

			Convey("every gitlink comes back, in ls-tree order", func() {
				links, err := store.Gitlinks(loc, c1)
				So(err, ShouldBeNil)
				So(links, ShouldResemble, []api.Gitlink{
					{Path: "lib", Commit: cmLib},
					{Path: "vendor/dep", Commit: cmDep},
				})
			})
			Convey("a commit without gitlinks yields none", func() {
				links, err := store.Gitlinks(loc, c2)
				So(err, ShouldBeNil)
				So(links, ShouldBeEmpty)
			})
			Convey("an unknown commit is a tree-corruption error", func() {
				_, err := store.Gitlinks(loc, api.CommitID(strings.Repeat("d", 40)))
				So(Category(err), ShouldEqual, api.ErrTreeCorrupt)
			})
			Convey("an unopenable location is repo-unavailable", func() {
				_, err := store.Gitlinks(api.RepoLocation(tmpDir.Join(fs.MustRelPath("nowhere")).String()), c1)
				So(Category(err), ShouldEqual, api.ErrRepoUnavailable)
			})
		})
	})
}

func TestCurrentSubmodules(t *testing.T) {
	Convey("Given a worktree with a '.gitmodules' and assorted checkouts", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			top := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("top")))
			top.CommitTree("base\n", fxTime, map[string]interface{}{
				"README": testutil.Blob{Body: "x\n"},
			})
			top.WriteWorktreeFile(".gitmodules", fxGitmodules)
			testutil.InitRepo(tmpDir.Join(fs.MustRelPath("top/lib")))
			dep := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("top/vendor/dep")))
			top.WriteWorktreeFile("uninit/placeholder", "") // config knows it; nothing checked out.
			store := New()

			Convey("initialized entries are listed, sorted by path", func() {
				subs, err := store.CurrentSubmodules(api.RepoLocation(top.Dir.String()))
				So(err, ShouldBeNil)
				So(subs, ShouldResemble, []api.CurrentSubmodule{
					{Path: "lib", Location: api.RepoLocation(filepath.Join(top.Dir.String(), "lib"))},
					{Path: "vendor/dep", Location: api.RepoLocation(filepath.Join(top.Dir.String(), "vendor", "dep"))},
				})
			})
			Convey("a gitfile checkout still counts as initialized", func() {
				dep.DetachGitdir(tmpDir.Join(fs.MustRelPath("gitdirs/dep")))
				subs, err := store.CurrentSubmodules(api.RepoLocation(top.Dir.String()))
				So(err, ShouldBeNil)
				So(len(subs), ShouldEqual, 2)
			})
			Convey("a worktree without the file has none", func() {
				plain := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("plain")))
				subs, err := store.CurrentSubmodules(api.RepoLocation(plain.Dir.String()))
				So(err, ShouldBeNil)
				So(subs, ShouldBeEmpty)
			})
			Convey("a bare repository has none", func() {
				bare := testutil.InitBareRepo(tmpDir.Join(fs.MustRelPath("bare.git")))
				subs, err := store.CurrentSubmodules(api.RepoLocation(bare.Dir.String()))
				So(err, ShouldBeNil)
				So(subs, ShouldBeEmpty)
			})
		})
	})
}

func TestSubmoduleStanza(t *testing.T) {
	Convey("Given a commit that tracked a '.gitmodules'", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
			c0 := fx.CommitTree("before\n", fxTime, map[string]interface{}{
				"README": testutil.Blob{Body: "x\n"},
			})
			c1 := fx.CommitTree("subs\n", fxTime, map[string]interface{}{
				".gitmodules": testutil.Blob{Body: fxGitmodules},
				"lib":         testutil.GitlinkEntry{Commit: api.CommitID(strings.Repeat("a", 40))},
				"vendor/dep":  testutil.GitlinkEntry{Commit: api.CommitID(strings.Repeat("b", 40))},
			})
			store := New()
			loc := api.RepoLocation(fx.Dir.String())

			Convey("the stanza for a path surfaces, url and branch included", func() {
				stanza := store.SubmoduleStanza(loc, c1, "vendor/dep")
				So(stanza, ShouldContain, [2]string{"submodule", "vendor/dep"})
				So(stanza, ShouldContain, [2]string{"submodule-path", "vendor/dep"})
				So(stanza, ShouldContain, [2]string{"submodule-url", "https://example.net/dep.git"})
				So(stanza, ShouldContain, [2]string{"submodule-branch", "stable"})
			})
			Convey("paths the file doesn't mention yield nothing", func() {
				So(store.SubmoduleStanza(loc, c1, "elsewhere"), ShouldBeNil)
			})
			Convey("commits without the file yield nothing", func() {
				So(store.SubmoduleStanza(loc, c0, "lib"), ShouldBeNil)
			})
		})
	})
}

func TestResolveRevision(t *testing.T) {
	Convey("Given a repository with branches and tags", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
			c1 := fx.CommitTree("one\n", fxTime, map[string]interface{}{
				"README": testutil.Blob{Body: "one\n"},
			})
			c2 := fx.CommitTree("two\n", fxTime.Add(time.Hour), map[string]interface{}{
				"README": testutil.Blob{Body: "two\n"},
			})
			fx.Branch("release", c1)
			fx.LightTag("v1", c1)
			fx.AnnotatedTag("v2", fxTime.Add(2*time.Hour), c2)
			store := New()
			loc := api.RepoLocation(fx.Dir.String())

			resolve := func(revish string) api.CommitID {
				id, err := store.ResolveRevision(loc, revish)
				So(err, ShouldBeNil)
				return id
			}

			Convey("HEAD and branch names resolve", func() {
				So(resolve("HEAD"), ShouldEqual, c2)
				So(resolve("master"), ShouldEqual, c2)
				So(resolve("release"), ShouldEqual, c1)
			})
			Convey("ancestry suffixes resolve", func() {
				So(resolve("HEAD~1"), ShouldEqual, c1)
			})
			Convey("lightweight tags resolve", func() {
				So(resolve("v1"), ShouldEqual, c1)
			})
			Convey("annotated tags peel to their commit", func() {
				So(resolve("v2"), ShouldEqual, c2)
			})
			Convey("a full hash resolves to itself", func() {
				So(resolve(string(c1)), ShouldEqual, c1)
			})
			Convey("nonsense is a commit-not-found error", func() {
				_, err := store.ResolveRevision(loc, "no-such-rev")
				So(Category(err), ShouldEqual, api.ErrCommitNotFound)
			})
			Convey("an unopenable location is repo-unavailable", func() {
				_, err := store.ResolveRevision(api.RepoLocation(tmpDir.Join(fs.MustRelPath("nowhere")).String()), "HEAD")
				So(Category(err), ShouldEqual, api.ErrRepoUnavailable)
			})
		})
	})
}

func TestArchiveTree(t *testing.T) {
	Convey("Given a commit with files, dirs, links, and a gitlink", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
			c1 := fx.CommitTree("pack\n", fxTime, map[string]interface{}{
				"README":  testutil.Blob{Body: "hello\n"},
				"bin/run": testutil.Blob{Body: "#!/bin/sh\n", Exec: true},
				"lib":     testutil.GitlinkEntry{Commit: api.CommitID(strings.Repeat("a", 40))},
				"link":    testutil.Symlink{Target: "README"},
			})
			store := New()
			loc := api.RepoLocation(fx.Dir.String())

			Convey("the fragment lists prefix dirs then entries in git order", func() {
				var buf bytes.Buffer
				So(store.ArchiveTree(context.Background(), loc, c1, "top/", &buf), ShouldBeNil)
				fragLen := buf.Len()
				So(fragLen%512, ShouldEqual, 0)

				// Terminate it so it reads back as a whole archive.
				So(tartrans.CloseArchive(&buf), ShouldBeNil)
				So(buf.Len()-fragLen, ShouldEqual, 1024)

				entries, err := tartrans.ListArchive(bytes.NewReader(buf.Bytes()))
				So(err, ShouldBeNil)
				names := make([]string, len(entries))
				for i, ent := range entries {
					names[i] = ent.Name
				}
				So(names, ShouldResemble, []string{
					"pax_global_header",
					"top/",
					"top/README",
					"top/bin/",
					"top/bin/run",
					"top/lib/",
					"top/link",
				})
				So(entries[0].Typeflag, ShouldEqual, byte(tar.TypeXGlobalHeader))
				So(entries[0].PAXRecords["comment"], ShouldEqual, string(c1))
				So(entries[2].Mode, ShouldEqual, 0644)
				So(entries[2].Size, ShouldEqual, 6)
				So(entries[2].ModTime.Equal(fxTime), ShouldBeTrue)
				So(entries[4].Mode, ShouldEqual, 0755)
				So(entries[5].Typeflag, ShouldEqual, byte(tar.TypeDir))
				So(entries[6].Typeflag, ShouldEqual, byte(tar.TypeSymlink))
				So(entries[6].Linkname, ShouldEqual, "README")
			})
			Convey("a non-directory prefix contributes no dir entries", func() {
				var buf bytes.Buffer
				So(store.ArchiveTree(context.Background(), loc, c1, "v1.0-", &buf), ShouldBeNil)
				So(tartrans.CloseArchive(&buf), ShouldBeNil)
				entries, err := tartrans.ListArchive(bytes.NewReader(buf.Bytes()))
				So(err, ShouldBeNil)
				So(entries[1].Name, ShouldEqual, "v1.0-README")
			})
			Convey("an unknown commit is a tree-corruption error", func() {
				var buf bytes.Buffer
				err := store.ArchiveTree(context.Background(), loc, api.CommitID(strings.Repeat("d", 40)), "", &buf)
				So(Category(err), ShouldEqual, api.ErrTreeCorrupt)
			})
			Convey("an unopenable location is repo-unavailable", func() {
				var buf bytes.Buffer
				err := store.ArchiveTree(context.Background(), api.RepoLocation(tmpDir.Join(fs.MustRelPath("nowhere")).String()), c1, "", &buf)
				So(Category(err), ShouldEqual, api.ErrRepoUnavailable)
			})
			Convey("cancellation stops serialization", func() {
				ctx, cancel := context.WithCancel(context.Background())
				cancel()
				var buf bytes.Buffer
				err := store.ArchiveTree(ctx, loc, c1, "", &buf)
				So(Category(err), ShouldEqual, api.ErrCancelled)
			})
		})
	})
}
