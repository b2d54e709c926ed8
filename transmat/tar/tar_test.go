package tartrans

import (
	"archive/tar"
	"bytes"
	"compress/gzip"
	"context"
	"io/ioutil"
	"os"
	"os/exec"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"
	. "github.com/warpfork/go-errcat"

	"gopkg.in/src-d/go-git.v4/plumbing"
	"gopkg.in/src-d/go-git.v4/plumbing/object"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/fs"
	"github.com/polydawn/subtar/testutil"
)

var fxTime = time.Date(2018, 1, 9, 12, 0, 0, 0, time.UTC)

func TestDetectFormat(t *testing.T) {
	Convey("Extension detection", t, func() {
		for _, tc := range []struct {
			path   string
			format Format
			known  bool
		}{
			{"out.tar", FormatTar, true},
			{"out.tar.gz", FormatTarGz, true},
			{"out.tgz", FormatTarGz, true},
			{"out.tar.xz", FormatTarXz, true},
			{"out.txz", FormatTarXz, true},
			{"out.zip", FormatZip, true},
			{"out.gz.tar", FormatTar, true},
			{"out", Format(""), false},
			{"out.tgz.bak", Format(""), false},
		} {
			format, known := DetectFormat(tc.path)
			So(known, ShouldEqual, tc.known)
			So(format, ShouldEqual, tc.format)
		}
		Convey("and every known extension is advertised", func() {
			So(len(KnownExtensions()), ShouldEqual, 6)
		})
	})
}

func TestCloseArchive(t *testing.T) {
	Convey("The archive trailer is two zero blocks, nothing more", t, func() {
		var buf bytes.Buffer
		So(CloseArchive(&buf), ShouldBeNil)
		So(buf.Len(), ShouldEqual, 1024)
		So(bytes.Count(buf.Bytes(), []byte{0}), ShouldEqual, 1024)
	})
}

func TestFragmentDiscipline(t *testing.T) {
	Convey("Given a git tree", t, func() {
		testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
			fx := testutil.InitRepo(tmpDir.Join(fs.MustRelPath("repo")))
			c1 := fx.CommitTree("files\n", fxTime, map[string]interface{}{
				"a.txt": testutil.Blob{Body: "aaa\n"},
			})
			cm, err := object.GetCommit(fx.Repo.Storer, plumbing.NewHash(string(c1)))
			So(err, ShouldBeNil)
			tree, err := cm.Tree()
			So(err, ShouldBeNil)

			Convey("fragments concatenate and the seams stay visible", func() {
				var buf bytes.Buffer
				So(PackFragment(context.Background(), &buf, TreeSource{Tree: tree, Commit: c1, Mtime: fxTime}, "one/"), ShouldBeNil)
				So(PackFragment(context.Background(), &buf, TreeSource{Tree: tree, Commit: c1, Mtime: fxTime}, "two/"), ShouldBeNil)
				So(CloseArchive(&buf), ShouldBeNil)

				entries, err := ListArchive(&buf)
				So(err, ShouldBeNil)
				names := make([]string, len(entries))
				for i, ent := range entries {
					names[i] = ent.Name
				}
				So(names, ShouldResemble, []string{
					"pax_global_header",
					"one/",
					"one/a.txt",
					"pax_global_header",
					"two/",
					"two/a.txt",
				})
				So(entries[0].PAXRecords["comment"], ShouldEqual, string(c1))
				So(entries[3].PAXRecords["comment"], ShouldEqual, string(c1))
			})
			Convey("subsecond mtimes truncate to tar's precision", func() {
				var buf bytes.Buffer
				err := PackFragment(context.Background(), &buf, TreeSource{
					Tree:   tree,
					Commit: c1,
					Mtime:  fxTime.Add(123456789 * time.Nanosecond),
				}, "")
				So(err, ShouldBeNil)
				So(CloseArchive(&buf), ShouldBeNil)

				entries, err := ListArchive(&buf)
				So(err, ShouldBeNil)
				So(entries[1].Name, ShouldEqual, "a.txt")
				So(entries[1].ModTime.Equal(fxTime), ShouldBeTrue)
			})
		})
	})
}

func TestCompressedListing(t *testing.T) {
	Convey("Listing compressed archives", t, func() {
		var plain bytes.Buffer
		tw := tar.NewWriter(&plain)
		So(tw.WriteHeader(&tar.Header{Typeflag: tar.TypeReg, Name: "f", Mode: 0644, Size: 2, ModTime: fxTime}), ShouldBeNil)
		_, err := tw.Write([]byte("hi"))
		So(err, ShouldBeNil)
		So(tw.Close(), ShouldBeNil)

		Convey("gzip streams are sniffed and unwrapped", func() {
			var zbuf bytes.Buffer
			zw := gzip.NewWriter(&zbuf)
			_, err := zw.Write(plain.Bytes())
			So(err, ShouldBeNil)
			So(zw.Close(), ShouldBeNil)

			entries, err := ListArchive(&zbuf)
			So(err, ShouldBeNil)
			So(len(entries), ShouldEqual, 1)
			So(entries[0].Name, ShouldEqual, "f")
		})
		Convey("xz streams are sniffed and unwrapped", testutil.Requires(
			testutil.RequiresCommand("xz"),
			testutil.RequiresEnvBlank("SUBTAR_TEST_SKIP_XZ"),
			func() {
				testutil.WithTmpdir(func(tmpDir fs.AbsolutePath) {
					raw := tmpDir.Join(fs.MustRelPath("plain.tar"))
					So(ioutil.WriteFile(raw.String(), plain.Bytes(), 0644), ShouldBeNil)
					So(exec.Command("xz", raw.String()).Run(), ShouldBeNil)

					f, err := os.Open(raw.String() + ".xz")
					So(err, ShouldBeNil)
					defer f.Close()
					entries, err := ListArchive(f)
					So(err, ShouldBeNil)
					So(len(entries), ShouldEqual, 1)
					So(entries[0].Name, ShouldEqual, "f")
				})
			}))
		Convey("gzip magic without a gzip stream behind it is corrupt", func() {
			bad := append([]byte{0x1f, 0x8b}, []byte("nope, not really")...)
			_, err := ListArchive(bytes.NewReader(bad))
			So(Category(err), ShouldEqual, api.ErrArchiveCorrupt)
		})
		Convey("bytes that are neither tar nor compressed are corrupt", func() {
			_, err := ListArchive(bytes.NewReader(bytes.Repeat([]byte{'x'}, 700)))
			So(Category(err), ShouldEqual, api.ErrArchiveCorrupt)
		})
	})
}
