package fs

import (
	"fmt"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestRelPath(t *testing.T) {
	Convey("RelPath stringer suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    RelPath
			str   string
		}{
			{"zero value", RelPath{}, "."},
			{"dot value", MustRelPath("."), "."},
			{"plain value", MustRelPath("a/bb/ccc"), "./a/bb/ccc"},
			{"denormalized value", MustRelPath("../a/bb/../ccc"), "../a/ccc"},
			{"lone doubledot value", MustRelPath("../"), ".."},
			{"dotfile value", MustRelPath(".aa"), "./.aa"},
		} {
			Convey(tr.title, func() {
				So(fmt.Sprintf("%s", tr.p1), ShouldResemble, tr.str)
			})
		}
	})
	Convey("RelPath.Dir/Last suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    RelPath
			pdir  RelPath
			last  string
		}{
			{"zero value", RelPath{}, RelPath{}, "."},
			{"single segment", MustRelPath("aa"), RelPath{}, "aa"},
			{"long value", MustRelPath("a/bb/ccc"), MustRelPath("a/bb"), "ccc"},
			{"lone doubledot value", MustRelPath("../"), MustRelPath("."), ".."}, // yep.  matches what stdlib 'path.Dir' does.
		} {
			Convey(tr.title, func() {
				So(tr.p1.Dir(), ShouldResemble, tr.pdir)
				So(tr.p1.Last(), ShouldResemble, tr.last)
			})
		}
	})
	Convey("RelPath.Join suite:", t, func() {
		for _, tr := range []struct {
			title  string
			p1, p2 RelPath
			pj     RelPath
		}{
			{"zero values", RelPath{}, RelPath{}, RelPath{}},
			{"regular values", MustRelPath("rel"), MustRelPath("pth"), MustRelPath("rel/pth")},
			{"zero,short", MustRelPath("."), MustRelPath("pth"), MustRelPath("pth")},
			{"long,zero", MustRelPath("a/bb/ccc"), MustRelPath("."), MustRelPath("a/bb/ccc")},
			{"short,up", MustRelPath("rel"), MustRelPath(".."), MustRelPath(".")},
			{"long,up", MustRelPath("r/el"), MustRelPath(".."), MustRelPath("r")},
			{"dotted,dotted", MustRelPath(".dot"), MustRelPath(".wonk"), MustRelPath(".dot/.wonk")},
		} {
			Convey(tr.title, func() {
				So(tr.p1.Join(tr.p2), ShouldResemble, tr.pj)
			})
		}
	})
	Convey("RelPath.Split suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    RelPath
			ps    []RelPath
			psp   []RelPath
		}{
			{"zero value",
				RelPath{},
				[]RelPath{{}},
				[]RelPath{}},
			{"len=1 value",
				MustRelPath("./a"),
				[]RelPath{{}, MustRelPath("a")},
				[]RelPath{{}}},
			{"len=3 value",
				MustRelPath("./a/bb/c"),
				[]RelPath{{}, MustRelPath("a"), MustRelPath("a/bb"), MustRelPath("a/bb/c")},
				[]RelPath{{}, MustRelPath("a"), MustRelPath("a/bb")}},
		} {
			Convey(tr.title, func() {
				So(tr.p1.Split(), ShouldResemble, tr.ps)
				So(tr.p1.SplitParent(), ShouldResemble, tr.psp)
			})
		}
	})
}

func TestAbsolutePath(t *testing.T) {
	Convey("AbsolutePath stringer suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    AbsolutePath
			str   string
		}{
			{"zero value", AbsolutePath{}, "/"},
			{"root value", MustAbsolutePath("/"), "/"},
			{"long value", MustAbsolutePath("/a/bb/ccc"), "/a/bb/ccc"},
			{"dotfile value", MustAbsolutePath("/.aa"), "/.aa"},
		} {
			Convey(tr.title, func() {
				So(fmt.Sprintf("%s", tr.p1), ShouldResemble, tr.str)
			})
		}
	})
	Convey("AbsolutePath.Dir/Last suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    AbsolutePath
			pdir  AbsolutePath
			last  string
		}{
			{"zero value", AbsolutePath{}, AbsolutePath{}, "/"},
			{"short value", MustAbsolutePath("/aa"), AbsolutePath{}, "aa"},
			{"long value", MustAbsolutePath("/a/bb/ccc"), MustAbsolutePath("/a/bb"), "ccc"},
		} {
			Convey(tr.title, func() {
				So(tr.p1.Dir(), ShouldResemble, tr.pdir)
				So(tr.p1.Last(), ShouldResemble, tr.last)
			})
		}
	})
	Convey("AbsolutePath.Join suite:", t, func() {
		for _, tr := range []struct {
			title string
			p1    AbsolutePath
			p2    RelPath
			pj    AbsolutePath
		}{
			{"zero values", AbsolutePath{}, RelPath{}, AbsolutePath{}},
			{"regular values", MustAbsolutePath("/root/"), MustRelPath("pth"), MustAbsolutePath("/root/pth")},
			{"root,short", MustAbsolutePath("/"), MustRelPath("pth"), MustAbsolutePath("/pth")},
			{"root,up", MustAbsolutePath("/"), MustRelPath(".."), MustAbsolutePath("/")},
			{"long,up", MustAbsolutePath("/r/oot/pth"), MustRelPath(".."), MustAbsolutePath("/r/oot")},
		} {
			Convey(tr.title, func() {
				So(tr.p1.Join(tr.p2), ShouldResemble, tr.pj)
			})
		}
	})
}
