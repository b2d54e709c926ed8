package testutil

import (
	"io/ioutil"
	"os"

	"github.com/polydawn/subtar/fs"
)

/*
	WithTmpdir runs the given function in a fresh temporary directory,
	chdir'd into it, and cleans the whole thing up afterward.

	Using a fixed base path keeps test output in one predictable,
	easy-to-inspect (and easy-to-mount-tmpfs) place.
*/
func WithTmpdir(fn func(tmpDir fs.AbsolutePath)) {
	tmpBase := "/tmp/subtar-test/"
	err := os.MkdirAll(tmpBase, os.FileMode(0777)|os.ModeSticky)
	if err != nil {
		panic(err)
	}

	tmpdir, err := ioutil.TempDir(tmpBase, "")
	if err != nil {
		panic(err)
	}
	defer os.RemoveAll(tmpdir)

	retreat, err := os.Getwd()
	if err != nil {
		panic(err)
	}
	defer os.Chdir(retreat)

	err = os.Chdir(tmpdir)
	if err != nil {
		panic(err)
	}

	fn(fs.MustAbsolutePath(tmpdir))
}
