/*
	Helpers for loading contextual config.

	Config for subtar means "things that are the host machine operator's
	concerns".  Where scratch files get spooled is a property of the
	machine (which filesystem has room), not of any one archive
	operation, so it's config rather than a parameter.
*/
package config

import (
	"os"
	"path/filepath"

	"github.com/polydawn/subtar/fs"
)

/*
	Return the directory fragment and staging files will be spooled in,
	or the zero path if unset.

	The default (zero) means "spool next to the archive's destination".
	This can be overriden by the `SUBTAR_SPOOL` environment variable.
	Mind that the finished archive lands by rename, so a spool override
	must live on the same filesystem as the destination.
*/
func GetSpoolPath() fs.AbsolutePath {
	pth := os.Getenv("SUBTAR_SPOOL")
	if pth == "" {
		return fs.AbsolutePath{}
	}
	pth, err := filepath.Abs(pth)
	if err != nil {
		panic(err)
	}
	return fs.MustAbsolutePath(pth)
}
