/*
	The tartrans package serializes git trees into the widely-recognized
	"tar" format, in a fragment discipline: each subtree is packed as a
	headers-and-bodies stream with *no* end-of-archive trailer, so any
	number of fragments can be concatenated and the stream terminated
	exactly once (see CloseArchive).

	Each fragment opens with a 'pax_global_header' entry whose comment
	records the source commit, same as 'git archive' output does.  A
	merged archive therefore carries one such entry per subtree; readers
	treat the extras as ordinary (empty) entries and lose nothing.

	The read side (ListArchive) accepts plain, gzipped, or xz'd streams,
	sniffed by magic bytes.  The write side emits plain tar only.
*/
package tartrans

type Format string

const (
	FormatTar   = Format("tar")
	FormatTarGz = Format("tar.gz")
	FormatTarXz = Format("tar.xz")
	FormatZip   = Format("zip")
)
