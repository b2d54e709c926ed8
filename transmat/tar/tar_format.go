package tartrans

import (
	"strings"
)

// Longest extensions first, so "x.tar.gz" never reads as plain tar.
var knownExtensions = []struct {
	ext    string
	format Format
}{
	{".tar.gz", FormatTarGz},
	{".tar.xz", FormatTarXz},
	{".tgz", FormatTarGz},
	{".txz", FormatTarXz},
	{".tar", FormatTar},
	{".zip", FormatZip},
}

/*
	DetectFormat names the archive format an output path's extension
	implies.  The second return is false when the extension says nothing
	we recognize.

	Recognizing a format is not a promise to write it: the write side
	produces plain tar only, and callers use this to refuse the rest
	with a clear message instead of producing a mislabeled file.
*/
func DetectFormat(path string) (Format, bool) {
	for _, k := range knownExtensions {
		if strings.HasSuffix(path, k.ext) {
			return k.format, true
		}
	}
	return "", false
}

// KnownExtensions lists every extension DetectFormat recognizes, for
// use in usage errors.
func KnownExtensions() []string {
	exts := make([]string, len(knownExtensions))
	for i, k := range knownExtensions {
		exts[i] = k.ext
	}
	return exts
}
