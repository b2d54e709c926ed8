/*
	Typed paths.  Mixing up absolute and relative paths (or worse,
	quietly treating one as the other) causes enough bugs that we
	spend a couple of types on keeping them apart:
	if you *can* accept an AbsolutePath, normalize to it ASAP;
	if you can't, then clearly it's correct to use RelPath,
	through and through the whole way.

	Both types are clean at rest: no trailing slashes, no "./" noise,
	no empty segments.  The zero values are "." and "/" respectively.
*/
package fs

import (
	"path"
	"strings"
)

type RelPath struct {
	path string // clean; "" means "."
}

func MustRelPath(p string) RelPath {
	p = path.Clean(p)
	if p[0] == '/' {
		panic("nope: " + p + " is not relative")
	}
	if p == "." { // We can't stop people from using the zero value, so, use it.
		return RelPath{}
	}
	return RelPath{p}
}

func (p RelPath) String() string {
	if p.path == "" {
		return "."
	}
	if p.path[0] == '.' { // a '..' prefix
		return p.path
	}
	return "./" + p.path
}

// Path returns the bare cleaned string, without the "./" decoration
// String adds.  "" for the zero value.
func (p RelPath) Path() string {
	return p.path
}

func (p RelPath) Dir() RelPath {
	i := strings.LastIndexByte(p.path, '/')
	if i == -1 {
		return RelPath{}
	}
	return RelPath{p.path[:i]}
}

func (p RelPath) Last() string {
	if p.path == "" {
		return "."
	}
	return p.path[strings.LastIndexByte(p.path, '/')+1:]
}

func (p RelPath) Join(p2 RelPath) RelPath {
	switch {
	case p2.path == "":
		return p
	case p.path == "":
		return p2
	default:
		// Re-clean: joining can collapse (e.g. "a" joined with "..").
		return MustRelPath(p.path + "/" + p2.path)
	}
}

/*
	Split returns the path and each of its ancestors, topmost first,
	starting with the zero path: "a/bb/c" splits to [".", "a", "a/bb",
	"a/bb/c"].  Handy for emitting a directory chain in order.
*/
func (p RelPath) Split() []RelPath {
	if p.path == "" {
		return []RelPath{{}}
	}
	segs := strings.Split(p.path, "/")
	split := make([]RelPath, 0, len(segs)+1)
	split = append(split, RelPath{})
	acc := ""
	for _, seg := range segs {
		if acc == "" {
			acc = seg
		} else {
			acc = acc + "/" + seg
		}
		split = append(split, RelPath{acc})
	}
	return split
}

/*
	SplitParent is Split without the path itself -- just the ancestors.
	Empty for the zero path.
*/
func (p RelPath) SplitParent() []RelPath {
	split := p.Split()
	return split[:len(split)-1]
}

type AbsolutePath struct {
	path string // clean; "" means "/"
}

func MustAbsolutePath(p string) AbsolutePath {
	p = path.Clean(p)
	if p[0] != '/' {
		panic("nope: " + p + " is not absolute")
	}
	if p == "/" { // We can't stop people from using the zero value, so, use it.
		return AbsolutePath{}
	}
	return AbsolutePath{p}
}

func (p AbsolutePath) String() string {
	if p.path == "" {
		return "/"
	}
	return p.path
}

func (p AbsolutePath) Dir() AbsolutePath {
	i := strings.LastIndexByte(p.path, '/')
	if i <= 0 {
		return AbsolutePath{}
	}
	return AbsolutePath{p.path[:i]}
}

func (p AbsolutePath) Last() string {
	if p.path == "" {
		return "/"
	}
	return p.path[strings.LastIndexByte(p.path, '/')+1:]
}

func (p AbsolutePath) Join(p2 RelPath) AbsolutePath {
	if p2.path == "" {
		return p
	}
	return MustAbsolutePath(p.path + "/" + p2.path)
}
