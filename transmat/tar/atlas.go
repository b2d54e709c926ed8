package tartrans

import (
	"time"

	"github.com/polydawn/refmt/obj/atlas"
)

// Atlas covers the types emitted by ListArchive, for callers that want
// entries on the wire rather than rendered.
var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Entry{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(time.Time{}).Transform().
		TransformMarshal(atlas.MakeMarshalTransformFunc(
			func(t time.Time) (string, error) {
				return t.Format(time.RFC3339Nano), nil
			})).
		TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
			func(s string) (time.Time, error) {
				return time.Parse(time.RFC3339Nano, s)
			})).
		Complete(),
)
