package api

import (
	"time"

	"github.com/polydawn/refmt/obj/atlas"
)

var Atlas = atlas.MustBuild(
	atlas.BuildEntry(Event{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Log{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Progress{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Event_Result{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Error{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(Report{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(ResolvedTask{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(DiscoveryNode{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(SourceCandidate{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(ResolutionFailure{}).StructMap().Autogenerate().Complete(),
	atlas.BuildEntry(TaskFailure{}).StructMap().Autogenerate().Complete(),
	timeAtlasEntry,
)

// refmt has no native handling for time.Time (unexported fields);
// serialize as RFC3339 with sub-second precision retained.
var timeAtlasEntry = atlas.BuildEntry(time.Time{}).Transform().
	TransformMarshal(atlas.MakeMarshalTransformFunc(
		func(t time.Time) (string, error) {
			return t.Format(time.RFC3339Nano), nil
		})).
	TransformUnmarshal(atlas.MakeUnmarshalTransformFunc(
		func(s string) (time.Time, error) {
			return time.Parse(time.RFC3339Nano, s)
		})).
	Complete()
