/*
	Helper functions for emitting structured logs to the api.Monitor.

	These functions encompass the common lifecycle events of an archiving
	run, and using them A) saves typing and B) keeps the common stuff
	formatted in a common way between the walk, resolve, and merge stages.
	Callers can of course also write their own log events raw; it is freetext.
*/
package log

import (
	"fmt"
	"time"

	"github.com/polydawn/subtar/api"
)

// Emitted once per candidate that turned out not to contain the commit.
// Normal and frequent during resolution; debug level.
func CandidateMiss(mon api.Monitor, node api.DiscoveryNode, candidate api.SourceCandidate) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogDebug,
			Msg:   fmt.Sprintf("commit %s for %q not in %s", node.Commit.Short(), orDot(node.Path), candidate.Location),
			Detail: [][2]string{
				{"path", node.Path},
				{"commit", string(node.Commit)},
				{"candidate", string(candidate.Location)},
				{"origin", string(candidate.Origin)},
			},
		},
	}
}

func NodeResolved(mon api.Monitor, task api.ResolvedTask) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogInfo,
			Msg:   fmt.Sprintf("resolved %q at %s from %s", orDot(task.Node.Path), task.Node.Commit.Short(), task.Source.Location),
			Detail: [][2]string{
				{"path", task.Node.Path},
				{"commit", string(task.Node.Commit)},
				{"source", string(task.Source.Location)},
				{"origin", string(task.Source.Origin)},
			},
		},
	}
}

// Typically paired with an 'api.ErrCommitNotFound' in the final report.
func NodeUnresolved(mon api.Monitor, failure api.ResolutionFailure) {
	if mon.Chan == nil {
		return
	}
	detail := [][2]string{
		{"path", failure.Node.Path},
		{"commit", string(failure.Node.Commit)},
	}
	for _, tried := range failure.Tried {
		detail = append(detail, [2]string{"tried", string(tried.Location)})
	}
	detail = append(detail, failure.SubmoduleHint...)
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:   time.Now(),
			Level:  api.LogError,
			Msg:    fmt.Sprintf("no repository contains commit %s for %q (%d tried)", failure.Node.Commit.Short(), orDot(failure.Node.Path), len(failure.Tried)),
			Detail: detail,
		},
	}
}

func DepthSkipped(mon api.Monitor, node api.DiscoveryNode, maxDepth int) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogInfo,
			Msg:   fmt.Sprintf("skipping %q: depth %d exceeds limit %d", orDot(node.Path), node.Depth, maxDepth),
			Detail: [][2]string{
				{"path", node.Path},
				{"commit", string(node.Commit)},
			},
		},
	}
}

func ArchiveStarted(mon api.Monitor, task api.ResolvedTask) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogInfo,
			Msg:   fmt.Sprintf("archiving %q from %s", orDot(task.Node.Path), task.Source.Location),
			Detail: [][2]string{
				{"path", task.Node.Path},
				{"source", string(task.Source.Location)},
			},
		},
	}
}

// A registered repository whose own submodule config couldn't be read
// still serves objects; this just notes the scan came up empty.
func RegistryScanFailed(mon api.Monitor, location api.RepoLocation, err error) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogWarn,
			Msg:   fmt.Sprintf("could not scan %s for checked-out submodules: %s", location, err),
			Detail: [][2]string{
				{"location", string(location)},
				{"error", err.Error()},
			},
		},
	}
}

func ArchiveFailed(mon api.Monitor, task api.ResolvedTask, err error) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogError,
			Msg:   fmt.Sprintf("archiving %q failed: %s", orDot(task.Node.Path), err),
			Detail: [][2]string{
				{"path", task.Node.Path},
				{"source", string(task.Source.Location)},
				{"error", err.Error()},
			},
		},
	}
}

func FragmentMerged(mon api.Monitor, task api.ResolvedTask, index, total int) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Log: &api.Event_Log{
			Time:  time.Now(),
			Level: api.LogInfo,
			Msg:   fmt.Sprintf("merged %q (%d/%d)", orDot(task.Node.Path), index+1, total),
			Detail: [][2]string{
				{"path", task.Node.Path},
			},
		},
	}
}

func Progress(mon api.Monitor, phase, desc string, prog, work int) {
	if mon.Chan == nil {
		return
	}
	mon.Chan <- api.Event{
		Progress: &api.Event_Progress{
			Phase: phase, Desc: desc,
			TotalProg: prog, TotalWork: work,
		},
	}
}

// the root node's path is "", which reads terribly in a sentence.
func orDot(path string) string {
	if path == "" {
		return "."
	}
	return path
}
