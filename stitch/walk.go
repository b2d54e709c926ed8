package stitch

import (
	"context"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/mixins/log"
	"github.com/polydawn/subtar/sources"
)

/*
	walker drives discovery: a pre-order depth-first walk over the
	gitlink graph, resolving each node to a repository that can serve
	its commit before descending into it.

	All fields and methods belong to one goroutine.  Resolved tasks
	cross into the scheduler's world through the emit callback;
	everything else stays here.
*/
type walker struct {
	store    RevisionStore
	reg      *sources.Registry
	prefix   string // run-wide prefix, prepended to every node's path
	maxDepth int    // -1 for unbounded
	mon      api.Monitor
	emit     func(queuedTask) // called per resolved task, in discovery order; may block; nil on dry runs

	resolved     []api.ResolvedTask
	failures     []api.ResolutionFailure
	taskFailures []taskResult // trees that resolved but couldn't be enumerated; err always set
}

// parentRef carries the gitlink's side of the story into resolution:
// which repo referenced the node, at which commit, under which path.
// Nil for the root node, which nobody references.
type parentRef struct {
	location api.RepoLocation
	commit   api.CommitID
	relPath  string
}

func (w *walker) walkRoot(ctx context.Context, repo api.RepoLocation, commit api.CommitID) error {
	w.reg.Register(api.SourceCandidate{Location: repo, Origin: api.OriginTopRepo}, "")
	w.scanLocation(repo, "")
	root := api.DiscoveryNode{Path: "", Repo: repo, Commit: commit, Depth: 0}
	return w.visit(ctx, root, nil)
}

func (w *walker) visit(ctx context.Context, node api.DiscoveryNode, parent *parentRef) error {
	if ctx.Err() != nil {
		return Errorf(api.ErrCancelled, "cancelled")
	}
	task, ok := w.resolve(node, parent)
	if !ok {
		return nil // Reported.  Siblings may still fare better.
	}
	links, err := w.store.Gitlinks(task.Source.Location, node.Commit)
	if err != nil {
		// Resolved, but the tree can't even be enumerated.  Don't waste
		// a worker on it; record it and walk on.
		w.taskFailures = append(w.taskFailures, taskResult{index: -1, task: task, err: err})
		log.ArchiveFailed(w.mon, task, err)
		return nil
	}
	w.resolved = append(w.resolved, task)
	if w.emit != nil {
		w.emit(queuedTask{index: len(w.resolved) - 1, task: task})
	}
	w.scanLocation(task.Source.Location, node.Path)
	for _, link := range links {
		child := api.DiscoveryNode{
			Path:   joinNodePath(node.Path, link.Path),
			Repo:   task.Source.Location,
			Commit: link.Commit,
			Depth:  node.Depth + 1,
		}
		if w.maxDepth != -1 && child.Depth > w.maxDepth {
			log.DepthSkipped(w.mon, child, w.maxDepth)
			continue
		}
		ref := &parentRef{location: task.Source.Location, commit: node.Commit, relPath: link.Path}
		if err := w.visit(ctx, child, ref); err != nil {
			return err
		}
	}
	return nil
}

/*
	resolve tries every candidate the registry offers for this node's
	path, in priority order, and takes the first repository that
	actually has the commit.  A miss on every candidate is recorded as
	a resolution failure (with the referencing .gitmodules stanza
	attached when we can dig it up) and the node's subtree is pruned.
*/
func (w *walker) resolve(node api.DiscoveryNode, parent *parentRef) (api.ResolvedTask, bool) {
	var tried []api.SourceCandidate
	for _, cand := range w.reg.CandidatesFor(node.Path) {
		if !w.store.ContainsCommit(cand.Location, node.Commit) {
			log.CandidateMiss(w.mon, node, cand)
			tried = append(tried, cand)
			continue
		}
		// Happy path!
		task := api.ResolvedTask{
			Node:   node,
			Source: cand,
			Prefix: w.prefixFor(node.Path),
		}
		log.NodeResolved(w.mon, task)
		return task, true
	}
	failure := api.ResolutionFailure{
		Node:   node,
		Tried:  tried,
		Reason: "no registered repository contains this commit",
	}
	if parent != nil {
		failure.SubmoduleHint = w.store.SubmoduleStanza(parent.location, parent.commit, parent.relPath)
	}
	log.NodeUnresolved(w.mon, failure)
	w.failures = append(w.failures, failure)
	return api.ResolvedTask{}, false
}

/*
	scanLocation registers the checked-out submodules of a repository
	we've just taken on, recursively: anything initialized on disk right
	now is a candidate for the rest of the walk.  Each is hinted with
	the archive path it would occupy, which is what gives same-path
	candidates first crack during resolution.

	Locations are scanned at most once per run.
*/
func (w *walker) scanLocation(location api.RepoLocation, atPath string) {
	if w.reg.Scanned(location) {
		return
	}
	w.reg.MarkScanned(location)
	subs, err := w.store.CurrentSubmodules(location)
	if err != nil {
		log.RegistryScanFailed(w.mon, location, err)
		return
	}
	for _, sub := range subs {
		hint := joinNodePath(atPath, sub.Path)
		w.reg.Register(api.SourceCandidate{Location: sub.Location, Origin: api.OriginSubmodule}, hint)
		w.scanLocation(sub.Location, hint)
	}
}

func (w *walker) prefixFor(nodePath string) string {
	if nodePath == "" {
		return w.prefix
	}
	return w.prefix + nodePath + "/"
}

func joinNodePath(base, rel string) string {
	if base == "" {
		return rel
	}
	return base + "/" + rel
}
