package stitch

import (
	"context"
	"path/filepath"
	"sort"
	"sync"

	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/fs"
	"github.com/polydawn/subtar/mixins/log"
	"github.com/polydawn/subtar/sources"
	"github.com/polydawn/subtar/spool"
	tartrans "github.com/polydawn/subtar/transmat/tar"
)

/*
	TreeArchiver implements the archive operation: discover the full
	submodule graph of a commit, resolve every node to a local
	repository, stream each subtree to its own tar fragment, and stitch
	the fragments into a single archive at the destination.

	The zero value is not useful; fill in Store.  SpoolDir is optional
	and defaults to the destination's parent directory, which keeps the
	final rename within one filesystem.
*/
type TreeArchiver struct {
	Store    RevisionStore
	SpoolDir fs.AbsolutePath
}

var (
	_ api.ArchiveFunc = (&TreeArchiver{}).Archive
)

// queuedTask pairs a resolved task with its discovery index, which is
// both its fragment number and its merge position.
type queuedTask struct {
	index int
	task  api.ResolvedTask
}

// taskResult is one task's outcome.  index is -1 when the task never
// made it to a worker.
type taskResult struct {
	index int
	task  api.ResolvedTask
	err   error
}

func (ta *TreeArchiver) Archive(
	ctx context.Context,
	repo api.RepoLocation,
	commit api.CommitID,
	destination string,
	prefix string,
	policy api.ArchivePolicy,
	lookups []api.RepoLocation,
	mon api.Monitor,
) (report api.Report, err error) {
	if mon.Chan != nil {
		defer close(mon.Chan)
	}
	defer RequireErrorHasCategory(&err, api.ErrorCategory(""))

	report = api.Report{
		Commit:      commit,
		Destination: destination,
		Prefix:      prefix,
		DryRun:      destination == "",
	}

	// Seed the registry with the user's fallbacks.  The top repo and
	// everything found along the way are the walker's business.
	reg := sources.NewRegistry()
	for _, lk := range lookups {
		reg.AddLookup(lk)
	}
	w := &walker{
		store:    ta.Store,
		reg:      reg,
		prefix:   prefix,
		maxDepth: policy.MaxDepth,
		mon:      mon,
	}

	// Dry run: resolve everything, touch nothing.
	if report.DryRun {
		if err := w.walkRoot(ctx, repo, commit); err != nil {
			return report, err
		}
		return w.summarize(report, nil)
	}

	// Stand up the spool before any real work: if the destination
	// can't be written, better to find out now.
	absDest, err := filepath.Abs(destination)
	if err != nil {
		return report, Errorf(api.ErrUsage, "bad destination path: %s", err)
	}
	dest := fs.MustAbsolutePath(absDest)
	spoolDir := ta.SpoolDir
	if spoolDir == (fs.AbsolutePath{}) {
		spoolDir = dest.Dir()
	}
	sp, err := spool.New(dest, spoolDir)
	if err != nil {
		return report, err
	}
	defer sp.Abort()

	// Discovery feeds the queue; the pool archives each task into its
	// own fragment; we gather outcomes here.
	queue := make(chan queuedTask)
	results := make(chan taskResult)
	launchWorkers(ctx, ta.Store, sp, queue, results, policy.MaxConcurrency, mon)
	w.emit = func(qt queuedTask) { queue <- qt }
	walkDone := make(chan error, 1)
	go func() {
		defer close(queue)
		walkDone <- w.walkRoot(ctx, repo, commit)
	}()
	var schedFailures []taskResult
	for res := range results {
		if res.err != nil {
			schedFailures = append(schedFailures, res)
		}
	}
	if err := <-walkDone; err != nil {
		return report, err
	}

	// Any failure anywhere means no archive: leave the destination
	// alone and say everything we know.
	if report, err = w.summarize(report, schedFailures); err != nil {
		return report, err
	}

	// All clean.  Merge fragments in discovery order, seal, land it.
	n := len(report.Resolved)
	for i, task := range report.Resolved {
		if err := sp.MergeFragment(i); err != nil {
			return report, err
		}
		log.FragmentMerged(mon, task, i, n)
		log.Progress(mon, "merge", task.Prefix, i+1, n)
	}
	if err := tartrans.CloseArchive(sp.Stage()); err != nil {
		return report, err
	}
	if err := sp.Commit(); err != nil {
		return report, err
	}
	return report, nil
}

/*
	summarize fills the report's outcome lists and distills them into
	the operation's error: resolution failures outrank archiving
	failures, and among archiving failures the earliest (by discovery
	order) speaks for the lot.
*/
func (w *walker) summarize(report api.Report, schedFailures []taskResult) (api.Report, error) {
	report.Resolved = w.resolved
	report.ResolutionFailures = w.failures
	failed := append(append([]taskResult{}, w.taskFailures...), schedFailures...)
	sort.Slice(failed, func(i, j int) bool { return failed[i].index < failed[j].index })
	for _, res := range failed {
		report.ArchiveFailures = append(report.ArchiveFailures, api.TaskFailure{
			Task:   res.task,
			Reason: res.err.Error(),
		})
	}
	if len(report.ResolutionFailures) > 0 {
		total := len(w.resolved) + len(w.failures) + len(w.taskFailures)
		return report, Errorf(api.ErrCommitNotFound,
			"could not resolve %d of %d discovered subtrees", len(report.ResolutionFailures), total)
	}
	if len(failed) > 0 {
		return report, failed[0].err
	}
	return report, nil
}

/*
	launchWorkers starts the archiving pool: either a fixed number of
	workers ranging over the queue, or (maxConcurrency zero) one
	goroutine per task as tasks arrive.  results is closed once every
	queued task has reported.
*/
func launchWorkers(ctx context.Context, store RevisionStore, sp *spool.Spool, queue <-chan queuedTask, results chan<- taskResult, maxConcurrency int, mon api.Monitor) {
	work := func(qt queuedTask) taskResult {
		log.ArchiveStarted(mon, qt.task)
		res := taskResult{index: qt.index, task: qt.task}
		fw, err := sp.OpenFragment(qt.index)
		if err != nil {
			res.err = err
			log.ArchiveFailed(mon, qt.task, err)
			return res
		}
		err = store.ArchiveTree(ctx, qt.task.Source.Location, qt.task.Node.Commit, qt.task.Prefix, fw)
		if closeErr := fw.Close(); err == nil && closeErr != nil {
			err = Errorf(api.ErrDestinationUnwritable, "closing fragment: %s", closeErr)
		}
		if err != nil {
			res.err = err
			log.ArchiveFailed(mon, qt.task, err)
		}
		return res
	}
	var wg sync.WaitGroup
	if maxConcurrency > 0 {
		wg.Add(maxConcurrency)
		for k := 0; k < maxConcurrency; k++ {
			go func() {
				defer wg.Done()
				for qt := range queue {
					results <- work(qt)
				}
			}()
		}
	} else {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var inflight sync.WaitGroup
			for qt := range queue {
				inflight.Add(1)
				go func(qt queuedTask) {
					defer inflight.Done()
					results <- work(qt)
				}(qt)
			}
			inflight.Wait()
		}()
	}
	go func() {
		wg.Wait()
		close(results)
	}()
}
