/*
	Interfaces of subtar commands.

	The heuristic for the subtar callable library API is that essentially
	all information must be racked up in the call already: the caller is
	going to have already handled all config loading, flag parsing, and
	revision resolution, and those results are params in these funcs.
	Nothing in here reads env vars or guesses at defaults.
*/
package api

import (
	"context"
	"sort"
	"time"

	errcat "github.com/warpfork/go-errcat"
)

type ArchiveFunc func(
	ctx context.Context, // Long-running call.  Cancellable.
	repo RepoLocation, // Repository the walk starts from (worktree root or git dir).
	commit CommitID, // Commit to archive.  Already resolved; never a ref name.
	destination string, // Path the merged archive will be committed to.  Blank for dry-run.
	prefix string, // Leading path prepended to every entry ("" for none).
	policy ArchivePolicy, // Depth and concurrency limits.
	lookups []RepoLocation, // Extra repositories to consult for submodule commits, in order.
	monitor Monitor, // Optionally: callbacks for progress monitoring.
) (Report, error)

/*
	ArchivePolicy bundles the knobs that bound how far the walk goes and
	how much of it runs at once.
*/
type ArchivePolicy struct {
	// How many levels of submodule nesting to descend into.
	// -1 means no limit; 0 means archive the root tree only.
	MaxDepth int

	// How many subtrees may be serialized concurrently.
	// 0 means no limit (one goroutine per subtree).
	MaxConcurrency int
}

/*
	Monitoring configuration structs, and message types used.
*/
type (
	/*
		Configuration for what intermediate progress reports a process should send,
		and slot for the channel the caller wishes them to be sent to.
	*/
	Monitor struct {
		// Channel to which events will be sent as the process proceeds.
		// The channel will be closed when the process is done or cancelled.
		// A nil channel will disable all intermediate progress reporting.
		Chan chan<- Event
	}

	/*
		A "union" type of all the kinds of event that may be generated in the
		course of an archiving run.

		The "Result" message is never sent to Monitor.Chan --
		its values are converted into the function returns --
		but *is* seen in the serial form on the wire.
	*/
	Event struct {
		Log      *Event_Log      `refmt:"log,omitempty"`
		Progress *Event_Progress `refmt:"prog,omitempty"`
		Result   *Event_Result   `refmt:"result,omitempty"`
	}

	/*
		Freetext log events, leveled, with optional structured details.
		The Detail slice keeps pairs in emission order (maps would
		shuffle them on every serialization).
	*/
	Event_Log struct {
		Time   time.Time   `refmt:"t"`
		Level  LogLevel    `refmt:"lvl"`
		Msg    string      `refmt:"msg"`
		Detail [][2]string `refmt:"detail,omitempty"`
	}

	/*
		Notifications about progress updates.

		Imagine it being used to draw the following:

			Archiving (3/7): [====>      ]  42%

		'TotalProg' and 'TotalWork' are counts of subtrees; when they
		equal, a "done" state should be up next.  'Phase' names the
		stage ("resolve", "archive", "merge"); 'Desc' is freetext and
		typically carries the subtree path currently in flight.
	*/
	Event_Progress struct {
		Phase, Desc          string
		TotalProg, TotalWork int
	}

	Event_Result struct {
		Report Report `refmt:",omitempty"`
		Error  *Error `refmt:"error,omitempty"`
	}
)

/*
	SetError converts an in-process error into its wire form and slots
	it into the result.  A nil error clears the slot.
*/
func (r *Event_Result) SetError(err error) {
	if err == nil {
		r.Error = nil
		return
	}
	r.Error = &Error{Message_: err.Error()}
	if category, ok := errcat.Category(err).(ErrorCategory); ok {
		r.Error.Category_ = category
	}
	if e2, ok := err.(errcat.Error); ok {
		for k, v := range e2.Details() {
			r.Error.Details_ = append(r.Error.Details_, [2]string{k, v})
		}
		sort.Slice(r.Error.Details_, func(i, j int) bool { return r.Error.Details_[i][0] < r.Error.Details_[j][0] })
	}
}

/*
	Error is the wire form of an error: the category string, the human
	message, and any structured details.  It implements both `error` and
	the go-errcat interfaces, so an error deserialized on the far side
	of a process boundary still sorts by category the same way a fresh
	in-process one does.
*/
type Error struct {
	Category_ ErrorCategory `refmt:"category"`
	Message_  string        `refmt:"msg"`
	Details_  [][2]string   `refmt:"detail,omitempty"`
}

func (e *Error) Category() interface{} { return e.Category_ }
func (e *Error) Message() string       { return e.Message_ }
func (e *Error) Error() string         { return e.Message_ }
func (e *Error) Details() map[string]string {
	if len(e.Details_) == 0 {
		return nil
	}
	details := make(map[string]string, len(e.Details_))
	for _, kv := range e.Details_ {
		details[kv[0]] = kv[1]
	}
	return details
}

type LogLevel int8

const (
	LogError = LogLevel(4) // Serious failures.  The operation cannot continue (though sibling operations may).
	LogWarn  = LogLevel(3) // Suspicious conditions worth a look; the operation continues.
	LogInfo  = LogLevel(2) // Statements about progress and decisions taken.
	LogDebug = LogLevel(1) // Chatter useful when figuring out why resolution went somewhere odd.
)

func (lvl LogLevel) String() string {
	switch lvl {
	case LogError:
		return "error"
	case LogWarn:
		return "warn"
	case LogInfo:
		return "info"
	case LogDebug:
		return "debug"
	default:
		return "invalid"
	}
}

type ErrorCategory string
type ExitCode int

const (
	ExitSuccess                                           = ExitCode(0)
	ExitUsage, ErrUsage                                   = ExitCode(1), ErrorCategory("subtar-usage-error")             // Indicates some piece of user input to a command was invalid and unrunnable.
	ExitPanic                                             = ExitCode(2)                                                  // Placeholder.  We don't use this.  '2' happens when golang exits due to panic.
	ExitRepoUnavailable, ErrRepoUnavailable               = ExitCode(3), ErrorCategory("subtar-repo-unavailable")        // A path we were told is a repository could not be opened as one.
	ExitDestinationUnwritable, ErrDestinationUnwritable   = ExitCode(4), ErrorCategory("subtar-destination-unwritable")  // The output path (or the spool area next to it) refused writes.  Raised before any archiving work begins when possible.
	ExitCommitNotFound, ErrCommitNotFound                 = ExitCode(5), ErrorCategory("subtar-commit-not-found")        // Commit 404 -- some pinned submodule commit was in none of the repositories we were allowed to look at.
	ExitTreeCorrupt, ErrTreeCorrupt                       = ExitCode(6), ErrorCategory("subtar-tree-corrupt")            // A commit resolved, but reading its tree or blobs failed partway through serialization.
	ExitArchiveCorrupt, ErrArchiveCorrupt                 = ExitCode(7), ErrorCategory("subtar-archive-corrupt")         // An archive handed to the read side didn't parse as (possibly compressed) tar.
	ExitCancelled, ErrCancelled                           = ExitCode(8), ErrorCategory("subtar-cancelled")               // The operation timed out or was cancelled.
	ExitNotImplemented, ErrNotImplemented                 = ExitCode(9), ErrorCategory("subtar-not-implemented")         // The operation is not implemented, PRs welcome.
	ExitRPCBreakdown, ErrRPCBreakdown                     = ExitCode(120), ErrorCategory("subtar-rpc-breakdown")         // Raised when a forked subtar process broke the api: failed to start, died to a signal, or spoke malformed frames.
	ExitTODO                                              = ExitCode(254)                                               // This exit code should be replaced with something more specific.
)

var exitCodeTable = []struct {
	Code     ExitCode
	Category ErrorCategory
}{
	{ExitUsage, ErrUsage},
	{ExitRepoUnavailable, ErrRepoUnavailable},
	{ExitDestinationUnwritable, ErrDestinationUnwritable},
	{ExitCommitNotFound, ErrCommitNotFound},
	{ExitTreeCorrupt, ErrTreeCorrupt},
	{ExitArchiveCorrupt, ErrArchiveCorrupt},
	{ExitCancelled, ErrCancelled},
	{ExitNotImplemented, ErrNotImplemented},
	{ExitRPCBreakdown, ErrRPCBreakdown},
}

/*
	ExitCodeForCategory maps an error category onto the exit code the
	subtar command reports for it.  Unrecognized categories (including
	nil, which is what go-errcat assigns errors that never got one) map
	to ExitPanic.
*/
func ExitCodeForCategory(category interface{}) ExitCode {
	if category == nil {
		return ExitPanic
	}
	for _, row := range exitCodeTable {
		if row.Category == category {
			return row.Code
		}
	}
	return ExitPanic
}

/*
	CategoryForExitCode is the inverse of ExitCodeForCategory, used on
	the far side of a process boundary to put a category back on an
	error that arrived as a bare exit code.  Unrecognized codes map to
	ErrRPCBreakdown, because a subtar process that exits with a code
	outside its own table has, definitionally, broken the api.
*/
func CategoryForExitCode(code ExitCode) ErrorCategory {
	for _, row := range exitCodeTable {
		if row.Code == code {
			return row.Category
		}
	}
	return ErrRPCBreakdown
}
