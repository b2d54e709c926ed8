package api

/*
	This file is all serializable types used in Subtar
	to describe repositories, commits, discovered submodules,
	and the outcome of an archiving run.
*/

import (
	"encoding/hex"
	"fmt"
	"strings"
)

/*
	CommitIDs are the full, unabbreviated names of git commit objects --
	40 hex characters.

	Ref names, "HEAD", and abbreviated hashes are *not* CommitIDs;
	resolving those is the command line's job, before any of the
	interesting machinery is invoked.  By the time a CommitID is in
	flight, there is no ambiguity left in what it names.
*/
type CommitID string

func ParseCommitID(x string) (CommitID, error) {
	x = strings.ToLower(x)
	if len(x) != 40 {
		return "", fmt.Errorf("commit IDs are 40 characters (got %d)", len(x))
	}
	if _, err := hex.DecodeString(x); err != nil {
		return "", fmt.Errorf("commit IDs are hex strings")
	}
	return CommitID(x), nil
}

/*
	Short returns the conventional 7-char abbreviation, for use in messages.
	Report serialization always uses the full ID.
*/
func (c CommitID) Short() string {
	if len(c) < 7 {
		return string(c)
	}
	return string(c)[:7]
}

/*
	RepoLocation is a local filesystem path at which a git repository
	can be found -- either a worktree root (containing a '.git' dir or
	'.git' file), or a bare git dir itself.

	Subtar only ever reads from these.  It never clones, fetches into,
	or otherwise mutates a repository at any RepoLocation.
*/
type RepoLocation string

type (
	/*
		CandidateOrigin says how a repository came to be known to the run.
		It rides along in reports so a user can see *why* each location
		was consulted when a submodule commit had to be hunted down.
	*/
	CandidateOrigin string

	/*
		SourceCandidate is one repository that might contain a commit
		we're looking for, together with how we came to know about it.
	*/
	SourceCandidate struct {
		Location RepoLocation
		Origin   CandidateOrigin
	}
)

const (
	OriginTopRepo   = CandidateOrigin("top")       // the repository the walk started from.
	OriginSubmodule = CandidateOrigin("submodule") // found checked out under some repository we already resolved.
	OriginLookup    = CandidateOrigin("lookup")    // named explicitly by the user.
)

type (
	/*
		Gitlink is a submodule entry as recorded in a commit's tree:
		a path bound to the commit pinned there.  This is tree truth --
		whether '.gitmodules' mentions the path is a separate matter.
	*/
	Gitlink struct {
		Path   string
		Commit CommitID
	}

	/*
		CurrentSubmodule is a submodule found initialized in a worktree
		right now: its path relative to the parent worktree root, and
		its own worktree root as an openable location.
	*/
	CurrentSubmodule struct {
		Path     string
		Location RepoLocation
	}
)

/*
	DiscoveryNode is one repository-worth of tree found during the walk:
	the root being archived, or a gitlink found in some ancestor's tree.

	Path is slash-separated and relative to the archive root; it is ""
	for the root node itself.  Repo is the repository whose tree the
	gitlink was found in (for the root node, the repository being
	archived).  Depth counts submodule nesting: 0 for the root, 1 for
	its direct submodules, and so on.
*/
type DiscoveryNode struct {
	Path   string
	Repo   RepoLocation
	Commit CommitID
	Depth  int
}

/*
	ResolvedTask is a DiscoveryNode bound to the SourceCandidate that
	actually contains its commit, plus the path prefix its entries will
	carry in the merged archive.  One fragment is serialized per task.
*/
type ResolvedTask struct {
	Node   DiscoveryNode
	Source SourceCandidate
	Prefix string `refmt:",omitempty"`
}

/*
	ResolutionFailure records a submodule commit that no known repository
	contained.  Tried lists every candidate consulted, in the order
	consulted.  SubmoduleHint carries the '.gitmodules' stanza for this
	path as committed in the parent -- often the URL there tells the user
	exactly which repository they need to supply via lookup.
*/
type ResolutionFailure struct {
	Node          DiscoveryNode
	Tried         []SourceCandidate
	Reason        string
	SubmoduleHint [][2]string `refmt:",omitempty"`
}

/*
	TaskFailure records a task whose commit resolved fine but whose tree
	could not be fully serialized (missing or corrupt objects, usually).
*/
type TaskFailure struct {
	Task   ResolvedTask
	Reason string
}

/*
	Report is the full account of one archiving run: what was asked for,
	every subtree that was resolved (in archive order), and everything
	that went wrong.  A run succeeded iff both failure lists are empty.

	Serialized as json when the command line is asked for API output.
*/
type Report struct {
	Commit             CommitID
	Destination        string              `refmt:",omitempty"`
	Prefix             string              `refmt:",omitempty"`
	DryRun             bool                `refmt:",omitempty"`
	Resolved           []ResolvedTask      `refmt:",omitempty"`
	ResolutionFailures []ResolutionFailure `refmt:",omitempty"`
	ArchiveFailures    []TaskFailure       `refmt:",omitempty"`
}

/*
	Ok is true when every discovered subtree was resolved and archived.
*/
func (r Report) Ok() bool {
	return len(r.ResolutionFailures) == 0 && len(r.ArchiveFailures) == 0
}
