/*
	The sources package tracks every repository an archiving run is
	allowed to read, and serves ordered candidate lists when a submodule
	commit has to be hunted down.

	The registry grows append-only as discovery proceeds: the top
	repository seeds it, and each time a subtree resolves somewhere, the
	checked-out submodules of that somewhere are registered as further
	candidates.  User-supplied lookup locations sit in their own tier,
	always consulted last, always in the order given.

	Nothing here touches the filesystem; the registry is bookkeeping
	only, and it is mutated from a single goroutine (discovery is
	sequential), so there are no locks.
*/
package sources

import (
	"github.com/polydawn/subtar/api"
)

type Registry struct {
	registered []entry
	lookups    []api.SourceCandidate
	scanned    map[api.RepoLocation]bool
}

type entry struct {
	// Archive-root-relative path this repository is known to be checked
	// out at; "" for the top repository.  A candidate whose hint equals
	// the path being resolved is almost always the right answer, so
	// those get consulted first.
	pathHint  string
	candidate api.SourceCandidate
}

func NewRegistry() *Registry {
	return &Registry{
		scanned: make(map[api.RepoLocation]bool),
	}
}

/*
	Register adds a repository under the archive-root-relative path it
	is checked out at ("" for the top repository).  Exact duplicates
	(same location, same hint) are dropped; everything else appends.
*/
func (r *Registry) Register(candidate api.SourceCandidate, pathHint string) {
	for _, e := range r.registered {
		if e.pathHint == pathHint && e.candidate.Location == candidate.Location {
			return
		}
	}
	r.registered = append(r.registered, entry{pathHint, candidate})
}

// AddLookup appends a user-supplied location to the last-resort tier.
// No dedup here: the user's list is consulted verbatim, in order.
func (r *Registry) AddLookup(location api.RepoLocation) {
	r.lookups = append(r.lookups, api.SourceCandidate{
		Location: location,
		Origin:   api.OriginLookup,
	})
}

/*
	CandidatesFor returns every repository worth asking about the commit
	pinned at the given path, most-plausible first:

	  1. registered repositories checked out at exactly that path;
	  2. every other registered repository, in registration order
	     (the top repository and the submodules found so far);
	  3. the user's lookup locations, in the order given.

	The same location can legitimately show up in more than one tier;
	resolution is a content check, so asking twice is merely redundant,
	not wrong.
*/
func (r *Registry) CandidatesFor(path string) []api.SourceCandidate {
	out := make([]api.SourceCandidate, 0, len(r.registered)+len(r.lookups))
	for _, e := range r.registered {
		if e.pathHint == path {
			out = append(out, e.candidate)
		}
	}
	for _, e := range r.registered {
		if e.pathHint != path {
			out = append(out, e.candidate)
		}
	}
	out = append(out, r.lookups...)
	return out
}

// MarkScanned records that a location's own checked-out submodules have
// been registered, so discovery never rescans (or loops on) it.
func (r *Registry) MarkScanned(location api.RepoLocation) {
	r.scanned[location] = true
}

func (r *Registry) Scanned(location api.RepoLocation) bool {
	return r.scanned[location]
}
