package subtarexecclient

import (
	"strconv"

	"github.com/polydawn/subtar/api"
)

func ArchiveArgs(
	repo api.RepoLocation,
	commit api.CommitID,
	destination string,
	prefix string,
	policy api.ArchivePolicy,
	lookups []api.RepoLocation,
	monitor api.Monitor,
) ([]string, error) {
	// Required args.
	args := []string{"archive", "--format=json"}

	// Repository and destination.
	//  A blank destination means dry-run in the function api; the CLI
	//  spells that as a flag.
	args = append(args, "--repo="+string(repo))
	if destination == "" {
		args = append(args, "--dry-run")
	} else {
		args = append(args, "--output="+destination)
	}

	// Append prefix if specified.
	//  (We could just pass it even when emptystr, but let's be nice to readers of 'ps'.)
	if prefix != "" {
		args = append(args, "--prefix="+prefix)
	}

	// Append policy knobs unconditionally.
	//  Their zero values are meaningful ("unbounded" both times), and the
	//  CLI defaults differ (--jobs defaults to NumCPU there), so silence
	//  would not mean the same thing.
	args = append(args, "--jobs="+strconv.Itoa(policy.MaxConcurrency))
	args = append(args, "--depth="+strconv.Itoa(policy.MaxDepth))

	// Append lookups.
	//  Giving this argument repeatedly forms a list in the subtar CLI.
	for _, lookup := range lookups {
		args = append(args, "--lookup="+string(lookup))
	}

	// Append monitor options.
	//  Progress frames are only worth the child's breath if someone is
	//  listening for them.
	if monitor.Chan != nil {
		args = append(args, "--progress")
	}

	// Suffix the main bits.
	//  This is last so we can use the "--" to terminate acceptance of flags
	//  (which is important because, well, what if someone really does name
	//  a branch "--lol"?  Commit IDs can't collide with flags, but the "--"
	//  costs nothing and the revision arg accepts more than commit IDs.)
	args = append(args, "--", string(commit))

	// Done!
	return args, nil
}
