package subtarexecclient

import (
	"bytes"
	"context"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	. "github.com/warpfork/go-errcat"

	"github.com/polydawn/subtar/api"
)

var _ api.ArchiveFunc = ArchiveFunc

/*
	ArchiveFunc runs an archiving job by forking a 'subtar' binary found
	on PATH and speaking its json api over the child's stdout.

	The caller gets the same Report and error categories an in-process
	call would produce; the child's log and progress events are relayed
	to the monitor channel along the way.
*/
func ArchiveFunc(
	ctx context.Context,
	repo api.RepoLocation,
	commit api.CommitID,
	destination string,
	prefix string,
	policy api.ArchivePolicy,
	lookups []api.RepoLocation,
	monitor api.Monitor,
) (api.Report, error) {
	// Marshal args.
	args, err := ArchiveArgs(repo, commit, destination, prefix, policy, lookups, monitor)
	if err != nil {
		return api.Report{}, err
	}
	// Bulk of invoking and handling process messages is below.
	return forkAndListen(ctx, args, monitor)
}

// internal implementation of spawning the child process and converting
// its message stream into monitor sends, a final report, and an error
// with the category put back on.
func forkAndListen(
	ctx context.Context,
	args []string,
	monitor api.Monitor,
) (api.Report, error) {
	if monitor.Chan != nil {
		defer close(monitor.Chan)
	}

	// Spawn process.
	cmd := exec.Command("subtar", args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return api.Report{}, Errorf(api.ErrRPCBreakdown, "fork subtar: failed to start: %s", err)
	}
	var stderrBuf bytes.Buffer
	cmd.Stderr = &stderrBuf
	if err = cmd.Start(); err != nil {
		return api.Report{}, Errorf(api.ErrRPCBreakdown, "fork subtar: failed to start: %s", err)
	}

	// Set up reaction to ctx.done: send a sig to the child proc.
	//  (No, you couldn't set this up without a goroutine -- you can't select with the IO we're about to do;
	//  and No, you couldn't do it until after cmd.Start -- the Process handle doesn't exist until then.)
	go func() {
		<-ctx.Done() // FIXME goroutine leak occurs when the process ends gracefully
		cmd.Process.Signal(os.Interrupt)
		time.Sleep(100 * time.Millisecond)
		cmd.Process.Signal(os.Kill)
	}()

	// Consume stdout, converting it to Monitor.Chan sends.
	//  When exiting because the child sent its 'result' message correctly, the
	//  msgSlot will hold the final data (or error); we'll review it at the end,
	//  but we also check the exit code for a match.
	//  (We're relying on the child proc getting signal'd to close the stdout pipe
	//  and in turn release us here in case of ctx.done.)
	unmarshaller := refmt.NewUnmarshallerAtlased(json.DecodeOptions{}, stdout, api.Atlas)
	var msgSlot api.Event
	for {
		// Peel off a message.
		if err := unmarshaller.Unmarshal(&msgSlot); err != nil {
			if err == io.EOF {
				// In case of unexpected EOF, there must have been a panic on the other side;
				//  it'll be more informative to break here and return the error from Wait,
				//  which will include the stderr capture.
				break
			}
			return api.Report{}, Errorf(api.ErrRPCBreakdown, "fork subtar: api parse error: %s", err)
		}

		// If it's the final "result" message, prepare to return.
		if msgSlot.Result != nil {
			// Bail.  We'll review this last message frame in a second.
			break
		}
		// For all other messages: forward to the monitor channel (if it exists!)
		if monitor.Chan != nil {
			select {
			case <-ctx.Done():
				break
			case monitor.Chan <- msgSlot:
				// continue
			}
		}
	}

	// Wait for process complete.
	//  The exit code SHOULD be redundant with the error we SHOULD have already
	//  deserialized... but we check that it all matches up.
	code, err := waitFor(cmd)
	if err != nil {
		return api.Report{}, Errorf(api.ErrRPCBreakdown, "fork subtar: wait error: %s (stderr: %q)", err, stderrBuf.String())
	}
	if code == 0 {
		// If the exit code was success, we'd sure better have gotten the rightly formatted result message.
		if msgSlot.Result == nil {
			return api.Report{}, Errorf(api.ErrRPCBreakdown, "fork subtar: exited zero, but no clear result?! (stderr: %q)", stderrBuf.String())
		}
		if msgSlot.Result.Error != nil {
			return api.Report{}, Errorf(api.ErrRPCBreakdown, "fork subtar: exited zero, but result had error, category=%s: %s", msgSlot.Result.Error.Category_, msgSlot.Result.Error.Message_)
		}
		return msgSlot.Result.Report, nil // This is the happy path return!
	}
	// For non-zero exits: Check match for sanity.
	exitCategory := api.CategoryForExitCode(api.ExitCode(code))
	if msgSlot.Result == nil || msgSlot.Result.Error == nil {
		return api.Report{}, Errorf(exitCategory, "no message available (stderr: %q)", stderrBuf.String())
	}
	if msgSlot.Result.Error.Category() != exitCategory {
		return api.Report{}, Errorf(exitCategory, "no message available (stderr: %q)", stderrBuf.String())
	}
	// This is the clean error path!  The report still rides along: it
	// carries the per-subtree failure detail the child collected.
	return msgSlot.Result.Report, msgSlot.Result.Error
}
