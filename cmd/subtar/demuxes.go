package main

import (
	"archive/tar"
	"fmt"
	"io"
	"os"

	"github.com/polydawn/refmt"
	"github.com/polydawn/refmt/json"
	"github.com/polydawn/refmt/obj/atlas"

	"github.com/polydawn/subtar/api"
	tartrans "github.com/polydawn/subtar/transmat/tar"
)

/*
	demuxEvents renders the operation's event stream as it happens: log
	lines on stderr for humans, or one json document per event for
	machines.  Result events are skipped here; the result is serialized
	separately, once, when the operation returns.
*/
func demuxEvents(cli baseCLI, events <-chan api.Event, stdout, stderr io.Writer) {
	switch cli.Format {
	case FmtJson:
		for evt := range events {
			if evt.Result != nil {
				continue
			}
			marshalJson(&evt, api.Atlas, stdout)
		}
	case FmtDumb:
		for evt := range events {
			switch {
			case evt.Log != nil:
				if evt.Log.Level <= api.LogDebug && !cli.Verbose {
					continue
				}
				fmt.Fprintf(stderr, "%s: %s\n", evt.Log.Level, evt.Log.Msg)
			case evt.Progress != nil:
				if cli.ProgressEnable {
					fmt.Fprintf(stderr, "%s: %s (%d/%d)\n",
						evt.Progress.Phase, evt.Progress.Desc, evt.Progress.TotalProg, evt.Progress.TotalWork)
				}
			}
		}
	default:
		panic(fmt.Errorf("subtar: invalid format %s", cli.Format))
	}
}

func printArchiveResult(format string, report api.Report, resultErr error, stdout, stderr io.Writer) api.ExitCode {
	switch format {
	case FmtJson:
		result := &api.Event_Result{Report: report}
		result.SetError(resultErr)
		marshalJson(&api.Event{Result: result}, api.Atlas, stdout)
	case FmtDumb:
		switch {
		case resultErr != nil:
			for _, failure := range report.ResolutionFailures {
				fmt.Fprintf(stderr, "unresolved: %s wants commit %s: %s\n",
					dotPath(failure.Node.Path), failure.Node.Commit.Short(), failure.Reason)
				for _, kv := range failure.SubmoduleHint {
					fmt.Fprintf(stderr, "    %s = %s\n", kv[0], kv[1])
				}
			}
			for _, failure := range report.ArchiveFailures {
				fmt.Fprintf(stderr, "failed: %s: %s\n", dotPath(failure.Task.Node.Path), failure.Reason)
			}
			fmt.Fprintln(stderr, resultErr)
		case report.DryRun:
			for _, task := range report.Resolved {
				fmt.Fprintf(stdout, "%s  %s  %s\n", task.Node.Commit.Short(), dotPath(task.Node.Path), task.Source.Location)
			}
		default:
			fmt.Fprintln(stdout, report.Destination)
		}
	default:
		panic(fmt.Errorf("subtar: invalid format %s", format))
	}
	return exitCodeForError(resultErr)
}

func dotPath(path string) string {
	if path == "" {
		return "."
	}
	return path
}

func printLsEntries(format string, entries []tartrans.Entry, stdout io.Writer) {
	switch format {
	case FmtJson:
		for i := range entries {
			marshalJson(&entries[i], tartrans.Atlas, stdout)
		}
	case FmtDumb:
		for _, ent := range entries {
			fmt.Fprintln(stdout, renderLsEntry(ent))
		}
	default:
		panic(fmt.Errorf("subtar: invalid format %s", format))
	}
}

func renderLsEntry(ent tartrans.Entry) string {
	typec := byte('-')
	switch ent.Typeflag {
	case tar.TypeDir:
		typec = 'd'
	case tar.TypeSymlink:
		typec = 'l'
	case tar.TypeXGlobalHeader:
		typec = 'g'
	}
	perms := os.FileMode(ent.Mode & 0777).String()[1:]
	line := fmt.Sprintf("%c%s %8d  %s  %s",
		typec, perms, ent.Size, ent.ModTime.UTC().Format("2006-01-02 15:04"), ent.Name)
	switch {
	case ent.Typeflag == tar.TypeSymlink:
		line += " -> " + ent.Linkname
	case ent.Typeflag == tar.TypeXGlobalHeader && ent.PAXRecords["comment"] != "":
		line += "  comment=" + ent.PAXRecords["comment"]
	}
	return line
}

func marshalJson(v interface{}, atl atlas.Atlas, w io.Writer) {
	marshaller := refmt.NewMarshallerAtlased(json.EncodeOptions{}, w, atl)
	if err := marshaller.Marshal(v); err != nil {
		panic(err)
	}
	fmt.Fprintln(w)
}

