package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"time"

	. "github.com/warpfork/go-errcat"
	"golang.org/x/sys/unix"
	"gopkg.in/alecthomas/kingpin.v2"

	"github.com/polydawn/subtar/api"
	"github.com/polydawn/subtar/config"
	"github.com/polydawn/subtar/gitstore"
	"github.com/polydawn/subtar/stitch"
	tartrans "github.com/polydawn/subtar/transmat/tar"
)

/*
	Output serialization formats
*/
const (
	FmtJson = "json"
	FmtDumb = "dumb"
)

type baseCLI struct {
	Format         string        // Output api format, eg. json
	Timeout        time.Duration // Timeout for command eg. "60s"
	Verbose        bool          // Emit debug-level log events yes/no
	ProgressEnable bool          // Emit progress notification yes/no
	ArchiveCLI     struct {
		Revision string   // Revision to archive (anything revparse understands)
		RepoPath string   // Repository, or any path inside its worktree
		Output   string   // Destination archive path
		Prefix   string   // Path prefix for every entry
		Lookups  []string // Extra repositories to consult
		Jobs     int      // Concurrent archive jobs
		Depth    int      // Submodule recursion limit
		DryRun   bool     // Resolve everything, archive nothing
	}
	LsCLI struct {
		Archive string // Archive file to read
	}
}

func configureArchive(cli *baseCLI, appArchive *kingpin.CmdClause) {
	appArchive.Arg("revision", "Revision to archive (anything revparse understands)").
		Default("HEAD").
		StringVar(&cli.ArchiveCLI.Revision)
	appArchive.Flag("output", "Destination archive path (required unless --dry-run)").
		Short('o').
		StringVar(&cli.ArchiveCLI.Output)
	appArchive.Flag("repo", "Repository to archive (any path inside its worktree will do)").
		Short('C').
		Default(".").
		StringVar(&cli.ArchiveCLI.RepoPath)
	appArchive.Flag("prefix", "Prepend this prefix to every entry in the archive").
		StringVar(&cli.ArchiveCLI.Prefix)
	appArchive.Flag("lookup", "Extra repository to consult when a submodule commit can't be found in a checkout (repeatable)").
		Short('l').
		StringsVar(&cli.ArchiveCLI.Lookups)
	appArchive.Flag("jobs", "Concurrent archive jobs (0 for unbounded)").
		Short('j').
		Default(strconv.Itoa(runtime.NumCPU())).
		IntVar(&cli.ArchiveCLI.Jobs)
	appArchive.Flag("depth", "Submodule recursion limit (-1 for unbounded, 0 for the root alone)").
		Default("-1").
		IntVar(&cli.ArchiveCLI.Depth)
	appArchive.Flag("dry-run", "Resolve every submodule commit, report, and write nothing").
		Short('n').
		BoolVar(&cli.ArchiveCLI.DryRun)
}

func configureLs(cli *baseCLI, appLs *kingpin.CmdClause) {
	appLs.Arg("archive", "Archive file to read").
		Required().
		StringVar(&cli.LsCLI.Archive)
}

/*
	Blocks until a sigint is received, then calls cancel.
*/
func CancelOnInterrupt(cancel context.CancelFunc) {
	signalChan := make(chan os.Signal, 1)
	signal.Notify(signalChan, os.Interrupt)
	<-signalChan
	cancel()
	close(signalChan)
}

func main() {
	ctx := context.Background()
	exitCode := Main(ctx, os.Args, os.Stdin, os.Stdout, os.Stderr)
	os.Exit(int(exitCode))
}

func Main(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) api.ExitCode {
	exitCode := api.ExitSuccess
	ctx, cancel := context.WithCancel(ctx)
	go CancelOnInterrupt(cancel)

	cli := baseCLI{}

	app := kingpin.New("subtar", "Archive a git revision and all its submodules as one tree")
	app.HelpFlag.Short('h')

	app.UsageWriter(stderr)
	app.ErrorWriter(stderr)

	app.Flag("format", "Output api format").
		Default(FmtDumb).
		EnumVar(&cli.Format, FmtJson, FmtDumb)
	app.Flag("timeout", "Timeout for command").
		DurationVar(&cli.Timeout)
	app.Flag("verbose", "Emit debug-level log events").
		Short('v').
		BoolVar(&cli.Verbose)
	app.Flag("progress", "Emit progress notification").
		BoolVar(&cli.ProgressEnable)

	appArchive := app.Command("archive", "archive a revision and its submodules, recursively")
	configureArchive(&cli, appArchive)

	appLs := app.Command("ls", "list the entries of an archive")
	configureLs(&cli, appLs)

	var termErr error
	app.Terminate(func(status int) {
		termErr = fmt.Errorf("parsing error: %d\n", status)
	})
	cmd, err := app.Parse(args[1:])
	if err != nil {
		fmt.Fprintln(stderr, err)
		return api.ExitUsage
	}
	if termErr != nil {
		fmt.Fprintln(stderr, termErr)
		return api.ExitUsage
	}
	if cli.Timeout > 0 {
		var cancelTimeout context.CancelFunc
		ctx, cancelTimeout = context.WithTimeout(ctx, cli.Timeout)
		defer cancelTimeout()
	}
	switch cmd {
	case appArchive.FullCommand():
		report, err := executeArchive(ctx, cli, stdout, stderr)
		exitCode = printArchiveResult(cli.Format, report, err, stdout, stderr)
	case appLs.FullCommand():
		err := executeLs(cli, stdout)
		if err != nil {
			fmt.Fprintln(stderr, err)
		}
		exitCode = exitCodeForError(err)
	}

	return exitCode
}

func executeArchive(ctx context.Context, cli baseCLI, stdout, stderr io.Writer) (api.Report, error) {
	none := api.Report{}
	if cli.ArchiveCLI.Jobs < 0 {
		return none, Errorf(api.ErrUsage, "--jobs must be zero or more")
	}
	if cli.ArchiveCLI.Depth < -1 {
		return none, Errorf(api.ErrUsage, "--depth must be -1 or more")
	}
	if strings.HasPrefix(cli.ArchiveCLI.Prefix, "/") {
		return none, Errorf(api.ErrUsage, "--prefix must be a relative path")
	}
	destination := ""
	if !cli.ArchiveCLI.DryRun {
		if cli.ArchiveCLI.Output == "" {
			return none, Errorf(api.ErrUsage, "--output is required (or use --dry-run)")
		}
		if format, known := tartrans.DetectFormat(cli.ArchiveCLI.Output); known && format != tartrans.FormatTar {
			return none, Errorf(api.ErrNotImplemented, "writing %s archives is not implemented; name a plain .tar destination", format)
		}
		abs, err := filepath.Abs(cli.ArchiveCLI.Output)
		if err != nil {
			return none, Errorf(api.ErrUsage, "bad --output path: %s", err)
		}
		if err := unix.Access(filepath.Dir(abs), unix.W_OK); err != nil {
			return none, Errorf(api.ErrDestinationUnwritable, "cannot write into %q: %s", filepath.Dir(abs), err)
		}
		destination = abs
	}

	store := gitstore.New()
	repoLoc, err := gitstore.FindRepo(cli.ArchiveCLI.RepoPath)
	if err != nil {
		return none, err
	}
	var lookups []api.RepoLocation
	for _, lk := range cli.ArchiveCLI.Lookups {
		abs, err := filepath.Abs(lk)
		if err != nil {
			return none, Errorf(api.ErrUsage, "bad --lookup path: %s", err)
		}
		loc := api.RepoLocation(abs)
		if err := store.CheckLocation(loc); err != nil {
			return none, err
		}
		lookups = append(lookups, loc)
	}
	commit, err := store.ResolveRevision(repoLoc, cli.ArchiveCLI.Revision)
	if err != nil {
		return none, err
	}

	evtChan := make(chan api.Event)
	demuxDone := make(chan struct{})
	go func() {
		defer close(demuxDone)
		demuxEvents(cli, evtChan, stdout, stderr)
	}()
	ta := &stitch.TreeArchiver{
		Store:    store,
		SpoolDir: config.GetSpoolPath(),
	}
	policy := api.ArchivePolicy{
		MaxDepth:       cli.ArchiveCLI.Depth,
		MaxConcurrency: cli.ArchiveCLI.Jobs,
	}
	report, err := ta.Archive(ctx, repoLoc, commit, destination, cli.ArchiveCLI.Prefix, policy, lookups, api.Monitor{Chan: evtChan})
	<-demuxDone
	return report, err
}

func executeLs(cli baseCLI, stdout io.Writer) error {
	f, err := os.Open(cli.LsCLI.Archive)
	if err != nil {
		return Errorf(api.ErrUsage, "cannot open archive: %s", err)
	}
	defer f.Close()
	entries, err := tartrans.ListArchive(f)
	if err != nil {
		return err
	}
	printLsEntries(cli.Format, entries, stdout)
	return nil
}

func exitCodeForError(err error) api.ExitCode {
	if err == nil {
		return api.ExitSuccess
	}
	return api.ExitCodeForCategory(Category(err))
}
