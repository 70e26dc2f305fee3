// Command autogen advances job pipelines described in a job file.
package main

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"
	autogen "github.com/goliatone/go-autogen"
	"github.com/goliatone/go-autogen/jobconfig"
	"github.com/goliatone/go-autogen/store"
	_ "github.com/mattn/go-sqlite3"
)

// CLI is the command tree.
type CLI struct {
	Jobs     string `short:"f" default:"jobs.yaml" env:"AUTOGEN_JOBS" help:"Job description file (YAML or JSON)."`
	Store    string `env:"AUTOGEN_STORE" help:"SQLite database for job records, overrides the job file."`
	LogLevel string `default:"info" enum:"trace,debug,info,warn,error" env:"AUTOGEN_LOG_LEVEL" help:"Log level."`
	LogJSON  bool   `env:"AUTOGEN_LOG_JSON" help:"Log as JSON."`

	Advance AdvanceCmd `cmd:"" help:"Advance every job by one step."`
	Watch   WatchCmd   `cmd:"" help:"Advance jobs on a cron schedule until they finish."`
	Status  StatusCmd  `cmd:"" help:"Print recorded job status."`
	Diff    DiffCmd    `cmd:"" help:"Compare the settings of two job files."`
	Merge   MergeCmd   `cmd:"" help:"Merge safe settings of a newer job file into an older one."`
}

// runtime is bound into every command's Run method.
type runtime struct {
	ctx    context.Context
	cli    *CLI
	out    io.Writer
	logger autogen.Logger
}

func (rt *runtime) loadJobs() (*jobconfig.JobSet, error) {
	return jobconfig.LoadJobsFile(rt.cli.Jobs)
}

// openStore prefers --store over the job file's store section.
func (rt *runtime) openStore(set *jobconfig.JobSet) (store.Store, func() error, error) {
	cfg := jobconfig.StoreConfig{}
	if set != nil {
		cfg = set.Store
	}
	if rt.cli.Store != "" {
		cfg = jobconfig.StoreConfig{Driver: "sqlite3", DSN: rt.cli.Store}
	}
	return store.Open(cfg)
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "autogen: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	var cli CLI
	parser, err := kong.New(&cli,
		kong.Name("autogen"),
		kong.Description("Drive long running computations through write, submit, poll and collect."),
		kong.Writers(stdout, stderr),
		kong.UsageOnError(),
	)
	if err != nil {
		return err
	}
	kctx, err := parser.Parse(args)
	if err != nil {
		return err
	}

	rt := &runtime{
		ctx:    ctx,
		cli:    &cli,
		out:    stdout,
		logger: newLogger(stderr, cli.LogLevel, cli.LogJSON),
	}
	return kctx.Run(rt)
}
