// Command consolectl drives the console API from the terminal: submit jobs,
// inspect saved settings and browse the warehouse catalog.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"

	"datapipe/console/internal/api"
	"datapipe/console/internal/jobs"
	"datapipe/console/internal/params"
)

func usage() {
	fmt.Fprintf(os.Stderr, `usage: consolectl [flags] <command> [args]

commands:
  submit --type <job-type> [--id <job-id>] [--params <json>] [--ignore-result] [--wait]
  settings --type <job-type>
  databases
  tables --database <name> [--suffix <s>]...
  dates --database <name> --table <name> [--start <date>] [--end <date>]
  watch --id <job-id> [--channel <name>]
`)
	os.Exit(2)
}

func main() {
	server := flag.String("server", "http://localhost:8080", "console API base URL")
	flag.Usage = usage
	flag.Parse()

	if flag.NArg() < 1 {
		usage()
	}

	client, err := api.NewClient(*server)
	if err != nil {
		log.Fatalf("consolectl: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, client, flag.Arg(0), flag.Args()[1:]); err != nil {
		log.Fatalf("consolectl: %v", err)
	}
}

func run(ctx context.Context, client *api.Client, command string, args []string) error {
	switch command {
	case "submit":
		return runSubmit(ctx, client, args)
	case "settings":
		return runSettings(ctx, client, args)
	case "databases":
		return runDatabases(ctx, client)
	case "tables":
		return runTables(ctx, client, args)
	case "dates":
		return runDates(ctx, client, args)
	case "watch":
		return runWatch(ctx, client, args)
	default:
		return fmt.Errorf("unknown command %q", command)
	}
}

func runSubmit(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("submit", flag.ExitOnError)
	jobType := fs.String("type", "", "job type")
	jobID := fs.String("id", "", "job ID, generated when empty")
	rawParams := fs.String("params", "{}", "job parameters as a JSON object")
	ignoreResult := fs.Bool("ignore-result", false, "drop the result record on completion")
	wait := fs.Bool("wait", false, "block until the completion signal arrives")
	channel := fs.String("channel", "", "completion channel to watch")
	fs.Parse(args)

	parsed, err := jobs.ParseType(*jobType)
	if err != nil {
		return err
	}

	var p params.Params
	if err := json.Unmarshal([]byte(*rawParams), &p); err != nil {
		return fmt.Errorf("parse params: %w", err)
	}

	assigned, err := client.Submit(ctx, parsed, *jobID, p, *ignoreResult)
	if err != nil {
		return err
	}
	fmt.Println(assigned)

	if !*wait {
		return nil
	}
	return client.Watch(ctx, *channel, assigned)
}

func runSettings(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("settings", flag.ExitOnError)
	jobType := fs.String("type", "", "job type")
	fs.Parse(args)

	parsed, err := jobs.ParseType(*jobType)
	if err != nil {
		return err
	}

	p, err := client.LastSettings(ctx, parsed)
	if err != nil {
		return err
	}
	if p == nil {
		return nil
	}
	encoded, err := json.Marshal(p)
	if err != nil {
		return err
	}
	fmt.Println(string(encoded))
	return nil
}

func runDatabases(ctx context.Context, client *api.Client) error {
	databases, err := client.Databases(ctx)
	if err != nil {
		return err
	}
	for _, name := range databases {
		fmt.Println(name)
	}
	return nil
}

func runTables(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("tables", flag.ExitOnError)
	database := fs.String("database", "", "database to list")
	var suffixes stringList
	fs.Var(&suffixes, "suffix", "table name suffix filter, repeatable")
	fs.Parse(args)

	tables, err := client.Tables(ctx, *database, suffixes)
	if err != nil {
		return err
	}
	for _, name := range tables {
		fmt.Println(name)
	}
	return nil
}

func runDates(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("dates", flag.ExitOnError)
	database := fs.String("database", "", "database holding the table")
	table := fs.String("table", "", "table to inspect")
	start := fs.String("start", "", "lower date bound")
	end := fs.String("end", "", "upper date bound")
	fs.Parse(args)

	dates, err := client.Dates(ctx, *database, *table, *start, *end)
	if err != nil {
		return err
	}
	for _, date := range dates {
		fmt.Println(date)
	}
	return nil
}

func runWatch(ctx context.Context, client *api.Client, args []string) error {
	fs := flag.NewFlagSet("watch", flag.ExitOnError)
	jobID := fs.String("id", "", "job to wait for")
	channel := fs.String("channel", "", "completion channel to watch")
	fs.Parse(args)

	if *jobID == "" {
		return fmt.Errorf("watch requires --id")
	}
	if err := client.Watch(ctx, *channel, *jobID); err != nil {
		return err
	}
	fmt.Printf("job %s finished\n", *jobID)
	return nil
}

type stringList []string

func (l *stringList) String() string { return fmt.Sprint(*l) }

func (l *stringList) Set(value string) error {
	*l = append(*l, value)
	return nil
}
