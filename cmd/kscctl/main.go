// ABOUTME: One-shot command line client for Kaspersky Security Center
// ABOUTME: Runs a single service operation and renders the result with lipgloss

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/harper/ksc-bridge/internal/config"
	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/render"
	"github.com/harper/ksc-bridge/internal/service"
	"github.com/harper/ksc-bridge/internal/session"
	"github.com/harper/ksc-bridge/internal/telemetry"
)

var version = "dev"

const usage = `usage: kscctl [--config file] [--theme default|light] [--verbose] <command> [args]

commands:
  ping                          check the server answers
  hosts [--group g] [--status s] [--limit n]
  host <id>                     host details
  move-host <id> <group-id>
  groups [--name n] [--parent id] [--limit n]
  remove-group <id> [--wait seconds]
  tasks [--group id] [--limit n]
  run-task <id>
  task-state <id>
  version`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	global := flag.NewFlagSet("kscctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	global.Usage = func() { fmt.Fprintln(stderr, usage) }
	configPath := global.String("config", "", "path to config file")
	themeName := global.String("theme", "default", "color theme")
	verbose := global.Bool("verbose", false, "enable debug logging")
	if err := global.Parse(args); err != nil {
		return 2
	}
	rest := global.Args()
	if len(rest) == 0 {
		global.Usage()
		return 2
	}
	if rest[0] == "version" {
		fmt.Fprintf(stdout, "kscctl %s\n", version)
		return 0
	}

	logger.SetOutput(stderr)
	logger.SetLevel(logger.LevelWarn)
	if *verbose {
		logger.SetVerbose(true)
	}
	p := render.New(stdout, render.GetTheme(*themeName))

	cfg, err := config.Load(*configPath)
	if err == nil {
		err = cfg.Validate()
	}
	if err != nil {
		p.Error(err)
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	sessCfg := cfg.KSC.Session()
	if cfg.KSC.Tracing {
		tp, err := telemetry.Open(cfg.KSC.TraceFile, version)
		if err != nil {
			p.Error(err)
			return 1
		}
		defer func() { _ = tp.Shutdown(context.WithoutCancel(ctx)) }()
		sessCfg = tp.Instrument(sessCfg)
	}

	sess := session.New(sessCfg)
	defer sess.Close(context.WithoutCancel(ctx))
	svc := service.New(sess, cfg.KSC.Service())

	if err := dispatch(ctx, svc, p, rest[0], rest[1:]); err != nil {
		var usageErr usageError
		if errors.As(err, &usageErr) {
			fmt.Fprintln(stderr, usageErr)
			fmt.Fprintln(stderr, usage)
			return 2
		}
		p.Error(err)
		return 1
	}
	return 0
}

type usageError string

func (e usageError) Error() string { return string(e) }

func positional(fs *flag.FlagSet, args []string, names ...string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, usageError(err.Error())
	}
	if fs.NArg() != len(names) {
		return nil, usageError(fmt.Sprintf("%s expects %d argument(s): %v", fs.Name(), len(names), names))
	}
	return fs.Args(), nil
}

//nolint:funlen,gocognit // one case per command
func dispatch(ctx context.Context, svc *service.Service, p *render.Printer, cmd string, args []string) error {
	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.SetOutput(io.Discard)

	switch cmd {
	case "ping":
		if _, err := positional(fs, args); err != nil {
			return err
		}
		pong, err := svc.Ping(ctx)
		if err != nil {
			return err
		}
		p.Success(pong)

	case "hosts":
		var q service.HostQuery
		fs.StringVar(&q.GroupName, "group", "", "group name")
		fs.StringVar(&q.Status, "status", "", "ok, critical or warning")
		fs.IntVar(&q.Limit, "limit", 0, "maximum hosts; -1 for all")
		if _, err := positional(fs, args); err != nil {
			return err
		}
		list, err := svc.ListHosts(ctx, q)
		if err != nil {
			return err
		}
		p.Hosts(list)

	case "host":
		pos, err := positional(fs, args, "id")
		if err != nil {
			return err
		}
		h, err := svc.GetHostDetails(ctx, pos[0])
		if err != nil {
			return err
		}
		p.Host(h)

	case "move-host":
		pos, err := positional(fs, args, "id", "group-id")
		if err != nil {
			return err
		}
		group, err := strconv.ParseInt(pos[1], 10, 64)
		if err != nil {
			return usageError("group-id must be an integer")
		}
		res, err := svc.MoveHost(ctx, pos[0], group)
		if err != nil {
			return err
		}
		p.Success(fmt.Sprintf("host %s moved to group %d", res.HostID, res.GroupID))

	case "groups":
		var q service.GroupQuery
		parent := fs.Int64("parent", -1, "parent group id")
		fs.StringVar(&q.Name, "name", "", "group name filter")
		fs.IntVar(&q.Limit, "limit", 0, "maximum groups; -1 for all")
		if _, err := positional(fs, args); err != nil {
			return err
		}
		if *parent >= 0 {
			q.ParentID = parent
		}
		list, err := svc.ListGroups(ctx, q)
		if err != nil {
			return err
		}
		p.Groups(list)

	case "remove-group":
		wait := fs.Int("wait", 0, "seconds to wait for completion; 0 uses the configured bound")
		pos, err := positional(fs, args, "id")
		if err != nil {
			return err
		}
		id, err := strconv.ParseInt(pos[0], 10, 64)
		if err != nil {
			return usageError("id must be an integer")
		}
		res, err := svc.RemoveGroup(ctx, id, time.Duration(*wait)*time.Second)
		if res != nil {
			p.Removal(res)
		}
		return err

	case "tasks":
		q := service.TaskQuery{GroupID: -1}
		fs.Int64Var(&q.GroupID, "group", -1, "group id; -1 for all")
		fs.IntVar(&q.Limit, "limit", 0, "maximum tasks; -1 for all")
		if _, err := positional(fs, args); err != nil {
			return err
		}
		list, err := svc.ListTasks(ctx, q)
		if err != nil {
			return err
		}
		p.Tasks(list)

	case "run-task":
		pos, err := positional(fs, args, "id")
		if err != nil {
			return err
		}
		res, err := svc.RunTask(ctx, pos[0])
		if err != nil {
			return err
		}
		p.Success(fmt.Sprintf("task %s %s", res.TaskID, res.Status))

	case "task-state":
		pos, err := positional(fs, args, "id")
		if err != nil {
			return err
		}
		st, err := svc.GetTaskState(ctx, pos[0])
		if err != nil {
			return err
		}
		p.TaskState(st)

	default:
		return usageError(fmt.Sprintf("unknown command %q", cmd))
	}
	return nil
}
