// Command slotctl sends facility booking requests to a slotkeeper server.
//
//	slotctl [-server addr] [-timeout d] [-retries n] <command> [flags]
//
// Commands: query, book, change, extend, cancel, monitor.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"os"
	"os/signal"
	"time"

	"github.com/MrSnakeDoc/slotkeeper/internal/client"
	"github.com/MrSnakeDoc/slotkeeper/internal/logger"
	"github.com/MrSnakeDoc/slotkeeper/internal/timeslot"
	"github.com/MrSnakeDoc/slotkeeper/internal/utils"
	"github.com/MrSnakeDoc/slotkeeper/internal/wire"
)

const usage = `usage: slotctl [global flags] <command> [flags]

commands:
  query    -facility F -day D -from HH:MM -to HH:MM
  book     -facility F -day D -from HH:MM -to HH:MM
  change   -facility F -id N -offset MINUTES
  extend   -facility F -id N -minutes MINUTES
  cancel   -facility F -id N
  monitor  -facility F -day D -from HH:MM -to HH:MM -interval DURATION

global flags:
`

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "slotctl: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, args []string, stdout, stderr io.Writer) error {
	global := flag.NewFlagSet("slotctl", flag.ContinueOnError)
	global.SetOutput(stderr)
	server := global.String("server", "127.0.0.1:2222", "server address")
	timeout := global.Duration("timeout", client.DefaultTimeout, "wait per transmission")
	retries := global.Int("retries", client.DefaultRetries, "retransmissions after the first send (0 disables)")
	verbose := global.Bool("v", false, "debug logging")
	global.Usage = func() {
		fmt.Fprint(stderr, usage)
		global.PrintDefaults()
	}
	if err := global.Parse(args); err != nil {
		return err
	}
	if global.NArg() == 0 {
		global.Usage()
		return errors.New("missing command")
	}

	cmd, err := parseCommand(global.Arg(0), global.Args()[1:], stderr)
	if err != nil {
		return err
	}

	level := "error"
	if *verbose {
		level = "debug"
	}
	if *retries < 0 {
		return errors.New("-retries must not be negative")
	}
	if *retries == 0 {
		*retries = client.NoRetries
	}
	c, err := client.Dial(client.Config{Server: *server, Timeout: *timeout, Retries: *retries}, logger.New(level, true))
	if err != nil {
		return err
	}
	defer utils.Close(c)

	resp, err := cmd.send(ctx, c)
	if err != nil && !errors.Is(err, client.ErrRejected) {
		return err
	}
	printResponse(stdout, resp)
	if err != nil {
		return err
	}

	if cmd.name == "monitor" {
		fmt.Fprintf(stdout, "Waiting %s for updates...\n", cmd.interval)
		lctx, cancel := context.WithTimeout(ctx, cmd.interval)
		defer cancel()
		if err := c.Listen(lctx, func(r wire.Response) { printResponse(stdout, r) }); err != nil {
			return err
		}
		fmt.Fprintln(stdout, "Monitoring interval expired.")
	}
	return nil
}

type command struct {
	name     string
	facility string
	slot     timeslot.TimeSlot
	id       uint32
	minutes  int32
	interval time.Duration
}

func parseCommand(name string, args []string, stderr io.Writer) (command, error) {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(stderr)

	cmd := command{name: name}
	fs.StringVar(&cmd.facility, "facility", "", "facility name")

	var day, from, to string
	var id uint64
	var minutes int64
	withSlot := func() {
		fs.StringVar(&day, "day", "", "day (Monday or Mon)")
		fs.StringVar(&from, "from", "", "start time HH:MM")
		fs.StringVar(&to, "to", "", "end time HH:MM")
	}
	withID := func() { fs.Uint64Var(&id, "id", 0, "booking id") }

	switch name {
	case "query", "book":
		withSlot()
	case "monitor":
		withSlot()
		fs.DurationVar(&cmd.interval, "interval", time.Minute, "monitor duration")
	case "change":
		withID()
		fs.Int64Var(&minutes, "offset", 0, "shift in minutes, may be negative")
	case "extend":
		withID()
		fs.Int64Var(&minutes, "minutes", 0, "minutes to add")
	case "cancel":
		withID()
	default:
		return command{}, fmt.Errorf("unknown command %q", name)
	}

	if err := fs.Parse(args); err != nil {
		return command{}, err
	}
	if cmd.facility == "" {
		return command{}, errors.New("-facility is required")
	}

	switch name {
	case "query", "book", "monitor":
		s, err := parseSlot(day, from, to)
		if err != nil {
			return command{}, err
		}
		cmd.slot = s
		if name == "monitor" && cmd.interval < time.Second {
			return command{}, errors.New("-interval must be at least 1s")
		}
	default:
		if id == 0 {
			return command{}, errors.New("-id is required")
		}
		if id > math.MaxUint32 {
			return command{}, fmt.Errorf("-id %d does not fit in 32 bits", id)
		}
		if minutes < math.MinInt32 || minutes > math.MaxInt32 {
			return command{}, fmt.Errorf("%d minutes is out of range", minutes)
		}
		cmd.id = uint32(id)
		cmd.minutes = int32(minutes)
	}
	return cmd, nil
}

func parseSlot(day, from, to string) (timeslot.TimeSlot, error) {
	d, err := timeslot.ParseDay(day)
	if err != nil {
		return timeslot.TimeSlot{}, err
	}
	start, err := timeslot.ParseTimeOfDay(from)
	if err != nil {
		return timeslot.TimeSlot{}, fmt.Errorf("-from: %w", err)
	}
	end, err := timeslot.ParseTimeOfDay(to)
	if err != nil {
		return timeslot.TimeSlot{}, fmt.Errorf("-to: %w", err)
	}
	return timeslot.New(d, start, end), nil
}

func (cmd command) send(ctx context.Context, c *client.Client) (wire.Response, error) {
	switch cmd.name {
	case "query":
		return c.Query(ctx, cmd.facility, cmd.slot)
	case "book":
		return c.Book(ctx, cmd.facility, cmd.slot)
	case "change":
		return c.Change(ctx, cmd.facility, cmd.id, cmd.minutes)
	case "extend":
		return c.Extend(ctx, cmd.facility, cmd.id, cmd.minutes)
	case "cancel":
		return c.Cancel(ctx, cmd.facility, cmd.id)
	default:
		return c.Monitor(ctx, cmd.facility, cmd.slot, cmd.interval)
	}
}

func printResponse(w io.Writer, r wire.Response) {
	fmt.Fprintf(w, "[%d] %s: %s\n", r.RequestID, r.Status, r.Message)
}
