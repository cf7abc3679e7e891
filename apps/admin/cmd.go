package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"time"

	"github.com/pkg/errors"

	echoapi "github.com/akcent-academy/crm/apps/api/echo"
	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/core/clock"
)

var (
	errHelp       = errors.New("help provided")
	errNoPostgres = errors.New("migrations require postgres storage")
)

type commandLine struct {
	db     *sql.DB // nil in memory mode
	store  *attendance.RecordStore
	marker *attendance.AutoMarker
	clock  *clock.Clock
	tokens *echoapi.JWTAccessChecker
	out    io.Writer
}

func (cli *commandLine) printUsage() {
	fmt.Fprintln(cli.out, "Usage:")
	fmt.Fprintln(cli.out, "  migrate COMMAND [ARGS]                          - run a goose command (up, down, status, ...)")
	fmt.Fprintln(cli.out, "  automark [-date YYYY-MM-DD]                     - run the attendance job as of 22:00 of date (default: today)")
	fmt.Fprintln(cli.out, "  record -teacher ID -year YYYY -month MM         - print a monthly attendance record")
	fmt.Fprintln(cli.out, "  token -username USERNAME [-ttl DURATION]        - issue an admin API token")
}

func (cli *commandLine) newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(cli.out)
	return fs
}

func (cli *commandLine) run(args []string) error {
	if len(args) < 2 {
		cli.printUsage()
		return errHelp
	}

	automarkCmd := cli.newFlagSet("automark")
	automarkDate := automarkCmd.String("date", "", "The day to mark, YYYY-MM-DD. Defaults to today.")

	recordCmd := cli.newFlagSet("record")
	recordTeacher := recordCmd.String("teacher", "", "The teacher id.")
	recordYear := recordCmd.Int("year", 0, "The year.")
	recordMonth := recordCmd.Int("month", 0, "The month, 1-12.")

	tokenCmd := cli.newFlagSet("token")
	tokenUsername := tokenCmd.String("username", "", "The admin's username.")
	tokenTTL := tokenCmd.Duration("ttl", 24*time.Hour, "How long the token stays valid.")

	switch args[1] {
	case "migrate":
		if len(args) < 3 {
			cli.printUsage()
			return errHelp
		}
		return cli.migrate(args[2:])
	case "automark":
		if err := automarkCmd.Parse(args[2:]); err != nil {
			return err
		}
		return cli.automark(*automarkDate)
	case "record":
		if err := recordCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *recordTeacher == "" || *recordYear == 0 || *recordMonth == 0 {
			recordCmd.Usage()
			return errHelp
		}
		return cli.record(*recordTeacher, *recordYear, *recordMonth)
	case "token":
		if err := tokenCmd.Parse(args[2:]); err != nil {
			return err
		}
		if *tokenUsername == "" {
			tokenCmd.Usage()
			return errHelp
		}
		return cli.token(*tokenUsername, *tokenTTL)
	default:
		cli.printUsage()
		return errHelp
	}
}

// automark runs the attendance job as if it fired at 22:00 of date.
func (cli *commandLine) automark(date string) error {
	now := cli.clock.Now()
	if date != "" {
		day, err := time.ParseInLocation("2006-01-02", date, cli.clock.Location())
		if err != nil {
			return errors.Errorf("invalid date %q, expected YYYY-MM-DD", date)
		}
		now = cli.clock.At(day.Year(), day.Month(), day.Day(), 22, 0)
	}

	sum := cli.marker.RunAt(context.Background(), now)
	fmt.Fprintln(cli.out, sum)
	if sum.Err != nil {
		return sum.Err
	}
	if len(sum.Failed) > 0 {
		return errors.Errorf("%d teachers failed", len(sum.Failed))
	}
	return nil
}

func (cli *commandLine) record(teacherID string, year, month int) error {
	rec, err := cli.store.GetOrCreate(context.Background(), attendance.NewRecordKey(teacherID, year, month))
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		return errors.Wrap(err, "encoding record")
	}
	fmt.Fprintln(cli.out, string(data))
	return nil
}

func (cli *commandLine) token(username string, ttl time.Duration) error {
	ss, err := cli.tokens.GenerateToken(cli.tokens.AdminClaims(username, ttl))
	if err != nil {
		return err
	}
	fmt.Fprintln(cli.out, ss)
	return nil
}
