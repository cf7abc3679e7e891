package main

import (
	"database/sql"
	"fmt"
	"os"

	echoapi "github.com/akcent-academy/crm/apps/api/echo"
	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/core/clock"
	"github.com/akcent-academy/crm/core/schedule"
	logsvc "github.com/akcent-academy/crm/services/logger"
	notifysvc "github.com/akcent-academy/crm/services/notify"
	"github.com/akcent-academy/crm/storage"
)

func main() {
	conf := core.NewConfig()
	logger := logsvc.New("ADMIN", conf)

	clk, err := clock.Load(conf.Timezone)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading timezone: %v", err), err)
	}

	// set up DB
	stores, err := storage.Open(conf, false)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	var db *sql.DB
	if stores.DB != nil {
		db = stores.DB.DB
	}

	restDay, err := schedule.ParseWeekday(conf.RestDay)
	if err != nil {
		logger.Fatal(fmt.Sprintf("invalid rest day: %v", err), err)
	}
	// summaries are echoed to the console, never messaged from the CLI
	notifier := notifysvc.NewConsoleService(logger)
	store := attendance.NewRecordStore(stores.Record, stores.Roster, clk, logger)

	// start CLI
	cli := commandLine{
		db:     db,
		store:  store,
		marker: attendance.NewAutoMarker(store, stores.Groups, clk, logger, restDay, notifier, conf.Notify.AdminNumber),
		clock:  clk,
		tokens: echoapi.NewJWTAccessChecker(conf),
		out:    os.Stdout,
	}
	err = cli.run(os.Args)
	_ = stores.Close()
	if err != nil {
		if err != errHelp {
			logger.Error(fmt.Sprintf("\nerror: %s\n", err), err)
		}
		os.Exit(1)
	}
}
