package main

import (
	"context"
	"expvar"
	"fmt"
	"net/http"
	"time"

	"github.com/go-playground/validator/v10"

	echoapi "github.com/akcent-academy/crm/apps/api/echo"
	"github.com/akcent-academy/crm/core"
	"github.com/akcent-academy/crm/core/attendance"
	"github.com/akcent-academy/crm/core/clock"
	"github.com/akcent-academy/crm/core/schedule"
	logsvc "github.com/akcent-academy/crm/services/logger"
	notifysvc "github.com/akcent-academy/crm/services/notify"
	schedsvc "github.com/akcent-academy/crm/services/scheduler"
	"github.com/akcent-academy/crm/storage"
)

func main() {
	// =========================================================================
	// Set up Dependencies

	conf := core.NewConfig()

	// set up loggers
	logger := logsvc.New("API", conf)
	dbLogger := logsvc.New("DB", conf)
	jobLogger := logsvc.New("JOB", conf)

	clk, err := clock.Load(conf.Timezone)
	if err != nil {
		logger.Fatal(fmt.Sprintf("loading timezone: %v", err), err)
	}

	// set up DB
	stores, err := storage.Open(conf, true /* migrate */)
	if err != nil {
		logger.Fatal(fmt.Sprintf("setting up storage: %v", err), err)
	}
	defer func() {
		if err = stores.Close(); err != nil {
			dbLogger.Error("Failed to close", err)
		}
	}()

	// set up services
	var notifier core.Notifier
	if conf.Debug || conf.Notify.WhatsAppURL == "" {
		notifier = notifysvc.NewConsoleService(jobLogger)
	} else {
		notifier = notifysvc.NewWhatsAppService(conf, jobLogger)
	}

	var access core.AccessChecker = core.AllowAll{}
	if conf.Auth.Enforce {
		access = echoapi.NewJWTAccessChecker(conf)
	}

	validate := validator.New()
	translator := core.NewTranslator()
	core.InitValidators(validate, translator)
	attendance.InitValidators(validate, translator)

	recordStore := attendance.NewRecordStore(stores.Record, stores.Roster, clk, dbLogger)
	attendanceSvc := attendance.NewService(recordStore, validate, translator)

	restDay, err := schedule.ParseWeekday(conf.RestDay)
	if err != nil {
		logger.Fatal(fmt.Sprintf("invalid rest day: %v", err), err)
	}
	marker := attendance.NewAutoMarker(recordStore, stores.Groups, clk, jobLogger, restDay, notifier, conf.Notify.AdminNumber)

	// =========================================================================
	// Initialize App

	logger.Info(fmt.Sprintf("Application initializing : version %q", conf.Build))
	logger.Info(fmt.Sprintf("config: %s", conf))
	defer logger.Info("Application stopped")

	// =========================================================================
	// Start Debug Service
	//
	// /debug/vars - Added to the default mux by importing the expvar package.

	// Expose important info under /debug/vars.
	expvar.NewString("build").Set(conf.Build)
	expvar.NewString("env").Set(conf.Env)
	expvar.NewString("storage").Set(conf.Storage)

	go func() {
		if err := http.ListenAndServe(conf.Server.DebugHost, http.DefaultServeMux); err != nil {
			logger.Error(fmt.Sprintf("debug server closed: %v", err), err)
		}
	}()

	// =========================================================================
	// Start Scheduler

	sched := schedsvc.New(clk.Location(), jobLogger)
	if conf.Scheduler.Enabled {
		if err = sched.RegisterAutoMark(conf.Scheduler.AutoMarkSpec, marker); err != nil {
			logger.Fatal(fmt.Sprintf("scheduling automark: %v", err), err)
		}
		sched.Start()
		if next, ok := sched.Next(schedsvc.AutoMarkJob, clk.Now()); ok {
			jobLogger.Info(fmt.Sprintf("next automark run at %s", next.Format(time.RFC3339)))
		}
	}

	// =========================================================================
	// Start API Service

	server := echoapi.NewServer(
		echoapi.ServerDeps{
			Conf:          conf,
			Logger:        logger,
			AttendanceSvc: attendanceSvc,
			Access:        access,
		},
	)

	go func() {
		server.Start()
	}()

	// =========================================================================
	// Shutdown

	select {
	case err = <-server.Errors():
		logger.Error(fmt.Sprintf("server error: %v", err), err)

	case sig := <-server.ShutdownSignal():
		logger.Info(fmt.Sprintf("%v: Start shutdown...", sig))
	}

	// give outstanding requests and a running job a deadline for completion
	ctx, cancel := context.WithTimeout(context.Background(), conf.Server.ShutdownTimeout)
	defer cancel()

	if err = sched.Stop(ctx); err != nil {
		jobLogger.Error(fmt.Sprintf("could not stop scheduler gracefully: %v", err), err)
	}

	// asking listener to shutdown and shed load
	if err = server.Shutdown(ctx); err != nil {
		logger.Error(fmt.Sprintf("could not stop server gracefully: %v", err), err)

		if err = server.Close(); err != nil {
			logger.Error(fmt.Sprintf("could not force stop server: %v", err), err)
		}
	}
}
