package core

import (
	"fmt"
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	ServerConfig struct {
		Host            string
		Addr            string
		DebugHost       string
		ShutdownTimeout time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool

		PingAttempts    int
		PingBackoff     time.Duration
		MaxOpenConns    int
		ConnMaxLifetime time.Duration
	}

	AuthConfig struct {
		Enforce   bool
		SecretKey string
	}

	SchedulerConfig struct {
		Enabled      bool
		AutoMarkSpec string
	}

	NotifyConfig struct {
		WhatsAppURL string
		AdminNumber string
		Timeout     time.Duration
	}

	Config struct {
		Env          string
		Build        string
		Debug        bool
		TestMode     bool
		AppName      string
		Timezone     string
		RestDay      string
		Storage      string // postgres | memory
		RollbarToken string
		WorkDir      string

		Server    ServerConfig
		Database  DatabaseConfig
		Auth      AuthConfig
		Scheduler SchedulerConfig
		Notify    NotifyConfig
	}
)

// Address returns the "host:port" of the database server.
func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "dev")
	v.SetDefault("appName", "Akcent CRM")
	v.SetDefault("timezone", "Asia/Almaty")
	v.SetDefault("restDay", "sunday")
	v.SetDefault("storage", "postgres")
	v.SetDefault("rollbarToken", "")
	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.addr", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("database.engine", "postgres")
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "akcent")
	v.SetDefault("database.user", "akcent")
	v.SetDefault("database.password", "akcent")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", true)
	v.SetDefault("database.pingAttempts", 30)
	v.SetDefault("database.pingBackoff", 100*time.Millisecond)
	v.SetDefault("database.maxOpenConns", 10)
	v.SetDefault("database.connMaxLifetime", 30*time.Minute)
	v.SetDefault("auth.enforce", false)
	v.SetDefault("auth.secretKey", "akcent-dev-secret")
	v.SetDefault("scheduler.enabled", true)
	v.SetDefault("scheduler.autoMarkSpec", "0 22 * * 1-6")
	v.SetDefault("notify.whatsAppURL", "")
	v.SetDefault("notify.adminNumber", "")
	v.SetDefault("notify.timeout", 10*time.Second)

	env := strings.ToUpper(os.Getenv("ENV")) // DEV (local; default), TEST, QA, PROD
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		v.SetDefault("testMode", true)
	}
	v.SetEnvPrefix(env)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	wd := Getwd()
	dotEnvPath := filepath.Join(wd, "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	v.AutomaticEnv()

	return &Config{
		Env:          env,
		Build:        v.GetString("build"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		AppName:      v.GetString("appName"),
		Timezone:     v.GetString("timezone"),
		RestDay:      v.GetString("restDay"),
		Storage:      CleanString(v.GetString("storage"), true /* lower */),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      wd,
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Addr:            v.GetString("server.addr"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
		},
		Database: DatabaseConfig{
			Engine:        v.GetString("database.engine"),
			Host:          v.GetString("database.host"),
			Port:          v.GetString("database.port"),
			Name:          v.GetString("database.name"),
			User:          v.GetString("database.user"),
			Password:      v.GetString("database.password"),
			AdminUser:     v.GetString("database.adminUser"),
			AdminPassword: v.GetString("database.adminPassword"),
			DisableTLS:    v.GetBool("database.disableTLS"),

			PingAttempts:    v.GetInt("database.pingAttempts"),
			PingBackoff:     v.GetDuration("database.pingBackoff"),
			MaxOpenConns:    v.GetInt("database.maxOpenConns"),
			ConnMaxLifetime: v.GetDuration("database.connMaxLifetime"),
		},
		Auth: AuthConfig{
			Enforce:   v.GetBool("auth.enforce"),
			SecretKey: v.GetString("auth.secretKey"),
		},
		Scheduler: SchedulerConfig{
			Enabled:      v.GetBool("scheduler.enabled"),
			AutoMarkSpec: v.GetString("scheduler.autoMarkSpec"),
		},
		Notify: NotifyConfig{
			WhatsAppURL: v.GetString("notify.whatsAppURL"),
			AdminNumber: v.GetString("notify.adminNumber"),
			Timeout:     v.GetDuration("notify.timeout"),
		},
	}
}

// String hides secrets when the config gets logged.
func (c Config) String() string {
	return fmt.Sprintf("env=%s build=%s debug=%t tz=%s storage=%s db=%s/%s", c.Env, c.Build, c.Debug, c.Timezone, c.Storage, c.Database.Address(), c.Database.Name)
}
