package core

import (
	"log"
	"net"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Camera backends
const (
	CameraFrameDir = "framedir"
	CameraSnapshot = "snapshot"
)

// Storage engines
const (
	EngineInMem    = "inmem"
	EnginePostgres = "postgres"
)

type (
	Config struct {
		Env          string `validate:"required"`
		Build        string
		AppName      string `validate:"required"`
		Debug        bool
		TestMode     bool
		SecretKey    string `validate:"required"`
		RollbarToken string
		WorkDir      string

		Server   ServerConfig
		Portal   PortalConfig
		Scanner  ScannerConfig
		Database DatabaseConfig
	}

	ServerConfig struct {
		Host            string
		Address         string `validate:"required"`
		DebugHost       string
		ShutdownTimeout time.Duration `validate:"gt=0"`
		DisableReqLogs  bool
	}

	// PortalConfig points at the portal backend the kiosk signs guests into.
	PortalConfig struct {
		APIBaseURL  string        `validate:"required,url"`
		ScanBaseURL string        `validate:"required,url"`
		ClientAppID string        `validate:"required"`
		Timeout     time.Duration `validate:"gt=0"`
		TokenFile   string
	}

	ScannerConfig struct {
		Camera         string `validate:"oneof=framedir snapshot"`
		FramesDir      string `validate:"required_if=Camera framedir"`
		SnapshotURL    string `validate:"omitempty,url"`
		FacingMode     string
		Width          int           `validate:"gte=0"`
		Height         int           `validate:"gte=0"`
		SampleInterval time.Duration `validate:"gt=0"`
	}

	DatabaseConfig struct {
		Engine        string `validate:"oneof=inmem postgres"`
		Host          string
		Port          string
		Name          string
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}
)

func (c DatabaseConfig) Address() string {
	return net.JoinHostPort(c.Host, c.Port)
}

// NewConfig loads the configuration from defaults, `config/.env.<env>` and the environment.
func NewConfig() *Config {
	v := viper.New()

	// defaults
	v.SetTypeByDefaultValue(true)
	v.SetDefault("debug", true)
	v.SetDefault("build", "develop")
	v.SetDefault("appName", "Pavulla Kiosk")
	v.SetDefault("secretKey", "k1o$k-8wq)p9v+2=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	v.SetDefault("rollbarToken", "")

	v.SetDefault("server.host", "localhost")
	v.SetDefault("server.address", ":8000")
	v.SetDefault("server.debugHost", ":4000")
	v.SetDefault("server.shutdownTimeout", 5*time.Second)
	v.SetDefault("server.disableReqLogs", false)

	v.SetDefault("portal.apiBaseURL", "http://localhost:8080/api")
	v.SetDefault("portal.scanBaseURL", "http://localhost:8090")
	v.SetDefault("portal.clientAppID", "pavulla-kiosk")
	v.SetDefault("portal.timeout", 15*time.Second)
	v.SetDefault("portal.tokenFile", "")

	v.SetDefault("scanner.camera", CameraFrameDir)
	v.SetDefault("scanner.framesDir", "frames")
	v.SetDefault("scanner.snapshotURL", "")
	v.SetDefault("scanner.facingMode", "environment")
	v.SetDefault("scanner.width", 1280)
	v.SetDefault("scanner.height", 720)
	v.SetDefault("scanner.sampleInterval", 500*time.Millisecond)

	v.SetDefault("database.engine", EngineInMem)
	v.SetDefault("database.host", "localhost")
	v.SetDefault("database.port", "5432")
	v.SetDefault("database.name", "kiosk")
	v.SetDefault("database.user", "kiosk")
	v.SetDefault("database.password", "")
	v.SetDefault("database.adminUser", "")
	v.SetDefault("database.adminPassword", "")
	v.SetDefault("database.disableTLS", false)

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
	workDir := Getwd()
	dotEnvPath := filepath.Join(workDir, "config", ".env."+strings.ToLower(env))
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
		AppName:      v.GetString("appName"),
		Debug:        v.GetBool("debug"),
		TestMode:     v.GetBool("testMode"),
		SecretKey:    v.GetString("secretKey"),
		RollbarToken: v.GetString("rollbarToken"),
		WorkDir:      workDir,
		Server: ServerConfig{
			Host:            v.GetString("server.host"),
			Address:         v.GetString("server.address"),
			DebugHost:       v.GetString("server.debugHost"),
			ShutdownTimeout: v.GetDuration("server.shutdownTimeout"),
			DisableReqLogs:  v.GetBool("server.disableReqLogs"),
		},
		Portal: PortalConfig{
			APIBaseURL:  strings.TrimRight(v.GetString("portal.apiBaseURL"), "/"),
			ScanBaseURL: strings.TrimRight(v.GetString("portal.scanBaseURL"), "/"),
			ClientAppID: v.GetString("portal.clientAppID"),
			Timeout:     v.GetDuration("portal.timeout"),
			TokenFile:   v.GetString("portal.tokenFile"),
		},
		Scanner: ScannerConfig{
			Camera:         v.GetString("scanner.camera"),
			FramesDir:      v.GetString("scanner.framesDir"),
			SnapshotURL:    v.GetString("scanner.snapshotURL"),
			FacingMode:     v.GetString("scanner.facingMode"),
			Width:          v.GetInt("scanner.width"),
			Height:         v.GetInt("scanner.height"),
			SampleInterval: v.GetDuration("scanner.sampleInterval"),
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
		},
	}
}
