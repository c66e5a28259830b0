package core

import (
	"log"
	"net/mail"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

type (
	Config struct {
		AppName      string
		Build        string
		Env          string // DEV (local; default), TEST, QA, PROD
		Debug        bool
		TestMode     bool
		SecretKey    string
		RollbarToken string

		Server   ServerConfig
		API      APIConfig
		Session  SessionConfig
		Redis    RedisConfig
		Database DatabaseConfig
		DevAPI   DevAPIConfig
		Email    EmailConfig
	}

	ServerConfig struct {
		Host            string
		Address         string
		DebugHost       string
		ReadTimeout     time.Duration
		WriteTimeout    time.Duration
		ShutdownTimeout time.Duration
	}

	// APIConfig locates the remote authentication API the portal talks to.
	APIConfig struct {
		BaseURL string
		Timeout time.Duration
	}

	SessionConfig struct {
		Backend         string // memory, redis, sql
		CookieName      string
		CookieSecure    bool
		IdleTimeout     time.Duration // in-memory tabs
		RecordTTL       time.Duration // durable session records
		RestoreWait     time.Duration
		PersistTimeout  time.Duration
		VerifyOnRestore bool
		RefreshProfile  bool
	}

	RedisConfig struct {
		Addr      string
		Password  string
		DB        int
		KeyPrefix string
	}

	DatabaseConfig struct {
		Engine     string // postgres, sqlite3
		Host       string
		Port       string
		Name       string
		User       string
		Password   string
		Path       string // sqlite3 only
		DisableTLS bool
	}

	DevAPIConfig struct {
		Address            string
		Storage            string // memory, sql
		JWTExpirationDelta time.Duration
		OtpTTL             time.Duration
		OtpLength          int
		OtpMaxAttempts     int
		JoinCodes          []string
		SeedAdminEmail     string
		SeedAdminPassword  string
	}

	EmailConfig struct {
		DefaultFromEmail mail.Address
		SendgridApiKey   string
		FrontendBaseURL  string
	}
)

func (dbc DatabaseConfig) Address() string {
	if dbc.Port == "" {
		return dbc.Host
	}
	return dbc.Host + ":" + dbc.Port
}

func NewConfig() *Config {
	conf := viper.New()

	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}
	setDefaults(conf, env)

	conf.SetEnvPrefix(env)
	conf.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(configDir(), ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		AppName:      conf.GetString("appName"),
		Build:        conf.GetString("build"),
		Env:          env,
		Debug:        conf.GetBool("debug"),
		TestMode:     conf.GetBool("testMode"),
		SecretKey:    conf.GetString("secretKey"),
		RollbarToken: conf.GetString("rollbarToken"),
		Server: ServerConfig{
			Host:            conf.GetString("server.host"),
			Address:         conf.GetString("server.address"),
			DebugHost:       conf.GetString("server.debugHost"),
			ReadTimeout:     conf.GetDuration("server.readTimeout"),
			WriteTimeout:    conf.GetDuration("server.writeTimeout"),
			ShutdownTimeout: conf.GetDuration("server.shutdownTimeout"),
		},
		API: APIConfig{
			BaseURL: strings.TrimSuffix(conf.GetString("api.baseURL"), "/"),
			Timeout: conf.GetDuration("api.timeout"),
		},
		Session: SessionConfig{
			Backend:         strings.ToLower(conf.GetString("session.backend")),
			CookieName:      conf.GetString("session.cookieName"),
			CookieSecure:    conf.GetBool("session.cookieSecure"),
			IdleTimeout:     conf.GetDuration("session.idleTimeout"),
			RecordTTL:       conf.GetDuration("session.recordTTL"),
			RestoreWait:     conf.GetDuration("session.restoreWait"),
			PersistTimeout:  conf.GetDuration("session.persistTimeout"),
			VerifyOnRestore: conf.GetBool("session.verifyOnRestore"),
			RefreshProfile:  conf.GetBool("session.refreshProfile"),
		},
		Redis: RedisConfig{
			Addr:      conf.GetString("redis.addr"),
			Password:  conf.GetString("redis.password"),
			DB:        conf.GetInt("redis.db"),
			KeyPrefix: conf.GetString("redis.keyPrefix"),
		},
		Database: DatabaseConfig{
			Engine:     conf.GetString("database.engine"),
			Host:       conf.GetString("database.host"),
			Port:       conf.GetString("database.port"),
			Name:       conf.GetString("database.name"),
			User:       conf.GetString("database.user"),
			Password:   conf.GetString("database.password"),
			Path:       conf.GetString("database.path"),
			DisableTLS: conf.GetBool("database.disableTLS"),
		},
		DevAPI: DevAPIConfig{
			Address:            conf.GetString("devapi.address"),
			Storage:            strings.ToLower(conf.GetString("devapi.storage")),
			JWTExpirationDelta: conf.GetDuration("devapi.jwtExpirationDelta"),
			OtpTTL:             conf.GetDuration("devapi.otpTTL"),
			OtpLength:          conf.GetInt("devapi.otpLength"),
			OtpMaxAttempts:     conf.GetInt("devapi.otpMaxAttempts"),
			JoinCodes:          conf.GetStringSlice("devapi.joinCodes"),
			SeedAdminEmail:     conf.GetString("devapi.seedAdminEmail"),
			SeedAdminPassword:  conf.GetString("devapi.seedAdminPassword"),
		},
		Email: EmailConfig{
			DefaultFromEmail: mail.Address{
				Name:    conf.GetString("appName"),
				Address: conf.GetString("email.defaultFromEmail"),
			},
			SendgridApiKey:  conf.GetString("email.sendgridApiKey"),
			FrontendBaseURL: conf.GetString("email.frontendBaseURL"),
		},
	}
}

func setDefaults(conf *viper.Viper, env string) {
	conf.SetTypeByDefaultValue(true)

	conf.SetDefault("debug", env == "DEV" || env == "TEST")
	conf.SetDefault("testMode", env == "TEST")
	conf.SetDefault("appName", "LMS Portal")
	conf.SetDefault("build", "develop")
	conf.SetDefault("secretKey", "poq5-wer)enb$+57=dz&uoxh2(h!x)#*c2(#yg4h^$cegm2emy")
	conf.SetDefault("rollbarToken", "")

	conf.SetDefault("server.host", "localhost")
	conf.SetDefault("server.address", ":8000")
	conf.SetDefault("server.debugHost", "localhost:4000")
	conf.SetDefault("server.readTimeout", 5*time.Second)
	conf.SetDefault("server.writeTimeout", 35*time.Second)
	conf.SetDefault("server.shutdownTimeout", 5*time.Second)

	conf.SetDefault("api.baseURL", "http://localhost:8080/api/v1")
	conf.SetDefault("api.timeout", 15*time.Second)

	conf.SetDefault("session.backend", "memory")
	conf.SetDefault("session.cookieName", "lms_sid")
	conf.SetDefault("session.cookieSecure", env == "QA" || env == "PROD")
	conf.SetDefault("session.idleTimeout", 30*time.Minute)
	conf.SetDefault("session.recordTTL", 12*time.Hour)
	conf.SetDefault("session.restoreWait", 2*time.Second)
	conf.SetDefault("session.persistTimeout", 3*time.Second)
	conf.SetDefault("session.verifyOnRestore", false)
	conf.SetDefault("session.refreshProfile", true)

	conf.SetDefault("redis.addr", "localhost:6379")
	conf.SetDefault("redis.password", "")
	conf.SetDefault("redis.db", 0)
	conf.SetDefault("redis.keyPrefix", "lms:tab")

	conf.SetDefault("database.engine", "postgres")
	conf.SetDefault("database.host", "localhost")
	conf.SetDefault("database.port", "5432")
	conf.SetDefault("database.name", "lms")
	conf.SetDefault("database.user", "postgres")
	conf.SetDefault("database.password", "postgres")
	conf.SetDefault("database.path", "lms.db")
	conf.SetDefault("database.disableTLS", env == "DEV" || env == "TEST")

	conf.SetDefault("devapi.address", ":8080")
	conf.SetDefault("devapi.storage", "memory")
	conf.SetDefault("devapi.jwtExpirationDelta", 24*time.Hour)
	conf.SetDefault("devapi.otpTTL", 5*time.Minute)
	conf.SetDefault("devapi.otpLength", 6)
	conf.SetDefault("devapi.otpMaxAttempts", 5)
	conf.SetDefault("devapi.joinCodes", []string{"JAVA42"})
	conf.SetDefault("devapi.seedAdminEmail", "admin@lms.local")
	conf.SetDefault("devapi.seedAdminPassword", "Admin@12345")

	conf.SetDefault("email.defaultFromEmail", "noreply@localhost")
	conf.SetDefault("email.sendgridApiKey", "")
	conf.SetDefault("email.frontendBaseURL", "http://localhost:8000")
}

// configDir is where the optional dotenv files live; CONFIG_DIR overrides the "config" default.
func configDir() string {
	if dir := os.Getenv("CONFIG_DIR"); dir != "" {
		return dir
	}
	return "config"
}
