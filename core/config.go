package core

import (
	"fmt"
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
		Env      string // DEV (default), TEST, QA, PROD
		Debug    bool
		TestMode bool
		Build    string
		WorkDir  string

		AppName          string
		SecretKey        []byte
		BaseDomain       string // apex domain used for tenant subdomain extraction
		FrontendBaseURL  string
		DefaultFromEmail mail.Address

		RollbarToken   string
		SendgridAPIKey string

		Server   serverConfig
		Database DatabaseConfig
		Redis    redisConfig
		FedaPay  fedapayConfig

		RegistrationSessionTTL time.Duration
	}

	serverConfig struct {
		Host                      string
		Port                      int
		ShutdownTimeout           time.Duration
		JWTExpirationDelta        time.Duration
		JWTRefreshExpirationDelta time.Duration
	}

	DatabaseConfig struct {
		Engine        string
		Name          string
		Host          string
		Port          int
		User          string
		Password      string
		AdminUser     string
		AdminPassword string
		DisableTLS    bool
	}

	redisConfig struct {
		Address  string
		Password string
		DB       int
	}

	fedapayConfig struct {
		BaseURL       string
		PublicKey     string
		SecretKey     string
		WebhookSecret string
	}
)

func (c serverConfig) Address() string   { return fmt.Sprintf("%s:%d", c.Host, c.Port) }
func (c DatabaseConfig) Address() string { return fmt.Sprintf("%s:%d", c.Host, c.Port) }

// NewConfig loads the app configuration from defaults, an optional
// config/.env.<env> file and environment variables (prefixed with the ENV name).
func NewConfig() *Config {
	conf := viper.New()
	conf.SetTypeByDefaultValue(true)

	// defaults
	conf.SetDefault("debug", true)
	conf.SetDefault("build", "dev")
	conf.SetDefault("appName", "Academia Hub")
	conf.SetDefault("secretKey", "x1u$+2l)qgm^58#-z&wpxh7(h!b)#*c9(#yg4h^$cegm2emy")
	conf.SetDefault("baseDomain", "academiahub.com")
	conf.SetDefault("frontendBaseURL", "https://academiahub.com")
	conf.SetDefault("defaultFromEmail", "noreply@academiahub.com")
	conf.SetDefault("serverHost", "0.0.0.0")
	conf.SetDefault("serverPort", 8000)
	conf.SetDefault("serverShutdownTimeout", 20*time.Second)
	conf.SetDefault("jwtExpirationDelta", 24*time.Hour)
	conf.SetDefault("jwtRefreshExpirationDelta", 4*time.Hour)
	conf.SetDefault("registrationSessionTTL", time.Hour)
	conf.SetDefault("dbEngine", "postgres")
	conf.SetDefault("dbName", "academiahub")
	conf.SetDefault("dbHost", "localhost")
	conf.SetDefault("dbPort", 5432)
	conf.SetDefault("dbUser", "academiahub")
	conf.SetDefault("dbDisableTLS", true)
	conf.SetDefault("redisAddress", "localhost:6379")
	conf.SetDefault("fedapayBaseURL", "https://sandbox-api.fedapay.com")

	env := strings.ToUpper(os.Getenv("ENV"))
	switch env {
	case "":
		env = "DEV"
	case "TEST":
		conf.SetDefault("testMode", true)
	}
	conf.SetEnvPrefix(env)

	// load .env if it exists (ignore if it does not)
	dotEnvPath := filepath.Join(Getwd(), "config", ".env."+strings.ToLower(env))
	if _, err := os.Stat(dotEnvPath); err == nil {
		if err := godotenv.Load(dotEnvPath); err != nil {
			log.Fatalf("config.godotenv(%s): %v", dotEnvPath, err)
		}
	} else if !os.IsNotExist(err) {
		log.Fatalf("config.os.Stat(%s): %v", dotEnvPath, err)
	}
	conf.AutomaticEnv()

	return &Config{
		Env:              env,
		Debug:            conf.GetBool("debug"),
		TestMode:         conf.GetBool("testMode"),
		Build:            conf.GetString("build"),
		WorkDir:          Getwd(),
		AppName:          conf.GetString("appName"),
		SecretKey:        []byte(conf.GetString("secretKey")),
		BaseDomain:       conf.GetString("baseDomain"),
		FrontendBaseURL:  conf.GetString("frontendBaseURL"),
		DefaultFromEmail: mail.Address{Name: conf.GetString("appName"), Address: conf.GetString("defaultFromEmail")},
		RollbarToken:     conf.GetString("rollbarToken"),
		SendgridAPIKey:   conf.GetString("sendgridAPIKey"),
		Server: serverConfig{
			Host:                      conf.GetString("serverHost"),
			Port:                      conf.GetInt("serverPort"),
			ShutdownTimeout:           conf.GetDuration("serverShutdownTimeout"),
			JWTExpirationDelta:        conf.GetDuration("jwtExpirationDelta"),
			JWTRefreshExpirationDelta: conf.GetDuration("jwtRefreshExpirationDelta"),
		},
		Database: DatabaseConfig{
			Engine:        conf.GetString("dbEngine"),
			Name:          conf.GetString("dbName"),
			Host:          conf.GetString("dbHost"),
			Port:          conf.GetInt("dbPort"),
			User:          conf.GetString("dbUser"),
			Password:      conf.GetString("dbPassword"),
			AdminUser:     conf.GetString("dbAdminUser"),
			AdminPassword: conf.GetString("dbAdminPassword"),
			DisableTLS:    conf.GetBool("dbDisableTLS"),
		},
		Redis: redisConfig{
			Address:  conf.GetString("redisAddress"),
			Password: conf.GetString("redisPassword"),
			DB:       conf.GetInt("redisDB"),
		},
		FedaPay: fedapayConfig{
			BaseURL:       conf.GetString("fedapayBaseURL"),
			PublicKey:     conf.GetString("fedapayPublicKey"),
			SecretKey:     conf.GetString("fedapaySecretKey"),
			WebhookSecret: conf.GetString("fedapayWebhookSecret"),
		},
		RegistrationSessionTTL: conf.GetDuration("registrationSessionTTL"),
	}
}
