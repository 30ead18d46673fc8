package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env/v2"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
	log "github.com/sirupsen/logrus"
)

const envPrefix = "TRADIE_"

// MinJwtSecretLength is the shortest HS256 secret accepted in jwt mode.
const MinJwtSecretLength = 32

var ErrInvalidConfig = errors.New("invalid configuration")

type Application struct {
	Host      string    `koanf:"host"`
	Http      Http      `koanf:"http"`
	Auth      Auth      `koanf:"auth"`
	RateLimit RateLimit `koanf:"ratelimit"`
	Google    OAuth     `koanf:"google"`
	Outlook   OAuth     `koanf:"outlook"`
	Database  Database  `koanf:"db"`
}

type Http struct {
	Addr         string        `koanf:"addr"`
	ReadTimeout  time.Duration `koanf:"readtimeout"`
	WriteTimeout time.Duration `koanf:"writetimeout"`
	IdleTimeout  time.Duration `koanf:"idletimeout"`
	CorsOrigins  []string      `koanf:"corsorigins"`
}

type AuthMode string

const (
	// AuthModeJWT verifies an HS256 bearer token and takes the caller from the "sub" claim.
	AuthModeJWT AuthMode = "jwt"
	// AuthModeHeader trusts the X-User-Id header set by an upstream gateway.
	AuthModeHeader AuthMode = "header"
)

type Auth struct {
	Mode      AuthMode `koanf:"mode"`
	JwtSecret string   `koanf:"jwtsecret"`
}

type RateLimit struct {
	Enabled bool    `koanf:"enabled"`
	Rps     float64 `koanf:"rps"`
	Burst   int     `koanf:"burst"`
}

type OAuth struct {
	ClientId     string `koanf:"clientid"`
	ClientSecret string `koanf:"clientsecret"`
	// Tenant is only used by Outlook (Azure AD). "common" accepts personal and work accounts.
	Tenant string `koanf:"tenant"`
}

type Database struct {
	Host     string `koanf:"host"`
	Port     int    `koanf:"port"`
	User     string `koanf:"user"`
	Pass     string `koanf:"pass"`
	Name     string `koanf:"name"`
	Schema   string `koanf:"schema"`
	MaxConns int32  `koanf:"maxconns"`
	MinConns int32  `koanf:"minconns"`
}

func defaults() Application {
	return Application{
		Host: "http://localhost:3000",
		Http: Http{
			Addr:         ":8181",
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
			CorsOrigins:  []string{"http://localhost:3000"},
		},
		Auth: Auth{
			Mode: AuthModeJWT,
		},
		RateLimit: RateLimit{
			Enabled: true,
			Rps:     10,
			Burst:   20,
		},
		Outlook: OAuth{
			Tenant: "common",
		},
		Database: Database{
			Host:     "localhost",
			Port:     5432,
			User:     "tradie",
			Pass:     "",
			Name:     "tradie",
			Schema:   "tradie",
			MaxConns: 25,
			MinConns: 5,
		},
	}
}

func Load(path string) (Application, error) {
	var k = koanf.New(".")

	err := k.Load(structs.Provider(defaults(), "koanf"), nil)
	if err != nil {
		log.Errorf("error loading config from structs: %v", err)
		return Application{}, err
	}

	if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
		if os.IsNotExist(err) {
			log.Infof("Config file not found at %s, using defaults and environment variables", path)
		} else {
			log.Errorf("error loading config from YAML: %v", err)
			return Application{}, err
		}
	} else {
		log.Infof("Loaded configuration from file: %s", path)
	}

	err = k.Load(env.Provider(".", env.Opt{
		Prefix: envPrefix,
		TransformFunc: func(k, v string) (string, any) {
			k = strings.ReplaceAll(strings.ToLower(strings.TrimPrefix(k, envPrefix)), "_", ".")
			if k == "http.corsorigins" {
				return k, strings.Split(v, ",")
			}
			return k, v
		},
	}), nil)
	if err != nil {
		log.Errorf("error loading config from envs: %v", err)
		return Application{}, err
	}

	var app Application
	if err := k.Unmarshal("", &app); err != nil {
		return Application{}, err
	}

	if err := app.validate(); err != nil {
		log.Errorf("invalid configuration: %v", err)
		return Application{}, err
	}

	return app, nil
}

func (a Application) validate() error {
	switch a.Auth.Mode {
	case AuthModeJWT:
		if len(a.Auth.JwtSecret) < MinJwtSecretLength {
			return fmt.Errorf("%w: auth.jwtsecret must be at least %d bytes in jwt mode", ErrInvalidConfig, MinJwtSecretLength)
		}
	case AuthModeHeader:
	default:
		return fmt.Errorf("%w: unknown auth.mode %q", ErrInvalidConfig, a.Auth.Mode)
	}
	return nil
}
