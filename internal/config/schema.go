package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"strconv"
	"strings"
	"time"
)

// format は入力値の形式を検証する関数です。
type format func(value string) error

// field はスキーマの1項目（説明、形式、デフォルト値、環境変数名）を表します。
type field struct {
	env        string
	doc        string
	format     format
	def        string
	hasDefault bool
}

func withDefault(env, doc string, f format, def string) field {
	return field{env: env, doc: doc, format: f, def: def, hasDefault: true}
}

func required(env, doc string, f format) field {
	return field{env: env, doc: doc, format: f}
}

var schema = []field{
	withDefault("NODE_ENV", "The application environment.", oneOf(EnvProduction, EnvDevelopment), EnvDevelopment),
	withDefault("PORT", "The port to bind.", portFormat, "5050"),
	withDefault("DBIP", "Database IP address.", ipFormat, "127.0.0.1"),
	withDefault("SALT", "Salt for passwords.", stringFormat, insecureSalt),
	required("DB_USER", "Username to connect to the database", stringFormat),
	required("DB_PASSWORD", "Password to connect to the database", stringFormat),
	withDefault("DB_PORT", "Port to connect to the database (MongoDB)", portFormat, "27017"),
	withDefault("DB_NAME", "Database name (MongoDB)", stringFormat, "buy-and-sell"),
	withDefault("UPLOAD_DIR", "Directory for uploaded files", stringFormat, "upload"),
	withDefault("JWT_SECRET", "Secret used to sign session tokens", stringFormat, insecureJWTSecret),
	withDefault("REDIS_URL", "Redis connection URL for sessions and jobs", urlFormat, "redis://127.0.0.1:6379/0"),
	withDefault("TOKEN_TTL", "Session token lifetime", durationFormat, "24h"),
	withDefault("AUTH_TIMEOUT", "Upper bound for a single authentication call", durationFormat, "5s"),
	withDefault("CORS_ALLOWED_ORIGINS", "Comma separated list of allowed CORS origins", stringFormat, "http://localhost:5173"),
	withDefault("LOG_FORMAT", "Log output format", oneOf("json", "text"), "json"),
}

var schemaIndex = func() map[string]field {
	index := make(map[string]field, len(schema))
	for _, f := range schema {
		index[f.env] = f
	}
	return index
}()

func stringFormat(string) error { return nil }

func oneOf(allowed ...string) format {
	return func(value string) error {
		for _, a := range allowed {
			if value == a {
				return nil
			}
		}
		return fmt.Errorf("must be one of the possible values: [%s]", strings.Join(allowed, ", "))
	}
}

func portFormat(value string) error {
	n, err := strconv.Atoi(value)
	if err != nil || n < 0 || n > 65535 {
		return errors.New("ports must be within range 0 - 65535")
	}
	return nil
}

func ipFormat(value string) error {
	if net.ParseIP(value) == nil {
		return errors.New("must be an IP address")
	}
	return nil
}

func urlFormat(value string) error {
	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return errors.New("must be a URL")
	}
	return nil
}

func durationFormat(value string) error {
	d, err := time.ParseDuration(value)
	if err != nil || d <= 0 {
		return errors.New("must be a positive duration")
	}
	return nil
}
