// Package config は環境変数から設定を読み込み、アプリケーション全体で使用する設定を提供します。
package config

import (
	"errors"
	"fmt"
	"net"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	EnvProduction  = "production"
	EnvDevelopment = "development"

	envFileName = ".env.local"

	// strict モードで検査する環境変数のプレフィックス
	strictPrefix = "DB_"

	insecureSalt      = "FIWUIUWUGUOYY423423"
	insecureJWTSecret = "dev-only-jwt-secret-change-me"
)

// Settings は起動時に一度だけ構築される読み取り専用の設定スナップショットです。
type Settings struct {
	env                string
	port               int
	dbIP               string
	salt               string
	dbUser             string
	dbPassword         string
	dbPort             int
	dbName             string
	uploadDir          string
	jwtSecret          string
	redisURL           string
	tokenTTL           time.Duration
	authTimeout        time.Duration
	corsAllowedOrigins []string
	logFormat          string
}

// Load は .env.local と環境変数から設定を読み込み、検証します。
// プロセス環境変数が .env.local よりも優先されます。
func Load() (*Settings, error) {
	fileValues, err := readEnvFile()
	if err != nil {
		return nil, err
	}
	return Parse(os.Environ(), fileValues)
}

// Parse は環境変数の一覧と .env ファイルの値から Settings を構築します。
// スキーマ外のキー、必須値の欠落、形式不正はすべてまとめてエラーになります。
func Parse(environ []string, fileValues map[string]string) (*Settings, error) {
	source := make(map[string]string, len(fileValues))
	namespace := make(map[string]struct{})

	for key, value := range fileValues {
		source[key] = value
		namespace[key] = struct{}{}
	}
	for _, kv := range environ {
		key, value, ok := strings.Cut(kv, "=")
		if !ok {
			continue
		}
		if _, declared := schemaIndex[key]; declared {
			source[key] = value
		}
		if strings.HasPrefix(key, strictPrefix) {
			namespace[key] = struct{}{}
		}
	}

	var errs []error
	for key := range namespace {
		if _, declared := schemaIndex[key]; !declared {
			errs = append(errs, fmt.Errorf("configuration param %q not declared in the schema", key))
		}
	}

	values := make(map[string]string, len(schema))
	for _, f := range schema {
		value, ok := source[f.env]
		if !ok || value == "" {
			if !f.hasDefault {
				errs = append(errs, fmt.Errorf("%s: must be set (%s)", f.env, f.doc))
				continue
			}
			value = f.def
		}
		if err := f.format(value); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w: value was %q", f.env, err, value))
			continue
		}
		values[f.env] = value
	}
	if len(errs) > 0 {
		return nil, errors.Join(errs...)
	}

	s := newSettings(values)
	if err := s.Validate(); err != nil {
		return nil, err
	}
	return s, nil
}

// Validate は環境ごとの追加制約を検証します。
func (s *Settings) Validate() error {
	if !s.IsProduction() {
		return nil
	}
	// 本番環境では開発用の秘密値を許可しない
	if s.salt == insecureSalt {
		return fmt.Errorf("SALT must be overridden in %s", EnvProduction)
	}
	if s.jwtSecret == insecureJWTSecret {
		return fmt.Errorf("JWT_SECRET must be overridden in %s", EnvProduction)
	}
	return nil
}

func newSettings(values map[string]string) *Settings {
	return &Settings{
		env:                values["NODE_ENV"],
		port:               atoi(values["PORT"]),
		dbIP:               values["DBIP"],
		salt:               values["SALT"],
		dbUser:             values["DB_USER"],
		dbPassword:         values["DB_PASSWORD"],
		dbPort:             atoi(values["DB_PORT"]),
		dbName:             values["DB_NAME"],
		uploadDir:          values["UPLOAD_DIR"],
		jwtSecret:          values["JWT_SECRET"],
		redisURL:           values["REDIS_URL"],
		tokenTTL:           duration(values["TOKEN_TTL"]),
		authTimeout:        duration(values["AUTH_TIMEOUT"]),
		corsAllowedOrigins: splitList(values["CORS_ALLOWED_ORIGINS"]),
		logFormat:          values["LOG_FORMAT"],
	}
}

func readEnvFile() (map[string]string, error) {
	candidates := []string{envFileName}
	if cwd, err := os.Getwd(); err == nil {
		if parent := filepath.Dir(cwd); parent != "" && parent != cwd {
			candidates = append(candidates, filepath.Join(parent, envFileName))
		}
	}

	for _, path := range candidates {
		if _, err := os.Stat(path); err != nil {
			continue
		}
		values, err := godotenv.Read(path)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", path, err)
		}
		return values, nil
	}
	return map[string]string{}, nil
}

// Env は NODE_ENV の値を返します。
func (s *Settings) Env() string {
	return s.env
}

// Port は HTTP サーバーのポート番号を返します。
func (s *Settings) Port() int {
	return s.port
}

// DBIP は MongoDB のホストを返します。
func (s *Settings) DBIP() string {
	return s.dbIP
}

// Salt はパスワードハッシュに混ぜるソルトを返します。
func (s *Settings) Salt() string {
	return s.salt
}

// DBUser は MongoDB のユーザー名を返します。
func (s *Settings) DBUser() string {
	return s.dbUser
}

// DBPassword は MongoDB のパスワードを返します。
func (s *Settings) DBPassword() string {
	return s.dbPassword
}

// DBPort は MongoDB のポート番号を返します。
func (s *Settings) DBPort() int {
	return s.dbPort
}

// DBName は MongoDB のデータベース名を返します。
func (s *Settings) DBName() string {
	return s.dbName
}

// UploadDir はアップロードファイルの保存先を返します。
func (s *Settings) UploadDir() string {
	return s.uploadDir
}

// JWTSecret はトークン署名用の鍵を返します。
func (s *Settings) JWTSecret() string {
	return s.jwtSecret
}

// RedisURL は Redis の接続 URL を返します。
func (s *Settings) RedisURL() string {
	return s.redisURL
}

// TokenTTL はセッショントークンの有効期間を返します。
func (s *Settings) TokenTTL() time.Duration {
	return s.tokenTTL
}

// AuthTimeout は認証処理1回あたりの上限時間を返します。
func (s *Settings) AuthTimeout() time.Duration {
	return s.authTimeout
}

// LogFormat はログの出力形式を返します。
func (s *Settings) LogFormat() string {
	return s.logFormat
}

// IsProduction は本番環境かどうかを返します。
func (s *Settings) IsProduction() bool {
	return s.env == EnvProduction
}

// CORSAllowedOrigins は許可オリジンのコピーを返します。
func (s *Settings) CORSAllowedOrigins() []string {
	return append([]string(nil), s.corsAllowedOrigins...)
}

// Addr は HTTP サーバーの待ち受けアドレスを返します。
func (s *Settings) Addr() string {
	return ":" + strconv.Itoa(s.port)
}

// GinMode は NODE_ENV に対応する Gin の実行モードを返します。
func (s *Settings) GinMode() string {
	if s.IsProduction() {
		return "release"
	}
	return "debug"
}

// MongoURI は MongoDB への接続文字列を組み立てます。
func (s *Settings) MongoURI() string {
	u := url.URL{
		Scheme:   "mongodb",
		User:     url.UserPassword(s.dbUser, s.dbPassword),
		Host:     net.JoinHostPort(s.dbIP, strconv.Itoa(s.dbPort)),
		Path:     "/" + s.dbName,
		RawQuery: "authSource=admin",
	}
	return u.String()
}

func atoi(value string) int {
	n, _ := strconv.Atoi(value)
	return n
}

func duration(value string) time.Duration {
	d, _ := time.ParseDuration(value)
	return d
}

func splitList(value string) []string {
	var out []string
	for _, item := range strings.Split(value, ",") {
		if item = strings.TrimSpace(item); item != "" {
			out = append(out, item)
		}
	}
	return out
}
