package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/env"
	"github.com/knadh/koanf/providers/file"
	"github.com/knadh/koanf/providers/structs"
	"github.com/knadh/koanf/v2"
)

// PathEnvVar は設定ファイルのパスを指定する環境変数。
const PathEnvVar = "CONFIG_PATH"

// envPrefix は設定として読み込む環境変数の接頭辞。
const envPrefix = "ENCORE_"

// defaultPaths は設定ファイルを探すパス。最初に見つかったものを使う。
var defaultPaths = []string{"config.yaml", "config.yml"}

// DefaultJWTSecret は開発用の署名鍵。development以外の環境では使えない。
const DefaultJWTSecret = "encore-dev-secret"

// sliceKeys はカンマ区切り文字列をスライスとして扱うキー。
var sliceKeys = []string{"server.cors_origins"}

// Default は既定値の設定を返す。
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Env:             EnvDevelopment,
			Port:            8080,
			CORSOrigins:     []string{"*"},
			ShutdownTimeout: 10 * time.Second,
		},
		Database: DatabaseConfig{Path: "encore.db"},
		Auth: AuthConfig{
			JWTSecret: DefaultJWTSecret,
			TokenTTL:  time.Hour,
		},
		Fanout: FanoutConfig{
			Mode:                 FanoutModeSync,
			RetryMax:             3,
			RetryInitialInterval: 100 * time.Millisecond,
			Buffer:               256,
		},
		Push: PushConfig{
			BroadcastBuffer: 256,
			SendBuffer:      256,
		},
		Logging: LoggingConfig{Level: "info", Format: "json"},
		Inbox: InboxConfig{
			BaseURL:      "http://localhost:8080",
			WSURL:        "ws://localhost:8080/ws",
			PollInterval: 5 * time.Second,
		},
	}
}

// Load は既定値、設定ファイル、環境変数の順に設定を読み込み、検証する。
func Load() (*Config, error) {
	path, err := findFile()
	if err != nil {
		return nil, err
	}
	return LoadFile(path)
}

// LoadFile はpathの設定ファイルを使って設定を読み込む。pathが空の場合はファイルを読まない。
func LoadFile(path string) (*Config, error) {
	k := koanf.New(".")

	if err := k.Load(structs.Provider(Default(), "koanf"), nil); err != nil {
		return nil, fmt.Errorf("既定値の読み込みに失敗: %w", err)
	}

	if path != "" {
		if err := k.Load(file.Provider(path), yaml.Parser()); err != nil {
			return nil, fmt.Errorf("設定ファイル %s の読み込みに失敗: %w", path, err)
		}
	}

	if err := k.Load(env.Provider(envPrefix, ".", envKey), nil); err != nil {
		return nil, fmt.Errorf("環境変数の読み込みに失敗: %w", err)
	}

	if err := splitSlices(k); err != nil {
		return nil, err
	}

	cfg := &Config{}
	if err := k.Unmarshal("", cfg); err != nil {
		return nil, fmt.Errorf("設定の変換に失敗: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("設定が不正です: %w", err)
	}
	return cfg, nil
}

// findFile はCONFIG_PATH、既定パスの順に設定ファイルを探す。
// CONFIG_PATHが指すファイルが無い場合はエラーを返す。
func findFile() (string, error) {
	if p := os.Getenv(PathEnvVar); p != "" {
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("%s の設定ファイルを開けません: %w", PathEnvVar, err)
		}
		return p, nil
	}
	for _, p := range defaultPaths {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}
	return "", nil
}

// envKey は環境変数名を設定キーに変換する。
// 接頭辞の直後の区切りだけがセクションの区切りになる。
//
//	ENCORE_SERVER_PORT     → server.port
//	ENCORE_AUTH_JWT_SECRET → auth.jwt_secret
func envKey(name string) string {
	name = strings.ToLower(strings.TrimPrefix(name, envPrefix))
	section, key, ok := strings.Cut(name, "_")
	if !ok || key == "" {
		return ""
	}
	return section + "." + key
}

// splitSlices は環境変数から来たカンマ区切り文字列をスライスに変換する。
func splitSlices(k *koanf.Koanf) error {
	for _, key := range sliceKeys {
		s, ok := k.Get(key).(string)
		if !ok {
			continue
		}
		var parts []string
		for p := range strings.SplitSeq(s, ",") {
			if p = strings.TrimSpace(p); p != "" {
				parts = append(parts, p)
			}
		}
		if err := k.Set(key, parts); err != nil {
			return fmt.Errorf("%s の設定に失敗: %w", key, err)
		}
	}
	return nil
}
