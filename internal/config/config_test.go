package config

import (
	"errors"
	"io/fs"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"
	"time"
)

// TestLoadFile_Default は設定ファイルも環境変数も無い場合に既定値になることを検証する。
func TestLoadFile_Default(t *testing.T) {
	cfg, err := LoadFile("")
	if err != nil {
		t.Fatalf("LoadFile()でエラーが発生: %v", err)
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want 8080", cfg.Server.Port)
	}
	if cfg.Fanout.Mode != FanoutModeSync {
		t.Errorf("Fanout.Mode = %q, want %q", cfg.Fanout.Mode, FanoutModeSync)
	}
	if cfg.Inbox.PollInterval != 5*time.Second {
		t.Errorf("Inbox.PollInterval = %v, want 5s", cfg.Inbox.PollInterval)
	}
	if cfg.Auth.TokenTTL != time.Hour {
		t.Errorf("Auth.TokenTTL = %v, want 1h", cfg.Auth.TokenTTL)
	}
}

// TestLoadFile_YAMLAndEnv はファイルと環境変数の優先順位を検証する。
func TestLoadFile_YAMLAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	content := strings.Join([]string{
		"server:",
		"  port: 9090",
		"fanout:",
		"  mode: queue",
		"  retry_max: 5",
		"inbox:",
		"  poll_interval: 2s",
		"",
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
	}

	t.Run("ファイルの値が既定値より優先されること", func(t *testing.T) {
		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile()でエラーが発生: %v", err)
		}
		if cfg.Server.Port != 9090 {
			t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
		}
		if cfg.Fanout.Mode != FanoutModeQueue {
			t.Errorf("Fanout.Mode = %q, want %q", cfg.Fanout.Mode, FanoutModeQueue)
		}
		if cfg.Fanout.RetryMax != 5 {
			t.Errorf("Fanout.RetryMax = %d, want 5", cfg.Fanout.RetryMax)
		}
		if cfg.Inbox.PollInterval != 2*time.Second {
			t.Errorf("Inbox.PollInterval = %v, want 2s", cfg.Inbox.PollInterval)
		}
		if cfg.Database.Path != "encore.db" {
			t.Errorf("Database.Path = %q, want 既定値", cfg.Database.Path)
		}
	})

	t.Run("環境変数がファイルより優先されること", func(t *testing.T) {
		t.Setenv("ENCORE_SERVER_PORT", "7070")
		t.Setenv("ENCORE_AUTH_JWT_SECRET", "from-env")
		t.Setenv("ENCORE_SERVER_CORS_ORIGINS", "http://a.example, http://b.example")
		t.Setenv("ENCORE_AUTH_ENFORCE_OWNER", "true")

		cfg, err := LoadFile(path)
		if err != nil {
			t.Fatalf("LoadFile()でエラーが発生: %v", err)
		}
		if cfg.Server.Port != 7070 {
			t.Errorf("Server.Port = %d, want 7070", cfg.Server.Port)
		}
		if cfg.Auth.JWTSecret != "from-env" {
			t.Errorf("Auth.JWTSecret = %q, want %q", cfg.Auth.JWTSecret, "from-env")
		}
		if !cfg.Auth.EnforceOwner {
			t.Error("Auth.EnforceOwner = false, want true")
		}
		want := []string{"http://a.example", "http://b.example"}
		if !slices.Equal(cfg.Server.CORSOrigins, want) {
			t.Errorf("Server.CORSOrigins = %v, want %v", cfg.Server.CORSOrigins, want)
		}
	})

	t.Run("不正なモードは検証エラーになること", func(t *testing.T) {
		t.Setenv("ENCORE_FANOUT_MODE", "async")

		if _, err := LoadFile(path); err == nil {
			t.Fatal("エラーが返るべき")
		}
	})
}

// TestLoad_ConfigPath はCONFIG_PATHによるファイルの指定を検証する。
func TestLoad_ConfigPath(t *testing.T) {
	t.Run("指定したファイルが無い場合はエラーになること", func(t *testing.T) {
		t.Setenv(PathEnvVar, filepath.Join(t.TempDir(), "missing.yaml"))

		if _, err := Load(); err == nil || !errors.Is(err, fs.ErrNotExist) {
			t.Fatalf("Load() = %v, want fs.ErrNotExist", err)
		}
	})

	t.Run("指定したファイルが読み込まれること", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "encore.yaml")
		if err := os.WriteFile(path, []byte("server:\n  port: 9191\n"), 0o600); err != nil {
			t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
		}
		t.Setenv(PathEnvVar, path)

		cfg, err := Load()
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Server.Port != 9191 {
			t.Errorf("Server.Port = %d, want 9191", cfg.Server.Port)
		}
	})

	t.Run("本番環境で開発用のシークレットのままならエラーになること", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "encore.yaml")
		if err := os.WriteFile(path, []byte("server:\n  env: production\n"), 0o600); err != nil {
			t.Fatalf("設定ファイルの書き込みに失敗: %v", err)
		}
		t.Setenv(PathEnvVar, path)

		if _, err := Load(); err == nil {
			t.Fatal("エラーが返るべき")
		}

		t.Setenv("ENCORE_AUTH_JWT_SECRET", "prod-secret")
		if _, err := Load(); err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
	})
}

// TestEnvKey は環境変数名から設定キーへの変換を検証する。
func TestEnvKey(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in   string
		want string
	}{
		{"ENCORE_SERVER_PORT", "server.port"},
		{"ENCORE_AUTH_JWT_SECRET", "auth.jwt_secret"},
		{"ENCORE_INBOX_POLL_INTERVAL", "inbox.poll_interval"},
		{"ENCORE_SERVER", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			t.Parallel()
			if got := envKey(tt.in); got != tt.want {
				t.Errorf("envKey(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

// TestValidate は検証ルールを確認する。
func TestValidate(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		modify func(*Config)
		ok     bool
	}{
		{"既定値は有効", func(*Config) {}, true},
		{"シークレットが空", func(c *Config) { c.Auth.JWTSecret = "" }, false},
		{"本番で開発用のシークレット", func(c *Config) { c.Server.Env = EnvProduction }, false},
		{"本番で独自のシークレット", func(c *Config) {
			c.Server.Env = EnvProduction
			c.Auth.JWTSecret = "prod-secret"
		}, true},
		{"ポーリング間隔が0", func(c *Config) { c.Inbox.PollInterval = 0 }, false},
		{"ポートが範囲外", func(c *Config) { c.Server.Port = 70000 }, false},
		{"再試行回数が負", func(c *Config) { c.Fanout.RetryMax = -1 }, false},
		{"queueモード", func(c *Config) { c.Fanout.Mode = FanoutModeQueue }, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			cfg := Default()
			tt.modify(cfg)
			err := cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, ok want %v", err, tt.ok)
			}
		})
	}
}
