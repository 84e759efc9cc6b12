package config

import (
	"errors"
	"os"
	"path/filepath"
	"testing"
)

// TestLoad はLoad関数の設定読み込みを検証する。
// 環境変数を書き換えるため並列実行しない。
func TestLoad(t *testing.T) {
	t.Run("デフォルト値でサービスごとのポートが設定されること", func(t *testing.T) {
		t.Setenv("ENV", "")
		t.Setenv("PORT", "")
		os.Unsetenv("PORT")

		cfg, err := Load("shift")
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != "8082" {
			t.Errorf("Port = %q, want %q", cfg.Port, "8082")
		}
		if cfg.DBPath != "/data/shift.db" {
			t.Errorf("DBPath = %q, want %q", cfg.DBPath, "/data/shift.db")
		}
		if cfg.Env != "DEV" {
			t.Errorf("Env = %q, want %q", cfg.Env, "DEV")
		}
		if cfg.FacilityName != DefaultFacilityName {
			t.Errorf("FacilityName = %q, want %q", cfg.FacilityName, DefaultFacilityName)
		}
	})

	t.Run("環境変数がデフォルト値を上書きすること", func(t *testing.T) {
		t.Setenv("ENV", "")
		t.Setenv("PORT", "9999")
		t.Setenv("NATS_URL", "nats://localhost:4222")
		t.Setenv("FACILITY_NAME", "テスト施設")

		cfg, err := Load("staff")
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if cfg.Port != "9999" {
			t.Errorf("Port = %q, want %q", cfg.Port, "9999")
		}
		if cfg.NATSURL != "nats://localhost:4222" {
			t.Errorf("NATSURL = %q, want %q", cfg.NATSURL, "nats://localhost:4222")
		}
		if cfg.FacilityName != "テスト施設" {
			t.Errorf("FacilityName = %q, want %q", cfg.FacilityName, "テスト施設")
		}
	})

	t.Run("本番環境でデフォルトの署名鍵を使うとエラーになること", func(t *testing.T) {
		t.Setenv("ENV", "prod")
		t.Setenv("JWT_SECRET", DefaultJWTSecret)

		_, err := Load("gateway")
		if !errors.Is(err, ErrInsecureSecret) {
			t.Errorf("error = %v, want %v", err, ErrInsecureSecret)
		}
	})

	t.Run("本番環境で署名鍵を設定すれば読み込めること", func(t *testing.T) {
		t.Setenv("ENV", "PROD")
		t.Setenv("JWT_SECRET", "production-secret")

		cfg, err := Load("gateway")
		if err != nil {
			t.Fatalf("Load()でエラーが発生: %v", err)
		}
		if !cfg.IsProduction() {
			t.Error("IsProduction() = false, want true")
		}
	})
}

// TestLoadDotEnv は.envファイルの読み込みを検証する。
func TestLoadDotEnv(t *testing.T) {
	t.Run("存在しないファイルは無視されること", func(t *testing.T) {
		if err := loadDotEnv(filepath.Join(t.TempDir(), "missing.env")); err != nil {
			t.Errorf("loadDotEnv()でエラーが発生: %v", err)
		}
	})

	t.Run("ファイルの値が環境変数に設定されること", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), ".env")
		if err := os.WriteFile(path, []byte("SHIFTCARE_TEST_VALUE=from-dotenv\n"), 0o600); err != nil {
			t.Fatalf("テスト用ファイルの作成に失敗: %v", err)
		}
		t.Setenv("SHIFTCARE_TEST_VALUE", "")
		os.Unsetenv("SHIFTCARE_TEST_VALUE")

		if err := loadDotEnv(path); err != nil {
			t.Fatalf("loadDotEnv()でエラーが発生: %v", err)
		}
		if got := os.Getenv("SHIFTCARE_TEST_VALUE"); got != "from-dotenv" {
			t.Errorf("SHIFTCARE_TEST_VALUE = %q, want %q", got, "from-dotenv")
		}
	})
}
