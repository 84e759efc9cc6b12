// Package config は各サービス共通の設定読み込みを提供する。
//
// 設定は次の優先順位で決まる。
//  1. 環境変数
//  2. .env.<env> ファイル（例: .env.dev）
//  3. .env ファイル
//  4. コード内のデフォルト値
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// DefaultJWTSecret は開発環境用のJWT署名鍵。本番環境では使用できない。
const DefaultJWTSecret = "dev-secret-key"

// DefaultFacilityName はPDF帳票に印字する施設名のデフォルト値。
const DefaultFacilityName = "ShiftCare 障害者支援施設"

// ErrInsecureSecret は本番環境でデフォルトのJWT署名鍵が使われた場合のエラー。
var ErrInsecureSecret = errors.New("本番環境ではJWT_SECRETの設定が必要です")

// defaultPorts はサービスごとのデフォルトのリッスンポート。
var defaultPorts = map[string]string{
	"gateway":      "8080",
	"staff":        "8081",
	"shift":        "8082",
	"report":       "8083",
	"eventstore":   "8084",
	"incident":     "8085",
	"notification": "8086",
	"complaint":    "8087",
	"safety":       "8088",
	"evaluation":   "8089",
	"careplan":     "8090",
}

// Config はサービスの実行時設定。
type Config struct {
	// Service はサービス名（例: "shift"）。
	Service string
	// Env は実行環境（DEV, TEST, PROD）。
	Env string
	// Port はHTTPサーバーのリッスンポート。
	Port string
	// DBPath はSQLiteデータベースファイルのパス。
	DBPath string
	// JWTSecret はJWT署名用の秘密鍵。
	JWTSecret string

	// EventStoreURL はEvent StoreサービスのベースURL。
	EventStoreURL string
	// StaffURL はスタッフサービスのベースURL。
	StaffURL string
	// ShiftURL はシフトサービスのベースURL。
	ShiftURL string
	// ReportURL は日報サービスのベースURL。
	ReportURL string
	// IncidentURL は事故報告サービスのベースURL。
	IncidentURL string
	// NotificationURL は通知サービスのベースURL。
	NotificationURL string
	// ComplaintURL は苦情対応サービスのベースURL。
	ComplaintURL string
	// SafetyURL は防災・感染症サービスのベースURL。
	SafetyURL string
	// EvaluationURL は自己評価サービスのベースURL。
	EvaluationURL string
	// CarePlanURL は個別支援計画サービスのベースURL。
	CarePlanURL string

	// NATSURL はNATSサーバーのURL。空の場合はポーリングで変更を取得する。
	NATSURL string
	// FrontendURL はCORSで許可するフロントエンドのオリジン。カンマ区切りで複数指定できる。
	FrontendURL string

	// FacilityName はPDF帳票に印字する施設名。
	FacilityName string
	// FacilityLogoPath は帳票ヘッダーに配置するロゴ画像のパス。
	FacilityLogoPath string
	// FontPath はPDFに埋め込む日本語TTFフォントのパス。
	FontPath string

	// SendGridKey はSendGridのAPIキー。空の場合はメールをログ出力のみ行う。
	SendGridKey string
	// MailFrom は送信元メールアドレス。
	MailFrom string
	// RollbarToken はRollbarのアクセストークン。空の場合はエラー報告を行わない。
	RollbarToken string
}

// IsProduction は本番環境かどうかを返す。
func (c *Config) IsProduction() bool {
	return c.Env == "PROD"
}

// Load は指定サービスの設定を読み込む。
func Load(service string) (*Config, error) {
	env := strings.ToUpper(os.Getenv("ENV"))
	if env == "" {
		env = "DEV"
	}

	if err := loadDotEnv(".env."+strings.ToLower(env), ".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	setDefaults(v, service)
	v.AutomaticEnv()

	cfg := &Config{
		Service:          service,
		Env:              env,
		Port:             v.GetString("port"),
		DBPath:           v.GetString("db_path"),
		JWTSecret:        v.GetString("jwt_secret"),
		EventStoreURL:    v.GetString("eventstore_url"),
		StaffURL:         v.GetString("staff_url"),
		ShiftURL:         v.GetString("shift_url"),
		ReportURL:        v.GetString("report_url"),
		IncidentURL:      v.GetString("incident_url"),
		NotificationURL:  v.GetString("notification_url"),
		ComplaintURL:     v.GetString("complaint_url"),
		SafetyURL:        v.GetString("safety_url"),
		EvaluationURL:    v.GetString("evaluation_url"),
		CarePlanURL:      v.GetString("careplan_url"),
		NATSURL:          v.GetString("nats_url"),
		FrontendURL:      v.GetString("frontend_url"),
		FacilityName:     v.GetString("facility_name"),
		FacilityLogoPath: v.GetString("facility_logo_path"),
		FontPath:         v.GetString("font_path"),
		SendGridKey:      v.GetString("sendgrid_api_key"),
		MailFrom:         v.GetString("mail_from"),
		RollbarToken:     v.GetString("rollbar_token"),
	}

	if cfg.IsProduction() && cfg.JWTSecret == DefaultJWTSecret {
		return nil, ErrInsecureSecret
	}
	return cfg, nil
}

// setDefaults はコード内のデフォルト値を設定する。
func setDefaults(v *viper.Viper, service string) {
	port, ok := defaultPorts[service]
	if !ok {
		port = "8080"
	}
	v.SetDefault("port", port)
	v.SetDefault("db_path", filepath.Join("/data", service+".db"))
	v.SetDefault("jwt_secret", DefaultJWTSecret)

	v.SetDefault("eventstore_url", "http://localhost:8084")
	v.SetDefault("staff_url", "http://localhost:8081")
	v.SetDefault("shift_url", "http://localhost:8082")
	v.SetDefault("report_url", "http://localhost:8083")
	v.SetDefault("incident_url", "http://localhost:8085")
	v.SetDefault("notification_url", "http://localhost:8086")
	v.SetDefault("complaint_url", "http://localhost:8087")
	v.SetDefault("safety_url", "http://localhost:8088")
	v.SetDefault("evaluation_url", "http://localhost:8089")
	v.SetDefault("careplan_url", "http://localhost:8090")

	v.SetDefault("nats_url", "")
	v.SetDefault("frontend_url", "http://localhost:3000")
	v.SetDefault("facility_name", DefaultFacilityName)
	v.SetDefault("facility_logo_path", "")
	v.SetDefault("font_path", "")
	v.SetDefault("sendgrid_api_key", "")
	v.SetDefault("mail_from", "noreply@shiftcare.local")
	v.SetDefault("rollbar_token", "")
}

// loadDotEnv は存在する.envファイルを順に読み込む。
// 既に設定済みの環境変数は上書きしない。
func loadDotEnv(paths ...string) error {
	for _, p := range paths {
		if _, err := os.Stat(p); err != nil {
			if os.IsNotExist(err) {
				continue
			}
			return fmt.Errorf("設定ファイルの確認に失敗 (%s): %w", p, err)
		}
		if err := godotenv.Load(p); err != nil {
			return fmt.Errorf("設定ファイルの読み込みに失敗 (%s): %w", p, err)
		}
	}
	return nil
}
