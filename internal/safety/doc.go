// Package safety は防災訓練と感染症対応の記録を管理するサービスを提供する。
// 記録の登録・閲覧・PDF出力は管理者だけが行う。
package safety
