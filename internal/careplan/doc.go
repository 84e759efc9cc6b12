// Package careplan は利用者ごとのモニタリング記録と個別支援計画を管理するサービスを提供する。
// 記録は下書き・作成完了・提出済みの順に進み、提出済みの記録を管理者が確認・承認する。
// モニタリング記録の内容を引き継いで次期の個別支援計画の下書きを作成できる。
package careplan
