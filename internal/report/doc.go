// Package report は日報サービスを提供する。
//
// スタッフは勤務日ごとに1件の日報を提出し、担当した利用者ごとの記録を添える。
// 管理者は日報を確認（reviewed）し、承認（approved）する。
package report
