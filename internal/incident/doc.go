// Package incident は事故・ヒヤリハット報告サービスを提供する。
//
// 報告はだれでも登録でき、管理者が対応状況を pending → in_progress → completed と進める。
// 事故の報告は管理者にメールで知らせる。報告書と一覧はPDFで出力できる。
package incident
