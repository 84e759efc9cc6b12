// Package complaint は苦情・要望の受付と対応記録を管理するサービスを提供する。
//
// 受付はだれでも行えるが、一覧・対応記録の追加・解決は管理者だけが行う。
// 最初の対応記録で対応状況は pending から in_progress に進み、解決すると resolved になる。
package complaint
