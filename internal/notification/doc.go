// Package notification は通知サービスの内部実装を提供する。
//
// 各サービスがEvent Storeに追記した行レベルの変更イベントを購読し、
// 利用者ごとの通知に展開する。購読はNATSが設定されていればNATS、
// そうでなければEvent Storeのポーリングで行う。
//
// 通知の宛先は変更された行の持ち主と有効な管理者全員で、
// 同じイベントを何度受け取っても通知は1件に限られる。
// 作成した通知は一覧APIとServer-Sent Eventsで利用者に届ける。
package notification
