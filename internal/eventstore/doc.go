// Package eventstore は変更イベントの追記専用ストアを提供する。
//
// 各サービスは行の作成・更新・削除を変更イベントとしてここに追記する。
// 通知サービスはこのストアを変更ストリームとして扱い、"since" APIの
// ポーリングか、NATSに発行されたイベントの購読でイベントを受け取る。
//
// 主な機能:
//   - イベントの追記（Aggregate単位のバージョン採番）
//   - AggregateID・イベントタイプ・日時によるイベント取得
//   - 追記したイベントのNATSへの発行
package eventstore
