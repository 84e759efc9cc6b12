// Package shift はシフトサービスを提供する。
//
// シフトの登録・更新時にはスタッフサービスからスタッフ情報を取得し、
// 夜勤の可否、雇用形態、勤務時間、同じ日の時間帯の重複を検証する。
// 月次の生成シフトは対象月ごとにまとめて置き換え、RRULEによる繰り返し登録もできる。
// 休日希望（shift_requests）の提出と承認・却下もこのサービスが扱う。
//
// 行の変更はすべてEvent Storeへ変更イベントとして送られ、通知サービスが利用者への通知に展開する。
package shift
