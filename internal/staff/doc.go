// Package staff はスタッフサービスの内部実装を提供する。
//
// 職員名簿の登録・更新・削除と、業務ルール（必須項目、労働時間、資格）の検証、
// 保有資格の評価、勤務体制一覧表（PDF・Excel）の出力、名簿ファイルの取り込みを行う。
// 変更はStaffCreated・StaffUpdated・StaffDeletedイベントとしてEvent Storeに記録する。
package staff
