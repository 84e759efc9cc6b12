package notification

import (
	"fmt"
	"time"

	"github.com/nao1215/shiftcare/pkg/event"
)

// 通知の種類。
const (
	TypeNewShift        = "new_shift"
	TypeShiftUpdate     = "shift_update"
	TypeRequestApproved = "request_approved"
	TypeRequestRejected = "request_rejected"
	TypeInfo            = "info"
)

// Draft は変更イベントから導いた、宛先確定前の通知。
type Draft struct {
	// Type は通知の種類。
	Type string
	// Title は通知のタイトル。
	Title string
	// Message は通知メッセージ。
	Message string
	// OwnerID は変更された行の持ち主（シフトのuser_id、休日希望のstaff_id）。
	// 持ち主が無い通知（事故報告など）は空文字列で、管理者だけに届く。
	OwnerID string
}

// Derive は変更イベントを通知に変換する。通知対象でないイベントはnilを返す。
//
//   - ShiftCreated: 新しいシフトの通知
//   - ShiftUpdated: シフト種別か開始時刻が変わった場合だけ変更の通知
//   - ShiftRequestUpdated: 状態がpending以外になった場合に承認・却下の通知
//   - IncidentReported（事故）・ComplaintReceived: 管理者向けのお知らせ
func Derive(e *event.Event) (*Draft, error) {
	switch e.EventType {
	case event.TypeShiftCreated:
		change, err := event.DecodeChange[event.ShiftRow](e)
		if err != nil {
			return nil, err
		}
		if change.New == nil {
			return nil, nil
		}
		return &Draft{
			Type:    TypeNewShift,
			Title:   "新しいシフトが作成されました",
			Message: fmt.Sprintf("%s %sのシフトが追加されました", displayDate(change.New.Date), change.New.ShiftType),
			OwnerID: change.New.UserID,
		}, nil

	case event.TypeShiftUpdated:
		change, err := event.DecodeChange[event.ShiftRow](e)
		if err != nil {
			return nil, err
		}
		if change.New == nil {
			return nil, nil
		}
		if old := change.Old; old != nil &&
			old.ShiftType == change.New.ShiftType && old.StartTime == change.New.StartTime {
			return nil, nil
		}
		return &Draft{
			Type:    TypeShiftUpdate,
			Title:   "シフト変更通知",
			Message: fmt.Sprintf("%sのシフトが変更されました", displayDate(change.New.Date)),
			OwnerID: change.New.UserID,
		}, nil

	case event.TypeShiftRequestUpdated:
		change, err := event.DecodeChange[event.ShiftRequestRow](e)
		if err != nil {
			return nil, err
		}
		if change.New == nil || change.New.Status == "pending" {
			return nil, nil
		}
		d := &Draft{
			Type:    TypeRequestRejected,
			Title:   "休日希望が却下されました",
			Message: fmt.Sprintf("%sの休日希望が却下されました", change.New.TargetMonth),
			OwnerID: change.New.StaffID,
		}
		if change.New.Status == "approved" {
			d.Type = TypeRequestApproved
			d.Title = "休日希望が承認されました"
			d.Message = fmt.Sprintf("%sの休日希望が承認されました", change.New.TargetMonth)
		}
		return d, nil

	case event.TypeIncidentReported:
		data, err := event.DecodeData[event.IncidentData](e)
		if err != nil {
			return nil, err
		}
		if data.Type != "accident" {
			return nil, nil
		}
		return &Draft{
			Type:    TypeInfo,
			Title:   "事故報告が提出されました",
			Message: fmt.Sprintf("%sで事故が発生しました。報告内容を確認してください", data.Location),
		}, nil

	case event.TypeComplaintReceived:
		if _, err := event.DecodeData[event.ComplaintData](e); err != nil {
			return nil, err
		}
		return &Draft{
			Type:    TypeInfo,
			Title:   "苦情・要望を受け付けました",
			Message: "新しい苦情・要望が登録されました。対応を確認してください",
		}, nil

	default:
		return nil, nil
	}
}

// displayDate は "2006-01-02" を "2006/1/2" 形式に変換する。解析できない場合はそのまま返す。
func displayDate(date string) string {
	t, err := time.Parse("2006-01-02", date)
	if err != nil {
		return date
	}
	return t.Format("2006/1/2")
}
