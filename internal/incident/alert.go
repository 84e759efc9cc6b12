package incident

import (
	"context"
	"fmt"
	"strings"

	incidentdb "github.com/nao1215/shiftcare/internal/incident/db"
	"github.com/nao1215/shiftcare/pkg/httpclient"
	"github.com/nao1215/shiftcare/pkg/mail"
)

// Alerter は事故の報告を管理者に知らせる。
type Alerter interface {
	AccidentReported(ctx context.Context, inc incidentdb.Incident) error
}

// admin はスタッフサービスの一覧APIのうち、宛先に使う項目。
type admin struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	IsActive bool   `json:"is_active"`
}

// MailAlerter はスタッフサービスから有効な管理者を引いてメールを送る。
type MailAlerter struct {
	staff  *httpclient.Client
	mailer mail.Mailer
}

// NewMailAlerter はMailAlerterを生成する。
func NewMailAlerter(staff *httpclient.Client, mailer mail.Mailer) *MailAlerter {
	return &MailAlerter{staff: staff, mailer: mailer}
}

// AccidentReported は事故の概要を有効な管理者全員に送る。
func (a *MailAlerter) AccidentReported(ctx context.Context, inc incidentdb.Incident) error {
	var admins []admin
	if err := a.staff.GetJSON(ctx, "/api/v1/staff?role=admin&active=true", &admins); err != nil {
		return fmt.Errorf("管理者一覧の取得に失敗: %w", err)
	}
	to := make([]mail.Address, 0, len(admins))
	for _, ad := range admins {
		if ad.IsActive && ad.Email != "" {
			to = append(to, mail.Address{Name: ad.Name, Email: ad.Email})
		}
	}
	if len(to) == 0 {
		return mail.ErrNoRecipients
	}
	return a.mailer.Send(ctx, accidentMessage(to, inc))
}

// accidentMessage は事故報告の通知メールを組み立てる。
func accidentMessage(to []mail.Address, inc incidentdb.Incident) mail.Message {
	var body strings.Builder
	fmt.Fprintf(&body, "事故が報告されました。\n\n")
	fmt.Fprintf(&body, "発生日時: %s\n", formatOccurred(inc.OccurredAt))
	fmt.Fprintf(&body, "発生場所: %s\n", inc.Location)
	fmt.Fprintf(&body, "関係者: %s\n", strings.Join(persons(inc.InvolvedPersons), ", "))
	fmt.Fprintf(&body, "報告者: %s\n\n", inc.ReporterName)
	fmt.Fprintf(&body, "発生状況の詳細:\n%s\n", inc.Description)
	return mail.Message{
		To:      to,
		Subject: fmt.Sprintf("事故報告: %s（%s）", inc.Location, formatOccurred(inc.OccurredAt)),
		Text:    body.String(),
	}
}
