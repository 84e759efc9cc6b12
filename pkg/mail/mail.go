// Package mail は管理者向けのメール送信を提供する。
// SENDGRID_API_KEY が設定されていればSendGridで送信し、無ければログに出力する。
package mail

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"strings"

	"github.com/sendgrid/sendgrid-go"
	sgmail "github.com/sendgrid/sendgrid-go/helpers/mail"
)

const (
	defaultHost = "https://api.sendgrid.com"
	endpoint    = "/v3/mail/send"
)

// ErrNoRecipients は宛先が無い場合のエラー。
var ErrNoRecipients = errors.New("宛先がありません")

// Address はメールアドレスと表示名。
type Address struct {
	Name  string
	Email string
}

// Message は送信するメール。
type Message struct {
	To      []Address
	Subject string
	Text    string
}

// Mailer はメールを送信する。
type Mailer interface {
	Send(ctx context.Context, msg Message) error
}

// New はAPIキーの有無に応じてMailerを返す。
func New(apiKey, appName, from string) Mailer {
	if apiKey == "" {
		return Console{}
	}
	return NewSendGrid(apiKey, appName, from)
}

// SendGrid はSendGridのv3 APIでメールを送信する。
type SendGrid struct {
	key        string
	host       string
	from       *sgmail.Email
	subjPrefix string
}

// NewSendGrid はSendGridのMailerを生成する。
func NewSendGrid(key, appName, from string) *SendGrid {
	return &SendGrid{
		key:        key,
		host:       defaultHost,
		from:       sgmail.NewEmail(appName, from),
		subjPrefix: "[" + appName + "] ",
	}
}

// WithHost は送信先ホストを差し替える。
func (s *SendGrid) WithHost(host string) *SendGrid {
	s.host = host
	return s
}

func (s *SendGrid) prepare(msg Message) *sgmail.SGMailV3 {
	p := sgmail.NewPersonalization()
	p.Subject = s.subjPrefix + msg.Subject
	for _, to := range msg.To {
		p.AddTos(sgmail.NewEmail(to.Name, to.Email))
	}

	m := sgmail.NewV3Mail()
	m.SetFrom(s.from)
	m.AddPersonalizations(p)
	m.AddContent(sgmail.NewContent("text/plain", msg.Text))
	return m
}

// Send はメールを送信する。
func (s *SendGrid) Send(ctx context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	req := sendgrid.GetRequest(s.key, endpoint, s.host)
	req.Method = http.MethodPost
	req.Body = sgmail.GetRequestBody(s.prepare(msg))

	res, err := sendgrid.API(req)
	if err != nil {
		return fmt.Errorf("メール送信に失敗: %w", err)
	}
	if res.StatusCode >= http.StatusBadRequest {
		return fmt.Errorf("メール送信に失敗: status=%d, body=%s", res.StatusCode, res.Body)
	}
	return nil
}

// Console はメールを送信せずログに出力する。開発環境用。
type Console struct{}

// Send はメールの内容をログに出力する。
func (Console) Send(_ context.Context, msg Message) error {
	if len(msg.To) == 0 {
		return ErrNoRecipients
	}
	to := make([]string, 0, len(msg.To))
	for _, a := range msg.To {
		to = append(to, a.Email)
	}
	log.Printf("[Mail] to=%s subject=%s\n%s", strings.Join(to, ","), msg.Subject, msg.Text)
	return nil
}
