package notification

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/nao1215/shiftcare/pkg/httpclient"
)

// DefaultDirectoryTTL は管理者一覧をキャッシュする時間。
const DefaultDirectoryTTL = 5 * time.Minute

// Directory は通知先となる管理者を引く。
type Directory interface {
	// ActiveAdminIDs は有効な管理者のユーザーIDを返す。
	ActiveAdminIDs(ctx context.Context) ([]string, error)
}

// staffMember はスタッフサービスの一覧APIのレスポンスのうち、宛先決定に使う項目。
type staffMember struct {
	ID       string `json:"id"`
	Role     string `json:"role"`
	IsActive bool   `json:"is_active"`
}

// StaffDirectory はスタッフサービスから管理者一覧を取得し、一定時間キャッシュする。
type StaffDirectory struct {
	client *httpclient.Client
	ttl    time.Duration
	now    func() time.Time

	mu        sync.Mutex
	ids       []string
	fetchedAt time.Time
}

// NewStaffDirectory はStaffDirectoryを生成する。
func NewStaffDirectory(client *httpclient.Client, ttl time.Duration) *StaffDirectory {
	return &StaffDirectory{client: client, ttl: ttl, now: time.Now}
}

// ActiveAdminIDs は有効な管理者のユーザーIDを返す。
// キャッシュが有効期限内であればスタッフサービスに問い合わせない。
// 問い合わせに失敗した場合、期限切れでもキャッシュがあればそれを返す。
func (d *StaffDirectory) ActiveAdminIDs(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.ids != nil && d.now().Sub(d.fetchedAt) < d.ttl {
		return d.ids, nil
	}

	var members []staffMember
	if err := d.client.GetJSON(ctx, "/api/v1/staff?role=admin&active=true", &members); err != nil {
		if d.ids != nil {
			return d.ids, nil
		}
		return nil, fmt.Errorf("管理者一覧の取得に失敗: %w", err)
	}

	ids := make([]string, 0, len(members))
	for _, m := range members {
		if m.Role == "admin" && m.IsActive {
			ids = append(ids, m.ID)
		}
	}
	d.ids = ids
	d.fetchedAt = d.now()
	return ids, nil
}

// Invalidate はキャッシュを破棄する。
func (d *StaffDirectory) Invalidate() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.ids = nil
}
