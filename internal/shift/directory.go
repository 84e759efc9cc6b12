package shift

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"sync"
	"time"

	"github.com/nao1215/shiftcare/pkg/httpclient"
)

// DefaultDirectoryTTL はスタッフ情報をキャッシュする時間。
const DefaultDirectoryTTL = time.Minute

// Directory はシフトの検証に使うスタッフ情報を引く。
type Directory interface {
	// Lookup はスタッフ情報を返す。存在しない場合はnilとnilを返す。
	Lookup(ctx context.Context, id string) (*StaffInfo, error)
}

type cachedStaff struct {
	info      *StaffInfo
	fetchedAt time.Time
}

// StaffDirectory はスタッフサービスからスタッフ情報を取得し、一定時間キャッシュする。
type StaffDirectory struct {
	client *httpclient.Client
	ttl    time.Duration
	now    func() time.Time

	mu    sync.Mutex
	cache map[string]cachedStaff
}

// NewStaffDirectory はStaffDirectoryを生成する。
func NewStaffDirectory(client *httpclient.Client, ttl time.Duration) *StaffDirectory {
	return &StaffDirectory{
		client: client,
		ttl:    ttl,
		now:    time.Now,
		cache:  make(map[string]cachedStaff),
	}
}

// Lookup はスタッフ情報を返す。存在しないスタッフもキャッシュする。
func (d *StaffDirectory) Lookup(ctx context.Context, id string) (*StaffInfo, error) {
	d.mu.Lock()
	if c, ok := d.cache[id]; ok && d.now().Sub(c.fetchedAt) < d.ttl {
		d.mu.Unlock()
		return c.info, nil
	}
	d.mu.Unlock()

	var info StaffInfo
	err := d.client.GetJSON(ctx, "/api/v1/staff/"+url.PathEscape(id), &info)
	var found *StaffInfo
	switch {
	case err == nil:
		found = &info
	case httpclient.IsStatus(err, http.StatusNotFound):
		found = nil
	default:
		return nil, fmt.Errorf("スタッフ情報の取得に失敗 (id=%s): %w", id, err)
	}

	d.mu.Lock()
	d.cache[id] = cachedStaff{info: found, fetchedAt: d.now()}
	d.mu.Unlock()
	return found, nil
}
