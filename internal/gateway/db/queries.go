// Package gatewaydb はGatewayサービスのSQLクエリを提供する。
package gatewaydb

import (
	"context"

	"github.com/jmoiron/sqlx"
)

// User はusersテーブルの行。
type User struct {
	ID          string `db:"id"`
	Name        string `db:"name"`
	Email       string `db:"email"`
	Role        string `db:"role"`
	CreatedAt   string `db:"created_at"`
	LastLoginAt string `db:"last_login_at"`
}

// Queries はGatewayサービスのクエリを実行する。
type Queries struct {
	db sqlx.ExtContext
}

// New はQueriesを生成する。
func New(db sqlx.ExtContext) *Queries {
	return &Queries{db: db}
}

// GetUser はIDでユーザーを取得する。
func (q *Queries) GetUser(ctx context.Context, id string) (User, error) {
	var u User
	err := sqlx.GetContext(ctx, q.db, &u, `SELECT * FROM users WHERE id = ?`, id)
	return u, err
}

// UpsertUser はログインしたユーザーを登録する。既存の場合は表示名とロール、最終ログイン日時を更新する。
func (q *Queries) UpsertUser(ctx context.Context, u User) error {
	_, err := sqlx.NamedExecContext(ctx, q.db, `
INSERT INTO users (id, name, email, role, created_at, last_login_at)
VALUES (:id, :name, :email, :role, :created_at, :last_login_at)
ON CONFLICT(id) DO UPDATE SET
    name = excluded.name,
    email = excluded.email,
    role = excluded.role,
    last_login_at = excluded.last_login_at`, u)
	return err
}
