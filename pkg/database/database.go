// Package database はSQLiteデータベースへの接続とスキーマ適用を提供する。
package database

import (
	"errors"
	"fmt"
	"io/fs"
	"strings"

	"github.com/jmoiron/sqlx"
	"modernc.org/sqlite"
	sqlite3 "modernc.org/sqlite/lib"

	"github.com/nao1215/shiftcare/pkg/migration"
)

// driverName はmodernc.org/sqliteが登録するドライバ名。
const driverName = "sqlite"

// Open はSQLiteデータベースファイルを開き、マイグレーションを適用する。
// WALモードとビジータイムアウトを有効にする。
func Open(path string, migrations fs.FS, dir string) (*sqlx.DB, error) {
	dsn := fmt.Sprintf("%s?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=foreign_keys(1)", path)
	db, err := sqlx.Open(driverName, dsn)
	if err != nil {
		return nil, fmt.Errorf("データベース接続に失敗: %w", err)
	}

	if err := migration.Run(db.DB, migrations, dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// OpenMemory はインメモリのSQLiteデータベースを開き、マイグレーションを適用する。
// インメモリDBは接続ごとに別のデータベースになるため、接続数を1に制限する。
func OpenMemory(migrations fs.FS, dir string) (*sqlx.DB, error) {
	db, err := sqlx.Open(driverName, ":memory:?_pragma=foreign_keys(1)")
	if err != nil {
		return nil, fmt.Errorf("インメモリDBの作成に失敗: %w", err)
	}
	db.SetMaxOpenConns(1)

	if err := migration.Run(db.DB, migrations, dir); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("スキーマ初期化に失敗: %w", err)
	}
	return db, nil
}

// IsUniqueViolation は一意制約違反のエラーかどうかを判定する。
func IsUniqueViolation(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() {
	case sqlite3.SQLITE_CONSTRAINT_UNIQUE, sqlite3.SQLITE_CONSTRAINT_PRIMARYKEY:
		return true
	case sqlite3.SQLITE_CONSTRAINT:
		// 拡張エラーコードが無効な接続ではメッセージで判定する
		return strings.Contains(se.Error(), "UNIQUE constraint failed")
	default:
		return false
	}
}
