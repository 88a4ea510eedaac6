// Package database はSQLiteへの接続とスキーマの適用を行う。
package database

import (
	"context"
	"embed"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/nao1215/encore/pkg/migration"
	_ "modernc.org/sqlite"
)

//go:embed migrations/*.sql
var migrations embed.FS

// MemoryPath はインメモリデータベースを表すパス。
const MemoryPath = ":memory:"

// Open はSQLiteデータベースを開き、未適用のマイグレーションを適用する。
func Open(ctx context.Context, path string) (*sqlx.DB, error) {
	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("データベースのオープンに失敗: %w", err)
	}

	if path == MemoryPath {
		// 接続ごとに別のDBになるため1接続に固定する
		db.SetMaxOpenConns(1)
	} else {
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
			db.Close()
			return nil, fmt.Errorf("WALモードの設定に失敗: %w", err)
		}
	}

	for _, pragma := range []string{"PRAGMA foreign_keys=ON", "PRAGMA busy_timeout=5000"} {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("%s の実行に失敗: %w", pragma, err)
		}
	}

	if _, err := migration.Run(ctx, db.DB, migrations, "migrations"); err != nil {
		db.Close()
		return nil, fmt.Errorf("マイグレーションの実行に失敗: %w", err)
	}
	return db, nil
}
