// Package repository はデータ永続化のインターフェースを定義する。
package repository

import (
	"context"

	"github.com/hitoshi/fleetwatch/internal/model"
)

// SessionRepository はオペレーターセッションの永続化インターフェース。
// プロセス全体で1つのスロットのみを保持する。検証は行わない（dumb slot）。
// 書き込みはログイン・ログアウト・再検証失敗のユーザー起点パスからのみ行われる。
type SessionRepository interface {
	// Get は永続化されたセッションを取得する。存在しない場合はnilを返す。
	Get(ctx context.Context) (*model.Session, error)

	// Set はセッションをスロットに保存する。既存の値は上書きされる。
	Set(ctx context.Context, session *model.Session) error

	// Clear はスロットを空にする。すでに空の場合も成功する（冪等）。
	Clear(ctx context.Context) error
}
