package model

import (
	"errors"
	"fmt"
)

// ErrorClass はダウンストリーム呼び出し失敗の分類。
// ログアウトを強制するかインラインエラーとして表示するかを決定する。
type ErrorClass string

const (
	// ErrClassAuthExpired はトークン無効・期限切れ・再検証失敗（401、validateの422）。
	// 強制ログアウトし、永続化されたセッションをクリアする。
	ErrClassAuthExpired ErrorClass = "auth_expired"
	// ErrClassAuthorizationDenied はスコープ外リソースへのアクセス拒否（403）。
	// 現行ポリシーではAuthExpiredと同様に強制ログアウトする。
	ErrClassAuthorizationDenied ErrorClass = "authorization_denied"
	// ErrClassTransient はネットワーク障害・5xx・不正ペイロード。
	// フロー単位のインラインエラーとして表示し、状態はクリアしない。
	ErrClassTransient ErrorClass = "transient"
)

// ForcesLogout はこの分類がセッション破棄を要求するかを返す。
func (c ErrorClass) ForcesLogout() bool {
	return c == ErrClassAuthExpired || c == ErrClassAuthorizationDenied
}

// AgentError はエージェント呼び出しの失敗を表す。
// Status はHTTPステータスコード（ネットワーク障害時は0）。
// Message はユーザーに表示可能なメッセージ。
type AgentError struct {
	Agent   string
	Class   ErrorClass
	Status  int
	Message string
}

// Error はerrorインターフェースを実装する。
func (e *AgentError) Error() string {
	if e.Status > 0 {
		return fmt.Sprintf("%s: %s (status %d)", e.Agent, e.Message, e.Status)
	}
	return fmt.Sprintf("%s: %s", e.Agent, e.Message)
}

// ClassifyStatus はHTTPステータスコードをエラー分類に変換する。
func ClassifyStatus(statusCode int) ErrorClass {
	switch statusCode {
	case 401:
		return ErrClassAuthExpired
	case 403:
		return ErrClassAuthorizationDenied
	default:
		return ErrClassTransient
	}
}

// Classify はエラーからErrorClassを取り出す。
// AgentErrorでない場合（コンテキストキャンセル、JSONデコード失敗など）は
// Transientとして扱う。
func Classify(err error) ErrorClass {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Class
	}
	return ErrClassTransient
}

// UserMessage はエラーからユーザー表示用メッセージを取り出す。
func UserMessage(err error) string {
	var agentErr *AgentError
	if errors.As(err, &agentErr) {
		return agentErr.Message
	}
	return err.Error()
}
