// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ScriptSanitizerService はカスタマーエンゲージメントエージェントが生成した
// 会話スクリプトをサニタイズし、ブラウザに表示される前にXSSリスクを除去する。
// スクリプトは外部のLLMパイプライン由来のテキストであり、信頼できない
// 入力として扱う。bluemondayライブラリの許可リストベースのポリシーで、
// 最小限の整形タグのみを通過させる。
package security

import (
	"github.com/microcosm-cc/bluemonday"
)

// ScriptSanitizerService は会話スクリプトのサニタイズ機能のインターフェースを定義する。
// エンゲージメント結果をビューモデルに格納する前に使用される。
type ScriptSanitizerService interface {
	// Sanitize はスクリプトをサニタイズして安全なテキストを返す。
	// 許可タグ（p, br, strong, em）のみを通過させ、
	// script, iframe, a, imgタグおよびon*イベント属性を除去する。
	// 空文字列の入力には空文字列を返す。
	// 同一入力に対して常に同一出力を返す（冪等）。
	Sanitize(raw string) string
}

// scriptSanitizer はScriptSanitizerServiceの実装。
// bluemondayのポリシーを保持し、スレッドセーフにサニタイズ処理を行う。
type scriptSanitizer struct {
	policy *bluemonday.Policy
}

// NewScriptSanitizer はScriptSanitizerServiceの新しいインスタンスを生成する。
// 会話スクリプトはプレーンテキストが基本のため、許可するのは
// 段落・改行・強調の整形タグのみとする。リンクと画像は
// 発信スクリプトに現れる正当な理由がないため許可しない。
func NewScriptSanitizer() *scriptSanitizer {
	p := bluemonday.NewPolicy()

	// 整形タグのみ許可。script, iframe, style等は許可リストに
	// 含めないことで自動的に除去される。on*イベント属性は
	// bluemondayのデフォルトで許可されない。
	p.AllowElements("p", "br", "strong", "em")

	return &scriptSanitizer{
		policy: p,
	}
}

// Sanitize はスクリプトをサニタイズして安全なテキストを返す。
func (s *scriptSanitizer) Sanitize(raw string) string {
	return s.policy.Sanitize(raw)
}
