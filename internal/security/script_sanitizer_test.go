package security

import (
	"strings"
	"testing"
)

func TestScriptSanitizer_RemovesScriptTags(t *testing.T) {
	s := NewScriptSanitizer()

	input := `こんにちは。<script>alert("xss")</script>車両の点検をお勧めします。`
	got := s.Sanitize(input)

	if strings.Contains(got, "<script>") || strings.Contains(got, "alert") {
		t.Errorf("scriptタグが除去されていない: %q", got)
	}
	if !strings.Contains(got, "車両の点検をお勧めします。") {
		t.Errorf("本文が失われた: %q", got)
	}
}

func TestScriptSanitizer_KeepsFormattingTags(t *testing.T) {
	s := NewScriptSanitizer()

	input := "<p>お客様の車両に<strong>重大な異常</strong>が検出されました。</p><br>"
	got := s.Sanitize(input)

	for _, tag := range []string{"<p>", "<strong>", "<br"} {
		if !strings.Contains(got, tag) {
			t.Errorf("許可タグ %s が除去された: %q", tag, got)
		}
	}
}

func TestScriptSanitizer_RemovesLinksAndImages(t *testing.T) {
	s := NewScriptSanitizer()

	input := `詳細は<a href="https://example.com">こちら</a><img src="https://example.com/x.png">`
	got := s.Sanitize(input)

	if strings.Contains(got, "<a") || strings.Contains(got, "<img") {
		t.Errorf("リンク・画像タグが除去されていない: %q", got)
	}
	if !strings.Contains(got, "こちら") {
		t.Errorf("リンクテキストは残すべき: %q", got)
	}
}

func TestScriptSanitizer_RemovesEventAttributes(t *testing.T) {
	s := NewScriptSanitizer()

	input := `<p onclick="alert(1)">点検のご案内</p>`
	got := s.Sanitize(input)

	if strings.Contains(got, "onclick") {
		t.Errorf("イベント属性が除去されていない: %q", got)
	}
}

func TestScriptSanitizer_EmptyInput(t *testing.T) {
	s := NewScriptSanitizer()

	if got := s.Sanitize(""); got != "" {
		t.Errorf("空入力には空文字列を返すべき: %q", got)
	}
}

func TestScriptSanitizer_Idempotent(t *testing.T) {
	s := NewScriptSanitizer()

	input := `<p>お客様の車両に<script>bad()</script>異常があります。</p>`
	once := s.Sanitize(input)
	twice := s.Sanitize(once)

	if once != twice {
		t.Errorf("サニタイズが冪等でない: %q != %q", once, twice)
	}
}
