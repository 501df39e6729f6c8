// Package security はアプリケーションのセキュリティ機能を提供する。
//
// ProfileSanitizer はIdPから受け取ったプロフィール項目（表示名、メールアドレス）から
// HTMLマークアップを除去する。トークンの署名は検証済みでも、
// name クレームの内容はユーザーが自由に設定できるため、保存前に無害化する。
package security

import (
	"html"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// maxProfileFieldLength は保存するプロフィール項目の最大文字数。
const maxProfileFieldLength = 256

// maxUnescapeRounds はエンティティの多重エンコードを剥がす最大回数。
// これを超えても値が変化し続ける入力は空文字列として扱う。
const maxUnescapeRounds = 8

// ProfileSanitizer はプロフィール項目の無害化を行う。
// bluemondayのStrictPolicyを保持し、スレッドセーフに処理する。
type ProfileSanitizer struct {
	policy *bluemonday.Policy
}

// NewProfileSanitizer はProfileSanitizerの新しいインスタンスを生成する。
// 全てのタグと属性を除去するStrictPolicyを使用する。
func NewProfileSanitizer() *ProfileSanitizer {
	return &ProfileSanitizer{
		policy: bluemonday.StrictPolicy(),
	}
}

// Sanitize はタグを除去し、前後の空白を取り除き、最大長で切り詰めた文字列を返す。
// 空文字列の入力には空文字列を返す。同一入力に対して常に同一出力を返す。
//
// StrictPolicyの出力はエスケープ済みのため、プレーンテキストに戻してから
// 再度ポリシーを通す。&lt;script&gt; のようにエンティティで包まれたタグも
// 戻した時点でタグとして除去され、値が変化しなくなるまで繰り返す。
func (s *ProfileSanitizer) Sanitize(raw string) string {
	if raw == "" {
		return ""
	}

	cleaned, ok := s.stripUntilStable(raw)
	if !ok {
		return ""
	}
	cleaned = strings.TrimSpace(cleaned)

	runes := []rune(cleaned)
	if len(runes) > maxProfileFieldLength {
		cleaned = string(runes[:maxProfileFieldLength])
	}
	return cleaned
}

// stripUntilStable はタグ除去とアンエスケープを値が収束するまで繰り返す。
// maxUnescapeRounds以内に収束しなければfalseを返す。
func (s *ProfileSanitizer) stripUntilStable(v string) (string, bool) {
	for range maxUnescapeRounds {
		next := html.UnescapeString(s.policy.Sanitize(v))
		if next == v {
			return v, true
		}
		v = next
	}
	return v, false
}
