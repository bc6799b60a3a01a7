package auth

import "strings"

// BearerToken は Authorization ヘッダーからトークンを取り出します。
// 値を半角スペースで区切った2番目の要素をトークンとみなし、スキーム名は検証しません。
// ヘッダーが空、2番目の要素がない、または空の場合は false を返します。
func BearerToken(header string) (string, bool) {
	parts := strings.Split(header, " ")
	if len(parts) < 2 || parts[1] == "" {
		return "", false
	}
	return parts[1], true
}
