package utils

import "unicode/utf8"

// Truncate は s を最大 n 文字（rune 単位）に切り詰めます。n<=0 の場合は何もしません。
func Truncate(s string, n int) string {
	if n <= 0 || utf8.RuneCountInString(s) <= n {
		return s
	}
	runes := []rune(s)
	return string(runes[:n])
}
