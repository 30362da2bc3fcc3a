package utils

import "strings"

// NormalizeNumber 规约收件人号码：只保留数字
// 网关按国际格式裸数字寻址，格式化字符（+、空格、括号、横线）一律剔除
func NormalizeNumber(raw string) string {
	var sb strings.Builder
	sb.Grow(len(raw))
	for _, r := range raw {
		if r >= '0' && r <= '9' {
			sb.WriteRune(r)
		}
	}
	return sb.String()
}
