package utils

import "strings"

// 模板里允许出现的姓名占位符写法，含葡语变体，历史数据里大小写混用
var namePlaceholders = []string{
	"{{name}}",
	"{{nome}}",
	"{{NAME}}",
	"{{NOME}}",
	"{{Name}}",
	"{{Nome}}",
}

// RenderMessage 用 lead 姓名替换模板中的姓名占位符
// name 为空时使用 fallback 兜底称呼
func RenderMessage(template, name, fallback string) string {
	if strings.TrimSpace(name) == "" {
		name = fallback
	}

	result := template
	for _, placeholder := range namePlaceholders {
		result = strings.ReplaceAll(result, placeholder, name)
	}
	return result
}
