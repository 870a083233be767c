package telegram

import "strings"

// Markdown（旧版）中需要转义的字符
var markdownEscaper = strings.NewReplacer(
	"_", "\\_",
	"*", "\\*",
	"`", "\\`",
	"[", "\\[",
)

func escapeMarkdown(input string) string {
	return markdownEscaper.Replace(input)
}

// shortAddress 0x1234...abcd
func shortAddress(address string) string {
	if len(address) <= 12 {
		return address
	}
	return address[:6] + "..." + address[len(address)-4:]
}
