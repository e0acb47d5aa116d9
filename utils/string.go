// Package utils 杂项工具
package utils

import (
	"unicode/utf8"
	"unsafe"
)

// B2S 零拷贝地将 []byte 转为 string, b 之后不得再被修改
func B2S(b []byte) string {
	size := len(b)
	if size == 0 {
		return ""
	}
	return unsafe.String(&b[0], size)
}

// S2B 零拷贝地将 string 转为 []byte, 返回值只读
func S2B(s string) (b []byte) {
	return unsafe.Slice(unsafe.StringData(s), len(s))
}

// Abbrev 日志用的内容缩略, 超过 n 个字符时截断并追加省略号
func Abbrev(s string, n int) string {
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	r := []rune(s)
	return string(r[:n]) + "..."
}
