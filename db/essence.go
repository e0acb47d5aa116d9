package db

import (
	"strings"
	"unicode/utf8"
)

// ContentType 精华消息内容类型
type ContentType string

// 已知内容类型, 无法识别的段类型原样保留其类型名
const (
	TypeText  ContentType = "text"
	TypeImage ContentType = "image"
	TypeAt    ContentType = "at"
	TypeReply ContentType = "reply"
	TypeGroup ContentType = "group"
)

// Randomizable 是否允许被 random 抽取
func (t ContentType) Randomizable() bool {
	return t == TypeText || t == TypeImage
}

// EssenceRecord 持久化精华消息
//
// Content 在 image 类型下为 base64:// 数据,
// 在 group 类型下为 [type,data],[type,data],... 的展开列表
type EssenceRecord struct {
	ID         int64 // ID 为存储分配的行号, 不参与匹配
	Time       int64
	GroupID    int64
	SenderID   int64
	OperatorID int64
	Type       ContentType
	Content    string
}

// DeletionRecord 被移出精华的记录, 用于撤销匹配
type DeletionRecord = EssenceRecord

// NicknameMapping 群昵称缓存
type NicknameMapping struct {
	Nickname   string
	GroupID    int64
	UserID     int64
	ObservedAt int64
}

// RankField 排行依据
type RankField string

// 排行字段
const (
	RankBySender   RankField = "sender"
	RankByOperator RankField = "operator"
)

// RankEntry 排行项
type RankEntry struct {
	ID    int64
	Count int64
}

// 匹配参数
const (
	SimilarTimeTolerance = 1000
	MatchPrefixLength    = 50
	RankLimit            = 7
	SearchLimit          = 5
	DefaultSearchMaxLen  = 100
)

// TruncateRunes 截取前 n 个字符
func TruncateRunes(s string, n int) string {
	if n <= 0 {
		return ""
	}
	if utf8.RuneCountInString(s) <= n {
		return s
	}
	var sb strings.Builder
	for i, r := range []rune(s) {
		if i >= n {
			break
		}
		sb.WriteRune(r)
	}
	return sb.String()
}
