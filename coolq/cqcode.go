package coolq

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/global"
)

var cqUnescaper = strings.NewReplacer("&#91;", "[", "&#93;", "]", "&#44;", ",", "&amp;", "&")

// parseCQString 将字符串格式上报的消息解析为消息段数组
func parseCQString(s string) gjson.Result {
	var segs []global.MSG
	text := func(t string) {
		if t != "" {
			segs = append(segs, global.MSG{"type": "text", "data": global.MSG{"text": cqUnescaper.Replace(t)}})
		}
	}
	for {
		i := strings.Index(s, "[CQ:")
		if i < 0 {
			break
		}
		j := strings.IndexByte(s[i:], ']')
		if j < 0 {
			break
		}
		text(s[:i])
		segs = append(segs, cqSegment(s[i+4:i+j]))
		s = s[i+j+1:]
	}
	text(s)
	data, _ := json.Marshal(segs)
	return gjson.ParseBytes(data)
}

func cqSegment(code string) global.MSG {
	parts := strings.Split(code, ",")
	data := make(global.MSG, len(parts)-1)
	for _, kv := range parts[1:] {
		k, v, _ := strings.Cut(kv, "=")
		data[k] = cqUnescaper.Replace(v)
	}
	return global.MSG{"type": parts[0], "data": data}
}
