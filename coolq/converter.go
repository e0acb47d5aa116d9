package coolq

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/segmentio/asm/base64"
	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/db"
	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/internal/base"
	"github.com/ycvk/go-essence/internal/mime"
)

// maxReplyDepth 引用消息的最大展开层数
const maxReplyDepth = 3

var errEmptyMessage = errors.New("empty message")

type element struct {
	typ  db.ContentType
	data string
}

func (e element) String() string {
	return "[" + string(e.typ) + "," + e.data + "]"
}

// FormatMessage 将 OneBot 消息段转换为存档格式
//
// 单个消息段保留自身的类型, 多个消息段合并为 group 类型;
// 图片获取失败时整条消息失败
func (bot *CQBot) FormatMessage(ctx context.Context, message gjson.Result) (db.ContentType, string, error) {
	return bot.formatMessage(ctx, message, 0)
}

func (bot *CQBot) formatMessage(ctx context.Context, message gjson.Result, depth int) (db.ContentType, string, error) {
	if message.Type == gjson.String {
		// 字符串格式上报
		message = parseCQString(message.String())
	}
	segments := message.Array()
	elems := make([]element, 0, len(segments))
	for _, seg := range segments {
		e, err := bot.formatSegment(ctx, seg, depth)
		if err != nil {
			return "", "", err
		}
		elems = append(elems, e)
	}
	switch len(elems) {
	case 0:
		return "", "", errEmptyMessage
	case 1:
		return elems[0].typ, elems[0].data, nil
	}
	var sb strings.Builder
	for _, e := range elems {
		sb.WriteString(e.String())
		sb.WriteByte(',')
	}
	return db.TypeGroup, sb.String(), nil
}

func (bot *CQBot) formatSegment(ctx context.Context, seg gjson.Result, depth int) (element, error) {
	typ := db.ContentType(seg.Get("type").String())
	data := seg.Get("data")
	switch typ {
	case db.TypeText:
		return element{typ, data.Get("text").String()}, nil
	case db.TypeImage:
		uri, err := bot.imageURI(data)
		if err != nil {
			return element{}, err
		}
		return element{typ, uri}, nil
	case db.TypeAt:
		return element{typ, data.Get("qq").String()}, nil
	case db.TypeReply:
		return element{typ, bot.formatReply(ctx, data.Get("id"), depth)}, nil
	default:
		// 无法识别的消息段原样保留
		raw := data.Raw
		if raw == "" {
			raw = "{}"
		}
		return element{typ, raw}, nil
	}
}

func (bot *CQBot) formatReply(ctx context.Context, id gjson.Result, depth int) string {
	if depth >= maxReplyDepth || !id.Exists() {
		return "[]"
	}
	quoted, err := bot.API.CallAPI(ctx, "get_msg", global.MSG{"message_id": messageID(id)})
	if err != nil {
		log.Debugf("获取引用消息 %v 失败: %v", id.String(), err)
		return "[]"
	}
	typ, content, err := bot.formatMessage(ctx, quoted.Get("message"), depth+1)
	if err != nil {
		return "[]"
	}
	return element{typ, content}.String()
}

// imageBytes 下载图片, 按配置将 webp 转为 png
func (bot *CQBot) imageBytes(data gjson.Result) ([]byte, string, error) {
	url := data.Get("url").String()
	if url == "" {
		url = data.Get("file").String()
	}
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		return nil, "", errors.New("image has no url: " + data.Raw)
	}
	b, err := bot.fetch(url)
	if err != nil {
		return nil, "", errors.Wrap(err, "download image error")
	}
	t, ok := mime.CheckImage(b)
	if !ok {
		log.Debugf("图片 %v 的类型无法识别: %v", url, t)
	}
	if t == mime.WebP && base.ConvertWebp {
		if b, err = mime.ToPNG(b); err != nil {
			return nil, t, err
		}
		t = "image/png"
	}
	return b, t, nil
}

func (bot *CQBot) imageURI(data gjson.Result) (string, error) {
	b, _, err := bot.imageBytes(data)
	if err != nil {
		return "", err
	}
	return "base64://" + base64.StdEncoding.EncodeToString(b), nil
}
