package coolq

import (
	"context"

	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/db"
	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/internal/base"
	"github.com/ycvk/go-essence/internal/metrics"
)

// HandleEvent 处理 OneBot 上报的事件
func (bot *CQBot) HandleEvent(ctx context.Context, ev gjson.Result) {
	switch ev.Get("post_type").String() {
	case "notice":
		if ev.Get("notice_type").String() == "essence" {
			bot.groupEssenceMsg(ctx, ev)
		}
	case "message":
		if ev.Get("message_type").String() == "group" {
			bot.groupMessageEvent(ctx, ev)
		}
	case "meta_event":
		if ev.Get("meta_event_type").String() == "lifecycle" {
			log.Infof("OneBot 实现 %v 已连接 (%v)", ev.Get("self_id").Int(), ev.Get("sub_type").String())
		}
	}
}

func (bot *CQBot) groupEssenceMsg(ctx context.Context, ev gjson.Result) {
	rec := &db.EssenceRecord{
		Time:       ev.Get("time").Int(),
		GroupID:    ev.Get("group_id").Int(),
		SenderID:   ev.Get("sender_id").Int(),
		OperatorID: ev.Get("operator_id").Int(),
	}
	if rec.Time == 0 {
		rec.Time = bot.now().Unix()
	}
	msgID := ev.Get("message_id")
	subtype := ev.Get("sub_type").String()
	switch subtype {
	case "add":
		log.Infof("群 %v 内 %v 将 %v 的消息(%v)设为了精华消息.", rec.GroupID, rec.OperatorID, rec.SenderID, msgID.String())
	case "delete":
		log.Infof("群 %v 内 %v 将 %v 的消息(%v)移出了精华消息.", rec.GroupID, rec.OperatorID, rec.SenderID, msgID.String())
	default:
		return
	}

	msg, err := bot.API.CallAPI(ctx, "get_msg", global.MSG{"message_id": messageID(msgID)})
	if err != nil {
		log.Warnf("获取精华消息 %v 失败: %v", msgID.String(), err)
		return
	}
	rec.Type, rec.Content, err = bot.FormatMessage(ctx, msg.Get("message"))
	if err != nil {
		log.Warnf("精华消息 %v 格式化失败, 已跳过: %v", msgID.String(), err)
		return
	}
	kind := "essence"
	if subtype == "add" {
		err = bot.Store.Insert(rec)
	} else {
		kind = "deletion"
		err = bot.Store.InsertDeletion(rec)
	}
	if err != nil {
		log.Warnf("记录精华消息时出现错误: %v", err)
		return
	}
	metrics.Archived.WithLabelValues(kind).Inc()
}

func (bot *CQBot) groupMessageEvent(ctx context.Context, ev gjson.Result) {
	groupID := ev.Get("group_id").Int()
	if !base.GroupEnabled(groupID) {
		return
	}
	cmd, ok := parseCommand(ev)
	if !ok {
		return
	}
	bot.handleCommand(ctx, cmd)
}
