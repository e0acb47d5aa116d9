package coolq

import (
	"context"
	"strconv"
	"sync"
	"time"

	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/db"
	"github.com/ycvk/go-essence/db/leveldb"
	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/internal/base"
	"github.com/ycvk/go-essence/internal/cache"
	"github.com/ycvk/go-essence/internal/download"
	"github.com/ycvk/go-essence/internal/ratelimit"
	"github.com/ycvk/go-essence/internal/reconcile"
	"github.com/ycvk/go-essence/internal/vote"
)

// API OneBot API 调用
type API interface {
	CallAPI(ctx context.Context, action string, params global.MSG) (gjson.Result, error)
}

// CQBot CQBot结构体, 存储精华消息相关的组件
type CQBot struct {
	API        API
	Store      db.Database
	Reconciler *reconcile.Reconciler
	Limiter    *ratelimit.Limiter
	Votes      *vote.Counter
	Names      *cache.Names
	Images     *leveldb.Archive

	fetch func(url string) ([]byte, error)
	now   func() time.Time
}

// NewQQBot 初始化一个QQBot实例
func NewQQBot(api API, store db.Database, votes *vote.Counter, images *leveldb.Archive) *CQBot {
	bot := &CQBot{
		API:        api,
		Store:      store,
		Reconciler: reconcile.New(store),
		Limiter:    ratelimit.New(base.RandomLimit, base.RandomWindow),
		Votes:      votes,
		Images:     images,
		fetch: func(url string) ([]byte, error) {
			return download.Request{URL: url, Limit: base.ImageMaxSize, Timeout: base.APITimeout * 10}.Bytes()
		},
		now: time.Now,
	}
	bot.Names = cache.NewNames(store, bot, base.NicknameTTL, base.APITimeout)
	return bot
}

// MemberName 查询群成员名片, 名片为空时使用昵称
func (bot *CQBot) MemberName(ctx context.Context, groupID, userID int64) (string, error) {
	info, err := bot.API.CallAPI(ctx, "get_group_member_info", global.MSG{
		"group_id": groupID,
		"user_id":  userID,
		"no_cache": true,
	})
	if err != nil {
		return "", err
	}
	if card := info.Get("card").String(); card != "" {
		return card, nil
	}
	return info.Get("nickname").String(), nil
}

func (bot *CQBot) name(ctx context.Context, groupID, userID int64) string {
	return bot.Names.Get(ctx, groupID, userID)
}

type worker struct {
	wg sync.WaitGroup
}

func (w *worker) do(f func()) {
	w.wg.Add(1)
	go func() {
		defer w.wg.Done()
		f()
	}()
}

func (w *worker) wait() {
	w.wg.Wait()
}

// names 并发查询多个成员的名称
func (bot *CQBot) names(ctx context.Context, groupID int64, ids []int64) []string {
	var w worker
	ret := make([]string, len(ids))
	for i, id := range ids {
		p, id := &ret[i], id
		w.do(func() {
			*p = bot.name(ctx, groupID, id)
		})
	}
	w.wait()
	return ret
}

func textSegment(text string) global.MSG {
	return global.MSG{"type": "text", "data": global.MSG{"text": text}}
}

func imageSegment(file string) global.MSG {
	return global.MSG{"type": "image", "data": global.MSG{"file": file}}
}

// SendGroupMessage 发送群消息
func (bot *CQBot) SendGroupMessage(ctx context.Context, groupID int64, segments ...global.MSG) error {
	if len(segments) == 0 {
		log.Warnf("群 %v 消息发送失败: 消息为空.", groupID)
		return errors.New("empty message")
	}
	_, err := bot.API.CallAPI(ctx, "send_group_msg", global.MSG{
		"group_id": groupID,
		"message":  segments,
	})
	if err != nil {
		log.Warnf("群 %v 发送消息失败: %v", groupID, err)
		return errors.Wrap(err, "send group message error")
	}
	return nil
}

func (bot *CQBot) sendText(ctx context.Context, groupID int64, text string) {
	_ = bot.SendGroupMessage(ctx, groupID, textSegment(text))
}

// essenceList 获取群精华消息列表
func (bot *CQBot) essenceList(ctx context.Context, groupID int64) ([]gjson.Result, error) {
	list, err := bot.API.CallAPI(ctx, "get_essence_msg_list", global.MSG{"group_id": groupID})
	if err != nil {
		return nil, errors.Wrap(err, "get essence list error")
	}
	return list.Array(), nil
}

// messageID 统一消息 id 的类型, 数字形式的字符串按整数传递
func messageID(id gjson.Result) any {
	if id.Type == gjson.Number {
		return id.Int()
	}
	if n, err := strconv.ParseInt(id.String(), 10, 64); err == nil {
		return n
	}
	return id.String()
}
