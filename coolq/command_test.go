package coolq

import (
	"context"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/internal/base"
)

func TestEssenceNoticeAndCancel(t *testing.T) {
	bot, api := newTestBot(t)
	ctx := context.Background()
	api.handle("get_msg", func(global.MSG) (string, error) {
		return `{"message":[{"type":"text","data":{"text":"exact phrase"}}]}`, nil
	})
	notice := func(sub string, ts int64) gjson.Result {
		return mustJSON(t, global.MSG{
			"post_type": "notice", "notice_type": "essence", "sub_type": sub, "time": ts,
			"group_id": 1, "sender_id": 9, "operator_id": 5, "message_id": 100,
		})
	}
	bot.HandleEvent(ctx, notice("add", 500))
	bot.HandleEvent(ctx, notice("delete", 510))

	rows, err := bot.Store.SummaryByDate(1, 0)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, "exact phrase", rows[0].Content)

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence cancel", ""))
	assert.Equal(t, "只有群主或管理员可以使用该指令", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "admin", "essence cancel", ""))
	assert.Equal(t, "已删除 用户9 的一条精华消息", api.lastSent())
	rows, err = bot.Store.SummaryByDate(1, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)

	bot.HandleEvent(ctx, groupMsg(t, 2, "owner", "essence cancel", ""))
	assert.Equal(t, "没有删除任何精华消息", api.lastSent())
}

func TestNoticeWithBrokenImageIsSkipped(t *testing.T) {
	bot, api := newTestBot(t)
	api.handle("get_msg", func(global.MSG) (string, error) {
		return `{"message":[{"type":"image","data":{"url":"http://img/broken"}}]}`, nil
	})
	bot.HandleEvent(context.Background(), mustJSON(t, global.MSG{
		"post_type": "notice", "notice_type": "essence", "sub_type": "add", "time": 100,
		"group_id": 1, "sender_id": 9, "operator_id": 5, "message_id": 1,
	}))
	rows, err := bot.Store.SummaryByDate(1, 0)
	require.NoError(t, err)
	assert.Empty(t, rows)
}

func TestRandom(t *testing.T) {
	bot, api := newTestBot(t)
	ctx := context.Background()

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence random", ""))
	assert.Contains(t, api.lastSent(), "目前数据库里没有精华消息")

	require.NoError(t, bot.Store.Insert(record(100, 9, "hello")))
	for i := 0; i < 4; i++ {
		bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence random", ""))
		assert.Equal(t, "用户9:hello", api.lastSent())
	}
	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence random", ""))
	assert.Equal(t, "过量抽精华有害身心健康", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 3, "member", "essence random", ""))
	assert.Equal(t, "用户9:hello", api.lastSent(), "limits are per session")
}

func TestSearchRankDate(t *testing.T) {
	bot, api := newTestBot(t)
	ctx := context.Background()
	day := time.Date(2024, 1, 2, 10, 0, 0, 0, time.Local).Unix()
	for _, r := range []struct {
		ts     int64
		sender int64
		s      string
	}{{day, 9, "hello"}, {day + 60, 9, "world"}, {day + 120, 8, "hello world"}} {
		require.NoError(t, bot.Store.Insert(record(r.ts, r.sender, r.s)))
	}

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence search hello", ""))
	lines := strings.Split(api.lastSent(), "\n")
	assert.ElementsMatch(t, []string{"用户9: hello", "用户8: hello world"}, lines)

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence search nothing", ""))
	assert.Equal(t, "没有找到", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence rank sender", ""))
	assert.Equal(t, "第1名: 用户9, 2条精华消息\n第2名: 用户8, 1条精华消息", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence rank operator", ""))
	assert.Equal(t, "第1名: 用户5, 3条精华消息", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence rank everyone", ""))
	assert.Equal(t, "用法: essence rank sender|operator", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence date 2024-01-02", ""))
	assert.Equal(t, "10:00 用户9: hello\n10:01 用户9: world\n10:02 用户8: hello world", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence date 2024-01-03", ""))
	assert.Equal(t, "这一天没有精华消息", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence whatever", ""))
	assert.Equal(t, helpText, api.lastSent())
}

const essenceList = `[
	{"sender_id":9,"operator_id":5,"operator_time":1000,"message_id":1,"content":[{"type":"text","data":{"text":"one"}}]},
	{"sender_id":9,"operator_id":5,"operator_time":2000,"message_id":2,"content":[{"type":"image","data":{"url":"http://img/ok"}}]},
	{"sender_id":9,"operator_id":5,"operator_time":3000,"message_id":3,"content":[{"type":"image","data":{"url":"http://img/broken"}}]}
]`

func TestFetchAllAndSaveAll(t *testing.T) {
	bot, api := newTestBot(t)
	ctx := context.Background()
	api.handle("get_essence_msg_list", func(global.MSG) (string, error) { return essenceList, nil })

	for i := 0; i < 2; i++ {
		bot.HandleEvent(ctx, groupMsg(t, 2, "admin", "essence fetchall", ""))
		assert.Equal(t, "成功保存 2/3 条精华消息", api.lastSent())
	}
	rows, err := bot.Store.SummaryByDate(1, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2, "a second fetch does not duplicate rows")

	bot.HandleEvent(ctx, groupMsg(t, 2, "admin", "essence saveall", ""))
	assert.Equal(t, "总共找到 3 条精华消息，成功保存 1 张图片 (新增 1 张, 11 B)", api.lastSent())
	bot.HandleEvent(ctx, groupMsg(t, 2, "admin", "essence saveall", ""))
	assert.Equal(t, "总共找到 3 条精华消息，成功保存 1 张图片 (新增 0 张, 0 B)", api.lastSent())
	n, err := bot.Images.Count(1)
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

func TestFetchEnabled(t *testing.T) {
	bot, api := newTestBot(t)
	ctx := context.Background()
	api.handle("get_group_list", func(global.MSG) (string, error) {
		return `[{"group_id":1},{"group_id":2}]`, nil
	})
	api.handle("get_essence_msg_list", func(p global.MSG) (string, error) {
		if p["group_id"] == int64(1) {
			return essenceList, nil
		}
		return "", errors.New("not a member")
	})

	bot.FetchEnabled(ctx)
	assert.Len(t, api.called("get_group_list"), 1)
	assert.Len(t, api.called("get_essence_msg_list"), 2, "a failing group does not stop the sync")
	rows, err := bot.Store.SummaryByDate(1, 0)
	require.NoError(t, err)
	assert.Len(t, rows, 2)

	all, groups := base.AllGroups, base.EnableGroups
	t.Cleanup(func() { base.AllGroups, base.EnableGroups = all, groups })
	base.AllGroups = false
	base.EnableGroups = map[int64]struct{}{2: {}}
	bot.FetchEnabled(ctx)
	assert.Len(t, api.called("get_group_list"), 1, "explicit groups skip the group list")
	calls := api.called("get_essence_msg_list")
	require.Len(t, calls, 3)
	assert.Equal(t, int64(2), calls[2]["group_id"])
}

func TestClean(t *testing.T) {
	bot, api := newTestBot(t)
	api.handle("get_essence_msg_list", func(global.MSG) (string, error) { return essenceList, nil })
	api.handle("delete_essence_msg", func(p global.MSG) (string, error) {
		if p["message_id"] == int64(2) {
			return "", errors.New("permission denied")
		}
		return "null", nil
	})
	bot.HandleEvent(context.Background(), groupMsg(t, 2, "owner", "essence clean", ""))
	assert.Equal(t, "成功删除 2/3 条精华消息", api.lastSent())
	assert.Len(t, api.called("delete_essence_msg"), 3)
}

func TestExport(t *testing.T) {
	bot, api := newTestBot(t)
	require.NoError(t, bot.Store.Insert(record(100, 9, "hello")))
	var uploaded string
	api.handle("upload_group_file", func(p global.MSG) (string, error) {
		uploaded = p["file"].(string)
		assert.Equal(t, "essence.db", p["name"])
		_, err := os.Stat(uploaded)
		return "null", err
	})
	bot.HandleEvent(context.Background(), groupMsg(t, 2, "admin", "essence export", ""))
	assert.Equal(t, "请检查群文件", api.lastSent())
	assert.Contains(t, uploaded, "group_1_")
}

func TestGoodAndBad(t *testing.T) {
	bot, api := newTestBot(t)
	ctx := context.Background()
	api.handle("set_essence_msg", func(p global.MSG) (string, error) {
		assert.Equal(t, int64(777), p["message_id"])
		return "null", nil
	})

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence good", ""))
	assert.Equal(t, "请回复一条消息使用该指令", api.lastSent())

	bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence good", "777"))
	assert.Equal(t, "好精 +1, 当前 1/3", api.lastSent())
	bot.HandleEvent(ctx, groupMsg(t, 3, "member", "essence bad", "777"))
	assert.Equal(t, "好精 -1, 当前 0/3", api.lastSent())
	bot.HandleEvent(ctx, groupMsg(t, 3, "member", "essence bad", "777"))
	assert.Equal(t, "好精 -1, 当前 0/3", api.lastSent(), "votes never go negative")

	for i := 1; i <= 2; i++ {
		bot.HandleEvent(ctx, groupMsg(t, 2, "member", "essence good", "777"))
	}
	assert.Empty(t, api.called("set_essence_msg"))
	bot.HandleEvent(ctx, groupMsg(t, 4, "member", "essence good", "777"))
	assert.Equal(t, "好精! 已将该消息设为精华", api.lastSent())
	assert.Len(t, api.called("set_essence_msg"), 1)

	bot.HandleEvent(ctx, groupMsg(t, 5, "member", "essence good", "777"))
	assert.Equal(t, "好精 +1, 当前 4/3", api.lastSent())
	assert.Len(t, api.called("set_essence_msg"), 1, "votes past the threshold do not set it again")
}
