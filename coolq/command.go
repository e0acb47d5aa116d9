package coolq

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"github.com/tidwall/gjson"

	"github.com/ycvk/go-essence/db"
	"github.com/ycvk/go-essence/global"
	"github.com/ycvk/go-essence/internal/base"
	"github.com/ycvk/go-essence/internal/metrics"
	"github.com/ycvk/go-essence/utils"
)

const commandPrefix = "essence"

const helpText = "使用说明:\n" +
	"essence help - 显示此帮助信息\n" +
	"essence random - 随机发送一条精华消息\n" +
	"essence search <关键词> - 搜索精华消息\n" +
	"essence rank sender - 显示发送者精华消息排行榜\n" +
	"essence rank operator - 显示管理员设精数量精华消息排行榜\n" +
	"essence date <YYYY-MM-DD> - 显示当天的精华消息\n" +
	"essence cancel - 在数据库中删除最近取消的一条精华消息\n" +
	"essence fetchall - 获取群内所有精华消息\n" +
	"essence export - 导出精华消息\n" +
	"essence saveall - 将群内所有精华消息图片存至本地\n" +
	"essence clean - 删除群里所有精华消息(数据库中保留)\n" +
	"essence good / bad - 回复一条消息为其投票, 票数足够后自动设为精华"

var (
	cqReply = regexp.MustCompile(`\[CQ:reply,id=(-?\d+)[^\]]*\]`)
	cqCode  = regexp.MustCompile(`\[CQ:[^\]]*\]`)
)

type command struct {
	groupID int64
	userID  int64
	role    string
	name    string
	args    []string
	reply   gjson.Result // 被回复消息的 id
}

func (c *command) session() string {
	return fmt.Sprintf("group_%d_%d", c.groupID, c.userID)
}

func (c *command) isAdmin() bool {
	return c.role == "owner" || c.role == "admin"
}

// parseCommand 解析 essence 指令, 支持数组与字符串两种消息格式
func parseCommand(ev gjson.Result) (*command, bool) {
	var text string
	var reply gjson.Result
	if msg := ev.Get("message"); msg.IsArray() {
		var sb strings.Builder
		for _, seg := range msg.Array() {
			switch seg.Get("type").String() {
			case "text":
				sb.WriteString(seg.Get("data.text").String())
			case "reply":
				reply = seg.Get("data.id")
			}
		}
		text = sb.String()
	} else {
		text = ev.Get("raw_message").String()
		if text == "" {
			text = msg.String()
		}
		if m := cqReply.FindStringSubmatch(text); m != nil {
			reply = gjson.Parse(m[1])
		}
		text = cqCode.ReplaceAllString(text, " ")
	}
	fields := strings.Fields(text)
	if len(fields) == 0 || fields[0] != commandPrefix {
		return nil, false
	}
	c := &command{
		groupID: ev.Get("group_id").Int(),
		userID:  ev.Get("user_id").Int(),
		role:    ev.Get("sender.role").String(),
		name:    "help",
		reply:   reply,
	}
	if len(fields) > 1 {
		c.name = fields[1]
		c.args = fields[2:]
	}
	return c, true
}

type handler struct {
	admin bool
	fn    func(bot *CQBot, ctx context.Context, c *command)
}

var commands = map[string]handler{
	"help":     {fn: (*CQBot).cmdHelp},
	"random":   {fn: (*CQBot).cmdRandom},
	"search":   {fn: (*CQBot).cmdSearch},
	"rank":     {fn: (*CQBot).cmdRank},
	"date":     {fn: (*CQBot).cmdDate},
	"good":     {fn: (*CQBot).cmdGood},
	"bad":      {fn: (*CQBot).cmdBad},
	"cancel":   {admin: true, fn: (*CQBot).cmdCancel},
	"fetchall": {admin: true, fn: (*CQBot).cmdFetchAll},
	"saveall":  {admin: true, fn: (*CQBot).cmdSaveAll},
	"export":   {admin: true, fn: (*CQBot).cmdExport},
	"clean":    {admin: true, fn: (*CQBot).cmdClean},
}

func (bot *CQBot) handleCommand(ctx context.Context, c *command) {
	h, ok := commands[c.name]
	if !ok {
		c.name = "help"
		h = commands["help"]
	}
	if h.admin && !c.isAdmin() {
		bot.sendText(ctx, c.groupID, "只有群主或管理员可以使用该指令")
		return
	}
	log.Debugf("群 %v 内 %v 使用了指令 essence %v %v", c.groupID, c.userID, c.name, c.args)
	metrics.Commands.WithLabelValues(c.name).Inc()
	h.fn(bot, ctx, c)
}

func (bot *CQBot) cmdHelp(ctx context.Context, c *command) {
	bot.sendText(ctx, c.groupID, helpText)
}

func (bot *CQBot) cmdRandom(ctx context.Context, c *command) {
	if bot.Limiter.Reached(c.session(), bot.now()) {
		bot.sendText(ctx, c.groupID, "过量抽精华有害身心健康")
		return
	}
	rec, err := bot.Store.RandomForGroup(c.groupID)
	if err != nil {
		log.Warnf("群 %v 抽取精华消息失败: %v", c.groupID, err)
		return
	}
	if rec == nil {
		bot.sendText(ctx, c.groupID, "目前数据库里没有精华消息，可以使用essence fetchall抓取群里的精华消息")
		return
	}
	switch rec.Type {
	case db.TypeImage:
		_ = bot.SendGroupMessage(ctx, c.groupID, imageSegment(rec.Content))
	default:
		bot.sendText(ctx, c.groupID, bot.name(ctx, c.groupID, rec.SenderID)+":"+rec.Content)
	}
}

func (bot *CQBot) cmdSearch(ctx context.Context, c *command) {
	keyword := strings.Join(c.args, " ")
	if keyword == "" {
		bot.sendText(ctx, c.groupID, "用法: essence search <关键词>")
		return
	}
	recs, err := bot.Store.Search(c.groupID, keyword, base.SearchMaxLength, db.SearchLimit)
	if err != nil {
		log.Warnf("群 %v 搜索精华消息失败: %v", c.groupID, err)
		return
	}
	if len(recs) == 0 {
		bot.sendText(ctx, c.groupID, "没有找到")
		return
	}
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.SenderID
	}
	names := bot.names(ctx, c.groupID, ids)
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = names[i] + ": " + r.Content
	}
	bot.sendText(ctx, c.groupID, strings.Join(lines, "\n"))
}

func (bot *CQBot) cmdRank(ctx context.Context, c *command) {
	var field db.RankField
	if len(c.args) > 0 {
		field = db.RankField(c.args[0])
	}
	if field != db.RankBySender && field != db.RankByOperator {
		bot.sendText(ctx, c.groupID, "用法: essence rank sender|operator")
		return
	}
	rank, err := bot.Store.RankBy(field, c.groupID, db.RankLimit)
	if err != nil {
		log.Warnf("群 %v 获取排行失败: %v", c.groupID, err)
		return
	}
	if len(rank) == 0 {
		bot.sendText(ctx, c.groupID, "目前数据库里没有精华消息")
		return
	}
	ids := make([]int64, len(rank))
	for i, e := range rank {
		ids[i] = e.ID
	}
	names := bot.names(ctx, c.groupID, ids)
	lines := make([]string, len(rank))
	for i, e := range rank {
		lines[i] = fmt.Sprintf("第%d名: %s, %d条精华消息", i+1, names[i], e.Count)
	}
	bot.sendText(ctx, c.groupID, strings.Join(lines, "\n"))
}

func (bot *CQBot) cmdDate(ctx context.Context, c *command) {
	if len(c.args) == 0 {
		bot.sendText(ctx, c.groupID, "用法: essence date <YYYY-MM-DD>")
		return
	}
	day, err := time.ParseInLocation("2006-01-02", c.args[0], bot.now().Location())
	if err != nil {
		bot.sendText(ctx, c.groupID, "用法: essence date <YYYY-MM-DD>")
		return
	}
	recs, err := bot.Store.SummaryByDate(c.groupID, day.Unix())
	if err != nil {
		log.Warnf("群 %v 获取 %v 的精华消息失败: %v", c.groupID, c.args[0], err)
		return
	}
	if len(recs) == 0 {
		bot.sendText(ctx, c.groupID, "这一天没有精华消息")
		return
	}
	ids := make([]int64, len(recs))
	for i, r := range recs {
		ids[i] = r.SenderID
	}
	names := bot.names(ctx, c.groupID, ids)
	lines := make([]string, len(recs))
	for i, r := range recs {
		lines[i] = time.Unix(r.Time, 0).In(day.Location()).Format("15:04") + " " + names[i] + ": " + summary(r)
	}
	bot.sendText(ctx, c.groupID, strings.Join(lines, "\n"))
}

func summary(r *db.EssenceRecord) string {
	switch r.Type {
	case db.TypeText:
		return utils.Abbrev(r.Content, 50)
	case db.TypeImage:
		return "[图片]"
	default:
		return "[" + string(r.Type) + "]"
	}
}

func (bot *CQBot) cmdCancel(ctx context.Context, c *command) {
	rec, err := bot.Reconciler.Reconcile(c.groupID)
	switch {
	case err != nil:
		metrics.Reconciled.WithLabelValues("error").Inc()
		log.Warnf("群 %v 撤销精华消息失败: %v", c.groupID, err)
		bot.sendText(ctx, c.groupID, "撤销失败, 请查看日志")
	case rec == nil:
		metrics.Reconciled.WithLabelValues("miss").Inc()
		bot.sendText(ctx, c.groupID, "没有删除任何精华消息")
	default:
		metrics.Reconciled.WithLabelValues("hit").Inc()
		bot.sendText(ctx, c.groupID, "已删除 "+bot.name(ctx, c.groupID, rec.SenderID)+" 的一条精华消息")
	}
}

func (bot *CQBot) cmdFetchAll(ctx context.Context, c *command) {
	saved, total, err := bot.FetchAll(ctx, c.groupID)
	if err != nil {
		log.Warnf("群 %v 获取精华消息列表失败: %v", c.groupID, err)
		bot.sendText(ctx, c.groupID, "获取精华消息列表失败")
		return
	}
	bot.sendText(ctx, c.groupID, fmt.Sprintf("成功保存 %d/%d 条精华消息", saved, total))
}

// FetchAll 将群内现有的精华消息存入数据库, 已存在的相似记录不会重复写入
//
// saved 为成功格式化的条数, total 为精华消息总数
func (bot *CQBot) FetchAll(ctx context.Context, groupID int64) (saved, total int, err error) {
	list, err := bot.essenceList(ctx, groupID)
	if err != nil {
		return 0, 0, err
	}
	inserted := 0
	for _, e := range list {
		typ, content, err := bot.FormatMessage(ctx, e.Get("content"))
		if err != nil {
			log.Debugf("群 %v 的精华消息 %v 格式化失败: %v", groupID, e.Get("message_id").String(), err)
			continue
		}
		saved++
		rec := &db.EssenceRecord{
			Time:       e.Get("operator_time").Int(),
			GroupID:    groupID,
			SenderID:   e.Get("sender_id").Int(),
			OperatorID: e.Get("operator_id").Int(),
			Type:       typ,
			Content:    content,
		}
		exists, err := bot.Store.ExistsSimilar(rec, db.SimilarTimeTolerance, db.MatchPrefixLength)
		if err != nil {
			log.Warnf("查询相似精华消息失败: %v", err)
			continue
		}
		if exists {
			continue
		}
		if err = bot.Store.Insert(rec); err != nil {
			log.Warnf("记录精华消息时出现错误: %v", err)
			continue
		}
		inserted++
		metrics.Archived.WithLabelValues("essence").Inc()
	}
	log.Infof("群 %v: 共 %d 条精华消息, 格式化 %d 条, 新增 %d 条", groupID, len(list), saved, inserted)
	return saved, len(list), nil
}

// FetchEnabled 对所有启用的群执行 FetchAll, 用于定时同步
func (bot *CQBot) FetchEnabled(ctx context.Context) {
	groups, err := bot.enabledGroups(ctx)
	if err != nil {
		log.Warnf("获取群列表失败: %v", err)
		return
	}
	for _, gid := range groups {
		if ctx.Err() != nil {
			return
		}
		if _, _, err := bot.FetchAll(ctx, gid); err != nil {
			log.Warnf("群 %v 同步精华消息失败: %v", gid, err)
		}
	}
}

func (bot *CQBot) enabledGroups(ctx context.Context) ([]int64, error) {
	if !base.AllGroups {
		groups := make([]int64, 0, len(base.EnableGroups))
		for gid := range base.EnableGroups {
			groups = append(groups, gid)
		}
		sort.Slice(groups, func(i, j int) bool { return groups[i] < groups[j] })
		return groups, nil
	}
	list, err := bot.API.CallAPI(ctx, "get_group_list", nil)
	if err != nil {
		return nil, errors.Wrap(err, "get group list error")
	}
	var groups []int64
	for _, g := range list.Array() {
		groups = append(groups, g.Get("group_id").Int())
	}
	return groups, nil
}

func (bot *CQBot) cmdSaveAll(ctx context.Context, c *command) {
	if bot.Images == nil {
		bot.sendText(ctx, c.groupID, "图片归档未启用")
		return
	}
	list, err := bot.essenceList(ctx, c.groupID)
	if err != nil {
		log.Warnf("群 %v 获取精华消息列表失败: %v", c.groupID, err)
		bot.sendText(ctx, c.groupID, "获取精华消息列表失败")
		return
	}
	saved, fresh, size := bot.saveImages(c.groupID, list)
	bot.sendText(ctx, c.groupID, fmt.Sprintf("总共找到 %d 条精华消息，成功保存 %d 张图片 (新增 %d 张, %s)",
		len(list), saved, fresh, humanize.Bytes(uint64(size))))
}

// saveImages 并发下载精华消息中的图片并归档
func (bot *CQBot) saveImages(groupID int64, list []gjson.Result) (saved, fresh int, size int64) {
	var (
		w  worker
		mu sync.Mutex
	)
	for _, e := range list {
		for _, seg := range e.Get("content").Array() {
			if seg.Get("type").String() != string(db.TypeImage) {
				continue
			}
			data := seg.Get("data")
			w.do(func() {
				b, t, err := bot.imageBytes(data)
				if err != nil {
					log.Warnf("群 %v 图片下载失败: %v", groupID, err)
					return
				}
				_, isNew, err := bot.Images.Save(groupID, t, b)
				if err != nil {
					log.Warnf("群 %v 图片归档失败: %v", groupID, err)
					return
				}
				mu.Lock()
				saved++
				if isNew {
					fresh++
					size += int64(len(b))
				}
				mu.Unlock()
			})
		}
	}
	w.wait()
	return
}

func (bot *CQBot) cmdExport(ctx context.Context, c *command) {
	path, err := bot.Store.Export(c.groupID)
	if err != nil {
		log.Warnf("群 %v 导出精华消息失败: %v", c.groupID, err)
		bot.sendText(ctx, c.groupID, "导出失败, 请查看日志")
		return
	}
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	if fi, err := os.Stat(path); err == nil {
		log.Infof("已导出群 %v 的精华消息至 %v (%v)", c.groupID, path, humanize.Bytes(uint64(fi.Size())))
	}
	_, err = bot.API.CallAPI(ctx, "upload_group_file", global.MSG{
		"group_id": c.groupID,
		"file":     path,
		"name":     "essence.db",
	})
	if err != nil {
		log.Warnf("群 %v 上传群文件失败: %v", c.groupID, err)
		bot.sendText(ctx, c.groupID, "上传群文件失败, 请查看日志")
		return
	}
	bot.sendText(ctx, c.groupID, "请检查群文件")
}

func (bot *CQBot) cmdClean(ctx context.Context, c *command) {
	list, err := bot.essenceList(ctx, c.groupID)
	if err != nil {
		log.Warnf("群 %v 获取精华消息列表失败: %v", c.groupID, err)
		bot.sendText(ctx, c.groupID, "获取精华消息列表失败")
		return
	}
	deleted := 0
	for _, e := range list {
		_, err := bot.API.CallAPI(ctx, "delete_essence_msg", global.MSG{"message_id": messageID(e.Get("message_id"))})
		if err != nil {
			log.Debugf("移出精华消息 %v 失败: %v", e.Get("message_id").String(), err)
			continue
		}
		deleted++
	}
	bot.sendText(ctx, c.groupID, fmt.Sprintf("成功删除 %d/%d 条精华消息", deleted, len(list)))
}

var errNoReply = errors.New("no replied message")

func (bot *CQBot) vote(c *command, up bool) (int, error) {
	if !c.reply.Exists() || c.reply.String() == "" {
		return 0, errNoReply
	}
	if up {
		return bot.Votes.Increment(c.reply.String())
	}
	return bot.Votes.Decrement(c.reply.String())
}

func (bot *CQBot) cmdGood(ctx context.Context, c *command) {
	n, err := bot.vote(c, true)
	if errors.Is(err, errNoReply) {
		bot.sendText(ctx, c.groupID, "请回复一条消息使用该指令")
		return
	}
	if err != nil {
		log.Warnf("保存投票失败: %v", err)
	}
	if !bot.Votes.IsQualified(c.reply.String(), base.GoodThreshold) || n > base.GoodThreshold {
		// 只在本次投票达到阈值时设精
		bot.sendText(ctx, c.groupID, fmt.Sprintf("好精 +1, 当前 %d/%d", n, base.GoodThreshold))
		return
	}
	_, err = bot.API.CallAPI(ctx, "set_essence_msg", global.MSG{"message_id": messageID(c.reply)})
	if err != nil {
		log.Warnf("设置精华消息 %v 失败: %v", c.reply.String(), err)
		bot.sendText(ctx, c.groupID, "设精失败, 机器人可能不是管理员")
		return
	}
	bot.sendText(ctx, c.groupID, "好精! 已将该消息设为精华")
}

func (bot *CQBot) cmdBad(ctx context.Context, c *command) {
	n, err := bot.vote(c, false)
	if errors.Is(err, errNoReply) {
		bot.sendText(ctx, c.groupID, "请回复一条消息使用该指令")
		return
	}
	if err != nil {
		log.Warnf("保存投票失败: %v", err)
	}
	bot.sendText(ctx, c.groupID, fmt.Sprintf("好精 -1, 当前 %d/%d", n, base.GoodThreshold))
}
