// Package cache impl the cache for go-essence
package cache

import (
	"context"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/ycvk/go-essence/db"
)

// Unknown 无法获取昵称时的占位
const Unknown = "<unknown>"

// NameStore 昵称缓存的持久化
type NameStore interface {
	LatestNickname(groupID, userID int64) (*db.NicknameMapping, error)
	InsertNickname(m *db.NicknameMapping) error
}

// MemberLookup 查询群成员当前的显示名称
type MemberLookup interface {
	MemberName(ctx context.Context, groupID, userID int64) (string, error)
}

// Names 群成员昵称缓存
type Names struct {
	store   NameStore
	lookup  MemberLookup
	ttl     time.Duration
	timeout time.Duration
	now     func() time.Time
}

// NewNames 创建昵称缓存, ttl 内的记录直接使用, timeout 限制单次查询
func NewNames(store NameStore, lookup MemberLookup, ttl, timeout time.Duration) *Names {
	return &Names{store: store, lookup: lookup, ttl: ttl, timeout: timeout, now: time.Now}
}

// Get 获取群成员昵称, 查询失败时回退到已缓存的昵称
func (n *Names) Get(ctx context.Context, groupID, userID int64) string {
	now := n.now()
	cached, err := n.store.LatestNickname(groupID, userID)
	if err != nil {
		log.Warnf("读取群 %v 成员 %v 的昵称缓存失败: %v", groupID, userID, err)
	}
	if cached != nil && now.Sub(time.Unix(cached.ObservedAt, 0)) < n.ttl {
		return cached.Nickname
	}

	if n.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, n.timeout)
		defer cancel()
	}
	name, err := n.lookup.MemberName(ctx, groupID, userID)
	if err != nil || name == "" {
		log.Debugf("获取群 %v 成员 %v 信息失败: %v", groupID, userID, err)
		if cached != nil {
			return cached.Nickname
		}
		return Unknown
	}
	err = n.store.InsertNickname(&db.NicknameMapping{
		Nickname:   name,
		GroupID:    groupID,
		UserID:     userID,
		ObservedAt: now.Unix(),
	})
	if err != nil {
		log.Warnf("写入群 %v 成员 %v 的昵称缓存失败: %v", groupID, userID, err)
	}
	return name
}
