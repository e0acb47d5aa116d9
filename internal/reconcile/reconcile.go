// Package reconcile 撤销最近一次移出精华
package reconcile

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ycvk/go-essence/db"
)

// Store 撤销所需的存储操作
type Store interface {
	LatestDeletion(groupID int64) (*db.DeletionRecord, error)
	FindNearest(del *db.DeletionRecord, probe string) (*db.EssenceRecord, error)
	Consume(essenceID, deletionID int64) error
}

// Reconciler 将最近的移除记录与存档中的精华消息配对并一并删除
type Reconciler struct {
	store Store
}

// New 创建 Reconciler
func New(store Store) *Reconciler {
	return &Reconciler{store: store}
}

// Reconcile 撤销群内最近一次移出精华, 返回被删除的存档
//
// 没有移除记录或找不到匹配的存档时返回 nil 且不修改任何数据
func (r *Reconciler) Reconcile(groupID int64) (*db.EssenceRecord, error) {
	del, err := r.store.LatestDeletion(groupID)
	if err != nil {
		return nil, errors.Wrap(err, "load latest deletion error")
	}
	if del == nil {
		return nil, nil
	}
	probe := db.TruncateRunes(del.Content, db.MatchPrefixLength)
	rec, err := r.store.FindNearest(del, probe)
	if err != nil {
		return nil, errors.Wrap(err, "find nearest essence error")
	}
	if rec == nil {
		log.Debugf("群 %v 的移除记录 %v 没有匹配的精华存档", groupID, del.ID)
		return nil, nil
	}
	if err = r.store.Consume(rec.ID, del.ID); err != nil {
		return nil, err
	}
	log.Infof("群 %v: 已撤销精华存档 %v (时间 %v)", groupID, rec.ID, rec.Time)
	return rec, nil
}
