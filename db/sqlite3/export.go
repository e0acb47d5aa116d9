package sqlite3

import (
	"fmt"
	"path/filepath"
	"time"

	sql "github.com/FloatTech/sqlite"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"

	"github.com/ycvk/go-essence/global"
)

// now 便于测试替换
var now = time.Now

// Export 将群 groupID 的精华消息导出为独立的数据库文件, 返回文件路径
func (s *database) Export(groupID int64) (string, error) {
	s.RLock()
	rows, err := s.db.Query(
		`SELECT `+recordColumns+` FROM `+Sqlite3EssenceTableName+` WHERE group_id = ? ORDER BY time`,
		groupID,
	)
	if err != nil {
		s.RUnlock()
		return "", errors.Wrap(err, "query export rows error")
	}
	recs, err := scanAll(rows)
	s.RUnlock()
	if err != nil {
		return "", err
	}

	p := exportPath(filepath.Dir(s.path), groupID, now().Unix())
	snap := &sql.Sqlite{DBPath: p}
	if err = snap.Open(time.Minute); err != nil {
		return "", errors.Wrap(err, "open export db error")
	}
	defer func() { _ = snap.Close() }()
	if _, err = snap.DB.Exec(schema[0]); err != nil {
		return "", errors.Wrap(err, "create export table error")
	}
	tx, err := snap.DB.Begin()
	if err != nil {
		return "", errors.Wrap(err, "begin export tx error")
	}
	stmt, err := tx.Prepare(`INSERT INTO ` + Sqlite3EssenceTableName +
		` (time, group_id, sender_id, operator_id, message_type, message_data) VALUES (?, ?, ?, ?, ?, ?)`)
	if err != nil {
		_ = tx.Rollback()
		return "", errors.Wrap(err, "prepare export insert error")
	}
	defer func() { _ = stmt.Close() }()
	for _, rec := range recs {
		if _, err = stmt.Exec(rec.Time, rec.GroupID, rec.SenderID, rec.OperatorID, string(rec.Type), rec.Content); err != nil {
			_ = tx.Rollback()
			return "", errors.Wrap(err, "insert export row error")
		}
	}
	if err = tx.Commit(); err != nil {
		return "", errors.Wrap(err, "commit export tx error")
	}
	log.Infof("已导出群 %v 的 %v 条精华消息至 %v", groupID, len(recs), p)
	return p, nil
}

func exportPath(dir string, groupID, unix int64) string {
	p := filepath.Join(dir, fmt.Sprintf("group_%d_%d.db", groupID, unix))
	for i := 1; global.PathExists(p); i++ {
		p = filepath.Join(dir, fmt.Sprintf("group_%d_%d_%d.db", groupID, unix, i))
	}
	return p
}
