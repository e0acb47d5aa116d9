// Package sqlite3 精华消息的 sqlite 存储后端
package sqlite3

import (
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"unicode/utf8"

	fsql "github.com/FloatTech/sqlite"
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
	_ "modernc.org/sqlite" // sqlite driver

	"github.com/ycvk/go-essence/db"
)

// DefaultPath 默认数据库文件位置
const DefaultPath = "data/essence_message/essence_message.db"

type database struct {
	sync.RWMutex
	db   *sql.DB
	path string
}

type config struct {
	Disabled bool   `yaml:"disabled"`
	Path     string `yaml:"path"`
}

func init() {
	// modernc 以 sqlite 注册驱动, 导出快照同样使用该驱动
	fsql.DriverName = "sqlite"
	db.Register("sqlite3", func(node yaml.Node) db.Database {
		conf := new(config)
		_ = node.Decode(conf)
		if conf.Disabled {
			return nil
		}
		if conf.Path == "" {
			conf.Path = DefaultPath
		}
		return New(conf.Path)
	})
}

// New 创建指向 path 的数据库, 需调用 Open 后使用
func New(path string) db.Database {
	return &database{path: path}
}

func (s *database) Open() error {
	s.Lock()
	defer s.Unlock()
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return errors.Wrap(err, "create sqlite3 dir error")
	}
	conn, err := sql.Open("sqlite", s.path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return errors.Wrap(err, "open sqlite3 error")
	}
	for _, q := range schema {
		if _, err = conn.Exec(q); err != nil {
			_ = conn.Close()
			return errors.Wrap(err, "create sqlite3 table error")
		}
	}
	s.db = conn
	log.Debugf("sqlite3 数据库已打开: %v", s.path)
	return nil
}

func (s *database) Close() error {
	s.Lock()
	defer s.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

func (s *database) Insert(rec *db.EssenceRecord) error {
	return s.insert(Sqlite3EssenceTableName, rec)
}

func (s *database) InsertDeletion(rec *db.DeletionRecord) error {
	return s.insert(Sqlite3DeletionTableName, rec)
}

func (s *database) insert(table string, rec *db.EssenceRecord) error {
	s.RLock()
	defer s.RUnlock()
	r, err := s.db.Exec(
		`INSERT INTO `+table+` (time, group_id, sender_id, operator_id, message_type, message_data) VALUES (?, ?, ?, ?, ?, ?)`,
		rec.Time, rec.GroupID, rec.SenderID, rec.OperatorID, string(rec.Type), rec.Content,
	)
	if err != nil {
		return errors.Wrap(err, "insert "+table+" error")
	}
	rec.ID, _ = r.LastInsertId()
	return nil
}

// ExistsSimilar 前缀与时间窗口内是否已有相同记录, 检查与插入之间不保证原子性
func (s *database) ExistsSimilar(rec *db.EssenceRecord, tolerance int64, prefixLen int) (bool, error) {
	s.RLock()
	defer s.RUnlock()
	probe := db.TruncateRunes(rec.Content, prefixLen)
	var count int64
	err := s.db.QueryRow(
		`SELECT COUNT(*) FROM `+Sqlite3EssenceTableName+`
		WHERE group_id = ? AND sender_id = ? AND operator_id = ? AND message_type = ?
		AND substr(message_data, 1, ?) = ?
		AND time BETWEEN ? AND ?`,
		rec.GroupID, rec.SenderID, rec.OperatorID, string(rec.Type),
		utf8.RuneCountInString(probe), probe,
		rec.Time-tolerance, rec.Time+tolerance,
	).Scan(&count)
	if err != nil {
		return false, errors.Wrap(err, "query similar essence error")
	}
	return count > 0, nil
}

func (s *database) RandomForGroup(groupID int64) (*db.EssenceRecord, error) {
	s.RLock()
	defer s.RUnlock()
	row := s.db.QueryRow(
		`SELECT `+recordColumns+` FROM `+Sqlite3EssenceTableName+`
		WHERE group_id = ? AND message_type IN (?, ?)
		ORDER BY RANDOM() LIMIT 1`,
		groupID, string(db.TypeText), string(db.TypeImage),
	)
	return scanOne(row)
}

func (s *database) RankBy(field db.RankField, groupID int64, limit int) ([]db.RankEntry, error) {
	var column string
	switch field {
	case db.RankBySender:
		column = "sender_id"
	case db.RankByOperator:
		column = "operator_id"
	default:
		return nil, errors.New("unknown rank field: " + string(field))
	}
	s.RLock()
	defer s.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+column+`, COUNT(*) AS count FROM `+Sqlite3EssenceTableName+`
		WHERE group_id = ? GROUP BY `+column+` ORDER BY count DESC LIMIT ?`,
		groupID, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query rank error")
	}
	defer func() { _ = rows.Close() }()
	var ret []db.RankEntry
	for rows.Next() {
		var e db.RankEntry
		if err := rows.Scan(&e.ID, &e.Count); err != nil {
			return nil, errors.Wrap(err, "scan rank error")
		}
		ret = append(ret, e)
	}
	return ret, rows.Err()
}

// Search 关键词按字面量匹配, % 与 _ 不作为通配符, 区分大小写
func (s *database) Search(groupID int64, keyword string, maxLen, limit int) ([]*db.EssenceRecord, error) {
	s.RLock()
	defer s.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+recordColumns+` FROM `+Sqlite3EssenceTableName+`
		WHERE group_id = ? AND message_type = ?
		AND length(message_data) <= ?
		AND instr(message_data, ?) > 0
		ORDER BY RANDOM() LIMIT ?`,
		groupID, string(db.TypeText), maxLen, keyword, limit,
	)
	if err != nil {
		return nil, errors.Wrap(err, "search essence error")
	}
	return scanAll(rows)
}

func (s *database) SummaryByDate(groupID int64, start int64) ([]*db.EssenceRecord, error) {
	s.RLock()
	defer s.RUnlock()
	rows, err := s.db.Query(
		`SELECT `+recordColumns+` FROM `+Sqlite3EssenceTableName+`
		WHERE time BETWEEN ? AND ? AND group_id = ? ORDER BY time`,
		start, start+86400, groupID,
	)
	if err != nil {
		return nil, errors.Wrap(err, "query summary error")
	}
	return scanAll(rows)
}

func (s *database) DeleteGroup(groupID int64) (int64, error) {
	s.RLock()
	defer s.RUnlock()
	r, err := s.db.Exec(`DELETE FROM `+Sqlite3EssenceTableName+` WHERE group_id = ?`, groupID)
	if err != nil {
		return 0, errors.Wrap(err, "delete group essence error")
	}
	return r.RowsAffected()
}

func (s *database) LatestDeletion(groupID int64) (*db.DeletionRecord, error) {
	s.RLock()
	defer s.RUnlock()
	row := s.db.QueryRow(
		`SELECT `+recordColumns+` FROM `+Sqlite3DeletionTableName+`
		WHERE group_id = ? ORDER BY time DESC, rowid DESC LIMIT 1`,
		groupID,
	)
	return scanOne(row)
}

// FindNearest 在前缀匹配的记录中选取时间最接近 del 的一条, 相同距离取较早者
func (s *database) FindNearest(del *db.DeletionRecord, probe string) (*db.EssenceRecord, error) {
	s.RLock()
	defer s.RUnlock()
	row := s.db.QueryRow(
		`SELECT `+recordColumns+` FROM `+Sqlite3EssenceTableName+`
		WHERE group_id = ? AND sender_id = ? AND operator_id = ? AND message_type = ?
		AND substr(message_data, 1, ?) = ?
		ORDER BY ABS(time - ?) ASC, time ASC, rowid ASC LIMIT 1`,
		del.GroupID, del.SenderID, del.OperatorID, string(del.Type),
		utf8.RuneCountInString(probe), probe,
		del.Time,
	)
	return scanOne(row)
}

// Consume 同一事务内删除一条精华记录与对应的移除记录
func (s *database) Consume(essenceID, deletionID int64) error {
	s.RLock()
	defer s.RUnlock()
	tx, err := s.db.Begin()
	if err != nil {
		return errors.Wrap(err, "begin consume error")
	}
	defer func() { _ = tx.Rollback() }()
	if _, err = tx.Exec(`DELETE FROM `+Sqlite3EssenceTableName+` WHERE rowid = ?`, essenceID); err != nil {
		return errors.Wrap(err, "delete essence error")
	}
	if _, err = tx.Exec(`DELETE FROM `+Sqlite3DeletionTableName+` WHERE rowid = ?`, deletionID); err != nil {
		return errors.Wrap(err, "delete deletion record error")
	}
	return errors.Wrap(tx.Commit(), "commit consume error")
}

func (s *database) LatestNickname(groupID, userID int64) (*db.NicknameMapping, error) {
	s.RLock()
	defer s.RUnlock()
	m := &db.NicknameMapping{GroupID: groupID, UserID: userID}
	err := s.db.QueryRow(
		`SELECT nickname, time FROM `+Sqlite3NicknameTableName+`
		WHERE group_id = ? AND user_id = ? ORDER BY time DESC, rowid DESC LIMIT 1`,
		groupID, userID,
	).Scan(&m.Nickname, &m.ObservedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "query nickname error")
	}
	return m, nil
}

func (s *database) InsertNickname(m *db.NicknameMapping) error {
	s.RLock()
	defer s.RUnlock()
	_, err := s.db.Exec(
		`INSERT INTO `+Sqlite3NicknameTableName+` (nickname, group_id, user_id, time) VALUES (?, ?, ?, ?)`,
		m.Nickname, m.GroupID, m.UserID, m.ObservedAt,
	)
	return errors.Wrap(err, "insert nickname error")
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRecord(r scanner) (*db.EssenceRecord, error) {
	rec := new(db.EssenceRecord)
	var typ string
	if err := r.Scan(&rec.ID, &rec.Time, &rec.GroupID, &rec.SenderID, &rec.OperatorID, &typ, &rec.Content); err != nil {
		return nil, err
	}
	rec.Type = db.ContentType(strings.TrimSpace(typ))
	return rec, nil
}

func scanOne(row *sql.Row) (*db.EssenceRecord, error) {
	rec, err := scanRecord(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, errors.Wrap(err, "scan essence error")
	}
	return rec, nil
}

func scanAll(rows *sql.Rows) ([]*db.EssenceRecord, error) {
	defer func() { _ = rows.Close() }()
	var ret []*db.EssenceRecord
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, errors.Wrap(err, "scan essence error")
		}
		ret = append(ret, rec)
	}
	return ret, rows.Err()
}
