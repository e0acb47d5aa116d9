package db

import (
	"github.com/pkg/errors"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"
)

// ErrUnknownBackend 未注册的数据库后端
var ErrUnknownBackend = errors.New("unknown database backend")

type (
	// Database 精华消息数据库操作接口
	Database interface {
		// Open 打开数据库并确保表结构存在
		Open() error
		Close() error

		Insert(rec *EssenceRecord) error
		InsertDeletion(rec *DeletionRecord) error
		ExistsSimilar(rec *EssenceRecord, tolerance int64, prefixLen int) (bool, error)
		RandomForGroup(groupID int64) (*EssenceRecord, error)
		RankBy(field RankField, groupID int64, limit int) ([]RankEntry, error)
		Search(groupID int64, keyword string, maxLen, limit int) ([]*EssenceRecord, error)
		SummaryByDate(groupID int64, start int64) ([]*EssenceRecord, error)
		Export(groupID int64) (string, error)
		DeleteGroup(groupID int64) (int64, error)

		LatestDeletion(groupID int64) (*DeletionRecord, error)
		FindNearest(del *DeletionRecord, probe string) (*EssenceRecord, error)
		Consume(essenceID, deletionID int64) error

		LatestNickname(groupID, userID int64) (*NicknameMapping, error)
		InsertNickname(m *NicknameMapping) error
	}
)

var (
	drivers = make(map[string]func(yaml.Node) Database)
	backend Database
)

// Register 添加数据库后端
func Register(name string, f func(yaml.Node) Database) {
	if _, ok := drivers[name]; ok {
		panic("database driver conflict: " + name)
	}
	drivers[name] = f
}

// Init 按配置初始化数据库后端, 仅启用第一个可用的后端
func Init(nodes map[string]yaml.Node) error {
	for name, node := range nodes {
		f, ok := drivers[name]
		if !ok {
			log.Warnf("未知的数据库后端: %v", name)
			continue
		}
		if d := f(node); d != nil {
			backend = d
			return nil
		}
	}
	for name, f := range drivers {
		if d := f(yaml.Node{}); d != nil {
			log.Infof("未配置数据库, 使用默认后端 %v", name)
			backend = d
			return nil
		}
	}
	return ErrUnknownBackend
}

// Open 打开已初始化的数据库后端
func Open() (Database, error) {
	if backend == nil {
		return nil, ErrUnknownBackend
	}
	if err := backend.Open(); err != nil {
		return nil, errors.Wrap(err, "open backend error")
	}
	return backend, nil
}
