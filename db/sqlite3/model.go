package sqlite3

// 表名与旧版插件保持一致, 可直接沿用已有的数据库文件
const (
	Sqlite3EssenceTableName  = "essence_data"
	Sqlite3DeletionTableName = "del_essence_data"
	Sqlite3NicknameTableName = "user_mapping"
)

const recordColumns = "rowid, time, group_id, sender_id, operator_id, message_type, message_data"

var schema = []string{
	`CREATE TABLE IF NOT EXISTS ` + Sqlite3EssenceTableName + ` (
		time INTEGER,
		group_id INTEGER,
		sender_id INTEGER,
		operator_id INTEGER,
		message_type TEXT,
		message_data TEXT
	)`,
	`CREATE TABLE IF NOT EXISTS ` + Sqlite3NicknameTableName + ` (
		nickname TEXT,
		group_id INTEGER,
		user_id INTEGER,
		time INTEGER
	)`,
	`CREATE TABLE IF NOT EXISTS ` + Sqlite3DeletionTableName + ` (
		time INTEGER,
		group_id INTEGER,
		sender_id INTEGER,
		operator_id INTEGER,
		message_type TEXT,
		message_data TEXT
	)`,
	`CREATE INDEX IF NOT EXISTS idx_essence_group_time ON ` + Sqlite3EssenceTableName + ` (group_id, time)`,
	`CREATE INDEX IF NOT EXISTS idx_del_essence_group_time ON ` + Sqlite3DeletionTableName + ` (group_id, time)`,
	`CREATE INDEX IF NOT EXISTS idx_user_mapping_member ON ` + Sqlite3NicknameTableName + ` (group_id, user_id, time)`,
}
