package database

import (
	"chatcord-backend/internal/models"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-sql-driver/mysql"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"
)

type Dialect int

const (
	DialectSqlite Dialect = iota
	DialectMysql
)

func setPragmaValues(db *sql.DB) error {
	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return err
	}

	// these next 2 extremely speed up performance of sqlite
	if _, err := db.Exec("PRAGMA journal_mode = WAL"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA synchronous = normal"); err != nil {
		return err
	}

	if _, err := db.Exec("PRAGMA busy_timeout = 5000"); err != nil {
		return err
	}

	return nil
}

func logPragmaValues(db *sql.DB, sugar *zap.SugaredLogger) error {
	var foreignKeys bool
	if err := db.QueryRow("PRAGMA foreign_keys").Scan(&foreignKeys); err != nil {
		return err
	}

	var journalMode string
	if err := db.QueryRow("PRAGMA journal_mode").Scan(&journalMode); err != nil {
		return err
	}

	var synchronous int
	if err := db.QueryRow("PRAGMA synchronous").Scan(&synchronous); err != nil {
		return err
	}

	synchronousNames := []string{"off", "normal", "full", "extra"}
	if synchronous < 0 || synchronous >= len(synchronousNames) {
		return fmt.Errorf("synchronous value %d is unsupported", synchronous)
	}

	sugar.Infow("sqlite pragmas",
		"foreign_keys", foreignKeys,
		"journal_mode", journalMode,
		"synchronous", synchronousNames[synchronous],
	)
	return nil
}

// OpenSqlite opens a sqlite database at path (":memory:" works too) and
// creates the tables.
func OpenSqlite(path string, sugar *zap.SugaredLogger) (*sql.DB, error) {
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}

	// there can be sqlite busy errors if this is not set to 1
	db.SetMaxOpenConns(1)

	if err := setPragmaValues(db); err != nil {
		db.Close()
		return nil, err
	}

	if err := logPragmaValues(db, sugar); err != nil {
		db.Close()
		return nil, err
	}

	if err := CreateTables(db, DialectSqlite); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func OpenMysql(cfg *models.ConfigFile) (*sql.DB, error) {
	mysqlCfg := mysql.NewConfig()
	mysqlCfg.User = cfg.DbUser
	mysqlCfg.Passwd = cfg.DbPassword
	mysqlCfg.Net = "tcp"
	mysqlCfg.Addr = fmt.Sprintf("%s:%s", cfg.DbAddress, cfg.DbPort)
	mysqlCfg.DBName = cfg.DbDatabase
	mysqlCfg.Params = map[string]string{"charset": "utf8mb4"}
	mysqlCfg.ParseTime = true
	// conditional updates check rows affected, count matched rows not changed ones
	mysqlCfg.ClientFoundRows = true

	db, err := sql.Open("mysql", mysqlCfg.FormatDSN())
	if err != nil {
		return nil, err
	}

	db.SetMaxOpenConns(10)

	if err := CreateTables(db, DialectMysql); err != nil {
		db.Close()
		return nil, err
	}
	return db, nil
}

func Setup(cfg *models.ConfigFile, sugar *zap.SugaredLogger) (*sql.DB, error) {
	if cfg.SelfContained {
		sugar.Infow("Connecting to database sqlite...", "path", cfg.SqlitePath)
		return OpenSqlite(cfg.SqlitePath, sugar)
	}

	sugar.Infow("Connecting to database mysql/mariadb...", "address", cfg.DbAddress, "database", cfg.DbDatabase)
	return OpenMysql(cfg)
}

// Messages keep member_id without a foreign key so history outlives the
// membership. The author is pinned through author_profile_id instead.
// Conversations are only removed together with their server, see
// store.DeleteServer.
var tables = []string{
	`CREATE TABLE IF NOT EXISTS profiles (
		id BIGINT PRIMARY KEY,
		external_auth_id VARCHAR(128) NOT NULL UNIQUE,
		username VARCHAR(32) NOT NULL,
		display_name VARCHAR(64) NOT NULL,
		image_url TEXT NOT NULL,
		status VARCHAR(32) NOT NULL,
		about TEXT NOT NULL,
		access_level VARCHAR(16) NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS servers (
		id BIGINT PRIMARY KEY,
		name VARCHAR(64) NOT NULL,
		image_url TEXT NOT NULL,
		invite_code VARCHAR(64) NOT NULL UNIQUE,
		owner_profile_id BIGINT NOT NULL,
		FOREIGN KEY (owner_profile_id) REFERENCES profiles(id)
	)`,
	`CREATE TABLE IF NOT EXISTS members (
		id BIGINT PRIMARY KEY,
		profile_id BIGINT NOT NULL,
		server_id BIGINT NOT NULL,
		role VARCHAR(16) NOT NULL,
		UNIQUE (profile_id, server_id),
		FOREIGN KEY (profile_id) REFERENCES profiles(id),
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS channels (
		id BIGINT PRIMARY KEY,
		server_id BIGINT NOT NULL,
		name VARCHAR(32) NOT NULL,
		type VARCHAR(8) NOT NULL,
		creator_profile_id BIGINT NOT NULL,
		FOREIGN KEY (server_id) REFERENCES servers(id) ON DELETE CASCADE
	)`,
	`CREATE TABLE IF NOT EXISTS messages (
		id BIGINT PRIMARY KEY,
		channel_id BIGINT NOT NULL,
		member_id BIGINT NOT NULL,
		author_profile_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		file_url TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		deleted BOOLEAN NOT NULL,
		FOREIGN KEY (channel_id) REFERENCES channels(id) ON DELETE CASCADE,
		FOREIGN KEY (author_profile_id) REFERENCES profiles(id)
	)`,
	`CREATE TABLE IF NOT EXISTS conversations (
		id BIGINT PRIMARY KEY,
		member_one_id BIGINT NOT NULL,
		member_two_id BIGINT NOT NULL,
		UNIQUE (member_one_id, member_two_id)
	)`,
	`CREATE TABLE IF NOT EXISTS direct_messages (
		id BIGINT PRIMARY KEY,
		conversation_id BIGINT NOT NULL,
		member_id BIGINT NOT NULL,
		author_profile_id BIGINT NOT NULL,
		content TEXT NOT NULL,
		file_url TEXT NOT NULL,
		created_at BIGINT NOT NULL,
		updated_at BIGINT NOT NULL,
		deleted BOOLEAN NOT NULL,
		FOREIGN KEY (conversation_id) REFERENCES conversations(id) ON DELETE CASCADE,
		FOREIGN KEY (author_profile_id) REFERENCES profiles(id)
	)`,
}

type index struct {
	name    string
	table   string
	columns string
}

// history pages are read newest first per scope
var indexes = []index{
	{"idx_messages_history", "messages", "channel_id, created_at, id"},
	{"idx_direct_messages_history", "direct_messages", "conversation_id, created_at, id"},
	{"idx_members_server", "members", "server_id"},
	{"idx_channels_server", "channels", "server_id"},
}

func CreateTables(db *sql.DB, dialect Dialect) error {
	for _, stmt := range tables {
		if _, err := db.Exec(stmt); err != nil {
			return err
		}
	}

	for _, idx := range indexes {
		if err := createIndex(db, dialect, idx); err != nil {
			return fmt.Errorf("creating index %s: %w", idx.name, err)
		}
	}
	return nil
}

func createIndex(db *sql.DB, dialect Dialect, idx index) error {
	if dialect == DialectSqlite {
		_, err := db.Exec(fmt.Sprintf("CREATE INDEX IF NOT EXISTS %s ON %s (%s)", idx.name, idx.table, idx.columns))
		return err
	}

	// mysql has no IF NOT EXISTS for indexes
	_, err := db.Exec(fmt.Sprintf("CREATE INDEX %s ON %s (%s)", idx.name, idx.table, idx.columns))
	var mysqlErr *mysql.MySQLError
	if errors.As(err, &mysqlErr) && mysqlErr.Number == 1061 {
		return nil
	}
	return err
}
