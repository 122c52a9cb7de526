// Package db holds the MySQL sink for flattened model-commit rows.
// The pool opens lazily on first use so the crawler binary, which may
// run with the DB sink disabled, never touches MySQL at all.
package db

import (
	"fmt"
	"sync"
	"time"

	mysqlDriver "github.com/go-sql-driver/mysql"
	"github.com/modelmeta/hf-crawler/cfg"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Mysql struct {
	Config *cfg.Config

	once    sync.Once
	db      *gorm.DB
	openErr error
}

func NewMysql(config *cfg.Config) (*Mysql, error) {
	return &Mysql{Config: config}, nil
}

func (m *Mysql) dsn() string {
	c := m.Config.Mysql
	driverCfg := mysqlDriver.Config{
		User:                 c.Username,
		Passwd:               c.Password,
		DBName:               c.Database,
		Addr:                 c.Host + ":" + c.Port,
		Net:                  "tcp",
		ParseTime:            true,
		AllowNativePasswords: true,
	}
	return driverCfg.FormatDSN()
}

// Db returns the shared pool, opening it on first call. The batch
// upserts are chatty, so gorm's own query logging stays silent.
func (m *Mysql) Db() (*gorm.DB, error) {
	m.once.Do(func() {
		m.db, m.openErr = m.open()
	})
	if m.openErr != nil {
		return nil, fmt.Errorf("failed to open mysql pool: %w", m.openErr)
	}
	return m.db, nil
}

func (m *Mysql) open() (*gorm.DB, error) {
	db, err := gorm.Open(mysql.Open(m.dsn()), &gorm.Config{
		Logger: gormlogger.Default.LogMode(gormlogger.Silent),
	})
	if err != nil {
		return nil, err
	}

	pool, err := db.DB()
	if err != nil {
		return nil, err
	}
	c := m.Config.Mysql
	pool.SetMaxIdleConns(c.MaxIdleConnection)
	pool.SetMaxOpenConns(c.MaxOpenConnection)
	pool.SetConnMaxLifetime(time.Duration(c.MaxLifeTimeConnection) * time.Second)

	return db, nil
}

func (m *Mysql) Ping() error {
	db, err := m.Db()
	if err != nil {
		return err
	}
	pool, err := db.DB()
	if err != nil {
		return err
	}
	return pool.Ping()
}

func (m *Mysql) Close() error {
	if m.db == nil {
		return nil
	}
	pool, err := m.db.DB()
	if err != nil {
		return err
	}
	return pool.Close()
}

// Migrate creates or updates the tables for the given models.
func (m *Mysql) Migrate(models ...interface{}) error {
	db, err := m.Db()
	if err != nil {
		return err
	}
	return db.AutoMigrate(models...)
}
