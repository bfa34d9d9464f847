package dbclient

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"hockeysdk-go/configs/config"
	"hockeysdk-go/internal/cstmerr"
	"hockeysdk-go/internal/logging"
	"hockeysdk-go/internal/shared"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
	"gorm.io/gorm/schema"
)

func pascalToCamelCase(s string) string {
	if len(s) == 0 {
		return ""
	}

	words := make([]string, 0)
	currentWord := strings.Builder{}
	for i, r := range s {
		if unicode.IsUpper(r) && currentWord.Len() > 0 {
			words = append(words, currentWord.String())
			currentWord.Reset()
		}
		currentWord.WriteRune(r)
		if i == len(s)-1 {
			words = append(words, currentWord.String())
		}
	}

	if len(words) == 0 {
		return ""
	}

	words[0] = strings.ToLower(words[0])
	return strings.Join(words, "")
}

// GORMAdapter implements the DBClient interface using the GORM library.
type GORMAdapter struct {
	db     *gorm.DB
	config *config.DatabaseConfig
}

type CustomNamingStrategy struct {
	schema.NamingStrategy
}

// ColumnName keeps column names in camelCase.
func (c CustomNamingStrategy) ColumnName(table, column string) string {
	return pascalToCamelCase(column)
}

// NewGORMAdapter creates a new GORMAdapter.
func NewGORMAdapter(cfg *config.DatabaseConfig) *GORMAdapter {
	return &GORMAdapter{
		config: cfg,
	}
}

// NewGORMAdapterWithDB wraps an already opened *gorm.DB, e.g. one using another dialector.
func NewGORMAdapterWithDB(db *gorm.DB) *GORMAdapter {
	return &GORMAdapter{db: db}
}

func (ga *GORMAdapter) dsn(withDB bool) string {
	dsn := fmt.Sprintf("host=%s user=%s password=%s port=%d sslmode=%s TimeZone=UTC",
		ga.config.Host, ga.config.User, ga.config.Password, ga.config.Port, ga.config.SSLMode)
	if withDB {
		dsn += " dbname=" + ga.config.DBName
	}
	return dsn
}

func (ga *GORMAdapter) Connect(ctx context.Context) error {
	if ga.db != nil {
		sqlDB, err := ga.db.DB()
		if err == nil {
			if err = sqlDB.PingContext(ctx); err == nil {
				return ga.db.WithContext(ctx).AutoMigrate(&shared.StoreEntry{})
			}
		}
		if ga.config == nil {
			return cstmerr.NewDBConnectionError("existing GORM connection is unusable", err)
		}
	}
	log := logging.Logger()

	// Best effort: the database may already exist or the role may lack CREATEDB.
	if database, err := gorm.Open(postgres.Open(ga.dsn(false)), &gorm.Config{Logger: logger.Discard}); err == nil {
		if res := database.Exec("CREATE DATABASE " + ga.config.DBName + ";"); res.Error != nil {
			log.Debugf("CREATE DATABASE %s skipped: %v", ga.config.DBName, res.Error)
		}
		if sqlDB, err := database.DB(); err == nil {
			sqlDB.Close()
		}
	}

	gormLogger := logger.New(log, logger.Config{
		SlowThreshold: time.Second, LogLevel: logger.Warn, IgnoreRecordNotFoundError: true, Colorful: false,
	})

	var err error
	ga.db, err = gorm.Open(postgres.Open(ga.dsn(true)),
		&gorm.Config{Logger: gormLogger,
			NowFunc: func() time.Time { return time.Now().UTC() },
			NamingStrategy: CustomNamingStrategy{
				schema.NamingStrategy{
					SingularTable: true,
				}}})
	if err != nil {
		return cstmerr.NewDBConnectionError("gorm.Open failed", err)
	}

	if err = ga.db.WithContext(ctx).AutoMigrate(&shared.StoreEntry{}); err != nil {
		return cstmerr.NewDBConnectionError("failed to migrate store table", err)
	}

	sqlDB, err := ga.db.DB()
	if err != nil {
		return cstmerr.NewDBConnectionError("failed to get underlying sql.DB from GORM", err)
	}
	if ga.config.ReadTimeout > 0 {
		sqlDB.SetConnMaxIdleTime(ga.config.ReadTimeout)
	}
	if err = sqlDB.PingContext(ctx); err != nil {
		return cstmerr.NewDBConnectionError("failed to ping database after GORM connect", err)
	}
	log.Infof("Connected to PostgreSQL store %s on %s:%d", ga.config.DBName, ga.config.Host, ga.config.Port)
	return nil
}

func (ga *GORMAdapter) Close() error {
	if ga.db != nil {
		sqlDB, _ := ga.db.DB()
		if sqlDB != nil {
			return sqlDB.Close()
		}
	}
	return nil
}

func (ga *GORMAdapter) Ping(ctx context.Context) error {
	if ga.db == nil {
		return cstmerr.NewDBError("database not connected (GORM)", nil)
	}
	sqlDB, _ := ga.db.DB()
	if sqlDB == nil {
		return cstmerr.NewDBError("underlying sql.DB not available for ping (GORM)", nil)
	}
	return sqlDB.PingContext(ctx)
}

func (ga *GORMAdapter) Save(ctx context.Context, model interface{}) error {
	if ga.db == nil {
		return cstmerr.NewDBError("database not connected (GORM)", nil)
	}
	return saveWith(ga.db.WithContext(ctx), model)
}

func (ga *GORMAdapter) Delete(ctx context.Context, model interface{}, conditions ...interface{}) error {
	if ga.db == nil {
		return cstmerr.NewDBError("database not connected (GORM)", nil)
	}
	return deleteWith(ga.db.WithContext(ctx), model, conditions...)
}

func (ga *GORMAdapter) First(ctx context.Context, model interface{}, conditions ...interface{}) error {
	if ga.db == nil {
		return cstmerr.NewDBError("database not connected (GORM)", nil)
	}
	return firstWith(ga.db.WithContext(ctx), model, conditions...)
}

func (ga *GORMAdapter) Find(ctx context.Context, collection interface{}, conditions ...interface{}) error {
	if ga.db == nil {
		return cstmerr.NewDBError("database not connected (GORM)", nil)
	}
	return findWith(ga.db.WithContext(ctx), collection, conditions...)
}

func (ga *GORMAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context, txClient DBClient) error) error {
	if ga.db == nil {
		return cstmerr.NewDBError("database not connected (GORM)", nil)
	}
	return ga.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		return fn(ctx, &gormTxAdapter{tx: tx})
	})
}

func saveWith(db *gorm.DB, model interface{}) error {
	if result := db.Save(model); result.Error != nil {
		return cstmerr.NewDBQueryError("GORM Save failed", result.Error)
	}
	return nil
}

func deleteWith(db *gorm.DB, model interface{}, conditions ...interface{}) error {
	var result *gorm.DB
	if len(conditions) > 0 {
		result = db.Delete(model, conditions...)
	} else {
		result = db.Delete(model)
	}
	if result.Error != nil {
		return cstmerr.NewDBQueryError("GORM Delete failed", result.Error)
	}
	return nil
}

func firstWith(db *gorm.DB, model interface{}, conditions ...interface{}) error {
	var result *gorm.DB
	if len(conditions) > 0 {
		result = db.First(model, conditions...)
	} else {
		result = db.First(model)
	}
	if result.Error != nil {
		if errors.Is(result.Error, gorm.ErrRecordNotFound) {
			return cstmerr.NewDBNotFoundError("GORM First failed, record not found", result.Error)
		}
		return cstmerr.NewDBQueryError("GORM First failed", result.Error)
	}
	return nil
}

func findWith(db *gorm.DB, collection interface{}, conditions ...interface{}) error {
	var result *gorm.DB
	if len(conditions) > 0 {
		result = db.Find(collection, conditions...)
	} else {
		result = db.Find(collection)
	}
	// An empty result set is not an error for Find.
	if result.Error != nil {
		return cstmerr.NewDBQueryError("GORM Find failed", result.Error)
	}
	return nil
}

type gormTxAdapter struct {
	tx *gorm.DB
}

func (gta *gormTxAdapter) Connect(ctx context.Context) error {
	return cstmerr.NewDBError("cannot connect in tx", nil)
}

func (gta *gormTxAdapter) Close() error {
	return cstmerr.NewDBError("cannot close in tx", nil)
}

func (gta *gormTxAdapter) Ping(ctx context.Context) error { return nil }

func (gta *gormTxAdapter) Save(ctx context.Context, model interface{}) error {
	return saveWith(gta.tx.WithContext(ctx), model)
}

func (gta *gormTxAdapter) Delete(ctx context.Context, model interface{}, conditions ...interface{}) error {
	return deleteWith(gta.tx.WithContext(ctx), model, conditions...)
}

func (gta *gormTxAdapter) First(ctx context.Context, model interface{}, conditions ...interface{}) error {
	return firstWith(gta.tx.WithContext(ctx), model, conditions...)
}

func (gta *gormTxAdapter) Find(ctx context.Context, collection interface{}, conditions ...interface{}) error {
	return findWith(gta.tx.WithContext(ctx), collection, conditions...)
}

func (gta *gormTxAdapter) RunInTransaction(ctx context.Context, fn func(ctx context.Context, txClient DBClient) error) error {
	return cstmerr.NewDBError("nested transactions not supported by the GORM tx adapter", nil)
}
