package store

import (
	"context"
	"fmt"
	"time"

	"gorm.io/gorm"
)

const defaultGormTableName = "redilock_locks"

// gormRecord is the internal model used to persist lock records.
type gormRecord struct {
	Key       string `gorm:"primaryKey;column:lock_key"`
	Value     string `gorm:"column:holder"`
	ExpiresAt int64  `gorm:"column:expires_at"`
}

// Gorm implements Store on top of a relational database through GORM. The
// database has no native TTL, so expiry is an `expires_at` column and a row
// past its deadline counts as absent: create-if-absent is an insert followed,
// on conflict, by a compare-and-swap over the expired row, and
// compare-and-delete is a single guarded DELETE.
type Gorm struct {
	db        *gorm.DB
	tableName string
}

// GormOption configures a Gorm store.
type GormOption func(*Gorm)

// WithGormTableName sets the table used for lock records.
func WithGormTableName(name string) GormOption {
	return func(g *Gorm) {
		g.tableName = name
	}
}

// NewGorm returns a Gorm store using the provided DB connection, creating the
// lock table if it does not exist.
func NewGorm(db *gorm.DB, opts ...GormOption) (*Gorm, error) {
	g := &Gorm{db: db, tableName: defaultGormTableName}
	for _, opt := range opts {
		opt(g)
	}
	if !db.Migrator().HasTable(g.tableName) {
		if err := db.Table(g.tableName).AutoMigrate(&gormRecord{}); err != nil {
			return nil, fmt.Errorf("%w: migrate %s: %v", ErrUnavailable, g.tableName, err)
		}
	}
	return g, nil
}

// SetIfAbsent implements Store.SetIfAbsent.
func (g *Gorm) SetIfAbsent(ctx context.Context, key, value string, ttl time.Duration) (bool, error) {
	now := time.Now().UnixNano()
	rec := gormRecord{Key: key, Value: value, ExpiresAt: now + ttl.Nanoseconds()}
	res := g.db.WithContext(ctx).Table(g.tableName).Create(&rec)
	if res.Error == nil {
		return true, nil
	}
	// Most likely a primary key conflict: the row exists. Whether it is a
	// live lock or an expired leftover is settled by the guarded update.
	res = g.db.WithContext(ctx).Table(g.tableName).
		Where("lock_key = ? AND expires_at <= ?", key, now).
		Updates(map[string]any{"holder": value, "expires_at": rec.ExpiresAt})
	if res.Error != nil {
		return false, fmt.Errorf("%w: gorm upsert: %v", ErrUnavailable, res.Error)
	}
	return res.RowsAffected == 1, nil
}

// DeleteIfEquals implements Store.DeleteIfEquals.
func (g *Gorm) DeleteIfEquals(ctx context.Context, key, value string) (bool, error) {
	res := g.db.WithContext(ctx).Table(g.tableName).
		Where("lock_key = ? AND holder = ? AND expires_at > ?", key, value, time.Now().UnixNano()).
		Delete(&gormRecord{})
	if res.Error != nil {
		return false, fmt.Errorf("%w: gorm delete: %v", ErrUnavailable, res.Error)
	}
	return res.RowsAffected == 1, nil
}
