package db

import (
	"context"
	"errors"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

type txRecord struct {
	ID   int
	Name string
}

func openTestConn(t *testing.T) *gorm.DB {
	t.Helper()
	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{
		SkipDefaultTransaction: true,
	})
	if err != nil {
		t.Fatalf("failed to open sqlite: %v", err)
	}
	if err := conn.AutoMigrate(&txRecord{}); err != nil {
		t.Fatalf("failed to migrate sqlite: %v", err)
	}
	return conn
}

func countRecords(t *testing.T, conn *gorm.DB) int64 {
	t.Helper()
	var count int64
	if err := conn.Model(&txRecord{}).Count(&count).Error; err != nil {
		t.Fatalf("count failed: %v", err)
	}
	return count
}

func TestWithTx_CommitsAndRollbacks(t *testing.T) {
	conn := openTestConn(t)
	client := &Client{conn: conn}
	ctx := context.Background()

	err := client.WithTx(ctx, func(tx *gorm.DB) error {
		return tx.Create(&txRecord{Name: "committed"}).Error
	})
	if err != nil {
		t.Fatalf("WithTx commit failed: %v", err)
	}
	if got := countRecords(t, conn); got != 1 {
		t.Fatalf("expected 1 record after commit, got %d", got)
	}

	err = client.WithTx(ctx, func(tx *gorm.DB) error {
		if err := tx.Create(&txRecord{Name: "rolled"}).Error; err != nil {
			return err
		}
		return errors.New("boom")
	})
	if err == nil {
		t.Fatal("expected WithTx to surface the callback error")
	}
	if got := countRecords(t, conn); got != 1 {
		t.Fatalf("expected rollback to leave 1 record, got %d", got)
	}
}

func TestPing(t *testing.T) {
	client := &Client{conn: openTestConn(t)}
	if err := client.Ping(context.Background()); err != nil {
		t.Fatalf("unexpected ping error: %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	if IsUniqueViolation(nil, "") {
		t.Fatal("nil error is not a violation")
	}

	pgErr := errors.New(`duplicate key value violates unique constraint "ux_groups_referral_code"`)
	if !IsUniqueViolation(pgErr, "ux_groups_referral_code") {
		t.Fatal("expected named constraint match")
	}
	if !IsUniqueViolation(pgErr, "") {
		t.Fatal("expected generic duplicate match")
	}
	if IsUniqueViolation(pgErr, "ux_participants_group_position") {
		t.Fatal("unexpected match for a different constraint")
	}

	// sqlite never reports constraint names, so any UNIQUE failure matches.
	sqliteErr := errors.New("UNIQUE constraint failed: groups.referral_code")
	if !IsUniqueViolation(sqliteErr, "") {
		t.Fatal("expected sqlite duplicate match")
	}
	if !IsUniqueViolation(sqliteErr, "ux_groups_referral_code") {
		t.Fatal("expected sqlite match regardless of constraint name")
	}
}
