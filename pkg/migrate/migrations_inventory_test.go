package migrate_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/contemplaapp/contempla-backend/pkg/migrate"
)

func TestMigrationsDirValidates(t *testing.T) {
	if err := migrate.ValidateDir("migrations"); err != nil {
		t.Fatalf("migrations dir invalid: %v", err)
	}
}

func TestParticipantsMigrationContainsConstraints(t *testing.T) {
	content := readMigration(t, "*_create_participants.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS participants",
		"CONSTRAINT ux_participants_group_position UNIQUE (group_id, position)",
		"FOREIGN KEY (group_id) REFERENCES groups(id) ON DELETE CASCADE",
		"CHECK (position >= 1)",
		"DROP TABLE IF EXISTS participants",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestLedgerMigrationEnforcesBalanceFloor(t *testing.T) {
	content := readMigration(t, "*_create_ledger.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS credit_transactions",
		"CHECK (amount > 0)",
		"CREATE TABLE IF NOT EXISTS user_balances",
		"CHECK (balance >= 0)",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestOutboxMigrationHasDedupConstraint(t *testing.T) {
	content := readMigration(t, "*_create_outbox.sql")

	checks := []string{
		"CONSTRAINT ux_outbox_events_event_aggregate UNIQUE (event_type, aggregate_type, aggregate_id)",
		"WHERE published_at IS NULL",
		"CREATE TABLE IF NOT EXISTS outbox_dlq",
	}

	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestPaymentRefsMigrationHasUniqueExternalRef(t *testing.T) {
	content := readMigration(t, "*_create_processed_payment_refs.sql")

	if !strings.Contains(content, "CONSTRAINT ux_processed_payment_refs_external_ref UNIQUE (external_ref)") {
		t.Error("missing unique external_ref constraint")
	}
}

func readMigration(t *testing.T, pattern string) string {
	t.Helper()
	matches, err := filepath.Glob(filepath.Join("migrations", pattern))
	if err != nil {
		t.Fatalf("glob migrations: %v", err)
	}
	if len(matches) == 0 {
		t.Fatalf("no migration file matching %q", pattern)
	}
	data, err := os.ReadFile(matches[0])
	if err != nil {
		t.Fatalf("read migration file: %v", err)
	}
	return string(data)
}
