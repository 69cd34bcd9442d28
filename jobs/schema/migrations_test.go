package schema

import (
	"testing"

	"github.com/golang-migrate/migrate/v4/source/iofs"
)

func TestEmbeddedMigrationsAreSequential(t *testing.T) {
	source, err := iofs.New(migrationFiles, ".")
	if err != nil {
		t.Fatalf("failed to open embedded migrations: %v", err)
	}
	defer source.Close()

	first, err := source.First()
	if err != nil {
		t.Fatalf("failed to read first migration: %v", err)
	}
	if first != 1 {
		t.Errorf("expected first version 1, got %d", first)
	}

	next, err := source.Next(first)
	if err != nil {
		t.Fatalf("failed to read next migration: %v", err)
	}
	if next != 2 {
		t.Errorf("expected second version 2, got %d", next)
	}

	for _, version := range []uint{first, next} {
		up, _, err := source.ReadUp(version)
		if err != nil {
			t.Fatalf("missing up migration for version %d: %v", version, err)
		}
		up.Close()

		down, _, err := source.ReadDown(version)
		if err != nil {
			t.Fatalf("missing down migration for version %d: %v", version, err)
		}
		down.Close()
	}
}
