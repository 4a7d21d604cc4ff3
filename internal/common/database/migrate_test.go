package database

import "testing"

func TestMigrateURL(t *testing.T) {
	t.Parallel()

	tests := []struct {
		in, want string
	}{
		{"postgres://u:p@localhost:5432/affiliate?sslmode=disable", "pgx5://u:p@localhost:5432/affiliate?sslmode=disable"},
		{"postgresql://localhost/affiliate", "pgx5://localhost/affiliate"},
		{"pgx5://localhost/affiliate", "pgx5://localhost/affiliate"},
	}

	for _, tt := range tests {
		if got := migrateURL(tt.in); got != tt.want {
			t.Fatalf("migrateURL(%q) = %q, want %q", tt.in, got, tt.want)
		}
	}
}

func TestEmbeddedMigrationsPresent(t *testing.T) {
	t.Parallel()

	entries, err := migrationsFS.ReadDir("migrations")
	if err != nil {
		t.Fatalf("read embedded migrations: %v", err)
	}
	if len(entries) == 0 || len(entries)%2 != 0 {
		t.Fatalf("expected paired up/down migrations, got %d files", len(entries))
	}
}
