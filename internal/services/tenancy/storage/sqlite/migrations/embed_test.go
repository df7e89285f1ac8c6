package migrations

import (
	"io/fs"
	"testing"
)

func TestMigrationsEmbedded(t *testing.T) {
	for name, fsys := range map[string]fs.FS{"events": EventsFS, "projections": ProjectionsFS} {
		entries, err := fs.ReadDir(fsys, name)
		if err != nil {
			t.Fatalf("read %s migrations: %v", name, err)
		}
		if len(entries) == 0 {
			t.Fatalf("expected %s migrations", name)
		}
	}
}
