package postgres

import (
	"context"
	"os"
	"os/exec"
	"strings"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	pgmodule "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/quillgate/quillgate/pkg/session"
)

func init() {
	// Configure testcontainers to use podman when no Docker host is set.
	if os.Getenv("DOCKER_HOST") == "" {
		out, err := exec.Command("podman", "machine", "inspect", "--format", "{{.ConnectionInfo.PodmanSocket.Path}}").Output()
		if err == nil {
			sock := strings.TrimSpace(string(out))
			if sock != "" {
				os.Setenv("DOCKER_HOST", "unix://"+sock)
			}
		}
	}
	// Ryuk needs privileged mode with podman.
	if os.Getenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED") == "" {
		os.Setenv("TESTCONTAINERS_RYUK_CONTAINER_PRIVILEGED", "true")
	}
}

// setupTestDB starts a PostgreSQL container and returns a migrated Store.
// Tests are skipped when no container runtime is available.
func setupTestDB(t *testing.T) *Store {
	t.Helper()

	if os.Getenv("SKIP_INTEGRATION") == "true" {
		t.Skip("SKIP_INTEGRATION=true, skipping PostgreSQL integration tests")
	}

	ctx := context.Background()

	container, err := pgmodule.Run(ctx,
		"postgres:16-alpine",
		pgmodule.WithDatabase("quillgate_test"),
		pgmodule.WithUsername("test"),
		pgmodule.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second),
		),
	)
	if err != nil {
		t.Skipf("skipping: could not start PostgreSQL container: %v", err)
	}
	t.Cleanup(func() {
		container.Terminate(context.Background())
	})

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		t.Fatalf("getting connection string: %v", err)
	}

	store, err := New(ctx, Config{
		DSN:            connStr,
		MaxConns:       5,
		MinConns:       1,
		MigrateOnStart: true,
	})
	if err != nil {
		t.Fatalf("creating store: %v", err)
	}
	t.Cleanup(func() {
		store.Close()
	})

	return store
}

func TestPostgres_GetCreates(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	sess, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if sess.ID != "sess-1" || sess.Context != "" {
		t.Errorf("session = %+v", sess)
	}

	n, err := store.Count(ctx)
	if err != nil || n != 1 {
		t.Errorf("Count = %d, %v", n, err)
	}
}

func TestPostgres_AppendAndTrim(t *testing.T) {
	store := setupTestDB(t)
	store.maxChars = 10
	ctx := context.Background()

	if _, err := store.AppendContext(ctx, "sess-1", "0123456789"); err != nil {
		t.Fatalf("AppendContext: %v", err)
	}
	sess, err := store.AppendContext(ctx, "sess-1", "XYZ")
	if err != nil {
		t.Fatalf("AppendContext: %v", err)
	}
	if sess.Context != "3456789XYZ" {
		t.Errorf("Context = %q, want trimmed tail", sess.Context)
	}
}

func TestPostgres_Attach(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	err := store.Attach(ctx, "sess-1",
		session.Attachment{Name: "photo.png", Kind: "image", Ref: "blobs/1"},
	)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}
	err = store.Attach(ctx, "sess-1",
		session.Attachment{Name: "paper.pdf", Kind: "document", Ref: "blobs/2"},
	)
	if err != nil {
		t.Fatalf("Attach: %v", err)
	}

	sess, err := store.Get(ctx, "sess-1")
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if len(sess.Attachments) != 2 || sess.Attachments[0].Name != "photo.png" {
		t.Errorf("Attachments = %+v", sess.Attachments)
	}
}

func TestPostgres_Delete(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	store.Get(ctx, "sess-1")
	if err := store.Delete(ctx, "sess-1"); err != nil {
		t.Fatalf("Delete: %v", err)
	}
	if err := store.Delete(ctx, "sess-1"); err != session.ErrNotFound {
		t.Errorf("Delete absent = %v, want ErrNotFound", err)
	}
}

func TestPostgres_IdleCleanup(t *testing.T) {
	store := setupTestDB(t)
	ctx := context.Background()

	store.AppendContext(ctx, "old", "stale")
	// Backdate the session.
	if _, err := store.pool.Exec(ctx,
		"UPDATE sessions SET updated_at = now() - interval '2 days' WHERE id = 'old'"); err != nil {
		t.Fatal(err)
	}
	store.AppendContext(ctx, "fresh", "live")

	removed, err := store.IdleCleanup(ctx, 24*time.Hour)
	if err != nil {
		t.Fatalf("IdleCleanup: %v", err)
	}
	if removed != 1 {
		t.Errorf("removed = %d, want 1", removed)
	}

	n, _ := store.Count(ctx)
	if n != 1 {
		t.Errorf("Count = %d, want only the fresh session", n)
	}
}
