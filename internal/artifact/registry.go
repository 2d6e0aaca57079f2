package artifact

import (
	"context"
	"crypto/rand"
	"database/sql"
	stderrors "errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/oklog/ulid/v2"

	"github.com/hpungsan/memomind/internal/db"
	"github.com/hpungsan/memomind/internal/errors"
	"github.com/hpungsan/memomind/internal/logger"
)

// Ref is a displayable reference to a PDF. Owned refs point at a local file
// registered in the store and must be released.
type Ref struct {
	ID       string `json:"id,omitempty"`
	URL      string `json:"url"`
	Path     string `json:"path,omitempty"`
	Filename string `json:"filename"`
	Owned    bool   `json:"owned"`
}

// Registry creates and releases owned refs. Every row it registers is
// stamped with this process's id and pid; Sweep touches only those rows.
type Registry struct {
	db      *sql.DB
	dir     string
	baseURL string
	log     logger.Logger

	process string
	pid     int
	alive   func(pid int) bool
}

// NewRegistry stores files under baseDir/artifacts. viewerURL is the local
// viewer origin used to build ref URLs (e.g. http://127.0.0.1:8765).
func NewRegistry(database *sql.DB, baseDir, viewerURL string, log logger.Logger) *Registry {
	if log == nil {
		log = logger.NewNop()
	}
	return &Registry{
		db:      database,
		dir:     filepath.Join(baseDir, db.ArtifactsDir),
		baseURL: strings.TrimRight(viewerURL, "/"),
		log:     log,
		process: newID(),
		pid:     os.Getpid(),
		alive:   processAlive,
	}
}

// Process returns the id stamped on artifacts this registry creates.
func (r *Registry) Process() string {
	return r.process
}

func newID() string {
	return ulid.MustNew(ulid.Timestamp(time.Now()), ulid.Monotonic(rand.Reader, 0)).String()
}

// URLFor returns the viewer URL of an artifact id.
func (r *Registry) URLFor(id string) string {
	return r.baseURL + "/artifacts/" + id
}

// Create writes data to a new file and registers it under owner.
func (r *Registry) Create(ctx context.Context, owner string, data []byte, filename string) (*Ref, error) {
	if len(data) == 0 {
		return nil, errors.NewUnexpectedFormat("empty PDF body")
	}
	if filename == "" {
		filename = DefaultFilename
	}

	id := newID()
	path := filepath.Join(r.dir, id+".pdf")
	if err := os.WriteFile(path, data, 0600); err != nil {
		return nil, errors.NewInternal(fmt.Errorf("write artifact: %w", err))
	}

	if err := db.InsertArtifact(ctx, r.db, &db.Artifact{
		ID:        id,
		Owner:     owner,
		Process:   r.process,
		PID:       r.pid,
		Path:      path,
		Filename:  filename,
		SizeBytes: int64(len(data)),
		CreatedAt: time.Now().Unix(),
	}); err != nil {
		_ = os.Remove(path)
		return nil, err
	}

	r.log.Debug("artifact", "created", map[string]any{"id": id, "owner": owner, "bytes": len(data)})
	return &Ref{ID: id, URL: r.URLFor(id), Path: path, Filename: filename, Owned: true}, nil
}

// Adopt returns a ref for a classified binary. Bytes become an owned local
// file; data URIs and remote URLs are referenced as-is.
func (r *Registry) Adopt(ctx context.Context, owner string, b *Binary) (*Ref, error) {
	if b == nil {
		return nil, errors.NewUnexpectedFormat("no PDF in response")
	}
	filename := b.Filename
	if filename == "" {
		filename = DefaultFilename
	}
	switch {
	case len(b.Bytes) > 0:
		return r.Create(ctx, owner, b.Bytes, filename)
	case b.DataURI != "":
		return &Ref{URL: b.DataURI, Filename: filename}, nil
	case b.URL != "":
		return &Ref{URL: b.URL, Filename: filename}, nil
	}
	return nil, errors.NewUnexpectedFormat("empty PDF body")
}

// Release deletes an owned ref's file and marks it released. Releasing nil,
// a non-owned ref or an already released ref is a no-op.
func (r *Registry) Release(ctx context.Context, ref *Ref) error {
	if ref == nil || !ref.Owned {
		return nil
	}
	released, err := db.MarkReleased(ctx, r.db, ref.ID)
	if err != nil {
		return err
	}
	if !released {
		return nil
	}
	if err := os.Remove(ref.Path); err != nil && !stderrors.Is(err, os.ErrNotExist) {
		r.log.Warn("artifact", "failed to remove released file", map[string]any{"id": ref.ID, "error": err.Error()})
	}
	r.log.Debug("artifact", "released", map[string]any{"id": ref.ID})
	return nil
}

// Open returns the registry row of an unreleased artifact.
func (r *Registry) Open(ctx context.Context, id string) (*db.Artifact, error) {
	return db.GetArtifact(ctx, r.db, id, false)
}

// Live lists unreleased artifacts of every process for owner ("" for all
// owners).
func (r *Registry) Live(ctx context.Context, owner string) ([]db.Artifact, error) {
	return db.ListUnreleased(ctx, r.db, db.ArtifactFilter{Owner: owner})
}

// Sweep releases the unreleased artifacts this process created. Run at
// session end; refs held by other processes are left alone.
func (r *Registry) Sweep(ctx context.Context) (int, error) {
	live, err := db.ListUnreleased(ctx, r.db, db.ArtifactFilter{Process: r.process})
	if err != nil {
		return 0, err
	}
	n, err := r.releaseAll(ctx, live)
	if n > 0 {
		r.log.Info("artifact", "swept unreleased artifacts", map[string]any{"count": n})
	}
	return n, err
}

// Reclaim releases artifacts whose registering process is no longer
// running. Run on startup to recover files left by a crashed process.
func (r *Registry) Reclaim(ctx context.Context) (int, error) {
	live, err := db.ListUnreleased(ctx, r.db, db.ArtifactFilter{})
	if err != nil {
		return 0, err
	}
	var orphans []db.Artifact
	for _, a := range live {
		if a.Process == r.process {
			continue
		}
		if a.PID > 0 && r.alive(a.PID) {
			continue
		}
		orphans = append(orphans, a)
	}
	n, err := r.releaseAll(ctx, orphans)
	if n > 0 {
		r.log.Info("artifact", "reclaimed orphaned artifacts", map[string]any{"count": n})
	}
	return n, err
}

func (r *Registry) releaseAll(ctx context.Context, rows []db.Artifact) (int, error) {
	n := 0
	for _, a := range rows {
		if err := r.Release(ctx, &Ref{ID: a.ID, Path: a.Path, Owned: true}); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
