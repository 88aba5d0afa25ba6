package adapters

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/ZanzyTHEbar/errbuilder-go"
	lru "github.com/hashicorp/golang-lru/v2"
	_ "github.com/jackc/pgx/v5/stdlib"

	"repobuild/internal/ports"
	"repobuild/internal/types"
)

const projectCacheSize = 1024

const postgresSchema = `
CREATE TABLE IF NOT EXISTS projects (
  id BIGSERIAL PRIMARY KEY,
  name TEXT NOT NULL UNIQUE
);

CREATE TABLE IF NOT EXISTS repositories (
  id BIGSERIAL PRIMARY KEY,
  project_id BIGINT NOT NULL REFERENCES projects (id),
  ref TEXT NOT NULL,
  hash TEXT NOT NULL DEFAULT '',
  distro TEXT NOT NULL,
  distro_version TEXT NOT NULL,
  path TEXT NOT NULL DEFAULT '',
  type TEXT NOT NULL DEFAULT '',
  state TEXT NOT NULL DEFAULT 'idle',
  rebuild_pending BOOLEAN NOT NULL DEFAULT FALSE,
  UNIQUE (project_id, ref, hash, distro, distro_version)
);
CREATE INDEX IF NOT EXISTS idx_repositories_state ON repositories (state);

CREATE TABLE IF NOT EXISTS binaries (
  id BIGSERIAL PRIMARY KEY,
  project_id BIGINT NOT NULL REFERENCES projects (id),
  name TEXT NOT NULL,
  arch TEXT NOT NULL DEFAULT '',
  distro TEXT NOT NULL,
  distro_version TEXT NOT NULL,
  ref TEXT NOT NULL,
  hash TEXT NOT NULL DEFAULT '',
  checksum TEXT NOT NULL DEFAULT '',
  path TEXT NOT NULL,
  size BIGINT NOT NULL DEFAULT 0,
  UNIQUE (project_id, distro, distro_version, ref, hash, arch, name)
);
CREATE INDEX IF NOT EXISTS idx_binaries_lookup ON binaries (project_id, distro, distro_version, ref);
`

const repositoryColumns = `r.id, p.name, r.ref, r.hash, r.distro, r.distro_version, r.path, r.type, r.state, r.rebuild_pending`

const binaryColumns = `b.id, p.name, b.name, b.arch, b.distro, b.distro_version, b.ref, b.hash, b.checksum, b.path, b.size`

type rowScanner interface {
	Scan(dest ...any) error
}

// PostgresStoreAdapter persists the data model in Postgres through the
// pgx database/sql driver. Repository updates lock the row with
// SELECT ... FOR UPDATE so concurrent transitions serialize.
type PostgresStoreAdapter struct {
	db       *sql.DB
	projects *lru.Cache[string, types.Project]
}

func NewPostgresStoreAdapter(ctx context.Context, dsn string) (*PostgresStoreAdapter, error) {
	db, err := sql.Open("pgx", strings.TrimSpace(dsn))
	if err != nil {
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("failed to open postgres connection").
			WithCause(err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeFailedPrecondition).
			WithMsg("postgres is unreachable").
			WithCause(err)
	}
	if _, err := db.ExecContext(ctx, postgresSchema); err != nil {
		_ = db.Close()
		return nil, errbuilder.New().
			WithCode(errbuilder.CodeInternal).
			WithMsg("failed to apply postgres schema").
			WithCause(err)
	}
	cache, err := lru.New[string, types.Project](projectCacheSize)
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	return &PostgresStoreAdapter{db: db, projects: cache}, nil
}

func (s *PostgresStoreAdapter) Close() error {
	return s.db.Close()
}

// GetOrCreateProject caches lookups; projects are never deleted so a
// cached id stays valid.
func (s *PostgresStoreAdapter) GetOrCreateProject(ctx context.Context, name string) (types.Project, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return types.Project{}, errbuilder.New().
			WithCode(errbuilder.CodeInvalidArgument).
			WithMsg("project name is empty")
	}
	if project, ok := s.projects.Get(name); ok {
		return project, nil
	}
	project, err := getOrCreateProject(ctx, s.db, name)
	if err != nil {
		return types.Project{}, err
	}
	s.projects.Add(name, project)
	return project, nil
}

func (s *PostgresStoreAdapter) ListProjects(ctx context.Context) ([]types.Project, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT id, name FROM projects ORDER BY name`)
	if err != nil {
		return nil, queryError("failed to list projects", err)
	}
	defer rows.Close()
	var out []types.Project
	for rows.Next() {
		var project types.Project
		if err := rows.Scan(&project.ID, &project.Name); err != nil {
			return nil, queryError("failed to scan project", err)
		}
		out = append(out, project)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("failed to list projects", err)
	}
	return out, nil
}

func (s *PostgresStoreAdapter) GetRepository(ctx context.Context, id int64) (types.Repository, bool, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+repositoryColumns+`
FROM repositories r JOIN projects p ON p.id = r.project_id
WHERE r.id = $1`, id)
	repo, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Repository{}, false, nil
	}
	if err != nil {
		return types.Repository{}, false, queryError("failed to load repository", err)
	}
	return repo, true, nil
}

func (s *PostgresStoreAdapter) FindRepositories(ctx context.Context, filter types.RepositoryFilter) ([]types.Repository, error) {
	var (
		clauses []string
		args    []any
	)
	if filter.Project != "" {
		args = append(args, filter.Project)
		clauses = append(clauses, fmt.Sprintf("p.name = $%d", len(args)))
	}
	if filter.State != "" {
		args = append(args, string(filter.State))
		clauses = append(clauses, fmt.Sprintf("r.state = $%d", len(args)))
	}
	if len(filter.Refs) > 0 {
		placeholders := make([]string, 0, len(filter.Refs))
		for _, ref := range filter.Refs {
			args = append(args, ref)
			placeholders = append(placeholders, fmt.Sprintf("$%d", len(args)))
		}
		clauses = append(clauses, "r.ref IN ("+strings.Join(placeholders, ", ")+")")
	}
	query := `SELECT ` + repositoryColumns + `
FROM repositories r JOIN projects p ON p.id = r.project_id`
	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\nORDER BY r.id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError("failed to query repositories", err)
	}
	defer rows.Close()
	var out []types.Repository
	for rows.Next() {
		repo, err := scanRepository(rows)
		if err != nil {
			return nil, queryError("failed to scan repository", err)
		}
		out = append(out, repo)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("failed to query repositories", err)
	}
	return out, nil
}

func (s *PostgresStoreAdapter) GetOrCreateRepository(ctx context.Context, key types.RepositoryKey, init func(*types.Repository)) (types.Repository, bool, error) {
	if err := validateRepositoryKey(key); err != nil {
		return types.Repository{}, false, err
	}
	project, err := s.GetOrCreateProject(ctx, key.Project)
	if err != nil {
		return types.Repository{}, false, err
	}
	template := types.Repository{State: types.RepoStateIdle}
	if init != nil {
		init(&template)
	}
	var id int64
	err = s.db.QueryRowContext(ctx, `
INSERT INTO repositories (project_id, ref, hash, distro, distro_version, path, type, state, rebuild_pending)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
ON CONFLICT (project_id, ref, hash, distro, distro_version) DO NOTHING
RETURNING id`,
		project.ID, key.Ref, key.Hash, key.Distro, key.DistroVersion,
		template.Path, string(template.Type), string(template.State), template.RebuildPending,
	).Scan(&id)
	created := true
	if errors.Is(err, sql.ErrNoRows) {
		created = false
		err = s.db.QueryRowContext(ctx, `
SELECT id FROM repositories
WHERE project_id = $1 AND ref = $2 AND hash = $3 AND distro = $4 AND distro_version = $5`,
			project.ID, key.Ref, key.Hash, key.Distro, key.DistroVersion,
		).Scan(&id)
	}
	if err != nil {
		return types.Repository{}, false, queryError("failed to get or create repository", err)
	}
	repo, ok, err := s.GetRepository(ctx, id)
	if err != nil {
		return types.Repository{}, false, err
	}
	if !ok {
		return types.Repository{}, false, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("repository %d not found", id))
	}
	return repo, created, nil
}

func (s *PostgresStoreAdapter) UpdateRepository(ctx context.Context, id int64, mutate func(*types.Repository) error) (types.Repository, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return types.Repository{}, queryError("failed to begin transaction", err)
	}
	defer func() { _ = tx.Rollback() }()

	row := tx.QueryRowContext(ctx, `SELECT `+repositoryColumns+`
FROM repositories r JOIN projects p ON p.id = r.project_id
WHERE r.id = $1
FOR UPDATE OF r`, id)
	current, err := scanRepository(row)
	if errors.Is(err, sql.ErrNoRows) {
		return types.Repository{}, errbuilder.New().
			WithCode(errbuilder.CodeNotFound).
			WithMsg(fmt.Sprintf("repository %d not found", id))
	}
	if err != nil {
		return types.Repository{}, queryError("failed to lock repository", err)
	}
	next := current
	if err := mutate(&next); err != nil {
		return current, err
	}
	_, err = tx.ExecContext(ctx, `
UPDATE repositories
SET path = $2, type = $3, state = $4, rebuild_pending = $5
WHERE id = $1`,
		id, next.Path, string(next.Type), string(next.State), next.RebuildPending)
	if err != nil {
		return types.Repository{}, queryError("failed to update repository", err)
	}
	if err := tx.Commit(); err != nil {
		return types.Repository{}, queryError("failed to commit repository update", err)
	}
	next.ID = current.ID
	next.Project, next.Ref, next.Hash = current.Project, current.Ref, current.Hash
	next.Distro, next.DistroVersion = current.Distro, current.DistroVersion
	return next, nil
}

func (s *PostgresStoreAdapter) UpsertBinary(ctx context.Context, binary types.Binary) (types.Binary, bool, error) {
	if err := validateBinary(binary); err != nil {
		return types.Binary{}, false, err
	}
	project, err := s.GetOrCreateProject(ctx, binary.Project)
	if err != nil {
		return types.Binary{}, false, err
	}
	var inserted bool
	err = s.db.QueryRowContext(ctx, `
INSERT INTO binaries (project_id, name, arch, distro, distro_version, ref, hash, checksum, path, size)
VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
ON CONFLICT (project_id, distro, distro_version, ref, hash, arch, name)
DO UPDATE SET checksum = EXCLUDED.checksum, path = EXCLUDED.path, size = EXCLUDED.size
RETURNING id, (xmax = 0)`,
		project.ID, binary.Name, binary.Arch, binary.Distro, binary.DistroVersion,
		binary.Ref, binary.Hash, binary.Checksum, binary.Path, binary.Size,
	).Scan(&binary.ID, &inserted)
	if err != nil {
		return types.Binary{}, false, queryError("failed to upsert binary", err)
	}
	return binary, inserted, nil
}

func (s *PostgresStoreAdapter) FindBinaries(ctx context.Context, filter types.BinaryFilter) ([]types.Binary, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(column string, value string) {
		if value == "" {
			return
		}
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	add("p.name", filter.Project)
	add("b.distro", filter.Distro)
	add("b.distro_version", filter.DistroVersion)
	add("b.ref", filter.Ref)
	add("b.hash", filter.Hash)
	query := `SELECT ` + binaryColumns + `
FROM binaries b JOIN projects p ON p.id = b.project_id`
	if len(clauses) > 0 {
		query += "\nWHERE " + strings.Join(clauses, " AND ")
	}
	query += "\nORDER BY b.id"
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, queryError("failed to query binaries", err)
	}
	defer rows.Close()
	var out []types.Binary
	for rows.Next() {
		var binary types.Binary
		if err := rows.Scan(
			&binary.ID,
			&binary.Project,
			&binary.Name,
			&binary.Arch,
			&binary.Distro,
			&binary.DistroVersion,
			&binary.Ref,
			&binary.Hash,
			&binary.Checksum,
			&binary.Path,
			&binary.Size,
		); err != nil {
			return nil, queryError("failed to scan binary", err)
		}
		out = append(out, binary)
	}
	if err := rows.Err(); err != nil {
		return nil, queryError("failed to query binaries", err)
	}
	return out, nil
}

func getOrCreateProject(ctx context.Context, db *sql.DB, name string) (types.Project, error) {
	project := types.Project{Name: name}
	err := db.QueryRowContext(ctx, `
INSERT INTO projects (name) VALUES ($1)
ON CONFLICT (name) DO UPDATE SET name = EXCLUDED.name
RETURNING id`, name).Scan(&project.ID)
	if err != nil {
		return types.Project{}, queryError("failed to get or create project", err)
	}
	return project, nil
}

func scanRepository(row rowScanner) (types.Repository, error) {
	var (
		repo     types.Repository
		repoType string
		state    string
	)
	err := row.Scan(
		&repo.ID,
		&repo.Project,
		&repo.Ref,
		&repo.Hash,
		&repo.Distro,
		&repo.DistroVersion,
		&repo.Path,
		&repoType,
		&state,
		&repo.RebuildPending,
	)
	if err != nil {
		return types.Repository{}, err
	}
	repo.Type = types.RepoType(repoType)
	repo.State = types.RepoState(state)
	return repo, nil
}

func queryError(msg string, err error) error {
	return errbuilder.New().
		WithCode(errbuilder.CodeInternal).
		WithMsg(msg).
		WithCause(err)
}

var _ ports.StorePort = (*PostgresStoreAdapter)(nil)
