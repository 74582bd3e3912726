package repo

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"server/internal/domain"
)

// RenderRepositoryPG implements domain.RenderRepository over PostgreSQL.
// Idempotency relies on ON CONFLICT DO NOTHING against the unique indexes on
// renders(job_id) and render_variants(render_id, idx).
type RenderRepositoryPG struct {
	pool *pgxpool.Pool
}

// NewRenderRepository creates a render repository backed by PostgreSQL.
func NewRenderRepository(pool *pgxpool.Pool) *RenderRepositoryPG {
	return &RenderRepositoryPG{pool: pool}
}

const renderColumns = `id, job_id, owner_id, mode, room_type, style, cover_variant_index, created_at`

// GetOrCreate inserts the render unless one already exists for its job, then
// returns whichever row won.
func (r *RenderRepositoryPG) GetOrCreate(ctx context.Context, render *domain.Render) (*domain.Render, error) {
	query := `
INSERT INTO renders (id, job_id, owner_id, mode, room_type, style, cover_variant_index)
VALUES ($1, $2, $3, $4, $5, $6, $7)
ON CONFLICT (job_id) DO NOTHING;
`
	if _, err := r.pool.Exec(ctx, query,
		render.ID,
		render.JobID,
		render.OwnerID,
		render.Mode,
		render.RoomType,
		render.Style,
		render.CoverVariantIndex,
	); err != nil {
		return nil, err
	}
	return r.GetByJobID(ctx, render.JobID)
}

// GetByID fetches a render by its identifier.
func (r *RenderRepositoryPG) GetByID(ctx context.Context, renderID string) (*domain.Render, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+renderColumns+` FROM renders WHERE id = $1;`, renderID)
	return scanRender(row)
}

// GetByJobID fetches the render produced by a job.
func (r *RenderRepositoryPG) GetByJobID(ctx context.Context, jobID string) (*domain.Render, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+renderColumns+` FROM renders WHERE job_id = $1;`, jobID)
	return scanRender(row)
}

// CreateVariant inserts a variant; created is false when (render, idx)
// already exists.
func (r *RenderRepositoryPG) CreateVariant(ctx context.Context, variant *domain.RenderVariant) (bool, error) {
	query := `
INSERT INTO render_variants (id, render_id, owner_id, idx, image_path, thumb_path, created_at)
VALUES ($1, $2, $3, $4, $5, NULLIF($6, ''), $7)
ON CONFLICT (render_id, idx) DO NOTHING;
`
	tag, err := r.pool.Exec(ctx, query,
		variant.ID,
		variant.RenderID,
		variant.OwnerID,
		variant.Idx,
		variant.ImagePath,
		variant.ThumbPath,
		variant.CreatedAt,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() == 1, nil
}

// VariantExists reports whether a variant occupies (renderID, idx).
func (r *RenderRepositoryPG) VariantExists(ctx context.Context, renderID string, idx int) (bool, error) {
	var exists bool
	err := r.pool.QueryRow(ctx,
		`SELECT EXISTS (SELECT 1 FROM render_variants WHERE render_id = $1 AND idx = $2);`,
		renderID, idx).Scan(&exists)
	return exists, err
}

// ListVariants returns a render's variants ordered by index.
func (r *RenderRepositoryPG) ListVariants(ctx context.Context, renderID string) ([]domain.RenderVariant, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT id, render_id, owner_id, idx, image_path, COALESCE(thumb_path, ''), created_at
FROM render_variants WHERE render_id = $1 ORDER BY idx;`,
		renderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var variants []domain.RenderVariant
	for rows.Next() {
		var v domain.RenderVariant
		if err := rows.Scan(&v.ID, &v.RenderID, &v.OwnerID, &v.Idx, &v.ImagePath, &v.ThumbPath, &v.CreatedAt); err != nil {
			return nil, err
		}
		variants = append(variants, v)
	}
	return variants, rows.Err()
}

func scanRender(row pgx.Row) (*domain.Render, error) {
	var render domain.Render
	if err := row.Scan(
		&render.ID,
		&render.JobID,
		&render.OwnerID,
		&render.Mode,
		&render.RoomType,
		&render.Style,
		&render.CoverVariantIndex,
		&render.CreatedAt,
	); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.NewNotFound("render not found")
		}
		return nil, err
	}
	return &render, nil
}

var _ domain.RenderRepository = (*RenderRepositoryPG)(nil)
