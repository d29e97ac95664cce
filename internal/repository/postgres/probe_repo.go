package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	domain "github.com/NordCoder/pingerus-adhoc/internal/domain/adhoc"
)

var _ domain.ProbeDirectory = (*ProbeRepoImpl)(nil)

type ProbeRepoImpl struct {
	db *DB
}

func NewProbeRepo(db *DB) *ProbeRepoImpl { return &ProbeRepoImpl{db: db} }

const qListProbes = `
SELECT id, name, public
FROM probes
WHERE enabled = TRUE
ORDER BY id;
`

func scanProbe(row pgx.Row, p *domain.Probe) error {
	return row.Scan(&p.ID, &p.Name, &p.Public)
}

func (r *ProbeRepoImpl) ListProbes(ctx context.Context) ([]domain.Probe, error) {
	ctx, cancel := r.db.withTimeout(ctx)
	defer cancel()

	rows, err := r.db.Pool.Query(ctx, qListProbes)
	if err != nil {
		return nil, fmt.Errorf("list probes: %w", err)
	}
	defer rows.Close()

	var out []domain.Probe
	for rows.Next() {
		var p domain.Probe
		if err := scanProbe(rows, &p); err != nil {
			return nil, fmt.Errorf("scan probe: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}
