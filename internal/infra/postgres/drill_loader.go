package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v4/pgxpool"

	"tryout-service/internal/domain"
)

// DrillLoader serves the drill read model with a single raw query, kept off
// the ORM write path.
type DrillLoader struct {
	pool *pgxpool.Pool
}

func NewDrillLoader(pool *pgxpool.Pool) *DrillLoader {
	return &DrillLoader{pool: pool}
}

func (l *DrillLoader) DrillSubtests(ctx context.Context, packageID int64) ([]*domain.Subtest, error) {
	rows, err := l.pool.Query(ctx, `
		SELECT st.id, st.package_id, st.type, st.duration
		FROM subtests st
		JOIN packages p ON p.id = st.package_id
		WHERE p.id = $1 AND p.type = 'drill'
		ORDER BY st.id`, packageID)
	if err != nil {
		return nil, fmt.Errorf("query drill subtests: %w", err)
	}
	defer rows.Close()

	var subtests []*domain.Subtest
	for rows.Next() {
		st := new(domain.Subtest)
		if err := rows.Scan(&st.ID, &st.PackageID, &st.Type, &st.Duration); err != nil {
			return nil, fmt.Errorf("scan drill subtest: %w", err)
		}
		subtests = append(subtests, st)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate drill subtests: %w", err)
	}
	return subtests, nil
}
