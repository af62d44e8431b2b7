// Package sqlrepo implements the analyses repository on database/sql. The
// same queries serve MySQL, Postgres and SQLite; only placeholders differ.
package sqlrepo

import (
	"context"
	"database/sql"
	"errors"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"

	domain "github.com/bryanwahyu/imageproof/internal/domain/analyses"
)

// Dialect selects the placeholder style.
type Dialect int

const (
	MySQL Dialect = iota
	Postgres
	SQLite
)

func (d Dialect) String() string {
	switch d {
	case Postgres:
		return "postgres"
	case SQLite:
		return "sqlite"
	default:
		return "mysql"
	}
}

// rebind rewrites ? placeholders to $1..$n for Postgres.
func (d Dialect) rebind(q string) string {
	if d != Postgres {
		return q
	}
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

const selectColumns = `
SELECT id, owner_id, image_url, storage_id, filename, verdict, confidence,
       artifact_score, pattern_consistency, noise_analysis,
       color_distribution, edge_coherence, metadata_score, created_at
FROM analyses`

type AnalysisRepository struct {
	db      *sql.DB
	dialect Dialect
}

func NewAnalysisRepository(db *sql.DB, d Dialect) *AnalysisRepository {
	return &AnalysisRepository{db: db, dialect: d}
}

// Insert stores a new record. created_at is kept as epoch milliseconds.
func (r *AnalysisRepository) Insert(ctx context.Context, a *domain.Analysis) error {
	const q = `
INSERT INTO analyses
(id, owner_id, image_url, storage_id, filename, verdict, confidence,
 artifact_score, pattern_consistency, noise_analysis,
 color_distribution, edge_coherence, metadata_score, created_at)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?);`

	created := a.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	d := detailArgs(a.Details)
	_, err := r.db.ExecContext(ctx, r.dialect.rebind(q),
		string(a.ID), a.OwnerID, a.ImageURL, a.StorageID, a.Filename, string(a.Verdict), a.Confidence,
		d[0], d[1], d[2], d[3], d[4], d[5],
		created.UnixMilli(),
	)
	return eris.Wrapf(err, "%s: insert analysis %s", r.dialect, a.ID)
}

// Get by ID
func (r *AnalysisRepository) Get(ctx context.Context, id domain.AnalysisID) (*domain.Analysis, error) {
	q := selectColumns + "\nWHERE id=? LIMIT 1;"
	a, err := scanAnalysis(r.db.QueryRowContext(ctx, r.dialect.rebind(q), string(id)))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(domain.ErrNotFound, "analysis %s", id)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "%s: get analysis %s", r.dialect, id)
	}
	return a, nil
}

// ListByOwner newest first; limit <= 0 returns everything. Rows sharing a
// millisecond are ordered by their v7 id.
func (r *AnalysisRepository) ListByOwner(ctx context.Context, owner string, limit int) ([]*domain.Analysis, error) {
	q := selectColumns + "\nWHERE owner_id=? ORDER BY created_at DESC, id DESC"
	args := []any{owner}
	if limit > 0 {
		q += " LIMIT ?"
		args = append(args, limit)
	}
	rows, err := r.db.QueryContext(ctx, r.dialect.rebind(q+";"), args...)
	if err != nil {
		return nil, eris.Wrapf(err, "%s: list analyses", r.dialect)
	}
	defer rows.Close()

	out := []*domain.Analysis{}
	for rows.Next() {
		a, err := scanAnalysis(rows)
		if err != nil {
			return nil, eris.Wrapf(err, "%s: scan analysis", r.dialect)
		}
		out = append(out, a)
	}
	return out, eris.Wrap(rows.Err(), "iterate analyses")
}

// StatsByOwner counts per verdict. Total only includes terminal rows.
func (r *AnalysisRepository) StatsByOwner(ctx context.Context, owner string) (domain.Stats, error) {
	const q = `
SELECT COALESCE(SUM(CASE WHEN verdict='AUTHENTIC' THEN 1 ELSE 0 END),0)    AS authentic,
       COALESCE(SUM(CASE WHEN verdict='AI_GENERATED' THEN 1 ELSE 0 END),0) AS ai_generated,
       COALESCE(SUM(CASE WHEN verdict='PENDING' THEN 1 ELSE 0 END),0)      AS pending
FROM analyses
WHERE owner_id=?;`

	var st domain.Stats
	err := r.db.QueryRowContext(ctx, r.dialect.rebind(q), owner).Scan(&st.Authentic, &st.AIGenerated, &st.Pending)
	if err != nil {
		return domain.Stats{}, eris.Wrapf(err, "%s: analysis stats", r.dialect)
	}
	st.Total = st.Authentic + st.AIGenerated
	return st, nil
}

// PatchResult only touches rows still PENDING, so a record transitions once.
func (r *AnalysisRepository) PatchResult(ctx context.Context, id domain.AnalysisID, res domain.Result) error {
	if !res.Verdict.Terminal() {
		return eris.Wrapf(domain.ErrInvalidInput, "verdict %q is not terminal", res.Verdict)
	}
	const q = `
UPDATE analyses
SET verdict = ?,
    confidence = ?,
    artifact_score = ?,
    pattern_consistency = ?,
    noise_analysis = ?,
    color_distribution = ?,
    edge_coherence = ?,
    metadata_score = ?
WHERE id = ? AND verdict = 'PENDING';`

	d := res.Details
	out, err := r.db.ExecContext(ctx, r.dialect.rebind(q),
		string(res.Verdict), res.Confidence,
		d.Artifact, d.PatternConsistency, d.Noise, d.ColorDistribution, d.EdgeCoherence, d.Metadata,
		string(id),
	)
	if err != nil {
		return eris.Wrapf(err, "%s: patch analysis %s", r.dialect, id)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n > 0 {
		return nil
	}
	// nothing updated: either gone or already terminal
	if _, err := r.Get(ctx, id); err != nil {
		return err
	}
	return eris.Wrapf(domain.ErrAlreadyScored, "analysis %s", id)
}

// Delete removes the row only; blob cleanup is the caller's job.
func (r *AnalysisRepository) Delete(ctx context.Context, id domain.AnalysisID) error {
	out, err := r.db.ExecContext(ctx, r.dialect.rebind(`DELETE FROM analyses WHERE id = ?;`), string(id))
	if err != nil {
		return eris.Wrapf(err, "%s: delete analysis %s", r.dialect, id)
	}
	n, err := out.RowsAffected()
	if err != nil {
		return eris.Wrap(err, "rows affected")
	}
	if n == 0 {
		return eris.Wrapf(domain.ErrNotFound, "analysis %s", id)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanAnalysis(row rowScanner) (*domain.Analysis, error) {
	var (
		a                          domain.Analysis
		id, verdict                string
		art, pat, noise, col, edge sql.NullFloat64
		meta                       sql.NullFloat64
		createdMS                  int64
	)
	if err := row.Scan(
		&id, &a.OwnerID, &a.ImageURL, &a.StorageID, &a.Filename, &verdict, &a.Confidence,
		&art, &pat, &noise, &col, &edge, &meta, &createdMS,
	); err != nil {
		return nil, err
	}
	a.ID = domain.AnalysisID(id)
	a.Verdict = domain.Verdict(verdict)
	a.CreatedAt = time.UnixMilli(createdMS).UTC()
	// sub-scores are only meaningful once the record is terminal
	if a.Verdict.Terminal() && art.Valid {
		a.Details = &domain.SubScores{
			Artifact:           art.Float64,
			PatternConsistency: pat.Float64,
			Noise:              noise.Float64,
			ColorDistribution:  col.Float64,
			EdgeCoherence:      edge.Float64,
			Metadata:           meta.Float64,
		}
	}
	return &a, nil
}

func detailArgs(s *domain.SubScores) [6]any {
	if s == nil {
		return [6]any{nil, nil, nil, nil, nil, nil}
	}
	return [6]any{s.Artifact, s.PatternConsistency, s.Noise, s.ColorDistribution, s.EdgeCoherence, s.Metadata}
}
