// repository.go (package voting): хранилище голосов в PostgreSQL.
//
// Транзакция начинается с SELECT ... FOR UPDATE по строке проекта:
// все мутации голосов одного проекта выстраиваются в очередь, а разные
// проекты не мешают друг другу. Счётчики ролей обновляются атомарным
// INSERT ... ON CONFLICT DO UPDATE.
package voting

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"serotonyl.ru/monad-curator/internal/auth"
	"serotonyl.ru/monad-curator/internal/common"
	"serotonyl.ru/monad-curator/internal/db/postgres"
	"serotonyl.ru/monad-curator/internal/features/alerts"
	"serotonyl.ru/monad-curator/internal/features/projects"
)

const voteColumns = `id, user_id, project_id, vote_type, role, comment, created_at, last_modified_at`

// Repository: Store на PostgreSQL.
type Repository struct {
	db *pgxpool.Pool
}

func NewRepository(db *pgxpool.Pool) *Repository {
	return &Repository{db: db}
}

func (r *Repository) InProjectTx(ctx context.Context, projectID string, fn func(tx Tx) error) error {
	err := pgx.BeginTxFunc(ctx, r.db, pgx.TxOptions{IsoLevel: pgx.ReadCommitted}, func(tx pgx.Tx) error {
		p, err := projects.Scan(tx.QueryRow(ctx,
			`SELECT `+projects.Columns+` FROM projects WHERE id = $1 FOR UPDATE`, projectID))
		if err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return fmt.Errorf("%w (id=%s)", common.ErrProjectNotFound, projectID)
			}
			return common.NewStorageError("lock project", err)
		}
		return fn(&pgTx{tx: tx, project: p})
	})
	if err != nil && common.Kind(err) == nil {
		// Ошибки begin/commit приходят без обёртки
		return common.NewStorageError("vote tx", err)
	}
	return err
}

func (r *Repository) GetVote(ctx context.Context, userID, projectID string) (*Vote, error) {
	v, err := scanVote(r.db.QueryRow(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE user_id = $1 AND project_id = $2`, userID, projectID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, common.ErrVoteNotFound
		}
		return nil, common.NewStorageError("get vote", err)
	}
	return v, nil
}

func (r *Repository) ListVotesByUser(ctx context.Context, userID string) ([]*Vote, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE user_id = $1 ORDER BY created_at DESC`, userID)
	if err != nil {
		return nil, common.NewStorageError("list user votes", err)
	}
	return collectVotes(rows)
}

func (r *Repository) ListVotesByProject(ctx context.Context, projectID string) ([]*Vote, error) {
	rows, err := r.db.Query(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE project_id = $1 ORDER BY created_at`, projectID)
	if err != nil {
		return nil, common.NewStorageError("list project votes", err)
	}
	votes, err := collectVotes(rows)
	if err != nil || len(votes) == 0 {
		return votes, err
	}

	byID := make(map[string]*Vote, len(votes))
	for _, v := range votes {
		byID[v.ID] = v
	}
	cvRows, err := r.db.Query(ctx, `
		SELECT cv.id, cv.vote_id, cv.criteria_id, cv.value, cv.comment
		FROM criteria_votes cv
		JOIN votes v ON v.id = cv.vote_id
		WHERE v.project_id = $1
		ORDER BY cv.vote_id, cv.criteria_id`, projectID)
	if err != nil {
		return nil, common.NewStorageError("list criteria votes", err)
	}
	defer cvRows.Close()
	for cvRows.Next() {
		var cv CriteriaVote
		var value string
		if err := cvRows.Scan(&cv.ID, &cv.VoteID, &cv.CriteriaID, &value, &cv.Comment); err != nil {
			return nil, common.NewStorageError("scan criteria vote", err)
		}
		cv.Value = CriteriaValue(value)
		if v, ok := byID[cv.VoteID]; ok {
			v.CriteriaVotes = append(v.CriteriaVotes, cv)
		}
	}
	if err := cvRows.Err(); err != nil {
		return nil, common.NewStorageError("list criteria votes", err)
	}
	return votes, nil
}

func (r *Repository) RoleTallies(ctx context.Context, projectID string) (Tally, error) {
	return queryTallies(ctx, r.db, `SELECT role, votes_for, votes_against FROM role_tallies WHERE project_id = $1`, projectID)
}

func (r *Repository) ProjectIDs(ctx context.Context) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT id FROM projects ORDER BY id`)
	if err != nil {
		return nil, common.NewStorageError("list project ids", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, common.NewStorageError("list project ids", err)
	}
	return ids, nil
}

// pgTx: транзакция одного проекта.
type pgTx struct {
	tx      pgx.Tx
	project *projects.Project
}

func (t *pgTx) Project() *projects.Project {
	cp := *t.project
	return &cp
}

func (t *pgTx) FindVote(ctx context.Context, userID string) (*Vote, error) {
	v, err := scanVote(t.tx.QueryRow(ctx,
		`SELECT `+voteColumns+` FROM votes WHERE user_id = $1 AND project_id = $2`, userID, t.project.ID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, nil
		}
		return nil, common.NewStorageError("find vote", err)
	}
	return v, nil
}

func (t *pgTx) InsertVote(ctx context.Context, v *Vote) error {
	_, err := t.tx.Exec(ctx, `
		INSERT INTO votes (id, user_id, project_id, vote_type, role, comment, created_at, last_modified_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		v.ID, v.UserID, v.ProjectID, string(v.VoteType), string(v.Role), v.Comment, v.CreatedAt, v.LastModifiedAt)
	if err != nil {
		if postgres.IsUniqueViolation(err) {
			return common.ErrAlreadyVoted
		}
		if postgres.IsForeignKeyViolation(err) {
			return common.ErrUserNotFound
		}
		return common.NewStorageError("insert vote", err)
	}
	return nil
}

func (t *pgTx) UpdateVote(ctx context.Context, v *Vote) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE votes SET vote_type = $2, role = $3, comment = $4, last_modified_at = $5
		WHERE id = $1`,
		v.ID, string(v.VoteType), string(v.Role), v.Comment, v.LastModifiedAt)
	if err != nil {
		return common.NewStorageError("update vote", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrVoteNotFound
	}
	return nil
}

func (t *pgTx) DeleteVote(ctx context.Context, voteID string) error {
	tag, err := t.tx.Exec(ctx, `DELETE FROM votes WHERE id = $1`, voteID)
	if err != nil {
		return common.NewStorageError("delete vote", err)
	}
	if tag.RowsAffected() == 0 {
		return common.ErrVoteNotFound
	}
	return nil
}

func (t *pgTx) InsertCriteriaVotes(ctx context.Context, voteID string, cvs []CriteriaVote) error {
	batch := &pgx.Batch{}
	for _, cv := range cvs {
		batch.Queue(`
			INSERT INTO criteria_votes (id, vote_id, criteria_id, value, comment)
			VALUES ($1, $2, $3, $4, $5)`,
			cv.ID, voteID, cv.CriteriaID, string(cv.Value), cv.Comment)
	}
	results := t.tx.SendBatch(ctx, batch)
	defer results.Close()
	for range cvs {
		if _, err := results.Exec(); err != nil {
			switch {
			case postgres.IsUniqueViolation(err):
				return common.ErrDuplicateCriteria
			case postgres.IsForeignKeyViolation(err):
				return common.ErrUnknownCriteria
			}
			return common.NewStorageError("insert criteria votes", err)
		}
	}
	return nil
}

func (t *pgTx) ApplyDeltas(ctx context.Context, deltas []Delta) error {
	for _, d := range deltas {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO role_tallies (project_id, role, votes_for, votes_against)
			VALUES ($1, $2, $3, $4)
			ON CONFLICT (project_id, role) DO UPDATE
			SET votes_for = role_tallies.votes_for + EXCLUDED.votes_for,
			    votes_against = role_tallies.votes_against + EXCLUDED.votes_against`,
			t.project.ID, string(d.Role), d.For, d.Against)
		if err != nil {
			return common.NewStorageError("apply tally", err)
		}
	}
	return nil
}

func (t *pgTx) RoleTallies(ctx context.Context) (Tally, error) {
	return queryTallies(ctx, t.tx, `SELECT role, votes_for, votes_against FROM role_tallies WHERE project_id = $1`, t.project.ID)
}

func (t *pgTx) CountCriterionYes(ctx context.Context, criterionName string) (int64, error) {
	var n int64
	err := t.tx.QueryRow(ctx, `
		SELECT COUNT(DISTINCT v.id)
		FROM votes v
		JOIN criteria_votes cv ON cv.vote_id = v.id
		JOIN criteria c ON c.id = cv.criteria_id
		WHERE v.project_id = $1 AND c.name = $2 AND cv.value = 'YES'`,
		t.project.ID, criterionName).Scan(&n)
	if err != nil {
		return 0, common.NewStorageError("count scam flags", err)
	}
	return n, nil
}

func (t *pgTx) RecountTallies(ctx context.Context) (Tally, error) {
	return queryTallies(ctx, t.tx, `
		SELECT role,
		       COUNT(*) FILTER (WHERE vote_type = 'FOR'),
		       COUNT(*) FILTER (WHERE vote_type = 'AGAINST')
		FROM votes WHERE project_id = $1
		GROUP BY role`, t.project.ID)
}

func (t *pgTx) ReplaceTallies(ctx context.Context, tally Tally) error {
	if _, err := t.tx.Exec(ctx, `DELETE FROM role_tallies WHERE project_id = $1`, t.project.ID); err != nil {
		return common.NewStorageError("replace tallies", err)
	}
	for role, c := range tally {
		_, err := t.tx.Exec(ctx, `
			INSERT INTO role_tallies (project_id, role, votes_for, votes_against)
			VALUES ($1, $2, $3, $4)`, t.project.ID, string(role), c.For, c.Against)
		if err != nil {
			return common.NewStorageError("replace tallies", err)
		}
	}
	return nil
}

func (t *pgTx) SaveProject(ctx context.Context, p *projects.Project) error {
	_, err := t.tx.Exec(ctx, `
		UPDATE projects
		SET status = $2, verified = $3, verified_at = $4,
		    votes_for = $5, votes_against = $6, updated_at = NOW()
		WHERE id = $1`,
		p.ID, string(p.Status), p.Verified, p.VerifiedAt, p.VotesFor, p.VotesAgainst)
	if err != nil {
		return common.NewStorageError("save project", err)
	}
	cp := *p
	t.project = &cp
	return nil
}

func (t *pgTx) InsertAlert(ctx context.Context, alertType projects.Status, message string) (*alerts.Alert, error) {
	return alerts.Insert(ctx, t.tx, t.project.ID, alertType, message)
}

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

func queryTallies(ctx context.Context, q querier, sql string, projectID string) (Tally, error) {
	rows, err := q.Query(ctx, sql, projectID)
	if err != nil {
		return nil, common.NewStorageError("query tallies", err)
	}
	defer rows.Close()

	out := make(Tally)
	for rows.Next() {
		var role string
		var c Counts
		if err := rows.Scan(&role, &c.For, &c.Against); err != nil {
			return nil, common.NewStorageError("scan tally", err)
		}
		out[auth.Role(role)] = c
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStorageError("query tallies", err)
	}
	return out, nil
}

func collectVotes(rows pgx.Rows) ([]*Vote, error) {
	defer rows.Close()
	var out []*Vote
	for rows.Next() {
		v, err := scanVote(rows)
		if err != nil {
			return nil, common.NewStorageError("scan vote", err)
		}
		out = append(out, v)
	}
	if err := rows.Err(); err != nil {
		return nil, common.NewStorageError("list votes", err)
	}
	return out, nil
}

func scanVote(row pgx.Row) (*Vote, error) {
	var v Vote
	var voteType, role string
	if err := row.Scan(&v.ID, &v.UserID, &v.ProjectID, &voteType, &role, &v.Comment, &v.CreatedAt, &v.LastModifiedAt); err != nil {
		return nil, err
	}
	v.VoteType = VoteType(voteType)
	v.Role = auth.Role(role)
	return &v, nil
}
