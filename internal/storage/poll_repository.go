package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/bookloop/bookloop/internal/model"
	"github.com/bookloop/bookloop/libs/db"
)

type PollRepository struct {
	pool *db.Pool
}

func NewPollRepository(pool *db.Pool) *PollRepository {
	return &PollRepository{pool: pool}
}

func (r *PollRepository) Begin(ctx context.Context) (pgx.Tx, error) {
	return r.pool.Begin(ctx)
}

func (r *PollRepository) CreatePoll(ctx context.Context, p *model.Poll, options []model.PollOption) (string, []string, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return "", nil, err
	}
	defer func() { _ = tx.Rollback(ctx) }()

	id := uuid.NewString()
	_, err = tx.Exec(ctx, `
		INSERT INTO polls (id, owner_id, title, duration_minutes, status, deadline)
		VALUES ($1, $2, $3, $4, 'open', $5)
	`, id, p.OwnerID, p.Title, p.DurationMinutes, p.Deadline)
	if err != nil {
		return "", nil, err
	}

	optionIDs := make([]string, 0, len(options))
	for _, opt := range options {
		optID := uuid.NewString()
		if _, err := tx.Exec(ctx, `
			INSERT INTO poll_options (id, poll_id, start_time, end_time)
			VALUES ($1, $2, $3, $4)
		`, optID, id, opt.StartTime, opt.EndTime); err != nil {
			return "", nil, err
		}
		optionIDs = append(optionIDs, optID)
	}

	if err := tx.Commit(ctx); err != nil {
		return "", nil, err
	}
	return id, optionIDs, nil
}

func (r *PollRepository) GetPoll(ctx context.Context, pollID string) (model.Poll, error) {
	var p model.Poll
	var selected *string
	err := r.pool.QueryRow(ctx, `
		SELECT id::text, owner_id, title, duration_minutes, status, deadline,
			selected_option_id::text, created_at
		FROM polls
		WHERE id = $1
	`, pollID).Scan(&p.ID, &p.OwnerID, &p.Title, &p.DurationMinutes, &p.Status,
		&p.Deadline, &selected, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Poll{}, model.ErrNotFound
		}
		return model.Poll{}, err
	}
	if selected != nil {
		p.SelectedOptionID = *selected
	}
	return p, nil
}

// GetPollShared reads the poll inside the voting transaction under FOR
// SHARE: concurrent vote upserts proceed in parallel, but a concurrent close
// by the owner serializes against them.
func (r *PollRepository) GetPollShared(ctx context.Context, tx pgx.Tx, pollID string) (model.Poll, error) {
	var p model.Poll
	err := tx.QueryRow(ctx, `
		SELECT id::text, owner_id, title, duration_minutes, status, deadline, created_at
		FROM polls
		WHERE id = $1
		FOR SHARE
	`, pollID).Scan(&p.ID, &p.OwnerID, &p.Title, &p.DurationMinutes, &p.Status,
		&p.Deadline, &p.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return model.Poll{}, model.ErrNotFound
		}
		return model.Poll{}, err
	}
	return p, nil
}

// OptionIDs returns the ids of the poll's options, for ballot validation.
func (r *PollRepository) OptionIDs(ctx context.Context, tx pgx.Tx, pollID string) (map[string]struct{}, error) {
	rows, err := tx.Query(ctx, `
		SELECT id::text FROM poll_options WHERE poll_id = $1
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := map[string]struct{}{}
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out[id] = struct{}{}
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}
	return out, nil
}

// UpsertVote records one voter's ballot for one option. (option_id,
// voter_email) is the primary key: resubmission replaces the prior vote, it
// never accumulates.
func (r *PollRepository) UpsertVote(ctx context.Context, tx pgx.Tx, v *model.PollVote) error {
	_, err := tx.Exec(ctx, `
		INSERT INTO poll_votes (option_id, voter_email, voter_name, vote)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (option_id, voter_email) DO UPDATE
		SET voter_name = EXCLUDED.voter_name,
			vote = EXCLUDED.vote,
			updated_at = now()
	`, v.OptionID, v.VoterEmail, v.VoterName, string(v.Vote))
	return err
}

func (r *PollRepository) ClosePoll(ctx context.Context, ownerID, pollID string) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE polls
		SET status = 'closed'
		WHERE id = $1 AND owner_id = $2 AND status = 'open'
	`, pollID, ownerID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return model.ErrNotFound
	}
	return nil
}

// Tally aggregates the poll's ballots per option. Recomputed on every read;
// nothing is cached.
func (r *PollRepository) Tally(ctx context.Context, pollID string) ([]model.OptionTally, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT o.id::text, o.start_time, o.end_time,
			COUNT(*) FILTER (WHERE v.vote = 'yes'),
			COUNT(*) FILTER (WHERE v.vote = 'no'),
			COUNT(*) FILTER (WHERE v.vote = 'if_needed')
		FROM poll_options o
		LEFT JOIN poll_votes v ON v.option_id = o.id
		WHERE o.poll_id = $1
		GROUP BY o.id, o.start_time, o.end_time
		ORDER BY o.start_time
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var tallies []model.OptionTally
	index := map[string]int{}
	for rows.Next() {
		var t model.OptionTally
		if err := rows.Scan(&t.OptionID, &t.StartTime, &t.EndTime,
			&t.YesCount, &t.NoCount, &t.IfNeededCount); err != nil {
			return nil, err
		}
		index[t.OptionID] = len(tallies)
		tallies = append(tallies, t)
	}
	if rows.Err() != nil {
		return nil, rows.Err()
	}

	voteRows, err := r.pool.Query(ctx, `
		SELECT v.option_id::text, v.voter_name, v.voter_email, v.vote
		FROM poll_votes v
		JOIN poll_options o ON o.id = v.option_id
		WHERE o.poll_id = $1
		ORDER BY v.updated_at
	`, pollID)
	if err != nil {
		return nil, err
	}
	defer voteRows.Close()

	for voteRows.Next() {
		var optionID string
		var mark model.VoterMark
		if err := voteRows.Scan(&optionID, &mark.Name, &mark.Email, &mark.Vote); err != nil {
			return nil, err
		}
		if i, ok := index[optionID]; ok {
			tallies[i].Voters = append(tallies[i].Voters, mark)
		}
	}
	if voteRows.Err() != nil {
		return nil, voteRows.Err()
	}
	return tallies, nil
}

// UniqueVoters counts distinct voter emails across all of the poll's
// options, not per option.
func (r *PollRepository) UniqueVoters(ctx context.Context, pollID string) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(DISTINCT v.voter_email)
		FROM poll_votes v
		JOIN poll_options o ON o.id = v.option_id
		WHERE o.poll_id = $1
	`, pollID).Scan(&n)
	return n, err
}
