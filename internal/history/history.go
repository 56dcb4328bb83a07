package history

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/example/resy-sniper/internal/db"
	"github.com/example/resy-sniper/internal/sniper"
)

// Run is the record of one finished snipe. Records are written after the
// run is decided and never read back into an engine.
type Run struct {
	ID           uuid.UUID
	VenueID      string
	Day          time.Time
	PartySize    int
	ReleaseAt    time.Time
	Won          bool
	Confirmation string
	Bursts       int
	Reasons      []string
	Risks        []string
	StartedAt    time.Time
	FinishedAt   time.Time

	Attempts []Attempt
}

type Attempt struct {
	ID           string
	Burst        int
	Index        int
	State        string
	Reason       string
	Error        string
	Confirmation string
	StartedAt    time.Time
	FinishedAt   time.Time
}

// FromOutcome builds the record of a run of t released at release.
func FromOutcome(t sniper.Target, release time.Time, out sniper.Outcome, started, finished time.Time) Run {
	r := Run{
		ID:           uuid.New(),
		VenueID:      t.VenueID,
		Day:          t.Day,
		PartySize:    t.PartySize,
		ReleaseAt:    release,
		Won:          out.Won,
		Confirmation: out.Confirmation,
		Bursts:       out.Bursts,
		Reasons:      append([]string{}, out.Reasons...),
		Risks:        []string{},
		StartedAt:    started,
		FinishedAt:   finished,
	}
	for _, risk := range out.Risks {
		r.Risks = append(r.Risks, string(risk))
	}
	for _, a := range out.Attempts {
		rec := Attempt{
			ID:           a.ID,
			Burst:        a.Burst,
			Index:        a.Index,
			State:        string(a.State),
			Reason:       string(a.Reason),
			Confirmation: a.Confirmation,
			StartedAt:    a.StartedAt,
			FinishedAt:   a.FinishedAt,
		}
		if a.Err != nil {
			rec.Error = a.Err.Error()
		}
		r.Attempts = append(r.Attempts, rec)
	}
	return r
}

type Repo struct{ db *db.DB }

func NewRepo(d *db.DB) *Repo { return &Repo{db: d} }

// Record writes the run and its attempts in one transaction.
func (r *Repo) Record(ctx context.Context, run Run) error {
	return r.db.WithTx(ctx, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `
INSERT INTO snipe_runs(id,venue_id,day,party_size,release_at,won,confirmation,bursts,reasons,risks,started_at,finished_at)
VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)`,
			run.ID.String(), run.VenueID, run.Day, run.PartySize, run.ReleaseAt, run.Won, run.Confirmation, run.Bursts,
			nonNil(run.Reasons), nonNil(run.Risks), run.StartedAt, run.FinishedAt,
		); err != nil {
			return fmt.Errorf("insert run: %w", err)
		}

		batch := &pgx.Batch{}
		for _, a := range run.Attempts {
			batch.Queue(`
INSERT INTO snipe_attempts(run_id,attempt_id,burst,idx,state,reason,error,confirmation,started_at,finished_at)
VALUES ($1::uuid,$2,$3,$4,$5,$6,$7,$8,$9,$10)`,
				run.ID.String(), a.ID, a.Burst, a.Index, a.State, a.Reason, a.Error, a.Confirmation,
				nullTime(a.StartedAt), nullTime(a.FinishedAt))
		}
		if batch.Len() == 0 {
			return nil
		}
		if err := tx.SendBatch(ctx, batch).Close(); err != nil {
			return fmt.Errorf("insert attempts: %w", err)
		}
		return nil
	})
}

// ListRecent returns the latest runs without their attempts.
func (r *Repo) ListRecent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := r.db.Query(ctx, `
SELECT id::text,venue_id,day,party_size,release_at,won,confirmation,bursts,reasons,risks,started_at,finished_at
FROM snipe_runs
ORDER BY started_at DESC
LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Run
	for rows.Next() {
		var (
			run Run
			id  string
		)
		if err := rows.Scan(&id, &run.VenueID, &run.Day, &run.PartySize, &run.ReleaseAt, &run.Won, &run.Confirmation,
			&run.Bursts, &run.Reasons, &run.Risks, &run.StartedAt, &run.FinishedAt); err != nil {
			return nil, err
		}
		if run.ID, err = uuid.Parse(id); err != nil {
			return nil, err
		}
		out = append(out, run)
	}
	return out, rows.Err()
}

// Get returns one run with its attempts ordered by burst and index.
func (r *Repo) Get(ctx context.Context, id uuid.UUID) (Run, error) {
	var run Run
	err := r.db.QueryRow(ctx, `
SELECT venue_id,day,party_size,release_at,won,confirmation,bursts,reasons,risks,started_at,finished_at
FROM snipe_runs WHERE id=$1::uuid`, id.String()).
		Scan(&run.VenueID, &run.Day, &run.PartySize, &run.ReleaseAt, &run.Won, &run.Confirmation,
			&run.Bursts, &run.Reasons, &run.Risks, &run.StartedAt, &run.FinishedAt)
	if err != nil {
		return Run{}, db.WrapNotFound(err)
	}
	run.ID = id

	rows, err := r.db.Query(ctx, `
SELECT attempt_id,burst,idx,state,reason,error,confirmation,started_at,finished_at
FROM snipe_attempts WHERE run_id=$1::uuid
ORDER BY burst, idx`, id.String())
	if err != nil {
		return Run{}, err
	}
	defer rows.Close()
	for rows.Next() {
		var (
			a                 Attempt
			started, finished *time.Time
		)
		if err := rows.Scan(&a.ID, &a.Burst, &a.Index, &a.State, &a.Reason, &a.Error, &a.Confirmation, &started, &finished); err != nil {
			return Run{}, err
		}
		if started != nil {
			a.StartedAt = *started
		}
		if finished != nil {
			a.FinishedAt = *finished
		}
		run.Attempts = append(run.Attempts, a)
	}
	return run, rows.Err()
}

func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}
