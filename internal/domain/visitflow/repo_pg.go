package visitflow

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/ehr/opdflow/internal/platform/db"
	"github.com/ehr/opdflow/pkg/flowmodel"
	"github.com/ehr/opdflow/pkg/pagination"
)

type repoPG struct {
	pool *pgxpool.Pool
}

func NewRepo(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

type querier interface {
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
}

func (r *repoPG) conn(ctx context.Context) querier {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	if c := db.ConnFromContext(ctx); c != nil {
		return c
	}
	return r.pool
}

const flowCols = `id, patient_id, patient_name, appointment_id, provider_id, facility_id,
	arrival_mode, stage, linked_records, care_plans, clinical_alerts, referrals, follow_ups,
	version, created_at, updated_at`

const eventCols = `id, flow_id, event, label, action, from_stage, to_stage, actor_id, payload, created_at`

func (r *repoPG) Create(ctx context.Context, f *VisitFlow, ev *FlowEvent) error {
	if f.ID == uuid.Nil {
		f.ID = uuid.New()
	}
	f.Version = 1
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			INSERT INTO visit_flow (
				id, patient_id, patient_name, appointment_id, provider_id, facility_id,
				arrival_mode, stage, linked_records, care_plans, clinical_alerts, referrals, follow_ups,
				version
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14)
			RETURNING created_at, updated_at`,
			f.ID, f.PatientID, f.PatientName, f.AppointmentID, f.ProviderID, f.FacilityID,
			f.ArrivalMode, string(f.Stage), f.LinkedRecords, nonNil(f.CarePlans), nonNil(f.ClinicalAlerts),
			nonNil(f.Referrals), nonNil(f.FollowUps), f.Version,
		).Scan(&f.CreatedAt, &f.UpdatedAt)
		if err != nil {
			return fmt.Errorf("insert visit flow: %w", err)
		}
		return r.insertEvent(ctx, f.ID, ev)
	})
}

func (r *repoPG) GetByID(ctx context.Context, id uuid.UUID) (*VisitFlow, error) {
	f, err := scanFlow(r.conn(ctx).QueryRow(ctx, `SELECT `+flowCols+` FROM visit_flow WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, ErrNotFound
	}
	return f, err
}

func (r *repoPG) Update(ctx context.Context, f *VisitFlow, expectedVersion int, ev *FlowEvent) error {
	return db.InTx(ctx, r.pool, func(ctx context.Context) error {
		err := r.conn(ctx).QueryRow(ctx, `
			UPDATE visit_flow SET
				patient_id=$3, patient_name=$4, appointment_id=$5, provider_id=$6, facility_id=$7,
				arrival_mode=$8, stage=$9, linked_records=$10, care_plans=$11, clinical_alerts=$12,
				referrals=$13, follow_ups=$14, version = version + 1, updated_at=NOW()
			WHERE id = $1 AND version = $2
			RETURNING version, updated_at`,
			f.ID, expectedVersion,
			f.PatientID, f.PatientName, f.AppointmentID, f.ProviderID, f.FacilityID,
			f.ArrivalMode, string(f.Stage), f.LinkedRecords, nonNil(f.CarePlans), nonNil(f.ClinicalAlerts),
			nonNil(f.Referrals), nonNil(f.FollowUps),
		).Scan(&f.Version, &f.UpdatedAt)
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrVersionConflict
		}
		if err != nil {
			return fmt.Errorf("update visit flow: %w", err)
		}
		return r.insertEvent(ctx, f.ID, ev)
	})
}

func (r *repoPG) insertEvent(ctx context.Context, flowID uuid.UUID, ev *FlowEvent) error {
	if ev == nil {
		return nil
	}
	ev.ID = uuid.New()
	ev.FlowID = flowID
	payload := ev.Payload
	if len(payload) == 0 {
		payload = []byte("{}")
	}
	err := r.conn(ctx).QueryRow(ctx, `
		INSERT INTO visit_flow_event (id, flow_id, event, label, action, from_stage, to_stage, actor_id, payload)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		RETURNING created_at`,
		ev.ID, ev.FlowID, ev.Event, ev.Label, string(ev.Action), string(ev.FromStage), string(ev.ToStage), ev.ActorID, string(payload),
	).Scan(&ev.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert visit flow event: %w", err)
	}
	return nil
}

func (r *repoPG) List(ctx context.Context, filter ListFilter) ([]*VisitFlow, int, error) {
	where, args := buildListWhere(filter)

	var total int
	if err := r.conn(ctx).QueryRow(ctx, `SELECT COUNT(*) FROM visit_flow`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	pg := pagination.Params{Limit: filter.Limit, Offset: filter.Offset}
	if pg.Limit <= 0 {
		pg.Limit = pagination.DefaultLimit
	}
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+flowCols+` FROM visit_flow`+where+` ORDER BY updated_at DESC `+pg.SQL(), args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var flows []*VisitFlow
	for rows.Next() {
		f, err := scanFlow(rows)
		if err != nil {
			return nil, 0, err
		}
		flows = append(flows, f)
	}
	return flows, total, rows.Err()
}

// buildListWhere returns the WHERE clause and its positional args.
func buildListWhere(filter ListFilter) (string, []interface{}) {
	var clauses []string
	var args []interface{}
	add := func(clause string, arg interface{}) {
		args = append(args, arg)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.Stage != "" {
		add("stage = $%d", string(filter.Stage))
	}
	if filter.PatientID != "" {
		add("patient_id = $%d", filter.PatientID)
	}
	if filter.ProviderID != "" {
		add("provider_id = $%d", filter.ProviderID)
	}
	if filter.AppointmentID != "" {
		add("appointment_id = $%d", filter.AppointmentID)
	}
	if q := strings.TrimSpace(filter.Query); q != "" {
		args = append(args, "%"+q+"%")
		n := len(args)
		clauses = append(clauses, fmt.Sprintf("(patient_name ILIKE $%d OR patient_id ILIKE $%d OR id::text ILIKE $%d)", n, n, n))
	}
	if len(clauses) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args
}

func (r *repoPG) Events(ctx context.Context, flowID uuid.UUID) ([]*FlowEvent, error) {
	rows, err := r.conn(ctx).Query(ctx, `SELECT `+eventCols+` FROM visit_flow_event WHERE flow_id = $1 ORDER BY created_at, id`, flowID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []*FlowEvent
	for rows.Next() {
		var ev FlowEvent
		var action, from, to string
		var payload []byte
		if err := rows.Scan(&ev.ID, &ev.FlowID, &ev.Event, &ev.Label, &action, &from, &to, &ev.ActorID, &payload, &ev.CreatedAt); err != nil {
			return nil, err
		}
		ev.Action, ev.FromStage, ev.ToStage = flowmodel.ActionKind(action), flowmodel.Stage(from), flowmodel.Stage(to)
		ev.Payload = payload
		events = append(events, &ev)
	}
	return events, rows.Err()
}

func scanFlow(row pgx.Row) (*VisitFlow, error) {
	var f VisitFlow
	var st string
	err := row.Scan(
		&f.ID, &f.PatientID, &f.PatientName, &f.AppointmentID, &f.ProviderID, &f.FacilityID,
		&f.ArrivalMode, &st, &f.LinkedRecords, &f.CarePlans, &f.ClinicalAlerts, &f.Referrals, &f.FollowUps,
		&f.Version, &f.CreatedAt, &f.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	f.Stage = flowmodel.Stage(st)
	return &f, nil
}
