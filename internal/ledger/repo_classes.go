package ledger

import (
	"context"
	"errors"
	"fmt"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/postgres"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
)

func (t *pgTx) LockClass(ctx context.Context, classID string) (ClassSchedule, error) {
	notFound := apperr.ErrClassNotFound.Withf("class %s does not exist", classID)
	if _, err := uuid.Parse(classID); err != nil {
		return ClassSchedule{}, notFound
	}
	var c ClassSchedule
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, name, teacher, places, available_places, class_date_start, class_date_end, is_active
		FROM class_schedules WHERE id=$1 FOR UPDATE`, classID,
	).Scan(&c.ID, &c.Name, &c.Teacher, &c.Places, &c.AvailablePlaces, &c.StartsAt, &c.EndsAt, &c.IsActive)
	if errors.Is(err, pgx.ErrNoRows) {
		return ClassSchedule{}, notFound
	}
	if err != nil {
		return ClassSchedule{}, fmt.Errorf("lock class: %w", err)
	}
	return c, nil
}

func (t *pgTx) ActiveReservation(ctx context.Context, classID, userID string) (Reservation, error) {
	var r Reservation
	err := t.tx.QueryRow(ctx, `
		SELECT id::text, class_id::text, user_id, credit_id::text, status, is_active, created_at
		FROM class_reservations
		WHERE class_id=$1 AND user_id=$2 AND status='RESERVED' AND is_active
		FOR UPDATE`, classID, userID,
	).Scan(&r.ID, &r.ClassID, &r.UserID, &r.CreditID, &r.Status, &r.IsActive, &r.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return Reservation{}, apperr.ErrNoReservation
	}
	if err != nil {
		return Reservation{}, fmt.Errorf("find reservation: %w", err)
	}
	return r, nil
}

// ClaimCredit picks the oldest free credit. SKIP LOCKED keeps two concurrent
// claims from selecting the same row.
func (t *pgTx) ClaimCredit(ctx context.Context, userID string, c catalog.Category) (string, error) {
	var id string
	err := t.tx.QueryRow(ctx, `
		UPDATE credits SET is_active=false, updated_at=now()
		WHERE id = (
			SELECT id FROM credits
			WHERE user_id=$1 AND category=$2 AND is_active
			ORDER BY created_at, id
			LIMIT 1
			FOR UPDATE SKIP LOCKED
		)
		RETURNING id::text`, userID, c).Scan(&id)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", apperr.ErrNoCredit
	}
	if err != nil {
		return "", fmt.Errorf("claim credit: %w", err)
	}
	return id, nil
}

func (t *pgTx) RestoreCredit(ctx context.Context, creditID string) error {
	ct, err := t.tx.Exec(ctx, `UPDATE credits SET is_active=true, updated_at=now() WHERE id=$1`, creditID)
	if err != nil {
		return fmt.Errorf("restore credit: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.ErrNoCredit.Withf("credit %s does not exist", creditID)
	}
	return nil
}

func (t *pgTx) TakeSeat(ctx context.Context, classID string) error {
	ct, err := t.tx.Exec(ctx, `UPDATE class_schedules SET available_places = available_places - 1
		WHERE id=$1 AND available_places > 0`, classID)
	if err != nil {
		return fmt.Errorf("take seat: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.ErrNoCapacity
	}
	return nil
}

func (t *pgTx) ReleaseSeat(ctx context.Context, classID string) error {
	_, err := t.tx.Exec(ctx, `UPDATE class_schedules SET available_places = LEAST(places, available_places + 1)
		WHERE id=$1`, classID)
	if err != nil {
		return fmt.Errorf("release seat: %w", err)
	}
	return nil
}

func (t *pgTx) CreateReservation(ctx context.Context, r *Reservation) error {
	r.ID = uuid.NewString()
	r.Status = ReservationReserved
	r.IsActive = true
	err := t.tx.QueryRow(ctx, `
		INSERT INTO class_reservations(id, class_id, user_id, credit_id, status, is_active)
		VALUES ($1,$2,$3,$4,$5,true)
		RETURNING created_at`, r.ID, r.ClassID, r.UserID, r.CreditID, r.Status).Scan(&r.CreatedAt)
	if postgres.IsUniqueViolation(err, "class_reservations_active_uq") {
		return apperr.ErrAlreadyReserved
	}
	if err != nil {
		return fmt.Errorf("insert reservation: %w", err)
	}
	return nil
}

func (t *pgTx) CancelReservation(ctx context.Context, reservationID string) error {
	ct, err := t.tx.Exec(ctx, `UPDATE class_reservations SET status='CANCELED', is_active=false, updated_at=now()
		WHERE id=$1 AND status='RESERVED' AND is_active`, reservationID)
	if err != nil {
		return fmt.Errorf("cancel reservation: %w", err)
	}
	if ct.RowsAffected() != 1 {
		return apperr.ErrNoReservation
	}
	return nil
}
