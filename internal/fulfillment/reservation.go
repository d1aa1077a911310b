package fulfillment

import (
	"context"
	"errors"
	"fmt"

	"github.com/99degreesdevs/emuna-back/internal/apperr"
	"github.com/99degreesdevs/emuna-back/internal/catalog"
	"github.com/99degreesdevs/emuna-back/internal/events"
	"github.com/99degreesdevs/emuna-back/internal/ledger"
)

type ReservationResult struct {
	Message     string               `json:"message"`
	Reservation ledger.Reservation   `json:"reservation"`
	Class       ledger.ClassSchedule `json:"class"`
}

// ReserveClass books one seat for userID, paying with one class credit.
// Checks run in this order: class exists, seat available, not already
// booked, credit available.
func (e *Engine) ReserveClass(ctx context.Context, classID, userID string) (ReservationResult, error) {
	var res ReservationResult
	err := e.Store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		class, err := tx.LockClass(ctx, classID)
		if err != nil {
			return err
		}
		if !class.IsActive {
			return apperr.ErrClassNotFound.Withf("class %s is no longer available", class.Name)
		}
		if class.AvailablePlaces <= 0 {
			return apperr.ErrNoCapacity.Withf("class %s has no available places", class.Name)
		}

		_, err = tx.ActiveReservation(ctx, classID, userID)
		switch {
		case err == nil:
			return apperr.ErrAlreadyReserved.Withf("you already have a reservation for %s", class.Name)
		case !errors.Is(err, apperr.ErrNoReservation):
			return err
		}

		creditID, err := tx.ClaimCredit(ctx, userID, catalog.CategoryClass)
		if err != nil {
			if errors.Is(err, apperr.ErrNoCredit) {
				return apperr.ErrNoCredit.Withf("you have no class credits left to book %s", class.Name)
			}
			return err
		}

		r := ledger.Reservation{ClassID: classID, UserID: userID, CreditID: creditID}
		if err := tx.CreateReservation(ctx, &r); err != nil {
			return err
		}
		if err := tx.TakeSeat(ctx, classID); err != nil {
			return err
		}
		class.AvailablePlaces--

		res = ReservationResult{
			Message:     fmt.Sprintf("Reservation for %s confirmed", class.Name),
			Reservation: r,
			Class:       class,
		}
		return nil
	})
	if err != nil {
		e.log().Info("reservation refused", "class_id", classID, "user_id", userID, "reason", apperr.ReasonOf(err), "err", err)
		return ReservationResult{}, err
	}

	e.log().Info("class reserved", "class_id", classID, "user_id", userID, "reservation_id", res.Reservation.ID)
	e.emit(ctx, events.TopicClassReservation, events.EventClassReserved, classID, reservationPayload(res))
	return res, nil
}

// CancelReservation releases userID's seat and gives the consumed credit
// back. It is refused once the class starts within the cutoff.
func (e *Engine) CancelReservation(ctx context.Context, classID, userID string) (ReservationResult, error) {
	var res ReservationResult
	err := e.Store.WithinTx(ctx, func(ctx context.Context, tx ledger.Tx) error {
		class, err := tx.LockClass(ctx, classID)
		if errors.Is(err, apperr.ErrClassNotFound) {
			return apperr.ErrNoReservation.Withf("there is no reservation to cancel for class %s", classID)
		}
		if err != nil {
			return err
		}

		r, err := tx.ActiveReservation(ctx, classID, userID)
		if errors.Is(err, apperr.ErrNoReservation) {
			return apperr.ErrNoReservation.Withf("you have no reservation for %s", class.Name)
		}
		if err != nil {
			return err
		}

		// the deadline is checked under the class lock, against the same
		// row the mutation below touches
		if deadline := e.now().Add(e.cutoff()); !class.StartsAt.After(deadline) {
			return apperr.ErrTooLateToCancel.Withf("reservations for %s can only be canceled more than %s before it starts",
				class.Name, e.cutoff())
		}

		if err := tx.CancelReservation(ctx, r.ID); err != nil {
			return err
		}
		if err := tx.ReleaseSeat(ctx, classID); err != nil {
			return err
		}
		if err := tx.RestoreCredit(ctx, r.CreditID); err != nil {
			return err
		}
		if class.AvailablePlaces < class.Places {
			class.AvailablePlaces++
		}
		r.Status, r.IsActive = ledger.ReservationCanceled, false

		res = ReservationResult{
			Message:     fmt.Sprintf("Reservation for %s canceled, your credit was restored", class.Name),
			Reservation: r,
			Class:       class,
		}
		return nil
	})
	if err != nil {
		e.log().Info("cancellation refused", "class_id", classID, "user_id", userID, "reason", apperr.ReasonOf(err), "err", err)
		return ReservationResult{}, err
	}

	e.log().Info("reservation canceled", "class_id", classID, "user_id", userID, "reservation_id", res.Reservation.ID)
	e.emit(ctx, events.TopicClassReservation, events.EventClassReservationCanceled, classID, reservationPayload(res))
	return res, nil
}

func reservationPayload(res ReservationResult) events.ReservationPayload {
	return events.ReservationPayload{
		ReservationID: res.Reservation.ID,
		ClassID:       res.Class.ID,
		ClassName:     res.Class.Name,
		UserID:        res.Reservation.UserID,
		CreditID:      res.Reservation.CreditID,
		Status:        string(res.Reservation.Status),
		StartsAt:      res.Class.StartsAt,
	}
}
