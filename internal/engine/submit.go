package engine

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/google/uuid"

	"flightclaim/internal/domain"
	"flightclaim/internal/events"
	flog "flightclaim/internal/log"
	"flightclaim/internal/metrics"
	"flightclaim/internal/submission"
	"flightclaim/internal/wizard"
)

// localSubmitter accepts every claim. It stands in for the remote service when
// submission.url is not configured.
type localSubmitter struct{}

func (localSubmitter) Submit(_ context.Context, _ submission.Submission) (submission.Result, error) {
	return submission.Result{Success: true, ClaimID: uuid.NewString()}, nil
}

// submit assembles the draft, hands it to the submission service and records the claim.
// On failure the returned state carries the resolved draft and stays on the submit step.
func (e Engine) submit(ctx context.Context, id string, st wizard.State) (wizard.State, error) {
	if !st.CanAdvance() {
		return st, fmt.Errorf("%w: %s", wizard.ErrIncomplete, st.Step)
	}
	log := e.logger(ctx)
	payload, resolved := e.Assembler.Assemble(ctx, st.Draft, st.Flags.FastTrack)
	st.Draft = resolved

	res, err := e.Submitter.Submit(ctx, payload)
	if err == nil && !res.Success {
		err = errors.New(res.Error)
		if res.Error == "" {
			err = errors.New("rejected without reason")
		}
	}
	if err != nil {
		metrics.RecordSubmission(false)
		log.Warn().Err(err).Msg("claim submission failed")
		if aerr := e.Events.AppendNow(ctx, events.ClaimFailed, "wizard", id, actor(id), events.EventPayload{
			"error": err.Error(),
		}); aerr != nil {
			log.Warn().Err(aerr).Msg("record submission failure")
		}
		return st, fmt.Errorf("%w: %v", ErrSubmission, err)
	}

	claimID := res.ClaimID
	if claimID == "" {
		claimID = uuid.NewString()
	}
	claim, err := e.claimRecord(claimID, payload)
	if err != nil {
		return st, err
	}
	if err := e.withTx(ctx, func(tx *sql.Tx) error {
		if err := e.Repo.InsertClaimTx(ctx, tx, claim); err != nil {
			return err
		}
		if err := e.Events.Append(ctx, tx, events.ClaimSubmitted, "claim", claimID, actor(id), events.EventPayload{
			"fast_track":   payload.FastTrack,
			"problem_type": string(claim.ProblemType),
			"departure":    claim.DepartureIATA,
			"arrival":      claim.ArrivalIATA,
		}); err != nil {
			return err
		}
		return e.Events.Append(ctx, tx, events.WizardCompleted, "wizard", id, actor(id), events.EventPayload{
			"claim_id": claimID,
		})
	}); err != nil {
		// The service accepted the claim; the local record is best effort.
		log.Error().Err(err).Str(flog.FieldClaimID, claimID).Msg("record submitted claim")
	}

	done, err := st.Complete(claimID)
	if err != nil {
		return st, err
	}
	metrics.RecordSubmission(true)
	metrics.RecordTransition("next", done.Step.Name())
	log.Info().Str(flog.FieldClaimID, claimID).Bool("fast_track", payload.FastTrack).Msg("claim submitted")
	return done, nil
}

func (e Engine) claimRecord(id string, s submission.Submission) (domain.Claim, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return domain.Claim{}, fmt.Errorf("marshal claim: %w", err)
	}
	d := s.Claim
	flight := d.FlightNumber
	if d.SelectedFlight != nil {
		flight = d.SelectedFlight.FlightNumber
	}
	return domain.Claim{
		ID:               id,
		Status:           "submitted",
		FastTrack:        s.FastTrack,
		DepartureIATA:    d.DepartureAirport.Code(),
		ArrivalIATA:      d.ArrivalAirport.Code(),
		FlightNumber:     flight,
		TravelDate:       d.TravelDate,
		ProblemType:      d.ProblemType,
		Email:            d.Contact.Email,
		Phone:            d.Contact.Phone,
		BookingReference: d.BookingReference,
		PayloadJSON:      string(data),
		CreatedAt:        e.timestamp(),
	}, nil
}

func (e Engine) withTx(ctx context.Context, fn func(*sql.Tx) error) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}
