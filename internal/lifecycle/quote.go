// Package lifecycle is the status state machine for quotes, work orders and invoices.
// It is pure: callers read the persisted record, ask for a Decision and then
// write it with a compare-and-swap on the status they read.
package lifecycle

import (
	"backoffice/internal/apperr"
	"backoffice/internal/estimate"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type Action string

const (
	ActionEstimate       Action = "estimate"
	ActionAccept         Action = "accept"
	ActionReject         Action = "reject"
	ActionOverrideAccept Action = "override_accept"
	ActionOverrideReject Action = "override_reject"
	ActionConvert        Action = "convert"
)

// QuoteState is the slice of a quote the engine looks at.
type QuoteState struct {
	Status           model.QuoteStatus
	ClientID         uuid.UUID
	ClientResponse   *string
	ServiceIDs       []string
	ServiceEstimates map[string]decimal.Decimal
}

func StateOf(q *model.QuoteRequest) QuoteState {
	return QuoteState{
		Status:           q.Status,
		ClientID:         q.ClientID,
		ClientResponse:   q.ClientResponse,
		ServiceIDs:       q.ServiceIDs,
		ServiceEstimates: q.ServiceEstimates,
	}
}

// Decision is the outcome of a legal transition. From is the status the
// write must still find in storage. Noop means the request repeats what is
// already recorded and nothing needs writing.
type Decision struct {
	From           model.QuoteStatus
	To             model.QuoteStatus
	ClientResponse *string
	Noop           bool
}

// TransitionQuote decides whether actor may apply action to a quote in state s.
func TransitionQuote(s QuoteState, action Action, actor model.Actor) (Decision, error) {
	switch action {
	case ActionEstimate:
		return estimateQuote(s, actor)
	case ActionAccept:
		return respond(s, actor, model.ClientResponseAccepted)
	case ActionReject:
		return respond(s, actor, model.ClientResponseRejected)
	case ActionOverrideAccept:
		return override(s, actor, model.ClientResponseAccepted)
	case ActionOverrideReject:
		return override(s, actor, model.ClientResponseRejected)
	case ActionConvert:
		return convert(s, actor)
	default:
		return Decision{}, apperr.InvalidInput("unknown quote action %q", action)
	}
}

func estimateQuote(s QuoteState, actor model.Actor) (Decision, error) {
	if !actor.Has(model.RoleAdmin) {
		return Decision{}, apperr.Unauthorized("only an admin can estimate a quote")
	}
	if s.Status != model.QuoteStatusPending {
		return Decision{}, apperr.InvalidTransition("quote is already %s", s.Status)
	}
	if err := estimate.Validate(s.ServiceIDs, s.ServiceEstimates); err != nil {
		return Decision{}, err
	}
	return Decision{From: s.Status, To: model.QuoteStatusEstimated}, nil
}

func respond(s QuoteState, actor model.Actor, response string) (Decision, error) {
	if !actor.Has(model.RoleClient) || actor.ID != s.ClientID {
		return Decision{}, apperr.Unauthorized("only the requesting client can respond to this quote")
	}

	switch s.Status {
	case model.QuoteStatusPending:
		return Decision{}, apperr.InvalidTransition("cannot %s a quote that has not been estimated", verb(response))
	case model.QuoteStatusEstimated:
		return Decision{From: s.Status, To: statusFor(response), ClientResponse: &response}, nil
	default:
		if s.ClientResponse != nil && *s.ClientResponse == response {
			return Decision{From: s.Status, To: s.Status, ClientResponse: s.ClientResponse, Noop: true}, nil
		}
		if s.Status == model.QuoteStatusConverted {
			return Decision{}, apperr.InvalidTransition("quote has already been converted")
		}
		return Decision{}, apperr.InvalidTransition("quote was already %s", s.Status)
	}
}

func override(s QuoteState, actor model.Actor, response string) (Decision, error) {
	if !actor.Has(model.RoleAdmin) {
		return Decision{}, apperr.Unauthorized("only an admin can override a client response")
	}

	switch s.Status {
	case model.QuoteStatusEstimated, model.QuoteStatusAccepted, model.QuoteStatusRejected:
		to := statusFor(response)
		if s.Status == to {
			return Decision{From: s.Status, To: to, ClientResponse: s.ClientResponse, Noop: true}, nil
		}
		return Decision{From: s.Status, To: to, ClientResponse: &response}, nil
	case model.QuoteStatusConverted:
		return Decision{}, apperr.InvalidTransition("a converted quote cannot change its response")
	default:
		return Decision{}, apperr.InvalidTransition("cannot %s a quote that has not been estimated", verb(response))
	}
}

func convert(s QuoteState, actor model.Actor) (Decision, error) {
	if !actor.Has(model.RoleSystem) {
		return Decision{}, apperr.Unauthorized("quotes are converted through the conversion workflow only")
	}
	if s.Status != model.QuoteStatusAccepted {
		return Decision{}, apperr.InvalidTransition("quote is %s; only accepted quotes can be converted", s.Status)
	}
	return Decision{From: s.Status, To: model.QuoteStatusConverted, ClientResponse: s.ClientResponse}, nil
}

// CheckMediaEditable guards attachment edits to the pending/estimated window.
func CheckMediaEditable(status model.QuoteStatus) error {
	switch status {
	case model.QuoteStatusPending, model.QuoteStatusEstimated:
		return nil
	}
	return apperr.ImmutableState("attachments cannot change once a quote is %s", status)
}

func statusFor(response string) model.QuoteStatus {
	if response == model.ClientResponseAccepted {
		return model.QuoteStatusAccepted
	}
	return model.QuoteStatusRejected
}

func verb(response string) string {
	if response == model.ClientResponseAccepted {
		return "accept"
	}
	return "reject"
}
