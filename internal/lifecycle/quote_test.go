package lifecycle

import (
	"errors"
	"testing"

	"backoffice/internal/apperr"
	"backoffice/internal/model"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var (
	clientID = uuid.MustParse("11111111-1111-1111-1111-111111111111")
	admin    = model.NewActor(uuid.MustParse("aaaaaaaa-aaaa-aaaa-aaaa-aaaaaaaaaaaa"), model.RoleAdmin)
	staff    = model.NewActor(uuid.MustParse("bbbbbbbb-bbbb-bbbb-bbbb-bbbbbbbbbbbb"), model.RoleStaff)
	client   = model.NewActor(clientID, model.RoleClient)
	stranger = model.NewActor(uuid.MustParse("22222222-2222-2222-2222-222222222222"), model.RoleClient)
	system   = model.SystemActor(admin.ID)
)

func strp(s string) *string { return &s }

func pendingState() QuoteState {
	return QuoteState{
		Status:     model.QuoteStatusPending,
		ClientID:   clientID,
		ServiceIDs: []string{"svc-1", "svc-2"},
	}
}

func estimatedState() QuoteState {
	s := pendingState()
	s.Status = model.QuoteStatusEstimated
	s.ServiceEstimates = map[string]decimal.Decimal{
		"svc-1": decimal.RequireFromString("120.00"),
		"svc-2": decimal.RequireFromString("80.50"),
	}
	return s
}

func TestEstimateRequiresAdminAndCompleteAmounts(t *testing.T) {
	s := pendingState()
	s.ServiceEstimates = map[string]decimal.Decimal{"svc-1": decimal.NewFromInt(120)}

	_, err := TransitionQuote(s, ActionEstimate, admin)
	assert.True(t, errors.Is(err, apperr.ErrIncompleteEstimate))

	s.ServiceEstimates["svc-2"] = decimal.RequireFromString("80.50")
	_, err = TransitionQuote(s, ActionEstimate, staff)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	dec, err := TransitionQuote(s, ActionEstimate, admin)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusPending, dec.From)
	assert.Equal(t, model.QuoteStatusEstimated, dec.To)
}

func TestEstimateOnlyFromPending(t *testing.T) {
	_, err := TransitionQuote(estimatedState(), ActionEstimate, admin)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestClientCannotAcceptPendingQuote(t *testing.T) {
	_, err := TransitionQuote(pendingState(), ActionAccept, client)
	require.Error(t, err)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
	assert.Contains(t, err.Error(), "cannot accept a quote that has not been estimated")
}

func TestClientResponse(t *testing.T) {
	dec, err := TransitionQuote(estimatedState(), ActionAccept, client)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusAccepted, dec.To)
	require.NotNil(t, dec.ClientResponse)
	assert.Equal(t, model.ClientResponseAccepted, *dec.ClientResponse)

	_, err = TransitionQuote(estimatedState(), ActionReject, stranger)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	_, err = TransitionQuote(estimatedState(), ActionAccept, admin)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))
}

func TestRepeatedResponseIsNoopAndFlipIsRejected(t *testing.T) {
	s := estimatedState()
	s.Status = model.QuoteStatusAccepted
	s.ClientResponse = strp(model.ClientResponseAccepted)

	dec, err := TransitionQuote(s, ActionAccept, client)
	require.NoError(t, err)
	assert.True(t, dec.Noop)
	assert.Equal(t, model.QuoteStatusAccepted, dec.To)

	_, err = TransitionQuote(s, ActionReject, client)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestAdminOverride(t *testing.T) {
	s := estimatedState()
	s.Status = model.QuoteStatusRejected
	s.ClientResponse = strp(model.ClientResponseRejected)

	_, err := TransitionQuote(s, ActionOverrideAccept, staff)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	dec, err := TransitionQuote(s, ActionOverrideAccept, admin)
	require.NoError(t, err)
	assert.False(t, dec.Noop)
	assert.Equal(t, model.QuoteStatusRejected, dec.From)
	assert.Equal(t, model.QuoteStatusAccepted, dec.To)

	s.Status = model.QuoteStatusConverted
	_, err = TransitionQuote(s, ActionOverrideReject, admin)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))

	_, err = TransitionQuote(pendingState(), ActionOverrideAccept, admin)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestConvertIsReservedForSystem(t *testing.T) {
	s := estimatedState()
	s.Status = model.QuoteStatusAccepted

	_, err := TransitionQuote(s, ActionConvert, admin)
	assert.True(t, errors.Is(err, apperr.ErrUnauthorized))

	dec, err := TransitionQuote(s, ActionConvert, system)
	require.NoError(t, err)
	assert.Equal(t, model.QuoteStatusConverted, dec.To)

	s.Status = model.QuoteStatusRejected
	_, err = TransitionQuote(s, ActionConvert, system)
	assert.True(t, errors.Is(err, apperr.ErrInvalidTransition))
}

func TestConvertedIsTerminal(t *testing.T) {
	s := estimatedState()
	s.Status = model.QuoteStatusConverted
	s.ClientResponse = strp(model.ClientResponseAccepted)

	for _, action := range []Action{ActionEstimate, ActionReject, ActionOverrideReject, ActionConvert} {
		actor := admin
		switch action {
		case ActionReject:
			actor = client
		case ActionConvert:
			actor = system
		}
		_, err := TransitionQuote(s, action, actor)
		assert.True(t, errors.Is(err, apperr.ErrInvalidTransition), string(action))
	}
}

func TestCheckMediaEditable(t *testing.T) {
	assert.NoError(t, CheckMediaEditable(model.QuoteStatusPending))
	assert.NoError(t, CheckMediaEditable(model.QuoteStatusEstimated))
	for _, st := range []model.QuoteStatus{model.QuoteStatusAccepted, model.QuoteStatusRejected, model.QuoteStatusConverted} {
		assert.True(t, errors.Is(CheckMediaEditable(st), apperr.ErrImmutableState), string(st))
	}
}
