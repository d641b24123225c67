package service

import (
	"context"
	"testing"

	"backoffice/internal/apperr"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertServiceValidation(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.catalog)
	ctx := context.Background()
	bogus := "bonus"

	tests := []struct {
		name    string
		actor   bool
		req     UpsertServiceRequest
		wantErr error
	}{
		{"staff cannot edit", false, UpsertServiceRequest{ID: "svc-3", Name: "Wash"}, apperr.ErrUnauthorized},
		{"blank id", true, UpsertServiceRequest{ID: "  ", Name: "Wash"}, apperr.ErrInvalidInput},
		{"negative price", true, UpsertServiceRequest{ID: "svc-3", Name: "Wash", DefaultPrice: decimal.NewFromInt(-1)}, apperr.ErrInvalidInput},
		{"unknown commission type", true, UpsertServiceRequest{ID: "svc-3", Name: "Wash", CommissionType: &bogus}, apperr.ErrInvalidInput},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			actor := f.staff
			if tt.actor {
				actor = f.admin
			}
			_, err := svc.UpsertService(ctx, actor, tt.req)
			assert.ErrorIs(t, err, tt.wantErr)
		})
	}
}

func TestDeactivatedServiceHiddenFromClients(t *testing.T) {
	f := newFixture(t)
	svc := NewCatalogService(f.catalog)
	ctx := context.Background()
	inactive := false

	updated, err := svc.UpsertService(ctx, f.admin, UpsertServiceRequest{
		ID:           "svc-2",
		Name:         "Brake check",
		DefaultPrice: decimal.RequireFromString("85"),
		IsActive:     &inactive,
	})
	require.NoError(t, err)
	assert.Equal(t, "85.00", updated.DefaultPrice)
	assert.False(t, updated.IsActive)

	forClient, err := svc.ListServices(ctx, f.client)
	require.NoError(t, err)
	require.Len(t, forClient, 1)
	assert.Equal(t, "svc-1", forClient[0].ID)

	forStaff, err := svc.ListServices(ctx, f.staff)
	require.NoError(t, err)
	assert.Len(t, forStaff, 2)
}
