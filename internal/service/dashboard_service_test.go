package service_test

import (
	"context"
	"errors"
	"testing"

	"github.com/boddenberg/leadchat-bfa-go/internal/domain"
	"github.com/boddenberg/leadchat-bfa-go/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestDashboardService_AccessMatrix(t *testing.T) {
	tests := []struct {
		name    string
		siteID  string
		token   string
		wantErr any
	}{
		{"correct token", "demo-plumber", "secret-token", nil},
		{"wrong token", "demo-plumber", "nope", &domain.ErrForbidden{}},
		{"missing token", "demo-plumber", "", &domain.ErrForbidden{}},
		{"token prefix", "demo-plumber", "secret", &domain.ErrForbidden{}},
		{"tenant without token, empty given", "no-token", "", &domain.ErrForbidden{}},
		{"tenant without token, some given", "no-token", "anything", &domain.ErrForbidden{}},
		{"unknown tenant, any token", "ghost", "secret-token", &domain.ErrNotFound{}},
		{"unknown tenant, no token", "ghost", "", &domain.ErrNotFound{}},
	}

	ledgerMock := newMockLedger()
	ledgerMock.leads["demo-plumber"] = []domain.Lead{{Name: "Ann", Phone: "555"}}
	svc := service.NewDashboardService(testStore(t.TempDir()), ledgerMock, zap.NewNop())

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			view, err := svc.Leads(context.Background(), tt.siteID, tt.token)

			switch tt.wantErr.(type) {
			case nil:
				require.NoError(t, err)
				assert.Equal(t, "Demo Plumbing Co.", view.Profile.Name)
				assert.Len(t, view.Leads, 1)
			case *domain.ErrForbidden:
				var fe *domain.ErrForbidden
				assert.ErrorAs(t, err, &fe)
				assert.Nil(t, view)
			case *domain.ErrNotFound:
				var nf *domain.ErrNotFound
				assert.ErrorAs(t, err, &nf)
				assert.Nil(t, view)
			}
		})
	}
}

func TestDashboardService_EmptyLedger(t *testing.T) {
	svc := service.NewDashboardService(testStore(t.TempDir()), newMockLedger(), zap.NewNop())

	view, err := svc.Leads(context.Background(), "demo-plumber", "secret-token")
	require.NoError(t, err)
	assert.Empty(t, view.Leads)
}

func TestDashboardService_LedgerError(t *testing.T) {
	ledgerMock := newMockLedger()
	ledgerMock.failErr = &domain.ErrPersistence{SiteID: "demo-plumber", Op: "read", Err: errors.New("corrupt")}
	svc := service.NewDashboardService(testStore(t.TempDir()), ledgerMock, zap.NewNop())

	_, err := svc.Leads(context.Background(), "demo-plumber", "secret-token")
	var perr *domain.ErrPersistence
	assert.ErrorAs(t, err, &perr)
}
