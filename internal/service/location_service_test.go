package service

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/reuseworks/volsched-api/internal/models"
	appErrors "github.com/reuseworks/volsched-api/pkg/errors"
)

type mockLocationRepo struct {
	items      map[string]*models.Location
	listResult []models.Location
	listTotal  int
	deleted    []string
}

func (m *mockLocationRepo) List(ctx context.Context, filter models.LocationFilter) ([]models.Location, int, error) {
	return m.listResult, m.listTotal, nil
}

func (m *mockLocationRepo) FindByID(ctx context.Context, id string) (*models.Location, error) {
	if location, ok := m.items[id]; ok {
		cp := *location
		return &cp, nil
	}
	return nil, sql.ErrNoRows
}

func (m *mockLocationRepo) Create(ctx context.Context, location *models.Location) error {
	if m.items == nil {
		m.items = make(map[string]*models.Location)
	}
	if location.ID == "" {
		location.ID = "generated"
	}
	cp := *location
	m.items[location.ID] = &cp
	return nil
}

func (m *mockLocationRepo) Update(ctx context.Context, location *models.Location) error {
	cp := *location
	m.items[location.ID] = &cp
	return nil
}

func (m *mockLocationRepo) Delete(ctx context.Context, id string) error {
	delete(m.items, id)
	m.deleted = append(m.deleted, id)
	return nil
}

func TestLocationServiceCreate(t *testing.T) {
	repo := &mockLocationRepo{}
	svc := NewLocationService(repo, zap.NewNop())

	location, err := svc.Create(context.Background(), LocationRequest{Name: "Main Workshop"})
	require.NoError(t, err)
	assert.Equal(t, "Main Workshop", location.Name)
	assert.Len(t, repo.items, 1)
}

func TestLocationServiceCreateEmptyName(t *testing.T) {
	svc := NewLocationService(&mockLocationRepo{}, zap.NewNop())

	_, err := svc.Create(context.Background(), LocationRequest{})
	require.Error(t, err)
	var appErr *appErrors.Error
	require.ErrorAs(t, err, &appErr)
	assert.Equal(t, "VALIDATION_ERROR", appErr.Code)
}

func TestLocationServiceDelete(t *testing.T) {
	repo := &mockLocationRepo{items: map[string]*models.Location{
		"loc1": {ID: "loc1", Name: "Main Workshop"},
	}}
	svc := NewLocationService(repo, zap.NewNop())

	require.NoError(t, svc.Delete(context.Background(), "loc1"))
	assert.Equal(t, []string{"loc1"}, repo.deleted)

	err := svc.Delete(context.Background(), "loc1")
	require.Error(t, err)
}
