package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/hanziflash/internal/models"
)

// MockGateway is a mock implementation of remote.Gateway
type MockGateway struct {
	mock.Mock
}

func (m *MockGateway) ListCards(ctx context.Context) ([]models.Card, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Card), args.Error(1)
}

func (m *MockGateway) GetCard(ctx context.Context, id string) (*models.Card, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Card), args.Error(1)
}

func (m *MockGateway) SetMastered(ctx context.Context, id string, mastered bool) error {
	args := m.Called(ctx, id, mastered)
	return args.Error(0)
}

func (m *MockGateway) ListCollections(ctx context.Context) ([]models.Collection, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]models.Collection), args.Error(1)
}

func (m *MockGateway) UpsertCollection(ctx context.Context, c models.Collection) (models.Collection, error) {
	args := m.Called(ctx, c)
	return args.Get(0).(models.Collection), args.Error(1)
}

func (m *MockGateway) DeleteCollection(ctx context.Context, id string) error {
	args := m.Called(ctx, id)
	return args.Error(0)
}

func (m *MockGateway) CardCollections(ctx context.Context, cardID string) ([]string, error) {
	args := m.Called(ctx, cardID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func (m *MockGateway) Memberships(ctx context.Context) (map[string][]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string][]string), args.Error(1)
}

func (m *MockGateway) SetCardCollections(ctx context.Context, cardID string, collectionIDs []string) error {
	args := m.Called(ctx, cardID, collectionIDs)
	return args.Error(0)
}
