package mocks

import (
	"context"

	"github.com/stretchr/testify/mock"
	"github.com/vytor/hanziflash/internal/fetch"
)

// MockFetcher is a mock implementation of fetch.Fetcher
type MockFetcher struct {
	mock.Mock
}

func (m *MockFetcher) Fetch(ctx context.Context, rawURL string) (*fetch.Payload, error) {
	args := m.Called(ctx, rawURL)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*fetch.Payload), args.Error(1)
}
