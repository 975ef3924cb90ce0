package main

import (
	"context"
	"io"

	"github.com/damacus/r2-dashboard/internal/services"
	"github.com/stretchr/testify/mock"
)

// MockObjectStore implements services.ObjectStore for testing
type MockObjectStore struct {
	mock.Mock
}

func (m *MockObjectStore) List(ctx context.Context, opts services.ListOptions) (services.ListResult, error) {
	args := m.Called(ctx, opts)
	return args.Get(0).(services.ListResult), args.Error(1)
}

func (m *MockObjectStore) Put(ctx context.Context, key string, body io.Reader, size int64, contentType string) error {
	args := m.Called(ctx, key, body, size, contentType)
	return args.Error(0)
}

func (m *MockObjectStore) Get(ctx context.Context, key string) (io.ReadCloser, error) {
	args := m.Called(ctx, key)
	if rc := args.Get(0); rc != nil {
		return rc.(io.ReadCloser), args.Error(1)
	}
	return nil, args.Error(1)
}

func (m *MockObjectStore) Delete(ctx context.Context, key string) error {
	args := m.Called(ctx, key)
	return args.Error(0)
}

// MockUsage implements services.UsageReporter for testing
type MockUsage struct {
	mock.Mock
}

func (m *MockUsage) BucketUsage(ctx context.Context, bucket string) (uint64, uint64, error) {
	args := m.Called(ctx, bucket)
	return args.Get(0).(uint64), args.Get(1).(uint64), args.Error(2)
}
