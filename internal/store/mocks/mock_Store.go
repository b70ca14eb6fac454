// Package mocks provides test doubles for the store interfaces.
package mocks

import (
	"context"
	"time"

	mock "github.com/stretchr/testify/mock"

	"github.com/sells-group/reconcile-cli/internal/model"
	store "github.com/sells-group/reconcile-cli/internal/store"
)

// MockStore is a mock type for the Store interface.
type MockStore struct {
	mock.Mock
}


// AppendAIRun provides a mock function with given fields: ctx, rec
func (_m *MockStore) AppendAIRun(ctx context.Context, rec model.AIRunRecord) error {
	ret := _m.Called(ctx, rec)

	if len(ret) == 0 {
		panic("no return value specified for AppendAIRun")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, model.AIRunRecord) error); ok {
		r0 = rf(ctx, rec)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ListAIRuns provides a mock function with given fields: ctx, filter
func (_m *MockStore) ListAIRuns(ctx context.Context, filter store.RunFilter) ([]model.AIRunRecord, error) {
	ret := _m.Called(ctx, filter)

	if len(ret) == 0 {
		panic("no return value specified for ListAIRuns")
	}

	var r0 []model.AIRunRecord
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, store.RunFilter) ([]model.AIRunRecord, error)); ok {
		return rf(ctx, filter)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.AIRunRecord)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// ReplaceInconsistencies provides a mock function with given fields: ctx, documentID, set
func (_m *MockStore) ReplaceInconsistencies(ctx context.Context, documentID string, set []model.Inconsistency) error {
	ret := _m.Called(ctx, documentID, set)

	if len(ret) == 0 {
		panic("no return value specified for ReplaceInconsistencies")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, []model.Inconsistency) error); ok {
		r0 = rf(ctx, documentID, set)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ListInconsistencies provides a mock function with given fields: ctx, documentID
func (_m *MockStore) ListInconsistencies(ctx context.Context, documentID string) ([]model.Inconsistency, error) {
	ret := _m.Called(ctx, documentID)

	if len(ret) == 0 {
		panic("no return value specified for ListInconsistencies")
	}

	var r0 []model.Inconsistency
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.Inconsistency, error)); ok {
		return rf(ctx, documentID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.Inconsistency)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// RecordExtraction provides a mock function with given fields: ctx, m
func (_m *MockStore) RecordExtraction(ctx context.Context, m model.ExtractionMetrics) error {
	ret := _m.Called(ctx, m)

	if len(ret) == 0 {
		panic("no return value specified for RecordExtraction")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, model.ExtractionMetrics) error); ok {
		r0 = rf(ctx, m)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ListExtractionMetrics provides a mock function with given fields: ctx, since
func (_m *MockStore) ListExtractionMetrics(ctx context.Context, since time.Time) ([]model.ExtractionMetrics, error) {
	ret := _m.Called(ctx, since)

	if len(ret) == 0 {
		panic("no return value specified for ListExtractionMetrics")
	}

	var r0 []model.ExtractionMetrics
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, time.Time) ([]model.ExtractionMetrics, error)); ok {
		return rf(ctx, since)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.ExtractionMetrics)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// UpdateDocument provides a mock function with given fields: ctx, id, u
func (_m *MockStore) UpdateDocument(ctx context.Context, id string, u model.DocumentUpdate) error {
	ret := _m.Called(ctx, id, u)

	if len(ret) == 0 {
		panic("no return value specified for UpdateDocument")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, string, model.DocumentUpdate) error); ok {
		r0 = rf(ctx, id, u)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// GetDocument provides a mock function with given fields: ctx, id
func (_m *MockStore) GetDocument(ctx context.Context, id string) (*model.Document, error) {
	ret := _m.Called(ctx, id)

	if len(ret) == 0 {
		panic("no return value specified for GetDocument")
	}

	var r0 *model.Document
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) (*model.Document, error)); ok {
		return rf(ctx, id)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).(*model.Document)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// AppendLog provides a mock function with given fields: ctx, entry
func (_m *MockStore) AppendLog(ctx context.Context, entry model.DocumentLog) error {
	ret := _m.Called(ctx, entry)

	if len(ret) == 0 {
		panic("no return value specified for AppendLog")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context, model.DocumentLog) error); ok {
		r0 = rf(ctx, entry)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ListLogs provides a mock function with given fields: ctx, documentID
func (_m *MockStore) ListLogs(ctx context.Context, documentID string) ([]model.DocumentLog, error) {
	ret := _m.Called(ctx, documentID)

	if len(ret) == 0 {
		panic("no return value specified for ListLogs")
	}

	var r0 []model.DocumentLog
	var r1 error
	if rf, ok := ret.Get(0).(func(context.Context, string) ([]model.DocumentLog, error)); ok {
		return rf(ctx, documentID)
	}
	if ret.Get(0) != nil {
		r0 = ret.Get(0).([]model.DocumentLog)
	}
	r1 = ret.Error(1)

	return r0, r1
}

// Migrate provides a mock function with given fields: ctx
func (_m *MockStore) Migrate(ctx context.Context) error {
	ret := _m.Called(ctx)

	if len(ret) == 0 {
		panic("no return value specified for Migrate")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func(context.Context) error); ok {
		r0 = rf(ctx)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// Close provides a mock function with given fields: 
func (_m *MockStore) Close() error {
	ret := _m.Called()

	if len(ret) == 0 {
		panic("no return value specified for Close")
	}

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// NewMockStore creates a new instance of MockStore.
func NewMockStore(t interface {
	mock.TestingT
	Cleanup(func())
}) *MockStore {
	mock := &MockStore{}
	mock.Test(t)

	t.Cleanup(func() { mock.AssertExpectations(t) })

	return mock
}

var _ store.Store = (*MockStore)(nil)
