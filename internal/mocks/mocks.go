package mocks

import (
	"context"
	"io"

	"github.com/stretchr/testify/mock"

	"support-dashboard/internal/models"
)

type MessageRepositoryMock struct {
	mock.Mock
}

func (m *MessageRepositoryMock) Append(ctx context.Context, msg models.Message) (models.MessageID, error) {
	args := m.Called(ctx, msg)
	var id models.MessageID
	if val := args.Get(0); val != nil {
		id = val.(models.MessageID)
	}
	return id, args.Error(1)
}

func (m *MessageRepositoryMock) Edit(ctx context.Context, id models.MessageID, content string) error {
	args := m.Called(ctx, id, content)
	return args.Error(0)
}

func (m *MessageRepositoryMock) Delete(ctx context.Context, id models.MessageID) (bool, error) {
	args := m.Called(ctx, id)
	return args.Bool(0), args.Error(1)
}

func (m *MessageRepositoryMock) Snapshot(ctx context.Context) ([]*models.Message, error) {
	args := m.Called(ctx)
	var list []*models.Message
	if val := args.Get(0); val != nil {
		list = val.([]*models.Message)
	}
	return list, args.Error(1)
}

type TransactionRepositoryMock struct {
	mock.Mock
}

func (m *TransactionRepositoryMock) Append(ctx context.Context, tx models.Transaction) (models.Transaction, error) {
	args := m.Called(ctx, tx)
	var stored models.Transaction
	if val := args.Get(0); val != nil {
		stored = val.(models.Transaction)
	}
	return stored, args.Error(1)
}

func (m *TransactionRepositoryMock) Snapshot(ctx context.Context) ([]models.Transaction, error) {
	args := m.Called(ctx)
	var list []models.Transaction
	if val := args.Get(0); val != nil {
		list = val.([]models.Transaction)
	}
	return list, args.Error(1)
}

type StoreMock struct {
	mock.Mock
}

func (m *StoreMock) Save(ctx context.Context, originalName, contentType string, r io.Reader) (string, error) {
	if r != nil {
		_, _ = io.Copy(io.Discard, r)
	}
	args := m.Called(ctx, originalName, contentType)
	return args.String(0), args.Error(1)
}

func (m *StoreMock) Kind() string {
	return "mock"
}
