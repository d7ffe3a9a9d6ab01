package registry

import (
	"context"

	"github.com/stretchr/testify/mock"

	"github.com/ecotrace-srl/rentri-client/interfaces"
)

// MockRegistry mocks the interfaces.RegistryAPI interface for tests.
type MockRegistry struct {
	mock.Mock
}

var _ interfaces.RegistryAPI = (*MockRegistry)(nil)

// ListBlocks mocks the ListBlocks method.
func (m *MockRegistry) ListBlocks(ctx context.Context) ([]interfaces.Block, error) {
	args := m.Called(ctx)
	blocks, _ := args.Get(0).([]interfaces.Block)
	return blocks, args.Error(1)
}

// ListDocuments mocks the ListDocuments method.
func (m *MockRegistry) ListDocuments(ctx context.Context, blockCode string, page int) ([]interfaces.Document, bool, error) {
	args := m.Called(ctx, blockCode, page)
	docs, _ := args.Get(0).([]interfaces.Document)
	return docs, args.Bool(1), args.Error(2)
}

// ListAllDocuments mocks the ListAllDocuments method.
func (m *MockRegistry) ListAllDocuments(ctx context.Context, blockCode string) ([]interfaces.Document, error) {
	args := m.Called(ctx, blockCode)
	docs, _ := args.Get(0).([]interfaces.Document)
	return docs, args.Error(1)
}

// SubmitCertification mocks the SubmitCertification method.
func (m *MockRegistry) SubmitCertification(ctx context.Context, blockCode string) error {
	args := m.Called(ctx, blockCode)
	return args.Error(0)
}

// FetchArtifact mocks the FetchArtifact method.
func (m *MockRegistry) FetchArtifact(ctx context.Context, blockCode string, sequence int) ([]byte, error) {
	args := m.Called(ctx, blockCode, sequence)
	data, _ := args.Get(0).([]byte)
	return data, args.Error(1)
}

// CancelDocument mocks the CancelDocument method.
func (m *MockRegistry) CancelDocument(ctx context.Context, blockCode string, sequence int) error {
	args := m.Called(ctx, blockCode, sequence)
	return args.Error(0)
}

// VerifyDocument mocks the VerifyDocument method.
func (m *MockRegistry) VerifyDocument(ctx context.Context, number string) (*interfaces.Document, error) {
	args := m.Called(ctx, number)
	doc, _ := args.Get(0).(*interfaces.Document)
	return doc, args.Error(1)
}
