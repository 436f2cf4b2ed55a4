//go:build !production

package testutil

import (
	"github.com/stretchr/testify/mock"

	"github.com/palemoky/drop-three/internal/types"
)

// MockOrchestrator 房间编排器 mock
type MockOrchestrator struct {
	mock.Mock
}

func (m *MockOrchestrator) MakeMove(t types.Transport, column int) error {
	args := m.Called(t, column)
	return args.Error(0)
}

func (m *MockOrchestrator) Leave(t types.Transport) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockOrchestrator) VoteReady(t types.Transport) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockOrchestrator) VoteRematch(t types.Transport) error {
	args := m.Called(t)
	return args.Error(0)
}

func (m *MockOrchestrator) Chat(t types.Transport, text string) error {
	args := m.Called(t, text)
	return args.Error(0)
}
