// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package state

import (
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	alice = common.Address{0xa1}
	bob   = common.Address{0xb0}
	token = common.Address{0x70}
)

type testEvent struct{}

func (testEvent) EventName() string { return "test" }

func TestState_TransferMovesNativeValue(t *testing.T) {
	require := require.New(t)
	s := New()
	s.SetBalance(alice, uint256.NewInt(100))

	require.NoError(s.Transfer(alice, bob, uint256.NewInt(30)))
	require.Equal(uint256.NewInt(70), s.GetBalance(alice))
	require.Equal(uint256.NewInt(30), s.GetBalance(bob))

	err := s.Transfer(alice, bob, uint256.NewInt(71))
	require.ErrorIs(err, xcall.ErrInsufficientBalance)
	require.Equal(uint256.NewInt(70), s.GetBalance(alice))
}

func TestState_SelfTransferStillNeedsBalance(t *testing.T) {
	s := New()
	if err := s.Transfer(alice, alice, uint256.NewInt(1)); !errors.Is(err, xcall.ErrInsufficientBalance) {
		t.Errorf("expected insufficient balance, got %v", err)
	}
	if err := s.Transfer(alice, bob, new(uint256.Int)); err != nil {
		t.Errorf("zero transfers should always succeed, got %v", err)
	}
}

func TestState_ReturnedBalancesAreCopies(t *testing.T) {
	s := New()
	s.SetBalance(alice, uint256.NewInt(5))
	balance := s.GetBalance(alice)
	balance.SetUint64(1000)
	if got := s.GetBalance(alice); got.Uint64() != 5 {
		t.Errorf("balance was modified through returned value: %v", got)
	}
}

func TestState_TransferTokenFromConsumesAllowance(t *testing.T) {
	require := require.New(t)
	s := New()
	require.NoError(s.Mint(token, alice, uint256.NewInt(100)))

	err := s.TransferTokenFrom(token, bob, alice, bob, uint256.NewInt(10))
	require.ErrorIs(err, xcall.ErrInsufficientAllowance)

	s.Approve(token, alice, bob, uint256.NewInt(25))
	require.NoError(s.TransferTokenFrom(token, bob, alice, bob, uint256.NewInt(10)))
	require.Equal(uint256.NewInt(15), s.Allowance(token, alice, bob))
	require.Equal(uint256.NewInt(90), s.TokenBalance(token, alice))
	require.Equal(uint256.NewInt(10), s.TokenBalance(token, bob))

	// holders need no allowance for their own tokens
	require.NoError(s.TransferTokenFrom(token, alice, alice, bob, uint256.NewInt(90)))
	require.True(s.TokenBalance(token, alice).IsZero())
}

func TestState_RevokeApprovalsResetsEveryGrantOfTheHolder(t *testing.T) {
	require := require.New(t)
	other := common.Address{0x71}
	s := New()
	s.Approve(token, alice, bob, uint256.NewInt(5))
	s.Approve(other, alice, bob, uint256.NewInt(6))
	s.Approve(token, alice, alice, uint256.NewInt(7))
	s.Approve(token, bob, alice, uint256.NewInt(8))
	s.Approve(token, alice, bob, uint256.NewInt(9))

	require.Equal([]Approval{
		{Token: token, Spender: bob, Amount: uint256.NewInt(9)},
		{Token: other, Spender: bob, Amount: uint256.NewInt(6)},
		{Token: token, Spender: alice, Amount: uint256.NewInt(7)},
	}, s.Approvals(alice))

	snapshot := s.CreateSnapshot()
	s.RevokeApprovals(alice)
	for _, approval := range s.Approvals(alice) {
		require.True(approval.Amount.IsZero(), "allowance of %v over %v survived", approval.Spender, approval.Token)
	}
	require.Equal(uint256.NewInt(8), s.Allowance(token, bob, alice), "grants of other holders are kept")

	s.RestoreSnapshot(snapshot)
	require.Equal(uint256.NewInt(9), s.Allowance(token, alice, bob))
	require.Equal(uint256.NewInt(6), s.Allowance(other, alice, bob))
}

func TestState_RestoreSnapshotUndoesAllModifications(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	code := xcall.NewMockContract(ctrl)

	s := New()
	s.SetBalance(alice, uint256.NewInt(100))
	require.NoError(s.Mint(token, alice, uint256.NewInt(50)))
	s.SetState(alice, alice, common.Hash{1}, common.Hash{2})

	snapshot := s.CreateSnapshot()

	require.NoError(s.Transfer(alice, bob, uint256.NewInt(40)))
	require.NoError(s.TransferToken(token, alice, bob, uint256.NewInt(50)))
	s.Approve(token, alice, bob, uint256.NewInt(7))
	s.SetState(alice, alice, common.Hash{1}, common.Hash{3})
	s.SetState(bob, alice, common.Hash{1}, common.Hash{4})
	s.SetCode(bob, code)
	s.AddLog(Log{Address: bob, Event: testEvent{}})

	s.RestoreSnapshot(snapshot)

	require.Equal(uint256.NewInt(100), s.GetBalance(alice))
	require.True(s.GetBalance(bob).IsZero())
	require.Equal(uint256.NewInt(50), s.TokenBalance(token, alice))
	require.True(s.TokenBalance(token, bob).IsZero())
	require.True(s.Allowance(token, alice, bob).IsZero())
	require.Empty(s.Approvals(alice))
	require.Equal(common.Hash{2}, s.GetState(alice, alice, common.Hash{1}))
	require.Equal(common.Hash{}, s.GetState(bob, alice, common.Hash{1}))
	require.False(s.HasCode(bob))
	require.Empty(s.Logs())
}

func TestState_NestedSnapshotsCanBeRestoredIndependently(t *testing.T) {
	s := New()
	s.SetBalance(alice, uint256.NewInt(1))
	outer := s.CreateSnapshot()
	s.SetBalance(alice, uint256.NewInt(2))
	inner := s.CreateSnapshot()
	s.SetBalance(alice, uint256.NewInt(3))

	s.RestoreSnapshot(inner)
	if got := s.GetBalance(alice).Uint64(); got != 2 {
		t.Errorf("unexpected balance after inner restore: %d", got)
	}
	s.RestoreSnapshot(outer)
	if got := s.GetBalance(alice).Uint64(); got != 1 {
		t.Errorf("unexpected balance after outer restore: %d", got)
	}
}

func TestState_RestoreSnapshot_InvalidSnapshot_IsIgnored(t *testing.T) {
	tests := map[string]Snapshot{
		"negative": -1,
		"future":   10,
	}
	for name, snapshot := range tests {
		t.Run(name, func(t *testing.T) {
			s := New()
			s.SetBalance(alice, uint256.NewInt(1))
			s.RestoreSnapshot(snapshot)
			if got := s.GetBalance(alice).Uint64(); got != 1 {
				t.Errorf("state was modified by invalid snapshot: %d", got)
			}
		})
	}
}

func TestState_Atomic_RevertsOnError(t *testing.T) {
	s := New()
	s.SetBalance(alice, uint256.NewInt(10))

	injected := errors.New("injected")
	err := s.Atomic(func() error {
		s.SetBalance(alice, uint256.NewInt(0))
		s.AddLog(Log{Address: alice, Event: testEvent{}})
		return injected
	})
	if !errors.Is(err, injected) {
		t.Fatalf("unexpected error %v", err)
	}
	if got := s.GetBalance(alice).Uint64(); got != 10 {
		t.Errorf("balance not restored: %d", got)
	}
	if len(s.Logs()) != 0 {
		t.Errorf("logs not restored")
	}

	err = s.Atomic(func() error {
		s.SetBalance(alice, uint256.NewInt(0))
		return nil
	})
	if err != nil || !s.GetBalance(alice).IsZero() {
		t.Errorf("successful update was not kept, err %v", err)
	}
}
