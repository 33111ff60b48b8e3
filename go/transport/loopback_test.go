// Copyright (c) 2025 Pano Operations Ltd
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file and at panoptisDev.com/bsl11.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package transport

import (
	"context"
	"errors"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/state"
	"github.com/panoptisDev/xcall/go/vm"
	"github.com/panoptisDev/xcall/go/xcall"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

var (
	routerA  = common.Address{0xaa}
	routerB  = common.Address{0xbb}
	sender   = common.Address{0x01}
	receiver = common.Address{0x02}
	token    = common.Address{0x70}
)

var testFees = FeeSchedule{
	BaseFee:  uint256.NewInt(1_000),
	ByteFee:  uint256.NewInt(10),
	GasPrice: uint256.NewInt(2),
}

func newLoopback(t *testing.T) (*Loopback, *Endpoint, *Endpoint) {
	t.Helper()
	loopback := NewLoopback(testFees, nil)
	a, err := loopback.Register(1, vm.NewHost(state.New(), vm.BlockContext{}), routerA)
	require.NoError(t, err)
	b, err := loopback.Register(2, vm.NewHost(state.New(), vm.BlockContext{}), routerB)
	require.NoError(t, err)
	return loopback, a, b
}

func TestFeeSchedule_Fee(t *testing.T) {
	tests := map[string]struct {
		fees FeeSchedule
		size int
		gas  uint64
		want uint64
	}{
		"zero schedule": {fees: FeeSchedule{}, size: 100, gas: 100, want: 0},
		"base only":     {fees: FeeSchedule{BaseFee: uint256.NewInt(5)}, size: 100, gas: 100, want: 5},
		"full":          {fees: testFees, size: 3, gas: 7, want: 1_000 + 30 + 14},
	}
	for name, test := range tests {
		t.Run(name, func(t *testing.T) {
			if got := test.fees.Fee(test.size, test.gas); got.Uint64() != test.want {
				t.Errorf("unexpected fee %v, want %d", got, test.want)
			}
		})
	}
}

func TestLoopback_Register_RejectsDuplicateChains(t *testing.T) {
	loopback, _, _ := newLoopback(t)
	if _, err := loopback.Register(1, vm.NewHost(state.New(), vm.BlockContext{}), routerA); !errors.Is(err, ErrDuplicateChain) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestEndpoint_EstimateFee_UnknownDestinationFails(t *testing.T) {
	_, a, _ := newLoopback(t)
	_, err := a.EstimateFee(context.Background(), xcall.Envelope{DestinationChain: 9})
	if !errors.Is(err, ErrUnknownChain) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestEndpoint_Send_RejectsInsufficientFee(t *testing.T) {
	loopback, a, _ := newLoopback(t)
	envelope := xcall.Envelope{DestinationChain: 2, Receiver: receiver, Payload: []byte{1}, GasLimit: 10}
	fee, err := a.EstimateFee(context.Background(), envelope)
	require.NoError(t, err)

	_, err = a.Send(context.Background(), sender, envelope, new(uint256.Int).SubUint64(fee, 1))
	require.ErrorIs(t, err, ErrFeeTooLow)
	require.Zero(t, loopback.Pending())
}

func TestLoopback_DeliverAll_MintsTokensBeforeCallingTheReceiver(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	loopback, a, b := newLoopback(t)
	mock := NewMockReceiver(ctrl)
	b.Attach(receiver, mock)

	envelope := xcall.Envelope{
		DestinationChain: 2,
		Receiver:         receiver,
		Payload:          []byte("payload"),
		Tokens:           []xcall.TokenAmount{{Token: token, Amount: uint256.NewInt(100)}},
		GasLimit:         200_000,
	}
	fee, err := a.EstimateFee(context.Background(), envelope)
	require.NoError(err)
	id, err := a.Send(context.Background(), sender, envelope, fee)
	require.NoError(err)
	require.Equal(MessageID(1, 2, 0, sender, envelope.Payload), id)
	require.Equal(1, loopback.Pending())

	destination := b.host.State()
	mock.EXPECT().Receive(routerB, gomock.Any()).DoAndReturn(func(caller common.Address, msg xcall.Message) error {
		require.Equal(id, msg.ID)
		require.Equal(xcall.ChainID(1), msg.SourceChain)
		require.Equal(sender, msg.Sender)
		require.Equal(envelope.Payload, msg.Payload)
		require.Equal(uint64(200_000), msg.GasLimit)
		require.Equal(uint256.NewInt(100), destination.TokenBalance(token, receiver))
		return nil
	})

	delivered, err := loopback.DeliverAll(context.Background())
	require.NoError(err)
	require.Equal(1, delivered)
	require.Zero(loopback.Pending())
	require.True(destination.HasCode(token))

	// delivered exactly once
	delivered, err = loopback.DeliverAll(context.Background())
	require.NoError(err)
	require.Zero(delivered)
}

func TestLoopback_DeliverAll_RejectedDeliveryIsRolledBack(t *testing.T) {
	require := require.New(t)
	ctrl := gomock.NewController(t)
	loopback, a, b := newLoopback(t)
	mock := NewMockReceiver(ctrl)
	b.Attach(receiver, mock)

	envelope := xcall.Envelope{
		DestinationChain: 2,
		Receiver:         receiver,
		Tokens:           []xcall.TokenAmount{{Token: token, Amount: uint256.NewInt(5)}},
	}
	_, err := a.Send(context.Background(), sender, envelope, testFees.BaseFee)
	require.NoError(err)

	injected := errors.New("rejected")
	mock.EXPECT().Receive(gomock.Any(), gomock.Any()).Return(injected)
	delivered, err := loopback.DeliverAll(context.Background())
	require.ErrorIs(err, injected)
	require.Zero(delivered)
	require.True(b.host.State().TokenBalance(token, receiver).IsZero())
	require.False(b.host.State().HasCode(token))
}

func TestLoopback_DeliverAll_MissingReceiverIsReported(t *testing.T) {
	loopback, a, _ := newLoopback(t)
	_, err := a.Send(context.Background(), sender, xcall.Envelope{DestinationChain: 2, Receiver: receiver}, testFees.BaseFee)
	require.NoError(t, err)
	_, err = loopback.DeliverAll(context.Background())
	if !errors.Is(err, ErrUnknownReceiver) {
		t.Errorf("unexpected error %v", err)
	}
}

func TestLoopback_DeliverAll_KeepsSendOrderAndIncrementsNonces(t *testing.T) {
	ctrl := gomock.NewController(t)
	loopback, a, b := newLoopback(t)
	mock := NewMockReceiver(ctrl)
	b.Attach(receiver, mock)

	var ids []common.Hash
	for i := byte(0); i < 3; i++ {
		id, err := a.Send(context.Background(), sender, xcall.Envelope{
			DestinationChain: 2,
			Receiver:         receiver,
			Payload:          []byte{i},
		}, uint256.NewInt(10_000))
		require.NoError(t, err)
		ids = append(ids, id)
	}
	if ids[0] == ids[1] || ids[1] == ids[2] {
		t.Fatalf("message ids not unique: %v", ids)
	}

	var calls []any
	for _, id := range ids {
		id := id
		calls = append(calls, mock.EXPECT().Receive(routerB, gomock.Any()).DoAndReturn(
			func(_ common.Address, msg xcall.Message) error {
				if msg.ID != id {
					t.Errorf("unexpected message %v, want %v", msg.ID, id)
				}
				return nil
			}))
	}
	gomock.InOrder(calls...)

	if delivered, err := loopback.DeliverAll(context.Background()); err != nil || delivered != 3 {
		t.Errorf("unexpected result %d, %v", delivered, err)
	}
}

func TestLoopback_DeliverAll_StopsOnCanceledContext(t *testing.T) {
	loopback, a, _ := newLoopback(t)
	_, err := a.Send(context.Background(), sender, xcall.Envelope{DestinationChain: 2, Receiver: receiver}, testFees.BaseFee)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := loopback.DeliverAll(ctx); !errors.Is(err, context.Canceled) {
		t.Errorf("unexpected error %v", err)
	}
	if got := loopback.Pending(); got != 1 {
		t.Errorf("message should stay queued, pending %d", got)
	}
}

func TestMessageID_HashesAllFields(t *testing.T) {
	payload := []byte("payload")
	want := crypto.Keccak256Hash(
		[]byte{0, 0, 0, 0, 0, 0, 0, 1},
		[]byte{0, 0, 0, 0, 0, 0, 0, 2},
		[]byte{0, 0, 0, 0, 0, 0, 0, 3},
		sender[:],
		payload,
	)
	if got := MessageID(1, 2, 3, sender, payload); got != want {
		t.Errorf("unexpected id %v, want %v", got, want)
	}
	if MessageID(1, 2, 4, sender, payload) == want {
		t.Errorf("nonce does not enter the id")
	}
}
