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
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
)

// Snapshot identifies a point in the modification history of a State.
type Snapshot int

// Log is an event emitted by the code running at Address.
type Log struct {
	Address common.Address
	Event   xcall.Event
}

type tokenKey struct {
	token  common.Address
	holder common.Address
}

type allowanceKey struct {
	token   common.Address
	holder  common.Address
	spender common.Address
}

// Approval is an allowance granted to Spender over the holder's Token.
type Approval struct {
	Token   common.Address
	Spender common.Address
	Amount  *uint256.Int
}

// storageKey addresses a slot of the storage an account keeps for the code
// loaded from a specific address. For ordinary calls account and code are
// the same address.
type storageKey struct {
	account common.Address
	code    common.Address
	slot    common.Hash
}

// State is the world state of a host chain: native balances, deployed code,
// a token ledger, contract storage, and emitted logs. Every modification is
// journaled and can be rolled back to an earlier Snapshot.
// State is not safe for concurrent use.
type State struct {
	balances   map[common.Address]*uint256.Int
	code       map[common.Address]xcall.Contract
	tokens     map[tokenKey]*uint256.Int
	allowances map[allowanceKey]*uint256.Int
	grants     map[common.Address][]allowanceKey // allowances by holder, in grant order
	storage    map[storageKey]common.Hash
	logs       []Log
	journal    []journalEntry
}

func New() *State {
	return &State{
		balances:   map[common.Address]*uint256.Int{},
		code:       map[common.Address]xcall.Contract{},
		tokens:     map[tokenKey]*uint256.Int{},
		allowances: map[allowanceKey]*uint256.Int{},
		grants:     map[common.Address][]allowanceKey{},
		storage:    map[storageKey]common.Hash{},
	}
}

// CreateSnapshot marks the current point of the modification history.
func (s *State) CreateSnapshot() Snapshot {
	return Snapshot(len(s.journal))
}

// RestoreSnapshot undoes every modification made since the given snapshot.
// Unknown snapshots are ignored.
func (s *State) RestoreSnapshot(snapshot Snapshot) {
	if snapshot < 0 || int(snapshot) > len(s.journal) {
		return
	}
	for i := len(s.journal) - 1; i >= int(snapshot); i-- {
		s.journal[i].revert(s)
	}
	s.journal = s.journal[:snapshot]
}

// Atomic runs fn and restores the state to its previous content if fn fails.
func (s *State) Atomic(fn func() error) (err error) {
	snapshot := s.CreateSnapshot()
	defer func() {
		if err != nil {
			s.RestoreSnapshot(snapshot)
		}
	}()
	return fn()
}

// --- native balances ---

func (s *State) GetBalance(account common.Address) *uint256.Int {
	if balance, found := s.balances[account]; found {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int)
}

func (s *State) SetBalance(account common.Address, value *uint256.Int) {
	s.journal = append(s.journal, balanceChange{account, s.balances[account]})
	s.balances[account] = new(uint256.Int).Set(value)
}

// AddBalance credits value to the account.
func (s *State) AddBalance(account common.Address, value *uint256.Int) {
	if value.IsZero() {
		return
	}
	s.SetBalance(account, new(uint256.Int).Add(s.GetBalance(account), value))
}

// Transfer moves native value between accounts.
func (s *State) Transfer(from, to common.Address, value *uint256.Int) error {
	if value == nil || value.IsZero() {
		return nil
	}
	balance := s.GetBalance(from)
	if balance.Cmp(value) < 0 {
		return fmt.Errorf("%w: %v has %v, needs %v", xcall.ErrInsufficientBalance, from, balance, value)
	}
	if from == to {
		return nil
	}
	s.SetBalance(from, balance.Sub(balance, value))
	s.AddBalance(to, value)
	return nil
}

// --- code ---

func (s *State) GetCode(account common.Address) xcall.Contract {
	return s.code[account]
}

func (s *State) HasCode(account common.Address) bool {
	return s.code[account] != nil
}

func (s *State) SetCode(account common.Address, code xcall.Contract) {
	s.journal = append(s.journal, codeChange{account, s.code[account]})
	if code == nil {
		delete(s.code, account)
		return
	}
	s.code[account] = code
}

// --- token ledger ---

func (s *State) TokenBalance(token, holder common.Address) *uint256.Int {
	if balance, found := s.tokens[tokenKey{token, holder}]; found {
		return new(uint256.Int).Set(balance)
	}
	return new(uint256.Int)
}

func (s *State) setTokenBalance(token, holder common.Address, value *uint256.Int) {
	key := tokenKey{token, holder}
	s.journal = append(s.journal, tokenChange{key, s.tokens[key]})
	s.tokens[key] = new(uint256.Int).Set(value)
}

// Mint creates new tokens owned by to. A nil amount mints nothing.
func (s *State) Mint(token, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		return nil
	}
	balance := s.TokenBalance(token, to)
	if _, overflow := balance.AddOverflow(balance, amount); overflow {
		return fmt.Errorf("token %v balance overflow for %v", token, to)
	}
	s.setTokenBalance(token, to, balance)
	return nil
}

// TransferToken moves tokens owned by from to the account to.
func (s *State) TransferToken(token, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	balance := s.TokenBalance(token, from)
	if balance.Cmp(amount) < 0 {
		return fmt.Errorf("%w: %v holds %v of token %v, needs %v", xcall.ErrInsufficientBalance, from, balance, token, amount)
	}
	if from == to || amount.IsZero() {
		return nil
	}
	s.setTokenBalance(token, from, balance.Sub(balance, amount))
	return s.Mint(token, to, amount)
}

func (s *State) Allowance(token, holder, spender common.Address) *uint256.Int {
	if allowance, found := s.allowances[allowanceKey{token, holder, spender}]; found {
		return new(uint256.Int).Set(allowance)
	}
	return new(uint256.Int)
}

// Approve sets the amount of tokens of holder spender may move.
func (s *State) Approve(token, holder, spender common.Address, amount *uint256.Int) {
	key := allowanceKey{token, holder, spender}
	prev, found := s.allowances[key]
	if !found {
		s.journal = append(s.journal, grantAdded{holder})
		s.grants[holder] = append(s.grants[holder], key)
	}
	s.journal = append(s.journal, allowanceChange{key, prev})
	s.allowances[key] = new(uint256.Int).Set(amount)
}

// Approvals lists the tokens and spenders holder has ever granted an
// allowance to, in the order they were first approved.
func (s *State) Approvals(holder common.Address) []Approval {
	res := make([]Approval, 0, len(s.grants[holder]))
	for _, key := range s.grants[holder] {
		res = append(res, Approval{Token: key.token, Spender: key.spender, Amount: s.Allowance(key.token, holder, key.spender)})
	}
	return res
}

// RevokeApprovals resets every non-zero allowance granted by holder.
func (s *State) RevokeApprovals(holder common.Address) {
	for _, key := range s.grants[holder] {
		if s.allowances[key].IsZero() {
			continue
		}
		s.Approve(key.token, holder, key.spender, new(uint256.Int))
	}
}

// TransferTokenFrom moves tokens of from on behalf of spender, consuming
// the allowance granted by from to spender. A holder moving its own tokens
// needs no allowance.
func (s *State) TransferTokenFrom(token, spender, from, to common.Address, amount *uint256.Int) error {
	if amount == nil {
		amount = new(uint256.Int)
	}
	if spender != from {
		allowance := s.Allowance(token, from, spender)
		if allowance.Cmp(amount) < 0 {
			return fmt.Errorf("%w: %v may spend %v of %v's token %v, needs %v",
				xcall.ErrInsufficientAllowance, spender, allowance, from, token, amount)
		}
		if err := s.TransferToken(token, from, to, amount); err != nil {
			return err
		}
		s.Approve(token, from, spender, allowance.Sub(allowance, amount))
		return nil
	}
	return s.TransferToken(token, from, to, amount)
}

// --- storage ---

// GetState reads a slot of the storage account keeps for the given code.
func (s *State) GetState(account, code common.Address, slot common.Hash) common.Hash {
	return s.storage[storageKey{account, code, slot}]
}

func (s *State) SetState(account, code common.Address, slot, value common.Hash) {
	key := storageKey{account, code, slot}
	s.journal = append(s.journal, storageChange{key, s.storage[key]})
	if value == (common.Hash{}) {
		delete(s.storage, key)
		return
	}
	s.storage[key] = value
}

// --- logs ---

func (s *State) AddLog(log Log) {
	s.journal = append(s.journal, logChange{})
	s.logs = append(s.logs, log)
}

// Logs returns all logs emitted so far, in emission order.
func (s *State) Logs() []Log {
	res := make([]Log, len(s.logs))
	copy(res, s.logs)
	return res
}
