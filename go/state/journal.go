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
	"github.com/ethereum/go-ethereum/common"
	"github.com/holiman/uint256"
	"github.com/panoptisDev/xcall/go/xcall"
)

// journalEntry is a modification of the state that can be undone.
type journalEntry interface {
	revert(*State)
}

type (
	balanceChange struct {
		account common.Address
		prev    *uint256.Int
	}
	codeChange struct {
		account common.Address
		prev    xcall.Contract
	}
	tokenChange struct {
		key  tokenKey
		prev *uint256.Int
	}
	allowanceChange struct {
		key  allowanceKey
		prev *uint256.Int
	}
	grantAdded struct {
		holder common.Address
	}
	storageChange struct {
		key  storageKey
		prev common.Hash
	}
	logChange struct{}
)

func (c balanceChange) revert(s *State) {
	if c.prev == nil {
		delete(s.balances, c.account)
	} else {
		s.balances[c.account] = c.prev
	}
}

func (c codeChange) revert(s *State) {
	if c.prev == nil {
		delete(s.code, c.account)
	} else {
		s.code[c.account] = c.prev
	}
}

func (c tokenChange) revert(s *State) {
	if c.prev == nil {
		delete(s.tokens, c.key)
	} else {
		s.tokens[c.key] = c.prev
	}
}

func (c allowanceChange) revert(s *State) {
	if c.prev == nil {
		delete(s.allowances, c.key)
	} else {
		s.allowances[c.key] = c.prev
	}
}

func (c grantAdded) revert(s *State) {
	grants := s.grants[c.holder]
	if len(grants) <= 1 {
		delete(s.grants, c.holder)
		return
	}
	s.grants[c.holder] = grants[:len(grants)-1]
}

func (c storageChange) revert(s *State) {
	if c.prev == (common.Hash{}) {
		delete(s.storage, c.key)
	} else {
		s.storage[c.key] = c.prev
	}
}

func (logChange) revert(s *State) {
	s.logs = s.logs[:len(s.logs)-1]
}
