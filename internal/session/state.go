/**
 * Copyright 2025-present Coinbase Global, Inc.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *  http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

package session

import "fmt"

// State is a deposit session state
type State string

const (
	StateIdle                 State = "idle"
	StateAmountEntry          State = "amount_entry"
	StateGeneratingCharge     State = "generating_charge"
	StateChargeReady          State = "charge_ready"
	StateAwaitingConfirmation State = "awaiting_confirmation"
	StateWatchingBalance      State = "watching_balance"
	StateResolvingReceipt     State = "resolving_receipt"
	StateSuccess              State = "success"
	StateTimeout              State = "timeout"
	StateCancelled            State = "cancelled"
	StateFailed               State = "failed"
)

// validTransitions is the only place legal moves are defined
var validTransitions = map[State][]State{
	StateIdle:                 {StateAmountEntry, StateCancelled},
	StateAmountEntry:          {StateGeneratingCharge, StateCancelled},
	StateGeneratingCharge:     {StateChargeReady, StateAmountEntry, StateCancelled, StateFailed},
	StateChargeReady:          {StateAwaitingConfirmation, StateCancelled, StateFailed},
	StateAwaitingConfirmation: {StateWatchingBalance, StateCancelled, StateFailed},
	StateWatchingBalance:      {StateResolvingReceipt, StateTimeout, StateCancelled, StateFailed},
	StateResolvingReceipt:     {StateSuccess, StateFailed},
	StateCancelled:            {StateAmountEntry},
	StateSuccess:              {}, // Terminal state
	StateTimeout:              {}, // Terminal state
	StateFailed:               {}, // Terminal state
}

// CanTransitionTo checks if transition to new state is allowed
func (s State) CanTransitionTo(next State) bool {
	allowed, exists := validTransitions[s]
	if !exists {
		return false
	}
	for _, state := range allowed {
		if state == next {
			return true
		}
	}
	return false
}

// IsTerminal returns true for states with no way out
func (s State) IsTerminal() bool {
	allowed, exists := validTransitions[s]
	return exists && len(allowed) == 0
}

// chargeLive reports whether a charge is on screen in this state
func (s State) chargeLive() bool {
	return s == StateChargeReady || s == StateAwaitingConfirmation || s == StateWatchingBalance
}

func (s State) ValidateTransition(next State) error {
	if !s.CanTransitionTo(next) {
		return fmt.Errorf("%w from %s to %s", ErrInvalidTransition, s, next)
	}
	return nil
}
