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

package chain

import (
	"context"
	"fmt"
	"math/big"
	"strings"
	"sync"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

const erc20ABI = `[
  {"name":"balanceOf","type":"function","stateMutability":"view",
   "inputs":[{"name":"owner","type":"address"}],
   "outputs":[{"name":"","type":"uint256"}]},
  {"name":"decimals","type":"function","stateMutability":"view",
   "inputs":[],
   "outputs":[{"name":"","type":"uint8"}]}
]`

// Caller is the subset of ethclient.Client the token reader needs
type Caller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	ChainID(ctx context.Context) (*big.Int, error)
}

// TokenBalanceReader reads an ERC-20 balance straight from the target chain.
// It satisfies the watcher's balance source so credits can be detected
// on-chain instead of through the backend.
type TokenBalanceReader struct {
	caller   Caller
	token    common.Address
	abi      abi.ABI
	once     sync.Once
	decimals int32
	decErr   error
	close    func()
}

// Dial connects to rpcURL and returns a reader for the token contract
func Dial(rpcURL, tokenContract string) (*TokenBalanceReader, error) {
	if rpcURL == "" {
		return nil, fmt.Errorf("chain RPC URL is required for on-chain balance reads")
	}
	client, err := ethclient.Dial(rpcURL)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to chain RPC: %w", err)
	}
	reader, err := NewTokenBalanceReader(client, tokenContract)
	if err != nil {
		client.Close()
		return nil, err
	}
	reader.close = client.Close
	return reader, nil
}

func NewTokenBalanceReader(caller Caller, tokenContract string) (*TokenBalanceReader, error) {
	if !IsValidAddress(tokenContract) {
		return nil, fmt.Errorf("invalid token contract address: %q", tokenContract)
	}
	parsed, err := abi.JSON(strings.NewReader(erc20ABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse ERC-20 ABI: %w", err)
	}
	return &TokenBalanceReader{
		caller: caller,
		token:  common.HexToAddress(tokenContract),
		abi:    parsed,
	}, nil
}

// VerifyChain checks the RPC endpoint serves the expected chain id
func (r *TokenBalanceReader) VerifyChain(ctx context.Context, expected int64) error {
	id, err := r.caller.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("failed to get chain id: %w", err)
	}
	if id.Int64() != expected {
		return fmt.Errorf("RPC serves chain %s, expected %d", id.String(), expected)
	}
	return nil
}

// GetBalance returns the token balance of address in whole token units
func (r *TokenBalanceReader) GetBalance(ctx context.Context, address string) (decimal.Decimal, error) {
	if !IsValidAddress(address) {
		return decimal.Zero, fmt.Errorf("invalid address: %q", address)
	}

	decimals, err := r.tokenDecimals(ctx)
	if err != nil {
		return decimal.Zero, err
	}

	out, err := r.call(ctx, "balanceOf", common.HexToAddress(address))
	if err != nil {
		return decimal.Zero, err
	}
	raw, ok := out[0].(*big.Int)
	if !ok {
		return decimal.Zero, fmt.Errorf("unexpected balanceOf result type %T", out[0])
	}

	balance := decimal.NewFromBigInt(raw, -decimals)
	zap.L().Debug("Read on-chain token balance",
		zap.String("address", address),
		zap.String("token", r.token.Hex()),
		zap.String("balance", balance.String()))
	return balance, nil
}

func (r *TokenBalanceReader) Close() {
	if r.close != nil {
		r.close()
	}
}

func (r *TokenBalanceReader) tokenDecimals(ctx context.Context) (int32, error) {
	r.once.Do(func() {
		out, err := r.call(ctx, "decimals")
		if err != nil {
			r.decErr = err
			return
		}
		dec, ok := out[0].(uint8)
		if !ok {
			r.decErr = fmt.Errorf("unexpected decimals result type %T", out[0])
			return
		}
		r.decimals = int32(dec)
	})
	return r.decimals, r.decErr
}

func (r *TokenBalanceReader) call(ctx context.Context, method string, args ...any) ([]any, error) {
	data, err := r.abi.Pack(method, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to pack %s: %w", method, err)
	}
	raw, err := r.caller.CallContract(ctx, ethereum.CallMsg{To: &r.token, Data: data}, nil)
	if err != nil {
		return nil, fmt.Errorf("%s call failed: %w", method, err)
	}
	out, err := r.abi.Unpack(method, raw)
	if err != nil {
		return nil, fmt.Errorf("failed to unpack %s: %w", method, err)
	}
	if len(out) == 0 {
		return nil, fmt.Errorf("empty %s result", method)
	}
	return out, nil
}
