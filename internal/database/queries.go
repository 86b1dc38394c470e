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

package database

const (
	schemaReceipts = `
	CREATE TABLE IF NOT EXISTS receipts (
		id TEXT PRIMARY KEY,
		tx_hash TEXT NOT NULL UNIQUE,
		wallet_address TEXT NOT NULL,
		amount TEXT NOT NULL,
		explorer_url TEXT NOT NULL DEFAULT '',
		tx_timestamp INTEGER NOT NULL,
		session_id TEXT NOT NULL DEFAULT '',
		charge_id TEXT NOT NULL DEFAULT '',
		created_at INTEGER NOT NULL,
		expires_at INTEGER NOT NULL,
		consumed_at INTEGER
	);

	-- Create index for wallet lookups
	CREATE INDEX IF NOT EXISTS idx_receipts_wallet ON receipts(wallet_address, created_at);
	-- Create index for purging
	CREATE INDEX IF NOT EXISTS idx_receipts_expires_at ON receipts(expires_at);
	`

	// Receipt queries
	queryUpsertReceipt = `
		INSERT INTO receipts (
			id, tx_hash, wallet_address, amount, explorer_url, tx_timestamp,
			session_id, charge_id, created_at, expires_at, consumed_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, NULL)
		ON CONFLICT(tx_hash) DO UPDATE SET
			wallet_address = excluded.wallet_address,
			amount = excluded.amount,
			explorer_url = excluded.explorer_url,
			tx_timestamp = excluded.tx_timestamp,
			session_id = excluded.session_id,
			charge_id = excluded.charge_id,
			created_at = excluded.created_at,
			expires_at = excluded.expires_at,
			consumed_at = NULL`

	queryGetReceipt = `
		SELECT tx_hash, wallet_address, amount, explorer_url, tx_timestamp,
		       session_id, charge_id, created_at, expires_at, consumed_at
		FROM receipts
		WHERE tx_hash = ?`

	queryConsumeReceipt = `
		UPDATE receipts
		SET consumed_at = ?
		WHERE tx_hash = ? AND consumed_at IS NULL AND expires_at > ?`

	queryListReceipts = `
		SELECT tx_hash, wallet_address, amount, explorer_url, tx_timestamp,
		       session_id, charge_id, created_at, expires_at, consumed_at
		FROM receipts
		WHERE LOWER(wallet_address) = LOWER(?)
		ORDER BY created_at DESC
		LIMIT ?`

	queryPurgeExpired = `
		DELETE FROM receipts WHERE expires_at <= ?`
)
