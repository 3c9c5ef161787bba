// Copyright (c) 2024 EverX Labs
//
// Use of this software is governed by the Business Source License included
// in the LICENSE file.
//
// Change Date: 2028-4-16
//
// On the date above, in accordance with the Business Source License, use of
// this software will be governed by the GNU Lesser General Public License v3.

package block

import (
	"fmt"

	"github.com/everx-labs/ever-block-go/common"
)

// Record is the common part of every parsed record. Hash is the hash of the
// cell the record was decoded from, kept for traceability. Pruned marks a
// hash-only stub extracted from a proof; such a record carries no decoded
// fields. Err holds a schema error localized to this record; the rest of the
// parse result remains valid.
type Record struct {
	Hash   common.Hash
	Pruned bool
	Err    error
}

// schemaErr wraps a decoding failure into the record-local schema error.
func schemaErr(what string, err error) error {
	return fmt.Errorf("%w: %s: %v", common.ErrSchema, what, err)
}

// schemaErrf builds a record-local schema error from a description.
func schemaErrf(format string, args ...any) error {
	return fmt.Errorf("%w: %s", common.ErrSchema, fmt.Sprintf(format, args...))
}

// AccountStatus is the lifecycle state of an account, as recorded in account
// records and transaction status fields.
type AccountStatus byte

const (
	StatusUninit AccountStatus = iota
	StatusFrozen
	StatusActive
	StatusNonExist
)

func (s AccountStatus) String() string {
	switch s {
	case StatusUninit:
		return "uninit"
	case StatusFrozen:
		return "frozen"
	case StatusActive:
		return "active"
	case StatusNonExist:
		return "nonexist"
	}
	return fmt.Sprintf("status(%d)", byte(s))
}

// ProcessingInfo ties a message to the transaction that processed or created
// it, with the logical time of that transaction. Inbound marks the message a
// transaction consumed; outbound messages were produced by it.
type ProcessingInfo struct {
	MessageHash     common.Hash
	TransactionHash common.Hash
	LT              uint64
	Inbound         bool
}
