package models

import "errors"

var ErrLedgerImmutable = errors.New("points ledger entries are immutable")
