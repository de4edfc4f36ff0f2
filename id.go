package payagent

import "github.com/xraph/payagent/id"

// ID is the primary identifier type for settlement records.
type ID = id.ID

// Prefix identifies the record type encoded in a TypeID.
type Prefix = id.Prefix
