package procession

import "github.com/xraph/procession/id"

// ID is the primary identifier type for all Procession entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
