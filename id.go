package toil

import "github.com/relicore/toil/id"

// ID is the primary identifier type for all toil entities.
type ID = id.ID

// Prefix identifies the entity type encoded in a TypeID.
type Prefix = id.Prefix
