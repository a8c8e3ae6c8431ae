package idgen

import "github.com/rs/xid"

// Generator creates sortable unique identifiers for command correlation.
type Generator struct{}

// NewID returns a new globally unique id.
func (Generator) NewID() string {
	return xid.New().String()
}
