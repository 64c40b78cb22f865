package graphql

import (
	"github.com/graphql-go/graphql"

	"github.com/mnohosten/lsmdb/pkg/engine"
)

// resolver holds the engine every field resolves against.
type resolver struct {
	eng *engine.Engine
}

// entry is the shape returned for the get query.
type entry struct {
	Found bool   `json:"found"`
	Value string `json:"value,omitempty"`
}

// Get resolves the get(key) query.
func (r *resolver) Get(p graphql.ResolveParams) (interface{}, error) {
	key, _ := p.Args["key"].(string)

	val, ok, err := r.eng.Get([]byte(key))
	if err != nil {
		return nil, err
	}
	if !ok {
		return entry{Found: false}, nil
	}
	return entry{Found: true, Value: string(val)}, nil
}
