// Package graphql exposes a read-only GraphQL query over an Engine: a
// single `get(key)` field returning whether the key is present and, if
// so, its value.
package graphql

import (
	"fmt"

	"github.com/graphql-go/graphql"

	"github.com/mnohosten/lsmdb/pkg/engine"
)

// entryType is the result of a get query.
var entryType = graphql.NewObject(graphql.ObjectConfig{
	Name:        "Entry",
	Description: "The result of looking up a key",
	Fields: graphql.Fields{
		"found": &graphql.Field{
			Type:        graphql.NewNonNull(graphql.Boolean),
			Description: "Whether the key is present",
		},
		"value": &graphql.Field{
			Type:        graphql.String,
			Description: "The stored value; the empty string when found is false",
		},
	},
})

// Schema builds the GraphQL schema over eng.
func Schema(eng *engine.Engine) (graphql.Schema, error) {
	resolver := &resolver{eng: eng}

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name:        "Query",
		Description: "Root query type for the key/value store",
		Fields: graphql.Fields{
			"get": &graphql.Field{
				Type:        graphql.NewNonNull(entryType),
				Description: "Look up a key",
				Args: graphql.FieldConfigArgument{
					"key": &graphql.ArgumentConfig{
						Type:        graphql.NewNonNull(graphql.String),
						Description: "Key to look up",
					},
				},
				Resolve: resolver.Get,
			},
		},
	})

	schema, err := graphql.NewSchema(graphql.SchemaConfig{Query: queryType})
	if err != nil {
		return graphql.Schema{}, fmt.Errorf("graphql: building schema: %w", err)
	}
	return schema, nil
}
