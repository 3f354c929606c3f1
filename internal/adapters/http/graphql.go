package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/meridianlabs/meridian/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"min_lon": &graphql.Field{Type: graphql.Float},
			"min_lat": &graphql.Field{Type: graphql.Float},
			"max_lon": &graphql.Field{Type: graphql.Float},
			"max_lat": &graphql.Field{Type: graphql.Float},
		},
	})

	shardType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Shard",
		Fields: graphql.Fields{
			"id":        &graphql.Field{Type: graphql.String},
			"name":      &graphql.Field{Type: graphql.String},
			"bounds":    &graphql.Field{Type: boundsType},
			"endpoint":  &graphql.Field{Type: graphql.String},
			"readiness": &graphql.Field{Type: graphql.String},
			"artifact":  &graphql.Field{Type: graphql.String},
		},
	})

	buildRunType := graphql.NewObject(graphql.ObjectConfig{
		Name: "BuildRun",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"shard_id":    &graphql.Field{Type: graphql.String},
			"mode":        &graphql.Field{Type: graphql.String},
			"state":       &graphql.Field{Type: graphql.String},
			"started_at":  &graphql.Field{Type: graphql.DateTime},
			"finished_at": &graphql.Field{Type: graphql.DateTime},
			"failed_job":  &graphql.Field{Type: graphql.String},
			"error":       &graphql.Field{Type: graphql.String},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"shards": &graphql.Field{
				Type:        graphql.NewList(shardType),
				Description: "List all shards in the catalog",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Registry.All(), nil
				},
			},
			"shard": &graphql.Field{
				Type:        shardType,
				Description: "Get a shard by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Registry.Get(id)
				},
			},
			"shardAt": &graphql.Field{
				Type:        graphql.NewList(shardType),
				Description: "Shards covering a coordinate, catalog order",
				Args: graphql.FieldConfigArgument{
					"lon": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"lat": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					lon := p.Args["lon"].(float64)
					lat := p.Args["lat"].(float64)
					return deps.Registry.Lookup(domain.Coordinate{Lon: lon, Lat: lat})
				},
			},
			"builds": &graphql.Field{
				Type:        graphql.NewList(buildRunType),
				Description: "Recent build pipeline runs",
				Args: graphql.FieldConfigArgument{
					"shard": &graphql.ArgumentConfig{Type: graphql.String, DefaultValue: ""},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					shard := p.Args["shard"].(string)
					limit := p.Args["limit"].(int)
					return deps.Builds.ListRuns(p.Context, shard, limit)
				},
			},
			"build": &graphql.Field{
				Type:        buildRunType,
				Description: "Get a build run by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Builds.GetRun(p.Context, id)
				},
			},
		},
	})

	return graphql.NewSchema(graphql.SchemaConfig{
		Query: queryType,
	})
}

// GraphQLHandler serves the GraphQL endpoint.
func GraphQLHandler(deps *Dependencies) fiber.Handler {
	schema, err := buildSchema(deps)
	if err != nil {
		// This would be a programming error in the schema definition
		panic("graphql schema build: " + err.Error())
	}

	type gqlRequest struct {
		Query         string                 `json:"query"`
		OperationName string                 `json:"operationName"`
		Variables     map[string]interface{} `json:"variables"`
	}

	return func(c *fiber.Ctx) error {
		var req gqlRequest
		if err := c.BodyParser(&req); err != nil {
			return c.Status(400).JSON(fiber.Map{"error": "invalid request body"})
		}

		result := graphql.Do(graphql.Params{
			Schema:         schema,
			RequestString:  req.Query,
			VariableValues: req.Variables,
			OperationName:  req.OperationName,
			Context:        c.Context(),
		})

		return c.JSON(result)
	}
}
