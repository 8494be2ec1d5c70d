package http

import (
	"github.com/gofiber/fiber/v2"
	"github.com/graphql-go/graphql"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/cluster"
	"github.com/Jaylaelike/sky-view-coverage/internal/core/domain"
)

// buildSchema creates the GraphQL schema wired to our services.
func buildSchema(deps *Dependencies) (graphql.Schema, error) {
	geoPointType := graphql.NewObject(graphql.ObjectConfig{
		Name: "GeoPoint",
		Fields: graphql.Fields{
			"lat": &graphql.Field{Type: graphql.Float},
			"lng": &graphql.Field{Type: graphql.Float},
		},
	})

	boundsType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Bounds",
		Fields: graphql.Fields{
			"sw": &graphql.Field{Type: geoPointType},
			"ne": &graphql.Field{Type: geoPointType},
		},
	})

	stationType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Station",
		Fields: graphql.Fields{
			"id":                   &graphql.Field{Type: graphql.String},
			"name":                 &graphql.Field{Type: graphql.String},
			"bounds":               &graphql.Field{Type: boundsType},
			"image_url":            &graphql.Field{Type: graphql.String},
			"compressed_image_url": &graphql.Field{Type: graphql.String},
			"visible":              &graphql.Field{Type: graphql.Boolean},
		},
	})

	technicalType := graphql.NewObject(graphql.ObjectConfig{
		Name: "TechnicalData",
		Fields: graphql.Fields{
			"id":           &graphql.Field{Type: graphql.String},
			"station_name": &graphql.Field{Type: graphql.String},
			"station_type": &graphql.Field{Type: graphql.String},
			"owner":        &graphql.Field{Type: graphql.String},
			"latitude":     &graphql.Field{Type: graphql.Float},
			"longitude":    &graphql.Field{Type: graphql.Float},
			"antenna_type": &graphql.Field{Type: graphql.String},
			"height_m":     &graphql.Field{Type: graphql.Float},
			"power_kw":     &graphql.Field{Type: graphql.Float},
		},
	})

	clusterType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Cluster",
		Fields: graphql.Fields{
			"id":          &graphql.Field{Type: graphql.String},
			"location":    &graphql.Field{Type: geoPointType},
			"point_count": &graphql.Field{Type: graphql.Int},
			"name_sample": &graphql.Field{Type: graphql.NewList(graphql.String)},
			"total_area":  &graphql.Field{Type: graphql.Float},
		},
	})

	queryType := graphql.NewObject(graphql.ObjectConfig{
		Name: "Query",
		Fields: graphql.Fields{
			"stations": &graphql.Field{
				Type:        graphql.NewList(stationType),
				Description: "List all coverage stations",
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					return deps.Stations.List(p.Context)
				},
			},
			"station": &graphql.Field{
				Type:        stationType,
				Description: "Get a coverage station by ID",
				Args: graphql.FieldConfigArgument{
					"id": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					id := p.Args["id"].(string)
					return deps.Stations.GetByID(p.Context, id)
				},
			},
			"searchTechnical": &graphql.Field{
				Type:        graphql.NewList(technicalType),
				Description: "Search transmitter records by name, owner, or type",
				Args: graphql.FieldConfigArgument{
					"query": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.String)},
					"limit": &graphql.ArgumentConfig{Type: graphql.Int, DefaultValue: 20},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					q := p.Args["query"].(string)
					limit := p.Args["limit"].(int)
					return deps.Stations.SearchTechnical(p.Context, q, limit)
				},
			},
			"clusters": &graphql.Field{
				Type:        graphql.NewList(clusterType),
				Description: "Cluster view for a bounding box at a zoom level",
				Args: graphql.FieldConfigArgument{
					"west":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"south": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"east":  &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"north": &graphql.ArgumentConfig{Type: graphql.NewNonNull(graphql.Float)},
					"zoom":  &graphql.ArgumentConfig{Type: graphql.Float, DefaultValue: 10.0},
				},
				Resolve: func(p graphql.ResolveParams) (interface{}, error) {
					stations, err := deps.Stations.List(p.Context)
					if err != nil {
						return nil, err
					}
					vp := domain.Viewport{
						West:  p.Args["west"].(float64),
						South: p.Args["south"].(float64),
						East:  p.Args["east"].(float64),
						North: p.Args["north"].(float64),
						Zoom:  p.Args["zoom"].(float64),
					}
					clusters, _ := cluster.New(deps.Cluster).WithStations(stations).GetClusters(vp, vp.Zoom)
					return clusters, nil
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
