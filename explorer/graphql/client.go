// Package graphql queries the per-chain grants subgraphs.
package graphql

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	"github.com/rs/zerolog"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "graphql").Logger()
}

// ErrGraphQL wraps the errors array of a response when Response.Err is used.
var ErrGraphQL = errors.New("graphql query returned errors")

// Request is the JSON body POSTed to the subgraph.
type Request struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

// Error is one entry of the GraphQL errors array.
type Error struct {
	Message   string `json:"message"`
	Locations []struct {
		Line   int `json:"line"`
		Column int `json:"column"`
	} `json:"locations,omitempty"`
	Path       []any           `json:"path,omitempty"`
	Extensions json.RawMessage `json:"extensions,omitempty"`
}

// Response is the subgraph answer as received. Data and Errors are left for the caller
// to interpret; the body itself is kept and re-encoded unchanged.
type Response struct {
	Data       json.RawMessage `json:"data"`
	Errors     []Error         `json:"errors,omitempty"`
	Extensions json.RawMessage `json:"extensions,omitempty"`

	raw json.RawMessage
}

// Raw returns the response body exactly as the subgraph sent it.
func (r *Response) Raw() json.RawMessage {
	return r.raw
}

// MarshalJSON writes the upstream body when there is one.
func (r Response) MarshalJSON() ([]byte, error) {
	if len(r.raw) > 0 {
		return r.raw, nil
	}
	type plain Response
	return json.Marshal(plain(r))
}

// Decode unmarshals the data envelope into v.
func (r *Response) Decode(v any) error {
	if len(r.Data) == 0 || string(r.Data) == "null" {
		return fmt.Errorf("graphql response has no data")
	}
	if err := json.Unmarshal(r.Data, v); err != nil {
		return fmt.Errorf("failed to decode graphql data: %w", err)
	}
	return nil
}

// Err returns nil when the response carries no errors, otherwise an error wrapping
// ErrGraphQL with every message joined.
func (r *Response) Err() error {
	if len(r.Errors) == 0 {
		return nil
	}
	messages := make([]string, len(r.Errors))
	for i, e := range r.Errors {
		messages[i] = e.Message
	}
	return fmt.Errorf("%w: %s", ErrGraphQL, strings.Join(messages, "; "))
}

// Client sends queries to the endpoint the registry resolves for a chain.
type Client struct {
	registry *chains.Registry
	http     *fetch.Client
}

// NewClient creates a subgraph client.
func NewClient(registry *chains.Registry, opts ...fetch.Option) *Client {
	return &Client{
		registry: registry,
		http:     fetch.NewClient(fetch.ServiceGraphQL, opts...),
	}
}

// Query POSTs {query, variables} to the chain's subgraph. A nil variables map is sent
// as an empty object. Non-2xx statuses come back as *fetch.StatusError.
func (c *Client) Query(ctx context.Context, chainId chains.ChainId, query string, variables map[string]any) (*Response, error) {
	if variables == nil {
		variables = map[string]any{}
	}
	endpoint := c.registry.ResolveEndpoint(chainId)

	log.Debug().
		Str("chain", c.registry.ResolveVerboseName(chainId)).
		Str("endpoint", endpoint).
		Int("variables", len(variables)).
		Msg("Querying subgraph")

	body, err := c.http.PostJSON(ctx, endpoint, Request{Query: query, Variables: variables})
	if err != nil {
		return nil, err
	}

	var response Response
	if err := json.Unmarshal(body, &response); err != nil {
		return nil, fmt.Errorf("failed to parse graphql response: %w", err)
	}
	response.raw = body
	return &response, nil
}
