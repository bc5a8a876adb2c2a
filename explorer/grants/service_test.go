package grants

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/denom"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/fetch"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/graphql"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/ipfs"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"
)

const (
	operator = "0xB8cEF765721A6da910f14Be93e7684e9a3714123"
	dai      = "0x6b175474e89094c44da98b954eedeac495271d0f"
	weth     = "0xc02aaa39b223fe8d0a0e5c4f27ead9083c756cc2"
)

// backend serves subgraph, IPFS and price requests from canned documents.
type backend struct {
	mu        sync.Mutex
	queries   []graphql.Request
	subgraph  map[string]string
	documents map[string]string
	prices    map[string]string
	ipfsCode  int
}

func (b *backend) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch {
	case r.Method == http.MethodPost && r.URL.Path == "/subgraph":
		var req graphql.Request
		_ = json.NewDecoder(r.Body).Decode(&req)
		b.mu.Lock()
		b.queries = append(b.queries, req)
		b.mu.Unlock()
		for name, body := range b.subgraph {
			if strings.Contains(req.Query, "query "+name+"(") {
				_, _ = w.Write([]byte(body))
				return
			}
		}
		_, _ = w.Write([]byte(`{"data":{}}`))
	case strings.HasPrefix(r.URL.Path, "/ipfs/"):
		if b.ipfsCode != 0 {
			w.WriteHeader(b.ipfsCode)
			return
		}
		doc, ok := b.documents[strings.TrimPrefix(r.URL.Path, "/ipfs/")]
		if !ok {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_, _ = w.Write([]byte(doc))
	case strings.HasPrefix(r.URL.Path, "/coins/"):
		for token, body := range b.prices {
			if strings.Contains(r.URL.Path, token) {
				_, _ = w.Write([]byte(body))
				return
			}
		}
		_, _ = w.Write([]byte(`{"prices":[]}`))
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

func newTestService(t *testing.T, b *backend) *Service {
	t.Helper()
	server := httptest.NewServer(b)
	t.Cleanup(server.Close)

	registry := chains.NewRegistry(chains.EndpointConfig{
		Endpoints: map[chains.ChainId]string{
			chains.Mainnet:       server.URL + "/subgraph",
			chains.FantomTestnet: server.URL + "/subgraph",
		},
	})
	prices := pricequery.NewClient(registry, pricequery.ClientConfig{BaseURL: server.URL})
	return NewService(
		graphql.NewClient(registry),
		ipfs.NewFetcher(server.URL),
		denom.NewEngine(registry, prices),
	)
}

const programsResponse = `{"data":{"programs":[
	{"id":"0xprogram1","roles":[{"accounts":[{"address":"0xb8cef765721a6da910f14be93e7684e9a3714123"},{"address":"0x0000000000000000000000000000000000000001"}]}],"metaPtr":{"protocol":1,"pointer":"bafyprogram1"}},
	{"id":"0xprogram2","roles":[{"accounts":[{"address":"0xb8cef765721a6da910f14be93e7684e9a3714123"}]}],"metaPtr":{"protocol":"1","pointer":"bafyprogram2"}}
]}}`

const roundResponse = `{"data":{"rounds":[{
	"id":"0xround",
	"program":{"id":"0xprogram1"},
	"token":"` + weth + `",
	"roundMetaPtr":{"protocol":1,"pointer":"bafyround"},
	"applicationsStartTime":"1660000000",
	"applicationsEndTime":"1660500000",
	"roundStartTime":"1661000000",
	"roundEndTime":"1662000000",
	"roles":[{"accounts":[{"address":"0xb8cef765721a6da910f14be93e7684e9a3714123"}]}]
}]}}`

const roundDocument = `{
	"name":"Climate round",
	"programContractAddress":"0xprogram1",
	"support":{"type":"Email","info":"ops@example.org"},
	"quadraticFundingConfig":{"matchingFundsAvailable":"2.5","matchingCap":false,"sybilDefense":true}
}`

func TestListPrograms(t *testing.T) {
	b := &backend{
		subgraph: map[string]string{"GetPrograms": programsResponse},
		documents: map[string]string{
			"bafyprogram1": `{"name":"Gitcoin Grants"}`,
			"bafyprogram2": `{"name":"Climate Solutions"}`,
		},
	}
	service := newTestService(t, b)

	programs, err := service.ListPrograms(context.Background(), chains.Mainnet, operator)
	assert.NoError(t, err)
	assert.Equal(t, len(programs), 2)

	assert.Equal(t, programs[0].Id, "0xprogram1")
	assert.Equal(t, programs[0].Metadata.Name, "Gitcoin Grants")
	assert.Equal(t, programs[0].ChainId, chains.Mainnet)
	assert.Equal(t, len(programs[0].OperatorWallets), 2)
	assert.Equal(t, programs[1].Metadata.Name, "Climate Solutions")
	assert.Equal(t, programs[1].MetaPtr.Pointer, "bafyprogram2")

	assert.Equal(t, len(b.queries), 1)
	assert.Equal(t, b.queries[0].Variables["address"], "0xb8cef765721a6da910f14be93e7684e9a3714123")
}

func TestListPrograms_Empty(t *testing.T) {
	b := &backend{subgraph: map[string]string{"GetPrograms": `{"data":{"programs":[]}}`}}
	service := newTestService(t, b)

	programs, err := service.ListPrograms(context.Background(), chains.Mainnet, operator)
	assert.NoError(t, err)
	assert.Equal(t, len(programs), 0)
}

func TestListPrograms_InvalidAddress(t *testing.T) {
	b := &backend{}
	service := newTestService(t, b)

	_, err := service.ListPrograms(context.Background(), chains.Mainnet, "not-an-address")
	assert.True(t, errors.Is(err, ErrInvalidAddress))
	assert.Equal(t, len(b.queries), 0)
}

func TestListPrograms_GraphQLErrors(t *testing.T) {
	b := &backend{subgraph: map[string]string{
		"GetPrograms": `{"data":null,"errors":[{"message":"indexing error"}]}`,
	}}
	service := newTestService(t, b)

	_, err := service.ListPrograms(context.Background(), chains.Mainnet, operator)
	assert.True(t, errors.Is(err, graphql.ErrGraphQL))
	assert.True(t, strings.Contains(err.Error(), "indexing error"))
}

func TestListPrograms_MetadataFailure(t *testing.T) {
	b := &backend{
		subgraph: map[string]string{"GetPrograms": programsResponse},
		ipfsCode: http.StatusBadGateway,
	}
	service := newTestService(t, b)

	_, err := service.ListPrograms(context.Background(), chains.Mainnet, operator)
	assert.True(t, fetch.IsService(err, fetch.ServiceIPFS))
	status, ok := fetch.StatusOf(err)
	assert.True(t, ok)
	assert.Equal(t, status, http.StatusBadGateway)
}

func TestGetProgramByID(t *testing.T) {
	b := &backend{
		subgraph:  map[string]string{"GetProgramById": programsResponse},
		documents: map[string]string{"bafyprogram1": `{"name":"Gitcoin Grants"}`},
	}
	service := newTestService(t, b)

	program, err := service.GetProgramByID(context.Background(), chains.Mainnet, "0xPROGRAM1")
	assert.NoError(t, err)
	assert.Equal(t, program.Id, "0xprogram1")
	assert.Equal(t, program.Metadata.Name, "Gitcoin Grants")
	assert.Equal(t, b.queries[0].Variables["programId"], "0xprogram1")
}

func TestGetProgramByID_NotFound(t *testing.T) {
	b := &backend{subgraph: map[string]string{"GetProgramById": `{"data":{"programs":[]}}`}}
	service := newTestService(t, b)

	_, err := service.GetProgramByID(context.Background(), chains.Mainnet, "0xmissing")
	assert.True(t, errors.Is(err, ErrProgramNotFound))
}

func TestGetRoundByID(t *testing.T) {
	b := &backend{
		subgraph:  map[string]string{"GetRoundById": roundResponse},
		documents: map[string]string{"bafyround": roundDocument},
	}
	service := newTestService(t, b)

	round, err := service.GetRoundByID(context.Background(), chains.Mainnet, "0xround")
	assert.NoError(t, err)
	assert.Equal(t, round.ProgramId, "0xprogram1")
	assert.Equal(t, round.Token, weth)
	assert.Equal(t, round.Metadata.Name, "Climate round")
	assert.True(t, round.RoundStartTime.Equal(time.Unix(1661000000, 0)))
	assert.True(t, round.RoundEndTime.Equal(time.Unix(1662000000, 0)))
	assert.True(t, round.ApplicationsStartTime.Equal(time.Unix(1660000000, 0)))
	assert.True(t, round.MatchingFunds().Equal(decimal.RequireFromString("2.5")))
	assert.Equal(t, len(round.OperatorWallets), 1)
}

func TestGetRoundByID_NotFound(t *testing.T) {
	b := &backend{subgraph: map[string]string{"GetRoundById": `{"data":{"rounds":[]}}`}}
	service := newTestService(t, b)

	_, err := service.GetRoundByID(context.Background(), chains.Mainnet, "0xmissing")
	assert.True(t, errors.Is(err, ErrRoundNotFound))
}

func TestMatchingFundsIn(t *testing.T) {
	b := &backend{prices: map[string]string{
		weth: `{"prices":[[1661000000000,1500],[1662000000000,1600]]}`,
		dai:  `{"prices":[[1661000000000,1],[1662000000000,0.8]]}`,
	}}
	service := newTestService(t, b)

	round := &Round{
		ChainId:        chains.Mainnet,
		Token:          weth,
		RoundStartTime: time.Unix(1661000000, 0),
		RoundEndTime:   time.Unix(1662000000, 0),
		Metadata: RoundMetadata{QuadraticFundingConfig: &QuadraticFundingConfig{
			MatchingFundsAvailable: decimal.RequireFromString("2.5"),
		}},
	}

	funds, err := service.MatchingFundsIn(context.Background(), round, dai)
	assert.NoError(t, err)
	assert.Equal(t, funds.Token, dai)
	// 2.5 * 1600 / 0.8
	assert.True(t, funds.Amount.Equal(decimal.NewFromInt(5000)))

	// testnet rounds keep their native amount
	round.ChainId = chains.FantomTestnet
	funds, err = service.MatchingFundsIn(context.Background(), round, dai)
	assert.NoError(t, err)
	assert.True(t, funds.Amount.Equal(decimal.RequireFromString("2.5")))
}
