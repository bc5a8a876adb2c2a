package rpc

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/denom"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/grants"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/graphql"
	pricequery "github.com/Cogwheel-Validator/grant-explorer/explorer/price_query"
	"github.com/ethereum/go-ethereum/common"
	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
)

// maxQueryBody caps the GraphQL passthrough request body.
const maxQueryBody = 1 << 20

type apiHandlers struct {
	*Services
}

func newAPIHandlers(services *Services) *apiHandlers {
	return &apiHandlers{Services: services}
}

func (h *apiHandlers) register(r chi.Router) {
	r.Get("/chains", h.listChains)
	r.Get("/ipfs/{cid}", h.getIPFSDocument)

	r.Route("/chains/{chainId}", func(r chi.Router) {
		r.Post("/graphql", h.queryGraphQL)
		r.Get("/tokens/{token}/price", h.getCurrentPrice)
		r.Get("/tokens/{token}/prices", h.getWindowPrices)
		r.Get("/denominate", h.denominate)
		r.Get("/programs", h.listPrograms)
		r.Get("/programs/{programId}", h.getProgram)
		r.Get("/rounds/{roundId}", h.getRound)
	})
}

type chainResponse struct {
	chains.ChainConfig
	HasPrices bool `json:"has_prices"`
}

func (h *apiHandlers) listChains(w http.ResponseWriter, r *http.Request) {
	configs := h.Registry.Chains()
	out := make([]chainResponse, len(configs))
	for i, chain := range configs {
		out[i] = chainResponse{ChainConfig: chain, HasPrices: chain.HasPriceSlug()}
	}
	writeJSON(w, http.StatusOK, map[string]any{"chains": out})
}

func (h *apiHandlers) queryGraphQL(w http.ResponseWriter, r *http.Request) {
	chainId := chainParam(r)

	var req graphql.Request
	if err := json.NewDecoder(io.LimitReader(r.Body, maxQueryBody)).Decode(&req); err != nil {
		writeError(w, badRequest("invalid request body: %v", err))
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		writeError(w, badRequest("query is required"))
		return
	}

	response, err := h.GraphQL.Query(r.Context(), chainId, req.Query, req.Variables)
	if err != nil {
		writeError(w, err)
		return
	}
	// errors arrays are passed through for the caller to interpret
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(response.Raw()); err != nil {
		Logger.Error().Err(err).Msg("Failed to write graphql response")
	}
}

func (h *apiHandlers) getIPFSDocument(w http.ResponseWriter, r *http.Request) {
	document, err := h.IPFS.FetchMetadata(r.Context(), chi.URLParam(r, "cid"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, document)
}

type priceResponse struct {
	ChainId  chains.ChainId  `json:"chain_id"`
	Token    string          `json:"token"`
	Currency string          `json:"currency"`
	Price    decimal.Decimal `json:"price"`
}

func (h *apiHandlers) getCurrentPrice(w http.ResponseWriter, r *http.Request) {
	chainId := chainParam(r)
	token, err := addressParam(chi.URLParam(r, "token"), "token")
	if err != nil {
		writeError(w, err)
		return
	}
	slug, ok := h.Registry.ResolvePriceSlug(chainId)
	if !ok {
		writeError(w, fmt.Errorf("%w: %s", pricequery.ErrUnsupportedChain, h.Registry.ResolveVerboseName(chainId)))
		return
	}

	price, err := h.Prices.GetCurrentPrice(r.Context(), token, slug)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, priceResponse{
		ChainId:  chainId,
		Token:    token,
		Currency: pricequery.VsCurrency,
		Price:    price,
	})
}

type windowPricesResponse struct {
	ChainId chains.ChainId `json:"chain_id"`
	Token   string         `json:"token"`
	From    int64          `json:"from"`
	To      int64          `json:"to"`
	pricequery.StartEndPrices
}

func (h *apiHandlers) getWindowPrices(w http.ResponseWriter, r *http.Request) {
	chainId := chainParam(r)
	token, err := addressParam(chi.URLParam(r, "token"), "token")
	if err != nil {
		writeError(w, err)
		return
	}
	from, to, err := windowParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	prices, err := h.Prices.GetStartAndEndPrices(r.Context(), token, chainId, from, to)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, windowPricesResponse{
		ChainId:        chainId,
		Token:          token,
		From:           from,
		To:             to,
		StartEndPrices: prices,
	})
}

func (h *apiHandlers) denominate(w http.ResponseWriter, r *http.Request) {
	chainId := chainParam(r)
	query := r.URL.Query()

	source, err := addressParam(query.Get("source"), "source")
	if err != nil {
		writeError(w, err)
		return
	}
	target, err := addressParam(query.Get("target"), "target")
	if err != nil {
		writeError(w, err)
		return
	}
	amount, err := decimal.NewFromString(query.Get("amount"))
	if err != nil {
		writeError(w, badRequest("amount must be a decimal number"))
		return
	}
	from, to, err := windowParams(r)
	if err != nil {
		writeError(w, err)
		return
	}

	result, err := h.Engine.DenominateAs(r.Context(), source, target, amount, from, to, chainId)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (h *apiHandlers) listPrograms(w http.ResponseWriter, r *http.Request) {
	operator := r.URL.Query().Get("operator")
	if operator == "" {
		writeError(w, badRequest("operator is required"))
		return
	}

	programs, err := h.Grants.ListPrograms(r.Context(), chainParam(r), operator)
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"programs": programs})
}

func (h *apiHandlers) getProgram(w http.ResponseWriter, r *http.Request) {
	program, err := h.Grants.GetProgramByID(r.Context(), chainParam(r), chi.URLParam(r, "programId"))
	if err != nil {
		writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, program)
}

type roundResponse struct {
	*grants.Round
	MatchingFunds denom.TokenAmount `json:"matching_funds"`
}

func (h *apiHandlers) getRound(w http.ResponseWriter, r *http.Request) {
	round, err := h.Grants.GetRoundByID(r.Context(), chainParam(r), chi.URLParam(r, "roundId"))
	if err != nil {
		writeError(w, err)
		return
	}

	funds := denom.TokenAmount{Token: round.Token, Amount: round.MatchingFunds()}
	if raw := r.URL.Query().Get("denominate_as"); raw != "" {
		target, err := addressParam(raw, "denominate_as")
		if err != nil {
			writeError(w, err)
			return
		}
		funds, err = h.Grants.MatchingFundsIn(r.Context(), round, target)
		if err != nil {
			writeError(w, err)
			return
		}
	}
	writeJSON(w, http.StatusOK, roundResponse{Round: round, MatchingFunds: funds})
}

// chainParam reads {chainId}. Unrecognized ids resolve to the default chain record.
func chainParam(r *http.Request) chains.ChainId {
	return chains.ParseChainId(chi.URLParam(r, "chainId"))
}

func addressParam(value, name string) (string, error) {
	if !common.IsHexAddress(value) {
		return "", badRequest("%s must be a hex address", name)
	}
	return strings.ToLower(common.HexToAddress(value).Hex()), nil
}

// windowParams reads the from and to unix second bounds.
func windowParams(r *http.Request) (int64, int64, error) {
	query := r.URL.Query()
	from, err := strconv.ParseInt(query.Get("from"), 10, 64)
	if err != nil || from < 0 {
		return 0, 0, badRequest("from must be a unix timestamp in seconds")
	}
	to, err := strconv.ParseInt(query.Get("to"), 10, 64)
	if err != nil || to < 0 {
		return 0, 0, badRequest("to must be a unix timestamp in seconds")
	}
	if to < from {
		return 0, 0, badRequest("to must not be before from")
	}
	return from, to, nil
}
