// Package grants reads programs and rounds from the grants subgraphs and resolves their
// IPFS metadata.
package grants

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/denom"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/graphql"
	"github.com/Cogwheel-Validator/grant-explorer/explorer/ipfs"
	"github.com/ethereum/go-ethereum/common"
	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// metadataConcurrency bounds the IPFS requests issued for one listing.
const metadataConcurrency = 8

var (
	ErrProgramNotFound = errors.New("program not found")
	ErrRoundNotFound   = errors.New("round not found")
	ErrInvalidAddress  = errors.New("invalid address")
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "grants").Logger()
}

const programFields = `
    id
    roles {
      accounts {
        address
      }
    }
    metaPtr {
      protocol
      pointer
    }`

var (
	listProgramsQuery = `query GetPrograms($address: String!) {
  programs(where: { accounts_: { address: $address } }) {` + programFields + `
  }
}`

	programByIdQuery = `query GetProgramById($programId: String!) {
  programs(where: { id: $programId }) {` + programFields + `
  }
}`

	roundByIdQuery = `query GetRoundById($roundId: String!) {
  rounds(where: { id: $roundId }) {
    id
    program {
      id
    }
    token
    roundMetaPtr {
      protocol
      pointer
    }
    applicationsStartTime
    applicationsEndTime
    roundStartTime
    roundEndTime
    roles {
      accounts {
        address
      }
    }
  }
}`
)

// Service answers program and round lookups.
type Service struct {
	graphql *graphql.Client
	ipfs    *ipfs.Fetcher
	engine  *denom.Engine
}

// NewService wires the subgraph client, the IPFS fetcher and the denomination engine.
func NewService(graphqlClient *graphql.Client, fetcher *ipfs.Fetcher, engine *denom.Engine) *Service {
	return &Service{
		graphql: graphqlClient,
		ipfs:    fetcher,
		engine:  engine,
	}
}

// query runs a subgraph query and decodes its data into v. A response carrying an
// errors array fails with graphql.ErrGraphQL.
func (s *Service) query(ctx context.Context, chainId chains.ChainId, query string, variables map[string]any, v any) error {
	response, err := s.graphql.Query(ctx, chainId, query, variables)
	if err != nil {
		return err
	}
	if err := response.Err(); err != nil {
		return err
	}
	return response.Decode(v)
}

// ListPrograms returns the programs the address operates on chainId, metadata included.
func (s *Service) ListPrograms(ctx context.Context, chainId chains.ChainId, operatorAddress string) ([]Program, error) {
	if !common.IsHexAddress(operatorAddress) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidAddress, operatorAddress)
	}
	// the subgraph stores addresses lower case
	address := strings.ToLower(common.HexToAddress(operatorAddress).Hex())

	var data programsData
	if err := s.query(ctx, chainId, listProgramsQuery, map[string]any{"address": address}, &data); err != nil {
		return nil, fmt.Errorf("failed to list programs: %w", err)
	}

	programs, err := s.resolvePrograms(ctx, chainId, data.Programs)
	if err != nil {
		return nil, err
	}

	log.Debug().
		Str("chain", chainId.String()).
		Str("operator", address).
		Int("programs", len(programs)).
		Msg("Listed programs")
	return programs, nil
}

// GetProgramByID returns one program or ErrProgramNotFound.
func (s *Service) GetProgramByID(ctx context.Context, chainId chains.ChainId, programId string) (*Program, error) {
	var data programsData
	variables := map[string]any{"programId": strings.ToLower(programId)}
	if err := s.query(ctx, chainId, programByIdQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("failed to get program %s: %w", programId, err)
	}
	if len(data.Programs) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrProgramNotFound, programId, chainId)
	}

	programs, err := s.resolvePrograms(ctx, chainId, data.Programs[:1])
	if err != nil {
		return nil, err
	}
	return &programs[0], nil
}

// resolvePrograms fetches every program's metadata with bounded concurrency. The result
// keeps the subgraph order.
func (s *Service) resolvePrograms(ctx context.Context, chainId chains.ChainId, results []programResult) ([]Program, error) {
	programs := make([]Program, len(results))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(metadataConcurrency)
	for i, result := range results {
		g.Go(func() error {
			program := Program{
				Id:              result.Id,
				ChainId:         chainId,
				MetaPtr:         result.MetaPtr,
				OperatorWallets: operatorWallets(result.Roles),
			}
			if err := s.ipfs.FetchInto(gctx, result.MetaPtr.Pointer, &program.Metadata); err != nil {
				return fmt.Errorf("failed to fetch metadata of program %s: %w", result.Id, err)
			}
			programs[i] = program
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return programs, nil
}

// GetRoundByID returns one round with its metadata or ErrRoundNotFound.
func (s *Service) GetRoundByID(ctx context.Context, chainId chains.ChainId, roundId string) (*Round, error) {
	var data roundsData
	variables := map[string]any{"roundId": strings.ToLower(roundId)}
	if err := s.query(ctx, chainId, roundByIdQuery, variables, &data); err != nil {
		return nil, fmt.Errorf("failed to get round %s: %w", roundId, err)
	}
	if len(data.Rounds) == 0 {
		return nil, fmt.Errorf("%w: %s on %s", ErrRoundNotFound, roundId, chainId)
	}

	result := data.Rounds[0]
	round := &Round{
		Id:                    result.Id,
		ChainId:               chainId,
		ProgramId:             result.Program.Id,
		Token:                 result.Token,
		RoundMetaPtr:          result.RoundMetaPtr,
		ApplicationsStartTime: result.ApplicationsStartTime.Time,
		ApplicationsEndTime:   result.ApplicationsEndTime.Time,
		RoundStartTime:        result.RoundStartTime.Time,
		RoundEndTime:          result.RoundEndTime.Time,
		OperatorWallets:       operatorWallets(result.Roles),
	}
	if err := s.ipfs.FetchInto(ctx, result.RoundMetaPtr.Pointer, &round.Metadata); err != nil {
		return nil, fmt.Errorf("failed to fetch metadata of round %s: %w", result.Id, err)
	}
	return round, nil
}

// MatchingFundsIn expresses the round's matching pool in targetToken, priced over the
// round's voting window.
func (s *Service) MatchingFundsIn(ctx context.Context, round *Round, targetToken string) (denom.TokenAmount, error) {
	return s.engine.DenominateAs(
		ctx,
		round.Token,
		targetToken,
		round.MatchingFunds(),
		round.RoundStartTime.Unix(),
		round.RoundEndTime.Unix(),
		round.ChainId,
	)
}
