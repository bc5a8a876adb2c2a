package grants

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/Cogwheel-Validator/grant-explorer/explorer/chains"
	"github.com/shopspring/decimal"
)

// MetaPtr points at a metadata document. Only the IPFS protocol (1) is in use.
type MetaPtr struct {
	Protocol json.Number `json:"protocol"`
	Pointer  string      `json:"pointer"`
}

// ProgramMetadata is the IPFS document of a program.
type ProgramMetadata struct {
	Name string `json:"name"`
}

// Program groups rounds run by the same operators.
type Program struct {
	Id              string          `json:"id"`
	ChainId         chains.ChainId  `json:"chain_id"`
	MetaPtr         MetaPtr         `json:"meta_ptr"`
	Metadata        ProgramMetadata `json:"metadata"`
	OperatorWallets []string        `json:"operator_wallets"`
}

// QuadraticFundingConfig is the matching section of a round's metadata.
type QuadraticFundingConfig struct {
	MatchingFundsAvailable decimal.Decimal `json:"matchingFundsAvailable"`
	MatchingCap            bool            `json:"matchingCap"`
	MatchingCapAmount      decimal.Decimal `json:"matchingCapAmount"`
	MinDonationThreshold   bool            `json:"minDonationThreshold"`
	SybilDefense           bool            `json:"sybilDefense"`
}

// RoundMetadata is the IPFS document of a round.
type RoundMetadata struct {
	Name                   string                  `json:"name"`
	ProgramContractAddress string                  `json:"programContractAddress"`
	Support                json.RawMessage         `json:"support,omitempty"`
	Eligibility            json.RawMessage         `json:"eligibility,omitempty"`
	QuadraticFundingConfig *QuadraticFundingConfig `json:"quadraticFundingConfig,omitempty"`
}

// Round is a funding round as stored by the subgraph plus its IPFS metadata.
type Round struct {
	Id                    string         `json:"id"`
	ChainId               chains.ChainId `json:"chain_id"`
	ProgramId             string         `json:"program_id"`
	Token                 string         `json:"token"`
	RoundMetaPtr          MetaPtr        `json:"round_meta_ptr"`
	Metadata              RoundMetadata  `json:"metadata"`
	ApplicationsStartTime time.Time      `json:"applications_start_time"`
	ApplicationsEndTime   time.Time      `json:"applications_end_time"`
	RoundStartTime        time.Time      `json:"round_start_time"`
	RoundEndTime          time.Time      `json:"round_end_time"`
	OperatorWallets       []string       `json:"operator_wallets"`
}

// MatchingFunds returns the matching pool declared in the round metadata, in units of
// Round.Token. A round without a quadratic funding section has no pool.
func (r *Round) MatchingFunds() decimal.Decimal {
	if r.Metadata.QuadraticFundingConfig == nil {
		return decimal.Zero
	}
	return r.Metadata.QuadraticFundingConfig.MatchingFundsAvailable
}

// subgraph shapes

type accountsResult struct {
	Accounts []struct {
		Address string `json:"address"`
	} `json:"accounts"`
}

type programResult struct {
	Id      string           `json:"id"`
	Roles   []accountsResult `json:"roles"`
	MetaPtr MetaPtr          `json:"metaPtr"`
}

type programsData struct {
	Programs []programResult `json:"programs"`
}

type roundResult struct {
	Id      string `json:"id"`
	Program struct {
		Id string `json:"id"`
	} `json:"program"`
	Token                 string           `json:"token"`
	RoundMetaPtr          MetaPtr          `json:"roundMetaPtr"`
	ApplicationsStartTime unixSeconds      `json:"applicationsStartTime"`
	ApplicationsEndTime   unixSeconds      `json:"applicationsEndTime"`
	RoundStartTime        unixSeconds      `json:"roundStartTime"`
	RoundEndTime          unixSeconds      `json:"roundEndTime"`
	Roles                 []accountsResult `json:"roles"`
}

type roundsData struct {
	Rounds []roundResult `json:"rounds"`
}

func operatorWallets(roles []accountsResult) []string {
	wallets := make([]string, 0)
	for _, role := range roles {
		for _, account := range role.Accounts {
			wallets = append(wallets, account.Address)
		}
	}
	return wallets
}

// unixSeconds decodes the BigInt strings the subgraph uses for timestamps.
type unixSeconds struct {
	time.Time
}

func (u *unixSeconds) UnmarshalJSON(data []byte) error {
	var raw json.Number
	if err := json.Unmarshal(data, &raw); err != nil {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return fmt.Errorf("timestamp: %w", err)
		}
		raw = json.Number(s)
	}
	if raw == "" {
		return nil
	}
	seconds, err := strconv.ParseInt(raw.String(), 10, 64)
	if err != nil {
		return fmt.Errorf("timestamp %q: %w", raw, err)
	}
	u.Time = time.Unix(seconds, 0).UTC()
	return nil
}
