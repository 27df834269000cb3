// Package modelsnapshot provides versioned types for serialized service state.
package modelsnapshot

import (
	"math/big"

	"github.com/emporium-dao/emporium/internal/models/modelrewards"
)

// CurrentVersion is the schema version written by the running service.
// Blobs with older versions must pass through explicit migration before
// installation, unknown versions abort startup.
const CurrentVersion = 2

type (
	// Envelope carries the version tag only and is used for probing a blob
	// before a full decode is attempted.
	Envelope struct {
		SchemaVersion int `json:"schema_version"`
	}

	TokenState struct {
		Logo        string                         `json:"logo"`
		Name        string                         `json:"name"`
		Symbol      string                         `json:"symbol"`
		Decimals    uint8                          `json:"decimals"`
		TotalSupply *big.Int                       `json:"total_supply"`
		Owner       string                         `json:"owner"`
		Fee         *big.Int                       `json:"fee"`
		FeeTo       string                         `json:"fee_to"`
		HistorySize uint64                         `json:"history_size"`
		DeployTime  int64                          `json:"deploy_time"`
		Balances    map[string]*big.Int            `json:"balances"`
		Allowances  map[string]map[string]*big.Int `json:"allowances"`
	}

	// StateV1 is the initial snapshot schema, kept for migration of blobs
	// written before the daily window policy and the audit checkpoint were
	// recorded.
	StateV1 struct {
		SchemaVersion int                              `json:"schema_version"`
		Token         TokenState                       `json:"token"`
		TotalUsers    uint64                           `json:"total_users"`
		Users         map[string]modelrewards.User     `json:"users"`
		Custodians    []string                         `json:"custodians"`
	}

	StateV2 struct {
		SchemaVersion   int                          `json:"schema_version"`
		Token           TokenState                   `json:"token"`
		TotalUsers      uint64                       `json:"total_users"`
		Users           map[string]modelrewards.User `json:"users"`
		Custodians      []string                     `json:"custodians"`
		DailyPolicy     string                       `json:"daily_policy"`
		AuditCheckpoint uint64                       `json:"audit_checkpoint"`
	}
)
