// Package token implements the fungible token ledger: balances, allowances,
// token metadata and flat-fee bookkeeping. All amounts are arbitrary-precision
// non-negative integers, every operation validates before it mutates.
package token

import (
	"context"
	"fmt"
	"math/big"
	"sort"
	"sync"
	"time"

	"github.com/emporium-dao/emporium/internal/config"
	"github.com/emporium-dao/emporium/internal/models/modelaudit"
	"github.com/emporium-dao/emporium/internal/models/modelsnapshot"
	tokenErrors "github.com/emporium-dao/emporium/internal/service/token/errors"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// AccessRegistry gates custodian-only operations.
type AccessRegistry interface {
	IsCustodian(principal string) bool
}

// Auditor accepts one audit record per balance-affecting operation.
type Auditor interface {
	Append(ctx context.Context, record modelaudit.Record) error
}

// Holder pairs a principal ID with its balance.
type Holder struct {
	Principal string
	Balance   *big.Int
}

// Approval pairs a spender principal ID with its granted allowance.
type Approval struct {
	Spender   string
	Allowance *big.Int
}

// Service defines attributes of a struct available to its methods.
type Service struct {
	mu            sync.Mutex
	logo          string
	name          string
	symbol        string
	decimals      uint8
	initialSupply *big.Int
	totalSupply   *big.Int
	owner         string
	fee           *big.Int
	feeTo         string
	historySize   uint64
	deployTime    int64
	balances      map[string]*big.Int
	allowances    map[string]map[string]*big.Int
	access        AccessRegistry
	auditor       Auditor
	log           *zerolog.Logger
}

// InitLedger initializes an empty token ledger from configuration. The initial
// supply is not credited here: state is either installed from a snapshot or
// seeded by Bootstrap on a fresh first start, never both.
func InitLedger(cfg *config.TokenConfig, access AccessRegistry, auditor Auditor, log *zerolog.Logger) (*Service, error) {
	if access == nil {
		return nil, &tokenErrors.ServiceFoundNilArgument{Msg: "nil access registry was passed to ledger initializer"}
	}
	if auditor == nil {
		return nil, &tokenErrors.ServiceFoundNilArgument{Msg: "nil auditor was passed to ledger initializer"}
	}
	supply, ok := new(big.Int).SetString(cfg.InitialSupply, 10)
	if !ok || supply.Sign() < 0 {
		return nil, fmt.Errorf("illegal initial supply %s", cfg.InitialSupply)
	}
	fee, ok := new(big.Int).SetString(cfg.Fee, 10)
	if !ok || fee.Sign() < 0 {
		return nil, fmt.Errorf("illegal fee %s", cfg.Fee)
	}
	return &Service{
		logo:          cfg.Logo,
		name:          cfg.Name,
		symbol:        cfg.Symbol,
		decimals:      cfg.Decimals,
		initialSupply: supply,
		totalSupply:   big.NewInt(0),
		owner:         cfg.Owner,
		fee:           fee,
		feeTo:         cfg.FeeTo,
		historySize:   1,
		deployTime:    time.Now().UnixNano(),
		balances:      make(map[string]*big.Int),
		allowances:    make(map[string]map[string]*big.Int),
		access:        access,
		auditor:       auditor,
		log:           log,
	}, nil
}

// Bootstrap credits the configured initial supply to the owner and records the
// genesis mint. Runs once per ledger lifetime, on the fresh-start path only,
// so restarts that restore a snapshot never re-enqueue the genesis record.
func (s *Service) Bootstrap(ctx context.Context) {
	s.mu.Lock()
	supply := new(big.Int).Set(s.initialSupply)
	owner := s.owner
	if supply.Sign() > 0 {
		s.balances[owner] = new(big.Int).Set(supply)
		s.totalSupply = new(big.Int).Set(supply)
	}
	s.mu.Unlock()
	if supply.Sign() > 0 {
		s.appendRecord(ctx, owner, "mint", owner, owner, supply, big.NewInt(0))
	}
}

// Transfer moves value from the caller to the recipient, charging the flat fee
// on top. The caller must hold at least value+fee.
func (s *Service) Transfer(ctx context.Context, caller, to string, value *big.Int) (uint64, error) {
	s.mu.Lock()
	needed := new(big.Int).Add(value, s.fee)
	if s.balanceOfLocked(caller).Cmp(needed) < 0 {
		s.mu.Unlock()
		return 0, &tokenErrors.InsufficientBalanceError{Principal: caller}
	}
	s.chargeFeeLocked(caller)
	s.moveLocked(caller, to, value)
	s.historySize++
	txIndex := s.historySize
	fee := new(big.Int).Set(s.fee)
	s.mu.Unlock()
	s.appendRecord(ctx, caller, "transfer", caller, to, value, fee)
	return txIndex, nil
}

// TransferFrom moves value out of the from account on behalf of its owner. The
// spender must hold an allowance covering value+fee, the owner must hold the
// funds, the allowance is decremented by value+fee.
func (s *Service) TransferFrom(ctx context.Context, caller, from, to string, value *big.Int) (uint64, error) {
	s.mu.Lock()
	needed := new(big.Int).Add(value, s.fee)
	if s.allowanceOfLocked(from, caller).Cmp(needed) < 0 {
		s.mu.Unlock()
		return 0, &tokenErrors.InsufficientAllowanceError{Owner: from, Spender: caller}
	}
	if s.balanceOfLocked(from).Cmp(needed) < 0 {
		s.mu.Unlock()
		return 0, &tokenErrors.InsufficientBalanceError{Principal: from}
	}
	s.chargeFeeLocked(from)
	s.moveLocked(from, to, value)
	remaining := new(big.Int).Sub(s.allowanceOfLocked(from, caller), needed)
	s.setAllowanceLocked(from, caller, remaining)
	s.historySize++
	txIndex := s.historySize
	fee := new(big.Int).Set(s.fee)
	s.mu.Unlock()
	s.appendRecord(ctx, caller, "transferFrom", from, to, value, fee)
	return txIndex, nil
}

// Approve authorizes a spender for value+fee out of the owner balance. The fee
// is charged at approval time, which means a second fee is charged again when
// the spender later calls TransferFrom. This mirrors the token-standard
// convention the ledger was deployed with and is pinned by tests.
func (s *Service) Approve(ctx context.Context, caller, spender string, value *big.Int) (uint64, error) {
	s.mu.Lock()
	if s.balanceOfLocked(caller).Cmp(s.fee) < 0 {
		s.mu.Unlock()
		return 0, &tokenErrors.InsufficientBalanceError{Principal: caller}
	}
	s.chargeFeeLocked(caller)
	granted := new(big.Int).Add(value, s.fee)
	s.setAllowanceLocked(caller, spender, granted)
	s.historySize++
	txIndex := s.historySize
	fee := new(big.Int).Set(s.fee)
	s.mu.Unlock()
	s.appendRecord(ctx, caller, "approve", caller, spender, granted, fee)
	return txIndex, nil
}

// Mint credits freshly created tokens and grows the total supply. Restricted
// to custodians, used by the rewards ledger to pay out claims.
func (s *Service) Mint(ctx context.Context, caller, to string, amount *big.Int) (uint64, error) {
	if !s.access.IsCustodian(caller) {
		return 0, &tokenErrors.UnauthorizedError{Principal: caller}
	}
	s.mu.Lock()
	newBalance := new(big.Int).Add(s.balanceOfLocked(to), amount)
	if newBalance.Sign() != 0 {
		s.balances[to] = newBalance
	}
	s.totalSupply = new(big.Int).Add(s.totalSupply, amount)
	s.historySize++
	txIndex := s.historySize
	s.mu.Unlock()
	s.appendRecord(ctx, caller, "mint", caller, to, amount, big.NewInt(0))
	return txIndex, nil
}

// SetName renames the token, custodians only.
func (s *Service) SetName(caller, name string) error {
	if !s.access.IsCustodian(caller) {
		return &tokenErrors.UnauthorizedError{Principal: caller}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.name = name
	return nil
}

// SetLogo replaces the token logo, custodians only.
func (s *Service) SetLogo(caller, logo string) error {
	if !s.access.IsCustodian(caller) {
		return &tokenErrors.UnauthorizedError{Principal: caller}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logo = logo
	return nil
}

// SetFee replaces the flat transfer fee, custodians only.
func (s *Service) SetFee(caller string, fee *big.Int) error {
	if !s.access.IsCustodian(caller) {
		return &tokenErrors.UnauthorizedError{Principal: caller}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.fee = new(big.Int).Set(fee)
	return nil
}

// SetFeeTo repoints the fee recipient, custodians only.
func (s *Service) SetFeeTo(caller, feeTo string) error {
	if !s.access.IsCustodian(caller) {
		return &tokenErrors.UnauthorizedError{Principal: caller}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.feeTo = feeTo
	return nil
}

// BalanceOf returns the balance of a principal ID, zero for absent entries.
func (s *Service) BalanceOf(principal string) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.balanceOfLocked(principal))
}

// Allowance returns the allowance granted by owner to spender, zero for absent entries.
func (s *Service) Allowance(owner, spender string) *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.allowanceOfLocked(owner, spender))
}

// TotalSupply returns the current total supply.
func (s *Service) TotalSupply() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.totalSupply)
}

// Name returns the token name.
func (s *Service) Name() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.name
}

// Symbol returns the token symbol.
func (s *Service) Symbol() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.symbol
}

// Logo returns the token logo.
func (s *Service) Logo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.logo
}

// Decimals returns the token decimal count.
func (s *Service) Decimals() uint8 {
	return s.decimals
}

// Owner returns the owning principal ID.
func (s *Service) Owner() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.owner
}

// Fee returns the flat transfer fee.
func (s *Service) Fee() *big.Int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return new(big.Int).Set(s.fee)
}

// FeeTo returns the fee recipient principal ID.
func (s *Service) FeeTo() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.feeTo
}

// HistorySize returns the monotonically increasing operation counter.
func (s *Service) HistorySize() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.historySize
}

// DeployTime returns the nanosecond epoch of ledger initialization.
func (s *Service) DeployTime() int64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.deployTime
}

// HolderNumber returns the number of principals with a non-zero balance.
func (s *Service) HolderNumber() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.balances)
}

// Holders returns a page of holders sorted by balance in descending order.
func (s *Service) Holders(start, limit int) []Holder {
	s.mu.Lock()
	defer s.mu.Unlock()
	holders := make([]Holder, 0, len(s.balances))
	for principal, balance := range s.balances {
		holders = append(holders, Holder{Principal: principal, Balance: new(big.Int).Set(balance)})
	}
	sort.Slice(holders, func(i, j int) bool {
		return holders[i].Balance.Cmp(holders[j].Balance) > 0
	})
	if start >= len(holders) || start < 0 || limit < 0 {
		return nil
	}
	// compare against the remainder, start+limit could overflow
	if limit > len(holders)-start {
		limit = len(holders) - start
	}
	return holders[start : start+limit]
}

// AllowanceSize returns the total number of allowance entries.
func (s *Service) AllowanceSize() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	size := 0
	for _, inner := range s.allowances {
		size += len(inner)
	}
	return size
}

// UserApprovals returns every allowance granted by an owner.
func (s *Service) UserApprovals(owner string) []Approval {
	s.mu.Lock()
	defer s.mu.Unlock()
	inner, ok := s.allowances[owner]
	if !ok {
		return nil
	}
	approvals := make([]Approval, 0, len(inner))
	for spender, allowance := range inner {
		approvals = append(approvals, Approval{Spender: spender, Allowance: new(big.Int).Set(allowance)})
	}
	sort.Slice(approvals, func(i, j int) bool {
		return approvals[i].Spender < approvals[j].Spender
	})
	return approvals
}

// Export returns a deep copy of the full ledger state for snapshotting.
func (s *Service) Export() modelsnapshot.TokenState {
	s.mu.Lock()
	defer s.mu.Unlock()
	balances := make(map[string]*big.Int, len(s.balances))
	for principal, balance := range s.balances {
		balances[principal] = new(big.Int).Set(balance)
	}
	allowances := make(map[string]map[string]*big.Int, len(s.allowances))
	for owner, inner := range s.allowances {
		innerCopy := make(map[string]*big.Int, len(inner))
		for spender, allowance := range inner {
			innerCopy[spender] = new(big.Int).Set(allowance)
		}
		allowances[owner] = innerCopy
	}
	return modelsnapshot.TokenState{
		Logo:        s.logo,
		Name:        s.name,
		Symbol:      s.symbol,
		Decimals:    s.decimals,
		TotalSupply: new(big.Int).Set(s.totalSupply),
		Owner:       s.owner,
		Fee:         new(big.Int).Set(s.fee),
		FeeTo:       s.feeTo,
		HistorySize: s.historySize,
		DeployTime:  s.deployTime,
		Balances:    balances,
		Allowances:  allowances,
	}
}

// Install atomically replaces the ledger state with a restored one.
func (s *Service) Install(state modelsnapshot.TokenState) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.logo = state.Logo
	s.name = state.Name
	s.symbol = state.Symbol
	s.decimals = state.Decimals
	s.totalSupply = new(big.Int).Set(state.TotalSupply)
	s.owner = state.Owner
	s.fee = new(big.Int).Set(state.Fee)
	s.feeTo = state.FeeTo
	s.historySize = state.HistorySize
	s.deployTime = state.DeployTime
	s.balances = make(map[string]*big.Int, len(state.Balances))
	for principal, balance := range state.Balances {
		s.balances[principal] = new(big.Int).Set(balance)
	}
	s.allowances = make(map[string]map[string]*big.Int, len(state.Allowances))
	for owner, inner := range state.Allowances {
		innerCopy := make(map[string]*big.Int, len(inner))
		for spender, allowance := range inner {
			innerCopy[spender] = new(big.Int).Set(allowance)
		}
		s.allowances[owner] = innerCopy
	}
}

// balanceOfLocked must be called under the ledger mutex.
func (s *Service) balanceOfLocked(principal string) *big.Int {
	if balance, ok := s.balances[principal]; ok {
		return balance
	}
	return big.NewInt(0)
}

// allowanceOfLocked must be called under the ledger mutex.
func (s *Service) allowanceOfLocked(owner, spender string) *big.Int {
	if inner, ok := s.allowances[owner]; ok {
		if allowance, ok := inner[spender]; ok {
			return allowance
		}
	}
	return big.NewInt(0)
}

// moveLocked debits from and credits to, pruning entries that reach zero.
// Callers validate sufficiency beforehand.
func (s *Service) moveLocked(from, to string, value *big.Int) {
	newFrom := new(big.Int).Sub(s.balanceOfLocked(from), value)
	if newFrom.Sign() != 0 {
		s.balances[from] = newFrom
	} else {
		delete(s.balances, from)
	}
	newTo := new(big.Int).Add(s.balanceOfLocked(to), value)
	if newTo.Sign() != 0 {
		s.balances[to] = newTo
	}
}

// chargeFeeLocked moves the flat fee to the fee recipient, skipped entirely
// for a zero fee.
func (s *Service) chargeFeeLocked(from string) {
	if s.fee.Sign() > 0 {
		s.moveLocked(from, s.feeTo, s.fee)
	}
}

// setAllowanceLocked stores an allowance value, pruning zero entries and empty
// inner maps eagerly.
func (s *Service) setAllowanceLocked(owner, spender string, value *big.Int) {
	inner, ok := s.allowances[owner]
	if value.Sign() != 0 {
		if !ok {
			inner = make(map[string]*big.Int)
			s.allowances[owner] = inner
		}
		inner[spender] = value
		return
	}
	if ok {
		delete(inner, spender)
		if len(inner) == 0 {
			delete(s.allowances, owner)
		}
	}
}

// appendRecord hands one audit record to the writer. Audit durability is the
// writer's concern, a failed enqueue never fails the ledger operation.
func (s *Service) appendRecord(ctx context.Context, caller, op, from, to string, amount, fee *big.Int) {
	record := modelaudit.NewRecord(uuid.New().String(), caller, op, from, to, amount.String(), fee.String(), time.Now().UnixNano())
	if err := s.auditor.Append(ctx, record); err != nil {
		s.log.Warn().Err(err).Msg(fmt.Sprintf("audit record enqueueing failed for operation %s", op))
	}
}
