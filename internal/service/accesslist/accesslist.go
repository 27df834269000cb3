// Package accesslist implements the custodian registry gating administrative operations.
package accesslist

import (
	"fmt"
	"sort"
	"sync"

	tokenErrors "github.com/emporium-dao/emporium/internal/service/token/errors"
	"github.com/rs/zerolog"
)

// Registry defines attributes of a struct available to its methods.
type Registry struct {
	mu         sync.RWMutex
	custodians map[string]struct{}
	log        *zerolog.Logger
}

// InitRegistry initializes a custodian registry with an initial custodian set.
func InitRegistry(initial []string, log *zerolog.Logger) *Registry {
	custodians := make(map[string]struct{})
	for _, principal := range initial {
		custodians[principal] = struct{}{}
	}
	return &Registry{custodians: custodians, log: log}
}

// IsCustodian reports whether a principal ID is authorized for administrative operations.
func (r *Registry) IsCustodian(principal string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.custodians[principal]
	return ok
}

// AddCustodian adds a principal ID to the custodian set. Any existing custodian
// can add others unilaterally.
func (r *Registry) AddCustodian(caller, principal string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.custodians[caller]; !ok {
		return &tokenErrors.UnauthorizedError{Principal: caller}
	}
	r.custodians[principal] = struct{}{}
	r.log.Info().Msg(fmt.Sprintf("custodian %s was added by %s", principal, caller))
	return nil
}

// Export returns the custodian set as a sorted slice for snapshotting.
func (r *Registry) Export() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	custodians := make([]string, 0, len(r.custodians))
	for principal := range r.custodians {
		custodians = append(custodians, principal)
	}
	sort.Strings(custodians)
	return custodians
}

// Install replaces the custodian set with a restored one.
func (r *Registry) Install(custodians []string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.custodians = make(map[string]struct{}, len(custodians))
	for _, principal := range custodians {
		r.custodians[principal] = struct{}{}
	}
}
