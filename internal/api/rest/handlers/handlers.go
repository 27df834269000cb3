// Package handlers provides API endpoint handling functionality.
package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/ioutil"
	"math/big"
	"net/http"
	"strconv"
	"strings"
	"time"

	handlersErrors "github.com/emporium-dao/emporium/internal/api/rest/errors"
	"github.com/emporium-dao/emporium/internal/client/fetch"
	"github.com/emporium-dao/emporium/internal/client/proxy"
	"github.com/emporium-dao/emporium/internal/models/modeldto"
	"github.com/emporium-dao/emporium/internal/service/accesslist"
	"github.com/emporium-dao/emporium/internal/service/identity"
	"github.com/emporium-dao/emporium/internal/service/rewards"
	rewardsErrors "github.com/emporium-dao/emporium/internal/service/rewards/errors"
	"github.com/emporium-dao/emporium/internal/service/snapshot"
	"github.com/emporium-dao/emporium/internal/service/token"
	tokenErrors "github.com/emporium-dao/emporium/internal/service/token/errors"
	storageErrors "github.com/emporium-dao/emporium/internal/storage/v1/errors"
	"github.com/go-chi/chi"
	"github.com/rs/zerolog"
)

// Handler defines attributes of a struct available to its methods.
type Handler struct {
	tokenService   *token.Service
	rewardsService *rewards.Service
	access         *accesslist.Registry
	snapshotMgr    *snapshot.Manager
	ids            *identity.Service
	proxyClient    *proxy.Client
	fetchClient    *fetch.Client
	log            *zerolog.Logger
}

// InitHandlers initializes a handler object.
func InitHandlers(tokenService *token.Service, rewardsService *rewards.Service, access *accesslist.Registry, snapshotMgr *snapshot.Manager, ids *identity.Service, proxyClient *proxy.Client, fetchClient *fetch.Client, log *zerolog.Logger) (*Handler, error) {
	if tokenService == nil || rewardsService == nil || access == nil || snapshotMgr == nil || ids == nil {
		return nil, &handlersErrors.HandlersFoundNilArgument{Msg: "nil service was passed to handlers initializer"}
	}
	return &Handler{
		tokenService:   tokenService,
		rewardsService: rewardsService,
		access:         access,
		snapshotMgr:    snapshotMgr,
		ids:            ids,
		proxyClient:    proxyClient,
		fetchClient:    fetchClient,
		log:            log,
	}, nil
}

// HandleAuthToken issues an identity token for a principal ID. This endpoint
// stands in for the hosting platform's authentication.
func (h *Handler) HandleAuthToken() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var request modeldto.AuthRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		principal := request.Principal
		if principal == "" {
			principal = h.ids.NewPrincipal()
		}
		accessToken, err := h.ids.NewToken(principal)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleAuthToken failed")
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.AuthResponse{Principal: principal, AccessToken: accessToken})
	}
}

// HandleRegister processes user register requests.
func (h *Handler) HandleRegister() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.RegisterRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new user register request detected for %s", request.Handle))
		err = h.rewardsService.Register(request.Handle, caller)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleRegister failed")
			var alreadyRegisteredError *rewardsErrors.AlreadyRegisteredError
			var invalidHandleError *rewardsErrors.InvalidHandleError
			if errors.As(err, &alreadyRegisteredError) {
				h.respondJSON(w, http.StatusConflict, modeldto.MessageResponse{Message: err.Error()})
			} else if errors.As(err, &invalidHandleError) {
				h.respondJSON(w, http.StatusUnprocessableEntity, modeldto.MessageResponse{Message: err.Error()})
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.MessageResponse{Message: fmt.Sprintf("user %s registered successfully", request.Handle)})
	}
}

// HandleDaily processes daily reward claims.
func (h *Handler) HandleDaily() http.HandlerFunc {
	return h.handleClaim("daily", func(ctx context.Context, handle string) (*rewards.ClaimResult, error) {
		return h.rewardsService.ClaimDaily(ctx, handle)
	})
}

// HandleWork processes work reward claims.
func (h *Handler) HandleWork() http.HandlerFunc {
	return h.handleClaim("work", func(ctx context.Context, handle string) (*rewards.ClaimResult, error) {
		return h.rewardsService.ClaimWork(ctx, handle)
	})
}

func (h *Handler) handleClaim(kind string, claim func(ctx context.Context, handle string) (*rewards.ClaimResult, error)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		var request modeldto.ClaimRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		h.log.Info().Msg(fmt.Sprintf("new %s claim request detected for %s", kind, request.Handle))
		result, err := claim(ctx, request.Handle)
		if err != nil {
			h.log.Error().Err(err).Msg(fmt.Sprintf("Handle %s claim failed", kind))
			var unregisteredUserError *rewardsErrors.UnregisteredUserError
			var alreadyClaimedError *rewardsErrors.AlreadyClaimedError
			var claimInProgressError *rewardsErrors.ClaimInProgressError
			var mintFailedError *rewardsErrors.MintFailedError
			if errors.As(err, &unregisteredUserError) {
				h.respondJSON(w, http.StatusNotFound, modeldto.MessageResponse{Message: err.Error()})
			} else if errors.As(err, &alreadyClaimedError) || errors.As(err, &claimInProgressError) {
				h.respondJSON(w, http.StatusConflict, modeldto.MessageResponse{Message: err.Error()})
			} else if errors.As(err, &mintFailedError) {
				h.respondJSON(w, http.StatusBadGateway, modeldto.MessageResponse{Message: err.Error()})
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.ClaimResponse{
			Message: fmt.Sprintf("you earned %d coins, your %s streak is now %d", result.Reward, kind, result.Streak),
			Reward:  result.Reward,
			Streak:  result.Streak,
		})
	}
}

// HandleSetPrincipal processes identity repointing requests.
func (h *Handler) HandleSetPrincipal() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.SetPrincipalRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		err = h.rewardsService.SetPrincipal(request.Handle, caller, request.NewPrincipal)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleSetPrincipal failed")
			var unregisteredUserError *rewardsErrors.UnregisteredUserError
			var notAuthorizedError *rewardsErrors.NotAuthorizedError
			if errors.As(err, &unregisteredUserError) {
				h.respondJSON(w, http.StatusNotFound, modeldto.MessageResponse{Message: err.Error()})
			} else if errors.As(err, &notAuthorizedError) {
				h.respondJSON(w, http.StatusForbidden, modeldto.MessageResponse{Message: err.Error()})
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.MessageResponse{Message: fmt.Sprintf("user %s now belongs to %s", request.Handle, request.NewPrincipal)})
	}
}

// HandleGetUser processes single user record queries.
func (h *Handler) HandleGetUser() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := chi.URLParam(r, "handle")
		user, err := h.rewardsService.GetUser(handle)
		if err != nil {
			var unregisteredUserError *rewardsErrors.UnregisteredUserError
			if errors.As(err, &unregisteredUserError) {
				w.WriteHeader(http.StatusNotFound)
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.User{
			Handle:       user.Handle,
			Principal:    user.Principal,
			DailyStreak:  user.Daily.Streak,
			WorkStreak:   user.Work.Streak,
			TotalRewards: user.TotalRewards,
		})
	}
}

// HandleGetUsers processes full user table queries.
func (h *Handler) HandleGetUsers() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		users := h.rewardsService.GetUsers()
		responseUsers := make([]modeldto.User, 0, len(users))
		for _, user := range users {
			responseUsers = append(responseUsers, modeldto.User{
				Handle:       user.Handle,
				Principal:    user.Principal,
				DailyStreak:  user.Daily.Streak,
				WorkStreak:   user.Work.Streak,
				TotalRewards: user.TotalRewards,
			})
		}
		h.respondJSON(w, http.StatusOK, responseUsers)
	}
}

// HandleUserBalance processes combined balance and streak queries.
func (h *Handler) HandleUserBalance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		handle := chi.URLParam(r, "handle")
		user, err := h.rewardsService.GetUser(handle)
		if err != nil {
			var unregisteredUserError *rewardsErrors.UnregisteredUserError
			if errors.As(err, &unregisteredUserError) {
				h.respondJSON(w, http.StatusNotFound, modeldto.MessageResponse{Message: err.Error()})
				return
			}
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		balance := h.tokenService.BalanceOf(user.Principal)
		h.respondJSON(w, http.StatusOK, modeldto.UserBalance{
			Handle:       user.Handle,
			Balance:      balance.String(),
			TotalRewards: user.TotalRewards,
			DailyStreak:  user.Daily.Streak,
			WorkStreak:   user.Work.Streak,
		})
	}
}

// HandleTransfer processes token transfer requests.
func (h *Handler) HandleTransfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.TransferRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		amount, err := h.parseAmount(request.Amount)
		if err != nil {
			h.respondJSON(w, http.StatusUnprocessableEntity, modeldto.MessageResponse{Message: err.Error()})
			return
		}
		txIndex, err := h.tokenService.Transfer(ctx, caller, request.To, amount)
		if err != nil {
			h.writeLedgerError(w, err, "HandleTransfer")
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.TxResponse{
			Message: fmt.Sprintf("transferred %s to %s", request.Amount, request.To),
			TxIndex: txIndex,
		})
	}
}

// HandleTransferFrom processes allowance-backed transfer requests.
func (h *Handler) HandleTransferFrom() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.TransferFromRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		amount, err := h.parseAmount(request.Amount)
		if err != nil {
			h.respondJSON(w, http.StatusUnprocessableEntity, modeldto.MessageResponse{Message: err.Error()})
			return
		}
		txIndex, err := h.tokenService.TransferFrom(ctx, caller, request.From, request.To, amount)
		if err != nil {
			h.writeLedgerError(w, err, "HandleTransferFrom")
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.TxResponse{
			Message: fmt.Sprintf("transferred %s from %s to %s", request.Amount, request.From, request.To),
			TxIndex: txIndex,
		})
	}
}

// HandleApprove processes allowance grant requests.
func (h *Handler) HandleApprove() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.ApproveRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		amount, err := h.parseAmount(request.Amount)
		if err != nil {
			h.respondJSON(w, http.StatusUnprocessableEntity, modeldto.MessageResponse{Message: err.Error()})
			return
		}
		txIndex, err := h.tokenService.Approve(ctx, caller, request.Spender, amount)
		if err != nil {
			h.writeLedgerError(w, err, "HandleApprove")
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.TxResponse{
			Message: fmt.Sprintf("approved %s for %s", request.Amount, request.Spender),
			TxIndex: txIndex,
		})
	}
}

// HandleMint processes mint requests, custodians only.
func (h *Handler) HandleMint() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 5*time.Second)
		defer cancel()
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.MintRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		amount, err := h.parseAmount(request.Amount)
		if err != nil {
			h.respondJSON(w, http.StatusUnprocessableEntity, modeldto.MessageResponse{Message: err.Error()})
			return
		}
		txIndex, err := h.tokenService.Mint(ctx, caller, request.To, amount)
		if err != nil {
			h.writeLedgerError(w, err, "HandleMint")
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.TxResponse{
			Message: fmt.Sprintf("minted %s to %s", request.Amount, request.To),
			TxIndex: txIndex,
		})
	}
}

// HandleBalanceOf processes balance queries.
func (h *Handler) HandleBalanceOf() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		principal := chi.URLParam(r, "principal")
		balance := h.tokenService.BalanceOf(principal)
		h.respondJSON(w, http.StatusOK, map[string]string{"balance": balance.String()})
	}
}

// HandleAllowance processes allowance queries.
func (h *Handler) HandleAllowance() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := r.URL.Query().Get("owner")
		spender := r.URL.Query().Get("spender")
		allowance := h.tokenService.Allowance(owner, spender)
		h.respondJSON(w, http.StatusOK, map[string]string{"allowance": allowance.String()})
	}
}

// HandleMetadata processes token metadata queries.
func (h *Handler) HandleMetadata() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusOK, modeldto.Metadata{
			Logo:        h.tokenService.Logo(),
			Name:        h.tokenService.Name(),
			Symbol:      h.tokenService.Symbol(),
			Decimals:    h.tokenService.Decimals(),
			TotalSupply: h.tokenService.TotalSupply().String(),
			Owner:       h.tokenService.Owner(),
			Fee:         h.tokenService.Fee().String(),
		})
	}
}

// HandleTokenInfo processes extended token info queries.
func (h *Handler) HandleTokenInfo() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		h.respondJSON(w, http.StatusOK, modeldto.TokenInfo{
			Metadata: modeldto.Metadata{
				Logo:        h.tokenService.Logo(),
				Name:        h.tokenService.Name(),
				Symbol:      h.tokenService.Symbol(),
				Decimals:    h.tokenService.Decimals(),
				TotalSupply: h.tokenService.TotalSupply().String(),
				Owner:       h.tokenService.Owner(),
				Fee:         h.tokenService.Fee().String(),
			},
			FeeTo:        h.tokenService.FeeTo(),
			HistorySize:  h.tokenService.HistorySize(),
			DeployTime:   h.tokenService.DeployTime(),
			HolderNumber: h.tokenService.HolderNumber(),
		})
	}
}

// HandleHolders processes holder page queries.
func (h *Handler) HandleHolders() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		start, _ := strconv.Atoi(r.URL.Query().Get("start"))
		limit, err := strconv.Atoi(r.URL.Query().Get("limit"))
		if err != nil {
			limit = 10
		}
		holders := h.tokenService.Holders(start, limit)
		responseHolders := make([]modeldto.Holder, 0, len(holders))
		for _, holder := range holders {
			responseHolders = append(responseHolders, modeldto.Holder{Principal: holder.Principal, Balance: holder.Balance.String()})
		}
		h.respondJSON(w, http.StatusOK, responseHolders)
	}
}

// HandleUserApprovals processes per-owner allowance listing queries.
func (h *Handler) HandleUserApprovals() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		owner := chi.URLParam(r, "principal")
		approvals := h.tokenService.UserApprovals(owner)
		responseApprovals := make([]modeldto.Approval, 0, len(approvals))
		for _, approval := range approvals {
			responseApprovals = append(responseApprovals, modeldto.Approval{Spender: approval.Spender, Allowance: approval.Allowance.String()})
		}
		h.respondJSON(w, http.StatusOK, responseApprovals)
	}
}

// HandleSetName processes token rename requests, custodians only.
func (h *Handler) HandleSetName() http.HandlerFunc {
	return h.handleAdminSetter("HandleSetName", func(caller, value string) error {
		return h.tokenService.SetName(caller, value)
	})
}

// HandleSetLogo processes token logo update requests, custodians only.
func (h *Handler) HandleSetLogo() http.HandlerFunc {
	return h.handleAdminSetter("HandleSetLogo", func(caller, value string) error {
		return h.tokenService.SetLogo(caller, value)
	})
}

// HandleSetFee processes fee update requests, custodians only.
func (h *Handler) HandleSetFee() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.SetValueRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		fee, err := h.parseAmount(request.Value)
		if err != nil {
			h.respondJSON(w, http.StatusUnprocessableEntity, modeldto.MessageResponse{Message: err.Error()})
			return
		}
		if err := h.tokenService.SetFee(caller, fee); err != nil {
			h.writeLedgerError(w, err, "HandleSetFee")
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.MessageResponse{Message: fmt.Sprintf("fee set to %s", request.Value)})
	}
}

// HandleSetFeeTo processes fee recipient update requests, custodians only.
func (h *Handler) HandleSetFeeTo() http.HandlerFunc {
	return h.handleAdminSetter("HandleSetFeeTo", func(caller, value string) error {
		return h.tokenService.SetFeeTo(caller, value)
	})
}

func (h *Handler) handleAdminSetter(name string, setter func(caller, value string) error) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.SetValueRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		if err := setter(caller, request.Value); err != nil {
			h.writeLedgerError(w, err, name)
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.MessageResponse{Message: "ok"})
	}
}

// HandleAddCustodian processes custodian addition requests, custodians only.
func (h *Handler) HandleAddCustodian() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		var request modeldto.CustodianRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		if err := h.access.AddCustodian(caller, request.Principal); err != nil {
			h.writeLedgerError(w, err, "HandleAddCustodian")
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.MessageResponse{Message: fmt.Sprintf("custodian %s added", request.Principal)})
	}
}

// HandleSnapshot processes on-demand snapshot requests, custodians only.
func (h *Handler) HandleSnapshot() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		caller, err := h.getCaller(r)
		if err != nil {
			http.Error(w, err.Error(), http.StatusUnauthorized)
			return
		}
		if !h.access.IsCustodian(caller) {
			h.respondJSON(w, http.StatusForbidden, modeldto.MessageResponse{Message: fmt.Sprintf("unauthorized principal ID %s", caller)})
			return
		}
		if err := h.snapshotMgr.Snapshot(ctx); err != nil {
			h.log.Error().Err(err).Msg("HandleSnapshot failed")
			var contextTimeoutExceededError *storageErrors.ContextTimeoutExceededError
			if errors.As(err, &contextTimeoutExceededError) {
				http.Error(w, err.Error(), http.StatusGatewayTimeout)
			} else {
				http.Error(w, err.Error(), http.StatusInternalServerError)
			}
			return
		}
		h.respondJSON(w, http.StatusOK, modeldto.MessageResponse{Message: "snapshot taken"})
	}
}

// HandleProxyFTTransfer forwards a token transfer to a remote ledger.
func (h *Handler) HandleProxyFTTransfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		accessToken := strings.Replace(r.Header.Get("Authorization"), "Bearer ", "", 1)
		var request modeldto.ProxyFTTransferRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		response, err := h.proxyClient.FTTransfer(ctx, request.Service, accessToken, request.To, request.Amount)
		if err != nil {
			h.writeProxyError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, response)
	}
}

// HandleProxyNFTTransfer forwards an item transfer to a remote NFT ledger.
func (h *Handler) HandleProxyNFTTransfer() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		accessToken := strings.Replace(r.Header.Get("Authorization"), "Bearer ", "", 1)
		var request modeldto.ProxyNFTTransferRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		response, err := h.proxyClient.NFTTransfer(ctx, request.Service, accessToken, request.To, request.TokenID)
		if err != nil {
			h.writeProxyError(w, err)
			return
		}
		h.respondJSON(w, http.StatusOK, response)
	}
}

// HandleFetch retrieves an external URL with response-header sanitization.
func (h *Handler) HandleFetch() http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), 10*time.Second)
		defer cancel()
		var request modeldto.FetchRequest
		if err := h.readBody(w, r, &request); err != nil {
			return
		}
		response, err := h.fetchClient.Get(ctx, request.URL)
		if err != nil {
			h.log.Error().Err(err).Msg("HandleFetch failed")
			http.Error(w, err.Error(), http.StatusBadGateway)
			return
		}
		h.respondJSON(w, http.StatusOK, response)
	}
}

// getCaller retrieves the caller principal ID from the request metadata.
func (h *Handler) getCaller(r *http.Request) (string, error) {
	accessToken := r.Header.Get("Authorization")
	if len(accessToken) == 0 {
		return "", errors.New("token authorization required")
	}
	accessToken = strings.Replace(accessToken, "Bearer ", "", 1)
	principal, err := h.ids.ValidateToken(accessToken)
	if err != nil {
		return "", err
	}
	return principal, nil
}

// readBody decodes a JSON request body, responding with an error on failure.
func (h *Handler) readBody(w http.ResponseWriter, r *http.Request, out interface{}) error {
	if !strings.HasPrefix(r.Header.Get("Content-Type"), "application/json") {
		http.Error(w, "Invalid Content-Type", http.StatusBadRequest)
		return errors.New("invalid content type")
	}
	b, err := ioutil.ReadAll(r.Body)
	if err != nil {
		h.log.Error().Err(err).Msg("reading request body failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return err
	}
	err = json.Unmarshal(b, out)
	if err != nil {
		h.log.Error().Err(err).Msg("decoding request body failed")
		http.Error(w, err.Error(), http.StatusBadRequest)
		return err
	}
	return nil
}

// parseAmount parses a decimal amount, rejecting negatives and garbage.
func (h *Handler) parseAmount(amount string) (*big.Int, error) {
	value, ok := new(big.Int).SetString(amount, 10)
	if !ok || value.Sign() < 0 {
		return nil, &handlersErrors.IllegalAmountError{Amount: amount}
	}
	return value, nil
}

// writeLedgerError fans ledger and registry errors out to status codes.
func (h *Handler) writeLedgerError(w http.ResponseWriter, err error, op string) {
	h.log.Error().Err(err).Msg(fmt.Sprintf("%s failed", op))
	var insufficientBalanceError *tokenErrors.InsufficientBalanceError
	var insufficientAllowanceError *tokenErrors.InsufficientAllowanceError
	var unauthorizedError *tokenErrors.UnauthorizedError
	if errors.As(err, &insufficientBalanceError) || errors.As(err, &insufficientAllowanceError) {
		h.respondJSON(w, http.StatusPaymentRequired, modeldto.MessageResponse{Message: err.Error()})
	} else if errors.As(err, &unauthorizedError) {
		h.respondJSON(w, http.StatusForbidden, modeldto.MessageResponse{Message: err.Error()})
	} else {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// writeProxyError maps remote ledger failures onto the gateway status family.
func (h *Handler) writeProxyError(w http.ResponseWriter, err error) {
	h.log.Error().Err(err).Msg("remote ledger forwarding failed")
	var remoteCallError *proxy.RemoteCallError
	if errors.As(err, &remoteCallError) {
		h.respondJSON(w, http.StatusBadGateway, modeldto.MessageResponse{Message: err.Error()})
		return
	}
	http.Error(w, err.Error(), http.StatusBadGateway)
}

func (h *Handler) respondJSON(w http.ResponseWriter, status int, payload interface{}) {
	resBody, err := json.Marshal(payload)
	if err != nil {
		h.log.Error().Err(err).Msg("encoding response body failed")
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, err = w.Write(resBody)
	if err != nil {
		h.log.Error().Err(err).Msg("writing response body failed")
	}
}
