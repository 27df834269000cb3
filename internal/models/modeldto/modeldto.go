// Package modeldto provides types for API request and response bodies.
package modeldto

type (
	AuthRequest struct {
		Principal string `json:"principal,omitempty"`
	}
	AuthResponse struct {
		Principal   string `json:"principal"`
		AccessToken string `json:"access_token"`
	}
	RegisterRequest struct {
		Handle string `json:"handle"`
	}
	ClaimRequest struct {
		Handle string `json:"handle"`
	}
	ClaimResponse struct {
		Message string `json:"message"`
		Reward  uint64 `json:"reward"`
		Streak  uint64 `json:"streak"`
	}
	SetPrincipalRequest struct {
		Handle       string `json:"handle"`
		NewPrincipal string `json:"new_principal"`
	}
	User struct {
		Handle       string `json:"handle"`
		Principal    string `json:"principal"`
		DailyStreak  uint64 `json:"daily_streak"`
		WorkStreak   uint64 `json:"work_streak"`
		TotalRewards uint64 `json:"total_rewards"`
	}
	UserBalance struct {
		Handle       string `json:"handle"`
		Balance      string `json:"balance"`
		TotalRewards uint64 `json:"total_rewards"`
		DailyStreak  uint64 `json:"daily_streak"`
		WorkStreak   uint64 `json:"work_streak"`
	}
	TransferRequest struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	TransferFromRequest struct {
		From   string `json:"from"`
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	ApproveRequest struct {
		Spender string `json:"spender"`
		Amount  string `json:"amount"`
	}
	MintRequest struct {
		To     string `json:"to"`
		Amount string `json:"amount"`
	}
	TxResponse struct {
		Message string `json:"message"`
		TxIndex uint64 `json:"tx_index"`
	}
	MessageResponse struct {
		Message string `json:"message"`
	}
	SetValueRequest struct {
		Value string `json:"value"`
	}
	CustodianRequest struct {
		Principal string `json:"principal"`
	}
	Metadata struct {
		Logo        string `json:"logo"`
		Name        string `json:"name"`
		Symbol      string `json:"symbol"`
		Decimals    uint8  `json:"decimals"`
		TotalSupply string `json:"total_supply"`
		Owner       string `json:"owner"`
		Fee         string `json:"fee"`
	}
	TokenInfo struct {
		Metadata     Metadata `json:"metadata"`
		FeeTo        string   `json:"fee_to"`
		HistorySize  uint64   `json:"history_size"`
		DeployTime   int64    `json:"deploy_time"`
		HolderNumber int      `json:"holder_number"`
	}
	Holder struct {
		Principal string `json:"principal"`
		Balance   string `json:"balance"`
	}
	Approval struct {
		Spender   string `json:"spender"`
		Allowance string `json:"allowance"`
	}
	ProxyFTTransferRequest struct {
		Service string `json:"service"`
		To      string `json:"to"`
		Amount  string `json:"amount"`
	}
	ProxyNFTTransferRequest struct {
		Service string `json:"service"`
		To      string `json:"to"`
		TokenID string `json:"token_id"`
	}
	FetchRequest struct {
		URL string `json:"url"`
	}
	FetchResponse struct {
		Status  int               `json:"status"`
		Headers map[string]string `json:"headers"`
		Body    string            `json:"body"`
	}
)
