// Package lido implements the Lido liquid staking tool. Reads go to the chain
// through ethclient; writes are returned as unsigned transactions for the
// client wallet to sign.
package lido

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"plutus/pkg/api"
	"plutus/pkg/config"
	"plutus/pkg/provider"
	"plutus/pkg/tools"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/ethclient"
	jsoniter "github.com/json-iterator/go"
)

const Name = "LidoStakingTool"

// maxWithdrawalRequest is the WithdrawalQueue per-request cap (1000 stETH).
var maxWithdrawalRequest = new(big.Int).Mul(big.NewInt(1000), weiPerEther)

var errNoRPC = errors.New("no RPC endpoint configured")

// ChainReader is the subset of ethclient used for balance reads.
type ChainReader interface {
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
	CallContract(ctx context.Context, call ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
	Close()
}

// Dialer opens a ChainReader for rpcURL.
type Dialer func(ctx context.Context, rpcURL string) (ChainReader, error)

func dialEthclient(ctx context.Context, rpcURL string) (ChainReader, error) {
	c, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// Tool is the Lido staking tool.
type Tool struct {
	cfg        config.LidoConfig
	providers  *provider.Registry
	dial       Dialer
	wait       func() time.Duration
	dispatcher *tools.Dispatcher
}

type Option func(*Tool)

// WithDialer replaces the ethclient dialer.
func WithDialer(d Dialer) Option {
	return func(t *Tool) { t.dial = d }
}

// WithProviderWait sets how long an operation waits for the wallet provider.
// The function is called per operation so reloaded settings apply.
func WithProviderWait(fn func() time.Duration) Option {
	return func(t *Tool) { t.wait = fn }
}

func New(cfg config.LidoConfig, providers *provider.Registry, opts ...Option) *Tool {
	t := &Tool{
		cfg:       cfg,
		providers: providers,
		dial:      dialEthclient,
		wait:      func() time.Duration { return 30 * time.Second },
	}
	for _, o := range opts {
		o(t)
	}

	amount := map[string]any{
		"type":        "object",
		"properties":  map[string]any{"amount": amountSchema},
		"required":    []string{"amount"},
		"description": "amount in ETH",
	}
	t.dispatcher = tools.MustDispatcher(Name,
		tools.Operation{
			Name:        "stakeETH",
			Description: "Stake ETH and receive stETH.",
			Params: map[string]any{
				"type": "object",
				"properties": map[string]any{
					"amount":          amountSchema,
					"referralAddress": map[string]any{"type": "string"},
				},
				"required": []string{"amount"},
			},
			Run: tools.Bind(t.stakeETH),
		},
		tools.Operation{
			Name:        "getBalances",
			Description: "Fetch ETH, stETH and wstETH balances of the connected wallet.",
			Run:         tools.Bind(t.getBalances),
		},
		tools.Operation{
			Name:        "withdrawStETH",
			Description: "Request withdrawal of stETH.",
			Params:      amount,
			Run:         tools.Bind(t.withdrawStETH),
		},
		tools.Operation{
			Name:        "wrapETH",
			Description: "Convert ETH to wstETH.",
			Params:      amount,
			Run:         tools.Bind(t.wrapETH),
		},
		tools.Operation{
			Name:        "unwrapETH",
			Description: "Convert wstETH back to stETH.",
			Params:      amount,
			Run:         tools.Bind(t.unwrapETH),
		},
	)
	return t
}

var amountSchema = map[string]any{
	"type": []string{"number", "string"},
}

func (t *Tool) Name() string { return Name }

func (t *Tool) Description() string {
	return t.dispatcher.Describe("Interact with Lido Ethereum staking. The user address is already set; " +
		"only stakeETH accepts an optional referralAddress. Write operations return unsigned transactions.")
}

func (t *Tool) Schema() map[string]any { return t.dispatcher.Schema() }

func (t *Tool) Execute(ctx context.Context, args jsoniter.RawMessage) api.ToolResult {
	return t.dispatcher.Dispatch(ctx, args)
}

type amountParams struct {
	Amount Amount `json:"amount"`
}

type stakeParams struct {
	Amount          Amount `json:"amount"`
	ReferralAddress string `json:"referralAddress"`
}

// wallet is the resolved wallet context of one operation.
type wallet struct {
	address common.Address
	rpcURL  string
	chainID int64
}

// resolve waits for the connection's provider and address.
func (t *Tool) resolve(ctx context.Context) (*wallet, error) {
	ctx, cancel := context.WithTimeout(ctx, t.wait())
	defer cancel()

	session := provider.SessionFrom(ctx)
	handle, err := t.providers.Provider(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("Web3 provider not found: %w", err)
	}
	addr, err := t.providers.Address(ctx, session)
	if err != nil {
		return nil, fmt.Errorf("User address not found: %w", err)
	}
	if !common.IsHexAddress(addr) {
		return nil, fmt.Errorf("invalid user address %q", addr)
	}

	w := &wallet{address: common.HexToAddress(addr), rpcURL: t.cfg.RPCURL, chainID: t.cfg.ChainID}
	if rpcURL, chainID := handle.Endpoint(); rpcURL != "" {
		w.rpcURL = rpcURL
		if chainID != 0 {
			w.chainID = chainID
		}
	}
	return w, nil
}

func (t *Tool) getBalances(ctx context.Context, _ struct{}) api.ToolResult {
	w, err := t.resolve(ctx)
	if err != nil {
		return tools.Fail("", err)
	}
	if w.rpcURL == "" {
		return tools.Fail("", errNoRPC)
	}

	client, err := t.dial(ctx, w.rpcURL)
	if err != nil {
		return api.Failuref("", "Failed to fetch balances: %v", err)
	}
	defer client.Close()

	eth, err := client.BalanceAt(ctx, w.address, nil)
	if err != nil {
		return api.Failuref("", "Failed to fetch balances: %v", err)
	}
	steth, err := t.tokenBalance(ctx, client, t.cfg.StETH, w.address)
	if err != nil {
		return api.Failuref("", "Failed to fetch stETH balance: %v", err)
	}
	wsteth, err := t.tokenBalance(ctx, client, t.cfg.WstETH, w.address)
	if err != nil {
		return api.Failuref("", "Failed to fetch wstETH balance: %v", err)
	}

	return api.Success(map[string]any{
		"address":       w.address.Hex(),
		"ethBalance":    eth.String(),
		"stETHBalance":  steth.String(),
		"wstETHBalance": wsteth.String(),
		"formatted": map[string]string{
			"eth":    formatEther(eth),
			"stETH":  formatEther(steth),
			"wstETH": formatEther(wsteth),
		},
	})
}

func (t *Tool) tokenBalance(ctx context.Context, client ChainReader, token string, owner common.Address) (*big.Int, error) {
	data, err := stETHABI.Pack("balanceOf", owner)
	if err != nil {
		return nil, err
	}
	to := common.HexToAddress(token)
	out, err := client.CallContract(ctx, ethereum.CallMsg{To: &to, Data: data}, nil)
	if err != nil {
		return nil, err
	}
	vals, err := stETHABI.Unpack("balanceOf", out)
	if err != nil {
		return nil, err
	}
	bal, ok := vals[0].(*big.Int)
	if !ok {
		return nil, fmt.Errorf("unexpected balanceOf result %T", vals[0])
	}
	return bal, nil
}

func (t *Tool) stakeETH(ctx context.Context, p stakeParams) api.ToolResult {
	value, err := p.Amount.Wei()
	if err != nil {
		return api.Failuref("", "Amount is required for staking: %v", err)
	}
	referral := common.Address{}
	if r := strings.TrimSpace(p.ReferralAddress); r != "" {
		if !common.IsHexAddress(r) {
			return api.Failuref("", "invalid referral address %q", r)
		}
		referral = common.HexToAddress(r)
	}

	w, err := t.resolve(ctx)
	if err != nil {
		return tools.Fail("", err)
	}
	data, err := stETHABI.Pack("submit", referral)
	if err != nil {
		return tools.Fail("", err)
	}

	return api.Success(map[string]any{
		"addressStETH": t.cfg.StETH,
		"transaction":  newTx(w, t.cfg.StETH, data, value),
	})
}

func (t *Tool) withdrawStETH(ctx context.Context, p amountParams) api.ToolResult {
	total, err := p.Amount.Wei()
	if err != nil {
		return api.Failuref("", "Amount is required for withdrawal: %v", err)
	}
	w, err := t.resolve(ctx)
	if err != nil {
		return tools.Fail("", err)
	}

	approve, err := stETHABI.Pack("approve", common.HexToAddress(t.cfg.WithdrawalQueue), total)
	if err != nil {
		return tools.Fail("", err)
	}
	amounts := splitWithdrawal(total)
	request, err := withdrawalQueueABI.Pack("requestWithdrawals", amounts, w.address)
	if err != nil {
		return tools.Fail("", err)
	}

	return api.Success(map[string]any{
		"addressWithdrawalQueue": t.cfg.WithdrawalQueue,
		"requests":               len(amounts),
		"transactions": []map[string]any{
			newTx(w, t.cfg.StETH, approve, nil),
			newTx(w, t.cfg.WithdrawalQueue, request, nil),
		},
	})
}

func (t *Tool) wrapETH(ctx context.Context, p amountParams) api.ToolResult {
	value, err := p.Amount.Wei()
	if err != nil {
		return api.Failuref("", "Amount is required for wrapping: %v", err)
	}
	w, err := t.resolve(ctx)
	if err != nil {
		return tools.Fail("", err)
	}
	// wstETH wraps ETH sent to its receive function
	return api.Success(map[string]any{
		"transaction": newTx(w, t.cfg.WstETH, nil, value),
	})
}

func (t *Tool) unwrapETH(ctx context.Context, p amountParams) api.ToolResult {
	amount, err := p.Amount.Wei()
	if err != nil {
		return api.Failuref("", "Amount is required for unwrapping: %v", err)
	}
	w, err := t.resolve(ctx)
	if err != nil {
		return tools.Fail("", err)
	}
	data, err := wstETHABI.Pack("unwrap", amount)
	if err != nil {
		return tools.Fail("", err)
	}
	return api.Success(map[string]any{
		"transaction": newTx(w, t.cfg.WstETH, data, nil),
	})
}

// splitWithdrawal splits total into WithdrawalQueue-sized requests.
func splitWithdrawal(total *big.Int) []*big.Int {
	var out []*big.Int
	rest := new(big.Int).Set(total)
	for rest.Cmp(maxWithdrawalRequest) > 0 {
		out = append(out, new(big.Int).Set(maxWithdrawalRequest))
		rest.Sub(rest, maxWithdrawalRequest)
	}
	return append(out, rest)
}

// newTx renders an unsigned transaction request.
func newTx(w *wallet, to string, data []byte, value *big.Int) map[string]any {
	if value == nil {
		value = new(big.Int)
	}
	tx := map[string]any{
		"from":    w.address.Hex(),
		"to":      common.HexToAddress(to).Hex(),
		"value":   hexutil.EncodeBig(value),
		"chainId": w.chainID,
		"data":    "0x",
	}
	if len(data) > 0 {
		tx["data"] = hexutil.Encode(data)
	}
	return tx
}
