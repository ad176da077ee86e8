package lido

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"
	"time"

	"plutus/pkg/api"
	"plutus/pkg/config"
	"plutus/pkg/provider"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

const user = "0x1111111111111111111111111111111111111111"

var testCfg = config.LidoConfig{
	RPCURL:          "http://rpc.invalid",
	ChainID:         17000,
	StETH:           "0x3F1c547b21f65e10480dE3ad8E19fAAC46C95034",
	WstETH:          "0x8d09a4502Cc8Cf1547aD300E066060D043f6982D",
	WithdrawalQueue: "0xc7cc160b58F8Bb0baC94b80847E2CF2800565C50",
}

type fakeChain struct {
	eth      *big.Int
	tokens   map[common.Address]*big.Int
	dialed   string
	closed   bool
	failCall bool
}

func (f *fakeChain) BalanceAt(ctx context.Context, a common.Address, _ *big.Int) (*big.Int, error) {
	return f.eth, nil
}

func (f *fakeChain) CallContract(ctx context.Context, call ethereum.CallMsg, _ *big.Int) ([]byte, error) {
	if f.failCall {
		return nil, errors.New("execution reverted")
	}
	return stETHABI.Methods["balanceOf"].Outputs.Pack(f.tokens[*call.To])
}

func (f *fakeChain) Close() { f.closed = true }

func newTestTool(t *testing.T, chain *fakeChain, handle string) (*Tool, context.Context) {
	t.Helper()
	reg := provider.NewRegistry()
	ctx := provider.WithSession(context.Background(), "s1")
	if handle != "" {
		if err := reg.SetProvider("s1", provider.Handle(handle)); err != nil {
			t.Fatal(err)
		}
		if err := reg.SetAddress("s1", user); err != nil {
			t.Fatal(err)
		}
	}
	tool := New(testCfg, reg,
		WithProviderWait(func() time.Duration { return 50 * time.Millisecond }),
		WithDialer(func(ctx context.Context, url string) (ChainReader, error) {
			chain.dialed = url
			return chain, nil
		}),
	)
	return tool, ctx
}

func exec(t *testing.T, tool *Tool, ctx context.Context, args string) api.ToolResult {
	t.Helper()
	return tool.Execute(ctx, []byte(args))
}

func TestGetBalances(t *testing.T) {
	t.Parallel()

	chain := &fakeChain{
		eth: big.NewInt(2_500_000_000_000_000_000),
		tokens: map[common.Address]*big.Int{
			common.HexToAddress(testCfg.StETH):  big.NewInt(1_000_000_000_000_000_000),
			common.HexToAddress(testCfg.WstETH): big.NewInt(0),
		},
	}
	tool, ctx := newTestTool(t, chain, `{"rpcUrl":"http://wallet-rpc","chainId":1}`)

	res := exec(t, tool, ctx, `{"operation":"getBalances","params":{}}`)
	if res.IsError() {
		t.Fatalf("getBalances: %s", res)
	}
	out := res.Payload.(map[string]any)
	if out["ethBalance"] != "2500000000000000000" || out["stETHBalance"] != "1000000000000000000" {
		t.Fatalf("balances = %+v", out)
	}
	if f := out["formatted"].(map[string]string); f["eth"] != "2.5" || f["wstETH"] != "0" {
		t.Fatalf("formatted = %+v", f)
	}
	if chain.dialed != "http://wallet-rpc" || !chain.closed {
		t.Fatalf("dialed %q closed %v", chain.dialed, chain.closed)
	}
}

func TestGetBalancesCallFailure(t *testing.T) {
	t.Parallel()

	chain := &fakeChain{eth: big.NewInt(1), failCall: true}
	tool, ctx := newTestTool(t, chain, `{"name":"metamask"}`)

	res := exec(t, tool, ctx, `{"operation":"getBalances"}`)
	if !res.IsError() || res.Failure.Operation != "getBalances" || !strings.Contains(res.Failure.Message, "reverted") {
		t.Fatalf("res = %s", res)
	}
	if chain.dialed != testCfg.RPCURL {
		t.Fatalf("dialed %q, want configured rpc", chain.dialed)
	}
}

func TestStakeETHBuildsSubmitTx(t *testing.T) {
	t.Parallel()

	tool, ctx := newTestTool(t, &fakeChain{}, `{"name":"metamask"}`)
	res := exec(t, tool, ctx, `{"operation":"stakeETH","params":{"amount":0.5}}`)
	if res.IsError() {
		t.Fatalf("stakeETH: %s", res)
	}

	tx := res.Payload.(map[string]any)["transaction"].(map[string]any)
	if tx["value"] != hexutil.EncodeBig(big.NewInt(500_000_000_000_000_000)) {
		t.Fatalf("value = %v", tx["value"])
	}
	if tx["to"] != common.HexToAddress(testCfg.StETH).Hex() || tx["chainId"] != int64(17000) {
		t.Fatalf("tx = %+v", tx)
	}
	want, _ := stETHABI.Pack("submit", common.Address{})
	if tx["data"] != hexutil.Encode(want) {
		t.Fatalf("data = %v", tx["data"])
	}
}

func TestWriteOperations(t *testing.T) {
	t.Parallel()

	tool, ctx := newTestTool(t, &fakeChain{}, `{"name":"metamask"}`)

	res := exec(t, tool, ctx, `{"operation":"wrapETH","params":{"amount":"1"}}`)
	tx := res.Payload.(map[string]any)["transaction"].(map[string]any)
	if tx["data"] != "0x" || tx["to"] != common.HexToAddress(testCfg.WstETH).Hex() {
		t.Fatalf("wrap tx = %+v", tx)
	}

	res = exec(t, tool, ctx, `{"operation":"unwrapETH","params":{"amount":"2"}}`)
	tx = res.Payload.(map[string]any)["transaction"].(map[string]any)
	if tx["value"] != "0x0" || !strings.HasPrefix(tx["data"].(string), hexutil.Encode(wstETHABI.Methods["unwrap"].ID)) {
		t.Fatalf("unwrap tx = %+v", tx)
	}

	res = exec(t, tool, ctx, `{"operation":"withdrawStETH","params":{"amount":2500}}`)
	if res.IsError() {
		t.Fatalf("withdraw: %s", res)
	}
	out := res.Payload.(map[string]any)
	if out["requests"] != 3 || len(out["transactions"].([]map[string]any)) != 2 {
		t.Fatalf("withdraw = %+v", out)
	}
}

func TestValidationAndAmounts(t *testing.T) {
	t.Parallel()

	tool, ctx := newTestTool(t, &fakeChain{}, `{"name":"metamask"}`)
	cases := map[string]string{
		`{"operation":"stakeETH","params":{}}`:                                    "Invalid params",
		`{"operation":"stakeETH","params":{"amount":-1}}`:                         "Amount is required for staking",
		`{"operation":"wrapETH","params":{"amount":"0.0000000000000000001"}}`:     "more than 18 decimals",
		`{"operation":"stakeETH","params":{"amount":1,"referralAddress":"nope"}}`: "invalid referral address",
		`{"operation":"mintETH"}`:                                                 "Unknown operation: mintETH",
	}
	for args, want := range cases {
		res := exec(t, tool, ctx, args)
		if !res.IsError() || !strings.Contains(res.Failure.Message, want) {
			t.Fatalf("%s: res = %s, want %q", args, res, want)
		}
	}
}

func TestWaitsForProvider(t *testing.T) {
	t.Parallel()

	tool, ctx := newTestTool(t, &fakeChain{}, "")
	res := exec(t, tool, ctx, `{"operation":"wrapETH","params":{"amount":1}}`)
	if !res.IsError() || !strings.Contains(res.Failure.Message, "Web3 provider not found") {
		t.Fatalf("res = %s", res)
	}
}

func TestWaitsUntilProviderArrives(t *testing.T) {
	t.Parallel()

	reg := provider.NewRegistry()
	tool := New(testCfg, reg, WithProviderWait(func() time.Duration { return 2 * time.Second }))
	ctx := provider.WithSession(context.Background(), "late")

	go func() {
		time.Sleep(30 * time.Millisecond)
		_ = reg.SetProvider("late", provider.Handle(`{"name":"metamask"}`))
		_ = reg.SetAddress("late", user)
	}()

	res := tool.Execute(ctx, []byte(`{"operation":"wrapETH","params":{"amount":1}}`))
	if res.IsError() {
		t.Fatalf("res = %s", res)
	}
}

func TestAmountWei(t *testing.T) {
	t.Parallel()

	cases := map[Amount]string{"1": "1000000000000000000", "0.000000000000000001": "1", "1e-3": "1000000000000000"}
	for in, want := range cases {
		got, err := in.Wei()
		if err != nil || got.String() != want {
			t.Fatalf("%s: got %v err %v, want %s", in, got, err, want)
		}
	}
	if _, err := Amount("").Wei(); !errors.Is(err, errAmountRequired) {
		t.Fatalf("empty: %v", err)
	}
	if _, err := Amount("abc").Wei(); !errors.Is(err, errAmountInvalid) {
		t.Fatalf("abc: %v", err)
	}
	if s := formatEther(big.NewInt(1_500_000_000_000_000_000)); s != "1.5" {
		t.Fatalf("formatEther = %s", s)
	}
}
