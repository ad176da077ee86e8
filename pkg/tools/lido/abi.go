package lido

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const stETHABIJSON = `[
 {"type":"function","name":"submit","stateMutability":"payable",
  "inputs":[{"name":"_referral","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view",
  "inputs":[{"name":"_account","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"approve","stateMutability":"nonpayable",
  "inputs":[{"name":"_spender","type":"address"},{"name":"_amount","type":"uint256"}],
  "outputs":[{"name":"","type":"bool"}]}
]`

const wstETHABIJSON = `[
 {"type":"function","name":"unwrap","stateMutability":"nonpayable",
  "inputs":[{"name":"_wstETHAmount","type":"uint256"}],
  "outputs":[{"name":"","type":"uint256"}]},
 {"type":"function","name":"balanceOf","stateMutability":"view",
  "inputs":[{"name":"account","type":"address"}],
  "outputs":[{"name":"","type":"uint256"}]}
]`

const withdrawalQueueABIJSON = `[
 {"type":"function","name":"requestWithdrawals","stateMutability":"nonpayable",
  "inputs":[{"name":"_amounts","type":"uint256[]"},{"name":"_owner","type":"address"}],
  "outputs":[{"name":"requestIds","type":"uint256[]"}]}
]`

var (
	stETHABI           = mustABI(stETHABIJSON)
	wstETHABI          = mustABI(wstETHABIJSON)
	withdrawalQueueABI = mustABI(withdrawalQueueABIJSON)
)

func mustABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}
