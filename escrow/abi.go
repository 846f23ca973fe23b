package escrow

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// TaskEscrow contract interface. The escrow holds a token deposit per task
// and walks it through None -> Active -> {Released, Disputed, Refunded};
// disputes resolve via the arbitrator or time out back to the requestor.
const contractJSON = `[
  {"type":"function","name":"createEscrow","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"},{"name":"worker","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"}],"outputs":[]},
  {"type":"function","name":"releaseEscrow","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"dispute","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"resolveDispute","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"},{"name":"releaseToWorker","type":"bool"}],"outputs":[]},
  {"type":"function","name":"claimDisputeTimeout","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"releaseAfterDeadline","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"refund","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"escrows","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"requestor","type":"address"},{"name":"worker","type":"address"},{"name":"amount","type":"uint256"},{"name":"deadline","type":"uint256"},{"name":"status","type":"uint8"}]},
  {"type":"function","name":"disputeTimestamps","stateMutability":"view","inputs":[{"name":"","type":"bytes32"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"disputeTimeout","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"arbitrator","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"function","name":"usdc","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"address"}]},
  {"type":"event","name":"EscrowCreated","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"requestor","type":"address","indexed":false},{"name":"worker","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false},{"name":"deadline","type":"uint256","indexed":false}]},
  {"type":"event","name":"EscrowReleased","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"worker","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]},
  {"type":"event","name":"EscrowDisputed","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"disputedBy","type":"address","indexed":false}]},
  {"type":"event","name":"EscrowRefunded","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"requestor","type":"address","indexed":false},{"name":"amount","type":"uint256","indexed":false}]}
]`

// ERC-20 subset the escrow flow touches.
const erc20JSON = `[
  {"type":"function","name":"approve","stateMutability":"nonpayable","inputs":[{"name":"spender","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"allowance","stateMutability":"view","inputs":[{"name":"owner","type":"address"},{"name":"spender","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"balanceOf","stateMutability":"view","inputs":[{"name":"","type":"address"}],"outputs":[{"name":"","type":"uint256"}]},
  {"type":"function","name":"transfer","stateMutability":"nonpayable","inputs":[{"name":"to","type":"address"},{"name":"amount","type":"uint256"}],"outputs":[{"name":"","type":"bool"}]},
  {"type":"function","name":"decimals","stateMutability":"view","inputs":[],"outputs":[{"name":"","type":"uint8"}]}
]`

// ContractABI is the parsed TaskEscrow interface, shared with the mock
// backend and the reputation event scanner.
var ContractABI = mustParseABI(contractJSON)

// ERC20ABI is the parsed token interface used for approvals.
var ERC20ABI = mustParseABI(erc20JSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}
