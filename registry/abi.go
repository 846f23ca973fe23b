package registry

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

// VerificationRegistry contract interface. The registry is append-only: it
// records content digests of criteria, deliverables, and verification
// reports, never the content itself.
const contractJSON = `[
  {"type":"function","name":"setCriteria","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"},{"name":"criteriaHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"submitDeliverable","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"},{"name":"deliverableHash","type":"bytes32"}],"outputs":[]},
  {"type":"function","name":"recordVerification","stateMutability":"nonpayable","inputs":[{"name":"taskId","type":"bytes32"},{"name":"verificationHash","type":"bytes32"},{"name":"passed","type":"bool"}],"outputs":[]},
  {"type":"function","name":"getDeliverable","stateMutability":"view","inputs":[{"name":"taskId","type":"bytes32"}],"outputs":[{"name":"deliverableHash","type":"bytes32"},{"name":"criteriaHash","type":"bytes32"},{"name":"verificationHash","type":"bytes32"},{"name":"worker","type":"address"},{"name":"verifier","type":"address"},{"name":"submittedAt","type":"uint256"},{"name":"verifiedAt","type":"uint256"},{"name":"verified","type":"bool"},{"name":"passed","type":"bool"}]},
  {"type":"function","name":"getWorkerStats","stateMutability":"view","inputs":[{"name":"worker","type":"address"}],"outputs":[{"name":"submissions","type":"uint256"},{"name":"verifiedCount","type":"uint256"},{"name":"passedCount","type":"uint256"}]},
  {"type":"event","name":"CriteriaSet","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"criteriaHash","type":"bytes32","indexed":false},{"name":"requestor","type":"address","indexed":true}]},
  {"type":"event","name":"DeliverableSubmitted","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"deliverableHash","type":"bytes32","indexed":false},{"name":"worker","type":"address","indexed":true}]},
  {"type":"event","name":"VerificationRecorded","inputs":[{"name":"taskId","type":"bytes32","indexed":true},{"name":"verificationHash","type":"bytes32","indexed":false},{"name":"passed","type":"bool","indexed":false},{"name":"verifier","type":"address","indexed":true}]}
]`

// ContractABI is the parsed VerificationRegistry interface, shared with the
// mock backend.
var ContractABI = mustParseABI(contractJSON)

func mustParseABI(src string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(src))
	if err != nil {
		panic(err)
	}
	return parsed
}
