package chain

import (
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
)

// HashTaskID derives the bytes32 task digest used as the escrow and registry
// key: keccak256 of the identifier's UTF-8 bytes. Task identifiers are the
// only input hashed this way; deliverable content uses registry.HashContent.
func HashTaskID(id string) common.Hash {
	return crypto.Keccak256Hash([]byte(id))
}
