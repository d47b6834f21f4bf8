package evm

import (
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
)

const (
	messageSentEvent     = "MessageSent"
	executeMessageMethod = "executeMessage"
)

const gatewayABIJSON = `[
  {
    "type": "event",
    "name": "MessageSent",
    "anonymous": false,
    "inputs": [
      {"name": "messageId", "type": "bytes32", "indexed": true},
      {"name": "dstChainId", "type": "uint32", "indexed": false},
      {"name": "receiver", "type": "bytes", "indexed": false},
      {"name": "sender", "type": "bytes", "indexed": false},
      {"name": "nonce", "type": "uint64", "indexed": false},
      {"name": "payload", "type": "bytes", "indexed": false}
    ]
  },
  {
    "type": "function",
    "name": "executeMessage",
    "stateMutability": "nonpayable",
    "inputs": [
      {"name": "srcChainId", "type": "uint32"},
      {"name": "sender", "type": "bytes"},
      {"name": "receiver", "type": "bytes"},
      {"name": "nonce", "type": "uint64"},
      {"name": "payload", "type": "bytes"},
      {"name": "signature", "type": "bytes"}
    ],
    "outputs": []
  }
]`

// GatewayABI is the subset of the gateway contract interface the relayer uses.
var GatewayABI = mustParseABI(gatewayABIJSON)

func mustParseABI(s string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(s))
	if err != nil {
		panic(err)
	}
	return parsed
}

// MessageSent mirrors the MessageSent event of the gateway contract.
type MessageSent struct {
	MessageId  [32]byte
	DstChainId uint32
	Receiver   []byte
	Sender     []byte
	Nonce      uint64
	Payload    []byte
}
