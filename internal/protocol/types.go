package protocol

import "strconv"

const (
	HeaderSize = 8
	// MaxPacketSize is the largest value the 24-bit size field can carry.
	MaxPacketSize = 0xFFFFFF
)

// MessageType is the one-byte packet type in the request/response header.
type MessageType uint8

const (
	ExchangePublicPeers      MessageType = 0
	BroadcastMessage         MessageType = 1
	BroadcastComputors       MessageType = 2
	BroadcastTick            MessageType = 3
	BroadcastFutureTickData  MessageType = 8
	RequestComputors         MessageType = 11
	RequestQuorumTick        MessageType = 14
	RequestTickData          MessageType = 16
	BroadcastTransaction     MessageType = 24
	RequestTransactionInfo   MessageType = 26
	RequestCurrentTickInfo   MessageType = 27
	RespondCurrentTickInfo   MessageType = 28
	RequestTickTransactions  MessageType = 29
	RequestEntity            MessageType = 31
	RespondEntity            MessageType = 32
	RequestContractIPO       MessageType = 33
	RespondContractIPO       MessageType = 34
	EndResponse              MessageType = 35
	RequestIssuedAssets      MessageType = 36
	RespondIssuedAssets      MessageType = 37
	RequestOwnedAssets       MessageType = 38
	RespondOwnedAssets       MessageType = 39
	RequestPossessedAssets   MessageType = 40
	RespondPossessedAssets   MessageType = 41
	RequestContractFunction  MessageType = 42
	RespondContractFunction  MessageType = 43
	RequestLog               MessageType = 44
	RespondLog               MessageType = 45
	RequestSystemInfo        MessageType = 46
	RespondSystemInfo        MessageType = 47
	TryAgain                 MessageType = 54
	RequestCustomMiningData  MessageType = 60
	RespondCustomMiningData  MessageType = 61
	RequestCustomMiningCheck MessageType = 62
	RespondCustomMiningCheck MessageType = 63
	SpecialCommand           MessageType = 255
)

var messageTypeNames = map[MessageType]string{
	ExchangePublicPeers:      "exchange_public_peers",
	BroadcastMessage:         "broadcast_message",
	BroadcastComputors:       "broadcast_computors",
	BroadcastTick:            "broadcast_tick",
	BroadcastFutureTickData:  "broadcast_future_tick_data",
	RequestComputors:         "request_computors",
	RequestQuorumTick:        "request_quorum_tick",
	RequestTickData:          "request_tick_data",
	BroadcastTransaction:     "broadcast_transaction",
	RequestTransactionInfo:   "request_transaction_info",
	RequestCurrentTickInfo:   "request_current_tick_info",
	RespondCurrentTickInfo:   "respond_current_tick_info",
	RequestTickTransactions:  "request_tick_transactions",
	RequestEntity:            "request_entity",
	RespondEntity:            "respond_entity",
	RequestContractIPO:       "request_contract_ipo",
	RespondContractIPO:       "respond_contract_ipo",
	EndResponse:              "end_response",
	RequestIssuedAssets:      "request_issued_assets",
	RespondIssuedAssets:      "respond_issued_assets",
	RequestOwnedAssets:       "request_owned_assets",
	RespondOwnedAssets:       "respond_owned_assets",
	RequestPossessedAssets:   "request_possessed_assets",
	RespondPossessedAssets:   "respond_possessed_assets",
	RequestContractFunction:  "request_contract_function",
	RespondContractFunction:  "respond_contract_function",
	RequestLog:               "request_log",
	RespondLog:               "respond_log",
	RequestSystemInfo:        "request_system_info",
	RespondSystemInfo:        "respond_system_info",
	TryAgain:                 "try_again",
	RequestCustomMiningData:  "request_custom_mining_data",
	RespondCustomMiningData:  "respond_custom_mining_data",
	RequestCustomMiningCheck: "request_custom_mining_solution_verification",
	RespondCustomMiningCheck: "respond_custom_mining_solution_verification",
	SpecialCommand:           "special_command",
}

func (t MessageType) String() string {
	if name, ok := messageTypeNames[t]; ok {
		return name
	}
	return "message_type_" + strconv.Itoa(int(t))
}

// Header is the request/response header that prefixes every packet.
// Size counts the whole packet, header included.
type Header struct {
	Size   uint32
	Type   MessageType
	Dejavu uint32
}

// PayloadLen is the number of bytes following the header.
func (h Header) PayloadLen() int {
	if h.Size < HeaderSize {
		return 0
	}
	return int(h.Size) - HeaderSize
}

// TickInfo is the network's current round as reported by a node or the live service.
type TickInfo struct {
	Tick        uint32 `json:"tick"`
	Duration    uint32 `json:"duration"`
	Epoch       uint32 `json:"epoch"`
	InitialTick uint32 `json:"initialTick"`
}
