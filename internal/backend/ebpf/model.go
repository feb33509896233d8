package ebpf

// Names of the model declarations the backend lowers specially.
const (
	ModelPacketIn     = "packet_in"
	ModelPacketOut    = "packet_out"
	ModelExtract      = "extract"
	ModelEmit         = "emit"
	ModelCounterArray = "CounterArray"
	ModelIncrement    = "increment"
	ModelAdd          = "add"
	ModelArrayTable   = "array_table"
	ModelHashTable    = "hash_table"
	ModelExactMatch   = "exact"
)

// Counter maps are indexed by bit<32> and count in bit<32>.
const (
	counterIndexType = "u32"
	counterValueType = "u32"
)

// Fixed names of the generated C.
const (
	skbVar         = "skb"
	packetStartVar = "ebpf_packetStart"
	packetEndVar   = "ebpf_packetEnd"
	offsetVar      = "ebpf_packetOffsetInBits"
	byteVar        = "ebpf_byte"
	zeroKeyVar     = "ebpf_zero"
	errorCodeVar   = "ebpf_errorCode"
	errorEnumName  = "ebpf_errorCodes"
	validField     = "ebpf_valid"
	rejectLabel    = "ebpf_reject"
	entryFunction  = "ebpf_filter"
	codeSection    = "classifier"
	license        = "GPL"
	tooShortError  = "PacketTooShort"
)
