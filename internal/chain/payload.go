package chain

import "strconv"

// OptionStyle selects how Move Option arguments are rendered in JSON.
// Wallet adapters expect None as {"vec": []}; the fullnode submission API
// expects a plain null.
type OptionStyle int

const (
	OptionStyleWallet OptionStyle = iota
	OptionStyleSubmit
)

// EntryFunctionPayload is an entry-function call in the wallet-adapter
// shape. The frontend passes it to the user's wallet unchanged.
type EntryFunctionPayload struct {
	Function          string   `json:"function"`
	TypeArguments     []string `json:"typeArguments"`
	FunctionArguments []any    `json:"functionArguments"`
}

// U64 marks an unsigned integer argument. The submission API requires u64
// rendered as a decimal string; wallets accept the bare number.
type U64 uint64

// None is the absent value for an Option argument.
type None struct{}

// EncodeArgument renders a single function argument for the given style.
func EncodeArgument(value any, style OptionStyle) any {
	switch v := value.(type) {
	case None:
		if style == OptionStyleWallet {
			return map[string]any{"vec": []any{}}
		}
		return nil
	case U64:
		if style == OptionStyleSubmit {
			return strconv.FormatUint(uint64(v), 10)
		}
		return uint64(v)
	default:
		return value
	}
}

// EncodeOptional renders an Option argument: None for absent, the encoded
// value otherwise.
func EncodeOptional(value any, style OptionStyle) any {
	if value == nil {
		return EncodeArgument(None{}, style)
	}
	if _, ok := value.(None); ok {
		return EncodeArgument(None{}, style)
	}
	return EncodeArgument(value, style)
}

// EncodeArguments renders a full positional argument list.
func EncodeArguments(args []any, style OptionStyle) []any {
	encoded := make([]any, len(args))
	for i, arg := range args {
		encoded[i] = EncodeArgument(arg, style)
	}
	return encoded
}
