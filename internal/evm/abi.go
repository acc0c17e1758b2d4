package evm

import (
	"fmt"
	"math/big"
	"strings"

	"golang.org/x/crypto/sha3"
)

// ArgType enumerates the Solidity types used by the monitored contract.
// The codec covers exactly these; anything else is a decode failure.
type ArgType string

const (
	TypeAddress ArgType = "address"
	TypeUint256 ArgType = "uint256"
	TypeBool    ArgType = "bool"
	TypeString  ArgType = "string"
)

// wordSize is the EVM ABI word size in bytes.
const wordSize = 32

// Arg describes one event argument.
type Arg struct {
	Name    string
	Type    ArgType
	Indexed bool
}

// EventDef describes one contract event. Topic0 is derived from the
// canonical signature at construction time.
type EventDef struct {
	EventName string
	Args      []Arg

	topic0 string
}

// NewEventDef builds an event definition and precomputes its topic hash.
func NewEventDef(name string, args ...Arg) *EventDef {
	d := &EventDef{EventName: name, Args: args}
	d.topic0 = EncodeHex(Keccak256([]byte(d.Signature())))
	return d
}

// Signature returns the canonical event signature, e.g.
// "TokensPurchased(address,address,uint256,uint256,uint256)".
func (d *EventDef) Signature() string {
	types := make([]string, len(d.Args))
	for i, a := range d.Args {
		types[i] = string(a.Type)
	}
	return d.EventName + "(" + strings.Join(types, ",") + ")"
}

// Topic returns the keccak-256 topic hash identifying this event.
func (d *EventDef) Topic() string {
	return d.topic0
}

// DecodedEvent is the untyped result of decoding a log against a
// definition. Values are keyed by argument name:
// address -> string (lowercased), uint256 -> *big.Int,
// bool -> bool, string -> string.
type DecodedEvent struct {
	Def    *EventDef
	Values map[string]interface{}
}

// Address returns a decoded address argument.
func (e *DecodedEvent) Address(name string) string {
	s, _ := e.Values[name].(string)
	return s
}

// BigInt returns a decoded uint256 argument, never nil.
func (e *DecodedEvent) BigInt(name string) *big.Int {
	if v, ok := e.Values[name].(*big.Int); ok {
		return v
	}
	return new(big.Int)
}

// String returns a decoded string argument.
func (e *DecodedEvent) String(name string) string {
	s, _ := e.Values[name].(string)
	return s
}

// Decode decodes a log's topics and data against the definition.
// The caller is expected to have matched topic0 already; Decode
// re-checks it and fails on mismatch.
func (d *EventDef) Decode(log *Log) (*DecodedEvent, error) {
	if len(log.Topics) == 0 || !strings.EqualFold(log.Topics[0], d.topic0) {
		return nil, fmt.Errorf("log topic does not match %s", d.EventName)
	}

	values := make(map[string]interface{}, len(d.Args))

	// Indexed arguments come from topics[1:], in declaration order.
	topicIdx := 1
	for _, a := range d.Args {
		if !a.Indexed {
			continue
		}
		if topicIdx >= len(log.Topics) {
			return nil, fmt.Errorf("%s: missing topic for indexed arg %s", d.EventName, a.Name)
		}
		word, err := DecodeHex(log.Topics[topicIdx])
		if err != nil {
			return nil, fmt.Errorf("%s: topic %d: %w", d.EventName, topicIdx, err)
		}
		v, err := decodeStaticWord(a.Type, word)
		if err != nil {
			return nil, fmt.Errorf("%s: arg %s: %w", d.EventName, a.Name, err)
		}
		values[a.Name] = v
		topicIdx++
	}

	// Non-indexed arguments come from the data section: one head word
	// per argument, with dynamic types storing an offset to their tail.
	data, err := DecodeHex(log.Data)
	if err != nil {
		return nil, fmt.Errorf("%s: data: %w", d.EventName, err)
	}

	headIdx := 0
	for _, a := range d.Args {
		if a.Indexed {
			continue
		}
		head, err := dataWord(data, headIdx)
		if err != nil {
			return nil, fmt.Errorf("%s: arg %s: %w", d.EventName, a.Name, err)
		}
		headIdx++

		if a.Type == TypeString {
			offset := new(big.Int).SetBytes(head)
			s, err := decodeDynamicString(data, offset)
			if err != nil {
				return nil, fmt.Errorf("%s: arg %s: %w", d.EventName, a.Name, err)
			}
			values[a.Name] = s
			continue
		}

		v, err := decodeStaticWord(a.Type, head)
		if err != nil {
			return nil, fmt.Errorf("%s: arg %s: %w", d.EventName, a.Name, err)
		}
		values[a.Name] = v
	}

	return &DecodedEvent{Def: d, Values: values}, nil
}

// decodeStaticWord decodes one 32-byte word as a static type.
func decodeStaticWord(t ArgType, word []byte) (interface{}, error) {
	if len(word) != wordSize {
		return nil, fmt.Errorf("word is %d bytes, want %d", len(word), wordSize)
	}
	switch t {
	case TypeAddress:
		return strings.ToLower(EncodeHex(word[12:])), nil
	case TypeUint256:
		return new(big.Int).SetBytes(word), nil
	case TypeBool:
		return word[wordSize-1] == 1, nil
	default:
		return nil, fmt.Errorf("type %s is not static", t)
	}
}

// decodeDynamicString reads a length-prefixed UTF-8 tail at offset.
// Bounds are compared in int64 space before any conversion so that
// huge offset or length words from a malformed log cannot wrap the
// arithmetic and slip past the range checks.
func decodeDynamicString(data []byte, offset *big.Int) (string, error) {
	if offset.Sign() < 0 || !offset.IsInt64() || offset.Int64() > int64(len(data))-wordSize {
		return "", fmt.Errorf("string offset out of range")
	}
	off := int(offset.Int64())
	start := off + wordSize

	length := new(big.Int).SetBytes(data[off:start])
	if !length.IsInt64() || length.Int64() > int64(len(data)-start) {
		return "", fmt.Errorf("string length out of range")
	}
	n := int(length.Int64())
	return string(data[start : start+n]), nil
}

// dataWord returns the i-th 32-byte head word.
func dataWord(data []byte, i int) ([]byte, error) {
	start := i * wordSize
	if start+wordSize > len(data) {
		return nil, fmt.Errorf("data too short for word %d", i)
	}
	return data[start : start+wordSize], nil
}

// Keccak256 computes the legacy Keccak-256 digest used by the EVM for
// event topics and function selectors.
func Keccak256(b []byte) []byte {
	h := sha3.NewLegacyKeccak256()
	h.Write(b)
	return h.Sum(nil)
}

// Selector computes the 4-byte function selector for a canonical
// method signature, e.g. "collateral(address)".
func Selector(signature string) []byte {
	return Keccak256([]byte(signature))[:4]
}

// PadAddress left-pads a hex address to a 32-byte ABI word.
func PadAddress(addr string) ([]byte, error) {
	b, err := DecodeHex(addr)
	if err != nil {
		return nil, err
	}
	if len(b) != 20 {
		return nil, fmt.Errorf("address is %d bytes, want 20", len(b))
	}
	word := make([]byte, wordSize)
	copy(word[12:], b)
	return word, nil
}

// PadBigInt left-pads an unsigned integer to a 32-byte ABI word.
func PadBigInt(v *big.Int) []byte {
	word := make([]byte, wordSize)
	b := v.Bytes()
	copy(word[wordSize-len(b):], b)
	return word
}

// CallData packs a contract call: selector followed by one padded
// word per static argument.
func CallData(signature string, args ...[]byte) string {
	data := Selector(signature)
	for _, a := range args {
		data = append(data, a...)
	}
	return EncodeHex(data)
}

// EncodeEventData ABI-encodes the non-indexed arguments of an event
// definition into a data hex string. Values follow the same mapping as
// DecodedEvent. Used to build synthetic logs in tests and fixtures.
func EncodeEventData(d *EventDef, values map[string]interface{}) (string, error) {
	var nonIndexed []Arg
	for _, a := range d.Args {
		if !a.Indexed {
			nonIndexed = append(nonIndexed, a)
		}
	}

	head := make([]byte, 0, len(nonIndexed)*wordSize)
	var tail []byte
	tailBase := len(nonIndexed) * wordSize

	for _, a := range nonIndexed {
		v, ok := values[a.Name]
		if !ok {
			return "", fmt.Errorf("missing value for %s", a.Name)
		}
		switch a.Type {
		case TypeString:
			s, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("arg %s: want string", a.Name)
			}
			head = append(head, PadBigInt(big.NewInt(int64(tailBase+len(tail))))...)
			tail = append(tail, PadBigInt(big.NewInt(int64(len(s))))...)
			padded := len(s)
			if rem := padded % wordSize; rem != 0 {
				padded += wordSize - rem
			}
			chunk := make([]byte, padded)
			copy(chunk, s)
			tail = append(tail, chunk...)
		case TypeAddress:
			s, ok := v.(string)
			if !ok {
				return "", fmt.Errorf("arg %s: want address string", a.Name)
			}
			word, err := PadAddress(s)
			if err != nil {
				return "", fmt.Errorf("arg %s: %w", a.Name, err)
			}
			head = append(head, word...)
		case TypeUint256:
			n, ok := v.(*big.Int)
			if !ok {
				return "", fmt.Errorf("arg %s: want *big.Int", a.Name)
			}
			head = append(head, PadBigInt(n)...)
		case TypeBool:
			b, ok := v.(bool)
			if !ok {
				return "", fmt.Errorf("arg %s: want bool", a.Name)
			}
			word := make([]byte, wordSize)
			if b {
				word[wordSize-1] = 1
			}
			head = append(head, word...)
		default:
			return "", fmt.Errorf("arg %s: unsupported type %s", a.Name, a.Type)
		}
	}

	return EncodeHex(append(head, tail...)), nil
}
