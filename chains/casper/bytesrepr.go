package casper

import (
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"math/big"
	"slices"
)

// CLType is the type descriptor of a CLValue.
type CLType struct {
	tag   byte
	name  string
	inner *CLType
}

var (
	CLTypeBool   = CLType{tag: 0, name: "Bool"}
	CLTypeU8     = CLType{tag: 3, name: "U8"}
	CLTypeU32    = CLType{tag: 4, name: "U32"}
	CLTypeU64    = CLType{tag: 5, name: "U64"}
	CLTypeU512   = CLType{tag: 8, name: "U512"}
	CLTypeString = CLType{tag: 10, name: "String"}
)

func ListOf(inner CLType) CLType {
	return CLType{tag: 14, name: "List", inner: &inner}
}

// Bytes returns the bytesrepr serialization of the type.
func (t CLType) Bytes() []byte {
	if t.inner != nil {
		return append([]byte{t.tag}, t.inner.Bytes()...)
	}
	return []byte{t.tag}
}

func (t CLType) MarshalJSON() ([]byte, error) {
	if t.inner != nil {
		return json.Marshal(map[string]CLType{t.name: *t.inner})
	}
	return json.Marshal(t.name)
}

// CLValue is a serialized value together with its type.
type CLValue struct {
	Type   CLType
	Bytes  []byte
	Parsed any
}

func U32Value(v uint32) CLValue {
	return CLValue{Type: CLTypeU32, Bytes: u32(v), Parsed: v}
}

func U64Value(v uint64) CLValue {
	return CLValue{Type: CLTypeU64, Bytes: u64(v), Parsed: v}
}

func U512Value(v *big.Int) CLValue {
	return CLValue{Type: CLTypeU512, Bytes: u512(v), Parsed: v.String()}
}

func StringValue(s string) CLValue {
	return CLValue{Type: CLTypeString, Bytes: str(s), Parsed: s}
}

// BytesValue encodes b as List<U8>, the only byte-string form execute_message accepts.
func BytesValue(b []byte) CLValue {
	parsed := make([]int, len(b))
	for i, v := range b {
		parsed[i] = int(v)
	}
	return CLValue{Type: ListOf(CLTypeU8), Bytes: list(b), Parsed: parsed}
}

// Serialize returns length(bytes) ‖ bytes ‖ type.
func (v CLValue) Serialize() []byte {
	return slices.Concat(u32(uint32(len(v.Bytes))), v.Bytes, v.Type.Bytes())
}

func (v CLValue) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		CLType CLType `json:"cl_type"`
		Bytes  string `json:"bytes"`
		Parsed any    `json:"parsed"`
	}{v.Type, hex.EncodeToString(v.Bytes), v.Parsed})
}

type NamedArg struct {
	Name  string
	Value CLValue
}

// RuntimeArgs keeps arguments in insertion order, which is part of the deploy hash.
type RuntimeArgs []NamedArg

func (a RuntimeArgs) Serialize() []byte {
	out := u32(uint32(len(a)))
	for _, arg := range a {
		out = append(out, str(arg.Name)...)
		out = append(out, arg.Value.Serialize()...)
	}
	return out
}

func (a RuntimeArgs) MarshalJSON() ([]byte, error) {
	pairs := make([][2]any, len(a))
	for i, arg := range a {
		pairs[i] = [2]any{arg.Name, arg.Value}
	}
	return json.Marshal(pairs)
}

// ParseBytesList strips the u32 length prefix of a serialized List<U8>.
func ParseBytesList(b []byte) ([]byte, error) {
	if len(b) < 4 {
		return nil, errShortList(len(b))
	}
	n := binary.LittleEndian.Uint32(b[:4])
	if uint64(n) != uint64(len(b)-4) {
		return nil, errListLength(n, len(b)-4)
	}
	return b[4:], nil
}

func u32(v uint32) []byte {
	return binary.LittleEndian.AppendUint32(nil, v)
}

func u64(v uint64) []byte {
	return binary.LittleEndian.AppendUint64(nil, v)
}

func u512(v *big.Int) []byte {
	be := v.Bytes()
	out := make([]byte, 1, 1+len(be))
	out[0] = byte(len(be))
	for i := len(be) - 1; i >= 0; i-- {
		out = append(out, be[i])
	}
	return out
}

func str(s string) []byte {
	return append(u32(uint32(len(s))), s...)
}

func list(b []byte) []byte {
	return append(u32(uint32(len(b))), b...)
}
