package evm

import (
	"math/big"
	"strings"
	"testing"
)

func testEventDef() *EventDef {
	return NewEventDef("TokensPurchased",
		Arg{Name: "token", Type: TypeAddress, Indexed: true},
		Arg{Name: "buyer", Type: TypeAddress, Indexed: true},
		Arg{Name: "amount", Type: TypeUint256},
		Arg{Name: "eth", Type: TypeUint256},
		Arg{Name: "fee", Type: TypeUint256},
	)
}

func TestEventDef_Signature(t *testing.T) {
	def := testEventDef()
	want := "TokensPurchased(address,address,uint256,uint256,uint256)"
	if def.Signature() != want {
		t.Errorf("Signature() = %s, want %s", def.Signature(), want)
	}
}

func TestEventDef_Topic(t *testing.T) {
	def := testEventDef()
	topic := def.Topic()

	if !strings.HasPrefix(topic, "0x") || len(topic) != 66 {
		t.Errorf("Topic() = %s, want 0x-prefixed 32-byte hash", topic)
	}

	// Same signature, same topic; different signature, different topic.
	if NewEventDef("TokensPurchased",
		Arg{Name: "token", Type: TypeAddress, Indexed: true},
		Arg{Name: "buyer", Type: TypeAddress, Indexed: true},
		Arg{Name: "amount", Type: TypeUint256},
		Arg{Name: "eth", Type: TypeUint256},
		Arg{Name: "fee", Type: TypeUint256},
	).Topic() != topic {
		t.Error("identical definitions produced different topics")
	}
	if NewEventDef("TokensSold",
		Arg{Name: "token", Type: TypeAddress, Indexed: true},
	).Topic() == topic {
		t.Error("different signatures produced identical topics")
	}
}

func TestEventDef_DecodeRoundTrip(t *testing.T) {
	def := testEventDef()

	token := "0x1111111111111111111111111111111111111111"
	buyer := "0x2222222222222222222222222222222222222222"
	amount, _ := new(big.Int).SetString("1000000000000000000000", 10)
	eth := big.NewInt(1e18)
	fee := big.NewInt(3e15)

	data, err := EncodeEventData(def, map[string]interface{}{
		"amount": amount,
		"eth":    eth,
		"fee":    fee,
	})
	if err != nil {
		t.Fatalf("EncodeEventData: %v", err)
	}

	tokenTopic, err := PadAddress(token)
	if err != nil {
		t.Fatalf("PadAddress: %v", err)
	}
	buyerTopic, err := PadAddress(buyer)
	if err != nil {
		t.Fatalf("PadAddress: %v", err)
	}

	log := &Log{
		Address: "0xfac7014",
		Topics:  []string{def.Topic(), EncodeHex(tokenTopic), EncodeHex(buyerTopic)},
		Data:    data,
	}

	decoded, err := def.Decode(log)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.Address("token") != token {
		t.Errorf("token = %s, want %s", decoded.Address("token"), token)
	}
	if decoded.Address("buyer") != buyer {
		t.Errorf("buyer = %s, want %s", decoded.Address("buyer"), buyer)
	}
	if decoded.BigInt("amount").Cmp(amount) != 0 {
		t.Errorf("amount = %s, want %s", decoded.BigInt("amount"), amount)
	}
	if decoded.BigInt("eth").Cmp(eth) != 0 {
		t.Errorf("eth = %s, want %s", decoded.BigInt("eth"), eth)
	}
	if decoded.BigInt("fee").Cmp(fee) != 0 {
		t.Errorf("fee = %s, want %s", decoded.BigInt("fee"), fee)
	}
}

func TestEventDef_DecodeDynamicStrings(t *testing.T) {
	def := NewEventDef("TokenCreated",
		Arg{Name: "token", Type: TypeAddress, Indexed: true},
		Arg{Name: "name", Type: TypeString},
		Arg{Name: "symbol", Type: TypeString},
		Arg{Name: "goal", Type: TypeUint256},
	)

	data, err := EncodeEventData(def, map[string]interface{}{
		"name":   "Mother Haven",
		"symbol": "HAVEN",
		"goal":   big.NewInt(5e18),
	})
	if err != nil {
		t.Fatalf("EncodeEventData: %v", err)
	}

	topic, _ := PadAddress("0x3333333333333333333333333333333333333333")
	log := &Log{
		Topics: []string{def.Topic(), EncodeHex(topic)},
		Data:   data,
	}

	decoded, err := def.Decode(log)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}

	if decoded.String("name") != "Mother Haven" {
		t.Errorf("name = %q", decoded.String("name"))
	}
	if decoded.String("symbol") != "HAVEN" {
		t.Errorf("symbol = %q", decoded.String("symbol"))
	}
	if decoded.BigInt("goal").Cmp(big.NewInt(5e18)) != 0 {
		t.Errorf("goal = %s", decoded.BigInt("goal"))
	}
}

func TestEventDef_DecodeTopicMismatch(t *testing.T) {
	def := testEventDef()
	other := NewEventDef("TradingResumed", Arg{Name: "token", Type: TypeAddress, Indexed: true})

	topic, _ := PadAddress("0x1111111111111111111111111111111111111111")
	log := &Log{
		Topics: []string{other.Topic(), EncodeHex(topic)},
		Data:   "0x",
	}

	if _, err := def.Decode(log); err == nil {
		t.Error("expected decode error for mismatched topic")
	}
}

func TestEventDef_DecodeTruncatedData(t *testing.T) {
	def := testEventDef()
	tokenTopic, _ := PadAddress("0x1111111111111111111111111111111111111111")
	buyerTopic, _ := PadAddress("0x2222222222222222222222222222222222222222")

	log := &Log{
		Topics: []string{def.Topic(), EncodeHex(tokenTopic), EncodeHex(buyerTopic)},
		Data:   "0x00000000000000000000000000000000000000000000000000000000000000ff",
	}

	if _, err := def.Decode(log); err == nil {
		t.Error("expected decode error for truncated data")
	}
}

func TestEventDef_DecodeHostileStringWords(t *testing.T) {
	// A malformed log can carry arbitrary offset/length head words;
	// decoding must fail cleanly, never slice out of range.
	def := NewEventDef("TokenCreated",
		Arg{Name: "name", Type: TypeString},
	)

	maxInt64 := new(big.Int).SetInt64(1<<63 - 1)
	hugeLength := new(big.Int).Lsh(big.NewInt(1), 62) // 2^62

	tests := []struct {
		name string
		data []byte
	}{
		{
			name: "offset max int64 wraps bounds arithmetic",
			data: PadBigInt(maxInt64),
		},
		{
			name: "offset beyond int64",
			data: PadBigInt(new(big.Int).Lsh(big.NewInt(1), 64)),
		},
		{
			name: "offset just past end of data",
			data: PadBigInt(big.NewInt(wordSize)),
		},
		{
			name: "length max int64 wraps bounds arithmetic",
			data: append(PadBigInt(big.NewInt(wordSize)), PadBigInt(maxInt64)...),
		},
		{
			name: "length 2^62 words",
			data: append(PadBigInt(big.NewInt(wordSize)), PadBigInt(hugeLength)...),
		},
		{
			name: "length beyond int64",
			data: append(PadBigInt(big.NewInt(wordSize)), PadBigInt(new(big.Int).Lsh(big.NewInt(1), 64))...),
		},
		{
			name: "length exceeds remaining tail",
			data: append(PadBigInt(big.NewInt(wordSize)), PadBigInt(big.NewInt(100))...),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			log := &Log{
				Topics: []string{def.Topic()},
				Data:   EncodeHex(tt.data),
			}
			if _, err := def.Decode(log); err == nil {
				t.Error("expected decode error for hostile string words")
			}
		})
	}
}

func TestSelector(t *testing.T) {
	sel := Selector("collateral(address)")
	if len(sel) != 4 {
		t.Fatalf("selector length = %d, want 4", len(sel))
	}
	if string(sel) == string(Selector("virtualSupply(address)")) {
		t.Error("distinct signatures produced identical selectors")
	}
}

func TestParseQuantity(t *testing.T) {
	tests := []struct {
		in      string
		want    uint64
		wantErr bool
	}{
		{in: "0x0", want: 0},
		{in: "0x10", want: 16},
		{in: "0xde0b6b3a7640000", want: 1000000000000000000},
		{in: "", wantErr: true},
		{in: "0x", wantErr: true},
		{in: "0xzz", wantErr: true},
	}

	for _, tt := range tests {
		got, err := ParseQuantity(tt.in)
		if tt.wantErr {
			if err == nil {
				t.Errorf("ParseQuantity(%q): expected error", tt.in)
			}
			continue
		}
		if err != nil {
			t.Errorf("ParseQuantity(%q): %v", tt.in, err)
			continue
		}
		if got != tt.want {
			t.Errorf("ParseQuantity(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}
