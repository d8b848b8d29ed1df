package streaming

import (
	"testing"

	"feeindex/internal/domain"
)

func TestEncodeDecode_RoundTrip(t *testing.T) {
	msg := FromTransaction(domain.Transaction{
		Hash: "0xa", Timestamp: 1700000000000, BlockNumber: 19000100,
		Value: "250000000000000000", TokenSymbol: "WETH", TokenDecimal: 18,
		From: "0xsender", To: "0xfee", Network: domain.NetworkEthereum,
		Type: domain.TypeLoan, Category: domain.CategoryLoanNative,
		InternalNative: true,
	})

	payload, err := Encode(msg)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	decoded, err := Decode(payload)
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if decoded != msg {
		t.Fatalf("round trip changed message: %+v vs %+v", decoded, msg)
	}
	if !decoded.Internal {
		t.Fatal("internal flag lost")
	}
}

func TestEncode_RequiresIdentity(t *testing.T) {
	if _, err := Encode(Message{TxHash: "0xa"}); err == nil {
		t.Fatal("expected error without network")
	}
	if _, err := Encode(Message{Network: domain.NetworkEthereum}); err == nil {
		t.Fatal("expected error without tx hash")
	}
}

func TestDecode_RejectsInvalidPayloads(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatal("expected error for malformed payload")
	}
	if _, err := Decode([]byte(`{"tx_hash":"0xa"}`)); err == nil {
		t.Fatal("expected error without network")
	}
	if _, err := Decode([]byte(`{"network":"ethereum"}`)); err == nil {
		t.Fatal("expected error without tx hash")
	}
}
