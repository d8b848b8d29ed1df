package domain

// Network identifies which chain a transfer was collected from.
type Network string

const (
	NetworkEthereum Network = "ethereum"
	NetworkPolygon  Network = "polygon"
)

// Networks lists every monitored chain in collection order.
var Networks = []Network{NetworkEthereum, NetworkPolygon}

// TransactionType is the inferred kind of protocol operation behind a fee transfer.
type TransactionType string

const (
	TypeLoan    TransactionType = "loan"
	TypeSale    TransactionType = "sale"
	TypeUnknown TransactionType = "unknown"
)

// FeeCategory crosses the transaction type with the asset bucket of the fee currency.
type FeeCategory string

const (
	CategoryLoanNative    FeeCategory = "loan_native"
	CategoryLoanStable    FeeCategory = "loan_stable"
	CategorySaleNative    FeeCategory = "sale_native"
	CategorySaleStable    FeeCategory = "sale_stable"
	CategoryUncategorized FeeCategory = "uncategorized"
)

// Transaction is one normalized token-transfer fee event. A single on-chain
// transaction hash may yield several Transaction records when it carries more
// than one transfer. Value is a raw integer string in the token's smallest
// unit and must never be parsed as a float.
type Transaction struct {
	Hash           string          `json:"hash"`
	Timestamp      int64           `json:"timestamp"`
	BlockNumber    uint64          `json:"block_number,omitempty"`
	Value          string          `json:"value"`
	TokenSymbol    string          `json:"token_symbol"`
	TokenDecimal   int             `json:"token_decimal"`
	From           string          `json:"from"`
	To             string          `json:"to"`
	Network        Network         `json:"network"`
	Type           TransactionType `json:"type,omitempty"`
	Category       FeeCategory     `json:"category,omitempty"`
	Method         string          `json:"method,omitempty"`
	InternalNative bool            `json:"internal_native,omitempty"`
	ValueUSD       float64         `json:"value_usd,omitempty"`
}

// TokenTransfer is a raw provider record before filtering and normalization.
type TokenTransfer struct {
	Hash         string
	BlockNumber  uint64
	Timestamp    int64
	From         string
	To           string
	Value        string
	TokenSymbol  string
	TokenDecimal int
	Internal     bool
}
