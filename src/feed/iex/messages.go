package iex

// MessageKind is the type tag that opens every TOPS message.
type MessageKind byte

const (
	KindSystemEvent        MessageKind = 0x53 // 'S'
	KindSecurityDirectory  MessageKind = 0x44 // 'D'
	KindTradingStatus      MessageKind = 0x48 // 'H'
	KindOperationalHalt    MessageKind = 0x4f // 'O'
	KindShortSalePriceTest MessageKind = 0x50 // 'P'
	KindQuoteUpdate        MessageKind = 0x51 // 'Q'
	KindTradeReport        MessageKind = 0x54 // 'T'
	KindOfficialPrice      MessageKind = 0x58 // 'X'
	KindTradeBreak         MessageKind = 0x42 // 'B'
	KindAuctionInformation MessageKind = 0x41 // 'A'
)

// messageWidths holds the TOPS 1.6 body width of each kind, tag byte included.
var messageWidths = map[MessageKind]int{
	KindSystemEvent:        10,
	KindSecurityDirectory:  31,
	KindTradingStatus:      22,
	KindOperationalHalt:    18,
	KindShortSalePriceTest: 19,
	KindQuoteUpdate:        42,
	KindTradeReport:        38,
	KindOfficialPrice:      26,
	KindTradeBreak:         38,
	KindAuctionInformation: 80,
}

var kindNames = map[MessageKind]string{
	KindSystemEvent:        "SystemEvent",
	KindSecurityDirectory:  "SecurityDirectory",
	KindTradingStatus:      "TradingStatus",
	KindOperationalHalt:    "OperationalHalt",
	KindShortSalePriceTest: "ShortSalePriceTest",
	KindQuoteUpdate:        "QuoteUpdate",
	KindTradeReport:        "TradeReport",
	KindOfficialPrice:      "OfficialPrice",
	KindTradeBreak:         "TradeBreak",
	KindAuctionInformation: "AuctionInformation",
}

func (k MessageKind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return "Unknown"
}

// Width returns the fixed body width of k and whether k is known.
func (k MessageKind) Width() (int, bool) {
	w, ok := messageWidths[k]
	return w, ok
}

// -----------------------------------------------------------------------------

// Message is one decoded TOPS message: a TradeReport, an OfficialPrice or a
// Skipped placeholder for kinds that are consumed without decoding.
type Message interface {
	Kind() MessageKind
}

// TradeReport is an executed trade. Price is fixed-point (× 10,000) and
// Timestamp is nanoseconds since epoch.
type TradeReport struct {
	Flags     uint8
	Timestamp uint64
	Symbol    string
	Size      uint32
	Price     uint64
	TradeID   uint64
}

func (TradeReport) Kind() MessageKind { return KindTradeReport }

// TimeMs converts the timestamp to milliseconds, truncating.
func (t TradeReport) TimeMs() int64 {
	return int64(t.Timestamp / 1_000_000)
}

// OfficialPrice is the exchange's opening or closing price.
type OfficialPrice struct {
	PriceType uint8
	Timestamp uint64
	Symbol    string
	Price     uint64
}

func (OfficialPrice) Kind() MessageKind { return KindOfficialPrice }

// Skipped stands in for a message whose bytes were consumed but not decoded.
type Skipped struct {
	Type  MessageKind
	Width int
}

func (s Skipped) Kind() MessageKind { return s.Type }
