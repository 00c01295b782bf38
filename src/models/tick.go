package models

// MTick is the client-facing form of a live price.
type MTick struct {
	Symbol string `json:"symbol"`
	Price  Price  `json:"price"`
	Time   string `json:"time"`
}

func NewTick(p MStockPrice) MTick {
	return MTick{
		Symbol: p.Symbol,
		Price:  PriceFromFixed(p.Price),
		Time:   FormatTime(p.Time),
	}
}

// MTickMessage wraps a tick for websocket clients.
type MTickMessage struct {
	Data MTick `json:"data"`
}

// MErrorsMessage reports request failures to REST and websocket clients.
type MErrorsMessage struct {
	Errors []string `json:"errors"`
}

// MLatestPriceCommand is a websocket subscription request. The "type" and
// "name" spellings are accepted as aliases.
type MLatestPriceCommand struct {
	Action    string   `json:"action" validate:"required,oneof=subscribe unsubscribe"`
	Names     []string `json:"names" validate:"required,min=1,dive,required"`
	TypeAlias string   `json:"type,omitempty" validate:"-"`
	NameAlias []string `json:"name,omitempty" validate:"-"`
}

// Normalize folds the aliases into Action and Names.
func (c *MLatestPriceCommand) Normalize() {
	if c.Action == "" {
		c.Action = c.TypeAlias
	}
	if len(c.Names) == 0 {
		c.Names = c.NameAlias
	}
}
