package session

// Message identifies a user notice. Hosts may translate them with WithMessages.
type Message string

const (
	MsgConnected      Message = "connected"
	MsgDisconnected   Message = "disconnected"
	MsgInvalidCode    Message = "invalid_code"
	MsgConnectionFull Message = "connection_full"
	MsgOfferSent      Message = "offer_sent"
	MsgTradeFailed    Message = "trade_failed"
	MsgTradeApplied   Message = "trade_applied"
	MsgConflict       Message = "conflict"
	MsgStoreFailed    Message = "store_failed"
)

// DefaultMessages are the English notice texts.
var DefaultMessages = map[Message]string{
	MsgConnected:      "Connected to trading session.",
	MsgDisconnected:   "Disconnected from trading session.",
	MsgInvalidCode:    "No trading session found for that code.",
	MsgConnectionFull: "That trading session already has two participants.",
	MsgOfferSent:      "Trade offer sent.",
	MsgTradeFailed:    "Trade failed.",
	MsgTradeApplied:   "Trade completed.",
	MsgConflict:       "The session changed in the meantime, please retry.",
	MsgStoreFailed:    "The shared store could not be updated.",
}

// Status labels.
const (
	LabelConnected    = "Connected to %s"
	LabelWaiting      = "Waiting for a partner"
	LabelDisconnected = "Disconnected"
	LabelPartner      = "partner"
)
