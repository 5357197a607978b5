package types

import "time"

// MessageType enumerates the request/response channel between the control
// surface, the coordinator and the page-monitoring sessions.
type MessageType string

const (
	MsgStartMonitoring       MessageType = "startMonitoring"
	MsgStopMonitoring        MessageType = "stopMonitoring"
	MsgSetAutoCheckout       MessageType = "setAutoCheckout"
	MsgAddProductToMonitor   MessageType = "addProductToMonitor"
	MsgCheckMonitoringStatus MessageType = "checkMonitoringStatus"
	MsgProductRemoved        MessageType = "productRemoved"
	MsgStartPageMonitoring   MessageType = "startPageMonitoring"
	MsgStopPageMonitoring    MessageType = "stopPageMonitoring"
	MsgUpdateRefreshInterval MessageType = "updateRefreshInterval"
	MsgFetchProducts         MessageType = "fetchProducts"
	MsgCheckStock            MessageType = "checkStock"
	MsgInitiateCheckout      MessageType = "initiateCheckout"
	MsgGetMonitoredProducts  MessageType = "getMonitoredProducts"
)

// Message is the request envelope. Only the fields relevant to the Type are
// populated, mirroring the loose payload shape of the original channel.
type Message struct {
	Type         MessageType      `json:"type"`
	Settings     *MonitorSettings `json:"settings,omitempty"`
	Product      *Product         `json:"product,omitempty"`
	Enabled      bool             `json:"enabled,omitempty"`
	Interval     int              `json:"interval,omitempty"`
	AutoCheckout bool             `json:"autoCheckout,omitempty"`
	URL          string           `json:"url,omitempty"`
}

// Response is the reply envelope for a Message.
type Response struct {
	Success      bool      `json:"success"`
	Message      string    `json:"message,omitempty"`
	Error        string    `json:"error,omitempty"`
	IsMonitoring bool      `json:"isMonitoring,omitempty"`
	AutoCheckout bool      `json:"autoCheckout,omitempty"`
	Product      *Product  `json:"product,omitempty"`
	Products     []Product `json:"products,omitempty"`
	Count        int       `json:"count,omitempty"`
}

// EventType enumerates the fire-and-forget notifications the coordinator
// publishes toward the control surface.
type EventType string

const (
	EventStatusUpdate     EventType = "statusUpdate"
	EventStockUpdate      EventType = "stockUpdate"
	EventCheckoutComplete EventType = "checkoutComplete"
	EventProductsFetched  EventType = "productsFetched"
)

// Event is a one-way notification. No response is expected.
type Event struct {
	ID           string    `json:"id"`
	Type         EventType `json:"type"`
	Time         time.Time `json:"time"`
	Message      string    `json:"message,omitempty"`
	Product      *Product  `json:"product,omitempty"`
	Products     []Product `json:"products,omitempty"`
	InStock      bool      `json:"inStock,omitempty"`
	AutoCheckout bool      `json:"autoCheckout,omitempty"`
	Success      bool      `json:"success,omitempty"`
}
