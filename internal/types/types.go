package types

// Sentinel values used when an extraction cascade comes up empty.
const (
	UnknownName  = "Unknown Product"
	UnknownPrice = "price unknown"
)

// PageType classifies a storefront page.
type PageType int

const (
	PageOther PageType = iota
	PageProduct
	PageListing
)

func (p PageType) String() string {
	switch p {
	case PageProduct:
		return "product"
	case PageListing:
		return "listing"
	default:
		return "other"
	}
}

// Product is a snapshot of a storefront product. The URL is the stable
// identity; everything else is overwritten on each successful extraction.
type Product struct {
	Name     string   `json:"name"`
	Price    string   `json:"price"`
	URL      string   `json:"url" gorm:"primaryKey"`
	Image    string   `json:"image"`
	InStock  bool     `json:"inStock"`
	Sizes    []string `json:"sizes,omitempty" gorm:"serializer:json"`
	Color    string   `json:"color,omitempty"`
	Quantity int      `json:"quantity,omitempty"`
}

// EffectiveQuantity returns the purchase quantity, defaulting to one.
func (p Product) EffectiveQuantity() int {
	if p.Quantity < 1 {
		return 1
	}
	return p.Quantity
}

// Merge overlays a freshly extracted snapshot onto p. Fields absent in the
// snapshot keep their previous value, so attributes like Quantity survive
// re-extraction from pages that do not expose them. InStock is always taken
// from the snapshot since observing it is the whole point of re-extracting.
func (p Product) Merge(snapshot Product) Product {
	merged := p
	if snapshot.Name != "" {
		merged.Name = snapshot.Name
	}
	if snapshot.Price != "" {
		merged.Price = snapshot.Price
	}
	if snapshot.URL != "" {
		merged.URL = snapshot.URL
	}
	if snapshot.Image != "" {
		merged.Image = snapshot.Image
	}
	if len(snapshot.Sizes) > 0 {
		merged.Sizes = snapshot.Sizes
	}
	if snapshot.Color != "" {
		merged.Color = snapshot.Color
	}
	if snapshot.Quantity > 0 {
		merged.Quantity = snapshot.Quantity
	}
	merged.InStock = snapshot.InStock
	return merged
}

// CheckoutResult is the terminal outcome of a checkout attempt. A successful
// navigation counts as success even though the invocation cannot confirm
// anything about the page it navigated to.
type CheckoutResult struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// MonitorSettings seeds a monitoring session.
type MonitorSettings struct {
	AutoCheckout    bool `json:"autoCheckout"`
	RefreshInterval int  `json:"refreshInterval"`
	IsSequential    bool `json:"isSequential,omitempty"`
	CurrentIndex    int  `json:"currentIndex,omitempty"`
	TotalProducts   int  `json:"totalProducts,omitempty"`
}

// MonitoringStatus is the coordinator's in-memory readback for the UI.
type MonitoringStatus struct {
	IsMonitoring bool `json:"isMonitoring"`
	AutoCheckout bool `json:"autoCheckout"`
}

// Logger defines the logging interface used throughout the module.
// *logrus.Logger satisfies it.
type Logger interface {
	Debug(args ...interface{})
	Info(args ...interface{})
	Warn(args ...interface{})
	Error(args ...interface{})
	Debugf(format string, args ...interface{})
	Infof(format string, args ...interface{})
	Warnf(format string, args ...interface{})
	Errorf(format string, args ...interface{})
}
