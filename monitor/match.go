package monitor

import "restock-monitor/internal/types"

// Match finds the monitored entry corresponding to a freshly extracted
// snapshot. URL equality wins; exact name equality is the fallback for URL
// drift such as query-parameter variants. The returned entry is the
// monitored product, which carries persisted attributes like Quantity, not
// the snapshot.
func Match(snapshot types.Product, monitored []types.Product) *types.Product {
	for i := range monitored {
		if monitored[i].URL != "" && monitored[i].URL == snapshot.URL {
			return &monitored[i]
		}
	}
	for i := range monitored {
		if monitored[i].Name != "" && monitored[i].Name == snapshot.Name {
			return &monitored[i]
		}
	}
	return nil
}
