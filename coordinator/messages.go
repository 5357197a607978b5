package coordinator

import (
	"context"
	"fmt"

	"restock-monitor/internal/types"
)

// HandleMessage dispatches one request from the message contract. Every
// message terminates with a Response; unknown types are a structured
// failure, not a fault.
func (c *Coordinator) HandleMessage(ctx context.Context, msg types.Message) types.Response {
	switch msg.Type {
	case types.MsgStartMonitoring:
		settings := types.MonitorSettings{}
		if msg.Settings != nil {
			settings = *msg.Settings
		}
		return c.StartMonitoring(ctx, settings)

	case types.MsgStopMonitoring:
		return c.StopMonitoring(ctx)

	case types.MsgSetAutoCheckout:
		return c.SetAutoCheckout(msg.Enabled)

	case types.MsgAddProductToMonitor:
		if msg.Product == nil {
			return types.Response{Success: false, Error: "missing product"}
		}
		return c.AddOrUpdateMonitoredProduct(*msg.Product)

	case types.MsgCheckMonitoringStatus:
		status := c.Status()
		return types.Response{Success: true, IsMonitoring: status.IsMonitoring, AutoCheckout: status.AutoCheckout}

	case types.MsgProductRemoved:
		// The control surface already removed the product from storage;
		// refresh the cached view.
		c.MonitoredProducts()
		return types.Response{Success: true}

	case types.MsgGetMonitoredProducts:
		return types.Response{Success: true, Products: c.MonitoredProducts()}

	case types.MsgUpdateRefreshInterval:
		return c.UpdateRefreshInterval(ctx, msg.Interval)

	case types.MsgStartPageMonitoring:
		settings := types.MonitorSettings{}
		if msg.Settings != nil {
			settings = *msg.Settings
		}
		return c.withPrimaryTab(func(t Tab) types.Response {
			return t.StartMonitoring(ctx, settings)
		})

	case types.MsgStopPageMonitoring:
		return c.withPrimaryTab(func(t Tab) types.Response {
			return t.StopMonitoring(ctx)
		})

	case types.MsgFetchProducts:
		return c.withPrimaryTab(func(t Tab) types.Response {
			return t.FetchProducts(ctx)
		})

	case types.MsgCheckStock:
		if msg.Product == nil {
			return types.Response{Success: false, Error: "missing product"}
		}
		return c.withPrimaryTab(func(t Tab) types.Response {
			return t.CheckStock(ctx, *msg.Product, msg.AutoCheckout)
		})

	case types.MsgInitiateCheckout:
		if msg.Product == nil {
			return types.Response{Success: false, Error: "missing product"}
		}
		return c.withPrimaryTab(func(t Tab) types.Response {
			result := t.Checkout(ctx, *msg.Product)
			return types.Response{Success: result.Success, Message: result.Message}
		})

	default:
		return types.Response{Success: false, Error: fmt.Sprintf("unknown message type: %s", msg.Type)}
	}
}

// withPrimaryTab routes a page-level message to the first registered tab,
// opening one if the registry is empty.
func (c *Coordinator) withPrimaryTab(fn func(Tab) types.Response) types.Response {
	tab := c.primaryTab()
	if tab == nil {
		opened, err := c.openTab(c)
		if err != nil {
			return types.Response{Success: false, Error: fmt.Sprintf("no open page: %v", err)}
		}
		c.RegisterTab(opened)
		tab = opened
	}
	return fn(tab)
}
