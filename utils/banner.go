package utils

import (
	"context"
	"fmt"
	"strconv"
)

// scriptRunner is the slice of Session the banner needs.
type scriptRunner interface {
	Evaluate(ctx context.Context, expression string) error
}

// BannerRenderer draws the on-page status indicator and notification toasts
// by injecting DOM into the monitored tab. It is a pure view over monitor
// state; nothing reads it back.
type BannerRenderer struct {
	page scriptRunner
}

// NewBannerRenderer creates a renderer bound to one tab.
func NewBannerRenderer(page scriptRunner) *BannerRenderer {
	return &BannerRenderer{page: page}
}

const bannerJS = `(function() {
  var el = document.getElementById('restock-monitor-indicator');
  if (!el) {
    el = document.createElement('div');
    el.id = 'restock-monitor-indicator';
    el.style.cssText = 'position:fixed;top:20px;right:20px;padding:10px 14px;' +
      'border-radius:4px;z-index:10000;color:white;font-weight:bold;' +
      'box-shadow:0 4px 8px rgba(0,0,0,0.2);transition:opacity 0.3s;';
    document.body.appendChild(el);
  }
  el.style.backgroundColor = %s;
  el.style.opacity = '1';
  el.textContent = %s;
  if (%t) {
    setTimeout(function() { el.style.opacity = '0'; }, 3000);
  }
})();`

func (r *BannerRenderer) render(ctx context.Context, color, text string, selfHide bool) error {
	return r.page.Evaluate(ctx, fmt.Sprintf(bannerJS, strconv.Quote(color), strconv.Quote(text), selfHide))
}

// ShowActive renders the running indicator with the poll interval.
func (r *BannerRenderer) ShowActive(ctx context.Context, intervalSeconds int) error {
	return r.render(ctx, "#4CAF50", fmt.Sprintf("Monitoring every %ds", intervalSeconds), false)
}

// ShowSequential renders the running indicator with the position in the
// monitored-product cycle.
func (r *BannerRenderer) ShowSequential(ctx context.Context, index, total int) error {
	return r.render(ctx, "#4CAF50", fmt.Sprintf("Monitoring %d/%d", index+1, total), false)
}

// ShowStopped renders the stopped indicator, which hides itself after ~3s.
func (r *BannerRenderer) ShowStopped(ctx context.Context) error {
	return r.render(ctx, "#9E9E9E", "Monitoring stopped", true)
}

const toastJS = `(function() {
  var el = document.getElementById('restock-monitor-notification');
  if (!el) {
    el = document.createElement('div');
    el.id = 'restock-monitor-notification';
    el.style.cssText = 'position:fixed;top:70px;right:20px;background-color:#2196F3;' +
      'color:white;padding:16px;border-radius:4px;z-index:10000;' +
      'box-shadow:0 4px 8px rgba(0,0,0,0.2);transition:opacity 0.3s;';
    document.body.appendChild(el);
  }
  el.textContent = %s;
  el.style.opacity = '1';
  setTimeout(function() { el.style.opacity = '0'; }, 3000);
})();`

// Notify shows a transient toast on the page.
func (r *BannerRenderer) Notify(ctx context.Context, message string) error {
	return r.page.Evaluate(ctx, fmt.Sprintf(toastJS, strconv.Quote(message)))
}
