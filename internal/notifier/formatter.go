package notifier

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"MarketScraper/internal/model"
	"MarketScraper/internal/scraper"
)

// FormatAlert formats a threshold alert into a Telegram message.
func FormatAlert(a model.Alert) string {
	icon := "📈"
	if a.Direction == model.DirectionDown {
		icon = "📉"
	}
	var b strings.Builder
	b.WriteString(fmt.Sprintf("%s <b>%s %s %+.2f%%</b>\n", icon, a.Symbol, a.Direction, a.ChangePercent))
	b.WriteString(fmt.Sprintf("%s → %s\n", a.PreviousPrice.String(), a.CurrentPrice.String()))
	if a.Source != "" {
		b.WriteString(fmt.Sprintf("来源: %s | ", a.Source))
	}
	b.WriteString(a.Timestamp.Format("2006-01-02 15:04:05"))
	return b.String()
}

// FormatPrices formats a price map, one symbol per line in symbol order.
func FormatPrices(ticks map[string]model.PriceTick) string {
	if len(ticks) == 0 {
		return "暂无价格数据"
	}
	symbols := make([]string, 0, len(ticks))
	for s := range ticks {
		symbols = append(symbols, s)
	}
	sort.Strings(symbols)

	var b strings.Builder
	b.WriteString("💹 <b>最新价格</b>\n\n")
	for _, s := range symbols {
		t := ticks[s]
		line := fmt.Sprintf("%s: %s (%s)", s, t.Price.String(), t.Source)
		if spread, ok := t.Spread(); ok {
			line += fmt.Sprintf(" 价差 %s", spread.String())
		}
		if t.Stale {
			line += " ⚠️过期"
		}
		b.WriteString(line + "\n")
	}
	return b.String()
}

// FormatSummary formats the market summary report.
func FormatSummary(rows []scraper.SymbolSummary) string {
	var b strings.Builder
	b.WriteString(fmt.Sprintf("📊 <b>市场概览</b> | %s\n\n", time.Now().Format("2006-01-02 15:04")))
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("<b>%s</b> %s", r.Symbol, r.Price.String()))
		if r.Change24h.Valid {
			b.WriteString(fmt.Sprintf(" 24h %s%%", r.Change24h.Decimal.StringFixed(2)))
		}
		if r.MovingAverage != nil {
			b.WriteString(fmt.Sprintf(" | MA %.4g", *r.MovingAverage))
		}
		if r.Volatility != nil {
			b.WriteString(fmt.Sprintf(" | 波动 %.2f%%", *r.Volatility))
		}
		if r.RSI != nil {
			b.WriteString(fmt.Sprintf(" | RSI %.1f", *r.RSI))
		}
		if r.RangePosition != nil {
			b.WriteString(fmt.Sprintf(" | 区间 %.0f%%", *r.RangePosition*100))
		}
		if r.Stale {
			b.WriteString(" ⚠️过期")
		}
		b.WriteString("\n")
	}
	return b.String()
}

// FormatMetrics formats a metrics snapshot for display.
func FormatMetrics(m scraper.Metrics) string {
	var b strings.Builder
	b.WriteString("⚙️ <b>运行状态</b>\n\n")
	b.WriteString(fmt.Sprintf("缓存: %d/%d 命中率 %.1f%% 淘汰 %d\n",
		m.Cache.Size, m.Cache.Capacity, m.Cache.HitRate*100, m.Cache.Evictions))
	b.WriteString(fmt.Sprintf("推送: 运行=%v 订阅=%d 轮次=%d 告警=%d 丢弃=%d\n",
		m.Stream.Running, m.Stream.Subscribers, m.Stream.Cycles, m.Stream.Alerts, m.Stream.Dropped))
	for _, s := range m.Sources {
		b.WriteString(fmt.Sprintf("  %s: 请求 %d 错误 %d 超时 %d 延迟 %.0fms\n",
			s.Source, s.Requests, s.Errors, s.Timeouts, s.AvgLatencyMs))
	}
	return b.String()
}
