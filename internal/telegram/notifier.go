package telegram

import (
	"context"

	"github.com/dushixiang/copyrank/internal/service"
	"github.com/valyala/fasttemplate"
)

var eventTemplates = map[string]*fasttemplate.Template{
	service.EventLiquidationDetected: fasttemplate.New(
		"*疑似爆仓* `{{trader}}`\n{{token}} {{side}} ${{usd_value}}\n已自动拉黑 {{at}}", "{{", "}}"),
	service.EventBufferAction: fasttemplate.New(
		"*强平缓冲* {{token}} {{side}} 缓冲 {{buffer_pct}}%\n动作: {{action}} ${{usd_value}}\n{{message}}", "{{", "}}"),
	service.EventCycleCompleted: fasttemplate.New(
		"*重算完成* `{{cycle_id}}`\n{{message}}", "{{", "}}"),
}

// Render 渲染事件消息，未知事件类型返回空串
func Render(event service.Event) string {
	tmpl, ok := eventTemplates[event.Type]
	if !ok {
		return ""
	}
	values := event.Values()
	for k, v := range values {
		if s, ok := v.(string); ok {
			values[k] = escapeMarkdown(s)
		}
	}
	return tmpl.ExecuteString(values)
}

// Handle 作为 EventBus 订阅者，把事件推送到 telegram
func (r *Telegram) Handle(_ context.Context, event service.Event) error {
	msg := Render(event)
	if msg == "" {
		return nil
	}
	return r.Notify(msg)
}
