package notify

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
)

// Rendered 渲染后的通知文本
type Rendered struct {
	Subject      string
	EmailBody    string
	InAppMessage string
}

// Template 某类事件的通知模板
type Template struct {
	Subject string
	Email   string
	InApp   string
}

// DefaultTemplates 内置的事件模板，字段取自 events.ShipmentEvent
var DefaultTemplates = map[string]Template{
	"shipment.created": {
		Subject: "Shipment {{.TrackingNumber}} created",
		Email:   "Your shipment {{.TrackingNumber}} from {{.Origin}} to {{.Destination}} has been created.",
		InApp:   "Shipment {{.TrackingNumber}} created",
	},
	"shipment.status_updated": {
		Subject: "Shipment {{.TrackingNumber}} is now {{.Status}}",
		Email:   "Shipment {{.TrackingNumber}} ({{.Origin}} → {{.Destination}}) changed status to {{.Status}}.",
		InApp:   "{{.TrackingNumber}}: {{.Status}}",
	},
	"shipment.carrier_assigned": {
		Subject: "Carrier assigned to {{.TrackingNumber}}",
		Email:   "{{.CarrierName}} will carry shipment {{.TrackingNumber}} from {{.Origin}} to {{.Destination}}.",
		InApp:   "{{.CarrierName}} assigned to {{.TrackingNumber}}",
	},
	"shipment.delivered": {
		Subject: "Shipment {{.TrackingNumber}} delivered",
		Email:   "Shipment {{.TrackingNumber}} was delivered to {{.Destination}}.",
		InApp:   "{{.TrackingNumber}} delivered",
	},
	"shipment.delayed": {
		Subject: "Shipment {{.TrackingNumber}} delayed",
		Email:   "Shipment {{.TrackingNumber}} is delayed.{{if .Note}} {{.Note}}{{end}}",
		InApp:   "{{.TrackingNumber}} delayed",
	},
	"shipment.issue_reported": {
		Subject: "Issue reported on {{.TrackingNumber}}",
		Email:   "An issue was reported on shipment {{.TrackingNumber}}: {{.Note}}",
		InApp:   "Issue on {{.TrackingNumber}}: {{.Note}}",
	},
	"payment.received": {
		Subject: "Payment received for {{.TrackingNumber}}",
		Email:   "We received a payment of {{printf \"%.2f\" .Amount}} for shipment {{.TrackingNumber}}.",
		InApp:   "Payment {{printf \"%.2f\" .Amount}} received for {{.TrackingNumber}}",
	},
}

type compiled struct {
	subject *template.Template
	email   *template.Template
	inApp   *template.Template
}

// Renderer 按事件类型渲染通知
type Renderer struct {
	templates map[string]compiled
}

// NewRenderer 编译模板，任一模板语法错误时返回错误
func NewRenderer(templates map[string]Template) (*Renderer, error) {
	r := &Renderer{templates: make(map[string]compiled, len(templates))}
	for eventType, tpl := range templates {
		var c compiled
		var err error
		if c.subject, err = parse(eventType+".subject", tpl.Subject); err != nil {
			return nil, err
		}
		if c.email, err = parse(eventType+".email", tpl.Email); err != nil {
			return nil, err
		}
		if c.inApp, err = parse(eventType+".in_app", tpl.InApp); err != nil {
			return nil, err
		}
		r.templates[eventType] = c
	}
	return r, nil
}

func parse(name, text string) (*template.Template, error) {
	t, err := template.New(name).Option("missingkey=zero").Parse(text)
	if err != nil {
		return nil, fmt.Errorf("parse template %s: %w", name, err)
	}
	return t, nil
}

// Supports 是否有该事件类型的模板
func (r *Renderer) Supports(eventType string) bool {
	_, ok := r.templates[eventType]
	return ok
}

// Render 渲染事件
func (r *Renderer) Render(eventType string, data any) (Rendered, error) {
	c, ok := r.templates[eventType]
	if !ok {
		return Rendered{}, fmt.Errorf("no template for event type %q", eventType)
	}

	var out Rendered
	var err error
	if out.Subject, err = execute(c.subject, data); err != nil {
		return Rendered{}, err
	}
	if out.EmailBody, err = execute(c.email, data); err != nil {
		return Rendered{}, err
	}
	if out.InAppMessage, err = execute(c.inApp, data); err != nil {
		return Rendered{}, err
	}
	return out, nil
}

func execute(t *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := t.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s: %w", t.Name(), err)
	}
	return strings.TrimSpace(buf.String()), nil
}
