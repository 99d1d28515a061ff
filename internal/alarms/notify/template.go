package notify

import (
	"bytes"
	"errors"
	htmltemplate "html/template"
	"text/template"
)

const DefaultSubject = `HVAC Alert: {{.Label}} detected`

const DefaultTemplate = `[HVAC Alert] {{.Label}}
Raised: {{.RaisedAt}}
Faulty intervals: {{.Count}} ({{.Hours}} h) across {{.Assets}} asset(s)
Estimated loss: {{.Currency}}{{.Loss}}
Monthly projection: {{.Currency}}{{.MonthlyProjection}}
Avg deviation: {{.AvgDeviation}}
CO2 impact: {{.CarbonKg}} kg
{{- if .TopAssets }}
Top assets: {{.TopAssets}}
{{- end }}
Suggestion: {{.Recommendation}}
{{- if .DashboardURL }}
Dashboard: {{.DashboardURL}}
{{- end }}`

const DefaultHTMLTemplate = `<h2>{{.Label}} detected</h2>
<p><b>Wasted runtime:</b> {{.Hours}} h over {{.Count}} interval(s)</p>
<p><b>Estimated loss:</b> {{.Currency}}{{.Loss}} (monthly projection {{.Currency}}{{.MonthlyProjection}})</p>
<p><b>Average deviation:</b> {{.AvgDeviation}}</p>
<p><b>CO2 impact:</b> {{.CarbonKg}} kg</p>
{{- if .TopAssets }}
<p><b>Top assets:</b> {{.TopAssets}}</p>
{{- end }}
<p><b>Suggested action:</b> {{.Recommendation}}</p>
{{- if .DashboardURL }}
<p><a href="{{.DashboardURL}}">Open dashboard</a></p>
{{- end }}`

// TemplateData provides fields for rendering notification content.
type TemplateData struct {
	FaultType         string
	Label             string
	RaisedAt          string
	Count             int
	Assets            int
	Hours             string
	Loss              string
	MonthlyProjection string
	AvgDeviation      string
	CarbonKg          string
	TopAssets         string
	Recommendation    string
	Currency          string
	DashboardURL      string
}

// Template renders the subject, text and HTML bodies of an alert.
type Template struct {
	subject *template.Template
	text    *template.Template
	html    *htmltemplate.Template
}

// NewTemplate parses a text body template, falling back to DefaultTemplate.
// The subject and HTML body always use the defaults.
func NewTemplate(tpl string) (*Template, error) {
	return NewTemplates(DefaultSubject, tpl, DefaultHTMLTemplate)
}

// NewTemplates parses all three templates. Empty strings select the defaults.
func NewTemplates(subject, text, html string) (*Template, error) {
	if subject == "" {
		subject = DefaultSubject
	}
	if text == "" {
		text = DefaultTemplate
	}
	if html == "" {
		html = DefaultHTMLTemplate
	}
	parsedSubject, err := template.New("alert-subject").Parse(subject)
	if err != nil {
		return nil, err
	}
	parsedText, err := template.New("alert-text").Parse(text)
	if err != nil {
		return nil, err
	}
	parsedHTML, err := htmltemplate.New("alert-html").Parse(html)
	if err != nil {
		return nil, err
	}
	return &Template{subject: parsedSubject, text: parsedText, html: parsedHTML}, nil
}

// Render applies the templates to data.
func (t *Template) Render(data TemplateData) (Message, error) {
	if t == nil || t.text == nil {
		return Message{}, errors.New("alert template: nil")
	}
	var subject, text, html bytes.Buffer
	if err := t.subject.Execute(&subject, data); err != nil {
		return Message{}, err
	}
	if err := t.text.Execute(&text, data); err != nil {
		return Message{}, err
	}
	if err := t.html.Execute(&html, data); err != nil {
		return Message{}, err
	}
	return Message{
		Subject: subject.String(),
		Text:    text.String(),
		HTML:    html.String(),
		Key:     data.FaultType,
	}, nil
}
