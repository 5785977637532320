package alerting

import (
	"bytes"
	"fmt"
	"html/template"
)

var (
	spikeTemplate = template.Must(template.New("spike").Parse(`<h2>Price Alert for {{.Symbol}}</h2>
<p>The price of {{.Symbol}} has increased by {{.ChangePct}}% over the last {{.Window}}.</p>
<ul>
  <li><strong>Chain:</strong> {{.Symbol}}</li>
  <li><strong>Current Price:</strong> ${{.Current}}</li>
  <li><strong>Previous Price ({{.Window}} ago):</strong> ${{.Baseline}}</li>
  <li><strong>Percentage Increase:</strong> {{.ChangePct}}%</li>
</ul>
`))

	targetTemplate = template.Must(template.New("target").Parse(`<h2>Target Price Alert for {{.Symbol}}</h2>
<p>The price of {{.Symbol}} has reached or exceeded your target price.</p>
<ul>
  <li><strong>Chain:</strong> {{.Symbol}}</li>
  <li><strong>Current Price:</strong> ${{.Current}}</li>
  <li><strong>Target Price:</strong> ${{.Target}}</li>
</ul>
`))

	testTemplate = template.Must(template.New("test").Parse(`<h2>Test Email</h2>
<p>This is a test email from the Crypto Price Tracker application.</p>
<p>If you received this email, the email service is working correctly.</p>
`))
)

func renderSpike(recipient string, spike Spike) (Message, error) {
	data := map[string]string{
		"Symbol":    spike.Token.Symbol(),
		"Current":   spike.Current.StringFixed(2),
		"Baseline":  spike.Baseline.StringFixed(2),
		"ChangePct": spike.ChangePct.StringFixed(2),
		"Window":    formatWindow(spike),
	}
	body, err := execute(spikeTemplate, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       recipient,
		Subject:  fmt.Sprintf("Price Alert: %s increased by %s%%", data["Symbol"], data["ChangePct"]),
		HTMLBody: body,
	}, nil
}

func renderTarget(recipient string, target TargetReached) (Message, error) {
	data := map[string]string{
		"Symbol":  target.Token.Symbol(),
		"Current": target.Current.StringFixed(2),
		"Target":  target.Target.StringFixed(2),
	}
	body, err := execute(targetTemplate, data)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       recipient,
		Subject:  fmt.Sprintf("Target Price Alert: %s has reached your target price", data["Symbol"]),
		HTMLBody: body,
	}, nil
}

func renderTest(recipient string) (Message, error) {
	body, err := execute(testTemplate, nil)
	if err != nil {
		return Message{}, err
	}
	return Message{
		To:       recipient,
		Subject:  "Crypto Price Tracker: Test Email",
		HTMLBody: body,
	}, nil
}

func formatWindow(spike Spike) string {
	if spike.Window <= 0 {
		return "1 hour"
	}
	if hours := spike.Window.Hours(); hours == float64(int(hours)) {
		if hours == 1 {
			return "1 hour"
		}
		return fmt.Sprintf("%d hours", int(hours))
	}
	return spike.Window.String()
}

func execute(tpl *template.Template, data any) (string, error) {
	var buf bytes.Buffer
	if err := tpl.Execute(&buf, data); err != nil {
		return "", fmt.Errorf("render %s email: %w", tpl.Name(), err)
	}
	return buf.String(), nil
}
