package mailqueue

import (
	"bytes"
	"fmt"
	"text/template"
)

var licenseEmailTemplate = template.Must(template.New("license_email").Parse(
	`<p>Hi {{.customerName}},</p>
<p>Thanks for your order <strong>{{.orderId}}</strong>. Your license for <strong>{{.productRef}}</strong> is ready:</p>
<p><code>{{.licenseKey}}</code></p>
<p>{{.instructions}}</p>
`))

var waitlistNotificationTemplate = template.Must(template.New("waitlist_notification").Parse(
	`<p>Hi {{.customerName}},</p>
<p>We received your payment for order <strong>{{.orderId}}</strong>. {{.productRef}} is temporarily out of stock —
you're on the list and we'll email your license key as soon as one frees up.</p>
`))

var orderConfirmationTemplate = template.Must(template.New("order_confirmation").Parse(
	`<p>Hi {{.customerName}},</p>
<p>Your order <strong>{{.orderId}}</strong> for {{.qty}}x {{.productRef}} is confirmed.</p>
`))

var subjects = map[TaskType]string{
	TaskLicenseEmail:         "Your license key is ready",
	TaskWaitlistNotification: "You're on the waitlist",
	TaskOrderConfirmation:    "Order confirmed",
}

var templatesByType = map[TaskType]*template.Template{
	TaskLicenseEmail:         licenseEmailTemplate,
	TaskWaitlistNotification: waitlistNotificationTemplate,
	TaskOrderConfirmation:    orderConfirmationTemplate,
}

// Render produces the subject and HTML body for a task from its RefIDs.
func Render(t Task) (subject, html string, err error) {
	tmpl, ok := templatesByType[t.Type]
	if !ok {
		return "", "", fmt.Errorf("mailqueue: no template registered for task type %q", t.Type)
	}

	data := make(map[string]string, len(t.RefIDs))
	for k, v := range t.RefIDs {
		data[k] = v
	}

	var buf bytes.Buffer
	if err := tmpl.Execute(&buf, data); err != nil {
		return "", "", fmt.Errorf("mailqueue: render %s: %w", t.Type, err)
	}

	return subjects[t.Type], buf.String(), nil
}
