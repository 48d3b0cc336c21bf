// Package webhook normalizes inbound lead-capture payloads. Marketing
// forms arrive in several shapes (Facebook Lead Ads field_data arrays,
// Elementor fields objects, flat generic forms) and under inconsistent
// field names; NormalizeLead flattens them into a single model.Lead.
package webhook

import (
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"wp-actionqueue/model"
)

// ErrNoLeadFields means the payload parsed but contained nothing
// recognizable as a lead.
var ErrNoLeadFields = errors.New("payload contains no recognizable lead fields")

var (
	nameKeys    = []string{"name", "full_name", "fullname", "your-name", "contact_name"}
	emailKeys   = []string{"email", "email_address", "your-email", "contact_email"}
	phoneKeys   = []string{"phone", "phone_number", "your-phone", "tel", "telephone", "contact_phone"}
	messageKeys = []string{"message", "comments", "enquiry", "inquiry", "your-message", "description"}
	utmKeys     = []string{"utm_source", "utm_medium", "utm_campaign", "utm_term", "utm_content"}
)

// NormalizeLead converts a raw webhook body into a Lead. Source is
// detected from the payload shape; unknown scalar fields land in Extra.
func NormalizeLead(payload []byte) (model.Lead, error) {
	var raw map[string]any
	if err := json.Unmarshal(payload, &raw); err != nil {
		return model.Lead{}, fmt.Errorf("decode lead payload: %w", err)
	}

	lead := model.Lead{
		Source:      "generic",
		SubmittedAt: time.Now().UTC(),
	}

	fields := raw
	switch {
	case hasKey(raw, "field_data"):
		// Facebook Lead Ads: field_data is a list of {name, values}.
		lead.Source = "facebook"
		fields = flattenFieldData(raw["field_data"])
		lead.FormID = stringValue(raw["form_id"])
		lead.CampaignID = stringValue(raw["campaign_id"])
		if created := stringValue(raw["created_time"]); created != "" {
			if t, err := time.Parse(time.RFC3339, created); err == nil {
				lead.SubmittedAt = t.UTC()
			}
		}
	case hasKey(raw, "fields"):
		// Elementor: fields maps field id to {value} or to a bare value.
		lead.Source = "elementor"
		fields = flattenElementorFields(raw["fields"])
		lead.FormID = firstString(raw, "form_id", "form_name")
	default:
		lead.FormID = firstString(raw, "form_id", "form_name")
	}

	lead.Name = pickField(fields, nameKeys)
	if lead.Name == "" {
		first := pickField(fields, []string{"first_name", "firstname"})
		last := pickField(fields, []string{"last_name", "lastname"})
		lead.Name = strings.TrimSpace(first + " " + last)
	}
	lead.Email = pickField(fields, emailKeys)
	lead.Phone = pickField(fields, phoneKeys)
	lead.Message = pickField(fields, messageKeys)

	lead.UTM = collectUTM(raw, fields)
	lead.Extra = collectExtra(fields)

	if lead.Name == "" && lead.Email == "" && lead.Phone == "" {
		return model.Lead{}, ErrNoLeadFields
	}
	return lead, nil
}

func flattenFieldData(value any) map[string]any {
	flat := make(map[string]any)
	items, ok := value.([]any)
	if !ok {
		return flat
	}
	for _, item := range items {
		entry, ok := item.(map[string]any)
		if !ok {
			continue
		}
		name := stringValue(entry["name"])
		if name == "" {
			continue
		}
		if values, ok := entry["values"].([]any); ok && len(values) > 0 {
			flat[name] = values[0]
		}
	}
	return flat
}

func flattenElementorFields(value any) map[string]any {
	flat := make(map[string]any)
	fields, ok := value.(map[string]any)
	if !ok {
		return flat
	}
	for name, field := range fields {
		if nested, ok := field.(map[string]any); ok {
			flat[name] = nested["value"]
			continue
		}
		flat[name] = field
	}
	return flat
}

func collectUTM(raw, fields map[string]any) map[string]string {
	utm := make(map[string]string)
	for _, key := range utmKeys {
		value := stringValue(raw[key])
		if value == "" {
			value = stringValue(fields[key])
		}
		if value != "" {
			utm[strings.TrimPrefix(key, "utm_")] = value
		}
	}
	if nested, ok := raw["utm"].(map[string]any); ok {
		for key, value := range nested {
			if s := stringValue(value); s != "" {
				utm[strings.TrimPrefix(key, "utm_")] = s
			}
		}
	}
	if len(utm) == 0 {
		return nil
	}
	return utm
}

func collectExtra(fields map[string]any) map[string]string {
	known := make(map[string]bool)
	for _, keys := range [][]string{nameKeys, emailKeys, phoneKeys, messageKeys, utmKeys,
		{"first_name", "firstname", "last_name", "lastname", "form_id", "form_name"}} {
		for _, key := range keys {
			known[key] = true
		}
	}

	extra := make(map[string]string)
	for key, value := range fields {
		if known[key] {
			continue
		}
		if s := stringValue(value); s != "" {
			extra[key] = s
		}
	}
	if len(extra) == 0 {
		return nil
	}
	return extra
}

func pickField(fields map[string]any, keys []string) string {
	for _, key := range keys {
		if value := stringValue(fields[key]); value != "" {
			return value
		}
	}
	return ""
}

func firstString(raw map[string]any, keys ...string) string {
	for _, key := range keys {
		if value := stringValue(raw[key]); value != "" {
			return value
		}
	}
	return ""
}

func hasKey(raw map[string]any, key string) bool {
	_, ok := raw[key]
	return ok
}

func stringValue(value any) string {
	switch v := value.(type) {
	case string:
		return strings.TrimSpace(v)
	case float64:
		if v == float64(int64(v)) {
			return strconv.FormatInt(int64(v), 10)
		}
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	default:
		return ""
	}
}
