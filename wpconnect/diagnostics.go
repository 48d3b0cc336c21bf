package wpconnect

import (
	"context"
	"encoding/json"
	"net/http"
)

// Diagnosis codes, roughly ordered by how early in the connection
// attempt the failure shows up.
const (
	DiagUnreachable    = "unreachable"
	DiagNotWordPress   = "not_wordpress"
	DiagBlocked        = "blocked"
	DiagBadCredentials = "bad_credentials"
	DiagOK             = "ok"
)

// Diagnosis explains why a site connection works or fails, in terms an
// agency admin can act on.
type Diagnosis struct {
	Healthy bool   `json:"healthy"`
	Code    string `json:"code"`
	Detail  string `json:"detail"`
	Hint    string `json:"hint,omitempty"`
}

// DiagnoseAuth walks the connection layers in order: reachability,
// REST availability, then application-password auth. The first failing
// layer determines the diagnosis.
func (c *Client) DiagnoseAuth(ctx context.Context) Diagnosis {
	resp, body, err := c.get(ctx, "/wp-json/", false)
	if err != nil {
		return Diagnosis{
			Code:   DiagUnreachable,
			Detail: err.Error(),
			Hint:   "check the site URL, DNS, and that the site is online",
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var root struct {
			Name string `json:"name"`
		}
		if json.Unmarshal(body, &root) != nil || root.Name == "" {
			return Diagnosis{
				Code:   DiagNotWordPress,
				Detail: "the REST root did not return a WordPress index",
				Hint:   "verify the URL points at a WordPress site and /wp-json/ is not rewritten",
			}
		}
	case http.StatusNotFound:
		return Diagnosis{
			Code:   DiagNotWordPress,
			Detail: "no REST API at /wp-json/",
			Hint:   "the REST API may be disabled, or this is not a WordPress site",
		}
	case http.StatusForbidden:
		return Diagnosis{
			Code:   DiagBlocked,
			Detail: "the REST root refused the request",
			Hint:   "a security plugin or WAF is likely blocking REST access; allowlist this service",
		}
	default:
		return Diagnosis{
			Code:   DiagUnreachable,
			Detail: "unexpected response from REST root: " + resp.Status,
		}
	}

	resp, body, err = c.get(ctx, "/wp-json/wp/v2/users/me", true)
	if err != nil {
		return Diagnosis{
			Code:   DiagUnreachable,
			Detail: err.Error(),
		}
	}

	switch resp.StatusCode {
	case http.StatusOK:
		var me struct {
			Name string `json:"name"`
		}
		detail := "authenticated"
		if json.Unmarshal(body, &me) == nil && me.Name != "" {
			detail = "authenticated as " + me.Name
		}
		return Diagnosis{Healthy: true, Code: DiagOK, Detail: detail}
	case http.StatusUnauthorized:
		diag := Diagnosis{
			Code:   DiagBadCredentials,
			Detail: "the application password was rejected",
			Hint:   "regenerate the application password and confirm the username matches",
		}
		// WordPress distinguishes disabled application passwords from
		// wrong ones in the error code.
		var wpErr struct {
			Code string `json:"code"`
		}
		if json.Unmarshal(body, &wpErr) == nil && wpErr.Code == "application_passwords_disabled" {
			diag.Detail = "application passwords are disabled on this site"
			diag.Hint = "enable application passwords (requires HTTPS) or remove the disabling filter"
		}
		return diag
	case http.StatusForbidden:
		return Diagnosis{
			Code:   DiagBlocked,
			Detail: "authenticated requests are being refused",
			Hint:   "a security plugin is likely blocking REST authentication; allowlist this service",
		}
	default:
		return Diagnosis{
			Code:   DiagBadCredentials,
			Detail: "unexpected response from identity endpoint: " + resp.Status,
		}
	}
}
