package scrape

import (
	"bytes"
	"net/http"
)

// BlockType describes the kind of anti-bot block detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

// DetectBlock checks a response for anti-bot interstitials.
func DetectBlock(resp *http.Response, body []byte) (bool, BlockType) {
	if resp == nil {
		return false, BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || resp.Header.Get("server") == "cloudflare" {
			return true, BlockCloudflare
		}
	}

	lower := bytes.ToLower(body)
	switch {
	case bytes.Contains(lower, []byte("checking your browser")),
		bytes.Contains(lower, []byte("cf-browser-verification")):
		return true, BlockCloudflare
	case bytes.Contains(lower, []byte("g-recaptcha")),
		bytes.Contains(lower, []byte("h-captcha")),
		bytes.Contains(lower, []byte("captcha-container")):
		return true, BlockCaptcha
	}

	if len(body) < 2000 {
		if bytes.Contains(lower, []byte("<noscript")) && bytes.Contains(lower, []byte("javascript")) {
			return true, BlockJSShell
		}
		if bytes.Contains(lower, []byte(`http-equiv="refresh"`)) {
			return true, BlockJSShell
		}
	}
	return false, BlockNone
}
