package proxy

import (
	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"

	"gatewaycred/internal/config"
)

// BuildPayload wraps the caller's opaque request body in the fixed
// {model, project, request} envelope the upstream action endpoints expect.
// Field surgery is performed once, via gjson/sjson, and the resulting bytes
// are reused across every retry attempt for this call.
func BuildPayload(cfg *config.Config, model, project string, request []byte) []byte {
	req := request
	if cfg.IsPublicModel(model) {
		req = stripToImageConfig(req)
	}
	req = mergeDefaultSafetySettings(cfg, req)

	out, _ := sjson.SetBytes([]byte("{}"), "model", model)
	out, _ = sjson.SetBytes(out, "project", project)
	out, _ = sjson.SetRawBytes(out, "request", req)
	return out
}

// stripToImageConfig reduces generationConfig to, at most, its image-related
// sub-field, per the public request shape.
func stripToImageConfig(request []byte) []byte {
	imageConfig := gjson.GetBytes(request, "generationConfig.imageConfig")
	out, err := sjson.DeleteBytes(request, "generationConfig")
	if err != nil {
		return request
	}
	if imageConfig.Exists() {
		out, _ = sjson.SetRawBytes(out, "generationConfig.imageConfig", []byte(imageConfig.Raw))
	}
	return out
}

// mergeDefaultSafetySettings appends any configured default safety category
// the caller's request did not already specify, leaving caller-supplied
// categories untouched. A caller supplying some categories does not opt out
// of the rest of the defaults.
func mergeDefaultSafetySettings(cfg *config.Config, request []byte) []byte {
	if len(cfg.DefaultSafetySettings) == 0 {
		return request
	}

	present := map[string]bool{}
	for _, c := range gjson.GetBytes(request, "safetySettings").Array() {
		if cat := c.Get("category").String(); cat != "" {
			present[cat] = true
		}
	}

	out := request
	for _, s := range cfg.DefaultSafetySettings {
		if present[s.Category] {
			continue
		}
		entry := map[string]string{"category": s.Category, "threshold": s.Threshold}
		next, err := sjson.SetBytes(out, "safetySettings.-1", entry)
		if err != nil {
			continue
		}
		out = next
	}
	return out
}

// UnwrapEnvelope unwraps the `response` envelope key upstream frames and
// bodies carry, if present; otherwise returns data unchanged.
func UnwrapEnvelope(data []byte) []byte {
	r := gjson.GetBytes(data, "response")
	if r.Exists() {
		return []byte(r.Raw)
	}
	return data
}
