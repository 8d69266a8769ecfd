package syncsession

// Capabilities is the full set of capability strings this instance can
// advertise and understand. A peer's advertised set is intersected against
// this set on receipt.
var Capabilities = map[string]bool{
	"gzip-buffer-compression":  true,
	"chunked-buffer-transfer":  true,
	"certificate-scoped-filter": true,
}

func intersectCapabilities(advertised []string) map[string]bool {
	out := map[string]bool{}
	for _, c := range advertised {
		if Capabilities[c] {
			out[c] = true
		}
	}
	return out
}

func capabilitySlice(caps map[string]bool) []string {
	out := make([]string, 0, len(caps))
	for c := range caps {
		out = append(out, c)
	}
	return out
}
