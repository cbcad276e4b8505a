package protocol

import "strings"

// Agent Card field names inspected by the validator and dispatcher.
const (
	CardFieldName         = "name"
	CardFieldVersion      = "version"
	CardFieldURL          = "url"
	CardFieldCapabilities = "capabilities"
	CardFieldSkills       = "skills"

	CardFieldPreferredTransport = "preferredTransport"
)

// TransportGRPC is the card transport name of gRPC interfaces, whose
// URLs are gRPC targets ("host:port") rather than HTTP URLs.
const TransportGRPC = "GRPC"

// optionalCardFields are the remaining top-level Agent Card members
// (protocol 0.3). CompleteCard emits them as null when absent.
var optionalCardFields = []string{
	"protocolVersion",
	"description",
	"preferredTransport",
	"additionalInterfaces",
	"iconUrl",
	"provider",
	"documentationUrl",
	"securitySchemes",
	"security",
	"defaultInputModes",
	"defaultOutputModes",
	"supportsAuthenticatedExtendedCard",
	"signatures",
}

// CompleteCard returns a copy of card in which every optional field the
// agent omitted is present with a null value. Fields the validator checks
// are left alone so that absence stays observable.
func CompleteCard(card Document) Document {
	out := make(Document, len(card)+len(optionalCardFields))
	for k, v := range card {
		out[k] = v
	}
	for _, f := range optionalCardFields {
		if _, ok := out[f]; !ok {
			out[f] = nil
		}
	}
	return out
}

// CardStreaming reports whether the card declares capabilities.streaming
// as the boolean true. Anything else, including a malformed capabilities
// member, means no.
func CardStreaming(card Document) bool {
	caps, ok := card[CardFieldCapabilities].(map[string]any)
	if !ok {
		return false
	}
	streaming, _ := caps["streaming"].(bool)
	return streaming
}

// CardURL returns the card's service endpoint, or "" if absent or not a string.
func CardURL(card Document) string {
	u, _ := card[CardFieldURL].(string)
	return u
}

// CardEndpoint returns the URL the card's preferred interface is reached
// at, in the form the admission guard checks.
func CardEndpoint(card Document) string {
	transport, _ := card[CardFieldPreferredTransport].(string)
	return AdmissionURL(transport, CardURL(card))
}

// AdmissionURL turns an interface URL into an http(s) URL carrying the
// same host and port. gRPC targets are checked as https URLs; every other
// transport is returned unchanged.
func AdmissionURL(transport, endpoint string) string {
	if transport != TransportGRPC || endpoint == "" {
		return endpoint
	}
	target := strings.TrimPrefix(endpoint, "dns:///")
	if strings.Contains(target, "://") {
		return target
	}
	return "https://" + target
}

// CardName returns the card's name, or "".
func CardName(card Document) string {
	n, _ := card[CardFieldName].(string)
	return n
}
