package shipping

import (
	"net/url"
	"strings"
)

const (
	CarrierUSPS  = "usps"
	CarrierFedEx = "fedex"
	CarrierUPS   = "ups"
	CarrierOther = "other"
)

// NormalizeCarrier returns a canonical carrier key for known carriers.
func NormalizeCarrier(value string) string {
	normalized := strings.ToLower(strings.TrimSpace(value))
	replacer := strings.NewReplacer(" ", "", "-", "", "_", "")
	normalized = replacer.Replace(normalized)

	switch normalized {
	case "usps", "unitedstatespostalservice":
		return CarrierUSPS
	case "fedex", "federalexpress":
		return CarrierFedEx
	case "ups", "unitedparcelservice":
		return CarrierUPS
	case "other":
		return CarrierOther
	default:
		return ""
	}
}

// CanonicalCarrierName maps a carrier key to the display name. Custom
// carriers are kept untouched.
func CanonicalCarrierName(carrier string) string {
	switch NormalizeCarrier(carrier) {
	case CarrierUSPS:
		return "USPS"
	case CarrierFedEx:
		return "FedEx"
	case CarrierUPS:
		return "UPS"
	default:
		return strings.TrimSpace(carrier)
	}
}

// TrackingURL returns a carrier-specific tracking URL. Unknown carriers
// return empty.
func TrackingURL(carrier, trackingNumber string) string {
	number := strings.TrimSpace(trackingNumber)
	if number == "" {
		return ""
	}

	escaped := url.QueryEscape(number)
	switch NormalizeCarrier(carrier) {
	case CarrierUSPS:
		return "https://tools.usps.com/go/TrackConfirmAction?tLabels=" + escaped
	case CarrierFedEx:
		return "https://www.fedex.com/fedextrack/?trknbr=" + escaped
	case CarrierUPS:
		return "https://www.ups.com/track?tracknum=" + escaped
	default:
		return ""
	}
}
