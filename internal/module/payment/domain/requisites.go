package domain

import (
	"encoding/json"
	"strings"
)

// RequisitesKind identifies the canonical shape of payment requisites.
type RequisitesKind string

const (
	RequisitesNone    RequisitesKind = ""
	RequisitesSBP     RequisitesKind = "sbp"
	RequisitesCard    RequisitesKind = "card"
	RequisitesAccount RequisitesKind = "account"
	RequisitesLink    RequisitesKind = "link"
	// RequisitesQR is a LINK rendered inline as embedded QR data.
	RequisitesQR RequisitesKind = "qr_data"
)

// Requisites describes where the payer sends money.
type Requisites struct {
	Kind     RequisitesKind
	Value    string // pan, card or account number depending on Kind
	LinkURL  string
	QR       *QRData
	Holder   string
	BankName string
	Phone    string
}

// QRData is an inline QR description for json_embedded presentation.
type QRData struct {
	Type         string `json:"type"`
	QRURL        string `json:"qr_url"`
	EmbeddedJSON bool   `json:"embedded_json"`
}

type linkBody struct {
	URL string `json:"url"`
}

// MarshalJSON renders the requisites in the platform's shape; RequisitesNone
// renders as an empty object.
func (r Requisites) MarshalJSON() ([]byte, error) {
	out := map[string]any{}
	switch r.Kind {
	case RequisitesSBP:
		out["pan"] = r.Value
	case RequisitesCard:
		out["card"] = r.Value
	case RequisitesAccount:
		out["account"] = r.Value
	case RequisitesLink:
		out["link"] = linkBody{URL: r.LinkURL}
	case RequisitesQR:
		out["qr_data"] = r.QR
		out["phone"] = r.Phone
	default:
		return []byte("{}"), nil
	}
	out["holder"] = r.Holder
	out["bank_name"] = r.BankName
	return json.Marshal(out)
}

// IsEmpty reports whether no confident requisites were found.
func (r Requisites) IsEmpty() bool {
	return r.Kind == RequisitesNone
}

// InstrumentFields are the raw payment-instrument fields a provider returned.
type InstrumentFields struct {
	Method    string
	Holder    string
	BankName  string
	Number    string
	AltNumber string
	QR        string
	Link      string
}

var (
	sbpMethods     = map[string]bool{"sbp": true, "tophone": true, "to_phone": true}
	cardMethods    = map[string]bool{"card": true, "tocard": true, "to_card": true}
	accountMethods = map[string]bool{"account": true, "toaccount": true, "to_account": true}
)

// phoneCountryDigit marks a phone-shaped digit string regardless of length.
const phoneCountryDigit = "7"

// Classify turns raw instrument fields into canonical requisites plus a display bag.
// The first matching rule wins: SBP, CARD, ACCOUNT, LINK, then nothing.
func Classify(f InstrumentFields) (Requisites, ResponseData) {
	method := strings.ToLower(strings.TrimSpace(f.Method))

	raw := f.Number
	if raw == "" {
		raw = f.AltNumber
	}
	digits := onlyDigits(raw)

	payable := digits
	if payable == "" {
		payable = firstNonEmpty(f.Number, f.AltNumber)
	}

	n := len(digits)
	isCard := n >= 13 && n <= 19
	isAccount := n >= 20
	isPhone := n > 0 && (n == 10 || n == 11 || strings.HasPrefix(digits, phoneCountryDigit))

	base := Requisites{Holder: f.Holder, BankName: f.BankName}

	switch {
	case sbpMethods[method] || (f.QR != "" && isPhone):
		base.Kind = RequisitesSBP
		base.Value = payable
		return base, ResponseData{
			"qr":        f.QR,
			"pan":       payable,
			"phone":     payable,
			"holder":    f.Holder,
			"bank_name": f.BankName,
		}
	case cardMethods[method] || isCard:
		base.Kind = RequisitesCard
		base.Value = payable
		return base, ResponseData{
			"qr":        f.QR,
			"card":      payable,
			"holder":    f.Holder,
			"bank_name": f.BankName,
		}
	case accountMethods[method] || isAccount:
		base.Kind = RequisitesAccount
		base.Value = payable
		return base, ResponseData{
			"qr":        f.QR,
			"account":   payable,
			"holder":    f.Holder,
			"bank_name": f.BankName,
		}
	case f.Link != "":
		base.Kind = RequisitesLink
		base.LinkURL = f.Link
		return base, ResponseData{
			"qr":        f.QR,
			"link":      f.Link,
			"holder":    f.Holder,
			"bank_name": f.BankName,
		}
	default:
		return Requisites{}, ResponseData{
			"qr":        f.QR,
			"holder":    f.Holder,
			"bank_name": f.BankName,
		}
	}
}

func onlyDigits(s string) string {
	var b strings.Builder
	for _, r := range s {
		if r >= '0' && r <= '9' {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
