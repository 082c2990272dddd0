package provider

import (
	"context"
	"crypto/md5"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"go.uber.org/zap"
)

// FortaName is the canonical name of the Forta SBP e-commerce provider.
const FortaName = "Forta_SBP_ECOM"

const (
	fortaGateway     = "forta"
	fortaInvoicePath = "/merchantApic2c/invoice"
	fortaBank        = "SBP_ECOM"
	fortaCurrency    = "RUB"
)

var fortaVocabulary = domain.NewVocabulary(
	[]string{"paid", "success", "confirmed"},
	[]string{"canceled", "cancelled", "failed", "declined", "error"},
	nil,
)

// FortaConfig holds Forta credentials and public URLs.
type FortaConfig struct {
	APIToken string
	// WebhookURL is where Forta posts invoice notifications.
	WebhookURL string
	// PublicBaseURL hosts the QR form and is the last-resort return URL.
	PublicBaseURL string
}

// Forta is the SBP e-commerce invoice adapter.
type Forta struct {
	unsupported
	cfg    FortaConfig
	client *apiClient
	store  CorrelationStore
}

// NewForta creates a Forta adapter.
func NewForta(cfg FortaConfig, store CorrelationStore, opts ClientOptions) *Forta {
	cfg.PublicBaseURL = strings.TrimRight(cfg.PublicBaseURL, "/")
	return &Forta{
		cfg:    cfg,
		client: newAPIClient(FortaName, opts),
		store:  store,
	}
}

// Name returns the provider name.
func (f *Forta) Name() string {
	return FortaName
}

// NormalizeStatus maps a Forta invoice status to the canonical set.
func (f *Forta) NormalizeStatus(raw string) domain.Status {
	return fortaVocabulary.Normalize(raw)
}

type fortaInvoiceRequest struct {
	OrderID     string `json:"orderId"`
	Amount      int64  `json:"amount"`
	Bank        string `json:"bank"`
	PayerHash   string `json:"payerHash"`
	CallbackURL string `json:"callbackUrl"`
	ReturnURL   string `json:"returnUrl"`
}

type fortaEnvelope struct {
	Data   *fortaInvoice `json:"data"`
	Result *struct {
		Status flexString `json:"status"`
	} `json:"result"`
}

type fortaInvoice struct {
	GUID          flexString `json:"guid"`
	OrderID       flexString `json:"orderId"`
	Amount        flexString `json:"amount"`
	Currency      flexString `json:"currency"`
	Bank          flexString `json:"bank"`
	Status        flexString `json:"status"`
	QRCodeLink    flexString `json:"qrCodeLink"`
	Link          flexString `json:"link"`
	ReceiverName  flexString `json:"receiverName"`
	ReceiverBank  flexString `json:"receiverBank"`
	ReceiverPhone flexString `json:"receiverPhone"`
}

type fortaNotification struct {
	GUID    flexString `json:"guid"`
	OrderID flexString `json:"orderId"`
	Amount  flexString `json:"amount"`
	Status  flexString `json:"status"`
	Sign    flexString `json:"sign"`
}

func (e *fortaEnvelope) invoice() *fortaInvoice {
	if e.Data == nil {
		return &fortaInvoice{}
	}
	return e.Data
}

func (e *fortaEnvelope) status() string {
	var result flexString
	if e.Result != nil {
		result = e.Result.Status
	}
	return firstOf(e.invoice().Status, result)
}

func (inv *fortaInvoice) link() string {
	return firstOf(inv.QRCodeLink, inv.Link)
}

// output builds requisites and the display bag. Without a QR link the
// receiver phone is offered as SBP requisites.
func (inv *fortaInvoice) output(wrappedToJSON bool) (domain.Requisites, domain.ResponseData) {
	link := inv.link()
	phone := string(inv.ReceiverPhone)

	fields := domain.InstrumentFields{
		Holder:   string(inv.ReceiverName),
		BankName: string(inv.ReceiverBank),
		Link:     link,
	}
	if link == "" && phone != "" {
		fields.Method = "sbp"
		fields.Number = phone
	}
	requisites, _ := domain.Classify(fields)
	if link != "" && wrappedToJSON {
		requisites = domain.Requisites{
			Kind:     domain.RequisitesQR,
			QR:       &domain.QRData{Type: "sbp_ecom", QRURL: link, EmbeddedJSON: true},
			Holder:   fields.Holder,
			BankName: fields.BankName,
			Phone:    phone,
		}
	}

	var qrLink any
	if link != "" {
		qrLink = link
	}
	bag := domain.ResponseData{
		"guid":            nullable(inv.GUID),
		"orderId":         nullable(inv.OrderID),
		"amount":          nullable(inv.Amount),
		"bank":            nullable(inv.Bank),
		"status":          nullable(inv.Status),
		"qrCodeLink":      qrLink,
		"receiverName":    fields.Holder,
		"receiverBank":    fields.BankName,
		"receiverPhone":   phone,
		"wrapped_to_json": wrappedToJSON,
	}
	return requisites, bag
}

func (f *Forta) headers(override string) map[string]string {
	return map[string]string{"Authorization": strings.TrimSpace(credential(override, f.cfg.APIToken))}
}

// Pay creates an SBP e-commerce invoice.
func (f *Forta) Pay(ctx context.Context, req *PayRequest) (*domain.PayResponse, error) {
	body := fortaInvoiceRequest{
		OrderID:     req.OrderNumber,
		Amount:      req.Amount,
		Bank:        fortaBank,
		PayerHash:   orDefault(req.Customer.ClientID, req.PlatformToken),
		CallbackURL: f.cfg.WebhookURL,
		ReturnURL:   orDefault(req.RedirectSuccessURL, orDefault(req.ProcessingURL, f.cfg.PublicBaseURL)),
	}
	masked := body
	masked.CallbackURL = "***"

	target := f.client.url(fortaInvoicePath)
	resp, err := f.client.do(ctx, call{
		operation: "pay",
		method:    http.MethodPost,
		path:      fortaInvoicePath,
		headers:   f.headers(req.AuthorizationToken),
		body:      body,
	})
	if err != nil {
		return domain.DeclinedPayResponse(transportLog(fortaGateway, target, masked, "pay", err)), nil
	}
	entry := responseLog(fortaGateway, target, masked, "pay", resp)

	var env fortaEnvelope
	if resp.unmarshal(&env) != nil || (!resp.ok() && env.Data == nil) {
		f.client.logger.Warn("invoice rejected",
			zap.String("order_number", req.OrderNumber),
			zap.Int("status", resp.StatusCode),
		)
		return domain.DeclinedPayResponse(entry), nil
	}
	inv := env.invoice()
	guid := string(inv.GUID)
	rawStatus := env.status()

	if err := f.store.Upsert(ctx, &domain.Correlation{
		PlatformToken:       req.PlatformToken,
		OrderNumber:         domain.Optional(req.OrderNumber),
		Provider:            FortaName,
		ProviderOperationID: domain.Optional(guid),
		CallbackURL:         req.CallbackURL,
		Status:              domain.Optional(rawStatus),
		Amount:              &req.Amount,
		Currency:            domain.Optional(req.Currency),
	}); err != nil {
		return nil, fmt.Errorf("store correlation: %w", err)
	}

	out := domain.NewPayResponse(f.NormalizeStatus(rawStatus))
	out.GatewayToken = domain.Optional(guid)
	out.Requisites, out.ProviderResponseData = inv.output(req.WrappedToJSON)
	out.RedirectRequest = f.redirect(req, guid, inv.link())
	out.Logs = append(out.Logs, entry)
	return out, nil
}

// redirect picks the presentation: hosted QR form, inline JSON, or a plain redirect.
func (f *Forta) redirect(req *PayRequest, guid, link string) domain.RedirectRequest {
	switch {
	case link == "":
		return domain.NoRedirect()
	case req.ShowQROnForm:
		formURL := f.cfg.PublicBaseURL + "/qr_form/" + guid
		return domain.IframeForm(formURL, domain.Iframe{
			URL: formURL,
			Data: domain.IframeData{
				GatewayToken: guid,
				QRURL:        link,
				Amount:       req.Amount,
				Currency:     orDefault(req.Currency, fortaCurrency),
				OrderNumber:  req.OrderNumber,
			},
		})
	case req.WrappedToJSON:
		return domain.EmbeddedJSON("")
	default:
		return domain.RedirectTo(link)
	}
}

// Status polls an invoice by guid.
func (f *Forta) Status(ctx context.Context, req *StatusRequest) *domain.StatusResponse {
	guid := req.Record.OperationID()
	if guid == "" {
		return domain.PendingStatus("no guid in mapping")
	}

	query := map[string]string{"id": guid}
	target := f.client.url(fortaInvoicePath)
	resp, err := f.client.do(ctx, call{
		operation: "status",
		method:    http.MethodGet,
		path:      fortaInvoicePath,
		headers:   f.headers(req.AuthorizationToken),
		query:     query,
	})
	if err != nil {
		return domain.PendingStatus("Gateway unreachable: "+err.Error(),
			transportLog(fortaGateway, target, query, "status", err))
	}
	entry := responseLog(fortaGateway, target, query, "status", resp)

	var env fortaEnvelope
	_ = resp.unmarshal(&env)
	inv := env.invoice()
	status := f.NormalizeStatus(env.status())
	requisites, bag := inv.output(false)
	currency := orDefault(string(inv.Currency), fortaCurrency)

	return &domain.StatusResponse{
		Result:               domain.ResultOK,
		Status:               status,
		Details:              "Transaction status: " + string(status),
		Amount:               numberOrNil(string(inv.Amount)),
		Currency:             &currency,
		Logs:                 []domain.LogEntry{entry},
		ProviderResponseData: bag,
		Requisites:           &requisites,
	}
}

// ParseNotification verifies a Forta callback. The sign is
// hex(md5(orderId + amount + token)); a missing sign or token is rejected.
func (f *Forta) ParseNotification(body []byte, _ http.Header) (*Notification, error) {
	var n fortaNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}

	token := strings.TrimSpace(f.cfg.APIToken)
	if token == "" || n.Sign == "" {
		return nil, ErrInvalidSignature
	}
	if !validFortaSign(string(n.OrderID), string(n.Amount), token, string(n.Sign)) {
		return nil, ErrInvalidSignature
	}

	if n.GUID == "" && n.OrderID == "" {
		return nil, fmt.Errorf("%w: guid or orderId is required", ErrMalformedNotification)
	}
	return &Notification{
		OperationID: string(n.GUID),
		OrderNumber: string(n.OrderID),
		RawStatus:   string(n.Status),
		Amount:      string(n.Amount),
	}, nil
}

// FortaSign computes the notification signature.
func FortaSign(orderID, amount, token string) string {
	sum := md5.Sum([]byte(orderID + amount + token))
	return hex.EncodeToString(sum[:])
}

func validFortaSign(orderID, amount, token, sign string) bool {
	expected := FortaSign(orderID, amount, token)
	return subtle.ConstantTimeCompare([]byte(expected), []byte(strings.ToLower(sign))) == 1
}

func nullable(v flexString) any {
	if v == "" {
		return nil
	}
	return string(v)
}
