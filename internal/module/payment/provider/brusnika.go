package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/gatewayconnect/server/internal/module/payment/domain"
	"go.uber.org/zap"
)

// BrusnikaName is the canonical name of the Brusnika SBP provider.
const BrusnikaName = "Brusnika_SBP"

const (
	brusnikaGateway    = "brusnika"
	brusnikaPayinPath  = "/host2host/payin"
	brusnikaStatusPath = "/operation/operation/platform/"
)

var brusnikaVocabulary = domain.NewVocabulary(
	[]string{"approved", "success", "succeeded", "completed", "paid", "confirmed"},
	[]string{"declined", "failed", "error", "canceled", "cancelled", "expired"},
	[]string{"refunded", "refund", "reversed"},
)

// BrusnikaConfig holds Brusnika credentials.
type BrusnikaConfig struct {
	APIKey string
	// WebhookURL is where Brusnika posts status notifications.
	WebhookURL string
}

// Brusnika is the host-to-host SBP payin adapter.
type Brusnika struct {
	unsupported
	cfg    BrusnikaConfig
	client *apiClient
	store  CorrelationStore
}

// NewBrusnika creates a Brusnika adapter.
func NewBrusnika(cfg BrusnikaConfig, store CorrelationStore, opts ClientOptions) *Brusnika {
	return &Brusnika{
		cfg:    cfg,
		client: newAPIClient(BrusnikaName, opts),
		store:  store,
	}
}

// Name returns the provider name.
func (b *Brusnika) Name() string {
	return BrusnikaName
}

// NormalizeStatus maps a Brusnika status to the canonical set.
func (b *Brusnika) NormalizeStatus(raw string) domain.Status {
	return brusnikaVocabulary.Normalize(raw)
}

// --- Wire types ---

type brusnikaPayinRequest struct {
	ClientID              string                  `json:"clientID"`
	ClientIP              string                  `json:"clientIP"`
	ClientDateCreated     *string                 `json:"clientDateCreated"`
	PaymentMethod         string                  `json:"paymentMethod"`
	IDTransactionMerchant string                  `json:"idTransactionMerchant"`
	Amount                int64                   `json:"amount"`
	IntegrationData       brusnikaIntegrationData `json:"integrationMerhcnatData"` // sic
}

type brusnikaIntegrationData struct {
	WebHook string `json:"webHook"`
}

type brusnikaEnvelope struct {
	Data   *brusnikaOperation `json:"data"`
	Result *struct {
		Status flexString `json:"status"`
	} `json:"result"`
}

func (e *brusnikaEnvelope) resultStatus() flexString {
	if e.Result == nil {
		return ""
	}
	return e.Result.Status
}

type brusnikaOperation struct {
	ID                 flexString      `json:"id"`
	IDPlatform         flexString      `json:"idPlatform"`
	Status             flexString      `json:"status"`
	Amount             flexString      `json:"amount"`
	AmountInitial      flexString      `json:"amountInitial"`
	Currency           flexString      `json:"currency"`
	Deeplink           flexString      `json:"deeplink"`
	PaymentDetailsData json.RawMessage `json:"paymentDetailsData"`
}

type brusnikaPaymentDetails struct {
	PaymentMethod    flexString `json:"paymentMethod"`
	BankName         flexString `json:"bankName"`
	NameMediator     flexString `json:"nameMediator"`
	Holder           flexString `json:"holder"`
	Number           flexString `json:"number"`
	NumberAdditional flexString `json:"numberAdditional"`
	QRcode           flexString `json:"qRcode"`
	QRCode           flexString `json:"qrCode"`
}

type brusnikaNotification struct {
	MerchantOrderID     flexString `json:"merchantOrderId"`
	OrderID             flexString `json:"orderId"`
	Status              flexString `json:"status"`
	IDPlatform          flexString `json:"idPlatform"`
	PlatformOperationID flexString `json:"platformOperationId"`
	Amount              flexString `json:"amount"`
}

// classify extracts requisites from an operation. A paymentDetailsData that is
// not an object leaves only the deeplink to work with.
func (op *brusnikaOperation) classify() (domain.Requisites, domain.ResponseData) {
	link := string(op.Deeplink)
	var details brusnikaPaymentDetails
	if !isJSONObject(op.PaymentDetailsData) || json.Unmarshal(op.PaymentDetailsData, &details) != nil {
		if link == "" {
			return domain.Requisites{}, domain.ResponseData{}
		}
		return domain.Requisites{Kind: domain.RequisitesLink, LinkURL: link},
			domain.ResponseData{"link": link}
	}
	return domain.Classify(domain.InstrumentFields{
		Method:    string(details.PaymentMethod),
		Holder:    firstOf(details.NameMediator, details.Holder),
		BankName:  string(details.BankName),
		Number:    string(details.Number),
		AltNumber: string(details.NumberAdditional),
		QR:        firstOf(details.QRcode, details.QRCode),
		Link:      link,
	})
}

func (b *Brusnika) headers(override string) map[string]string {
	return map[string]string{"Authorization": "Bearer " + credential(override, b.cfg.APIKey)}
}

// --- Operations ---

// Pay creates a host-to-host payin.
func (b *Brusnika) Pay(ctx context.Context, req *PayRequest) (*domain.PayResponse, error) {
	body := brusnikaPayinRequest{
		ClientID:              orDefault(req.Customer.ClientID, "rp-client"),
		ClientIP:              orDefault(req.Customer.IP, "127.0.0.1"),
		PaymentMethod:         orDefault(req.PaymentMethod, "SBP"),
		IDTransactionMerchant: req.OrderNumber,
		Amount:                req.Amount,
		IntegrationData:       brusnikaIntegrationData{WebHook: orDefault(b.cfg.WebhookURL, req.CallbackURL)},
	}
	masked := body
	masked.IntegrationData.WebHook = "***"

	target := b.client.url(brusnikaPayinPath)
	resp, err := b.client.do(ctx, call{
		operation: "pay",
		method:    http.MethodPost,
		path:      brusnikaPayinPath,
		headers:   b.headers(req.AuthorizationToken),
		body:      body,
	})
	if err != nil {
		return domain.DeclinedPayResponse(transportLog(brusnikaGateway, target, masked, "pay", err)), nil
	}
	entry := responseLog(brusnikaGateway, target, masked, "pay", resp)

	var env brusnikaEnvelope
	if resp.unmarshal(&env) != nil || (!resp.ok() && env.Data == nil) {
		b.client.logger.Warn("payin rejected",
			zap.String("order_number", req.OrderNumber),
			zap.Int("status", resp.StatusCode),
		)
		return domain.DeclinedPayResponse(entry), nil
	}
	op := env.Data
	if op == nil {
		op = &brusnikaOperation{}
	}

	operationID := firstOf(op.ID, op.IDPlatform)
	rawStatus := firstOf(op.Status, env.resultStatus(), "pending")

	if err := b.store.Upsert(ctx, &domain.Correlation{
		PlatformToken:       req.PlatformToken,
		OrderNumber:         domain.Optional(req.OrderNumber),
		Provider:            BrusnikaName,
		ProviderOperationID: domain.Optional(operationID),
		CallbackURL:         req.CallbackURL,
		Status:              domain.Optional(rawStatus),
		Amount:              &req.Amount,
		Currency:            domain.Optional(req.Currency),
	}); err != nil {
		return nil, fmt.Errorf("store correlation: %w", err)
	}

	out := domain.NewPayResponse(b.NormalizeStatus(rawStatus))
	out.GatewayToken = domain.Optional(operationID)
	out.Requisites, out.ProviderResponseData = op.classify()
	if link := string(op.Deeplink); link != "" {
		out.RedirectRequest = domain.RedirectTo(link)
	}
	out.Logs = append(out.Logs, entry)
	return out, nil
}

// Status polls the operation by its Brusnika platform id.
func (b *Brusnika) Status(ctx context.Context, req *StatusRequest) *domain.StatusResponse {
	opID := req.Record.OperationID()
	if opID == "" {
		return domain.PendingStatus("no platform id in mapping")
	}

	path := brusnikaStatusPath + url.PathEscape(opID)
	target := b.client.url(path)
	resp, err := b.client.do(ctx, call{
		operation: "status",
		method:    http.MethodGet,
		path:      path,
		headers:   b.headers(req.AuthorizationToken),
	})
	if err != nil {
		return domain.PendingStatus("Gateway unreachable: "+err.Error(),
			transportLog(brusnikaGateway, target, nil, "status", err))
	}
	entry := responseLog(brusnikaGateway, target, nil, "status", resp)

	var env brusnikaEnvelope
	_ = resp.unmarshal(&env)
	op := env.Data
	if op == nil {
		op = &brusnikaOperation{}
	}

	status := b.NormalizeStatus(firstOf(op.Status, env.resultStatus()))
	requisites, bag := op.classify()

	out := &domain.StatusResponse{
		Result:               domain.ResultOK,
		Status:               status,
		Details:              "Transaction status: " + string(status),
		Amount:               numberOrNil(firstOf(op.Amount, op.AmountInitial)),
		Logs:                 []domain.LogEntry{entry},
		ProviderResponseData: bag,
		Requisites:           &requisites,
	}
	if currency := string(op.Currency); currency != "" && !strings.EqualFold(currency, "NOTSET") {
		out.Currency = &currency
	}
	return out
}

// ParseNotification parses a Brusnika webhook. Brusnika does not sign its
// notifications; the order reference is required.
func (b *Brusnika) ParseNotification(body []byte, _ http.Header) (*Notification, error) {
	var n brusnikaNotification
	if err := json.Unmarshal(body, &n); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedNotification, err)
	}
	order := firstOf(n.MerchantOrderID, n.OrderID)
	if order == "" {
		return nil, fmt.Errorf("%w: merchantOrderId or orderId is required", ErrMalformedNotification)
	}
	return &Notification{
		OperationID: firstOf(n.IDPlatform, n.PlatformOperationID),
		OrderNumber: order,
		RawStatus:   string(n.Status),
		Amount:      string(n.Amount),
	}, nil
}

func orDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}
	return value
}
