// Package testutil provides fakes and fixtures shared by the checkout tests.
package testutil

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/mux"

	"github.com/Veraticus/storefront-checkout/internal/model"
	"github.com/Veraticus/storefront-checkout/internal/service"
)

// TestPublicKey is the tokenizer key the fake backend accepts.
const TestPublicKey = "pub_test_checkout"

type streamMsg struct {
	payload string
	close   bool
}

type fakeTx struct {
	stream  chan streamMsg
	init    service.InitRequest
	process *service.ProcessRequest
	created time.Time
	status  model.Status
	gets    int
	opens   int
}

// FakeBackend is an in-process transaction backend and card tokenizer.
// Event streams are scripted with Push and CloseStream.
type FakeBackend struct {
	t       *testing.T
	server  *httptest.Server
	txs     map[string]*fakeTx
	headers map[string][]http.Header

	processStatus model.Status
	products      []model.Product
	acceptance    service.AcceptanceToken

	tokens map[string]TokenizeRequest

	statusFailures int
	statusFailCode int
	processFail    int
	tokenizeFail   int
	nextID         int
	mu             sync.Mutex
}

// TokenizeRequest is the body the tokenizer received.
type TokenizeRequest struct {
	Number     string `json:"number"`
	ExpMonth   string `json:"exp_month"`
	ExpYear    string `json:"exp_year"`
	CVC        string `json:"cvc"`
	CardHolder string `json:"card_holder"`
}

// NewFakeBackend starts a fake backend that is closed with the test.
func NewFakeBackend(t *testing.T) *FakeBackend {
	t.Helper()

	f := &FakeBackend{
		t:             t,
		txs:           make(map[string]*fakeTx),
		headers:       make(map[string][]http.Header),
		tokens:        make(map[string]TokenizeRequest),
		processStatus: model.StatusPending,
		products: []model.Product{
			{ID: "prod-1", Name: "Coffee grinder", Description: "Burr grinder", Price: 150000, Stock: 5},
		},
		acceptance: service.AcceptanceToken{
			Token:     "accept-123",
			Permalink: "https://example.test/terms.pdf",
			Type:      "END_USER_POLICY",
		},
	}

	r := mux.NewRouter()
	r.HandleFunc("/products", f.listProducts).Methods(http.MethodGet)
	r.HandleFunc("/products/{id}", f.getProduct).Methods(http.MethodGet)
	r.HandleFunc("/payments/acceptance-data", f.acceptanceData).Methods(http.MethodGet)
	r.HandleFunc("/transactions/init", f.initTransaction).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}", f.getTransaction).Methods(http.MethodGet)
	r.HandleFunc("/transactions/{id}/process", f.processPayment).Methods(http.MethodPost)
	r.HandleFunc("/transactions/{id}/events", f.events).Methods(http.MethodGet)
	r.HandleFunc("/v1/tokens/cards", f.tokenize).Methods(http.MethodPost)

	f.server = httptest.NewServer(r)
	t.Cleanup(f.Close)
	return f
}

// URL is the base URL for both the backend and the tokenizer.
func (f *FakeBackend) URL() string {
	return f.server.URL
}

// Close ends every open stream and stops the server.
func (f *FakeBackend) Close() {
	f.mu.Lock()
	for _, tx := range f.txs {
		select {
		case tx.stream <- streamMsg{close: true}:
		default:
		}
	}
	f.mu.Unlock()
	f.server.CloseClientConnections()
	f.server.Close()
}

// SetProcessStatus sets what POST /transactions/{id}/process reports.
func (f *FakeBackend) SetProcessStatus(status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processStatus = status
}

// AddTransaction registers a transaction with the given status.
func (f *FakeBackend) AddTransaction(id string, status model.Status) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.txLocked(id).status = status
}

// SetStatus changes what GET /transactions/{id} reports.
func (f *FakeBackend) SetStatus(id string, status model.Status) {
	f.AddTransaction(id, status)
}

// Push queues one SSE message for the transaction's stream.
func (f *FakeBackend) Push(id, payload string) {
	f.mu.Lock()
	stream := f.txLocked(id).stream
	f.mu.Unlock()
	stream <- streamMsg{payload: payload}
}

// CloseStream ends the transaction's current stream from the server side.
func (f *FakeBackend) CloseStream(id string) {
	f.mu.Lock()
	stream := f.txLocked(id).stream
	f.mu.Unlock()
	stream <- streamMsg{close: true}
}

// FailStatus makes the next n status reads answer with code.
func (f *FakeBackend) FailStatus(n, code int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.statusFailures = n
	f.statusFailCode = code
}

// FailProcess makes the next n process calls answer 500.
func (f *FakeBackend) FailProcess(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.processFail = n
}

// FailTokenize makes the next n tokenize calls answer 422.
func (f *FakeBackend) FailTokenize(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tokenizeFail = n
}

// StatusReads counts GET /transactions/{id} calls.
func (f *FakeBackend) StatusReads(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txLocked(id).gets
}

// StreamOpens counts event stream connections for the transaction.
func (f *FakeBackend) StreamOpens(id string) int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txLocked(id).opens
}

// InitRequest returns what the transaction was created with.
func (f *FakeBackend) InitRequest(id string) service.InitRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txLocked(id).init
}

// ProcessRequest returns the process call for the transaction, if any.
func (f *FakeBackend) ProcessRequest(id string) *service.ProcessRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.txLocked(id).process
}

// Headers returns the request headers seen for a route key like "POST /transactions/init".
func (f *FakeBackend) Headers(route string) []http.Header {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]http.Header(nil), f.headers[route]...)
}

// Tokenized returns the card data behind an issued token.
func (f *FakeBackend) Tokenized(token string) (TokenizeRequest, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	req, ok := f.tokens[token]
	return req, ok
}

// TokenCount is the number of tokens issued.
func (f *FakeBackend) TokenCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tokens)
}

func (f *FakeBackend) txLocked(id string) *fakeTx {
	tx, ok := f.txs[id]
	if !ok {
		tx = &fakeTx{stream: make(chan streamMsg, 32)}
		f.txs[id] = tx
	}
	return tx
}

// detailLocked renders a transaction the way GET /transactions/{id} does.
// Transactions added with AddTransaction carry only id and status.
func (f *FakeBackend) detailLocked(id string, tx *fakeTx) map[string]any {
	data := map[string]any{"id": id, "status": tx.status}
	if tx.init.ProductID == "" {
		return data
	}
	data["reference"] = "ref-" + id
	data["productId"] = tx.init.ProductID
	data["quantity"] = tx.init.Quantity
	data["amount"] = tx.init.Amount
	data["customer"] = map[string]any{
		"email":    tx.init.CustomerEmail,
		"fullName": tx.init.CustomerFullName,
		"phone":    tx.init.CustomerPhone,
	}
	data["delivery"] = map[string]any{"address": tx.init.Address, "city": tx.init.City}
	data["createdAt"] = tx.created.Format(time.RFC3339)
	data["updatedAt"] = tx.created.Format(time.RFC3339)
	for _, p := range f.products {
		if p.ID == tx.init.ProductID {
			data["product"] = p
		}
	}
	return data
}

func (f *FakeBackend) record(route string, r *http.Request) {
	f.headers[route] = append(f.headers[route], r.Header.Clone())
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (f *FakeBackend) listProducts(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	products := append([]model.Product(nil), f.products...)
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, products)
}

func (f *FakeBackend) getProduct(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, p := range f.products {
		if p.ID == id {
			writeJSON(w, http.StatusOK, map[string]any{"data": p})
			return
		}
	}
	http.Error(w, "product not found", http.StatusNotFound)
}

func (f *FakeBackend) acceptanceData(w http.ResponseWriter, _ *http.Request) {
	f.mu.Lock()
	token := f.acceptance
	f.mu.Unlock()
	writeJSON(w, http.StatusOK, map[string]any{"data": token})
}

func (f *FakeBackend) initTransaction(w http.ResponseWriter, r *http.Request) {
	var req service.InitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.record("POST /transactions/init", r)
	f.nextID++
	id := fmt.Sprintf("tx-%d", f.nextID)
	tx := f.txLocked(id)
	tx.status = model.StatusPending
	tx.init = req
	tx.created = time.Now().UTC().Truncate(time.Second)
	f.mu.Unlock()

	writeJSON(w, http.StatusCreated, map[string]any{
		"data": map[string]any{"id": id, "status": model.StatusPending},
	})
}

func (f *FakeBackend) getTransaction(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	f.mu.Lock()
	tx, ok := f.txs[id]
	if ok {
		tx.gets++
	}
	if f.statusFailures > 0 {
		f.statusFailures--
		code := f.statusFailCode
		f.mu.Unlock()
		http.Error(w, "status unavailable", code)
		return
	}
	var data map[string]any
	if ok && tx.status != "" {
		data = f.detailLocked(id, tx)
	}
	f.mu.Unlock()

	if data == nil {
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"data": data})
}

func (f *FakeBackend) processPayment(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]

	var req service.ProcessRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	f.record("POST /transactions/{id}/process", r)
	if f.processFail > 0 {
		f.processFail--
		f.mu.Unlock()
		http.Error(w, "processor unavailable", http.StatusInternalServerError)
		return
	}
	tx, ok := f.txs[id]
	if !ok {
		f.mu.Unlock()
		http.Error(w, "transaction not found", http.StatusNotFound)
		return
	}
	tx.process = &req
	tx.status = f.processStatus
	status := tx.status
	f.mu.Unlock()

	writeJSON(w, http.StatusOK, map[string]any{
		"data": map[string]any{"transaction": map[string]any{"id": id, "status": status}},
	})
}

func (f *FakeBackend) events(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming unsupported", http.StatusInternalServerError)
		return
	}

	f.mu.Lock()
	tx := f.txLocked(id)
	tx.opens++
	stream := tx.stream
	f.mu.Unlock()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.WriteHeader(http.StatusOK)
	_, _ = fmt.Fprint(w, ": connected\n\n")
	flusher.Flush()

	for {
		select {
		case <-r.Context().Done():
			return
		case msg := <-stream:
			if msg.close {
				return
			}
			for _, line := range strings.Split(msg.payload, "\n") {
				_, _ = fmt.Fprintf(w, "data: %s\n", line)
			}
			_, _ = fmt.Fprint(w, "\n")
			flusher.Flush()
		}
	}
}

func (f *FakeBackend) tokenize(w http.ResponseWriter, r *http.Request) {
	if r.Header.Get("Authorization") != "Bearer "+TestPublicKey {
		http.Error(w, `{"error":{"type":"INVALID_ACCESS_TOKEN"}}`, http.StatusUnauthorized)
		return
	}

	var req TokenizeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.tokenizeFail > 0 {
		f.tokenizeFail--
		writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
			"error": map[string]any{"type": "INPUT_VALIDATION_ERROR"},
		})
		return
	}

	token := fmt.Sprintf("tok_test_%d", len(f.tokens)+1)
	f.tokens[token] = req
	writeJSON(w, http.StatusCreated, map[string]any{
		"status": "CREATED",
		"data":   map[string]any{"id": token, "brand": "VISA", "last_four": lastFour(req.Number)},
	})
}

func lastFour(number string) string {
	if len(number) < 4 {
		return number
	}
	return number[len(number)-4:]
}
