package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strings"

	"github.com/gagliardetto/solana-go"
	"github.com/go-chi/chi/v5"

	"github.com/xtrntr/auctionhouse/internal/auth"
	"github.com/xtrntr/auctionhouse/internal/errcode"
	"github.com/xtrntr/auctionhouse/internal/house"
	"github.com/xtrntr/auctionhouse/internal/instruction"
	"github.com/xtrntr/auctionhouse/internal/ledger"
	"github.com/xtrntr/auctionhouse/internal/settlement"
)

type contextKey string

const claimsKey contextKey = "claims"

// ReceiptSink receives every committed settlement.
type ReceiptSink interface {
	PublishReceipt(r *ReceiptView)
}

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Store       ledger.Store
	Engine      *settlement.Engine
	AuthService *auth.AuthService
	Receipts    ReceiptSink
}

// NewHandler creates a new handler
func NewHandler(store ledger.Store, engine *settlement.Engine, authService *auth.AuthService, receipts ReceiptSink) *Handler {
	return &Handler{Store: store, Engine: engine, AuthService: authService, Receipts: receipts}
}

// Routes returns the API router.
func (h *Handler) Routes() chi.Router {
	r := chi.NewRouter()

	// Public endpoints
	r.Post("/auth/register", h.Register)
	r.Post("/auth/login", h.Login)

	// Protected endpoints (require JWT)
	r.Group(func(r chi.Router) {
		r.Use(h.JWTAuthMiddleware)
		r.Get("/houses/{house}", h.GetHouse)
		r.Post("/houses/{house}/deposit", h.Deposit)
		r.Post("/houses/{house}/withdraw", h.Withdraw)
		r.Post("/houses/{house}/sell", h.Sell)
		r.Post("/houses/{house}/buy", h.Buy)
		r.Post("/houses/{house}/public_buy", h.PublicBuy)
		r.Post("/houses/{house}/cancel", h.Cancel)
		r.Post("/houses/{house}/execute_sale", h.ExecuteSale)
		r.Post("/houses/{house}/execute_partial_sale", h.ExecutePartialSale)
	})
	return r
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		log.Debugf("Failed to write response: %v", err)
	}
}

type errorResponse struct {
	Error string  `json:"error"`
	Code  *uint32 `json:"code,omitempty"`
}

// writeError renders err. Program errors carry their stable code and are
// the caller's fault; anything else is reported as an internal failure.
func writeError(w http.ResponseWriter, err error) {
	if code, ok := errcode.Code(err); ok {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error(), Code: &code})
		return
	}
	var bad *badRequest
	if errors.As(err, &bad) || errors.Is(err, instruction.ErrUnknownInstruction) ||
		errors.Is(err, instruction.ErrMalformedInstruction) {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: err.Error()})
		return
	}
	log.Errorf("Request failed: %v", err)
	writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
}

// badRequest marks malformed input.
type badRequest struct {
	msg string
}

func (e *badRequest) Error() string { return e.msg }

func errBadRequest(msg string) error { return &badRequest{msg: msg} }

// Register handles user registration
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
		Wallet   string `json:"wallet"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	if req.Username == "" || req.Password == "" || req.Wallet == "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Username, password and wallet required"})
		return
	}

	user, err := h.AuthService.Register(r.Context(), req.Username, req.Password, req.Wallet)
	if err != nil {
		log.Debugf("Registration of %q failed: %v", req.Username, err)
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Failed to register user"})
		return
	}

	writeJSON(w, http.StatusCreated, map[string]interface{}{
		"id":       user.ID,
		"username": user.Username,
		"wallet":   user.Wallet.String(),
	})
}

// Login handles user login
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Username string `json:"username"`
		Password string `json:"password"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "Invalid request body"})
		return
	}

	token, err := h.AuthService.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid credentials"})
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

// JWTAuthMiddleware verifies JWT tokens
func (h *Handler) JWTAuthMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokenString := r.Header.Get("Authorization")
		if tokenString == "" {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Authorization header required"})
			return
		}
		tokenString = strings.TrimPrefix(tokenString, "Bearer ")

		claims, err := h.AuthService.GetUserFromToken(tokenString)
		if err != nil {
			writeJSON(w, http.StatusUnauthorized, errorResponse{Error: "Invalid or expired token"})
			return
		}

		ctx := context.WithValue(r.Context(), claimsKey, claims)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func claimsFrom(ctx context.Context) (*auth.Claims, bool) {
	c, ok := ctx.Value(claimsKey).(*auth.Claims)
	return c, ok
}

// signers returns the caller's wallet followed by the wallets of any
// co-signing session tokens. A token that does not verify rejects the
// whole request.
func (h *Handler) signers(caller *auth.Claims, cosigners []string) (house.Signers, error) {
	signers := house.Signers{caller.Wallet}
	for _, tok := range cosigners {
		c, err := h.AuthService.GetUserFromToken(tok)
		if err != nil {
			return nil, errBadRequest("invalid co-signer token")
		}
		if !signers.Has(c.Wallet) {
			signers = append(signers, c.Wallet)
		}
	}
	return signers, nil
}

func houseParam(r *http.Request) (solana.PublicKey, error) {
	addr, err := solana.PublicKeyFromBase58(chi.URLParam(r, "house"))
	if err != nil {
		return solana.PublicKey{}, errBadRequest("invalid auction house address")
	}
	return addr, nil
}
