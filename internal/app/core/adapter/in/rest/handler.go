package rest

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"

	"github.com/JoeShih716/go-bank-ledger/internal/app/core/domain"
	"github.com/JoeShih716/go-bank-ledger/internal/app/core/usecase"
)

// requestTimeout 單一請求的處理上限
const requestTimeout = 30 * time.Second

type clientIDKey struct{}

// Handler HTTP 入口
type Handler struct {
	ledger   *usecase.LedgerService
	accounts *usecase.AccountService
	auth     *usecase.AuthService
}

func NewHandler(ledger *usecase.LedgerService, accounts *usecase.AccountService, auth *usecase.AuthService) *Handler {
	return &Handler{
		ledger:   ledger,
		accounts: accounts,
		auth:     auth,
	}
}

// Routes 建立 chi router
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", h.health)

	r.Route("/auth", func(r chi.Router) {
		r.Post("/register", h.register)
		r.Post("/token", h.token)
	})

	r.Route("/clients", func(r chi.Router) {
		r.Post("/", h.createClient)
		r.Get("/", h.listClients)
		r.Get("/by-email/{email}", h.getClientByEmail)
		r.Get("/{id}", h.getClient)
		r.Patch("/{id}", h.renameClient)
		r.Delete("/{id}", h.deleteClient)
	})

	r.Group(func(r chi.Router) {
		r.Use(h.authenticate)

		r.Route("/accounts", func(r chi.Router) {
			r.Post("/", h.createAccount)
			r.Get("/", h.listAccounts)
			r.Get("/{id}", h.getAccount)
			r.Delete("/{id}", h.deleteAccount)
			r.Post("/{id}/deposit", h.deposit)
			r.Post("/{id}/withdraw", h.withdraw)
			r.Post("/{id}/transfer", h.transfer)
		})

		r.Post("/transactions/{account_id}", h.createTransaction)
		r.Get("/transactions/{account_id}", h.listTransactions)
	})

	r.Post("/deposit", h.legacyDeposit)
	r.Post("/withdraw", h.legacyWithdraw)

	return r
}

// authenticate 驗證 Authorization: Bearer <token>
func (h *Handler) authenticate(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok {
			writeDomainError(w, r, domain.ErrUnauthorized)
			return
		}
		clientID, err := h.auth.Authenticate(r.Context(), strings.TrimSpace(raw))
		if err != nil {
			writeDomainError(w, r, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(context.WithValue(r.Context(), clientIDKey{}, clientID)))
	})
}

func callerID(r *http.Request) uuid.UUID {
	id, _ := r.Context().Value(clientIDKey{}).(uuid.UUID)
	return id
}

func (h *Handler) health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

// ====== Auth ======

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	var req registerRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := h.auth.Register(r.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientResponse(client))
}

func (h *Handler) token(w http.ResponseWriter, r *http.Request) {
	var req tokenRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	tok, err := h.auth.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, tokenResponse{
		AccessToken: tok.Token,
		TokenType:   "bearer",
		ExpiresAt:   tok.ExpiresAt,
	})
}

// ====== Clients ======

func (h *Handler) createClient(w http.ResponseWriter, r *http.Request) {
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := h.accounts.CreateClient(r.Context(), req.Name, req.Email)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toClientResponse(client))
}

func (h *Handler) listClients(w http.ResponseWriter, r *http.Request) {
	clients, err := h.accounts.ListClients(r.Context())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponses(clients))
}

func (h *Handler) getClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, chi.URLParam(r, "id"), domain.ErrClientNotFound)
	if !ok {
		return
	}
	client, err := h.accounts.GetClient(r.Context(), id)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) getClientByEmail(w http.ResponseWriter, r *http.Request) {
	client, err := h.accounts.GetClientByEmail(r.Context(), chi.URLParam(r, "email"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) renameClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, chi.URLParam(r, "id"), domain.ErrClientNotFound)
	if !ok {
		return
	}
	var req clientRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	client, err := h.accounts.RenameClient(r.Context(), id, req.Name)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toClientResponse(client))
}

func (h *Handler) deleteClient(w http.ResponseWriter, r *http.Request) {
	id, ok := pathUUID(w, chi.URLParam(r, "id"), domain.ErrClientNotFound)
	if !ok {
		return
	}
	if err := h.accounts.DeleteClient(r.Context(), id); err != nil {
		writeDomainError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
