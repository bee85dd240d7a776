package handlers

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"stocksim/internal/database"
	"stocksim/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

// UserSettings identifies the single user every endpoint acts on.
type UserSettings struct {
	ID              int64
	Username        string
	StartingBalance decimal.Decimal
}

type Handler struct {
	repo   *database.Repo
	engine *service.TradeEngine
	user   UserSettings
	log    *logrus.Logger
}

func NewHandler(r *database.Repo, e *service.TradeEngine, user UserSettings, log *logrus.Logger) *Handler {
	return &Handler{repo: r, engine: e, user: user, log: log}
}

// TradeRequest is the body of /buy and /sell. Fields stay raw so that a wrong
// JSON type maps to the matching validation error instead of a generic one.
type TradeRequest struct {
	Symbol   json.RawMessage `json:"symbol"`
	Quantity json.RawMessage `json:"quantity"`
}

func (r TradeRequest) parse() (string, decimal.Decimal, error) {
	var raw string
	if err := json.Unmarshal(r.Symbol, &raw); err != nil {
		return "", decimal.Zero, service.ErrInvalidSymbol
	}
	// The symbol is checked in full before the quantity is looked at.
	symbol, err := service.NormalizeSymbol(raw)
	if err != nil {
		return "", decimal.Zero, err
	}
	// Quantity must be a JSON number; quoted strings are rejected.
	qraw := bytes.TrimSpace(r.Quantity)
	if len(qraw) == 0 || qraw[0] == '"' {
		return "", decimal.Zero, service.ErrInvalidQuantity
	}
	qty, err := decimal.NewFromString(string(qraw))
	if err != nil {
		return "", decimal.Zero, service.ErrInvalidQuantity
	}
	return symbol, qty, nil
}

func (h *Handler) bindTrade(c *gin.Context) (string, decimal.Decimal, bool) {
	var req TradeRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		h.log.Warnf("invalid trade body: %v", err)
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid request body", "code": "invalid_request"})
		return "", decimal.Zero, false
	}
	symbol, qty, err := req.parse()
	if err != nil {
		h.writeError(c, err)
		return "", decimal.Zero, false
	}
	return symbol, qty, true
}

// GetStock returns the full quote for a ticker. A ticker that cannot be a
// symbol has no quote, so it is reported as not found.
func (h *Handler) GetStock(c *gin.Context) {
	q, err := h.engine.Quote(c.Request.Context(), c.Param("ticker"))
	if errors.Is(err, service.ErrInvalidSymbol) {
		err = fmt.Errorf("%w: %v", service.ErrQuoteUnavailable, err)
	}
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, q)
}

func (h *Handler) Buy(c *gin.Context) {
	symbol, qty, ok := h.bindTrade(c)
	if !ok {
		return
	}
	res, err := h.engine.Buy(c.Request.Context(), h.user.ID, symbol, qty)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":         fmt.Sprintf("Bought %d shares of %s for user %d", res.Quantity, res.Symbol, h.user.ID),
		"remaining_money": amount(res.RemainingBalance),
	})
}

func (h *Handler) Sell(c *gin.Context) {
	symbol, qty, ok := h.bindTrade(c)
	if !ok {
		return
	}
	res, err := h.engine.Sell(c.Request.Context(), h.user.ID, symbol, qty)
	if err != nil {
		h.writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"message":          fmt.Sprintf("Sold %d shares of %s for user %d", res.Quantity, res.Symbol, h.user.ID),
		"total_sale_value": amount(res.Proceeds),
		"remaining_money":  amount(res.RemainingBalance),
	})
}

// ListStocks returns the user's holdings. An empty portfolio is an empty list.
func (h *Handler) ListStocks(c *gin.Context) {
	items, err := h.repo.ListHoldings(c.Request.Context(), h.user.ID)
	if err != nil {
		h.writeError(c, storeErr(err))
		return
	}
	c.JSON(http.StatusOK, items)
}

func (h *Handler) GetMoney(c *gin.Context) {
	bal, err := h.repo.GetBalance(c.Request.Context(), h.user.ID)
	if err != nil {
		h.writeError(c, storeErr(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"money": amount(bal)})
}

func (h *Handler) InitUser(c *gin.Context) {
	created, err := h.repo.InitUser(c.Request.Context(), h.user.ID, h.user.Username, h.user.StartingBalance)
	if err != nil {
		h.writeError(c, err)
		return
	}
	if !created {
		c.String(http.StatusOK, "User with ID %d already exists, no new user created.", h.user.ID)
		return
	}
	h.log.WithFields(logrus.Fields{"user_id": h.user.ID, "balance": h.user.StartingBalance.String()}).Info("user initialized")
	c.String(http.StatusOK, "New user initialized")
}

func (h *Handler) DeleteAllUsers(c *gin.Context) {
	removed, err := h.repo.ResetAllUsers(c.Request.Context())
	if err != nil {
		h.writeError(c, err)
		return
	}
	h.log.WithField("removed", removed).Info("all users deleted")
	c.Status(http.StatusNoContent)
}

func (h *Handler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// amount renders money with two decimals unless that would drop precision.
func amount(d decimal.Decimal) string {
	if d.Equal(d.Round(2)) {
		return d.StringFixed(2)
	}
	return d.String()
}
