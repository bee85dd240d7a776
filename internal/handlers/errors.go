package handlers

import (
	"context"
	"errors"
	"net/http"

	"stocksim/internal/database"
	"stocksim/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// statusClientClosedRequest is nginx's status for a request the client
// abandoned before a response was written.
const statusClientClosedRequest = 499

type errorKind struct {
	err    error
	status int
	code   string
	// message replaces err.Error() in the response when set.
	message string
}

var errorKinds = []errorKind{
	{service.ErrInvalidSymbol, http.StatusBadRequest, "invalid_symbol", "Invalid stock symbol"},
	{service.ErrInvalidQuantity, http.StatusBadRequest, "invalid_quantity", "Invalid quantity"},
	{service.ErrUserNotFound, http.StatusNotFound, "user_not_found", "User does not exist"},
	{service.ErrQuoteUnavailable, http.StatusNotFound, "quote_unavailable", "Stock information not found"},
	{service.ErrInsufficientFunds, http.StatusBadRequest, "insufficient_funds", ""},
	{service.ErrNoSuchHolding, http.StatusNotFound, "no_such_holding", ""},
	{service.ErrInsufficientHoldings, http.StatusBadRequest, "insufficient_holdings", ""},
	{service.ErrProviderFailure, http.StatusInternalServerError, "provider_failure", "Failed to fetch stock data"},
	{service.ErrTradeConflict, http.StatusConflict, "trade_conflict", "Trade conflicted with a concurrent update, please retry"},
	{context.Canceled, statusClientClosedRequest, "request_canceled", "Request canceled"},
}

// storeErr lifts repository lookups into the service error taxonomy.
func storeErr(err error) error {
	if errors.Is(err, database.ErrUserNotFound) {
		return service.ErrUserNotFound
	}
	return err
}

// writeError renders err as {"error", "code", ...payload}. Unclassified errors
// are logged and reported as a generic internal error.
func (h *Handler) writeError(c *gin.Context, err error) {
	kind := errorKind{status: http.StatusInternalServerError, code: "internal", message: "internal error"}
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			kind = k
			break
		}
	}
	msg := kind.message
	if msg == "" {
		msg = err.Error()
	}
	body := gin.H{"error": msg, "code": kind.code}

	var funds *service.InsufficientFundsError
	if errors.As(err, &funds) {
		body["required"] = amount(funds.Required)
		body["available"] = amount(funds.Available)
		body["shortfall"] = amount(funds.Shortfall())
	}
	var held *service.InsufficientHoldingsError
	if errors.As(err, &held) {
		body["symbol"] = held.Symbol
		body["held"] = held.Held
		body["requested"] = held.Requested
	}

	switch {
	case kind.status == statusClientClosedRequest:
		h.log.WithField("path", c.FullPath()).Debug("client canceled request")
	case kind.status >= http.StatusInternalServerError:
		h.log.WithFields(logrus.Fields{
			"path":  c.FullPath(),
			"code":  kind.code,
			"error": err.Error(),
		}).Error("request failed")
	}
	c.JSON(kind.status, body)
}
