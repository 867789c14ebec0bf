package http

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/securepay/wallet-ledger/internal/auth"
	"github.com/securepay/wallet-ledger/internal/repo"
	"github.com/securepay/wallet-ledger/internal/service"
	"github.com/shopspring/decimal"
)

func RegisterHandlers(r *gin.Engine, svc *service.LedgerService, rec *service.Reconciler) {
	v1 := r.Group("/v1")

	// signature-authed, no principal: the gateway is the caller
	v1.POST("/webhook/paystack", webhookHandler(rec))

	authed := v1.Group("", PrincipalMiddleware())
	{
		authed.POST("/wallets", onboardHandler(svc))

		w := authed.Group("/wallet")
		{
			w.GET("", Require(auth.CapabilityRead), walletHandler(svc))
			w.GET("/balance", Require(auth.CapabilityRead), balanceHandler(svc))
			w.POST("/deposit", Require(auth.CapabilityDeposit), depositHandler(svc))
			w.GET("/deposit/:reference/status", Require(auth.CapabilityRead), depositStatusHandler(svc))
			w.POST("/transfer", Require(auth.CapabilityTransfer), transferHandler(svc))
			w.GET("/transactions", Require(auth.CapabilityRead), transactionsHandler(svc))
			w.GET("/transactions/pending", Require(auth.CapabilityRead), pendingHandler(svc))
			w.GET("/transactions/completed", Require(auth.CapabilityRead), completedHandler(svc))
			w.GET("/transactions/summary", Require(auth.CapabilityRead), summaryHandler(svc))
			w.DELETE("/transactions/:reference", Require(auth.CapabilityRead), cancelHandler(svc))
		}
	}
}

// statusFor maps the service taxonomy onto HTTP codes.
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrWalletNotFound),
		errors.Is(err, service.ErrUnknownReference):
		return http.StatusNotFound
	case errors.Is(err, service.ErrInvalidAmount),
		errors.Is(err, service.ErrSelfTransfer),
		errors.Is(err, service.ErrNotPending),
		errors.Is(err, service.ErrInvalidFilter),
		errors.Is(err, service.ErrAmountMismatch),
		errors.Is(err, repo.ErrInsufficientFunds):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusUnauthorized
	default:
		return http.StatusInternalServerError
	}
}

func abortErr(c *gin.Context, err error) {
	c.JSON(statusFor(err), gin.H{"error": err.Error()})
}

func onboardHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		p := principalFrom(c)
		w, err := svc.OnboardWallet(c, p.UserID)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusCreated, w)
	}
}

func walletHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		w, err := svc.WalletInfo(c, principalFrom(c).UserID)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, w)
	}
}

func balanceHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		number, bal, err := svc.Balance(c, principalFrom(c).UserID)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"wallet_number": number, "balance": bal})
	}
}

type depositReq struct {
	Amount string `json:"amount" binding:"required"`
}

func depositHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req depositReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		p := principalFrom(c)
		intent, err := svc.InitiateDeposit(c, p.UserID, amt, p.Email)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, intent)
	}
}

func depositStatusHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		st, err := svc.DepositStatus(c, c.Param("reference"))
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, st)
	}
}

type transferReq struct {
	RecipientWalletNumber string `json:"recipient_wallet_number" binding:"required"`
	Amount                string `json:"amount" binding:"required"`
	Description           string `json:"description"`
}

func transferHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		var req transferReq
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		amt, err := decimal.NewFromString(req.Amount)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "invalid amount"})
			return
		}
		res, err := svc.Transfer(c, principalFrom(c).UserID, req.RecipientWalletNumber, amt, req.Description)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}

func transactionsHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit, _ := strconv.Atoi(c.DefaultQuery("limit", "50"))
		offset, _ := strconv.Atoi(c.DefaultQuery("offset", "0"))
		txs, err := svc.Transactions(c, principalFrom(c).UserID, service.TransactionQuery{
			Status: c.Query("status"),
			Kind:   c.Query("kind"),
			Limit:  limit,
			Offset: offset,
		})
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

func pendingHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := svc.PendingTransactions(c, principalFrom(c).UserID)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

func completedHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		txs, err := svc.CompletedTransactions(c, principalFrom(c).UserID)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"transactions": txs})
	}
}

func summaryHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		sum, err := svc.Summary(c, principalFrom(c).UserID)
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, sum)
	}
}

func cancelHandler(svc *service.LedgerService) gin.HandlerFunc {
	return func(c *gin.Context) {
		t, err := svc.CancelPending(c, principalFrom(c).UserID, c.Param("reference"))
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, gin.H{"message": "transaction cancelled", "transaction": t})
	}
}
