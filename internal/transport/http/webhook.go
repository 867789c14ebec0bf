package http

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/securepay/wallet-ledger/internal/service"
)

const signatureHeader = "X-Paystack-Signature"

// webhookHandler accepts gateway notifications. 200-class answers tell the
// provider to stop retrying, and are returned for duplicates and ignored
// event types too; only rejections (bad signature, unknown reference,
// mismatched amount) get 4xx.
func webhookHandler(rec *service.Reconciler) gin.HandlerFunc {
	return func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "unreadable body"})
			return
		}
		res, err := rec.Process(c, body, c.GetHeader(signatureHeader))
		if err != nil {
			abortErr(c, err)
			return
		}
		c.JSON(http.StatusOK, res)
	}
}
