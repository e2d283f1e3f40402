package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"support-dashboard/internal/models"
	"support-dashboard/internal/repositories"
)

// HistoryHandler serves read-only snapshots of both logs.
type HistoryHandler struct {
	messages     repositories.MessageRepository
	transactions repositories.TransactionRepository
}

// NewHistoryHandler builds a HistoryHandler.
func NewHistoryHandler(messages repositories.MessageRepository, transactions repositories.TransactionRepository) *HistoryHandler {
	return &HistoryHandler{messages: messages, transactions: transactions}
}

// ListMessages returns the message log, deleted slots as null.
func (h *HistoryHandler) ListMessages(c *gin.Context) {
	messages, err := h.messages.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load messages"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"messages": messages})
}

// ListTransactions returns the ledger in insertion order, or newest first
// with ?order=newest.
func (h *HistoryHandler) ListTransactions(c *gin.Context) {
	order := c.DefaultQuery("order", "insertion")
	if order != "insertion" && order != "newest" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "order must be insertion or newest"})
		return
	}

	transactions, err := h.transactions.Snapshot(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load transactions"})
		return
	}
	if order == "newest" {
		models.SortNewestFirst(transactions)
	}
	c.JSON(http.StatusOK, gin.H{"transactions": transactions})
}
