package api

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/mrz1836/coinsync/internal/node"
	"github.com/mrz1836/coinsync/internal/state"
)

// BalanceReader reads published balances. Satisfied by *state.State.
type BalanceReader interface {
	Balance(account string) (state.BalanceUpdate, bool)
	Balances() []state.BalanceUpdate
}

// Refresher schedules balance refreshes. Satisfied by *balance.Controller.
type Refresher interface {
	RequestRefresh(name string) bool
	RefreshAll()
	Tracked() []string
}

// HistoryReader lists stored transactions. Satisfied by *history.Store.
type HistoryReader interface {
	ListByAccount(account string) []node.TransactionRecord
}

// Units formats integer amounts for responses.
type Units struct {
	Decimals int
	Symbol   string
}

// BalanceResponse is one account balance.
type BalanceResponse struct {
	Account     string    `json:"account"`
	Amount      string    `json:"amount"`
	AmountUnits uint64    `json:"amount_units"`
	Symbol      string    `json:"symbol"`
	Cached      bool      `json:"cached"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// ErrorResponse is the body of a failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// Handler serves balance and history reads over HTTP.
type Handler struct {
	balances  BalanceReader
	refresher Refresher
	history   HistoryReader
	units     Units
}

// NewHandler creates a handler. history may be nil, in which case the
// history route answers 404 for every account.
func NewHandler(balances BalanceReader, refresher Refresher, history HistoryReader, units Units) *Handler {
	return &Handler{balances: balances, refresher: refresher, history: history, units: units}
}

// ListBalances returns every published balance.
func (h *Handler) ListBalances(c *gin.Context) {
	updates := h.balances.Balances()
	out := make([]BalanceResponse, 0, len(updates))
	for _, u := range updates {
		out = append(out, h.balance(u))
	}
	c.JSON(http.StatusOK, gin.H{"balances": out})
}

// GetBalance returns one account's balance.
func (h *Handler) GetBalance(c *gin.Context) {
	name := c.Param("account")
	u, ok := h.balances.Balance(name)
	if !ok {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no balance for " + name})
		return
	}
	c.JSON(http.StatusOK, h.balance(u))
}

// RefreshAll schedules a refresh of every tracked account.
func (h *Handler) RefreshAll(c *gin.Context) {
	h.refresher.RefreshAll()
	c.JSON(http.StatusAccepted, gin.H{"accounts": h.refresher.Tracked()})
}

// RefreshAccount schedules a refresh of one account.
func (h *Handler) RefreshAccount(c *gin.Context) {
	name := c.Param("account")
	if !h.refresher.RequestRefresh(name) {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "account not tracked: " + name})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"accounts": []string{name}})
}

// History returns an account's transactions, newest first.
func (h *Handler) History(c *gin.Context) {
	name := c.Param("account")
	var records []node.TransactionRecord
	if h.history != nil {
		records = h.history.ListByAccount(name)
	}
	if len(records) == 0 {
		c.JSON(http.StatusNotFound, ErrorResponse{Error: "no transactions for " + name})
		return
	}
	c.JSON(http.StatusOK, gin.H{"account": name, "transactions": records})
}

func (h *Handler) balance(u state.BalanceUpdate) BalanceResponse {
	return BalanceResponse{
		Account:     u.Account,
		Amount:      node.FormatUnits(u.AmountUnits, h.units.Decimals),
		AmountUnits: u.AmountUnits,
		Symbol:      h.units.Symbol,
		Cached:      u.Cached,
		UpdatedAt:   u.At,
	}
}
