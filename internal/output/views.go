package output

import (
	"fmt"
	"time"
)

// BalanceRow is one account balance line.
type BalanceRow struct {
	Account     string    `json:"account"`
	Address     string    `json:"address"`
	Amount      string    `json:"amount"`
	AmountUnits uint64    `json:"amount_units"`
	Symbol      string    `json:"symbol"`
	Cached      bool      `json:"cached"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// Balances renders account balances.
func (f *Formatter) Balances(rows []BalanceRow) error {
	if f.IsJSON() {
		return writeJSON(f.out, struct {
			Balances []BalanceRow `json:"balances"`
		}{Balances: rows})
	}

	if len(rows) == 0 {
		return f.Println("No accounts tracked.")
	}

	t := NewTable(Col("ACCOUNT"), Col("ADDRESS").Truncate(24), Col("BALANCE").AlignRight(), Col(""))
	for _, r := range rows {
		note := ""
		if r.Cached {
			note = "(cached)"
		}
		t.AddRow(r.Account, r.Address, r.Amount+" "+r.Symbol, note)
	}
	return t.Render(f.out)
}

// BalanceEvent renders a single streamed balance update.
func (f *Formatter) BalanceEvent(r BalanceRow) error {
	if f.IsJSON() {
		data, err := json.Marshal(r)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(f.out, string(data))
		return err
	}
	suffix := ""
	if r.Cached {
		suffix = " (cached)"
	}
	return f.Printf("%s  %-12s %s %s%s\n", r.UpdatedAt.Format("15:04:05"), r.Account, r.Amount, r.Symbol, suffix)
}

// HistoryRow is one transaction line.
type HistoryRow struct {
	TxID        string    `json:"tx_id"`
	Time        time.Time `json:"time"`
	Direction   string    `json:"direction"`
	Amount      string    `json:"amount"`
	AmountUnits uint64    `json:"amount_units"`
	Fee         string    `json:"fee"`
	FeeUnits    uint64    `json:"fee_units"`
	Receivers   []string  `json:"receivers"`
	Privacy     bool      `json:"privacy"`
	Status      string    `json:"status"`
}

// History renders an account's transaction history, newest first.
func (f *Formatter) History(account string, rows []HistoryRow) error {
	if f.IsJSON() {
		return writeJSON(f.out, struct {
			Account      string       `json:"account"`
			Transactions []HistoryRow `json:"transactions"`
		}{Account: account, Transactions: rows})
	}

	if len(rows) == 0 {
		return f.Printf("No transactions for %s.\n", account)
	}

	t := NewTable(
		Col("TIME"), Col("TXID").Truncate(16), Col("DIR"),
		Col("AMOUNT").AlignRight(), Col("FEE").AlignRight(), Col("STATUS"), Col("TO"),
	)
	for _, r := range rows {
		to := ""
		if len(r.Receivers) > 0 {
			to = truncateMiddle(r.Receivers[0], 20)
			if len(r.Receivers) > 1 {
				to += fmt.Sprintf(" (+%d)", len(r.Receivers)-1)
			}
		}
		t.AddRow(r.Time.Format("2006-01-02 15:04"), r.TxID, r.Direction, r.Amount, r.Fee, r.Status, to)
	}
	return t.Render(f.out)
}

// ConfirmationView summarizes a validated send awaiting confirmation.
type ConfirmationView struct {
	From      string    `json:"from"`
	To        string    `json:"to"`
	Amount    string    `json:"amount"`
	Fee       string    `json:"fee"`
	Symbol    string    `json:"symbol"`
	Balance   string    `json:"balance"`
	Privacy   bool      `json:"privacy"`
	Token     string    `json:"confirmation_token"`
	ExpiresAt time.Time `json:"expires_at"`
	Warnings  []string  `json:"warnings,omitempty"`
}

// Confirmation renders a send summary. Warnings go to the error writer in
// text mode.
func (f *Formatter) Confirmation(v ConfirmationView) error {
	if f.IsJSON() {
		return writeJSON(f.out, v)
	}

	t := KeyValue()
	t.AddRow("From:", v.From)
	t.AddRow("To:", v.To)
	t.AddRow("Amount:", v.Amount+" "+v.Symbol)
	t.AddRow("Fee:", v.Fee+" "+v.Symbol)
	t.AddRow("Balance:", v.Balance+" "+v.Symbol)
	if v.Privacy {
		t.AddRow("Privacy:", "yes")
	}
	if err := t.Render(f.out); err != nil {
		return err
	}
	for _, w := range v.Warnings {
		f.Warn("%s", w)
	}
	return nil
}

// SendResultView describes a submitted transaction.
type SendResultView struct {
	TxID   string `json:"tx_id"`
	From   string `json:"from"`
	To     string `json:"to"`
	Amount string `json:"amount"`
	Fee    string `json:"fee"`
	Status string `json:"status"`
}

// SendResult renders a submitted transaction.
func (f *Formatter) SendResult(v SendResultView) error {
	if f.IsJSON() {
		return writeJSON(f.out, v)
	}
	f.Success("sent %s from %s to %s (fee %s)", v.Amount, v.From, v.To, v.Fee)
	return f.Printf("Transaction: %s (%s)\n", v.TxID, v.Status)
}

// TokenRow is one token holding.
type TokenRow struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Symbol      string `json:"symbol"`
	AmountUnits uint64 `json:"amount_units"`
	Privacy     bool   `json:"privacy"`
}

// Tokens renders an account's token balances.
func (f *Formatter) Tokens(account string, rows []TokenRow) error {
	if f.IsJSON() {
		return writeJSON(f.out, struct {
			Account string     `json:"account"`
			Tokens  []TokenRow `json:"tokens"`
		}{Account: account, Tokens: rows})
	}

	if len(rows) == 0 {
		return f.Printf("No tokens for %s.\n", account)
	}

	t := NewTable(Col("KIND"), Col("SYMBOL"), Col("NAME"), Col("BALANCE").AlignRight(), Col("ID").Truncate(16))
	for _, r := range rows {
		kind := "custom"
		if r.Privacy {
			kind = "privacy"
		}
		t.AddRow(kind, r.Symbol, r.Name, fmt.Sprintf("%d", r.AmountUnits), r.ID)
	}
	return t.Render(f.out)
}
