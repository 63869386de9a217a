package portefeuille

import (
	"encoding/json"
	"fmt"
	"io"

	"github.com/shopspring/decimal"
)

// this file contains functions to handle the backup format.
// It should remain human readable, single file and be easy to diff between exports.

func init() {
	// Amounts read better as bare numbers in the backup file.
	decimal.MarshalJSONWithoutQuotes = true
}

// Version is the application version stamped into backups.
const Version = "1.3.0"

// Backup is a full snapshot of the store: every portfolio with its
// transactions, derived state and settings. It is the unit of export and
// restore; a restore replaces the store content with it wholesale.
type Backup struct {
	ExportDate      Date
	AppVersion      string
	Portfolios      []Portfolio
	Transactions    []Transaction
	Positions       []Position
	ClosedPositions []ClosedPosition
	Settings        []Setting
}

// Validate checks the backup for structural soundness. It returns an error
// wrapping [ErrInvalidBackup] when the backup holds no portfolio or a record
// references a portfolio the backup does not contain.
func (b *Backup) Validate() error {
	if len(b.Portfolios) == 0 {
		return fmt.Errorf("backup contains no portfolio: %w", ErrInvalidBackup)
	}
	known := make(map[string]bool, len(b.Portfolios))
	for _, p := range b.Portfolios {
		if err := p.Validate(); err != nil {
			return fmt.Errorf("backup portfolio %q: %w: %w", p.Name, err, ErrInvalidBackup)
		}
		known[p.ID] = true
	}
	for _, tx := range b.Transactions {
		if !known[tx.PortfolioID] {
			return fmt.Errorf("transaction %s references unknown portfolio %q: %w",
				tx.ID, tx.PortfolioID, ErrInvalidBackup)
		}
	}
	for _, pos := range b.Positions {
		if !known[pos.PortfolioID] {
			return fmt.Errorf("position %s references unknown portfolio %q: %w",
				pos.Code, pos.PortfolioID, ErrInvalidBackup)
		}
	}
	for _, c := range b.ClosedPositions {
		if !known[c.PortfolioID] {
			return fmt.Errorf("closed position %s references unknown portfolio %q: %w",
				c.Code, c.PortfolioID, ErrInvalidBackup)
		}
	}
	return nil
}

// the readable version of the format is summarized by a few types. Money
// fields are stored as bare numbers; the currency is implied by the owning
// portfolio and re-attached on decode.

type jportfolio struct {
	ID       string          `json:"id"`
	Name     string          `json:"name"`
	Code     string          `json:"code,omitempty"`
	Category string          `json:"category"`
	Currency string          `json:"currency"`
	Fees     FeeSchedule     `json:"fees"`
	Cash     decimal.Decimal `json:"cash"`
}

type jtransaction struct {
	ID          string          `json:"id"`
	PortfolioID string          `json:"portfolioId"`
	Date        Date            `json:"date"`
	Code        string          `json:"code,omitempty"`
	Name        string          `json:"name,omitempty"`
	Type        string          `json:"type"`
	Quantity    Quantity        `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
	Fees        decimal.Decimal `json:"fees"`
	TFF         decimal.Decimal `json:"tff"`
	Currency    string          `json:"currency,omitempty"`
	ConvRate    decimal.Decimal `json:"convRate"`
	Tax         decimal.Decimal `json:"tax"`
	Sector      string          `json:"sector,omitempty"`
}

type jposition struct {
	PortfolioID string          `json:"portfolioId"`
	Code        string          `json:"code"`
	Name        string          `json:"name,omitempty"`
	Quantity    Quantity        `json:"quantity"`
	TotalCost   decimal.Decimal `json:"totalCost"`
	PRU         decimal.Decimal `json:"pru"`
	Currency    string          `json:"currency,omitempty"`
	StopLoss    decimal.Decimal `json:"stopLoss"`
	ManualPrice decimal.Decimal `json:"manualPrice"`
	Sector      string          `json:"sector,omitempty"`
}

type jclosed struct {
	ID              string          `json:"id"`
	PortfolioID     string          `json:"portfolioId"`
	Code            string          `json:"code"`
	Name            string          `json:"name,omitempty"`
	PurchaseDate    Date            `json:"purchaseDate"`
	SaleDate        Date            `json:"saleDate"`
	Quantity        Quantity        `json:"quantity"`
	PRU             decimal.Decimal `json:"pru"`
	AvgSalePrice    decimal.Decimal `json:"avgSalePrice"`
	TotalPurchase   decimal.Decimal `json:"totalPurchase"`
	TotalSale       decimal.Decimal `json:"totalSale"`
	GainLoss        decimal.Decimal `json:"gainLoss"`
	GainLossPercent Percent         `json:"gainLossPercent"`
	Dividends       decimal.Decimal `json:"dividends"`
	Sector          string          `json:"sector,omitempty"`
}

// EncodeBackup writes 'b' to 'w' as a single indented JSON object, fields in
// a stable order so two exports of the same store diff cleanly.
func EncodeBackup(w io.Writer, b *Backup) error {
	jportfolios := make([]jportfolio, 0, len(b.Portfolios))
	for _, p := range b.Portfolios {
		jportfolios = append(jportfolios, jportfolio{
			ID:       p.ID,
			Name:     p.Name,
			Code:     p.Code,
			Category: string(p.Category),
			Currency: p.Currency,
			Fees:     p.Fees,
			Cash:     p.Cash.Amount(),
		})
	}
	jtxs := make([]jtransaction, 0, len(b.Transactions))
	for _, t := range b.Transactions {
		jtxs = append(jtxs, jtransaction{
			ID:          t.ID,
			PortfolioID: t.PortfolioID,
			Date:        t.Date,
			Code:        t.Code,
			Name:        t.Name,
			Type:        string(t.Type),
			Quantity:    t.Quantity,
			UnitPrice:   t.UnitPrice,
			Fees:        t.Fees,
			TFF:         t.TFF,
			Currency:    t.Currency,
			ConvRate:    t.ConvRate,
			Tax:         t.Tax,
			Sector:      t.Sector,
		})
	}
	jpositions := make([]jposition, 0, len(b.Positions))
	for _, p := range b.Positions {
		jpositions = append(jpositions, jposition{
			PortfolioID: p.PortfolioID,
			Code:        p.Code,
			Name:        p.Name,
			Quantity:    p.Quantity,
			TotalCost:   p.TotalCost.Amount(),
			PRU:         p.PRU.Amount(),
			Currency:    p.Currency,
			StopLoss:    p.StopLoss,
			ManualPrice: p.ManualPrice,
			Sector:      p.Sector,
		})
	}
	jcloseds := make([]jclosed, 0, len(b.ClosedPositions))
	for _, c := range b.ClosedPositions {
		jcloseds = append(jcloseds, jclosed{
			ID:              c.ID,
			PortfolioID:     c.PortfolioID,
			Code:            c.Code,
			Name:            c.Name,
			PurchaseDate:    c.PurchaseDate,
			SaleDate:        c.SaleDate,
			Quantity:        c.Quantity,
			PRU:             c.PRU.Amount(),
			AvgSalePrice:    c.AvgSalePrice.Amount(),
			TotalPurchase:   c.TotalPurchase.Amount(),
			TotalSale:       c.TotalSale.Amount(),
			GainLoss:        c.GainLoss.Amount(),
			GainLossPercent: c.GainLossPercent,
			Dividends:       c.Dividends.Amount(),
			Sector:          c.Sector,
		})
	}
	settings := b.Settings
	if settings == nil {
		settings = []Setting{}
	}

	jw := &jsonObjectWriter{}
	jw.Append("exportDate", b.ExportDate).
		Append("appVersion", b.AppVersion).
		Append("portfolios", jportfolios).
		Append("transactions", jtxs).
		Append("positions", jpositions).
		Append("closedPositions", jcloseds).
		Append("settings", settings)
	data, err := jw.MarshalJSON()
	if err != nil {
		return fmt.Errorf("cannot marshal backup: %w", err)
	}

	var indented json.RawMessage = data
	out, err := json.MarshalIndent(indented, "", "  ")
	if err != nil {
		return fmt.Errorf("cannot indent backup: %w", err)
	}
	if _, err := w.Write(append(out, '\n')); err != nil {
		return fmt.Errorf("cannot write backup: %w", err)
	}
	return nil
}

// DecodeBackup reads a backup from 'r'. A document missing one of the five
// record arrays, or holding no portfolio, is rejected with an error wrapping
// [ErrInvalidBackup].
func DecodeBackup(r io.Reader) (*Backup, error) {
	var jb struct {
		ExportDate      Date            `json:"exportDate"`
		AppVersion      string          `json:"appVersion"`
		Portfolios      json.RawMessage `json:"portfolios"`
		Transactions    json.RawMessage `json:"transactions"`
		Positions       json.RawMessage `json:"positions"`
		ClosedPositions json.RawMessage `json:"closedPositions"`
		Settings        json.RawMessage `json:"settings"`
	}
	if err := json.NewDecoder(r).Decode(&jb); err != nil {
		return nil, fmt.Errorf("cannot parse backup file: %w: %w", err, ErrInvalidBackup)
	}
	var (
		jportfolios []jportfolio
		jtxs        []jtransaction
		jpositions  []jposition
		jcloseds    []jclosed
		settings    []Setting
	)
	arrays := []struct {
		name string
		raw  json.RawMessage
		dst  any
	}{
		{"portfolios", jb.Portfolios, &jportfolios},
		{"transactions", jb.Transactions, &jtxs},
		{"positions", jb.Positions, &jpositions},
		{"closedPositions", jb.ClosedPositions, &jcloseds},
		{"settings", jb.Settings, &settings},
	}
	for _, a := range arrays {
		if a.raw == nil {
			return nil, fmt.Errorf("backup is missing the %q array: %w", a.name, ErrInvalidBackup)
		}
		if err := json.Unmarshal(a.raw, a.dst); err != nil {
			return nil, fmt.Errorf("cannot parse backup %q array: %w: %w", a.name, err, ErrInvalidBackup)
		}
	}

	b := &Backup{ExportDate: jb.ExportDate, AppVersion: jb.AppVersion}

	// Money currencies are implied by the owning portfolio.
	currencies := make(map[string]string, len(jportfolios))
	for _, jp := range jportfolios {
		currencies[jp.ID] = jp.Currency
		b.Portfolios = append(b.Portfolios, Portfolio{
			ID:       jp.ID,
			Name:     jp.Name,
			Code:     jp.Code,
			Category: Category(jp.Category),
			Currency: jp.Currency,
			Fees:     jp.Fees,
			Cash:     M(jp.Cash, jp.Currency),
		})
	}
	for _, jt := range jtxs {
		typ, err := ParseTxType(jt.Type)
		if err != nil {
			return nil, fmt.Errorf("backup transaction %s: %w: %w", jt.ID, err, ErrInvalidBackup)
		}
		b.Transactions = append(b.Transactions, Transaction{
			ID:          jt.ID,
			PortfolioID: jt.PortfolioID,
			Date:        jt.Date,
			Code:        jt.Code,
			Name:        jt.Name,
			Type:        typ,
			Quantity:    jt.Quantity,
			UnitPrice:   jt.UnitPrice,
			Fees:        jt.Fees,
			TFF:         jt.TFF,
			Currency:    jt.Currency,
			ConvRate:    jt.ConvRate,
			Tax:         jt.Tax,
			Sector:      jt.Sector,
		}.Normalize())
	}
	for _, jp := range jpositions {
		cur := currencies[jp.PortfolioID]
		b.Positions = append(b.Positions, Position{
			PortfolioID: jp.PortfolioID,
			Code:        NormalizeCode(jp.Code),
			Name:        jp.Name,
			Quantity:    jp.Quantity,
			TotalCost:   M(jp.TotalCost, cur),
			PRU:         M(jp.PRU, cur),
			Currency:    jp.Currency,
			StopLoss:    jp.StopLoss,
			ManualPrice: jp.ManualPrice,
			Sector:      jp.Sector,
		})
	}
	for _, jc := range jcloseds {
		cur := currencies[jc.PortfolioID]
		b.ClosedPositions = append(b.ClosedPositions, ClosedPosition{
			ID:              jc.ID,
			PortfolioID:     jc.PortfolioID,
			Code:            NormalizeCode(jc.Code),
			Name:            jc.Name,
			PurchaseDate:    jc.PurchaseDate,
			SaleDate:        jc.SaleDate,
			Quantity:        jc.Quantity,
			PRU:             M(jc.PRU, cur),
			AvgSalePrice:    M(jc.AvgSalePrice, cur),
			TotalPurchase:   M(jc.TotalPurchase, cur),
			TotalSale:       M(jc.TotalSale, cur),
			GainLoss:        M(jc.GainLoss, cur),
			GainLossPercent: jc.GainLossPercent,
			Dividends:       M(jc.Dividends, cur),
			Sector:          jc.Sector,
		})
	}
	b.Settings = settings

	if err := b.Validate(); err != nil {
		return nil, err
	}
	return b, nil
}
