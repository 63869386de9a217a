package portefeuille

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"
)

// ColumnMap maps transaction fields to zero-based CSV column indexes. A
// negative index means the column is absent from the file.
type ColumnMap struct {
	Date      int
	Type      int
	Code      int
	Name      int
	Quantity  int
	UnitPrice int
	Fees      int
	TFF       int
	Currency  int
	ConvRate  int
	Tax       int
	Sector    int
}

// DefaultColumnMap is the layout of the application's own CSV export:
// date, type, code, name, quantity, unitPrice, fees, tff, currency,
// convRate, tax, sector.
func DefaultColumnMap() ColumnMap {
	return ColumnMap{
		Date:      0,
		Type:      1,
		Code:      2,
		Name:      3,
		Quantity:  4,
		UnitPrice: 5,
		Fees:      6,
		TFF:       7,
		Currency:  8,
		ConvRate:  9,
		Tax:       10,
		Sector:    11,
	}
}

// ReadCSV parses transactions from 'r' according to the column map. A first
// row whose date column does not parse as a date is treated as a header and
// skipped. The result is sorted chronologically and ready for
// [Orchestrator.ImportTransactions]; ids are left blank for the import to
// assign.
func ReadCSV(r io.Reader, cm ColumnMap, portfolioID string) ([]Transaction, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	records, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("cannot read csv: %w", err)
	}

	var txs []Transaction
	for i, rec := range records {
		tx, err := parseCSVRecord(rec, cm, portfolioID)
		if err != nil {
			// Header detection: the first row is allowed not to parse.
			if i == 0 {
				continue
			}
			return nil, fmt.Errorf("csv line %d: %w", i+1, err)
		}
		txs = append(txs, tx)
	}
	return SortTransactions(txs), nil
}

func parseCSVRecord(rec []string, cm ColumnMap, portfolioID string) (Transaction, error) {
	field := func(i int) string {
		if i < 0 || i >= len(rec) {
			return ""
		}
		return strings.TrimSpace(rec[i])
	}
	number := func(i int) (decimal.Decimal, error) {
		s := field(i)
		if s == "" {
			return decimal.Decimal{}, nil
		}
		// French exports write decimal commas.
		s = strings.ReplaceAll(s, ",", ".")
		return decimal.NewFromString(s)
	}

	date, err := ParseDate(field(cm.Date))
	if err != nil {
		return Transaction{}, err
	}
	typ, err := NormalizeTxType(field(cm.Type))
	if err != nil {
		return Transaction{}, err
	}
	qty, err := number(cm.Quantity)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid quantity %q: %w", field(cm.Quantity), err)
	}
	price, err := number(cm.UnitPrice)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid unit price %q: %w", field(cm.UnitPrice), err)
	}
	fees, err := number(cm.Fees)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid fees %q: %w", field(cm.Fees), err)
	}
	tff, err := number(cm.TFF)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid tff %q: %w", field(cm.TFF), err)
	}
	rate, err := number(cm.ConvRate)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid conversion rate %q: %w", field(cm.ConvRate), err)
	}
	tax, err := number(cm.Tax)
	if err != nil {
		return Transaction{}, fmt.Errorf("invalid tax %q: %w", field(cm.Tax), err)
	}
	// Cash movements carry a synthetic quantity of 1.
	if qty.IsZero() && (typ == TxDeposit || typ == TxWithdraw) {
		qty = decimal.NewFromInt(1)
	}

	tx := Transaction{
		PortfolioID: portfolioID,
		Date:        date,
		Code:        field(cm.Code),
		Name:        field(cm.Name),
		Type:        typ,
		Quantity:    Q(qty),
		UnitPrice:   price,
		Fees:        fees,
		TFF:         tff,
		Currency:    field(cm.Currency),
		ConvRate:    rate,
		Tax:         tax,
		Sector:      field(cm.Sector),
	}.Normalize()
	if err := tx.Validate(); err != nil {
		return Transaction{}, err
	}
	return tx, nil
}

// WriteCSV writes transactions to 'w' in the default column layout, header
// first. The output round-trips through [ReadCSV] with [DefaultColumnMap].
func WriteCSV(w io.Writer, txs []Transaction) error {
	cw := csv.NewWriter(w)
	header := []string{"date", "type", "code", "name", "quantity", "unitPrice",
		"fees", "tff", "currency", "convRate", "tax", "sector"}
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("cannot write csv header: %w", err)
	}
	for _, tx := range SortTransactions(txs) {
		rec := []string{
			tx.Date.String(),
			string(tx.Type),
			tx.Code,
			tx.Name,
			tx.Quantity.String(),
			tx.UnitPrice.String(),
			tx.Fees.String(),
			tx.TFF.String(),
			tx.Currency,
			tx.ConvRate.String(),
			tx.Tax.String(),
			tx.Sector,
		}
		if err := cw.Write(rec); err != nil {
			return fmt.Errorf("cannot write csv record: %w", err)
		}
	}
	cw.Flush()
	return cw.Error()
}
