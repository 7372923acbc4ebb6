package exporter

import (
	"bytes"
	"encoding/csv"
	"strconv"
	"time"

	"golang.org/x/text/encoding/charmap"

	"github.com/adscale-labs/convgate/internal/model"
)

// Row schemas required by the upload endpoint. The search network carries a
// currency column, the display network does not.
var (
	searchHeader  = []string{"ClickId", "OrderId", "ConversionDateTime", "Price", "Currency"}
	displayHeader = []string{"ClickId", "OrderId", "ConversionDateTime", "Price"}
)

const dateTimeLayout = "2006-01-02 15:04:05"

// renderBatch serializes conversions into the destination's delimited text
// encoding and transcodes it to windows-1251, the legacy charset the upload
// endpoint requires.
func renderBatch(network model.Network, currency string, recs []model.Conversion) ([]byte, error) {
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)

	header := displayHeader
	if network == model.NetworkSearch {
		header = searchHeader
	}
	if err := w.Write(header); err != nil {
		return nil, err
	}
	for _, r := range recs {
		row := []string{
			r.ClickID,
			r.OrderID,
			r.ConversionedAt.Format(dateTimeLayout),
			formatPrice(r.Amount),
		}
		if network == model.NetworkSearch {
			row = append(row, currency)
		}
		if err := w.Write(row); err != nil {
			return nil, err
		}
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}

	return charmap.Windows1251.NewEncoder().Bytes(buf.Bytes())
}

// formatPrice turns minor units into a decimal string, e.g. 1000 -> "10.00".
func formatPrice(minor int64) string {
	return strconv.FormatFloat(float64(minor)/100, 'f', 2, 64)
}

// batchFilename names an upload for log correlation on both sides.
func batchFilename(network model.Network, now time.Time) string {
	return "conversions_" + string(network) + "_" + now.UTC().Format("20060102T150405") + ".csv"
}
