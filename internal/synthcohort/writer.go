package synthcohort

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/okian/graftloss/internal/domain/dataset"
)

// WriteCSV writes ds with a header row: timeCol, statusCol, then covariates.
func WriteCSV(w io.Writer, ds *dataset.Dataset, timeCol, statusCol string) error {
	cw := csv.NewWriter(w)
	header := append([]string{timeCol, statusCol}, ds.Names()...)
	if err := cw.Write(header); err != nil {
		return fmt.Errorf("write header: %w", err)
	}
	row := make([]string, len(header))
	for i := 0; i < ds.Len(); i++ {
		row[0] = strconv.FormatFloat(ds.Durations[i], 'g', -1, 64)
		row[1] = strconv.Itoa(ds.Events[i])
		for j, c := range ds.Covariates {
			row[2+j] = strconv.FormatFloat(c.Values[i], 'g', -1, 64)
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write row %d: %w", i, err)
		}
	}
	cw.Flush()
	return cw.Error()
}
