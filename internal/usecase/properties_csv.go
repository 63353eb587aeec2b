package usecase

import (
	"context"
	"io"
	"strconv"
	"strings"

	"EstateDesk/internal/domain/models"
	"EstateDesk/pkg/util"
)

// EmptyExport is written instead of a header when there is nothing to export.
const EmptyExport = "No data to export"

var csvHeaders = []string{
	"Property ID",
	"Title",
	"Address",
	"City",
	"State",
	"Zip",
	"Price",
	"Bedrooms",
	"Bathrooms",
	"Sqft",
	"Year Built",
	"Cap Rate (%)",
	"ROI (%)",
	"Lease End",
	"Compliance Flags",
	"Lead Risk",
}

// ExportCSV writes every analyzed listing as CSV. Cells are escaped against
// spreadsheet formula injection.
func (f *PropertyFeed) ExportCSV(ctx context.Context, w io.Writer) error {
	all, err := f.Properties(ctx)
	if err != nil {
		return err
	}
	_, err = io.WriteString(w, PropertiesCSV(all))
	return err
}

// PropertiesCSV renders properties with a header row and '\n' line endings.
func PropertiesCSV(properties []models.Property) string {
	if len(properties) == 0 {
		return EmptyExport
	}
	lines := make([]string, 0, len(properties)+1)
	lines = append(lines, strings.Join(csvHeaders, ","))
	for _, p := range properties {
		flags := make([]string, 0, len(p.ComplianceFlags))
		for _, fl := range p.ComplianceFlags {
			flags = append(flags, string(fl.Type)+":"+string(fl.Severity))
		}
		row := []string{
			p.ID,
			p.Title,
			p.Address,
			p.City,
			p.State,
			p.Zip,
			formatFloat(p.Price, 0),
			strconv.Itoa(p.Bedrooms),
			strconv.Itoa(p.Bathrooms),
			strconv.Itoa(p.Sqft),
			strconv.Itoa(p.YearBuilt),
			formatFloat(p.CapRate, 2),
			formatFloat(p.ROI, 2),
			p.LeaseEndDate,
			strings.Join(flags, "; "),
			strconv.FormatBool(p.HasLeadRisk),
		}
		for i := range row {
			row[i] = util.EscapeCSV(row[i])
		}
		lines = append(lines, strings.Join(row, ","))
	}
	return strings.Join(lines, "\n")
}

func formatFloat(v float64, prec int) string {
	return strconv.FormatFloat(v, 'f', prec, 64)
}
