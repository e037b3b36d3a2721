package workflow

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
	"github.com/xuri/excelize/v2"

	"github.com/bgrlango/WMS-Manufacture-sub000/config"
	"github.com/bgrlango/WMS-Manufacture-sub000/models"
	"github.com/bgrlango/WMS-Manufacture-sub000/utils"
)

const countSheetName = "Sheet1"

// countSheetHeaderRows is the meta block (count number, count id, location)
// plus the column header row. Data rows start right below it.
const countSheetHeaderRows = 5

// ExportCycleCountSheet writes an open count as an xlsx count sheet.
// Counters fill in the Counted Quantity and Reason Code columns and the
// sheet comes back through ImportCycleCountResults. The count id cell is
// the anchor the import verifies against.
func ExportCycleCountSheet(ctx context.Context, countId int, w io.Writer) error {
	count, err := models.GetCycleCount(ctx, countId)
	if err != nil {
		return err
	}

	f := excelize.NewFile()
	defer f.Close()

	f.SetCellValue(countSheetName, "A1", "Count Number")
	f.SetCellValue(countSheetName, "B1", count.CountNumber)
	f.SetCellValue(countSheetName, "A2", "Count Id")
	f.SetCellValue(countSheetName, "B2", count.ID)
	f.SetCellValue(countSheetName, "A3", "Location Id")
	f.SetCellValue(countSheetName, "B3", count.LocationId)

	f.SetCellValue(countSheetName, "A5", "Detail Id")
	f.SetCellValue(countSheetName, "B5", "Part Number")
	f.SetCellValue(countSheetName, "C5", "System Quantity")
	f.SetCellValue(countSheetName, "D5", "Counted Quantity")
	f.SetCellValue(countSheetName, "E5", "Reason Code")

	for i, d := range count.Details {
		rowNo := countSheetHeaderRows + 1 + i
		f.SetCellValue(countSheetName, "A"+fmt.Sprint(rowNo), d.ID)
		f.SetCellValue(countSheetName, "B"+fmt.Sprint(rowNo), d.PartNumber)
		f.SetCellValue(countSheetName, "C"+fmt.Sprint(rowNo), d.SystemQuantity.String())
		if d.CountedQuantity != nil {
			f.SetCellValue(countSheetName, "D"+fmt.Sprint(rowNo), d.CountedQuantity.String())
		}
		if d.ReasonCode != "" {
			f.SetCellValue(countSheetName, "E"+fmt.Sprint(rowNo), d.ReasonCode)
		}
	}

	if err := f.Write(w); err != nil {
		return fmt.Errorf("write count sheet: %w", err)
	}
	return nil
}

// ImportCycleCountResults loads counted quantities back from an exported
// sheet. Rows with an empty Counted Quantity cell are skipped, so partial
// sheets can be imported repeatedly while counting is underway. Returns
// the number of detail rows recorded.
func ImportCycleCountResults(ctx context.Context, countId int, r io.Reader) (int, error) {
	logger := config.GetLogger()

	count, err := models.GetCycleCount(ctx, countId)
	if err != nil {
		return 0, err
	}
	validDetails := make(map[int]bool, len(count.Details))
	for _, d := range count.Details {
		validDetails[d.ID] = true
	}

	f, err := excelize.OpenReader(r)
	if err != nil {
		return 0, utils.ValidationError("cannot open xlsx: %s", err.Error())
	}
	defer f.Close()

	idCell, err := f.GetCellValue(countSheetName, "B2")
	if err != nil {
		return 0, utils.ValidationError("cannot read count id cell: %s", err.Error())
	}
	sheetCountId, err := strconv.Atoi(strings.TrimSpace(idCell))
	if err != nil || sheetCountId != countId {
		return 0, utils.ValidationError("sheet belongs to count '%s', not count %d", strings.TrimSpace(idCell), countId)
	}

	rows, err := f.GetRows(countSheetName)
	if err != nil {
		return 0, utils.ValidationError("cannot read %s: %s", countSheetName, err.Error())
	}

	recorded := 0
	for i, row := range rows {
		rowNo := i + 1
		if rowNo <= countSheetHeaderRows {
			continue
		}

		cell := func(idx int) string {
			if idx < len(row) {
				return strings.TrimSpace(row[idx])
			}
			return ""
		}
		if cell(0) == "" {
			continue
		}

		detailId, err := strconv.Atoi(cell(0))
		if err != nil {
			return recorded, utils.ValidationError("row %d: invalid detail id '%s'", rowNo, cell(0))
		}
		if !validDetails[detailId] {
			return recorded, utils.ValidationError("row %d: detail %d does not belong to count %s", rowNo, detailId, count.CountNumber)
		}

		countedRaw := cell(3)
		if countedRaw == "" {
			continue
		}
		countedQty, err := decimal.NewFromString(countedRaw)
		if err != nil {
			return recorded, utils.ValidationError("row %d: invalid counted quantity '%s'", rowNo, countedRaw)
		}

		if _, err := models.RecordCountResult(ctx, detailId, countedQty, cell(4)); err != nil {
			return recorded, err
		}
		recorded++
	}

	logger.WithFields(logrus.Fields{
		"count_id":     countId,
		"count_number": count.CountNumber,
		"recorded":     recorded,
	}).Info("count.sheet.imported")
	return recorded, nil
}
