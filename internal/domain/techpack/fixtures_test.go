package techpack

import (
	"fmt"

	"github.com/shopspring/decimal"
)

func newTestSnapshot(bom, measurements, colorways int) *Snapshot {
	s := &Snapshot{
		DocumentID:     "TP-1001",
		ContentVersion: "v3",
		Article: Article{
			StyleNumber: "SS25-TEE-01",
			Name:        "Crew Neck Tee",
			Sizes:       []string{"S", "M", "L"},
		},
		LifecycleStage: StageSampling,
		Brand:          "Northwind",
	}
	for i := 0; i < bom; i++ {
		s.BOM = append(s.BOM, BOMItem{
			Component: fmt.Sprintf("component-%02d", i),
			Material:  "cotton jersey",
			Quantity:  decimal.NewFromInt(1),
			Unit:      "pcs",
		})
	}
	for i := 0; i < measurements; i++ {
		s.Measurements = append(s.Measurements, MeasurementPoint{
			Code:           fmt.Sprintf("POM-%02d", i),
			Description:    "chest width",
			Values:         map[string]decimal.Decimal{"S": decimal.NewFromInt(48), "M": decimal.NewFromInt(50), "L": decimal.NewFromInt(52)},
			TolerancePlus:  decimal.RequireFromString("0.5"),
			ToleranceMinus: decimal.RequireFromString("0.5"),
		})
	}
	for i := 0; i < colorways; i++ {
		s.Colorways = append(s.Colorways, Colorway{
			Name:  fmt.Sprintf("colorway-%d", i),
			Parts: []ColorPart{{Part: "body", ColorName: "navy", Hex: "#1B2A4A"}},
		})
	}
	return s
}
