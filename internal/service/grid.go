package service

import (
	"context"
	"fmt"

	"github.com/tickin/dock-slot-service/internal/model"
	"github.com/tickin/dock-slot-service/internal/repository"
)

// GridSlot is one exclusive cell of the day view.
type GridSlot struct {
	Time     string `json:"time"`
	Position string `json:"position"`
	Status   string `json:"status"`
	Occupant string `json:"occupant,omitempty"`
}

// GridBucket is one pooled merge bucket of the day view.
type GridBucket struct {
	Time        string  `json:"time"`
	MergeKey    string  `json:"merge_key"`
	Status      string  `json:"status"`
	TotalAmount int64   `json:"total_amount"`
	MaxAmount   int64   `json:"max_amount"`
	TripStatus  string  `json:"trip_status"`
	Lat         float64 `json:"lat"`
	Lng         float64 `json:"lng"`
	Blink       bool    `json:"blink"`
}

// Grid is the full day view: a dense times x positions matrix of
// exclusive slots plus whatever pooled buckets exist for the day.
type Grid struct {
	Tenant  string       `json:"tenant"`
	Date    string       `json:"date"`
	Slots   []GridSlot   `json:"slots"`
	Buckets []GridBucket `json:"buckets"`
}

// GetGrid renders the day view. Storage is sparse: only slots that
// deviated from their default have a row, so the builder walks the
// configured grid, fills defaults, and overlays persisted records.
// Reading the grid never writes; repeated calls yield the same view
// until a booking lands.
func (l *Ledger) GetGrid(ctx context.Context, tenant, date string) (*Grid, error) {
	if tenant == "" || date == "" {
		return nil, fmt.Errorf("%w: tenant and date are required", repository.ErrValidation)
	}
	rules, err := l.rules.Get(ctx, tenant)
	if err != nil {
		return nil, err
	}
	records, err := l.capacity.ListByDate(ctx, tenant, date)
	if err != nil {
		return nil, err
	}

	overrides := make(map[string]*model.SlotCapacity)
	var pooled []model.SlotCapacity
	for i := range records {
		r := &records[i]
		if r.Kind == model.KindPooled {
			pooled = append(pooled, *r)
			continue
		}
		overrides[r.Time+"|"+r.Position] = r
	}

	reserveOpen := rules != nil && rules.ReserveEnabled
	grid := &Grid{Tenant: tenant, Date: date}
	for _, t := range l.settings.Times {
		for _, p := range l.settings.Positions {
			cell := GridSlot{Time: t, Position: p, Status: model.SlotAvailable}
			if t == l.settings.ReserveTime && !reserveOpen {
				cell.Status = model.SlotClosed
			}
			if r, ok := overrides[t+"|"+p]; ok {
				cell.Status = r.Status
				cell.Occupant = r.Occupant
			}
			grid.Slots = append(grid.Slots, cell)
		}
	}
	for _, b := range pooled {
		grid.Buckets = append(grid.Buckets, GridBucket{
			Time:        b.Time,
			MergeKey:    b.MergeKey,
			Status:      b.Status,
			TotalAmount: b.TotalAmount,
			MaxAmount:   b.MaxAmount,
			TripStatus:  b.TripStatus,
			Lat:         b.Lat,
			Lng:         b.Lng,
			Blink:       b.Blink,
		})
	}
	return grid, nil
}
