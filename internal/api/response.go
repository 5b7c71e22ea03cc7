package api

import (
	"time"

	"arcade-rental-backend/internal/kst"
	"arcade-rental-backend/internal/lifecycle"
	"arcade-rental-backend/internal/model"
	"arcade-rental-backend/internal/parse"
	"arcade-rental-backend/internal/schedule"
)

type slotResponse struct {
	ID            int64                `json:"id"`
	StartHour     int                  `json:"start_hour"`
	EndHour       int                  `json:"end_hour"`
	StartTime     string               `json:"start_time"`
	EndTime       string               `json:"end_time"`
	SlotType      model.SlotType       `json:"slot_type"`
	IsYouthTime   bool                 `json:"is_youth_time"`
	CreditOptions []model.CreditOption `json:"credit_options"`
	Enable2P      bool                 `json:"enable_2p"`
	Price2PExtra  int                  `json:"price_2p_extra"`
}

func newSlotResponse(d model.TimeSlotDefinition) slotResponse {
	// Stored definitions are validated on write; a bad hour renders as "".
	start, _ := parse.FormatClock(d.StartHour)
	end, _ := parse.FormatClock(d.EndHour)
	return slotResponse{
		ID:            d.ID,
		StartHour:     d.StartHour,
		EndHour:       d.EndHour,
		StartTime:     start,
		EndTime:       end,
		SlotType:      d.SlotType,
		IsYouthTime:   d.IsYouthTime,
		CreditOptions: d.CreditOptions,
		Enable2P:      d.Enable2P,
		Price2PExtra:  d.Price2PExtra,
	}
}

type availabilityResponse struct {
	Slot              slotResponse             `json:"slot"`
	RemainingCapacity int                      `json:"remaining_capacity"`
	CreditBreakdown   map[model.CreditType]int `json:"credit_breakdown"`
}

func newAvailabilityResponse(views []schedule.SlotView) []availabilityResponse {
	out := make([]availabilityResponse, 0, len(views))
	for _, v := range views {
		out = append(out, availabilityResponse{
			Slot:              newSlotResponse(v.Definition),
			RemainingCapacity: v.Remaining,
			CreditBreakdown:   v.CreditBreakdown,
		})
	}
	return out
}

type deviceResponse struct {
	ID           int64                  `json:"id"`
	DeviceTypeID int64                  `json:"device_type_id"`
	DeviceNumber int                    `json:"device_number"`
	Status       lifecycle.DeviceStatus `json:"status"`
}

func newDeviceResponse(d model.Device) deviceResponse {
	return deviceResponse{
		ID:           d.ID,
		DeviceTypeID: d.DeviceTypeID,
		DeviceNumber: d.DeviceNumber,
		Status:       d.Status,
	}
}

type deviceTypeResponse struct {
	ID             int64            `json:"id"`
	Name           string           `json:"name"`
	DeviceCount    int              `json:"device_count"`
	MaxRentalUnits int              `json:"max_rental_units"`
	Devices        []deviceResponse `json:"devices"`
	TimeSlots      []slotResponse   `json:"time_slots"`
}

func newDeviceTypeResponse(t model.DeviceType) deviceTypeResponse {
	resp := deviceTypeResponse{
		ID:             t.ID,
		Name:           t.Name,
		DeviceCount:    t.DeviceCount,
		MaxRentalUnits: t.RentalUnits(),
		Devices:        make([]deviceResponse, 0, len(t.Devices)),
		TimeSlots:      make([]slotResponse, 0, len(t.TimeSlots)),
	}
	for _, d := range t.Devices {
		resp.Devices = append(resp.Devices, newDeviceResponse(d))
	}
	for _, s := range t.TimeSlots {
		resp.TimeSlots = append(resp.TimeSlots, newSlotResponse(s))
	}
	return resp
}

type reservationResponse struct {
	ID                string           `json:"id"`
	ReservationNumber string           `json:"reservation_number"`
	UserID            string           `json:"user_id"`
	DeviceTypeID      int64            `json:"device_type_id"`
	DeviceID          *int64           `json:"device_id"`
	Date              string           `json:"date"`
	StartHour         int              `json:"start_hour"`
	EndHour           int              `json:"end_hour"`
	StartTime         string           `json:"start_time"`
	EndTime           string           `json:"end_time"`
	StartsAt          time.Time        `json:"starts_at"`
	EndsAt            time.Time        `json:"ends_at"`
	Status            lifecycle.Status `json:"status"`
	CreditType        model.CreditType `json:"credit_type"`
	PlayerCount       int              `json:"player_count"`
	TotalAmount       int              `json:"total_amount"`
	ApprovedAt        *time.Time       `json:"approved_at,omitempty"`
	ApprovedBy        string           `json:"approved_by,omitempty"`
	RejectionReason   string           `json:"rejection_reason,omitempty"`
	CancelReason      string           `json:"cancel_reason,omitempty"`
	CheckInAt         *time.Time       `json:"check_in_at,omitempty"`
	ActualStartTime   *time.Time       `json:"actual_start_time,omitempty"`
	ActualEndTime     *time.Time       `json:"actual_end_time,omitempty"`
	CreatedAt         time.Time        `json:"created_at"`
}

func inKST(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	v := t.In(kst.Location)
	return &v
}

func newReservationResponse(r model.Reservation) reservationResponse {
	return reservationResponse{
		ID:                r.ID,
		ReservationNumber: r.ReservationNumber,
		UserID:            r.UserID,
		DeviceTypeID:      r.DeviceTypeID,
		DeviceID:          r.DeviceID,
		Date:              r.Date,
		StartHour:         r.StartHour,
		EndHour:           r.EndHour,
		StartTime:         r.StartTime,
		EndTime:           r.EndTime,
		StartsAt:          r.StartsAt.In(kst.Location),
		EndsAt:            r.EndsAt.In(kst.Location),
		Status:            r.Status,
		CreditType:        r.CreditType,
		PlayerCount:       r.PlayerCount,
		TotalAmount:       r.TotalAmount,
		ApprovedAt:        inKST(r.ApprovedAt),
		ApprovedBy:        r.ApprovedBy,
		RejectionReason:   r.RejectionReason,
		CancelReason:      r.CancelReason,
		CheckInAt:         inKST(r.CheckInAt),
		ActualStartTime:   inKST(r.ActualStartTime),
		ActualEndTime:     inKST(r.ActualEndTime),
		CreatedAt:         r.CreatedAt.In(kst.Location),
	}
}
