package kpi

import (
	"fmt"
	"time"
)

// ContactStatus is the pipeline stage of a referred contact
type ContactStatus string

const (
	ContactNew       ContactStatus = "new"
	ContactPotential ContactStatus = "potential"
	ContactSigned    ContactStatus = "signed"
	ContactLost      ContactStatus = "lost"
)

// ParseContactStatus parses a wire value
func ParseContactStatus(s string) (ContactStatus, error) {
	switch c := ContactStatus(s); c {
	case ContactNew, ContactPotential, ContactSigned, ContactLost:
		return c, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidContactStatus, s)
}

// Period is a calendar month
type Period struct {
	Year  int `json:"year"`
	Month int `json:"month"`
}

// PeriodOf returns the month containing t in loc
func PeriodOf(t time.Time, loc *time.Location) Period {
	lt := t.In(loc)
	return Period{Year: lt.Year(), Month: int(lt.Month())}
}

// ParsePeriod parses a yyyy-mm month
func ParsePeriod(s string) (Period, error) {
	t, err := time.Parse("2006-01", s)
	if err != nil {
		return Period{}, fmt.Errorf("%w: %q", ErrInvalidPeriod, s)
	}
	p := Period{Year: t.Year(), Month: int(t.Month())}
	return p, p.Validate()
}

// Validate checks the period is a real month
func (p Period) Validate() error {
	if p.Year < 2000 || p.Year > 9999 || p.Month < 1 || p.Month > 12 {
		return fmt.Errorf("%w: %d-%02d", ErrInvalidPeriod, p.Year, p.Month)
	}
	return nil
}

// End is the first instant after the month in loc
func (p Period) End(loc *time.Location) time.Time {
	return time.Date(p.Year, time.Month(p.Month)+1, 1, 0, 0, 0, 0, loc)
}

// String formats the period as yyyy-mm
// Next returns the following month
func (p Period) Next() Period {
	if p.Month == 12 {
		return Period{Year: p.Year + 1, Month: 1}
	}
	return Period{Year: p.Year, Month: p.Month + 1}
}

func (p Period) String() string {
	return fmt.Sprintf("%04d-%02d", p.Year, p.Month)
}

// Record is one month of KPI counters for a tiered affiliate
type Record struct {
	AffiliateID       string      `json:"affiliate_id"`
	Year              int         `json:"year"`
	Month             int         `json:"month"`
	TotalContacts     int         `json:"total_contacts"`
	PotentialContacts int         `json:"potential_contacts"`
	SignedContracts   int         `json:"signed_contracts"`
	TotalRevenue      int64       `json:"total_revenue"`
	TotalCommission   int64       `json:"total_commission"`
	Performance       Performance `json:"performance"`
	Note              string      `json:"note,omitempty"`
	EvaluatedAt       *time.Time  `json:"evaluated_at,omitempty"`
	CreatedAt         time.Time   `json:"created_at"`
	UpdatedAt         time.Time   `json:"updated_at"`
}

// NewRecord opens an empty month
func NewRecord(affiliateID string, p Period, at time.Time) *Record {
	return &Record{
		AffiliateID: affiliateID,
		Year:        p.Year,
		Month:       p.Month,
		Performance: PerformancePending,
		CreatedAt:   at,
		UpdatedAt:   at,
	}
}

// Period returns the record's month
func (r *Record) Period() Period {
	return Period{Year: r.Year, Month: r.Month}
}

// Evaluated reports whether the month's verdict is final
func (r *Record) Evaluated() bool {
	return r.Performance != PerformancePending
}

// CountContact increments the counter for a contact entering status.
// Lost contacts change nothing.
func (r *Record) CountContact(status ContactStatus, at time.Time) error {
	if r.Evaluated() {
		return ErrAlreadyEvaluated
	}
	switch status {
	case ContactNew:
		r.TotalContacts++
	case ContactPotential:
		r.PotentialContacts++
	case ContactSigned:
		r.SignedContracts++
	case ContactLost:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrInvalidContactStatus, status)
	}
	r.UpdatedAt = at
	return nil
}

// AddRevenue accumulates a closed contract's value and commission
func (r *Record) AddRevenue(revenue, commission int64, at time.Time) error {
	if r.Evaluated() {
		return ErrAlreadyEvaluated
	}
	r.TotalRevenue += revenue
	r.TotalCommission += commission
	r.UpdatedAt = at
	return nil
}

// Meets reports whether the record reaches every threshold
func (t Thresholds) Meets(r *Record) bool {
	return r.TotalContacts >= t.Contacts &&
		r.PotentialContacts >= t.PotentialContacts &&
		r.SignedContracts >= t.SignedContracts
}

// Evaluate returns the verdict of r against t
func (t Thresholds) Evaluate(r *Record) Performance {
	if t.Meets(r) {
		return PerformanceMet
	}
	return PerformanceNotMet
}
