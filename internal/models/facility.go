// internal/models/facility.go
package models

import "math"

// FacilityType is the long-term care facility category a caregiver searches for.
type FacilityType string

const (
	FacilityTypeNursingHospital FacilityType = "요양병원"
	FacilityTypeNursingHome     FacilityType = "요양원"
	FacilityTypeDayNightCare    FacilityType = "주야간보호"
	FacilityTypeHomeCareCenter  FacilityType = "재가복지센터"
)

var FacilityTypes = []FacilityType{
	FacilityTypeNursingHospital,
	FacilityTypeNursingHome,
	FacilityTypeDayNightCare,
	FacilityTypeHomeCareCenter,
}

func (t FacilityType) Valid() bool {
	for _, ft := range FacilityTypes {
		if ft == t {
			return true
		}
	}
	return false
}

type Region struct {
	Sido    string `json:"sido"`
	Sigungu string `json:"sigungu,omitempty"`
}

type Coordinate struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the coordinate is usable for distance computation.
func (c Coordinate) Valid() bool {
	if math.IsNaN(c.Lat) || math.IsNaN(c.Lng) || math.IsInf(c.Lat, 0) || math.IsInf(c.Lng, 0) {
		return false
	}
	return c.Lat >= -90 && c.Lat <= 90 && c.Lng >= -180 && c.Lng <= 180
}

// Facility is a read-only catalog snapshot of one care facility.
type Facility struct {
	ID               string       `json:"id"`
	Name             string       `json:"name"`
	Type             FacilityType `json:"facilityType"`
	Region           Region       `json:"region"`
	Coordinate       *Coordinate  `json:"coordinate,omitempty"`
	Phone            string       `json:"phone,omitempty"`
	Address          string       `json:"address,omitempty"`
	Rating           *float64     `json:"rating,omitempty"`
	ReviewCount      int          `json:"reviewCount"`
	Specialties      []string     `json:"specialties,omitempty"`
	AdmissionTypes   []string     `json:"admissionTypes,omitempty"`
	MonthlyCost      *int64       `json:"monthlyCost,omitempty"`
	Available        bool         `json:"available"`
	IsRepresentative bool         `json:"isRepresentative"`
}

func (f *Facility) HasSpecialty(s string) bool {
	return contains(f.Specialties, s)
}

func (f *Facility) HasAdmissionType(s string) bool {
	return contains(f.AdmissionTypes, s)
}

func contains(set []string, s string) bool {
	for _, v := range set {
		if v == s {
			return true
		}
	}
	return false
}
