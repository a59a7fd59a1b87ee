package store

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/lib/pq"

	apperrors "carejoa-matching/internal/common/errors"
	"carejoa-matching/internal/models"
)

const catalogQuery = `
	SELECT f.id::text, f.name, f.facility_type, f.sido, f.sigungu,
	       f.latitude, f.longitude, f.phone, f.address,
	       f.rating, f.review_count, f.available,
	       d.specialties, d.admission_types, d.monthly_cost,
	       rc.facility_id IS NOT NULL AS is_representative
	FROM facilities f
	LEFT JOIN facility_details d ON d.facility_id = f.id
	LEFT JOIN regional_centers rc
	       ON rc.facility_id = f.id AND rc.facility_type = f.facility_type
	WHERE f.facility_type = $1
	  AND f.sido = $2
	  AND ($3 = '' OR f.sigungu = $3)
	ORDER BY f.id`

// PostgresCatalog reads facility snapshots from the facilities tables.
type PostgresCatalog struct {
	db *sql.DB
}

func NewPostgresCatalog(db *sql.DB) *PostgresCatalog {
	return &PostgresCatalog{db: db}
}

func (c *PostgresCatalog) GetCandidates(ctx context.Context, facilityType models.FacilityType, sido, sigungu string) ([]models.Facility, error) {
	rows, err := c.db.QueryContext(ctx, catalogQuery, string(facilityType), sido, sigungu)
	if err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("catalog", err)
	}
	defer rows.Close()

	var out []models.Facility
	for rows.Next() {
		f, err := scanFacility(rows)
		if err != nil {
			return nil, apperrors.NewQueryExecutionFailedError("catalog", err)
		}
		out = append(out, f)
	}
	if err := rows.Err(); err != nil {
		return nil, apperrors.NewQueryExecutionFailedError("catalog", err)
	}
	return out, nil
}

func scanFacility(rows *sql.Rows) (models.Facility, error) {
	var (
		f                     models.Facility
		ftype                 string
		sigungu, phone, addr  sql.NullString
		lat, lng, rating      sql.NullFloat64
		reviews, monthlyCost  sql.NullInt64
		available             sql.NullBool
		specialties, admitted pq.StringArray
	)
	if err := rows.Scan(
		&f.ID, &f.Name, &ftype, &f.Region.Sido, &sigungu,
		&lat, &lng, &phone, &addr,
		&rating, &reviews, &available,
		&specialties, &admitted, &monthlyCost,
		&f.IsRepresentative,
	); err != nil {
		return models.Facility{}, fmt.Errorf("scan facility: %w", err)
	}

	f.Type = models.FacilityType(ftype)
	f.Region.Sigungu = sigungu.String
	f.Phone = phone.String
	f.Address = addr.String
	if lat.Valid && lng.Valid {
		f.Coordinate = &models.Coordinate{Lat: lat.Float64, Lng: lng.Float64}
	}
	if rating.Valid {
		r := rating.Float64
		f.Rating = &r
	}
	f.ReviewCount = int(reviews.Int64)
	f.Available = !available.Valid || available.Bool
	f.Specialties = []string(specialties)
	f.AdmissionTypes = []string(admitted)
	if monthlyCost.Valid {
		m := monthlyCost.Int64
		f.MonthlyCost = &m
	}
	return f, nil
}
