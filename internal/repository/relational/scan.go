package relational

import (
	"database/sql"

	sqldb "github.com/kailas-cloud/catalogq/internal/db/sql"
	"github.com/kailas-cloud/catalogq/internal/domain/model"
)

// Scanners read columns in catalog declaration order, matching planner.Lookup.

func scanRecord(rows *sql.Rows) (string, model.Record, error) {
	var (
		rec                  model.Record
		departments          sqldb.Strings
		createdAt, updatedAt sqldb.NullTime
	)
	err := rows.Scan(
		&rec.ID, &rec.FirstName, &rec.LastName, &rec.Title,
		&rec.Email, &rec.EmailStatus, &rec.Seniority, &departments,
		&rec.City, &rec.State, &rec.Country, &rec.LinkedinURL,
		&rec.GroupID, &createdAt, &updatedAt,
	)
	if err != nil {
		return "", model.Record{}, err //nolint:wrapcheck // wrapped by lookupChunk
	}
	rec.Departments = departments
	rec.CreatedAt = createdAt.Time
	rec.UpdatedAt = updatedAt.Ptr()
	return rec.ID, rec, nil
}

func scanGroup(rows *sql.Rows) (string, model.Group, error) {
	var (
		g                                  model.Group
		industries, technologies, keywords sqldb.Strings
		createdAt                          sqldb.NullTime
	)
	err := rows.Scan(
		&g.ID, &g.Name, &g.WebsiteURL, &industries,
		&technologies, &keywords, &g.EmployeeCount,
		&g.AnnualRevenue, &g.FoundedYear, &g.City,
		&g.State, &g.Country, &createdAt,
	)
	if err != nil {
		return "", model.Group{}, err //nolint:wrapcheck // wrapped by lookupChunk
	}
	g.Industries = industries
	g.Technologies = technologies
	g.Keywords = keywords
	g.CreatedAt = createdAt.Time
	return g.ID, g, nil
}

func scanRecordEnrichment(rows *sql.Rows) (string, model.RecordEnrichment, error) {
	var e model.RecordEnrichment
	err := rows.Scan(
		&e.RecordID, &e.Phone, &e.MobilePhone, &e.PersonalEmail,
		&e.TwitterURL, &e.GithubURL, &e.PostalCode, &e.Timezone,
	)
	if err != nil {
		return "", model.RecordEnrichment{}, err //nolint:wrapcheck // wrapped by lookupChunk
	}
	return e.RecordID, e, nil
}

func scanGroupEnrichment(rows *sql.Rows) (string, model.GroupEnrichment, error) {
	var e model.GroupEnrichment
	err := rows.Scan(
		&e.GroupID, &e.Phone, &e.LinkedinURL, &e.TwitterURL,
		&e.FacebookURL, &e.StreetAddress, &e.PostalCode, &e.LogoURL,
	)
	if err != nil {
		return "", model.GroupEnrichment{}, err //nolint:wrapcheck // wrapped by lookupChunk
	}
	return e.GroupID, e, nil
}
