// Package model holds the hydrated row shapes returned by queries. The JSON
// form is shared with the search delegate, which returns rows already
// denormalised.
package model

import "time"

// Record is a contact-like primary entity.
type Record struct {
	ID          string     `json:"id"`
	FirstName   *string    `json:"first_name"`
	LastName    *string    `json:"last_name"`
	Title       *string    `json:"title"`
	Email       *string    `json:"email"`
	EmailStatus *string    `json:"email_status"`
	Seniority   *string    `json:"seniority"`
	Departments []string   `json:"departments"`
	City        *string    `json:"city"`
	State       *string    `json:"state"`
	Country     *string    `json:"country"`
	LinkedinURL *string    `json:"linkedin_url"`
	GroupID     *string    `json:"group_id"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   *time.Time `json:"updated_at"`

	Group      Relation[Group]            `json:"group,omitzero"`
	Enrichment Relation[RecordEnrichment] `json:"enrichment,omitzero"`
}

// Group is an organization a Record may belong to.
type Group struct {
	ID            string    `json:"id"`
	Name          *string   `json:"name"`
	WebsiteURL    *string   `json:"website_url"`
	Industries    []string  `json:"industries"`
	Technologies  []string  `json:"technologies"`
	Keywords      []string  `json:"keywords"`
	EmployeeCount *int64    `json:"employee_count"`
	AnnualRevenue *float64  `json:"annual_revenue"`
	FoundedYear   *int64    `json:"founded_year"`
	City          *string   `json:"city"`
	State         *string   `json:"state"`
	Country       *string   `json:"country"`
	CreatedAt     time.Time `json:"created_at"`

	Enrichment Relation[GroupEnrichment] `json:"enrichment,omitzero"`
}

// RecordEnrichment is optional side data for a Record.
type RecordEnrichment struct {
	RecordID      string  `json:"record_id"`
	Phone         *string `json:"phone"`
	MobilePhone   *string `json:"mobile_phone"`
	PersonalEmail *string `json:"personal_email"`
	TwitterURL    *string `json:"twitter_url"`
	GithubURL     *string `json:"github_url"`
	PostalCode    *string `json:"postal_code"`
	Timezone      *string `json:"timezone"`
}

// GroupEnrichment is optional side data for a Group.
type GroupEnrichment struct {
	GroupID       string  `json:"group_id"`
	Phone         *string `json:"phone"`
	LinkedinURL   *string `json:"linkedin_url"`
	TwitterURL    *string `json:"twitter_url"`
	FacebookURL   *string `json:"facebook_url"`
	StreetAddress *string `json:"street_address"`
	PostalCode    *string `json:"postal_code"`
	LogoURL       *string `json:"logo_url"`
}

// Populate selects which relations a query hydrates.
type Populate struct {
	Group           bool `json:"group,omitempty"`
	Enrichment      bool `json:"enrichment,omitempty"`
	GroupEnrichment bool `json:"group_enrichment,omitempty"`
}

// Any reports whether any relation is requested.
func (p Populate) Any() bool { return p.Group || p.Enrichment || p.GroupEnrichment }

// ParsePopulate parses relation names; unknown names are returned as the second value.
func ParsePopulate(names []string) (Populate, []string) {
	var p Populate
	var unknown []string
	for _, n := range names {
		switch n {
		case "group":
			p.Group = true
		case "enrichment":
			p.Enrichment = true
		case "group_enrichment", "group.enrichment":
			p.GroupEnrichment = true
		case "":
		default:
			unknown = append(unknown, n)
		}
	}
	return p, unknown
}

// Names returns the requested relation names.
func (p Populate) Names() []string {
	var out []string
	if p.Group {
		out = append(out, "group")
	}
	if p.Enrichment {
		out = append(out, "enrichment")
	}
	if p.GroupEnrichment {
		out = append(out, "group_enrichment")
	}
	return out
}

// Ptr returns a pointer to v. Convenience for building rows in code.
func Ptr[T any](v T) *T { return &v }
