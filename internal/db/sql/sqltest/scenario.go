package sqltest

// Scenario keys.
const (
	GroupAcme    = "grp-acme"
	GroupGlobex  = "grp-globex"
	GroupInitech = "grp-initech"

	RecordAda    = "rec-ada"
	RecordBo     = "rec-bo"
	RecordCyd    = "rec-cyd"
	RecordDee    = "rec-dee"
	RecordEli    = "rec-eli"
	RecordOrphan = "rec-orphan"
)

// Scenario is the reference catalog: five grouped records, of which three
// have a CEO title at a technology group and three have a valid email,
// plus one record with no group and sparse columns.
func Scenario() Fixture {
	return Fixture{
		Groups: []Row{
			{
				"id": GroupAcme, "name": "Acme", "website_url": "https://www.acme.com/about",
				"industries": []string{"Technology", "Software"}, "technologies": []string{"Go", "PostgreSQL"},
				"keywords": []string{"b2b"}, "employee_count": 500, "annual_revenue": 12500000.5,
				"founded_year": 1998, "city": "Berlin", "country": "Germany", "created_at": At(1),
			},
			{
				"id": GroupGlobex, "name": "Globex Corporation", "website_url": "http://globex.io:8080",
				"industries": []string{"technology"}, "employee_count": 50,
				"founded_year": 2012, "city": "Austin", "state": "TX", "country": "United States", "created_at": At(2),
			},
			{
				"id": GroupInitech, "name": "Initech", "industries": []string{"Retail"},
				"keywords": []string{}, "city": "Austin", "country": "United States", "created_at": At(3),
			},
		},
		Records: []Row{
			{
				"id": RecordAda, "first_name": "Ada", "last_name": "Lovelace", "title": "CEO",
				"email": "ada@acme.com", "email_status": "valid", "seniority": "c_suite",
				"departments": []string{"Executive", "Sales"}, "city": "Berlin", "country": "Germany",
				"linkedin_url": "https://www.linkedin.com/in/ada", "group_id": GroupAcme, "created_at": At(50),
			},
			{
				"id": RecordBo, "first_name": "Bo", "last_name": "Chen", "title": "Co-Founder & CEO",
				"email": "bo@globex.io", "email_status": "invalid", "seniority": "founder",
				"departments": []string{"executive"}, "city": "Austin", "country": "United States",
				"group_id": GroupGlobex, "created_at": At(40),
			},
			{
				"id": RecordCyd, "first_name": "Cyd", "last_name": "Park", "title": "CEO",
				"email": "cyd@initech.com", "email_status": "valid", "seniority": "c_suite",
				"departments": []string{"Executive"}, "city": "Austin", "country": "United States",
				"linkedin_url": "linkedin.com/in/cyd", "group_id": GroupInitech, "created_at": At(30),
			},
			{
				"id": RecordDee, "first_name": "Dee", "last_name": "Moss", "title": "Chief Executive Officer (CEO)",
				"email": "dee@acme.com", "email_status": "valid", "seniority": "c_suite",
				"departments": []string{"Engineering"}, "city": "Munich", "country": "Germany",
				"group_id": GroupAcme, "created_at": At(20),
			},
			{
				"id": RecordEli, "first_name": "Eli", "last_name": "Stone", "title": "CTO",
				"email": "eli@acme.com", "seniority": "c_suite",
				"departments": []string{"Engineering", "R&D"}, "city": "Berlin", "country": "Germany",
				"group_id": GroupAcme, "created_at": At(10),
			},
		},
		RecordEnrichments: []Row{
			{"record_id": RecordAda, "phone": "+49 30 1234", "timezone": "Europe/Berlin", "github_url": "https://github.com/ada"},
			{"record_id": RecordCyd, "mobile_phone": "+1 512 555 0100", "timezone": "America/Chicago"},
		},
		GroupEnrichments: []Row{
			{"group_id": GroupAcme, "phone": "+49 30 0000", "postal_code": "10115", "linkedin_url": "https://linkedin.com/company/acme"},
		},
	}
}

// WithOrphan extends the scenario with a record that has no group.
func WithOrphan(f Fixture) Fixture {
	f.Records = append(f.Records, Row{
		"id": RecordOrphan, "first_name": "Orphan", "created_at": At(5),
	})
	return f
}
