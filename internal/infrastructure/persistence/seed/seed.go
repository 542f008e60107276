// Package seed holds the demo dataset: the MGH general-surgery program,
// its 18 EPAs, roster, clinical sites, default requirements and sample
// assessments. Every store loads the same data through Dataset.
package seed

import (
	"encoding/json"
	"time"

	"github.com/rms-hub/residency-hub/internal/domain/assessment"
	"github.com/rms-hub/residency-hub/internal/domain/epa"
	"github.com/rms-hub/residency-hub/internal/domain/faculty"
	"github.com/rms-hub/residency-hub/internal/domain/resident"
	"github.com/rms-hub/residency-hub/internal/domain/shared"
	"github.com/rms-hub/residency-hub/internal/domain/site"
)

const ProgramID shared.ProgramID = "prog-mgh-surg"

// Dataset is everything a store needs to serve the demo.
type Dataset struct {
	Programs     []resident.Program
	EPAs         []epa.EPA
	Requirements []epa.Requirement
	Residents    []resident.Resident
	Faculty      []faculty.Faculty
	Sites        []site.ClinicalSite
	Assessments  []*assessment.Assessment
}

// Default returns a fresh copy of the demo dataset.
func Default() Dataset {
	return Dataset{
		Programs: []resident.Program{{
			ID:            ProgramID,
			Name:          "MGH General Surgery Residency",
			SpecialtyCode: shared.SpecialtyGeneralSurgery,
		}},
		EPAs:         epas(),
		Requirements: Requirements(),
		Residents:    residents(),
		Faculty:      facultyList(),
		Sites:        sites(),
		Assessments:  assessments(),
	}
}

func epas() []epa.EPA {
	rows := []struct {
		name, short string
		cat         epa.Category
	}{
		{"Preoperative Assessment and Informed Consent", "Preop Assessment", epa.CategoryPreoperative},
		{"Preoperative Planning", "Preop Planning", epa.CategoryPreoperative},
		{"Appendectomy (Laparoscopic or Open)", "Appendectomy", epa.CategoryIntraoperative},
		{"Inguinal Hernia Repair", "Hernia Repair", epa.CategoryIntraoperative},
		{"Laparoscopic Cholecystectomy", "Lap Chole", epa.CategoryIntraoperative},
		{"Bowel Resection", "Bowel Resection", epa.CategoryIntraoperative},
		{"Soft Tissue Mass Excision", "Soft Tissue", epa.CategoryIntraoperative},
		{"Central Venous Catheter Insertion", "Central Line", epa.CategoryIntraoperative},
		{"Trauma Laparotomy", "Trauma Lap", epa.CategoryIntraoperative},
		{"Create Intestinal Stoma", "Stoma Creation", epa.CategoryIntraoperative},
		{"Postoperative Management", "Postop Mgmt", epa.CategoryPostoperative},
		{"Recognition and Management of Complications", "Complications", epa.CategoryPostoperative},
		{"Multi-day Patient Management", "Continuity Care", epa.CategoryLongitudinal},
		{"End-of-Life Care", "End of Life", epa.CategoryLongitudinal},
		{"Care Transitions and Handoffs", "Handoffs", epa.CategoryLongitudinal},
		{"Leading a Healthcare Team", "Team Leadership", epa.CategoryProfessional},
		{"Systems-Based Practice and Patient Safety", "Patient Safety", epa.CategoryProfessional},
		{"Practice-Based Learning and Quality Improvement", "QI/PBLI", epa.CategoryProfessional},
	}
	out := make([]epa.EPA, 0, len(rows))
	for i, r := range rows {
		out = append(out, epa.EPA{
			ID:            shared.EPAID(i + 1),
			SpecialtyCode: shared.SpecialtyGeneralSurgery,
			Name:          r.name,
			ShortName:     r.short,
			Category:      r.cat,
			DisplayOrder:  i + 1,
			Active:        true,
		})
	}
	return out
}

// Requirements are the program defaults: a graduation row for every EPA
// (5 at level 4), PGY-1 rows for EPAs 1 and 11, PGY-3 rows for EPAs 3-5.
func Requirements() []epa.Requirement {
	out := make([]epa.Requirement, 0, 23)
	for id := 1; id <= 18; id++ {
		out = append(out, epa.Requirement{
			ProgramID: ProgramID, EPAID: shared.EPAID(id),
			TargetCount: 5, TargetLevel: shared.LevelAvailable,
		})
	}
	for _, id := range []shared.EPAID{1, 11} {
		out = append(out, epa.Requirement{
			ProgramID: ProgramID, EPAID: id, TrainingLevel: epa.PGY(1),
			TargetCount: 2, TargetLevel: shared.LevelDirect,
		})
	}
	for _, id := range []shared.EPAID{3, 4, 5} {
		out = append(out, epa.Requirement{
			ProgramID: ProgramID, EPAID: id, TrainingLevel: epa.PGY(3),
			TargetCount: 3, TargetLevel: shared.LevelIndirect,
		})
	}
	return out
}

func residents() []resident.Resident {
	mk := func(id, first, last, email string, pgy int, school string) resident.Resident {
		return resident.Resident{
			ID: shared.ResidentID(id), ProgramID: ProgramID,
			FirstName: first, LastName: last, Email: email,
			PGYLevel: shared.TrainingLevel(pgy), Status: resident.StatusActive,
			MedicalSchool: school,
		}
	}
	return []resident.Resident{
		mk("res-chen", "Sarah", "Chen", "schen@partners.org", 5, "Harvard Medical School"),
		mk("res-rodriguez", "Michael", "Rodriguez", "mrodriguez@partners.org", 4, "Stanford University"),
		mk("res-johnson", "Emma", "Johnson", "ejohnson@partners.org", 3, "Johns Hopkins"),
		mk("res-pham", "Kevin", "Pham", "kpham@partners.org", 2, "UCSF"),
		mk("res-oconnor", "Megan", "O'Connor", "moconnor@partners.org", 1, "Yale"),
		mk("res-singh", "Arjun", "Singh", "asingh@partners.org", 1, "Columbia"),
	}
}

func facultyList() []faculty.Faculty {
	mk := func(id, first, last, email string, rank faculty.Rank, core bool) faculty.Faculty {
		return faculty.Faculty{
			ID: shared.FacultyID(id), ProgramID: ProgramID,
			FirstName: first, LastName: last, Email: email,
			Rank: rank, IsCoreFaculty: core, Active: true,
		}
	}
	return []faculty.Faculty{
		mk("fac-martinez", "Julia", "Martinez", "jmartinez@partners.org", faculty.RankAssociateProfessor, true),
		mk("fac-patel", "Rajesh", "Patel", "rpatel@partners.org", faculty.RankProfessor, true),
		mk("fac-thompson", "Lisa", "Thompson", "lthompson@partners.org", faculty.RankAssistantProfessor, true),
		mk("fac-kim", "David", "Kim", "dkim@partners.org", faculty.RankAssociateProfessor, true),
		mk("fac-williams", "Robert", "Williams", "rwilliams@partners.org", faculty.RankProfessor, true),
		// Chief resident who also supervises.
		mk("fac-chen", "Sarah", "Chen", "schen@partners.org", faculty.RankClinicalInstructor, false),
	}
}

func sites() []site.ClinicalSite {
	const (
		mgh = "Massachusetts General Hospital"
		bwh = "Brigham and Women's Hospital"
		va  = "VA Boston Healthcare System"
		nwh = "Newton-Wellesley Hospital"
	)
	mk := func(id, name string, class site.Classification, inst string) site.ClinicalSite {
		return site.ClinicalSite{ID: shared.ClinicalSiteID(id), Name: name, Classification: class, InstitutionName: inst, Active: true}
	}
	return []site.ClinicalSite{
		mk("site-mgh-main", "MGH Main Campus", site.ClassPrimary, mgh),
		mk("site-mgh-or", "MGH Surgical OR Suite", site.ClassPrimary, mgh),
		mk("site-mgh-sicu", "MGH Surgical ICU", site.ClassPrimary, mgh),
		mk("site-mgh-clinic", "MGH Surgical Clinic", site.ClassPrimary, mgh),
		mk("site-bwh-surg", "BWH General Surgery Service", site.ClassAffiliate, bwh),
		mk("site-bwh-or", "BWH Surgical OR Suite", site.ClassAffiliate, bwh),
		mk("site-va-surg", "VA Boston Surgical Service", site.ClassVA, va),
		mk("site-nwh-surg", "Newton-Wellesley Surgical Service", site.ClassCommunity, nwh),
	}
}

type sample struct {
	id, resident, assessor string
	epa, level             int
	date, site, urgency    string
	asa                    int
	duration               *int
	location, details      string
	feedback               string
	method                 assessment.EntryMethod
	ack                    bool
}

func assessments() []*assessment.Assessment {
	d := func(n int) *int { return &n }
	samples := []sample{
		{"assess-001", "res-rodriguez", "fac-patel", 5, 3, "2024-10-15T14:30:00Z", "site-mgh-or", "elective", 2, d(55), "or", "OR 5",
			"Good case. Mike demonstrated solid decision-making and improving port placement. Still needs work on achieving critical view of safety - we talked through the approach. Ready for more independence on straightforward cases.",
			assessment.EntryMobileIOS, true},
		{"assess-002", "res-rodriguez", "fac-martinez", 5, 3, "2024-11-03T09:15:00Z", "site-mgh-or", "urgent", 2, d(68), "or", "OR 3",
			"Excellent critical view. Decision to proceed was appropriate. Technique is improving consistently. Consider allowing more independence on next case.",
			assessment.EntryMobileIOS, true},
		{"assess-003", "res-rodriguez", "fac-patel", 5, 4, "2024-12-10T15:45:00Z", "site-mgh-or", "elective", 3, d(72), "or", "OR 5",
			"Performed case with minimal guidance. Good judgment throughout. Managed adhesions well. Ready for supervision on demand level for routine cases.",
			assessment.EntryMobileIOS, true},
		{"assess-004", "res-rodriguez", "fac-thompson", 5, 4, "2025-01-20T11:00:00Z", "site-bwh-or", "elective", 2, d(48), "or", "OR 8",
			"Efficient case, excellent technique. Mike is ready to do these with supervision available only if needed. Textbook critical view.",
			assessment.EntryWeb, false},
		{"assess-005", "res-rodriguez", "fac-patel", 3, 4, "2024-11-20T02:30:00Z", "site-mgh-or", "emergent", 2, d(35), "or", "OR 2",
			"Middle of the night acute appy. Mike handled it independently, called me to scrub in but didn't need my help. Excellent decision-making under pressure.",
			assessment.EntryMobileIOS, true},
		{"assess-006", "res-rodriguez", "fac-martinez", 4, 3, "2024-12-05T08:00:00Z", "site-mgh-or", "elective", 2, d(90), "or", "OR 4",
			"Bilateral inguinal hernia repair. Good mesh placement on right side. Left side needed some coaching on dissection near the cord. Solid overall.",
			assessment.EntryMobileAndroid, true},
		{"assess-010", "res-johnson", "fac-martinez", 5, 3, "2024-11-12T14:00:00Z", "site-bwh-or", "elective", 2, d(65), "or", "OR 6",
			"Good case for Emma. She's progressing well on lap choles. Critical view was achieved safely. Minor coaching on retraction angles. Keep building volume.",
			assessment.EntryMobileIOS, true},
		{"assess-011", "res-johnson", "fac-kim", 6, 2, "2024-12-01T10:30:00Z", "site-mgh-or", "urgent", 3, d(180), "or", "OR 1",
			"Perforated diverticulitis requiring Hartmann's. Complex case. Emma assisted well and performed the sigmoid mobilization. Needs more experience before leading these independently. Good learning case.",
			assessment.EntryMobileIOS, true},
		{"assess-012", "res-johnson", "fac-patel", 8, 4, "2025-01-15T16:00:00Z", "site-mgh-sicu", "urgent", 3, d(15), "icu", "SICU Bed 4",
			"IJ central line placed independently. Ultrasound-guided, first pass. Emma is proficient at line placement.",
			assessment.EntryWeb, true},
		{"assess-020", "res-oconnor", "fac-chen", 3, 2, "2024-09-10T03:20:00Z", "site-va-surg", "emergent", 2, d(48), "or", "OR 2",
			"Megan assisted on emergent lap appy. Good retraction and camera work. Needs more practice with dissection before taking the lead. Discussed anatomy and safe approach. Good attitude.",
			assessment.EntryMobileIOS, true},
		{"assess-021", "res-oconnor", "fac-thompson", 1, 3, "2024-10-05T09:00:00Z", "site-mgh-clinic", "elective", 1, d(30), "clinic", "Surgical Clinic Room 4",
			"Megan performed a thorough preop assessment for elective cholecystectomy. Good history, appropriate physical exam. Consent discussion was complete. She's doing well with clinic evaluations.",
			assessment.EntryWeb, true},
		{"assess-022", "res-oconnor", "fac-kim", 11, 2, "2024-11-20T07:00:00Z", "site-mgh-main", "elective", 2, nil, "ward", "Ellison 12",
			"Rounding with Megan on postop patients. She presented well and had appropriate plans. Needed prompting on fluid management for the pancreatitis patient. Learning curve appropriate for PGY-1.",
			assessment.EntryMobileIOS, false},
	}

	out := make([]*assessment.Assessment, 0, len(samples))
	for _, s := range samples {
		at, err := time.Parse(time.RFC3339, s.date)
		if err != nil {
			panic("seed: bad date " + s.date)
		}
		siteID := shared.ClinicalSiteID(s.site)
		urgency := assessment.Urgency(s.urgency)
		loc := assessment.LocationType(s.location)
		a := &assessment.Assessment{
			ID:             shared.AssessmentID(s.id),
			ResidentID:     shared.ResidentID(s.resident),
			AssessorID:     shared.FacultyID(s.assessor),
			EPAID:          shared.EPAID(s.epa),
			Level:          shared.EntrustmentLevel(s.level),
			AssessmentDate: at,
			SubmissionDate: at,
			Context: assessment.Context{
				ClinicalSiteID:       &siteID,
				CaseUrgency:          &urgency,
				PatientASAClass:      assessment.Ptr(s.asa),
				ProcedureDurationMin: s.duration,
				Complications:        assessment.Ptr(false),
				LocationType:         &loc,
				LocationDetails:      assessment.Ptr(s.details),
			},
			NarrativeFeedback: assessment.Ptr(s.feedback),
			SpecialtyContext:  json.RawMessage("{}"),
			EntryMethod:       s.method,
			Acknowledged:      s.ack,
			CreatedAt:         at,
			UpdatedAt:         at,
		}
		if s.ack {
			a.AcknowledgedAt = assessment.Ptr(at)
		}
		out = append(out, a)
	}
	return out
}
